package config

import (
	"os"
	"path/filepath"
)

const (
	AppName    = "hackernewscn"
	AppVersion = "1.0.0"
)

// UserAgent identifies outbound requests from this service.
var UserAgent = AppName + "/" + AppVersion

// Default upstream endpoints. The reader base may be left empty, in which
// case article bodies are extracted locally (see internal/reader).
const (
	DefaultHNBaseURL = "https://hacker-news.firebaseio.com/v0"
)

type Config struct {
	Addr       string
	DBPath     string
	DataDir    string
	HNBaseURL  string
	ReaderBase string
	LogLevel   string
}

func Load() Config {
	addr := os.Getenv("HNCN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	dataDir := os.Getenv("HNCN_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	path := os.Getenv("HNCN_DB_PATH")
	if path == "" {
		path = filepath.Join(dataDir, "hackernewscn.db")
	}
	hnBase := os.Getenv("HNCN_HN_BASE")
	if hnBase == "" {
		hnBase = DefaultHNBaseURL
	}

	return Config{
		Addr:       addr,
		DBPath:     filepath.Clean(path),
		DataDir:    filepath.Clean(dataDir),
		HNBaseURL:  hnBase,
		ReaderBase: os.Getenv("HNCN_READER_BASE"),
		LogLevel:   os.Getenv("HNCN_LOG_LEVEL"),
	}
}
