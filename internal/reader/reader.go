package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wusimpl/hackernewscn/internal/config"
)

// minContentLength is the threshold below which a fetched body is treated
// as empty. Empty bodies may be retried on a future cycle; blocked ones
// are terminal.
const minContentLength = 50

var (
	// ErrBlocked signals HTTP 451: the source refused the content for
	// legal reasons. Never retried.
	ErrBlocked = errors.New("content blocked for legal reasons")
	// ErrEmpty signals a body shorter than the usable minimum.
	ErrEmpty = errors.New("content empty")
)

// Fetcher retrieves article bodies as markdown. When a reader service base
// URL is configured the URL is proxied through it; otherwise the page is
// fetched directly and extracted locally.
type Fetcher struct {
	readerBase string
	httpClient *http.Client
}

func NewFetcher(readerBase string) *Fetcher {
	return &Fetcher{
		readerBase: strings.TrimRight(readerBase, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchArticleBody returns the article markdown for the given URL.
func (f *Fetcher) FetchArticleBody(ctx context.Context, pageURL string) (string, error) {
	if _, err := url.Parse(pageURL); err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	var markdown string
	var err error
	if f.readerBase != "" {
		markdown, err = f.fetchViaReader(ctx, pageURL)
	} else {
		markdown, err = f.fetchDirect(ctx, pageURL)
	}
	if err != nil {
		return "", err
	}

	if len(strings.TrimSpace(markdown)) < minContentLength {
		return "", ErrEmpty
	}
	return markdown, nil
}

func (f *Fetcher) fetchViaReader(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.readerBase+"/"+pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", config.UserAgent)
	req.Header.Set("X-With-Images-Summary", "true")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnavailableForLegalReasons {
		return "", ErrBlocked
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reader HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read reader body: %w", err)
	}
	return string(body), nil
}
