package model

// Article translation lifecycle states.
const (
	ArticleStatusQueued  = "queued"
	ArticleStatusRunning = "running"
	ArticleStatusDone    = "done"
	ArticleStatusError   = "error"
	// ArticleStatusBlocked is terminal: the reader refused the content for
	// legal reasons (HTTP 451). Blocked stories are never retried.
	ArticleStatusBlocked = "blocked"
)

// TitleTranslation is the translated headline for one story, versioned by
// the hash of the prompt that produced it. A row whose hash no longer
// matches the current article prompt is stale and ignored for serving.
type TitleTranslation struct {
	ItemID     int64  `json:"itemId"`
	TitleEN    string `json:"titleEn"`
	TitleZH    string `json:"titleZh"`
	PromptHash string `json:"promptHash"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// ArticleTranslation is the translated body for one story.
type ArticleTranslation struct {
	ItemID          int64   `json:"itemId"`
	TitleSnapshot   string  `json:"titleSnapshot"`
	ContentMarkdown string  `json:"contentMarkdown"`
	OriginalURL     string  `json:"originalUrl"`
	Status          string  `json:"status"`
	ErrorMessage    *string `json:"errorMessage,omitempty"`
	TLDR            *string `json:"tldr,omitempty"`
	UpdatedAt       int64   `json:"updatedAt"`
}
