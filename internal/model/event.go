package model

// Event types published on the bus.
const (
	EventArticleDone  = "article.done"
	EventArticleError = "article.error"
	EventTitleDone    = "title.done"
)

// Event is the JSON-serializable payload streamed to subscribed clients.
type Event struct {
	Type        string     `json:"type"`
	StoryID     int64      `json:"storyId"`
	Title       string     `json:"title,omitempty"`
	Content     string     `json:"content,omitempty"`
	OriginalURL string     `json:"originalUrl,omitempty"`
	TLDR        string     `json:"tldr,omitempty"`
	Error       string     `json:"error,omitempty"`
	Story       *StoryView `json:"story,omitempty"`
}
