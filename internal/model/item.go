package model

// Item is a ranked Hacker News story that has completed translation.
// A row exists only once the title translation (and, for stories with a
// URL, the article translation) has succeeded.
type Item struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	By          string  `json:"by"`
	Score       int     `json:"score"`
	Time        int64   `json:"time"`
	URL         *string `json:"url,omitempty"`
	Descendants int     `json:"descendants"`
	FetchedAt   int64   `json:"fetchedAt"`
}

// StoryView decorates an item with its cached translations for serving.
type StoryView struct {
	Item
	TitleZH string  `json:"titleZh"`
	TLDR    *string `json:"tldr,omitempty"`
}
