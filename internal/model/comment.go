package model

// Comment is one node of a story's comment tree, stored flat. ParentID is
// either the item ID (top level) or another comment ID. Kids holds the
// child ID list serialized as JSON.
type Comment struct {
	ID        int64   `json:"id"`
	ItemID    int64   `json:"itemId"`
	ParentID  int64   `json:"parentId"`
	Author    *string `json:"author,omitempty"`
	Text      *string `json:"text,omitempty"`
	Time      int64   `json:"time"`
	Kids      string  `json:"-"`
	Deleted   bool    `json:"deleted,omitempty"`
	Dead      bool    `json:"dead,omitempty"`
	FetchedAt int64   `json:"-"`
}

// CommentTranslation holds the translated text for one comment. A row may
// exist only while its comment row exists.
type CommentTranslation struct {
	CommentID int64  `json:"commentId"`
	TextEN    string `json:"textEn"`
	TextZH    string `json:"textZh"`
	UpdatedAt int64  `json:"updatedAt"`
}

// CommentNode is a comment decorated with its translation and children,
// composed on demand when serving a story's thread.
type CommentNode struct {
	Comment
	TextZH   string         `json:"textZh,omitempty"`
	Children []*CommentNode `json:"children,omitempty"`
}
