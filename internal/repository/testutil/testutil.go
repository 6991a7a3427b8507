package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wusimpl/hackernewscn/internal/db"
	"github.com/wusimpl/hackernewscn/internal/model"
)

// NewTestDB opens a fresh sqlite database in a temp dir and migrates it.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SeedItem inserts an item row directly.
func SeedItem(t *testing.T, conn *sql.DB, item model.Item) {
	t.Helper()
	if item.FetchedAt == 0 {
		item.FetchedAt = item.Time
	}
	_, err := conn.ExecContext(context.Background(), `
		INSERT INTO items (item_id, title_en, by, score, time, url, descendants, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.Title, item.By, item.Score, item.Time, item.URL, item.Descendants, item.FetchedAt)
	require.NoError(t, err)
}

// SeedComment inserts a comment row directly.
func SeedComment(t *testing.T, conn *sql.DB, c model.Comment) {
	t.Helper()
	kids := c.Kids
	if kids == "" {
		kids = "[]"
	}
	deleted, dead := 0, 0
	if c.Deleted {
		deleted = 1
	}
	if c.Dead {
		dead = 1
	}
	_, err := conn.ExecContext(context.Background(), `
		INSERT INTO comments (comment_id, item_id, parent_id, author, text, time, kids, deleted, dead, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.ItemID, c.ParentID, c.Author, c.Text, c.Time, kids, deleted, dead, c.FetchedAt)
	require.NoError(t, err)
}

// SeedCommentTranslation inserts a comment translation row directly.
func SeedCommentTranslation(t *testing.T, conn *sql.DB, ct model.CommentTranslation) {
	t.Helper()
	_, err := conn.ExecContext(context.Background(), `
		INSERT INTO comment_translations (comment_id, text_en, text_zh, updated_at)
		VALUES (?, ?, ?, ?)
	`, ct.CommentID, ct.TextEN, ct.TextZH, ct.UpdatedAt)
	require.NoError(t, err)
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
