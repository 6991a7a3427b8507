package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/wusimpl/hackernewscn/internal/model"
)

// CommentRepository stores a story's comment tree flat; readers rebuild
// the tree by grouping on parent_id.
type CommentRepository interface {
	UpsertBatch(ctx context.Context, rows []model.Comment) error
	// FindByItem returns a story's comments ordered by time ascending.
	FindByItem(ctx context.Context, itemID int64) ([]model.Comment, error)
	IDsByItem(ctx context.Context, itemID int64) (map[int64]struct{}, error)
	HasComments(ctx context.Context, itemID int64) (bool, error)
	Count(ctx context.Context) (int64, error)
	// DeleteOldest removes the n oldest comments by fetched_at, cascading
	// to their translations, and reports the deleted IDs.
	DeleteOldest(ctx context.Context, n int) ([]int64, error)
}

type commentRepository struct {
	db *sql.DB
}

func NewCommentRepository(db *sql.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) UpsertBatch(ctx context.Context, rows []model.Comment) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, c := range rows {
		fetchedAt := c.FetchedAt
		if fetchedAt == 0 {
			fetchedAt = now
		}
		kids := c.Kids
		if kids == "" {
			kids = "[]"
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO comments (comment_id, item_id, parent_id, author, text, time, kids, deleted, dead, fetched_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(comment_id) DO UPDATE SET
			   author = excluded.author,
			   text = excluded.text,
			   kids = excluded.kids,
			   deleted = excluded.deleted,
			   dead = excluded.dead,
			   fetched_at = excluded.fetched_at`,
			c.ID, c.ItemID, c.ParentID, c.Author, c.Text, c.Time, kids, boolToInt(c.Deleted), boolToInt(c.Dead), fetchedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *commentRepository) FindByItem(ctx context.Context, itemID int64) ([]model.Comment, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT comment_id, item_id, parent_id, author, text, time, kids, deleted, dead, fetched_at
		 FROM comments WHERE item_id = ? ORDER BY time ASC`,
		itemID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		var c model.Comment
		var deleted, dead int
		if err := rows.Scan(&c.ID, &c.ItemID, &c.ParentID, &c.Author, &c.Text, &c.Time, &c.Kids, &deleted, &dead, &c.FetchedAt); err != nil {
			return nil, err
		}
		c.Deleted = deleted != 0
		c.Dead = dead != 0
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (r *commentRepository) IDsByItem(ctx context.Context, itemID int64) (map[int64]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT comment_id FROM comments WHERE item_id = ?`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (r *commentRepository) HasComments(ctx context.Context, itemID int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM comments WHERE item_id = ? LIMIT 1`, itemID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *commentRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments`).Scan(&count)
	return count, err
}

func (r *commentRepository) DeleteOldest(ctx context.Context, n int) ([]int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT comment_id FROM comments ORDER BY fetched_at ASC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	ph := placeholders(len(ids))
	args := int64Args(ids)
	if _, err := tx.ExecContext(ctx, `DELETE FROM comment_translations WHERE comment_id IN (`+ph+`)`, args...); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE comment_id IN (`+ph+`)`, args...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
