package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wusimpl/hackernewscn/internal/model"
)

// ItemRepository stores items whose prerequisite translations have
// succeeded. The presence of a row is the lifecycle marker: callers only
// insert once title (and, with a URL, article) translation is done.
type ItemRepository interface {
	Upsert(ctx context.Context, item model.Item) error
	GetByID(ctx context.Context, id int64) (*model.Item, error)
	// ListViews returns served stories newest-first, decorated with the
	// translated title (current prompt hash only) and TLDR.
	ListViews(ctx context.Context, currentHash string, limit, offset int) ([]model.StoryView, error)
	// ListRecent returns up to n items by posted-at descending.
	ListRecent(ctx context.Context, n int) ([]model.Item, error)
	Count(ctx context.Context) (int64, error)
	// DeleteOldest removes the n oldest items by fetched_at, cascading to
	// their comments, comment translations, and translation rows.
	DeleteOldest(ctx context.Context, n int) (int64, error)
	// Delete removes one item with the same cascade.
	Delete(ctx context.Context, id int64) error
}

type itemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) Upsert(ctx context.Context, item model.Item) error {
	fetchedAt := item.FetchedAt
	if fetchedAt == 0 {
		fetchedAt = time.Now().Unix()
	}
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO items (item_id, title_en, by, score, time, url, descendants, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET
		   title_en = excluded.title_en,
		   by = excluded.by,
		   score = excluded.score,
		   descendants = excluded.descendants`,
		item.ID, item.Title, item.By, item.Score, item.Time, item.URL, item.Descendants, fetchedAt,
	)
	return err
}

func (r *itemRepository) GetByID(ctx context.Context, id int64) (*model.Item, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT item_id, title_en, by, score, time, url, descendants, fetched_at
		 FROM items WHERE item_id = ?`,
		id,
	)
	var item model.Item
	err := row.Scan(&item.ID, &item.Title, &item.By, &item.Score, &item.Time, &item.URL, &item.Descendants, &item.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepository) ListViews(ctx context.Context, currentHash string, limit, offset int) ([]model.StoryView, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT i.item_id, i.title_en, i.by, i.score, i.time, i.url, i.descendants, i.fetched_at,
		        t.title_zh, a.tldr
		 FROM items i
		 JOIN title_translations t ON t.item_id = i.item_id AND t.prompt_hash = ?
		 LEFT JOIN article_translations a ON a.item_id = i.item_id AND a.status = 'done'
		 ORDER BY i.time DESC
		 LIMIT ? OFFSET ?`,
		currentHash, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []model.StoryView
	for rows.Next() {
		var v model.StoryView
		if err := rows.Scan(&v.ID, &v.Title, &v.By, &v.Score, &v.Time, &v.URL, &v.Descendants, &v.FetchedAt, &v.TitleZH, &v.TLDR); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func (r *itemRepository) ListRecent(ctx context.Context, n int) ([]model.Item, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT item_id, title_en, by, score, time, url, descendants, fetched_at
		 FROM items ORDER BY time DESC LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var item model.Item
		if err := rows.Scan(&item.ID, &item.Title, &item.By, &item.Score, &item.Time, &item.URL, &item.Descendants, &item.FetchedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *itemRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count)
	return count, err
}

func (r *itemRepository) DeleteOldest(ctx context.Context, n int) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT item_id FROM items ORDER BY fetched_at ASC LIMIT ?`, n)
	if err != nil {
		return 0, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := cascadeDeleteItems(ctx, tx, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

func (r *itemRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := cascadeDeleteItems(ctx, tx, []int64{id}); err != nil {
		return err
	}
	return tx.Commit()
}

// cascadeDeleteItems removes items and everything hanging off them:
// comment translations, comments, title and article translations.
func cascadeDeleteItems(ctx context.Context, tx dbtx, ids []int64) error {
	ph := placeholders(len(ids))
	args := int64Args(ids)

	stmts := []string{
		`DELETE FROM comment_translations WHERE comment_id IN
		   (SELECT comment_id FROM comments WHERE item_id IN (` + ph + `))`,
		`DELETE FROM comments WHERE item_id IN (` + ph + `)`,
		`DELETE FROM title_translations WHERE item_id IN (` + ph + `)`,
		`DELETE FROM article_translations WHERE item_id IN (` + ph + `)`,
		`DELETE FROM items WHERE item_id IN (` + ph + `)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("cascade delete items: %w", err)
		}
	}
	return nil
}
