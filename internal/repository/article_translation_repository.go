package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/wusimpl/hackernewscn/internal/model"
)

var (
	ErrDoneNeedsBody     = errors.New("article status done requires a non-empty body")
	ErrBlockedNeedsError = errors.New("article status blocked requires an empty body and an error message")
)

// ArticleTranslationRepository stores translated article bodies with their
// status lifecycle.
type ArticleTranslationRepository interface {
	Get(ctx context.Context, itemID int64) (*model.ArticleTranslation, error)
	GetBatch(ctx context.Context, itemIDs []int64) (map[int64]*model.ArticleTranslation, error)
	// Set writes the full row atomically and refreshes updated_at.
	Set(ctx context.Context, row model.ArticleTranslation) error
	// SetStatus records an intermediate transition without touching the body.
	SetStatus(ctx context.Context, itemID int64, status string, errMsg *string) error
	FindAllDone(ctx context.Context) ([]model.ArticleTranslation, error)
	Delete(ctx context.Context, itemID int64) error
	DeleteAll(ctx context.Context) (int64, error)
}

type articleTranslationRepository struct {
	db *sql.DB
}

func NewArticleTranslationRepository(db *sql.DB) ArticleTranslationRepository {
	return &articleTranslationRepository{db: db}
}

func (r *articleTranslationRepository) Get(ctx context.Context, itemID int64) (*model.ArticleTranslation, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT item_id, title_snapshot, content_markdown, original_url, status, error_message, tldr, updated_at
		 FROM article_translations WHERE item_id = ?`,
		itemID,
	)
	var a model.ArticleTranslation
	err := row.Scan(&a.ItemID, &a.TitleSnapshot, &a.ContentMarkdown, &a.OriginalURL, &a.Status, &a.ErrorMessage, &a.TLDR, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *articleTranslationRepository) GetBatch(ctx context.Context, itemIDs []int64) (map[int64]*model.ArticleTranslation, error) {
	result := make(map[int64]*model.ArticleTranslation)
	if len(itemIDs) == 0 {
		return result, nil
	}

	query := `SELECT item_id, title_snapshot, content_markdown, original_url, status, error_message, tldr, updated_at
	          FROM article_translations WHERE item_id IN (` + placeholders(len(itemIDs)) + `)`

	rows, err := r.db.QueryContext(ctx, query, int64Args(itemIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a model.ArticleTranslation
		if err := rows.Scan(&a.ItemID, &a.TitleSnapshot, &a.ContentMarkdown, &a.OriginalURL, &a.Status, &a.ErrorMessage, &a.TLDR, &a.UpdatedAt); err != nil {
			return nil, err
		}
		result[a.ItemID] = &a
	}
	return result, rows.Err()
}

func (r *articleTranslationRepository) Set(ctx context.Context, row model.ArticleTranslation) error {
	switch row.Status {
	case model.ArticleStatusDone:
		if row.ContentMarkdown == "" {
			return ErrDoneNeedsBody
		}
	case model.ArticleStatusBlocked:
		if row.ContentMarkdown != "" || row.ErrorMessage == nil || *row.ErrorMessage == "" {
			return ErrBlockedNeedsError
		}
	}

	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO article_translations (item_id, title_snapshot, content_markdown, original_url, status, error_message, tldr, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET
		   title_snapshot = excluded.title_snapshot,
		   content_markdown = excluded.content_markdown,
		   original_url = excluded.original_url,
		   status = excluded.status,
		   error_message = excluded.error_message,
		   tldr = excluded.tldr,
		   updated_at = excluded.updated_at`,
		row.ItemID, row.TitleSnapshot, row.ContentMarkdown, row.OriginalURL, row.Status, row.ErrorMessage, row.TLDR, time.Now().Unix(),
	)
	return err
}

func (r *articleTranslationRepository) SetStatus(ctx context.Context, itemID int64, status string, errMsg *string) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO article_translations (item_id, status, error_message, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET
		   status = excluded.status,
		   error_message = excluded.error_message,
		   updated_at = excluded.updated_at`,
		itemID, status, errMsg, time.Now().Unix(),
	)
	return err
}

func (r *articleTranslationRepository) FindAllDone(ctx context.Context) ([]model.ArticleTranslation, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT item_id, title_snapshot, content_markdown, original_url, status, error_message, tldr, updated_at
		 FROM article_translations WHERE status = ? ORDER BY updated_at DESC`,
		model.ArticleStatusDone,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []model.ArticleTranslation
	for rows.Next() {
		var a model.ArticleTranslation
		if err := rows.Scan(&a.ItemID, &a.TitleSnapshot, &a.ContentMarkdown, &a.OriginalURL, &a.Status, &a.ErrorMessage, &a.TLDR, &a.UpdatedAt); err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func (r *articleTranslationRepository) Delete(ctx context.Context, itemID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM article_translations WHERE item_id = ?`, itemID)
	return err
}

func (r *articleTranslationRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM article_translations`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
