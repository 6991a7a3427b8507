package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/wusimpl/hackernewscn/internal/model"
)

// CommentTranslationRepository stores translated comment texts. Callers
// persist comment rows first; a translation row must never outlive its
// comment.
type CommentTranslationRepository interface {
	UpsertBatch(ctx context.Context, rows []model.CommentTranslation) error
	GetByIDs(ctx context.Context, commentIDs []int64) (map[int64]*model.CommentTranslation, error)
	DeleteByIDs(ctx context.Context, commentIDs []int64) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type commentTranslationRepository struct {
	db *sql.DB
}

func NewCommentTranslationRepository(db *sql.DB) CommentTranslationRepository {
	return &commentTranslationRepository{db: db}
}

func (r *commentTranslationRepository) UpsertBatch(ctx context.Context, rows []model.CommentTranslation) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, t := range rows {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO comment_translations (comment_id, text_en, text_zh, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(comment_id) DO UPDATE SET
			   text_en = excluded.text_en,
			   text_zh = excluded.text_zh,
			   updated_at = excluded.updated_at`,
			t.CommentID, t.TextEN, t.TextZH, now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *commentTranslationRepository) GetByIDs(ctx context.Context, commentIDs []int64) (map[int64]*model.CommentTranslation, error) {
	result := make(map[int64]*model.CommentTranslation)
	if len(commentIDs) == 0 {
		return result, nil
	}

	query := `SELECT comment_id, text_en, text_zh, updated_at
	          FROM comment_translations WHERE comment_id IN (` + placeholders(len(commentIDs)) + `)`

	rows, err := r.db.QueryContext(ctx, query, int64Args(commentIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t model.CommentTranslation
		if err := rows.Scan(&t.CommentID, &t.TextEN, &t.TextZH, &t.UpdatedAt); err != nil {
			return nil, err
		}
		result[t.CommentID] = &t
	}
	return result, rows.Err()
}

func (r *commentTranslationRepository) DeleteByIDs(ctx context.Context, commentIDs []int64) (int64, error) {
	if len(commentIDs) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(
		ctx,
		`DELETE FROM comment_translations WHERE comment_id IN (`+placeholders(len(commentIDs))+`)`,
		int64Args(commentIDs)...,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *commentTranslationRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM comment_translations`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
