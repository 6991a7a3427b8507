package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/wusimpl/hackernewscn/internal/model"
)

// TitleTranslationRepository stores translated headlines keyed by item.
// Rows carry the hash of the prompt that produced them; lookups filter on
// the current hash so stale rows become invisible without a migration.
type TitleTranslationRepository interface {
	// Get returns nil when no row exists or the stored hash disagrees.
	Get(ctx context.Context, itemID int64, currentHash string) (*model.TitleTranslation, error)
	// GetBatch returns rows matching the current hash, keyed by item ID.
	GetBatch(ctx context.Context, itemIDs []int64, currentHash string) (map[int64]*model.TitleTranslation, error)
	Upsert(ctx context.Context, row model.TitleTranslation) error
	UpsertBatch(ctx context.Context, rows []model.TitleTranslation) error
	// DeleteNotMatching aggressively evicts rows produced by other prompts.
	DeleteNotMatching(ctx context.Context, currentHash string) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type titleTranslationRepository struct {
	db *sql.DB
}

func NewTitleTranslationRepository(db *sql.DB) TitleTranslationRepository {
	return &titleTranslationRepository{db: db}
}

func (r *titleTranslationRepository) Get(ctx context.Context, itemID int64, currentHash string) (*model.TitleTranslation, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT item_id, title_en, title_zh, prompt_hash, updated_at
		 FROM title_translations WHERE item_id = ? AND prompt_hash = ?`,
		itemID, currentHash,
	)
	var t model.TitleTranslation
	err := row.Scan(&t.ItemID, &t.TitleEN, &t.TitleZH, &t.PromptHash, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *titleTranslationRepository) GetBatch(ctx context.Context, itemIDs []int64, currentHash string) (map[int64]*model.TitleTranslation, error) {
	result := make(map[int64]*model.TitleTranslation)
	if len(itemIDs) == 0 {
		return result, nil
	}

	query := `SELECT item_id, title_en, title_zh, prompt_hash, updated_at
	          FROM title_translations WHERE prompt_hash = ? AND item_id IN (` + placeholders(len(itemIDs)) + `)`
	args := append([]any{currentHash}, int64Args(itemIDs)...)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t model.TitleTranslation
		if err := rows.Scan(&t.ItemID, &t.TitleEN, &t.TitleZH, &t.PromptHash, &t.UpdatedAt); err != nil {
			return nil, err
		}
		result[t.ItemID] = &t
	}
	return result, rows.Err()
}

func (r *titleTranslationRepository) Upsert(ctx context.Context, row model.TitleTranslation) error {
	return r.UpsertBatch(ctx, []model.TitleTranslation{row})
}

func (r *titleTranslationRepository) UpsertBatch(ctx context.Context, rows []model.TitleTranslation) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, row := range rows {
		updatedAt := row.UpdatedAt
		if updatedAt == 0 {
			updatedAt = now
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO title_translations (item_id, title_en, title_zh, prompt_hash, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(item_id) DO UPDATE SET
			   title_en = excluded.title_en,
			   title_zh = excluded.title_zh,
			   prompt_hash = excluded.prompt_hash,
			   updated_at = excluded.updated_at`,
			row.ItemID, row.TitleEN, row.TitleZH, row.PromptHash, updatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *titleTranslationRepository) DeleteNotMatching(ctx context.Context, currentHash string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM title_translations WHERE prompt_hash != ?`, currentHash)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *titleTranslationRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM title_translations`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
