package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/wusimpl/hackernewscn/internal/model"
)

// SchedulerStatusRepository maintains the singleton last-run row.
type SchedulerStatusRepository interface {
	Get(ctx context.Context) (*model.SchedulerStatus, error)
	Update(ctx context.Context, lastRunAt int64, storiesFetched, titlesTranslated int) error
}

type schedulerStatusRepository struct {
	db *sql.DB
}

func NewSchedulerStatusRepository(db *sql.DB) SchedulerStatusRepository {
	return &schedulerStatusRepository{db: db}
}

func (r *schedulerStatusRepository) Get(ctx context.Context) (*model.SchedulerStatus, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT last_run_at, stories_fetched, titles_translated, updated_at
		FROM scheduler_status WHERE id = 1
	`)
	var s model.SchedulerStatus
	if err := row.Scan(&s.LastRunAt, &s.StoriesFetched, &s.TitlesTranslated, &s.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *schedulerStatusRepository) Update(ctx context.Context, lastRunAt int64, storiesFetched, titlesTranslated int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduler_status
		SET last_run_at = ?, stories_fetched = ?, titles_translated = ?, updated_at = ?
		WHERE id = 1
	`, lastRunAt, storiesFetched, titlesTranslated, time.Now().Unix())
	return err
}
