package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/wusimpl/hackernewscn/internal/model"
)

// JobRepository is durable storage for queued translation tasks.
type JobRepository interface {
	Create(ctx context.Context, itemID int64, kind string) (string, error)
	UpdateStatus(ctx context.Context, jobID, status string, progress *int) error
	FindByItemAndKind(ctx context.Context, itemID int64, kind string) ([]model.Job, error)
	FindByStatus(ctx context.Context, status string) ([]model.Job, error)
	// ResetAbandoned marks jobs left behind by a previous process as
	// errored. Both queued and running rows qualify: a dead process can
	// never dispatch its pending entries, and leaving them queued would
	// make Submit dedup against rows no queue is working on.
	ResetAbandoned(ctx context.Context) (int64, error)
	DeleteCompleted(ctx context.Context) (int64, error)
	Delete(ctx context.Context, jobID string) error
}

type jobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Create(ctx context.Context, itemID int64, kind string) (string, error) {
	id := uuid.NewString()
	now := time.Now().Unix()
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO translation_jobs (job_id, item_id, kind, status, progress, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		id, itemID, kind, model.JobStatusQueued, now, now,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *jobRepository) UpdateStatus(ctx context.Context, jobID, status string, progress *int) error {
	now := time.Now().Unix()
	if progress != nil {
		_, err := r.db.ExecContext(
			ctx,
			`UPDATE translation_jobs SET status = ?, progress = ?, updated_at = ? WHERE job_id = ?`,
			status, *progress, now, jobID,
		)
		return err
	}
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE translation_jobs SET status = ?, updated_at = ? WHERE job_id = ?`,
		status, now, jobID,
	)
	return err
}

func (r *jobRepository) FindByItemAndKind(ctx context.Context, itemID int64, kind string) ([]model.Job, error) {
	return r.find(ctx,
		`SELECT job_id, item_id, kind, status, progress, created_at, updated_at
		 FROM translation_jobs WHERE item_id = ? AND kind = ? ORDER BY created_at DESC`,
		itemID, kind)
}

func (r *jobRepository) FindByStatus(ctx context.Context, status string) ([]model.Job, error) {
	return r.find(ctx,
		`SELECT job_id, item_id, kind, status, progress, created_at, updated_at
		 FROM translation_jobs WHERE status = ? ORDER BY created_at ASC`,
		status)
}

func (r *jobRepository) find(ctx context.Context, query string, args ...any) ([]model.Job, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(&j.ID, &j.ItemID, &j.Kind, &j.Status, &j.Progress, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *jobRepository) ResetAbandoned(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE translation_jobs SET status = ?, updated_at = ? WHERE status IN (?, ?)`,
		model.JobStatusError, time.Now().Unix(), model.JobStatusQueued, model.JobStatusRunning,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *jobRepository) DeleteCompleted(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(
		ctx,
		`DELETE FROM translation_jobs WHERE status IN (?, ?)`,
		model.JobStatusDone, model.JobStatusError,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *jobRepository) Delete(ctx context.Context, jobID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM translation_jobs WHERE job_id = ?`, jobID)
	return err
}
