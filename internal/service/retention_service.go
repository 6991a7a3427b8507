package service

import (
	"context"

	"github.com/wusimpl/hackernewscn/internal/logger"
	"github.com/wusimpl/hackernewscn/internal/repository"
)

const (
	// maxComments is the comment table ceiling; crossing it trims the
	// oldest commentTrim rows.
	maxComments = 100_000
	commentTrim = 10_000
	// maxItems is the item table ceiling; crossing it trims the oldest
	// itemTrim stories with everything hanging off them.
	maxItems = 3_000
	itemTrim = 200
)

// RetentionService keeps the cache bounded: oldest-first trims once the
// table ceilings are crossed, plus completed-job cleanup.
type RetentionService interface {
	Sweep(ctx context.Context) error
}

type retentionService struct {
	items    repository.ItemRepository
	comments repository.CommentRepository
	jobs     repository.JobRepository
}

func NewRetentionService(
	items repository.ItemRepository,
	comments repository.CommentRepository,
	jobs repository.JobRepository,
) RetentionService {
	return &retentionService{items: items, comments: comments, jobs: jobs}
}

func (s *retentionService) Sweep(ctx context.Context) error {
	commentCount, err := s.comments.Count(ctx)
	if err != nil {
		return err
	}
	if commentCount > maxComments {
		deleted, err := s.comments.DeleteOldest(ctx, commentTrim)
		if err != nil {
			return err
		}
		logger.Info("comments trimmed", "module", "retention", "count", len(deleted), "total", commentCount)
	}

	itemCount, err := s.items.Count(ctx)
	if err != nil {
		return err
	}
	if itemCount > maxItems {
		deleted, err := s.items.DeleteOldest(ctx, itemTrim)
		if err != nil {
			return err
		}
		logger.Info("items trimmed", "module", "retention", "count", deleted, "total", itemCount)
	}

	cleaned, err := s.jobs.DeleteCompleted(ctx)
	if err != nil {
		return err
	}
	if cleaned > 0 {
		logger.Info("completed jobs cleaned", "module", "retention", "count", cleaned)
	}
	return nil
}
