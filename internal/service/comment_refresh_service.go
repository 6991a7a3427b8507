package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wusimpl/hackernewscn/internal/hackernews"
	"github.com/wusimpl/hackernewscn/internal/logger"
	"github.com/wusimpl/hackernewscn/internal/model"
	"github.com/wusimpl/hackernewscn/internal/repository"
)

// refreshBatchDelay spaces batches out so a refresh run does not
// hammer the upstream API.
const refreshBatchDelay = 30 * time.Second

// CommentRefreshService re-walks the comment trees of recently served
// stories and translates comments that appeared since the last visit.
type CommentRefreshService interface {
	RefreshAll(ctx context.Context) error
}

type commentRefreshService struct {
	hn       *hackernews.Client
	items    repository.ItemRepository
	comments repository.CommentRepository
	settings SettingsService
	pipeline *pipelineService
}

func NewCommentRefreshService(
	hn *hackernews.Client,
	items repository.ItemRepository,
	comments repository.CommentRepository,
	settings SettingsService,
	pipeline PipelineService,
) CommentRefreshService {
	return &commentRefreshService{
		hn:       hn,
		items:    items,
		comments: comments,
		settings: settings,
		pipeline: pipeline.(*pipelineService),
	}
}

func (s *commentRefreshService) RefreshAll(ctx context.Context) error {
	if !s.settings.CommentRefreshEnabled(ctx) {
		return nil
	}

	items, err := s.items.ListRecent(ctx, s.settings.CommentRefreshStoryLimit(ctx))
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	batchSize := s.settings.CommentRefreshBatchSize(ctx)
	for start := 0; start < len(items); start += batchSize {
		if start > 0 {
			select {
			case <-time.After(refreshBatchDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, item := range items[start:end] {
			g.Go(func() error {
				if err := s.refreshStory(gctx, item.ID); err != nil {
					logger.Warn("story refresh failed", "module", "comment_refresh", "item_id", item.ID, "error", err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	logger.Info("comment refresh completed", "module", "comment_refresh", "stories", len(items))
	return nil
}

// refreshStory re-fetches one story's thread and translates comments not
// seen before. Updated comment bodies are stored either way.
func (s *commentRefreshService) refreshStory(ctx context.Context, itemID int64) error {
	detail, err := s.hn.FetchItem(ctx, itemID)
	if err != nil {
		return err
	}
	if detail == nil {
		return nil
	}

	known, err := s.comments.IDsByItem(ctx, itemID)
	if err != nil {
		return err
	}

	comments, err := s.hn.FetchCommentTree(ctx, detail.Kids, itemID)
	if err != nil {
		logger.Warn("comment tree fetch incomplete", "module", "comment_refresh", "item_id", itemID, "error", err)
	}
	if len(comments) == 0 {
		return nil
	}

	if err := s.comments.UpsertBatch(ctx, comments); err != nil {
		return err
	}

	var fresh []model.Comment
	for _, c := range comments {
		if _, ok := known[c.ID]; !ok {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	return s.pipeline.translateComments(ctx, fresh, s.settings.MaxCommentTranslations(ctx))
}
