package service

import (
	"context"

	"github.com/microcosm-cc/bluemonday"

	"github.com/wusimpl/hackernewscn/internal/llm"
	"github.com/wusimpl/hackernewscn/internal/model"
	"github.com/wusimpl/hackernewscn/internal/repository"
)

// StoryDetail is one served story with its article translation.
type StoryDetail struct {
	model.StoryView
	ContentMarkdown string  `json:"contentMarkdown,omitempty"`
	OriginalURL     string  `json:"originalUrl,omitempty"`
	ArticleStatus   string  `json:"articleStatus,omitempty"`
	ErrorMessage    *string `json:"errorMessage,omitempty"`
}

// StoryService serves cached stories and their comment threads.
type StoryService interface {
	ListStories(ctx context.Context, limit, offset int) ([]model.StoryView, error)
	GetStory(ctx context.Context, id int64) (*StoryDetail, error)
	// GetComments returns the story's comment tree with translations
	// attached. Siblings are ordered oldest first; comments whose parent
	// is missing surface as roots.
	GetComments(ctx context.Context, id int64) ([]*model.CommentNode, error)
}

type storyService struct {
	items    repository.ItemRepository
	titles   repository.TitleTranslationRepository
	articles repository.ArticleTranslationRepository
	comments repository.CommentRepository
	commentTranslations repository.CommentTranslationRepository
	prompts  *llm.Registry
	// Comment bodies come from an external source and go straight into
	// client DOMs; sanitize on the way out.
	sanitizer *bluemonday.Policy
}

func NewStoryService(
	items repository.ItemRepository,
	titles repository.TitleTranslationRepository,
	articles repository.ArticleTranslationRepository,
	comments repository.CommentRepository,
	commentTranslations repository.CommentTranslationRepository,
	prompts *llm.Registry,
) StoryService {
	return &storyService{
		items:    items,
		titles:   titles,
		articles: articles,
		comments: comments,
		commentTranslations: commentTranslations,
		prompts:  prompts,
		sanitizer: bluemonday.UGCPolicy(),
	}
}

func (s *storyService) ListStories(ctx context.Context, limit, offset int) ([]model.StoryView, error) {
	hash, err := s.prompts.ArticlePromptHash(ctx)
	if err != nil {
		return nil, err
	}
	views, err := s.items.ListViews(ctx, hash, limit, offset)
	if err != nil {
		return nil, err
	}
	if views == nil {
		views = []model.StoryView{}
	}
	return views, nil
}

func (s *storyService) GetStory(ctx context.Context, id int64) (*StoryDetail, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrStoryNotFound
	}

	hash, err := s.prompts.ArticlePromptHash(ctx)
	if err != nil {
		return nil, err
	}
	title, err := s.titles.Get(ctx, id, hash)
	if err != nil {
		return nil, err
	}

	detail := &StoryDetail{StoryView: model.StoryView{Item: *item}}
	if title != nil {
		detail.TitleZH = title.TitleZH
	}

	article, err := s.articles.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if article != nil {
		detail.ContentMarkdown = article.ContentMarkdown
		detail.OriginalURL = article.OriginalURL
		detail.ArticleStatus = article.Status
		detail.ErrorMessage = article.ErrorMessage
		detail.TLDR = article.TLDR
	}
	return detail, nil
}

func (s *storyService) GetComments(ctx context.Context, id int64) ([]*model.CommentNode, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrStoryNotFound
	}

	comments, err := s.comments.FindByItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return []*model.CommentNode{}, nil
	}

	ids := make([]int64, len(comments))
	for i, c := range comments {
		ids[i] = c.ID
	}
	translations, err := s.commentTranslations.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	return s.buildTree(id, comments, translations), nil
}

// buildTree groups the flat comment set by parent. Input order is time
// ascending, which carries over to every sibling list.
func (s *storyService) buildTree(itemID int64, comments []model.Comment, translations map[int64]*model.CommentTranslation) []*model.CommentNode {
	nodes := make(map[int64]*model.CommentNode, len(comments))
	for _, c := range comments {
		if c.Text != nil {
			clean := s.sanitizer.Sanitize(*c.Text)
			c.Text = &clean
		}
		node := &model.CommentNode{Comment: c}
		if t, ok := translations[c.ID]; ok {
			node.TextZH = s.sanitizer.Sanitize(t.TextZH)
		}
		nodes[c.ID] = node
	}

	var roots []*model.CommentNode
	for _, c := range comments {
		node := nodes[c.ID]
		if c.ParentID == itemID {
			roots = append(roots, node)
			continue
		}
		if parent, ok := nodes[c.ParentID]; ok {
			parent.Children = append(parent.Children, node)
			continue
		}
		// Parent pruned or not fetched; keep the subtree visible.
		roots = append(roots, node)
	}
	return roots
}
