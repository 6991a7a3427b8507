package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wusimpl/hackernewscn/internal/events"
	"github.com/wusimpl/hackernewscn/internal/hackernews"
	"github.com/wusimpl/hackernewscn/internal/llm"
	"github.com/wusimpl/hackernewscn/internal/logger"
	"github.com/wusimpl/hackernewscn/internal/model"
	"github.com/wusimpl/hackernewscn/internal/queue"
	"github.com/wusimpl/hackernewscn/internal/reader"
	"github.com/wusimpl/hackernewscn/internal/repository"
)

const (
	// titleBatchSize is how many titles go into one translation call.
	// Batches are interleaved: each batch is persisted and its article
	// tasks enqueued before the next batch is sent.
	titleBatchSize = 5
	// commentTranslateChunk bounds one comment translation call.
	commentTranslateChunk = 10
	// commentTaskTimeout bounds the async comment subtask of one story.
	commentTaskTimeout = 10 * time.Minute
)

// PipelineService runs the fetch-and-translate cycle: discover ranked
// stories, translate missing titles in interleaved batches, and enqueue
// article translation tasks for stories with URLs.
type PipelineService interface {
	RunOnce(ctx context.Context) error
}

type pipelineService struct {
	hn       *hackernews.Client
	fetcher  *reader.Fetcher
	llm      *llm.Client
	prompts  *llm.Registry
	items    repository.ItemRepository
	titles   repository.TitleTranslationRepository
	articles repository.ArticleTranslationRepository
	comments repository.CommentRepository
	commentTranslations repository.CommentTranslationRepository
	status   repository.SchedulerStatusRepository
	settings SettingsService
	queue    *queue.Queue
	bus      *events.Bus
}

func NewPipelineService(
	hn *hackernews.Client,
	fetcher *reader.Fetcher,
	llmClient *llm.Client,
	prompts *llm.Registry,
	items repository.ItemRepository,
	titles repository.TitleTranslationRepository,
	articles repository.ArticleTranslationRepository,
	comments repository.CommentRepository,
	commentTranslations repository.CommentTranslationRepository,
	status repository.SchedulerStatusRepository,
	settings SettingsService,
	q *queue.Queue,
	bus *events.Bus,
) PipelineService {
	return &pipelineService{
		hn:       hn,
		fetcher:  fetcher,
		llm:      llmClient,
		prompts:  prompts,
		items:    items,
		titles:   titles,
		articles: articles,
		comments: comments,
		commentTranslations: commentTranslations,
		status:   status,
		settings: settings,
		queue:    q,
		bus:      bus,
	}
}

func (p *pipelineService) RunOnce(ctx context.Context) error {
	hash, err := p.prompts.ArticlePromptHash(ctx)
	if err != nil {
		return fmt.Errorf("resolve prompt hash: %w", err)
	}

	// Rows written under a previous prompt are invisible anyway; evict
	// them so the next lookup does not carry dead weight.
	if evicted, err := p.titles.DeleteNotMatching(ctx, hash); err != nil {
		logger.Warn("evict stale titles", "module", "pipeline", "error", err)
	} else if evicted > 0 {
		logger.Info("stale titles evicted", "module", "pipeline", "count", evicted)
	}

	ids, err := p.hn.FetchTopIDs(ctx)
	if err != nil {
		return fmt.Errorf("fetch top stories: %w", err)
	}
	limit := p.settings.StoryLimit(ctx)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	details, err := p.hn.FetchItemsBatch(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetch story details: %w", err)
	}

	detailIDs := make([]int64, len(details))
	for i, d := range details {
		detailIDs[i] = d.ID
	}
	cached, err := p.titles.GetBatch(ctx, detailIDs, hash)
	if err != nil {
		return fmt.Errorf("load cached titles: %w", err)
	}

	var needTitle []hackernews.ItemDetail
	for _, d := range details {
		if t, ok := cached[d.ID]; ok {
			// Title already current; refresh the item and make sure the
			// article side is not missing.
			p.handleTranslatedStory(ctx, d, t.TitleZH)
			continue
		}
		needTitle = append(needTitle, d)
	}

	articlePrompt, err := p.prompts.ArticlePrompt(ctx)
	if err != nil {
		return fmt.Errorf("resolve article prompt: %w", err)
	}

	translated := 0
	for start := 0; start < len(needTitle); start += titleBatchSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		end := start + titleBatchSize
		if end > len(needTitle) {
			end = len(needTitle)
		}
		translated += p.translateTitleBatch(ctx, needTitle[start:end], articlePrompt, hash)
	}

	if err := p.status.Update(ctx, time.Now().Unix(), len(details), translated); err != nil {
		logger.Error("update scheduler status", "module", "pipeline", "error", err)
	}

	logger.Info("cycle completed", "module", "pipeline", "stories", len(details), "titles_translated", translated)
	return nil
}

// translateTitleBatch sends one batch of titles, persists the results and
// kicks off the per-story follow-up. A failed batch costs only its own
// five stories; later batches still run.
func (p *pipelineService) translateTitleBatch(ctx context.Context, batch []hackernews.ItemDetail, articlePrompt, hash string) int {
	inputs := make([]llm.TitleInput, len(batch))
	byID := make(map[int64]hackernews.ItemDetail, len(batch))
	for i, d := range batch {
		inputs[i] = llm.TitleInput{ID: d.ID, Title: d.Title}
		byID[d.ID] = d
	}

	results := p.llm.TranslateTitlesBatch(ctx, inputs, articlePrompt)
	if len(results) == 0 {
		logger.Warn("title batch yielded nothing", "module", "pipeline", "size", len(batch))
		return 0
	}

	now := time.Now().Unix()
	rows := make([]model.TitleTranslation, 0, len(results))
	for _, r := range results {
		d, ok := byID[r.ID]
		if !ok {
			// Model hallucinated an ID; drop it.
			continue
		}
		rows = append(rows, model.TitleTranslation{
			ItemID:     d.ID,
			TitleEN:    d.Title,
			TitleZH:    r.TitleZH,
			PromptHash: hash,
			UpdatedAt:  now,
		})
	}
	if err := p.titles.UpsertBatch(ctx, rows); err != nil {
		logger.Error("persist title batch", "module", "pipeline", "error", err)
		return 0
	}

	for _, row := range rows {
		d := byID[row.ItemID]
		p.bus.Publish(model.Event{
			Type:    model.EventTitleDone,
			StoryID: d.ID,
			Title:   row.TitleZH,
		})
		p.handleTranslatedStory(ctx, d, row.TitleZH)
	}
	return len(rows)
}

// handleTranslatedStory advances one story whose title translation is
// current: stories without a URL are served immediately, stories with a
// URL get an article task unless a terminal article row already exists.
func (p *pipelineService) handleTranslatedStory(ctx context.Context, d hackernews.ItemDetail, titleZH string) {
	if d.URL == nil || *d.URL == "" {
		if err := p.items.Upsert(ctx, itemFromDetail(d)); err != nil {
			logger.Error("persist item", "module", "pipeline", "item_id", d.ID, "error", err)
		}
		return
	}

	existing, err := p.articles.Get(ctx, d.ID)
	if err != nil {
		logger.Error("load article state", "module", "pipeline", "item_id", d.ID, "error", err)
		return
	}
	if existing != nil {
		switch existing.Status {
		case model.ArticleStatusDone:
			// Keep the served row fresh (score, comment count).
			if err := p.items.Upsert(ctx, itemFromDetail(d)); err != nil {
				logger.Error("persist item", "module", "pipeline", "item_id", d.ID, "error", err)
			}
			return
		case model.ArticleStatusBlocked:
			return
		}
	}

	if _, err := p.queue.Submit(ctx, d.ID, model.JobKindArticle, p.articleTask(d, titleZH)); err != nil {
		logger.Error("enqueue article task", "module", "pipeline", "item_id", d.ID, "error", err)
	}
}

// articleTask returns the queued task translating one story's article.
func (p *pipelineService) articleTask(d hackernews.ItemDetail, titleZH string) queue.Task {
	return func(ctx context.Context) error {
		// Re-check under the queue: the story may have completed or been
		// blocked by an earlier cycle while this task waited.
		existing, err := p.articles.Get(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("load article state: %w", err)
		}
		if existing != nil && (existing.Status == model.ArticleStatusDone || existing.Status == model.ArticleStatusBlocked) {
			return nil
		}

		if err := p.articles.SetStatus(ctx, d.ID, model.ArticleStatusRunning, nil); err != nil {
			return fmt.Errorf("mark article running: %w", err)
		}

		body, err := p.fetcher.FetchArticleBody(ctx, *d.URL)
		if err != nil {
			return p.failArticle(ctx, d, err)
		}

		articlePrompt, err := p.prompts.ArticlePrompt(ctx)
		if err != nil {
			return p.failArticle(ctx, d, err)
		}
		tldrPrompt, err := p.prompts.TLDRPrompt(ctx)
		if err != nil {
			return p.failArticle(ctx, d, err)
		}

		var content, tldr string
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var terr error
			content, terr = p.llm.TranslateArticle(gctx, body, articlePrompt)
			return terr
		})
		g.Go(func() error {
			// TLDR is best-effort; a miss only costs the summary line.
			var serr error
			tldr, serr = p.llm.GenerateTLDR(gctx, body, tldrPrompt)
			if serr != nil {
				logger.Warn("tldr generation failed", "module", "pipeline", "item_id", d.ID, "error", serr)
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			return p.failArticle(ctx, d, err)
		}

		row := model.ArticleTranslation{
			ItemID:          d.ID,
			TitleSnapshot:   titleZH,
			ContentMarkdown: content,
			OriginalURL:     *d.URL,
			Status:          model.ArticleStatusDone,
		}
		if tldr != "" {
			row.TLDR = &tldr
		}
		if err := p.articles.Set(ctx, row); err != nil {
			return fmt.Errorf("persist article: %w", err)
		}
		if err := p.items.Upsert(ctx, itemFromDetail(d)); err != nil {
			return fmt.Errorf("persist item: %w", err)
		}

		view := model.StoryView{Item: itemFromDetail(d), TitleZH: titleZH}
		if tldr != "" {
			view.TLDR = &tldr
		}
		p.bus.Publish(model.Event{
			Type:        model.EventArticleDone,
			StoryID:     d.ID,
			Title:       titleZH,
			Content:     content,
			OriginalURL: *d.URL,
			TLDR:        tldr,
			Story:       &view,
		})

		// Comments ride behind the article, detached from the job so a
		// deep thread does not hold a queue slot.
		go p.translateStoryComments(d)

		return nil
	}
}

// failArticle records a failed article translation. A legal block (451)
// is terminal and never retried; everything else stays retryable.
func (p *pipelineService) failArticle(ctx context.Context, d hackernews.ItemDetail, cause error) error {
	msg := cause.Error()
	status := model.ArticleStatusError
	if errors.Is(cause, reader.ErrBlocked) {
		status = model.ArticleStatusBlocked
	}

	if status == model.ArticleStatusBlocked {
		row := model.ArticleTranslation{
			ItemID:        d.ID,
			TitleSnapshot: "",
			OriginalURL:   *d.URL,
			Status:        model.ArticleStatusBlocked,
			ErrorMessage:  &msg,
		}
		if err := p.articles.Set(ctx, row); err != nil {
			logger.Error("persist blocked article", "module", "pipeline", "item_id", d.ID, "error", err)
		}
	} else {
		if err := p.articles.SetStatus(ctx, d.ID, status, &msg); err != nil {
			logger.Error("persist article failure", "module", "pipeline", "item_id", d.ID, "error", err)
		}
	}

	p.bus.Publish(model.Event{
		Type:        model.EventArticleError,
		StoryID:     d.ID,
		OriginalURL: *d.URL,
		Error:       msg,
	})
	return fmt.Errorf("article %d: %w", d.ID, cause)
}

// translateStoryComments fetches the story's comment tree, persists it,
// and translates the earliest usable comments.
func (p *pipelineService) translateStoryComments(d hackernews.ItemDetail) {
	ctx, cancel := context.WithTimeout(context.Background(), commentTaskTimeout)
	defer cancel()

	comments, err := p.hn.FetchCommentTree(ctx, d.Kids, d.ID)
	if err != nil {
		logger.Warn("comment tree fetch incomplete", "module", "pipeline", "item_id", d.ID, "error", err)
	}
	if len(comments) == 0 {
		return
	}

	// Comment rows land before their translations; a translation must
	// never point at a comment that is not stored.
	if err := p.comments.UpsertBatch(ctx, comments); err != nil {
		logger.Error("persist comments", "module", "pipeline", "item_id", d.ID, "error", err)
		return
	}

	if err := p.translateComments(ctx, comments, p.settings.MaxCommentTranslations(ctx)); err != nil {
		logger.Error("translate comments", "module", "pipeline", "item_id", d.ID, "error", err)
	}
}

// translateComments translates up to max usable comments in thread
// order, skipping ones already translated.
func (p *pipelineService) translateComments(ctx context.Context, comments []model.Comment, max int) error {
	usable := make([]model.Comment, 0, len(comments))
	for _, c := range threadOrder(comments) {
		if c.Deleted || c.Dead || c.Text == nil || *c.Text == "" {
			continue
		}
		usable = append(usable, c)
	}
	if len(usable) > max {
		usable = usable[:max]
	}
	if len(usable) == 0 {
		return nil
	}

	ids := make([]int64, len(usable))
	for i, c := range usable {
		ids[i] = c.ID
	}
	existing, err := p.commentTranslations.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load comment translations: %w", err)
	}

	var pending []model.Comment
	for _, c := range usable {
		if _, ok := existing[c.ID]; !ok {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	commentPrompt, err := p.prompts.CommentPrompt(ctx)
	if err != nil {
		return err
	}

	for start := 0; start < len(pending); start += commentTranslateChunk {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		end := start + commentTranslateChunk
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		inputs := make([]llm.CommentInput, len(chunk))
		textByID := make(map[int64]string, len(chunk))
		for i, c := range chunk {
			inputs[i] = llm.CommentInput{ID: c.ID, Text: *c.Text}
			textByID[c.ID] = *c.Text
		}

		results := p.llm.TranslateCommentsBatch(ctx, inputs, commentPrompt)
		rows := make([]model.CommentTranslation, 0, len(results))
		for _, r := range results {
			en, ok := textByID[r.ID]
			if !ok {
				continue
			}
			rows = append(rows, model.CommentTranslation{
				CommentID: r.ID,
				TextEN:    en,
				TextZH:    r.TextZH,
			})
		}
		if err := p.commentTranslations.UpsertBatch(ctx, rows); err != nil {
			return fmt.Errorf("persist comment translations: %w", err)
		}
	}
	return nil
}

// threadOrder arranges a flat comment list depth-first: earliest root
// first, each root followed by its whole subtree, siblings by time
// ascending. A reply under an early root therefore outranks a later
// root, matching how the thread reads. Comments whose parent is not in
// the list count as roots.
func threadOrder(comments []model.Comment) []model.Comment {
	present := make(map[int64]bool, len(comments))
	for _, c := range comments {
		present[c.ID] = true
	}

	children := make(map[int64][]model.Comment)
	var roots []model.Comment
	for _, c := range comments {
		if c.ParentID == c.ItemID || !present[c.ParentID] {
			roots = append(roots, c)
			continue
		}
		children[c.ParentID] = append(children[c.ParentID], c)
	}

	byTime := func(s []model.Comment) {
		sort.Slice(s, func(i, j int) bool { return s[i].Time < s[j].Time })
	}
	byTime(roots)
	for id := range children {
		byTime(children[id])
	}

	ordered := make([]model.Comment, 0, len(comments))
	var walk func(c model.Comment)
	walk = func(c model.Comment) {
		ordered = append(ordered, c)
		for _, child := range children[c.ID] {
			walk(child)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return ordered
}

func itemFromDetail(d hackernews.ItemDetail) model.Item {
	return model.Item{
		ID:          d.ID,
		Title:       d.Title,
		By:          d.By,
		Score:       d.Score,
		Time:        d.Time,
		URL:         d.URL,
		Descendants: d.Descendants,
		FetchedAt:   time.Now().Unix(),
	}
}
