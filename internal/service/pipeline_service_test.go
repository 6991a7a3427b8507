package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wusimpl/hackernewscn/internal/events"
	"github.com/wusimpl/hackernewscn/internal/hackernews"
	"github.com/wusimpl/hackernewscn/internal/llm"
	"github.com/wusimpl/hackernewscn/internal/model"
	"github.com/wusimpl/hackernewscn/internal/queue"
	"github.com/wusimpl/hackernewscn/internal/reader"
	"github.com/wusimpl/hackernewscn/internal/repository"
	"github.com/wusimpl/hackernewscn/internal/repository/testutil"
	"github.com/wusimpl/hackernewscn/internal/service"
)

// hnStub emulates the upstream item API.
type hnStub struct {
	mu    sync.Mutex
	top   []int64
	items map[int64]map[string]any
}

func newHNStub() *hnStub {
	return &hnStub{items: make(map[int64]map[string]any)}
}

func (h *hnStub) addStory(id int64, title string, url *string, kids []int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	item := map[string]any{
		"id": id, "type": "story", "title": title, "by": "alice",
		"score": 100, "time": 1700000000 + id, "descendants": len(kids),
	}
	if url != nil {
		item["url"] = *url
	}
	if len(kids) > 0 {
		item["kids"] = kids
	}
	h.items[id] = item
	h.top = append(h.top, id)
}

func (h *hnStub) addComment(id, parent, itemID int64, text string, kids []int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	item := map[string]any{
		"id": id, "type": "comment", "by": "bob", "parent": parent,
		"text": text, "time": 1700000000 + id,
	}
	if len(kids) > 0 {
		item["kids"] = kids
	}
	h.items[id] = item
}

func (h *hnStub) setKids(storyID int64, kids []int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items[storyID]["kids"] = kids
	h.items[storyID]["descendants"] = len(kids)
}

func (h *hnStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/topstories", func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		defer h.mu.Unlock()
		_ = json.NewEncoder(w).Encode(h.top)
	})
	mux.HandleFunc("/item/", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/item/"), 10, 64)
		if err != nil {
			http.Error(w, "bad id", http.StatusBadRequest)
			return
		}
		h.mu.Lock()
		item, ok := h.items[id]
		h.mu.Unlock()
		if !ok {
			fmt.Fprint(w, "null")
			return
		}
		_ = json.NewEncoder(w).Encode(item)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// llmStub emulates an OpenAI-compatible endpoint. Titles are translated
// as "中文:"+title, comments as "译:"+text.
type llmStub struct {
	mu                  sync.Mutex
	titleCalls          int
	failTitleCallsAfter int // 0 means never fail
	commentIDsRequested []int64
}

func (l *llmStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)
		system := req.Messages[0].Content
		user := req.Messages[len(req.Messages)-1].Content

		switch {
		case strings.Contains(system, "translatedTitle"):
			l.mu.Lock()
			l.titleCalls++
			fail := l.failTitleCallsAfter > 0 && l.titleCalls > l.failTitleCallsAfter
			l.mu.Unlock()
			if fail {
				http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
				return
			}
			var inputs []llm.TitleInput
			require.NoError(t, json.Unmarshal([]byte(user), &inputs))
			entries := make([]map[string]any, len(inputs))
			for i, in := range inputs {
				entries[i] = map[string]any{"id": in.ID, "translatedTitle": "中文:" + in.Title}
			}
			writeCompletion(t, w, envelope(t, entries))
		case strings.Contains(system, "translatedText"):
			var inputs []llm.CommentInput
			require.NoError(t, json.Unmarshal([]byte(user), &inputs))
			entries := make([]map[string]any, len(inputs))
			l.mu.Lock()
			for i, in := range inputs {
				l.commentIDsRequested = append(l.commentIDsRequested, in.ID)
				entries[i] = map[string]any{"id": in.ID, "translatedText": "译:" + in.Text}
			}
			l.mu.Unlock()
			writeCompletion(t, w, envelope(t, entries))
		case strings.Contains(system, "总结"):
			writeCompletion(t, w, "一段简短的中文摘要。")
		default:
			writeCompletion(t, w, "翻译后的正文。\n\n"+user)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func envelope(t *testing.T, entries []map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"translations": entries})
	require.NoError(t, err)
	return string(raw)
}

func writeCompletion(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(map[string]any{
		"id": "chatcmpl-test", "object": "chat.completion", "model": "test",
		"choices": []map[string]any{
			{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	require.NoError(t, err)
}

// fixture wires a complete pipeline against stub servers.
type fixture struct {
	hn       *hnStub
	llm      *llmStub
	items    repository.ItemRepository
	titles   repository.TitleTranslationRepository
	articles repository.ArticleTranslationRepository
	comments repository.CommentRepository
	ctrans   repository.CommentTranslationRepository
	jobs     repository.JobRepository
	settings repository.SettingsRepository
	status   repository.SchedulerStatusRepository

	settingsSvc service.SettingsService
	registry    *llm.Registry
	queue       *queue.Queue
	bus         *events.Bus
	pipeline    service.PipelineService
	refresh     service.CommentRefreshService
}

func newFixture(t *testing.T, readerURL string) *fixture {
	t.Helper()
	database := testutil.NewTestDB(t)

	f := &fixture{
		hn:       newHNStub(),
		llm:      &llmStub{},
		items:    repository.NewItemRepository(database),
		titles:   repository.NewTitleTranslationRepository(database),
		articles: repository.NewArticleTranslationRepository(database),
		comments: repository.NewCommentRepository(database),
		ctrans:   repository.NewCommentTranslationRepository(database),
		jobs:     repository.NewJobRepository(database),
		settings: repository.NewSettingsRepository(database),
		status:   repository.NewSchedulerStatusRepository(database),
		bus:      events.NewBus(),
	}

	hnSrv := f.hn.server(t)
	llmSrv := f.llm.server(t)

	f.settingsSvc = service.NewSettingsService(f.settings)
	require.NoError(t, f.settingsSvc.SetProviders(t.Context(), &service.ProvidersSettings{
		Providers: []service.ProviderSettings{{
			Name: "test",
			Config: llm.Config{
				Provider: llm.ProviderCompatible,
				APIKey:   "test-key",
				BaseURL:  llmSrv.URL,
				Model:    "test-model",
			},
		}},
		Active: "test",
	}))

	f.registry = llm.NewRegistry(f.settings)
	f.queue = queue.New(f.jobs, 2)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = f.queue.Shutdown(ctx)
	})

	llmClient := llm.NewClient(f.settingsSvc, llm.NewRateLimiter(100000))
	f.pipeline = service.NewPipelineService(
		hackernews.NewClient(hnSrv.URL),
		reader.NewFetcher(readerURL),
		llmClient,
		f.registry,
		f.items, f.titles, f.articles, f.comments, f.ctrans, f.status,
		f.settingsSvc, f.queue, f.bus,
	)
	f.refresh = service.NewCommentRefreshService(
		hackernews.NewClient(hnSrv.URL),
		f.items, f.comments, f.settingsSvc, f.pipeline,
	)
	return f
}

func newReaderStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.String(), "blocked") {
			w.WriteHeader(http.StatusUnavailableForLegalReasons)
			return
		}
		fmt.Fprint(w, "# Article\n\n"+strings.Repeat("long enough body text ", 10))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPipeline_TextPostServedAfterTitleTranslation(t *testing.T) {
	f := newFixture(t, newReaderStub(t).URL)
	f.hn.addStory(1, "Ask HN: How do you test?", nil, nil)

	ch, cancel := f.bus.Subscribe()
	t.Cleanup(cancel)

	require.NoError(t, f.pipeline.RunOnce(t.Context()))

	hash, err := f.registry.ArticlePromptHash(t.Context())
	require.NoError(t, err)
	title, err := f.titles.Get(t.Context(), 1, hash)
	require.NoError(t, err)
	require.NotNil(t, title)
	require.Equal(t, "中文:Ask HN: How do you test?", title.TitleZH)

	item, err := f.items.GetByID(t.Context(), 1)
	require.NoError(t, err)
	require.NotNil(t, item)

	article, err := f.articles.Get(t.Context(), 1)
	require.NoError(t, err)
	require.Nil(t, article)

	ev := <-ch
	require.Equal(t, model.EventTitleDone, ev.Type)
	require.Equal(t, int64(1), ev.StoryID)

	status, err := f.status.Get(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, status.StoriesFetched)
	require.Equal(t, 1, status.TitlesTranslated)
}

func TestPipeline_ArticleTranslatedAndServed(t *testing.T) {
	f := newFixture(t, newReaderStub(t).URL)
	url := "https://example.com/post"
	f.hn.addStory(2, "A linked story", &url, nil)

	require.NoError(t, f.pipeline.RunOnce(t.Context()))

	require.Eventually(t, func() bool {
		article, err := f.articles.Get(context.Background(), 2)
		require.NoError(t, err)
		return article != nil && article.Status == model.ArticleStatusDone
	}, 10*time.Second, 50*time.Millisecond)

	article, err := f.articles.Get(t.Context(), 2)
	require.NoError(t, err)
	require.Contains(t, article.ContentMarkdown, "翻译后的正文")
	require.Equal(t, url, article.OriginalURL)
	require.NotNil(t, article.TLDR)
	require.Equal(t, "中文:A linked story", article.TitleSnapshot)

	item, err := f.items.GetByID(t.Context(), 2)
	require.NoError(t, err)
	require.NotNil(t, item)
}

func TestPipeline_BlockedArticleIsTerminal(t *testing.T) {
	f := newFixture(t, newReaderStub(t).URL)
	url := "https://blocked.example/post"
	f.hn.addStory(3, "A blocked story", &url, nil)

	require.NoError(t, f.pipeline.RunOnce(t.Context()))

	require.Eventually(t, func() bool {
		article, err := f.articles.Get(context.Background(), 3)
		require.NoError(t, err)
		return article != nil && article.Status == model.ArticleStatusBlocked
	}, 10*time.Second, 50*time.Millisecond)

	article, err := f.articles.Get(t.Context(), 3)
	require.NoError(t, err)
	require.NotNil(t, article.ErrorMessage)
	require.Empty(t, article.ContentMarkdown)

	// The story is never served.
	item, err := f.items.GetByID(t.Context(), 3)
	require.NoError(t, err)
	require.Nil(t, item)

	// A later cycle must not enqueue a second attempt.
	require.NoError(t, f.pipeline.RunOnce(t.Context()))
	require.Eventually(t, func() bool { return f.queue.Status().Pending == 0 && f.queue.Status().InFlight == 0 }, 10*time.Second, 50*time.Millisecond)
	jobs, err := f.jobs.FindByItemAndKind(t.Context(), 3, model.JobKindArticle)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

func TestPipeline_PromptChangeInvalidatesTitles(t *testing.T) {
	f := newFixture(t, newReaderStub(t).URL)
	f.hn.addStory(4, "Stable story", nil, nil)

	require.NoError(t, f.pipeline.RunOnce(t.Context()))
	oldHash, err := f.registry.ArticlePromptHash(t.Context())
	require.NoError(t, err)

	require.NoError(t, f.settings.Set(t.Context(), llm.SettingCustomPrompt, "换一种完全不同的翻译风格。"))
	require.NoError(t, f.pipeline.RunOnce(t.Context()))

	newHash, err := f.registry.ArticlePromptHash(t.Context())
	require.NoError(t, err)
	require.NotEqual(t, oldHash, newHash)

	title, err := f.titles.Get(t.Context(), 4, newHash)
	require.NoError(t, err)
	require.NotNil(t, title)

	// The stale row was evicted, not just hidden.
	stale, err := f.titles.Get(t.Context(), 4, oldHash)
	require.NoError(t, err)
	require.Nil(t, stale)
}

func TestPipeline_MidCycleFailureKeepsEarlierBatches(t *testing.T) {
	f := newFixture(t, newReaderStub(t).URL)
	f.llm.failTitleCallsAfter = 1
	for i := int64(1); i <= 12; i++ {
		f.hn.addStory(i, fmt.Sprintf("Story %d", i), nil, nil)
	}

	require.NoError(t, f.pipeline.RunOnce(t.Context()))

	// Only the first batch of five made it through.
	count, err := f.items.Count(t.Context())
	require.NoError(t, err)
	require.Equal(t, int64(5), count)

	status, err := f.status.Get(t.Context())
	require.NoError(t, err)
	require.Equal(t, 12, status.StoriesFetched)
	require.Equal(t, 5, status.TitlesTranslated)
}

func TestPipeline_CommentsTranslatedBehindArticle(t *testing.T) {
	f := newFixture(t, newReaderStub(t).URL)
	url := "https://example.com/threaded"
	f.hn.addStory(5, "Threaded story", &url, []int64{51, 52})
	f.hn.addComment(51, 5, 5, "<p>First comment</p>", []int64{53})
	f.hn.addComment(52, 5, 5, "", nil) // empty: stored but never translated
	f.hn.addComment(53, 51, 5, "<p>A reply</p>", nil)

	require.NoError(t, f.pipeline.RunOnce(t.Context()))

	require.Eventually(t, func() bool {
		got, err := f.ctrans.GetByIDs(context.Background(), []int64{51, 53})
		require.NoError(t, err)
		return len(got) == 2
	}, 15*time.Second, 50*time.Millisecond)

	comments, err := f.comments.FindByItem(t.Context(), 5)
	require.NoError(t, err)
	require.Len(t, comments, 3)

	got, err := f.ctrans.GetByIDs(t.Context(), []int64{51, 52, 53})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "译:<p>First comment</p>", got[51].TextZH)
}

func TestPipeline_CommentSelectionFollowsThreadOrder(t *testing.T) {
	f := newFixture(t, newReaderStub(t).URL)
	require.NoError(t, f.settings.Set(t.Context(), "max_comment_translations", "2"))

	url := "https://example.com/deep-thread"
	f.hn.addStory(7, "Deep thread", &url, []int64{71, 72})
	// Comment times follow IDs, so the reply (73) is the newest comment
	// overall but sits under the earliest root.
	f.hn.addComment(71, 7, 7, "<p>Early root</p>", []int64{73})
	f.hn.addComment(72, 7, 7, "<p>Late root</p>", nil)
	f.hn.addComment(73, 71, 7, "<p>Reply under early root</p>", nil)

	require.NoError(t, f.pipeline.RunOnce(t.Context()))

	// With a budget of two, the early root and its reply win over the
	// later root: thread order, not global time order.
	require.Eventually(t, func() bool {
		got, err := f.ctrans.GetByIDs(context.Background(), []int64{71, 73})
		require.NoError(t, err)
		return len(got) == 2
	}, 15*time.Second, 50*time.Millisecond)

	got, err := f.ctrans.GetByIDs(t.Context(), []int64{71, 72, 73})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Contains(t, got, int64(71))
	require.Contains(t, got, int64(73))

	f.llm.mu.Lock()
	requested := append([]int64(nil), f.llm.commentIDsRequested...)
	f.llm.mu.Unlock()
	require.NotContains(t, requested, int64(72))
}

func TestCommentRefresh_TranslatesOnlyNewComments(t *testing.T) {
	f := newFixture(t, newReaderStub(t).URL)
	f.hn.addStory(6, "Refreshed story", nil, []int64{61})
	f.hn.addComment(61, 6, 6, "<p>Old comment</p>", nil)

	require.NoError(t, f.pipeline.RunOnce(t.Context()))

	// Seed the cached thread state: comment 61 already stored and
	// translated by an earlier visit.
	require.NoError(t, f.comments.UpsertBatch(t.Context(), []model.Comment{
		{ID: 61, ItemID: 6, ParentID: 6, Time: 1700000061, Text: testutil.StringPtr("<p>Old comment</p>")},
	}))
	require.NoError(t, f.ctrans.UpsertBatch(t.Context(), []model.CommentTranslation{
		{CommentID: 61, TextEN: "<p>Old comment</p>", TextZH: "已有译文"},
	}))

	// A new comment appears upstream.
	f.hn.addComment(62, 6, 6, "<p>New comment</p>", nil)
	f.hn.setKids(6, []int64{61, 62})

	require.NoError(t, f.refresh.RefreshAll(t.Context()))

	got, err := f.ctrans.GetByIDs(t.Context(), []int64{61, 62})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "译:<p>New comment</p>", got[62].TextZH)
	// The old translation was not overwritten.
	require.Equal(t, "已有译文", got[61].TextZH)

	f.llm.mu.Lock()
	requested := append([]int64(nil), f.llm.commentIDsRequested...)
	f.llm.mu.Unlock()
	require.NotContains(t, requested, int64(61))
	require.Contains(t, requested, int64(62))
}
