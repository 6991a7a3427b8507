package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"

	"github.com/wusimpl/hackernewscn/internal/logger"
)

// JSON contracts appended to the article/comment prompts for batch calls.
const (
	titleBatchContract = `

你将收到一个 JSON 数组,每项形如 {"id": 数字, "title": "英文标题"}。
只输出一个 JSON 对象,形如 {"translations": [{"id": 数字, "translatedTitle": "中文标题"}]},每个输入项对应一个输出项,不要输出其他任何内容。`

	commentBatchContract = `

你将收到一个 JSON 数组,每项形如 {"id": 数字, "text": "英文评论"}。
只输出一个 JSON 对象,形如 {"translations": [{"id": 数字, "translatedText": "中文译文"}]},每个输入项对应一个输出项,不要输出其他任何内容。`
)

const (
	completionInitialBackoff = 1 * time.Second
	completionMaxBackoff     = 5 * time.Second
	completionMaxRetries     = 3
)

// ProviderSource supplies the currently configured provider. The settings
// service implements it; tests stub it.
type ProviderSource interface {
	ActiveProvider(ctx context.Context) (Config, error)
}

// TitleInput is one story title to translate.
type TitleInput struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// TitleResult is one translated story title.
type TitleResult struct {
	ID      int64
	TitleZH string
}

// CommentInput is one comment body to translate.
type CommentInput struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// CommentResult is one translated comment body.
type CommentResult struct {
	ID     int64
	TextZH string
}

// Client is the translation front door. Batch calls are best-effort: a
// failed or partial model response yields fewer results, never an error.
type Client struct {
	source  ProviderSource
	limiter *RateLimiter
}

func NewClient(source ProviderSource, limiter *RateLimiter) *Client {
	if limiter == nil {
		limiter = NewRateLimiter(0)
	}
	return &Client{source: source, limiter: limiter}
}

// TranslateTitlesBatch translates story titles in one call. Entries the
// model skipped or mangled are simply absent from the result.
func (c *Client) TranslateTitlesBatch(ctx context.Context, inputs []TitleInput, articlePrompt string) []TitleResult {
	if len(inputs) == 0 {
		return []TitleResult{}
	}

	payload, err := json.Marshal(inputs)
	if err != nil {
		logger.Error("marshal title batch", "module", "llm", "error", err)
		return []TitleResult{}
	}

	raw, err := c.complete(ctx, articlePrompt+titleBatchContract, string(payload), true)
	if err != nil {
		logger.Error("translate titles", "module", "llm", "count", len(inputs), "error", err)
		return []TitleResult{}
	}

	entries := parseTranslations(raw)
	results := make([]TitleResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, TitleResult{ID: e.ID, TitleZH: e.text()})
	}
	if len(results) < len(inputs) {
		logger.Warn("title batch incomplete", "module", "llm", "requested", len(inputs), "translated", len(results))
	}
	return results
}

// TranslateArticle translates one article body to Chinese markdown.
func (c *Client) TranslateArticle(ctx context.Context, markdown, articlePrompt string) (string, error) {
	out, err := c.complete(ctx, articlePrompt, markdown, false)
	if err != nil {
		return "", fmt.Errorf("translate article: %w", err)
	}
	out = stripCodeFence(stripThinking(out))
	if out == "" {
		return "", errors.New("translate article: empty response")
	}
	return out, nil
}

// GenerateTLDR produces the short Chinese summary for an article.
func (c *Client) GenerateTLDR(ctx context.Context, markdown, tldrPrompt string) (string, error) {
	out, err := c.complete(ctx, tldrPrompt, markdown, false)
	if err != nil {
		return "", fmt.Errorf("generate tldr: %w", err)
	}
	out = stripCodeFence(stripThinking(out))
	if out == "" {
		return "", errors.New("generate tldr: empty response")
	}
	return out, nil
}

// TranslateCommentsBatch translates comment bodies in one call, same
// best-effort contract as the title batch.
func (c *Client) TranslateCommentsBatch(ctx context.Context, inputs []CommentInput, commentPrompt string) []CommentResult {
	if len(inputs) == 0 {
		return []CommentResult{}
	}

	payload, err := json.Marshal(inputs)
	if err != nil {
		logger.Error("marshal comment batch", "module", "llm", "error", err)
		return []CommentResult{}
	}

	raw, err := c.complete(ctx, commentPrompt+commentBatchContract, string(payload), true)
	if err != nil {
		logger.Error("translate comments", "module", "llm", "count", len(inputs), "error", err)
		return []CommentResult{}
	}

	entries := parseTranslations(raw)
	results := make([]CommentResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, CommentResult{ID: e.ID, TextZH: e.text()})
	}
	if len(results) < len(inputs) {
		logger.Warn("comment batch incomplete", "module", "llm", "requested", len(inputs), "translated", len(results))
	}
	return results
}

// complete resolves the active provider and runs one completion with
// retry on transient failures. Client errors (4xx) are not retried.
func (c *Client) complete(ctx context.Context, systemPrompt, content string, jsonMode bool) (string, error) {
	cfg, err := c.source.ActiveProvider(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve provider: %w", err)
	}
	provider, err := NewProvider(cfg)
	if err != nil {
		return "", fmt.Errorf("create provider: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = completionInitialBackoff
	policy.Multiplier = 2
	policy.MaxInterval = completionMaxBackoff
	policy.RandomizationFactor = 0

	var out string
	err = backoff.Retry(func() error {
		var callErr error
		out, callErr = provider.Complete(ctx, systemPrompt, content, jsonMode)
		if callErr != nil {
			if isClientError(callErr) {
				return backoff.Permanent(callErr)
			}
			return callErr
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, completionMaxRetries), ctx))
	if err != nil {
		return "", err
	}

	if cfg.ThinkingModel {
		out = stripThinking(out)
	}
	return out, nil
}

// isClientError reports whether err is a 4xx API error, which no amount
// of retrying will fix.
func isClientError(err error) bool {
	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return oaiErr.StatusCode >= 400 && oaiErr.StatusCode < 500
	}
	var anthErr *anthropic.Error
	if errors.As(err, &anthErr) {
		return anthErr.StatusCode >= 400 && anthErr.StatusCode < 500
	}
	return false
}
