package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wusimpl/hackernewscn/internal/repository"
)

// Settings keys for prompt overrides.
const (
	SettingCustomPrompt  = "custom_prompt"  // article prompt override
	SettingPromptsConfig = "prompts_config" // JSON blob: tldr + comment overrides
)

// DefaultArticlePrompt drives both title batches and full-article
// translation. It doubles as a cleanup instruction because article bodies
// arrive as noisy scrapes.
const DefaultArticlePrompt = `你是一位专业的科技内容翻译,负责将 Hacker News 上的英文内容翻译成简体中文。

要求:
1. 翻译准确、自然、流畅,符合中文技术社区的表达习惯。
2. 专有名词、产品名、代码、命令保留英文原文。
3. 输入的文章可能是从网页抓取的,包含导航栏、广告、页脚、侧边栏、评论区等噪音。只翻译文章正文,丢弃所有噪音。
4. 保留原文的链接、标题层级、强调和图片,使用 Markdown 格式输出。
5. 只输出翻译后的正文,不要添加任何解释或说明,不要使用代码块包裹输出。`

// DefaultTLDRPrompt produces the short Chinese summary shown in list views.
const DefaultTLDRPrompt = `请用简体中文总结下面这篇文章的核心内容。

要求:
1. 2 到 4 句话,总长不超过 200 字。
2. 直接陈述文章讲了什么,不要以"本文"或"这篇文章"开头。
3. 只输出总结本身,不要添加任何其他内容。`

// DefaultCommentPrompt translates comment bodies, which carry inline HTML.
const DefaultCommentPrompt = `你是一位专业的翻译,负责将 Hacker News 评论翻译成简体中文。

要求:
1. 翻译准确、自然,保留评论原本的语气。
2. 评论中的 HTML 标签(如 <p>、<a>、<i>、<code>、<pre>)必须原样保留在译文的对应位置。
3. 专有名词、代码和命令保留英文原文。`

// PromptHash returns the cache key for a prompt: hex sha256 over the
// trimmed text, so whitespace-only edits do not invalidate translations.
func PromptHash(prompt string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(prompt)))
	return hex.EncodeToString(sum[:])
}

// promptsConfig is the stored shape of the non-article prompt overrides.
type promptsConfig struct {
	TLDR    string `json:"tldr"`
	Comment string `json:"comment"`
}

// Registry resolves the active prompts, preferring stored overrides over
// the defaults.
type Registry struct {
	settings repository.SettingsRepository
}

func NewRegistry(settings repository.SettingsRepository) *Registry {
	return &Registry{settings: settings}
}

// ArticlePrompt returns the active article prompt.
func (r *Registry) ArticlePrompt(ctx context.Context) (string, error) {
	setting, err := r.settings.Get(ctx, SettingCustomPrompt)
	if err != nil {
		return "", fmt.Errorf("load article prompt: %w", err)
	}
	if setting != nil && strings.TrimSpace(setting.Value) != "" {
		return setting.Value, nil
	}
	return DefaultArticlePrompt, nil
}

// ArticlePromptHash returns the hash of the active article prompt. Title
// translations are keyed on it; changing the prompt orphans old rows.
func (r *Registry) ArticlePromptHash(ctx context.Context) (string, error) {
	prompt, err := r.ArticlePrompt(ctx)
	if err != nil {
		return "", err
	}
	return PromptHash(prompt), nil
}

// TLDRPrompt returns the active summary prompt.
func (r *Registry) TLDRPrompt(ctx context.Context) (string, error) {
	cfg, err := r.loadConfig(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cfg.TLDR) != "" {
		return cfg.TLDR, nil
	}
	return DefaultTLDRPrompt, nil
}

// CommentPrompt returns the active comment prompt.
func (r *Registry) CommentPrompt(ctx context.Context) (string, error) {
	cfg, err := r.loadConfig(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cfg.Comment) != "" {
		return cfg.Comment, nil
	}
	return DefaultCommentPrompt, nil
}

// UpdatePrompts stores prompt overrides. Nil fields are left untouched;
// an empty string clears the override back to the default.
func (r *Registry) UpdatePrompts(ctx context.Context, article, tldr, comment *string) error {
	if article != nil {
		if err := r.settings.Set(ctx, SettingCustomPrompt, *article); err != nil {
			return fmt.Errorf("store article prompt: %w", err)
		}
	}
	if tldr == nil && comment == nil {
		return nil
	}
	cfg, err := r.loadConfig(ctx)
	if err != nil {
		return err
	}
	if tldr != nil {
		cfg.TLDR = *tldr
	}
	if comment != nil {
		cfg.Comment = *comment
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal prompts config: %w", err)
	}
	if err := r.settings.Set(ctx, SettingPromptsConfig, string(raw)); err != nil {
		return fmt.Errorf("store prompts config: %w", err)
	}
	return nil
}

func (r *Registry) loadConfig(ctx context.Context) (promptsConfig, error) {
	var cfg promptsConfig
	setting, err := r.settings.Get(ctx, SettingPromptsConfig)
	if err != nil {
		return cfg, fmt.Errorf("load prompts config: %w", err)
	}
	if setting == nil || setting.Value == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(setting.Value), &cfg); err != nil {
		return cfg, fmt.Errorf("parse prompts config: %w", err)
	}
	return cfg, nil
}
