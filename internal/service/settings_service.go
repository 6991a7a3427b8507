package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/wusimpl/hackernewscn/internal/llm"
	"github.com/wusimpl/hackernewscn/internal/queue"
	"github.com/wusimpl/hackernewscn/internal/repository"
)

// Setting keys
const (
	keySchedulerInterval        = "scheduler_interval"
	keyStoryLimit               = "scheduler_story_limit"
	keyCommentRefreshEnabled    = "comment_refresh_enabled"
	keyCommentRefreshInterval   = "comment_refresh_interval"
	keyCommentRefreshStoryLimit = "comment_refresh_story_limit"
	keyCommentRefreshBatchSize  = "comment_refresh_batch_size"
	keyMaxCommentTranslations   = "max_comment_translations"
	keyQueueConcurrency         = "queue_max_concurrency"
	keyProviders                = "ai.providers"
	keyActiveProvider           = "ai.active"
)

// Defaults applied when a setting is unset or unparsable.
const (
	DefaultSchedulerInterval        = 30 * time.Minute
	DefaultStoryLimit               = 30
	DefaultCommentRefreshInterval   = 10 * time.Minute
	DefaultCommentRefreshStoryLimit = 30
	DefaultCommentRefreshBatchSize  = 5
	DefaultMaxCommentTranslations   = 50
)

// ProviderSettings is one named provider entry.
type ProviderSettings struct {
	Name string `json:"name"`
	llm.Config
}

// ProvidersSettings is the stored provider list plus the active entry.
type ProvidersSettings struct {
	Providers []ProviderSettings `json:"providers"`
	Active    string             `json:"active"`
}

// SettingsService provides typed access to the runtime settings. It also
// resolves the active provider for the translation client.
type SettingsService interface {
	// ActiveProvider returns the config of the active provider with its
	// real API key. ErrNoProvider when none is configured.
	ActiveProvider(ctx context.Context) (llm.Config, error)
	// GetProviders returns the provider list with masked API keys.
	GetProviders(ctx context.Context) (*ProvidersSettings, error)
	// SetProviders replaces the provider list. Masked or empty API keys
	// keep the stored key of the same-named entry.
	SetProviders(ctx context.Context, settings *ProvidersSettings) error

	SchedulerInterval(ctx context.Context) time.Duration
	SetSchedulerInterval(ctx context.Context, interval time.Duration) error
	StoryLimit(ctx context.Context) int
	SetStoryLimit(ctx context.Context, limit int) error
	CommentRefreshEnabled(ctx context.Context) bool
	CommentRefreshInterval(ctx context.Context) time.Duration
	SetCommentRefresh(ctx context.Context, enabled bool, interval time.Duration) error
	CommentRefreshStoryLimit(ctx context.Context) int
	SetCommentRefreshStoryLimit(ctx context.Context, limit int) error
	CommentRefreshBatchSize(ctx context.Context) int
	SetCommentRefreshBatchSize(ctx context.Context, size int) error
	MaxCommentTranslations(ctx context.Context) int
	// QueueConcurrency is read once at startup; changing it takes effect
	// on the next process start.
	QueueConcurrency(ctx context.Context) int
}

type settingsService struct {
	repo repository.SettingsRepository
}

// NewSettingsService creates a new settings service.
func NewSettingsService(repo repository.SettingsRepository) SettingsService {
	return &settingsService{repo: repo}
}

func (s *settingsService) ActiveProvider(ctx context.Context) (llm.Config, error) {
	stored, active, err := s.loadProviders(ctx)
	if err != nil {
		return llm.Config{}, err
	}
	if len(stored) == 0 {
		return llm.Config{}, ErrNoProvider
	}
	for _, p := range stored {
		if p.Name == active {
			return p.Config, nil
		}
	}
	// Active name unset or stale; fall back to the first entry.
	return stored[0].Config, nil
}

func (s *settingsService) GetProviders(ctx context.Context) (*ProvidersSettings, error) {
	stored, active, err := s.loadProviders(ctx)
	if err != nil {
		return nil, err
	}
	masked := make([]ProviderSettings, len(stored))
	for i, p := range stored {
		p.APIKey = maskAPIKey(p.APIKey)
		masked[i] = p
	}
	return &ProvidersSettings{Providers: masked, Active: active}, nil
}

func (s *settingsService) SetProviders(ctx context.Context, settings *ProvidersSettings) error {
	stored, _, err := s.loadProviders(ctx)
	if err != nil {
		return err
	}
	storedByName := make(map[string]ProviderSettings, len(stored))
	for _, p := range stored {
		storedByName[p.Name] = p
	}

	next := make([]ProviderSettings, 0, len(settings.Providers))
	for _, p := range settings.Providers {
		if p.APIKey == "" || isMaskedKey(p.APIKey) {
			if existing, ok := storedByName[p.Name]; ok {
				p.APIKey = existing.APIKey
			} else {
				p.APIKey = ""
			}
		}
		next = append(next, p)
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal providers: %w", err)
	}
	if err := s.repo.Set(ctx, keyProviders, string(raw)); err != nil {
		return fmt.Errorf("set providers: %w", err)
	}
	if err := s.repo.Set(ctx, keyActiveProvider, settings.Active); err != nil {
		return fmt.Errorf("set active provider: %w", err)
	}
	return nil
}

func (s *settingsService) loadProviders(ctx context.Context) ([]ProviderSettings, string, error) {
	var providers []ProviderSettings
	raw, err := s.getString(ctx, keyProviders)
	if err != nil {
		return nil, "", fmt.Errorf("get providers: %w", err)
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &providers); err != nil {
			return nil, "", fmt.Errorf("parse providers: %w", err)
		}
	}
	active, err := s.getString(ctx, keyActiveProvider)
	if err != nil {
		return nil, "", fmt.Errorf("get active provider: %w", err)
	}
	return providers, active, nil
}

func (s *settingsService) SchedulerInterval(ctx context.Context) time.Duration {
	if ms, err := s.getInt(ctx, keySchedulerInterval); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return DefaultSchedulerInterval
}

func (s *settingsService) SetSchedulerInterval(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	return s.repo.Set(ctx, keySchedulerInterval, strconv.FormatInt(interval.Milliseconds(), 10))
}

func (s *settingsService) StoryLimit(ctx context.Context) int {
	if n, err := s.getInt(ctx, keyStoryLimit); err == nil && n > 0 {
		return n
	}
	return DefaultStoryLimit
}

func (s *settingsService) SetStoryLimit(ctx context.Context, limit int) error {
	if limit <= 0 {
		return fmt.Errorf("story limit must be positive")
	}
	return s.repo.Set(ctx, keyStoryLimit, strconv.Itoa(limit))
}

func (s *settingsService) CommentRefreshEnabled(ctx context.Context) bool {
	val, err := s.getString(ctx, keyCommentRefreshEnabled)
	if err != nil || val == "" {
		return true
	}
	return val == "true"
}

func (s *settingsService) CommentRefreshInterval(ctx context.Context) time.Duration {
	if ms, err := s.getInt(ctx, keyCommentRefreshInterval); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return DefaultCommentRefreshInterval
}

func (s *settingsService) SetCommentRefresh(ctx context.Context, enabled bool, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	enabledVal := "false"
	if enabled {
		enabledVal = "true"
	}
	if err := s.repo.Set(ctx, keyCommentRefreshEnabled, enabledVal); err != nil {
		return fmt.Errorf("set comment refresh enabled: %w", err)
	}
	return s.repo.Set(ctx, keyCommentRefreshInterval, strconv.FormatInt(interval.Milliseconds(), 10))
}

func (s *settingsService) CommentRefreshStoryLimit(ctx context.Context) int {
	if n, err := s.getInt(ctx, keyCommentRefreshStoryLimit); err == nil && n > 0 {
		return n
	}
	return DefaultCommentRefreshStoryLimit
}

func (s *settingsService) SetCommentRefreshStoryLimit(ctx context.Context, limit int) error {
	if limit <= 0 {
		return fmt.Errorf("comment refresh story limit must be positive")
	}
	return s.repo.Set(ctx, keyCommentRefreshStoryLimit, strconv.Itoa(limit))
}

func (s *settingsService) CommentRefreshBatchSize(ctx context.Context) int {
	if n, err := s.getInt(ctx, keyCommentRefreshBatchSize); err == nil && n > 0 {
		return n
	}
	return DefaultCommentRefreshBatchSize
}

func (s *settingsService) SetCommentRefreshBatchSize(ctx context.Context, size int) error {
	if size <= 0 {
		return fmt.Errorf("comment refresh batch size must be positive")
	}
	return s.repo.Set(ctx, keyCommentRefreshBatchSize, strconv.Itoa(size))
}

func (s *settingsService) MaxCommentTranslations(ctx context.Context) int {
	if n, err := s.getInt(ctx, keyMaxCommentTranslations); err == nil && n > 0 {
		return n
	}
	return DefaultMaxCommentTranslations
}

func (s *settingsService) QueueConcurrency(ctx context.Context) int {
	if n, err := s.getInt(ctx, keyQueueConcurrency); err == nil && n > 0 {
		return n
	}
	return queue.DefaultConcurrency
}

// getString gets a plain string value from settings.
func (s *settingsService) getString(ctx context.Context, key string) (string, error) {
	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if setting == nil {
		return "", nil
	}
	return setting.Value, nil
}

// getInt gets an integer value from settings.
func (s *settingsService) getInt(ctx context.Context, key string) (int, error) {
	val, err := s.getString(ctx, key)
	if err != nil || val == "" {
		return 0, err
	}
	return strconv.Atoi(val)
}

// maskAPIKey returns a masked version of the API key for display.
func maskAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return "***"
	}
	// Find prefix (e.g., "sk-" for OpenAI)
	prefixEnd := 0
	for i, c := range apiKey {
		if c == '-' {
			prefixEnd = i + 1
			break
		}
		if i >= 4 {
			break
		}
	}
	prefix := apiKey[:prefixEnd]
	suffix := apiKey[len(apiKey)-3:]
	return prefix + "***" + suffix
}

// isMaskedKey checks if a string looks like a masked API key.
func isMaskedKey(key string) bool {
	if len(key) == 0 || len(key) >= 20 {
		return false
	}
	for i := 0; i <= len(key)-3; i++ {
		if key[i:i+3] == "***" {
			return true
		}
	}
	return false
}
