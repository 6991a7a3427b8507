package llm

import (
	"context"
	"errors"
)

// Provider is one configured chat-completions backend.
type Provider interface {
	// Complete sends one system+user exchange and returns the raw text.
	// When jsonMode is set the backend is asked for a JSON object
	// response where the API supports it.
	Complete(ctx context.Context, systemPrompt, content string, jsonMode bool) (string, error)
	// Name returns the provider kind.
	Name() string
}

// Config holds the configuration for one provider.
type Config struct {
	Provider      string `json:"provider"` // openai, anthropic, compatible
	APIKey        string `json:"apiKey"`
	BaseURL       string `json:"baseUrl"`
	Model         string `json:"model"`
	ThinkingModel bool   `json:"thinkingModel"` // strip <think>…</think> prefixes from output
}

// Provider kinds.
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderCompatible = "compatible"
)

// Translations run deterministic-ish; fixed low temperature.
const completionTemperature = 0.3

var (
	ErrInvalidProvider = errors.New("invalid provider")
	ErrMissingAPIKey   = errors.New("API key is required")
	ErrMissingBaseURL  = errors.New("base URL is required for compatible provider")
	ErrMissingModel    = errors.New("model is required")
)

// NewProvider creates a provider from the config.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		return nil, ErrMissingModel
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		return newOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case ProviderAnthropic:
		return newAnthropicProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case ProviderCompatible:
		if cfg.BaseURL == "" {
			return nil, ErrMissingBaseURL
		}
		return newCompatibleProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	default:
		return nil, ErrInvalidProvider
	}
}
