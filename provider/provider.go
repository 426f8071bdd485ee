package provider

import (
	"context"
	"errors"

	"github.com/minjae-ko/turnvault/config"
	gemini_provider "github.com/minjae-ko/turnvault/provider/gemini"
)

// Client represents different LLM providers
type Client string

const (
	Gemini    Client = "gemini"
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
)

// Provider is the interface that all LLM implementations must satisfy
type Provider interface {
	// Call sends one instruction prompt plus content payload and returns the
	// extracted response text.
	Call(ctx context.Context, prompt, content string) (string, error)
	// CallJSON requests structured output and unmarshals it into out.
	CallJSON(ctx context.Context, prompt, content string, out interface{}) error
}

// NewProvider creates a new LLM client based on the provided configuration
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch Client(cfg.Provider) {
	case Gemini:
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set")
		}
		return gemini_provider.NewClient(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Temperature, cfg.MaxTokens, cfg.Timeout), nil
	case OpenAI:
		return nil, errors.New("openai client not implemented yet")
	case Anthropic:
		return nil, errors.New("anthropic client not implemented yet")
	default:
		return nil, errors.New("unsupported LLM provider")
	}
}
