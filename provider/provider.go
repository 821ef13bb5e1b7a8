// Package provider abstracts the language-model backends used by the
// pipeline phases.
package provider

import (
	"context"
	"errors"

	"github.com/slidesmith/slidesmith/config"
	openai_provider "github.com/slidesmith/slidesmith/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	Mock       Client = "mock"
	OpenAI     Client = "openai"
	OpenRouter Client = "openrouter"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// Message is one turn of a chat-completion conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is the interface all LLM implementations must satisfy. The agent
// name selects any per-agent model override.
type Provider interface {
	Generate(ctx context.Context, agent string, system, user string) (string, error)
	Name() string
}

// NewProvider creates an LLM client from configuration. The mock provider is
// the default and keeps the whole pipeline operational offline.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch Client(cfg.Provider) {
	case Mock, "":
		return NewMock(), nil
	case OpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set")
		}
		return openai_provider.NewClient(openai_provider.Options{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Models:      cfg.Models,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}), nil
	case OpenRouter:
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set")
		}
		base := cfg.BaseURL
		if base == "" || base == "https://api.openai.com/v1" {
			base = openRouterBaseURL
		}
		return openai_provider.NewClient(openai_provider.Options{
			APIKey:      cfg.APIKey,
			BaseURL:     base,
			Model:       cfg.Model,
			Models:      cfg.Models,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}), nil
	default:
		return nil, errors.New("unsupported LLM provider: " + cfg.Provider)
	}
}
