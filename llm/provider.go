// Package llm abstracts the completion service behind a small Provider
// interface. All providers speak the OpenAI-compatible chat API over HTTP.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable marks network failures, timeouts, and exhausted retries.
// Callers map it onto the pipeline's ServiceUnavailable taxonomy.
var ErrUnavailable = errors.New("llm: service unavailable")

// Provider is the interface for completion-service interactions.
type Provider interface {
	// Chat sends a chat completion request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// ResponseFormat can be set to "json_object" for JSON mode.
	ResponseFormat string `json:"response_format,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Config configures an LLM provider.
type Config struct {
	Provider string `json:"provider"` // openai, ollama, openrouter, groq, custom
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
	APIKey   string `json:"api_key"`
	// Timeout bounds each HTTP request. Zero means the default (60s);
	// requests that exceed it fail with ErrUnavailable rather than hang.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg)
	case "ollama":
		return NewOllama(cfg)
	case "openrouter":
		return NewOpenRouter(cfg)
	case "groq":
		return NewGroq(cfg)
	case "custom":
		return NewCustom(cfg)
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

func errMissingAPIKey(provider string) error {
	return fmt.Errorf("%s: api key is required", provider)
}
