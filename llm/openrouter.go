package llm

import "context"

const defaultOpenRouterBaseURL = "https://openrouter.ai/api"

// OpenRouter talks to the OpenRouter chat completions API.
type OpenRouter struct {
	client
}

func NewOpenRouter(cfg Config) (*OpenRouter, error) {
	if cfg.APIKey == "" {
		return nil, errMissingAPIKey("openrouter")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenRouterBaseURL
	}
	return &OpenRouter{client: newClient(cfg)}, nil
}

func (p *OpenRouter) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.chat(ctx, req)
}
