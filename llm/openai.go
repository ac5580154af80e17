package llm

import "context"

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAI talks to the OpenAI chat completions API.
type OpenAI struct {
	client
}

func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errMissingAPIKey("openai")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	return &OpenAI{client: newClient(cfg)}, nil
}

func (p *OpenAI) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.chat(ctx, req)
}
