package llm

import "context"

const defaultGroqBaseURL = "https://api.groq.com/openai"

// Groq talks to the Groq chat completions API.
type Groq struct {
	client
}

func NewGroq(cfg Config) (*Groq, error) {
	if cfg.APIKey == "" {
		return nil, errMissingAPIKey("groq")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGroqBaseURL
	}
	return &Groq{client: newClient(cfg)}, nil
}

func (p *Groq) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.chat(ctx, req)
}
