package llm

import "context"

const defaultOllamaBaseURL = "http://localhost:11434"

// Ollama talks to a local Ollama server through its OpenAI-compatible
// endpoint. No API key is needed.
type Ollama struct {
	client
}

func NewOllama(cfg Config) (*Ollama, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaBaseURL
	}
	return &Ollama{client: newClient(cfg)}, nil
}

func (p *Ollama) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.chat(ctx, req)
}
