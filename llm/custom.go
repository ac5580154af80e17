package llm

import (
	"context"
	"fmt"
)

// Custom talks to any OpenAI-compatible server at a caller-supplied
// base URL, such as LM Studio or vLLM.
type Custom struct {
	client
}

func NewCustom(cfg Config) (*Custom, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("custom: base url is required")
	}
	return &Custom{client: newClient(cfg)}, nil
}

func (p *Custom) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.chat(ctx, req)
}
