// Package plotline turns a writer's narrative notes into a queryable
// knowledge graph: documents are classified, mined for entities and
// @category:value tags, resolved into a Neo4j graph, and then answered
// against in natural language.
package plotline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mwestrom/plotline/extract"
	"github.com/mwestrom/plotline/graph"
	"github.com/mwestrom/plotline/ingest"
	"github.com/mwestrom/plotline/ledger"
	"github.com/mwestrom/plotline/llm"
	"github.com/mwestrom/plotline/neo"
	"github.com/mwestrom/plotline/parser"
	"github.com/mwestrom/plotline/query"
)

// Ledger is the bookkeeping surface the engine needs. *ledger.Ledger
// implements it; tests substitute an in-memory one.
type Ledger interface {
	ingest.Catalog
	LogQuery(ctx context.Context, q ledger.QueryRecord) error
	Stats(ctx context.Context) (*ledger.Stats, error)
	Reset(ctx context.Context) error
	Close() error
}

// Engine wires the whole pipeline together.
type Engine struct {
	cfg      Config
	store    graph.Store
	ledger   Ledger
	provider llm.Provider
	ingestor *ingest.Orchestrator
	asker    *query.Engine

	closeStore func(ctx context.Context) error
}

// New builds an engine from configuration: completion provider, Neo4j
// store, SQLite ledger, and the orchestrator over them.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := llm.NewProvider(llm.Config{
		Provider: cfg.LLMProvider,
		Model:    cfg.LLMModel,
		BaseURL:  cfg.LLMBaseURL,
		APIKey:   cfg.LLMAPIKey,
		Timeout:  cfg.LLMTimeout,
	})
	if err != nil {
		return nil, err
	}

	store, err := neo.New(ctx, neo.Config{
		URI:      cfg.Neo4jURI,
		Username: cfg.Neo4jUsername,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGraphUnavailable, err)
	}

	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		store.Close(ctx)
		return nil, err
	}

	e := newEngine(cfg, store, led, provider)
	e.closeStore = store.Close
	return e, nil
}

// NewWithBackends builds an engine over caller-supplied backends. Used by
// tests and by embedders that bring their own store.
func NewWithBackends(cfg Config, store graph.Store, led Ledger, provider llm.Provider) *Engine {
	cfg.applyDefaults()
	return newEngine(cfg, store, led, provider)
}

func newEngine(cfg Config, store graph.Store, led Ledger, provider llm.Provider) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		ledger:   led,
		provider: provider,
		ingestor: ingest.New(
			parser.NewRegistry(),
			extract.NewExtractor(provider),
			graph.NewResolver(store),
			led,
			cfg.DraftsDir,
			cfg.ContentDir,
		),
		asker: query.NewEngine(store, provider),
	}
}

// Close releases the engine's connections.
func (e *Engine) Close(ctx context.Context) error {
	var firstErr error
	if err := e.ledger.Close(); err != nil {
		firstErr = err
	}
	if e.closeStore != nil {
		if err := e.closeStore(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Process ingests every draft: parse, classify, extract, resolve, file
// away. Failures are per-document; the report carries them all.
func (e *Engine) Process(ctx context.Context) (*ingest.Report, error) {
	return e.ingestor.ProcessAll(ctx)
}

// Preview reports what Process would do without writing anything.
func (e *Engine) Preview(ctx context.Context) (*ingest.Report, error) {
	return e.ingestor.Preview(ctx)
}

// ProcessFile ingests one file outside the drafts directory flow.
func (e *Engine) ProcessFile(ctx context.Context, path string) (ingest.Result, error) {
	return e.ingestor.ProcessFile(ctx, path)
}

// Ask answers a natural-language question about the graph and records the
// exchange in the query log.
func (e *Engine) Ask(ctx context.Context, question string) (*query.Answer, error) {
	ans, err := e.asker.Ask(ctx, question)

	record := ledger.QueryRecord{Question: question}
	if ans != nil {
		record.Cypher = ans.Cypher
		record.Answer = ans.Text
		record.RowCount = len(ans.Rows)
	}
	if err != nil {
		record.Error = err.Error()
	}
	if logErr := e.ledger.LogQuery(ctx, record); logErr != nil {
		slog.Warn("plotline: query log write failed", "error", logErr)
	}

	return ans, err
}

// Insights runs the canned story overview.
func (e *Engine) Insights(ctx context.Context, storyTitle string) (string, error) {
	return e.asker.Insights(ctx, storyTitle)
}

// CharacterConnections lists everything directly linked to a character.
func (e *Engine) CharacterConnections(ctx context.Context, name string) ([]map[string]any, error) {
	return e.asker.CharacterConnections(ctx, name)
}

// TagsByCategory lists tags in a category and their carriers.
func (e *Engine) TagsByCategory(ctx context.Context, category string) ([]map[string]any, error) {
	return e.asker.TagsByCategory(ctx, category)
}

// SuggestedQuestions returns starter questions for interactive mode.
func (e *Engine) SuggestedQuestions() []string {
	return query.SuggestedQuestions()
}

// Status describes the state of the workspace.
type Status struct {
	Ledger *ledger.Stats  `json:"ledger"`
	Nodes  map[string]int `json:"nodes"`
	Edges  int            `json:"edges"`
}

// Status reports ledger stats plus graph node counts by kind.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	stats, err := e.ledger.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}

	status := &Status{Ledger: stats, Nodes: map[string]int{}}

	rows, err := e.store.Run(ctx,
		`MATCH (n) RETURN labels(n)[0] AS kind, count(n) AS count`, nil)
	if err != nil {
		return nil, fmt.Errorf("counting nodes: %w", err)
	}
	for _, row := range rows {
		kind, _ := row["kind"].(string)
		status.Nodes[kind] = intFrom(row["count"])
	}

	rows, err = e.store.Run(ctx, `MATCH ()-[r]->() RETURN count(r) AS count`, nil)
	if err != nil {
		return nil, fmt.Errorf("counting edges: %w", err)
	}
	if len(rows) > 0 {
		status.Edges = intFrom(rows[0]["count"])
	}

	return status, nil
}

// Check is the outcome of one connectivity test.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Test exercises each backend: graph connectivity, the ledger, and a
// round trip through the completion service.
func (e *Engine) Test(ctx context.Context) []Check {
	var checks []Check

	if err := e.store.Ping(ctx); err != nil {
		checks = append(checks, Check{Name: "graph", Detail: err.Error()})
	} else {
		checks = append(checks, Check{Name: "graph", OK: true})
	}

	if _, err := e.ledger.Stats(ctx); err != nil {
		checks = append(checks, Check{Name: "ledger", Detail: err.Error()})
	} else {
		checks = append(checks, Check{Name: "ledger", OK: true})
	}

	resp, err := e.provider.Chat(ctx, llm.ChatRequest{
		Messages:  []llm.Message{{Role: "user", Content: "Reply with the single word: ready"}},
		MaxTokens: 8,
	})
	switch {
	case err != nil:
		checks = append(checks, Check{Name: "llm", Detail: err.Error()})
	case resp.Content == "":
		checks = append(checks, Check{Name: "llm", Detail: "empty response"})
	default:
		checks = append(checks, Check{Name: "llm", OK: true})
	}

	return checks
}

type resettable interface {
	Reset(ctx context.Context) error
}

// Reset wipes the graph and the ledger. The CLI gates this behind typed
// confirmation; the engine just executes.
func (e *Engine) Reset(ctx context.Context) error {
	r, ok := e.store.(resettable)
	if !ok {
		return fmt.Errorf("plotline: graph store does not support reset")
	}
	if err := r.Reset(ctx); err != nil {
		return err
	}
	if err := e.ledger.Reset(ctx); err != nil {
		return err
	}
	slog.Warn("plotline: workspace reset")
	return nil
}

func intFrom(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
