package plotline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwestrom/plotline/graph"
	"github.com/mwestrom/plotline/ledger"
	"github.com/mwestrom/plotline/llm"
)

// memLedger is an in-memory Ledger for tests.
type memLedger struct {
	docs    map[string]ledger.Document
	queries []ledger.QueryRecord
	batches int
}

func newMemLedger() *memLedger {
	return &memLedger{docs: map[string]ledger.Document{}}
}

func (m *memLedger) RecordDocument(_ context.Context, doc ledger.Document) error {
	m.docs[doc.Path] = doc
	return nil
}

func (m *memLedger) SeenUnchanged(_ context.Context, path, hash string) (bool, error) {
	doc, ok := m.docs[path]
	return ok && doc.ContentHash == hash && doc.Status == ledger.StatusProcessed, nil
}

func (m *memLedger) StartBatch(context.Context) (string, error) {
	m.batches++
	return "batch", nil
}

func (m *memLedger) FinishBatch(context.Context, string, int, int, int) error { return nil }

func (m *memLedger) LogQuery(_ context.Context, q ledger.QueryRecord) error {
	m.queries = append(m.queries, q)
	return nil
}

func (m *memLedger) ListDocuments(context.Context) ([]ledger.Document, error) {
	var docs []ledger.Document
	for _, d := range m.docs {
		docs = append(docs, d)
	}
	return docs, nil
}

func (m *memLedger) Stats(context.Context) (*ledger.Stats, error) {
	stats := &ledger.Stats{ByStatus: map[string]int{}, Queries: len(m.queries)}
	for _, d := range m.docs {
		stats.Documents++
		stats.ByStatus[d.Status]++
	}
	return stats, nil
}

func (m *memLedger) Reset(context.Context) error {
	m.docs = map[string]ledger.Document{}
	m.queries = nil
	return nil
}

func (m *memLedger) Close() error { return nil }

// orderedProvider matches prompt markers in order, first hit wins.
type orderedProvider struct {
	script []struct{ marker, response string }
}

func (p *orderedProvider) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	prompt := req.Messages[len(req.Messages)-1].Content
	for _, s := range p.script {
		if strings.Contains(prompt, s.marker) {
			return &llm.ChatResponse{Content: s.response}, nil
		}
	}
	return nil, errors.New("no scripted response for prompt")
}

const aliceExtraction = `{
	"entities": {
		"characters": [{"name": "Alice Chen", "description": "A software engineer who discovers she can harden her skin", "age": 29, "role": "protagonist"}]
	},
	"relationships": []
}`

const sceneExtraction = `{
	"entities": {
		"scenes": [{"title": "The Discovery", "summary": "Alice first uses her power", "mood": "tense"}],
		"characters": [{"name": "Alice Chen"}]
	},
	"relationships": [
		{"from": "Alice Chen", "to": "The Discovery", "type": "APPEARS_IN"}
	]
}`

func newTestEngine(t *testing.T) (*Engine, *graph.MemoryStore, *memLedger, *orderedProvider) {
	t.Helper()
	store := graph.NewMemoryStore()
	led := newMemLedger()
	provider := &orderedProvider{}

	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ContentDir = filepath.Join(dir, "content")
	cfg.DraftsDir = ""
	cfg.LedgerPath = ""
	cfg.applyDefaults()

	e := NewWithBackends(cfg, store, led, provider)
	if err := os.MkdirAll(cfg.DraftsDir, 0755); err != nil {
		t.Fatal(err)
	}
	return e, store, led, provider
}

func writeTestDraft(t *testing.T, e *Engine, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(e.cfg.DraftsDir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestEngineEndToEnd(t *testing.T) {
	e, store, led, provider := newTestEngine(t)
	ctx := context.Background()

	writeTestDraft(t, e, "alice_chen_character.md",
		"# Alice Chen\n\nAlice dropped out of grad school to debug embedded systems.\n\n@skill:debugging @power:hardening @power:hardening\n")
	writeTestDraft(t, e, "discovery_scene.md",
		"---\ntype: scene\n---\n\n# The Discovery\n\nAlice touches the server rack and her skin turns to steel.\n")

	provider.script = []struct{ marker, response string }{
		{"Alice dropped out", aliceExtraction},
		{"skin turns to steel", sceneExtraction},
	}

	report, err := e.Process(ctx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.Processed != 2 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}

	// The character profile, its parsed tags, and the scene are all in
	// the graph, with HAS edges from Alice to each distinct tag.
	if _, ok := store.Node(graph.KindCharacter, "Alice Chen"); !ok {
		t.Fatal("Alice Chen not in graph")
	}
	if _, ok := store.Node(graph.KindScene, "The Discovery"); !ok {
		t.Fatal("scene not in graph")
	}
	if _, ok := store.Node(graph.KindTag, "power:hardening"); !ok {
		t.Fatal("tag not in graph")
	}
	hasEdges := store.EdgesFrom(graph.KindCharacter, "Alice Chen", graph.RelHas)
	if len(hasEdges) != 2 {
		t.Fatalf("HAS edges = %d, want 2 (debugging, hardening)", len(hasEdges))
	}
	appears := store.EdgesFrom(graph.KindCharacter, "Alice Chen", graph.RelAppearsIn)
	if len(appears) != 1 {
		t.Fatalf("APPEARS_IN edges = %d, want 1", len(appears))
	}

	// Both drafts were filed out of the drafts directory.
	drafts, err := e.ListDrafts()
	if err != nil {
		t.Fatal(err)
	}
	if len(drafts) != 0 {
		t.Errorf("drafts remaining: %v", drafts)
	}

	// Ask about Alice's abilities; the store scripts the rows from the
	// HAS edges actually written above.
	store.RunFunc = func(_ context.Context, q string, _ map[string]any) ([]map[string]any, error) {
		var rows []map[string]any
		for _, edge := range store.EdgesFrom(graph.KindCharacter, "Alice Chen", graph.RelHas) {
			rows = append(rows, map[string]any{"tag": edge.Target.Norm})
		}
		return rows, nil
	}
	provider.script = []struct{ marker, response string }{
		{"Convert this to a read-only Cypher", "MATCH (c:Character {name: 'Alice Chen'})-[:HAS]->(t:Tag) RETURN t.name AS tag"},
		{"Query Results:", "Alice Chen has two abilities: debugging (a skill) and hardening (a power)."},
	}

	ans, err := e.Ask(ctx, "What abilities does Alice have?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(ans.Rows) != 2 {
		t.Errorf("rows = %v", ans.Rows)
	}
	if !strings.Contains(ans.Text, "hardening") {
		t.Errorf("answer = %q", ans.Text)
	}

	// The exchange is in the query log.
	if len(led.queries) != 1 || led.queries[0].RowCount != 2 {
		t.Errorf("query log = %+v", led.queries)
	}
}

func TestEngineReprocessIsIdempotent(t *testing.T) {
	e, store, led, provider := newTestEngine(t)
	ctx := context.Background()

	content := "# Alice Chen\n\nAlice dropped out of grad school.\n\n@skill:debugging\n"
	writeTestDraft(t, e, "alice_chen_character.md", content)
	provider.script = []struct{ marker, response string }{
		{"Alice dropped out", aliceExtraction},
	}

	if _, err := e.Process(ctx); err != nil {
		t.Fatal(err)
	}
	nodesBefore := len(store.Nodes())

	// Drop the identical note back into drafts; the hash check skips it.
	writeTestDraft(t, e, "alice_chen_character.md", content)
	led.docs[filepath.Join(e.cfg.DraftsDir, "alice_chen_character.md")] = ledger.Document{
		Path:        filepath.Join(e.cfg.DraftsDir, "alice_chen_character.md"),
		ContentHash: ledger.HashContent(content),
		Status:      ledger.StatusProcessed,
	}
	report, err := e.Process(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Skipped != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(store.Nodes()) != nodesBefore {
		t.Error("skip must not change the graph")
	}
}

func TestEngineStatus(t *testing.T) {
	e, store, _, _ := newTestEngine(t)
	ctx := context.Background()

	store.RunFunc = func(_ context.Context, q string, _ map[string]any) ([]map[string]any, error) {
		if strings.Contains(q, "labels(n)") {
			return []map[string]any{
				{"kind": "Character", "count": int64(3)},
				{"kind": "Scene", "count": int64(2)},
			}, nil
		}
		return []map[string]any{{"count": int64(7)}}, nil
	}

	status, err := e.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Nodes["Character"] != 3 || status.Nodes["Scene"] != 2 {
		t.Errorf("nodes = %v", status.Nodes)
	}
	if status.Edges != 7 {
		t.Errorf("edges = %d", status.Edges)
	}
}

func TestEngineReset(t *testing.T) {
	e, store, led, _ := newTestEngine(t)
	ctx := context.Background()

	store.UpsertNode(ctx, graph.Node{Kind: graph.KindCharacter, Name: "Alice Chen"})
	led.docs["a.md"] = ledger.Document{Path: "a.md", Status: ledger.StatusProcessed}

	if err := e.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if len(store.Nodes()) != 0 {
		t.Error("graph not wiped")
	}
	if len(led.docs) != 0 {
		t.Error("ledger not wiped")
	}
}

func TestNewDraft(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	path, err := e.NewDraft("character", "Marcus Webb")
	if err != nil {
		t.Fatalf("NewDraft: %v", err)
	}
	if filepath.Base(path) != "marcus_webb.md" {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.Contains(content, "type: character") || !strings.Contains(content, "# Marcus Webb") {
		t.Errorf("template content:\n%s", content)
	}

	if _, err := e.NewDraft("character", "Marcus Webb"); !errors.Is(err, ErrDraftExists) {
		t.Errorf("duplicate draft error = %v", err)
	}
	if _, err := e.NewDraft("villain", "Eve"); !errors.Is(err, ErrUnknownTemplate) {
		t.Errorf("unknown template error = %v", err)
	}
}

func TestBackupRoundTrip(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	writeTestDraft(t, e, "note.md", "# A note\n")
	out := filepath.Join(t.TempDir(), "backup.tar.gz")
	if err := e.Backup(out); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("empty backup archive")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrMissingConfig) {
		t.Errorf("missing password error = %v", err)
	}
	cfg.Neo4jPassword = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfigPathDefaults(t *testing.T) {
	cfg := Config{ContentDir: "work"}
	cfg.applyDefaults()
	if cfg.DraftsDir != filepath.Join("work", "drafts") {
		t.Errorf("DraftsDir = %q", cfg.DraftsDir)
	}
	if cfg.LedgerPath != filepath.Join("work", "plotline.db") {
		t.Errorf("LedgerPath = %q", cfg.LedgerPath)
	}
}
