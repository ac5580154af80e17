package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwestrom/plotline/extract"
	"github.com/mwestrom/plotline/graph"
	"github.com/mwestrom/plotline/ledger"
	"github.com/mwestrom/plotline/llm"
	"github.com/mwestrom/plotline/parser"
)

// memCatalog is an in-memory Catalog for tests.
type memCatalog struct {
	docs     map[string]ledger.Document
	batches  []string
	finished int
}

func newMemCatalog() *memCatalog {
	return &memCatalog{docs: map[string]ledger.Document{}}
}

func (c *memCatalog) RecordDocument(_ context.Context, doc ledger.Document) error {
	c.docs[doc.Path] = doc
	return nil
}

func (c *memCatalog) SeenUnchanged(_ context.Context, path, hash string) (bool, error) {
	doc, ok := c.docs[path]
	return ok && doc.ContentHash == hash && doc.Status == ledger.StatusProcessed, nil
}

func (c *memCatalog) StartBatch(context.Context) (string, error) {
	id := "batch-1"
	c.batches = append(c.batches, id)
	return id, nil
}

func (c *memCatalog) FinishBatch(context.Context, string, int, int, int) error {
	c.finished++
	return nil
}

// scriptedProvider picks a response by substring match on the prompt.
type scriptedProvider struct {
	responses map[string]string // content marker -> response
	calls     int
}

func (p *scriptedProvider) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.calls++
	prompt := req.Messages[len(req.Messages)-1].Content
	for marker, resp := range p.responses {
		if strings.Contains(prompt, marker) {
			return &llm.ChatResponse{Content: resp}, nil
		}
	}
	return &llm.ChatResponse{Content: `{"entities": {}, "relationships": []}`}, nil
}

func writeDraft(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func candResponse(kind, nameField, name string) string {
	group := map[string]string{
		"Character": "characters",
		"Location":  "locations",
	}[kind]
	return `{"entities": {"` + group + `": [{"` + nameField + `": "` + name + `"}]}, "relationships": []}`
}

func newTestOrchestrator(t *testing.T, store *graph.MemoryStore, provider llm.Provider) (*Orchestrator, *memCatalog, string, string) {
	t.Helper()
	drafts := t.TempDir()
	content := t.TempDir()
	cat := newMemCatalog()
	o := New(parser.NewRegistry(), extract.NewExtractor(provider), graph.NewResolver(store), cat, drafts, content)
	return o, cat, drafts, content
}

func TestProcessAllPartialFailure(t *testing.T) {
	store := graph.NewMemoryStore()
	// Two existing characters both answer to "Phoenix": an ambiguous
	// reference must fail that document and only that document.
	store.UpsertNode(context.Background(), graph.Node{Kind: graph.KindCharacter, Name: "Phoenix Vale", Aliases: []string{"Phoenix"}})
	store.UpsertNode(context.Background(), graph.Node{Kind: graph.KindCharacter, Name: "Phoenix Marsh", Aliases: []string{"Phoenix"}})

	provider := &scriptedProvider{responses: map[string]string{
		"about Alice":   candResponse("Character", "name", "Alice Chen"),
		"about Bram":    candResponse("Character", "name", "Bram Holt"),
		"about Phoenix": candResponse("Character", "name", "Phoenix"),
		"broken output": "sorry, I cannot help with that",
	}}

	o, cat, drafts, _ := newTestOrchestrator(t, store, provider)
	writeDraft(t, drafts, "a_character.md", "# Alice\n\nNotes about Alice.")
	writeDraft(t, drafts, "b_character.md", "# Bram\n\nNotes about Bram.")
	writeDraft(t, drafts, "c_character.md", "# Phoenix\n\nNotes about Phoenix.")
	writeDraft(t, drafts, "d_character.md", "broken output trigger")

	report, err := o.ProcessAll(context.Background())
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if report.Processed != 2 || report.Failed != 2 {
		t.Fatalf("processed=%d failed=%d, want 2 and 2", report.Processed, report.Failed)
	}

	byName := map[string]Result{}
	for _, r := range report.Results {
		byName[filepath.Base(r.Path)] = r
	}
	if byName["c_character.md"].Status != ledger.StatusConflict {
		t.Errorf("ambiguous doc status = %s, want conflict", byName["c_character.md"].Status)
	}
	if byName["d_character.md"].Status != ledger.StatusExtractionFailed {
		t.Errorf("broken doc status = %s, want extraction_failed", byName["d_character.md"].Status)
	}

	// Failed documents are flagged for review in the catalog.
	if !cat.docs[byName["c_character.md"].Path].NeedsReview {
		t.Error("conflict document not flagged for review")
	}

	// The two good documents landed in the graph; the conflict wrote nothing.
	if _, ok := store.Node(graph.KindCharacter, "Alice Chen"); !ok {
		t.Error("Alice Chen missing from graph")
	}
	if _, ok := store.Node(graph.KindCharacter, "Phoenix"); ok {
		t.Error("conflicting document must not write")
	}
}

func TestProcessAllSortedOrder(t *testing.T) {
	provider := &scriptedProvider{responses: map[string]string{}}
	o, _, drafts, _ := newTestOrchestrator(t, graph.NewMemoryStore(), provider)
	writeDraft(t, drafts, "zeta.md", "# Z\n\nlast")
	writeDraft(t, drafts, "alpha.md", "# A\n\nfirst")
	writeDraft(t, drafts, "mid.md", "# M\n\nmiddle")

	report, err := o.ProcessAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, r := range report.Results {
		got = append(got, filepath.Base(r.Path))
	}
	want := []string{"alpha.md", "mid.md", "zeta.md"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestProcessAllSkipsUnchanged(t *testing.T) {
	provider := &scriptedProvider{responses: map[string]string{
		"about Alice": candResponse("Character", "name", "Alice Chen"),
	}}
	store := graph.NewMemoryStore()
	o, cat, drafts, contentDir := newTestOrchestrator(t, store, provider)

	content := "# Alice\n\nNotes about Alice."
	writeDraft(t, drafts, "alice_character.md", content)

	report, err := o.ProcessAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Processed != 1 {
		t.Fatalf("first run processed = %d, want 1", report.Processed)
	}

	// The file was archived; put the identical content back in drafts.
	archived := report.Results[0].ArchivedPath
	if archived == "" || !strings.HasPrefix(archived, contentDir) {
		t.Fatalf("archived path = %q", archived)
	}
	// Simulate re-dropping the same note. The catalog remembers the
	// original path, so reuse it.
	writeDraft(t, drafts, "alice_character.md", content)
	cat.docs[filepath.Join(drafts, "alice_character.md")] = ledger.Document{
		Path:        filepath.Join(drafts, "alice_character.md"),
		ContentHash: ledger.HashContent(content),
		Status:      ledger.StatusProcessed,
	}

	callsBefore := provider.calls
	report2, err := o.ProcessAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report2.Skipped != 1 || report2.Processed != 0 {
		t.Fatalf("second run skipped=%d processed=%d, want 1 and 0", report2.Skipped, report2.Processed)
	}
	if provider.calls != callsBefore {
		t.Error("skipped document must not reach the completion service")
	}
}

func TestPreviewWritesNothing(t *testing.T) {
	provider := &scriptedProvider{responses: map[string]string{
		"about Alice": candResponse("Character", "name", "Alice Chen"),
	}}
	store := graph.NewMemoryStore()
	o, cat, drafts, _ := newTestOrchestrator(t, store, provider)
	path := writeDraft(t, drafts, "alice_character.md", "# Alice\n\nNotes about Alice.")

	report, err := o.Preview(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Processed != 1 {
		t.Fatalf("processed = %d, want 1", report.Processed)
	}
	diff := report.Results[0].Diff
	if diff == nil || len(diff.Creates) != 1 || diff.Creates[0].Name != "Alice Chen" {
		t.Fatalf("diff = %+v", diff)
	}

	if len(store.Nodes()) != 0 {
		t.Error("preview must not write to the graph")
	}
	if len(cat.docs) != 0 {
		t.Error("preview must not write catalog rows")
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("preview must not move files")
	}
}

func TestArchiveByKindWithCollisionSuffix(t *testing.T) {
	provider := &scriptedProvider{responses: map[string]string{
		"about Alice": candResponse("Character", "name", "Alice Chen"),
	}}
	o, _, drafts, contentDir := newTestOrchestrator(t, graph.NewMemoryStore(), provider)

	writeDraft(t, drafts, "one_character.md", "# Alice Chen\n\nNotes about Alice.")
	report, err := o.ProcessAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	first := report.Results[0].ArchivedPath
	want := filepath.Join(contentDir, "characters", "alice_chen.md")
	if first != want {
		t.Fatalf("archived to %q, want %q", first, want)
	}

	// Same title again: must not overwrite.
	writeDraft(t, drafts, "two_character.md", "# Alice Chen\n\nMore notes about Alice.")
	report2, err := o.ProcessAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second := report2.Results[0].ArchivedPath
	if second != filepath.Join(contentDir, "characters", "alice_chen_1.md") {
		t.Fatalf("collision archived to %q", second)
	}
	if _, err := os.Stat(first); err != nil {
		t.Error("first archive was clobbered")
	}
}

func TestPreviewMatchesSequentialRun(t *testing.T) {
	provider := &scriptedProvider{responses: map[string]string{
		"about Alice": candResponse("Character", "name", "Alice Chen"),
	}}
	store := graph.NewMemoryStore()
	o, _, drafts, _ := newTestOrchestrator(t, store, provider)
	// Two drafts introducing the same new character: the dry run must
	// report one create, exactly as the real run performs.
	writeDraft(t, drafts, "a_character.md", "# Alice\n\nNotes about Alice.")
	writeDraft(t, drafts, "b_character.md", "# Alice again\n\nMore notes about Alice.")

	countDiffs := func(rep *Report) (creates, updates int) {
		for _, res := range rep.Results {
			if res.Diff != nil {
				creates += len(res.Diff.Creates)
				updates += len(res.Diff.Updates)
			}
		}
		return creates, updates
	}

	preview, err := o.Preview(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	pc, pu := countDiffs(preview)
	if len(store.Nodes()) != 0 {
		t.Fatal("preview wrote to the graph")
	}

	run, err := o.ProcessAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	rc, ru := countDiffs(run)

	if pc != rc || pu != ru {
		t.Errorf("preview diff = %d creates, %d updates; real run = %d, %d", pc, pu, rc, ru)
	}
	if pc != 1 {
		t.Errorf("creates = %d, want 1 for the same entity across two drafts", pc)
	}
}

func TestUnclassifiedDocumentSkipsExtraction(t *testing.T) {
	provider := &scriptedProvider{}
	store := graph.NewMemoryStore()
	o, cat, drafts, contentDir := newTestOrchestrator(t, store, provider)
	writeDraft(t, drafts, "ramblings.md", "Some loose ideas about pacing. @theme:trust\n")

	report, err := o.ProcessAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Processed != 1 {
		t.Fatalf("processed = %d, want 1", report.Processed)
	}
	if provider.calls != 0 {
		t.Errorf("completion service called %d times for free text", provider.calls)
	}

	if _, ok := store.Node(graph.KindTag, "theme:trust"); !ok {
		t.Error("tag node not created")
	}
	if got := len(store.Nodes()); got != 1 {
		t.Errorf("nodes = %d, want only the tag", got)
	}

	if _, err := os.Stat(filepath.Join(contentDir, "research", "ramblings.md")); err != nil {
		t.Errorf("document not filed under research: %v", err)
	}
	doc := cat.docs[filepath.Join(drafts, "ramblings.md")]
	if doc.Status != ledger.StatusProcessed {
		t.Errorf("status = %q, want processed", doc.Status)
	}
}
