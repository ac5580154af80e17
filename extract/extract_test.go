package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/mwestrom/plotline/graph"
	"github.com/mwestrom/plotline/llm"
	"github.com/mwestrom/plotline/tag"
)

// fakeProvider returns a scripted response and records the last request.
type fakeProvider struct {
	response string
	err      error
	lastReq  llm.ChatRequest
}

func (f *fakeProvider) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.response}, nil
}

const aliceResponse = `{
	"entities": {
		"characters": [
			{"name": "Alice Chen", "description": "A software engineer with hidden powers", "age": 29, "role": "protagonist", "traits": ["curious", "stubborn"], "favorite_color": "blue"}
		],
		"locations": [
			{"name": "Meridian Tower", "type": "building", "description": "Corporate headquarters", "significance": null}
		],
		"tags": [
			{"category": "skill", "value": "debugging", "description": "Professional skill"}
		]
	},
	"relationships": [
		{"from": "Alice Chen", "to": "Meridian Tower", "type": "LIVES_IN", "description": "Alice works and lives near the tower"},
		{"from": "Alice Chen", "to": "Marcus Webb", "type": "KNOWS", "description": "Former colleague"}
	]
}`

func findCandidate(t *testing.T, cands []graph.Candidate, kind graph.Kind, name string) graph.Candidate {
	t.Helper()
	for _, c := range cands {
		if c.Kind == kind && c.Name == name {
			return c
		}
	}
	t.Fatalf("candidate %s %q not found in %v", kind, name, cands)
	return graph.Candidate{}
}

func TestExtractCandidates(t *testing.T) {
	fake := &fakeProvider{response: aliceResponse}
	ex := NewExtractor(fake)

	result, err := ex.Extract(context.Background(), Document{
		Path:    "notes/alice_chen_character.md",
		Kind:    graph.KindCharacter,
		Content: "# Alice Chen\n\nAlice is a software engineer...",
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	alice := findCandidate(t, result.Candidates, graph.KindCharacter, "Alice Chen")
	if alice.Props["age"] != float64(29) {
		t.Errorf("age = %v, want 29", alice.Props["age"])
	}
	if _, ok := alice.Props["favorite_color"]; ok {
		t.Error("field outside the schema should have been dropped")
	}
	if alice.SourcePath != "notes/alice_chen_character.md" {
		t.Errorf("SourcePath = %q", alice.SourcePath)
	}

	tower := findCandidate(t, result.Candidates, graph.KindLocation, "Meridian Tower")
	if _, ok := tower.Props["significance"]; ok {
		t.Error("null attribute should be omitted, not stored")
	}

	findCandidate(t, result.Candidates, graph.KindTag, "skill:debugging")
}

func TestExtractRelationships(t *testing.T) {
	fake := &fakeProvider{response: aliceResponse}
	ex := NewExtractor(fake)

	result, err := ex.Extract(context.Background(), Document{
		Path: "notes/alice.md",
		Kind: graph.KindCharacter,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rels) != 2 {
		t.Fatalf("got %d relationships, want 2", len(result.Rels))
	}

	lives := result.Rels[0]
	if lives.Type != graph.RelLivesIn {
		t.Errorf("Type = %s, want LIVES_IN", lives.Type)
	}
	if lives.SourceKind != graph.KindCharacter || lives.TargetKind != graph.KindLocation {
		t.Errorf("endpoint kinds = %s, %s; want Character, Location", lives.SourceKind, lives.TargetKind)
	}

	knows := result.Rels[1]
	if knows.TargetKind != graph.KindUnknown {
		t.Errorf("unmatched endpoint kind = %s, want Unknown", knows.TargetKind)
	}
}

func TestExtractCoercesUnknownRelType(t *testing.T) {
	fake := &fakeProvider{response: `{
		"entities": {"characters": [{"name": "Bram"}, {"name": "Wendla"}]},
		"relationships": [{"from": "Bram", "to": "Wendla", "type": "SECRETLY_ADMIRES"}]
	}`}
	ex := NewExtractor(fake)

	result, err := ex.Extract(context.Background(), Document{Path: "n.md", Kind: graph.KindCharacter})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rels) != 1 {
		t.Fatalf("got %d relationships, want 1", len(result.Rels))
	}
	if result.Rels[0].Type != graph.RelRelatedTo {
		t.Errorf("Type = %s, want RELATED_TO", result.Rels[0].Type)
	}
}

func TestExtractMergesParsedTags(t *testing.T) {
	fake := &fakeProvider{response: aliceResponse}
	ex := NewExtractor(fake)

	result, err := ex.Extract(context.Background(), Document{
		Path: "notes/alice.md",
		Kind: graph.KindCharacter,
		Tags: []tag.Tag{
			{Category: "skill", Value: "debugging", Mentions: 1},
			{Category: "power", Value: "hardening", Mentions: 2},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// skill:debugging came back from the model too; it must not double up.
	var tagCount int
	for _, c := range result.Candidates {
		if c.Kind == graph.KindTag {
			tagCount++
		}
	}
	if tagCount != 2 {
		t.Errorf("got %d tag candidates, want 2", tagCount)
	}

	var hasEdges int
	for _, r := range result.Rels {
		if r.Type == graph.RelHas && r.SourceName == "Alice Chen" {
			hasEdges++
		}
	}
	if hasEdges != 2 {
		t.Errorf("got %d HAS edges from primary entity, want 2", hasEdges)
	}
}

func TestExtractFencedOutput(t *testing.T) {
	fake := &fakeProvider{response: "Here is the extraction:\n```json\n" + aliceResponse + "\n```\nLet me know if you need more."}
	ex := NewExtractor(fake)

	result, err := ex.Extract(context.Background(), Document{Path: "n.md", Kind: graph.KindCharacter})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	findCandidate(t, result.Candidates, graph.KindCharacter, "Alice Chen")
}

func TestExtractUnusableOutput(t *testing.T) {
	fake := &fakeProvider{response: "I could not find any entities in this text."}
	ex := NewExtractor(fake)

	_, err := ex.Extract(context.Background(), Document{Path: "n.md", Kind: graph.KindCharacter})
	if !errors.Is(err, ErrUnusableOutput) {
		t.Fatalf("error = %v, want ErrUnusableOutput", err)
	}
}

func TestExtractProviderErrorPassesThrough(t *testing.T) {
	fake := &fakeProvider{err: llm.ErrUnavailable}
	ex := NewExtractor(fake)

	_, err := ex.Extract(context.Background(), Document{Path: "n.md"})
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestTagsOnly(t *testing.T) {
	provider := &fakeProvider{err: errors.New("must not be called")}
	x := NewExtractor(provider)

	res := x.TagsOnly(Document{
		Path: "drafts/ramblings.md",
		Tags: []tag.Tag{
			{Category: "theme", Value: "trust", Mentions: 2},
			{Category: "theme", Value: "trust"},
			{Category: "skill", Value: "debugging"},
		},
	})

	if len(res.Candidates) != 2 {
		t.Fatalf("candidates = %d, want 2 deduplicated tags", len(res.Candidates))
	}
	for _, c := range res.Candidates {
		if c.Kind != graph.KindTag {
			t.Errorf("kind = %s, want Tag", c.Kind)
		}
		if c.SourcePath != "drafts/ramblings.md" {
			t.Errorf("source path = %q", c.SourcePath)
		}
	}
	if len(res.Rels) != 0 {
		t.Errorf("rels = %d, want none without a primary entity", len(res.Rels))
	}
	if provider.lastReq.Messages != nil {
		t.Error("completion service was called")
	}
}
