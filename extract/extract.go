// Package extract turns narrative text into graph candidates through a
// single structured LLM call per document.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mwestrom/plotline/graph"
	"github.com/mwestrom/plotline/llm"
	"github.com/mwestrom/plotline/tag"
)

// ErrUnusableOutput is returned when the model response contains no JSON
// object that can be decoded into the extraction contract.
var ErrUnusableOutput = errors.New("extract: no usable JSON in model output")

// extractionPrompt asks the model for every entity group and the
// relationships between them in one structured call. The contract mirrors
// the property schema the graph registry enforces, so anything outside it
// is dropped before resolution.
const extractionPrompt = `You are an expert at analyzing creative writing to extract entities and relationships for a knowledge graph.

Context: %s

Text to analyze:
%s

Extract the following from this text and return as JSON:

1. Characters: people mentioned in the text
2. Locations: places, settings, buildings, rooms
3. Scenes: if this text represents a scene, extract scene info
4. Stories: if this text describes a story or book as a whole
5. Themes: abstract concepts, motifs, or themes explored
6. Plot Points: key events, conflicts, or story developments
7. World Elements: rules, systems, factions, artifacts of the story world
8. Tags: custom tags in @category:value format (like @power:hardening, @skill:debugging)
9. Relationships: connections between the entities above

Return in this exact JSON format:
{
  "entities": {
    "characters": [
      {"name": "Character Name", "description": "Brief description", "age": null or number, "role": "protagonist/antagonist/supporting/etc", "appearance": "Physical description", "goals": "What they want", "traits": ["trait1", "trait2"]}
    ],
    "locations": [
      {"name": "Location Name", "type": "city/building/room/etc", "description": "Description of the place", "significance": "Why it matters"}
    ],
    "scenes": [
      {"title": "Scene Title", "summary": "Brief summary", "pov": "Point-of-view character", "setting": "Where it takes place", "mood": "emotional tone", "status": "draft/revised/final"}
    ],
    "stories": [
      {"title": "Story Title", "summary": "Brief summary", "genre": "Genre", "status": "planning/drafting/complete"}
    ],
    "themes": [
      {"name": "Theme Name", "description": "What this theme represents"}
    ],
    "plot_points": [
      {"title": "Event Title", "description": "What happens", "importance": "major/minor", "type": "conflict/resolution/twist/etc"}
    ],
    "world_elements": [
      {"name": "Element Name", "category": "magic_system/faction/artifact/rule/etc", "description": "What it is"}
    ],
    "tags": [
      {"category": "power/skill/magic/etc", "value": "specific_ability", "description": "What this represents"}
    ]
  },
  "relationships": [
    {"from": "Entity 1", "to": "Entity 2", "type": "KNOWS/LIVES_IN/APPEARS_IN/HAS/EXPLORES/etc", "description": "Description of relationship"}
  ]
}

Rules:
- Only extract entities and relationships clearly present in the text. Be accurate and conservative.
- Use null for any attribute the text does not state. Never guess.
- Do NOT include any text outside the JSON object.`

// Document is one unit of input to the extractor.
type Document struct {
	Path    string
	Kind    graph.Kind
	Content string
	Tags    []tag.Tag
}

// Result pairs the candidates found in a document with the relationships
// connecting them, in the order they should be resolved.
type Result struct {
	Candidates []graph.Candidate
	Rels       []graph.CandidateRel
}

// Extractor drives the completion service and normalizes its output into
// candidates the resolver can consume.
type Extractor struct {
	chat llm.Provider
}

// NewExtractor creates an extractor over the given provider.
func NewExtractor(chat llm.Provider) *Extractor {
	return &Extractor{chat: chat}
}

// groupKinds maps each JSON entity group to its graph kind and the field
// that names an entity in that group.
var groupKinds = []struct {
	group     string
	kind      graph.Kind
	nameField string
}{
	{"characters", graph.KindCharacter, "name"},
	{"locations", graph.KindLocation, "name"},
	{"scenes", graph.KindScene, "title"},
	{"stories", graph.KindStory, "title"},
	{"themes", graph.KindTheme, "name"},
	{"plot_points", graph.KindPlotPoint, "title"},
	{"world_elements", graph.KindWorldElement, "name"},
}

type extractionResult struct {
	Entities      map[string]json.RawMessage `json:"entities"`
	Relationships []rawRelationship          `json:"relationships"`
}

type rawRelationship struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type rawTag struct {
	Category    string `json:"category"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// Extract runs the structured extraction call for one document and merges
// the deterministically parsed tags into the result. The document's own
// classification seeds a candidate for the primary entity even when the
// model misses it.
func (e *Extractor) Extract(ctx context.Context, doc Document) (*Result, error) {
	prompt := fmt.Sprintf(extractionPrompt, contextLine(doc), doc.Content)

	resp, err := e.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "You are an expert at analyzing creative writing text to extract entities and relationships for a knowledge graph database."},
			{Role: "user", Content: prompt},
		},
		Temperature:    0.1,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return nil, fmt.Errorf("extraction chat: %w", err)
	}

	jsonStr, err := extractJSON(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnusableOutput, err)
	}

	var raw extractionResult
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnusableOutput, err)
	}

	result := &Result{}
	kindByNorm := map[string]graph.Kind{}

	for _, g := range groupKinds {
		data, ok := raw.Entities[g.group]
		if !ok {
			continue
		}
		var items []map[string]any
		if err := json.Unmarshal(data, &items); err != nil {
			slog.Warn("extract: skipping malformed entity group",
				"path", doc.Path, "group", g.group, "error", err)
			continue
		}
		for _, item := range items {
			cand, ok := candidateFrom(g.kind, g.nameField, item, doc.Path)
			if !ok {
				continue
			}
			result.Candidates = append(result.Candidates, cand)
			kindByNorm[graph.Normalize(cand.Name)] = g.kind
		}
	}

	tagCandidates := e.tagCandidates(raw.Entities["tags"], doc)
	result.Candidates = append(result.Candidates, tagCandidates...)
	for _, tc := range tagCandidates {
		kindByNorm[graph.Normalize(tc.Name)] = graph.KindTag
	}

	for _, rel := range raw.Relationships {
		from, to := strings.TrimSpace(rel.From), strings.TrimSpace(rel.To)
		if from == "" || to == "" {
			continue
		}
		relType, known := graph.CoerceRelType(rel.Type)
		if !known {
			slog.Warn("extract: unknown relationship type",
				"path", doc.Path, "type", rel.Type, "coerced", relType)
		}
		cr := graph.CandidateRel{
			SourceKind: endpointKind(kindByNorm, from),
			SourceName: from,
			Type:       relType,
			TargetKind: endpointKind(kindByNorm, to),
			TargetName: to,
		}
		if rel.Description != "" {
			cr.Props = map[string]any{"description": rel.Description}
		}
		result.Rels = append(result.Rels, cr)
	}

	e.attachParsedTags(doc, result)

	slog.Info("extract: document extracted",
		"path", doc.Path, "candidates", len(result.Candidates), "relationships", len(result.Rels))
	return result, nil
}

// TagsOnly handles unclassified free text without touching the completion
// service: the parsed @category:value tags become canonical Tag candidates
// and nothing else is extracted.
func (e *Extractor) TagsOnly(doc Document) *Result {
	result := &Result{}
	seen := map[string]bool{}
	for _, t := range doc.Tags {
		name := t.Category + ":" + t.Value
		if seen[graph.Normalize(name)] {
			continue
		}
		seen[graph.Normalize(name)] = true
		result.Candidates = append(result.Candidates, graph.Candidate{
			Kind:       graph.KindTag,
			Name:       name,
			Props:      map[string]any{"category": t.Category, "value": t.Value},
			SourcePath: doc.Path,
		})
	}
	return result
}

// candidateFrom builds one candidate from a decoded entity object. Fields
// outside the kind's registered schema are dropped with a warning; null
// values are omitted rather than stored.
func candidateFrom(kind graph.Kind, nameField string, item map[string]any, path string) (graph.Candidate, bool) {
	name, _ := item[nameField].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		slog.Warn("extract: dropping unnamed entity", "path", path, "kind", kind)
		return graph.Candidate{}, false
	}

	allowed := map[string]bool{}
	for _, f := range graph.FieldsFor(kind) {
		allowed[f] = true
	}

	props := map[string]any{}
	for field, val := range item {
		if field == nameField || val == nil {
			continue
		}
		if !allowed[field] {
			slog.Warn("extract: dropping field outside schema",
				"path", path, "kind", kind, "entity", name, "field", field)
			continue
		}
		props[field] = val
	}

	return graph.Candidate{
		Kind:       kind,
		Name:       name,
		Props:      props,
		SourcePath: path,
	}, true
}

// tagCandidates decodes the model's tag group into canonical Tag candidates.
func (e *Extractor) tagCandidates(data json.RawMessage, doc Document) []graph.Candidate {
	if data == nil {
		return nil
	}
	var items []rawTag
	if err := json.Unmarshal(data, &items); err != nil {
		slog.Warn("extract: skipping malformed tag group", "path", doc.Path, "error", err)
		return nil
	}

	var out []graph.Candidate
	for _, t := range items {
		category, value := strings.TrimSpace(t.Category), strings.TrimSpace(t.Value)
		if category == "" || value == "" {
			continue
		}
		props := map[string]any{"category": category, "value": value}
		if t.Description != "" {
			props["description"] = t.Description
		}
		out = append(out, graph.Candidate{
			Kind:       graph.KindTag,
			Name:       category + ":" + value,
			Props:      props,
			SourcePath: doc.Path,
		})
	}
	return out
}

// attachParsedTags folds the deterministically parsed @category:value tags
// into the result. Parsed tags always win over anything the model did or
// did not find, and each one is linked to the document's primary entity
// with a HAS relationship.
func (e *Extractor) attachParsedTags(doc Document, result *Result) {
	if len(doc.Tags) == 0 {
		return
	}

	seen := map[string]bool{}
	for _, c := range result.Candidates {
		if c.Kind == graph.KindTag {
			seen[graph.Normalize(c.Name)] = true
		}
	}

	primary := primaryEntity(doc, result.Candidates)

	for _, t := range doc.Tags {
		name := t.Category + ":" + t.Value
		if !seen[graph.Normalize(name)] {
			result.Candidates = append(result.Candidates, graph.Candidate{
				Kind:       graph.KindTag,
				Name:       name,
				Props:      map[string]any{"category": t.Category, "value": t.Value},
				SourcePath: doc.Path,
			})
			seen[graph.Normalize(name)] = true
		}
		if primary != nil {
			result.Rels = append(result.Rels, graph.CandidateRel{
				SourceKind: primary.Kind,
				SourceName: primary.Name,
				Type:       graph.RelHas,
				TargetKind: graph.KindTag,
				TargetName: name,
				Props:      map[string]any{"mentions": t.Mentions},
			})
		}
	}

	if primary == nil {
		slog.Warn("extract: tags found but no primary entity to attach them to",
			"path", doc.Path, "tags", len(doc.Tags))
	}
}

// primaryEntity picks the entity a document is about: the first candidate
// matching the document's classified kind, falling back to the first
// character.
func primaryEntity(doc Document, candidates []graph.Candidate) *graph.Candidate {
	for i := range candidates {
		if candidates[i].Kind == doc.Kind {
			return &candidates[i]
		}
	}
	for i := range candidates {
		if candidates[i].Kind == graph.KindCharacter {
			return &candidates[i]
		}
	}
	return nil
}

// endpointKind resolves a relationship endpoint name to the kind of an
// entity extracted from the same document. Unmatched endpoints stay
// Unknown so the resolver can stub them.
func endpointKind(kindByNorm map[string]graph.Kind, name string) graph.Kind {
	if strings.Contains(name, ":") {
		return graph.KindTag
	}
	if k, ok := kindByNorm[graph.Normalize(name)]; ok {
		return k
	}
	return graph.KindUnknown
}

func contextLine(doc Document) string {
	if doc.Kind == "" || doc.Kind == graph.KindUnknown {
		return fmt.Sprintf("Document %s from a writer's working notes.", doc.Path)
	}
	return fmt.Sprintf("Document %s, classified as a %s document, from a writer's working notes.", doc.Path, doc.Kind)
}

// codeBlockRe strips markdown code fences from model output.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// extractJSON finds a JSON object in the model response, tolerating code
// fences and prose before or after the object.
func extractJSON(raw string) (string, error) {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}

	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		return raw, nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], nil
	}

	return "", fmt.Errorf("no JSON object found in response")
}
