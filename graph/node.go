package graph

import (
	"fmt"
	"strings"
	"time"
)

// Node is a typed entity in the knowledge graph. Identity is
// (Kind, Normalize(Name)); Tag nodes are additionally identified by their
// category/value properties.
type Node struct {
	Kind       Kind           `json:"kind"`
	Name       string         `json:"name"`
	Aliases    []string       `json:"aliases,omitempty"`
	Props      map[string]any `json:"props,omitempty"`
	SourcePath string         `json:"source_path,omitempty"`
	CreatedAt  time.Time      `json:"created_at,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at,omitempty"`
}

// Key returns the node's identity key.
func (n Node) Key() Key {
	return Key{Kind: n.Kind, Norm: Normalize(n.Name)}
}

// Key identifies a node within the graph.
type Key struct {
	Kind Kind
	Norm string
}

func (k Key) String() string {
	return string(k.Kind) + "/" + k.Norm
}

// Edge is a typed directed relationship between two nodes. Edges are
// idempotent on (Source, Type, Target); re-upserting the same triple
// updates properties instead of creating a duplicate.
type Edge struct {
	Source Key            `json:"source"`
	Type   RelType        `json:"type"`
	Target Key            `json:"target"`
	Props  map[string]any `json:"props,omitempty"`
}

// TagNode builds the canonical Tag node for a (category, value) pair.
// Every document mentioning @power:hardening resolves to this same node.
func TagNode(category, value string) Node {
	category = strings.ToLower(strings.TrimSpace(category))
	value = strings.ToLower(strings.TrimSpace(value))
	return Node{
		Kind: KindTag,
		Name: category + ":" + value,
		Props: map[string]any{
			"category": category,
			"value":    value,
		},
	}
}

// Candidate is an entity produced by the extraction stage, before
// resolution against the existing graph.
type Candidate struct {
	Kind       Kind
	Name       string
	Props      map[string]any
	SourcePath string
}

// CandidateRel is a relationship produced by the extraction stage. Target
// kind may be KindUnknown when the text mentions an entity that was never
// independently profiled.
type CandidateRel struct {
	SourceKind Kind
	SourceName string
	Type       RelType
	TargetKind Kind
	TargetName string
	Props      map[string]any
}

// honorifics and articles stripped during name normalization.
var honorifics = []string{"mr", "mrs", "ms", "miss", "dr", "prof", "sir", "lady", "lord", "captain"}
var articles = []string{"the", "a", "an"}

// Normalize produces the case-insensitive match key for a name: case-fold,
// trim, strip a leading honorific or article, collapse inner whitespace.
func Normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.Join(strings.Fields(s), " ")

	for _, h := range honorifics {
		if cut, ok := strings.CutPrefix(s, h+". "); ok {
			s = cut
			break
		}
		if cut, ok := strings.CutPrefix(s, h+" "); ok {
			s = cut
			break
		}
	}
	for _, a := range articles {
		if cut, ok := strings.CutPrefix(s, a+" "); ok {
			s = cut
			break
		}
	}
	return strings.TrimSpace(s)
}

// ResolutionConflict is returned when a candidate matches more than one
// existing node and no safe merge target exists. The document must be
// reviewed by a human; the pipeline never auto-resolves ambiguity.
type ResolutionConflict struct {
	Kind       Kind
	Name       string
	Candidates []string
}

func (e *ResolutionConflict) Error() string {
	return fmt.Sprintf("plotline: ambiguous match for %s %q (candidates: %s)",
		e.Kind, e.Name, strings.Join(e.Candidates, ", "))
}
