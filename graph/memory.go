package graph

import (
	"context"
	"sort"
	"strings"
)

// MemoryStore is an in-process Store used by tests and by dry-run style
// tooling. It implements the same idempotency contract as the Neo4j store:
// nodes keyed by (kind, normalized name), edges keyed by the
// (source, type, target) triple.
//
// Run understands nothing of Cypher; tests script its results through
// RunFunc, and every executed query string is recorded.
type MemoryStore struct {
	nodes map[Key]Node
	edges map[string]Edge

	// RunFunc, when set, handles Run calls. Tests script query results
	// through it.
	RunFunc func(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)

	// Executed records every query string passed to Run.
	Executed []string
}

// NewMemoryStore creates an empty in-memory graph.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[Key]Node),
		edges: make(map[string]Edge),
	}
}

// FindNodes matches by normalized name or alias within a kind.
func (m *MemoryStore) FindNodes(ctx context.Context, kind Kind, norm string) ([]Node, error) {
	var out []Node
	for key, n := range m.nodes {
		if key.Kind != kind {
			continue
		}
		if key.Norm == norm {
			out = append(out, n)
			continue
		}
		for _, alias := range n.Aliases {
			if Normalize(alias) == norm {
				out = append(out, n)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpsertNode stores the node under its identity key, replacing any prior
// version atomically. Aliases recorded on the prior version survive.
func (m *MemoryStore) UpsertNode(ctx context.Context, n Node) error {
	key := n.Key()
	if prior, ok := m.nodes[key]; ok {
		if len(n.Aliases) == 0 {
			n.Aliases = prior.Aliases
		}
		if n.CreatedAt.IsZero() || prior.CreatedAt.Before(n.CreatedAt) {
			n.CreatedAt = prior.CreatedAt
		}
	}
	m.nodes[key] = n
	return nil
}

// UpsertEdge stores the edge keyed by its triple; a repeat upsert replaces
// properties and never duplicates the edge.
func (m *MemoryStore) UpsertEdge(ctx context.Context, e Edge) error {
	m.edges[edgeKey(e)] = e
	return nil
}

// Reset drops every node and edge.
func (m *MemoryStore) Reset(ctx context.Context) error {
	m.nodes = make(map[Key]Node)
	m.edges = make(map[string]Edge)
	return nil
}

// Run dispatches to RunFunc when present.
func (m *MemoryStore) Run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	m.Executed = append(m.Executed, query)
	if m.RunFunc != nil {
		return m.RunFunc(ctx, query, params)
	}
	return nil, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// Node returns the stored node for a key, if any.
func (m *MemoryStore) Node(kind Kind, name string) (Node, bool) {
	n, ok := m.nodes[Key{Kind: kind, Norm: Normalize(name)}]
	return n, ok
}

// SetAliases records aliases on an existing node (administrative operation;
// the pipeline itself never invents aliases).
func (m *MemoryStore) SetAliases(kind Kind, name string, aliases ...string) {
	key := Key{Kind: kind, Norm: Normalize(name)}
	if n, ok := m.nodes[key]; ok {
		n.Aliases = aliases
		m.nodes[key] = n
	}
}

// Nodes returns all stored nodes sorted by key.
func (m *MemoryStore) Nodes() []Node {
	out := make([]Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out
}

// Edges returns all stored edges sorted by triple.
func (m *MemoryStore) Edges() []Edge {
	out := make([]Edge, 0, len(m.edges))
	for _, e := range m.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return edgeKey(out[i]) < edgeKey(out[j]) })
	return out
}

// EdgesFrom returns edges of a given type leaving the named node.
func (m *MemoryStore) EdgesFrom(kind Kind, name string, relType RelType) []Edge {
	src := Key{Kind: kind, Norm: Normalize(name)}
	var out []Edge
	for _, e := range m.edges {
		if e.Source == src && e.Type == relType {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return edgeKey(out[i]) < edgeKey(out[j]) })
	return out
}

func edgeKey(e Edge) string {
	return strings.Join([]string{e.Source.String(), string(e.Type), e.Target.String()}, "|")
}
