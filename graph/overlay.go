package graph

import (
	"context"
	"sort"
)

// overlayStore buffers writes in memory over a read-only view of a base
// store. Batch dry runs resolve through it so a document later in the
// batch sees the nodes earlier documents would have written, and the
// reported diffs match what a sequential real run performs.
type overlayStore struct {
	base Store
	mem  *MemoryStore
}

// Batch returns a resolver whose writes land in a memory overlay on top
// of the same store. Applying through it mutates only the overlay.
func (r *Resolver) Batch() *Resolver {
	return &Resolver{store: &overlayStore{base: r.store, mem: NewMemoryStore()}}
}

// FindNodes merges base and overlay matches. An overlay node shadows the
// base node with the same identity: it carries that node's pending merge.
func (o *overlayStore) FindNodes(ctx context.Context, kind Kind, norm string) ([]Node, error) {
	base, err := o.base.FindNodes(ctx, kind, norm)
	if err != nil {
		return nil, err
	}
	local, err := o.mem.FindNodes(ctx, kind, norm)
	if err != nil {
		return nil, err
	}

	out := local
	seen := make(map[Key]bool, len(local))
	for _, n := range local {
		seen[n.Key()] = true
	}
	for _, n := range base {
		if !seen[n.Key()] {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (o *overlayStore) UpsertNode(ctx context.Context, n Node) error {
	return o.mem.UpsertNode(ctx, n)
}

func (o *overlayStore) UpsertEdge(ctx context.Context, e Edge) error {
	return o.mem.UpsertEdge(ctx, e)
}

// Run delegates to the base store; the query path is read-only.
func (o *overlayStore) Run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	return o.base.Run(ctx, query, params)
}

func (o *overlayStore) Ping(ctx context.Context) error {
	return o.base.Ping(ctx)
}
