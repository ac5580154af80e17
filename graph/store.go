package graph

import "context"

// Store is the property-graph service the pipeline writes to and queries.
// Implementations must make UpsertNode and UpsertEdge idempotent: upserting
// the same node identity or the same (source, type, target) triple twice
// leaves the graph in the same state as upserting it once, and a node upsert
// with its property writes is atomic from the caller's perspective.
//
// The resolver is the only ingestion-path caller of the upsert methods; the
// query path only calls Run with read-only queries.
type Store interface {
	// FindNodes returns all nodes of the given kind whose normalized name
	// or any recorded alias matches norm.
	FindNodes(ctx context.Context, kind Kind, norm string) ([]Node, error)

	// UpsertNode creates the node or replaces its properties atomically.
	UpsertNode(ctx context.Context, n Node) error

	// UpsertEdge creates the edge or updates its properties. Both endpoints
	// must already exist.
	UpsertEdge(ctx context.Context, e Edge) error

	// Run executes a query in the store's query language and returns rows
	// as column-name to value mappings.
	Run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
