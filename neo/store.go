// Package neo implements the graph store on Neo4j. Node identity is the
// (label, normalized name) pair; every write is a MERGE on that identity
// so reprocessing a document can never duplicate a node or an edge.
package neo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/mwestrom/plotline/graph"
)

// Config holds the Neo4j connection settings.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// Store is a graph.Store backed by Neo4j.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ graph.Store = (*Store)(nil)

// New connects to Neo4j, verifies connectivity, and ensures the identity
// constraints exist for every registered kind.
func New(ctx context.Context, cfg Config) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("verifying neo4j connectivity: %w", err)
	}

	s := &Store{driver: driver, database: cfg.Database}
	if err := s.ensureConstraints(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}
	slog.Info("neo: connected", "uri", cfg.URI, "database", cfg.Database)
	return s, nil
}

// Close releases the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping verifies the connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// ensureConstraints creates a uniqueness constraint on the normalized name
// for each registered kind, including Unknown for stubs.
func (s *Store) ensureConstraints(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	kinds := append(graph.Kinds(), graph.KindUnknown)
	for _, kind := range kinds {
		query := fmt.Sprintf(
			"CREATE CONSTRAINT IF NOT EXISTS FOR (n:`%s`) REQUIRE n.norm IS UNIQUE", kind)
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("creating constraint for %s: %w", kind, err)
		}
	}
	return nil
}

// FindNodes matches nodes of a kind by normalized name or normalized alias.
func (s *Store) FindNodes(ctx context.Context, kind graph.Kind, norm string) ([]graph.Node, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (n:`+"`%s`"+`)
		WHERE n.norm = $norm OR $norm IN coalesce(n.aliases_norm, [])
		RETURN n
		ORDER BY n.name`, kind)

	result, err := session.Run(ctx, query, map[string]any{"norm": norm})
	if err != nil {
		return nil, fmt.Errorf("finding %s %q: %w", kind, norm, err)
	}

	var nodes []graph.Node
	for result.Next(ctx) {
		value, ok := result.Record().Get("n")
		if !ok {
			continue
		}
		dbNode, ok := value.(neo4j.Node)
		if !ok {
			continue
		}
		nodes = append(nodes, nodeFromProps(kind, dbNode.Props))
	}
	return nodes, result.Err()
}

// UpsertNode merges the node on its identity and replaces its properties.
func (s *Store) UpsertNode(ctx context.Context, n graph.Node) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MERGE (n:`+"`%s`"+` {norm: $norm})
		ON CREATE SET n.created_at = $created_at
		SET n.name = $name,
		    n.aliases = $aliases,
		    n.aliases_norm = $aliases_norm,
		    n.source_path = $source_path,
		    n.updated_at = $updated_at,
		    n += $props`, n.Kind)

	aliasesNorm := make([]string, len(n.Aliases))
	for i, a := range n.Aliases {
		aliasesNorm[i] = graph.Normalize(a)
	}

	_, err := session.Run(ctx, query, map[string]any{
		"norm":         n.Key().Norm,
		"name":         n.Name,
		"aliases":      n.Aliases,
		"aliases_norm": aliasesNorm,
		"source_path":  n.SourcePath,
		"created_at":   timeString(n.CreatedAt),
		"updated_at":   timeString(n.UpdatedAt),
		"props":        flattenProps(n.Props),
	})
	if err != nil {
		return fmt.Errorf("upserting %s %q: %w", n.Kind, n.Name, err)
	}
	return nil
}

// UpsertEdge merges the relationship on its (source, type, target) triple.
func (s *Store) UpsertEdge(ctx context.Context, e graph.Edge) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	// Labels and relationship types come from the closed registry, never
	// from model output, so interpolating them is safe.
	query := fmt.Sprintf(`
		MATCH (s:`+"`%s`"+` {norm: $source_norm})
		MATCH (t:`+"`%s`"+` {norm: $target_norm})
		MERGE (s)-[r:`+"`%s`"+`]->(t)
		SET r += $props`,
		e.Source.Kind, e.Target.Kind, e.Type)

	_, err := session.Run(ctx, query, map[string]any{
		"source_norm": e.Source.Norm,
		"target_norm": e.Target.Norm,
		"props":       flattenProps(e.Props),
	})
	if err != nil {
		return fmt.Errorf("upserting edge %s-[%s]->%s: %w", e.Source, e.Type, e.Target, err)
	}
	return nil
}

// Run executes a read query and returns each record as a map.
func (s *Store) Run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	for result.Next(ctx) {
		rows = append(rows, result.Record().AsMap())
	}
	return rows, result.Err()
}

// Reset removes every node and relationship. Only the reset command calls
// this, after typed confirmation.
func (s *Store) Reset(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	if _, err := session.Run(ctx, "MATCH (n) DETACH DELETE n", nil); err != nil {
		return fmt.Errorf("resetting graph: %w", err)
	}
	slog.Warn("neo: graph wiped")
	return nil
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

// reserved are node properties managed by the store itself, not part of
// the kind's attribute schema.
var reserved = map[string]bool{
	"norm": true, "name": true, "aliases": true, "aliases_norm": true,
	"source_path": true, "created_at": true, "updated_at": true,
}

func nodeFromProps(kind graph.Kind, props map[string]any) graph.Node {
	n := graph.Node{
		Kind:  kind,
		Props: map[string]any{},
	}
	for k, v := range props {
		switch k {
		case "name":
			n.Name, _ = v.(string)
		case "aliases":
			n.Aliases = stringList(v)
		case "source_path":
			n.SourcePath, _ = v.(string)
		case "created_at":
			n.CreatedAt = parseTime(v)
		case "updated_at":
			n.UpdatedAt = parseTime(v)
		default:
			if !reserved[k] {
				n.Props[k] = v
			}
		}
	}
	return n
}

// flattenProps drops nil values so absent attributes stay absent in the
// database instead of becoming nulls.
func flattenProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
