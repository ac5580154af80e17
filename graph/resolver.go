package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Diff describes the graph mutations a document implies: nodes that would
// be created, nodes that would be updated (shown post-merge), and edges
// that would be added or refreshed. A dry run reports the Diff without
// writing; Apply reports the same Diff after writing it.
type Diff struct {
	Creates []Node `json:"creates,omitempty"`
	Updates []Node `json:"updates,omitempty"`
	Edges   []Edge `json:"edges,omitempty"`
}

// Resolver matches candidate entities against the existing graph and owns
// the single upsert boundary: Apply is the only place nodes and edges are
// written during ingestion, which is what keeps reprocessing idempotent.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver over the given graph store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Plan computes the would-be Diff for a candidate and its relationships
// without touching the store's write path. Used by dry runs.
func (r *Resolver) Plan(ctx context.Context, cand Candidate, rels []CandidateRel) (*Diff, error) {
	return r.resolve(ctx, []Candidate{cand}, rels, false)
}

// PlanAll is Plan over every candidate a document produced, sharing one
// resolution scope so relationships between them land on the right nodes.
func (r *Resolver) PlanAll(ctx context.Context, cands []Candidate, rels []CandidateRel) (*Diff, error) {
	return r.resolve(ctx, cands, rels, false)
}

// Apply resolves the candidate and writes the resulting nodes and edges.
// Returns the Diff that was applied.
func (r *Resolver) Apply(ctx context.Context, cand Candidate, rels []CandidateRel) (*Diff, error) {
	return r.resolve(ctx, []Candidate{cand}, rels, true)
}

// ApplyAll is Apply over every candidate a document produced. Planning
// completes before any write, so a conflict anywhere in the document
// leaves the graph untouched.
func (r *Resolver) ApplyAll(ctx context.Context, cands []Candidate, rels []CandidateRel) (*Diff, error) {
	return r.resolve(ctx, cands, rels, true)
}

func (r *Resolver) resolve(ctx context.Context, cands []Candidate, rels []CandidateRel, write bool) (*Diff, error) {
	diff := &Diff{}
	now := time.Now().UTC()

	// planned tracks nodes already accounted for in this document so a
	// relationship endpoint does not re-create an already-planned entity.
	planned := map[Key]Node{}

	// Stubs minted for unresolvable endpoints inherit the document's
	// source path.
	var sourcePath string
	if len(cands) > 0 {
		sourcePath = cands[0].SourcePath
	}

	for _, cand := range cands {
		if _, err := r.planNode(ctx, cand, now, diff, planned); err != nil {
			return nil, err
		}
	}

	for _, rel := range rels {
		src, err := r.planEndpoint(ctx, rel.SourceKind, rel.SourceName, sourcePath, now, diff, planned)
		if err != nil {
			return nil, err
		}
		tgt, err := r.planEndpoint(ctx, rel.TargetKind, rel.TargetName, sourcePath, now, diff, planned)
		if err != nil {
			return nil, err
		}

		relType := rel.Type
		if !KnownRelType(relType) {
			coerced, _ := CoerceRelType(string(relType))
			slog.Warn("resolver: unknown relationship type coerced",
				"type", relType, "coerced", coerced, "source", rel.SourceName, "target", rel.TargetName)
			relType = coerced
		}

		diff.Edges = append(diff.Edges, Edge{
			Source: src,
			Type:   relType,
			Target: tgt,
			Props:  rel.Props,
		})
	}

	if !write {
		return diff, nil
	}

	for _, n := range diff.Creates {
		if err := r.store.UpsertNode(ctx, n); err != nil {
			return nil, fmt.Errorf("creating %s %q: %w", n.Kind, n.Name, err)
		}
	}
	for _, n := range diff.Updates {
		if err := r.store.UpsertNode(ctx, n); err != nil {
			return nil, fmt.Errorf("updating %s %q: %w", n.Kind, n.Name, err)
		}
	}
	for _, e := range diff.Edges {
		if err := r.store.UpsertEdge(ctx, e); err != nil {
			return nil, fmt.Errorf("upserting edge %s-[%s]->%s: %w", e.Source, e.Type, e.Target, err)
		}
	}
	return diff, nil
}

// planNode resolves the primary candidate: exact normalized-name or alias
// match within the same kind, then merge or create. More than one match is
// an error the caller must surface, never a silent merge.
func (r *Resolver) planNode(ctx context.Context, cand Candidate, now time.Time, diff *Diff, planned map[Key]Node) (Key, error) {
	key := Key{Kind: cand.Kind, Norm: Normalize(cand.Name)}
	if n, ok := planned[key]; ok {
		return n.Key(), nil
	}

	matches, err := r.store.FindNodes(ctx, cand.Kind, key.Norm)
	if err != nil {
		return Key{}, fmt.Errorf("matching %s %q: %w", cand.Kind, cand.Name, err)
	}

	switch len(matches) {
	case 0:
		n := Node{
			Kind:       cand.Kind,
			Name:       cand.Name,
			Props:      copyProps(cand.Props),
			SourcePath: cand.SourcePath,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		diff.Creates = append(diff.Creates, n)
		planned[key] = n
		planned[n.Key()] = n
		return n.Key(), nil
	case 1:
		merged, changed := merge(matches[0], cand, now)
		if changed {
			diff.Updates = append(diff.Updates, merged)
		}
		planned[key] = merged
		planned[merged.Key()] = merged
		return merged.Key(), nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Name
		}
		return Key{}, &ResolutionConflict{Kind: cand.Kind, Name: cand.Name, Candidates: names}
	}
}

// planEndpoint resolves one end of a relationship. Tag endpoints resolve to
// the canonical Tag node; unknown mentions become Unknown stubs so the edge
// can still land somewhere reviewable.
func (r *Resolver) planEndpoint(ctx context.Context, kind Kind, name, sourcePath string, now time.Time, diff *Diff, planned map[Key]Node) (Key, error) {
	if kind == KindTag {
		return r.planTag(ctx, name, now, diff, planned)
	}

	key := Key{Kind: kind, Norm: Normalize(name)}
	if n, ok := planned[key]; ok {
		return n.Key(), nil
	}

	matches, err := r.store.FindNodes(ctx, kind, key.Norm)
	if err != nil {
		return Key{}, fmt.Errorf("resolving endpoint %s %q: %w", kind, name, err)
	}
	if len(matches) == 1 {
		planned[key] = matches[0]
		planned[matches[0].Key()] = matches[0]
		return matches[0].Key(), nil
	}
	if len(matches) > 1 {
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Name
		}
		return Key{}, &ResolutionConflict{Kind: kind, Name: name, Candidates: names}
	}

	// Unresolvable mention: create a placeholder stub of kind Unknown
	// unless the caller asserted a concrete kind for it.
	stubKind := kind
	if stubKind == "" {
		stubKind = KindUnknown
	}
	stub := Node{
		Kind:       stubKind,
		Name:       name,
		Props:      map[string]any{"stub": true},
		SourcePath: sourcePath,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	// A stub asserted with a concrete kind must not shadow future profiles;
	// only Unknown stubs carry the marker property.
	if stubKind != KindUnknown {
		stub.Props = map[string]any{}
	}
	diff.Creates = append(diff.Creates, stub)
	planned[key] = stub
	planned[stub.Key()] = stub
	return stub.Key(), nil
}

func (r *Resolver) planTag(ctx context.Context, name string, now time.Time, diff *Diff, planned map[Key]Node) (Key, error) {
	// name arrives as "category:value" from the tag parser.
	tag := tagFromName(name)
	key := tag.Key()
	if n, ok := planned[key]; ok {
		return n.Key(), nil
	}

	matches, err := r.store.FindNodes(ctx, KindTag, key.Norm)
	if err != nil {
		return Key{}, fmt.Errorf("resolving tag %q: %w", name, err)
	}
	if len(matches) > 0 {
		planned[key] = matches[0]
		return matches[0].Key(), nil
	}

	tag.CreatedAt = now
	tag.UpdatedAt = now
	diff.Creates = append(diff.Creates, tag)
	planned[key] = tag
	return tag.Key(), nil
}

func tagFromName(name string) Node {
	category, value := "", name
	for i := 0; i < len(name); i++ {
		if name[i] == ':' {
			category, value = name[:i], name[i+1:]
			break
		}
	}
	return TagNode(category, value)
}

// merge folds candidate attributes into an existing node. Non-null
// candidate fields fill missing fields; conflicting non-null fields are
// last-write-wins with the prior value kept as a history note.
func merge(existing Node, cand Candidate, now time.Time) (Node, bool) {
	merged := existing
	merged.Props = copyProps(existing.Props)
	if merged.Props == nil {
		merged.Props = map[string]any{}
	}

	changed := false
	for field, val := range cand.Props {
		if val == nil {
			continue
		}
		prior, ok := merged.Props[field]
		if !ok || prior == nil {
			merged.Props[field] = val
			changed = true
			continue
		}
		if fmt.Sprint(prior) == fmt.Sprint(val) {
			continue
		}
		merged.Props[field] = val
		merged.Props["history"] = appendHistory(merged.Props["history"],
			fmt.Sprintf("%s: %v (from %s)", field, prior, existing.SourcePath))
		changed = true
	}

	// A stub being profiled for the first time sheds its marker.
	if _, wasStub := merged.Props["stub"]; wasStub && changed {
		delete(merged.Props, "stub")
	}

	if changed {
		merged.SourcePath = cand.SourcePath
		merged.UpdatedAt = now
	}
	return merged, changed
}

func appendHistory(existing any, note string) []string {
	var history []string
	switch v := existing.(type) {
	case []string:
		history = v
	case []any:
		for _, e := range v {
			history = append(history, fmt.Sprint(e))
		}
	}
	return append(history, note)
}

func copyProps(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
