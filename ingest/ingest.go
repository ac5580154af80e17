// Package ingest orchestrates the pipeline: parse, classify, tag, extract,
// resolve, then file the source away. Documents are processed one at a
// time in sorted path order so merge precedence inside a batch is
// deterministic.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mwestrom/plotline/classify"
	"github.com/mwestrom/plotline/extract"
	"github.com/mwestrom/plotline/graph"
	"github.com/mwestrom/plotline/ledger"
	"github.com/mwestrom/plotline/parser"
	"github.com/mwestrom/plotline/tag"
)

// Catalog is the slice of the ledger the orchestrator writes to.
type Catalog interface {
	RecordDocument(ctx context.Context, doc ledger.Document) error
	SeenUnchanged(ctx context.Context, path, hash string) (bool, error)
	StartBatch(ctx context.Context) (string, error)
	FinishBatch(ctx context.Context, id string, processed, failed, skipped int) error
}

// Result is the per-document outcome of a batch.
type Result struct {
	Path         string      `json:"path"`
	ArchivedPath string      `json:"archived_path,omitempty"`
	Kind         graph.Kind  `json:"kind"`
	Status       string      `json:"status"`
	Detail       string      `json:"detail,omitempty"`
	Diff         *graph.Diff `json:"diff,omitempty"`
}

// Report summarizes a batch run.
type Report struct {
	BatchID   string   `json:"batch_id,omitempty"`
	Results   []Result `json:"results"`
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
}

// kindDirs maps each kind to the directory processed files are filed
// under. Anything unclassified lands in research for manual sorting.
var kindDirs = map[graph.Kind]string{
	graph.KindCharacter:    "characters",
	graph.KindLocation:     "locations",
	graph.KindScene:        "scenes",
	graph.KindStory:        "stories",
	graph.KindTheme:        "themes",
	graph.KindPlotPoint:    "plot",
	graph.KindWorldElement: "worldbuilding",
}

const researchDir = "research"

// Orchestrator runs the ingestion pipeline over a drafts directory.
type Orchestrator struct {
	parsers   *parser.Registry
	extractor *extract.Extractor
	resolver  *graph.Resolver
	catalog   Catalog

	draftsDir  string
	contentDir string
}

// New creates an orchestrator. draftsDir is scanned for input; processed
// files move under contentDir by kind.
func New(parsers *parser.Registry, ex *extract.Extractor, res *graph.Resolver, cat Catalog, draftsDir, contentDir string) *Orchestrator {
	return &Orchestrator{
		parsers:    parsers,
		extractor:  ex,
		resolver:   res,
		catalog:    cat,
		draftsDir:  draftsDir,
		contentDir: contentDir,
	}
}

// ProcessAll ingests every supported file in the drafts directory. One
// document's failure never stops the batch; the report carries a result
// per file.
func (o *Orchestrator) ProcessAll(ctx context.Context) (*Report, error) {
	paths, err := o.draftPaths()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	if len(paths) == 0 {
		slog.Info("ingest: no drafts to process", "dir", o.draftsDir)
		return report, nil
	}

	batchID, err := o.catalog.StartBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting batch: %w", err)
	}
	report.BatchID = batchID

	for _, path := range paths {
		res := o.processOne(ctx, path, batchID)
		report.Results = append(report.Results, res)
		switch res.Status {
		case ledger.StatusProcessed:
			report.Processed++
		case ledger.StatusSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}

	if err := o.catalog.FinishBatch(ctx, batchID, report.Processed, report.Failed, report.Skipped); err != nil {
		slog.Warn("ingest: finishing batch failed", "batch", batchID, "error", err)
	}

	slog.Info("ingest: batch complete",
		"batch", batchID, "processed", report.Processed, "failed", report.Failed, "skipped", report.Skipped)
	return report, nil
}

// Preview runs the pipeline without writing: no graph mutations, no file
// moves, no ledger rows. The diffs show exactly what ProcessAll would do:
// documents resolve against a batch overlay, so a later draft that
// mentions an entity an earlier draft introduces is reported as an update,
// not a second create.
func (o *Orchestrator) Preview(ctx context.Context) (*Report, error) {
	paths, err := o.draftPaths()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	batch := o.resolver.Batch()
	for _, path := range paths {
		res := o.previewOne(ctx, batch, path)
		report.Results = append(report.Results, res)
		switch res.Status {
		case ledger.StatusProcessed:
			report.Processed++
		case ledger.StatusSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}
	return report, nil
}

// ProcessFile ingests a single file outside a batch.
func (o *Orchestrator) ProcessFile(ctx context.Context, path string) (Result, error) {
	if _, err := os.Stat(path); err != nil {
		return Result{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return o.processOne(ctx, path, ""), nil
}

func (o *Orchestrator) draftPaths() ([]string, error) {
	entries, err := os.ReadDir(o.draftsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading drafts dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(o.draftsDir, e.Name())
		if !o.parsers.Supported(path) {
			slog.Debug("ingest: skipping unsupported file", "path", path)
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// prepared is the deterministic front half of the pipeline, shared by
// processing and preview.
type prepared struct {
	content string
	hash    string
	verdict classify.Verdict
	kind    graph.Kind
	tags    []tag.Tag
}

func (o *Orchestrator) prepare(ctx context.Context, path string) (*prepared, error) {
	content, err := o.parsers.Parse(ctx, path)
	if err != nil {
		return nil, err
	}

	verdict := classify.Classify(filepath.Base(path), content)
	kind := verdict.Kind
	if kind == classify.Unclassified {
		kind = graph.KindUnknown
	}

	return &prepared{
		content: content,
		hash:    ledger.HashContent(content),
		verdict: verdict,
		kind:    kind,
		tags:    tag.Parse(content),
	}, nil
}

// extract runs the completion-backed extractor, except for unclassified
// free text: that is tag-parsed only, keeping the expensive stage off
// documents with no structured fields.
func (o *Orchestrator) extract(ctx context.Context, path string, p *prepared) (*extract.Result, error) {
	doc := extract.Document{
		Path:    path,
		Kind:    p.kind,
		Content: p.content,
		Tags:    p.tags,
	}
	if p.verdict.Kind == classify.Unclassified {
		return o.extractor.TagsOnly(doc), nil
	}
	return o.extractor.Extract(ctx, doc)
}

func (o *Orchestrator) processOne(ctx context.Context, path, batchID string) Result {
	res := Result{Path: path}
	slog.Info("ingest: processing document", "path", path)

	p, err := o.prepare(ctx, path)
	if err != nil {
		return o.record(ctx, res, p, batchID, ledger.StatusExtractionFailed, err.Error())
	}
	res.Kind = p.verdict.Kind

	seen, err := o.catalog.SeenUnchanged(ctx, path, p.hash)
	if err != nil {
		slog.Warn("ingest: skip check failed, reprocessing", "path", path, "error", err)
	}
	if seen {
		res.Status = ledger.StatusSkipped
		res.Detail = "content unchanged since last processing"
		slog.Info("ingest: skipping unchanged document", "path", path)
		return res
	}

	extracted, err := o.extract(ctx, path, p)
	if err != nil {
		return o.record(ctx, res, p, batchID, ledger.StatusExtractionFailed, err.Error())
	}

	diff, err := o.resolver.ApplyAll(ctx, extracted.Candidates, extracted.Rels)
	if err != nil {
		var conflict *graph.ResolutionConflict
		if errors.As(err, &conflict) {
			return o.record(ctx, res, p, batchID, ledger.StatusConflict, conflict.Error())
		}
		return o.record(ctx, res, p, batchID, ledger.StatusExtractionFailed, err.Error())
	}
	res.Diff = diff

	archived, err := o.archive(path, p)
	if err != nil {
		// The graph write already happened; keep the file where it is
		// and surface the move failure without failing the document.
		slog.Warn("ingest: archiving failed, leaving file in drafts", "path", path, "error", err)
	} else {
		res.ArchivedPath = archived
	}

	return o.record(ctx, res, p, batchID, ledger.StatusProcessed, "")
}

func (o *Orchestrator) previewOne(ctx context.Context, batch *graph.Resolver, path string) Result {
	res := Result{Path: path}

	p, err := o.prepare(ctx, path)
	if err != nil {
		res.Status = ledger.StatusExtractionFailed
		res.Detail = err.Error()
		return res
	}
	res.Kind = p.verdict.Kind

	seen, err := o.catalog.SeenUnchanged(ctx, path, p.hash)
	if err == nil && seen {
		res.Status = ledger.StatusSkipped
		res.Detail = "content unchanged since last processing"
		return res
	}

	extracted, err := o.extract(ctx, path, p)
	if err != nil {
		res.Status = ledger.StatusExtractionFailed
		res.Detail = err.Error()
		return res
	}

	// Applying writes only the batch overlay, never the backing store.
	diff, err := batch.ApplyAll(ctx, extracted.Candidates, extracted.Rels)
	if err != nil {
		var conflict *graph.ResolutionConflict
		if errors.As(err, &conflict) {
			res.Status = ledger.StatusConflict
			res.Detail = conflict.Error()
			return res
		}
		res.Status = ledger.StatusExtractionFailed
		res.Detail = err.Error()
		return res
	}

	res.Status = ledger.StatusProcessed
	res.Diff = diff
	return res
}

// record writes the catalog row and fills the result. Failed documents
// stay in the drafts directory and are flagged for review.
func (o *Orchestrator) record(ctx context.Context, res Result, p *prepared, batchID, status, detail string) Result {
	res.Status = status
	res.Detail = detail

	doc := ledger.Document{
		Path:         res.Path,
		Filename:     filepath.Base(res.Path),
		Kind:         string(res.Kind),
		Status:       status,
		Detail:       detail,
		ArchivedPath: res.ArchivedPath,
		NeedsReview:  status == ledger.StatusConflict || status == ledger.StatusExtractionFailed,
		BatchID:      batchID,
	}
	if res.Kind == "" {
		doc.Kind = string(classify.Unclassified)
	}
	if p != nil {
		doc.ContentHash = p.hash
	}

	if err := o.catalog.RecordDocument(ctx, doc); err != nil {
		slog.Warn("ingest: recording document failed", "path", res.Path, "error", err)
	}

	if status != ledger.StatusProcessed {
		slog.Warn("ingest: document not processed", "path", res.Path, "status", status, "detail", detail)
	}
	return res
}

// archive moves a processed file out of drafts into the directory for its
// kind, renaming it after the document title and suffixing on collision.
func (o *Orchestrator) archive(path string, p *prepared) (string, error) {
	dir, ok := kindDirs[p.verdict.Kind]
	if !ok {
		dir = researchDir
	}
	targetDir := filepath.Join(o.contentDir, dir)
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return "", fmt.Errorf("creating %s: %w", targetDir, err)
	}

	filename := classify.Filename(filepath.Base(path), p.content)
	target := filepath.Join(targetDir, filename)

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
			break
		}
		target = filepath.Join(targetDir, fmt.Sprintf("%s_%d%s", stem, counter, ext))
	}

	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("moving %s: %w", path, err)
	}
	slog.Info("ingest: document filed", "from", path, "to", target)
	return target, nil
}
