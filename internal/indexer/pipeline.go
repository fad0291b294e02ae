// Package indexer orchestrates a full indexing run: extract entries from the
// documentation pages, embed them in batches, upsert into the vector store
// and write the summary artifact.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bull/blender-mcp-server/internal/extractor"
	"github.com/bull/blender-mcp-server/internal/storage"
)

// IndexResult contains statistics about an indexing run.
type IndexResult struct {
	TotalPages   int
	FailedPages  []FailedPage
	TotalEntries int
	Modules      []string
	Duration     time.Duration
}

// FailedPage records a page that could not be extracted.
type FailedPage struct {
	Path   string
	Reason string
}

// Embedder is the batched embedding surface the pipeline needs.
// Satisfied by embedding.Embedder.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the vector-store surface the pipeline needs.
// Satisfied by storage.QdrantStore.
type Store interface {
	UpsertEntries(ctx context.Context, records []*storage.EntryRecord) error
}

// Pipeline runs the offline indexing job. It is not meant to run
// concurrently with serving: a run replaces the remote index wholesale.
type Pipeline struct {
	extractor *extractor.Extractor
	embedder  Embedder
	store     Store
	logger    *slog.Logger
}

// NewPipeline creates an indexing pipeline with the given components.
func NewPipeline(ex *extractor.Extractor, embedder Embedder, store Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor: ex,
		embedder:  embedder,
		store:     store,
		logger:    logger,
	}
}

// IndexDir extracts every HTML page under docsDir, embeds all entries,
// upserts them and writes the summary artifact to summaryPath.
//
// Failure semantics follow the wholesale-replace contract: a page that fails
// to extract is logged and skipped, but an embedding or upsert failure
// aborts the whole run, because a partial vector set would corrupt the
// index. Interrupting between batches leaves already-written points valid.
func (p *Pipeline) IndexDir(ctx context.Context, docsDir, summaryPath string) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{}

	pages, err := listPages(docsDir)
	if err != nil {
		return nil, err
	}
	result.TotalPages = len(pages)
	p.logger.Info("starting indexing", "dir", docsDir, "pages", len(pages))

	var entries []extractor.DocEntry
	for _, page := range pages {
		pageEntries, err := p.extractPage(page)
		if err != nil {
			p.logger.Warn("failed to extract page", "page", filepath.Base(page), "error", err)
			result.FailedPages = append(result.FailedPages, FailedPage{
				Path:   filepath.Base(page),
				Reason: err.Error(),
			})
			continue
		}
		entries = append(entries, pageEntries...)
	}
	p.logger.Info("extraction complete", "entries", len(entries), "failed_pages", len(result.FailedPages))

	if len(entries) == 0 {
		return nil, fmt.Errorf("no entries extracted from %s", docsDir)
	}

	texts := make([]string, len(entries))
	for i, entry := range entries {
		texts[i] = entry.FullText
	}

	embeddings, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(embeddings) != len(entries) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d entries", len(embeddings), len(entries))
	}

	records := make([]*storage.EntryRecord, len(entries))
	for i, entry := range entries {
		records[i] = &storage.EntryRecord{
			Entry:     toStorageEntry(entry),
			Embedding: embeddings[i],
		}
	}

	if err := p.store.UpsertEntries(ctx, records); err != nil {
		return nil, fmt.Errorf("upsert: %w", err)
	}

	stored := make([]storage.Entry, len(records))
	for i, record := range records {
		stored[i] = record.Entry
	}
	summary := storage.NewIndexSummary(stored, time.Now())
	if err := storage.WriteSummary(summaryPath, summary); err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}

	result.TotalEntries = len(entries)
	result.Modules = summary.Modules
	result.Duration = time.Since(start)
	p.logger.Info("indexing complete",
		"entries", result.TotalEntries,
		"modules", len(result.Modules),
		"failed_pages", len(result.FailedPages),
		"duration", result.Duration,
	)

	return result, nil
}

// extractPage opens and extracts one page.
func (p *Pipeline) extractPage(path string) ([]extractor.DocEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	return p.extractor.ExtractPage(f, filepath.Base(path))
}

// listPages returns the HTML files under dir in sorted order so runs are
// deterministic.
func listPages(dir string) ([]string, error) {
	pages, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no HTML pages found in %s", dir)
	}
	sort.Strings(pages)
	return pages, nil
}

// toStorageEntry converts an extracted entry into its stored form.
func toStorageEntry(entry extractor.DocEntry) storage.Entry {
	var paramNames []string
	for _, param := range entry.Params {
		paramNames = append(paramNames, param.Name)
	}
	return storage.Entry{
		Path:       entry.Path,
		Kind:       entry.Kind,
		Signature:  entry.Signature,
		Summary:    entry.Summary,
		FullText:   entry.FullText,
		ModulePath: entry.ModulePath,
		ParamNames: paramNames,
	}
}
