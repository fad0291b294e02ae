// Package query orchestrates the serving path: cache check, query embedding,
// vector search, result formatting. It owns the caller-visible error
// taxonomy: empty success, not-found and service-unavailable are distinct.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bull/blender-mcp-server/internal/cache"
	"github.com/bull/blender-mcp-server/internal/storage"
)

const (
	// DefaultLimit is the search result count when the caller passes none.
	DefaultLimit = 5
	// MaxLimit caps search result counts.
	MaxLimit = 20

	// MinLookupScore is the confidence floor for the exact-lookup fallback:
	// a similarity match must exceed it or be reported as not-found rather
	// than returned as an unrelated near miss.
	MinLookupScore = 0.5

	// queryTimeout bounds the embedding and vector-store calls on the
	// serving path. A stalled backend fails the query visibly instead of
	// hanging the tool call.
	queryTimeout = 15 * time.Second
)

var (
	// ErrServiceUnavailable wraps embedding or vector-store transport
	// failures after retries are exhausted.
	ErrServiceUnavailable = errors.New("documentation service unavailable")

	// ErrNotFound reports an exact lookup that matched nothing.
	ErrNotFound = errors.New("function not found")
)

// Embedder embeds a single query text. Satisfied by embedding.Embedder.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the vector-store surface the service needs. Satisfied by
// storage.QdrantStore.
type Store interface {
	SearchEntries(ctx context.Context, embedding []float32, limit int) ([]*storage.ScoredEntry, error)
	FetchEntry(ctx context.Context, path string) (*storage.Entry, error)
}

// SearchResult is one formatted semantic-search hit.
type SearchResult struct {
	Path    string  `json:"path"`
	Kind    string  `json:"kind"`
	Summary string  `json:"summary"`
	Score   float64 `json:"score"`
}

// FunctionDetail is the full record returned by exact lookup.
type FunctionDetail struct {
	Path       string   `json:"path"`
	Kind       string   `json:"kind"`
	Signature  string   `json:"signature,omitempty"`
	Summary    string   `json:"summary"`
	FullText   string   `json:"full_text"`
	ModulePath string   `json:"module_path"`
	ParamNames []string `json:"param_names,omitempty"`
}

// Service answers documentation queries against the vector store with a
// local cache in front. Dependencies are passed in, not ambient, so tests
// substitute fakes.
type Service struct {
	embedder Embedder
	store    Store
	cache    *cache.Cache
	summary  *storage.IndexSummary
	logger   *slog.Logger
	timeout  time.Duration
}

// NewService creates a query service. summary may be nil when no indexing
// run has produced one yet; module listing then returns no modules.
func NewService(embedder Embedder, store Store, c *cache.Cache, summary *storage.IndexSummary, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder: embedder,
		store:    store,
		cache:    c,
		summary:  summary,
		logger:   logger,
		timeout:  queryTimeout,
	}
}

// Search runs a semantic search. The limit is clamped to [1, MaxLimit] with
// DefaultLimit for zero. A cache hit returns immediately with no network
// calls; a miss embeds the query, searches the vector store in its native
// score order, caches the formatted payload and returns it. Backend calls
// run under a deadline, so a stalled service fails instead of hanging.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	key := cache.Key("search", cache.NormalizeQuery(query), strconv.Itoa(limit))
	if payload, ok := s.cache.Get(ctx, key); ok {
		var results []SearchResult
		if err := json.Unmarshal(payload, &results); err == nil {
			s.logger.Debug("search cache hit", "query", query)
			return results, nil
		}
		// Undecodable payload is treated as a miss.
		s.cache.Invalidate(ctx, key)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrServiceUnavailable, err)
	}

	hits, err := s.store.SearchEntries(ctx, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", ErrServiceUnavailable, err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, SearchResult{
			Path:    hit.Entry.Path,
			Kind:    hit.Entry.Kind,
			Summary: hit.Entry.Summary,
			Score:   hit.Score,
		})
	}

	if payload, err := json.Marshal(results); err == nil {
		s.cache.Set(ctx, key, payload)
	}

	return results, nil
}

// GetFunction looks up an entry by its exact dotted path. If the path was
// never indexed it falls back to a similarity query seeded with the literal
// path, accepting the closest match only above MinLookupScore; otherwise it
// reports ErrNotFound.
func (s *Service) GetFunction(ctx context.Context, functionPath string) (*FunctionDetail, error) {
	path := strings.TrimSpace(functionPath)
	if path == "" {
		return nil, ErrNotFound
	}

	key := cache.Key("get_function", path)
	if payload, ok := s.cache.Get(ctx, key); ok {
		var detail FunctionDetail
		if err := json.Unmarshal(payload, &detail); err == nil {
			s.logger.Debug("lookup cache hit", "path", path)
			return &detail, nil
		}
		s.cache.Invalidate(ctx, key)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entry, err := s.store.FetchEntry(ctx, path)
	switch {
	case err == nil:
		return s.finishLookup(ctx, key, entry), nil
	case errors.Is(err, storage.ErrEntryNotFound):
		// Fall through to similarity fallback.
	default:
		return nil, fmt.Errorf("%w: fetch: %v", ErrServiceUnavailable, err)
	}

	vector, err := s.embedder.EmbedQuery(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding path: %v", ErrServiceUnavailable, err)
	}

	hits, err := s.store.SearchEntries(ctx, vector, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", ErrServiceUnavailable, err)
	}
	if len(hits) == 0 || hits[0].Score <= MinLookupScore {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	return s.finishLookup(ctx, key, &hits[0].Entry), nil
}

func (s *Service) finishLookup(ctx context.Context, key string, entry *storage.Entry) *FunctionDetail {
	detail := &FunctionDetail{
		Path:       entry.Path,
		Kind:       entry.Kind,
		Signature:  entry.Signature,
		Summary:    entry.Summary,
		FullText:   entry.FullText,
		ModulePath: entry.ModulePath,
		ParamNames: entry.ParamNames,
	}

	if payload, err := json.Marshal(detail); err == nil {
		s.cache.Set(ctx, key, payload)
	}
	return detail
}

// ListModules returns the distinct immediate child module paths under
// parent, or the top-level modules when parent is empty. Served from the
// locally held index summary; cheap, so never cached.
func (s *Service) ListModules(parent string) []string {
	if s.summary == nil {
		return nil
	}

	parent = strings.TrimSpace(strings.TrimSuffix(parent, "."))
	prefix := ""
	if parent != "" {
		prefix = parent + "."
	}

	children := make(map[string]bool)
	for _, module := range s.summary.Modules {
		if parent == "" {
			if head, _, _ := strings.Cut(module, "."); head != "" {
				children[head] = true
			}
			continue
		}
		if !strings.HasPrefix(module, prefix) {
			continue
		}
		head, _, _ := strings.Cut(module[len(prefix):], ".")
		if head != "" {
			children[prefix+head] = true
		}
	}

	out := make([]string, 0, len(children))
	for child := range children {
		out = append(out, child)
	}
	sort.Strings(out)
	return out
}

// CacheStats exposes the cache counters for the cache_stats tool.
func (s *Service) CacheStats(ctx context.Context) cache.Stats {
	return s.cache.Stats(ctx)
}
