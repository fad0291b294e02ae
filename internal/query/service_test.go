package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/blender-mcp-server/internal/cache"
	"github.com/bull/blender-mcp-server/internal/storage"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, storage.VectorDimension), nil
}

type fakeStore struct {
	entries      map[string]*storage.Entry
	searchHits   []*storage.ScoredEntry
	searchLimits []int
	fetchCalls   int
	searchErr    error
	fetchErr     error
}

func (f *fakeStore) SearchEntries(ctx context.Context, embedding []float32, limit int) ([]*storage.ScoredEntry, error) {
	f.searchLimits = append(f.searchLimits, limit)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if limit < len(f.searchHits) {
		return f.searchHits[:limit], nil
	}
	return f.searchHits, nil
}

func (f *fakeStore) FetchEntry(ctx context.Context, path string) (*storage.Entry, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if entry, ok := f.entries[path]; ok {
		return entry, nil
	}
	return nil, storage.ErrEntryNotFound
}

func newTestService(t *testing.T, embedder *fakeEmbedder, store Store, summary *storage.IndexSummary) *Service {
	t.Helper()
	c := cache.Open(t.TempDir(), time.Hour, nil)
	t.Cleanup(func() { c.Close() })
	return NewService(embedder, store, c, summary, nil)
}

func scored(path, kind, summary string, score float64) *storage.ScoredEntry {
	return &storage.ScoredEntry{
		Entry: storage.Entry{Path: path, Kind: kind, Summary: summary, FullText: "Function: " + path, ModulePath: parentOf(path)},
		Score: score,
	}
}

func parentOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[:i]
		}
	}
	return ""
}

func TestSearch_FormatsResults(t *testing.T) {
	store := &fakeStore{searchHits: []*storage.ScoredEntry{
		scored("bpy.ops.mesh.subdivide", "function", "Subdivide selected edges.", 0.91),
		scored("bpy.ops.mesh.bevel", "function", "Bevel edges.", 0.84),
	}}
	svc := newTestService(t, &fakeEmbedder{}, store, nil)

	results, err := svc.Search(context.Background(), "subdivide a mesh", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "bpy.ops.mesh.subdivide", results[0].Path)
	assert.Equal(t, 0.91, results[0].Score)
	assert.Equal(t, "function", results[0].Kind)

	// Results keep the store's descending-score order.
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestSearch_LimitClamping(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero uses default", 0, 5},
		{"negative uses default", -3, 5},
		{"in range passes through", 7, 7},
		{"above max clamps", 50, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			svc := newTestService(t, &fakeEmbedder{}, store, nil)

			_, err := svc.Search(context.Background(), "anything", tt.limit)
			require.NoError(t, err)
			require.Len(t, store.searchLimits, 1)
			assert.Equal(t, tt.want, store.searchLimits[0])
		})
	}
}

func TestSearch_CacheHitSkipsNetwork(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &fakeStore{searchHits: []*storage.ScoredEntry{
		scored("bpy.ops.mesh.primitive_cube_add", "function", "Construct a cube.", 0.88),
	}}
	svc := newTestService(t, embedder, store, nil)
	ctx := context.Background()

	first, err := svc.Search(ctx, "Create Mesh ", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls)

	// Case/whitespace-normalized equivalent query hits the cache: zero
	// additional embedding or store calls.
	second, err := svc.Search(ctx, "create mesh", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls)
	assert.Len(t, store.searchLimits, 1)
	assert.Equal(t, first, second)
}

func TestSearch_DifferentLimitMissesCache(t *testing.T) {
	embedder := &fakeEmbedder{}
	svc := newTestService(t, embedder, &fakeStore{}, nil)
	ctx := context.Background()

	_, err := svc.Search(ctx, "create mesh", 5)
	require.NoError(t, err)
	_, err = svc.Search(ctx, "create mesh", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.calls)
}

func TestSearch_EmptyResultIsSuccess(t *testing.T) {
	svc := newTestService(t, &fakeEmbedder{}, &fakeStore{}, nil)

	results, err := svc.Search(context.Background(), "quantum flux capacitor", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_EmbedderDownIsServiceUnavailable(t *testing.T) {
	svc := newTestService(t, &fakeEmbedder{err: errors.New("dial tcp: refused")}, &fakeStore{}, nil)

	_, err := svc.Search(context.Background(), "create mesh", 5)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestSearch_StoreDownIsServiceUnavailable(t *testing.T) {
	svc := newTestService(t, &fakeEmbedder{}, &fakeStore{searchErr: errors.New("rpc error")}, nil)

	_, err := svc.Search(context.Background(), "create mesh", 5)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

// stalledStore blocks until the caller's context expires, like a vector
// store whose connection has gone dark without erroring.
type stalledStore struct{}

func (stalledStore) SearchEntries(ctx context.Context, embedding []float32, limit int) ([]*storage.ScoredEntry, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledStore) FetchEntry(ctx context.Context, path string) (*storage.Entry, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSearch_StalledStoreFailsAtDeadline(t *testing.T) {
	svc := newTestService(t, &fakeEmbedder{}, stalledStore{}, nil)
	svc.timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := svc.Search(context.Background(), "create mesh", 5)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGetFunction_StalledStoreFailsAtDeadline(t *testing.T) {
	svc := newTestService(t, &fakeEmbedder{}, stalledStore{}, nil)
	svc.timeout = 50 * time.Millisecond

	_, err := svc.GetFunction(context.Background(), "bpy.types.Mesh")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestGetFunction_ExactMatch(t *testing.T) {
	store := &fakeStore{entries: map[string]*storage.Entry{
		"bpy.ops.mesh.subdivide": {
			Path:       "bpy.ops.mesh.subdivide",
			Kind:       "function",
			Signature:  "bpy.ops.mesh.subdivide(number_cuts=1)",
			Summary:    "Subdivide selected edges.",
			FullText:   "Function: bpy.ops.mesh.subdivide",
			ModulePath: "bpy.ops.mesh",
		},
	}}
	embedder := &fakeEmbedder{}
	svc := newTestService(t, embedder, store, nil)

	detail, err := svc.GetFunction(context.Background(), " bpy.ops.mesh.subdivide ")
	require.NoError(t, err)
	assert.Equal(t, "bpy.ops.mesh.subdivide", detail.Path)
	assert.Equal(t, "bpy.ops.mesh.subdivide(number_cuts=1)", detail.Signature)
	// Exact fetch needs no embedding.
	assert.Equal(t, 0, embedder.calls)
}

func TestGetFunction_CachesDetail(t *testing.T) {
	store := &fakeStore{entries: map[string]*storage.Entry{
		"bpy.types.Mesh": {Path: "bpy.types.Mesh", Kind: "class", FullText: "x"},
	}}
	svc := newTestService(t, &fakeEmbedder{}, store, nil)
	ctx := context.Background()

	_, err := svc.GetFunction(ctx, "bpy.types.Mesh")
	require.NoError(t, err)
	_, err = svc.GetFunction(ctx, "bpy.types.Mesh")
	require.NoError(t, err)
	assert.Equal(t, 1, store.fetchCalls)
}

func TestGetFunction_FallbackAboveThreshold(t *testing.T) {
	store := &fakeStore{searchHits: []*storage.ScoredEntry{
		scored("bpy.ops.mesh.subdivide", "function", "Subdivide.", 0.82),
	}}
	svc := newTestService(t, &fakeEmbedder{}, store, nil)

	detail, err := svc.GetFunction(context.Background(), "bpy.ops.mesh.subdivide_edges")
	require.NoError(t, err)
	assert.Equal(t, "bpy.ops.mesh.subdivide", detail.Path)
}

func TestGetFunction_FallbackAtOrBelowThresholdIsNotFound(t *testing.T) {
	// The closest match must exceed the threshold; a score exactly at it is
	// still rejected.
	for _, score := range []float64{0.31, MinLookupScore} {
		store := &fakeStore{searchHits: []*storage.ScoredEntry{
			scored("bpy.ops.sound.play", "function", "Play sound.", score),
		}}
		svc := newTestService(t, &fakeEmbedder{}, store, nil)

		_, err := svc.GetFunction(context.Background(), "bpy.ops.mesh.subdivide_edges")
		assert.ErrorIs(t, err, ErrNotFound, "score %v", score)
	}
}

func TestGetFunction_NoMatchesIsNotFound(t *testing.T) {
	svc := newTestService(t, &fakeEmbedder{}, &fakeStore{}, nil)

	_, err := svc.GetFunction(context.Background(), "bpy.nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetFunction_EmptyPathIsNotFound(t *testing.T) {
	svc := newTestService(t, &fakeEmbedder{}, &fakeStore{}, nil)

	_, err := svc.GetFunction(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetFunction_StoreDownIsServiceUnavailable(t *testing.T) {
	svc := newTestService(t, &fakeEmbedder{}, &fakeStore{fetchErr: errors.New("rpc error")}, nil)

	_, err := svc.GetFunction(context.Background(), "bpy.types.Mesh")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestListModules(t *testing.T) {
	summary := &storage.IndexSummary{
		Modules: []string{
			"bpy.ops",
			"bpy.ops.mesh",
			"bpy.ops.object",
			"bpy.types",
			"bpy.types.Mesh",
			"bmesh.ops",
		},
	}
	svc := newTestService(t, &fakeEmbedder{}, &fakeStore{}, summary)

	assert.Equal(t, []string{"bmesh", "bpy"}, svc.ListModules(""))
	assert.Equal(t, []string{"bpy.ops", "bpy.types"}, svc.ListModules("bpy"))
	// Immediate children only, no grandchildren, no duplicates.
	assert.Equal(t, []string{"bpy.ops.mesh", "bpy.ops.object"}, svc.ListModules("bpy.ops"))
	assert.Empty(t, svc.ListModules("bpy.ops.mesh"))
	assert.Empty(t, svc.ListModules("aud"))
}

func TestListModules_NoSummary(t *testing.T) {
	svc := newTestService(t, &fakeEmbedder{}, &fakeStore{}, nil)
	assert.Empty(t, svc.ListModules("bpy"))
}

func TestCacheStats_PassThrough(t *testing.T) {
	svc := newTestService(t, &fakeEmbedder{}, &fakeStore{}, nil)
	ctx := context.Background()

	_, err := svc.Search(ctx, "create mesh", 5)
	require.NoError(t, err)
	_, err = svc.Search(ctx, "create mesh", 5)
	require.NoError(t, err)

	stats := svc.CacheStats(ctx)
	assert.True(t, stats.Enabled)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Entries)
}
