package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/blender-mcp-server/internal/extractor"
	"github.com/bull/blender-mcp-server/internal/storage"
)

const samplePage = `<html>
<head><title>Object Operators &mdash; Blender Python API</title></head>
<body>
<section id="module-bpy.ops.object">
<p>Operators for object-level editing.</p>
<dl class="py function">
<dt class="sig sig-object py" id="bpy.ops.object.delete">
<span class="sig-prename descclassname">bpy.ops.object.</span><span class="sig-name descname">delete</span><span class="sig-paren">(</span><span class="sig-paren">)</span>
</dt>
<dd><p>Delete selected objects.</p></dd>
</dl>
</section>
</body>
</html>`

type fakeEmbedder struct {
	texts []string
	err   error
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.texts = texts
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = make([]float32, storage.VectorDimension)
	}
	return vectors, nil
}

type fakeStore struct {
	records []*storage.EntryRecord
	err     error
}

func (f *fakeStore) UpsertEntries(ctx context.Context, records []*storage.EntryRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, records...)
	return nil
}

func writeDocs(t *testing.T, pages map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range pages {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestIndexDir_FullRun(t *testing.T) {
	dir := writeDocs(t, map[string]string{"bpy.ops.object.html": samplePage})
	summaryPath := filepath.Join(t.TempDir(), "index_summary.json")

	embedder := &fakeEmbedder{}
	store := &fakeStore{}
	pipeline := NewPipeline(extractor.New(), embedder, store, nil)

	result, err := pipeline.IndexDir(context.Background(), dir, summaryPath)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalPages)
	assert.Empty(t, result.FailedPages)
	assert.Equal(t, 2, result.TotalEntries) // module entry + delete()

	// Embedding inputs are the entries' full texts, paired by position.
	require.Len(t, embedder.texts, 2)
	assert.Contains(t, embedder.texts[1], "Function: bpy.ops.object.delete")
	require.Len(t, store.records, 2)
	assert.Equal(t, "bpy.ops.object", store.records[0].Entry.Path)
	assert.Equal(t, "bpy.ops.object.delete", store.records[1].Entry.Path)

	// Summary artifact is written and loadable.
	summary, err := storage.LoadSummary(summaryPath)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalEntries)
	assert.Contains(t, summary.Modules, "bpy.ops.object")
}

func TestIndexDir_SkipsUnreadablePage(t *testing.T) {
	dir := writeDocs(t, map[string]string{"good.html": samplePage})
	// A directory matching the glob: opening succeeds, reading fails, the
	// page is recorded as failed and the run continues.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "bad.html"), 0o755))

	pipeline := NewPipeline(extractor.New(), &fakeEmbedder{}, &fakeStore{}, nil)
	result, err := pipeline.IndexDir(context.Background(), dir, filepath.Join(t.TempDir(), "s.json"))
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalPages)
	require.Len(t, result.FailedPages, 1)
	assert.Equal(t, "bad.html", result.FailedPages[0].Path)
	assert.Equal(t, 2, result.TotalEntries)
}

func TestIndexDir_EmbeddingFailureAbortsRun(t *testing.T) {
	dir := writeDocs(t, map[string]string{"bpy.ops.object.html": samplePage})
	store := &fakeStore{}
	pipeline := NewPipeline(extractor.New(), &fakeEmbedder{err: errors.New("rate limited")}, store, nil)

	_, err := pipeline.IndexDir(context.Background(), dir, filepath.Join(t.TempDir(), "s.json"))
	require.Error(t, err)
	// Nothing reaches the store when embedding fails.
	assert.Empty(t, store.records)
}

func TestIndexDir_UpsertFailureAbortsRun(t *testing.T) {
	dir := writeDocs(t, map[string]string{"bpy.ops.object.html": samplePage})
	summaryPath := filepath.Join(t.TempDir(), "s.json")
	pipeline := NewPipeline(extractor.New(), &fakeEmbedder{}, &fakeStore{err: errors.New("unreachable")}, nil)

	_, err := pipeline.IndexDir(context.Background(), dir, summaryPath)
	require.Error(t, err)
	// No summary artifact for a failed run.
	_, statErr := os.Stat(summaryPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestIndexDir_EmptyDirFails(t *testing.T) {
	pipeline := NewPipeline(extractor.New(), &fakeEmbedder{}, &fakeStore{}, nil)
	_, err := pipeline.IndexDir(context.Background(), t.TempDir(), "s.json")
	assert.Error(t, err)
}
