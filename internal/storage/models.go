package storage

import "time"

// Entry is the metadata stored alongside each vector in Qdrant. It mirrors
// the extracted documentation entry so lookups need no second data source.
type Entry struct {
	Path       string // Dotted identifier, unique: "bpy.ops.mesh.subdivide"
	Kind       string // module, class, method, function, property, constant
	Signature  string
	Summary    string
	FullText   string
	ModulePath string
	ParamNames []string
}

// EntryRecord pairs an entry with its embedding vector for upsert.
type EntryRecord struct {
	Entry     Entry
	Embedding []float32 // 1536-dim vector (text-embedding-3-small)
}

// ScoredEntry is a similarity-search hit.
type ScoredEntry struct {
	Entry Entry
	Score float64
}

// IndexSummary is the artifact written after each indexing run. Operators
// read it for diagnostics and the query service serves module listings from
// its module list.
type IndexSummary struct {
	TotalEntries int       `json:"total_entries"`
	Modules      []string  `json:"modules"`
	Kinds        []string  `json:"kinds"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// KindModuleEntry marks entries that represent a module itself; their paths
// count as modules in the index summary.
const KindModuleEntry = "module"

// DefaultCollection is the Qdrant collection holding the documentation index.
const DefaultCollection = "blender-docs"

// VectorDimension is the embedding size for text-embedding-3-small.
const VectorDimension = 1536
