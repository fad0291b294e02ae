// Package mcp exposes the documentation query tools over the Model Context
// Protocol.
package mcp

// SearchDocsInput defines the input parameters for the search_docs tool.
type SearchDocsInput struct {
	// Query is the natural-language search query.
	Query string `json:"query" jsonschema:"required,description=Natural language search query (e.g. 'create mesh modifier')"`
	// Limit is the maximum number of results to return.
	Limit int `json:"limit,omitempty" jsonschema:"minimum=1,maximum=20,default=5,description=Maximum number of results to return"`
}

// SearchDocsOutput contains the search results.
type SearchDocsOutput struct {
	// Results is the list of matches, ordered by descending similarity.
	Results []SearchResult `json:"results"`
	// Message provides informational context (e.g. "No matching entries").
	Message string `json:"message,omitempty"`
}

// SearchResult represents a single entry match from semantic search.
type SearchResult struct {
	// Path is the dotted identifier (e.g. "bpy.ops.mesh.subdivide").
	Path string `json:"path"`
	// Kind is the entry kind: module, class, method, function, property, constant.
	Kind string `json:"kind"`
	// Summary is the entry's short description.
	Summary string `json:"summary"`
	// Score is the similarity score (0-1).
	Score float64 `json:"score"`
}

// GetFunctionInput defines the input parameters for the get_function tool.
type GetFunctionInput struct {
	// FunctionPath is the full dotted path (e.g. "bpy.ops.mesh.subdivide").
	FunctionPath string `json:"function_path" jsonschema:"required,description=Full dotted path to the function or class (e.g. bpy.ops.mesh.subdivide)"`
}

// GetFunctionOutput contains the retrieved entry detail.
type GetFunctionOutput struct {
	Path      string `json:"path,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Signature string `json:"signature,omitempty"`
	Summary   string `json:"summary,omitempty"`
	FullText  string `json:"full_text,omitempty"`
	Module    string `json:"module,omitempty"`
	// Found indicates whether the entry exists in the index.
	Found bool `json:"found"`
	// Message explains a Found=false result.
	Message string `json:"message,omitempty"`
}

// ListModulesInput defines the input parameters for the list_modules tool.
type ListModulesInput struct {
	// ParentModule limits the listing to immediate children of this module.
	// Empty lists the top-level modules.
	ParentModule string `json:"parent_module,omitempty" jsonschema:"description=Parent module to list submodules for (e.g. bpy.ops); omit for top-level modules"`
}

// ListModulesOutput contains the module listing.
type ListModulesOutput struct {
	// Modules is the set of distinct immediate child module paths.
	Modules []string `json:"modules"`
	// Count is the number of modules returned.
	Count int `json:"count"`
	// Message provides informational context for empty listings.
	Message string `json:"message,omitempty"`
}

// CacheStatsInput defines the (empty) input for the cache_stats tool.
type CacheStatsInput struct{}

// CacheStatsOutput reports local cache counters.
type CacheStatsOutput struct {
	HitCount     int64 `json:"hit_count"`
	MissCount    int64 `json:"miss_count"`
	EntryCount   int64 `json:"entry_count"`
	EvictedCount int64 `json:"evicted_count"`
	// Enabled is false when the cache's backing storage could not be
	// opened and caching is disabled for this process.
	Enabled bool `json:"enabled"`
}
