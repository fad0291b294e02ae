package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DefaultSummaryPath is where indexing runs write the summary artifact.
const DefaultSummaryPath = "index_summary.json"

// NewIndexSummary builds a summary from stored entries, with modules and
// kinds deduplicated and sorted for stable output.
func NewIndexSummary(entries []Entry, indexedAt time.Time) *IndexSummary {
	modules := make(map[string]bool)
	kinds := make(map[string]bool)
	for _, entry := range entries {
		if entry.ModulePath != "" {
			modules[entry.ModulePath] = true
		}
		if entry.Kind == KindModuleEntry {
			modules[entry.Path] = true
		}
		if entry.Kind != "" {
			kinds[entry.Kind] = true
		}
	}

	summary := &IndexSummary{
		TotalEntries: len(entries),
		Modules:      sortedKeys(modules),
		Kinds:        sortedKeys(kinds),
		IndexedAt:    indexedAt,
	}
	return summary
}

// WriteSummary persists the summary as indented JSON, creating parent
// directories as needed.
func WriteSummary(path string, summary *IndexSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create summary directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// LoadSummary reads a previously written summary artifact.
func LoadSummary(path string) (*IndexSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read summary: %w", err)
	}

	var summary IndexSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("parse summary: %w", err)
	}
	return &summary, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
