// Package main provides the index CLI for Blender API documentation indexing.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/blender-mcp-server/internal/embedding"
	"github.com/bull/blender-mcp-server/internal/extractor"
	"github.com/bull/blender-mcp-server/internal/indexer"
	"github.com/bull/blender-mcp-server/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "blender-index",
	Short: "Blender API documentation indexing tool",
	Long:  "CLI tool for managing the Blender API documentation index in Qdrant",
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Re-index all documentation from a local Sphinx HTML corpus",
	Long: `Clears existing index and rebuilds from the documentation directory.

This command:
1. Connects to Qdrant and verifies health
2. Clears the existing document collection
3. Extracts API entries from every HTML page in the corpus
4. Generates embeddings for each entry in batches
5. Upserts entries into Qdrant and writes the index summary

Environment variables:
  QDRANT_HOST        Qdrant hostname (default: localhost)
  QDRANT_PORT        Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION  Collection name (default: blender-docs)
  OPENAI_API_KEY     OpenAI API key for embeddings (required)
  DOCS_DIR           Directory of Sphinx HTML pages (default: docs)
  SUMMARY_PATH       Index summary output path (default: index_summary.json)`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()

	fmt.Println("Starting indexing...")
	fmt.Println()

	// Get environment configuration
	qdrantHost := getEnv("QDRANT_HOST", "localhost")
	qdrantPort := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnv("QDRANT_COLLECTION", storage.DefaultCollection)
	docsDir := getEnv("DOCS_DIR", "docs")
	summaryPath := getEnv("SUMMARY_PATH", storage.DefaultSummaryPath)

	// 1. Connect to Qdrant
	fmt.Printf("Connecting to Qdrant at %s:%d...\n", qdrantHost, qdrantPort)
	store, err := storage.NewQdrantStore(qdrantHost, qdrantPort, collection)
	if err != nil {
		return fmt.Errorf("Failed to connect to Qdrant: %w", err)
	}
	defer store.Close()

	// 2. Check health
	if err := store.Health(ctx); err != nil {
		return fmt.Errorf("Qdrant health check failed: %w", err)
	}
	fmt.Println("Qdrant healthy")

	// 3. Ensure collection exists
	if err := store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("Failed to ensure collection: %w", err)
	}

	// 4. Initialize embedding client
	embeddingClient, err := embedding.NewClient()
	if err != nil {
		return fmt.Errorf("Failed to create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, 0) // Use default batch size
	embedder.OnProgress(func(batch, total int) {
		fmt.Printf("  Embedding batch %d/%d\n", batch, total)
	})

	// 5. Clear existing collection
	fmt.Println()
	fmt.Println("Clearing existing collection...")
	if err := store.ClearCollection(ctx); err != nil {
		return fmt.Errorf("Failed to clear collection: %w", err)
	}
	fmt.Println("Collection cleared")

	// 6. Initialize pipeline and run indexing
	fmt.Println()
	fmt.Printf("Indexing documentation from %s...\n", docsDir)
	pipeline := indexer.NewPipeline(extractor.New(), embedder, store, slog.Default())

	result, err := pipeline.IndexDir(ctx, docsDir, summaryPath)
	if err != nil {
		return fmt.Errorf("Indexing failed: %w", err)
	}

	// 7. Print results
	fmt.Println()
	fmt.Println("Indexing complete!")
	fmt.Printf("  Pages: %d/%d\n", result.TotalPages-len(result.FailedPages), result.TotalPages)
	fmt.Printf("  Entries: %d\n", result.TotalEntries)
	fmt.Printf("  Modules: %d\n", len(result.Modules))
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Second))

	// 8. Print failed pages if any
	if len(result.FailedPages) > 0 {
		fmt.Println()
		fmt.Println("Failed pages:")
		for _, failed := range result.FailedPages {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}

	// 9. Confirm the stored point count
	if info, err := store.GetCollectionInfo(ctx); err == nil {
		fmt.Printf("  Points in collection: %d\n", info.PointsCount)
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Second))

	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
