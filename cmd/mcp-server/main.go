// Package main provides the MCP server entry point for Blender API documentation.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bull/blender-mcp-server/internal/cache"
	"github.com/bull/blender-mcp-server/internal/embedding"
	mcpserver "github.com/bull/blender-mcp-server/internal/mcp"
	"github.com/bull/blender-mcp-server/internal/query"
	"github.com/bull/blender-mcp-server/internal/storage"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Configuration from environment
	qdrantHost := getEnv("QDRANT_HOST", "localhost")
	qdrantPort := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnv("QDRANT_COLLECTION", storage.DefaultCollection)
	cacheDir := getEnv("BLENDER_CACHE_DIR", ".cache")
	cacheTTL := time.Duration(getEnvInt("CACHE_TTL_SECONDS", 86400)) * time.Second
	summaryPath := getEnv("SUMMARY_PATH", storage.DefaultSummaryPath)
	port := getEnv("PORT", "8080")

	logger := slog.Default()

	// Initialize storage
	store, err := storage.NewQdrantStore(qdrantHost, qdrantPort, collection)
	if err != nil {
		log.Fatalf("failed to connect to Qdrant: %v", err)
	}
	defer store.Close()

	// Ensure collection exists
	if err := store.EnsureCollection(ctx); err != nil {
		log.Fatalf("failed to ensure collection: %v", err)
	}

	// Initialize embedding client
	embeddingClient, err := embedding.NewClient()
	if err != nil {
		log.Fatalf("failed to create embedding client: %v", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, 0) // Use default batch size

	// Open the local query cache. Open never fails: on error it returns a
	// disabled cache and the server runs without caching.
	queryCache := cache.Open(cacheDir, cacheTTL, logger)
	defer queryCache.Close()

	// Load the index summary written by the indexing CLI. Missing summary is
	// fine: list_modules returns empty until the first index run.
	summary, err := storage.LoadSummary(summaryPath)
	if err != nil {
		log.Printf("No index summary at %s (run the index CLI to create one)", summaryPath)
		summary = nil
	}

	// Create query service and MCP server
	svc := query.NewService(embedder, store, queryCache, summary, logger)
	server := mcpserver.NewServer(svc)

	// Create HTTP server with multiple endpoints
	mux := http.NewServeMux()

	// Landing page
	mux.HandleFunc("/", mcpserver.NewLandingHandler())

	// Health endpoint (for deployment health checks)
	mux.HandleFunc("/health", mcpserver.NewHealthHandler(store, queryCache))

	// MCP HTTP endpoint (for remote client connections)
	mux.Handle("/mcp", server.HTTPHandler())

	// Check if running in server mode (HTTP) or stdio mode (local development)
	serverMode := getEnv("SERVER_MODE", "false") == "true"

	if serverMode {
		// HTTP mode: serve MCP over HTTP for remote clients
		addr := "0.0.0.0:" + port
		log.Printf("Starting HTTP server on %s (MCP at /mcp, health at /health)", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	} else {
		// Stdio mode: run MCP server over stdin/stdout for local clients
		// Also start HTTP health endpoint in background for local testing
		go func() {
			addr := "0.0.0.0:" + port
			log.Printf("Starting health server on %s", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Printf("Health server error: %v", err)
			}
		}()

		log.Println("Starting Blender Documentation MCP Server (stdio mode)...")
		if err := server.Run(ctx); err != nil {
			log.Printf("server error: %v", err)
			os.Exit(1)
		}
	}
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
