package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Qdrant    string `json:"qdrant"`
	Cache     string `json:"cache"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker is the vector-store health dependency; the storage layer
// implements it via its Health() method.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// CacheStatus reports whether local caching is active; the cache implements
// it via Enabled(). A disabled cache is degraded, not unhealthy: serving
// still works without it.
type CacheStatus interface {
	Enabled() bool
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
func NewHealthHandler(store HealthChecker, cacheStatus CacheStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		err := store.Health(ctx)

		response := HealthResponse{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Cache:     "enabled",
		}
		if !cacheStatus.Enabled() {
			response.Cache = "disabled"
		}

		w.Header().Set("Content-Type", "application/json")

		if err != nil {
			response.Status = "unhealthy"
			response.Qdrant = "disconnected"
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(response)
			return
		}

		response.Status = "healthy"
		response.Qdrant = "connected"
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}
