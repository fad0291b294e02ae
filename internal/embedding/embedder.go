// Package embedding generates text embeddings for documentation entries,
// batching indexing-time requests and retrying on rate limits.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"golang.org/x/time/rate"
)

const (
	// EmbeddingModel is the OpenAI model used for generating embeddings.
	EmbeddingModel = "text-embedding-3-small"

	// EmbeddingDimension is the vector dimension for text-embedding-3-small.
	// This matches storage.VectorDimension (1536).
	EmbeddingDimension = 1536

	// DefaultBatchSize is the number of texts sent per embedding request.
	// The API accepts up to 2048, but smaller batches keep token-per-minute
	// pressure down during a full corpus run.
	DefaultBatchSize = 100
)

// ProgressFunc receives (batches completed, total batches) after each batch.
// Observability only; errors from it are not possible and it may be nil.
type ProgressFunc func(done, total int)

// Embedder batches embedding requests during indexing runs. Batches are
// paced by a rate limiter and retried with exponential backoff on rate-limit
// errors; exhausting retries fails the whole run so the index is never
// written from a partial vector set.
type Embedder struct {
	api        API
	batchSize  int
	limiter    *rate.Limiter
	onProgress ProgressFunc
}

// NewEmbedder creates an Embedder over the given API. A batchSize of 0
// selects DefaultBatchSize. Batches are paced at 10 requests/second.
func NewEmbedder(api API, batchSize int) *Embedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Embedder{
		api:       api,
		batchSize: batchSize,
		limiter:   rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
	}
}

// OnProgress registers a progress callback for EmbedTexts.
func (e *Embedder) OnProgress(fn ProgressFunc) {
	e.onProgress = fn
}

// EmbedTexts generates embeddings for all texts, in order. It issues
// ceil(len(texts)/batchSize) requests and returns exactly one vector per
// input, so callers can pair vectors back to entries by position.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	total := (len(texts) + e.batchSize - 1) / e.batchSize
	allEmbeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))

		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		embeddings, err := e.embedBatchWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)

		if e.onProgress != nil {
			e.onProgress(i/e.batchSize+1, total)
		}
	}

	return allEmbeddings, nil
}

// EmbedQuery embeds a single serving-path text. Unlike indexing batches it
// retries exactly once with a short backoff, then fails visibly; a query
// must never hang behind a long retry loop.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32

	operation := func() error {
		vectors, err := e.api.Embed(ctx, []string{text})
		if err != nil {
			return err
		}
		if len(vectors) != 1 {
			return backoff.Permanent(fmt.Errorf("expected 1 vector, got %d", len(vectors)))
		}
		embedding = vectors[0]
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(500*time.Millisecond), 1)
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return embedding, nil
}

// embedBatchWithRetry generates embeddings for one batch with retry logic.
// Rate-limit errors (HTTP 429) back off exponentially; anything else is
// permanent and fails immediately.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		result, err := e.api.Embed(ctx, texts)
		if err != nil {
			if isRateLimitError(err) {
				return err // retried with backoff
			}
			return backoff.Permanent(err)
		}
		embeddings = result
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	return embeddings, err
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
