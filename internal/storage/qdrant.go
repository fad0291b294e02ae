// Package storage persists documentation entries in Qdrant and the local
// index summary artifact.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// upsertBatchSize is the number of points sent per upsert request.
const upsertBatchSize = 100

// QdrantStore wraps the Qdrant client with connection management and health
// checks for a single documentation collection.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore creates a Qdrant client and validates connectivity. The
// health check retries with exponential backoff so a slow-starting server
// does not fail the process immediately, then fails fast if unreachable.
func NewQdrantStore(host string, port int, collection string) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	if collection == "" {
		collection = DefaultCollection
	}

	store := &QdrantStore{
		client:     client,
		collection: collection,
	}

	if err := store.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return store, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		return s.Health(ctx)
	}

	return backoff.Retry(operation, backoff.WithContext(exponentialBackoff, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}

	return nil
}

// EnsureCollection creates the collection if it does not exist: one unnamed
// 1536-dimension cosine vector per point plus payload indexes for the
// filterable fields. Idempotent.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, name := range collections {
		if name == s.collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     VectorDimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := s.createPayloadIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}

	return nil
}

// createPayloadIndexes creates keyword indexes for the filterable fields.
func (s *QdrantStore) createPayloadIndexes(ctx context.Context) error {
	fields := []string{
		"path",        // Exact lookup fallback filter
		"kind",        // Filter by entry kind
		"module_path", // Filter by owning module
	}

	for _, field := range fields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	return nil
}

// ClearCollection drops and recreates the collection. Indexing runs replace
// the index wholesale, so this runs before every re-index.
func (s *QdrantStore) ClearCollection(ctx context.Context) error {
	err := s.client.DeleteCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	return s.EnsureCollection(ctx)
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// PointID derives the deterministic Qdrant point id for an entry path.
// Identical paths always map to the same id, so re-indexing overwrites
// points in place and exact lookup is a point retrieval.
func PointID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("blender-docs/"+path)).String()
}

// upsertWithRetry performs one upsert request with exponential backoff retry.
func (s *QdrantStore) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(exponentialBackoff, ctx))
}

// UpsertEntries stores entry records in batches of 100. Dimensions are
// validated up front so a bad vector set fails before any write.
func (s *QdrantStore) UpsertEntries(ctx context.Context, records []*EntryRecord) error {
	if len(records) == 0 {
		return nil
	}

	for i, record := range records {
		if len(record.Embedding) != VectorDimension {
			return fmt.Errorf("%w: record %d (%s) has %d dimensions, expected %d",
				ErrDimensionMismatch, i, record.Entry.Path, len(record.Embedding), VectorDimension)
		}
	}

	for i := 0; i < len(records); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(records))

		batch := records[i:end]
		points := make([]*qdrant.PointStruct, len(batch))
		for j, record := range batch {
			points[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(PointID(record.Entry.Path)),
				Vectors: qdrant.NewVectors(record.Embedding...),
				Payload: qdrant.NewValueMap(entryPayload(record.Entry)),
			}
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// SearchEntries performs vector similarity search, returning up to limit
// entries in the store's descending-score order.
func (s *QdrantStore) SearchEntries(ctx context.Context, embedding []float32, limit int) ([]*ScoredEntry, error) {
	if len(embedding) != VectorDimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(embedding), VectorDimension)
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search entries: %w", err)
	}

	entries := make([]*ScoredEntry, 0, len(results))
	for _, result := range results {
		entries = append(entries, &ScoredEntry{
			Entry: payloadEntry(result.Payload),
			Score: float64(result.Score),
		})
	}

	return entries, nil
}

// FetchEntry retrieves an entry by its exact path via the deterministic
// point id. Returns ErrEntryNotFound if no such path was indexed.
func (s *QdrantStore) FetchEntry(ctx context.Context, path string) (*Entry, error) {
	result, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(PointID(path))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch entry: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrEntryNotFound
	}

	entry := payloadEntry(result[0].Payload)
	return &entry, nil
}

// CollectionInfo contains collection statistics.
type CollectionInfo struct {
	PointsCount uint64
}

// GetCollectionInfo retrieves collection statistics, used by the indexing
// CLI to report the final point count.
func (s *QdrantStore) GetCollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	collection, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	return &CollectionInfo{
		PointsCount: collection.GetPointsCount(),
	}, nil
}

// entryPayload converts an entry to a Qdrant payload map.
func entryPayload(entry Entry) map[string]any {
	return map[string]any{
		"path":        entry.Path,
		"kind":        entry.Kind,
		"signature":   entry.Signature,
		"summary":     entry.Summary,
		"full_text":   entry.FullText,
		"module_path": entry.ModulePath,
		"param_names": strings.Join(entry.ParamNames, ", "),
	}
}

// payloadEntry converts a Qdrant payload map back to an entry.
func payloadEntry(payload map[string]*qdrant.Value) Entry {
	entry := Entry{
		Path:       payload["path"].GetStringValue(),
		Kind:       payload["kind"].GetStringValue(),
		Signature:  payload["signature"].GetStringValue(),
		Summary:    payload["summary"].GetStringValue(),
		FullText:   payload["full_text"].GetStringValue(),
		ModulePath: payload["module_path"].GetStringValue(),
	}
	if names := payload["param_names"].GetStringValue(); names != "" {
		entry.ParamNames = strings.Split(names, ", ")
	}
	return entry
}
