package storage

import "errors"

var (
	ErrQdrantUnreachable = errors.New("qdrant server unreachable")
	ErrEntryNotFound     = errors.New("entry not found")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
