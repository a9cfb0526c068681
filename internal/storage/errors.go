package storage

import "errors"

var (
	// ErrUnavailable indicates the storage engine cannot be reached.
	ErrUnavailable = errors.New("vector store unreachable")
	// ErrIndexMissing indicates the requested collection does not exist.
	ErrIndexMissing = errors.New("index not found")
	// ErrModelMismatch indicates an append against an index built with a
	// different embedding model. Mixing models in one index makes
	// similarity scores meaningless, so this is always rejected.
	ErrModelMismatch = errors.New("embedding model mismatch")
	// ErrDimensionMismatch indicates a vector whose length differs from
	// the index's recorded dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrIndexDestroyed indicates an overwrite destroyed the previous
	// index but failed before the replacement was fully written. The
	// index is gone; the caller must re-ingest.
	ErrIndexDestroyed = errors.New("index destroyed, rebuild incomplete")
)
