package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process Store using brute-force cosine similarity. It
// backs unit tests and small single-node deployments that do not want a
// Qdrant dependency.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	manifest Manifest
	points   []*Point
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

// Exists reports whether the collection exists.
func (s *Memory) Exists(_ context.Context, collection string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collection]
	return ok, nil
}

// Manifest returns the recorded build parameters of the collection.
func (s *Memory) Manifest(_ context.Context, collection string) (*Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[collection]
	if !ok {
		return nil, ErrIndexMissing
	}
	m := col.manifest
	return &m, nil
}

// Replace swaps the collection contents for the given points.
func (s *Memory) Replace(_ context.Context, collection string, manifest Manifest, points []*Point) error {
	if err := validateDimensions(points, manifest.Dimension); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = &memCollection{
		manifest: manifest,
		points:   append([]*Point(nil), points...),
	}
	return nil
}

// Append adds points to the collection, creating it if missing.
func (s *Memory) Append(_ context.Context, collection string, manifest Manifest, points []*Point) error {
	if err := validateDimensions(points, manifest.Dimension); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collection]
	if !ok {
		s.collections[collection] = &memCollection{
			manifest: manifest,
			points:   append([]*Point(nil), points...),
		}
		return nil
	}
	if col.manifest.EmbeddingModel != manifest.EmbeddingModel {
		return fmt.Errorf("%w: index built with %s, append uses %s",
			ErrModelMismatch, col.manifest.EmbeddingModel, manifest.EmbeddingModel)
	}
	if col.manifest.Dimension != manifest.Dimension {
		return fmt.Errorf("%w: index has %d dimensions, append has %d",
			ErrDimensionMismatch, col.manifest.Dimension, manifest.Dimension)
	}
	col.points = append(col.points, points...)
	return nil
}

// Search ranks all stored points by cosine similarity descending and
// returns at most limit of them. A missing collection yields an empty
// result.
func (s *Memory) Search(_ context.Context, collection string, vector []float32, limit int) ([]*ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collection]
	if !ok {
		return nil, nil
	}

	scored := make([]*ScoredPoint, 0, len(col.points))
	for _, p := range col.points {
		scored = append(scored, &ScoredPoint{Point: p, Score: cosineSimilarity(vector, p.Vector)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if limit > 0 && limit < len(scored) {
		scored = scored[:limit]
	}
	return scored, nil
}

// Count returns the number of stored chunks.
func (s *Memory) Count(_ context.Context, collection string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[collection]
	if !ok {
		return 0, nil
	}
	return uint64(len(col.points)), nil
}

// Destroy removes the collection and its contents.
func (s *Memory) Destroy(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection]; !ok {
		return ErrIndexMissing
	}
	delete(s.collections, collection)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Memory) Close() error { return nil }

// cosineSimilarity returns the cosine of the angle between two vectors,
// or 0 if either has zero magnitude or the lengths differ.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
