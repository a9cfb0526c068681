// Package embedding converts text into fixed-dimension vectors. The
// embedder is a capability interface: the same implementation embeds
// chunks at ingestion time and questions at query time, keeping both in
// one vector space.
package embedding

import "context"

// Embedder turns texts into embedding vectors. Implementations must be
// deterministic for identical (text, model) pairs within a session so the
// index and query vector spaces stay consistent.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model identifies the embedding model producing the vectors.
	Model() string
}

// toFloat32 converts a []float64 API response to the []float32 the
// storage layer keeps.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
