//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a local Qdrant at localhost:6334.
func TestQdrant_Lifecycle_Integration(t *testing.T) {
	store, err := NewQdrant("localhost", 6334)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	collection := "kb_test_" + uuid.New().String()[:8]
	defer store.Destroy(ctx, collection)

	manifest := Manifest{
		EmbeddingModel: "nomic-embed-text",
		ChunkSize:      1000,
		ChunkOverlap:   150,
		Dimension:      4,
		CreatedAt:      time.Now(),
	}
	points := []*Point{
		{ID: uuid.New().String(), Text: "first chunk", Source: "doc1.pdf", Page: 1, Vector: []float32{1, 0, 0, 0}},
		{ID: uuid.New().String(), Text: "second chunk", Source: "doc1.pdf", Page: 2, Vector: []float32{0, 1, 0, 0}},
	}

	require.NoError(t, store.Replace(ctx, collection, manifest, points))

	exists, err := store.Exists(ctx, collection)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := store.Manifest(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", got.EmbeddingModel)
	assert.Equal(t, 4, got.Dimension)

	count, err := store.Count(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count, "manifest point must not count as a chunk")

	results, err := store.Search(ctx, collection, []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "first chunk", results[0].Point.Text)
	assert.Equal(t, "doc1.pdf", results[0].Point.Source)

	// Append with a different model is rejected.
	err = store.Append(ctx, collection, Manifest{EmbeddingModel: "other", Dimension: 4}, points)
	assert.ErrorIs(t, err, ErrModelMismatch)

	// Replace is idempotent: same points, same count.
	require.NoError(t, store.Replace(ctx, collection, manifest, points))
	count, err = store.Count(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	require.NoError(t, store.Destroy(ctx, collection))
	_, err = store.Manifest(ctx, collection)
	assert.ErrorIs(t, err, ErrIndexMissing)
}

func TestQdrant_SearchMissingCollection_Integration(t *testing.T) {
	store, err := NewQdrant("localhost", 6334)
	require.NoError(t, err)
	defer store.Close()

	results, err := store.Search(context.Background(), "does_not_exist_"+uuid.New().String()[:8], []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
