package answer

import (
	"context"
	"fmt"

	"github.com/bull/kb-server/internal/embedding"
	"github.com/bull/kb-server/internal/storage"
)

// Retriever embeds a question and queries the vector index for the most
// similar chunks. It holds the same embedder the index was built with, so
// query vectors live in the index's vector space.
type Retriever struct {
	embedder   embedding.Embedder
	store      storage.Store
	collection string
}

// NewRetriever creates a retriever over the given collection.
func NewRetriever(embedder embedding.Embedder, store storage.Store, collection string) *Retriever {
	return &Retriever{
		embedder:   embedder,
		store:      store,
		collection: collection,
	}
}

// Retrieve returns up to topK chunks ranked by cosine similarity
// descending. An empty or absent index yields an empty result, not an
// error; the caller decides how to react.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) ([]*storage.ScoredPoint, error) {
	vectors, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	results, err := r.store.Search(ctx, r.collection, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return results, nil
}
