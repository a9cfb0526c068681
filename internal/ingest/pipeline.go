// Package ingest orchestrates the write path: load documents, split them
// into chunks, embed the chunks, and commit the vectors to the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bull/kb-server/internal/config"
	"github.com/bull/kb-server/internal/document"
	"github.com/bull/kb-server/internal/embedding"
	"github.com/bull/kb-server/internal/splitter"
	"github.com/bull/kb-server/internal/storage"
)

// ErrNoContent is returned when the whole input batch yields zero chunks.
// A single empty document is tolerated; an entirely empty batch is a
// caller-visible failure, not a silent success.
var ErrNoContent = errors.New("no extractable text in any input document")

// LoaderFunc extracts page text from a document at path.
type LoaderFunc func(path string) ([]document.Page, error)

// Result contains statistics about an ingestion run.
type Result struct {
	Documents  int
	Chunks     int
	Collection string
	Duration   time.Duration
}

// Pipeline runs the full ingestion flow for a batch of documents. All
// validation and embedding work happens before anything is written, so a
// failure anywhere leaves the pre-existing index untouched.
type Pipeline struct {
	loader   LoaderFunc
	embedder embedding.Embedder
	store    storage.Store
	logger   *slog.Logger
}

// NewPipeline creates an ingestion pipeline with the given components.
// A nil loader defaults to the PDF document loader.
func NewPipeline(loader LoaderFunc, embedder embedding.Embedder, store storage.Store, logger *slog.Logger) *Pipeline {
	if loader == nil {
		loader = document.NewLoader().LoadPDF
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		loader:   loader,
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// Run ingests the documents at paths into the collection named by cfg.
// With overwrite, the existing index contents are replaced; otherwise new
// chunks are appended (the embedding model must match the recorded one).
//
// Either the whole batch commits or the operation reports failure: an
// unsupported file fails before any document is read, and embedding
// failures surface before any destructive storage action.
func (p *Pipeline) Run(ctx context.Context, paths []string, cfg config.IndexConfig, overwrite bool) (*Result, error) {
	start := time.Now()
	collection := cfg.QualifiedCollection()

	// Validate the whole batch before touching any document.
	if err := document.ValidateBatch(paths); err != nil {
		return nil, err
	}

	split := splitter.New(cfg.ChunkSize, cfg.ChunkOverlap)
	var chunks []splitter.Chunk
	for _, path := range paths {
		pages, err := p.loader(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		docChunks := split.Split(pages)
		p.logger.Debug("Split document", "path", path, "pages", len(pages), "chunks", len(docChunks))
		chunks = append(chunks, docChunks...)
	}

	if len(chunks) == 0 {
		return nil, ErrNoContent
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	points := make([]*storage.Point, len(chunks))
	for i, c := range chunks {
		points[i] = &storage.Point{
			ID:     uuid.New().String(),
			Text:   c.Text,
			Source: c.Source,
			Page:   c.Page,
			Vector: vectors[i],
		}
	}

	manifest := storage.Manifest{
		EmbeddingModel: p.embedder.Model(),
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
		Dimension:      len(vectors[0]),
		CreatedAt:      time.Now(),
	}

	if overwrite {
		err = p.store.Replace(ctx, collection, manifest, points)
	} else {
		err = p.store.Append(ctx, collection, manifest, points)
	}
	if err != nil {
		return nil, fmt.Errorf("commit chunks: %w", err)
	}

	result := &Result{
		Documents:  len(paths),
		Chunks:     len(points),
		Collection: collection,
		Duration:   time.Since(start),
	}
	p.logger.Info("Ingestion complete",
		"documents", result.Documents,
		"chunks", result.Chunks,
		"collection", result.Collection,
		"overwrite", overwrite,
		"duration", result.Duration,
	)
	return result, nil
}
