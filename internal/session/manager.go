// Package session owns the currently active index configuration and
// mediates every ingestion and retrieval call against it through an
// explicit state machine: Unconfigured -> Configured -> Cleared.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bull/kb-server/internal/answer"
	"github.com/bull/kb-server/internal/config"
	"github.com/bull/kb-server/internal/embedding"
	"github.com/bull/kb-server/internal/ingest"
	"github.com/bull/kb-server/internal/llm"
	"github.com/bull/kb-server/internal/storage"
)

// ErrNotConfigured is returned for retrieval or status calls before any
// successful ingestion (or after a clear).
var ErrNotConfigured = errors.New("no knowledge base configured")

// State is the session lifecycle state.
type State int

const (
	// StateUnconfigured permits no ingestion-dependent operation.
	StateUnconfigured State = iota
	// StateConfigured has an active index configuration.
	StateConfigured
	// StateCleared behaves like Unconfigured but is reachable only via an
	// explicit clear.
	StateCleared
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateCleared:
		return "cleared"
	default:
		return "unconfigured"
	}
}

// EmbedderFactory builds an embedder for a model name.
type EmbedderFactory func(model string) (embedding.Embedder, error)

// GeneratorFactory builds a generator for a model name.
type GeneratorFactory func(model string) (llm.Generator, error)

// AskOptions tune one answer call; zero values use the active config's
// defaults.
type AskOptions struct {
	TopK        int
	Model       string
	Temperature float32
}

// Status describes the active session for callers.
type Status struct {
	Configured     bool   `json:"configured"`
	State          string `json:"state"`
	Location       string `json:"storageLocation,omitempty"`
	Collection     string `json:"collectionName,omitempty"`
	EmbeddingModel string `json:"embeddingModel,omitempty"`
	ChunkSize      int    `json:"chunkSize,omitempty"`
	ChunkOverlap   int    `json:"chunkOverlap,omitempty"`
	Chunks         uint64 `json:"chunks"`
}

// Manager binds the active IndexConfig to its store and embedder. All
// structural changes (ingest, clear) are serialized by a single writer
// lock; reads take a snapshot of the active configuration and run
// lock-free against the already-committed index.
type Manager struct {
	store          storage.Store
	newEmbedder    EmbedderFactory
	newGenerator   GeneratorFactory
	generatorModel string
	loader         ingest.LoaderFunc
	logger         *slog.Logger

	writeMu sync.Mutex // serializes ingest/clear end to end

	mu       sync.RWMutex // guards the fields below
	state    State
	cfg      config.IndexConfig
	embedder embedding.Embedder
}

// NewManager creates a session manager. loader may be nil to use the PDF
// document loader.
func NewManager(store storage.Store, newEmbedder EmbedderFactory, newGenerator GeneratorFactory, generatorModel string, loader ingest.LoaderFunc, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:          store,
		newEmbedder:    newEmbedder,
		newGenerator:   newGenerator,
		generatorModel: generatorModel,
		loader:         loader,
		logger:         logger,
	}
}

// Ingest runs the ingestion pipeline for paths under cfg and, on success,
// makes cfg the active configuration. A first successful ingestion moves
// the session to Configured; later calls append (overwrite=false) or
// replace (overwrite=true). Any failure leaves the previous configuration
// and index contents in place.
func (m *Manager) Ingest(ctx context.Context, paths []string, cfg config.IndexConfig, overwrite bool) (*ingest.Result, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid index configuration: %w", err)
	}

	embedder, err := m.newEmbedder(cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	pipeline := ingest.NewPipeline(m.loader, embedder, m.store, m.logger)
	result, err := pipeline.Run(ctx, paths, cfg, overwrite)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.state = StateConfigured
	m.cfg = cfg
	m.embedder = embedder
	m.mu.Unlock()

	return result, nil
}

// Resume attaches the session to an index that already exists in the
// store, adopting the chunk parameters and embedding model recorded in
// its manifest. Returns ErrNotConfigured when no such index exists.
func (m *Manager) Resume(ctx context.Context, cfg config.IndexConfig) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid index configuration: %w", err)
	}

	manifest, err := m.store.Manifest(ctx, cfg.QualifiedCollection())
	if err != nil {
		if errors.Is(err, storage.ErrIndexMissing) {
			return ErrNotConfigured
		}
		return err
	}

	cfg.EmbeddingModel = manifest.EmbeddingModel
	if manifest.ChunkSize > 0 {
		cfg.ChunkSize = manifest.ChunkSize
		cfg.ChunkOverlap = manifest.ChunkOverlap
	}

	embedder, err := m.newEmbedder(cfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}

	m.mu.Lock()
	m.state = StateConfigured
	m.cfg = cfg
	m.embedder = embedder
	m.mu.Unlock()

	m.logger.Info("Resumed knowledge base", "collection", cfg.QualifiedCollection(), "embedding_model", cfg.EmbeddingModel)
	return nil
}

// snapshot returns the active configuration and embedder, or
// ErrNotConfigured.
func (m *Manager) snapshot() (config.IndexConfig, embedding.Embedder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateConfigured {
		return config.IndexConfig{}, nil, ErrNotConfigured
	}
	return m.cfg, m.embedder, nil
}

// Retrieve embeds the question with the active configuration's embedding
// model and returns the topK most similar chunks.
func (m *Manager) Retrieve(ctx context.Context, question string, topK int) ([]*storage.ScoredPoint, error) {
	cfg, embedder, err := m.snapshot()
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = cfg.TopK
	}
	retriever := answer.NewRetriever(embedder, m.store, cfg.QualifiedCollection())
	return retriever.Retrieve(ctx, question, topK)
}

// Ask answers the question grounded in the active index.
func (m *Manager) Ask(ctx context.Context, question string, opts AskOptions) (string, error) {
	cfg, embedder, err := m.snapshot()
	if err != nil {
		return "", err
	}

	model := opts.Model
	if model == "" {
		model = m.generatorModel
	}
	generator, err := m.newGenerator(model)
	if err != nil {
		return "", fmt.Errorf("create generator: %w", err)
	}

	retriever := answer.NewRetriever(embedder, m.store, cfg.QualifiedCollection())
	service := answer.NewService(retriever, generator, cfg.TopK, m.logger)
	return service.Answer(ctx, question, answer.Options{
		TopK:        opts.TopK,
		Temperature: opts.Temperature,
	})
}

// Clear destroys the active index contents and moves the session to
// Cleared. It reports whether anything was actually destroyed, so callers
// can distinguish "cleared" from "nothing to clear".
func (m *Manager) Clear(ctx context.Context) (bool, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	state := m.state
	cfg := m.cfg
	m.mu.RUnlock()

	if state != StateConfigured {
		return false, nil
	}

	if err := m.store.Destroy(ctx, cfg.QualifiedCollection()); err != nil && !errors.Is(err, storage.ErrIndexMissing) {
		return false, fmt.Errorf("destroy index: %w", err)
	}

	m.mu.Lock()
	m.state = StateCleared
	m.cfg = config.IndexConfig{}
	m.embedder = nil
	m.mu.Unlock()

	m.logger.Info("Knowledge base cleared", "collection", cfg.QualifiedCollection())
	return true, nil
}

// Current returns the active session status, including the stored chunk
// count when configured.
func (m *Manager) Current(ctx context.Context) (Status, error) {
	m.mu.RLock()
	state := m.state
	cfg := m.cfg
	m.mu.RUnlock()

	status := Status{
		Configured: state == StateConfigured,
		State:      state.String(),
	}
	if state != StateConfigured {
		return status, nil
	}

	status.Location = cfg.Location
	status.Collection = cfg.Collection
	status.EmbeddingModel = cfg.EmbeddingModel
	status.ChunkSize = cfg.ChunkSize
	status.ChunkOverlap = cfg.ChunkOverlap

	count, err := m.store.Count(ctx, cfg.QualifiedCollection())
	if err != nil {
		return status, fmt.Errorf("count chunks: %w", err)
	}
	status.Chunks = count
	return status, nil
}
