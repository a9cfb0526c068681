// Package main provides the knowledge base HTTP server entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bull/kb-server/internal/config"
	"github.com/bull/kb-server/internal/embedding"
	"github.com/bull/kb-server/internal/httpapi"
	"github.com/bull/kb-server/internal/llm"
	"github.com/bull/kb-server/internal/session"
	"github.com/bull/kb-server/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadServer(os.Getenv("KB_CONFIG"))
	if err != nil {
		return err
	}

	store, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer store.Close()

	newEmbedder, newGenerator := providerFactories(cfg)
	manager := session.NewManager(store, newEmbedder, newGenerator, cfg.GeneratorModel, nil, logger)

	// Attach to an index left behind by a previous run, if any.
	var resume config.IndexConfig
	resume.ApplyDefaults()
	if err := manager.Resume(ctx, resume); err != nil {
		if errors.Is(err, session.ErrNotConfigured) {
			logger.Info("no existing index found, starting unconfigured")
		} else {
			logger.Warn("could not resume existing index", "error", err)
		}
	} else {
		logger.Info("resumed existing index", "collection", resume.QualifiedCollection())
	}

	api := httpapi.NewServer(manager, logger)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", cfg.ListenAddr, "store", cfg.Store, "provider", cfg.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func newStore(cfg *config.Server) (storage.Store, error) {
	switch cfg.Store {
	case "memory":
		return storage.NewMemory(), nil
	case "qdrant":
		return storage.NewQdrant(cfg.Qdrant.Host, cfg.Qdrant.Port)
	default:
		return nil, fmt.Errorf("unknown store %q (expected qdrant or memory)", cfg.Store)
	}
}

func providerFactories(cfg *config.Server) (session.EmbedderFactory, session.GeneratorFactory) {
	if cfg.Provider == "openai" {
		return func(model string) (embedding.Embedder, error) {
				return embedding.NewOpenAI(model, 0)
			}, func(model string) (llm.Generator, error) {
				return llm.NewOpenAI(model)
			}
	}
	return func(model string) (embedding.Embedder, error) {
			return embedding.NewOllama(cfg.Ollama.URL, model)
		}, func(model string) (llm.Generator, error) {
			return llm.NewOllama(cfg.Ollama.URL, model)
		}
}
