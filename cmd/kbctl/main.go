// Package main provides the kbctl CLI for managing the knowledge base index.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/kb-server/internal/config"
	"github.com/bull/kb-server/internal/embedding"
	"github.com/bull/kb-server/internal/llm"
	"github.com/bull/kb-server/internal/session"
	"github.com/bull/kb-server/internal/storage"
)

var (
	flagOverwrite    bool
	flagChunkSize    int
	flagChunkOverlap int
	flagModel        string
	flagLocation     string
	flagCollection   string
	flagTopK         int
	flagLLMModel     string
	flagTemperature  float32
)

var rootCmd = &cobra.Command{
	Use:   "kbctl",
	Short: "Knowledge base management tool",
	Long:  "CLI tool for ingesting PDF documents and querying the knowledge base",
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest PDF documents into the knowledge base",
	Long: `Loads the given PDF files, splits them into chunks, embeds each chunk
and writes the result into the vector index.

With --overwrite the existing index is replaced; otherwise new chunks are
appended, which requires the same embedding model as the existing index.

Environment variables:
  KB_CONFIG      Path to a YAML config file (optional)
  KB_STORE       Storage backend: qdrant or memory (default: qdrant)
  QDRANT_HOST    Qdrant hostname (default: localhost)
  QDRANT_PORT    Qdrant gRPC port (default: 6334)
  OLLAMA_URL     Ollama base URL (default: http://localhost:11434)
  OPENAI_API_KEY OpenAI API key, required with KB_PROVIDER=openai`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against the indexed documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the knowledge base index",
	RunE:  runClear,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current index configuration and chunk count",
	RunE:  runStatus,
}

func init() {
	ingestCmd.Flags().BoolVar(&flagOverwrite, "overwrite", false, "replace the existing index instead of appending")
	ingestCmd.Flags().IntVar(&flagChunkSize, "chunk-size", config.DefaultChunkSize, "maximum chunk size in characters")
	ingestCmd.Flags().IntVar(&flagChunkOverlap, "chunk-overlap", config.DefaultChunkOverlap, "overlap between consecutive chunks")
	ingestCmd.Flags().StringVar(&flagModel, "embedding-model", config.DefaultEmbeddingModel, "embedding model name")
	ingestCmd.Flags().StringVar(&flagLocation, "location", config.DefaultLocation, "storage location namespace")
	ingestCmd.Flags().StringVar(&flagCollection, "collection", config.DefaultCollection, "collection name")
	ingestCmd.Flags().IntVar(&flagTopK, "top-k", config.DefaultTopK, "number of chunks to retrieve per question")

	askCmd.Flags().IntVar(&flagTopK, "top-k", 0, "number of chunks to retrieve (0 uses the index setting)")
	askCmd.Flags().StringVar(&flagLLMModel, "model", "", "generator model override")
	askCmd.Flags().Float32Var(&flagTemperature, "temperature", 0, "sampling temperature")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newManager wires a session manager from the environment configuration.
// The returned close function releases the storage connection.
func newManager() (*session.Manager, func(), error) {
	cfg, err := config.LoadServer(os.Getenv("KB_CONFIG"))
	if err != nil {
		return nil, nil, err
	}

	var store storage.Store
	switch cfg.Store {
	case "memory":
		store = storage.NewMemory()
	case "qdrant":
		store, err = storage.NewQdrant(cfg.Qdrant.Host, cfg.Qdrant.Port)
		if err != nil {
			return nil, nil, fmt.Errorf("Failed to connect to Qdrant: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("unknown store %q (expected qdrant or memory)", cfg.Store)
	}

	var newEmbedder session.EmbedderFactory
	var newGenerator session.GeneratorFactory
	if cfg.Provider == "openai" {
		newEmbedder = func(model string) (embedding.Embedder, error) { return embedding.NewOpenAI(model, 0) }
		newGenerator = func(model string) (llm.Generator, error) { return llm.NewOpenAI(model) }
	} else {
		newEmbedder = func(model string) (embedding.Embedder, error) { return embedding.NewOllama(cfg.Ollama.URL, model) }
		newGenerator = func(model string) (llm.Generator, error) { return llm.NewOllama(cfg.Ollama.URL, model) }
	}

	manager := session.NewManager(store, newEmbedder, newGenerator, cfg.GeneratorModel, nil, slog.Default())
	return manager, func() { _ = store.Close() }, nil
}

// resumedManager is newManager plus attaching to the existing index,
// for commands that read rather than ingest. A missing index is not an
// error here; the command then sees an unconfigured session.
func resumedManager(ctx context.Context) (*session.Manager, func(), error) {
	manager, closeStore, err := newManager()
	if err != nil {
		return nil, nil, err
	}

	var idx config.IndexConfig
	idx.Location = flagLocation
	idx.Collection = flagCollection
	idx.ApplyDefaults()
	if err := manager.Resume(ctx, idx); err != nil && !errors.Is(err, session.ErrNotConfigured) {
		closeStore()
		return nil, nil, err
	}
	return manager, closeStore, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()

	manager, closeStore, err := newManager()
	if err != nil {
		return err
	}
	defer closeStore()

	idx := config.IndexConfig{
		Location:       flagLocation,
		Collection:     flagCollection,
		EmbeddingModel: flagModel,
		ChunkSize:      flagChunkSize,
		ChunkOverlap:   flagChunkOverlap,
		TopK:           flagTopK,
	}

	fmt.Printf("Ingesting %d file(s)...\n", len(args))
	result, err := manager.Ingest(ctx, args, idx, flagOverwrite)
	if err != nil {
		return fmt.Errorf("Ingestion failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Ingestion complete!")
	fmt.Printf("  Documents: %d\n", result.Documents)
	fmt.Printf("  Chunks: %d\n", result.Chunks)
	fmt.Printf("  Collection: %s\n", result.Collection)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Millisecond))

	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	manager, closeStore, err := resumedManager(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	answer, err := manager.Ask(ctx, args[0], session.AskOptions{
		TopK:        flagTopK,
		Model:       flagLLMModel,
		Temperature: flagTemperature,
	})
	if err != nil {
		return err
	}

	fmt.Println(answer)
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	manager, closeStore, err := resumedManager(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	cleared, err := manager.Clear(ctx)
	if err != nil {
		return err
	}
	if cleared {
		fmt.Println("Knowledge base cleared")
	} else {
		fmt.Println("Nothing to clear")
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	manager, closeStore, err := resumedManager(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	status, err := manager.Current(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("State: %s\n", status.State)
	if !status.Configured {
		return nil
	}
	fmt.Printf("Collection: %s/%s\n", status.Location, status.Collection)
	fmt.Printf("Embedding model: %s\n", status.EmbeddingModel)
	fmt.Printf("Chunk size: %d (overlap %d)\n", status.ChunkSize, status.ChunkOverlap)
	fmt.Printf("Chunks: %d\n", status.Chunks)
	return nil
}
