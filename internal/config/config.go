package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults for a knowledge base index. These match the product defaults
// the web UI assumes when a settings field is omitted.
const (
	DefaultChunkSize      = 1000
	DefaultChunkOverlap   = 150
	DefaultEmbeddingModel = "nomic-embed-text"
	DefaultTopK           = 4
	DefaultLocation       = "kb"
	DefaultCollection     = "kb_documents"
	DefaultGeneratorModel = "llama3"
)

// IndexConfig binds one vector index instance: where it lives, which
// embedding model produced its vectors, and how documents were chunked.
// All chunks in one index share the same embedding model; mixing models
// makes similarity scores meaningless, so appends are checked against the
// recorded model.
type IndexConfig struct {
	Location       string `json:"persistDir" yaml:"location"`
	Collection     string `json:"collectionName" yaml:"collection"`
	EmbeddingModel string `json:"embeddingModel" yaml:"embedding_model"`
	ChunkSize      int    `json:"chunkSize" yaml:"chunk_size"`
	ChunkOverlap   int    `json:"chunkOverlap" yaml:"chunk_overlap"`
	TopK           int    `json:"topK" yaml:"top_k"`
}

// ApplyDefaults fills zero-valued fields with the documented defaults.
func (c *IndexConfig) ApplyDefaults() {
	if c.Location == "" {
		c.Location = DefaultLocation
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = DefaultEmbeddingModel
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = DefaultChunkOverlap
	}
	if c.TopK == 0 {
		c.TopK = DefaultTopK
	}
}

// Validate checks field constraints after defaults have been applied.
func (c IndexConfig) Validate() error {
	if strings.TrimSpace(c.Location) == "" {
		return errors.New("location must not be empty")
	}
	if strings.TrimSpace(c.Collection) == "" {
		return errors.New("collection must not be empty")
	}
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		return errors.New("embedding model must not be empty")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, chunk size), got %d", c.ChunkOverlap)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("topK must be positive, got %d", c.TopK)
	}
	return nil
}

// QualifiedCollection flattens location and collection into the single
// collection identifier the storage engine uses. Qdrant owns the on-disk
// layout, so the location acts as a namespace prefix.
func (c IndexConfig) QualifiedCollection() string {
	name := c.Location + "__" + c.Collection
	return sanitizeCollection(name)
}

// sanitizeCollection maps arbitrary location/collection strings onto the
// character set Qdrant accepts for collection names.
func sanitizeCollection(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// QdrantConfig contains connection details for the Qdrant gRPC endpoint.
type QdrantConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// OllamaConfig contains the base URL for a local Ollama instance.
type OllamaConfig struct {
	URL string `yaml:"url"`
}

// Server is the root application configuration.
type Server struct {
	ListenAddr     string       `yaml:"listen_addr"`
	Store          string       `yaml:"store"`    // "qdrant" or "memory"
	Provider       string       `yaml:"provider"` // "ollama" or "openai"
	GeneratorModel string       `yaml:"generator_model"`
	Qdrant         QdrantConfig `yaml:"qdrant"`
	Ollama         OllamaConfig `yaml:"ollama"`
}

// LoadServer reads the server configuration from path. A missing file is
// not an error; defaults plus environment overrides are returned instead.
func LoadServer(path string) (*Server, error) {
	cfg := defaultServer()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	applyServerDefaults(cfg)
	return cfg, nil
}

func defaultServer() *Server {
	return &Server{
		ListenAddr:     ":8000",
		Store:          "qdrant",
		Provider:       "ollama",
		GeneratorModel: DefaultGeneratorModel,
		Qdrant:         QdrantConfig{Host: "localhost", Port: 6334},
		Ollama:         OllamaConfig{URL: "http://localhost:11434"},
	}
}

// applyEnv overlays environment variables on top of file values. Env wins
// so deployments can override a baked-in config file.
func applyEnv(cfg *Server) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("KB_STORE"); v != "" {
		cfg.Store = v
	}
	if v := os.Getenv("KB_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("KB_GENERATOR_MODEL"); v != "" {
		cfg.GeneratorModel = v
	}
	if v := os.Getenv("QDRANT_HOST"); v != "" {
		cfg.Qdrant.Host = v
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		var p int
		if _, err := fmt.Sscanf(v, "%d", &p); err == nil {
			cfg.Qdrant.Port = p
		}
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		cfg.Ollama.URL = v
	}
}

func applyServerDefaults(cfg *Server) {
	def := defaultServer()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.Store == "" {
		cfg.Store = def.Store
	}
	if cfg.Provider == "" {
		cfg.Provider = def.Provider
	}
	if cfg.GeneratorModel == "" {
		cfg.GeneratorModel = def.GeneratorModel
	}
	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = def.Qdrant.Host
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = def.Qdrant.Port
	}
	if cfg.Ollama.URL == "" {
		cfg.Ollama.URL = def.Ollama.URL
	}
}
