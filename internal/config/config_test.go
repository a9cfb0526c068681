package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexConfig_ApplyDefaults(t *testing.T) {
	var cfg IndexConfig
	cfg.ApplyDefaults()

	assert.Equal(t, DefaultLocation, cfg.Location)
	assert.Equal(t, DefaultCollection, cfg.Collection)
	assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 150, cfg.ChunkOverlap)
	assert.Equal(t, 4, cfg.TopK)
	assert.NoError(t, cfg.Validate())
}

func TestIndexConfig_ApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := IndexConfig{ChunkSize: 500, ChunkOverlap: 50, EmbeddingModel: "mxbai-embed-large"}
	cfg.ApplyDefaults()

	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, "mxbai-embed-large", cfg.EmbeddingModel)
}

func TestIndexConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*IndexConfig)
		wantErr bool
	}{
		{"defaults valid", func(c *IndexConfig) {}, false},
		{"zero chunk size", func(c *IndexConfig) { c.ChunkSize = -1 }, true},
		{"overlap equals size", func(c *IndexConfig) { c.ChunkOverlap = c.ChunkSize }, true},
		{"negative overlap", func(c *IndexConfig) { c.ChunkOverlap = -1 }, true},
		{"empty model", func(c *IndexConfig) { c.EmbeddingModel = " " }, true},
		{"empty location", func(c *IndexConfig) { c.Location = "" }, true},
		{"zero topK", func(c *IndexConfig) { c.TopK = -2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg IndexConfig
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIndexConfig_QualifiedCollection(t *testing.T) {
	cfg := IndexConfig{Location: "hr docs/2024", Collection: "kb_documents"}
	assert.Equal(t, "hr_docs_2024__kb_documents", cfg.QualifiedCollection())
}

func TestLoadServer_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadServer(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.ListenAddr)
	assert.Equal(t, "qdrant", cfg.Store)
	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, "localhost", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
}

func TestLoadServer_FileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("listen_addr: \":9000\"\nqdrant:\n  host: qdrant.internal\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	t.Setenv("QDRANT_PORT", "7000")
	cfg, err := LoadServer(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, 7000, cfg.Qdrant.Port)
	// Unset fields still fall back to defaults.
	assert.Equal(t, "llama3", cfg.GeneratorModel)
}
