package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.ListenAddr)
	assert.Equal(t, 50, cfg.Server.MaxUploadMB)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	assert.Equal(t, "llama3.2", cfg.Ollama.Model)
	assert.Equal(t, 500, cfg.Processing.ChunkSize)
	assert.Equal(t, 50, cfg.Processing.ChunkOverlap)
	assert.Equal(t, 5, cfg.Processing.TopK)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "server:\n  max_upload_mb: 10\nollama:\n  model: mistral\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Server.MaxUploadMB)
	assert.Equal(t, "mistral", cfg.Ollama.Model)
	// Untouched keys keep their defaults.
	assert.Equal(t, ":8000", cfg.Server.ListenAddr)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n\t- not yaml"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://elsewhere/db")
	t.Setenv("RAGD_STORAGE_ROOT", "/tmp/ragd-test")
	t.Setenv("RAGD_MAX_UPLOAD_MB", "7")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://elsewhere/db", cfg.Database.ConnectionString)
	assert.Equal(t, "/tmp/ragd-test", cfg.Paths.StorageRoot)
	assert.Equal(t, 7, cfg.Server.MaxUploadMB)
	assert.Equal(t, filepath.Join("/tmp/ragd-test", "documents"), cfg.DocumentsDir())
}

func TestMaxUploadBytes(t *testing.T) {
	cfg := Default()
	cfg.Server.MaxUploadMB = 2
	assert.Equal(t, int64(2*1024*1024), cfg.MaxUploadBytes())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Ollama.Model = "qwen2"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "qwen2", loaded.Ollama.Model)
}
