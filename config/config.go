package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Server struct {
		ListenAddr       string   `yaml:"listen_addr"`
		CORSAllowOrigins []string `yaml:"cors_allow_origins"`
		MaxUploadMB      int      `yaml:"max_upload_mb"`
	} `yaml:"server"`
	Database struct {
		ConnectionString string `yaml:"connection_string"`
	} `yaml:"database"`
	Ollama struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"ollama"`
	Embeddings struct {
		Type      string `yaml:"type"` // "ollama" or "openai"
		Model     string `yaml:"model"`
		Dimension int    `yaml:"dimension"`
		OpenAI    struct {
			BaseURL   string `yaml:"base_url"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"openai"`
	} `yaml:"embeddings"`
	Processing struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
		TopK         int `yaml:"top_k"`
	} `yaml:"processing"`
	Paths struct {
		StorageRoot string `yaml:"storage_root"`
	} `yaml:"paths"`
}

// DocumentsDir is where raw uploaded files live, named {docId}.{ext}.
func (c *Config) DocumentsDir() string {
	return filepath.Join(c.Paths.StorageRoot, "documents")
}

// MetaDir holds the document metadata JSON.
func (c *Config) MetaDir() string {
	return filepath.Join(c.Paths.StorageRoot, "meta")
}

// MaxUploadBytes returns the upload size cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) * 1024 * 1024
}

// Load loads configuration from file, then applies environment
// overrides. A missing config file is not an error; a .env file in the
// working directory is picked up first so overrides can see it.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".ragd", "config.yaml")
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".ragd", "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Default returns default configuration
func Default() *Config {
	cfg := &Config{}

	cfg.Server.ListenAddr = ":8000"
	cfg.Server.CORSAllowOrigins = []string{
		"http://localhost:5173",
		"http://127.0.0.1:5173",
	}
	cfg.Server.MaxUploadMB = 50
	cfg.Database.ConnectionString = "postgres://postgres@localhost/postgres?sslmode=disable"
	cfg.Ollama.BaseURL = "http://localhost:11434"
	cfg.Ollama.Model = "llama3.2"
	cfg.Embeddings.Type = "ollama"
	cfg.Embeddings.Model = "nomic-embed-text"
	cfg.Embeddings.Dimension = 768
	cfg.Embeddings.OpenAI.BaseURL = "https://api.openai.com/v1"
	cfg.Embeddings.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	cfg.Processing.ChunkSize = 500
	cfg.Processing.ChunkOverlap = 50
	cfg.Processing.TopK = 5
	cfg.Paths.StorageRoot = filepath.Join(os.Getenv("HOME"), ".ragd", "storage")

	return cfg
}

// applyDefaults fills in zero values left by a partial config file.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = def.Server.ListenAddr
	}
	if len(cfg.Server.CORSAllowOrigins) == 0 {
		cfg.Server.CORSAllowOrigins = def.Server.CORSAllowOrigins
	}
	if cfg.Server.MaxUploadMB <= 0 {
		cfg.Server.MaxUploadMB = def.Server.MaxUploadMB
	}
	if cfg.Database.ConnectionString == "" {
		cfg.Database.ConnectionString = def.Database.ConnectionString
	}
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = def.Ollama.BaseURL
	}
	if cfg.Ollama.Model == "" {
		cfg.Ollama.Model = def.Ollama.Model
	}
	if cfg.Embeddings.Type == "" {
		cfg.Embeddings.Type = def.Embeddings.Type
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = def.Embeddings.Model
	}
	if cfg.Embeddings.Dimension <= 0 {
		cfg.Embeddings.Dimension = def.Embeddings.Dimension
	}
	if cfg.Embeddings.OpenAI.BaseURL == "" {
		cfg.Embeddings.OpenAI.BaseURL = def.Embeddings.OpenAI.BaseURL
	}
	if cfg.Embeddings.OpenAI.APIKeyEnv == "" {
		cfg.Embeddings.OpenAI.APIKeyEnv = def.Embeddings.OpenAI.APIKeyEnv
	}
	if cfg.Processing.ChunkSize <= 0 {
		cfg.Processing.ChunkSize = def.Processing.ChunkSize
	}
	if cfg.Processing.ChunkOverlap < 0 {
		cfg.Processing.ChunkOverlap = def.Processing.ChunkOverlap
	}
	if cfg.Processing.TopK <= 0 {
		cfg.Processing.TopK = def.Processing.TopK
	}
	if cfg.Paths.StorageRoot == "" {
		cfg.Paths.StorageRoot = def.Paths.StorageRoot
	}
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.ConnectionString = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := os.Getenv("RAGD_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("RAGD_STORAGE_ROOT"); v != "" {
		cfg.Paths.StorageRoot = v
	}
	if v := os.Getenv("RAGD_LLM_MODEL"); v != "" {
		cfg.Ollama.Model = v
	}
	if v := os.Getenv("RAGD_EMBEDDING_MODEL"); v != "" {
		cfg.Embeddings.Model = v
	}
	if v := os.Getenv("RAGD_MAX_UPLOAD_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.MaxUploadMB = n
		}
	}
}
