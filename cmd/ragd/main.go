package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/docrag/api/config"
	"github.com/docrag/api/internal/docstore"
	"github.com/docrag/api/internal/documents"
	"github.com/docrag/api/internal/embeddings"
	"github.com/docrag/api/internal/ollama"
	"github.com/docrag/api/internal/rag"
	"github.com/docrag/api/internal/server"
	"github.com/docrag/api/internal/tui"
	"github.com/docrag/api/internal/vectorstore"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "ragd",
		Short: "Document RAG service: ingest PDFs and Markdown, ask questions",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	var serverURL string
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Open a terminal chat against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := tea.NewProgram(tui.New(serverURL), tea.WithAltScreen()).Run()
			return err
		},
	}
	chatCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8000", "base URL of the ragd server")

	root.AddCommand(serveCmd, chatCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	for _, dir := range []string{cfg.DocumentsDir(), cfg.MetaDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	emb, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := vectorstore.New(ctx, cfg.Database.ConnectionString, cfg.Embeddings.Dimension, emb)
	if err != nil {
		return err
	}
	defer store.Close()

	docs, err := docstore.New(filepath.Join(cfg.MetaDir(), "docs.json"))
	if err != nil {
		return err
	}

	processor := documents.NewProcessor(store, cfg.Processing.ChunkSize, cfg.Processing.ChunkOverlap)
	chat := ollama.NewClient(cfg.Ollama.BaseURL, cfg.Ollama.Model)
	engine := rag.NewEngine(store, chat)

	srv := server.New(cfg, docs, processor, engine, store)
	log.Printf("listening on %s (embedding=%s llm=%s)", cfg.Server.ListenAddr, cfg.Embeddings.Model, cfg.Ollama.Model)
	return http.ListenAndServe(cfg.Server.ListenAddr, srv.Handler())
}

func buildEmbedder(cfg *config.Config) (embeddings.Embedder, error) {
	switch cfg.Embeddings.Type {
	case "", "ollama":
		return embeddings.NewOllamaEmbedder(cfg.Ollama.BaseURL, cfg.Embeddings.Model), nil
	case "openai":
		apiKey := os.Getenv(cfg.Embeddings.OpenAI.APIKeyEnv)
		return embeddings.NewOpenAIEmbedder(cfg.Embeddings.OpenAI.BaseURL, apiKey, cfg.Embeddings.Model)
	default:
		return nil, fmt.Errorf("unknown embedder type: %q", cfg.Embeddings.Type)
	}
}
