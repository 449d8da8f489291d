// Package server exposes the document RAG pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/docrag/api/config"
	"github.com/docrag/api/internal/docstore"
	"github.com/docrag/api/internal/rag"
	"github.com/docrag/api/internal/vectorstore"
)

// Ingestor is the document ingestion pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, filePath, fileName, docID, fileType string) (pages, chunks int, err error)
}

// Engine is the retrieval/answer pipeline.
type Engine interface {
	Answer(ctx context.Context, query string, topK int, docIDs []string) (string, []rag.SourceChunk, rag.Usage, error)
	AnswerStream(ctx context.Context, query string, topK int, docIDs []string, onToken func(string)) ([]rag.SourceChunk, rag.Usage, error)
	Retrieve(ctx context.Context, query string, topK int, docIDs []string) ([]vectorstore.Result, error)
}

// ChunkDeleter removes a document's chunks from the vector index.
type ChunkDeleter interface {
	DeleteDoc(ctx context.Context, docID string) error
}

// Server routes HTTP requests to the pipelines.
type Server struct {
	cfg    *config.Config
	docs   *docstore.Store
	ingest Ingestor
	engine Engine
	chunks ChunkDeleter

	// inflight holds file names currently being ingested, closing the
	// window where two concurrent uploads of the same name both pass
	// the duplicate check.
	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a server over the given dependencies.
func New(cfg *config.Config, docs *docstore.Store, ingest Ingestor, engine Engine, chunks ChunkDeleter) *Server {
	return &Server{
		cfg:      cfg,
		docs:     docs,
		ingest:   ingest,
		engine:   engine,
		chunks:   chunks,
		inflight: make(map[string]struct{}),
	}
}

// Handler returns the routed HTTP handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /bulk-upload", s.handleBulkUpload)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /documents", s.handleListDocuments)
	mux.HandleFunc("DELETE /documents/{docID}", s.handleDeleteDocument)
	return s.logRequests(s.cors(mux))
}

func (s *Server) cors(next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(s.cfg.Server.CORSAllowOrigins))
	for _, o := range s.cfg.Server.CORSAllowOrigins {
		allowed[o] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if _, ok := allowed[origin]; ok {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

// tryReserveName marks name as in-flight; false if already taken.
func (s *Server) tryReserveName(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

func (s *Server) releaseName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, name)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"models": map[string]string{
			"embedding": s.cfg.Embeddings.Model,
			"llm":       s.cfg.Ollama.Model,
		},
		"storage": map[string]string{
			"documents_dir": s.cfg.DocumentsDir(),
			"meta_dir":      s.cfg.MetaDir(),
		},
	})
}
