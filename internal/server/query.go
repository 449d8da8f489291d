package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/docrag/api/internal/rag"
)

// QueryRequest is the body for /query and /search.
type QueryRequest struct {
	Query  string   `json:"query"`
	DocIDs []string `json:"docIds,omitempty"`
	TopK   int      `json:"topK"`
	Stream bool     `json:"stream"`
}

// QueryResponse is the synchronous answer shape.
type QueryResponse struct {
	Answer  string            `json:"answer"`
	Sources []rag.SourceChunk `json:"sources"`
	Usage   rag.Usage         `json:"usage"`
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (QueryRequest, bool) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "Query must not be empty")
		return req, false
	}
	if req.TopK <= 0 {
		req.TopK = rag.DefaultTopK
	}
	return req, true
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	if req.Stream {
		s.streamQuery(w, r, req)
		return
	}

	answer, sources, usage, err := s.engine.Answer(r.Context(), req.Query, req.TopK, req.DocIDs)
	if err != nil {
		log.Printf("query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to answer query")
		return
	}
	if sources == nil {
		sources = []rag.SourceChunk{}
	}
	writeJSON(w, http.StatusOK, QueryResponse{Answer: answer, Sources: sources, Usage: usage})
}

// streamQuery writes the model's reply as a chunked text stream. The
// prompt and retrieval are identical to the synchronous path; only the
// response framing differs. Headers go out with the first token, so a
// failure before any output still surfaces as a JSON 500.
func (s *Server) streamQuery(w http.ResponseWriter, r *http.Request, req QueryRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	wrote := false
	_, _, err := s.engine.AnswerStream(r.Context(), req.Query, req.TopK, req.DocIDs, func(token string) {
		if !wrote {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			wrote = true
		}
		if _, werr := w.Write([]byte(token)); werr == nil {
			flusher.Flush()
		}
	})
	if err != nil {
		log.Printf("streaming query failed: %v", err)
		if !wrote {
			writeError(w, http.StatusInternalServerError, "Failed to answer query")
		}
		// Mid-stream there is nothing more to salvage.
		return
	}
	if !wrote {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	results, err := s.engine.Retrieve(r.Context(), req.Query, req.TopK, req.DocIDs)
	if err != nil {
		log.Printf("search failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to search")
		return
	}
	texts := make([]string, 0, len(results))
	for _, res := range results {
		texts = append(texts, res.Text)
	}
	writeJSON(w, http.StatusOK, texts)
}
