package server

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/docrag/api/internal/docstore"
)

var allowedContentTypes = map[string]struct{}{
	"application/pdf": {},
	"text/markdown":   {},
	"text/plain":      {},
}

var allowedExtensions = map[string]struct{}{
	"pdf":      {},
	"md":       {},
	"markdown": {},
}

// UploadResponse is the result of a successful single-file upload.
type UploadResponse struct {
	DocID    string `json:"docId"`
	FileName string `json:"fileName"`
	Pages    int    `json:"pages"`
	Chunks   int    `json:"chunks"`
	Status   string `json:"status"`
}

func fileExt(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return "txt"
	}
	return ext
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes()); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	ext := fileExt(header.Filename)
	if _, okCT := allowedContentTypes[contentType]; !okCT {
		if _, okExt := allowedExtensions[ext]; !okExt {
			writeError(w, http.StatusBadRequest, "Only PDF and Markdown files are allowed")
			return
		}
	}

	maxBytes := s.cfg.MaxUploadBytes()
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read upload")
		return
	}
	if int64(len(data)) > maxBytes {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("File too large. Max %dMB", s.cfg.Server.MaxUploadMB))
		return
	}

	docID := uuid.New().String()
	savePath := filepath.Join(s.cfg.DocumentsDir(), fmt.Sprintf("%s.%s", docID, ext))
	if err := os.WriteFile(savePath, data, 0644); err != nil {
		log.Printf("failed to save upload %s: %v", header.Filename, err)
		writeError(w, http.StatusInternalServerError, "Failed to save file")
		return
	}

	pages, chunks, err := s.ingest.Ingest(r.Context(), savePath, header.Filename, docID, ext)
	if err != nil {
		log.Printf("failed to ingest %s: %v", header.Filename, err)
		removeQuietly(savePath)
		writeError(w, http.StatusInternalServerError, "Failed to ingest document")
		return
	}

	meta := docstore.DocumentMeta{
		DocID:     docID,
		FileName:  header.Filename,
		FilePath:  savePath,
		SizeBytes: int64(len(data)),
		Pages:     pages,
		Chunks:    chunks,
		Status:    "ready",
		CreatedAt: docstore.Now(),
	}
	if err := s.docs.Upsert(meta); err != nil {
		log.Printf("failed to record metadata for %s: %v", docID, err)
		writeError(w, http.StatusInternalServerError, "Failed to record document metadata")
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		DocID:    docID,
		FileName: header.Filename,
		Pages:    pages,
		Chunks:   chunks,
		Status:   "ready",
	})
}

// removeQuietly is best-effort cleanup after a failed ingest; its own
// failure is logged and never propagated.
func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("cleanup failed for %s: %v", path, err)
	}
}
