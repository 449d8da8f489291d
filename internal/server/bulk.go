package server

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/docrag/api/internal/docstore"
)

// BulkUploadRequest names a directory to scan for documents.
type BulkUploadRequest struct {
	DirectoryPath string `json:"directory_path"`
}

// BulkUploadResult is the outcome for one scanned file.
type BulkUploadResult struct {
	FileName     string `json:"file_name"`
	DocID        string `json:"doc_id,omitempty"`
	Status       string `json:"status"` // "success", "error", "skipped"
	ErrorMessage string `json:"error_message,omitempty"`
	Pages        int    `json:"pages,omitempty"`
	Chunks       int    `json:"chunks,omitempty"`
}

// BulkUploadResponse aggregates the per-file results.
type BulkUploadResponse struct {
	TotalFiles        int                `json:"total_files"`
	ProcessedFiles    int                `json:"processed_files"`
	SuccessfulUploads int                `json:"successful_uploads"`
	FailedUploads     int                `json:"failed_uploads"`
	SkippedFiles      int                `json:"skipped_files"`
	Results           []BulkUploadResult `json:"results"`
}

func (s *Server) handleBulkUpload(w http.ResponseWriter, r *http.Request) {
	var req BulkUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	info, err := os.Stat(req.DirectoryPath)
	if os.IsNotExist(err) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Directory does not exist: %s", req.DirectoryPath))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error scanning directory: %v", err))
		return
	}
	if !info.IsDir() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Path is not a directory: %s", req.DirectoryPath))
		return
	}

	files, err := scanDirectory(req.DirectoryPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error scanning directory: %v", err))
		return
	}

	log.Printf("bulk upload: %d candidate files under %s", len(files), req.DirectoryPath)

	resp := BulkUploadResponse{
		TotalFiles: len(files),
		Results:    []BulkUploadResult{},
	}
	for _, path := range files {
		result := s.processBulkFile(r, path)
		switch result.Status {
		case "success":
			resp.SuccessfulUploads++
		case "skipped":
			resp.SkippedFiles++
		default:
			resp.FailedUploads++
		}
		resp.Results = append(resp.Results, result)
	}
	resp.ProcessedFiles = len(resp.Results)

	log.Printf("bulk upload completed: %d successful, %d failed, %d skipped",
		resp.SuccessfulUploads, resp.FailedUploads, resp.SkippedFiles)
	writeJSON(w, http.StatusOK, resp)
}

// scanDirectory returns every .pdf/.md/.markdown file under root,
// recursively.
func scanDirectory(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".pdf", ".md", ".markdown":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// processBulkFile handles one file of a bulk upload. Failures are
// captured in the result so one bad file never aborts the batch.
func (s *Server) processBulkFile(r *http.Request, path string) BulkUploadResult {
	name := filepath.Base(path)
	result := BulkUploadResult{FileName: name}

	info, err := os.Stat(path)
	if err != nil {
		result.Status = "error"
		result.ErrorMessage = err.Error()
		return result
	}
	if info.Size() > s.cfg.MaxUploadBytes() {
		result.Status = "skipped"
		result.ErrorMessage = fmt.Sprintf("File too large. Max %dMB", s.cfg.Server.MaxUploadMB)
		return result
	}

	if !s.tryReserveName(name) {
		result.Status = "skipped"
		result.ErrorMessage = "File with same name already exists"
		return result
	}
	defer s.releaseName(name)

	exists, err := s.docs.HasFileName(name)
	if err != nil {
		result.Status = "error"
		result.ErrorMessage = err.Error()
		return result
	}
	if exists {
		result.Status = "skipped"
		result.ErrorMessage = "File with same name already exists"
		return result
	}

	docID := uuid.New().String()
	ext := fileExt(name)
	destPath := filepath.Join(s.cfg.DocumentsDir(), fmt.Sprintf("%s.%s", docID, ext))
	if err := copyFile(path, destPath); err != nil {
		result.Status = "error"
		result.ErrorMessage = err.Error()
		return result
	}

	pages, chunks, err := s.ingest.Ingest(r.Context(), destPath, name, docID, ext)
	if err != nil {
		log.Printf("error processing %s: %v", name, err)
		removeQuietly(destPath)
		result.Status = "error"
		result.ErrorMessage = err.Error()
		return result
	}

	meta := docstore.DocumentMeta{
		DocID:     docID,
		FileName:  name,
		FilePath:  destPath,
		SizeBytes: info.Size(),
		Pages:     pages,
		Chunks:    chunks,
		Status:    "ready",
		CreatedAt: docstore.Now(),
	}
	if err := s.docs.Upsert(meta); err != nil {
		log.Printf("error recording metadata for %s: %v", name, err)
		removeQuietly(destPath)
		result.Status = "error"
		result.ErrorMessage = err.Error()
		return result
	}

	log.Printf("successfully processed %s: %d chunks, %d pages", name, chunks, pages)
	result.DocID = docID
	result.Status = "success"
	result.Pages = pages
	result.Chunks = chunks
	return result
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return out.Close()
}
