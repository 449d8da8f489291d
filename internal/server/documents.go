package server

import (
	"log"
	"net/http"
)

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	metas, err := s.docs.List()
	if err != nil {
		log.Printf("failed to list documents: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, metas)
}

// handleDeleteDocument removes a document's metadata, its indexed
// chunks, and the stored file. Deleting an unknown docID is a no-op.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("docID")

	meta, found, err := s.docs.Get(docID)
	if err != nil {
		log.Printf("failed to load metadata for %s: %v", docID, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}

	if found {
		if err := s.chunks.DeleteDoc(r.Context(), docID); err != nil {
			log.Printf("failed to delete chunks for %s: %v", docID, err)
			writeError(w, http.StatusInternalServerError, "Failed to delete document")
			return
		}
		if err := s.docs.Delete(docID); err != nil {
			log.Printf("failed to delete metadata for %s: %v", docID, err)
			writeError(w, http.StatusInternalServerError, "Failed to delete document")
			return
		}
		removeQuietly(meta.FilePath)
	}

	w.WriteHeader(http.StatusNoContent)
}
