// Package docstore persists document metadata as a single JSON file
// mapping docId to its upload record. All mutations are read-modify-write
// on the whole file, serialized by one mutex.
package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// DocumentMeta records a successfully ingested document.
type DocumentMeta struct {
	DocID     string `json:"docId"`
	FileName  string `json:"fileName"`
	FilePath  string `json:"filePath"`
	SizeBytes int64  `json:"sizeBytes"`
	Pages     int    `json:"pages"`
	Chunks    int    `json:"chunks"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

// Now returns the timestamp format used in CreatedAt.
func Now() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

type fileData struct {
	Documents map[string]DocumentMeta `json:"documents"`
}

// Store is a JSON-file backed document metadata store.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a store backed by the JSON file at path, creating the file
// (and parent directories) if it does not exist.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create meta directory: %w", err)
	}
	s := &Store{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.write(&fileData{Documents: map[string]DocumentMeta{}}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) read() (*fileData, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read doc store: %w", err)
	}
	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse doc store: %w", err)
	}
	if data.Documents == nil {
		data.Documents = map[string]DocumentMeta{}
	}
	return &data, nil
}

func (s *Store) write(data *fileData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal doc store: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write doc store: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the record for meta.DocID.
func (s *Store) Upsert(meta DocumentMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	data.Documents[meta.DocID] = meta
	return s.write(data)
}

// Get returns the record for docID, with ok=false when absent.
func (s *Store) Get(docID string) (DocumentMeta, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return DocumentMeta{}, false, err
	}
	meta, ok := data.Documents[docID]
	return meta, ok, nil
}

// List returns every record, newest first.
func (s *Store) List() ([]DocumentMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return nil, err
	}
	metas := make([]DocumentMeta, 0, len(data.Documents))
	for _, m := range data.Documents {
		metas = append(metas, m)
	}
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].CreatedAt != metas[j].CreatedAt {
			return metas[i].CreatedAt > metas[j].CreatedAt
		}
		return metas[i].DocID < metas[j].DocID
	})
	return metas, nil
}

// HasFileName reports whether any record carries the given file name.
func (s *Store) HasFileName(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return false, err
	}
	for _, m := range data.Documents {
		if m.FileName == name {
			return true, nil
		}
	}
	return false, nil
}

// Delete removes the record for docID. Deleting an absent docID is a no-op.
func (s *Store) Delete(docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := data.Documents[docID]; !ok {
		return nil
	}
	delete(data.Documents, docID)
	return s.write(data)
}
