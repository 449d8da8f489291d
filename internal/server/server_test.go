package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrag/api/config"
	"github.com/docrag/api/internal/docstore"
	"github.com/docrag/api/internal/rag"
	"github.com/docrag/api/internal/vectorstore"
)

type fakeIngestor struct {
	pages  int
	chunks int
	err    error
	calls  []string // file names ingested
}

func (f *fakeIngestor) Ingest(_ context.Context, _, fileName, _, _ string) (int, int, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	f.calls = append(f.calls, fileName)
	return f.pages, f.chunks, nil
}

type fakeEngine struct {
	answer  string
	results []vectorstore.Result
	err     error
	calls   int
}

func (f *fakeEngine) Answer(_ context.Context, query string, topK int, docIDs []string) (string, []rag.SourceChunk, rag.Usage, error) {
	f.calls++
	if f.err != nil {
		return "", nil, rag.Usage{}, f.err
	}
	sources := make([]rag.SourceChunk, 0, len(f.results))
	for _, r := range f.results {
		sources = append(sources, rag.SourceChunk{DocID: r.Meta.DocID, Page: r.Meta.Page, Score: r.Score, Snippet: rag.Snippet(r.Text)})
	}
	return f.answer, sources, rag.Usage{Retrieved: len(f.results)}, nil
}

func (f *fakeEngine) AnswerStream(_ context.Context, query string, topK int, docIDs []string, onToken func(string)) ([]rag.SourceChunk, rag.Usage, error) {
	f.calls++
	if f.err != nil {
		return nil, rag.Usage{}, f.err
	}
	for _, tok := range strings.SplitAfter(f.answer, " ") {
		onToken(tok)
	}
	return nil, rag.Usage{Retrieved: len(f.results)}, nil
}

func (f *fakeEngine) Retrieve(_ context.Context, query string, topK int, docIDs []string) ([]vectorstore.Result, error) {
	f.calls++
	return f.results, f.err
}

type fakeDeleter struct {
	deleted []string
}

func (f *fakeDeleter) DeleteDoc(_ context.Context, docID string) error {
	f.deleted = append(f.deleted, docID)
	return nil
}

type testEnv struct {
	srv     *Server
	handler http.Handler
	cfg     *config.Config
	docs    *docstore.Store
	ingest  *fakeIngestor
	engine  *fakeEngine
	deleter *fakeDeleter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.StorageRoot = t.TempDir()
	cfg.Server.MaxUploadMB = 1
	require.NoError(t, os.MkdirAll(cfg.DocumentsDir(), 0755))

	docs, err := docstore.New(filepath.Join(cfg.MetaDir(), "docs.json"))
	require.NoError(t, err)

	env := &testEnv{
		cfg:     cfg,
		docs:    docs,
		ingest:  &fakeIngestor{pages: 1, chunks: 3},
		engine:  &fakeEngine{answer: "an answer"},
		deleter: &fakeDeleter{},
	}
	env.srv = New(cfg, docs, env.ingest, env.engine, env.deleter)
	env.handler = env.srv.Handler()
	return env
}

func multipartBody(t *testing.T, fieldName, fileName, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldName, fileName)},
		"Content-Type":        {contentType},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadMarkdown(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, "file", "notes.md", "text/markdown", "# hello")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.DocID)
	assert.Equal(t, "notes.md", resp.FileName)
	assert.Equal(t, 1, resp.Pages)
	assert.Equal(t, 3, resp.Chunks)
	assert.Equal(t, "ready", resp.Status)

	// File persisted as {docId}.{ext} and metadata recorded.
	_, err := os.Stat(filepath.Join(env.cfg.DocumentsDir(), resp.DocID+".md"))
	assert.NoError(t, err)
	meta, ok, err := env.docs.Get(resp.DocID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "notes.md", meta.FileName)
}

func TestUploadRejectsUnknownExtension(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, "file", "image.png", "image/png", "not text")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Only PDF and Markdown files are allowed")
	assert.Empty(t, env.ingest.calls)
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	env := newTestEnv(t) // cap is 1MB

	big := strings.Repeat("a", 1024*1024+1)
	body, ct := multipartBody(t, "file", "big.md", "text/markdown", big)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "File too large")
	assert.Empty(t, env.ingest.calls)

	metas, err := env.docs.List()
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestUploadIngestFailureCleansUp(t *testing.T) {
	env := newTestEnv(t)
	env.ingest.err = fmt.Errorf("parse failure")

	body, ct := multipartBody(t, "file", "bad.md", "text/markdown", "content")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	metas, err := env.docs.List()
	require.NoError(t, err)
	assert.Empty(t, metas)

	entries, err := os.ReadDir(env.cfg.DocumentsDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "partial file should be cleaned up")
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestQueryEmptyRejectedBeforeRetrieval(t *testing.T) {
	env := newTestEnv(t)

	for _, q := range []string{"", "   ", "\n\t"} {
		rec := postJSON(t, env.handler, "/query", QueryRequest{Query: q})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Query must not be empty")
	}
	assert.Zero(t, env.engine.calls)
}

func TestQueryReturnsAnswerAndSources(t *testing.T) {
	env := newTestEnv(t)
	env.engine.results = []vectorstore.Result{
		{Text: "retrieved text", Score: 0.2, Meta: vectorstore.ChunkMeta{DocID: "doc-1", Page: 1}},
	}

	rec := postJSON(t, env.handler, "/query", QueryRequest{Query: "what?"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "an answer", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "doc-1", resp.Sources[0].DocID)
	assert.Equal(t, 1, resp.Sources[0].Page)
	assert.Equal(t, 1, resp.Usage.Retrieved)
}

func TestQueryStreamWritesTokens(t *testing.T) {
	env := newTestEnv(t)
	env.engine.answer = "token stream reply"

	rec := postJSON(t, env.handler, "/query", QueryRequest{Query: "what?", Stream: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "token stream reply", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestQueryStreamFailureBeforeOutputReturns500(t *testing.T) {
	env := newTestEnv(t)
	env.engine.err = fmt.Errorf("llm down")

	rec := postJSON(t, env.handler, "/query", QueryRequest{Query: "what?", Stream: true})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to answer query")
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestSearchReturnsTextsOnly(t *testing.T) {
	env := newTestEnv(t)
	env.engine.results = []vectorstore.Result{
		{Text: "first", Meta: vectorstore.ChunkMeta{DocID: "doc-1"}},
		{Text: "second", Meta: vectorstore.ChunkMeta{DocID: "doc-2"}},
	}

	rec := postJSON(t, env.handler, "/search", QueryRequest{Query: "what?"})
	require.Equal(t, http.StatusOK, rec.Code)

	var texts []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &texts))
	assert.Equal(t, []string{"first", "second"}, texts)
}

func TestBulkUploadMixedDirectory(t *testing.T) {
	env := newTestEnv(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.md"), []byte("fine"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "huge.md"), bytes.Repeat([]byte("x"), 1024*1024+1), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dup.md"), []byte("dup"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("skip me"), 0644))

	// dup.md already known under that name.
	require.NoError(t, env.docs.Upsert(docstore.DocumentMeta{DocID: "existing", FileName: "dup.md", Status: "ready", CreatedAt: docstore.Now()}))

	rec := postJSON(t, env.handler, "/bulk-upload", BulkUploadRequest{DirectoryPath: dir})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp BulkUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.TotalFiles)
	assert.Equal(t, 3, resp.ProcessedFiles)
	assert.Equal(t, 1, resp.SuccessfulUploads)
	assert.Equal(t, 2, resp.SkippedFiles)
	assert.Equal(t, 0, resp.FailedUploads)

	metas, err := env.docs.List()
	require.NoError(t, err)
	assert.Len(t, metas, 2) // pre-existing dup entry plus good.md
}

func TestBulkUploadMissingDirectory(t *testing.T) {
	env := newTestEnv(t)

	rec := postJSON(t, env.handler, "/bulk-upload", BulkUploadRequest{DirectoryPath: "/no/such/dir"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Directory does not exist")
}

func TestBulkUploadIsolatesFailures(t *testing.T) {
	env := newTestEnv(t)
	env.ingest.err = fmt.Errorf("broken parser")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("one"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("two"), 0644))

	rec := postJSON(t, env.handler, "/bulk-upload", BulkUploadRequest{DirectoryPath: dir})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BulkUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.FailedUploads)
	assert.Equal(t, 0, resp.SuccessfulUploads)
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.Equal(t, "error", r.Status)
		assert.Contains(t, r.ErrorMessage, "broken parser")
	}
}

func TestDeleteDocument(t *testing.T) {
	env := newTestEnv(t)

	filePath := filepath.Join(env.cfg.DocumentsDir(), "doc-1.md")
	require.NoError(t, os.WriteFile(filePath, []byte("stored"), 0644))
	require.NoError(t, env.docs.Upsert(docstore.DocumentMeta{DocID: "doc-1", FileName: "a.md", FilePath: filePath, Status: "ready", CreatedAt: docstore.Now()}))

	req := httptest.NewRequest(http.MethodDelete, "/documents/doc-1", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, []string{"doc-1"}, env.deleter.deleted)
	_, ok, err := env.docs.Get("doc-1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, statErr := os.Stat(filePath)
	assert.True(t, os.IsNotExist(statErr))

	// Repeated delete is a no-op.
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/documents/doc-1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, env.deleter.deleted, 1)
}

func TestListDocuments(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.docs.Upsert(docstore.DocumentMeta{DocID: "doc-1", FileName: "a.md", Status: "ready", CreatedAt: docstore.Now()}))

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var metas []docstore.DocumentMeta
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metas))
	require.Len(t, metas, 1)
	assert.Equal(t, "doc-1", metas[0].DocID)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status  string            `json:"status"`
		Models  map[string]string `json:"models"`
		Storage map[string]string `json:"storage"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, env.cfg.Embeddings.Model, resp.Models["embedding"])
	assert.Equal(t, env.cfg.Ollama.Model, resp.Models["llm"])
	assert.Equal(t, env.cfg.DocumentsDir(), resp.Storage["documents_dir"])
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
