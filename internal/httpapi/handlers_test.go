package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/kb-server/internal/document"
	"github.com/bull/kb-server/internal/embedding"
	"github.com/bull/kb-server/internal/llm"
	"github.com/bull/kb-server/internal/session"
	"github.com/bull/kb-server/internal/storage"
)

type stubEmbedder struct{ model string }

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (s *stubEmbedder) Model() string { return s.model }

type stubGenerator struct{ calls int }

func (s *stubGenerator) Generate(_ context.Context, _ string, _ float32) (string, error) {
	s.calls++
	return "the answer", nil
}

func (s *stubGenerator) Model() string { return "stub" }

// fileLoader reads staged files as single-page documents so uploads can
// be exercised without real PDF bytes.
func fileLoader(path string) ([]document.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}
	return []document.Page{{Text: text, Number: 1, Source: filepath.Base(path)}}, nil
}

func newTestServer(t *testing.T) (*Server, *stubGenerator) {
	t.Helper()
	gen := &stubGenerator{}
	manager := session.NewManager(
		storage.NewMemory(),
		func(model string) (embedding.Embedder, error) { return &stubEmbedder{model: model}, nil },
		func(model string) (llm.Generator, error) { return gen, nil },
		"llama3",
		fileLoader,
		nil,
	)
	return NewServer(manager, nil), gen
}

func multipartUpload(t *testing.T, files map[string]string, settings string, overwrite bool) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	if settings != "" {
		require.NoError(t, writer.WriteField("settings", settings))
	}
	if overwrite {
		require.NoError(t, writer.WriteField("overwrite", "true"))
	}
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestUpload_RequiresCallerIdentity(t *testing.T) {
	server, _ := newTestServer(t)
	body, contentType := multipartUpload(t, map[string]string{"doc.pdf": "text"}, "", true)

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpload_ThenAsk(t *testing.T) {
	server, gen := newTestServer(t)
	handler := server.Handler()

	body, contentType := multipartUpload(t,
		map[string]string{"handbook.pdf": "Vacation policy grants 25 days."},
		`{"chunkSize": 500, "chunkOverlap": 50}`, true)

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Caller-ID", "user-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var uploadResp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploadResp))
	assert.EqualValues(t, 1, uploadResp["files_processed"])

	// Status reflects the new configuration.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status session.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Configured)
	assert.Equal(t, 500, status.ChunkSize)

	// Ask returns the generator output.
	askBody := `{"question": "how many vacation days?", "settings": {"topK": 2}}`
	req = httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(askBody))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var askResp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &askResp))
	assert.Equal(t, "the answer", askResp["answer"])
	assert.Equal(t, "how many vacation days?", askResp["question"])
	assert.Equal(t, 1, gen.calls)
}

func TestUpload_RejectsNonPDF(t *testing.T) {
	server, _ := newTestServer(t)
	body, contentType := multipartUpload(t, map[string]string{"notes.txt": "text"}, "", true)

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Caller-ID", "user-1")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "only PDF files are allowed")
}

func TestUpload_NoFiles(t *testing.T) {
	server, _ := newTestServer(t)
	body, contentType := multipartUpload(t, nil, "", false)

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Caller-ID", "user-1")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsk_BeforeIngestIsBadRequest(t *testing.T) {
	server, gen := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question": "hi"}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, gen.calls)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClear(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	// Nothing ingested yet.
	req := httptest.NewRequest(http.MethodPost, "/clear", nil)
	req.Header.Set("X-Caller-ID", "user-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No database found to clear")

	// Ingest then clear.
	body, contentType := multipartUpload(t, map[string]string{"doc.pdf": "content"}, "", true)
	req = httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Caller-ID", "user-1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/clear", nil)
	req.Header.Set("X-Caller-ID", "user-1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cleared successfully")
}
