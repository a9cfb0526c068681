package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/bull/kb-server/internal/config"
	"github.com/bull/kb-server/internal/document"
	"github.com/bull/kb-server/internal/session"
)

// maxUploadBytes bounds the total multipart form size held in memory.
const maxUploadBytes = 64 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "knowledge base API is running",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.manager.Current(r.Context())
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleUpload stages the uploaded PDFs into a temporary directory,
// ingests them under the settings carried in the form, and removes the
// staging directory on every exit path.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	var cfg config.IndexConfig
	if raw := r.FormValue("settings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid settings: "+err.Error())
			return
		}
	}
	overwrite := r.FormValue("overwrite") == "true"

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided")
		return
	}

	staging, err := os.MkdirTemp("", "kb-upload-")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create staging dir: "+err.Error())
		return
	}
	defer os.RemoveAll(staging)

	paths := make([]string, 0, len(files))
	for i, header := range files {
		name := filepath.Base(header.Filename)
		if !document.Supported(name) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("only PDF files are allowed, got %s", name))
			return
		}
		path := filepath.Join(staging, fmt.Sprintf("%d_%s", i, name))
		if err := saveUpload(header, path); err != nil {
			writeError(w, http.StatusInternalServerError, "stage upload: "+err.Error())
			return
		}
		paths = append(paths, path)
	}

	result, err := s.manager.Ingest(r.Context(), paths, cfg, overwrite)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":         fmt.Sprintf("Successfully ingested %d files into the knowledge base", result.Documents),
		"files_processed": result.Documents,
		"chunks":          result.Chunks,
		"collection":      result.Collection,
	})
}

func saveUpload(header *multipart.FileHeader, path string) error {
	src, err := header.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Close()
}

type askRequest struct {
	Question string `json:"question"`
	Settings struct {
		TopK        int     `json:"topK"`
		LLMModel    string  `json:"llmModel"`
		Temperature float32 `json:"temperature"`
	} `json:"settings"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	text, err := s.manager.Ask(r.Context(), req.Question, session.AskOptions{
		TopK:        req.Settings.TopK,
		Model:       req.Settings.LLMModel,
		Temperature: req.Settings.Temperature,
	})
	if err != nil {
		s.writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"question": req.Question,
		"answer":   text,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	cleared, err := s.manager.Clear(r.Context())
	if err != nil {
		s.writeCoreError(w, err)
		return
	}

	message := "No database found to clear"
	if cleared {
		message = "Knowledge base cleared successfully"
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}
