package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama generates answers through a local Ollama instance using the
// non-streaming generate API.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a generator for the given Ollama base URL and model.
func NewOllama(baseURL, model string) (*Ollama, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("generator model is empty")
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Model returns the configured Ollama model name.
func (o *Ollama) Model() string { return o.model }

// Generate invokes the model and returns its full response text.
func (o *Ollama) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"model":  o.model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate request failed: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var parsed struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse generate response: %w", err)
	}
	if parsed.Response == "" {
		return "", fmt.Errorf("model %s returned empty response", o.model)
	}

	return parsed.Response, nil
}
