package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/sourcecheck/internal/logger"
	"github.com/ppiankov/sourcecheck/internal/util"
)

// OllamaBackend uses a local Ollama server for embeddings and classification
type OllamaBackend struct {
	baseURL    string
	httpClient *http.Client
	config     Config
}

// Ollama API structures
type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	System  string        `json:"system,omitempty"`
	Format  string        `json:"format,omitempty"`
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"` // Max tokens
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

type ollamaError struct {
	Error string `json:"error"`
}

const defaultOllamaEmbeddingModel = "nomic-embed-text"

// NewOllamaBackend creates a new Ollama backend
func NewOllamaBackend(config Config) (*OllamaBackend, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("ollama model must be specified (e.g., llama3.1:8b, mistral)")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second // Ollama can be slower for local models
	}

	return &OllamaBackend{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
			},
		},
		config: config,
	}, nil
}

// Name returns the backend name
func (b *OllamaBackend) Name() string {
	return "ollama"
}

// IsAvailable checks if Ollama is running by listing models
func (b *OllamaBackend) IsAvailable(ctx context.Context) bool {
	url := fmt.Sprintf("%s/api/tags", b.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		logger.Warn("Ollama availability check failed (request creation): %v", err)
		return false
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		logger.Warn("Ollama availability check failed (connection to %s): %v", b.baseURL, err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("Ollama availability check failed (HTTP %d from %s)", resp.StatusCode, b.baseURL)
		return false
	}

	return true
}

// Similarity embeds both texts and compares the vectors
func (b *OllamaBackend) Similarity(ctx context.Context, a, c string) (float64, error) {
	va, err := b.embed(ctx, a)
	if err != nil {
		return 0, err
	}
	vc, err := b.embed(ctx, c)
	if err != nil {
		return 0, err
	}
	return vectorCosine(va, vc), nil
}

// ClassifyEntailment asks the model for class probabilities in JSON mode
func (b *OllamaBackend) ClassifyEntailment(ctx context.Context, premise, hypothesis string) (Entailment, error) {
	var resp ollamaGenerateResponse
	err := b.post(ctx, "/api/generate", ollamaGenerateRequest{
		Model:   b.config.Model,
		Prompt:  entailmentPrompt(premise, hypothesis),
		System:  entailmentSystemPrompt,
		Format:  "json",
		Options: ollamaOptions{NumPredict: 100},
	}, &resp)
	if err != nil {
		return Entailment{}, err
	}
	return parseEntailment(resp.Response)
}

func (b *OllamaBackend) embed(ctx context.Context, text string) ([]float64, error) {
	embeddingModel := b.config.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = defaultOllamaEmbeddingModel
	}

	var resp ollamaEmbeddingResponse
	if err := b.post(ctx, "/api/embeddings", ollamaEmbeddingRequest{Model: embeddingModel, Prompt: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}
	return resp.Embedding, nil
}

// post makes a JSON request to the Ollama API
func (b *OllamaBackend) post(ctx context.Context, path string, apiReq, out any) error {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		msg := string(respBody)
		var apiErr ollamaError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &StatusError{Provider: "Ollama", Code: httpResp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
