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

// AnthropicBackend classifies entailment with a Claude model. Anthropic
// has no embeddings endpoint, so similarity falls back to the lexical scorer.
type AnthropicBackend struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	config     Config
	similarity *Lexical
}

// Anthropic API structures
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const defaultAnthropicModel = "claude-3-5-haiku-20241022"

// NewAnthropicBackend creates a new Anthropic backend
func NewAnthropicBackend(config Config) (*AnthropicBackend, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &AnthropicBackend{
		apiKey:  config.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy)},
		},
		config:     config,
		similarity: NewLexical(),
	}, nil
}

// Name returns the backend name
func (b *AnthropicBackend) Name() string {
	return "anthropic"
}

// IsAvailable makes a minimal API call
func (b *AnthropicBackend) IsAvailable(ctx context.Context) bool {
	_, err := b.makeRequest(ctx, anthropicRequest{
		Model:     b.model(),
		MaxTokens: 10,
		Messages:  []anthropicMessage{{Role: "user", Content: "Hi"}},
	})
	if err != nil {
		logger.Warn("Anthropic API check failed: %v", err)
		return false
	}
	return true
}

// Similarity uses the lexical scorer
func (b *AnthropicBackend) Similarity(ctx context.Context, a, c string) (float64, error) {
	return b.similarity.Similarity(ctx, a, c)
}

// ClassifyEntailment asks the model for class probabilities as JSON
func (b *AnthropicBackend) ClassifyEntailment(ctx context.Context, premise, hypothesis string) (Entailment, error) {
	resp, err := b.makeRequest(ctx, anthropicRequest{
		Model:     b.model(),
		MaxTokens: 100,
		System:    entailmentSystemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: entailmentPrompt(premise, hypothesis)},
		},
	})
	if err != nil {
		return Entailment{}, err
	}
	if len(resp.Content) == 0 {
		return Entailment{}, fmt.Errorf("no content in Anthropic response")
	}

	return parseEntailment(resp.Content[0].Text)
}

func (b *AnthropicBackend) model() string {
	if b.config.Model != "" {
		return b.config.Model
	}
	return defaultAnthropicModel
}

// makeRequest makes an HTTP request to the Anthropic API
func (b *AnthropicBackend) makeRequest(ctx context.Context, apiReq anthropicRequest) (*anthropicResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/messages", b.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", b.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	httpResp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		msg := string(respBody)
		var apiErr anthropicError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Type + " - " + apiErr.Error.Message
		}
		return nil, &StatusError{Provider: "Anthropic", Code: httpResp.StatusCode, Message: msg}
	}

	var resp anthropicResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &resp, nil
}
