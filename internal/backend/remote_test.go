package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const classifierAnswer = `{"entailment": 0.05, "neutral": 0.15, "contradiction": 0.8}`

func TestOpenAIBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/v1/embeddings":
			// Returned out of order to exercise index handling
			_, _ = fmt.Fprint(w, `{"object":"list","model":"text-embedding-3-small","data":[
				{"object":"embedding","index":1,"embedding":[0,1]},
				{"object":"embedding","index":0,"embedding":[1,1]}]}`)
		case "/v1/chat/completions":
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "gpt-4o-mini", req["model"])
			resp := map[string]any{
				"id": "chatcmpl-1", "object": "chat.completion", "model": "gpt-4o-mini",
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": classifierAnswer},
				}},
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	b, err := NewOpenAIBackend(Config{APIKey: "test-key", BaseURL: server.URL + "/v1", Timeout: 5})
	require.NoError(t, err)

	sim, err := b.Similarity(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 0.7071, sim, 1e-3)

	e, err := b.ClassifyEntailment(context.Background(), "premise", "hypothesis")
	require.NoError(t, err)
	assert.Equal(t, LabelContradiction, e.Label)
	assert.InDelta(t, 0.8, e.Confidence, 1e-9)
}

func TestOpenAIBackendStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	}))
	defer server.Close()

	b, err := NewOpenAIBackend(Config{APIKey: "test-key", BaseURL: server.URL + "/v1", Timeout: 5})
	require.NoError(t, err)

	_, err = b.ClassifyEntailment(context.Background(), "p", "h")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.True(t, IsRetryable(err))
}

func TestAnthropicBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, entailmentSystemPrompt, req.System)
		assert.Equal(t, defaultAnthropicModel, req.Model)

		_, _ = fmt.Fprintf(w, `{"id":"msg_1","model":%q,"content":[{"type":"text","text":%q}]}`, req.Model, classifierAnswer)
	}))
	defer server.Close()

	b, err := NewAnthropicBackend(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	require.NoError(t, err)

	e, err := b.ClassifyEntailment(context.Background(), "premise", "hypothesis")
	require.NoError(t, err)
	assert.Equal(t, LabelContradiction, e.Label)

	sim, err := b.Similarity(context.Background(), "chest pain", "chest pain")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)
}

func TestAnthropicBackendStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer server.Close()

	b, err := NewAnthropicBackend(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = b.ClassifyEntailment(context.Background(), "p", "h")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
	assert.Contains(t, statusErr.Message, "rate_limit_error")
}

func TestOllamaBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = fmt.Fprint(w, `{"models":[]}`)
		case "/api/embeddings":
			var req ollamaEmbeddingRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, defaultOllamaEmbeddingModel, req.Model)
			if req.Prompt == "a" {
				_, _ = fmt.Fprint(w, `{"embedding":[3,4,0]}`)
			} else {
				_, _ = fmt.Fprint(w, `{"embedding":[4,3,0]}`)
			}
		case "/api/generate":
			var req ollamaGenerateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "json", req.Format)
			assert.Equal(t, "llama3.1:8b", req.Model)
			_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Model: req.Model, Response: classifierAnswer, Done: true})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = fmt.Fprint(w, `{"error":"not found"}`)
		}
	}))
	defer server.Close()

	b, err := NewOllamaBackend(Config{Model: "llama3.1:8b", BaseURL: server.URL})
	require.NoError(t, err)

	assert.True(t, b.IsAvailable(context.Background()))

	sim, err := b.Similarity(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 0.96, sim, 1e-9)

	e, err := b.ClassifyEntailment(context.Background(), "premise", "hypothesis")
	require.NoError(t, err)
	assert.Equal(t, LabelContradiction, e.Label)
}

func TestOllamaBackendUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprint(w, `{"error":"model not loaded"}`)
	}))
	defer server.Close()

	b, err := NewOllamaBackend(Config{Model: "llama3.1:8b", BaseURL: server.URL})
	require.NoError(t, err)

	assert.False(t, b.IsAvailable(context.Background()))

	_, err = b.Similarity(context.Background(), "a", "b")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "model not loaded", statusErr.Message)
}
