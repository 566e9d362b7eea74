package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/sourcecheck/internal/model"
)

// Backend is the verification capability used by retrieval and validation.
// Similarity returns a score in [0,1]; ClassifyEntailment labels how the
// premise bears on the hypothesis.
type Backend interface {
	// Name returns the backend name
	Name() string

	// Similarity scores how closely a and b match in meaning
	Similarity(ctx context.Context, a, b string) (float64, error)

	// ClassifyEntailment labels the premise as entailing, contradicting or
	// being neutral toward the hypothesis
	ClassifyEntailment(ctx context.Context, premise, hypothesis string) (Entailment, error)

	// IsAvailable checks if the backend is configured and reachable
	IsAvailable(ctx context.Context) bool
}

// Label is an entailment class
type Label string

const (
	LabelEntailment    Label = "entailment"
	LabelNeutral       Label = "neutral"
	LabelContradiction Label = "contradiction"
)

// Labels lists the entailment classes; argmax ties resolve to the earliest
var Labels = []Label{LabelNeutral, LabelEntailment, LabelContradiction}

// Entailment is a classification result
type Entailment struct {
	Label      Label             `json:"label"`
	Confidence float64           `json:"confidence"`
	Scores     map[Label]float64 `json:"scores"`
}

// FromScores normalizes class scores and picks the most probable label
func FromScores(scores map[Label]float64) Entailment {
	total := 0.0
	for _, l := range Labels {
		if s := scores[l]; s > 0 {
			total += s
		}
	}
	if total == 0 {
		return Entailment{Label: LabelNeutral, Confidence: 1, Scores: map[Label]float64{LabelNeutral: 1}}
	}

	out := Entailment{Scores: make(map[Label]float64, len(Labels))}
	for _, l := range Labels {
		s := math.Max(scores[l], 0) / total
		out.Scores[l] = s
		if out.Label == "" || s > out.Confidence {
			out.Label = l
			out.Confidence = s
		}
	}
	return out
}

// ErrUnavailable is returned when a backend cannot serve requests
var ErrUnavailable = errors.New("backend unavailable")

// StatusError is a non-2xx response from a remote backend
type StatusError struct {
	Provider string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.Code, e.Message)
}

// Temporary reports whether the status is worth retrying
func (e *StatusError) Temporary() bool {
	return e.Code == 429 || e.Code >= 500
}

// Config holds backend provider configuration
type Config struct {
	// Provider name: "lexical", "openai", "anthropic", "ollama"
	Provider string

	// Model for entailment classification (provider-specific)
	Model string

	// EmbeddingModel for similarity (openai, ollama)
	EmbeddingModel string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// ConfigFromModel converts the application config into a backend config
func ConfigFromModel(b model.BackendConfig, h model.HTTPConfig) Config {
	return Config{
		Provider:       b.Provider,
		Model:          b.Model,
		EmbeddingModel: b.EmbeddingModel,
		APIKey:         b.APIKey,
		BaseURL:        b.BaseURL,
		Timeout:        b.Timeout,
		HTTPProxy:      h.HTTPProxy,
		HTTPSProxy:     h.HTTPSProxy,
		NoProxy:        h.NoProxy,
	}
}

const entailmentSystemPrompt = `You are a natural language inference classifier. Given a PREMISE taken from a source document and a HYPOTHESIS, decide whether the premise entails the hypothesis, contradicts it, or is neutral toward it. Judge only from the premise; do not use outside knowledge.

Respond with a single JSON object and nothing else:
{"entailment": <probability>, "neutral": <probability>, "contradiction": <probability>}
The three probabilities must sum to 1.`

func entailmentPrompt(premise, hypothesis string) string {
	return fmt.Sprintf("PREMISE: %s\nHYPOTHESIS: %s", premise, hypothesis)
}

// parseEntailment reads the classifier's JSON answer, tolerating text around it
func parseEntailment(text string) (Entailment, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Entailment{}, fmt.Errorf("no JSON object in response: %q", truncate(text, 80))
	}

	var raw map[string]float64
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return Entailment{}, fmt.Errorf("parse classification: %w", err)
	}

	scores := make(map[Label]float64, len(Labels))
	for k, v := range raw {
		scores[Label(strings.ToLower(k))] = v
	}
	return FromScores(scores), nil
}

// vectorCosine compares two embeddings, clamped to [0,1]
func vectorCosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, sim))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
