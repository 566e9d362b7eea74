package backend

import (
	"fmt"
	"strings"
)

// New creates the backend named by the configuration
func New(config Config) (Backend, error) {
	switch strings.ToLower(config.Provider) {
	case "", LexicalName:
		return NewLexical(), nil

	case "openai":
		return NewOpenAIBackend(config)

	case "anthropic", "claude":
		return NewAnthropicBackend(config)

	case "ollama":
		return NewOllamaBackend(config)

	default:
		return nil, fmt.Errorf("unknown backend provider: %s (supported: lexical, openai, anthropic, ollama)", config.Provider)
	}
}
