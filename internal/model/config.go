package model

import (
	"runtime"
	"time"
)

// Config is the application configuration (CLI and server), separate from the
// per-run schema and policy
type Config struct {
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Backend     BackendConfig     `yaml:"backend" mapstructure:"backend"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
}

// HTTPConfig configures the source fetcher
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InsecureTLS   bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// BackendConfig selects the verification backend
type BackendConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider"` // lexical, openai, anthropic, ollama
	Model          string `yaml:"model,omitempty" mapstructure:"model"`
	EmbeddingModel string `yaml:"embedding_model,omitempty" mapstructure:"embedding_model"`
	APIKey         string `yaml:"-" mapstructure:"api_key"`
	BaseURL        string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout        int    `yaml:"timeout" mapstructure:"timeout"` // seconds
}

// CacheConfig configures the backend result cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir,omitempty" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ServerConfig configures the HTTP wrapper
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// ConcurrencyConfig configures worker counts
type ConcurrencyConfig struct {
	Workers      int `yaml:"workers" mapstructure:"workers"`
	BatchWorkers int `yaml:"batch_workers" mapstructure:"batch_workers"`
}

// OutputConfig configures report rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// DefaultConfig returns the built-in application defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "SourceCheck/0.1 (+https://github.com/ppiankov/sourcecheck)",
			MaxBodyBytes:  2_000_000,
			RespectRobots: true,
		},
		Backend: BackendConfig{
			Provider: "lexical",
			Timeout:  30,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: time.Hour,
			DiskTTL:   24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:         ":8000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 3 * time.Minute,
			MaxBodyBytes: 8 << 20,
		},
		Concurrency: ConcurrencyConfig{
			Workers:      runtime.NumCPU(),
			BatchWorkers: 2,
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
	}
}
