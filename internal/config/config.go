// Package config provides layered configuration loading for the ragbench CLI:
// compiled-in defaults, an optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete ragbench configuration surface.
type Config struct {
	LLM         LLMConfig         `koanf:"llm"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Persistence PersistenceConfig `koanf:"persistence"`
	RAG         RAGConfig         `koanf:"rag"`
	Eval        EvalConfig        `koanf:"eval"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// TelemetryConfig selects whether OpenTelemetry export is active and where
// it sends spans and metrics. It mirrors internal/telemetry.Config's shape
// rather than embedding it directly, since that package already depends on
// this one for its own Duration type.
type TelemetryConfig struct {
	Enabled        bool    `koanf:"enabled"`
	Endpoint       string  `koanf:"endpoint"`
	ServiceName    string  `koanf:"service_name"`
	ServiceVersion string  `koanf:"service_version"`
	Insecure       bool    `koanf:"insecure"`
	SamplingRate   float64 `koanf:"sampling_rate"`
}

// LLMConfig configures the language model client.
type LLMConfig struct {
	Provider     string   `koanf:"provider"` // openai, anthropic
	Model        string   `koanf:"model"`
	BaseURL      string   `koanf:"base_url"`
	APIKey       Secret   `koanf:"api_key"`
	Timeout      Duration `koanf:"timeout"`
	RateLimitRPS float64  `koanf:"rate_limit_rps"`
	MaxRetries   int      `koanf:"max_retries"`
}

// EmbeddingsConfig configures the embedding client.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    Secret `koanf:"api_key"`
	Dimension int    `koanf:"dimension"`
}

// VectorStoreConfig selects and configures the vector index client.
type VectorStoreConfig struct {
	Provider string        `koanf:"provider"` // chromem, qdrant
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
}

// QdrantConfig configures the optional Qdrant gRPC backend.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	UseTLS     bool   `koanf:"use_tls"`
	APIKey     Secret `koanf:"api_key"`
	Collection string `koanf:"collection"`
}

// PersistenceConfig configures the sqlite-backed persistence layer.
type PersistenceConfig struct {
	SQLitePath string `koanf:"sqlite_path"`
}

// RAGConfig holds request-level defaults for the fan-out dispatcher and
// techniques. Per-query overrides come from the request's own config map
// and take precedence over these defaults.
type RAGConfig struct {
	TopK                int      `koanf:"top_k"`
	MaxConcurrency      int      `koanf:"max_concurrency"`
	PerTechniqueTimeout Duration `koanf:"per_technique_timeout"`
}

// EvalConfig holds defaults for the evaluation dispatcher and the
// reference-metric evaluator's isolated worker.
type EvalConfig struct {
	Concurrency            int      `koanf:"concurrency"`
	ReferenceMetricTimeout Duration `koanf:"reference_metric_timeout"`
}

// NewDefaultConfig returns config with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:     "openai",
			Model:        "gpt-4o-mini",
			BaseURL:      "https://api.openai.com/v1",
			Timeout:      Duration(60 * time.Second),
			RateLimitRPS: 5,
			MaxRetries:   3,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			BaseURL:   "https://api.openai.com/v1",
			Dimension: 1536,
		},
		VectorStore: VectorStoreConfig{
			Provider: "chromem",
			Chromem: ChromemConfig{
				Path:       "~/.config/ragbench/vectorstore",
				Collection: "ragbench_default",
			},
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				Collection: "ragbench_default",
			},
		},
		Persistence: PersistenceConfig{
			SQLitePath: "~/.config/ragbench/ragbench.db",
		},
		RAG: RAGConfig{
			TopK:                5,
			MaxConcurrency:      3,
			PerTechniqueTimeout: Duration(120 * time.Second),
		},
		Eval: EvalConfig{
			Concurrency:            2,
			ReferenceMetricTimeout: Duration(300 * time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			ServiceName:    "ragbench",
			ServiceVersion: "0.1.0",
			Insecure:       true,
			SamplingRate:   1.0,
		},
	}
}

// Validate rejects an invalid configuration surface before any collaborator
// is constructed.
func (c *Config) Validate() error {
	if c.LLM.Timeout.Duration() <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must be >= 0")
	}
	if c.LLM.RateLimitRPS <= 0 {
		return fmt.Errorf("llm.rate_limit_rps must be positive")
	}

	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embeddings.dimension must be positive")
	}

	switch c.VectorStore.Provider {
	case "chromem":
		if c.VectorStore.Chromem.Path == "" {
			return fmt.Errorf("vectorstore.chromem.path must be set")
		}
	case "qdrant":
		if c.VectorStore.Qdrant.Host == "" {
			return fmt.Errorf("vectorstore.qdrant.host must be set")
		}
		if c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535 {
			return fmt.Errorf("vectorstore.qdrant.port must be 1-65535, got %d", c.VectorStore.Qdrant.Port)
		}
	default:
		return fmt.Errorf("vectorstore.provider must be 'chromem' or 'qdrant', got %q", c.VectorStore.Provider)
	}

	if c.Persistence.SQLitePath == "" {
		return fmt.Errorf("persistence.sqlite_path must be set")
	}

	if c.RAG.TopK < 0 {
		return fmt.Errorf("rag.top_k must be >= 0")
	}
	if c.RAG.MaxConcurrency < 1 || c.RAG.MaxConcurrency > 10 {
		return fmt.Errorf("rag.max_concurrency must be 1-10, got %d", c.RAG.MaxConcurrency)
	}
	if c.RAG.PerTechniqueTimeout.Duration() <= 0 {
		return fmt.Errorf("rag.per_technique_timeout must be positive")
	}

	if c.Eval.Concurrency < 1 || c.Eval.Concurrency > 5 {
		return fmt.Errorf("eval.concurrency must be 1-5, got %d", c.Eval.Concurrency)
	}
	if c.Eval.ReferenceMetricTimeout.Duration() <= 0 {
		return fmt.Errorf("eval.reference_metric_timeout must be positive")
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint must be set when telemetry is enabled")
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("telemetry.sampling_rate must be between 0 and 1, got %f", c.Telemetry.SamplingRate)
	}

	return nil
}
