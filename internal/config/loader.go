// internal/config/loader.go
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// LoadWithFile loads configuration from defaults, then an optional YAML file,
// then environment variable overrides.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (LLM_MODEL, VECTORSTORE_PROVIDER, etc.)
//  2. YAML config file (~/.config/ragbench/config.yaml)
//  3. Compiled-in defaults
//
// The configPath parameter specifies the YAML file to load. If empty, uses the
// default path.
//
// # Security considerations
//
// File permissions: the config file MUST have 0600 or 0400 permissions.
// Files with weaker permissions (e.g. world-readable) are rejected.
//
// Path validation: only configuration files in allowed directories can be
// loaded (~/.config/ragbench/ or /etc/ragbench/). Absolute paths outside
// these directories are rejected to prevent path traversal.
//
// File size limit: files larger than 1MB are rejected.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(defaultsProvider{NewDefaultConfig()}, nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "ragbench", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment overrides: SECTION_FIELD -> section.field (lower-cased).
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// defaultsProvider adapts an already-populated *Config into a koanf.Provider
// so compiled-in defaults merge through the same layering as the file and
// environment providers below.
type defaultsProvider struct {
	cfg *Config
}

func (defaultsProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("ReadBytes not supported for defaults provider")
}

func (p defaultsProvider) Read() (map[string]interface{}, error) {
	return map[string]interface{}{
		"llm": map[string]interface{}{
			"provider":       p.cfg.LLM.Provider,
			"model":          p.cfg.LLM.Model,
			"base_url":       p.cfg.LLM.BaseURL,
			"api_key":        p.cfg.LLM.APIKey.Value(),
			"timeout":        p.cfg.LLM.Timeout.Duration().String(),
			"rate_limit_rps": p.cfg.LLM.RateLimitRPS,
			"max_retries":    p.cfg.LLM.MaxRetries,
		},
		"embeddings": map[string]interface{}{
			"provider":  p.cfg.Embeddings.Provider,
			"model":     p.cfg.Embeddings.Model,
			"base_url":  p.cfg.Embeddings.BaseURL,
			"api_key":   p.cfg.Embeddings.APIKey.Value(),
			"dimension": p.cfg.Embeddings.Dimension,
		},
		"vectorstore": map[string]interface{}{
			"provider": p.cfg.VectorStore.Provider,
			"chromem": map[string]interface{}{
				"path":       p.cfg.VectorStore.Chromem.Path,
				"collection": p.cfg.VectorStore.Chromem.Collection,
			},
			"qdrant": map[string]interface{}{
				"host":       p.cfg.VectorStore.Qdrant.Host,
				"port":       p.cfg.VectorStore.Qdrant.Port,
				"use_tls":    p.cfg.VectorStore.Qdrant.UseTLS,
				"api_key":    p.cfg.VectorStore.Qdrant.APIKey.Value(),
				"collection": p.cfg.VectorStore.Qdrant.Collection,
			},
		},
		"persistence": map[string]interface{}{
			"sqlite_path": p.cfg.Persistence.SQLitePath,
		},
		"rag": map[string]interface{}{
			"top_k":                 p.cfg.RAG.TopK,
			"max_concurrency":       p.cfg.RAG.MaxConcurrency,
			"per_technique_timeout": p.cfg.RAG.PerTechniqueTimeout.Duration().String(),
		},
		"eval": map[string]interface{}{
			"concurrency":              p.cfg.Eval.Concurrency,
			"reference_metric_timeout": p.cfg.Eval.ReferenceMetricTimeout.Duration().String(),
		},
		"telemetry": map[string]interface{}{
			"enabled":         p.cfg.Telemetry.Enabled,
			"endpoint":        p.cfg.Telemetry.Endpoint,
			"service_name":    p.cfg.Telemetry.ServiceName,
			"service_version": p.cfg.Telemetry.ServiceVersion,
			"insecure":        p.cfg.Telemetry.Insecure,
			"sampling_rate":   p.cfg.Telemetry.SamplingRate,
		},
	}, nil
}

// EnsureConfigDir creates the ragbench config directory if it doesn't exist.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	configDir := filepath.Join(home, ".config", "ragbench")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigPath checks if path is in allowed directories. This
// validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Path may not exist yet; validate the unresolved absolute path.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "ragbench"),
		"/etc/ragbench",
	}

	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.config/ragbench/ or /etc/ragbench/")
}

// validateConfigFileProperties checks file permissions and size. Takes
// FileInfo from an already-opened file descriptor to avoid a TOCTOU race.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}
