package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hwk-1212/rag-eval-project/internal/config"
	"github.com/hwk-1212/rag-eval-project/internal/dispatch"
	"github.com/hwk-1212/rag-eval-project/internal/embeddings"
	"github.com/hwk-1212/rag-eval-project/internal/evaluator"
	"github.com/hwk-1212/rag-eval-project/internal/index"
	"github.com/hwk-1212/rag-eval-project/internal/llmclient"
	"github.com/hwk-1212/rag-eval-project/internal/logging"
	"github.com/hwk-1212/rag-eval-project/internal/store"
	"github.com/hwk-1212/rag-eval-project/internal/technique"
	"github.com/hwk-1212/rag-eval-project/internal/telemetry"
	"go.uber.org/zap"
)

// app bundles the collaborators every subcommand needs. It is built fresh
// for each invocation from the layered configuration surface.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	store     *store.Store
	dispatch  *dispatch.Dispatcher
	evalDisp  *evaluator.Dispatcher
	reference *evaluator.ReferenceEvaluator
}

func buildApp(ctx context.Context, configPath string) (*app, func(), error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	logCfg := logging.NewDefaultConfig()
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("constructing logger: %w", err)
	}

	tel, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Insecure:       cfg.Telemetry.Insecure,
		Sampling:       telemetry.SamplingConfig{Rate: cfg.Telemetry.SamplingRate, AlwaysOnErrors: true},
		Metrics:        telemetry.MetricsConfig{Enabled: cfg.Telemetry.Enabled, ExportInterval: config.Duration(15 * time.Second)},
		Shutdown:       telemetry.ShutdownConfig{Timeout: config.Duration(5 * time.Second)},
	}, logger.Underlying())
	if err != nil {
		return nil, nil, fmt.Errorf("constructing telemetry: %w", err)
	}

	llm, err := llmclient.New(llmclient.Config{
		Provider:     cfg.LLM.Provider,
		Model:        cfg.LLM.Model,
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey.Value(),
		Timeout:      cfg.LLM.Timeout.Duration(),
		RateLimitRPS: cfg.LLM.RateLimitRPS,
		MaxRetries:   cfg.LLM.MaxRetries,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("constructing LLM client: %w", err)
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL:   cfg.Embeddings.BaseURL,
		Model:     cfg.Embeddings.Model,
		APIKey:    cfg.Embeddings.APIKey.Value(),
		Dimension: cfg.Embeddings.Dimension,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("constructing embedding client: %w", err)
	}

	idx, err := buildIndex(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("constructing vector index: %w", err)
	}

	st, err := store.Open(cfg.Persistence.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening persistence store: %w", err)
	}

	deps := technique.Deps{Index: idx, LLM: llm, Embedder: embedder}
	fanOut := dispatch.New(deps, st, logger)

	dimensional := evaluator.NewDimensionalEvaluator(llm, logger)
	reference := evaluator.NewReferenceEvaluator(llm, embedder, logger)
	evalDispatcher := evaluator.NewDispatcher(st, dimensional, reference, logger)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		telemetry: tel,
		store:     st,
		dispatch:  fanOut,
		evalDisp:  evalDispatcher,
		reference: reference,
	}

	cleanup := func() {
		reference.Close()
		_ = st.Close()
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Underlying().Warn("telemetry shutdown failed", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return a, cleanup, nil
}

func buildIndex(ctx context.Context, cfg *config.Config) (index.Index, error) {
	switch cfg.VectorStore.Provider {
	case "qdrant":
		return index.NewQdrantIndex(ctx, index.QdrantConfig{
			Host:       cfg.VectorStore.Qdrant.Host,
			Port:       cfg.VectorStore.Qdrant.Port,
			UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
			APIKey:     cfg.VectorStore.Qdrant.APIKey.Value(),
			Collection: cfg.VectorStore.Qdrant.Collection,
			Dimension:  cfg.Embeddings.Dimension,
			MaxRetries: cfg.LLM.MaxRetries,
		})
	default:
		return index.NewChromemIndex(index.ChromemConfig{
			Path:       cfg.VectorStore.Chromem.Path,
			Collection: cfg.VectorStore.Chromem.Collection,
			Dimension:  cfg.Embeddings.Dimension,
		})
	}
}
