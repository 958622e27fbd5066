// Package bootstrap wires infrastructure into the retrieval pipeline for
// both binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/expediente-labs/legal-case-assistant/internal/config"
	"github.com/expediente-labs/legal-case-assistant/internal/core/ports"
	"github.com/expediente-labs/legal-case-assistant/internal/core/usecase"
	"github.com/expediente-labs/legal-case-assistant/internal/infrastructure/llm/ollama"
	"github.com/expediente-labs/legal-case-assistant/internal/infrastructure/queue/nats"
	"github.com/expediente-labs/legal-case-assistant/internal/infrastructure/repository/postgres"
	"github.com/expediente-labs/legal-case-assistant/internal/infrastructure/resilience"
	"github.com/expediente-labs/legal-case-assistant/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     *nats.Queue
	Sessions  *postgres.SessionRepository
	Retriever ports.ContextRetriever

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sessions := postgres.NewSessionRepository(db, cfg.SessionContextMessages)
	if err := sessions.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	embedder := ollama.NewEmbedder(ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, executor))
	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	searcher := qdrant.NewSearcher(embedder, vectorDB, executor)
	caseFiles := qdrant.NewCaseFileStore(vectorDB, executor)

	resolver := usecase.NewReferenceResolver()
	fallback := usecase.NewFallbackSearchManager(searcher, usecase.FallbackConfig{
		Enabled:        cfg.FallbackEnabled,
		Multiplier:     cfg.FallbackMultiplier,
		FloorThreshold: cfg.FallbackFloorThreshold,
		ExpandedTopK:   cfg.FallbackExpandedTopK,
	}, logger)
	aggregator := usecase.NewChunkAggregator(usecase.AggregatorConfig{
		MaxFragments:        cfg.AggregateMaxFragments,
		MaxCharsPerFragment: cfg.AggregateMaxChars,
	})
	retriever := usecase.NewRetrievalOrchestrator(
		resolver,
		fallback,
		aggregator,
		sessions,
		caseFiles,
		queue,
		usecase.RetrievalConfig{
			DefaultTopK:      cfg.RetrievalTopK,
			DefaultThreshold: cfg.SearchThreshold,
			MinResults:       cfg.RetrievalMinResults,
			FullFetchMax:     cfg.FullFetchMaxFragments,
			SessionTimeout:   time.Duration(cfg.SessionTimeoutSeconds) * time.Second,
			FetchTimeout:     time.Duration(cfg.FetchTimeoutSeconds) * time.Second,
			SearchTimeout:    time.Duration(cfg.SearchTimeoutSeconds) * time.Second,
		},
		logger,
	)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Queue:     queue,
		Sessions:  sessions,
		Retriever: retriever,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
