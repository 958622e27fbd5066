package usecase

import (
	"context"
	"log/slog"

	"github.com/expediente-labs/legal-case-assistant/internal/core/domain"
	"github.com/expediente-labs/legal-case-assistant/internal/core/ports"
)

// FallbackConfig holds the ladder parameters. It is immutable after
// construction; per-call inputs (top_k, threshold, min results) travel as
// arguments.
type FallbackConfig struct {
	Enabled        bool
	Multiplier     float64 // stage-2 threshold relaxation factor
	FloorThreshold float64 // stage-3 absolute minimum threshold
	ExpandedTopK   int     // stage-3 top_k ceiling
}

func (c FallbackConfig) normalize() FallbackConfig {
	out := c
	if out.Multiplier <= 0 || out.Multiplier >= 1 {
		out.Multiplier = 0.7
	}
	if out.FloorThreshold <= 0 {
		out.FloorThreshold = 0.15
	}
	if out.ExpandedTopK <= 0 {
		out.ExpandedTopK = 30
	}
	return out
}

// FallbackSearchManager runs the three-stage threshold-relaxation ladder
// against the injected vector searcher. Each stage is strictly more
// permissive than the previous one; no stage is retried, so a query costs
// at most three searcher calls.
type FallbackSearchManager struct {
	searcher ports.VectorSearcher
	cfg      FallbackConfig
	logger   *slog.Logger
}

func NewFallbackSearchManager(searcher ports.VectorSearcher, cfg FallbackConfig, logger *slog.Logger) *FallbackSearchManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackSearchManager{
		searcher: searcher,
		cfg:      cfg.normalize(),
		logger:   logger,
	}
}

// SearchWithFallback walks the ladder until a stage satisfies minResults.
// Stage 3 is terminal: any results it finds are truncated to the original
// topK and returned even below the minimum. A searcher error counts as
// zero results for that stage and never aborts the ladder; only context
// cancellation does.
func (m *FallbackSearchManager) SearchWithFallback(ctx context.Context, query string, topK int, threshold float64, minResults int) (domain.SearchResult, error) {
	if topK <= 0 {
		topK = 1
	}
	if minResults <= 0 {
		minResults = 1
	}

	stage1 := m.runStage(ctx, 1, query, topK, threshold)
	if err := ctx.Err(); err != nil {
		return domain.SearchResult{}, err
	}
	if len(stage1) >= minResults {
		return domain.SearchResult{Fragments: stage1, Stage: 1, SatisfiedMinimum: true}, nil
	}
	if !m.cfg.Enabled {
		return domain.SearchResult{Fragments: stage1, Stage: 1, SatisfiedMinimum: false}, nil
	}

	relaxed := threshold * m.cfg.Multiplier
	stage2 := m.runStage(ctx, 2, query, topK, relaxed)
	if err := ctx.Err(); err != nil {
		return domain.SearchResult{}, err
	}
	if len(stage2) >= minResults {
		return domain.SearchResult{Fragments: stage2, Stage: 2, SatisfiedMinimum: true}, nil
	}

	expandedTopK := m.cfg.ExpandedTopK
	if expandedTopK < topK {
		expandedTopK = topK
	}
	floor := m.cfg.FloorThreshold
	if floor > relaxed {
		floor = relaxed
	}
	stage3 := m.runStage(ctx, 3, query, expandedTopK, floor)
	if err := ctx.Err(); err != nil {
		return domain.SearchResult{}, err
	}
	if len(stage3) > 0 {
		if len(stage3) > topK {
			stage3 = stage3[:topK]
		}
		return domain.SearchResult{Fragments: stage3, Stage: 3, SatisfiedMinimum: len(stage3) >= minResults}, nil
	}

	// The backend should be monotonic, but a flaky collaborator can still
	// leave an earlier stage as the best answer.
	if len(stage2) > len(stage1) {
		return domain.SearchResult{Fragments: stage2, Stage: 2, SatisfiedMinimum: false}, nil
	}
	if len(stage1) > 0 {
		return domain.SearchResult{Fragments: stage1, Stage: 1, SatisfiedMinimum: false}, nil
	}
	return domain.SearchResult{Stage: 3, SatisfiedMinimum: false}, nil
}

func (m *FallbackSearchManager) runStage(ctx context.Context, stage int, query string, topK int, threshold float64) []domain.Fragment {
	fragments, err := m.searcher.SearchByText(ctx, query, topK, threshold, "")
	if err != nil {
		m.logger.Warn("fallback_stage_failed",
			"stage", stage,
			"top_k", topK,
			"threshold", threshold,
			"error", err,
		)
		return nil
	}
	return fragments
}
