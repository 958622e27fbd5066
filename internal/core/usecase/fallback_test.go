package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/expediente-labs/legal-case-assistant/internal/core/domain"
)

type stageSearcherFake struct {
	calls     []stageCall
	responses []stageResponse
}

type stageCall struct {
	topK      int
	threshold float64
}

type stageResponse struct {
	fragments []domain.Fragment
	err       error
}

func (f *stageSearcherFake) SearchByText(_ context.Context, _ string, topK int, threshold float64, _ string) ([]domain.Fragment, error) {
	call := len(f.calls)
	f.calls = append(f.calls, stageCall{topK: topK, threshold: threshold})
	if call >= len(f.responses) {
		return nil, nil
	}
	return f.responses[call].fragments, f.responses[call].err
}

func makeFragments(n int) []domain.Fragment {
	out := make([]domain.Fragment, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Fragment{
			FragmentID:    fmt.Sprintf("f-%d", i),
			DocumentID:    "doc-1",
			DocumentName:  "demanda.pdf",
			FragmentIndex: i,
		})
	}
	return out
}

func TestFallbackStageOneSatisfiesMinimum(t *testing.T) {
	searcher := &stageSearcherFake{responses: []stageResponse{
		{fragments: makeFragments(3)},
	}}
	manager := NewFallbackSearchManager(searcher, FallbackConfig{Enabled: true}, nil)

	result, err := manager.SearchWithFallback(context.Background(), "q", 5, 0.4, 3)
	if err != nil {
		t.Fatalf("SearchWithFallback() error = %v", err)
	}
	if result.Stage != 1 || !result.SatisfiedMinimum {
		t.Fatalf("expected satisfied stage 1, got %+v", result)
	}
	if len(searcher.calls) != 1 {
		t.Fatalf("expected 1 collaborator call, got %d", len(searcher.calls))
	}
}

func TestFallbackLadderProceedsToTerminalStage(t *testing.T) {
	searcher := &stageSearcherFake{responses: []stageResponse{
		{fragments: nil},
		{fragments: makeFragments(2)},
		{fragments: makeFragments(12)},
	}}
	manager := NewFallbackSearchManager(searcher, FallbackConfig{
		Enabled:        true,
		Multiplier:     0.7,
		FloorThreshold: 0.15,
		ExpandedTopK:   30,
	}, nil)

	result, err := manager.SearchWithFallback(context.Background(), "q", 5, 0.4, 3)
	if err != nil {
		t.Fatalf("SearchWithFallback() error = %v", err)
	}
	if result.Stage != 3 {
		t.Fatalf("expected stage 3, got %d", result.Stage)
	}
	if len(result.Fragments) != 5 {
		t.Fatalf("expected truncation to top_k=5, got %d", len(result.Fragments))
	}
	if len(searcher.calls) != 3 {
		t.Fatalf("expected exactly 3 collaborator calls, got %d", len(searcher.calls))
	}

	// Each stage must be equal-or-more permissive than the previous one.
	if searcher.calls[1].threshold >= searcher.calls[0].threshold {
		t.Fatalf("stage 2 threshold %f not below stage 1 %f", searcher.calls[1].threshold, searcher.calls[0].threshold)
	}
	if searcher.calls[2].threshold > searcher.calls[1].threshold {
		t.Fatalf("stage 3 threshold %f above stage 2 %f", searcher.calls[2].threshold, searcher.calls[1].threshold)
	}
	if searcher.calls[2].topK < searcher.calls[1].topK {
		t.Fatalf("stage 3 top_k %d below stage 2 %d", searcher.calls[2].topK, searcher.calls[1].topK)
	}
}

func TestFallbackZeroResultsTerminatesWithoutError(t *testing.T) {
	searcher := &stageSearcherFake{}
	manager := NewFallbackSearchManager(searcher, FallbackConfig{Enabled: true}, nil)

	result, err := manager.SearchWithFallback(context.Background(), "q", 5, 0.4, 3)
	if err != nil {
		t.Fatalf("SearchWithFallback() error = %v", err)
	}
	if len(result.Fragments) != 0 {
		t.Fatalf("expected empty result, got %d fragments", len(result.Fragments))
	}
	if result.SatisfiedMinimum {
		t.Fatalf("expected unsatisfied minimum")
	}
	if len(searcher.calls) != 3 {
		t.Fatalf("expected 3 collaborator calls, got %d", len(searcher.calls))
	}
}

func TestFallbackDisabledRunsStageOneOnly(t *testing.T) {
	searcher := &stageSearcherFake{responses: []stageResponse{
		{fragments: makeFragments(1)},
	}}
	manager := NewFallbackSearchManager(searcher, FallbackConfig{Enabled: false}, nil)

	result, err := manager.SearchWithFallback(context.Background(), "q", 5, 0.4, 3)
	if err != nil {
		t.Fatalf("SearchWithFallback() error = %v", err)
	}
	if result.Stage != 1 || result.SatisfiedMinimum {
		t.Fatalf("expected unsatisfied stage 1, got %+v", result)
	}
	if len(result.Fragments) != 1 {
		t.Fatalf("expected stage 1 result as-is, got %d fragments", len(result.Fragments))
	}
	if len(searcher.calls) != 1 {
		t.Fatalf("expected 1 collaborator call, got %d", len(searcher.calls))
	}
}

func TestFallbackStageErrorCountsAsZeroResults(t *testing.T) {
	searcher := &stageSearcherFake{responses: []stageResponse{
		{err: errors.New("vector search down")},
		{fragments: makeFragments(4)},
	}}
	manager := NewFallbackSearchManager(searcher, FallbackConfig{Enabled: true}, nil)

	result, err := manager.SearchWithFallback(context.Background(), "q", 5, 0.4, 3)
	if err != nil {
		t.Fatalf("SearchWithFallback() error = %v", err)
	}
	if result.Stage != 2 || !result.SatisfiedMinimum {
		t.Fatalf("expected satisfied stage 2, got %+v", result)
	}
}

func TestFallbackCanceledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	searcher := &stageSearcherFake{}
	manager := NewFallbackSearchManager(searcher, FallbackConfig{Enabled: true}, nil)

	_, err := manager.SearchWithFallback(ctx, "q", 5, 0.4, 3)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
