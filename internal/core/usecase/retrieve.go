package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/expediente-labs/legal-case-assistant/internal/core/domain"
	"github.com/expediente-labs/legal-case-assistant/internal/core/ports"
)

// RetrievalConfig bounds one retrieval request.
type RetrievalConfig struct {
	DefaultTopK      int
	DefaultThreshold float64
	MinResults       int
	FullFetchMax     int

	SessionTimeout time.Duration
	FetchTimeout   time.Duration
	SearchTimeout  time.Duration
}

func (c RetrievalConfig) normalize() RetrievalConfig {
	out := c
	if out.DefaultTopK <= 0 {
		out.DefaultTopK = 8
	}
	if out.DefaultThreshold <= 0 {
		out.DefaultThreshold = 0.35
	}
	if out.MinResults <= 0 {
		out.MinResults = 3
	}
	if out.FullFetchMax <= 0 {
		out.FullFetchMax = 100
	}
	if out.SessionTimeout <= 0 {
		out.SessionTimeout = 5 * time.Second
	}
	if out.FetchTimeout <= 0 {
		out.FetchTimeout = 15 * time.Second
	}
	if out.SearchTimeout <= 0 {
		out.SearchTimeout = 10 * time.Second
	}
	return out
}

// RetrievalOrchestrator composes the resolver, the fallback ladder and the
// aggregator into the retrieve operation. Collaborator failures degrade to
// zero fragments from that source; the request itself fails only on
// invalid input or caller cancellation.
type RetrievalOrchestrator struct {
	resolver   *ReferenceResolver
	fallback   *FallbackSearchManager
	aggregator *ChunkAggregator
	sessions   ports.SessionStore
	caseFiles  ports.CaseFileStore
	events     ports.ReferenceEventPublisher
	cfg        RetrievalConfig
	logger     *slog.Logger
}

func NewRetrievalOrchestrator(
	resolver *ReferenceResolver,
	fallback *FallbackSearchManager,
	aggregator *ChunkAggregator,
	sessions ports.SessionStore,
	caseFiles ports.CaseFileStore,
	events ports.ReferenceEventPublisher,
	cfg RetrievalConfig,
	logger *slog.Logger,
) *RetrievalOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalOrchestrator{
		resolver:   resolver,
		fallback:   fallback,
		aggregator: aggregator,
		sessions:   sessions,
		caseFiles:  caseFiles,
		events:     events,
		cfg:        cfg.normalize(),
		logger:     logger,
	}
}

// Retrieve resolves the query against the session history, picks the
// retrieval mode, and returns the assembled context block. A resolved
// reference (explicit or contextual) selects full-case-file mode: recall
// matters more than precision for a known case, so no similarity
// threshold applies there. An empty or failed full fetch falls through to
// the semantic fallback ladder rather than failing the request.
func (o *RetrievalOrchestrator) Retrieve(ctx context.Context, query, sessionID string, topK int) (*domain.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	sessionID = strings.TrimSpace(sessionID)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("query is required"))
	}
	if sessionID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("session_id is required"))
	}
	if topK <= 0 {
		topK = o.cfg.DefaultTopK
	}

	conversationContext := o.loadSessionContext(ctx, sessionID)
	resolution := o.resolver.Resolve(query, conversationContext)
	if resolution.Kind == domain.ReferenceContextual && !resolution.Resolved() {
		o.logger.Warn("contextual_reference_unresolved",
			"session_id", sessionID,
			"query_chars", len(query),
		)
	}

	result := &domain.RetrievalResult{
		Mode:          domain.ModeSemanticFallback,
		Reference:     resolution.Reference,
		ReferenceKind: resolution.Kind,
	}

	var fragments []domain.Fragment
	if resolution.Resolved() {
		fragments = o.fetchFullCaseFile(ctx, resolution.Reference)
		if len(fragments) > 0 {
			result.Mode = domain.ModeFullCaseFile
		}
	}

	if len(fragments) == 0 {
		searchCtx, cancel := context.WithTimeout(ctx, o.cfg.SearchTimeout)
		searchResult, err := o.fallback.SearchWithFallback(searchCtx, query, topK, o.cfg.DefaultThreshold, o.cfg.MinResults)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Warn("semantic_search_failed", "session_id", sessionID, "error", err)
		}
		fragments = searchResult.Fragments
		result.Stage = searchResult.Stage
	}

	result.Context = o.aggregator.Format(fragments)
	if result.Context.FragmentCount == 0 {
		o.logger.Info("retrieval_empty", "session_id", sessionID, "mode", result.Mode)
	}

	// Write back the observed reference only for completed requests, so an
	// aborted turn cannot poison later contextual resolution.
	if resolution.Resolved() && ctx.Err() == nil {
		o.recordReference(ctx, sessionID, resolution.Reference)
	}

	return result, nil
}

func (o *RetrievalOrchestrator) loadSessionContext(ctx context.Context, sessionID string) string {
	sessionCtx, cancel := context.WithTimeout(ctx, o.cfg.SessionTimeout)
	defer cancel()

	conversationContext, err := o.sessions.GetSessionContext(sessionCtx, sessionID)
	if err != nil {
		if !domain.IsKind(err, domain.ErrSessionNotFound) {
			o.logger.Warn("session_context_unavailable", "session_id", sessionID, "error", err)
		}
		return ""
	}
	return conversationContext
}

func (o *RetrievalOrchestrator) fetchFullCaseFile(ctx context.Context, ref domain.CaseFileReference) []domain.Fragment {
	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	defer cancel()

	fragments, err := o.caseFiles.GetCaseFileFragments(fetchCtx, ref, o.cfg.FullFetchMax)
	if err != nil {
		o.logger.Warn("case_file_fetch_failed", "reference", ref, "error", err)
		return nil
	}
	if len(fragments) > o.cfg.FullFetchMax {
		fragments = fragments[:o.cfg.FullFetchMax]
	}
	return fragments
}

func (o *RetrievalOrchestrator) recordReference(ctx context.Context, sessionID string, ref domain.CaseFileReference) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishReferenceObserved(ctx, sessionID, ref); err != nil {
		o.logger.Warn("reference_event_publish_failed", "session_id", sessionID, "reference", ref, "error", err)
	}
}
