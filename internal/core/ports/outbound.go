package ports

import (
	"context"
	"time"

	"github.com/expediente-labs/legal-case-assistant/internal/core/domain"
)

// VectorSearcher performs semantic similarity search over indexed
// fragments. Scores are cosine similarity in [0,1]; results come back
// sorted by descending score. An empty caseFilter searches everything.
type VectorSearcher interface {
	SearchByText(ctx context.Context, query string, topK int, threshold float64, caseFilter string) ([]domain.Fragment, error)
}

// CaseFileStore fetches every indexed fragment of a case file, up to limit.
// Ordering is not guaranteed; the aggregator re-sorts.
type CaseFileStore interface {
	GetCaseFileFragments(ctx context.Context, ref domain.CaseFileReference, limit int) ([]domain.Fragment, error)
}

// Embedder builds query vectors. Consumed by the vector-search adapter,
// never by the core use cases directly.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SessionStore reads and appends per-session conversation state.
type SessionStore interface {
	GetSessionContext(ctx context.Context, sessionID string) (string, error)
	AppendMessage(ctx context.Context, sessionID, role, content string) error
	RecordReference(ctx context.Context, sessionID string, ref domain.CaseFileReference) error
}

// ReferenceEventPublisher emits "reference observed" events so the session
// log can be updated off the request path.
type ReferenceEventPublisher interface {
	PublishReferenceObserved(ctx context.Context, sessionID string, ref domain.CaseFileReference) error
}

// ReferenceEventConsumer is the worker-side contract for the same events.
// observedAt is the publish-side timestamp, used to measure queue lag.
type ReferenceEventConsumer interface {
	SubscribeReferenceObserved(ctx context.Context, handler func(ctx context.Context, sessionID string, ref domain.CaseFileReference, observedAt time.Time) error) error
}
