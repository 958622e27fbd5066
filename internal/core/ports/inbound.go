package ports

import (
	"context"

	"github.com/expediente-labs/legal-case-assistant/internal/core/domain"
)

// ContextRetriever is the inbound contract for context-aware retrieval.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query, sessionID string, topK int) (*domain.RetrievalResult, error)
}
