package qdrant

import (
	"context"

	"github.com/expediente-labs/legal-case-assistant/internal/core/domain"
	"github.com/expediente-labs/legal-case-assistant/internal/core/ports"
	"github.com/expediente-labs/legal-case-assistant/internal/infrastructure/resilience"
)

// Searcher embeds the query text and runs a dense similarity search.
type Searcher struct {
	embedder ports.Embedder
	client   *Client
	executor *resilience.Executor
}

func NewSearcher(embedder ports.Embedder, client *Client, executor *resilience.Executor) *Searcher {
	return &Searcher{
		embedder: embedder,
		client:   client,
		executor: executor,
	}
}

func (s *Searcher) SearchByText(
	ctx context.Context,
	query string,
	topK int,
	threshold float64,
	caseFilter string,
) ([]domain.Fragment, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	var fragments []domain.Fragment
	err = s.executor.Execute(ctx, "qdrant_search", func(ctx context.Context) error {
		var searchErr error
		fragments, searchErr = s.client.Search(ctx, vector, topK, threshold, domain.CaseFileReference(caseFilter))
		return searchErr
	}, classifyQdrantError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("qdrant_search", err)
	}
	return fragments, nil
}

// CaseFileStore serves full case-file fetches from the same collection.
type CaseFileStore struct {
	client   *Client
	executor *resilience.Executor
}

func NewCaseFileStore(client *Client, executor *resilience.Executor) *CaseFileStore {
	return &CaseFileStore{
		client:   client,
		executor: executor,
	}
}

func (s *CaseFileStore) GetCaseFileFragments(
	ctx context.Context,
	ref domain.CaseFileReference,
	limit int,
) ([]domain.Fragment, error) {
	var fragments []domain.Fragment
	err := s.executor.Execute(ctx, "qdrant_scroll", func(ctx context.Context) error {
		var scrollErr error
		fragments, scrollErr = s.client.ScrollCaseFile(ctx, ref, limit)
		return scrollErr
	}, classifyQdrantError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("qdrant_scroll", err)
	}
	return fragments, nil
}
