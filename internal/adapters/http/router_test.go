package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/expediente-labs/legal-case-assistant/internal/core/domain"
	"github.com/expediente-labs/legal-case-assistant/internal/observability/metrics"
)

type retrieverFake struct {
	result *domain.RetrievalResult
	err    error

	gotQuery     string
	gotSessionID string
	gotTopK      int
}

func (f *retrieverFake) Retrieve(_ context.Context, query, sessionID string, topK int) (*domain.RetrievalResult, error) {
	f.gotQuery = query
	f.gotSessionID = sessionID
	f.gotTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestRouter(fake *retrieverFake, cfg RouterConfig) http.Handler {
	if cfg.Service == "" {
		cfg.Service = "api-test"
	}
	return NewRouter(fake, metrics.NewHTTPServerMetrics(cfg.Service), cfg).Handler()
}

func postRetrieve(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/context/retrieve", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestRetrieveContextReturnsFormattedResult(t *testing.T) {
	fake := &retrieverFake{
		result: &domain.RetrievalResult{
			Context: domain.FormattedContext{
				Text:          "RETRIEVED CONTEXT: 1 document(s), 2 fragment(s)",
				DocumentCount: 1,
				FragmentCount: 2,
				TotalChars:    47,
			},
			Mode:          domain.ModeFullCaseFile,
			Reference:     "2022-063557-6597-LA",
			ReferenceKind: domain.ReferenceExplicit,
		},
	}
	handler := newTestRouter(fake, RouterConfig{})

	res := postRetrieve(t, handler, `{"query":"dame el expediente 2022-063557-6597-LA","session_id":"sess-1","top_k":5}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var resp retrieveResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Mode != "full_case_file" || resp.Reference != "2022-063557-6597-LA" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.DocumentCount != 1 || resp.FragmentCount != 2 {
		t.Fatalf("unexpected counts: %+v", resp)
	}
	if fake.gotTopK != 5 || fake.gotSessionID != "sess-1" {
		t.Fatalf("retriever received query=%q session=%q topK=%d", fake.gotQuery, fake.gotSessionID, fake.gotTopK)
	}
	if res.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestRetrieveContextRejectsBadRequests(t *testing.T) {
	handler := newTestRouter(&retrieverFake{}, RouterConfig{})

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"query":`},
		{name: "missing query", body: `{"session_id":"sess-1"}`},
		{name: "missing session", body: `{"query":"antecedentes"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := postRetrieve(t, handler, tc.body)
			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", res.Code)
			}
		})
	}
}

func TestRetrieveContextMapsDomainErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid input", err: domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("bad")), want: http.StatusBadRequest},
		{name: "temporary", err: domain.WrapError(domain.ErrTemporary, "retrieve", errors.New("down")), want: http.StatusServiceUnavailable},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestRouter(&retrieverFake{err: tc.err}, RouterConfig{})
			res := postRetrieve(t, handler, `{"query":"antecedentes","session_id":"sess-1"}`)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestRetrieveContextRejectsGet(t *testing.T) {
	handler := newTestRouter(&retrieverFake{}, RouterConfig{})
	req := httptest.NewRequest(http.MethodGet, "/v1/context/retrieve", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestHealthzAndMetricsEndpoints(t *testing.T) {
	handler := newTestRouter(&retrieverFake{}, RouterConfig{})

	for _, path := range []string{"/healthz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("%s expected 200, got %d", path, res.Code)
		}
	}
}
