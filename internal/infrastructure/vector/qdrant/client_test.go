package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/expediente-labs/legal-case-assistant/internal/core/domain"
	"github.com/expediente-labs/legal-case-assistant/internal/infrastructure/resilience"
)

func newTestExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts: 1,
		BreakerEnabled:   false,
	})
}

func TestSearchSendsThresholdAndCaseFilter(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/case_fragments/points/search" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[
			{"id":"p-1","score":0.91,"payload":{"document_id":"doc-1","document_name":"demanda.pdf","case_file_ref":"2022-063557-6597-LA","text":"texto","fragment_index":0,"fragment_count":4,"page_start":1,"page_end":2,"is_audio":false}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "case_fragments")
	fragments, err := client.Search(context.Background(), []float32{0.1, 0.2}, 8, 0.35, "2022-063557-6597-LA")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(fragments) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(fragments))
	}
	got := fragments[0]
	if got.DocumentID != "doc-1" || got.CaseFileRef != "2022-063557-6597-LA" || got.Score != 0.91 {
		t.Fatalf("unexpected fragment: %+v", got)
	}

	if captured["score_threshold"] != 0.35 {
		t.Fatalf("unexpected score_threshold: %v", captured["score_threshold"])
	}
	filter, _ := captured["filter"].(map[string]any)
	if filter == nil {
		t.Fatalf("expected filter in request body: %v", captured)
	}
}

func TestSearchOmitsFilterWithoutCaseReference(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "case_fragments")
	if _, err := client.Search(context.Background(), []float32{0.1}, 8, 0.35, ""); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if _, ok := captured["filter"]; ok {
		t.Fatalf("expected no filter for unscoped search: %v", captured)
	}
}

func TestScrollCaseFilePagesUntilLimit(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/case_fragments/points/scroll" {
			http.NotFound(w, r)
			return
		}
		calls++
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		switch calls {
		case 1:
			if _, ok := payload["offset"]; ok {
				t.Fatalf("first page must not carry an offset: %v", payload)
			}
			points := make([]string, 0, 64)
			for i := 0; i < 64; i++ {
				points = append(points, fmt.Sprintf(`{"id":"p-%d","payload":{"document_id":"doc-1","fragment_index":%d}}`, i, i))
			}
			fmt.Fprintf(w, `{"result":{"points":[%s],"next_page_offset":"p-64"}}`, strings.Join(points, ","))
		case 2:
			if payload["offset"] != "p-64" {
				t.Fatalf("expected offset p-64, got %v", payload["offset"])
			}
			if payload["limit"] != float64(16) {
				t.Fatalf("expected final page limit 16, got %v", payload["limit"])
			}
			points := make([]string, 0, 16)
			for i := 64; i < 80; i++ {
				points = append(points, fmt.Sprintf(`{"id":"p-%d","payload":{"document_id":"doc-1","fragment_index":%d}}`, i, i))
			}
			fmt.Fprintf(w, `{"result":{"points":[%s],"next_page_offset":"p-80"}}`, strings.Join(points, ","))
		default:
			t.Fatalf("unexpected extra scroll call %d", calls)
		}
	}))
	defer server.Close()

	client := New(server.URL, "case_fragments")
	fragments, err := client.ScrollCaseFile(context.Background(), "2022-063557-6597-LA", 80)
	if err != nil {
		t.Fatalf("ScrollCaseFile() error = %v", err)
	}
	if len(fragments) != 80 {
		t.Fatalf("expected 80 fragments, got %d", len(fragments))
	}
	if calls != 2 {
		t.Fatalf("expected 2 scroll calls, got %d", calls)
	}
}

func TestScrollCaseFileStopsWhenExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"points":[
			{"id":"p-0","payload":{"document_id":"doc-1","fragment_index":0}},
			{"id":"p-1","payload":{"document_id":"doc-1","fragment_index":1}}
		],"next_page_offset":null}}`))
	}))
	defer server.Close()

	client := New(server.URL, "case_fragments")
	fragments, err := client.ScrollCaseFile(context.Background(), "2022-063557-6597-LA", 100)
	if err != nil {
		t.Fatalf("ScrollCaseFile() error = %v", err)
	}
	if len(fragments) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(fragments))
	}
}

func TestSearchIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection missing", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "case_fragments")
	_, err := client.Search(context.Background(), []float32{0.1}, 8, 0.35, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "collection missing") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("raw client error should not carry a domain kind: %v", err)
	}
}

func TestSearcherWrapsRetryableFailureAsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	store := NewCaseFileStore(New(server.URL, "case_fragments"), newTestExecutor())
	_, err := store.GetCaseFileFragments(context.Background(), "2022-063557-6597-LA", 10)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error kind, got %v", err)
	}
}
