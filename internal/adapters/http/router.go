// Package httpadapter exposes the retrieval pipeline over HTTP.
package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/expediente-labs/legal-case-assistant/internal/core/domain"
	"github.com/expediente-labs/legal-case-assistant/internal/core/ports"
	"github.com/expediente-labs/legal-case-assistant/internal/observability/metrics"
)

type RouterConfig struct {
	Service        string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	InFlightWait   time.Duration
}

type Router struct {
	retriever ports.ContextRetriever
	metrics   *metrics.HTTPServerMetrics
	cfg       RouterConfig
}

func NewRouter(retriever ports.ContextRetriever, m *metrics.HTTPServerMetrics, cfg RouterConfig) *Router {
	if cfg.Service == "" {
		cfg.Service = "api"
	}
	if cfg.InFlightWait <= 0 {
		cfg.InFlightWait = 50 * time.Millisecond
	}
	return &Router{
		retriever: retriever,
		metrics:   m,
		cfg:       cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/context/retrieve", rt.retrieveContext)
	mux.Handle("/metrics", rt.metrics.Handler())

	var handler http.Handler = mux
	if rt.cfg.MaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, rt.cfg.InFlightWait, rt.onThrottled)
	}
	if rt.cfg.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst, rt.onThrottled)
	}
	handler = rt.metrics.Middleware(rt.cfg.Service, handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) onThrottled(reason string) {
	rt.metrics.RecordThrottled(rt.cfg.Service, reason)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type retrieveRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	TopK      int    `json:"top_k"`
}

type retrieveResponse struct {
	Context       string `json:"context"`
	Mode          string `json:"mode"`
	Stage         int    `json:"stage,omitempty"`
	Reference     string `json:"reference,omitempty"`
	DocumentCount int    `json:"document_count"`
	FragmentCount int    `json:"fragment_count"`
	TotalChars    int    `json:"total_chars"`
}

func (rt *Router) retrieveContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id is required"})
		return
	}

	start := time.Now()
	result, err := rt.retriever.Retrieve(r.Context(), req.Query, req.SessionID, req.TopK)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	rt.metrics.RecordRetrieval(rt.cfg.Service, string(result.Mode), result.Context.FragmentCount, time.Since(start))
	if result.Mode == domain.ModeSemanticFallback {
		rt.metrics.RecordFallbackStage(rt.cfg.Service, result.Stage)
	}
	rt.metrics.RecordReferenceKind(rt.cfg.Service, string(result.ReferenceKind))

	writeJSON(w, http.StatusOK, retrieveResponse{
		Context:       result.Context.Text,
		Mode:          string(result.Mode),
		Stage:         result.Stage,
		Reference:     string(result.Reference),
		DocumentCount: result.Context.DocumentCount,
		FragmentCount: result.Context.FragmentCount,
		TotalChars:    result.Context.TotalChars,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
