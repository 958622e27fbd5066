// Package qdrant reads case-file fragments from a Qdrant collection over its
// HTTP API. Ingestion runs out of process, so the client only searches and
// scrolls.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/expediente-labs/legal-case-assistant/internal/core/domain"
)

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	scoreThreshold float64,
	caseFilter domain.CaseFileReference,
) ([]domain.Fragment, error) {
	if len(queryVector) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if scoreThreshold > 0 {
		reqBody["score_threshold"] = scoreThreshold
	}
	if caseFilter != "" {
		reqBody["filter"] = caseFileFilter(caseFilter)
	}

	var searchResp struct {
		Result []scoredPoint `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.postJSON(ctx, path, reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.Fragment, 0, len(searchResp.Result))
	for _, p := range searchResp.Result {
		out = append(out, fragmentFromPoint(p))
	}
	return out, nil
}

// ScrollCaseFile pages through every fragment of one case file, stopping at
// limit. Ordering by document and fragment index happens downstream.
func (c *Client) ScrollCaseFile(
	ctx context.Context,
	ref domain.CaseFileReference,
	limit int,
) ([]domain.Fragment, error) {
	if ref == "" || limit <= 0 {
		return nil, nil
	}

	const pageSize = 64

	out := make([]domain.Fragment, 0, limit)
	var offset any
	for len(out) < limit {
		page := pageSize
		if remaining := limit - len(out); remaining < page {
			page = remaining
		}

		reqBody := map[string]any{
			"filter":       caseFileFilter(ref),
			"limit":        page,
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			reqBody["offset"] = offset
		}

		var scrollResp struct {
			Result struct {
				Points         []scoredPoint `json:"points"`
				NextPageOffset any           `json:"next_page_offset"`
			} `json:"result"`
		}
		path := fmt.Sprintf("/collections/%s/points/scroll", c.collection)
		if err := c.postJSON(ctx, path, reqBody, &scrollResp, "scroll"); err != nil {
			return nil, err
		}

		for _, p := range scrollResp.Result.Points {
			out = append(out, fragmentFromPoint(p))
		}
		if scrollResp.Result.NextPageOffset == nil || len(scrollResp.Result.Points) == 0 {
			break
		}
		offset = scrollResp.Result.NextPageOffset
	}
	return out, nil
}

func caseFileFilter(ref domain.CaseFileReference) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key": "case_file_ref",
				"match": map[string]any{
					"value": string(ref),
				},
			},
		},
	}
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func fragmentFromPoint(p scoredPoint) domain.Fragment {
	return domain.Fragment{
		FragmentID:    fmt.Sprintf("%v", p.ID),
		DocumentID:    getStringPayload(p.Payload, "document_id"),
		DocumentName:  getStringPayload(p.Payload, "document_name"),
		CaseFileRef:   domain.CaseFileReference(getStringPayload(p.Payload, "case_file_ref")),
		Text:          getStringPayload(p.Payload, "text"),
		FragmentIndex: getIntPayload(p.Payload, "fragment_index"),
		FragmentCount: getIntPayload(p.Payload, "fragment_count"),
		PageStart:     getIntPayload(p.Payload, "page_start"),
		PageEnd:       getIntPayload(p.Payload, "page_end"),
		Score:         p.Score,
		IsAudio:       getBoolPayload(p.Payload, "is_audio"),
	}
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

func getBoolPayload(payload map[string]any, key string) bool {
	v, ok := payload[key].(bool)
	return ok && v
}
