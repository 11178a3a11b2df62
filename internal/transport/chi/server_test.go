package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/quarry-search/quarry/internal/domain"
)

type mockProcessor struct {
	docs       []domain.Document
	err        error
	collection string
	raw        []byte
}

func (m *mockProcessor) ProcessJSON(_ context.Context, collection string, raw []byte) ([]domain.Document, error) {
	m.collection = collection
	m.raw = raw
	return m.docs, m.err
}

type mockHealth struct {
	err error
}

func (m *mockHealth) Ping(context.Context) error { return m.err }

func TestQuery_OK(t *testing.T) {
	proc := &mockProcessor{
		docs: []domain.Document{
			domain.NewDocument("overview text", map[string]any{"source": "a.pdf"}, 0.92),
			domain.NewDocument("details", nil, 0.81),
		},
	}
	srv := NewServer(proc, nil, zap.NewNop())

	body := `{"query": "建设目标", "top_k": 2}`
	req := httptest.NewRequest(http.MethodPost, "/collections/docs/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if proc.collection != "docs" {
		t.Errorf("expected collection 'docs', got %q", proc.collection)
	}
	if string(proc.raw) != body {
		t.Errorf("body not passed through verbatim: %q", proc.raw)
	}

	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Count != 2 || len(resp.Documents) != 2 {
		t.Fatalf("expected 2 documents, got count=%d len=%d", resp.Count, len(resp.Documents))
	}
	if resp.Documents[0].Text != "overview text" || resp.Documents[0].Score != 0.92 {
		t.Errorf("unexpected first document: %+v", resp.Documents[0])
	}
	if resp.Documents[0].Metadata["source"] != "a.pdf" {
		t.Errorf("metadata lost: %+v", resp.Documents[0].Metadata)
	}
}

func TestQuery_EmptyResult(t *testing.T) {
	srv := NewServer(&mockProcessor{}, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/collections/docs/query", strings.NewReader(`{"query":"x"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("expected count 0, got %d", resp.Count)
	}
	if resp.Documents == nil {
		t.Error("documents must encode as [], not null")
	}
}

func TestQuery_EmptyBody(t *testing.T) {
	srv := NewServer(&mockProcessor{}, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/collections/docs/query", strings.NewReader(""))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestQuery_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name:   "configuration error",
			err:    fmt.Errorf("%w: top_k must be positive", domain.ErrConfiguration),
			status: http.StatusBadRequest,
			code:   "invalid_query_config",
		},
		{
			name:   "collection not found",
			err:    fmt.Errorf("%w: docs", domain.ErrCollectionNotFound),
			status: http.StatusNotFound,
			code:   "collection_not_found",
		},
		{
			name:   "embedding provider error",
			err:    fmt.Errorf("%w: status 500", domain.ErrEmbeddingProviderError),
			status: http.StatusBadGateway,
			code:   "embedding_provider_error",
		},
		{
			name:   "retrieval error",
			err:    fmt.Errorf("%w: scan failed", domain.ErrRetrieval),
			status: http.StatusInternalServerError,
			code:   "retrieval_failed",
		},
		{
			name:   "unknown error",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(&mockProcessor{err: tt.err}, nil, zap.NewNop())

			req := httptest.NewRequest(http.MethodPost, "/collections/docs/query", strings.NewReader(`{"query":"x"}`))
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid error JSON: %v", err)
			}
			if resp.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, resp.Code)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	srv := NewServer(&mockProcessor{}, &mockHealth{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealthz_StoreDown(t *testing.T) {
	srv := NewServer(&mockProcessor{}, &mockHealth{err: errors.New("connection refused")}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHealthz_NoChecker(t *testing.T) {
	srv := NewServer(&mockProcessor{}, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
