// Package chi hosts the HTTP boundary. It is a thin shell over the query
// processor: request bodies are passed through as serialized query
// configurations and retrieval results are rendered back, with no
// retrieval logic of its own.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quarry-search/quarry/internal/domain"
	"github.com/quarry-search/quarry/internal/logger"
	"github.com/quarry-search/quarry/internal/metrics"
)

// maxBodyBytes caps the accepted query configuration size.
const maxBodyBytes = 1 << 20

// QueryProcessor is the consumer contract for the query processor.
type QueryProcessor interface {
	ProcessJSON(ctx context.Context, collection string, raw []byte) ([]domain.Document, error)
}

// HealthChecker reports backing store readiness. Optional.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the query processor over HTTP.
type Server struct {
	processor     QueryProcessor
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. health may be nil.
func NewServer(processor QueryProcessor, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		processor: processor,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrConfiguration, http.StatusBadRequest, "invalid_query_config"),
		sentinelHandler(domain.ErrCollectionNotFound, http.StatusNotFound, "collection_not_found"),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, "embedding_provider_error"),
		sentinelHandler(domain.ErrRetrieval, http.StatusInternalServerError, "retrieval_failed"),
	}
	return s
}

// Router builds the chi router with all routes and middleware attached.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(s.wideEvent)
	r.Use(metrics.Middleware())

	r.Post("/collections/{collection}/query", s.Query)
	r.Get("/healthz", s.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// documentResponse is the wire form of one retrieved document.
type documentResponse struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

type queryResponse struct {
	Documents []documentResponse `json:"documents"`
	Count     int                `json:"count"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Query handles POST /collections/{collection}/query. The body is a
// serialized query configuration: either a single retrieval or a
// pipeline of named steps.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	if collection == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Collection name is required")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Failed to read request body")
		return
	}
	if len(body) > maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "bad_request", "Request body too large")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "Request body is required")
		return
	}

	docs, err := s.processor.ProcessJSON(r.Context(), collection, body)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := queryResponse{
		Documents: make([]documentResponse, len(docs)),
		Count:     len(docs),
	}
	for i, d := range docs {
		resp.Documents[i] = documentResponse{
			Text:     d.Text(),
			Metadata: d.Metadata(),
			Score:    d.Score(),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Healthz handles GET /healthz.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// wideEvent emits a canonical log line per request and propagates X-Request-ID.
func (s *Server) wideEvent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := chiMiddleware.GetReqID(r.Context())
		if requestID != "" {
			w.Header().Set("X-Request-ID", requestID)
		}

		reqLogger := s.logger.With(zap.String("request_id", requestID))
		ctx := logger.ContextWithLogger(r.Context(), reqLogger)

		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		reqLogger.Info("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", r.RemoteAddr),
			zap.Int("response_bytes", ww.BytesWritten()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrConfiguration,
		domain.ErrCollectionNotFound,
		domain.ErrEmbeddingProviderError,
		domain.ErrRetrieval,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
