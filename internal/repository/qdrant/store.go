// Package qdrant backs retrieval with a Qdrant instance. Passages are
// points with a "text" payload field; every other payload field is
// passage metadata. Collections are expected to use the Euclid metric so
// point scores are distances.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/quarry-search/quarry/internal/domain/filter"
	"github.com/quarry-search/quarry/internal/retriever"
)

// textPayloadField holds the passage text in a point payload.
const textPayloadField = "text"

// scanLimit bounds full-collection scrolls.
const scanLimit = 10000

// Config holds Qdrant connection configuration.
type Config struct {
	// URL is the Qdrant server address (e.g. "https://example.qdrant.io:6334").
	URL string
	// APIKey is an optional API key.
	APIKey string
}

// Store implements retriever.VectorSource and retriever.CollectionReader
// against Qdrant.
type Store struct {
	client *qdrant.Client
}

// NewStore creates a Qdrant store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}

	raw := cfg.URL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant url: %w", err)
	}

	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	return &Store{client: client}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks connectivity to the Qdrant server.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// Search implements retriever.VectorSource via the Query API.
func (s *Store) Search(
	ctx context.Context, collection string, vector []float32, n int, f filter.Expression,
) ([]retriever.Candidate, error) {
	limit := uint64(n)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		Filter:         buildFilter(f),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query %s: %w", collection, err)
	}

	candidates := make([]retriever.Candidate, 0, len(points))
	for _, p := range points {
		text, metadata := splitPayload(p.Payload)
		candidates = append(candidates, retriever.Candidate{
			Text:     text,
			Metadata: metadata,
			Distance: float64(p.Score),
		})
	}
	return candidates, nil
}

// GetAll implements retriever.CollectionReader via Scroll.
func (s *Store) GetAll(
	ctx context.Context, collection string, f filter.Expression,
) ([]retriever.Entry, error) {
	limit := uint32(scanLimit)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         buildFilter(f),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll %s: %w", collection, err)
	}

	entries := make([]retriever.Entry, 0, len(points))
	for _, p := range points {
		text, metadata := splitPayload(p.Payload)
		entries = append(entries, retriever.Entry{Text: text, Metadata: metadata})
	}
	return entries, nil
}

func splitPayload(payload map[string]*qdrant.Value) (string, map[string]any) {
	var text string
	metadata := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == textPayloadField {
			text = v.GetStringValue()
			continue
		}
		metadata[k] = extractValue(v)
	}
	return text, metadata
}

// extractValue converts a Qdrant payload value into a plain Go value.
func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	}
	return v.String()
}
