// Package memory is an in-process collection store: a brute-force vector
// candidate source plus a full-scan accessor behind the same contracts as
// the networked backends. It backs the "memory" driver and the tests.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/quarry-search/quarry/internal/domain"
	"github.com/quarry-search/quarry/internal/domain/filter"
	"github.com/quarry-search/quarry/internal/retriever"
)

type record struct {
	text     string
	metadata map[string]any
	vector   []float32
}

// Store holds collections of passages in process memory. Safe for
// concurrent readers and writers.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]record
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{collections: make(map[string][]record)}
}

// Add stores a passage in a collection, creating the collection on first
// use. vector may be nil for passages without embeddings.
func (s *Store) Add(collection, text string, metadata map[string]any, vector []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], record{
		text:     text,
		metadata: metadata,
		vector:   vector,
	})
}

// Search implements retriever.VectorSource with a brute-force L2 scan.
// An unknown collection yields an empty list, not an error.
func (s *Store) Search(
	_ context.Context, collection string, vector []float32, n int, f filter.Expression,
) ([]retriever.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.collections[collection]
	candidates := make([]retriever.Candidate, 0, len(records))
	for _, rec := range records {
		if rec.vector == nil {
			continue
		}
		if !filter.Matches(f, rec.metadata) {
			continue
		}
		candidates = append(candidates, retriever.Candidate{
			Text:     rec.text,
			Metadata: rec.metadata,
			Distance: l2Distance(vector, rec.vector),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates, nil
}

// GetAll implements retriever.CollectionReader. Unlike Search, asking for
// a collection that does not exist is an operational failure here, not an
// empty result.
func (s *Store) GetAll(
	_ context.Context, collection string, f filter.Expression,
) ([]retriever.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, collection)
	}

	entries := make([]retriever.Entry, 0, len(records))
	for _, rec := range records {
		if !filter.Matches(f, rec.metadata) {
			continue
		}
		entries = append(entries, retriever.Entry{Text: rec.text, Metadata: rec.metadata})
	}
	return entries, nil
}

func l2Distance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
