package retriever

import (
	"context"

	"github.com/quarry-search/quarry/internal/domain/filter"
)

// Candidate is a raw hit from a vector backend: passage text, metadata,
// and the unconverted index distance (lower is closer).
type Candidate struct {
	Text     string
	Metadata map[string]any
	Distance float64
}

// Entry is a stored passage as returned by a full collection scan.
type Entry struct {
	Text     string
	Metadata map[string]any
}

// VectorSource produces ranked nearest-neighbour candidates for a query
// vector. Implementations return an empty list (not an error) when the
// collection has no index; both outcomes degrade to the lexical path.
type VectorSource interface {
	Search(ctx context.Context, collection string, vector []float32, n int, f filter.Expression) ([]Candidate, error)
}

// CollectionReader is the full-scan accessor used by the lexical fallback
// and by pure metadata-filter queries.
type CollectionReader interface {
	GetAll(ctx context.Context, collection string, f filter.Expression) ([]Entry, error)
}

// Embedder vectorizes query text. An error or an empty vector is the
// fallback trigger, never a fatal condition for retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
