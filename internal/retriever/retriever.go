// Package retriever answers a single query against one collection. It
// tries the vector strategy first, falls back to lexical scoring when
// embeddings are unavailable or return nothing, promotes exact title
// matches above everything else, and applies the admission threshold.
package retriever

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/quarry-search/quarry/internal/domain"
	"github.com/quarry-search/quarry/internal/domain/filter"
	"github.com/quarry-search/quarry/internal/lexical"
	"github.com/quarry-search/quarry/internal/metrics"
)

// distanceScale calibrates the distance-to-similarity conversion
// score = exp(-d/distanceScale). Tuned for the L2 distances typical of
// the backends in use; any recalibration must keep the conversion
// monotonically decreasing and roughly within [0,1].
const distanceScale = 300.0

const (
	defaultTopK     = 5
	minVectorFetch  = 20
	vectorOverfetch = 2
)

// blockTypeFields are the structural metadata fields whose presence in a
// filter permits threshold relaxation when nothing clears min_score: a
// caller filtering on block structure wants the best of what exists, not
// an empty list.
var blockTypeFields = []string{"block_type", "type"}

// anchorSuffix matches a trailing markdown anchor like " {#overview}".
var anchorSuffix = regexp.MustCompile(`\s+\{#[^}]*\}\s*$`)

// Request carries the parameters of one retrieval call.
type Request struct {
	Query    string
	TopK     int
	MinScore float64
	Filter   filter.Expression
}

// Retriever is the hybrid retrieval engine.
type Retriever struct {
	vectors VectorSource
	coll    CollectionReader
	embed   Embedder
	scorer  *lexical.Scorer
	logger  *zap.Logger
}

// New creates a retriever. vectors and embed may be nil, in which case
// every query takes the lexical path.
func New(vectors VectorSource, coll CollectionReader, embed Embedder, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		vectors: vectors,
		coll:    coll,
		embed:   embed,
		scorer:  lexical.NewScorer(),
		logger:  logger,
	}
}

// Retrieve returns up to req.TopK documents from the collection, ordered
// by descending score, each scoring at least req.MinScore unless the
// relaxation policy applies. Vector-path failures degrade to the lexical
// scan; only a failing scan is an error.
func (r *Retriever) Retrieve(ctx context.Context, collection string, req Request) ([]domain.Document, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	high, normal, usedVector := r.vectorAttempt(ctx, collection, req, topK)

	if !usedVector {
		entries, err := r.coll.GetAll(ctx, collection, req.Filter)
		if err != nil {
			metrics.RetrievalsTotal.WithLabelValues(metrics.StrategyLexical, "error").Inc()
			return nil, fmt.Errorf("%w: scan %q: %w", domain.ErrRetrieval, collection, err)
		}
		for _, e := range entries {
			if titleMatches(req.Query, e.Metadata) {
				high = append(high, domain.NewDocument(e.Text, e.Metadata, domain.TitleMatchScore))
				continue
			}
			score := r.scorer.Score(req.Query, e.Text)
			normal = append(normal, domain.NewDocument(e.Text, e.Metadata, score))
		}
		metrics.RetrievalsTotal.WithLabelValues(metrics.StrategyLexical, "ok").Inc()
	} else {
		metrics.RetrievalsTotal.WithLabelValues(metrics.StrategyVector, "ok").Inc()
	}

	sort.SliceStable(normal, func(i, j int) bool {
		return normal[i].Score() > normal[j].Score()
	})

	merged := make([]domain.Document, 0, len(high)+len(normal))
	merged = append(merged, high...)
	merged = append(merged, normal...)

	kept := merged[:0:0]
	for _, d := range merged {
		if d.Score() >= req.MinScore {
			kept = append(kept, d)
		}
	}

	if len(kept) == 0 && len(merged) > 0 {
		switch {
		case len(high) > 0:
			kept = high
		case filter.References(req.Filter, blockTypeFields...):
			r.logger.Warn("no result cleared min_score, relaxing threshold for structural filter",
				zap.String("collection", collection),
				zap.Float64("min_score", req.MinScore))
			kept = merged
		}
	}

	if len(kept) > topK {
		kept = kept[:topK]
	}
	return kept, nil
}

// vectorAttempt runs the vector strategy. usedVector is false whenever the
// caller should fall back to the lexical scan: no embedder, embedding
// failure, source error, or zero candidates.
func (r *Retriever) vectorAttempt(
	ctx context.Context, collection string, req Request, topK int,
) (high, normal []domain.Document, usedVector bool) {
	if r.vectors == nil || r.embed == nil || req.Query == "" {
		return nil, nil, false
	}

	vec, err := r.embed.Embed(ctx, req.Query)
	if err != nil || len(vec) == 0 {
		r.logger.Warn("embedding unavailable, falling back to lexical scoring",
			zap.String("collection", collection), zap.Error(err))
		metrics.RetrievalFallbacksTotal.WithLabelValues("embedding").Inc()
		return nil, nil, false
	}

	n := topK * vectorOverfetch
	if n < minVectorFetch {
		n = minVectorFetch
	}

	candidates, err := r.vectors.Search(ctx, collection, vec, n, req.Filter)
	if err != nil {
		r.logger.Warn("vector search failed, falling back to lexical scoring",
			zap.String("collection", collection), zap.Error(err))
		metrics.RetrievalFallbacksTotal.WithLabelValues("vector_search").Inc()
		return nil, nil, false
	}
	if len(candidates) == 0 {
		metrics.RetrievalFallbacksTotal.WithLabelValues("empty_result").Inc()
		return nil, nil, false
	}

	for _, c := range candidates {
		if titleMatches(req.Query, c.Metadata) {
			high = append(high, domain.NewDocument(c.Text, c.Metadata, domain.TitleMatchScore))
			continue
		}
		normal = append(normal, domain.NewDocument(c.Text, c.Metadata, distanceToScore(c.Distance)))
	}
	return high, normal, true
}

// distanceToScore converts an index distance into a similarity.
func distanceToScore(d float64) float64 {
	return math.Exp(-d / distanceScale)
}

// titleMatches reports whether the metadata title, minus any trailing
// anchor suffix, equals the query case-insensitively.
func titleMatches(query string, metadata map[string]any) bool {
	if query == "" {
		return false
	}
	title, ok := metadata["title"].(string)
	if !ok || title == "" {
		return false
	}
	title = anchorSuffix.ReplaceAllString(title, "")
	return strings.EqualFold(strings.TrimSpace(title), strings.TrimSpace(query))
}
