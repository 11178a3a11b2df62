// Package pipeline executes declarative query configurations: a single
// retrieval, or an ordered list of steps sharing a context of named
// intermediate results that later steps can filter on or reference.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/quarry-search/quarry/internal/domain"
	"github.com/quarry-search/quarry/internal/domain/filter"
	"github.com/quarry-search/quarry/internal/domain/query"
	"github.com/quarry-search/quarry/internal/metrics"
	"github.com/quarry-search/quarry/internal/retriever"
)

// Retriever is the consumer contract for the hybrid retrieval engine.
type Retriever interface {
	Retrieve(ctx context.Context, collection string, req retriever.Request) ([]domain.Document, error)
}

// Processor turns query configurations into document lists.
type Processor struct {
	retriever Retriever
	logger    *zap.Logger
}

// New creates a query processor.
func New(r Retriever, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{retriever: r, logger: logger}
}

// ProcessJSON parses the serialized configuration form and executes it.
func (p *Processor) ProcessJSON(ctx context.Context, collection string, raw []byte) ([]domain.Document, error) {
	cfg, err := query.Parse(raw)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, collection, cfg)
}

// Process executes a parsed configuration against one collection and
// returns the final document list. Pipelines are all-or-nothing: the
// first hard step error aborts the whole run.
func (p *Processor) Process(ctx context.Context, collection string, cfg query.Config) ([]domain.Document, error) {
	start := time.Now()
	if cfg.Single != nil {
		docs, err := p.retriever.Retrieve(ctx, collection, retriever.Request{
			Query:    cfg.Single.Query,
			TopK:     cfg.Single.TopK,
			MinScore: cfg.Single.MinScore,
			Filter:   cfg.Single.Filter,
		})
		metrics.RetrievalDuration.WithLabelValues("single").Observe(time.Since(start).Seconds())
		return docs, err
	}

	docs, err := p.runPipeline(ctx, collection, cfg.Steps)
	metrics.RetrievalDuration.WithLabelValues("pipeline").Observe(time.Since(start).Seconds())
	return docs, err
}

// runPipeline executes steps strictly in order, accumulating named results
// in a per-invocation context. The final result is the entry produced by
// the last step; a short-circuited last step yields an empty list.
func (p *Processor) runPipeline(ctx context.Context, collection string, steps []query.Step) ([]domain.Document, error) {
	pctx := make(map[string]any, len(steps)*4)
	var lastOutput string

	for i, step := range steps {
		lastOutput = step.Output
		var err error
		switch step.Kind {
		case query.KindVectorSearch:
			err = p.runSearchStep(ctx, collection, step, pctx)
		case query.KindMetadataFilter:
			err = p.runFilterStep(ctx, collection, step, pctx)
		}
		if err != nil {
			metrics.PipelineStepsTotal.WithLabelValues(string(step.Kind), "error").Inc()
			p.logger.Error("pipeline step failed",
				zap.Int("step", i), zap.String("output", step.Output), zap.Error(err))
			return nil, err
		}
		metrics.PipelineStepsTotal.WithLabelValues(string(step.Kind), "ok").Inc()
	}

	if docs, ok := pctx[lastOutput].([]domain.Document); ok {
		return docs, nil
	}
	return []domain.Document{}, nil
}

func (p *Processor) runSearchStep(ctx context.Context, collection string, step query.Step, pctx map[string]any) error {
	f := resolveReferences(step.Filter, pctx)

	docs, err := p.retriever.Retrieve(ctx, collection, retriever.Request{
		Query:    step.Query,
		TopK:     step.TopK,
		MinScore: step.MinScore,
		Filter:   f,
	})
	if err != nil {
		return err
	}

	pctx[step.Output] = docs
	// Auxiliary entries so later steps can reference "what step N found"
	// without re-querying.
	pctx[step.Output+"_ids"] = dedupMetaValues(docs, "source")
	pctx[step.Output+"_chunk_ids"] = metaValues(docs, "id")
	pctx[step.Output+"_doc_ids"] = metaValuesFirstOf(docs, "parent_id", "document_id")
	return nil
}

func (p *Processor) runFilterStep(ctx context.Context, collection string, step query.Step, pctx map[string]any) error {
	f := filter.Sanitize(resolveReferences(step.Filter, pctx))
	if !filter.Valid(f) {
		// Soft case: a degenerate filter yields an empty step, never an
		// error and never an unfiltered full-collection match.
		p.logger.Warn("degenerate metadata filter, step yields no results",
			zap.String("output", step.Output))
		return nil
	}

	docs, err := p.retriever.Retrieve(ctx, collection, retriever.Request{
		Query:  "",
		TopK:   step.TopK,
		Filter: f,
	})
	if err != nil {
		return err
	}
	pctx[step.Output] = docs
	return nil
}

// dedupMetaValues collects the named metadata string field across
// documents, de-duplicated in first-seen order.
func dedupMetaValues(docs []domain.Document, key string) []string {
	seen := make(map[string]struct{}, len(docs))
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		v := d.MetaString(key)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func metaValues(docs []domain.Document, key string) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if v := d.MetaString(key); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func metaValuesFirstOf(docs []domain.Document, keys ...string) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		for _, k := range keys {
			if v := d.MetaString(k); v != "" {
				out = append(out, v)
				break
			}
		}
	}
	return out
}
