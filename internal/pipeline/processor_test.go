package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/quarry-search/quarry/internal/domain"
	"github.com/quarry-search/quarry/internal/domain/filter"
	"github.com/quarry-search/quarry/internal/domain/query"
	"github.com/quarry-search/quarry/internal/retriever"
)

// mockRetriever returns one canned response per call, in order, and
// records every request it receives.
type mockRetriever struct {
	responses [][]domain.Document
	errs      []error
	requests  []retriever.Request
}

func (m *mockRetriever) Retrieve(
	_ context.Context, _ string, req retriever.Request,
) ([]domain.Document, error) {
	i := len(m.requests)
	m.requests = append(m.requests, req)
	var docs []domain.Document
	if i < len(m.responses) {
		docs = m.responses[i]
	}
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	return docs, err
}

func doc(text, source string) domain.Document {
	return domain.NewDocument(text, map[string]any{"source": source}, 0.9)
}

func TestProcess_SingleQuery(t *testing.T) {
	m := &mockRetriever{responses: [][]domain.Document{{doc("hit", "a.pdf")}}}
	p := New(m, nil)

	cfg := query.Config{Single: &query.Single{Query: "q", TopK: 7, MinScore: 0.4}}
	docs, err := p.Process(context.Background(), "docs", cfg)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(docs) != 1 || docs[0].Text() != "hit" {
		t.Fatalf("unexpected result: %+v", docs)
	}
	req := m.requests[0]
	if req.Query != "q" || req.TopK != 7 || req.MinScore != 0.4 {
		t.Errorf("request not passed through: %+v", req)
	}
}

func TestProcessJSON_MalformedConfig(t *testing.T) {
	p := New(&mockRetriever{}, nil)
	_, err := p.ProcessJSON(context.Background(), "docs", []byte(`{"query": `))
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestProcess_PipelineReferenceResolution(t *testing.T) {
	step1Docs := []domain.Document{doc("one", "a.pdf"), doc("two", "b.pdf"), doc("dup", "a.pdf")}
	m := &mockRetriever{responses: [][]domain.Document{step1Docs, {doc("filtered", "a.pdf")}}}
	p := New(m, nil)

	cfg := query.Config{Steps: []query.Step{
		{Kind: query.KindVectorSearch, Query: "建设目标", TopK: 5, MinScore: 0.7, Output: "hits"},
		{
			Kind:   query.KindMetadataFilter,
			TopK:   query.DefaultFilterLimit,
			Filter: filter.Comparison{Field: "document_id", Op: filter.OpIn, Value: "$hits_ids"},
			Output: "final",
		},
	}}

	docs, err := p.Process(context.Background(), "docs", cfg)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(docs) != 1 || docs[0].Text() != "filtered" {
		t.Fatalf("unexpected final result: %+v", docs)
	}

	if len(m.requests) != 2 {
		t.Fatalf("expected 2 retriever calls, got %d", len(m.requests))
	}
	step2 := m.requests[1]
	if step2.Query != "" {
		t.Errorf("filter step must use an empty query, got %q", step2.Query)
	}
	cmp, ok := step2.Filter.(filter.Comparison)
	if !ok {
		t.Fatalf("expected Comparison filter, got %T", step2.Filter)
	}
	got, ok := cmp.Value.([]string)
	if !ok {
		t.Fatalf("expected resolved identifier list, got %#v", cmp.Value)
	}
	want := []string{"a.pdf", "b.pdf"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("resolved ids = %v, want de-duplicated %v", got, want)
	}
}

func TestProcess_PipelineDocumentReference(t *testing.T) {
	step1Docs := []domain.Document{doc("one", "a.pdf"), doc("two", "b.pdf")}
	m := &mockRetriever{responses: [][]domain.Document{step1Docs, nil}}
	p := New(m, nil)

	cfg := query.Config{Steps: []query.Step{
		{Kind: query.KindVectorSearch, Query: "q", TopK: 5, Output: "s1"},
		{
			Kind:   query.KindMetadataFilter,
			TopK:   query.DefaultFilterLimit,
			Filter: filter.Comparison{Field: "parent_id", Op: filter.OpIn, Value: "$s1"},
			Output: "s2",
		},
	}}

	if _, err := p.Process(context.Background(), "docs", cfg); err != nil {
		t.Fatalf("Process: %v", err)
	}
	cmp := m.requests[1].Filter.(filter.Comparison)
	got, ok := cmp.Value.([]string)
	if !ok || len(got) != 2 {
		t.Fatalf("document reference must resolve to source identifiers, got %#v", cmp.Value)
	}
}

func TestProcess_EmptyStepShortCircuitsFilter(t *testing.T) {
	// Step 1 finds nothing; $s1_ids is an empty list, the sanitizer turns
	// the empty in into a no-match marker, and step 2 never hits the
	// retriever.
	m := &mockRetriever{responses: [][]domain.Document{{}}}
	p := New(m, nil)

	cfg := query.Config{Steps: []query.Step{
		{Kind: query.KindVectorSearch, Query: "nothing matches this", TopK: 5, MinScore: 0.99, Output: "s1"},
		{
			Kind:   query.KindMetadataFilter,
			TopK:   query.DefaultFilterLimit,
			Filter: filter.Comparison{Field: "document_id", Op: filter.OpIn, Value: "$s1_ids"},
			Output: "s2",
		},
	}}

	docs, err := p.Process(context.Background(), "docs", cfg)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected empty result, got %d docs", len(docs))
	}
	if len(m.requests) != 1 {
		t.Errorf("step 2 should short-circuit, but retriever saw %d calls", len(m.requests))
	}
}

func TestProcess_UnknownReferenceStaysLiteral(t *testing.T) {
	m := &mockRetriever{responses: [][]domain.Document{nil}}
	p := New(m, nil)

	cfg := query.Config{Steps: []query.Step{{
		Kind:   query.KindMetadataFilter,
		TopK:   query.DefaultFilterLimit,
		Filter: filter.Eq("source", "$never_defined"),
		Output: "out",
	}}}

	if _, err := p.Process(context.Background(), "docs", cfg); err != nil {
		t.Fatalf("Process: %v", err)
	}
	cmp := m.requests[0].Filter.(filter.Comparison)
	if cmp.Value != "$never_defined" {
		t.Errorf("unknown reference must stay literal, got %#v", cmp.Value)
	}
}

func TestProcess_StepErrorAbortsPipeline(t *testing.T) {
	bad := errors.New("store unreachable")
	m := &mockRetriever{
		responses: [][]domain.Document{{doc("x", "a.pdf")}, nil},
		errs:      []error{nil, bad},
	}
	p := New(m, nil)

	cfg := query.Config{Steps: []query.Step{
		{Kind: query.KindVectorSearch, Query: "a", TopK: 5, Output: "s1"},
		{Kind: query.KindVectorSearch, Query: "b", TopK: 5, Output: "s2"},
		{Kind: query.KindVectorSearch, Query: "c", TopK: 5, Output: "s3"},
	}}

	_, err := p.Process(context.Background(), "docs", cfg)
	if !errors.Is(err, bad) {
		t.Fatalf("expected the step error to propagate, got %v", err)
	}
	if len(m.requests) != 2 {
		t.Errorf("pipeline must stop at the failing step, saw %d calls", len(m.requests))
	}
}

func TestProcess_AuxiliaryEntries(t *testing.T) {
	step1Docs := []domain.Document{
		domain.NewDocument("a", map[string]any{"source": "a.pdf", "id": "c1", "parent_id": "p1"}, 0.9),
		domain.NewDocument("b", map[string]any{"source": "b.pdf", "id": "c2", "document_id": "d2"}, 0.8),
	}
	m := &mockRetriever{responses: [][]domain.Document{step1Docs, nil}}
	p := New(m, nil)

	cfg := query.Config{Steps: []query.Step{
		{Kind: query.KindVectorSearch, Query: "q", TopK: 5, Output: "s1"},
		{
			Kind:   query.KindMetadataFilter,
			TopK:   query.DefaultFilterLimit,
			Filter: filter.Comparison{Field: "id", Op: filter.OpIn, Value: "$s1_chunk_ids"},
			Output: "s2",
		},
	}}

	if _, err := p.Process(context.Background(), "docs", cfg); err != nil {
		t.Fatalf("Process: %v", err)
	}
	cmp := m.requests[1].Filter.(filter.Comparison)
	got, _ := cmp.Value.([]string)
	if !reflect.DeepEqual(got, []string{"c1", "c2"}) {
		t.Errorf("chunk id aux entry = %v, want [c1 c2]", got)
	}
}

func TestProcess_Idempotent(t *testing.T) {
	run := func() []domain.Document {
		m := &mockRetriever{responses: [][]domain.Document{
			{doc("one", "a.pdf"), doc("two", "b.pdf")},
			{doc("final", "a.pdf")},
		}}
		p := New(m, nil)
		cfg := query.Config{Steps: []query.Step{
			{Kind: query.KindVectorSearch, Query: "q", TopK: 5, Output: "s1"},
			{
				Kind:   query.KindMetadataFilter,
				TopK:   query.DefaultFilterLimit,
				Filter: filter.Comparison{Field: "document_id", Op: filter.OpIn, Value: "$s1_ids"},
				Output: "s2",
			},
		}}
		docs, err := p.Process(context.Background(), "docs", cfg)
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		return docs
	}

	first := run()
	second := run()
	if !reflect.DeepEqual(first, second) {
		t.Error("identical configurations must yield identical results")
	}
}
