package query

import (
	"errors"
	"testing"

	"github.com/quarry-search/quarry/internal/domain"
	"github.com/quarry-search/quarry/internal/domain/filter"
)

func TestParse_SingleDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{"query": "建设目标"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Single == nil {
		t.Fatal("expected a single-query config")
	}
	if cfg.Single.TopK != DefaultTopK {
		t.Errorf("top_k default = %d, want %d", cfg.Single.TopK, DefaultTopK)
	}
	if cfg.Single.MinScore != DefaultMinScore {
		t.Errorf("min_score default = %g, want %g", cfg.Single.MinScore, DefaultMinScore)
	}
}

func TestParse_SingleExplicit(t *testing.T) {
	cfg, err := Parse([]byte(`{"query": "q", "top_k": 10, "min_score": 0.4, "metadata_filter": {"source": "a.pdf"}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s := cfg.Single
	if s.TopK != 10 || s.MinScore != 0.4 {
		t.Errorf("unexpected single config: %+v", s)
	}
	if s.Filter == nil {
		t.Error("expected a parsed filter")
	}
}

func TestParse_FilterOnlySingle(t *testing.T) {
	cfg, err := Parse([]byte(`{"metadata_filter": {"block_type": "heading"}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Single == nil || cfg.Single.Query != "" {
		t.Fatalf("expected filter-only single config, got %+v", cfg)
	}
}

func TestParse_ConfigurationErrors(t *testing.T) {
	cases := map[string]string{
		"malformed json":     `{"query": `,
		"missing both":       `{}`,
		"bad top_k":          `{"query": "q", "top_k": 0}`,
		"bad min_score":      `{"query": "q", "min_score": 1.5}`,
		"bad filter":         `{"query": "q", "metadata_filter": {"$bogus": []}}`,
		"empty step":         `{"steps": [{}]}`,
		"duplicate outputs":  `{"steps": [{"query":"a","output":"x"},{"query":"b","output":"x"}]}`,
		"vacuous and filter": `{"metadata_filter": {"$and": []}}`,
		"vacuous or filter":  `{"metadata_filter": {"$or": []}}`,
		"vacuous step metadata": `{"steps": [{"query": "q", "metadata": {"$and": []}}]}`,
		"bad step top_k":     `{"steps": [{"query": "q", "top_k": 0}]}`,
		"bad step min_score": `{"steps": [{"query": "q", "min_score": 1.5}]}`,
		"bad filter-step top_k": `{"steps": [{"metadata_filter": {"source": "a.pdf"}, "top_k": -1}]}`,
	}
	for name, raw := range cases {
		_, err := Parse([]byte(raw))
		if err == nil {
			t.Errorf("%s: expected error", name)
			continue
		}
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("%s: expected ErrConfiguration, got %v", name, err)
		}
	}
}

func TestParse_Pipeline(t *testing.T) {
	raw := `{"steps": [
		{"query": "建设目标", "top_k": 3, "output": "s1", "metadata": {"source": "a.pdf"}},
		{"metadata_filter": {"document_id": {"$in": "$s1_ids"}}, "output": "s2"}
	]}`
	cfg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(cfg.Steps))
	}

	s1 := cfg.Steps[0]
	if s1.Kind != KindVectorSearch || s1.TopK != 3 || s1.Output != "s1" {
		t.Errorf("unexpected step 1: %+v", s1)
	}
	if s1.MinScore != DefaultMinScore {
		t.Errorf("step 1 min_score = %g, want default %g", s1.MinScore, DefaultMinScore)
	}

	s2 := cfg.Steps[1]
	if s2.Kind != KindMetadataFilter || s2.Output != "s2" {
		t.Errorf("unexpected step 2: %+v", s2)
	}
	if s2.TopK != DefaultFilterLimit {
		t.Errorf("step 2 top_k = %d, want %d", s2.TopK, DefaultFilterLimit)
	}
	cmp, ok := s2.Filter.(filter.Comparison)
	if !ok || cmp.Op != filter.OpIn {
		t.Fatalf("expected in-comparison filter, got %#v", s2.Filter)
	}
	if cmp.Value != "$s1_ids" {
		t.Errorf("reference operand must survive parsing, got %#v", cmp.Value)
	}
}

func TestParse_PipelineDefaultOutput(t *testing.T) {
	cfg, err := Parse([]byte(`{"steps": [{"query": "q"}, {"query": "r"}]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Steps[0].Output != "step_0_results" || cfg.Steps[1].Output != "step_1_results" {
		t.Errorf("positional output defaults wrong: %q, %q", cfg.Steps[0].Output, cfg.Steps[1].Output)
	}
}
