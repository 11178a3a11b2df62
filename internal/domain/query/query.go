// Package query defines the declarative retrieval configuration: either a
// single query or an ordered pipeline of steps whose later steps may
// reference earlier results.
package query

import (
	"encoding/json"
	"fmt"

	"github.com/quarry-search/quarry/internal/domain"
	"github.com/quarry-search/quarry/internal/domain/filter"
)

// Defaults applied when a field is absent from the serialized form.
const (
	DefaultTopK        = 5
	DefaultMinScore    = 0.7
	DefaultFilterLimit = 100
)

// Kind discriminates pipeline step types.
type Kind string

// Step kinds.
const (
	KindVectorSearch   Kind = "vector_search"
	KindMetadataFilter Kind = "metadata_filter"
)

// Config is a parsed query configuration. Exactly one of Single or Steps
// is set.
type Config struct {
	Single *Single
	Steps  []Step
}

// Single is a one-shot retrieval configuration.
type Single struct {
	Query    string
	TopK     int
	MinScore float64
	Filter   filter.Expression
}

// Step is one pipeline operation. For vector-search steps Filter holds the
// optional metadata pre-filter; for metadata-filter steps it is the filter
// itself. Output names the pipeline context entry the step produces.
type Step struct {
	Kind     Kind
	Query    string
	TopK     int
	MinScore float64
	Filter   filter.Expression
	Output   string
}

type rawConfig struct {
	Query          string         `json:"query"`
	TopK           *int           `json:"top_k"`
	MinScore       *float64       `json:"min_score"`
	MetadataFilter map[string]any `json:"metadata_filter"`
	Steps          []rawStep      `json:"steps"`
}

type rawStep struct {
	Query          string         `json:"query"`
	TopK           *int           `json:"top_k"`
	MinScore       *float64       `json:"min_score"`
	Metadata       map[string]any `json:"metadata"`
	MetadataFilter map[string]any `json:"metadata_filter"`
	Output         string         `json:"output"`
}

// Parse decodes the serialized JSON form into a Config. Malformed input
// and structurally invalid configurations fail with domain.ErrConfiguration
// carrying the parse diagnostic.
func Parse(data []byte) (Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}

	if len(raw.Steps) > 0 {
		return parsePipeline(raw.Steps)
	}
	return parseSingle(raw)
}

func parseSingle(raw rawConfig) (Config, error) {
	f, err := filter.Parse(raw.MetadataFilter)
	if err != nil {
		return Config{}, fmt.Errorf("%w: metadata_filter: %w", domain.ErrConfiguration, err)
	}

	if raw.Query == "" && f == nil {
		return Config{}, fmt.Errorf("%w: either query or metadata_filter is required", domain.ErrConfiguration)
	}

	single := Single{
		Query:    raw.Query,
		TopK:     DefaultTopK,
		MinScore: DefaultMinScore,
		Filter:   f,
	}
	if raw.TopK != nil {
		if *raw.TopK <= 0 {
			return Config{}, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrConfiguration, *raw.TopK)
		}
		single.TopK = *raw.TopK
	}
	if raw.MinScore != nil {
		if *raw.MinScore < 0 || *raw.MinScore > 1 {
			return Config{}, fmt.Errorf("%w: min_score must be in [0,1], got %g", domain.ErrConfiguration, *raw.MinScore)
		}
		single.MinScore = *raw.MinScore
	}
	return Config{Single: &single}, nil
}

func parsePipeline(rawSteps []rawStep) (Config, error) {
	steps := make([]Step, 0, len(rawSteps))
	outputs := make(map[string]struct{}, len(rawSteps))

	for i, rs := range rawSteps {
		step, err := parseStep(i, rs)
		if err != nil {
			return Config{}, err
		}
		if _, dup := outputs[step.Output]; dup {
			return Config{}, fmt.Errorf("%w: step %d: duplicate output %q", domain.ErrConfiguration, i, step.Output)
		}
		outputs[step.Output] = struct{}{}
		steps = append(steps, step)
	}
	return Config{Steps: steps}, nil
}

func parseStep(i int, rs rawStep) (Step, error) {
	output := rs.Output
	if output == "" {
		output = fmt.Sprintf("step_%d_results", i)
	}

	if rs.Query != "" {
		f, err := filter.Parse(rs.Metadata)
		if err != nil {
			return Step{}, fmt.Errorf("%w: step %d: metadata: %w", domain.ErrConfiguration, i, err)
		}
		step := Step{
			Kind:     KindVectorSearch,
			Query:    rs.Query,
			TopK:     DefaultTopK,
			MinScore: DefaultMinScore,
			Filter:   f,
			Output:   output,
		}
		if rs.TopK != nil {
			if *rs.TopK <= 0 {
				return Step{}, fmt.Errorf("%w: step %d: top_k must be positive, got %d", domain.ErrConfiguration, i, *rs.TopK)
			}
			step.TopK = *rs.TopK
		}
		if rs.MinScore != nil {
			if *rs.MinScore < 0 || *rs.MinScore > 1 {
				return Step{}, fmt.Errorf("%w: step %d: min_score must be in [0,1], got %g", domain.ErrConfiguration, i, *rs.MinScore)
			}
			step.MinScore = *rs.MinScore
		}
		return step, nil
	}

	if len(rs.MetadataFilter) == 0 {
		return Step{}, fmt.Errorf("%w: step %d: needs a query or a metadata_filter", domain.ErrConfiguration, i)
	}
	f, err := filter.Parse(rs.MetadataFilter)
	if err != nil {
		return Step{}, fmt.Errorf("%w: step %d: metadata_filter: %w", domain.ErrConfiguration, i, err)
	}
	step := Step{
		Kind:   KindMetadataFilter,
		TopK:   DefaultFilterLimit,
		Filter: f,
		Output: output,
	}
	if rs.TopK != nil {
		if *rs.TopK <= 0 {
			return Step{}, fmt.Errorf("%w: step %d: top_k must be positive, got %d", domain.ErrConfiguration, i, *rs.TopK)
		}
		step.TopK = *rs.TopK
	}
	return step, nil
}
