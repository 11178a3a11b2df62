package qdrant

import (
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/quarry-search/quarry/internal/domain/filter"
)

// buildFilter converts a filter.Expression into a qdrant.Filter.
// Returns nil for a nil expression.
func buildFilter(e filter.Expression) *qdrant.Filter {
	switch v := e.(type) {
	case filter.Comparison:
		return &qdrant.Filter{Must: []*qdrant.Condition{buildCondition(v)}}
	case filter.Combinator:
		conditions := make([]*qdrant.Condition, 0, len(v.Children))
		for _, child := range v.Children {
			if c := childCondition(child); c != nil {
				conditions = append(conditions, c)
			}
		}
		// A combinator with no renderable children must not degrade to a
		// nil filter (an unfiltered query). Require the impossible
		// sentinel on a payload key that never exists instead, so the
		// condition matches nothing.
		if len(conditions) == 0 {
			return &qdrant.Filter{Must: []*qdrant.Condition{
				fieldCondition(filter.ImpossibleValue, matchValue(filter.ImpossibleValue)),
			}}
		}
		if v.Op == filter.BoolOr {
			return &qdrant.Filter{Should: conditions}
		}
		return &qdrant.Filter{Must: conditions}
	}
	return nil
}

func childCondition(e filter.Expression) *qdrant.Condition {
	switch v := e.(type) {
	case filter.Comparison:
		return buildCondition(v)
	case filter.Combinator:
		f := buildFilter(v)
		if f == nil {
			return nil
		}
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{Filter: f},
		}
	}
	return nil
}

func buildCondition(c filter.Comparison) *qdrant.Condition {
	switch c.Op {
	case filter.OpEq:
		return fieldCondition(c.Field, matchValue(c.Value))
	case filter.OpNe:
		return negated(fieldCondition(c.Field, matchValue(c.Value)))
	case filter.OpGt:
		return rangeCondition(c.Field, &qdrant.Range{Gt: floatPtr(c.Value)})
	case filter.OpGte:
		return rangeCondition(c.Field, &qdrant.Range{Gte: floatPtr(c.Value)})
	case filter.OpLt:
		return rangeCondition(c.Field, &qdrant.Range{Lt: floatPtr(c.Value)})
	case filter.OpLte:
		return rangeCondition(c.Field, &qdrant.Range{Lte: floatPtr(c.Value)})
	case filter.OpIn:
		return fieldCondition(c.Field, keywordsMatch(c.Value))
	case filter.OpNin:
		return negated(fieldCondition(c.Field, keywordsMatch(c.Value)))
	}
	return nil
}

func fieldCondition(field string, match *qdrant.Match) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{Key: field, Match: match},
		},
	}
}

func rangeCondition(field string, r *qdrant.Range) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{Key: field, Range: r},
		},
	}
}

func negated(c *qdrant.Condition) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Filter{
			Filter: &qdrant.Filter{MustNot: []*qdrant.Condition{c}},
		},
	}
}

func matchValue(value any) *qdrant.Match {
	switch v := value.(type) {
	case string:
		return &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
	case bool:
		return &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
	case int:
		return &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
	case int64:
		return &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}
	case float64:
		if v == float64(int64(v)) {
			return &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
		}
		return &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: fmt.Sprintf("%g", v)}}
	}
	return &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: fmt.Sprintf("%v", value)}}
}

// keywordsMatch renders an in-list. An empty list (which the sanitizer
// normally removes) stays impossible: it matches only the sentinel.
func keywordsMatch(value any) *qdrant.Match {
	var keywords []string
	switch list := value.(type) {
	case []any:
		for _, v := range list {
			keywords = append(keywords, fmt.Sprintf("%v", v))
		}
	case []string:
		keywords = list
	}
	if len(keywords) == 0 {
		keywords = []string{filter.ImpossibleValue}
	}
	return &qdrant.Match{
		MatchValue: &qdrant.Match_Keywords{
			Keywords: &qdrant.RepeatedStrings{Strings: keywords},
		},
	}
}

func floatPtr(value any) *float64 {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	}
	return &f
}
