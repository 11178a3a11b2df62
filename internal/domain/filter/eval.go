package filter

import "reflect"

// Matches evaluates the expression against a metadata map. Used by the
// in-memory backend and by the lexical full-scan path. A nil expression
// matches everything. A comparison on an absent field never matches, for
// any operator; negative operators do not get a free pass on missing data.
func Matches(e Expression, metadata map[string]any) bool {
	switch v := e.(type) {
	case nil:
		return true
	case Comparison:
		actual, ok := metadata[v.Field]
		if !ok {
			return false
		}
		return matchComparison(v, actual)
	case Combinator:
		switch v.Op {
		case BoolAnd:
			for _, child := range v.Children {
				if !Matches(child, metadata) {
					return false
				}
			}
			return len(v.Children) > 0
		case BoolOr:
			for _, child := range v.Children {
				if Matches(child, metadata) {
					return true
				}
			}
			return false
		}
	}
	return false
}

func matchComparison(c Comparison, actual any) bool {
	switch c.Op {
	case OpEq:
		return looseEqual(actual, c.Value)
	case OpNe:
		return !looseEqual(actual, c.Value)
	case OpGt, OpGte, OpLt, OpLte:
		return matchOrdered(c.Op, actual, c.Value)
	case OpIn:
		return containsValue(c.Value, actual)
	case OpNin:
		return !containsValue(c.Value, actual)
	}
	return false
}

func matchOrdered(op Op, actual, bound any) bool {
	a, okA := toFloat(actual)
	b, okB := toFloat(bound)
	if !okA || !okB {
		return false
	}
	switch op {
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	}
	return false
}

func containsValue(list, actual any) bool {
	switch candidates := list.(type) {
	case []any:
		for _, c := range candidates {
			if looseEqual(actual, c) {
				return true
			}
		}
	case []string:
		for _, c := range candidates {
			if looseEqual(actual, c) {
				return true
			}
		}
	}
	return false
}

// looseEqual compares two metadata values, treating all numeric types as
// interchangeable (JSON decoding yields float64 where stores yield int).
func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
