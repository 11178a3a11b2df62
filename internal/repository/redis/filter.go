package redis

import (
	"fmt"
	"strings"

	"github.com/quarry-search/quarry/internal/domain/filter"
)

// buildFilter translates a filter.Expression into RediSearch query
// syntax. String comparisons target TAG fields, numeric ones NUMERIC
// fields. Returns "" for a nil expression.
func buildFilter(e filter.Expression) string {
	switch v := e.(type) {
	case filter.Comparison:
		return buildComparison(v)
	case filter.Combinator:
		parts := make([]string, 0, len(v.Children))
		for _, child := range v.Children {
			if p := buildFilter(child); p != "" {
				parts = append(parts, p)
			}
		}
		// A combinator that renders no parts must not degrade to "" (the
		// caller would widen it to a full-collection match). Render the
		// impossible sentinel as a bare term instead: it never occurs in
		// real data, so the query matches nothing.
		if len(parts) == 0 {
			return filter.ImpossibleValue
		}
		sep := " "
		if v.Op == filter.BoolOr {
			sep = " | "
		}
		return "(" + strings.Join(parts, sep) + ")"
	}
	return ""
}

func buildComparison(c filter.Comparison) string {
	switch c.Op {
	case filter.OpEq:
		return buildEquals(c.Field, c.Value)
	case filter.OpNe:
		return "-" + buildEquals(c.Field, c.Value)
	case filter.OpGt:
		return fmt.Sprintf("@%s:[(%s +inf]", c.Field, numeric(c.Value))
	case filter.OpGte:
		return fmt.Sprintf("@%s:[%s +inf]", c.Field, numeric(c.Value))
	case filter.OpLt:
		return fmt.Sprintf("@%s:[-inf (%s]", c.Field, numeric(c.Value))
	case filter.OpLte:
		return fmt.Sprintf("@%s:[-inf %s]", c.Field, numeric(c.Value))
	case filter.OpIn:
		return buildMembership(c.Field, c.Value)
	case filter.OpNin:
		return "-" + buildMembership(c.Field, c.Value)
	}
	return ""
}

func buildEquals(field string, value any) string {
	if s, ok := value.(string); ok {
		return fmt.Sprintf("@%s:{%s}", field, tagEscaper.Replace(s))
	}
	n := numeric(value)
	return fmt.Sprintf("@%s:[%s %s]", field, n, n)
}

// buildMembership renders an in-list as a TAG union. An empty candidate
// list must already have been sanitized away; rendering it anyway
// produces an impossible tag so it stays a no-match either way.
func buildMembership(field string, value any) string {
	values := asList(value)
	if len(values) == 0 {
		return fmt.Sprintf("@%s:{%s}", field, filter.ImpossibleValue)
	}
	parts := make([]string, len(values))
	for i, v := range values {
		if s, ok := v.(string); ok {
			parts[i] = tagEscaper.Replace(s)
		} else {
			parts[i] = numeric(v)
		}
	}
	return fmt.Sprintf("@%s:{%s}", field, strings.Join(parts, "|"))
}

func asList(value any) []any {
	switch list := value.(type) {
	case []any:
		return list
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	}
	return nil
}

func numeric(value any) string {
	switch n := value.(type) {
	case float64:
		return formatNum(n)
	case float32:
		return formatNum(float64(n))
	case int:
		return formatNum(float64(n))
	case int64:
		return formatNum(float64(n))
	}
	return "0"
}

func formatNum(f float64) string {
	return fmt.Sprintf("%g", f)
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)
