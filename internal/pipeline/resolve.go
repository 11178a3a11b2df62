package pipeline

import (
	"strings"

	"github.com/quarry-search/quarry/internal/domain"
	"github.com/quarry-search/quarry/internal/domain/filter"
)

// refSigil introduces a symbolic reference to an earlier step's output.
const refSigil = "$"

// identifierFields are the fields whose `in` filters match documents by
// identifier. References used as their operands resolve to identifier
// lists rather than to the raw referenced value.
var identifierFields = map[string]struct{}{
	"id":          {},
	"document_id": {},
	"parent_id":   {},
	"source":      {},
}

// resolveReferences walks the expression depth-first and substitutes
// `$name` strings with the pipeline context entry of that name. Unknown
// names stay as literal strings.
func resolveReferences(e filter.Expression, pctx map[string]any) filter.Expression {
	switch v := e.(type) {
	case filter.Comparison:
		v.Value = resolveValue(v, pctx)
		return v
	case filter.Combinator:
		children := make([]filter.Expression, len(v.Children))
		for i, child := range v.Children {
			children[i] = resolveReferences(child, pctx)
		}
		return filter.Combinator{Op: v.Op, Children: children}
	}
	return e
}

func resolveValue(c filter.Comparison, pctx map[string]any) any {
	ref, ok := c.Value.(string)
	if !ok || !strings.HasPrefix(ref, refSigil) {
		return c.Value
	}
	resolved, ok := pctx[strings.TrimPrefix(ref, refSigil)]
	if !ok {
		return c.Value
	}

	if c.Op == filter.OpIn || c.Op == filter.OpNin {
		if _, idField := identifierFields[c.Field]; idField {
			// Referenced documents cannot be compared by object equality;
			// the underlying filters match on identifiers, so substitute
			// the documents' source identifiers instead.
			return identifierList(resolved)
		}
	}
	return resolved
}

// identifierList converts a resolved context value into a list of
// identifiers. Document lists yield their de-duplicated source fields; an
// unusable value yields an empty list, which the sanitizer later turns
// into an explicit no-match condition.
func identifierList(resolved any) any {
	switch v := resolved.(type) {
	case []domain.Document:
		return dedupMetaValues(v, "source")
	case []string:
		return v
	case []any:
		return v
	}
	return []string{}
}
