package filter

import (
	"fmt"
	"sort"
)

// operator keys accepted in the serialized map form.
var opKeys = map[string]Op{
	"$eq":  OpEq,
	"$ne":  OpNe,
	"$gt":  OpGt,
	"$gte": OpGte,
	"$lt":  OpLt,
	"$lte": OpLte,
	"$in":  OpIn,
	"$nin": OpNin,
}

// Parse converts the serialized map form of a filter into an Expression.
//
// The grammar follows the ChromaDB convention:
//
//	{"$and": [f1, f2]}            boolean combinator
//	{"field": {"$in": [...]}}     explicit operator
//	{"field": "value"}            shorthand for $eq
//	{"a": 1, "b": 2}              multiple keys form an implicit $and
//
// Operator operands are not type-checked here: an `$in` operand may still
// be an unresolved `$name` reference string at parse time.
func Parse(raw map[string]any) (Expression, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	// Map iteration order is random; sort keys so implicit-and children
	// come out in a stable order.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	children := make([]Expression, 0, len(keys))
	for _, key := range keys {
		expr, err := parseEntry(key, raw[key])
		if err != nil {
			return nil, err
		}
		children = append(children, expr)
	}

	if len(children) == 1 {
		return children[0], nil
	}
	return Combinator{Op: BoolAnd, Children: children}, nil
}

func parseEntry(key string, value any) (Expression, error) {
	switch key {
	case "$and":
		return parseCombinator(BoolAnd, value)
	case "$or":
		return parseCombinator(BoolOr, value)
	}
	if len(key) > 0 && key[0] == '$' {
		return nil, fmt.Errorf("unknown combinator %q", key)
	}
	return parseComparison(key, value)
}

func parseCombinator(op BoolOp, value any) (Expression, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("$%s operand must be a list, got %T", op, value)
	}
	children := make([]Expression, 0, len(list))
	for i, item := range list {
		sub, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("$%s[%d] must be a filter object, got %T", op, i, item)
		}
		expr, err := Parse(sub)
		if err != nil {
			return nil, err
		}
		if expr != nil {
			children = append(children, expr)
		}
	}
	// A combinator with nothing under it is ambiguous (match everything?
	// nothing?) and is rejected rather than guessed at.
	if len(children) == 0 {
		return nil, fmt.Errorf("$%s must hold at least one condition", op)
	}
	return Combinator{Op: op, Children: children}, nil
}

func parseComparison(field string, value any) (Expression, error) {
	opMap, ok := value.(map[string]any)
	if !ok {
		// Bare scalar or list: shorthand equality.
		return Comparison{Field: field, Op: OpEq, Value: value}, nil
	}
	if len(opMap) != 1 {
		return nil, fmt.Errorf("field %q condition must hold exactly one operator, got %d", field, len(opMap))
	}
	for opKey, operand := range opMap {
		op, known := opKeys[opKey]
		if !known {
			return nil, fmt.Errorf("unknown operator %q for field %q", opKey, field)
		}
		return Comparison{Field: field, Op: op, Value: operand}, nil
	}
	return nil, nil // unreachable
}
