// Package filter defines the metadata filter expression tree shared by the
// retrieval engine and the storage backends. An expression is either a
// single field comparison or a boolean combinator over sub-expressions.
package filter

// Op is a comparison operator.
type Op string

// Comparison operators.
const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
	OpNin Op = "nin"
)

// BoolOp is a boolean combinator operator.
type BoolOp string

// Boolean combinators.
const (
	BoolAnd BoolOp = "and"
	BoolOr  BoolOp = "or"
)

// ImpossibleValue is a sentinel no real metadata value ever takes. The
// sanitizer rewrites an `in` over an empty candidate list into an `eq`
// against this sentinel, turning an ambiguous construct into an explicit
// guaranteed-no-match condition.
const ImpossibleValue = "__impossible_match__"

// Expression is a metadata filter: either a Comparison or a Combinator.
// A nil Expression means "no filter".
type Expression interface {
	isExpression()
}

// Comparison matches a single metadata field against a value.
// For OpIn and OpNin, Value is a list of candidates; before reference
// resolution it may also be a `$name` reference string.
type Comparison struct {
	Field string
	Op    Op
	Value any
}

func (Comparison) isExpression() {}

// Combinator combines sub-expressions with and/or semantics.
type Combinator struct {
	Op       BoolOp
	Children []Expression
}

func (Combinator) isExpression() {}

// Eq builds an equality comparison.
func Eq(field string, value any) Expression {
	return Comparison{Field: field, Op: OpEq, Value: value}
}

// In builds a membership comparison.
func In(field string, values ...any) Expression {
	return Comparison{Field: field, Op: OpIn, Value: values}
}

// And combines expressions with and-semantics.
func And(children ...Expression) Expression {
	return Combinator{Op: BoolAnd, Children: children}
}

// Or combines expressions with or-semantics.
func Or(children ...Expression) Expression {
	return Combinator{Op: BoolOr, Children: children}
}

// References reports whether the expression contains a comparison on any
// of the given fields.
func References(e Expression, fields ...string) bool {
	switch v := e.(type) {
	case Comparison:
		for _, f := range fields {
			if v.Field == f {
				return true
			}
		}
	case Combinator:
		for _, child := range v.Children {
			if References(child, fields...) {
				return true
			}
		}
	}
	return false
}
