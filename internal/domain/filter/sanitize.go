package filter

// Sanitize normalizes the degenerate constructs an expression may pick up
// after reference resolution:
//
//   - an `in` over an empty candidate list becomes an `eq` against
//     ImpossibleValue, because backends treat an empty `in` ambiguously
//     and "matches nothing" must be explicit;
//   - a combinator with zero (surviving) children is dropped rather than
//     kept as a trivially-true group.
//
// Returns nil when nothing of the expression survives.
func Sanitize(e Expression) Expression {
	switch v := e.(type) {
	case Comparison:
		if v.Op == OpIn && emptyList(v.Value) {
			return Comparison{Field: v.Field, Op: OpEq, Value: ImpossibleValue}
		}
		return v
	case Combinator:
		children := make([]Expression, 0, len(v.Children))
		for _, child := range v.Children {
			if s := Sanitize(child); s != nil {
				children = append(children, s)
			}
		}
		if len(children) == 0 {
			return nil
		}
		return Combinator{Op: v.Op, Children: children}
	}
	return nil
}

// Valid reports whether a sanitized expression can possibly match anything.
// An expression is invalid when it is empty, contains the ImpossibleValue
// marker, or holds a combinator with zero or invalid sub-expressions.
func Valid(e Expression) bool {
	switch v := e.(type) {
	case Comparison:
		if v.Field == "" {
			return false
		}
		if v.Op == OpEq && v.Value == ImpossibleValue {
			return false
		}
		return true
	case Combinator:
		if len(v.Children) == 0 {
			return false
		}
		for _, child := range v.Children {
			if !Valid(child) {
				return false
			}
		}
		return true
	}
	return false
}

func emptyList(v any) bool {
	switch list := v.(type) {
	case nil:
		return true
	case []any:
		return len(list) == 0
	case []string:
		return len(list) == 0
	}
	return false
}
