package search

import "strings"

// Op is the comparison a predicate applies to its accessor expression.
type Op int

const (
	// OpEqual is an exact string comparison.
	OpEqual Op = iota

	// OpLike is a SQL LIKE match; the bound value already carries its
	// wildcard markers.
	OpLike

	// OpAnyEqual matches when the accessor equals any of the bound values.
	OpAnyEqual
)

// Predicate is one bound condition against the document column. Predicates
// for a request are conjoined; an OpAnyEqual predicate disjoins its own
// values internally.
type Predicate struct {
	Expr   string // compiled accessor, a trusted schema fragment
	Op     Op
	Values []string
}

// BuildPredicates maps the filter values onto the schema's declared fields,
// in declared order. Filter keys with no matching field spec are ignored;
// clients send extra parameters today and expect them not to fail the
// request.
func BuildPredicates(s *Schema, filters map[string]string) []Predicate {
	var preds []Predicate
	for _, f := range s.Fields {
		value, ok := filters[f.Param]
		if !ok || value == "" {
			continue
		}
		if p, ok := buildPredicate(f, value); ok {
			preds = append(preds, p)
		}
	}
	return preds
}

func buildPredicate(f FieldSpec, value string) (Predicate, bool) {
	expr := pathExpr(f.Path)

	switch f.Match {
	case MatchPrefix:
		return Predicate{Expr: expr, Op: OpLike, Values: []string{value + "%"}}, true

	case MatchMultiOr:
		tokens := splitTokens(value)
		switch len(tokens) {
		case 0:
			return Predicate{}, false
		case 1:
			return Predicate{Expr: expr, Op: OpEqual, Values: tokens}, true
		default:
			return Predicate{Expr: expr, Op: OpAnyEqual, Values: tokens}, true
		}

	default: // MatchExact
		if f.RefType != "" {
			// Stored references may be absolute URLs, so the qualified
			// reference is matched as a substring.
			return Predicate{Expr: expr, Op: OpLike, Values: []string{"%" + f.RefType + "/" + value + "%"}}, true
		}
		return Predicate{Expr: expr, Op: OpEqual, Values: []string{value}}, true
	}
}

// splitTokens comma-splits a multi-value parameter, trimming whitespace and
// dropping empty tokens, preserving order.
func splitTokens(value string) []string {
	var tokens []string
	for _, t := range strings.Split(value, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
