package ast

import (
	"slices"
)

// Equal reports whether two expressions are the same program fragment.
// Comparison is structural: nil and empty sequences are equal and map
// iteration order is irrelevant.
func Equal(a, b Expr) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case Term:
		y, ok := b.(Term)
		return ok && x.Name == y.Name && slices.Equal(x.Params, y.Params)
	case Projection:
		y, ok := b.(Projection)
		return ok && x.Key == y.Key
	case BagVal:
		y, ok := b.(BagVal)
		return ok && equalExprs(x.Exprs, y.Exprs)
	case RecordVal:
		y, ok := b.(RecordVal)
		if !ok || len(x.Dicty) != len(y.Dicty) {
			return false
		}
		for k, xe := range x.Dicty {
			ye, found := y.Dicty[k]
			if !found || !Equal(xe, ye) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func equalExprs(a, b []Expr) bool {
	return slices.EqualFunc(a, b, Equal)
}

// Equal reports whether two bindings have the same params and body.
func (l LetBody) Equal(other LetBody) bool {
	return slices.Equal(l.Params, other.Params) && equalExprs(l.Exprs, other.Exprs)
}

// Equal reports whether two programs are structurally identical.
func (p *Program) Equal(other *Program) bool {
	if p == nil || other == nil {
		return p == other
	}
	if len(p.Lets) != len(other.Lets) {
		return false
	}
	for name, l := range p.Lets {
		o, ok := other.Lets[name]
		if !ok || !l.Equal(o) {
			return false
		}
	}
	return equalExprs(p.Exprs, other.Exprs)
}
