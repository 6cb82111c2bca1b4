package ast

// Walk visits e and its descendants in pre-order. RecordVal entries are
// visited in sorted key order. If fn returns false the children of the
// current node are skipped.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch x := e.(type) {
	case BagVal:
		for _, child := range x.Exprs {
			Walk(child, fn)
		}
	case RecordVal:
		for _, k := range x.Keys() {
			Walk(x.Dicty[k], fn)
		}
	}
}

// WalkAll walks each expression of a pipeline in order.
func WalkAll(exprs []Expr, fn func(Expr) bool) {
	for _, e := range exprs {
		Walk(e, fn)
	}
}

// Names returns every name referenced by the pipeline: term names and
// argument names, in first-seen order without duplicates.
func Names(exprs []Expr) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	WalkAll(exprs, func(e Expr) bool {
		if t, ok := e.(Term); ok {
			add(t.Name)
			for _, p := range t.Params {
				add(p)
			}
		}
		return true
	})
	return names
}

// FreeNames returns the names used by a binding body that are not bound by
// its own params.
func FreeNames(l LetBody) []string {
	bound := make(map[string]bool, len(l.Params))
	for _, p := range l.Params {
		bound[p] = true
	}
	var free []string
	for _, n := range Names(l.Exprs) {
		if !bound[n] {
			free = append(free, n)
		}
	}
	return free
}
