package eval

import (
	"slices"

	"github.com/roach88/tally/internal/ast"
	"github.com/roach88/tally/internal/value"
)

// binding is what a name denotes in a scope.
// Only valueBinding, letBinding and builtinBinding implement it.
type binding interface {
	kind() string
}

// valueBinding is a global, or a param bound to a value. Invoking it
// yields the value regardless of input.
type valueBinding struct {
	val value.Value
}

func (valueBinding) kind() string { return "value" }

// letBinding closes over the scope the let was defined in, never the
// scope of its caller.
type letBinding struct {
	name  string
	body  ast.LetBody
	scope *scope
}

func (letBinding) kind() string { return "let" }

type builtinBinding struct {
	builtin *Builtin
}

func (builtinBinding) kind() string { return "builtin" }

// scope is one frame of the resolution chain. Frames are written only while
// being built and are read-only afterwards.
type scope struct {
	parent *scope
	names  map[string]binding
}

func newScope(parent *scope, size int) *scope {
	return &scope{parent: parent, names: make(map[string]binding, size)}
}

func (s *scope) bind(name string, b binding) {
	s.names[name] = b
}

// lookup resolves name from the innermost frame outwards.
func (s *scope) lookup(name string) (binding, bool) {
	for f := s; f != nil; f = f.parent {
		if b, ok := f.names[name]; ok {
			return b, true
		}
	}
	return nil, false
}

// visible returns every resolvable name, sorted, without duplicates.
func (s *scope) visible() []string {
	seen := make(map[string]bool)
	var names []string
	for f := s; f != nil; f = f.parent {
		for n := range f.names {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	slices.Sort(names)
	return names
}

// builtinScope builds the root frame from a catalog.
func builtinScope(catalog map[string]*Builtin) *scope {
	s := newScope(nil, len(catalog))
	for name, b := range catalog {
		s.bind(name, builtinBinding{builtin: b})
	}
	return s
}

// programScope layers globals then lets over the builtin frame. Lets close
// over their own frame so they can reference each other and recurse.
func programScope(root *scope, prog *ast.Program, globals map[string]value.Value) *scope {
	gs := newScope(root, len(globals))
	for name, v := range globals {
		if v == nil {
			v = value.Null{}
		}
		gs.bind(name, valueBinding{val: v})
	}

	ls := newScope(gs, len(prog.Lets))
	for name, body := range prog.Lets {
		ls.bind(name, letBinding{name: name, body: body, scope: ls})
	}
	return ls
}
