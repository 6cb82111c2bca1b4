package ast

import (
	"maps"
	"slices"
)

// Expr is a sealed interface over pipeline stages.
// Only Term, Projection, BagVal and RecordVal implement it.
type Expr interface {
	exprNode()
	String() string
}

// Term references a named binding, optionally applying it to arguments.
// Arguments are names resolved in the caller's scope, never sub-expressions.
type Term struct {
	Name   string
	Params []string
}

func (Term) exprNode() {}

// NewTerm creates a Term. With no params it is a bare reference.
func NewTerm(name string, params ...string) Term {
	return Term{Name: name, Params: slices.Clone(params)}
}

// Destructure returns (name, params). The params slice is a copy.
func (t Term) Destructure() (string, []string) {
	return t.Name, slices.Clone(t.Params)
}

// IsBare reports whether the term passes no arguments.
func (t Term) IsBare() bool {
	return len(t.Params) == 0
}

// Projection extracts one field from a record.
type Projection struct {
	Key string
}

func (Projection) exprNode() {}

// NewProjection creates a Projection of key.
func NewProjection(key string) Projection {
	return Projection{Key: key}
}

// Destructure returns (key).
func (p Projection) Destructure() string {
	return p.Key
}

// BagVal is a deferred bag→bag pipeline. Stages run left to right, each
// consuming the output of the previous one. No stages means identity.
type BagVal struct {
	Exprs []Expr
}

func (BagVal) exprNode() {}

// NewBag creates a BagVal from stages in order.
func NewBag(exprs ...Expr) BagVal {
	return BagVal{Exprs: slices.Clone(exprs)}
}

// Destructure returns a copy of (exprs).
func (b BagVal) Destructure() []Expr {
	return slices.Clone(b.Exprs)
}

// RecordVal is a deferred record→record transformation. Every entry is
// evaluated against the same incoming value.
type RecordVal struct {
	Dicty map[string]Expr
}

func (RecordVal) exprNode() {}

// NewRecord creates a RecordVal. The map is copied.
func NewRecord(dicty map[string]Expr) RecordVal {
	return RecordVal{Dicty: maps.Clone(dicty)}
}

// Destructure returns a copy of (dicty).
func (r RecordVal) Destructure() map[string]Expr {
	return maps.Clone(r.Dicty)
}

// Keys returns the entry keys in sorted order.
func (r RecordVal) Keys() []string {
	return slices.Sorted(maps.Keys(r.Dicty))
}

// LetBody is a named, parameterized pipeline definition.
type LetBody struct {
	Params []string
	Exprs  []Expr
}

// NewLet creates a LetBody.
func NewLet(params []string, exprs ...Expr) LetBody {
	return LetBody{Params: slices.Clone(params), Exprs: slices.Clone(exprs)}
}

// Destructure returns copies of (params, exprs).
func (l LetBody) Destructure() ([]string, []Expr) {
	return slices.Clone(l.Params), slices.Clone(l.Exprs)
}

// Arity returns the number of parameters.
func (l LetBody) Arity() int {
	return len(l.Params)
}

// Program is a whole compilation unit: named bindings plus the top-level
// pipeline.
type Program struct {
	Lets  map[string]LetBody
	Exprs []Expr
}

// NewProgram creates a Program. A nil lets map is valid.
func NewProgram(lets map[string]LetBody, exprs ...Expr) *Program {
	if lets == nil {
		lets = map[string]LetBody{}
	}
	return &Program{Lets: maps.Clone(lets), Exprs: slices.Clone(exprs)}
}

// Destructure returns copies of (lets, exprs). Each let is copied too.
func (p *Program) Destructure() (map[string]LetBody, []Expr) {
	lets := make(map[string]LetBody, len(p.Lets))
	for name, l := range p.Lets {
		lets[name] = NewLet(l.Params, l.Exprs...)
	}
	return lets, slices.Clone(p.Exprs)
}

// LetNames returns binding names in sorted order.
func (p *Program) LetNames() []string {
	return slices.Sorted(maps.Keys(p.Lets))
}

// Runnable reports whether the program has at least one top-level stage.
func (p *Program) Runnable() bool {
	return len(p.Exprs) > 0
}
