package compiler

import (
	"fmt"

	"github.com/roach88/tally/internal/ast"
)

// Validation error codes (E100-E199)
const (
	ErrDuplicateParam  = "E101" // param repeated within one let
	ErrUnresolvedName  = "E102" // name is not a param, let or known name
	ErrArityMismatch   = "E103" // term passes the wrong number of args to a let
	ErrEmptyProgram    = "E104" // program has no top-level exprs
	ErrNilExpression   = "E105" // nil node in an expression list
	ErrEmptyIdentifier = "E106" // empty term name, arg, projection key or record key
)

// ValidationError represents a static problem found in a program.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a program statically. known lists the names that resolve
// outside the program: globals and builtins.
// Returns all errors found (does not fail-fast), ordered by let name then
// position, with top-level exprs last.
func Validate(prog *ast.Program, known []string) []ValidationError {
	if prog == nil {
		return []ValidationError{{Field: "program", Message: "program is nil", Code: ErrEmptyProgram}}
	}

	v := &validator{
		prog:  prog,
		known: make(map[string]bool, len(known)),
	}
	for _, k := range known {
		v.known[k] = true
	}

	for _, name := range prog.LetNames() {
		v.validateLet(name, prog.Lets[name])
	}

	if !prog.Runnable() {
		v.add("exprs", ErrEmptyProgram, "program must have at least one top-level expression")
	}
	v.validateExprs("exprs", prog.Exprs, nil)

	return v.errs
}

type validator struct {
	prog  *ast.Program
	known map[string]bool
	errs  []ValidationError
}

func (v *validator) add(field, code, msg string) {
	v.errs = append(v.errs, ValidationError{Field: field, Message: msg, Code: code})
}

func (v *validator) validateLet(name string, l ast.LetBody) {
	field := "lets." + name
	if name == "" {
		v.add(field, ErrEmptyIdentifier, "let name must be non-empty")
	}

	params, exprs := l.Destructure()
	bound := make(map[string]bool, len(params))
	for i, p := range params {
		if p == "" {
			v.add(fmt.Sprintf("%s.params[%d]", field, i), ErrEmptyIdentifier, "param name must be non-empty")
			continue
		}
		if bound[p] {
			v.add(fmt.Sprintf("%s.params[%d]", field, i), ErrDuplicateParam, fmt.Sprintf("duplicate param %q", p))
		}
		bound[p] = true
	}

	v.validateExprs(field+".exprs", exprs, bound)
}

func (v *validator) validateExprs(field string, exprs []ast.Expr, params map[string]bool) {
	for i, e := range exprs {
		v.validateExpr(fmt.Sprintf("%s[%d]", field, i), e, params)
	}
}

func (v *validator) validateExpr(field string, e ast.Expr, params map[string]bool) {
	switch n := e.(type) {
	case nil:
		v.add(field, ErrNilExpression, "expression is nil")

	case ast.Term:
		name, args := n.Destructure()
		v.checkName(field, name, params)
		for i, a := range args {
			v.checkName(fmt.Sprintf("%s.args[%d]", field, i), a, params)
		}
		// A param may shadow a let, in which case its arity is unknown.
		if l, ok := v.prog.Lets[name]; ok && !params[name] && l.Arity() != len(args) {
			v.add(field, ErrArityMismatch,
				fmt.Sprintf("%s takes %d argument(s), got %d", name, l.Arity(), len(args)))
		}

	case ast.Projection:
		if n.Destructure() == "" {
			v.add(field, ErrEmptyIdentifier, "projection key must be non-empty")
		}

	case ast.BagVal:
		v.validateExprs(field+".bag", n.Destructure(), params)

	case ast.RecordVal:
		fields := n.Destructure()
		for _, k := range n.Keys() {
			if k == "" {
				v.add(field+".record", ErrEmptyIdentifier, "record key must be non-empty")
			}
			v.validateExpr(field+".record."+k, fields[k], params)
		}

	default:
		v.add(field, ErrNilExpression, fmt.Sprintf("unrecognized expression %T", e))
	}
}

func (v *validator) checkName(field, name string, params map[string]bool) {
	if name == "" {
		v.add(field, ErrEmptyIdentifier, "name must be non-empty")
		return
	}
	if params[name] || v.known[name] {
		return
	}
	if _, ok := v.prog.Lets[name]; ok {
		return
	}
	v.add(field, ErrUnresolvedName, fmt.Sprintf("name %q is not a param, let, global or builtin", name))
}
