package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/ast"
)

var builtinNames = []string{"count", "filter", "gt", "id", "map"}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateValid(t *testing.T) {
	prog := ast.NewProgram(
		map[string]ast.LetBody{
			"addX":    ast.NewLet([]string{"x"}, ast.NewProjection("x")),
			"isAdult": ast.NewLet(nil, ast.NewProjection("age"), ast.NewTerm("gt", "minAge")),
		},
		ast.NewTerm("filter", "isAdult"),
		ast.NewTerm("addX", "y"),
	)

	errs := Validate(prog, append(builtinNames, "minAge", "y"))
	assert.Empty(t, errs, "valid program should have no errors")
}

func TestValidateDuplicateParam(t *testing.T) {
	prog := ast.NewProgram(
		map[string]ast.LetBody{"f": ast.NewLet([]string{"a", "a"}, ast.NewTerm("a"))},
		ast.NewTerm("f", "id", "id"),
	)

	errs := Validate(prog, builtinNames)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateParam, errs[0].Code)
	assert.Equal(t, "lets.f.params[1]", errs[0].Field)
}

func TestValidateUnresolved(t *testing.T) {
	prog := ast.NewProgram(
		map[string]ast.LetBody{"f": ast.NewLet([]string{"p"}, ast.NewTerm("p"), ast.NewTerm("q"))},
		ast.NewTerm("f", "nope"),
	)

	errs := Validate(prog, builtinNames)
	assert.Equal(t, []string{ErrUnresolvedName, ErrUnresolvedName}, codes(errs))
	assert.Equal(t, "lets.f.exprs[1]", errs[0].Field)
	assert.Equal(t, "exprs[0].args[0]", errs[1].Field)
}

func TestValidateArity(t *testing.T) {
	prog := ast.NewProgram(
		map[string]ast.LetBody{
			"two":    ast.NewLet([]string{"a", "b"}),
			"shadow": ast.NewLet([]string{"two"}, ast.NewTerm("two", "id")),
		},
		ast.NewTerm("two", "id"),
		ast.NewTerm("shadow", "count"),
	)

	errs := Validate(prog, builtinNames)
	require.Len(t, errs, 1, "a param shadowing a let has no static arity")
	assert.Equal(t, ErrArityMismatch, errs[0].Code)
	assert.Equal(t, "exprs[0]", errs[0].Field)
	assert.Contains(t, errs[0].Message, "takes 2 argument(s), got 1")
}

func TestValidateEmptyProgram(t *testing.T) {
	errs := Validate(ast.NewProgram(nil), nil)
	assert.Equal(t, []string{ErrEmptyProgram}, codes(errs))

	errs = Validate(nil, nil)
	assert.Equal(t, []string{ErrEmptyProgram}, codes(errs))
}

func TestValidateNilAndEmpty(t *testing.T) {
	prog := ast.NewProgram(nil,
		ast.NewBag([]ast.Expr{nil}...),
		ast.NewProjection(""),
		ast.NewTerm(""),
		ast.NewRecord(map[string]ast.Expr{"": ast.NewTerm("id")}),
	)

	errs := Validate(prog, builtinNames)
	assert.Equal(t, []string{ErrNilExpression, ErrEmptyIdentifier, ErrEmptyIdentifier, ErrEmptyIdentifier}, codes(errs))
	assert.Equal(t, "exprs[0].bag[0]", errs[0].Field)
}

func TestValidateCollectsAll(t *testing.T) {
	prog := ast.NewProgram(
		map[string]ast.LetBody{
			"a": ast.NewLet([]string{"x", "x"}, ast.NewTerm("missing")),
			"b": ast.NewLet(nil, ast.NewTerm("a")),
		},
	)

	errs := Validate(prog, nil)
	assert.Equal(t, []string{ErrDuplicateParam, ErrUnresolvedName, ErrArityMismatch, ErrEmptyProgram}, codes(errs))
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Field: "exprs[0]", Message: "boom", Code: ErrArityMismatch}
	assert.Equal(t, "[E103] exprs[0]: boom", e.Error())
}
