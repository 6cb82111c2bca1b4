package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprSealed(t *testing.T) {
	var _ Expr = Term{}
	var _ Expr = Projection{}
	var _ Expr = BagVal{}
	var _ Expr = RecordVal{}
}

func TestTermDestructure(t *testing.T) {
	term := NewTerm("addX", "y", "z")

	name, params := term.Destructure()
	assert.Equal(t, "addX", name)
	assert.Equal(t, []string{"y", "z"}, params)
	assert.False(t, term.IsBare())
	assert.True(t, NewTerm("count").IsBare())
}

func TestProjectionDestructure(t *testing.T) {
	assert.Equal(t, "age", NewProjection("age").Destructure())
}

func TestLetBodyDestructure(t *testing.T) {
	let := NewLet([]string{"x"}, NewProjection("x"))

	params, exprs := let.Destructure()
	assert.Equal(t, []string{"x"}, params)
	require.Len(t, exprs, 1)
	assert.Equal(t, NewProjection("x"), exprs[0])
	assert.Equal(t, 1, let.Arity())
}

func TestProgramDestructure(t *testing.T) {
	prog := NewProgram(nil, NewTerm("id"))

	lets, exprs := prog.Destructure()
	assert.NotNil(t, lets)
	assert.Empty(t, lets)
	assert.Len(t, exprs, 1)
	assert.True(t, prog.Runnable())
	assert.False(t, NewProgram(nil).Runnable())
}

func TestConstructorsCopyInputs(t *testing.T) {
	params := []string{"a", "b"}
	term := NewTerm("f", params...)
	params[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, term.Params)

	stages := []Expr{NewTerm("count")}
	bag := NewBag(stages...)
	stages[0] = NewTerm("sum")
	assert.Equal(t, NewTerm("count"), bag.Exprs[0])

	dicty := map[string]Expr{"n": NewTerm("count")}
	rec := NewRecord(dicty)
	dicty["extra"] = NewTerm("sum")
	assert.Len(t, rec.Dicty, 1)

	lets := map[string]LetBody{"f": NewLet(nil, NewTerm("id"))}
	prog := NewProgram(lets, NewTerm("f"))
	delete(lets, "f")
	assert.Contains(t, prog.Lets, "f")
}

func TestDestructureReturnsCopies(t *testing.T) {
	term := NewTerm("f", "a")
	_, params := term.Destructure()
	params[0] = "mutated"
	assert.Equal(t, []string{"a"}, term.Params)

	bag := NewBag(NewTerm("count"))
	bag.Destructure()[0] = NewTerm("sum")
	assert.Equal(t, NewTerm("count"), bag.Exprs[0])

	rec := NewRecord(map[string]Expr{"n": NewTerm("count")})
	rec.Destructure()["extra"] = NewTerm("sum")
	assert.Equal(t, []string{"n"}, rec.Keys())

	let := NewLet([]string{"x"}, NewProjection("x"))
	lp, le := let.Destructure()
	lp[0], le[0] = "y", NewProjection("y")
	assert.Equal(t, "(x) => <projection x>", let.String())

	prog := NewProgram(map[string]LetBody{"f": let}, NewTerm("f"))
	lets, exprs := prog.Destructure()
	lets["f"].Params[0] = "z"
	delete(lets, "f")
	exprs[0] = NewTerm("g")
	assert.True(t, prog.Equal(NewProgram(map[string]LetBody{"f": NewLet([]string{"x"}, NewProjection("x"))}, NewTerm("f"))))
}

func TestConstructionDoesNotIntern(t *testing.T) {
	a := NewBag(NewTerm("count"))
	b := NewBag(NewTerm("count"))

	assert.True(t, Equal(a, b))
	// Distinct backing arrays: mutating one literal never leaks into the other.
	a.Exprs[0] = NewTerm("sum")
	assert.Equal(t, NewTerm("count"), b.Exprs[0])
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Expr
		want bool
	}{
		{"same term", NewTerm("f", "x"), NewTerm("f", "x"), true},
		{"different args", NewTerm("f", "x"), NewTerm("f", "y"), false},
		{"arg order matters", NewTerm("f", "x", "y"), NewTerm("f", "y", "x"), false},
		{"nil vs empty params", Term{Name: "f"}, Term{Name: "f", Params: []string{}}, true},
		{"term vs projection", NewTerm("x"), NewProjection("x"), false},
		{"same projection", NewProjection("k"), NewProjection("k"), true},
		{"empty bags", BagVal{}, NewBag(), true},
		{"bag stage order", NewBag(NewTerm("a"), NewTerm("b")), NewBag(NewTerm("b"), NewTerm("a")), false},
		{"nested bag", NewBag(NewBag(NewProjection("k"))), NewBag(NewBag(NewProjection("k"))), true},
		{
			"record key set",
			NewRecord(map[string]Expr{"a": NewTerm("count")}),
			NewRecord(map[string]Expr{"b": NewTerm("count")}),
			false,
		},
		{
			"record values",
			NewRecord(map[string]Expr{"a": NewTerm("count"), "b": NewProjection("x")}),
			NewRecord(map[string]Expr{"b": NewProjection("x"), "a": NewTerm("count")}),
			true,
		},
		{"both nil", nil, nil, true},
		{"nil vs term", nil, NewTerm("f"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
			assert.Equal(t, tt.want, Equal(tt.b, tt.a))
		})
	}
}

func TestProgramEqual(t *testing.T) {
	build := func() *Program {
		return NewProgram(map[string]LetBody{
			"addX": NewLet([]string{"x"}, NewProjection("x")),
		}, NewTerm("addX", "y"))
	}

	assert.True(t, build().Equal(build()))

	other := build()
	other.Lets["addX"] = NewLet([]string{"z"}, NewProjection("x"))
	assert.False(t, build().Equal(other))

	var nilProg *Program
	assert.True(t, nilProg.Equal(nil))
	assert.False(t, build().Equal(nil))
}

func TestWalkPreOrder(t *testing.T) {
	expr := NewBag(
		NewTerm("filter", "isAdult"),
		NewRecord(map[string]Expr{
			"z": NewProjection("z"),
			"a": NewBag(NewTerm("count")),
		}),
	)

	var seen []string
	Walk(expr, func(e Expr) bool {
		seen = append(seen, e.String())
		return true
	})

	assert.Equal(t, []string{
		expr.String(),
		"<term filter(isAdult)>",
		"<record {a: <bag <term count>>, z: <projection z>}>",
		"<bag <term count>>",
		"<term count>",
		"<projection z>",
	}, seen)
}

func TestWalkSkipChildren(t *testing.T) {
	expr := NewBag(NewBag(NewTerm("inner")))

	count := 0
	Walk(expr, func(e Expr) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}

func TestNamesAndFreeNames(t *testing.T) {
	let := NewLet([]string{"k"},
		NewTerm("tally", "k"),
		NewBag(NewTerm("map", "label")),
		NewTerm("tally", "k"),
	)

	assert.Equal(t, []string{"tally", "k", "map", "label"}, Names(let.Exprs))
	assert.Equal(t, []string{"tally", "map", "label"}, FreeNames(let))
}
