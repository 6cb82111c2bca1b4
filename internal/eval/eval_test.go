package eval

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/ast"
	"github.com/roach88/tally/internal/testutil"
	"github.com/roach88/tally/internal/value"
)

func rec(pairs ...value.Pair) value.Record { return value.NewRecord(pairs...) }

func newTestEvaluator(prog *ast.Program, opts ...Option) *Evaluator {
	opts = append([]Option{WithRunIDs(testutil.NewFixedRunIDs("test-run"))}, opts...)
	return New(prog, opts...)
}

func addXProgram() *ast.Program {
	return ast.NewProgram(
		map[string]ast.LetBody{
			"addX": ast.NewLet([]string{"x"}, ast.NewProjection("x")),
		},
		ast.NewTerm("addX", "y"),
	)
}

func TestRun_AddXScenario(t *testing.T) {
	y := rec(value.F("x", value.Int(5)), value.F("z", value.Int(9)))
	globals := map[string]value.Value{"y": y}

	tests := []struct {
		name  string
		input value.Value
	}{
		{"no input", nil},
		{"unrelated record", rec(value.F("x", value.Int(100)))},
		{"unrelated bag", value.NewBag(value.Int(1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := newTestEvaluator(addXProgram()).Run(context.Background(), tt.input, globals)
			require.NoError(t, err)
			assert.Equal(t, value.Int(5), out)
		})
	}
}

func TestLetInput_FirstValueArgument(t *testing.T) {
	// Only the first argument becomes the body's input; the second is still
	// reachable by name.
	prog := ast.NewProgram(
		map[string]ast.LetBody{
			"pick": ast.NewLet([]string{"r", "k"}, ast.NewRecord(map[string]ast.Expr{
				"from": ast.NewProjection("x"),
				"with": ast.NewTerm("k"),
			})),
		},
		ast.NewTerm("pick", "a", "b"),
	)
	globals := map[string]value.Value{
		"a": rec(value.F("x", value.Int(1))),
		"b": value.String("second"),
	}
	out, err := newTestEvaluator(prog).Run(context.Background(), value.Null{}, globals)
	require.NoError(t, err)
	assert.Equal(t, rec(value.F("from", value.Int(1)), value.F("with", value.String("second"))), out)
}

func TestLetInput_FunctionArgumentKeepsInput(t *testing.T) {
	prog := ast.NewProgram(
		map[string]ast.LetBody{"apply": ast.NewLet([]string{"f"}, ast.NewTerm("f"))},
		ast.NewTerm("apply", "count"),
	)
	out, err := newTestEvaluator(prog).Run(context.Background(), value.NewBag(value.Int(1), value.Int(2)), nil)
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), out)
}

func TestApply_MissingField(t *testing.T) {
	ev := newTestEvaluator(ast.NewProgram(nil))

	_, err := ev.Apply(context.Background(), ast.NewProjection("missing"), rec(value.F("a", value.Int(1))), nil)
	require.Error(t, err)
	assert.True(t, IsMissingField(err))

	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "missing", ee.Key)
	assert.Equal(t, "<projection missing>", ee.Expr)
}

func TestApply_ProjectionOnNonRecord(t *testing.T) {
	ev := newTestEvaluator(ast.NewProgram(nil))

	_, err := ev.Apply(context.Background(), ast.NewProjection("a"), value.Int(3), nil)
	require.Error(t, err)
	assert.True(t, IsMissingField(err))
	assert.Contains(t, err.Error(), "not a record")
}

func TestBagIdentityLaw(t *testing.T) {
	inputs := []value.Bag{
		{},
		value.NewBag(value.Int(1)),
		value.NewBag(value.Int(1), value.Int(1), value.String("a")),
		value.NewBag(rec(value.F("k", value.Bool(true))), value.NewBag()),
	}
	ev := newTestEvaluator(ast.NewProgram(nil))

	for _, in := range inputs {
		out, err := ev.Apply(context.Background(), ast.NewBag(), in, nil)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestBag_ThreadsStagesLeftToRight(t *testing.T) {
	ev := newTestEvaluator(ast.NewProgram(nil))
	in := value.NewBag(value.Int(3), value.Int(1), value.Int(3))

	out, err := ev.Apply(context.Background(), ast.NewBag(ast.NewTerm("distinct"), ast.NewTerm("count")), in, nil)
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), out)
}

func TestBag_RequiresBagInput(t *testing.T) {
	ev := newTestEvaluator(ast.NewProgram(nil))

	_, err := ev.Apply(context.Background(), ast.NewBag(), value.Int(1), nil)
	assert.True(t, IsTypeMismatch(err))
}

func TestRecordIndependenceLaw(t *testing.T) {
	rv := ast.NewRecord(map[string]ast.Expr{
		"n":     ast.NewTerm("count"),
		"total": ast.NewTerm("sum"),
		"same":  ast.NewTerm("id"),
		"top":   ast.NewTerm("max"),
	})
	in := value.NewBag(value.Int(4), value.Int(2), value.Int(9))
	ev := newTestEvaluator(ast.NewProgram(nil))

	orders := [][]string{
		{"n", "same", "top", "total"},
		{"total", "top", "same", "n"},
		{"same", "n", "total", "top"},
	}
	var results []value.Value
	for _, keys := range orders {
		r := &run{ev: ev, ctx: context.Background(), id: "perm", q: newQuota(0, 0)}
		sc := programScope(ev.root, ev.prog, nil)
		out, err := r.evalRecord(rv, keys, in, sc)
		require.NoError(t, err)
		results = append(results, out)
	}
	for _, out := range results[1:] {
		assert.True(t, value.Equal(results[0], out))
	}

	want := rec(
		value.F("n", value.Int(3)),
		value.F("total", value.Int(15)),
		value.F("same", in),
		value.F("top", value.Int(9)),
	)
	assert.Equal(t, want, results[0])
}

func TestRecord_KeySetMatchesDicty(t *testing.T) {
	rv := ast.NewRecord(map[string]ast.Expr{"a": ast.NewProjection("x"), "b": ast.NewBag()})
	ev := newTestEvaluator(ast.NewProgram(nil))

	out, err := ev.Apply(context.Background(), rv, value.NewBag(), nil)
	// a projects from a bag, which is not a record
	require.Error(t, err)
	assert.True(t, IsMissingField(err))

	out, err = ev.Apply(context.Background(), ast.NewRecord(map[string]ast.Expr{"b": ast.NewBag()}), value.NewBag(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, out.(value.Record).SortedKeys())
}

func TestArityLaw(t *testing.T) {
	tests := []struct {
		name    string
		params  []string
		args    []string
		want    value.Value
		wantErr bool
	}{
		{"zero matches zero", nil, nil, value.String("in"), false},
		{"one matches one", []string{"p"}, []string{"g1"}, value.Int(1), false},
		{"two matches two", []string{"p", "q"}, []string{"g1", "g2"}, value.Int(1), false},
		{"too few", []string{"p", "q"}, []string{"g1"}, nil, true},
		{"too many", []string{"p"}, []string{"g1", "g2"}, nil, true},
		{"args to zero-param let", nil, []string{"g1"}, nil, true},
	}

	globals := map[string]value.Value{"g1": value.Int(1), "g2": value.Int(2)}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tr Recorder
			prog := ast.NewProgram(
				map[string]ast.LetBody{"f": ast.NewLet(tt.params, ast.NewTerm("id"))},
				ast.NewTerm("f", tt.args...),
			)
			out, err := newTestEvaluator(prog, WithTracer(&tr)).Run(context.Background(), value.String("in"), globals)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.want, out)
				return
			}

			require.Error(t, err)
			assert.True(t, IsArityMismatch(err))
			// Nothing inside the body ran, so no partial binding was observed.
			for _, ev := range tr.Events() {
				assert.NotEqual(t, "<term id>", ev.Expr)
			}
		})
	}
}

func TestParamsAreBoundByName(t *testing.T) {
	// twice(f) applies f twice; f resolves in the caller scope to a let.
	prog := ast.NewProgram(
		map[string]ast.LetBody{
			"inc":   ast.NewLet(nil, ast.NewTerm("add", "one")),
			"twice": ast.NewLet([]string{"f"}, ast.NewTerm("f"), ast.NewTerm("f")),
		},
		ast.NewTerm("twice", "inc"),
	)
	out, err := newTestEvaluator(prog).Run(context.Background(), value.Int(5), map[string]value.Value{"one": value.Int(1)})
	require.NoError(t, err)
	assert.Equal(t, value.Int(7), out)
}

func TestLexicalScope_CallerParamsInvisible(t *testing.T) {
	prog := ast.NewProgram(
		map[string]ast.LetBody{
			"inner": ast.NewLet(nil, ast.NewTerm("p")),
			"outer": ast.NewLet([]string{"p"}, ast.NewTerm("inner")),
		},
		ast.NewTerm("outer", "g"),
	)
	_, err := newTestEvaluator(prog).Run(context.Background(), value.Null{}, map[string]value.Value{"g": value.Int(1)})
	require.Error(t, err)
	assert.True(t, IsUnresolvedName(err))
}

func TestScopeOrder(t *testing.T) {
	prog := ast.NewProgram(
		map[string]ast.LetBody{
			"count": ast.NewLet(nil, ast.NewTerm("shadow")),
			"show":  ast.NewLet([]string{"shadow"}, ast.NewTerm("shadow")),
		},
		ast.NewTerm("count"),
	)
	globals := map[string]value.Value{
		"shadow": value.String("global"),
		"other":  value.String("param"),
	}
	ev := newTestEvaluator(prog)

	// let shadows builtin; global visible inside let
	out, err := ev.Run(context.Background(), value.NewBag(), globals)
	require.NoError(t, err)
	assert.Equal(t, value.String("global"), out)

	// param shadows global
	out, err = ev.Apply(context.Background(), ast.NewTerm("show", "other"), value.Null{}, globals)
	require.NoError(t, err)
	assert.Equal(t, value.String("param"), out)
}

func TestValueBindingWithArgs(t *testing.T) {
	ev := newTestEvaluator(ast.NewProgram(nil))

	_, err := ev.Apply(context.Background(), ast.NewTerm("g", "g"), value.Null{}, map[string]value.Value{"g": value.Int(1)})
	assert.True(t, IsArityMismatch(err))
}

func TestUnresolvedName_Suggestion(t *testing.T) {
	ev := newTestEvaluator(ast.NewProgram(nil))

	_, err := ev.Apply(context.Background(), ast.NewTerm("cuont"), value.NewBag(), nil)
	require.Error(t, err)
	assert.True(t, IsUnresolvedName(err))

	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "cuont", ee.Name)
	assert.Equal(t, "count", ee.Details["suggestion"])
	assert.Contains(t, err.Error(), `did you mean "count"?`)
}

func TestUnresolvedArgument(t *testing.T) {
	ev := newTestEvaluator(ast.NewProgram(nil))

	_, err := ev.Apply(context.Background(), ast.NewTerm("map", "nope"), value.NewBag(), nil)
	require.Error(t, err)
	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrCodeUnresolvedName, ee.Code)
	assert.Equal(t, "nope", ee.Name)
}

func TestRun_EmptyProgramIsMalformed(t *testing.T) {
	_, err := newTestEvaluator(ast.NewProgram(nil)).Run(context.Background(), value.Null{}, nil)
	assert.True(t, IsMalformedPipeline(err))
}

type foreignExpr struct{ ast.Expr }

func (foreignExpr) String() string { return "<foreign>" }

func TestMalformedPipeline_UnknownNode(t *testing.T) {
	ev := newTestEvaluator(ast.NewProgram(nil))

	_, err := ev.Apply(context.Background(), ast.NewBag(foreignExpr{}), value.NewBag(), nil)
	require.Error(t, err)
	assert.True(t, IsMalformedPipeline(err))

	_, err = ev.Apply(context.Background(), ast.NewBag([]ast.Expr{nil}...), value.NewBag(), nil)
	assert.True(t, IsMalformedPipeline(err))
}

func TestQuota_Steps(t *testing.T) {
	prog := ast.NewProgram(nil, ast.NewTerm("id"), ast.NewTerm("id"), ast.NewTerm("id"))

	_, err := newTestEvaluator(prog, WithMaxSteps(2)).Run(context.Background(), value.Null{}, nil)
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))

	_, err = newTestEvaluator(prog, WithMaxSteps(3)).Run(context.Background(), value.Null{}, nil)
	assert.NoError(t, err)
}

func TestQuota_DepthStopsRecursion(t *testing.T) {
	prog := ast.NewProgram(
		map[string]ast.LetBody{"loop": ast.NewLet(nil, ast.NewTerm("loop"))},
		ast.NewTerm("loop"),
	)
	_, err := newTestEvaluator(prog, WithMaxDepth(16)).Run(context.Background(), value.Null{}, nil)
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))

	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "depth", ee.Details["limit"])
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEvaluator(addXProgram()).Run(ctx, value.Null{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTracer_RecordsStages(t *testing.T) {
	var tr Recorder
	prog := ast.NewProgram(nil, ast.NewTerm("distinct"), ast.NewTerm("count"))

	out, err := newTestEvaluator(prog, WithTracer(&tr)).Run(context.Background(), value.NewBag(value.Int(1), value.Int(1)), nil)
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), out)

	events := tr.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "test-run", events[0].RunID)
	assert.Equal(t, 1, events[0].Step)
	assert.Equal(t, "<term distinct>", events[0].Expr)
	assert.Equal(t, value.NewBag(value.Int(1)), events[0].Output)
	assert.Equal(t, 2, events[1].Step)

	tr.Reset()
	assert.Empty(t, tr.Events())
}

func TestTracer_DepthInsideLet(t *testing.T) {
	var tr Recorder
	y := rec(value.F("x", value.Int(5)))

	_, err := newTestEvaluator(addXProgram(), WithTracer(&tr)).Run(context.Background(), nil, map[string]value.Value{"y": y})
	require.NoError(t, err)

	events := tr.Events()
	require.Len(t, events, 2)
	// Nested stages complete first.
	assert.Equal(t, "<projection x>", events[0].Expr)
	assert.Equal(t, 1, events[0].Depth)
	assert.Equal(t, "<term addX(y)>", events[1].Expr)
	assert.Equal(t, 0, events[1].Depth)
}

func TestRun_IndependentAcrossRuns(t *testing.T) {
	ids := testutil.NewSequentialRunIDs("r")
	ev := New(addXProgram(), WithRunIDs(ids))

	for i := 1; i <= 3; i++ {
		y := rec(value.F("x", value.Int(int64(i))))
		out, err := ev.Run(context.Background(), nil, map[string]value.Value{"y": y})
		require.NoError(t, err)
		assert.Equal(t, value.Int(int64(i)), out)
	}
	assert.Equal(t, int64(3), ids.Issued())
}

func TestWithBuiltin_IsPerEvaluator(t *testing.T) {
	double := &Builtin{Name: "double", Arity: 0, Fn: func(c *Call, in value.Value) (value.Value, error) {
		n, ok := in.(value.Int)
		if !ok {
			return nil, c.Mismatch("int", in)
		}
		return n * 2, nil
	}}
	ev := newTestEvaluator(ast.NewProgram(nil, ast.NewTerm("double")), WithBuiltin(double))

	out, err := ev.Run(context.Background(), value.Int(4), nil)
	require.NoError(t, err)
	assert.Equal(t, value.Int(8), out)

	_, ok := LookupBuiltin("double")
	assert.False(t, ok)
}

func TestScopeVisible(t *testing.T) {
	ev := newTestEvaluator(addXProgram())
	sc := programScope(ev.root, ev.prog, map[string]value.Value{"y": value.Null{}})

	names := sc.visible()
	assert.True(t, slices.IsSorted(names))
	assert.Contains(t, names, "addX")
	assert.Contains(t, names, "y")
	assert.Contains(t, names, "count")
}
