package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/ast"
	"github.com/roach88/tally/internal/value"
)

func TestCompileProgramAddX(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		lets: addX: {params: ["x"], exprs: [{project: "x"}]}
		exprs: [{term: "addX", args: ["y"]}]
		data: y: {x: 5, z: 9}
	`)
	require.NoError(t, v.Err())

	unit, err := CompileProgram(v)
	require.NoError(t, err)

	want := ast.NewProgram(
		map[string]ast.LetBody{"addX": ast.NewLet([]string{"x"}, ast.NewProjection("x"))},
		ast.NewTerm("addX", "y"),
	)
	assert.True(t, want.Equal(unit.Program), "got %s", unit.Program)

	y := value.NewRecord(value.F("x", value.Int(5)), value.F("z", value.Int(9)))
	require.Contains(t, unit.Data, "y")
	assert.True(t, value.Equal(y, unit.Data["y"]))
}

func TestCompileProgramShorthand(t *testing.T) {
	unit, err := CompileString(`exprs: ["count", ".age", {bag: []}, {record: {}}]`, "")
	require.NoError(t, err)

	want := []ast.Expr{
		ast.NewTerm("count"),
		ast.NewProjection("age"),
		ast.NewBag(),
		ast.NewRecord(nil),
	}
	require.Len(t, unit.Program.Exprs, len(want))
	for i := range want {
		assert.True(t, ast.Equal(want[i], unit.Program.Exprs[i]), "expr %d: got %s", i, unit.Program.Exprs[i])
	}
	assert.Empty(t, unit.Program.Lets)
	assert.Nil(t, unit.Data)
}

func TestCompileProgramNested(t *testing.T) {
	unit, err := CompileString(`
		exprs: [{record: {
			"first name": ".name"
			stats: {bag: ["distinct", {term: "tally", args: ["k"]}]}
		}}]
	`, "nested.cue")
	require.NoError(t, err)

	want := ast.NewRecord(map[string]ast.Expr{
		"first name": ast.NewProjection("name"),
		"stats":      ast.NewBag(ast.NewTerm("distinct"), ast.NewTerm("tally", "k")),
	})
	assert.True(t, ast.Equal(want, unit.Program.Exprs[0]), "got %s", unit.Program.Exprs[0])
}

func TestCompileProgramData(t *testing.T) {
	unit, err := CompileString(`
		exprs: ["rows"]
		data: {
			rows: [{id: 1, ok: true}, {id: 2, ok: false, note: null}]
			label: "people"
		}
	`, "")
	require.NoError(t, err)

	rows := value.NewBag(
		value.NewRecord(value.F("id", value.Int(1)), value.F("ok", value.Bool(true))),
		value.NewRecord(value.F("id", value.Int(2)), value.F("ok", value.Bool(false)), value.F("note", value.Null{})),
	)
	assert.True(t, value.Equal(rows, unit.Data["rows"]))
	assert.Equal(t, value.String("people"), unit.Data["label"])
}

func TestCompileProgramErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
		msg   string
	}{
		{"float data", `exprs: ["x"], data: x: 1.5`, "data.x", "float"},
		{"abstract data", `exprs: ["x"], data: x: int`, "data.x", "concrete"},
		{"duplicate params", `lets: f: {params: ["a", "a"]}, exprs: ["f"]`, "lets.f.params", "duplicate param"},
		{"unknown top-level", `exprs: ["x"], extra: 1`, "extra", "unknown top-level"},
		{"number expr", `exprs: [1]`, "exprs[0]", "string or struct"},
		{"empty struct expr", `exprs: [{}]`, "exprs[0]", "one of term"},
		{"two forms", `exprs: [{term: "a", project: "b"}]`, "exprs[0]", "both"},
		{"stray field", `exprs: [{project: "a", args: ["b"]}]`, "exprs[0].args", "unexpected field"},
		{"empty term", `exprs: [""]`, "exprs[0]", "non-empty"},
		{"empty projection", `exprs: ["."]`, "exprs[0]", "non-empty"},
		{"non-string arg", `exprs: [{term: "map", args: [1]}]`, "exprs[0].args", "strings"},
		{"let not struct", `lets: f: "count", exprs: ["f"]`, "lets.f", "struct"},
		{"exprs not list", `exprs: "count"`, "exprs", "list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileString(tt.src, "")
			require.Error(t, err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce), "want *CompileError, got %T: %v", err, err)
			assert.Equal(t, tt.field, ce.Field)
			assert.Contains(t, ce.Message, tt.msg)
		})
	}
}

func TestCompileErrorPosition(t *testing.T) {
	_, err := CompileString("exprs: [\n\t{bogus: 1},\n]\n", "prog.cue")
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	require.True(t, ce.Pos.IsValid())
	assert.Equal(t, 2, ce.Pos.Line())
	assert.Contains(t, err.Error(), "prog.cue:2:")
}

func TestCompileSyntaxError(t *testing.T) {
	_, err := CompileString("exprs: [", "broken.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.cue")
}

func TestLoadDirGolden(t *testing.T) {
	unit, err := Load(filepath.Join("testdata", "people"))
	require.NoError(t, err)
	assert.Equal(t, value.Int(17), unit.Data["minAge"])

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "people", []byte(unit.Program.String()))
}

func TestLoadFile(t *testing.T) {
	unit, err := Load(filepath.Join("testdata", "addx.cue"))
	require.NoError(t, err)
	assert.Equal(t, []string{"addX"}, unit.Program.LetNames())
	assert.Contains(t, unit.Data, "y")
}

func TestLoadRejectsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected a .cue file")

	_, err = Load(filepath.Join(dir, "missing.cue"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
