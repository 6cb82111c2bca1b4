package compiler

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tally/internal/ast"
	"github.com/roach88/tally/internal/value"
)

// Unit is a compiled program document: the program itself plus the
// globals declared in its data section.
type Unit struct {
	Program *ast.Program
	Data    map[string]value.Value
}

// topLevelFields are the only fields a program document may declare.
var topLevelFields = map[string]bool{"lets": true, "exprs": true, "data": true}

// CompileProgram converts a CUE value into a Unit.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the document root, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`lets: {...}, exprs: [...]`)
//	unit, err := CompileProgram(v)
func CompileProgram(v cue.Value) (*Unit, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{
			Field:   "program",
			Message: "program must be a struct with lets, exprs and data fields",
			Pos:     v.Pos(),
		}
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		if !topLevelFields[iter.Label()] {
			return nil, &CompileError{
				Field:   iter.Label(),
				Message: "unknown top-level field (want lets, exprs or data)",
				Pos:     iter.Value().Pos(),
			}
		}
	}

	lets, err := parseLets(v.LookupPath(cue.ParsePath("lets")))
	if err != nil {
		return nil, err
	}

	var exprs []ast.Expr
	if ev := v.LookupPath(cue.ParsePath("exprs")); ev.Exists() {
		exprs, err = parseExprList(ev, "exprs")
		if err != nil {
			return nil, err
		}
	}

	data, err := parseData(v.LookupPath(cue.ParsePath("data")))
	if err != nil {
		return nil, err
	}

	return &Unit{
		Program: ast.NewProgram(lets, exprs...),
		Data:    data,
	}, nil
}

// parseLets extracts let bindings; the lets field is optional.
func parseLets(v cue.Value) (map[string]ast.LetBody, error) {
	lets := make(map[string]ast.LetBody)
	if !v.Exists() {
		return lets, nil
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := fieldName(iter)
		body, err := parseLet(name, iter.Value())
		if err != nil {
			return nil, err
		}
		lets[name] = body
	}
	return lets, nil
}

// parseLet parses {params: [...], exprs: [...]}. Both fields are optional.
func parseLet(name string, v cue.Value) (ast.LetBody, error) {
	field := "lets." + name
	if v.IncompleteKind() != cue.StructKind {
		return ast.LetBody{}, &CompileError{
			Field:   field,
			Message: "let must be a struct with params and exprs",
			Pos:     v.Pos(),
		}
	}

	var params []string
	if pv := v.LookupPath(cue.ParsePath("params")); pv.Exists() {
		var err error
		params, err = parseNameList(pv, field+".params")
		if err != nil {
			return ast.LetBody{}, err
		}
		seen := make(map[string]bool, len(params))
		for _, p := range params {
			if seen[p] {
				return ast.LetBody{}, &CompileError{
					Field:   field + ".params",
					Message: fmt.Sprintf("duplicate param %q", p),
					Pos:     pv.Pos(),
				}
			}
			seen[p] = true
		}
	}

	var exprs []ast.Expr
	if ev := v.LookupPath(cue.ParsePath("exprs")); ev.Exists() {
		var err error
		exprs, err = parseExprList(ev, field+".exprs")
		if err != nil {
			return ast.LetBody{}, err
		}
	}

	return ast.NewLet(params, exprs...), nil
}

// parseNameList parses a list of identifier strings.
func parseNameList(v cue.Value, field string) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of names", Pos: v.Pos()}
	}
	var names []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "names must be strings", Pos: iter.Value().Pos()}
		}
		if s == "" {
			return nil, &CompileError{Field: field, Message: "names must be non-empty", Pos: iter.Value().Pos()}
		}
		names = append(names, s)
	}
	return names, nil
}

func parseExprList(v cue.Value, field string) ([]ast.Expr, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of expressions", Pos: v.Pos()}
	}
	var exprs []ast.Expr
	for i := 0; iter.Next(); i++ {
		e, err := parseExpr(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}

// exprForms are the single-key struct encodings of an expression.
var exprForms = []string{"term", "project", "bag", "record"}

// parseExpr decodes one expression. Supports:
// - "name": a bare term
// - ".key": a projection
// - {term: "name", args: ["a", "b"]}
// - {project: "key"}
// - {bag: [exprs]}
// - {record: {key: expr}}
func parseExpr(v cue.Value, field string) (ast.Expr, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return parseShorthand(s, field, v.Pos())
	case cue.StructKind:
		return parseExprStruct(v, field)
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("expression must be a string or struct, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func parseShorthand(s, field string, pos token.Pos) (ast.Expr, error) {
	if key, ok := strings.CutPrefix(s, "."); ok {
		if key == "" {
			return nil, &CompileError{Field: field, Message: "projection key must be non-empty", Pos: pos}
		}
		return ast.NewProjection(key), nil
	}
	if s == "" {
		return nil, &CompileError{Field: field, Message: "term name must be non-empty", Pos: pos}
	}
	return ast.NewTerm(s), nil
}

func parseExprStruct(v cue.Value, field string) (ast.Expr, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	labels := make(map[string]bool)
	for iter.Next() {
		labels[iter.Label()] = true
	}

	var form string
	for _, f := range exprForms {
		if !labels[f] {
			continue
		}
		if form != "" {
			return nil, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("expression has both %q and %q", form, f),
				Pos:     v.Pos(),
			}
		}
		form = f
	}
	if form == "" {
		return nil, &CompileError{
			Field:   field,
			Message: "expression must have one of term, project, bag or record",
			Pos:     v.Pos(),
		}
	}
	for _, l := range slices.Sorted(maps.Keys(labels)) {
		if l != form && !(form == "term" && l == "args") {
			return nil, &CompileError{
				Field:   field + "." + l,
				Message: fmt.Sprintf("unexpected field in %s expression", form),
				Pos:     v.Pos(),
			}
		}
	}

	body := v.LookupPath(cue.ParsePath(form))
	switch form {
	case "term":
		name, err := body.String()
		if err != nil || name == "" {
			return nil, &CompileError{Field: field + ".term", Message: "term must be a non-empty string", Pos: body.Pos()}
		}
		var args []string
		if av := v.LookupPath(cue.ParsePath("args")); av.Exists() {
			args, err = parseNameList(av, field+".args")
			if err != nil {
				return nil, err
			}
		}
		return ast.NewTerm(name, args...), nil

	case "project":
		key, err := body.String()
		if err != nil || key == "" {
			return nil, &CompileError{Field: field + ".project", Message: "projection key must be a non-empty string", Pos: body.Pos()}
		}
		return ast.NewProjection(key), nil

	case "bag":
		exprs, err := parseExprList(body, field+".bag")
		if err != nil {
			return nil, err
		}
		return ast.NewBag(exprs...), nil

	default: // record
		if body.IncompleteKind() != cue.StructKind {
			return nil, &CompileError{Field: field + ".record", Message: "record must be a struct of expressions", Pos: body.Pos()}
		}
		fields, err := body.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		dicty := make(map[string]ast.Expr)
		for fields.Next() {
			k := fieldName(fields)
			e, err := parseExpr(fields.Value(), field+".record."+k)
			if err != nil {
				return nil, err
			}
			dicty[k] = e
		}
		return ast.NewRecord(dicty), nil
	}
}

// parseData converts the optional data section into globals.
func parseData(v cue.Value) (map[string]value.Value, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{Field: "data", Message: "data must be a struct of named values", Pos: v.Pos()}
	}
	data := make(map[string]value.Value)
	for iter.Next() {
		name := fieldName(iter)
		val, err := toValue(iter.Value(), "data."+name)
		if err != nil {
			return nil, err
		}
		data[name] = val
	}
	return data, nil
}

// toValue converts a concrete CUE value to a pipeline value.
// Floats are forbidden: pipeline values carry ints only.
func toValue(v cue.Value, field string) (value.Value, error) {
	switch v.Kind() {
	case cue.NullKind:
		return value.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.Bool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "integer out of int64 range", Pos: v.Pos()}
		}
		return value.Int(n), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.String(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		bag := value.Bag{}
		for i := 0; iter.Next(); i++ {
			e, err := toValue(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			bag = append(bag, e)
		}
		return bag, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		rec := value.Record{}
		for iter.Next() {
			k := fieldName(iter)
			e, err := toValue(iter.Value(), field+"."+k)
			if err != nil {
				return nil, err
			}
			rec[k] = e
		}
		return rec, nil
	case cue.FloatKind:
		return nil, &CompileError{
			Field:   field,
			Message: "float values are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("value must be concrete null, bool, int, string, list or struct (got %v)", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// fieldName returns the unquoted label of the current field, so
// "first name": ... yields first name.
func fieldName(iter *cue.Iterator) string {
	if sel := iter.Selector(); sel.LabelType() == cue.StringLabel {
		return sel.Unquoted()
	}
	return iter.Label()
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
