package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/tally/internal/compiler"
	"github.com/roach88/tally/internal/source"
	"github.com/roach88/tally/internal/value"
)

// CLI error codes. Evaluation errors use the evaluator's own codes.
const (
	ErrCodeGeneric  = "E001" // Generic/unknown error
	ErrCodeCompile  = "E002" // CUE parse or program shape error
	ErrCodeInput    = "E003" // Input, bindings or --set decoding failed
	ErrCodeDatabase = "E004" // SQLite open or query failed
	ErrCodeNotFound = "E005" // Path not found
	ErrCodeInvalid  = "E006" // Static validation failed
	ErrCodeWrite    = "E007" // File write error
	ErrCodeFlags    = "E008" // Inconsistent flags
)

// LoadError is a coded error from loading a program or its inputs.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
	Err     error
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// loadProgram compiles a .cue file or directory.
func loadProgram(path string) (*compiler.Unit, error) {
	unit, err := compiler.Load(path)
	if err == nil {
		return unit, nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("program not found: %s", path), Err: err}
	}
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return nil, &LoadError{Code: ErrCodeCompile, Message: fmt.Sprintf("%s: %s", ce.Field, ce.Message), Pos: ce.Pos, Err: err}
	}
	return nil, &LoadError{Code: ErrCodeCompile, Message: err.Error(), Err: err}
}

// buildGlobals layers the program's data block, then the bindings file,
// then --set pairs. Later layers win.
func buildGlobals(unit *compiler.Unit, bindingsPath string, sets []string) (map[string]value.Value, error) {
	globals := make(map[string]value.Value, len(unit.Data))
	maps.Copy(globals, unit.Data)

	if bindingsPath != "" {
		b, err := source.LoadBindings(bindingsPath)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeInput, Message: fmt.Sprintf("bindings %s: %v", bindingsPath, err), Err: err}
		}
		maps.Copy(globals, b)
	}

	for _, kv := range sets {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, &LoadError{Code: ErrCodeInput, Message: fmt.Sprintf("--set %q: want name=value", kv)}
		}
		globals[name] = source.ParseScalar(raw)
	}
	return globals, nil
}

// loadInputs returns one input per --input file, plus the --query result
// when a database is given. With neither, the single input is null.
func loadInputs(ctx context.Context, files []string, dbPath, query string) ([]value.Value, error) {
	if (dbPath == "") != (query == "") {
		return nil, &LoadError{Code: ErrCodeFlags, Message: "--db and --query must be used together"}
	}

	var inputs []value.Value
	for _, f := range files {
		v, err := source.LoadFile(f)
		if err != nil {
			code := ErrCodeInput
			if errors.Is(err, fs.ErrNotExist) {
				code = ErrCodeNotFound
			}
			return nil, &LoadError{Code: code, Message: fmt.Sprintf("input %s: %v", f, err), Err: err}
		}
		inputs = append(inputs, v)
	}

	if dbPath != "" {
		bag, err := queryInput(ctx, dbPath, query)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, bag)
	}

	if len(inputs) == 0 {
		inputs = []value.Value{value.Null{}}
	}
	return inputs, nil
}

func queryInput(ctx context.Context, dbPath, query string) (value.Bag, error) {
	db, err := source.Open(dbPath)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeDatabase, Message: fmt.Sprintf("opening %s: %v", dbPath, err), Err: err}
	}
	defer db.Close()

	bag, err := db.QueryBag(ctx, query)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeDatabase, Message: err.Error(), Err: err}
	}
	return bag, nil
}

// loadFailure reports a LoadError through the formatter and maps it to
// a command error.
func loadFailure(f *OutputFormatter, err error) error {
	var le *LoadError
	if !errors.As(err, &le) {
		le = &LoadError{Code: ErrCodeGeneric, Message: err.Error(), Err: err}
	}
	msg := le.Message
	if le.Pos.IsValid() {
		msg = fmt.Sprintf("%s:%d:%d: %s", le.Pos.Filename(), le.Pos.Line(), le.Pos.Column(), le.Message)
	}
	_ = f.Error(le.Code, msg, nil)
	return WrapExitError(ExitCommandError, le.Code, errors.New(msg))
}
