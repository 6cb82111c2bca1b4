package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ExitCode is the process status tally exits with.
type ExitCode int

const (
	ExitSuccess      ExitCode = 0 // program ran, check passed, every scenario passed
	ExitFailure      ExitCode = 1 // evaluation error, failed check or failed scenario
	ExitCommandError ExitCode = 2 // unusable invocation: missing path, CUE error, flag conflict
)

// ExitError carries the exit code a command failed with. The optional
// cause is kept for errors.Is and errors.As.
type ExitError struct {
	Code    ExitCode
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code ExitCode, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError around err.
func WrapExitError(code ExitCode, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps a command's error to the process exit code. Errors
// that carry no ExitError anywhere in their chain count as failures.
func GetExitCode(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Envelope statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// CLIResponse is the envelope every --format json command prints.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes why a command failed. Code is one of the E00x load
// codes, an evaluator code such as MISSING_FIELD, or E_TEST_FAILED.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results as text or as a JSON envelope.
// Results go to Writer; traces and verbose notes go to ErrWriter so that
// JSON on Writer stays parseable.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

func (f *OutputFormatter) isJSON() bool { return f.Format == "json" }

// Success prints data. Text mode relies on data's String method, which
// is how values and programs render themselves.
func (f *OutputFormatter) Success(data any) error {
	if f.isJSON() {
		return f.JSON(CLIResponse{Status: StatusOK, Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error prints a coded failure. Details show in text mode only with
// --verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.isJSON() {
		return f.JSON(CLIResponse{
			Status: StatusError,
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		_, err := fmt.Fprintf(f.Writer, "Details: %v\n", details)
		return err
	}
	return nil
}

// JSON writes resp indented, without HTML escaping: rendered stages such
// as "<term count>" must survive verbatim.
func (f *OutputFormatter) JSON(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// VerboseLog writes a note to the diagnostics stream under --verbose.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
	}
}

// GetErrWriter is the diagnostics stream, falling back to Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter == nil {
		return f.Writer
	}
	return f.ErrWriter
}
