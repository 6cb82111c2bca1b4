package eval

import (
	"errors"
	"fmt"

	"github.com/roach88/tally/internal/value"
)

// Error represents a condition detected while evaluating a program.
//
// Error includes structured fields for diagnostics:
//   - Name: the unresolved or mis-applied binding name
//   - Key: the projection key (MISSING_FIELD)
//   - Expr: the rendered fragment that raised the error
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Name identifies the binding involved, if any.
	Name string

	// Key identifies the projected field, if any.
	Key string

	// Expr is the rendered expression that failed.
	Expr string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes evaluation errors.
type ErrorCode string

const (
	// ErrCodeUnresolvedName indicates a name matches no param, let, global or builtin.
	ErrCodeUnresolvedName ErrorCode = "UNRESOLVED_NAME"

	// ErrCodeArityMismatch indicates the argument count differs from the binding's params.
	ErrCodeArityMismatch ErrorCode = "ARITY_MISMATCH"

	// ErrCodeMissingField indicates a projected key is absent or the input is not a record.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"

	// ErrCodeMalformedPipeline indicates a stage the evaluator does not recognize.
	ErrCodeMalformedPipeline ErrorCode = "MALFORMED_PIPELINE"

	// ErrCodeTypeMismatch indicates a stage received the wrong kind of value.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeQuotaExceeded indicates the run exceeded its step or depth limit.
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeIntOverflow indicates integer arithmetic left the int64 range.
	ErrCodeIntOverflow ErrorCode = "INT_OVERFLOW"
)

// AllCodes lists every evaluation error code.
var AllCodes = []ErrorCode{
	ErrCodeUnresolvedName,
	ErrCodeArityMismatch,
	ErrCodeMissingField,
	ErrCodeMalformedPipeline,
	ErrCodeTypeMismatch,
	ErrCodeQuotaExceeded,
	ErrCodeIntOverflow,
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if s := e.Details["suggestion"]; s != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", s)
	}
	if e.Expr != "" {
		msg += " at " + e.Expr
	}
	return msg
}

// CodeOf extracts the evaluation error code from err.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) (ErrorCode, bool) {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code, true
	}
	return "", false
}

func hasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// IsUnresolvedName returns true if err is an UNRESOLVED_NAME error.
func IsUnresolvedName(err error) bool { return hasCode(err, ErrCodeUnresolvedName) }

// IsArityMismatch returns true if err is an ARITY_MISMATCH error.
func IsArityMismatch(err error) bool { return hasCode(err, ErrCodeArityMismatch) }

// IsMissingField returns true if err is a MISSING_FIELD error.
func IsMissingField(err error) bool { return hasCode(err, ErrCodeMissingField) }

// IsMalformedPipeline returns true if err is a MALFORMED_PIPELINE error.
func IsMalformedPipeline(err error) bool { return hasCode(err, ErrCodeMalformedPipeline) }

// IsTypeMismatch returns true if err is a TYPE_MISMATCH error.
func IsTypeMismatch(err error) bool { return hasCode(err, ErrCodeTypeMismatch) }

// IsQuotaError returns true if err is a QUOTA_EXCEEDED error.
func IsQuotaError(err error) bool { return hasCode(err, ErrCodeQuotaExceeded) }

// IsIntOverflow returns true if err is an INT_OVERFLOW error.
func IsIntOverflow(err error) bool { return hasCode(err, ErrCodeIntOverflow) }

// NewUnresolvedNameError creates an Error for a name with no binding.
// suggestion may be empty.
func NewUnresolvedNameError(name, expr, suggestion string) *Error {
	e := &Error{
		Code:    ErrCodeUnresolvedName,
		Message: fmt.Sprintf("name %q is not a param, let, global or builtin", name),
		Name:    name,
		Expr:    expr,
	}
	if suggestion != "" {
		e.Details = map[string]string{"suggestion": suggestion}
	}
	return e
}

// NewArityMismatchError creates an Error for a wrong argument count.
func NewArityMismatchError(name string, want, got int, expr string) *Error {
	return &Error{
		Code:    ErrCodeArityMismatch,
		Message: fmt.Sprintf("%s takes %d argument(s), got %d", name, want, got),
		Name:    name,
		Expr:    expr,
		Details: map[string]string{
			"want": fmt.Sprintf("%d", want),
			"got":  fmt.Sprintf("%d", got),
		},
	}
}

// NewMissingFieldError creates an Error for a projection that found no field.
func NewMissingFieldError(key string, input value.Value, expr string) *Error {
	msg := fmt.Sprintf("field %q not found in record", key)
	if _, ok := input.(value.Record); !ok {
		msg = fmt.Sprintf("cannot project %q from %s: not a record", key, value.Kind(input))
	}
	return &Error{
		Code:    ErrCodeMissingField,
		Message: msg,
		Key:     key,
		Expr:    expr,
		Details: map[string]string{"input_kind": value.Kind(input)},
	}
}

// NewMalformedPipelineError creates an Error for an unrecognized stage.
func NewMalformedPipelineError(reason, expr string) *Error {
	return &Error{
		Code:    ErrCodeMalformedPipeline,
		Message: reason,
		Expr:    expr,
	}
}

// NewTypeMismatchError creates an Error for a stage given the wrong kind of value.
func NewTypeMismatchError(name, want string, got value.Value, expr string) *Error {
	return &Error{
		Code:    ErrCodeTypeMismatch,
		Message: fmt.Sprintf("%s expects %s, got %s", name, want, value.Kind(got)),
		Name:    name,
		Expr:    expr,
		Details: map[string]string{"want": want, "got": value.Kind(got)},
	}
}

// NewQuotaError creates an Error for an exhausted step or depth limit.
func NewQuotaError(limit string, used, max int) *Error {
	return &Error{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("run exceeded max %s (%d > %d)", limit, used, max),
		Details: map[string]string{
			"limit": limit,
			"used":  fmt.Sprintf("%d", used),
			"max":   fmt.Sprintf("%d", max),
		},
	}
}

// NewIntOverflowError creates an Error for arithmetic whose result does not
// fit in an int64.
func NewIntOverflowError(name string, a, b value.Int, expr string) *Error {
	return &Error{
		Code:    ErrCodeIntOverflow,
		Message: fmt.Sprintf("%s(%d, %d) overflows int64", name, a, b),
		Name:    name,
		Expr:    expr,
		Details: map[string]string{
			"left":  fmt.Sprintf("%d", a),
			"right": fmt.Sprintf("%d", b),
		},
	}
}
