// Package eval implements the tally pipeline interpreter.
//
// The evaluator walks a Program's top-level pipeline, threading a single
// implicit input value through each stage. Names resolve through a scope
// chain: let parameters, program lets, caller globals, then builtins.
//
// ARCHITECTURE:
//
// An Evaluator is immutable after New and safe for concurrent use. Every
// call to Run allocates a private run holding the step quota, the depth
// counter and the per-run scopes, so repeated or parallel evaluation of the
// same program never shares mutable state. RunAll fans inputs out over an
// errgroup.
//
// Evaluation Contract:
//   - Pipelines are threaded left to right; an empty BagVal is identity
//   - RecordVal entries are evaluated independently against one input
//   - Term arguments are names resolved in the caller scope before binding
//   - A let applied to a value argument starts from that value; otherwise
//     it starts from the caller's input
//   - Arity is exact; a mismatch binds nothing
//
// Errors are *Error values carrying a Code (UNRESOLVED_NAME, ARITY_MISMATCH,
// MISSING_FIELD, MALFORMED_PIPELINE, TYPE_MISMATCH, QUOTA_EXCEEDED,
// INT_OVERFLOW) and the rendered fragment that raised them. Nothing is
// recovered or defaulted.
package eval
