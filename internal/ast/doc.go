// Package ast defines the syntax tree of tally programs.
//
// This package contains node definitions only. The compiler produces these
// nodes and the evaluator consumes them; ast imports nothing internal.
//
// Key design constraints:
//   - Expr is sealed: only Term, Projection, BagVal and RecordVal implement it
//   - Nodes are immutable after construction; constructors copy their inputs
//   - Destructure returns copies of fields in the documented constructor order
//   - Exported fields are for reading and literals; code must not write them
//     on a constructed node
//   - String renders recursively and deterministically (no map-order leaks)
//
// BagVal and RecordVal are not data. They describe how to derive an output
// bag or record from an input, and may be evaluated any number of times
// against different inputs.
package ast
