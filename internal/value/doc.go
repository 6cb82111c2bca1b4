// Package value provides the materialized runtime data of tally programs.
//
// Pipelines in package ast describe transformations; the values here are
// what those transformations consume and produce.
//
// Key design constraints:
//   - Value is sealed: Null, String, Int, Bool, Bag and Record only
//   - NO float type - numbers are int64, floats are rejected on decode
//   - Bags are multisets: element order never affects equality or encoding
//   - Record keys are emitted in RFC 8785 order (UTF-16 code units)
package value
