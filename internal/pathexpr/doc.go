// Package pathexpr parses and resolves reference expressions against an
// in-memory record graph snapshot.
//
// Grammar:
//
//	expr     := selector [ "." field ] | field
//	selector := "$eventObject" | "$modifiedFields"
//	          | ("$parent" | "$child") [ "(" hop ")" ]
//	hop      := n | "'" Schema "'" [ "," n ]
//	field    := name { "." name }
//
// A bare field is shorthand for "$eventObject.field". Hop indices are
// 1-based; "$parent" alone is "$parent(1)". "$modifiedFields" resolves to
// the list of changed field names and takes no field suffix.
//
// Expressions are parsed once, when rules are registered. Resolution never
// performs I/O: ancestors and descendants must already be loaded into the
// Context. A hop that cannot be satisfied resolves to not-found, which the
// condition evaluator treats as false.
package pathexpr
