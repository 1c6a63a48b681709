// Package expr implements the boolean expression language used by condition
// nodes: literals, dotted variable paths, comparisons and logical operators.
package expr
