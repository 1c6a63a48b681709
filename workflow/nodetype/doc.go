// Package nodetype holds the catalogue of node types a workflow graph may use:
// their ports, parameter schema and version, plus the built-in trigger, task,
// condition and parallel types.
package nodetype
