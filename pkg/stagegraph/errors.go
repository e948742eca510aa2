package stagegraph

import "errors"

var (
	// ErrNodeNotFound is returned when a prerequisite names a node that does
	// not exist in the graph.
	ErrNodeNotFound = errors.New("stagegraph: node not found")

	// ErrDuplicateNode is returned when two nodes share a name.
	ErrDuplicateNode = errors.New("stagegraph: duplicate node name")

	// ErrCycle is returned when the prerequisites do not form a DAG.
	ErrCycle = errors.New("stagegraph: dependency cycle")

	// ErrSkipped may be returned by a node to signal that it had nothing to
	// do. The walk records the node as skipped and skips its dependents.
	ErrSkipped = errors.New("stagegraph: node skipped")
)
