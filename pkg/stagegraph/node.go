package stagegraph

import "context"

// Inputs carries the outputs of a node's prerequisites, keyed by node name.
type Inputs map[string]any

// Node is one unit of work in a graph. Requires names the nodes whose
// outputs must exist before Process is called.
type Node interface {
	Name() string
	Requires() []string
	Process(ctx context.Context, in Inputs) (any, error)
}

// ProcessFunc adapts a plain function to a node body.
type ProcessFunc func(ctx context.Context, in Inputs) (any, error)

// NewNode builds a Node from a name, its prerequisites and a body.
func NewNode(name string, requires []string, fn ProcessFunc) Node {
	return &funcNode{name: name, requires: requires, fn: fn}
}

type funcNode struct {
	name     string
	requires []string
	fn       ProcessFunc
}

func (n *funcNode) Name() string       { return n.name }
func (n *funcNode) Requires() []string { return n.requires }

func (n *funcNode) Process(ctx context.Context, in Inputs) (any, error) {
	return n.fn(ctx, in)
}
