// Package stagegraph runs a fixed set of named stages in dependency order.
//
// A Graph is built once from its nodes and validated up front: every
// prerequisite must exist and the prerequisites must be acyclic. Walks are
// checkpointed: a StopFunc is consulted before the first node and after each
// node (or layer) completes, never while one is running.
package stagegraph

import (
	"fmt"
	"strings"
)

// Graph is a validated DAG of nodes with a deterministic execution order.
type Graph struct {
	name     string
	nodes    []Node
	index    map[string]Node
	position map[string]int
	order    []string
	layers   [][]string
	observer WalkObserver
}

// Option configures a Graph during construction.
type Option func(*Graph)

// WithObserver attaches an observer that receives walk events.
func WithObserver(obs WalkObserver) Option {
	return func(g *Graph) {
		g.observer = obs
	}
}

// New validates nodes and computes the execution order. Ties between
// independent nodes are broken by definition order, so a walk visits nodes
// in the order they were declared whenever their prerequisites allow.
func New(name string, nodes []Node, opts ...Option) (*Graph, error) {
	g := &Graph{
		name:     name,
		nodes:    nodes,
		index:    make(map[string]Node, len(nodes)),
		position: make(map[string]int, len(nodes)),
	}
	for _, opt := range opts {
		opt(g)
	}

	for i, n := range nodes {
		if _, dup := g.index[n.Name()]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateNode, n.Name())
		}
		g.index[n.Name()] = n
		g.position[n.Name()] = i
	}
	for _, n := range nodes {
		for _, req := range n.Requires() {
			if _, ok := g.index[req]; !ok {
				return nil, fmt.Errorf("%w: %q requires %q", ErrNodeNotFound, n.Name(), req)
			}
		}
	}

	order, err := g.sort()
	if err != nil {
		return nil, err
	}
	g.order = order
	g.layers = g.level()
	return g, nil
}

func (g *Graph) Name() string  { return g.name }
func (g *Graph) Nodes() []Node { return g.nodes }
func (g *Graph) Len() int      { return len(g.nodes) }

func (g *Graph) NodeByName(name string) (Node, bool) {
	n, ok := g.index[name]
	return n, ok
}

// Order returns the sequential execution order.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Layers groups nodes by dependency depth. Nodes within one layer share no
// prerequisites with each other and may run concurrently.
func (g *Graph) Layers() [][]string {
	out := make([][]string, len(g.layers))
	for i, l := range g.layers {
		out[i] = append([]string(nil), l...)
	}
	return out
}

// sort is Kahn's algorithm that always emits the earliest-declared ready node.
func (g *Graph) sort() ([]string, error) {
	done := make(map[string]bool, len(g.nodes))
	order := make([]string, 0, len(g.nodes))
	for len(order) < len(g.nodes) {
		progressed := false
		for _, n := range g.nodes {
			if done[n.Name()] || !g.ready(n, done) {
				continue
			}
			done[n.Name()] = true
			order = append(order, n.Name())
			progressed = true
			break
		}
		if !progressed {
			var stuck []string
			for _, n := range g.nodes {
				if !done[n.Name()] {
					stuck = append(stuck, n.Name())
				}
			}
			return nil, fmt.Errorf("%w among %s", ErrCycle, strings.Join(stuck, ", "))
		}
	}
	return order, nil
}

func (g *Graph) ready(n Node, done map[string]bool) bool {
	for _, req := range n.Requires() {
		if !done[req] {
			return false
		}
	}
	return true
}

func (g *Graph) level() [][]string {
	depth := make(map[string]int, len(g.order))
	var layers [][]string
	for _, name := range g.order {
		d := 0
		for _, req := range g.index[name].Requires() {
			if depth[req]+1 > d {
				d = depth[req] + 1
			}
		}
		depth[name] = d
		for len(layers) <= d {
			layers = append(layers, nil)
		}
		layers[d] = append(layers[d], name)
	}
	return layers
}
