package stagegraph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// StopFunc is consulted at every checkpoint. Returning true ends the walk
// with the outputs committed so far.
type StopFunc func() bool

// Outcome is the result of a walk.
type Outcome struct {
	// Outputs holds the committed output of every completed node.
	Outputs map[string]any
	// Completed lists committed nodes in commit order.
	Completed []string
	// Skipped lists nodes that returned ErrSkipped or had a skipped prerequisite.
	Skipped []string
	// Stopped is true when a checkpoint ended the walk early.
	Stopped bool
}

func newOutcome() *Outcome {
	return &Outcome{Outputs: make(map[string]any)}
}

func (o *Outcome) commit(name string, v any) {
	o.Outputs[name] = v
	o.Completed = append(o.Completed, name)
}

// Walk runs every node sequentially in Order. A node error aborts the walk
// and no outcome is returned.
func (g *Graph) Walk(ctx context.Context, stop StopFunc) (*Outcome, error) {
	out := newOutcome()
	if g.halt(stop, out) {
		return out, nil
	}

	for _, name := range g.order {
		node := g.index[name]
		in, blocked := g.inputs(node, out)
		if blocked {
			g.skip(out, name, nil)
			continue
		}

		res, skipped, err := g.process(ctx, node, in)
		if err != nil {
			emitEvent(g.observer, WalkEvent{Type: EventWalkError, Graph: g.name, Node: name, Error: err})
			return nil, fmt.Errorf("node %s: %w", name, err)
		}
		if skipped {
			g.skip(out, name, nil)
		} else {
			out.commit(name, res)
		}
		if g.halt(stop, out) {
			return out, nil
		}
	}

	emitEvent(g.observer, WalkEvent{Type: EventWalkComplete, Graph: g.name})
	return out, nil
}

// WalkParallel runs each layer concurrently, at most limit nodes at a time
// (limit <= 0 means unbounded). The checkpoint is consulted after each layer.
// The first node error cancels the context of its running siblings.
func (g *Graph) WalkParallel(ctx context.Context, stop StopFunc, limit int) (*Outcome, error) {
	out := newOutcome()
	if g.halt(stop, out) {
		return out, nil
	}

	for _, layer := range g.layers {
		type slot struct {
			result  any
			skipped bool
			ran     bool
		}
		slots := make([]slot, len(layer))

		eg, egctx := errgroup.WithContext(ctx)
		if limit > 0 {
			eg.SetLimit(limit)
		}
		var mu sync.Mutex
		for i, name := range layer {
			node := g.index[name]
			in, blocked := g.inputs(node, out)
			if blocked {
				slots[i].skipped = true
				continue
			}
			eg.Go(func() error {
				res, skipped, err := g.process(egctx, node, in)
				if err != nil {
					emitEvent(g.observer, WalkEvent{Type: EventWalkError, Graph: g.name, Node: name, Error: err})
					return fmt.Errorf("node %s: %w", name, err)
				}
				mu.Lock()
				slots[i] = slot{result: res, skipped: skipped, ran: true}
				mu.Unlock()
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}

		for i, name := range layer {
			switch {
			case slots[i].skipped:
				g.skip(out, name, nil)
			case slots[i].ran:
				out.commit(name, slots[i].result)
			}
		}
		if g.halt(stop, out) {
			return out, nil
		}
	}

	emitEvent(g.observer, WalkEvent{Type: EventWalkComplete, Graph: g.name})
	return out, nil
}

// process runs one node and reports whether it asked to be skipped.
func (g *Graph) process(ctx context.Context, node Node, in Inputs) (any, bool, error) {
	name := node.Name()
	emitEvent(g.observer, WalkEvent{Type: EventNodeEnter, Graph: g.name, Node: name})
	start := time.Now()
	res, err := node.Process(ctx, in)
	elapsed := time.Since(start)

	if errors.Is(err, ErrSkipped) {
		emitEvent(g.observer, WalkEvent{Type: EventNodeExit, Graph: g.name, Node: name, Elapsed: elapsed,
			Metadata: map[string]any{"skipped": true}})
		return nil, true, nil
	}
	if err != nil {
		emitEvent(g.observer, WalkEvent{Type: EventNodeExit, Graph: g.name, Node: name, Elapsed: elapsed, Error: err})
		return nil, false, err
	}
	emitEvent(g.observer, WalkEvent{Type: EventNodeExit, Graph: g.name, Node: name, Elapsed: elapsed})
	return res, false, nil
}

// inputs gathers prerequisite outputs. blocked is true when a prerequisite
// was skipped.
func (g *Graph) inputs(node Node, out *Outcome) (Inputs, bool) {
	in := make(Inputs, len(node.Requires()))
	for _, req := range node.Requires() {
		v, ok := out.Outputs[req]
		if !ok {
			return nil, true
		}
		in[req] = v
	}
	return in, false
}

func (g *Graph) skip(out *Outcome, name string, err error) {
	out.Skipped = append(out.Skipped, name)
	emitEvent(g.observer, WalkEvent{Type: EventNodeSkipped, Graph: g.name, Node: name, Error: err})
}

func (g *Graph) halt(stop StopFunc, out *Outcome) bool {
	if stop == nil || !stop() {
		return false
	}
	out.Stopped = true
	emitEvent(g.observer, WalkEvent{
		Type:     EventWalkStopped,
		Graph:    g.name,
		Metadata: map[string]any{"completed": len(out.Completed)},
	})
	return true
}
