package mcp

import (
	"sync"
	"time"

	"trailkit/pkg/stagegraph"
)

// Signal is one stage event of a run, as reported by get_run.
type Signal struct {
	Timestamp string `json:"ts"`
	Event     string `json:"event"`
	Stage     string `json:"stage,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SignalBus is a thread-safe, append-only log of stage events. It observes
// a run's stage walk.
type SignalBus struct {
	mu      sync.Mutex
	signals []Signal
}

// NewSignalBus returns a new SignalBus.
func NewSignalBus() *SignalBus {
	return &SignalBus{}
}

// Emit appends a signal for event on stage.
func (b *SignalBus) Emit(event, stage string, elapsed time.Duration, err error) {
	s := Signal{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Event:     event,
		Stage:     stage,
		ElapsedMS: elapsed.Milliseconds(),
	}
	if err != nil {
		s.Error = err.Error()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signals = append(b.signals, s)
}

// OnEvent records walk events. Node entries are dropped; exits carry the
// stage duration.
func (b *SignalBus) OnEvent(e stagegraph.WalkEvent) {
	if e.Type == stagegraph.EventNodeEnter {
		return
	}
	b.Emit(string(e.Type), e.Node, e.Elapsed, e.Error)
}

// Since returns a copy of signals from index idx onward. If idx is negative it is clamped to 0.
// If idx >= len(signals), returns nil.
func (b *SignalBus) Since(idx int) []Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx < 0 {
		idx = 0
	}
	if idx >= len(b.signals) {
		return nil
	}
	out := make([]Signal, len(b.signals)-idx)
	copy(out, b.signals[idx:])
	return out
}

// Len returns the number of signals in the bus.
func (b *SignalBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.signals)
}
