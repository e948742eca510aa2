package stagegraph

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WalkEventType classifies walk events for filtering and routing.
type WalkEventType string

const (
	EventNodeEnter    WalkEventType = "node_enter"
	EventNodeExit     WalkEventType = "node_exit"
	EventNodeSkipped  WalkEventType = "node_skipped"
	EventWalkStopped  WalkEventType = "walk_stopped"
	EventWalkComplete WalkEventType = "walk_complete"
	EventWalkError    WalkEventType = "walk_error"
)

// WalkEvent is a single observation from a graph walk.
type WalkEvent struct {
	Type     WalkEventType
	Graph    string
	Node     string
	Elapsed  time.Duration
	Error    error
	Metadata map[string]any
}

// WalkObserver receives events during a walk. Parallel walks deliver events
// from several goroutines, so implementations must be safe for concurrent use.
type WalkObserver interface {
	OnEvent(WalkEvent)
}

// WalkObserverFunc adapts a plain function to the WalkObserver interface.
type WalkObserverFunc func(WalkEvent)

func (f WalkObserverFunc) OnEvent(e WalkEvent) { f(e) }

// MultiObserver fans out events to multiple observers.
type MultiObserver []WalkObserver

func (m MultiObserver) OnEvent(e WalkEvent) {
	for _, obs := range m {
		if obs != nil {
			obs.OnEvent(e)
		}
	}
}

// LogObserver writes walk events as structured slog lines.
type LogObserver struct {
	Logger *slog.Logger
}

func (o *LogObserver) OnEvent(e WalkEvent) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []slog.Attr{
		slog.String("event", string(e.Type)),
	}
	if e.Graph != "" {
		attrs = append(attrs, slog.String("graph", e.Graph))
	}
	if e.Node != "" {
		attrs = append(attrs, slog.String("node", e.Node))
	}
	if e.Elapsed > 0 {
		attrs = append(attrs, slog.Duration("elapsed", e.Elapsed))
	}
	for k, v := range e.Metadata {
		attrs = append(attrs, slog.Any(k, v))
	}

	level := slog.LevelInfo
	switch {
	case e.Error != nil:
		attrs = append(attrs, slog.String("error", e.Error.Error()))
		level = slog.LevelWarn
	case e.Type == EventNodeEnter:
		level = slog.LevelDebug
	}
	logger.LogAttrs(context.Background(), level, "walk", attrs...)
}

// TraceCollector accumulates walk events in memory for post-walk analysis.
// Safe for concurrent use.
type TraceCollector struct {
	mu     sync.Mutex
	events []WalkEvent
}

func (t *TraceCollector) OnEvent(e WalkEvent) {
	t.mu.Lock()
	t.events = append(t.events, e)
	t.mu.Unlock()
}

// Events returns a copy of all collected events.
func (t *TraceCollector) Events() []WalkEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]WalkEvent, len(t.events))
	copy(out, t.events)
	return out
}

// EventsOfType returns only events matching the given type.
func (t *TraceCollector) EventsOfType(typ WalkEventType) []WalkEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []WalkEvent
	for _, e := range t.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Nodes returns the node names of events of the given type, in arrival order.
func (t *TraceCollector) Nodes(typ WalkEventType) []string {
	var out []string
	for _, e := range t.EventsOfType(typ) {
		out = append(out, e.Node)
	}
	return out
}

// Reset clears collected events.
func (t *TraceCollector) Reset() {
	t.mu.Lock()
	t.events = nil
	t.mu.Unlock()
}

func emitEvent(obs WalkObserver, e WalkEvent) {
	if obs != nil {
		obs.OnEvent(e)
	}
}
