package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trailkit/internal/logging"
	"trailkit/internal/pipeline"
	"trailkit/internal/wiring"
	"trailkit/pkg/stagegraph"
)

// RunState tracks the lifecycle of a pipeline run.
type RunState string

const (
	StateRunning   RunState = "running"
	StateDone      RunState = "done"
	StateCancelled RunState = "cancelled"
	StateError     RunState = "error"
)

// Run is one asynchronous pipeline invocation started over MCP.
type Run struct {
	ID      string
	DEM     string
	Started time.Time

	seq    int
	token  *pipeline.Token
	doneCh chan struct{}
	events *SignalBus

	mu       sync.Mutex
	state    RunState
	result   *pipeline.Result
	err      error
	finished time.Time
}

func newRun(seq int, dem string) *Run {
	return &Run{
		ID:      fmt.Sprintf("r-%d", seq),
		seq:     seq,
		DEM:     dem,
		Started: time.Now(),
		token:   pipeline.NewToken(),
		doneCh:  make(chan struct{}),
		events:  NewSignalBus(),
		state:   StateRunning,
	}
}

// exec runs req to completion and records the outcome.
func (r *Run) exec(ctx context.Context, d *pipeline.Driver, req pipeline.Request, open wiring.Opener) {
	defer close(r.doneCh)
	req.Token = r.token
	observed := *d
	observed.Observer = stagegraph.MultiObserver{d.Observer, r.events}

	res, err := wiring.Run(ctx, &observed, req, open)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = time.Now()
	logger := logging.New("mcp-run")
	switch {
	case err != nil:
		r.state = StateError
		r.err = err
		logger.Error("run failed", "run_id", r.ID, "error", err)
	case res.Cancelled:
		r.state = StateCancelled
		r.result = res
		logger.Info("run cancelled", "run_id", r.ID, "stages", len(res.Stages))
	default:
		r.state = StateDone
		r.result = res
		logger.Info("run complete", "run_id", r.ID, "summary", res.Describe())
	}
}

// Cancel asks the run to stop at its next stage boundary.
func (r *Run) Cancel() { r.token.Cancel() }

// State returns the current state in a thread-safe manner.
func (r *Run) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Result returns the pipeline result, nil until the run ends without error.
func (r *Run) Result() *pipeline.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Err returns the error that aborted the run.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Elapsed is the run time so far, or the total once finished.
func (r *Run) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished.IsZero() {
		return time.Since(r.Started)
	}
	return r.finished.Sub(r.Started)
}

// Events returns the stage events recorded from index since onward.
func (r *Run) Events(since int) []Signal { return r.events.Since(since) }

// Done returns a channel that closes when the run ends.
func (r *Run) Done() <-chan struct{} { return r.doneCh }

// Wait blocks until the run ends, ctx is done, or timeout elapses. It
// reports whether the run ended.
func (r *Run) Wait(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-r.doneCh:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-r.doneCh:
		return true
	case <-ctx.Done():
		return false
	case <-t.C:
		return false
	}
}
