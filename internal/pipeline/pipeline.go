// Package pipeline runs the trail-layer derivation: contours, terrain
// attributes, slope classification and optional database uploads, as one
// checkpointed stage graph.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"trailkit/internal/classify"
	"trailkit/internal/logging"
	"trailkit/internal/profile"
	"trailkit/internal/sink"
	"trailkit/internal/terrain"
	"trailkit/pkg/stagegraph"
)

// Engine is the set of raster collaborators a run calls into.
type Engine interface {
	Contour(ctx context.Context, src *terrain.Source, p terrain.ContourParams, dst terrain.Destination) (*terrain.Product, error)
	Slope(ctx context.Context, src *terrain.Source, p terrain.SlopeParams, dst terrain.Destination) (*terrain.Product, error)
	Hillshade(ctx context.Context, src *terrain.Source, p terrain.HillshadeParams, dst terrain.Destination) (*terrain.Product, error)
	Aspect(ctx context.Context, src *terrain.Source, p terrain.AspectParams, dst terrain.Destination) (*terrain.Product, error)
	Relief(ctx context.Context, src *terrain.Source, p terrain.ReliefParams, dst terrain.Destination) (*terrain.Product, error)
	Ruggedness(ctx context.Context, src *terrain.Source, p terrain.RuggednessParams, dst terrain.Destination) (*terrain.Product, error)
	classify.Engine
}

// Request is one invocation of the pipeline.
type Request struct {
	Source *terrain.Source
	// Destinations maps output keys to sinks. Missing keys are Temporary.
	Destinations map[terrain.Key]terrain.Destination
	Sink         sink.Target
	// Token, when nil, is created by Run. It is also cancelled once the
	// run's context is done.
	Token *Token
}

func (r Request) destination(k terrain.Key) terrain.Destination {
	if d, ok := r.Destinations[k]; ok {
		return d
	}
	return terrain.TemporaryDestination()
}

// Result holds what a run produced. After a cancellation it contains only
// the outputs of stages that finished before the cancellation was seen.
type Result struct {
	Outputs   map[terrain.Key]*terrain.Product
	Completed []terrain.Key
	// Stages lists every committed stage, uploads included, in commit order.
	Stages    []string
	Skipped   []string
	Imports   sink.Outcomes
	Cancelled bool
	// Coverage is the S2 cell-token covering of a geographic source.
	Coverage []string
}

// Confirmations returns the acknowledgements of successful uploads.
func (r *Result) Confirmations() []sink.Confirmation {
	return r.Imports.Confirmations()
}

// Driver wires an engine and a profile into runnable stage graphs.
type Driver struct {
	Engine  Engine
	Profile *profile.Profile
	// Sink uploads layers when a request carries a configured target.
	Sink     *sink.Writer
	Observer stagegraph.WalkObserver
	// Parallel > 1 runs independent stages concurrently, at most Parallel at once.
	Parallel int
	Logger   *slog.Logger
}

// NewDriver returns a sequential driver.
func NewDriver(engine Engine, p *profile.Profile, w *sink.Writer) *Driver {
	return &Driver{Engine: engine, Profile: p, Sink: w, Logger: logging.New("pipeline")}
}

// Run validates the source and executes every stage. A stage failure aborts
// the run and no result is returned. Cancellation is honoured only between
// stages: a stage in flight completes and its output is kept.
func (d *Driver) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Source.Validate(); err != nil {
		return nil, err
	}
	if d.Engine == nil {
		return nil, errors.New("pipeline: no engine configured")
	}

	token := req.Token
	if token == nil {
		token = NewToken()
	}
	// a done context cancels the token at the next checkpoint
	stop := func() bool {
		if ctx.Err() != nil {
			token.Cancel()
		}
		return token.Cancelled()
	}

	plan, err := d.plan(req)
	if err != nil {
		return nil, err
	}
	logger := d.logger().With(slog.String("source", req.Source.Label()))
	logger.Info("run started", slog.Int("stages", plan.graph.Len()), slog.Int("parallel", d.Parallel))

	// stages must not be interrupted mid-call; the token is the only stop signal
	stageCtx := context.WithoutCancel(ctx)
	var out *stagegraph.Outcome
	if d.Parallel > 1 {
		out, err = plan.graph.WalkParallel(stageCtx, stop, d.Parallel)
	} else {
		out, err = plan.graph.Walk(stageCtx, stop)
	}
	if err != nil {
		var se *terrain.StageExecutionError
		if errors.As(err, &se) {
			logger.Error("run failed", slog.String("stage", se.Stage), slog.String("error", se.Err.Error()))
			return nil, se
		}
		return nil, err
	}

	res := plan.result(out)
	res.Coverage = req.Source.Coverage(8)
	logger.Info("run finished",
		slog.Int("outputs", len(res.Outputs)),
		slog.Int("imports", len(res.Imports)),
		slog.Bool("cancelled", res.Cancelled),
	)
	return res, nil
}

// Graph returns the stage graph a request would run, without running it.
func (d *Driver) Graph(req Request) (*stagegraph.Graph, error) {
	p, err := d.plan(req)
	if err != nil {
		return nil, err
	}
	return p.graph, nil
}

func (d *Driver) profile() *profile.Profile {
	if d.Profile == nil {
		return profile.Default()
	}
	return d.Profile
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return logging.Discard()
}

func (d *Driver) observer() stagegraph.WalkObserver {
	obs := stagegraph.MultiObserver{&stagegraph.LogObserver{Logger: d.logger()}}
	if d.Observer != nil {
		obs = append(obs, d.Observer)
	}
	return obs
}

// Describe summarizes a result for logs and tool responses.
func (r *Result) Describe() string {
	if r.Cancelled {
		return fmt.Sprintf("cancelled after %d stages", len(r.Stages))
	}
	return fmt.Sprintf("%d outputs, %d uploads", len(r.Outputs), len(r.Imports.Confirmations()))
}
