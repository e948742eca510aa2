package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"trailkit/internal/classify"
	"trailkit/internal/sink"
	"trailkit/internal/terrain"
	"trailkit/pkg/stagegraph"
)

const (
	stageImportContours       = "sink-import/contours"
	stageImportClassification = "sink-import/classification"
)

// stage is one node of a run together with the output key it fills.
type stage struct {
	name     string
	kind     terrain.Kind
	key      terrain.Key
	requires []string
	run      func(ctx context.Context, in stagegraph.Inputs) (any, error)
}

type plan struct {
	graph  *stagegraph.Graph
	stages map[string]stage
}

// plan declares the stages in their canonical order: contours, contour
// uploads, terrain attributes, slope classification, classification uploads.
func (d *Driver) plan(req Request) (*plan, error) {
	prof := d.profile()
	src := req.Source
	eng := d.Engine
	uploads := d.Sink != nil
	if _, ok := req.Sink.(sink.Configured); !ok {
		uploads = false
	}

	var stages []stage
	var contourNames []string
	var contourArtifacts []func(stagegraph.Inputs) sink.Artifact
	for _, cs := range prof.ContourStages() {
		params, dst := cs.Params(), req.destination(cs.Key)
		stages = append(stages, stage{
			name: string(cs.Kind), kind: cs.Kind, key: cs.Key,
			run: func(ctx context.Context, _ stagegraph.Inputs) (any, error) {
				return eng.Contour(ctx, src, params, dst)
			},
		})
		contourNames = append(contourNames, string(cs.Kind))
		if cs.Table != "" {
			name, table := string(cs.Kind), cs.Table
			contourArtifacts = append(contourArtifacts, func(in stagegraph.Inputs) sink.Artifact {
				return sink.Artifact{Table: table, Product: in[name].(*terrain.Product), SRID: src.SRID}
			})
		}
	}
	if uploads && len(contourArtifacts) > 0 {
		stages = append(stages, d.importStage(stageImportContours, contourNames, req.Sink, contourArtifacts))
	}

	stages = append(stages,
		stage{
			name: string(terrain.KindHillshade), kind: terrain.KindHillshade, key: terrain.KeyHillshade,
			run: func(ctx context.Context, _ stagegraph.Inputs) (any, error) {
				return eng.Hillshade(ctx, src, prof.Hillshade, req.destination(terrain.KeyHillshade))
			},
		},
		stage{
			name: string(terrain.KindAspect), kind: terrain.KindAspect, key: terrain.KeyAspect,
			run: func(ctx context.Context, _ stagegraph.Inputs) (any, error) {
				return eng.Aspect(ctx, src, prof.Aspect, req.destination(terrain.KeyAspect))
			},
		},
		stage{
			name: string(terrain.KindRelief), kind: terrain.KindRelief, key: terrain.KeyRelief,
			run: func(ctx context.Context, _ stagegraph.Inputs) (any, error) {
				return eng.Relief(ctx, src, prof.Relief, req.destination(terrain.KeyRelief))
			},
		},
		stage{
			name: string(terrain.KindRuggedness), kind: terrain.KindRuggedness, key: terrain.KeyRuggedness,
			run: func(ctx context.Context, _ stagegraph.Inputs) (any, error) {
				return eng.Ruggedness(ctx, src, prof.Ruggedness, req.destination(terrain.KeyRuggedness))
			},
		},
		stage{
			name: string(terrain.KindSlope), kind: terrain.KindSlope, key: terrain.KeySlope,
			run: func(ctx context.Context, _ stagegraph.Inputs) (any, error) {
				return eng.Slope(ctx, src, prof.Slope, req.destination(terrain.KeySlope))
			},
		},
	)

	classifier := &classify.Classifier{
		Engine:       eng,
		Band:         prof.Classification.Band,
		Connectivity: prof.Classification.Connectivity,
		Logger:       d.logger(),
	}
	var classNames []string
	var classArtifacts []func(stagegraph.Inputs) sink.Artifact
	for _, b := range prof.Classification.Bands {
		band, key := b, b.Key()
		name := classificationStage(key)
		dst := req.destination(key)
		stages = append(stages, stage{
			name: name, kind: terrain.KindClassPolygons, key: key,
			requires: []string{string(terrain.KindSlope)},
			run: func(ctx context.Context, in stagegraph.Inputs) (any, error) {
				slope, _ := in[string(terrain.KindSlope)].(*terrain.Product)
				p, err := classifier.Classify(ctx, slope, band, dst)
				if errors.Is(err, classify.ErrSlopeUnavailable) {
					d.logger().Warn("slope data not available, classification skipped", slog.String("band", band.Name))
					return nil, stagegraph.ErrSkipped
				}
				return p, err
			},
		})
		classNames = append(classNames, name)
		if band.Table != "" {
			classArtifacts = append(classArtifacts, func(in stagegraph.Inputs) sink.Artifact {
				return sink.Artifact{Table: band.Table, Product: in[name].(*terrain.Product), SRID: src.SRID}
			})
		}
	}
	if uploads && len(classArtifacts) > 0 {
		stages = append(stages, d.importStage(stageImportClassification, classNames, req.Sink, classArtifacts))
	}

	nodes := make([]stagegraph.Node, len(stages))
	index := make(map[string]stage, len(stages))
	for i, s := range stages {
		nodes[i] = s.node()
		index[s.name] = s
	}
	g, err := stagegraph.New(prof.Name, nodes, stagegraph.WithObserver(d.observer()))
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return &plan{graph: g, stages: index}, nil
}

// importStage uploads the outputs of its prerequisites. Upload failures are
// recorded per table and never fail the stage.
func (d *Driver) importStage(name string, requires []string, target sink.Target, artifacts []func(stagegraph.Inputs) sink.Artifact) stage {
	return stage{
		name: name, kind: terrain.KindSinkImport, requires: requires,
		run: func(ctx context.Context, in stagegraph.Inputs) (any, error) {
			batch := make([]sink.Artifact, len(artifacts))
			for i, a := range artifacts {
				batch[i] = a(in)
			}
			return d.Sink.Write(ctx, target, batch), nil
		},
	}
}

// node adapts the stage to the graph, tagging failures with the stage identity.
func (s stage) node() stagegraph.Node {
	return stagegraph.NewNode(s.name, s.requires, func(ctx context.Context, in stagegraph.Inputs) (any, error) {
		out, err := s.run(ctx, in)
		if err == nil || errors.Is(err, stagegraph.ErrSkipped) {
			return out, err
		}
		return nil, &terrain.StageExecutionError{Stage: s.name, Kind: s.kind, Err: err}
	})
}

func (p *plan) result(out *stagegraph.Outcome) *Result {
	res := &Result{
		Outputs:   make(map[terrain.Key]*terrain.Product),
		Stages:    out.Completed,
		Skipped:   out.Skipped,
		Cancelled: out.Stopped,
	}
	for _, name := range out.Completed {
		s := p.stages[name]
		switch v := out.Outputs[name].(type) {
		case *terrain.Product:
			res.Outputs[s.key] = v
			res.Completed = append(res.Completed, s.key)
		case sink.Outcomes:
			res.Imports = append(res.Imports, v...)
		}
	}
	return res
}

func classificationStage(k terrain.Key) string {
	return string(terrain.KindClassPolygons) + "/" + strings.ToLower(string(k))
}
