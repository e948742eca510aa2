package pipeline

import (
	"context"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"trailkit/adapters/memraster"
	"trailkit/internal/terrain"
)

// fakeEngine computes cheap stand-ins for every derivative over in-memory
// grids and records each collaborator call. Contours carry one feature per
// level; slope is a central-difference percent slope.
type fakeEngine struct {
	memraster.Engine

	mu     sync.Mutex
	calls  []string
	fail   map[string]error
	before func(call string, n int)
	ctxErr []error
	// noSlope makes Slope return a product without data.
	noSlope bool
}

func (f *fakeEngine) record(ctx context.Context, call string) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	n := len(f.calls)
	hook := f.before
	err := f.fail[call]
	f.mu.Unlock()
	if hook != nil {
		hook(call, n)
	}
	f.mu.Lock()
	f.ctxErr = append(f.ctxErr, ctx.Err())
	f.mu.Unlock()
	return err
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) Contour(ctx context.Context, src *terrain.Source, p terrain.ContourParams, dst terrain.Destination) (*terrain.Product, error) {
	if err := f.record(ctx, "contour"); err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	if lo, hi, ok := src.Grid.Range(); ok {
		for level := math.Ceil(lo/p.Interval) * p.Interval; level <= hi; level += p.Interval {
			feat := geojson.NewFeature(orb.LineString{{0, level}, {1, level}})
			feat.Properties[p.Field] = level
			fc.Append(feat)
		}
	}
	out := terrain.NewProduct(terrain.ContourKind(p.Interval), dst, p.AsParams())
	out.Vector = fc
	return out, nil
}

func (f *fakeEngine) raster(ctx context.Context, call string, k terrain.Kind, src *terrain.Source, params terrain.Params, dst terrain.Destination) (*terrain.Product, error) {
	if err := f.record(ctx, call); err != nil {
		return nil, err
	}
	out := terrain.NewProduct(k, dst, params)
	out.Raster = src.Grid.Clone()
	return out, nil
}

func (f *fakeEngine) Hillshade(ctx context.Context, src *terrain.Source, p terrain.HillshadeParams, dst terrain.Destination) (*terrain.Product, error) {
	return f.raster(ctx, "hillshade", terrain.KindHillshade, src, p.AsParams(), dst)
}

func (f *fakeEngine) Aspect(ctx context.Context, src *terrain.Source, p terrain.AspectParams, dst terrain.Destination) (*terrain.Product, error) {
	return f.raster(ctx, "aspect", terrain.KindAspect, src, p.AsParams(), dst)
}

func (f *fakeEngine) Relief(ctx context.Context, src *terrain.Source, p terrain.ReliefParams, dst terrain.Destination) (*terrain.Product, error) {
	return f.raster(ctx, "relief", terrain.KindRelief, src, p.AsParams(), dst)
}

func (f *fakeEngine) Ruggedness(ctx context.Context, src *terrain.Source, p terrain.RuggednessParams, dst terrain.Destination) (*terrain.Product, error) {
	return f.raster(ctx, "ruggedness", terrain.KindRuggedness, src, p.AsParams(), dst)
}

func (f *fakeEngine) Slope(ctx context.Context, src *terrain.Source, p terrain.SlopeParams, dst terrain.Destination) (*terrain.Product, error) {
	if err := f.record(ctx, "slope"); err != nil {
		return nil, err
	}
	out := terrain.NewProduct(terrain.KindSlope, dst, p.AsParams())
	if f.noSlope {
		return out, nil
	}
	g := src.Grid
	gt := g.GeoTransform
	if gt.IsZero() {
		gt = terrain.PixelSpace
	}
	dx, dy := math.Abs(gt[1]), math.Abs(gt[5])
	s := terrain.NewGrid(g.Width, g.Height)
	s.GeoTransform = g.GeoTransform
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			gx := (g.At(min(x+1, g.Width-1), y) - g.At(max(x-1, 0), y)) / (float64(min(x+1, g.Width-1)-max(x-1, 0)) * dx)
			gy := (g.At(x, min(y+1, g.Height-1)) - g.At(x, max(y-1, 0))) / (float64(min(y+1, g.Height-1)-max(y-1, 0)) * dy)
			if math.IsNaN(gx) {
				gx = 0
			}
			if math.IsNaN(gy) {
				gy = 0
			}
			s.Set(x, y, 100*p.ZFactor*math.Hypot(gx, gy))
		}
	}
	out.Raster = s
	return out, nil
}

func (f *fakeEngine) ThresholdIndicator(ctx context.Context, src *terrain.Product, band terrain.Band, dst terrain.Destination) (*terrain.Product, error) {
	if err := f.record(ctx, "threshold"); err != nil {
		return nil, err
	}
	return f.Engine.ThresholdIndicator(ctx, src, band, dst)
}

func (f *fakeEngine) Polygonize(ctx context.Context, src *terrain.Product, p terrain.PolygonizeParams, dst terrain.Destination) (*terrain.Product, error) {
	if err := f.record(ctx, "polygonize"); err != nil {
		return nil, err
	}
	return f.Engine.Polygonize(ctx, src, p, dst)
}
