// Package memraster implements every raster collaborator over in-memory
// grids. It serves tests and small rasters that never touch disk.
package memraster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"trailkit/adapters/vector"
	"trailkit/internal/terrain"
)

var (
	// ErrNotInMemory is returned for products whose raster was not kept in process.
	ErrNotInMemory = errors.New("memraster: product has no in-memory raster")
	// ErrRasterFile is returned for raster products bound for a file. Writing
	// rasters to disk needs GDAL.
	ErrRasterFile = errors.New("memraster: cannot write raster files")
)

// Engine holds no state; the zero value is ready to use.
type Engine struct{}

// ThresholdIndicator copies src, keeping values in band and writing 0 to every
// other cell. Nodata cells become 0.
func (Engine) ThresholdIndicator(_ context.Context, src *terrain.Product, band terrain.Band, dst terrain.Destination) (*terrain.Product, error) {
	g, err := grid(src)
	if err != nil {
		return nil, err
	}
	out := terrain.NewGrid(g.Width, g.Height)
	out.GeoTransform = g.GeoTransform
	for i, v := range g.Values {
		if g.IsNoData(v) || !band.Contains(v) {
			continue
		}
		out.Values[i] = v
	}

	p := terrain.NewProduct(terrain.KindIndicator, dst, terrain.Params{"FORMULA": band.Formula(), "NO_DATA": 0})
	p.Raster = out
	return persist(p)
}

// Polygonize vectorizes src the way gdal_polygonize does: cell values are
// truncated to integers, zero is background, and connected cells sharing a
// value form one feature whose field holds that value. Features are ordered
// by their first cell in row-major order.
func (Engine) Polygonize(_ context.Context, src *terrain.Product, params terrain.PolygonizeParams, dst terrain.Destination) (*terrain.Product, error) {
	g, err := grid(src)
	if err != nil {
		return nil, err
	}
	if params.Band > 1 {
		return nil, errBand(params.Band)
	}
	field := params.Field
	if field == "" {
		field = "DN"
	}

	fc := geojson.NewFeatureCollection()
	for _, r := range regions(g, params.Connectivity) {
		mp := make(orb.MultiPolygon, 0, len(r.cells))
		for _, c := range r.cells {
			mp = append(mp, orb.Polygon{g.CellRing(c%g.Width, c/g.Width)})
		}
		f := geojson.NewFeature(mp)
		f.Properties[field] = r.value
		fc.Append(f)
	}

	p := terrain.NewProduct(terrain.KindClassPolygons, dst, params.AsParams())
	p.Vector = fc
	return persist(p)
}

// persist writes a vector product bound for a file and records the path as
// its Ref. The layer stays in memory as well.
func persist(p *terrain.Product) (*terrain.Product, error) {
	if p.Destination.Mode != terrain.File {
		return p, nil
	}
	if p.Vector == nil {
		return nil, fmt.Errorf("%w: %s", ErrRasterFile, p.Destination.Path)
	}
	if err := vector.Write(p.Destination.Path, p.Vector); err != nil {
		return nil, fmt.Errorf("memraster: %w", err)
	}
	p.Ref = p.Destination.Path
	return p, nil
}

type region struct {
	value int32
	cells []int
}

func regions(g *terrain.Grid, conn terrain.Connectivity) []region {
	offsets := [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	if conn == terrain.EightConnected {
		offsets = append(offsets, [2]int{1, 1}, [2]int{1, -1}, [2]int{-1, 1}, [2]int{-1, -1})
	}

	label := func(i int) (int32, bool) {
		if g.IsNoData(g.Values[i]) {
			return 0, false
		}
		v := truncate(g.Values[i])
		return v, v != 0
	}

	seen := make([]bool, len(g.Values))
	var out []region
	for i := range g.Values {
		if seen[i] {
			continue
		}
		v, ok := label(i)
		if !ok {
			continue
		}
		r := region{value: v}
		stack := []int{i}
		seen[i] = true
		for len(stack) > 0 {
			c := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			r.cells = append(r.cells, c)
			cx, cy := c%g.Width, c/g.Width
			for _, o := range offsets {
				nx, ny := cx+o[0], cy+o[1]
				if !g.In(nx, ny) {
					continue
				}
				n := ny*g.Width + nx
				if seen[n] {
					continue
				}
				if nv, ok := label(n); ok && nv == v {
					seen[n] = true
					stack = append(stack, n)
				}
			}
		}
		slices.Sort(r.cells)
		out = append(out, r)
	}
	return out
}

func truncate(v float64) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

func errBand(band int) error {
	return fmt.Errorf("memraster: grid has 1 band, asked for %d", band)
}

func grid(p *terrain.Product) (*terrain.Grid, error) {
	if p == nil || p.Raster == nil {
		return nil, ErrNotInMemory
	}
	return p.Raster, nil
}
