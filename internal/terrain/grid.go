package terrain

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// GeoTransform maps pixel/line coordinates to georeferenced coordinates using
// the GDAL affine convention:
//
//	X = gt[0] + col*gt[1] + row*gt[2]
//	Y = gt[3] + col*gt[4] + row*gt[5]
type GeoTransform [6]float64

// PixelSpace is the identity transform used when a raster carries no georeference.
var PixelSpace = GeoTransform{0, 1, 0, 0, 0, 1}

// IsZero reports whether no transform has been set.
func (gt GeoTransform) IsZero() bool { return gt == GeoTransform{} }

// Apply converts a pixel/line position into georeferenced coordinates.
func (gt GeoTransform) Apply(col, row float64) orb.Point {
	if gt.IsZero() {
		gt = PixelSpace
	}
	return orb.Point{
		gt[0] + col*gt[1] + row*gt[2],
		gt[3] + col*gt[4] + row*gt[5],
	}
}

// Grid is a single-band raster held in memory, stored row-major.
type Grid struct {
	Width        int
	Height       int
	Values       []float64
	NoData       *float64
	GeoTransform GeoTransform
}

// NewGrid allocates a zero-filled grid.
func NewGrid(width, height int) *Grid {
	return &Grid{
		Width:  width,
		Height: height,
		Values: make([]float64, width*height),
	}
}

// GridFromRows builds a grid from a slice of equal-length rows.
func GridFromRows(rows [][]float64) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("grid: no cells")
	}
	g := NewGrid(len(rows[0]), len(rows))
	for y, row := range rows {
		if len(row) != g.Width {
			return nil, fmt.Errorf("grid: row %d has %d cells, want %d", y, len(row), g.Width)
		}
		copy(g.Values[y*g.Width:], row)
	}
	return g, nil
}

// At returns the value at column x, row y.
func (g *Grid) At(x, y int) float64 { return g.Values[y*g.Width+x] }

// Set stores v at column x, row y.
func (g *Grid) Set(x, y int, v float64) { g.Values[y*g.Width+x] = v }

// In reports whether (x, y) lies inside the grid.
func (g *Grid) In(x, y int) bool { return x >= 0 && y >= 0 && x < g.Width && y < g.Height }

// IsNoData reports whether v is the grid's nodata sentinel or NaN.
func (g *Grid) IsNoData(v float64) bool {
	if math.IsNaN(v) {
		return true
	}
	return g.NoData != nil && v == *g.NoData
}

// Clone returns a deep copy with the same georeference.
func (g *Grid) Clone() *Grid {
	c := &Grid{
		Width:        g.Width,
		Height:       g.Height,
		Values:       append([]float64(nil), g.Values...),
		GeoTransform: g.GeoTransform,
	}
	if g.NoData != nil {
		nd := *g.NoData
		c.NoData = &nd
	}
	return c
}

// Range returns the minimum and maximum valid values. ok is false when every
// cell is nodata.
func (g *Grid) Range() (lo, hi float64, ok bool) {
	for _, v := range g.Values {
		if g.IsNoData(v) {
			continue
		}
		if !ok {
			lo, hi, ok = v, v, true
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi, ok
}

// CellRing returns the closed outline of cell (x, y) in georeferenced space.
func (g *Grid) CellRing(x, y int) orb.Ring {
	fx, fy := float64(x), float64(y)
	return orb.Ring{
		g.GeoTransform.Apply(fx, fy),
		g.GeoTransform.Apply(fx+1, fy),
		g.GeoTransform.Apply(fx+1, fy+1),
		g.GeoTransform.Apply(fx, fy+1),
		g.GeoTransform.Apply(fx, fy),
	}
}
