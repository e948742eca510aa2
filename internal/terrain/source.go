package terrain

import (
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// SRIDWGS84 is the EPSG code of geographic WGS84 coordinates.
const SRIDWGS84 = 4326

// Source is the input DEM. It is never modified while a pipeline runs.
type Source struct {
	Name         string
	Path         string
	Bands        int
	Width        int
	Height       int
	GeoTransform GeoTransform
	SRID         int

	// Grid holds the first band when the source lives in memory.
	Grid *Grid
}

// SourceFromGrid wraps an in-memory grid as a single-band source.
func SourceFromGrid(name string, g *Grid) *Source {
	return &Source{
		Name:         name,
		Bands:        1,
		Width:        g.Width,
		Height:       g.Height,
		GeoTransform: g.GeoTransform,
		Grid:         g,
	}
}

// Validate checks that s is present and has at least one readable band.
func (s *Source) Validate() error {
	if s == nil {
		return &PreconditionError{Reason: "no raster supplied"}
	}
	if s.Bands < 1 {
		return &PreconditionError{Reason: "raster has no readable band"}
	}
	if s.Grid != nil && len(s.Grid.Values) == 0 {
		return &PreconditionError{Reason: "raster has no cells"}
	}
	if s.Grid == nil && s.Path == "" {
		return &PreconditionError{Reason: "raster has neither a path nor in-memory data"}
	}
	return nil
}

// Label returns a human-readable identifier for logs.
func (s *Source) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Path
}

// Bounds returns the georeferenced extent of the raster.
func (s *Source) Bounds() orb.Bound {
	w, h := float64(s.Width), float64(s.Height)
	b := orb.Bound{Min: s.GeoTransform.Apply(0, 0), Max: s.GeoTransform.Apply(0, 0)}
	for _, p := range []orb.Point{
		s.GeoTransform.Apply(w, 0),
		s.GeoTransform.Apply(0, h),
		s.GeoTransform.Apply(w, h),
	} {
		b = b.Extend(p)
	}
	return b
}

// Coverage returns the S2 cell tokens covering the raster extent. Only
// geographic sources have a coverage; projected sources return nil.
func (s *Source) Coverage(maxCells int) []string {
	if s.SRID != SRIDWGS84 || s.Width == 0 || s.Height == 0 {
		return nil
	}
	b := s.Bounds()
	rect := s2.RectFromLatLng(s2.LatLngFromDegrees(b.Min.Y(), b.Min.X()))
	rect = rect.AddPoint(s2.LatLngFromDegrees(b.Max.Y(), b.Max.X()))

	rc := &s2.RegionCoverer{MaxLevel: 16, LevelMod: 1, MaxCells: maxCells}
	var tokens []string
	for _, id := range rc.Covering(rect) {
		tokens = append(tokens, id.ToToken())
	}
	return tokens
}
