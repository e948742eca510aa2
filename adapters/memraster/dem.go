package memraster

import (
	"context"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"trailkit/internal/terrain"
)

// flatAspect is written for cells without a gradient unless ZeroFlat is set.
const flatAspect = -9999.0

// Contour traces iso-lines through cell centres with marching squares. Each
// level that crosses the grid becomes one MultiLineString feature whose
// field holds the level. Levels are integer multiples of the interval.
func (Engine) Contour(_ context.Context, src *terrain.Source, p terrain.ContourParams, dst terrain.Destination) (*terrain.Product, error) {
	g, err := source(src, p.Band)
	if err != nil {
		return nil, err
	}
	field := p.Field
	if field == "" {
		field = "ELEV"
	}
	fc := geojson.NewFeatureCollection()
	if lo, hi, ok := g.Range(); ok && p.Interval > 0 {
		for k := math.Ceil(lo / p.Interval); k*p.Interval <= hi; k++ {
			level := k * p.Interval
			lines := isolines(g, level)
			if len(lines) == 0 {
				continue
			}
			f := geojson.NewFeature(lines)
			f.Properties[field] = level
			fc.Append(f)
		}
	}
	out := terrain.NewProduct(terrain.ContourKind(p.Interval), dst, p.AsParams())
	out.Vector = fc
	return persist(out)
}

// Slope is the Horn gradient in percent, scaled by the z factor. Edge cells
// reuse their nearest neighbours.
func (Engine) Slope(_ context.Context, src *terrain.Source, p terrain.SlopeParams, dst terrain.Destination) (*terrain.Product, error) {
	g, err := source(src, 1)
	if err != nil {
		return nil, err
	}
	z := zFactor(p.ZFactor)
	out := derive(g, func(dx, dy float64) float64 {
		return 100 * z * math.Hypot(dx, dy)
	})
	return derived(terrain.KindSlope, dst, p.AsParams(), out)
}

// Hillshade returns illumination in 0..255. The multidirectional variant
// blends lights at 225, 270, 315 and 360 degrees, weighting each by how
// squarely the slope faces it.
func (Engine) Hillshade(_ context.Context, src *terrain.Source, p terrain.HillshadeParams, dst terrain.Destination) (*terrain.Product, error) {
	g, err := source(src, 1)
	if err != nil {
		return nil, err
	}
	z := zFactor(p.ZFactor)
	scale := p.Scale
	if scale == 0 {
		scale = 1
	}
	zenith := (90 - p.Altitude) * math.Pi / 180
	out := derive(g, func(dx, dy float64) float64 {
		slope := math.Atan(z * math.Hypot(dx, dy) / scale)
		aspect := math.Atan2(dy, -dx)
		if !p.Multidirectional {
			return shade(zenith, slope, aspect, p.Azimuth)
		}
		var sum, weights float64
		for _, az := range []float64{225, 270, 315, 360} {
			w := 0.5 * (1 - math.Cos(aspect-lightAngle(az)))
			sum += w * shade(zenith, slope, aspect, az)
			weights += w
		}
		if weights == 0 {
			return shade(zenith, slope, aspect, 315)
		}
		return sum / weights
	})
	return derived(terrain.KindHillshade, dst, p.AsParams(), out)
}

// Aspect is the downslope direction in degrees, clockwise from north, or
// counter-clockwise from east with TrigAngle. Flat cells are nodata, or 0
// with ZeroFlat.
func (Engine) Aspect(_ context.Context, src *terrain.Source, p terrain.AspectParams, dst terrain.Destination) (*terrain.Product, error) {
	g, err := source(src, 1)
	if err != nil {
		return nil, err
	}
	out := derive(g, func(dx, dy float64) float64 {
		if dx == 0 && dy == 0 {
			if p.ZeroFlat {
				return 0
			}
			return flatAspect
		}
		a := math.Atan2(dy, -dx) * 180 / math.Pi
		var compass float64
		switch {
		case a < 0:
			compass = 90 - a
		case a > 90:
			compass = 360 - a + 90
		default:
			compass = 90 - a
		}
		if p.TrigAngle {
			return math.Mod(450-compass, 360)
		}
		return math.Mod(compass, 360)
	})
	if !p.ZeroFlat {
		nd := flatAspect
		out.NoData = &nd
	}
	return derived(terrain.KindAspect, dst, p.AsParams(), out)
}

// Relief is a single-band stand-in for colour relief: each cell holds its
// position on the ramp between the grid minimum and maximum, 0 to 255.
// ZFactor is recorded but not applied, as with gdaldem color-relief.
func (Engine) Relief(_ context.Context, src *terrain.Source, p terrain.ReliefParams, dst terrain.Destination) (*terrain.Product, error) {
	g, err := source(src, 1)
	if err != nil {
		return nil, err
	}
	out := g.Clone()
	lo, hi, ok := g.Range()
	for i, v := range g.Values {
		switch {
		case g.IsNoData(v):
		case !ok || hi == lo:
			out.Values[i] = 0
		default:
			out.Values[i] = math.Round(255 * (v - lo) / (hi - lo))
		}
	}
	return derived(terrain.KindRelief, dst, p.AsParams(), out)
}

// Ruggedness is Riley's terrain ruggedness index: the root of the summed
// squared differences to the eight neighbours, scaled by the z factor.
func (Engine) Ruggedness(_ context.Context, src *terrain.Source, p terrain.RuggednessParams, dst terrain.Destination) (*terrain.Product, error) {
	g, err := source(src, 1)
	if err != nil {
		return nil, err
	}
	z := zFactor(p.ZFactor)
	out := neighbourhood(g, func(w [9]float64) float64 {
		var sum float64
		for i, v := range w {
			if i == 4 {
				continue
			}
			d := v - w[4]
			sum += d * d
		}
		return z * math.Sqrt(sum)
	})
	return derived(terrain.KindRuggedness, dst, p.AsParams(), out)
}

func source(src *terrain.Source, band int) (*terrain.Grid, error) {
	if src == nil || src.Grid == nil {
		return nil, ErrNotInMemory
	}
	if band > 1 {
		return nil, errBand(band)
	}
	return src.Grid, nil
}

func derived(k terrain.Kind, dst terrain.Destination, params terrain.Params, g *terrain.Grid) (*terrain.Product, error) {
	p := terrain.NewProduct(k, dst, params)
	p.Raster = g
	return persist(p)
}

func zFactor(z float64) float64 {
	if z == 0 {
		return 1
	}
	return z
}

// derive applies fn to the Horn gradient of every cell. dx grows eastward
// and dy grows southward, both in elevation units per ground unit.
func derive(g *terrain.Grid, fn func(dx, dy float64) float64) *terrain.Grid {
	ew, ns := cellSize(g)
	return neighbourhood(g, func(w [9]float64) float64 {
		a, b, c := w[0], w[1], w[2]
		d, f := w[3], w[5]
		gg, h, i := w[6], w[7], w[8]
		dx := ((c + 2*f + i) - (a + 2*d + gg)) / (8 * ew)
		dy := ((gg + 2*h + i) - (a + 2*b + c)) / (8 * ns)
		return fn(dx, dy)
	})
}

// neighbourhood evaluates fn over each 3x3 window. Out-of-grid and nodata
// neighbours take the centre value; nodata centres stay nodata.
func neighbourhood(g *terrain.Grid, fn func(w [9]float64) float64) *terrain.Grid {
	out := g.Clone()
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			centre := g.At(x, y)
			if g.IsNoData(centre) {
				continue
			}
			var w [9]float64
			for j := -1; j <= 1; j++ {
				for i := -1; i <= 1; i++ {
					v := centre
					if g.In(x+i, y+j) && !g.IsNoData(g.At(x+i, y+j)) {
						v = g.At(x+i, y+j)
					}
					w[(j+1)*3+(i+1)] = v
				}
			}
			out.Set(x, y, fn(w))
		}
	}
	return out
}

func cellSize(g *terrain.Grid) (ew, ns float64) {
	gt := g.GeoTransform
	if gt.IsZero() {
		gt = terrain.PixelSpace
	}
	ew, ns = math.Hypot(gt[1], gt[4]), math.Hypot(gt[2], gt[5])
	if ew == 0 {
		ew = 1
	}
	if ns == 0 {
		ns = 1
	}
	return ew, ns
}

func lightAngle(azimuth float64) float64 {
	return math.Mod(360-azimuth+90, 360) * math.Pi / 180
}

func shade(zenith, slope, aspect, azimuth float64) float64 {
	v := 255 * (math.Cos(zenith)*math.Cos(slope) + math.Sin(zenith)*math.Sin(slope)*math.Cos(lightAngle(azimuth)-aspect))
	return math.Max(0, v)
}

// isolines runs marching squares over the dual grid of cell centres.
func isolines(g *terrain.Grid, level float64) orb.MultiLineString {
	var out orb.MultiLineString
	centre := func(x, y float64) orb.Point { return g.GeoTransform.Apply(x+0.5, y+0.5) }
	for y := 0; y+1 < g.Height; y++ {
		for x := 0; x+1 < g.Width; x++ {
			tl, tr := g.At(x, y), g.At(x+1, y)
			bl, br := g.At(x, y+1), g.At(x+1, y+1)
			if g.IsNoData(tl) || g.IsNoData(tr) || g.IsNoData(bl) || g.IsNoData(br) {
				continue
			}
			idx := 0
			for bit, v := range []float64{tl, tr, br, bl} {
				if v >= level {
					idx |= 1 << bit
				}
			}
			if idx == 0 || idx == 15 {
				continue
			}
			fx, fy := float64(x), float64(y)
			top := centre(fx+frac(tl, tr, level), fy)
			right := centre(fx+1, fy+frac(tr, br, level))
			bottom := centre(fx+frac(bl, br, level), fy+1)
			left := centre(fx, fy+frac(tl, bl, level))

			seg := func(a, b orb.Point) { out = append(out, orb.LineString{a, b}) }
			switch idx {
			case 1, 14:
				seg(left, top)
			case 2, 13:
				seg(top, right)
			case 3, 12:
				seg(left, right)
			case 4, 11:
				seg(right, bottom)
			case 6, 9:
				seg(top, bottom)
			case 7, 8:
				seg(left, bottom)
			case 5, 10:
				// saddle: the centre average decides which corners connect
				high := (tl+tr+bl+br)/4 >= level
				if (idx == 5) == high {
					seg(left, bottom)
					seg(top, right)
				} else {
					seg(left, top)
					seg(right, bottom)
				}
			}
		}
	}
	return out
}

func frac(a, b, level float64) float64 {
	if a == b {
		return 0.5
	}
	return (level - a) / (b - a)
}
