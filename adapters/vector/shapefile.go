package vector

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// dbf field names are limited to 10 bytes.
const maxFieldName = 10

// WriteShapefile writes fc as a polyline, polygon or point shapefile with a
// DBF column per property. Every feature must share one geometry family.
func WriteShapefile(path string, fc *geojson.FeatureCollection) error {
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	kind, err := shapeType(fc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	w, err := shp.Create(path, kind)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	cols := columns(fc, maxFieldName)
	fields := make([]shp.Field, len(cols))
	for i, c := range cols {
		fields[i] = c.field()
	}
	if err := w.SetFields(fields); err != nil {
		w.Close()
		return fmt.Errorf("dbf fields: %w", err)
	}

	for _, f := range fc.Features {
		row := int(w.Write(toShape(kind, f.Geometry)))
		for i, c := range cols {
			v, ok := c.value(f.Properties[c.key])
			if !ok {
				continue
			}
			if err := w.WriteAttribute(row, i, v); err != nil {
				w.Close()
				return fmt.Errorf("row %d field %s: %w", row, c.name, err)
			}
		}
	}
	w.Close()

	// go-shp v0.1.1 names the table "<base>dbf"
	base := strings.TrimSuffix(path, filepath.Ext(path))
	if _, err := os.Stat(base + "dbf"); err == nil {
		return os.Rename(base+"dbf", base+".dbf")
	}
	return nil
}

// ReadShapefile decodes a shapefile into features. Numeric DBF fields become
// float64 properties and blank ones become null; character fields stay
// strings.
func ReadShapefile(path string) (*geojson.FeatureCollection, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	fields := r.Fields()
	fc := geojson.NewFeatureCollection()
	for r.Next() {
		n, s := r.Shape()
		f := geojson.NewFeature(fromShape(s))
		for i, fld := range fields {
			v, err := attribute(fld, r.ReadAttribute(n, i))
			if err != nil {
				return nil, fmt.Errorf("read %s: record %d: %w", path, n, err)
			}
			f.Properties[fld.String()] = v
		}
		fc.Append(f)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return fc, nil
}

// attribute decodes one DBF value. go-shp pads values with NUL bytes as well
// as spaces.
func attribute(fld shp.Field, raw string) (any, error) {
	v := strings.Trim(raw, " \x00")
	if fld.Fieldtype != 'N' && fld.Fieldtype != 'F' {
		return v, nil
	}
	if v == "" {
		return nil, nil
	}
	num, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("field %s: %q is not numeric", fld.String(), v)
	}
	return num, nil
}

func shapeType(fc *geojson.FeatureCollection) (shp.ShapeType, error) {
	if len(fc.Features) == 0 {
		return shp.POLYGON, nil
	}
	var kind shp.ShapeType
	for i, f := range fc.Features {
		var k shp.ShapeType
		switch f.Geometry.(type) {
		case orb.LineString, orb.MultiLineString:
			k = shp.POLYLINE
		case orb.Polygon, orb.MultiPolygon:
			k = shp.POLYGON
		case orb.Point:
			k = shp.POINT
		default:
			return 0, fmt.Errorf("feature %d: geometry %T has no shapefile equivalent", i, f.Geometry)
		}
		if i > 0 && k != kind {
			return 0, fmt.Errorf("feature %d: mixed geometry types", i)
		}
		kind = k
	}
	return kind, nil
}

func toShape(kind shp.ShapeType, g orb.Geometry) shp.Shape {
	switch kind {
	case shp.POINT:
		p := g.(orb.Point)
		return &shp.Point{X: p.X(), Y: p.Y()}
	case shp.POLYLINE:
		var parts [][]shp.Point
		switch t := g.(type) {
		case orb.LineString:
			parts = append(parts, points(t))
		case orb.MultiLineString:
			for _, ls := range t {
				parts = append(parts, points(ls))
			}
		}
		return shp.NewPolyLine(parts)
	default:
		var parts [][]shp.Point
		add := func(poly orb.Polygon) {
			for i, ring := range poly {
				// outer rings clockwise, holes counter-clockwise
				want := orb.CW
				if i > 0 {
					want = orb.CCW
				}
				r := append(orb.Ring(nil), ring...)
				if r.Orientation() != want {
					r.Reverse()
				}
				parts = append(parts, points(r))
			}
		}
		switch t := g.(type) {
		case orb.Polygon:
			add(t)
		case orb.MultiPolygon:
			for _, poly := range t {
				add(poly)
			}
		}
		pg := shp.Polygon(*shp.NewPolyLine(parts))
		return &pg
	}
}

func fromShape(s shp.Shape) orb.Geometry {
	switch t := s.(type) {
	case *shp.Point:
		return orb.Point{t.X, t.Y}
	case *shp.PolyLine:
		mls := make(orb.MultiLineString, 0, len(t.Parts))
		for _, part := range split(t.Parts, t.Points) {
			mls = append(mls, orb.LineString(part))
		}
		if len(mls) == 1 {
			return mls[0]
		}
		return mls
	case *shp.Polygon:
		var mp orb.MultiPolygon
		for _, part := range split(t.Parts, t.Points) {
			ring := orb.Ring(part)
			if ring.Orientation() == orb.CCW && len(mp) > 0 {
				mp[len(mp)-1] = append(mp[len(mp)-1], ring)
				continue
			}
			mp = append(mp, orb.Polygon{ring})
		}
		return mp
	}
	return nil
}

func split(parts []int32, pts []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(pts))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		seg := make([]orb.Point, 0, end-start)
		for _, p := range pts[start:end] {
			seg = append(seg, orb.Point{p.X, p.Y})
		}
		out = append(out, seg)
	}
	return out
}

func points[T ~[]orb.Point](ls T) []shp.Point {
	out := make([]shp.Point, len(ls))
	for i, p := range ls {
		out[i] = shp.Point{X: p.X(), Y: p.Y()}
	}
	return out
}

type column struct {
	key     string
	name    string
	numeric bool
	integer bool
	size    int
}

func (c column) field() shp.Field {
	switch {
	case c.integer:
		return shp.NumberField(c.name, 18)
	case c.numeric:
		return shp.FloatField(c.name, 24, 6)
	default:
		return shp.StringField(c.name, uint8(min(max(c.size, 1), 254)))
	}
}

func (c column) value(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	if c.numeric {
		f, ok := number(v)
		if !ok {
			return nil, false
		}
		if c.integer {
			return int(f), true
		}
		return f, true
	}
	s := fmt.Sprint(v)
	if len(s) > 254 {
		s = s[:254]
	}
	return s, true
}

// columns derives one column per property name, sorted. Names longer than
// maxName are truncated when maxName > 0. A column is numeric only when
// every non-nil value is a number.
func columns(fc *geojson.FeatureCollection, maxName int) []column {
	byName := map[string]*column{}
	for _, f := range fc.Features {
		for k, v := range f.Properties {
			if v == nil {
				continue
			}
			name := k
			if maxName > 0 && len(name) > maxName {
				name = name[:maxName]
			}
			c, ok := byName[name]
			if !ok {
				c = &column{key: k, name: name, numeric: true, integer: true}
				byName[name] = c
			}
			n, isNum := number(v)
			if !isNum {
				c.numeric, c.integer = false, false
			} else if n != math.Trunc(n) {
				c.integer = false
			}
			c.size = max(c.size, len(fmt.Sprint(v)))
		}
	}
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]column, len(names))
	for i, n := range names {
		out[i] = *byName[n]
	}
	return out
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}
