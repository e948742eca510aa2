package sink

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ColumnType is the storage class of an attribute column.
type ColumnType int

const (
	Integer ColumnType = iota
	Real
	Text
)

// Column is one attribute column of an imported table.
type Column struct {
	// Property is the feature property the column reads.
	Property string
	// Name is the column name after the naming policy.
	Name string
	Type ColumnType
	// Size is the longest rendered value, used for varchar widths.
	Size int
}

// Columns infers the attribute columns of a layer, ordered by name. A column
// is numeric only when all of its non-nil values are numbers, and integral
// only when those numbers have no fraction. Columns that collide with the
// key or geometry column are dropped.
func (p Policy) Columns(fc *geojson.FeatureCollection) []Column {
	byName := map[string]*Column{}
	for _, f := range fc.Features {
		for k, v := range f.Properties {
			if v == nil {
				continue
			}
			name := p.Column(k)
			if name == p.Column(p.keyColumn()) || name == p.Column(p.GeometryColumn) {
				continue
			}
			c, ok := byName[name]
			if !ok {
				c = &Column{Property: k, Name: name, Type: Integer}
				byName[name] = c
			}
			switch n, isNum := Number(v); {
			case !isNum:
				c.Type = Text
			case c.Type == Integer && n != math.Trunc(n):
				c.Type = Real
			}
			c.Size = max(c.Size, len(fmt.Sprint(v)))
		}
	}
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Column, len(names))
	for i, n := range names {
		out[i] = *byName[n]
	}
	return out
}

// Value converts a property to the column's storage type. Missing values
// are nil.
func (c Column) Value(props geojson.Properties) any {
	v, ok := props[c.Property]
	if !ok || v == nil {
		return nil
	}
	switch c.Type {
	case Integer:
		n, _ := Number(v)
		return int64(n)
	case Real:
		n, _ := Number(v)
		return n
	default:
		return fmt.Sprint(v)
	}
}

// Parts returns the geometries to store for one feature: the geometry
// itself, or its members when ForceSinglepart is set.
func (p Policy) Parts(g orb.Geometry) []orb.Geometry {
	if !p.ForceSinglepart {
		return []orb.Geometry{g}
	}
	var out []orb.Geometry
	switch t := g.(type) {
	case orb.MultiPolygon:
		for _, poly := range t {
			out = append(out, poly)
		}
	case orb.MultiLineString:
		for _, ls := range t {
			out = append(out, ls)
		}
	case orb.MultiPoint:
		for _, pt := range t {
			out = append(out, pt)
		}
	default:
		out = append(out, g)
	}
	return out
}

// KeyColumn is the primary key column, "id" for a surrogate key.
func (p Policy) KeyColumn() string {
	return p.Column(p.keyColumn())
}

// Surrogate reports whether the importer must generate the key.
func (p Policy) Surrogate() bool { return p.PrimaryKey == "" }

func (p Policy) keyColumn() string {
	if p.PrimaryKey == "" {
		return "id"
	}
	return p.PrimaryKey
}

// Number reports the numeric value of v for the numeric types features carry.
func Number(v any) (float64, bool) {
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
	case uint8:
		return float64(t), true
	}
	return 0, false
}
