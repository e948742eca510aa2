// Package terrain holds the domain model shared by the trail-layer pipeline:
// raster sources, derivative products, destinations, classification bands,
// stage parameters, and the error taxonomy.
package terrain

import (
	"fmt"
	"strings"
)

// Kind identifies the derivative a stage produces.
type Kind string

const (
	KindContour10m    Kind = "contour-10m"
	KindContour5m     Kind = "contour-5m"
	KindContour2m     Kind = "contour-2m"
	KindSlope         Kind = "slope"
	KindHillshade     Kind = "hillshade"
	KindAspect        Kind = "aspect"
	KindRelief        Kind = "relief"
	KindRuggedness    Kind = "ruggedness"
	KindClassPolygons Kind = "classification-polygon"

	// Intermediate kinds. They never appear in a result mapping.
	KindIndicator  Kind = "threshold-indicator"
	KindSinkImport Kind = "sink-import"
)

// Geometry is the storage model of a product.
type Geometry int

const (
	Raster Geometry = iota
	Vector
)

func (g Geometry) String() string {
	if g == Vector {
		return "vector"
	}
	return "raster"
}

// Geometry reports whether products of kind k are rasters or vector layers.
func (k Kind) Geometry() Geometry {
	if k == KindClassPolygons || strings.HasPrefix(string(k), "contour-") {
		return Vector
	}
	return Raster
}

// ContourKind names the contour stage for an interval in metres.
func ContourKind(interval float64) Kind {
	return Kind(fmt.Sprintf("contour-%sm", formatNumber(interval)))
}

// ContourKey names the contour output for an interval in metres.
func ContourKey(interval float64) Key {
	return Key(fmt.Sprintf("CONTOURS_%sM", formatNumber(interval)))
}

// Key is a symbolic name in the pipeline result mapping.
type Key string

const (
	KeyContours10m Key = "CONTOURS_10M"
	KeyContours5m  Key = "CONTOURS_5M"
	KeyContours2m  Key = "CONTOURS_2M"
	KeyHillshade   Key = "HILLSHADE"
	KeyAspect      Key = "ASPECT"
	KeyRelief      Key = "RELIEF"
	KeyRuggedness  Key = "RUGGEDNESS"
	KeySlope       Key = "SLOPE"
)

// AttributeKeys lists the terrain-attribute outputs in declaration order.
var AttributeKeys = []Key{KeyHillshade, KeyAspect, KeyRelief, KeyRuggedness, KeySlope}
