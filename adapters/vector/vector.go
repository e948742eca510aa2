// Package vector reads and writes the vector layers produced by contour and
// classification stages.
package vector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"

	"trailkit/internal/terrain"
)

// ErrUnsupportedFormat is returned for format names this package does not know.
var ErrUnsupportedFormat = errors.New("vector: unsupported layer format")

// Format identifies an on-disk vector encoding.
type Format string

const (
	GeoJSON    Format = "GeoJSON"
	Shapefile  Format = "ESRI Shapefile"
	GeoPackage Format = "GPKG"
)

// FormatOf maps a file extension to its format. Unknown extensions are GeoJSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return Shapefile
	case ".gpkg":
		return GeoPackage
	default:
		return GeoJSON
	}
}

// Extension is the file suffix for f, including the dot.
func (f Format) Extension() string {
	switch f {
	case Shapefile:
		return ".shp"
	case GeoPackage:
		return ".gpkg"
	default:
		return ".geojson"
	}
}

// ParseFormat accepts the --vector-format flag values.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "geojson", "json":
		return GeoJSON, nil
	case "shp", "shapefile":
		return Shapefile, nil
	case "gpkg", "geopackage":
		return GeoPackage, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Read returns the features of a vector product, decoding its file when the
// layer is not held in memory.
func Read(p *terrain.Product) (*geojson.FeatureCollection, error) {
	if p == nil {
		return nil, errors.New("vector: nil product")
	}
	if p.Vector != nil {
		return p.Vector, nil
	}
	if p.Ref == "" {
		return nil, fmt.Errorf("vector: %s has no data", p.Kind)
	}
	return ReadFile(p.Ref)
}

// ReadFile decodes a GeoJSON, Shapefile or GeoPackage layer.
func ReadFile(path string) (*geojson.FeatureCollection, error) {
	switch FormatOf(path) {
	case Shapefile:
		return ReadShapefile(path)
	case GeoPackage:
		return ReadGeoPackage(path)
	case GeoJSON:
		return ReadGeoJSON(path)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// ReadGeoJSON decodes a FeatureCollection file.
func ReadGeoJSON(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return fc, nil
}

// WriteGeoJSON encodes fc to path, creating parent directories.
func WriteGeoJSON(path string, fc *geojson.FeatureCollection) error {
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Remove deletes the layer at path, including the sidecar files of a
// shapefile. A missing layer is not an error.
func Remove(path string) error {
	files := []string{path}
	if FormatOf(path) == Shapefile {
		base := strings.TrimSuffix(path, filepath.Ext(path))
		for _, ext := range []string{".shx", ".dbf", ".prj", ".cpg"} {
			files = append(files, base+ext)
		}
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Write encodes fc in the format implied by path.
func Write(path string, fc *geojson.FeatureCollection) error {
	switch FormatOf(path) {
	case Shapefile:
		return WriteShapefile(path, fc)
	case GeoPackage:
		return WriteGeoPackage(path, fc)
	case GeoJSON:
		return WriteGeoJSON(path, fc)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}
