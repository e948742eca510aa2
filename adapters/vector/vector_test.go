package vector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailkit/internal/terrain"
)

func contourLayer() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, elev := range []float64{100, 110} {
		f := geojson.NewFeature(orb.LineString{{0, float64(i)}, {5, float64(i)}, {9, float64(i) + 0.5}})
		f.Properties["ELEV"] = elev
		f.Properties["ID"] = i
		fc.Append(f)
	}
	return fc
}

func cellLayer() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.MultiPolygon{
		{{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}},
		{{{1, 0}, {1, 1}, {2, 1}, {2, 0}, {1, 0}}},
	})
	f.Properties["DN"] = int32(22)
	f.Properties["band_name"] = "Black Diamond"
	fc.Append(f)
	return fc
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, Shapefile, FormatOf("out/10m.SHP"))
	assert.Equal(t, GeoPackage, FormatOf("trails.gpkg"))
	assert.Equal(t, GeoJSON, FormatOf("bd.geojson"))
	assert.Equal(t, GeoJSON, FormatOf("noext"))
	assert.Equal(t, ".shp", Shapefile.Extension())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("shp")
	require.NoError(t, err)
	assert.Equal(t, Shapefile, f)

	_, err = ParseFormat("kml")
	assert.Error(t, err)
}

func TestGeoJSON_WriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "contours.geojson")
	require.NoError(t, WriteGeoJSON(path, contourLayer()))

	fc, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, 110.0, fc.Features[1].Properties["ELEV"])
	assert.Equal(t, orb.LineString{{0, 1}, {5, 1}, {9, 1.5}}, fc.Features[1].Geometry)
}

func TestShapefile_Polylines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "10m_contours.shp")
	require.NoError(t, WriteShapefile(path, contourLayer()))

	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		_, err := os.Stat(filepath.Join(filepath.Dir(path), "10m_contours"+ext))
		assert.NoError(t, err, "missing %s", ext)
	}

	fc, err := ReadShapefile(path)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, orb.LineString{{0, 0}, {5, 0}, {9, 0.5}}, fc.Features[0].Geometry)
	assert.Equal(t, 100.0, fc.Features[0].Properties["ELEV"])
	assert.Equal(t, 1.0, fc.Features[1].Properties["ID"])
}

func TestShapefile_PolygonCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "black_diamond.shp")
	require.NoError(t, Write(path, cellLayer()))

	fc, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)

	mp, ok := fc.Features[0].Geometry.(orb.MultiPolygon)
	require.True(t, ok, "got %T", fc.Features[0].Geometry)
	assert.Len(t, mp, 2)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{2, 1}}, mp.Bound())
	assert.Equal(t, 22.0, fc.Features[0].Properties["DN"])
	assert.Equal(t, "Black Diamond", fc.Features[0].Properties["band_name"])
}

func TestAttribute_StripsDBFPadding(t *testing.T) {
	dn := shp.NumberField("DN", 18)
	v, err := attribute(dn, "22\x00\x00\x00\x00")
	require.NoError(t, err)
	assert.Equal(t, 22.0, v)

	v, err = attribute(shp.FloatField("ELEV", 24, 6), "   110.500000")
	require.NoError(t, err)
	assert.Equal(t, 110.5, v)

	v, err = attribute(dn, "\x00\x00\x00")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = attribute(shp.StringField("band_name", 16), "Black Diamond\x00\x00")
	require.NoError(t, err)
	assert.Equal(t, "Black Diamond", v)

	_, err = attribute(dn, "abc")
	assert.ErrorContains(t, err, "field DN")
}

func TestRemove_ShapefileSidecars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "10m_contours.shp")
	require.NoError(t, WriteShapefile(path, contourLayer()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10m_contours.prj"), []byte("PROJCS"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.dbf"), nil, 0o644))

	require.NoError(t, Remove(path))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "other.dbf", entries[0].Name())

	assert.NoError(t, Remove(path), "removing a missing layer")
}

func TestShapefile_EmptyLayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.shp")
	require.NoError(t, WriteShapefile(path, geojson.NewFeatureCollection()))

	fc, err := ReadShapefile(path)
	require.NoError(t, err)
	assert.Empty(t, fc.Features)
}

func TestShapefile_RejectsMixedGeometry(t *testing.T) {
	fc := contourLayer()
	fc.Append(geojson.NewFeature(orb.Point{1, 1}))
	err := WriteShapefile(filepath.Join(t.TempDir(), "mixed.shp"), fc)
	assert.ErrorContains(t, err, "mixed geometry")
}

func TestRead_Product(t *testing.T) {
	mem := terrain.NewProduct(terrain.KindContour10m, terrain.MemoryDestination(), nil)
	mem.Vector = contourLayer()
	fc, err := Read(mem)
	require.NoError(t, err)
	assert.Same(t, mem.Vector, fc)

	path := filepath.Join(t.TempDir(), "c.geojson")
	require.NoError(t, WriteGeoJSON(path, contourLayer()))
	onDisk := terrain.NewProduct(terrain.KindContour10m, terrain.FileDestination(path), nil)
	onDisk.Ref = path
	fc, err = Read(onDisk)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)

	missing := filepath.Join(t.TempDir(), "x.gpkg")
	gpkg := terrain.NewProduct(terrain.KindContour10m, terrain.FileDestination(missing), nil)
	gpkg.Ref = missing
	_, err = Read(gpkg)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Read(terrain.NewProduct(terrain.KindContour10m, terrain.TemporaryDestination(), nil))
	assert.Error(t, err)
}
