package vector

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeoPackage_WriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "black_diamond.gpkg")
	fc := geojson.NewFeatureCollection()
	poly := geojson.NewFeature(orb.MultiPolygon{{{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}}})
	poly.Properties = geojson.Properties{"DN": int32(22), "band_name": "Black Diamond"}
	fc.Append(poly)
	line := geojson.NewFeature(orb.LineString{{0, 0}, {3, 4}})
	line.Properties = geojson.Properties{"DN": int32(18)}
	fc.Append(line)

	require.NoError(t, Write(path, fc))

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got.Features, 2)
	assert.Equal(t, poly.Geometry, got.Features[0].Geometry)
	assert.Equal(t, int64(22), got.Features[0].Properties["DN"])
	assert.Equal(t, "Black Diamond", got.Features[0].Properties["band_name"])
	assert.Equal(t, line.Geometry, got.Features[1].Geometry)
	assert.Nil(t, got.Features[1].Properties["band_name"])

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var appID int64
	require.NoError(t, db.QueryRow("PRAGMA application_id").Scan(&appID))
	assert.Equal(t, int64(gpkgApplicationID), appID)
	var minX, maxY float64
	require.NoError(t, db.QueryRow("SELECT min_x, max_y FROM gpkg_contents WHERE table_name = 'black_diamond'").Scan(&minX, &maxY))
	assert.Equal(t, 0.0, minX)
	assert.Equal(t, 10.0, maxY)
}

func TestGeoPackage_RewriteReplacesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.gpkg")
	require.NoError(t, WriteGeoPackage(path, contourLayer()))
	require.NoError(t, WriteGeoPackage(path, geojson.NewFeatureCollection()))

	got, err := ReadGeoPackage(path)
	require.NoError(t, err)
	assert.Empty(t, got.Features)
}

func TestDecodeGeometry(t *testing.T) {
	blob, err := encodeGeometry(orb.Point{1, 2}, 4326)
	require.NoError(t, err)
	assert.Equal(t, []byte{'G', 'P', 0, 0x03}, blob[:4])
	assert.Len(t, blob, 8+32+21)

	g, err := decodeGeometry(blob)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{1, 2}, g)

	_, err = decodeGeometry([]byte("nope"))
	assert.ErrorIs(t, err, errGeometryBlob)
}
