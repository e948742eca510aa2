package memraster

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailkit/adapters/vector"
	"trailkit/internal/terrain"
)

func rasterProduct(t *testing.T, rows [][]float64) *terrain.Product {
	t.Helper()
	g, err := terrain.GridFromRows(rows)
	require.NoError(t, err)
	p := terrain.NewProduct(terrain.KindSlope, terrain.MemoryDestination(), nil)
	p.Raster = g
	return p
}

func TestThresholdIndicator_InclusiveBounds(t *testing.T) {
	src := rasterProduct(t, [][]float64{
		{14.999, 15, 22.5},
		{30, 30.001, 0},
	})

	out, err := Engine{}.ThresholdIndicator(context.Background(), src, terrain.BlackDiamond, terrain.TemporaryDestination())
	require.NoError(t, err)

	assert.Equal(t, terrain.KindIndicator, out.Kind)
	assert.Equal(t, []float64{0, 15, 22.5, 30, 0, 0}, out.Raster.Values)
	assert.Equal(t, "A*logical_and(A>=15,A<=30)", out.Params["FORMULA"])
	assert.Equal(t, 14.999, src.Raster.Values[0], "source must not be mutated")
}

func TestThresholdIndicator_NoDataBecomesZero(t *testing.T) {
	src := rasterProduct(t, [][]float64{{20, -9999}})
	nodata := -9999.0
	src.Raster.NoData = &nodata

	out, err := Engine{}.ThresholdIndicator(context.Background(), src, terrain.Band{Name: "all", Low: -1e6, High: 1e6}, terrain.TemporaryDestination())
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 0}, out.Raster.Values)
}

func TestThresholdIndicator_RequiresRaster(t *testing.T) {
	_, err := Engine{}.ThresholdIndicator(context.Background(), terrain.NewProduct(terrain.KindSlope, terrain.TemporaryDestination(), nil), terrain.BlackDiamond, terrain.TemporaryDestination())
	assert.ErrorIs(t, err, ErrNotInMemory)
}

func TestPolygonize_GroupsConnectedEqualValues(t *testing.T) {
	src := rasterProduct(t, [][]float64{
		{20, 20, 0, 25},
		{0, 20, 0, 25.9},
		{21, 0, 0, 0},
	})
	params := terrain.PolygonizeParams{Band: 1, Field: "DN", Connectivity: terrain.FourConnected}

	out, err := Engine{}.Polygonize(context.Background(), src, params, terrain.MemoryDestination())
	require.NoError(t, err)
	require.Len(t, out.Vector.Features, 3)

	f := out.Vector.Features
	assert.Equal(t, int32(20), f[0].Properties["DN"])
	assert.Len(t, f[0].Geometry.(orb.MultiPolygon), 3)
	// 25 and 25.9 truncate to the same value
	assert.Equal(t, int32(25), f[1].Properties["DN"])
	assert.Len(t, f[1].Geometry.(orb.MultiPolygon), 2)
	assert.Equal(t, int32(21), f[2].Properties["DN"])
	assert.Equal(t, false, out.Params["EIGHT_CONNECTEDNESS"])
}

func TestPolygonize_Connectivity(t *testing.T) {
	src := rasterProduct(t, [][]float64{
		{20, 0},
		{0, 20},
	})

	four, err := Engine{}.Polygonize(context.Background(), src, terrain.PolygonizeParams{Connectivity: terrain.FourConnected}, terrain.MemoryDestination())
	require.NoError(t, err)
	assert.Len(t, four.Vector.Features, 2)

	eight, err := Engine{}.Polygonize(context.Background(), src, terrain.PolygonizeParams{Connectivity: terrain.EightConnected}, terrain.MemoryDestination())
	require.NoError(t, err)
	assert.Len(t, eight.Vector.Features, 1)
}

func TestPolygonize_AllZeroIsEmptyLayer(t *testing.T) {
	src := rasterProduct(t, [][]float64{{0, 0}, {0.4, -0.9}})

	out, err := Engine{}.Polygonize(context.Background(), src, terrain.PolygonizeParams{Field: "DN"}, terrain.MemoryDestination())
	require.NoError(t, err)
	require.NotNil(t, out.Vector)
	assert.Empty(t, out.Vector.Features)
	assert.Equal(t, 0, out.FeatureCount())
}

func TestPolygonize_CellGeometryFollowsGeoTransform(t *testing.T) {
	src := rasterProduct(t, [][]float64{{20}})
	src.Raster.GeoTransform = terrain.GeoTransform{500000, 10, 0, 4000000, 0, -10}

	out, err := Engine{}.Polygonize(context.Background(), src, terrain.PolygonizeParams{}, terrain.MemoryDestination())
	require.NoError(t, err)
	mp := out.Vector.Features[0].Geometry.(orb.MultiPolygon)
	assert.Equal(t, orb.Bound{Min: orb.Point{500000, 3999990}, Max: orb.Point{500010, 4000000}}, mp.Bound())
}

func TestPolygonize_RejectsOtherBands(t *testing.T) {
	src := rasterProduct(t, [][]float64{{20}})
	_, err := Engine{}.Polygonize(context.Background(), src, terrain.PolygonizeParams{Band: 2}, terrain.MemoryDestination())
	assert.Error(t, err)
}

func TestPolygonize_FileDestinationWritesLayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "black_diamond.geojson")
	src := rasterProduct(t, [][]float64{{20, 20, 0}, {0, 0, 20}})

	out, err := Engine{}.Polygonize(context.Background(), src, terrain.PolygonizeParams{Field: "DN"}, terrain.FileDestination(path))
	require.NoError(t, err)
	assert.Equal(t, path, out.Ref)
	assert.True(t, out.Destination.Persisted())

	fc, err := vector.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, 20.0, fc.Features[0].Properties["DN"])
}

func TestContour_FileDestinationWritesShapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contour-10m.shp")
	src := eastRamp(t, 6, 4, 5)

	out, err := Engine{}.Contour(context.Background(), src, terrain.ContourParams{Band: 1, Interval: 10, Field: "ELEV"}, terrain.FileDestination(path))
	require.NoError(t, err)
	assert.Equal(t, path, out.Ref)

	fc, err := vector.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, fc.Features)
	assert.Len(t, fc.Features, out.FeatureCount())
	for i, f := range fc.Features {
		assert.Equal(t, out.Vector.Features[i].Properties["ELEV"], f.Properties["ELEV"])
	}
}

func TestRaster_FileDestinationIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slope.tif")
	src := eastRamp(t, 3, 3, 1)

	_, err := Engine{}.Slope(context.Background(), src, terrain.SlopeParams{ZFactor: 1}, terrain.FileDestination(path))
	assert.ErrorIs(t, err, ErrRasterFile)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
