package gdal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailkit/adapters/vector"
	"trailkit/internal/terrain"
)

type call struct {
	name string
	args []string
}

// fakeRunner records commands and answers gdalinfo from canned JSON.
type fakeRunner struct {
	calls  []call
	info   string
	fail   map[string]error
	onCall func(name string, args []string)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if err := f.fail[name]; err != nil {
		return nil, err
	}
	if f.onCall != nil {
		f.onCall(name, args)
	}
	if name == "gdalinfo" {
		return []byte(f.info), nil
	}
	return nil, nil
}

const utmInfo = `{
  "description": "dem.tif",
  "size": [400, 300],
  "geoTransform": [500000.0, 10.0, 0.0, 4000000.0, 0.0, -10.0],
  "coordinateSystem": {"wkt": "PROJCRS[\"NAD83 / UTM zone 10N\",ID[\"EPSG\",26910]]"},
  "bands": [{"band": 1, "noDataValue": -9999, "computedMin": 120.5, "computedMax": 880}]
}`

func newEngine(t *testing.T, r *fakeRunner) *Engine {
	t.Helper()
	e := &Engine{Runner: r, TempRoot: t.TempDir(), VectorFormat: vector.GeoJSON}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func demSource() *terrain.Source {
	return &terrain.Source{Name: "dem.tif", Path: "dem.tif", Bands: 1, Width: 400, Height: 300}
}

func TestOpen_ParsesInfo(t *testing.T) {
	r := &fakeRunner{info: utmInfo}
	src, err := newEngine(t, r).Open(context.Background(), "dem.tif")
	require.NoError(t, err)

	assert.Equal(t, 400, src.Width)
	assert.Equal(t, 300, src.Height)
	assert.Equal(t, 1, src.Bands)
	assert.Equal(t, 26910, src.SRID)
	assert.Equal(t, terrain.GeoTransform{500000, 10, 0, 4000000, 0, -10}, src.GeoTransform)
	assert.NoError(t, src.Validate())
	assert.Equal(t, []string{"-json", "dem.tif"}, r.calls[0].args)
}

func TestOpen_SRIDSources(t *testing.T) {
	tests := []struct {
		name string
		json string
		want int
	}{
		{"stac", `{"bands":[{}],"stac":{"proj:epsg":4326}}`, 4326},
		{"wkt1", `{"bands":[{}],"coordinateSystem":{"wkt":"GEOGCS[\"WGS 84\",AUTHORITY[\"EPSG\",\"4326\"]]"}}`, 4326},
		{"none", `{"bands":[{}]}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := newEngine(t, &fakeRunner{info: tt.json}).Open(context.Background(), "x.tif")
			require.NoError(t, err)
			assert.Equal(t, tt.want, src.SRID)
		})
	}
}

func TestOpen_FailureIsPrecondition(t *testing.T) {
	r := &fakeRunner{fail: map[string]error{"gdalinfo": errors.New("not recognized as a supported file format")}}
	_, err := newEngine(t, r).Open(context.Background(), "notes.txt")
	assert.ErrorIs(t, err, terrain.ErrInvalidRaster)
}

func TestContour_Args(t *testing.T) {
	r := &fakeRunner{}
	e := newEngine(t, r)
	out := filepath.Join(t.TempDir(), "c", "10m.shp")

	p, err := e.Contour(context.Background(), demSource(), terrain.ContourParams{Band: 1, Interval: 10, Field: "ELEV"}, terrain.FileDestination(out))
	require.NoError(t, err)

	assert.Equal(t, "gdal_contour", r.calls[0].name)
	assert.Equal(t, []string{"-b", "1", "-a", "ELEV", "-i", "10", "-f", "ESRI Shapefile", "dem.tif", out}, r.calls[0].args)
	assert.Equal(t, terrain.KindContour10m, p.Kind)
	assert.Equal(t, terrain.Vector, p.Geometry)
	assert.Equal(t, out, p.Ref)
	assert.DirExists(t, filepath.Dir(out))
}

func TestVectorOutputs_ClearPreviousRun(t *testing.T) {
	dir := t.TempDir()
	contours := filepath.Join(dir, "contour-10m.geojson")
	polygons := filepath.Join(dir, "black_diamond.shp")
	stale := []string{contours, polygons, filepath.Join(dir, "black_diamond.shx"), filepath.Join(dir, "black_diamond.dbf"), filepath.Join(dir, "black_diamond.prj")}
	for _, f := range stale {
		require.NoError(t, os.WriteFile(f, []byte("previous run"), 0o644))
	}

	var leftovers []string
	r := &fakeRunner{}
	r.onCall = func(string, []string) {
		for _, f := range stale {
			if _, err := os.Stat(f); err == nil {
				leftovers = append(leftovers, f)
			}
		}
	}
	e := newEngine(t, r)
	_, err := e.Contour(context.Background(), demSource(), terrain.ContourParams{Band: 1, Interval: 10, Field: "ELEV"}, terrain.FileDestination(contours))
	require.NoError(t, err)
	ind := terrain.NewProduct(terrain.KindIndicator, terrain.TemporaryDestination(), nil)
	ind.Ref = "ind.tif"
	_, err = e.Polygonize(context.Background(), ind, terrain.PolygonizeParams{Field: "DN"}, terrain.FileDestination(polygons))
	require.NoError(t, err)

	assert.Len(t, r.calls, 2)
	assert.Empty(t, leftovers, "outputs of the previous run survived")
}

func TestSlope_ZFactorBecomesScale(t *testing.T) {
	r := &fakeRunner{}
	p, err := newEngine(t, r).Slope(context.Background(), demSource(), terrain.SlopeParams{ZFactor: 2}, terrain.TemporaryDestination())
	require.NoError(t, err)

	args := r.calls[0].args
	assert.Equal(t, "gdaldem", r.calls[0].name)
	assert.Equal(t, []string{"slope", "dem.tif", p.Ref, "-p", "-b", "1", "-s", "0.5"}, args)
	assert.True(t, strings.HasSuffix(p.Ref, "-slope.tif"), p.Ref)
}

func TestHillshade_MultidirectionalOmitsAzimuth(t *testing.T) {
	r := &fakeRunner{}
	e := newEngine(t, r)
	params := terrain.HillshadeParams{ZFactor: 2, Scale: 1, Azimuth: 315, Altitude: 45, Multidirectional: true}

	_, err := e.Hillshade(context.Background(), demSource(), params, terrain.SkipDestination())
	require.NoError(t, err)
	assert.Contains(t, r.calls[0].args, "-multidirectional")
	assert.NotContains(t, r.calls[0].args, "-az")

	params.Multidirectional = false
	_, err = e.Hillshade(context.Background(), demSource(), params, terrain.SkipDestination())
	require.NoError(t, err)
	assert.Contains(t, r.calls[1].args, "-az")
	assert.Contains(t, r.calls[1].args, "315")
}

func TestAspect_Flags(t *testing.T) {
	r := &fakeRunner{}
	_, err := newEngine(t, r).Aspect(context.Background(), demSource(), terrain.AspectParams{TrigAngle: true, ZeroFlat: true}, terrain.TemporaryDestination())
	require.NoError(t, err)
	assert.Contains(t, r.calls[0].args, "-trigonometric")
	assert.Contains(t, r.calls[0].args, "-zero_for_flat")
}

func TestRelief_AutoColorsFromRange(t *testing.T) {
	var ramp string
	r := &fakeRunner{info: utmInfo}
	r.onCall = func(name string, args []string) {
		if name == "gdaldem" {
			data, err := os.ReadFile(args[2])
			require.NoError(t, err)
			ramp = string(data)
		}
	}
	p, err := newEngine(t, r).Relief(context.Background(), demSource(), terrain.ReliefParams{ZFactor: 2, AutoColors: true}, terrain.TemporaryDestination())
	require.NoError(t, err)

	require.Len(t, r.calls, 2)
	assert.Equal(t, []string{"-json", "-mm", "dem.tif"}, r.calls[0].args)
	assert.Equal(t, []string{"color-relief", "dem.tif", r.calls[1].args[2], p.Ref, "-alpha"}, r.calls[1].args)
	assert.Equal(t, 2.0, p.Params["Z_FACTOR"])
	assert.True(t, strings.HasPrefix(ramp, "120.5 "), ramp)
	assert.Contains(t, ramp, "\n880 ")
	assert.Contains(t, ramp, "nv 0 0 0 0")
}

func TestRuggedness_ScalesByZFactor(t *testing.T) {
	r := &fakeRunner{}
	p, err := newEngine(t, r).Ruggedness(context.Background(), demSource(), terrain.RuggednessParams{ZFactor: 2}, terrain.TemporaryDestination())
	require.NoError(t, err)

	require.Len(t, r.calls, 2)
	assert.Equal(t, "TRI", r.calls[0].args[0])
	assert.Equal(t, "gdal_calc.py", r.calls[1].name)
	assert.Contains(t, r.calls[1].args, "--calc=A*2")
	assert.Contains(t, r.calls[1].args, "--outfile="+p.Ref)

	r.calls = nil
	_, err = newEngine(t, r).Ruggedness(context.Background(), demSource(), terrain.RuggednessParams{ZFactor: 1}, terrain.TemporaryDestination())
	require.NoError(t, err)
	assert.Len(t, r.calls, 1)
}

func TestThresholdAndPolygonize(t *testing.T) {
	r := &fakeRunner{}
	e := newEngine(t, r)
	slope := terrain.NewProduct(terrain.KindSlope, terrain.TemporaryDestination(), nil)
	slope.Ref = "slope.tif"

	ind, err := e.ThresholdIndicator(context.Background(), slope, terrain.BlackDiamond, terrain.TemporaryDestination())
	require.NoError(t, err)
	assert.Contains(t, r.calls[0].args, "--calc=A*logical_and(A>=15,A<=30)")
	assert.Contains(t, r.calls[0].args, "--NoDataValue=0")

	out := filepath.Join(t.TempDir(), "bd.shp")
	params := terrain.PolygonizeParams{Band: 1, Field: "DN", Connectivity: terrain.EightConnected}
	poly, err := e.Polygonize(context.Background(), ind, params, terrain.FileDestination(out))
	require.NoError(t, err)
	assert.Equal(t, []string{"-8", ind.Ref, "-b", "1", "-f", "ESRI Shapefile", out, "bd", "DN"}, r.calls[1].args)
	assert.Equal(t, terrain.KindClassPolygons, poly.Kind)
}

func TestPolygonize_MemoryLoadsLayer(t *testing.T) {
	r := &fakeRunner{}
	r.onCall = func(name string, args []string) {
		if name == "gdal_polygonize.py" {
			out := args[len(args)-3]
			require.NoError(t, os.WriteFile(out, []byte(`{"type":"FeatureCollection","features":[]}`), 0o644))
		}
	}
	e := newEngine(t, r)
	ind := terrain.NewProduct(terrain.KindIndicator, terrain.TemporaryDestination(), nil)
	ind.Ref = "ind.tif"

	p, err := e.Polygonize(context.Background(), ind, terrain.PolygonizeParams{}, terrain.MemoryDestination())
	require.NoError(t, err)
	require.NotNil(t, p.Vector)
	assert.Equal(t, 0, p.FeatureCount())
}

func TestInputsWithoutFiles(t *testing.T) {
	e := newEngine(t, &fakeRunner{})
	_, err := e.Slope(context.Background(), &terrain.Source{Bands: 1}, terrain.SlopeParams{}, terrain.TemporaryDestination())
	assert.ErrorIs(t, err, ErrNoFile)
	_, err = e.Polygonize(context.Background(), terrain.NewProduct(terrain.KindIndicator, terrain.TemporaryDestination(), nil), terrain.PolygonizeParams{}, terrain.TemporaryDestination())
	assert.ErrorIs(t, err, ErrNoFile)
}

func TestRunnerErrorPropagates(t *testing.T) {
	boom := errors.New("exit status 1")
	e := newEngine(t, &fakeRunner{fail: map[string]error{"gdaldem": boom}})
	_, err := e.Slope(context.Background(), demSource(), terrain.SlopeParams{ZFactor: 1}, terrain.TemporaryDestination())
	assert.ErrorIs(t, err, boom)
}

func TestClose_RemovesWorkDir(t *testing.T) {
	e := &Engine{Runner: &fakeRunner{}, TempRoot: t.TempDir()}
	p, err := e.Slope(context.Background(), demSource(), terrain.SlopeParams{}, terrain.TemporaryDestination())
	require.NoError(t, err)
	dir := filepath.Dir(p.Ref)
	assert.DirExists(t, dir)

	require.NoError(t, e.Close())
	assert.NoDirExists(t, dir)
	assert.NoError(t, e.Close())
}
