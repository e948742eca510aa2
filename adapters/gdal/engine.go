package gdal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"trailkit/adapters/vector"
	"trailkit/internal/logging"
	"trailkit/internal/terrain"
)

// ErrNoFile is returned when an input product or source has no file to read.
var ErrNoFile = errors.New("gdal: input has no file path")

// Engine implements every pipeline collaborator with GDAL utilities. Outputs
// for non-file destinations go to a private work directory created on first
// use and removed by Close.
type Engine struct {
	Runner Runner
	// TempRoot is where the work directory is created; os.TempDir when empty.
	TempRoot string
	// VectorFormat is used for vector outputs without a file path.
	VectorFormat vector.Format
	Logger       *slog.Logger

	mu   sync.Mutex
	work string
	seq  int
}

// New returns an engine running commands on the host.
func New() *Engine {
	return &Engine{Runner: ExecRunner{}, VectorFormat: vector.GeoJSON, Logger: logging.New("gdal")}
}

// Close removes the work directory and everything written to it.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.work == "" {
		return nil
	}
	err := os.RemoveAll(e.work)
	e.work = ""
	return err
}

// Contour traces iso-lines of the source at the given interval.
func (e *Engine) Contour(ctx context.Context, src *terrain.Source, p terrain.ContourParams, dst terrain.Destination) (*terrain.Product, error) {
	out, format, err := e.vectorOutput(terrain.ContourKind(p.Interval), dst)
	if err != nil {
		return nil, err
	}
	in, err := sourcePath(src)
	if err != nil {
		return nil, err
	}
	args := []string{
		"-b", strconv.Itoa(max(p.Band, 1)),
		"-a", p.Field,
		"-i", num(p.Interval),
		"-f", string(format),
		in, out,
	}
	if _, err := e.runner().Run(ctx, "gdal_contour", args...); err != nil {
		return nil, err
	}
	return e.vectorProduct(terrain.ContourKind(p.Interval), dst, p.AsParams(), out)
}

// Slope writes percent slope. The z-factor scales elevations, which gdaldem
// expresses as the inverse ratio of vertical to horizontal units.
func (e *Engine) Slope(ctx context.Context, src *terrain.Source, p terrain.SlopeParams, dst terrain.Destination) (*terrain.Product, error) {
	return e.gdaldem(ctx, terrain.KindSlope, src, dst, p.AsParams(), "slope", "-p", "-b", "1", "-s", num(scale(p.ZFactor)))
}

func (e *Engine) Hillshade(ctx context.Context, src *terrain.Source, p terrain.HillshadeParams, dst terrain.Destination) (*terrain.Product, error) {
	args := []string{"hillshade", "-b", "1", "-z", num(p.ZFactor), "-s", num(p.Scale), "-alt", num(p.Altitude)}
	if p.Multidirectional {
		args = append(args, "-multidirectional")
	} else {
		args = append(args, "-az", num(p.Azimuth))
	}
	return e.gdaldem(ctx, terrain.KindHillshade, src, dst, p.AsParams(), args...)
}

func (e *Engine) Aspect(ctx context.Context, src *terrain.Source, p terrain.AspectParams, dst terrain.Destination) (*terrain.Product, error) {
	args := []string{"aspect", "-b", "1"}
	if p.TrigAngle {
		args = append(args, "-trigonometric")
	}
	if p.ZeroFlat {
		args = append(args, "-zero_for_flat")
	}
	return e.gdaldem(ctx, terrain.KindAspect, src, dst, p.AsParams(), args...)
}

// Relief renders colour relief. With AutoColors the ramp spans the source's
// elevation range. color-relief has no shading, so ZFactor is recorded in the
// product params but not applied.
func (e *Engine) Relief(ctx context.Context, src *terrain.Source, p terrain.ReliefParams, dst terrain.Destination) (*terrain.Product, error) {
	in, err := sourcePath(src)
	if err != nil {
		return nil, err
	}
	lo, hi := 0.0, 1.0
	if p.AutoColors {
		if lo, hi, err = e.valueRange(ctx, in); err != nil {
			return nil, err
		}
	}
	ramp, err := e.scratch("relief-colors", ".txt")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(ramp, []byte(colorRamp(lo, hi)), 0o644); err != nil {
		return nil, err
	}

	out, err := e.rasterOutput(terrain.KindRelief, dst)
	if err != nil {
		return nil, err
	}
	if _, err := e.runner().Run(ctx, "gdaldem", "color-relief", in, ramp, out, "-alpha"); err != nil {
		return nil, err
	}
	return e.rasterProduct(terrain.KindRelief, dst, p.AsParams(), out), nil
}

// Ruggedness writes the terrain ruggedness index, scaled by the z-factor.
func (e *Engine) Ruggedness(ctx context.Context, src *terrain.Source, p terrain.RuggednessParams, dst terrain.Destination) (*terrain.Product, error) {
	if p.ZFactor == 0 || p.ZFactor == 1 {
		return e.gdaldem(ctx, terrain.KindRuggedness, src, dst, p.AsParams(), "TRI", "-b", "1")
	}
	tri, err := e.gdaldem(ctx, terrain.KindRuggedness, src, terrain.TemporaryDestination(), nil, "TRI", "-b", "1")
	if err != nil {
		return nil, err
	}
	out, err := e.rasterOutput(terrain.KindRuggedness, dst)
	if err != nil {
		return nil, err
	}
	if err := e.calc(ctx, tri.Ref, out, "A*"+num(p.ZFactor), ""); err != nil {
		return nil, err
	}
	return e.rasterProduct(terrain.KindRuggedness, dst, p.AsParams(), out), nil
}

// ThresholdIndicator keeps in-band values and writes 0 elsewhere. 0 is the
// output's nodata value.
func (e *Engine) ThresholdIndicator(ctx context.Context, src *terrain.Product, band terrain.Band, dst terrain.Destination) (*terrain.Product, error) {
	if src == nil || src.Ref == "" {
		return nil, ErrNoFile
	}
	out, err := e.rasterOutput(terrain.KindIndicator, dst)
	if err != nil {
		return nil, err
	}
	if err := e.calc(ctx, src.Ref, out, band.Formula(), "0"); err != nil {
		return nil, err
	}
	return e.rasterProduct(terrain.KindIndicator, dst, terrain.Params{"FORMULA": band.Formula(), "NO_DATA": 0}, out), nil
}

// Polygonize vectorizes connected equal-valued cells.
func (e *Engine) Polygonize(ctx context.Context, src *terrain.Product, p terrain.PolygonizeParams, dst terrain.Destination) (*terrain.Product, error) {
	if src == nil || src.Ref == "" {
		return nil, ErrNoFile
	}
	out, format, err := e.vectorOutput(terrain.KindClassPolygons, dst)
	if err != nil {
		return nil, err
	}
	field := p.Field
	if field == "" {
		field = "DN"
	}
	var args []string
	if p.Connectivity == terrain.EightConnected {
		args = append(args, "-8")
	}
	layer := strings.TrimSuffix(filepath.Base(out), filepath.Ext(out))
	args = append(args, src.Ref, "-b", strconv.Itoa(max(p.Band, 1)), "-f", string(format), out, layer, field)
	if _, err := e.runner().Run(ctx, "gdal_polygonize.py", args...); err != nil {
		return nil, err
	}
	return e.vectorProduct(terrain.KindClassPolygons, dst, p.AsParams(), out)
}

func (e *Engine) gdaldem(ctx context.Context, k terrain.Kind, src *terrain.Source, dst terrain.Destination, params terrain.Params, args ...string) (*terrain.Product, error) {
	in, err := sourcePath(src)
	if err != nil {
		return nil, err
	}
	out, err := e.rasterOutput(k, dst)
	if err != nil {
		return nil, err
	}
	// gdaldem <mode> <input> <output> [options]
	argv := append([]string{args[0], in, out}, args[1:]...)
	if _, err := e.runner().Run(ctx, "gdaldem", argv...); err != nil {
		return nil, err
	}
	return e.rasterProduct(k, dst, params, out), nil
}

func (e *Engine) calc(ctx context.Context, in, out, expr, nodata string) error {
	args := []string{"-A", in, "--A_band=1", "--outfile=" + out, "--calc=" + expr, "--type=Float32", "--overwrite", "--quiet"}
	if nodata != "" {
		args = append(args, "--NoDataValue="+nodata)
	}
	_, err := e.runner().Run(ctx, "gdal_calc.py", args...)
	return err
}

func (e *Engine) rasterProduct(k terrain.Kind, dst terrain.Destination, params terrain.Params, out string) *terrain.Product {
	p := terrain.NewProduct(k, dst, params)
	p.Ref = out
	return p
}

// vectorProduct also loads the layer into memory for Memory destinations.
func (e *Engine) vectorProduct(k terrain.Kind, dst terrain.Destination, params terrain.Params, out string) (*terrain.Product, error) {
	p := terrain.NewProduct(k, dst, params)
	p.Ref = out
	if dst.Mode == terrain.Memory {
		fc, err := vector.ReadFile(out)
		if err != nil {
			return nil, err
		}
		p.Vector = fc
	}
	return p, nil
}

func (e *Engine) rasterOutput(k terrain.Kind, dst terrain.Destination) (string, error) {
	if dst.Mode == terrain.File {
		return dst.Path, os.MkdirAll(filepath.Dir(dst.Path), 0o755)
	}
	return e.scratch(string(k), ".tif")
}

// vectorOutput clears an existing file target: gdal_contour refuses to
// overwrite one and gdal_polygonize.py appends to it.
func (e *Engine) vectorOutput(k terrain.Kind, dst terrain.Destination) (string, vector.Format, error) {
	if dst.Mode == terrain.File {
		if err := os.MkdirAll(filepath.Dir(dst.Path), 0o755); err != nil {
			return "", "", err
		}
		if err := vector.Remove(dst.Path); err != nil {
			return "", "", fmt.Errorf("gdal: clear %s: %w", dst.Path, err)
		}
		return dst.Path, vector.FormatOf(dst.Path), nil
	}
	format := e.VectorFormat
	if format == "" || dst.Mode == terrain.Memory {
		format = vector.GeoJSON
	}
	path, err := e.scratch(string(k), format.Extension())
	return path, format, err
}

// scratch returns a fresh path inside the work directory.
func (e *Engine) scratch(stem, ext string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.work == "" {
		dir, err := os.MkdirTemp(e.TempRoot, "trailkit-")
		if err != nil {
			return "", fmt.Errorf("gdal: work dir: %w", err)
		}
		e.work = dir
	}
	e.seq++
	return filepath.Join(e.work, fmt.Sprintf("%03d-%s%s", e.seq, stem, ext)), nil
}

func (e *Engine) runner() Runner {
	if e.Runner == nil {
		return ExecRunner{Logger: e.Logger}
	}
	return e.Runner
}

func sourcePath(src *terrain.Source) (string, error) {
	if src == nil || src.Path == "" {
		return "", ErrNoFile
	}
	return src.Path, nil
}

func scale(z float64) float64 {
	if z == 0 {
		return 1
	}
	return 1 / z
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// colorRamp is a five-stop ramp from green lowlands to white peaks, with
// transparent nodata.
func colorRamp(lo, hi float64) string {
	stops := [][3]int{{46, 139, 87}, {154, 205, 50}, {238, 232, 170}, {160, 82, 45}, {255, 255, 255}}
	var b strings.Builder
	for i, c := range stops {
		v := lo + (hi-lo)*float64(i)/float64(len(stops)-1)
		fmt.Fprintf(&b, "%s %d %d %d\n", num(v), c[0], c[1], c[2])
	}
	b.WriteString("nv 0 0 0 0\n")
	return b.String()
}
