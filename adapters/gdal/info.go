package gdal

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"trailkit/internal/terrain"
)

// info is the subset of `gdalinfo -json` output the engine reads.
type info struct {
	Description  string     `json:"description"`
	Size         []int      `json:"size"`
	GeoTransform []float64  `json:"geoTransform"`
	Bands        []bandInfo `json:"bands"`
	CoordSystem  struct {
		WKT string `json:"wkt"`
	} `json:"coordinateSystem"`
	STAC struct {
		EPSG *int `json:"proj:epsg"`
	} `json:"stac"`
}

type bandInfo struct {
	Band        int      `json:"band"`
	NoData      *float64 `json:"noDataValue"`
	ComputedMin *float64 `json:"computedMin"`
	ComputedMax *float64 `json:"computedMax"`
}

var epsgAuthority = regexp.MustCompile(`ID\["EPSG",\s*(\d+)\]\s*\]\s*$|AUTHORITY\["EPSG",\s*"(\d+)"\]\s*\]\s*$`)

func parseInfo(data []byte) (*info, error) {
	var in info
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode gdalinfo: %w", err)
	}
	return &in, nil
}

// srid returns the EPSG code of the raster, or 0 when it has none.
func (in *info) srid() int {
	if in.STAC.EPSG != nil {
		return *in.STAC.EPSG
	}
	m := epsgAuthority.FindStringSubmatch(in.CoordSystem.WKT)
	if m == nil {
		return 0
	}
	for _, g := range m[1:] {
		if g != "" {
			n, _ := strconv.Atoi(g)
			return n
		}
	}
	return 0
}

func (in *info) source(path string) *terrain.Source {
	src := &terrain.Source{
		Name:  path,
		Path:  path,
		Bands: len(in.Bands),
		SRID:  in.srid(),
	}
	if len(in.Size) == 2 {
		src.Width, src.Height = in.Size[0], in.Size[1]
	}
	if len(in.GeoTransform) == 6 {
		copy(src.GeoTransform[:], in.GeoTransform)
	}
	return src
}

// Open describes the raster at path. The returned source references the
// file; pixel data stays on disk.
func (e *Engine) Open(ctx context.Context, path string) (*terrain.Source, error) {
	out, err := e.runner().Run(ctx, "gdalinfo", "-json", path)
	if err != nil {
		return nil, &terrain.PreconditionError{Reason: err.Error()}
	}
	in, err := parseInfo(out)
	if err != nil {
		return nil, &terrain.PreconditionError{Reason: err.Error()}
	}
	return in.source(path), nil
}

// valueRange runs `gdalinfo -mm` to get the min and max of band 1.
func (e *Engine) valueRange(ctx context.Context, path string) (lo, hi float64, err error) {
	out, err := e.runner().Run(ctx, "gdalinfo", "-json", "-mm", path)
	if err != nil {
		return 0, 0, err
	}
	in, err := parseInfo(out)
	if err != nil {
		return 0, 0, err
	}
	if len(in.Bands) == 0 || in.Bands[0].ComputedMin == nil || in.Bands[0].ComputedMax == nil {
		return 0, 0, fmt.Errorf("gdalinfo: no computed range for %s", path)
	}
	return *in.Bands[0].ComputedMin, *in.Bands[0].ComputedMax, nil
}
