package wiring

import (
	"fmt"
	"path/filepath"
	"strings"

	"trailkit/adapters/vector"
	"trailkit/internal/profile"
	"trailkit/internal/terrain"
)

// OutputKeys lists every result key p produces: contours, terrain
// attributes, then classification bands.
func OutputKeys(p *profile.Profile) []terrain.Key {
	var keys []terrain.Key
	for _, c := range p.ContourStages() {
		keys = append(keys, c.Key)
	}
	keys = append(keys, terrain.AttributeKeys...)
	for _, b := range p.Classification.Bands {
		keys = append(keys, b.Key())
	}
	return keys
}

// Destinations maps the outputs of p to files under dir: rasters as GeoTIFF,
// vector layers in format. Keys in skip are computed but not kept. With an
// empty dir every other output stays Temporary.
func Destinations(p *profile.Profile, dir string, format vector.Format, skip []terrain.Key) (map[terrain.Key]terrain.Destination, error) {
	known := map[terrain.Key]string{}
	for _, c := range p.ContourStages() {
		known[c.Key] = string(c.Kind) + format.Extension()
	}
	for _, k := range terrain.AttributeKeys {
		known[k] = strings.ToLower(string(k)) + ".tif"
	}
	for _, b := range p.Classification.Bands {
		known[b.Key()] = strings.ToLower(string(b.Key())) + format.Extension()
	}

	out := make(map[terrain.Key]terrain.Destination, len(known))
	for _, k := range skip {
		if _, ok := known[k]; !ok {
			return nil, fmt.Errorf("unknown output %q", k)
		}
		out[k] = terrain.SkipDestination()
	}
	if dir == "" {
		return out, nil
	}
	for k, name := range known {
		if _, skipped := out[k]; skipped {
			continue
		}
		out[k] = terrain.FileDestination(filepath.Join(dir, name))
	}
	return out, nil
}
