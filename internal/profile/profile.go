// Package profile holds the tunable parameters of a trail-layer run.
//
// The built-in profile is embedded YAML; a user file is decoded on top of it,
// so it only needs to name the settings it changes. Lists (contours, bands)
// are replaced wholesale when present.
package profile

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trailkit/internal/terrain"
)

//go:embed default.yaml
var defaultYAML []byte

// Contour describes one contour stage.
type Contour struct {
	Interval float64 `yaml:"interval" json:"interval"`
	Band     int     `yaml:"band" json:"band"`
	Field    string  `yaml:"field" json:"field"`
	Table    string  `yaml:"table" json:"table"`
}

// Params converts the definition to collaborator parameters.
func (c Contour) Params() terrain.ContourParams {
	return terrain.ContourParams{Band: c.Band, Interval: c.Interval, Field: c.Field}
}

// Classification lists the slope bands turned into polygon layers.
type Classification struct {
	Band         int                  `yaml:"band" json:"band"`
	Connectivity terrain.Connectivity `yaml:"connectivity" json:"connectivity"`
	Bands        []terrain.Band       `yaml:"bands" json:"bands"`
}

type Sink struct {
	Schema string `yaml:"schema" json:"schema"`
}

// Profile is the complete parameter set of a run.
type Profile struct {
	Name           string                   `yaml:"name" json:"name"`
	DisplayName    string                   `yaml:"display_name" json:"display_name"`
	Group          string                   `yaml:"group" json:"group"`
	GroupID        string                   `yaml:"group_id" json:"group_id"`
	Contours       []Contour                `yaml:"contours" json:"contours"`
	Slope          terrain.SlopeParams      `yaml:"slope" json:"slope"`
	Hillshade      terrain.HillshadeParams  `yaml:"hillshade" json:"hillshade"`
	Aspect         terrain.AspectParams     `yaml:"aspect" json:"aspect"`
	Relief         terrain.ReliefParams     `yaml:"relief" json:"relief"`
	Ruggedness     terrain.RuggednessParams `yaml:"ruggedness" json:"ruggedness"`
	Classification Classification           `yaml:"classification" json:"classification"`
	Sink           Sink                     `yaml:"sink" json:"sink"`
}

// Default returns a fresh copy of the built-in profile.
func Default() *Profile {
	p, err := Parse(defaultYAML, nil)
	if err != nil {
		panic(fmt.Sprintf("profile: embedded default is invalid: %v", err))
	}
	return p
}

// Load reads path on top of the built-in profile. An empty path yields the
// default.
func Load(path string) (*Profile, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	p, err := Parse(data, Default())
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes data over base (or an empty profile when base is nil) and
// validates the result.
func Parse(data []byte, base *Profile) (*Profile, error) {
	p := &Profile{}
	if base != nil {
		p = base
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the parameters a run depends on.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	seen := make(map[float64]bool, len(p.Contours))
	for i, c := range p.Contours {
		if c.Interval <= 0 {
			return fmt.Errorf("contour %d: interval must be positive, got %g", i, c.Interval)
		}
		if c.Band < 1 {
			return fmt.Errorf("contour %d: band must be >= 1, got %d", i, c.Band)
		}
		if seen[c.Interval] {
			return fmt.Errorf("contour %d: duplicate interval %g", i, c.Interval)
		}
		seen[c.Interval] = true
	}
	switch p.Classification.Connectivity {
	case terrain.FourConnected, terrain.EightConnected:
	default:
		return fmt.Errorf("classification: connectivity must be 4 or 8, got %d", p.Classification.Connectivity)
	}
	keys := make(map[terrain.Key]string, len(p.Classification.Bands))
	for _, b := range p.Classification.Bands {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("classification: %w", err)
		}
		if prev, dup := keys[b.Key()]; dup {
			return fmt.Errorf("classification: bands %q and %q share key %s", prev, b.Name, b.Key())
		}
		keys[b.Key()] = b.Name
	}
	return nil
}

// YAML renders the effective profile.
func (p *Profile) YAML() ([]byte, error) {
	return yaml.Marshal(p)
}

// Polygonize returns the vectorization parameters for a band.
func (c Classification) Polygonize(b terrain.Band) terrain.PolygonizeParams {
	return terrain.PolygonizeParams{Band: c.Band, Field: b.AttributeField(), Connectivity: c.Connectivity}
}

// ContourStages pairs each contour definition with its stage kind and output
// key.
func (p *Profile) ContourStages() []ContourStage {
	out := make([]ContourStage, 0, len(p.Contours))
	for _, c := range p.Contours {
		out = append(out, ContourStage{Contour: c, Kind: terrain.ContourKind(c.Interval), Key: terrain.ContourKey(c.Interval)})
	}
	return out
}

// ContourStage is a contour definition resolved to its stage identity.
type ContourStage struct {
	Contour
	Kind terrain.Kind
	Key  terrain.Key
}
