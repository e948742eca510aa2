package terrain

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// DestinationMode selects where a product is persisted.
type DestinationMode int

const (
	// Temporary products live in a collaborator-managed location for the
	// duration of the run. It is the zero value.
	Temporary DestinationMode = iota
	File
	Memory
	Skip
)

func (m DestinationMode) String() string {
	switch m {
	case File:
		return "file"
	case Memory:
		return "memory"
	case Skip:
		return "skip"
	default:
		return "temporary"
	}
}

// Destination is a sink descriptor for one product. It decides persistence
// only; a stage with a Skip destination still runs.
type Destination struct {
	Mode DestinationMode
	Path string
}

// FileDestination persists a product at path.
func FileDestination(path string) Destination { return Destination{Mode: File, Path: path} }

// MemoryDestination keeps a product in memory.
func MemoryDestination() Destination { return Destination{Mode: Memory} }

// SkipDestination discards a product once the run ends.
func SkipDestination() Destination { return Destination{Mode: Skip} }

// TemporaryDestination is the in-pipeline, non-persisted location.
func TemporaryDestination() Destination { return Destination{} }

// Persisted reports whether the product outlives the run.
func (d Destination) Persisted() bool { return d.Mode == File }

func (d Destination) String() string {
	if d.Mode == File {
		return d.Path
	}
	return d.Mode.String()
}

// Params records the stage-specific parameters a product was computed with.
type Params map[string]any

// Product is one derivative artifact. It is created by the stage that
// computes it and never mutated afterwards.
type Product struct {
	Kind        Kind
	Geometry    Geometry
	Destination Destination
	Params      Params

	// Ref is the file path or memory handle of the data.
	Ref string

	// In-memory payloads, set by collaborators that keep data in process.
	Raster *Grid
	Vector *geojson.FeatureCollection
}

// NewProduct returns a product of kind k with its geometry derived from k.
func NewProduct(k Kind, dst Destination, params Params) *Product {
	return &Product{
		Kind:        k,
		Geometry:    k.Geometry(),
		Destination: dst,
		Params:      params,
	}
}

// Available reports whether p carries data a downstream stage can read.
func (p *Product) Available() bool {
	return p != nil && (p.Ref != "" || p.Raster != nil || p.Vector != nil)
}

// FeatureCount returns the number of in-memory features, or -1 when the
// layer is not held in memory.
func (p *Product) FeatureCount() int {
	if p == nil || p.Vector == nil {
		return -1
	}
	return len(p.Vector.Features)
}

func (p *Product) String() string {
	if p == nil {
		return "<nil>"
	}
	ref := p.Ref
	if ref == "" {
		ref = "memory"
	}
	return fmt.Sprintf("%s[%s] %s", p.Kind, p.Geometry, ref)
}
