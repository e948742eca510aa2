// Package classify turns a slope raster into polygon layers, one per
// difficulty band.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"trailkit/internal/logging"
	"trailkit/internal/terrain"
)

// ErrSlopeUnavailable is returned when the slope product carries no data.
var ErrSlopeUnavailable = errors.New("classify: slope data not available")

var errNoProduct = errors.New("collaborator returned no product")

// Engine is the pair of raster collaborators classification needs.
type Engine interface {
	// ThresholdIndicator keeps values inside band (inclusive) and writes 0
	// elsewhere.
	ThresholdIndicator(ctx context.Context, src *terrain.Product, band terrain.Band, dst terrain.Destination) (*terrain.Product, error)
	// Polygonize groups connected equal nonzero cells into polygon features.
	Polygonize(ctx context.Context, src *terrain.Product, params terrain.PolygonizeParams, dst terrain.Destination) (*terrain.Product, error)
}

// Classifier runs the indicator-then-polygonize sequence.
type Classifier struct {
	Engine       Engine
	Band         int
	Connectivity terrain.Connectivity
	Logger       *slog.Logger
}

// New returns a classifier reading raster band 1 with 4-connectivity.
func New(engine Engine) *Classifier {
	return &Classifier{Engine: engine, Band: 1, Connectivity: terrain.FourConnected, Logger: logging.New("classify")}
}

// Classify produces the polygon layer of cells whose slope lies in band.
// No matching cell yields an empty layer, not an error.
func (c *Classifier) Classify(ctx context.Context, slope *terrain.Product, band terrain.Band, dst terrain.Destination) (*terrain.Product, error) {
	if !slope.Available() {
		return nil, ErrSlopeUnavailable
	}
	if err := band.Validate(); err != nil {
		return nil, err
	}

	indicator, err := c.Engine.ThresholdIndicator(ctx, slope, band, terrain.TemporaryDestination())
	if err != nil {
		return nil, fmt.Errorf("threshold %s: %w", band.Name, err)
	}

	params := c.polygonize(band)
	out, err := c.Engine.Polygonize(ctx, indicator, params, dst)
	if err != nil {
		return nil, fmt.Errorf("polygonize %s: %w", band.Name, err)
	}
	if out == nil {
		return nil, fmt.Errorf("polygonize %s: %w", band.Name, errNoProduct)
	}
	out = labelled(out, params, band)

	c.logger().Debug("classified",
		slog.String("band", band.Name),
		slog.Float64("low", band.Low),
		slog.Float64("high", band.High),
		slog.Int("features", out.FeatureCount()),
	)
	return out, nil
}

// labelled returns a copy of p whose params also name the band. The
// collaborator's product and its params map are left untouched.
func labelled(p *terrain.Product, params terrain.PolygonizeParams, band terrain.Band) *terrain.Product {
	merged := params.AsParams()
	for k, v := range p.Params {
		merged[k] = v
	}
	merged["BAND_NAME"] = band.Name
	merged["LOW"] = band.Low
	merged["HIGH"] = band.High

	cp := *p
	cp.Params = merged
	return &cp
}

// ClassifyAll runs Classify for each band in order, writing every layer to
// the destination returned by dst.
func (c *Classifier) ClassifyAll(ctx context.Context, slope *terrain.Product, bands []terrain.Band, dst func(terrain.Band) terrain.Destination) (map[terrain.Key]*terrain.Product, error) {
	out := make(map[terrain.Key]*terrain.Product, len(bands))
	for _, b := range bands {
		d := terrain.TemporaryDestination()
		if dst != nil {
			d = dst(b)
		}
		p, err := c.Classify(ctx, slope, b, d)
		if err != nil {
			return nil, err
		}
		out[b.Key()] = p
	}
	return out, nil
}

func (c *Classifier) polygonize(b terrain.Band) terrain.PolygonizeParams {
	band := c.Band
	if band < 1 {
		band = 1
	}
	conn := c.Connectivity
	if conn == 0 {
		conn = terrain.FourConnected
	}
	return terrain.PolygonizeParams{Band: band, Field: b.AttributeField(), Connectivity: conn}
}

func (c *Classifier) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logging.Discard()
}
