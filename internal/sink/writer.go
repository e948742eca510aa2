package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb/geojson"

	"trailkit/internal/logging"
	"trailkit/internal/terrain"
)

// Artifact is one product bound for one table.
type Artifact struct {
	Table   string
	Product *terrain.Product
	SRID    int
}

// ImportRequest is everything an importer needs for one table.
type ImportRequest struct {
	Connection Connection
	Schema     string
	Table      string
	Layer      *geojson.FeatureCollection
	SRID       int
	Policy     Policy
}

// QualifiedTable is schema.table, or the bare table without a schema.
func (r ImportRequest) QualifiedTable() string {
	if r.Schema == "" {
		return r.Table
	}
	return r.Schema + "." + r.Table
}

// Confirmation acknowledges a committed import.
type Confirmation struct {
	Table       string `json:"table"`
	Schema      string `json:"schema,omitempty"`
	Rows        int    `json:"rows"`
	Overwritten bool   `json:"overwritten"`
	Indexed     bool   `json:"indexed"`
}

// Importer writes one layer into one table and commits it independently of
// any other table.
type Importer interface {
	Import(ctx context.Context, req ImportRequest) (Confirmation, error)
}

// ImporterFunc adapts a function to Importer.
type ImporterFunc func(ctx context.Context, req ImportRequest) (Confirmation, error)

func (f ImporterFunc) Import(ctx context.Context, req ImportRequest) (Confirmation, error) {
	return f(ctx, req)
}

// LayerReader loads the features of a product, wherever they were written.
type LayerReader func(*terrain.Product) (*geojson.FeatureCollection, error)

// Outcome is the result of importing one artifact. Err, when set, is a
// *terrain.SinkWriteError.
type Outcome struct {
	Table        string
	Confirmation Confirmation
	Err          error
}

// Outcomes is the per-table result of a write.
type Outcomes []Outcome

// Err joins every failed import, or nil when all succeeded.
func (o Outcomes) Err() error {
	var errs []error
	for _, out := range o {
		if out.Err != nil {
			errs = append(errs, out.Err)
		}
	}
	return errors.Join(errs...)
}

// Confirmations returns the confirmations of successful imports in order.
func (o Outcomes) Confirmations() []Confirmation {
	var out []Confirmation
	for _, oc := range o {
		if oc.Err == nil {
			out = append(out, oc.Confirmation)
		}
	}
	return out
}

// Writer uploads artifacts through an Importer.
type Writer struct {
	Importer Importer
	Read     LayerReader
	Policy   Policy
	Logger   *slog.Logger
}

// NewWriter returns a writer with the default policy.
func NewWriter(imp Importer, read LayerReader) *Writer {
	return &Writer{Importer: imp, Read: read, Policy: DefaultPolicy(), Logger: logging.New("sink")}
}

// Write imports each artifact into its table. With a None target it does
// nothing and returns nil. Failures are recorded per table; later tables are
// still attempted.
func (w *Writer) Write(ctx context.Context, target Target, artifacts []Artifact) Outcomes {
	switch t := target.(type) {
	case Configured:
		return w.writeAll(ctx, t, artifacts)
	default:
		return nil
	}
}

func (w *Writer) writeAll(ctx context.Context, t Configured, artifacts []Artifact) Outcomes {
	logger := w.logger().With(slog.String("connection", t.Connection.Label()), slog.String("schema", t.Schema))
	out := make(Outcomes, 0, len(artifacts))
	for _, a := range artifacts {
		conf, err := w.writeOne(ctx, t, a)
		if err != nil {
			logger.Warn("import failed", slog.String("table", a.Table), slog.String("error", err.Error()))
			out = append(out, Outcome{Table: a.Table, Err: &terrain.SinkWriteError{Table: a.Table, Err: err}})
			continue
		}
		logger.Info("imported", slog.String("table", a.Table), slog.Int("rows", conf.Rows))
		out = append(out, Outcome{Table: a.Table, Confirmation: conf})
	}
	return out
}

func (w *Writer) writeOne(ctx context.Context, t Configured, a Artifact) (Confirmation, error) {
	if w.Importer == nil {
		return Confirmation{}, errors.New("no importer configured")
	}
	if a.Product == nil {
		return Confirmation{}, errors.New("no product to import")
	}
	layer, err := w.layer(a.Product)
	if err != nil {
		return Confirmation{}, fmt.Errorf("read layer: %w", err)
	}
	return w.Importer.Import(ctx, ImportRequest{
		Connection: t.Connection,
		Schema:     t.Schema,
		Table:      a.Table,
		Layer:      layer,
		SRID:       a.SRID,
		Policy:     w.Policy,
	})
}

func (w *Writer) layer(p *terrain.Product) (*geojson.FeatureCollection, error) {
	if w.Read != nil {
		return w.Read(p)
	}
	if p.Vector == nil {
		return nil, fmt.Errorf("%s has no in-memory features", p.Kind)
	}
	return p.Vector, nil
}

func (w *Writer) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return logging.New("sink")
}
