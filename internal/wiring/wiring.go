// Package wiring connects the pipeline to concrete importers. The CLI and
// the MCP server both run pipelines through Run.
package wiring

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"trailkit/adapters/postgis"
	"trailkit/adapters/sqlite"
	"trailkit/adapters/vector"
	"trailkit/internal/logging"
	"trailkit/internal/pipeline"
	"trailkit/internal/sink"
)

// Importer is a sink.Importer holding a database handle.
type Importer interface {
	sink.Importer
	io.Closer
}

// Opener connects to the database a sink target names.
type Opener func(conn sink.Connection) (Importer, error)

// OpenImporter picks PostGIS or SQLite from the connection's DSN.
func OpenImporter(conn sink.Connection) (Importer, error) {
	switch conn.Driver() {
	case "postgres":
		return postgis.Open(conn.DSN)
	default:
		return sqlite.Open(conn.DSN)
	}
}

// Run executes req on a copy of d. A configured sink target gets a writer
// backed by an importer from open, closed when the run returns. A database
// that cannot be reached fails every upload, not the run.
func Run(ctx context.Context, d *pipeline.Driver, req pipeline.Request, open Opener) (*pipeline.Result, error) {
	run := *d
	if t, ok := req.Sink.(sink.Configured); ok && run.Sink == nil {
		if open == nil {
			open = OpenImporter
		}
		var imp sink.Importer
		conn, err := open(t.Connection)
		if err != nil {
			err = fmt.Errorf("connect %s: %w", t.Connection.Label(), err)
			logging.New("wiring").Warn("database unavailable", slog.String("error", err.Error()))
			imp = sink.ImporterFunc(func(context.Context, sink.ImportRequest) (sink.Confirmation, error) {
				return sink.Confirmation{}, err
			})
		} else {
			defer conn.Close()
			imp = conn
		}
		run.Sink = sink.NewWriter(imp, vector.Read)
	}
	return run.Run(ctx, req)
}
