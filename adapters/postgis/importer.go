// Package postgis imports vector layers into PostGIS tables through lib/pq.
// Each table is written in its own transaction: drop, create, insert,
// index, commit.
package postgis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/paulmach/orb/encoding/ewkb"

	"trailkit/internal/sink"
)

// ErrTableExists is returned when the target table exists and the policy
// does not allow overwriting it.
var ErrTableExists = errors.New("table already exists")

// Importer implements sink.Importer on one PostGIS database.
type Importer struct {
	db *sql.DB
}

// Open connects with a lib/pq DSN (URL or key=value form).
func Open(dsn string) (*Importer, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Importer{db: db}, nil
}

// New wraps an existing pool.
func New(db *sql.DB) *Importer { return &Importer{db: db} }

func (i *Importer) Close() error { return i.db.Close() }

func (i *Importer) Import(ctx context.Context, req sink.ImportRequest) (sink.Confirmation, error) {
	if req.Layer == nil {
		return sink.Confirmation{}, errors.New("no layer to import")
	}
	p := req.Policy
	t := table{Schema: req.Schema, Name: req.Table}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return sink.Confirmation{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if p.Encoding != "" {
		if _, err := tx.ExecContext(ctx, encodingSQL(p.Encoding)); err != nil {
			return sink.Confirmation{}, fmt.Errorf("set encoding: %w", err)
		}
	}

	var existed bool
	if err := tx.QueryRowContext(ctx, "SELECT to_regclass($1) IS NOT NULL", t.String()).Scan(&existed); err != nil {
		return sink.Confirmation{}, fmt.Errorf("check %s: %w", t, err)
	}
	if existed && !p.Overwrite {
		return sink.Confirmation{}, fmt.Errorf("%w: %s", ErrTableExists, t)
	}
	if existed {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+t.String()); err != nil {
			return sink.Confirmation{}, fmt.Errorf("drop %s: %w", t, err)
		}
	}

	cols := p.Columns(req.Layer)
	if _, err := tx.ExecContext(ctx, createTableSQL(t, p, cols, req.SRID)); err != nil {
		return sink.Confirmation{}, fmt.Errorf("create %s: %w", t, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(t, p, cols))
	if err != nil {
		return sink.Confirmation{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	rows := 0
	for _, f := range req.Layer.Features {
		if f.Geometry == nil {
			continue
		}
		for _, g := range p.Parts(f.Geometry) {
			blob, err := ewkb.Marshal(g, req.SRID)
			if err != nil {
				return sink.Confirmation{}, fmt.Errorf("encode geometry: %w", err)
			}
			args := []any{blob}
			for _, c := range cols {
				args = append(args, c.Value(f.Properties))
			}
			if !p.Surrogate() {
				args = append(args, f.Properties[p.PrimaryKey])
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return sink.Confirmation{}, fmt.Errorf("insert into %s: %w", t, err)
			}
			rows++
		}
	}

	if p.CreateIndex {
		if _, err := tx.ExecContext(ctx, indexSQL(t, p)); err != nil {
			return sink.Confirmation{}, fmt.Errorf("index %s: %w", t, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return sink.Confirmation{}, fmt.Errorf("commit %s: %w", t, err)
	}
	return sink.Confirmation{
		Table:       req.Table,
		Schema:      req.Schema,
		Rows:        rows,
		Overwritten: existed,
		Indexed:     p.CreateIndex,
	}, nil
}

type table struct {
	Schema string
	Name   string
}

func (t table) String() string {
	if t.Schema == "" {
		return pq.QuoteIdentifier(t.Name)
	}
	return pq.QuoteIdentifier(t.Schema) + "." + pq.QuoteIdentifier(t.Name)
}

func encodingSQL(enc string) string {
	return "SET LOCAL client_encoding = " + pq.QuoteLiteral(strings.ReplaceAll(strings.ToUpper(enc), "-", ""))
}

func createTableSQL(t table, p sink.Policy, cols []sink.Column, srid int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (", t)
	if p.Surrogate() {
		fmt.Fprintf(&b, "%s serial PRIMARY KEY", pq.QuoteIdentifier(p.KeyColumn()))
	} else {
		fmt.Fprintf(&b, "%s bigint PRIMARY KEY", pq.QuoteIdentifier(p.KeyColumn()))
	}
	for _, c := range cols {
		fmt.Fprintf(&b, ", %s %s", pq.QuoteIdentifier(c.Name), columnType(c, p))
	}
	fmt.Fprintf(&b, ", %s geometry(Geometry, %d)", pq.QuoteIdentifier(p.Column(p.GeometryColumn)), srid)
	b.WriteString(")")
	return b.String()
}

func columnType(c sink.Column, p sink.Policy) string {
	switch c.Type {
	case sink.Integer:
		return "bigint"
	case sink.Real:
		return "double precision"
	}
	if p.DropStringLength || c.Size == 0 {
		return "varchar"
	}
	return fmt.Sprintf("varchar(%d)", c.Size)
}

func insertSQL(t table, p sink.Policy, cols []sink.Column) string {
	names := []string{pq.QuoteIdentifier(p.Column(p.GeometryColumn))}
	values := []string{"ST_GeomFromEWKB($1)"}
	for _, c := range cols {
		names = append(names, pq.QuoteIdentifier(c.Name))
		values = append(values, fmt.Sprintf("$%d", len(values)+1))
	}
	if !p.Surrogate() {
		names = append(names, pq.QuoteIdentifier(p.KeyColumn()))
		values = append(values, fmt.Sprintf("$%d", len(values)+1))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t, strings.Join(names, ", "), strings.Join(values, ", "))
}

func indexSQL(t table, p sink.Policy) string {
	geom := p.Column(p.GeometryColumn)
	name := pq.QuoteIdentifier(t.Name + "_" + geom + "_idx")
	return fmt.Sprintf("CREATE INDEX %s ON %s USING GIST (%s)", name, t, pq.QuoteIdentifier(geom))
}
