// Package sqlite imports vector layers into a SQLite file. Geometries are
// stored as WKB blobs next to an R*Tree of their bounds, and every imported
// table is recorded in layer_registry.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"trailkit/internal/sink"

	_ "modernc.org/sqlite"
)

// ErrTableExists is returned when the target table exists and the policy
// does not allow overwriting it.
var ErrTableExists = errors.New("table already exists")

// Importer implements sink.Importer on one SQLite database.
type Importer struct {
	db *sql.DB
}

// Layer is one row of layer_registry.
type Layer struct {
	Table          string
	Schema         string
	GeometryColumn string
	KeyColumn      string
	SRID           int
	Features       int
	SpatialIndex   string
	ImportedAt     string
}

// Open opens or creates the database at path and runs migrations. The
// parent directory is created if needed. A sqlite:// or file: prefix is
// stripped.
func Open(path string) (*Importer, error) {
	path = strings.TrimPrefix(path, "sqlite://")
	path = strings.TrimPrefix(path, "file:")
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	imp := &Importer{db: db}
	if err := imp.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return imp, nil
}

func (i *Importer) Close() error { return i.db.Close() }

func (i *Importer) migrate() error {
	var tableCount int
	err := i.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableCount == 0 {
		return i.freshInstall()
	}

	var v int
	err = i.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		v = schemaVersionV1
		if _, err := i.db.Exec("INSERT INTO schema_version(version) VALUES(?)", v); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	}

	switch v {
	case currentSchemaVersion:
		return nil
	case schemaVersionV1:
		return i.migrateV1ToV2()
	default:
		return fmt.Errorf("unknown schema version %d", v)
	}
}

func (i *Importer) freshInstall() error {
	if _, err := i.db.Exec(schemaV2); err != nil {
		return fmt.Errorf("create registry schema: %w", err)
	}
	if _, err := i.db.Exec("INSERT INTO schema_version(version) VALUES(?)", currentSchemaVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

func (i *Importer) migrateV1ToV2() error {
	tx, err := i.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if _, err := tx.Exec(migrateV1ToV2SQL); err != nil {
		return fmt.Errorf("migrate registry v1 to v2: %w", err)
	}
	if _, err := tx.Exec("UPDATE schema_version SET version = ?", schemaVersionV2); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return tx.Commit()
}

// Import writes req.Layer into req.Table in one transaction. SQLite has no
// schemas, so req.Schema is recorded in the registry only.
func (i *Importer) Import(ctx context.Context, req sink.ImportRequest) (sink.Confirmation, error) {
	p := req.Policy
	if enc := strings.ToUpper(strings.ReplaceAll(p.Encoding, "-", "")); enc != "" && enc != "UTF8" {
		return sink.Confirmation{}, fmt.Errorf("sqlite stores UTF-8 only, not %s", p.Encoding)
	}
	if req.Layer == nil {
		return sink.Confirmation{}, errors.New("no layer to import")
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return sink.Confirmation{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	existed, err := tableExists(ctx, tx, req.Table)
	if err != nil {
		return sink.Confirmation{}, err
	}
	if existed && !p.Overwrite {
		return sink.Confirmation{}, fmt.Errorf("%w: %s", ErrTableExists, req.Table)
	}
	if existed {
		for _, t := range []string{indexTable(req.Table, p), req.Table} {
			if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(t)); err != nil {
				return sink.Confirmation{}, fmt.Errorf("drop %s: %w", t, err)
			}
		}
	}

	cols := p.Columns(req.Layer)
	if _, err := tx.ExecContext(ctx, createTableSQL(req.Table, p, cols)); err != nil {
		return sink.Confirmation{}, fmt.Errorf("create %s: %w", req.Table, err)
	}

	rows, err := insertFeatures(ctx, tx, req, cols)
	if err != nil {
		return sink.Confirmation{}, err
	}

	var index string
	if p.CreateIndex {
		index = indexTable(req.Table, p)
		if err := buildIndex(ctx, tx, req.Table, index, p); err != nil {
			return sink.Confirmation{}, err
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO layer_registry
		(table_name, schema_name, geometry_column, key_column, srid, feature_count, spatial_index, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.Table, req.Schema, p.Column(p.GeometryColumn), p.KeyColumn(), req.SRID, rows,
		sql.NullString{String: index, Valid: index != ""}, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return sink.Confirmation{}, fmt.Errorf("register %s: %w", req.Table, err)
	}
	if err := tx.Commit(); err != nil {
		return sink.Confirmation{}, fmt.Errorf("commit %s: %w", req.Table, err)
	}
	return sink.Confirmation{
		Table:       req.Table,
		Schema:      req.Schema,
		Rows:        rows,
		Overwritten: existed,
		Indexed:     p.CreateIndex,
	}, nil
}

// Layers lists the registry in table order.
func (i *Importer) Layers(ctx context.Context) ([]Layer, error) {
	rows, err := i.db.QueryContext(ctx, `SELECT table_name, schema_name, geometry_column, key_column,
		srid, feature_count, spatial_index, imported_at FROM layer_registry ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	defer rows.Close()
	var out []Layer
	for rows.Next() {
		var l Layer
		var index sql.NullString
		if err := rows.Scan(&l.Table, &l.Schema, &l.GeometryColumn, &l.KeyColumn,
			&l.SRID, &l.Features, &index, &l.ImportedAt); err != nil {
			return nil, fmt.Errorf("scan layer: %w", err)
		}
		if index.Valid {
			l.SpatialIndex = index.String
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Geometries reads back every geometry of table in key order.
func (i *Importer) Geometries(ctx context.Context, table string, p sink.Policy) ([]orb.Geometry, error) {
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		quote(p.Column(p.GeometryColumn)), quote(table), quote(p.KeyColumn()))
	rows, err := i.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	defer rows.Close()
	var out []orb.Geometry
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		g, err := wkb.Unmarshal(blob)
		if err != nil {
			return nil, fmt.Errorf("decode geometry: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func tableExists(ctx context.Context, tx *sql.Tx, table string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", table, err)
	}
	return n > 0, nil
}

func createTableSQL(table string, p sink.Policy, cols []sink.Column) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (", quote(table))
	if p.Surrogate() {
		fmt.Fprintf(&b, "%s INTEGER PRIMARY KEY AUTOINCREMENT", quote(p.KeyColumn()))
	} else {
		fmt.Fprintf(&b, "%s INTEGER PRIMARY KEY", quote(p.KeyColumn()))
	}
	fmt.Fprintf(&b, ", %s BLOB NOT NULL", quote(p.Column(p.GeometryColumn)))
	for _, c := range cols {
		fmt.Fprintf(&b, ", %s %s", quote(c.Name), columnType(c.Type))
	}
	b.WriteString(")")
	return b.String()
}

func columnType(t sink.ColumnType) string {
	switch t {
	case sink.Integer:
		return "INTEGER"
	case sink.Real:
		return "REAL"
	default:
		return "TEXT"
	}
}

func insertFeatures(ctx context.Context, tx *sql.Tx, req sink.ImportRequest, cols []sink.Column) (int, error) {
	p := req.Policy
	names := []string{quote(p.Column(p.GeometryColumn))}
	for _, c := range cols {
		names = append(names, quote(c.Name))
	}
	if !p.Surrogate() {
		names = append(names, quote(p.KeyColumn()))
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(req.Table), strings.Join(names, ", "), marks))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	rows := 0
	for _, f := range req.Layer.Features {
		if f.Geometry == nil {
			continue
		}
		for _, g := range p.Parts(f.Geometry) {
			blob, err := wkb.Marshal(g)
			if err != nil {
				return rows, fmt.Errorf("encode geometry: %w", err)
			}
			args := []any{blob}
			for _, c := range cols {
				args = append(args, c.Value(f.Properties))
			}
			if !p.Surrogate() {
				args = append(args, f.Properties[p.PrimaryKey])
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return rows, fmt.Errorf("insert into %s: %w", req.Table, err)
			}
			rows++
		}
	}
	return rows, nil
}

func buildIndex(ctx context.Context, tx *sql.Tx, table, index string, p sink.Policy) error {
	create := fmt.Sprintf("CREATE VIRTUAL TABLE %s USING rtree(id, minx, maxx, miny, maxy)", quote(index))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	q := fmt.Sprintf("SELECT %s, %s FROM %s", quote(p.KeyColumn()), quote(p.Column(p.GeometryColumn)), quote(table))
	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("scan %s: %w", table, err)
	}
	type entry struct {
		id    int64
		bound orb.Bound
	}
	var entries []entry
	for rows.Next() {
		var e entry
		var blob []byte
		if err := rows.Scan(&e.id, &blob); err != nil {
			rows.Close()
			return err
		}
		g, err := wkb.Unmarshal(blob)
		if err != nil {
			rows.Close()
			return fmt.Errorf("decode geometry: %w", err)
		}
		e.bound = g.Bound()
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	insert := fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?, ?)", quote(index))
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, insert, e.id, e.bound.Min.X(), e.bound.Max.X(), e.bound.Min.Y(), e.bound.Max.Y()); err != nil {
			return fmt.Errorf("index %s: %w", table, err)
		}
	}
	return nil
}

func indexTable(table string, p sink.Policy) string {
	return "rtree_" + table + "_" + p.Column(p.GeometryColumn)
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
