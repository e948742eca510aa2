package vector

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"

	_ "modernc.org/sqlite"
)

// gpkgApplicationID is "GPKG" as a big-endian int32.
const gpkgApplicationID = 0x47504B47

var errGeometryBlob = errors.New("vector: not a GeoPackage geometry blob")

const gpkgSchema = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name TEXT NOT NULL,
	srs_id INTEGER PRIMARY KEY,
	organization TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition TEXT NOT NULL,
	description TEXT
);
INSERT INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', NULL),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', NULL);

CREATE TABLE gpkg_contents (
	table_name TEXT NOT NULL PRIMARY KEY,
	data_type TEXT NOT NULL,
	identifier TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
	srs_id INTEGER
);

CREATE TABLE gpkg_geometry_columns (
	table_name TEXT NOT NULL,
	column_name TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id INTEGER NOT NULL,
	z TINYINT NOT NULL,
	m TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name)
);
`

// WriteGeoPackage writes fc as the only feature table of a new GeoPackage
// at path, replacing any existing file. The table is named after the file.
func WriteGeoPackage(path string, fc *geojson.FeatureCollection) error {
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := Remove(path); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	table := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	cols := columns(fc, 0)

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(fmt.Sprintf("PRAGMA application_id = %d", gpkgApplicationID)); err != nil {
		return fmt.Errorf("init %s: %w", path, err)
	}
	if _, err := tx.Exec(gpkgSchema); err != nil {
		return fmt.Errorf("init %s: %w", path, err)
	}

	def := []string{`"fid" INTEGER PRIMARY KEY AUTOINCREMENT`, `"geom" BLOB`}
	for _, c := range cols {
		def = append(def, fmt.Sprintf("%s %s", quoteIdent(c.name), c.sqlType()))
	}
	if _, err := tx.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(def, ", "))); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}

	names := []string{`"geom"`}
	for _, c := range cols {
		names = append(names, quoteIdent(c.name))
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), strings.Join(names, ", "), marks))
	if err != nil {
		return err
	}
	defer stmt.Close()

	var bound orb.Bound
	for i, f := range fc.Features {
		args := []any{nil}
		if f.Geometry != nil {
			blob, err := encodeGeometry(f.Geometry, -1)
			if err != nil {
				return err
			}
			args[0] = blob
			if i == 0 {
				bound = f.Geometry.Bound()
			} else {
				bound = bound.Union(f.Geometry.Bound())
			}
		}
		for _, c := range cols {
			v, ok := c.value(f.Properties[c.key])
			if !ok {
				v = nil
			}
			args = append(args, v)
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}

	if _, err := tx.Exec(`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		VALUES (?, 'features', ?, ?, ?, ?, ?, -1)`,
		table, table, bound.Min.X(), bound.Min.Y(), bound.Max.X(), bound.Max.Y()); err != nil {
		return fmt.Errorf("register %s: %w", table, err)
	}
	if _, err := tx.Exec(`INSERT INTO gpkg_geometry_columns VALUES (?, 'geom', 'GEOMETRY', -1, 0, 0)`, table); err != nil {
		return fmt.Errorf("register %s: %w", table, err)
	}
	return tx.Commit()
}

// ReadGeoPackage decodes the first feature table of a GeoPackage, by name.
// The primary key and geometry columns do not become properties.
func ReadGeoPackage(path string) (*geojson.FeatureCollection, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	var table, geomCol string
	err = db.QueryRow(`SELECT c.table_name, g.column_name FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		WHERE c.data_type = 'features' ORDER BY c.table_name LIMIT 1`).Scan(&table, &geomCol)
	if err != nil {
		return nil, fmt.Errorf("%s: no feature table: %w", path, err)
	}
	pk, err := primaryKey(db, table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s", quoteIdent(table))
	if pk != "" {
		query += " ORDER BY " + quoteIdent(pk)
	}
	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		f := geojson.NewFeature(nil)
		for i, name := range names {
			switch {
			case strings.EqualFold(name, geomCol):
				blob, _ := vals[i].([]byte)
				if len(blob) == 0 {
					continue
				}
				g, err := decodeGeometry(blob)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", table, err)
				}
				f.Geometry = g
			case strings.EqualFold(name, pk):
				f.ID = vals[i]
			default:
				if b, ok := vals[i].([]byte); ok {
					vals[i] = string(b)
				}
				f.Properties[name] = vals[i]
			}
		}
		fc.Append(f)
	}
	return fc, rows.Err()
}

func primaryKey(db *sql.DB, table string) (string, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return "", fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid      int
			name     string
			typ      string
			notNull  int
			defValue sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defValue, &pk); err != nil {
			return "", err
		}
		if pk == 1 {
			return name, nil
		}
	}
	return "", rows.Err()
}

// encodeGeometry builds a GeoPackage blob: the GP header with an XY
// envelope, then little-endian WKB.
func encodeGeometry(g orb.Geometry, srsID int32) ([]byte, error) {
	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	b := g.Bound()
	var buf bytes.Buffer
	buf.Write([]byte{'G', 'P', 0, 0x03})
	_ = binary.Write(&buf, binary.LittleEndian, srsID)
	_ = binary.Write(&buf, binary.LittleEndian, [4]float64{b.Min.X(), b.Max.X(), b.Min.Y(), b.Max.Y()})
	buf.Write(body)
	return buf.Bytes(), nil
}

func decodeGeometry(blob []byte) (orb.Geometry, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, errGeometryBlob
	}
	flags := blob[3]
	var envelope int
	switch (flags >> 1) & 0x07 {
	case 0:
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, errGeometryBlob
	}
	if len(blob) < 8+envelope {
		return nil, errGeometryBlob
	}
	return wkb.Unmarshal(blob[8+envelope:])
}

func (c column) sqlType() string {
	switch {
	case c.integer:
		return "INTEGER"
	case c.numeric:
		return "REAL"
	default:
		return "TEXT"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
