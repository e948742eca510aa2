// Package sink uploads vector layers into a spatial database when, and only
// when, a connection is configured.
package sink

import (
	"net/url"
	"strings"
)

// Connection names a spatial database. DSN is handed to the importer as-is.
type Connection struct {
	Name string `json:"name" yaml:"name"`
	DSN  string `json:"dsn" yaml:"dsn"`
}

// Driver guesses the database family from the DSN: "postgres" for
// postgres:// and key=value strings, "sqlite" for sqlite:// and file paths.
func (c Connection) Driver() string {
	dsn := strings.TrimSpace(c.DSN)
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		switch u.Scheme {
		case "postgres", "postgresql":
			return "postgres"
		case "sqlite", "file":
			return "sqlite"
		}
	}
	if strings.Contains(dsn, "dbname=") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Label is the connection name, falling back to the DSN with any password
// removed.
func (c Connection) Label() string {
	if c.Name != "" {
		return c.Name
	}
	if u, err := url.Parse(c.DSN); err == nil && u.User != nil {
		return u.Redacted()
	}
	return c.DSN
}

// Target is either None or Configured. The writer switches on it once.
type Target interface {
	isTarget()
}

// None means no database connection: nothing is uploaded.
type None struct{}

// Configured uploads into Schema on Connection.
type Configured struct {
	Connection Connection
	Schema     string
}

func (None) isTarget()       {}
func (Configured) isTarget() {}

// NewTarget returns None when conn is nil or has no DSN. The schema is
// ignored without a connection.
func NewTarget(conn *Connection, schema string) Target {
	if conn == nil || strings.TrimSpace(conn.DSN) == "" {
		return None{}
	}
	return Configured{Connection: *conn, Schema: schema}
}

// Policy is the fixed set of import options applied to every table.
type Policy struct {
	Overwrite        bool
	CreateIndex      bool
	LowercaseNames   bool
	Encoding         string
	ForceSinglepart  bool
	DropStringLength bool
	// PrimaryKey empty means the importer adds a surrogate key.
	PrimaryKey     string
	GeometryColumn string
}

// DefaultPolicy overwrites existing tables, builds a spatial index,
// lower-cases column names and keeps multi-part geometries.
func DefaultPolicy() Policy {
	return Policy{
		Overwrite:      true,
		CreateIndex:    true,
		LowercaseNames: true,
		Encoding:       "UTF-8",
		GeometryColumn: "geom",
	}
}

// Column applies the naming policy to an attribute name.
func (p Policy) Column(name string) string {
	if p.LowercaseNames {
		return strings.ToLower(name)
	}
	return name
}
