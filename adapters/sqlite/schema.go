package sqlite

const (
	schemaVersionV1 = 1
	schemaVersionV2 = 2
)

// currentSchemaVersion is the registry version this build writes.
const currentSchemaVersion = schemaVersionV2

const schemaV2 = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS layer_registry (
	table_name      TEXT PRIMARY KEY,
	schema_name     TEXT NOT NULL DEFAULT '',
	geometry_column TEXT NOT NULL,
	key_column      TEXT NOT NULL,
	srid            INTEGER NOT NULL DEFAULT 0,
	feature_count   INTEGER NOT NULL DEFAULT 0,
	spatial_index   TEXT,
	imported_at     TEXT NOT NULL
);
`

// v1 registries had no key or index bookkeeping.
const migrateV1ToV2SQL = `
ALTER TABLE layer_registry ADD COLUMN key_column TEXT NOT NULL DEFAULT 'id';
ALTER TABLE layer_registry ADD COLUMN spatial_index TEXT;
`
