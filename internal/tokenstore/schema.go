// Package tokenstore persists per-connection auth tokens, the last-seen
// schema document, and an optional serialized bloom filter to a local
// SQLite database, so a process restart doesn't need a fresh handshake or
// a cold cache.
package tokenstore

// CreateTokensTableSQL creates the tokens table: one row per (host,
// database) pair, holding the most recently issued auth token.
const CreateTokensTableSQL = `
CREATE TABLE IF NOT EXISTS tokens (
    host TEXT NOT NULL,
    database TEXT NOT NULL,
    token TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (host, database)
)`

// CreateSchemaCacheTableSQL creates the schema_cache table: the raw JSON
// schema document last fetched for a (host, database) pair, versioned so
// a schema change on the server can be detected without a byte-for-byte
// diff on every fetch.
const CreateSchemaCacheTableSQL = `
CREATE TABLE IF NOT EXISTS schema_cache (
    host TEXT NOT NULL,
    database TEXT NOT NULL,
    version INTEGER NOT NULL,
    schema_json BLOB NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (host, database)
)`

// CreateBloomFiltersTableSQL creates the bloom_filters table: one
// Snappy-compressed serialized bloom filter per (host, database, table),
// used to skip a round of map misses right after a cold start.
const CreateBloomFiltersTableSQL = `
CREATE TABLE IF NOT EXISTS bloom_filters (
    host TEXT NOT NULL,
    database TEXT NOT NULL,
    table_name TEXT NOT NULL,
    compressed_data BLOB NOT NULL,
    num_bits INTEGER NOT NULL,
    num_hashes INTEGER NOT NULL,
    item_count INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (host, database, table_name)
)`

// AllSchemaSQL returns every statement needed to initialize the store.
func AllSchemaSQL() []string {
	return []string{
		CreateTokensTableSQL,
		CreateSchemaCacheTableSQL,
		CreateBloomFiltersTableSQL,
	}
}
