package tokenstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists auth tokens, cached schema documents, and serialized
// bloom filters for reconnect and warm-start. It follows the single
// writer / concurrent-reader connection split used elsewhere for local
// SQLite state: one connection with SetMaxOpenConns(1) for writes, and a
// separate read-only pool for concurrent lookups.
type Store struct {
	db     *sql.DB
	readDB *sql.DB
	mu     sync.Mutex
}

// Open opens (creating if needed) a token store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("tokenstore: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("tokenstore: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db, readDB: readDB}
	if err := s.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range AllSchemaSQL() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("tokenstore: failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// SaveToken records the most recently issued auth token for a (host,
// database) pair, replacing any prior value.
func (s *Store) SaveToken(ctx context.Context, host, database, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens (host, database, token, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(host, database) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		host, database, token, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("tokenstore: failed to save token: %w", err)
	}
	return nil
}

// LoadToken returns the stored token for (host, database), or "", false
// if none has been saved.
func (s *Store) LoadToken(ctx context.Context, host, database string) (string, bool, error) {
	var token string
	err := s.readDB.QueryRowContext(ctx,
		"SELECT token FROM tokens WHERE host = ? AND database = ?", host, database,
	).Scan(&token)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("tokenstore: failed to load token: %w", err)
	}
	return token, true, nil
}

// DeleteToken removes a stored token, e.g. after the server rejects it.
func (s *Store) DeleteToken(ctx context.Context, host, database string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE host = ? AND database = ?", host, database)
	if err != nil {
		return fmt.Errorf("tokenstore: failed to delete token: %w", err)
	}
	return nil
}

// SaveSchemaDocument stores the raw JSON schema document last fetched for
// (host, database) alongside a caller-supplied version number.
func (s *Store) SaveSchemaDocument(ctx context.Context, host, database string, version int, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schema_cache (host, database, version, schema_json, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(host, database) DO UPDATE SET version = excluded.version, schema_json = excluded.schema_json, updated_at = excluded.updated_at`,
		host, database, version, doc, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("tokenstore: failed to save schema document: %w", err)
	}
	return nil
}

// LoadSchemaDocument returns the cached schema document and its version
// for (host, database), or ok=false if nothing has been cached yet.
func (s *Store) LoadSchemaDocument(ctx context.Context, host, database string) (doc []byte, version int, ok bool, err error) {
	err = s.readDB.QueryRowContext(ctx,
		"SELECT version, schema_json FROM schema_cache WHERE host = ? AND database = ?", host, database,
	).Scan(&version, &doc)
	if err == sql.ErrNoRows {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("tokenstore: failed to load schema document: %w", err)
	}
	return doc, version, true, nil
}

// SaveBloomFilter stores a Snappy-compressed serialized bloom filter for
// one table, so the cache can seed its fast-negative-path filter before
// the first snapshot arrives.
func (s *Store) SaveBloomFilter(ctx context.Context, host, database, table string, compressed []byte, numBits, numHashes uint64, count uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bloom_filters (host, database, table_name, compressed_data, num_bits, num_hashes, item_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(host, database, table_name) DO UPDATE SET
			compressed_data = excluded.compressed_data,
			num_bits = excluded.num_bits,
			num_hashes = excluded.num_hashes,
			item_count = excluded.item_count,
			updated_at = excluded.updated_at`,
		host, database, table, compressed, numBits, numHashes, count, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("tokenstore: failed to save bloom filter: %w", err)
	}
	return nil
}

// BloomFilterRecord is a stored, still-compressed bloom filter.
type BloomFilterRecord struct {
	CompressedData []byte
	NumBits        uint64
	NumHashes      uint64
	ItemCount      uint64
}

// LoadBloomFilter returns the stored bloom filter for (host, database,
// table), or ok=false if none has been persisted.
func (s *Store) LoadBloomFilter(ctx context.Context, host, database, table string) (*BloomFilterRecord, bool, error) {
	var rec BloomFilterRecord
	err := s.readDB.QueryRowContext(ctx,
		`SELECT compressed_data, num_bits, num_hashes, item_count FROM bloom_filters
		 WHERE host = ? AND database = ? AND table_name = ?`,
		host, database, table,
	).Scan(&rec.CompressedData, &rec.NumBits, &rec.NumHashes, &rec.ItemCount)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("tokenstore: failed to load bloom filter: %w", err)
	}
	return &rec, true, nil
}

// Close closes both connections, write first so no reader can outlive it.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		s.readDB.Close()
		return err
	}
	return s.readDB.Close()
}
