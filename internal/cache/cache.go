// Package cache mirrors subscribed tables in-process, keyed by primary
// key. It is the sole owner of the per-table maps: only this package
// mutates them, following the single-writer/many-reader shape of the
// teacher's manifest catalog (one RWMutex-guarded map per resource).
package cache

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/spaolacci/murmur3"

	"github.com/moduledb/moduledb-go/internal/bloom"
	"github.com/moduledb/moduledb-go/pkg/schema"
)

// Key is the hashed form of a primary-key value (single column or
// composite tuple), used to index a table's row map.
type Key uint64

// table is the store for one subscribed table.
type table struct {
	mu     sync.RWMutex
	rows   map[Key]schema.Row
	filter *bloom.BloomFilter // fast negative pre-check before a map probe
	pkIdx  []int
}

func newTable(pkIdx []int) *table {
	return &table{
		rows:   make(map[Key]schema.Row),
		filter: bloom.NewWithEstimates(1024, 0.01),
		pkIdx:  pkIdx,
	}
}

// Cache mirrors every table named in a resolved schema.
type Cache struct {
	sch    *schema.Schema
	mu     sync.RWMutex // guards the tables map itself, not its contents
	tables map[string]*table
}

// New builds an empty cache for every table in sch, ready to receive
// snapshot and delta applications.
func New(sch *schema.Schema) *Cache {
	c := &Cache{sch: sch, tables: make(map[string]*table)}
	for name, def := range sch.Tables {
		pk := def.PrimaryKey
		if len(pk) == 0 {
			// Fall back to column 0 without fabricating uniqueness beyond
			// what the schema declares.
			pk = []int{0}
		}
		c.tables[name] = newTable(pk)
	}
	return c
}

func (c *Cache) tableFor(name string) (*table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	return t, ok
}

// keyOf computes the composite primary-key hash for a decoded row, given
// the table's declared primary-key column indices.
func keyOf(row schema.Row, pkIdx []int) Key {
	h := murmur3.New64()
	for _, idx := range pkIdx {
		if idx < 0 || idx >= len(row.Values) {
			continue
		}
		writeValueBytes(h, row.Values[idx])
	}
	return Key(h.Sum64())
}

// writeValueBytes feeds a stable byte representation of v into h. Only the
// kinds that can legally appear in a primary key need to be covered
// precisely; anything else falls back to a name-tagged representation that
// is still stable and collision-resistant for our purposes.
func writeValueBytes(h interface{ Write([]byte) (int, error) }, v schema.Value) {
	var buf [8]byte
	switch x := v.(type) {
	case schema.VBool:
		if x {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case schema.VU8:
		h.Write([]byte{byte(x)})
	case schema.VI8:
		h.Write([]byte{byte(x)})
	case schema.VU16:
		binary.LittleEndian.PutUint16(buf[:2], uint16(x))
		h.Write(buf[:2])
	case schema.VI16:
		binary.LittleEndian.PutUint16(buf[:2], uint16(x))
		h.Write(buf[:2])
	case schema.VU32:
		binary.LittleEndian.PutUint32(buf[:4], uint32(x))
		h.Write(buf[:4])
	case schema.VI32:
		binary.LittleEndian.PutUint32(buf[:4], uint32(x))
		h.Write(buf[:4])
	case schema.VU64:
		binary.LittleEndian.PutUint64(buf[:8], uint64(x))
		h.Write(buf[:8])
	case schema.VI64:
		binary.LittleEndian.PutUint64(buf[:8], uint64(x))
		h.Write(buf[:8])
	case schema.VString:
		h.Write([]byte(x))
	case schema.VBytes:
		h.Write(x)
	default:
		h.Write([]byte(fmt.Sprintf("%T:%v", x, x)))
	}
}

// ApplySnapshot decodes rows for one table (from SubscribeApplied) and
// inserts them by primary key, overwriting any existing entry under the
// same key.
func (c *Cache) ApplySnapshot(tableName string, rows []schema.Row) {
	t, ok := c.tableFor(tableName)
	if !ok {
		log.Printf("cache: snapshot for unknown table %q dropped", tableName)
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, row := range rows {
		k := keyOf(row, t.pkIdx)
		t.rows[k] = row
		t.filter.Add(keyBytes(k))
	}
}

// ApplyDelta applies a Persistent table update: deletes first, then
// inserts. Event rows are the caller's concern to skip before calling
// this (this function only ever sees Persistent payloads).
func (c *Cache) ApplyDelta(tableName string, deletes, inserts []schema.Row) {
	t, ok := c.tableFor(tableName)
	if !ok {
		log.Printf("cache: delta for unknown table %q dropped", tableName)
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, row := range deletes {
		delete(t.rows, keyOf(row, t.pkIdx))
	}
	for _, row := range inserts {
		k := keyOf(row, t.pkIdx)
		t.rows[k] = row
		t.filter.Add(keyBytes(k))
	}
}

func keyBytes(k Key) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(k))
	return b[:]
}

// GetAll returns every row currently cached for table, or nil (never an
// error) for an unknown table, logging the unknown name on each call.
func (c *Cache) GetAll(tableName string) []schema.Row {
	t, ok := c.tableFor(tableName)
	if !ok {
		log.Printf("cache: get_all on unknown table %q", tableName)
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]schema.Row, 0, len(t.rows))
	for _, row := range t.rows {
		out = append(out, row)
	}
	return out
}

// Find looks up one row by its decoded primary-key value(s). pkValues must
// be in the same order as the table's declared primary_key indices.
func (c *Cache) Find(tableName string, pkValues ...schema.Value) (schema.Row, bool) {
	t, ok := c.tableFor(tableName)
	if !ok {
		log.Printf("cache: find on unknown table %q", tableName)
		return schema.Row{}, false
	}
	probe := schema.Row{Values: pkValues}
	idx := make([]int, len(pkValues))
	for i := range idx {
		idx[i] = i
	}
	k := keyOf(probe, idx)

	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.filter.Contains(keyBytes(k)) {
		return schema.Row{}, false
	}
	row, ok := t.rows[k]
	return row, ok
}

// FilterSnapshot is an exported bloom filter ready to persist.
type FilterSnapshot struct {
	Data      []byte
	NumBits   uint64
	NumHashes uint64
	Count     uint64
}

// ExportFilter returns a Snappy-compressed serialization of table's bloom
// filter, suitable for persisting across restarts. Returns ok=false for an
// unknown table.
func (c *Cache) ExportFilter(tableName string) (snap FilterSnapshot, ok bool, err error) {
	t, found := c.tableFor(tableName)
	if !found {
		return FilterSnapshot{}, false, nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	data, err := bloom.SerializeCompressed(t.filter)
	if err != nil {
		return FilterSnapshot{}, false, err
	}
	return FilterSnapshot{
		Data:      data,
		NumBits:   uint64(t.filter.NumBits()),
		NumHashes: uint64(t.filter.NumHashes()),
		Count:     t.filter.Count(),
	}, true, nil
}

// ImportFilter replaces table's bloom filter with one deserialized from a
// prior ExportFilter call. Only makes sense to call before any snapshot or
// delta has populated the table — it does not merge with existing state.
func (c *Cache) ImportFilter(tableName string, data []byte) error {
	t, ok := c.tableFor(tableName)
	if !ok {
		return nil
	}
	bf, err := bloom.DeserializeCompressed(data)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filter = bf
	return nil
}

// Count returns the number of rows cached for table, or 0 for an unknown
// table.
func (c *Cache) Count(tableName string) int {
	t, ok := c.tableFor(tableName)
	if !ok {
		log.Printf("cache: count on unknown table %q", tableName)
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}
