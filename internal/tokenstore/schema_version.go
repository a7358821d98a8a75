package tokenstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/moduledb/moduledb-go/pkg/schema"
)

// SchemaCacheManager wraps a Store's schema_cache table with drift
// detection: it decides whether a freshly fetched schema document differs
// from what was cached last time, so the caller knows whether the local
// row cache and persisted bloom filters need to be dropped.
type SchemaCacheManager struct {
	store *Store
}

// NewSchemaCacheManager builds a manager over store.
func NewSchemaCacheManager(store *Store) *SchemaCacheManager {
	return &SchemaCacheManager{store: store}
}

// Reconcile compares freshDoc against whatever is cached for (host,
// database). If nothing was cached, it stores freshDoc as version 1 and
// reports changed. If the cached document is equivalent, it stores nothing
// and reports the cached version unchanged. Otherwise it stores freshDoc
// under the next version and reports changed.
func (m *SchemaCacheManager) Reconcile(ctx context.Context, host, database string, freshDoc []byte) (changed bool, version int, err error) {
	cached, prevVersion, ok, err := m.store.LoadSchemaDocument(ctx, host, database)
	if err != nil {
		return false, 0, err
	}
	if !ok {
		if err := m.store.SaveSchemaDocument(ctx, host, database, 1, freshDoc); err != nil {
			return false, 0, err
		}
		return true, 1, nil
	}

	same, err := schemaDocsEquivalent(cached, freshDoc)
	if err != nil {
		return false, 0, fmt.Errorf("tokenstore: comparing schema documents: %w", err)
	}
	if same {
		return false, prevVersion, nil
	}

	newVersion := prevVersion + 1
	if err := m.store.SaveSchemaDocument(ctx, host, database, newVersion, freshDoc); err != nil {
		return false, 0, err
	}
	return true, newVersion, nil
}

// schemaDocsEquivalent reports whether two schema documents resolve to the
// same set of tables, columns, and reducers. A byte-identical comparison
// would false-positive on cosmetic re-serialization (key ordering,
// whitespace) from the server, so this parses both and compares shape.
func schemaDocsEquivalent(a, b []byte) (bool, error) {
	if bytes.Equal(a, b) {
		return true, nil
	}
	schemaA, err := schema.Parse(a)
	if err != nil {
		return false, err
	}
	schemaB, err := schema.Parse(b)
	if err != nil {
		return false, err
	}
	return sameShape(schemaA, schemaB), nil
}

func sameShape(a, b *schema.Schema) bool {
	if len(a.Tables) != len(b.Tables) || len(a.Reducers) != len(b.Reducers) {
		return false
	}
	for name, ta := range a.Tables {
		tb, ok := b.Tables[name]
		if !ok || !sameColumns(ta.Columns, tb.Columns) || !sameInts(ta.PrimaryKey, tb.PrimaryKey) {
			return false
		}
	}
	for name, ra := range a.Reducers {
		rb, ok := b.Reducers[name]
		if !ok || !sameColumns(ra.Params, rb.Params) {
			return false
		}
	}
	return true
}

func sameColumns(a, b []schema.Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].HasName != b[i].HasName || a[i].Type.Kind != b[i].Type.Kind {
			return false
		}
	}
	return true
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
