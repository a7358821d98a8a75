package client

import (
	"encoding/binary"
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/moduledb/moduledb-go/pkg/schema"
)

// reconcileKind discriminates the three event shapes reconciliation
// produces.
type reconcileKind int

const (
	reconcileDelete reconcileKind = iota
	reconcileUpdate
	reconcileInsert
)

// reconcileEvent is one emitted event from Reconcile, in emission order.
type reconcileEvent struct {
	Kind   reconcileKind
	Before schema.Row // Delete, Update
	After  schema.Row // Insert, Update
}

func pkKey(row schema.Row, pkIdx []int) uint64 {
	h := murmur3.New64()
	var buf [8]byte
	for _, idx := range pkIdx {
		if idx < 0 || idx >= len(row.Values) {
			continue
		}
		switch v := row.Values[idx].(type) {
		case schema.VU64:
			binary.LittleEndian.PutUint64(buf[:], uint64(v))
			h.Write(buf[:])
		case schema.VI64:
			binary.LittleEndian.PutUint64(buf[:], uint64(v))
			h.Write(buf[:])
		case schema.VU32:
			binary.LittleEndian.PutUint32(buf[:4], uint32(v))
			h.Write(buf[:4])
		case schema.VI32:
			binary.LittleEndian.PutUint32(buf[:4], uint32(v))
			h.Write(buf[:4])
		case schema.VString:
			h.Write([]byte(v))
		case schema.VBytes:
			h.Write(v)
		default:
			h.Write([]byte(fmt.Sprintf("%T:%v", v, v)))
		}
	}
	return h.Sum64()
}

// Reconcile pairs deletes and inserts sharing a primary key into update
// events, emitting pure deletes first, then updates, then pure inserts.
// Multiple rows sharing a primary key within one transaction are paired
// by order of occurrence; this pairing is implementation-defined when a
// key appears more than once on either side.
func Reconcile(deletes, inserts []schema.Row, pkIdx []int) []reconcileEvent {
	// FIFO queues of not-yet-matched inserts per key, preserving order of
	// occurrence within the insert list.
	insertQueues := make(map[uint64][]schema.Row, len(inserts))
	insertOrder := make([]uint64, 0, len(inserts))
	for _, ins := range inserts {
		k := pkKey(ins, pkIdx)
		if _, seen := insertQueues[k]; !seen {
			insertOrder = append(insertOrder, k)
		}
		insertQueues[k] = append(insertQueues[k], ins)
	}

	var updates []reconcileEvent
	var pureDeletes []reconcileEvent
	matchedInsertKeys := make(map[uint64]int) // key -> count consumed

	for _, del := range deletes {
		k := pkKey(del, pkIdx)
		queue := insertQueues[k]
		consumed := matchedInsertKeys[k]
		if consumed < len(queue) {
			updates = append(updates, reconcileEvent{Kind: reconcileUpdate, Before: del, After: queue[consumed]})
			matchedInsertKeys[k] = consumed + 1
		} else {
			pureDeletes = append(pureDeletes, reconcileEvent{Kind: reconcileDelete, Before: del})
		}
	}

	var pureInserts []reconcileEvent
	for _, k := range insertOrder {
		queue := insertQueues[k]
		for i := matchedInsertKeys[k]; i < len(queue); i++ {
			pureInserts = append(pureInserts, reconcileEvent{Kind: reconcileInsert, After: queue[i]})
		}
	}

	out := make([]reconcileEvent, 0, len(pureDeletes)+len(updates)+len(pureInserts))
	out = append(out, pureDeletes...)
	out = append(out, updates...)
	out = append(out, pureInserts...)
	return out
}
