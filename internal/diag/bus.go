// Package diag provides a best-effort, in-process diagnostic event bus.
// It exists alongside the façade's ordered Observer dispatch, not instead
// of it: nothing here is required for correct operation, and a full
// channel drops events rather than applying backpressure to the caller.
package diag

import (
	"sync"

	"github.com/google/uuid"

	"github.com/moduledb/moduledb-go/pkg/types"
)

// EventKind discriminates the kinds of diagnostic events published.
type EventKind int

const (
	ConnectionEstablished EventKind = iota
	ConnectionLost
	ReconnectAttempt
	ReconnectGaveUp
	SubscriptionApplied
	SubscriptionErrored
	SchemaVersionChanged
	BloomFilterPersisted
	TokenPersisted
)

// Event is one diagnostic occurrence, published on a best-effort basis.
type Event struct {
	Kind    EventKind
	Table   string // set for table-scoped events; empty otherwise
	Attempt int    // set for ReconnectAttempt/ReconnectGaveUp
	Detail  string

	// TraceID is stamped by Publish, not the caller, so every event a
	// subscriber sees is uniquely and lexicographically correlatable
	// even across concurrent publishers.
	TraceID types.ULID
}

// Bus is an in-process pub/sub bus for Events. Publish never blocks: a
// subscriber whose channel is full simply misses the event.
type Bus struct {
	subscribers sync.Map
	bufferSize  int
	ids         *types.ULIDGenerator
}

// New creates a Bus whose subscriber channels are buffered to bufferSize.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Bus{bufferSize: bufferSize, ids: types.NewULIDGenerator()}
}

// Publish stamps ev with a fresh trace ID and sends it to every
// subscriber matching one of its filter kinds (or every subscriber, if a
// subscription registered no filters).
func (b *Bus) Publish(ev Event) {
	if id, err := b.ids.Generate(); err == nil {
		ev.TraceID = id
	}
	b.subscribers.Range(func(_, value interface{}) bool {
		sub := value.(*subscriber)
		if !sub.matches(ev.Kind) {
			return true
		}
		select {
		case sub.ch <- ev:
		default:
			// Full: drop rather than block the publisher.
		}
		return true
	})
}

// Subscribe registers a new listener and returns its channel and an
// unsubscribe function. An empty kinds list receives every event. Each
// subscriber is keyed by a fresh UUID rather than a sequence number, the
// same correlation-ID idiom the request-logging middleware uses.
func (b *Bus) Subscribe(kinds ...EventKind) (<-chan Event, func()) {
	id := uuid.New().String()
	sub := &subscriber{ch: make(chan Event, b.bufferSize), kinds: kinds}
	b.subscribers.Store(id, sub)
	return sub.ch, func() {
		if _, ok := b.subscribers.LoadAndDelete(id); ok {
			close(sub.ch)
		}
	}
}

type subscriber struct {
	ch    chan Event
	kinds []EventKind
}

func (s *subscriber) matches(k EventKind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	for _, want := range s.kinds {
		if want == k {
			return true
		}
	}
	return false
}
