package client

import (
	"github.com/moduledb/moduledb-go/internal/protocol"
	"github.com/moduledb/moduledb-go/pkg/schema"
)

// Observer receives every event the façade dispatches. Implementations
// embed BaseObserver and override only the callbacks they care about,
// the same no-op-embedding pattern generated gRPC service stubs use,
// applied here to a plain Go interface.
type Observer interface {
	OnConnect(identity [32]byte, connectionID [16]byte)
	OnSubscribeApplied(table string, rows []schema.Row)
	OnUnsubscribeApplied(querySetID uint32, rows []schema.Row)
	OnInsert(table string, row schema.Row)
	OnDelete(table string, row schema.Row)
	OnUpdate(table string, before, after schema.Row)
	// OnTransaction fires once per query set within a TransactionUpdate.
	// Returning true suppresses the subsequent per-row
	// OnInsert/OnDelete/OnUpdate calls for that query set, letting an observer that only wants
	// table-level batches skip the row reconciliation pass entirely.
	OnTransaction(changes TransactionChanges) (suppressRowEvents bool)
	OnReducerResult(result protocol.ReducerResult)
	OnQueryResult(result protocol.OneOffQueryResult)
	OnSubscriptionError(querySetID uint32, requestID *uint32, message string)
	OnDisconnect(reason error, attempt int)
	OnConnectionFailed()
}

// TableChange is one table's raw delete and insert rows for a query set
// within a transaction, before primary-key reconciliation.
type TableChange struct {
	Table   string
	Deletes []schema.Row
	Inserts []schema.Row
}

// TransactionChanges is the raw per-table delete/insert lists for one query
// set of a TransactionUpdate, handed to OnTransaction before per-row
// reconciliation.
type TransactionChanges struct {
	QuerySetID uint32
	Tables     []TableChange
}

// BaseObserver implements Observer with no-op methods. Embed it and
// override only what's needed.
type BaseObserver struct{}

func (BaseObserver) OnConnect([32]byte, [16]byte)                        {}
func (BaseObserver) OnSubscribeApplied(string, []schema.Row)             {}
func (BaseObserver) OnUnsubscribeApplied(uint32, []schema.Row)           {}
func (BaseObserver) OnInsert(string, schema.Row)                         {}
func (BaseObserver) OnDelete(string, schema.Row)                         {}
func (BaseObserver) OnUpdate(string, schema.Row, schema.Row)             {}
func (BaseObserver) OnTransaction(TransactionChanges) bool               { return false }
func (BaseObserver) OnReducerResult(protocol.ReducerResult)              {}
func (BaseObserver) OnQueryResult(protocol.OneOffQueryResult)            {}
func (BaseObserver) OnSubscriptionError(uint32, *uint32, string)         {}
func (BaseObserver) OnDisconnect(error, int)                             {}
func (BaseObserver) OnConnectionFailed()                                 {}
