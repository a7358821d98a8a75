// Package protocol implements the client/server message codec: the five
// client message variants, the eight server message variants, and their
// shared sub-structures. Encoding and decoding here is schema-independent —
// these shapes are fixed by the wire protocol itself, not by the database's
// user-defined schema (that layer lives in pkg/schema).
package protocol

// Client message tags.
const (
	TagSubscribe     = 0
	TagUnsubscribe   = 1
	TagOneOffQuery   = 2
	TagCallReducer   = 3
	TagCallProcedure = 4
)

// Server message tags.
const (
	TagInitialConnection  = 0
	TagSubscribeApplied   = 1
	TagUnsubscribeApplied = 2
	TagSubscriptionError  = 3
	TagTransactionUpdate  = 4
	TagOneOffQueryResult  = 5
	TagReducerResult      = 6
	TagProcedureResult    = 7
)

// Unsubscribe flags.
const (
	UnsubscribeDefault          = 0
	UnsubscribeSendDroppedRows  = 1
)

// Compression envelope tags, shared with internal/conn.
const (
	CompressionNone   byte = 0x00
	CompressionBrotli byte = 0x01
	CompressionGzip   byte = 0x02
)

// Subscribe is client message tag 0.
type Subscribe struct {
	RequestID  uint32
	QuerySetID uint32
	Queries    []string
}

// Unsubscribe is client message tag 1.
type Unsubscribe struct {
	RequestID  uint32
	QuerySetID uint32
	Flags      uint8
}

// OneOffQuery is client message tag 2.
type OneOffQuery struct {
	RequestID uint32
	Query     string
}

// CallReducer is client message tag 3. Args are the pre-encoded BSATN bytes
// of the reducer's argument product.
type CallReducer struct {
	RequestID uint32
	Flags     uint8
	Reducer   string
	Args      []byte
}

// CallProcedure is client message tag 4.
type CallProcedure struct {
	RequestID uint32
	Flags     uint8
	Procedure string
	Args      []byte
}

// SizeHintKind discriminates the two BsatnRowList size-hint forms.
type SizeHintKind int

const (
	SizeHintFixed SizeHintKind = iota
	SizeHintOffsets
)

// BsatnRowList is a row-list blob as it appears on the wire: a size hint
// plus the raw row bytes it describes. Decoding it into typed rows against
// a table's columns is pkg/schema's job (DecodeRowList).
type BsatnRowList struct {
	HintKind SizeHintKind
	Stride   uint16
	Offsets  []uint64
	RowsData []byte
}

// SingleTableRows pairs a table name with its row-list blob.
type SingleTableRows struct {
	Table string
	Rows  BsatnRowList
}

// QueryRows is the row payload of SubscribeApplied/UnsubscribeApplied/
// OneOffQueryResult: one row-list per subscribed table.
type QueryRows struct {
	Tables []SingleTableRows
}

// TableUpdateKind discriminates the two TableUpdateRows sum variants.
type TableUpdateKind int

const (
	TableUpdatePersistent TableUpdateKind = iota
	TableUpdateEvent
)

// TableUpdateRows is one entry of a TableUpdate's rows array: either a
// Persistent change (inserts/deletes to apply to the cache) or an Event
// (transient rows the cache ignores).
type TableUpdateRows struct {
	Kind    TableUpdateKind
	Inserts BsatnRowList // Persistent only
	Deletes BsatnRowList // Persistent only
	Events  BsatnRowList // Event only
}

// TableUpdate carries all row batches for one table within a query set.
type TableUpdate struct {
	TableName string
	Rows      []TableUpdateRows
}

// QuerySetUpdate carries all table updates for one query set within a
// TransactionUpdate.
type QuerySetUpdate struct {
	QuerySetID uint32
	Tables     []TableUpdate
}

// ReducerOutcomeKind discriminates the four ReducerOutcome sum variants.
type ReducerOutcomeKind int

const (
	ReducerOutcomeOk ReducerOutcomeKind = iota
	ReducerOutcomeOkEmpty
	ReducerOutcomeErr
	ReducerOutcomeInternalError
)

// ReducerOutcome is the payload of ReducerResult.
type ReducerOutcome struct {
	Kind    ReducerOutcomeKind
	Ret     []byte             // Ok only
	Tx      *TransactionUpdate // Ok only
	ErrMsg  []byte             // Err only (raw bytes)
	Message string             // InternalError only
}

// ProcedureStatusKind discriminates the two ProcedureStatus sum variants.
type ProcedureStatusKind int

const (
	ProcedureReturned      ProcedureStatusKind = iota
	ProcedureInternalError
)

// ProcedureStatus is the outcome payload of ProcedureResult.
type ProcedureStatus struct {
	Kind    ProcedureStatusKind
	Ret     []byte // Returned only
	Message string // InternalError only
}

// ServerMessage is implemented by every decoded server message variant. It
// carries no behavior beyond identifying the variant; callers type-switch
// on the concrete type.
type ServerMessage interface {
	serverMessage()
}

// InitialConnection is server message tag 0.
type InitialConnection struct {
	Identity     [32]byte
	ConnectionID [16]byte
	Token        string
}

// SubscribeApplied is server message tag 1.
type SubscribeApplied struct {
	RequestID  uint32
	QuerySetID uint32
	Rows       QueryRows
}

// UnsubscribeApplied is server message tag 2.
type UnsubscribeApplied struct {
	RequestID  uint32
	QuerySetID uint32
	Rows       *QueryRows // nil = None
}

// SubscriptionError is server message tag 3. RequestID is nil when the
// server could not associate the error with a specific request.
type SubscriptionError struct {
	RequestID  *uint32
	QuerySetID uint32
	Error      string
}

// TransactionUpdate is server message tag 4.
type TransactionUpdate struct {
	QuerySets []QuerySetUpdate
}

// OneOffQueryResult is server message tag 5.
type OneOffQueryResult struct {
	RequestID uint32
	Ok        bool
	Rows      QueryRows // valid iff Ok
	ErrMsg    string    // valid iff !Ok
}

// ReducerResult is server message tag 6.
type ReducerResult struct {
	RequestID   uint32
	TimestampNs int64
	Outcome     ReducerOutcome
}

// ProcedureResult is server message tag 7.
type ProcedureResult struct {
	Status      ProcedureStatus
	TimestampNs int64
	DurationNs  int64
	RequestID   uint32
}

func (InitialConnection) serverMessage()  {}
func (SubscribeApplied) serverMessage()   {}
func (UnsubscribeApplied) serverMessage() {}
func (SubscriptionError) serverMessage()  {}
func (TransactionUpdate) serverMessage()  {}
func (OneOffQueryResult) serverMessage()  {}
func (ReducerResult) serverMessage()      {}
func (ProcedureResult) serverMessage()    {}
