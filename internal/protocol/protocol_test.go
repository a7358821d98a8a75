package protocol

import (
	"bytes"
	"testing"
)

// S1: InitialConnection decode.
func TestScenarioS1InitialConnectionDecode(t *testing.T) {
	payload := []byte{TagInitialConnection}
	payload = append(payload, make([]byte, 32)...) // identity
	payload = append(payload, make([]byte, 16)...) // connection_id
	payload = append(payload, 0x03, 0x00, 0x00, 0x00, 't', 'o', 'k') // token

	msg, err := DecodeServerMessage(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ic, ok := msg.(InitialConnection)
	if !ok {
		t.Fatalf("expected InitialConnection, got %T", msg)
	}
	if ic.Identity != [32]byte{} || ic.ConnectionID != [16]byte{} {
		t.Errorf("expected zero identity/connection_id, got %+v", ic)
	}
	if ic.Token != "tok" {
		t.Errorf("token = %q, want tok", ic.Token)
	}
}

// S2: Subscribe encode.
func TestScenarioS2SubscribeEncode(t *testing.T) {
	got := EncodeSubscribe(Subscribe{RequestID: 42, QuerySetID: 7, Queries: []string{"a", "b"}})
	want := []byte{
		0x00,             // tag
		0x2A, 0x00, 0x00, 0x00, // request_id = 42
		0x07, 0x00, 0x00, 0x00, // query_set_id = 7
		0x02, 0x00, 0x00, 0x00, // array count = 2
		0x01, 0x00, 0x00, 0x00, 'a',
		0x01, 0x00, 0x00, 0x00, 'b',
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got  %x\nwant %x", got, want)
	}
}

// S3: gzip-framed InitialConnection must decode identically to S1.
func TestScenarioS3GzipFramedInitialConnection(t *testing.T) {
	payload := []byte{TagInitialConnection}
	payload = append(payload, make([]byte, 32)...)
	payload = append(payload, make([]byte, 16)...)
	payload = append(payload, 0x03, 0x00, 0x00, 0x00, 't', 'o', 'k')

	frame := append([]byte{CompressionGzip}, CompressGzip(payload)...)

	unwrapped, err := UnwrapEnvelope(frame)
	if err != nil {
		t.Fatalf("UnwrapEnvelope: %v", err)
	}
	msg, err := DecodeServerMessage(unwrapped)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ic, ok := msg.(InitialConnection)
	if !ok {
		t.Fatalf("expected InitialConnection, got %T", msg)
	}
	if ic.Token != "tok" {
		t.Errorf("token = %q, want tok", ic.Token)
	}
}

func TestUncompressedEnvelopeRoundTrip(t *testing.T) {
	payload := EncodeSubscribe(Subscribe{RequestID: 1, QuerySetID: 1, Queries: []string{"select * from t"}})
	frame, err := WrapEnvelope(CompressionNone, payload)
	if err != nil {
		t.Fatalf("WrapEnvelope: %v", err)
	}
	got, err := UnwrapEnvelope(frame)
	if err != nil {
		t.Fatalf("UnwrapEnvelope: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %x, want %x", got, payload)
	}
}

// S6: SubscriptionError with absent request_id.
func TestScenarioS6SubscriptionErrorAbsentRequestID(t *testing.T) {
	payload := []byte{TagSubscriptionError}
	payload = append(payload, 0x01)                   // option tag = None
	payload = append(payload, 0x0A, 0x00, 0x00, 0x00) // query_set_id = 10
	payload = append(payload, 0x09, 0x00, 0x00, 0x00) // string len = 9
	payload = append(payload, "bad query"...)

	msg, err := DecodeServerMessage(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	se, ok := msg.(SubscriptionError)
	if !ok {
		t.Fatalf("expected SubscriptionError, got %T", msg)
	}
	if se.RequestID != nil {
		t.Errorf("expected nil RequestID, got %v", *se.RequestID)
	}
	if se.QuerySetID != 10 {
		t.Errorf("query_set_id = %d, want 10", se.QuerySetID)
	}
	if se.Error != "bad query" {
		t.Errorf("error = %q, want %q", se.Error, "bad query")
	}
}

func TestUnknownEnvelopeTagIsError(t *testing.T) {
	_, err := UnwrapEnvelope([]byte{0x7F, 0x00})
	if err == nil {
		t.Fatal("expected error for unknown envelope tag")
	}
}

func TestEmptyFrameIsError(t *testing.T) {
	_, err := UnwrapEnvelope(nil)
	if err == nil {
		t.Fatal("expected error for empty frame")
	}
}

func TestUnknownServerMessageTagIsError(t *testing.T) {
	_, err := DecodeServerMessage([]byte{0xFF})
	if err == nil {
		t.Fatal("expected error for unknown server message tag")
	}
}

func TestRowListDecodeWithinTransactionUpdate(t *testing.T) {
	// A TransactionUpdate with one query set, one table, one Persistent
	// entry using the RowOffsets size hint.
	rowsData := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	payload := []byte{TagTransactionUpdate}
	payload = append(payload, 0x01, 0x00, 0x00, 0x00) // query_sets count = 1
	payload = append(payload, 0x05, 0x00, 0x00, 0x00) // query_set_id = 5
	payload = append(payload, 0x01, 0x00, 0x00, 0x00) // tables count = 1
	payload = append(payload, 0x04, 0x00, 0x00, 0x00, 't', 'a', 'b', 'l') // table name "tabl"
	payload = append(payload, 0x01, 0x00, 0x00, 0x00) // rows array count = 1
	payload = append(payload, 0x00)                   // TableUpdateRows tag 0 = Persistent

	// inserts: BsatnRowList, sum tag 1 = RowOffsets
	payload = append(payload, 0x01)                   // tag = RowOffsets
	payload = append(payload, 0x01, 0x00, 0x00, 0x00) // offsets count = 1
	payload = append(payload, 0, 0, 0, 0, 0, 0, 0, 0)  // offset = 0
	payload = append(payload, 0x08, 0x00, 0x00, 0x00) // rows_data len = 8
	payload = append(payload, rowsData...)

	// deletes: BsatnRowList, sum tag 0 = FixedSize(stride=0) i.e. empty
	payload = append(payload, 0x00)       // tag = FixedSize
	payload = append(payload, 0x00, 0x00) // stride = 0
	payload = append(payload, 0x00, 0x00, 0x00, 0x00) // rows_data len = 0

	msg, err := DecodeServerMessage(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tx, ok := msg.(TransactionUpdate)
	if !ok {
		t.Fatalf("expected TransactionUpdate, got %T", msg)
	}
	if len(tx.QuerySets) != 1 || tx.QuerySets[0].QuerySetID != 5 {
		t.Fatalf("unexpected query sets: %+v", tx.QuerySets)
	}
	tu := tx.QuerySets[0].Tables[0]
	if tu.TableName != "tabl" {
		t.Errorf("table name = %q", tu.TableName)
	}
	rows := tu.Rows[0]
	if rows.Kind != TableUpdatePersistent {
		t.Fatalf("expected Persistent, got %v", rows.Kind)
	}
	if rows.Inserts.HintKind != SizeHintOffsets || len(rows.Inserts.Offsets) != 1 {
		t.Errorf("inserts hint = %+v", rows.Inserts)
	}
	if !bytes.Equal(rows.Inserts.RowsData, rowsData) {
		t.Errorf("inserts data = %x", rows.Inserts.RowsData)
	}
	if rows.Deletes.HintKind != SizeHintFixed || rows.Deletes.Stride != 0 {
		t.Errorf("deletes hint = %+v", rows.Deletes)
	}
}
