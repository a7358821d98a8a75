package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClientError_Error(t *testing.T) {
	err := New(ErrCategorySchema, CodeUnknownReducer, "unknown reducer")
	expected := "[SCHEMA:UNKNOWN_REDUCER] unknown reducer"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestClientError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryTransport, CodeNetworkUnreachable, "dial failed", cause)
	expected := "[TRANSPORT:NETWORK_UNREACHABLE] dial failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestClientError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryEnvelope, CodeDecompressionFailed, "gzip failed", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestClientError_Is(t *testing.T) {
	err1 := New(ErrCategorySchema, CodeUnknownTable, "first")
	err2 := New(ErrCategorySchema, CodeUnknownTable, "second")
	err3 := New(ErrCategorySchema, CodeUnknownReducer, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryTransport, CodeNetworkUnreachable, true},
		{ErrCategoryTransport, CodeHandshakeFailed, true},
		{ErrCategoryTransport, CodeAbruptClose, true},
		{ErrCategoryTransport, CodeConnectionFailed, false},
		{ErrCategorySchema, CodeUnknownReducer, false},
		{ErrCategoryBSATN, CodeInvalidUTF8, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategory(t *testing.T) {
	err := New(ErrCategoryRowList, CodeOffsetOutOfRange, "bad offset")
	if GetCategory(err) != ErrCategoryRowList {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryRowList)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-ClientError should return empty category")
	}
}

func TestGetCode(t *testing.T) {
	err := New(ErrCategoryRowList, CodeOffsetOutOfRange, "bad offset")
	if GetCode(err) != CodeOffsetOutOfRange {
		t.Errorf("got %q, want %q", GetCode(err), CodeOffsetOutOfRange)
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-ClientError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategorySchema, CodeMissingField, "bad schema")
	detailed := err.WithDetails(map[string]interface{}{"field": "name"})

	if detailed.Details["field"] != "name" {
		t.Error("WithDetails should set details")
	}
	// Original should be unmodified
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	tr := NewTransportError(CodeAbruptClose, "socket closed", cause)
	if tr.Category != ErrCategoryTransport || !errors.Is(tr, cause) {
		t.Error("NewTransportError mismatch")
	}

	env := NewEnvelopeError(CodeUnknownCompression, "tag 0x7f", cause)
	if env.Category != ErrCategoryEnvelope {
		t.Error("NewEnvelopeError mismatch")
	}

	sch := NewSchemaError(CodeUnknownReducer, "add_person")
	if sch.Category != ErrCategorySchema {
		t.Error("NewSchemaError mismatch")
	}

	proto := NewProtocolError(CodeSubscriptionError, "bad query")
	if proto.Category != ErrCategoryProtocol {
		t.Error("NewProtocolError mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}
