package schema

import (
	"bytes"
	"testing"
)

func TestEncodeReducerArgs(t *testing.T) {
	params := []Column{
		{Name: "name", HasName: true, Type: &Type{Kind: KindString}},
		{Name: "age", HasName: true, Type: &Type{Kind: KindU32}},
	}
	args := map[string]interface{}{"name": "Alice", "age": 30}
	got, err := EncodeReducerArgs(args, params)
	if err != nil {
		t.Fatalf("EncodeReducerArgs: %v", err)
	}

	row := DecodeRow(got, params)
	if v, _ := row.Get("name"); v != VString("Alice") {
		t.Errorf("name = %v", v)
	}
	if v, _ := row.Get("age"); v != VU32(30) {
		t.Errorf("age = %v", v)
	}
}

func TestEncodeReducerArgsMissingField(t *testing.T) {
	params := []Column{{Name: "name", HasName: true, Type: &Type{Kind: KindString}}}
	_, err := EncodeReducerArgs(map[string]interface{}{}, params)
	se, ok := err.(*SchemaError)
	if !ok || se.Kind != "missing_field" {
		t.Fatalf("expected missing_field, got %v", err)
	}
}

func TestEncodeTypeMismatch(t *testing.T) {
	_, err := EncodeValue("not a number", &Type{Kind: KindU32})
	se, ok := err.(*SchemaError)
	if !ok || se.Kind != "type_mismatch" {
		t.Fatalf("expected type_mismatch, got %v", err)
	}
}

func TestEncodeOptionConventions(t *testing.T) {
	optType := &Type{Kind: KindOption, Elem: &Type{Kind: KindU32}}

	none, err := EncodeValue(nil, optType)
	if err != nil {
		t.Fatalf("encode None: %v", err)
	}
	if !bytes.Equal(none, []byte{0x01}) {
		t.Fatalf("None = %x, want 01", none)
	}

	some, err := EncodeValue(Some{V: uint32(7)}, optType)
	if err != nil {
		t.Fatalf("encode Some: %v", err)
	}
	if some[0] != 0x00 {
		t.Fatalf("Some tag = %x, want 00", some[0])
	}

	bare, err := EncodeValue(uint32(7), optType)
	if err != nil {
		t.Fatalf("encode bare value: %v", err)
	}
	if !bytes.Equal(bare, some) {
		t.Fatalf("bare auto-wrap = %x, want %x (same as explicit Some)", bare, some)
	}
}

func TestEncodeIntegerWidenedToFloat(t *testing.T) {
	got, err := EncodeValue(42, &Type{Kind: KindF64})
	if err != nil {
		t.Fatalf("encode int as float: %v", err)
	}
	row := DecodeRow(got, []Column{{Type: &Type{Kind: KindF64}}})
	if row.Values[0] != VF64(42.0) {
		t.Errorf("got %v, want 42.0", row.Values[0])
	}
}

func TestEncodeArray(t *testing.T) {
	arrType := &Type{Kind: KindArray, Elem: &Type{Kind: KindU32}}
	got, err := EncodeValue([]interface{}{uint32(1), uint32(2), uint32(3)}, arrType)
	if err != nil {
		t.Fatalf("encode array: %v", err)
	}
	row := DecodeRow(got, []Column{{Type: arrType}})
	arr, ok := row.Values[0].(VArray)
	if !ok || len(arr.Elems) != 3 {
		t.Fatalf("got %#v", row.Values[0])
	}
}
