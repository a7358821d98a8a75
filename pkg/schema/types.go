// Package schema represents the algebraic type system of the remote
// database: primitive and compound types, columns, tables, reducers, and
// the resolved Schema they compose into. It also implements the
// schema-directed row-list decoder and value encoder layered on
// pkg/bsatn.
package schema

import "fmt"

// Kind identifies the shape of an AlgebraicType.
type Kind int

const (
	KindBool Kind = iota
	KindI8
	KindI16
	KindI32
	KindI64
	KindI128
	KindI256
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindU256
	KindF32
	KindF64
	KindString
	KindBytes
	KindArray
	KindOption
	KindProduct
	KindSum
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindI8:
		return "i8"
	case KindI16:
		return "i16"
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindI128:
		return "i128"
	case KindI256:
		return "i256"
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindU128:
		return "u128"
	case KindU256:
		return "u256"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindOption:
		return "option"
	case KindProduct:
		return "product"
	case KindSum:
		return "sum"
	case KindRef:
		return "ref"
	default:
		return "unknown"
	}
}

// Type is a node in the algebraic type tree. After resolution (see
// Parse), no Type reachable from a table column or reducer
// parameter has Kind == KindRef.
type Type struct {
	Kind     Kind
	Elem     *Type     // KindArray, KindOption
	Fields   []Column  // KindProduct
	Variants []Variant // KindSum
	RefIdx   int       // KindRef
}

// Variant is one arm of a sum type.
type Variant struct {
	Name string
	Type *Type
}

// Column is an ordered (name, type) pair. Name is optional at the wire
// level but required for products used as table rows or reducer parameter
// lists.
type Column struct {
	Name    string
	HasName bool
	Type    *Type
}

// TableDef describes one table: its ordered columns and the column indices
// making up its primary key.
type TableDef struct {
	Name       string
	Columns    []Column
	PrimaryKey []int
}

// ReducerDef describes one reducer: its ordered parameter columns, treated
// as an anonymous product for wire encoding.
type ReducerDef struct {
	Name   string
	Params []Column
}

// Schema is the fully resolved set of tables and reducers a connection
// negotiates against. The typespace used to build it is discarded once
// resolution completes; Tables and Reducers hold fully inlined types.
type Schema struct {
	Tables   map[string]*TableDef
	Reducers map[string]*ReducerDef
}

// ColumnsFor returns the columns of table, or an error if the table is
// unknown.
func (s *Schema) ColumnsFor(table string) ([]Column, error) {
	t, ok := s.Tables[table]
	if !ok {
		return nil, &SchemaError{Kind: "unknown_table", Name: table}
	}
	return t.Columns, nil
}

// PrimaryKeyFor returns the primary-key column indices of table, or an
// error if the table is unknown.
func (s *Schema) PrimaryKeyFor(table string) ([]int, error) {
	t, ok := s.Tables[table]
	if !ok {
		return nil, &SchemaError{Kind: "unknown_table", Name: table}
	}
	return t.PrimaryKey, nil
}

// Table looks up a table definition by name.
func (s *Schema) Table(name string) (*TableDef, bool) {
	t, ok := s.Tables[name]
	return t, ok
}

// Reducer looks up a reducer definition by name.
func (s *Schema) Reducer(name string) (*ReducerDef, bool) {
	r, ok := s.Reducers[name]
	return r, ok
}

// SchemaError is returned by schema queries and value operations: unknown
// table, unknown reducer, missing field, type mismatch, or an unresolved
// typespace ref found where resolution should have eliminated it.
type SchemaError struct {
	Kind  string
	Name  string
	Type  *Type
	Value interface{}
	Idx   int
}

func (e *SchemaError) Error() string {
	switch e.Kind {
	case "unknown_table":
		return fmt.Sprintf("schema: unknown_table(%q)", e.Name)
	case "unknown_reducer":
		return fmt.Sprintf("schema: unknown_reducer(%q)", e.Name)
	case "missing_field":
		return fmt.Sprintf("schema: missing_field(%q)", e.Name)
	case "type_mismatch":
		return fmt.Sprintf("schema: type_mismatch(%s, %#v)", e.Type.Kind, e.Value)
	case "unresolved_ref":
		return fmt.Sprintf("schema: unresolved_ref(%d)", e.Idx)
	default:
		return fmt.Sprintf("schema: %s", e.Kind)
	}
}

// Value is the host-side representation of a decoded BSATN value. The
// concrete types below are the closed set of variants; DecodeErr is the
// sentinel used in place of a value whose field-level decode failed,
// per the row-list decoder's must-not-abort contract.
type Value interface{ isValue() }

type (
	VBool   bool
	VI8     int8
	VI16    int16
	VI32    int32
	VI64    int64
	VI128   [16]byte
	VI256   [32]byte
	VU8     uint8
	VU16    uint16
	VU32    uint32
	VU64    uint64
	VU128   [16]byte
	VU256   [32]byte
	VF32    float32
	VF64    float64
	VString string
	VBytes  []byte
)

func (VBool) isValue()   {}
func (VI8) isValue()     {}
func (VI16) isValue()    {}
func (VI32) isValue()    {}
func (VI64) isValue()    {}
func (VI128) isValue()   {}
func (VI256) isValue()   {}
func (VU8) isValue()     {}
func (VU16) isValue()    {}
func (VU32) isValue()    {}
func (VU64) isValue()    {}
func (VU128) isValue()   {}
func (VU256) isValue()   {}
func (VF32) isValue()    {}
func (VF64) isValue()    {}
func (VString) isValue() {}
func (VBytes) isValue()  {}

// VArray is a decoded array(T) value.
type VArray struct{ Elems []Value }

func (VArray) isValue() {}

// VOption is a decoded option(T) value. Some is false for None, in which
// case Elem is nil.
type VOption struct {
	Some bool
	Elem Value
}

func (VOption) isValue() {}

// VProduct is a decoded product value: field values in declaration order,
// alongside the column definitions that produced them so callers can look
// a field up by name.
type VProduct struct {
	Columns []Column
	Elems   []Value
}

func (VProduct) isValue() {}

// Get returns the value of the named field, if present.
func (p VProduct) Get(name string) (Value, bool) {
	for i, c := range p.Columns {
		if c.HasName && c.Name == name {
			return p.Elems[i], true
		}
	}
	return nil, false
}

// VSum is a decoded sum value: the wire tag, the variant name if the
// schema named it, and the decoded payload (nil for a payloadless
// variant).
type VSum struct {
	Tag     uint8
	Name    string
	Payload Value
}

func (VSum) isValue() {}

// DecodeErr is the sentinel placed in a Row (or nested product/array) in
// place of a value whose field-level decode failed. It never aborts a
// row-list batch; only a structural row-list error (bad offsets) does.
type DecodeErr struct{ Reason string }

func (DecodeErr) isValue() {}

func (e DecodeErr) Error() string { return "decode_error(" + e.Reason + ")" }

// Row is a decoded table row: column definitions paired with their
// decoded values, in schema-declared order.
type Row struct {
	Columns []Column
	Values  []Value
}

// Get returns the value of the named column, if present.
func (r Row) Get(name string) (Value, bool) {
	for i, c := range r.Columns {
		if c.HasName && c.Name == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map returns the row as a name -> value mapping from column name to
// decoded host value.
func (r Row) Map() map[string]Value {
	m := make(map[string]Value, len(r.Columns))
	for i, c := range r.Columns {
		if c.HasName {
			m[c.Name] = r.Values[i]
		}
	}
	return m
}
