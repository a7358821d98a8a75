package schema

import (
	"fmt"

	"github.com/moduledb/moduledb-go/pkg/bsatn"
)

// Some wraps a value to force the option encoder down the Some(v) path
// even when v happens to be nil-ish. None is spelled as a plain Go nil.
type Some struct{ V interface{} }

// EncodeValue encodes v against t, producing the BSATN bytes described in
// the wire format's schema-driven encoder rules.
func EncodeValue(v interface{}, t *Type) ([]byte, error) {
	w := bsatn.NewWriter(32)
	if err := encodeInto(w, v, t); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func mismatch(t *Type, v interface{}) error {
	return &SchemaError{Kind: "type_mismatch", Type: t, Value: v}
}

func encodeInto(w *bsatn.Writer, v interface{}, t *Type) error {
	switch t.Kind {
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return mismatch(t, v)
		}
		w.WriteBool(b)
		return nil
	case KindI8, KindI16, KindI32, KindI64, KindU8, KindU16, KindU32, KindU64:
		return encodeInt(w, v, t)
	case KindI128, KindU128:
		b, ok := v.([16]byte)
		if !ok {
			return mismatch(t, v)
		}
		w.WriteU128(b)
		return nil
	case KindI256, KindU256:
		b, ok := v.([32]byte)
		if !ok {
			return mismatch(t, v)
		}
		w.WriteU256(b)
		return nil
	case KindF32:
		f, ok := asFloat(v)
		if !ok {
			return mismatch(t, v)
		}
		w.WriteF32(float32(f))
		return nil
	case KindF64:
		f, ok := asFloat(v)
		if !ok {
			return mismatch(t, v)
		}
		w.WriteF64(f)
		return nil
	case KindString:
		s, ok := v.(string)
		if !ok {
			return mismatch(t, v)
		}
		w.WriteString(s)
		return nil
	case KindBytes:
		b, ok := v.([]byte)
		if !ok {
			return mismatch(t, v)
		}
		w.WriteBytes(b)
		return nil
	case KindArray:
		return encodeArray(w, v, t)
	case KindOption:
		return encodeOption(w, v, t)
	case KindProduct:
		return encodeProduct(w, v, t)
	case KindSum:
		return encodeSum(w, v, t)
	case KindRef:
		return &SchemaError{Kind: "unresolved_ref", Idx: t.RefIdx}
	default:
		return fmt.Errorf("schema: unknown type kind %v", t.Kind)
	}
}

// asFloat converts an integer to float64, or accepts a float directly:
// integers are accepted where floats are expected and rejected only when
// the value is neither. Integers beyond 2^53 in magnitude are rounded to
// the nearest float64.
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

func encodeInt(w *bsatn.Writer, v interface{}, t *Type) error {
	n, ok := asInt64(v)
	if !ok {
		return mismatch(t, v)
	}
	switch t.Kind {
	case KindI8:
		w.WriteI8(int8(n))
	case KindI16:
		w.WriteI16(int16(n))
	case KindI32:
		w.WriteI32(int32(n))
	case KindI64:
		w.WriteI64(n)
	case KindU8:
		w.WriteU8(uint8(n))
	case KindU16:
		w.WriteU16(uint16(n))
	case KindU32:
		w.WriteU32(uint32(n))
	case KindU64:
		w.WriteU64(uint64(n))
	}
	return nil
}

func encodeArray(w *bsatn.Writer, v interface{}, t *Type) error {
	elems, ok := toSlice(v)
	if !ok {
		return mismatch(t, v)
	}
	w.WriteArrayCount(len(elems))
	for _, e := range elems {
		if err := encodeInto(w, e, t.Elem); err != nil {
			return err
		}
	}
	return nil
}

func toSlice(v interface{}) ([]interface{}, bool) {
	switch xs := v.(type) {
	case []interface{}:
		return xs, true
	case []string:
		out := make([]interface{}, len(xs))
		for i, s := range xs {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// encodeOption accepts None (a nil interface), Some(v) (explicit wrapper),
// or a bare v which auto-wraps as Some.
func encodeOption(w *bsatn.Writer, v interface{}, t *Type) error {
	if v == nil {
		w.WriteOptionTag(false)
		return nil
	}
	if some, ok := v.(Some); ok {
		w.WriteOptionTag(true)
		return encodeInto(w, some.V, t.Elem)
	}
	w.WriteOptionTag(true)
	return encodeInto(w, v, t.Elem)
}

func encodeProduct(w *bsatn.Writer, v interface{}, t *Type) error {
	fields, err := asFieldMap(v, t)
	if err != nil {
		return err
	}
	for _, col := range t.Fields {
		fv, ok := fields[col.Name]
		if !ok {
			return &SchemaError{Kind: "missing_field", Name: col.Name}
		}
		if err := encodeInto(w, fv, col.Type); err != nil {
			return err
		}
	}
	return nil
}

// asFieldMap requires a mapping value and normalizes its keys to strings,
// accepting anything string-like (fmt.Stringer) as a key in addition to
// plain Go strings.
func asFieldMap(v interface{}, t *Type) (map[string]interface{}, error) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[normalizeKey(k)] = val
		}
		return out, nil
	default:
		return nil, mismatch(t, v)
	}
}

func normalizeKey(k interface{}) string {
	switch s := k.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(k)
	}
}

func encodeSum(w *bsatn.Writer, v interface{}, t *Type) error {
	tagged, ok := v.(TaggedValue)
	if !ok {
		return mismatch(t, v)
	}
	for i, variant := range t.Variants {
		if variant.Name != tagged.Variant {
			continue
		}
		w.WriteSumTag(uint8(i))
		if variant.Type == nil {
			return nil
		}
		return encodeInto(w, tagged.Value, variant.Type)
	}
	return &SchemaError{Kind: "type_mismatch", Type: t, Value: v}
}

// TaggedValue selects a sum variant by name for encoding.
type TaggedValue struct {
	Variant string
	Value   interface{}
}

// EncodeReducerArgs encodes args as the reducer's anonymous parameter
// product, in the order params declares. Keys in args are normalized to
// strings before lookup.
func EncodeReducerArgs(args map[string]interface{}, params []Column) ([]byte, error) {
	productType := &Type{Kind: KindProduct, Fields: params}
	return EncodeValue(args, productType)
}
