package schema

import "github.com/moduledb/moduledb-go/pkg/bsatn"

// DecodeValue decodes one value of type t from r. It is the schema-directed
// counterpart to pkg/bsatn's primitive decoders: compound kinds (array,
// option, product, sum) recurse using the type tree, primitive kinds
// delegate straight to the Reader.
func DecodeValue(r *bsatn.Reader, t *Type) (Value, error) {
	switch t.Kind {
	case KindBool:
		v, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		return VBool(v), nil
	case KindI8:
		v, err := r.ReadI8()
		return VI8(v), err
	case KindI16:
		v, err := r.ReadI16()
		return VI16(v), err
	case KindI32:
		v, err := r.ReadI32()
		return VI32(v), err
	case KindI64:
		v, err := r.ReadI64()
		return VI64(v), err
	case KindI128:
		v, err := r.ReadU128()
		return VI128(v), err
	case KindI256:
		v, err := r.ReadU256()
		return VI256(v), err
	case KindU8:
		v, err := r.ReadU8()
		return VU8(v), err
	case KindU16:
		v, err := r.ReadU16()
		return VU16(v), err
	case KindU32:
		v, err := r.ReadU32()
		return VU32(v), err
	case KindU64:
		v, err := r.ReadU64()
		return VU64(v), err
	case KindU128:
		v, err := r.ReadU128()
		return VU128(v), err
	case KindU256:
		v, err := r.ReadU256()
		return VU256(v), err
	case KindF32:
		v, err := r.ReadF32()
		return VF32(v), err
	case KindF64:
		v, err := r.ReadF64()
		return VF64(v), err
	case KindString:
		v, err := r.ReadString()
		return VString(v), err
	case KindBytes:
		v, err := r.ReadBytes()
		return VBytes(v), err
	case KindArray:
		n, err := r.ReadArrayCount()
		if err != nil {
			return nil, err
		}
		elems := make([]Value, 0, n)
		for i := uint32(0); i < n; i++ {
			v, err := DecodeValue(r, t.Elem)
			if err != nil {
				return nil, err
			}
			elems = append(elems, v)
		}
		return VArray{Elems: elems}, nil
	case KindOption:
		some, err := r.ReadOptionTag()
		if err != nil {
			return nil, err
		}
		if !some {
			return VOption{Some: false}, nil
		}
		v, err := DecodeValue(r, t.Elem)
		if err != nil {
			return nil, err
		}
		return VOption{Some: true, Elem: v}, nil
	case KindProduct:
		elems := make([]Value, len(t.Fields))
		for i, f := range t.Fields {
			v, err := DecodeValue(r, f.Type)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return VProduct{Columns: t.Fields, Elems: elems}, nil
	case KindSum:
		tag, err := r.ReadSumTag()
		if err != nil {
			return nil, err
		}
		if int(tag) >= len(t.Variants) {
			return nil, bsatn.UnknownVariant(tag)
		}
		variant := t.Variants[int(tag)]
		if variant.Type == nil {
			return VSum{Tag: tag, Name: variant.Name}, nil
		}
		payload, err := DecodeValue(r, variant.Type)
		if err != nil {
			return nil, err
		}
		return VSum{Tag: tag, Name: variant.Name, Payload: payload}, nil
	case KindRef:
		return nil, &SchemaError{Kind: "unresolved_ref", Idx: t.RefIdx}
	default:
		return nil, &SchemaError{Kind: "unresolved_ref", Idx: -1}
	}
}

// DecodeRow decodes one row's bytes against columns. A field-level decode
// failure never aborts the row: the offending field and every field after
// it are set to DecodeErr, and the (partial) row is still returned. This
// mirrors the row-list decoder's must-not-abort contract at the message
// level; DecodeRow has no error result, as decode errors are always
// embedded, never returned.
func DecodeRow(data []byte, columns []Column) Row {
	r := bsatn.NewReader(data)
	values := make([]Value, len(columns))
	failed := false
	for i, c := range columns {
		if failed {
			values[i] = DecodeErr{Reason: "preceding field failed to decode"}
			continue
		}
		v, err := DecodeValue(r, c.Type)
		if err != nil {
			values[i] = DecodeErr{Reason: err.Error()}
			failed = true
			continue
		}
		values[i] = v
	}
	return Row{Columns: columns, Values: values}
}
