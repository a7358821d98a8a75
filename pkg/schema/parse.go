package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maxInlineDepth bounds the ref-inlining recursion so a (disallowed but
// possible) cycle in the typespace terminates as unresolved_ref instead of
// overflowing the stack.
const maxInlineDepth = 64

// wireType is the JSON shape of one algebraic type node on the schema
// endpoint. Exactly one of the kind-specific fields is populated,
// selected by Tag.
type wireType struct {
	Tag      string        `json:"tag"`
	Elem     *wireType     `json:"elem,omitempty"`
	Elements []wireElement `json:"elements,omitempty"`
	Variants []wireVariant `json:"variants,omitempty"`
	Index    int           `json:"index,omitempty"`
}

type wireElement struct {
	Name string    `json:"name,omitempty"`
	Type *wireType `json:"type"`
}

type wireVariant struct {
	Name string    `json:"name,omitempty"`
	Type *wireType `json:"type,omitempty"`
}

type wireTable struct {
	Name           string `json:"name"`
	ProductTypeRef int    `json:"product_type_ref"`
	PrimaryKey     []int  `json:"primary_key"`
}

type wireReducer struct {
	Name   string   `json:"name"`
	Params wireType `json:"params"`
}

type wireDocument struct {
	Typespace struct {
		Types []wireType `json:"types"`
	} `json:"typespace"`
	Tables   []wireTable   `json:"tables"`
	Reducers []wireReducer `json:"reducers"`
}

var kindByTag = map[string]Kind{
	"Bool":    KindBool,
	"I8":      KindI8,
	"I16":     KindI16,
	"I32":     KindI32,
	"I64":     KindI64,
	"I128":    KindI128,
	"I256":    KindI256,
	"U8":      KindU8,
	"U16":     KindU16,
	"U32":     KindU32,
	"U64":     KindU64,
	"U128":    KindU128,
	"U256":    KindU256,
	"F32":     KindF32,
	"F64":     KindF64,
	"String":  KindString,
	"Bytes":   KindBytes,
	"Array":   KindArray,
	"Product": KindProduct,
	"Sum":     KindSum,
	"Ref":     KindRef,
}

// parseWireType converts one wireType node into a *Type, recursing into
// children. Refs are preserved as KindRef nodes at this stage; inlining
// happens separately once the full arena is available.
func parseWireType(w *wireType) (*Type, error) {
	kind, ok := kindByTag[w.Tag]
	if !ok {
		return nil, fmt.Errorf("schema: unknown type tag %q", w.Tag)
	}
	switch kind {
	case KindArray:
		if w.Elem == nil {
			return nil, fmt.Errorf("schema: array type missing elem")
		}
		elem, err := parseWireType(w.Elem)
		if err != nil {
			return nil, err
		}
		return &Type{Kind: KindArray, Elem: elem}, nil
	case KindProduct:
		fields := make([]Column, 0, len(w.Elements))
		for _, e := range w.Elements {
			ft, err := parseWireType(e.Type)
			if err != nil {
				return nil, err
			}
			fields = append(fields, Column{Name: e.Name, HasName: e.Name != "", Type: ft})
		}
		return &Type{Kind: KindProduct, Fields: fields}, nil
	case KindSum:
		variants := make([]Variant, 0, len(w.Variants))
		for _, v := range w.Variants {
			var vt *Type
			if v.Type != nil {
				var err error
				vt, err = parseWireType(v.Type)
				if err != nil {
					return nil, err
				}
			}
			variants = append(variants, Variant{Name: v.Name, Type: vt})
		}
		return recognizeOption(&Type{Kind: KindSum, Variants: variants}), nil
	case KindRef:
		return &Type{Kind: KindRef, RefIdx: w.Index}, nil
	default:
		return &Type{Kind: kind}, nil
	}
}

// recognizeOption folds a sum whose two variants are named "some" and
// "none" (case-insensitively) into an Option(inner) node, per the schema
// parsing contract. Any other sum is left as a generic sum.
func recognizeOption(t *Type) *Type {
	if t.Kind != KindSum || len(t.Variants) != 2 {
		return t
	}
	var some, none *Variant
	for i := range t.Variants {
		switch strings.ToLower(t.Variants[i].Name) {
		case "some":
			some = &t.Variants[i]
		case "none":
			none = &t.Variants[i]
		}
	}
	if some == nil || none == nil || some.Type == nil {
		return t
	}
	return &Type{Kind: KindOption, Elem: some.Type}
}

// inline recursively clones t, resolving every KindRef against arena. It
// bounds recursion to maxInlineDepth; a chain longer than that is treated
// as an unresolved (or cyclic) ref.
func inline(t *Type, arena []*Type, depth int) (*Type, error) {
	if depth > maxInlineDepth {
		return nil, &SchemaError{Kind: "unresolved_ref", Idx: -1}
	}
	switch t.Kind {
	case KindRef:
		if t.RefIdx < 0 || t.RefIdx >= len(arena) {
			return nil, &SchemaError{Kind: "unresolved_ref", Idx: t.RefIdx}
		}
		return inline(arena[t.RefIdx], arena, depth+1)
	case KindArray:
		elem, err := inline(t.Elem, arena, depth+1)
		if err != nil {
			return nil, err
		}
		return &Type{Kind: KindArray, Elem: elem}, nil
	case KindOption:
		elem, err := inline(t.Elem, arena, depth+1)
		if err != nil {
			return nil, err
		}
		return &Type{Kind: KindOption, Elem: elem}, nil
	case KindProduct:
		fields := make([]Column, len(t.Fields))
		for i, f := range t.Fields {
			ft, err := inline(f.Type, arena, depth+1)
			if err != nil {
				return nil, err
			}
			fields[i] = Column{Name: f.Name, HasName: f.HasName, Type: ft}
		}
		return &Type{Kind: KindProduct, Fields: fields}, nil
	case KindSum:
		variants := make([]Variant, len(t.Variants))
		for i, v := range t.Variants {
			var vt *Type
			if v.Type != nil {
				var err error
				vt, err = inline(v.Type, arena, depth+1)
				if err != nil {
					return nil, err
				}
			}
			variants[i] = Variant{Name: v.Name, Type: vt}
		}
		return recognizeOption(&Type{Kind: KindSum, Variants: variants}), nil
	default:
		// Primitive: nothing to inline.
		return t, nil
	}
}

// Parse builds a fully resolved Schema from the JSON document served by
// the schema endpoint.
func Parse(data []byte) (*Schema, error) {
	var doc wireDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema: invalid schema document: %w", err)
	}

	arena := make([]*Type, len(doc.Typespace.Types))
	for i := range doc.Typespace.Types {
		t, err := parseWireType(&doc.Typespace.Types[i])
		if err != nil {
			return nil, fmt.Errorf("schema: typespace[%d]: %w", i, err)
		}
		arena[i] = t
	}

	tables := make(map[string]*TableDef, len(doc.Tables))
	for _, wt := range doc.Tables {
		if wt.ProductTypeRef < 0 || wt.ProductTypeRef >= len(arena) {
			return nil, &SchemaError{Kind: "unresolved_ref", Idx: wt.ProductTypeRef}
		}
		resolved, err := inline(arena[wt.ProductTypeRef], arena, 0)
		if err != nil {
			return nil, fmt.Errorf("schema: table %q: %w", wt.Name, err)
		}
		if resolved.Kind != KindProduct {
			return nil, fmt.Errorf("schema: table %q does not reference a product type", wt.Name)
		}
		pk := wt.PrimaryKey
		if pk == nil {
			pk = []int{}
		}
		tables[wt.Name] = &TableDef{
			Name:       wt.Name,
			Columns:    resolved.Fields,
			PrimaryKey: pk,
		}
	}

	reducers := make(map[string]*ReducerDef, len(doc.Reducers))
	for _, wr := range doc.Reducers {
		paramType, err := parseWireType(&wr.Params)
		if err != nil {
			return nil, fmt.Errorf("schema: reducer %q: %w", wr.Name, err)
		}
		resolved, err := inline(paramType, arena, 0)
		if err != nil {
			return nil, fmt.Errorf("schema: reducer %q: %w", wr.Name, err)
		}
		if resolved.Kind != KindProduct {
			return nil, fmt.Errorf("schema: reducer %q params is not a product", wr.Name)
		}
		reducers[wr.Name] = &ReducerDef{Name: wr.Name, Params: resolved.Fields}
	}

	return &Schema{Tables: tables, Reducers: reducers}, nil
}

// AnyRef reports whether t or any type it reaches contains a KindRef node.
// Used by tests to check the resolution invariant.
func AnyRef(t *Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case KindRef:
		return true
	case KindArray, KindOption:
		return AnyRef(t.Elem)
	case KindProduct:
		for _, f := range t.Fields {
			if AnyRef(f.Type) {
				return true
			}
		}
	case KindSum:
		for _, v := range t.Variants {
			if AnyRef(v.Type) {
				return true
			}
		}
	}
	return false
}
