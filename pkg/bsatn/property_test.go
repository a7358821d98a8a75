package bsatn

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_IntegerRoundTrip validates that decode(encode(v)) == v for
// generated u32, i64 and u8 values.
func TestProperty_IntegerRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("u32 round trips", prop.ForAll(
		func(v uint32) bool {
			w := NewWriter(4)
			w.WriteU32(v)
			r := NewReader(w.Bytes())
			got, err := r.ReadU32()
			return err == nil && got == v && r.Len() == 0
		},
		gen.UInt32(),
	))

	properties.Property("i64 round trips", prop.ForAll(
		func(v int64) bool {
			w := NewWriter(8)
			w.WriteI64(v)
			r := NewReader(w.Bytes())
			got, err := r.ReadI64()
			return err == nil && got == v && r.Len() == 0
		},
		gen.Int64(),
	))

	properties.Property("u8 round trips", prop.ForAll(
		func(v uint8) bool {
			w := NewWriter(1)
			w.WriteU8(v)
			r := NewReader(w.Bytes())
			got, err := r.ReadU8()
			return err == nil && got == v
		},
		gen.UInt8(),
	))

	properties.TestingRun(t)
}

// TestProperty_StringRoundTrip validates that any valid UTF-8 string
// survives an encode/decode cycle unchanged.
func TestProperty_StringRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("valid UTF-8 strings round trip", prop.ForAll(
		func(s string) bool {
			w := NewWriter(4 + len(s))
			w.WriteString(s)
			r := NewReader(w.Bytes())
			got, err := r.ReadString()
			return err == nil && got == s && r.Len() == 0
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestProperty_ArrayRoundTrip validates that decoding an encoded array of
// u32s reproduces the original slice and never reads past exactly N
// elements.
func TestProperty_ArrayRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("array of u32 round trips", prop.ForAll(
		func(xs []uint32) bool {
			w := NewWriter(4 + 4*len(xs))
			w.WriteArrayCount(len(xs))
			for _, x := range xs {
				w.WriteU32(x)
			}
			r := NewReader(w.Bytes())
			n, err := r.ReadArrayCount()
			if err != nil || int(n) != len(xs) {
				return false
			}
			for i := 0; i < len(xs); i++ {
				v, err := r.ReadU32()
				if err != nil || v != xs[i] {
					return false
				}
			}
			return r.Len() == 0
		},
		gen.SliceOf(gen.UInt32()),
	))

	properties.TestingRun(t)
}

// TestProperty_OptionConvention validates the fixed tag convention: 0 for
// Some, 1 for None, never the reverse.
func TestProperty_OptionConvention(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("None is exactly one byte 0x01", prop.ForAll(
		func(unused int) bool {
			w := NewWriter(1)
			w.WriteOptionTag(false)
			b := w.Bytes()
			return len(b) == 1 && b[0] == 0x01
		},
		gen.IntRange(0, 1),
	))

	properties.Property("Some(v) is 0x00 followed by v's encoding", prop.ForAll(
		func(v uint32) bool {
			w := NewWriter(5)
			w.WriteOptionTag(true)
			w.WriteU32(v)
			b := w.Bytes()
			if len(b) != 5 || b[0] != 0x00 {
				return false
			}
			r := NewReader(b[1:])
			got, err := r.ReadU32()
			return err == nil && got == v
		},
		gen.UInt32(),
	))

	properties.TestingRun(t)
}
