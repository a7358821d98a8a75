package protocol

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Decompressor turns a compressed payload back into the raw BSATN frame.
// The default set below covers none and gzip plus brotli as the one
// optional compression; a caller may register a different implementation
// for the brotli slot without touching the envelope contract.
type Decompressor func([]byte) ([]byte, error)

var decompressors = map[byte]Decompressor{
	CompressionNone:   decompressNone,
	CompressionGzip:   decompressGzip,
	CompressionBrotli: decompressBrotli,
}

// SetDecompressor overrides the decompressor used for a given envelope tag.
// Callers can use it to report brotli unsupported instead of decoding it.
func SetDecompressor(tag byte, d Decompressor) {
	decompressors[tag] = d
}

func decompressNone(payload []byte) ([]byte, error) { return payload, nil }

func decompressGzip(payload []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("protocol: gzip envelope: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("protocol: gzip envelope: %w", err)
	}
	return out, nil
}

func decompressBrotli(payload []byte) ([]byte, error) {
	out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(payload)))
	if err != nil {
		return nil, fmt.Errorf("protocol: brotli envelope: %w", err)
	}
	return out, nil
}

// CompressGzip compresses payload for outbound framing that opts into gzip.
func CompressGzip(payload []byte) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write(payload)
	zw.Close()
	return buf.Bytes()
}

// UnwrapEnvelope strips the one-byte compression envelope from a raw frame
// and returns the decompressed BSATN payload beneath it. An unrecognized
// envelope tag is reported as an error rather than silently treated as
// uncompressed; the caller logs and drops the frame.
func UnwrapEnvelope(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("protocol: empty frame")
	}
	tag := frame[0]
	dec, ok := decompressors[tag]
	if !ok {
		return nil, fmt.Errorf("protocol: unknown compression envelope tag %#x", tag)
	}
	return dec(frame[1:])
}

// WrapEnvelope prefixes payload with the given compression tag, compressing
// it first if the tag requires it. Used when encoding outbound frames.
func WrapEnvelope(tag byte, payload []byte) ([]byte, error) {
	var body []byte
	switch tag {
	case CompressionNone:
		body = payload
	case CompressionGzip:
		body = CompressGzip(payload)
	default:
		return nil, fmt.Errorf("protocol: unsupported outbound compression tag %#x", tag)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, tag)
	out = append(out, body...)
	return out, nil
}
