package schema

import "fmt"

// RowListSizeHintKind selects how a RowList's byte blob is split into
// individual row slices.
type RowListSizeHintKind int

const (
	// SizeHintFixed splits the blob into records of exactly Stride bytes.
	// Stride == 0 means "empty list" regardless of blob length.
	SizeHintFixed RowListSizeHintKind = iota
	// SizeHintOffsets splits the blob at each explicit offset; the final
	// row extends to the end of the blob.
	SizeHintOffsets
)

// RowListSizeHint is the wire-level size hint of a BsatnRowList.
type RowListSizeHint struct {
	Kind    RowListSizeHintKind
	Stride  uint16
	Offsets []uint64
}

// RowListError is the sole hard error a row-list decode can produce: an
// out-of-range offset in the row_offsets form. Anything else — a field
// decode failure inside a row — is embedded as a DecodeErr sentinel rather
// than surfaced as an error.
type RowListError struct {
	Offset uint64
	Len    int
}

func (e *RowListError) Error() string {
	return fmt.Sprintf("schema: row-list offset %d exceeds data length %d", e.Offset, e.Len)
}

// splitRows splits data into row slices per hint. It is the only place a
// row-list decode can fail hard.
func splitRows(hint RowListSizeHint, data []byte) ([][]byte, error) {
	switch hint.Kind {
	case SizeHintFixed:
		if hint.Stride == 0 {
			return nil, nil
		}
		stride := int(hint.Stride)
		n := len(data) / stride
		rows := make([][]byte, 0, n)
		for i := 0; i < n; i++ {
			start := i * stride
			rows = append(rows, data[start:start+stride])
		}
		return rows, nil
	case SizeHintOffsets:
		if len(hint.Offsets) == 0 {
			return nil, nil
		}
		rows := make([][]byte, 0, len(hint.Offsets))
		last := uint64(0)
		for i, off := range hint.Offsets {
			if off < last {
				// Nondecreasing is required; treat a decrease the same as
				// an out-of-range offset — the blob cannot be sliced.
				return nil, &RowListError{Offset: off, Len: len(data)}
			}
			if off > uint64(len(data)) {
				return nil, &RowListError{Offset: off, Len: len(data)}
			}
			var end uint64
			if i == len(hint.Offsets)-1 {
				end = uint64(len(data))
			} else {
				end = hint.Offsets[i+1]
				if end > uint64(len(data)) {
					return nil, &RowListError{Offset: end, Len: len(data)}
				}
			}
			rows = append(rows, data[off:end])
			last = off
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("schema: unknown row-list size hint kind %d", hint.Kind)
	}
}

// DecodeRowList splits data per hint and decodes each resulting slice
// against columns. The only hard error is a structural one from splitRows;
// individual field decode failures are embedded as DecodeErr sentinels and
// never abort the batch.
func DecodeRowList(hint RowListSizeHint, data []byte, columns []Column) ([]Row, error) {
	slices, err := splitRows(hint, data)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(slices))
	for _, s := range slices {
		rows = append(rows, DecodeRow(s, columns))
	}
	return rows, nil
}
