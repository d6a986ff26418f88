package ident

import (
	"bytes"
	"fmt"
	"time"

	"github.com/rs/xid"
)

// Size is the raw identifier length in bytes.
const Size = 12

// ID is a sortable 12-byte identifier. Comparing raw bytes orders IDs by
// creation time.
type ID struct {
	raw xid.ID
}

// Zero is the absent identifier.
var Zero ID

// New generates a fresh identifier. Successive calls within a process yield
// strictly increasing values.
func New() ID {
	return ID{raw: xid.New()}
}

// Parse decodes the canonical 20-character string form.
func Parse(value string) (ID, error) {
	raw, err := xid.FromString(value)
	if err != nil {
		return Zero, fmt.Errorf("parse id %q: %w", value, err)
	}
	return ID{raw: raw}, nil
}

// FromBytes reconstructs an ID from its 12 raw bytes.
func FromBytes(data []byte) (ID, error) {
	if len(data) != Size {
		return Zero, fmt.Errorf("id must be %d bytes, got %d", Size, len(data))
	}
	raw, err := xid.FromBytes(data)
	if err != nil {
		return Zero, fmt.Errorf("decode id bytes: %w", err)
	}
	return ID{raw: raw}, nil
}

// Bytes returns the 12 raw bytes. The result sorts chronologically under
// bytewise comparison.
func (id ID) Bytes() []byte {
	cp := make([]byte, Size)
	copy(cp, id.raw[:])
	return cp
}

// String renders the canonical lowercase base32 form.
func (id ID) String() string {
	return id.raw.String()
}

// IsZero reports whether the identifier is absent.
func (id ID) IsZero() bool {
	return id.raw.IsZero()
}

// Time returns the creation timestamp embedded in the identifier.
func (id ID) Time() time.Time {
	return id.raw.Time()
}

// Compare orders two identifiers by raw bytes: negative when id sorts before
// other, zero when equal.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id.raw[:], other.raw[:])
}

// ContainsID reports whether set holds id.
func ContainsID(set []ID, id ID) bool {
	for _, member := range set {
		if member == id {
			return true
		}
	}
	return false
}

// Union returns the deduplicated union of two identifier sets. Order follows
// first occurrence.
func Union(a, b []ID) []ID {
	out := make([]ID, 0, len(a)+len(b))
	for _, id := range a {
		if !ContainsID(out, id) {
			out = append(out, id)
		}
	}
	for _, id := range b {
		if !ContainsID(out, id) {
			out = append(out, id)
		}
	}
	return out
}
