package payload

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// ErrMalformed marks input that could not be decoded.
var ErrMalformed = errors.New("malformed payload")

// MaxSize bounds the accepted blob length. Large details belong in external
// storage referenced from the payload, not in the task row itself.
const MaxSize = 1 << 20

var (
	encMode = func() cbor.EncMode {
		mode, err := cbor.CanonicalEncOptions().EncMode()
		if err != nil {
			panic(fmt.Sprintf("payload: build encode mode: %v", err))
		}
		return mode
	}()
	decMode = func() cbor.DecMode {
		opts := cbor.DecOptions{
			MaxNestedLevels: 32,
			IndefLength:     cbor.IndefLengthForbidden,
			DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		}
		mode, err := opts.DecMode()
		if err != nil {
			panic(fmt.Sprintf("payload: build decode mode: %v", err))
		}
		return mode
	}()
)

// Encode serializes value into the compact binary form.
func Encode(value any) ([]byte, error) {
	data, err := encMode.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("encode payload: %d bytes exceeds limit of %d", len(data), MaxSize)
	}
	return data, nil
}

// Decode deserializes data into out. Malformed input is reported as
// ErrMalformed so callers can reject the request rather than retry it.
func Decode(data []byte, out any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty input", ErrMalformed)
	}
	if len(data) > MaxSize {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrMalformed, len(data), MaxSize)
	}
	if err := decMode.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Validate checks that data parses as a well-formed payload without binding
// it to a concrete shape.
func Validate(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var scratch any
	return Decode(data, &scratch)
}
