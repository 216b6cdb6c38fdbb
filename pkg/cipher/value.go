package cipher

import (
	"encoding/hex"
	"fmt"
)

// HandleSize is the length in bytes of a ciphertext handle.
const HandleSize = 16

// Value is an opaque reference to an encrypted integer.
//
// A Value carries no plaintext. It is a handle minted by the Unit that
// performed the encryption and is only meaningful to that Unit. Values are
// immutable and safe to copy; the zero Value is invalid.
type Value struct {
	kind   Kind
	handle []byte
}

// Kind returns the plaintext width this value carries.
func (v Value) Kind() Kind { return v.kind }

// Handle returns a copy of the underlying handle bytes.
func (v Value) Handle() []byte { return append([]byte(nil), v.handle...) }

// Valid reports whether v was produced by a Unit.
func (v Value) Valid() bool { return v.kind.Bits() != 0 && len(v.handle) == HandleSize }

// String renders the kind and an abbreviated handle, for logs.
// The plaintext is not recoverable from it.
func (v Value) String() string {
	if !v.Valid() {
		return "invalid"
	}
	return v.kind.String() + "#" + hex.EncodeToString(v.handle[:4])
}

// MarshalBinary implements encoding.BinaryMarshaler.
// The zero Value encodes to an empty slice so optional fields survive a
// snapshot round trip.
func (v Value) MarshalBinary() ([]byte, error) {
	if v.kind == 0 && v.handle == nil {
		return []byte{}, nil
	}
	if !v.Valid() {
		return nil, ErrInvalidKind
	}
	out := make([]byte, 1+HandleSize)
	out[0] = byte(v.kind)
	copy(out[1:], v.handle)
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (v *Value) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		*v = Value{}
		return nil
	}
	if len(data) != 1+HandleSize {
		return fmt.Errorf("cipher: value encoding has %d bytes, want %d", len(data), 1+HandleSize)
	}
	k := Kind(data[0])
	if k.Bits() == 0 {
		return ErrInvalidKind
	}
	v.kind = k
	v.handle = append([]byte(nil), data[1:]...)
	return nil
}
