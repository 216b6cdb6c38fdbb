package cipher

import "fmt"

// Kind identifies the plaintext width a ciphertext carries.
type Kind uint8

const (
	// KindBool holds a single bit.
	KindBool Kind = 1 + iota
	// KindByte holds an 8 bit unsigned integer.
	KindByte
	// KindWord holds a 64 bit unsigned integer.
	KindWord
)

// Bits returns the plaintext width in bits, or 0 for an unknown kind.
func (k Kind) Bits() int {
	switch k {
	case KindBool:
		return 1
	case KindByte:
		return 8
	case KindWord:
		return 64
	}
	return 0
}

// Numeric reports whether values of this kind support addition and ordering.
// Bools only support equality and use as a Select condition.
func (k Kind) Numeric() bool {
	return k == KindByte || k == KindWord
}

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindByte:
		return "byte"
	case KindWord:
		return "word"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}
