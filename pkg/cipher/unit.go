// Package cipher defines the encrypted integer ADT the game state is built
// on: opaque Values, the homomorphic instruction set over them, and the
// audited path to decryption.
//
// The instruction set is deliberately small. There is no way to branch on a
// ciphertext; data-dependent control flow has to be expressed as Select over
// both outcomes, which is what keeps tallies and state transitions oblivious
// to their inputs.
package cipher

import "errors"

var (
	ErrInvalidKind  = errors.New("cipher: operation not defined for kind")
	ErrKindMismatch = errors.New("cipher: operand kinds do not match")
	ErrUnknownValue = errors.New("cipher: value not known to this unit")

	// ErrPending is returned by a Revealer whose decryption oracle has not
	// produced a plaintext yet. It is the only retryable condition in this
	// package; callers may repeat the identical request later. It must never
	// be folded into a validation failure.
	ErrPending = errors.New("cipher: decryption pending")
)

// Unit is the homomorphic instruction set available over encrypted values.
//
// All operations mint fresh Values; operands are never modified. A Unit is
// safe for concurrent use.
type Unit interface {
	// Encrypt mints a fresh ciphertext of kind k holding x, reduced to the
	// kind's width.
	Encrypt(k Kind, x uint64) (Value, error)
	// Add returns a + b modulo the kind's width. Operands must share a
	// numeric kind.
	Add(a, b Value) (Value, error)
	// Eq returns an encrypted bool holding a = b. Operands must share a kind.
	Eq(a, b Value) (Value, error)
	// Gt returns an encrypted bool holding a > b. Operands must share a
	// numeric kind.
	Gt(a, b Value) (Value, error)
	// Lt returns an encrypted bool holding a < b. Operands must share a
	// numeric kind.
	Lt(a, b Value) (Value, error)
	// Select returns a where cond holds and b otherwise, without revealing
	// cond. cond must be a bool; a and b must share a kind.
	Select(cond, a, b Value) (Value, error)
}

// Revealer decrypts. This is the privileged half of an encryption unit;
// gameplay code must reach it only through a Gate so that every disclosure
// is recorded.
type Revealer interface {
	// Reveal returns the plaintext of v, or ErrPending when the decryption
	// oracle has not answered yet.
	Reveal(v Value) (uint64, error)
}
