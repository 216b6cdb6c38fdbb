package cipher

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cronokirby/saferith"
	"github.com/zeebo/blake3"
)

// LocalUnit is an in-process Unit that simulates encryption.
//
// Plaintexts live in memory keyed by handle, so a LocalUnit offers no
// secrecy against its own host. What it does preserve is the shape of the
// real scheme: operands are saferith naturals resized to their kind's
// width, comparisons produce constant-time choices, and Select is a
// conditional assignment rather than a branch, so no operation's control
// flow depends on a plaintext.
//
// A LocalUnit is its own Revealer and never returns ErrPending.
type LocalUnit struct {
	mu      sync.Mutex
	values  map[string]entry
	seed    [32]byte
	counter uint64
	moduli  map[Kind]*saferith.Modulus
	oneBit  *saferith.Nat
}

type entry struct {
	kind Kind
	nat  *saferith.Nat
}

var _ Unit = (*LocalUnit)(nil)
var _ Revealer = (*LocalUnit)(nil)

// wordModulus is 2⁶⁴, big endian.
var wordModulus = []byte{1, 0, 0, 0, 0, 0, 0, 0, 0}

// NewLocalUnit returns an empty unit with a fresh handle seed.
func NewLocalUnit() (*LocalUnit, error) {
	u := &LocalUnit{
		values: make(map[string]entry),
		moduli: map[Kind]*saferith.Modulus{
			KindBool: saferith.ModulusFromNat(new(saferith.Nat).SetUint64(2)),
			KindByte: saferith.ModulusFromNat(new(saferith.Nat).SetUint64(1 << 8)),
			KindWord: saferith.ModulusFromNat(new(saferith.Nat).SetBytes(wordModulus)),
		},
		oneBit: new(saferith.Nat).SetUint64(1).Resize(1),
	}
	if _, err := rand.Read(u.seed[:]); err != nil {
		return nil, fmt.Errorf("cipher: seeding unit: %w", err)
	}
	return u, nil
}

// mint derives the next handle from the seed and a counter.
// Callers must hold u.mu.
func (u *LocalUnit) mint() []byte {
	u.counter++
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], u.counter)
	h := blake3.New()
	_, _ = h.Write(u.seed[:])
	_, _ = h.Write(ctr[:])
	return h.Sum(nil)[:HandleSize]
}

// put stores n under a fresh handle. Callers must hold u.mu.
func (u *LocalUnit) put(k Kind, n *saferith.Nat) Value {
	h := u.mint()
	u.values[string(h)] = entry{kind: k, nat: n}
	return Value{kind: k, handle: h}
}

// putChoice stores a comparison choice as a fresh bool.
// Callers must hold u.mu.
func (u *LocalUnit) putChoice(c saferith.Choice) Value {
	return u.put(KindBool, new(saferith.Nat).SetUint64(uint64(c)).Resize(1))
}

func (u *LocalUnit) get(v Value) (entry, error) {
	e, ok := u.values[string(v.handle)]
	if !ok || e.kind != v.kind {
		return entry{}, ErrUnknownValue
	}
	return e, nil
}

// Encrypt implements Unit.
func (u *LocalUnit) Encrypt(k Kind, x uint64) (Value, error) {
	if k.Bits() == 0 {
		return Value{}, ErrInvalidKind
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	n := new(saferith.Nat).SetUint64(x)
	n.Mod(n, u.moduli[k])
	n.Resize(k.Bits())
	return u.put(k, n), nil
}

// Add implements Unit.
func (u *LocalUnit) Add(a, b Value) (Value, error) {
	if a.kind != b.kind {
		return Value{}, ErrKindMismatch
	}
	if !a.kind.Numeric() {
		return Value{}, ErrInvalidKind
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	ea, err := u.get(a)
	if err != nil {
		return Value{}, err
	}
	eb, err := u.get(b)
	if err != nil {
		return Value{}, err
	}
	sum := new(saferith.Nat).ModAdd(ea.nat, eb.nat, u.moduli[a.kind])
	sum.Resize(a.kind.Bits())
	return u.put(a.kind, sum), nil
}

// Eq implements Unit.
func (u *LocalUnit) Eq(a, b Value) (Value, error) {
	if a.kind != b.kind {
		return Value{}, ErrKindMismatch
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	ea, err := u.get(a)
	if err != nil {
		return Value{}, err
	}
	eb, err := u.get(b)
	if err != nil {
		return Value{}, err
	}
	return u.putChoice(ea.nat.Eq(eb.nat)), nil
}

// Gt implements Unit.
func (u *LocalUnit) Gt(a, b Value) (Value, error) {
	if a.kind != b.kind {
		return Value{}, ErrKindMismatch
	}
	if !a.kind.Numeric() {
		return Value{}, ErrInvalidKind
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	ea, err := u.get(a)
	if err != nil {
		return Value{}, err
	}
	eb, err := u.get(b)
	if err != nil {
		return Value{}, err
	}
	gt, _, _ := ea.nat.Cmp(eb.nat)
	return u.putChoice(gt), nil
}

// Lt implements Unit.
func (u *LocalUnit) Lt(a, b Value) (Value, error) {
	if a.kind != b.kind {
		return Value{}, ErrKindMismatch
	}
	if !a.kind.Numeric() {
		return Value{}, ErrInvalidKind
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	ea, err := u.get(a)
	if err != nil {
		return Value{}, err
	}
	eb, err := u.get(b)
	if err != nil {
		return Value{}, err
	}
	_, _, lt := ea.nat.Cmp(eb.nat)
	return u.putChoice(lt), nil
}

// Select implements Unit.
func (u *LocalUnit) Select(cond, a, b Value) (Value, error) {
	if cond.kind != KindBool {
		return Value{}, ErrInvalidKind
	}
	if a.kind != b.kind {
		return Value{}, ErrKindMismatch
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	ec, err := u.get(cond)
	if err != nil {
		return Value{}, err
	}
	ea, err := u.get(a)
	if err != nil {
		return Value{}, err
	}
	eb, err := u.get(b)
	if err != nil {
		return Value{}, err
	}
	out := new(saferith.Nat).SetNat(eb.nat)
	out.CondAssign(ec.nat.Eq(u.oneBit), ea.nat)
	out.Resize(a.kind.Bits())
	return u.put(a.kind, out), nil
}

// Reveal implements Revealer.
func (u *LocalUnit) Reveal(v Value) (uint64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	e, err := u.get(v)
	if err != nil {
		return 0, err
	}
	return e.nat.Big().Uint64(), nil
}

// Len returns how many values the unit currently holds.
func (u *LocalUnit) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.values)
}
