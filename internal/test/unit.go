package test

import (
	"sync"

	"github.com/cloakwork/conclave/pkg/cipher"
)

// CountingUnit wraps a Unit and records the name of every operation in
// order. Comparing the traces of two runs shows whether their operation
// shape depends on the data they were given.
type CountingUnit struct {
	inner cipher.Unit
	mu    sync.Mutex
	ops   []string
}

var _ cipher.Unit = (*CountingUnit)(nil)

func NewCountingUnit(u cipher.Unit) *CountingUnit {
	return &CountingUnit{inner: u}
}

func (c *CountingUnit) record(op string) {
	c.mu.Lock()
	c.ops = append(c.ops, op)
	c.mu.Unlock()
}

// Trace returns a copy of the operation names recorded so far.
func (c *CountingUnit) Trace() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ops...)
}

// Reset clears the trace.
func (c *CountingUnit) Reset() {
	c.mu.Lock()
	c.ops = nil
	c.mu.Unlock()
}

func (c *CountingUnit) Encrypt(k cipher.Kind, x uint64) (cipher.Value, error) {
	c.record("encrypt/" + k.String())
	return c.inner.Encrypt(k, x)
}

func (c *CountingUnit) Add(a, b cipher.Value) (cipher.Value, error) {
	c.record("add")
	return c.inner.Add(a, b)
}

func (c *CountingUnit) Eq(a, b cipher.Value) (cipher.Value, error) {
	c.record("eq")
	return c.inner.Eq(a, b)
}

func (c *CountingUnit) Gt(a, b cipher.Value) (cipher.Value, error) {
	c.record("gt")
	return c.inner.Gt(a, b)
}

func (c *CountingUnit) Lt(a, b cipher.Value) (cipher.Value, error) {
	c.record("lt")
	return c.inner.Lt(a, b)
}

func (c *CountingUnit) Select(cond, a, b cipher.Value) (cipher.Value, error) {
	c.record("select")
	return c.inner.Select(cond, a, b)
}

// StutterRevealer answers ErrPending for its first stalls reveals, then
// delegates. It models a decryption oracle that has not caught up yet.
type StutterRevealer struct {
	mu     sync.Mutex
	rev    cipher.Revealer
	stalls int
}

var _ cipher.Revealer = (*StutterRevealer)(nil)

func NewStutterRevealer(rev cipher.Revealer, stalls int) *StutterRevealer {
	return &StutterRevealer{rev: rev, stalls: stalls}
}

func (s *StutterRevealer) Reveal(v cipher.Value) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stalls > 0 {
		s.stalls--
		return 0, cipher.ErrPending
	}
	return s.rev.Reveal(v)
}
