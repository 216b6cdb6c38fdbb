package cipher

import (
	"encoding/binary"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
)

// Gate is the audited path to a Revealer.
//
// Gameplay code never holds a Revealer directly; every decryption goes
// through a Gate, which records the request in a transcript chain and a
// structured log line. The chain binds kind, handle, purpose and result of
// every successful reveal, so the log can be checked against the chain
// digest after the fact.
type Gate struct {
	mu      sync.Mutex
	rev     Revealer
	log     zerolog.Logger
	chain   [32]byte
	reveals uint64
}

// NewGate wraps rev. Reveals are logged on log at info level; pass
// zerolog.Nop() to keep the transcript without log output.
func NewGate(rev Revealer, log zerolog.Logger) *Gate {
	return &Gate{
		rev: rev,
		log: log.With().Str("component", "gate").Logger(),
	}
}

// RevealBool decrypts an encrypted bool. purpose names the predicate being
// disclosed and becomes part of the audit transcript.
func (g *Gate) RevealBool(v Value, purpose string) (bool, error) {
	if v.Kind() != KindBool {
		return false, ErrKindMismatch
	}
	x, err := g.reveal(v, purpose)
	if err != nil {
		return false, err
	}
	return x == 1, nil
}

// RevealWord decrypts a numeric value.
func (g *Gate) RevealWord(v Value, purpose string) (uint64, error) {
	if !v.Kind().Numeric() {
		return 0, ErrKindMismatch
	}
	return g.reveal(v, purpose)
}

func (g *Gate) reveal(v Value, purpose string) (uint64, error) {
	x, err := g.rev.Reveal(v)
	if err != nil {
		// ErrPending in particular is handed back untouched so callers can
		// retry the identical request.
		return 0, err
	}

	g.mu.Lock()
	g.reveals++
	n := g.reveals
	h := blake3.New()
	_, _ = h.Write(g.chain[:])
	_, _ = h.Write([]byte{byte(v.kind)})
	_, _ = h.Write(v.handle)
	_, _ = h.Write([]byte(purpose))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], x)
	_, _ = h.Write(buf[:])
	copy(g.chain[:], h.Sum(nil))
	g.mu.Unlock()

	g.log.Info().
		Str("purpose", purpose).
		Str("value", v.String()).
		Uint64("plain", x).
		Uint64("n", n).
		Msg("reveal")
	return x, nil
}

// Transcript returns the current chain digest.
func (g *Gate) Transcript() [32]byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.chain
}

// Reveals returns how many reveals have succeeded so far.
func (g *Gate) Reveals() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reveals
}
