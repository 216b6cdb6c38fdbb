package game

import (
	"fmt"

	"github.com/cloakwork/conclave/internal/params"
	"github.com/cloakwork/conclave/pkg/cipher"
	"github.com/cloakwork/conclave/pkg/event"
	"github.com/cloakwork/conclave/pkg/party"
)

// Reveal purposes recorded in the gate transcript by this package.
const (
	purposeEndDecided = "end.decided"
	purposeSurvivor   = "end.survivor"
	purposeHalt       = "halt.carried"
)

// The Resolve methods below apply a finalized ballot's outcome to a room.
// They are the only mutation points the tally engine uses, and they are
// built to be safely retryable: every write is either preceded by all of
// its reveals or idempotent, so a cipher.ErrPending can always be answered
// by calling the same method again.

// ResolveElimination marks the member whose slot won as dead. The scan
// touches every member with the same operations, so the write pattern
// reveals nothing about the winner.
//
// When fewer than two members remain alive the game is decided: the room
// ends and the survivor, if any, becomes the room's winner. Naming the
// survivor is the one place alive flags are disclosed, and it happens only
// once the game is already over.
func (r *Registry) ResolveElimination(id RoomID, winner cipher.Value) error {
	room, err := r.room(id)
	if err != nil {
		return err
	}

	room.mu.Lock()
	winnerAddr, released, err := r.eliminateLocked(room, winner)
	room.mu.Unlock()
	if err != nil {
		return err
	}
	if released == nil {
		return nil
	}

	r.releaseMembers(id, released)
	r.log.Info().Uint64("room", uint64(id)).Str("winner", winnerAddr.Short()).Msg("game decided")
	ev := event.New(event.GameEnded, r.clock.Now())
	ev.Room = uint64(id)
	ev.Actor = winnerAddr
	ev.Note = "decided"
	r.sink.Emit(ev)
	return nil
}

// eliminateLocked does the elimination work under room.mu. It returns the
// addresses to release when the game ended, or nil while it continues.
func (r *Registry) eliminateLocked(room *Room, winner cipher.Value) (party.ID, []party.ID, error) {
	if !room.active {
		return "", nil, ErrRoomInactive
	}
	dead, err := r.encBool(false)
	if err != nil {
		return "", nil, err
	}

	// compute every member's next alive flag before touching any of them
	n := len(room.members)
	newAlive := make([]cipher.Value, n)
	for i, m := range room.members {
		slot, err := r.unit.Encrypt(cipher.KindByte, uint64(i))
		if err != nil {
			return "", nil, fmt.Errorf("game: elimination: %w", err)
		}
		hit, err := r.unit.Eq(winner, slot)
		if err != nil {
			return "", nil, fmt.Errorf("game: elimination: %w", err)
		}
		if newAlive[i], err = r.unit.Select(hit, dead, m.alive); err != nil {
			return "", nil, fmt.Errorf("game: elimination: %w", err)
		}
	}
	for i, m := range room.members {
		m.alive = newAlive[i]
	}

	// count the living obliviously, then reveal only "fewer than two left"
	living, err := r.aliveCountLocked(room)
	if err != nil {
		return "", nil, err
	}
	two, err := r.unit.Encrypt(cipher.KindWord, 2)
	if err != nil {
		return "", nil, err
	}
	decided, err := r.unit.Lt(living, two)
	if err != nil {
		return "", nil, err
	}
	over, err := r.gate.RevealBool(decided, purposeEndDecided)
	if err != nil {
		return "", nil, fmt.Errorf("game: end check: %w", err)
	}
	if !over {
		return "", nil, nil
	}

	var winnerAddr party.ID
	for _, m := range room.members {
		alive, err := r.gate.RevealBool(m.alive, purposeSurvivor)
		if err != nil {
			return "", nil, fmt.Errorf("game: survivor check: %w", err)
		}
		if alive {
			winnerAddr = m.addr
			break
		}
	}
	return winnerAddr, room.end(winnerAddr), nil
}

// aliveCountLocked sums the alive flags obliviously.
// Callers must hold room.mu.
func (r *Registry) aliveCountLocked(room *Room) (cipher.Value, error) {
	count, err := r.unit.Encrypt(cipher.KindWord, 0)
	if err != nil {
		return cipher.Value{}, err
	}
	one, err := r.unit.Encrypt(cipher.KindWord, 1)
	if err != nil {
		return cipher.Value{}, err
	}
	zero, err := r.unit.Encrypt(cipher.KindWord, 0)
	if err != nil {
		return cipher.Value{}, err
	}
	for _, m := range room.members {
		inc, err := r.unit.Select(m.alive, one, zero)
		if err != nil {
			return cipher.Value{}, err
		}
		if count, err = r.unit.Add(count, inc); err != nil {
			return cipher.Value{}, err
		}
	}
	return count, nil
}

// ResolvePolicy credits every living member with the policy yield when the
// first option carried. Whether it carried stays encrypted; both outcomes
// perform the same writes.
func (r *Registry) ResolvePolicy(id RoomID, winner cipher.Value) error {
	room, err := r.room(id)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if !room.active {
		return ErrRoomInactive
	}

	yes, err := r.unit.Encrypt(cipher.KindByte, 0)
	if err != nil {
		return fmt.Errorf("game: policy: %w", err)
	}
	carried, err := r.unit.Eq(winner, yes)
	if err != nil {
		return fmt.Errorf("game: policy: %w", err)
	}
	yield, err := r.unit.Encrypt(cipher.KindWord, params.PolicyYield)
	if err != nil {
		return fmt.Errorf("game: policy: %w", err)
	}
	zero, err := r.unit.Encrypt(cipher.KindWord, 0)
	if err != nil {
		return fmt.Errorf("game: policy: %w", err)
	}
	delta, err := r.unit.Select(carried, yield, zero)
	if err != nil {
		return fmt.Errorf("game: policy: %w", err)
	}

	n := len(room.members)
	newResources := make([]cipher.Value, n)
	for i, m := range room.members {
		// dead members collect nothing, also without branching
		di, err := r.unit.Select(m.alive, delta, zero)
		if err != nil {
			return fmt.Errorf("game: policy: %w", err)
		}
		if newResources[i], err = r.unit.Add(m.resources, di); err != nil {
			return fmt.Errorf("game: policy: %w", err)
		}
	}
	for i, m := range room.members {
		m.resources = newResources[i]
	}
	return nil
}

// ResolveAlliance shields the member whose slot was elected: their health
// grows by the alliance shield. Every member receives the same sequence of
// operations.
func (r *Registry) ResolveAlliance(id RoomID, winner cipher.Value) error {
	room, err := r.room(id)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if !room.active {
		return ErrRoomInactive
	}

	shield, err := r.unit.Encrypt(cipher.KindWord, params.AllianceShield)
	if err != nil {
		return fmt.Errorf("game: alliance: %w", err)
	}
	zero, err := r.unit.Encrypt(cipher.KindWord, 0)
	if err != nil {
		return fmt.Errorf("game: alliance: %w", err)
	}

	n := len(room.members)
	newHealth := make([]cipher.Value, n)
	for i, m := range room.members {
		slot, err := r.unit.Encrypt(cipher.KindByte, uint64(i))
		if err != nil {
			return fmt.Errorf("game: alliance: %w", err)
		}
		hit, err := r.unit.Eq(winner, slot)
		if err != nil {
			return fmt.Errorf("game: alliance: %w", err)
		}
		bonus, err := r.unit.Select(hit, shield, zero)
		if err != nil {
			return fmt.Errorf("game: alliance: %w", err)
		}
		if newHealth[i], err = r.unit.Add(m.health, bonus); err != nil {
			return fmt.Errorf("game: alliance: %w", err)
		}
	}
	for i, m := range room.members {
		m.health = newHealth[i]
	}
	return nil
}

// ResolveEmergencyHalt ends the room when the halt option, slot 0 by
// convention, carried the ballot. The single revealed predicate is whether
// it carried; it happens before any mutation, so a pending reveal leaves
// the room untouched.
func (r *Registry) ResolveEmergencyHalt(id RoomID, winner cipher.Value) error {
	room, err := r.room(id)
	if err != nil {
		return err
	}

	room.mu.Lock()
	haltAddrs, err := func() ([]party.ID, error) {
		if !room.active {
			return nil, ErrRoomInactive
		}
		halt, err := r.unit.Encrypt(cipher.KindByte, 0)
		if err != nil {
			return nil, fmt.Errorf("game: halt: %w", err)
		}
		hit, err := r.unit.Eq(winner, halt)
		if err != nil {
			return nil, fmt.Errorf("game: halt: %w", err)
		}
		carried, err := r.gate.RevealBool(hit, purposeHalt)
		if err != nil {
			return nil, fmt.Errorf("game: halt: %w", err)
		}
		if !carried {
			return nil, nil
		}
		return room.end(""), nil
	}()
	room.mu.Unlock()
	if err != nil || haltAddrs == nil {
		return err
	}

	r.releaseMembers(id, haltAddrs)
	r.log.Info().Uint64("room", uint64(id)).Msg("game halted by vote")
	ev := event.New(event.GameEnded, r.clock.Now())
	ev.Room = uint64(id)
	ev.Note = "emergency halt"
	r.sink.Emit(ev)
	return nil
}

// MarkVoted mirrors a successful ballot cast into the member's record.
func (r *Registry) MarkVoted(id RoomID, voter party.ID) error {
	room, err := r.room(id)
	if err != nil {
		return err
	}
	flag, err := r.encBool(true)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	slot, ok := room.slots[voter]
	if !ok {
		return ErrNotInRoom
	}
	room.members[slot].voted = flag
	return nil
}

// ResetVoted clears every member's voted flag. The tally engine calls it
// when a fresh session opens.
func (r *Registry) ResetVoted(id RoomID) error {
	room, err := r.room(id)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	n := len(room.members)
	cleared := make([]cipher.Value, n)
	for i := range cleared {
		f, err := r.encBool(false)
		if err != nil {
			return err
		}
		cleared[i] = f
	}
	for i, m := range room.members {
		m.voted = cleared[i]
	}
	return nil
}
