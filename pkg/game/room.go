package game

import (
	"sync"
	"time"

	"github.com/cloakwork/conclave/pkg/cipher"
	"github.com/cloakwork/conclave/pkg/party"
)

// RoomID numbers rooms sequentially, starting at 1.
type RoomID uint64

// member is a room's record of one participant. All gameplay relevant
// state is encrypted; only the address and join time are plain.
type member struct {
	addr      party.ID
	role      cipher.Value
	health    cipher.Value
	resources cipher.Value
	alive     cipher.Value
	voted     cipher.Value
	joinedAt  time.Time
}

// Room is one game lobby and its confidential state.
//
// A Room's fields are guarded by its own mutex; the registry's lock only
// covers the maps that locate rooms. Rooms are never removed from the
// registry, an ended room stays readable as history.
type Room struct {
	mu         sync.Mutex
	id         RoomID
	phase      Phase
	phaseStart time.Time
	dayCount   uint32
	active     bool
	winner     party.ID
	members    []*member
	slots      map[party.ID]int
}

// Participant is a read only copy of a member's encrypted state.
type Participant struct {
	Address   party.ID
	Role      cipher.Value
	Health    cipher.Value
	Resources cipher.Value
	Alive     cipher.Value
	Voted     cipher.Value
	JoinedAt  time.Time
}

// RoomView is a consistent copy of a room's public and encrypted state.
// Members appear in seat order: join order, except that a lobby departure
// moves the last member into the vacated seat.
type RoomView struct {
	ID         RoomID
	Phase      Phase
	PhaseStart time.Time
	DayCount   uint32
	Active     bool
	Winner     party.ID
	Members    []Participant
}

// Member returns the view of the member with the given address.
func (v RoomView) Member(addr party.ID) (Participant, bool) {
	for _, m := range v.Members {
		if m.Address == addr {
			return m, true
		}
	}
	return Participant{}, false
}

// View returns a consistent copy of the room.
func (r *Room) View() RoomView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view()
}

// view copies the room. Callers must hold r.mu.
func (r *Room) view() RoomView {
	ms := make([]Participant, len(r.members))
	for i, m := range r.members {
		ms[i] = Participant{
			Address:   m.addr,
			Role:      m.role,
			Health:    m.health,
			Resources: m.resources,
			Alive:     m.alive,
			Voted:     m.voted,
			JoinedAt:  m.joinedAt,
		}
	}
	return RoomView{
		ID:         r.id,
		Phase:      r.phase,
		PhaseStart: r.phaseStart,
		DayCount:   r.dayCount,
		Active:     r.active,
		Winner:     r.winner,
		Members:    ms,
	}
}

// removeMember drops the member at slot i by swapping in the last member.
// Order among the remaining members is not preserved; leaving is only legal
// in the lobby, before roles bind to positions. Callers must hold r.mu.
func (r *Room) removeMember(i int) {
	delete(r.slots, r.members[i].addr)
	last := len(r.members) - 1
	if i != last {
		r.members[i] = r.members[last]
		r.slots[r.members[i].addr] = i
	}
	r.members[last] = nil
	r.members = r.members[:last]
}

// end marks the room finished and returns the member addresses whose
// registry mappings must be released. Callers must hold r.mu.
func (r *Room) end(winner party.ID) []party.ID {
	r.phase = PhaseEnded
	r.active = false
	r.winner = winner
	addrs := make([]party.ID, len(r.members))
	for i, m := range r.members {
		addrs[i] = m.addr
	}
	return addrs
}
