package game

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloakwork/conclave/pkg/cipher"
	"github.com/cloakwork/conclave/pkg/party"
)

type memberMarshal struct {
	Address   party.ID
	Role      cipher.Value
	Health    cipher.Value
	Resources cipher.Value
	Alive     cipher.Value
	Voted     cipher.Value
	JoinedAt  time.Time
}

type roomMarshal struct {
	ID         uint64
	Phase      uint8
	PhaseStart time.Time
	DayCount   uint32
	Active     bool
	Winner     party.ID
	Members    []memberMarshal
}

// MarshalBinary implements encoding.BinaryMarshaler. The snapshot carries
// ciphertext handles only, so it is exactly as confidential as the values
// it names.
func (r *Room) MarshalBinary() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms := make([]memberMarshal, len(r.members))
	for i, m := range r.members {
		ms[i] = memberMarshal{
			Address:   m.addr,
			Role:      m.role,
			Health:    m.health,
			Resources: m.resources,
			Alive:     m.alive,
			Voted:     m.voted,
			JoinedAt:  m.joinedAt,
		}
	}
	return cbor.Marshal(&roomMarshal{
		ID:         uint64(r.id),
		Phase:      uint8(r.phase),
		PhaseStart: r.phaseStart,
		DayCount:   r.dayCount,
		Active:     r.active,
		Winner:     r.winner,
		Members:    ms,
	})
}

// Snapshot serializes a room's current state for checkpointing.
func (r *Registry) Snapshot(id RoomID) ([]byte, error) {
	room, err := r.room(id)
	if err != nil {
		return nil, err
	}
	return room.MarshalBinary()
}

// RestoreRoom rebuilds a room from a snapshot.
func RestoreRoom(data []byte) (*Room, error) {
	room := &Room{}
	if err := room.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return room, nil
}

// UnmarshalBinary restores a snapshot. The restored room is detached: it
// belongs to no registry and serves checkpoint and inspection tooling.
func (r *Room) UnmarshalBinary(data []byte) error {
	rm := &roomMarshal{}
	if err := cbor.Unmarshal(data, rm); err != nil {
		return fmt.Errorf("game: room: %w", err)
	}
	if Phase(rm.Phase) > PhaseEnded {
		return fmt.Errorf("game: room: unknown phase %d", rm.Phase)
	}
	members := make([]*member, len(rm.Members))
	slots := make(map[party.ID]int, len(rm.Members))
	for i, mm := range rm.Members {
		if _, dup := slots[mm.Address]; dup {
			return fmt.Errorf("game: room: duplicate member %s", mm.Address)
		}
		members[i] = &member{
			addr:      mm.Address,
			role:      mm.Role,
			health:    mm.Health,
			resources: mm.Resources,
			alive:     mm.Alive,
			voted:     mm.Voted,
			joinedAt:  mm.JoinedAt,
		}
		slots[mm.Address] = i
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = RoomID(rm.ID)
	r.phase = Phase(rm.Phase)
	r.phaseStart = rm.PhaseStart
	r.dayCount = rm.DayCount
	r.active = rm.Active
	r.winner = rm.Winner
	r.members = members
	r.slots = slots
	return nil
}
