package ballot

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloakwork/conclave/pkg/cipher"
	"github.com/cloakwork/conclave/pkg/game"
	"github.com/cloakwork/conclave/pkg/party"
)

type weightMarshal struct {
	Base          cipher.Value
	RoleBonus     cipher.Value
	ResourceBonus cipher.Value
	Total         cipher.Value
}

type optionMarshal struct {
	Index       cipher.Value
	Count       cipher.Value
	Description string
}

type sessionMarshal struct {
	ID            uint64
	Room          uint64
	Type          uint8
	Options       []optionMarshal
	VotesReceived cipher.Value
	TotalVoters   cipher.Value
	Voted         map[party.ID]cipher.Value
	Choices       map[party.ID]cipher.Value
	Weights       map[party.ID]weightMarshal
	StartedAt     time.Time
	EndsAt        time.Time
	Active        bool
	Finalized     bool
	Complete      bool
	Winner        cipher.Value
}

// MarshalBinary implements encoding.BinaryMarshaler. The snapshot carries
// ciphertext handles only; choices and weights stay exactly as opaque as
// they are in memory.
func (s *Session) MarshalBinary() ([]byte, error) {
	opts := make([]optionMarshal, len(s.options))
	for i, o := range s.options {
		opts[i] = optionMarshal{Index: o.Index, Count: o.Count, Description: o.Description}
	}
	weights := make(map[party.ID]weightMarshal, len(s.weights))
	for p, w := range s.weights {
		weights[p] = weightMarshal{
			Base:          w.Base,
			RoleBonus:     w.RoleBonus,
			ResourceBonus: w.ResourceBonus,
			Total:         w.Total,
		}
	}
	return cbor.Marshal(&sessionMarshal{
		ID:            uint64(s.id),
		Room:          uint64(s.room),
		Type:          uint8(s.typ),
		Options:       opts,
		VotesReceived: s.votesReceived,
		TotalVoters:   s.totalVoters,
		Voted:         s.voted,
		Choices:       s.choices,
		Weights:       weights,
		StartedAt:     s.startedAt,
		EndsAt:        s.endsAt,
		Active:        s.active,
		Finalized:     s.finalized,
		Complete:      s.complete,
		Winner:        s.winner,
	})
}

// UnmarshalBinary restores a snapshot. The restored session is detached:
// it belongs to no engine and serves checkpoint and inspection tooling.
func (s *Session) UnmarshalBinary(data []byte) error {
	sm := &sessionMarshal{}
	if err := cbor.Unmarshal(data, sm); err != nil {
		return fmt.Errorf("ballot: session: %w", err)
	}
	if !Type(sm.Type).valid() {
		return fmt.Errorf("ballot: session: unknown vote type %d", sm.Type)
	}
	if len(sm.Options) < 2 {
		return fmt.Errorf("ballot: session: only %d options", len(sm.Options))
	}
	opts := make([]Option, len(sm.Options))
	for i, o := range sm.Options {
		opts[i] = Option{Index: o.Index, Count: o.Count, Description: o.Description}
	}
	voted := sm.Voted
	if voted == nil {
		voted = map[party.ID]cipher.Value{}
	}
	choices := sm.Choices
	if choices == nil {
		choices = map[party.ID]cipher.Value{}
	}
	weights := make(map[party.ID]Weight, len(sm.Weights))
	for p, w := range sm.Weights {
		weights[p] = Weight{
			Base:          w.Base,
			RoleBonus:     w.RoleBonus,
			ResourceBonus: w.ResourceBonus,
			Total:         w.Total,
		}
	}

	s.id = SessionID(sm.ID)
	s.room = game.RoomID(sm.Room)
	s.typ = Type(sm.Type)
	s.options = opts
	s.votesReceived = sm.VotesReceived
	s.totalVoters = sm.TotalVoters
	s.voted = voted
	s.choices = choices
	s.weights = weights
	s.startedAt = sm.StartedAt
	s.endsAt = sm.EndsAt
	s.active = sm.Active
	s.finalized = sm.Finalized
	s.complete = sm.Complete
	s.winner = sm.Winner
	return nil
}

// SnapshotSession serializes a session's current state for checkpointing.
func (e *Engine) SnapshotSession(id SessionID) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.MarshalBinary()
}

// RestoreSession rebuilds a session from a snapshot.
func RestoreSession(data []byte) (*Session, error) {
	s := &Session{}
	if err := s.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return s, nil
}
