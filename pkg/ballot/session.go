package ballot

import (
	"fmt"
	"time"

	"github.com/cloakwork/conclave/pkg/cipher"
	"github.com/cloakwork/conclave/pkg/game"
	"github.com/cloakwork/conclave/pkg/party"
)

// SessionID numbers vote sessions sequentially, starting at 1.
type SessionID uint64

// Type selects what a session decides and which outcome handler its
// winner is passed to.
type Type uint8

const (
	// TypeElimination removes the member whose slot wins from play.
	TypeElimination Type = 1 + iota
	// TypePolicy enacts a resource policy when option 0 carries.
	TypePolicy
	// TypeAlliance shields the member whose slot wins.
	TypeAlliance
	// TypeEmergency halts the game when option 0 carries. Emergency
	// sessions may open in any phase of a running game.
	TypeEmergency
)

func (t Type) valid() bool { return t >= TypeElimination && t <= TypeEmergency }

func (t Type) String() string {
	switch t {
	case TypeElimination:
		return "elimination"
	case TypePolicy:
		return "policy"
	case TypeAlliance:
		return "alliance"
	case TypeEmergency:
		return "emergency"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Option is one choice on a ballot. Index holds the option's position as a
// ciphertext so tallies compare ballots against it directly; Count is the
// encrypted weighted tally.
type Option struct {
	Index       cipher.Value
	Count       cipher.Value
	Description string
}

// Session is one vote from opening to its outcome. All tally state is
// encrypted; the engine's lock serializes access while the session is
// live.
type Session struct {
	id   SessionID
	room game.RoomID
	typ  Type

	options       []Option
	votesReceived cipher.Value
	totalVoters   cipher.Value

	voted   map[party.ID]cipher.Value
	choices map[party.ID]cipher.Value
	weights map[party.ID]Weight

	startedAt time.Time
	endsAt    time.Time

	active    bool
	finalized bool
	complete  bool
	winner    cipher.Value
}

// SessionView is a copy of a session's state. Choices and weights stay
// inside the session; the view shows only what a tally is allowed to
// expose.
type SessionView struct {
	ID            SessionID
	Room          game.RoomID
	Type          Type
	Options       []Option
	VotesReceived cipher.Value
	TotalVoters   cipher.Value
	StartedAt     time.Time
	EndsAt        time.Time
	Active        bool
	Finalized     bool
	Complete      bool
	Winner        cipher.Value
}

// View copies the session. Live sessions must be read through
// Engine.SessionView; calling View directly is for restored snapshots.
func (s *Session) View() SessionView {
	return SessionView{
		ID:            s.id,
		Room:          s.room,
		Type:          s.typ,
		Options:       append([]Option(nil), s.options...),
		VotesReceived: s.votesReceived,
		TotalVoters:   s.totalVoters,
		StartedAt:     s.startedAt,
		EndsAt:        s.endsAt,
		Active:        s.active,
		Finalized:     s.finalized,
		Complete:      s.complete,
		Winner:        s.winner,
	}
}
