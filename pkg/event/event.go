// Package event carries game lifecycle notifications to off-module
// consumers (indexers, UIs). Emission is fire and forget: sinks must not
// block, and delivery is not required for game correctness.
package event

import (
	"time"

	"github.com/rs/xid"

	"github.com/cloakwork/conclave/pkg/party"
)

// Kind names a lifecycle event.
type Kind string

const (
	RoomCreated      Kind = "room.created"
	RoomJoined       Kind = "room.joined"
	RoomLeft         Kind = "room.left"
	RoomStopped      Kind = "room.stopped"
	GameStarted      Kind = "game.started"
	GameEnded        Kind = "game.ended"
	PhaseAdvanced    Kind = "phase.advanced"
	SessionOpened    Kind = "session.opened"
	VoteCast         Kind = "vote.cast"
	SessionFinalized Kind = "session.finalized"
	SessionCancelled Kind = "session.cancelled"
)

// Event is a single notification. Only public facts appear here: room and
// session numbers, the acting address and a human readable note. Encrypted
// state never crosses this boundary.
type Event struct {
	ID      string
	Kind    Kind
	Room    uint64
	Session uint64
	Actor   party.ID
	At      time.Time
	Note    string
}

// New returns an event of the given kind stamped with a fresh id.
func New(k Kind, at time.Time) Event {
	return Event{ID: xid.New().String(), Kind: k, At: at}
}

// Sink receives events. Implementations must be safe for concurrent use
// and must return promptly.
type Sink interface {
	Emit(Event)
}

// NopSink discards everything.
type NopSink struct{}

var _ Sink = NopSink{}

func (NopSink) Emit(Event) {}
