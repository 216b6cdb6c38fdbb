// Package game hosts the room registry and the phase state machine.
//
// A registry tracks every room and enforces the core membership rule: a
// participant occupies at most one room at a time. The registry's lock
// covers the lookup maps; each room carries its own lock for its state, so
// work inside one room does not stall the others.
package game

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cloakwork/conclave/internal/params"
	"github.com/cloakwork/conclave/pkg/cipher"
	"github.com/cloakwork/conclave/pkg/event"
	"github.com/cloakwork/conclave/pkg/party"
)

var (
	ErrRoomNotFound     = errors.New("game: room not found")
	ErrRoomInactive     = errors.New("game: room is not active")
	ErrRoomFull         = errors.New("game: room is full")
	ErrAlreadyInRoom    = errors.New("game: participant already in a room")
	ErrNotInRoom        = errors.New("game: participant not in this room")
	ErrGameStarted      = errors.New("game: game already started")
	ErrNotEnoughPlayers = errors.New("game: not enough players to start")
	ErrPhaseNotReady    = errors.New("game: phase is not ready to advance")
	ErrCannotLeaveNow   = errors.New("game: cannot leave a running game")
	ErrNotAuthorized    = errors.New("game: caller is not authorized")
)

// Registry tracks rooms and who is in them.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[RoomID]*Room
	byParty map[party.ID]RoomID
	nextID  RoomID

	cfg   Config
	unit  cipher.Unit
	gate  *cipher.Gate
	clock clockwork.Clock
	sink  event.Sink
	log   zerolog.Logger
}

// NewRegistry returns an empty registry.
//
// clock may be nil to use the system clock; sink may be nil to discard
// events; pass zerolog.Nop() to silence logs.
func NewRegistry(cfg Config, unit cipher.Unit, gate *cipher.Gate, clock clockwork.Clock, sink event.Sink, log zerolog.Logger) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if unit == nil || gate == nil {
		return nil, errors.New("game: registry needs a cipher unit and gate")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sink == nil {
		sink = event.NopSink{}
	}
	return &Registry{
		rooms:   map[RoomID]*Room{},
		byParty: map[party.ID]RoomID{},
		cfg:     cfg,
		unit:    unit,
		gate:    gate,
		clock:   clock,
		sink:    sink,
		log:     log.With().Str("component", "registry").Logger(),
	}, nil
}

// Config returns the rule set the registry runs under.
func (r *Registry) Config() Config { return r.cfg }

// newMember mints a participant record with encrypted starting values.
func (r *Registry) newMember(addr party.ID) (*member, error) {
	role, err := r.unit.Encrypt(cipher.KindByte, uint64(RoleUnassigned))
	if err != nil {
		return nil, fmt.Errorf("game: minting member: %w", err)
	}
	health, err := r.unit.Encrypt(cipher.KindWord, params.BaseHealth)
	if err != nil {
		return nil, fmt.Errorf("game: minting member: %w", err)
	}
	resources, err := r.unit.Encrypt(cipher.KindWord, params.BaseResources)
	if err != nil {
		return nil, fmt.Errorf("game: minting member: %w", err)
	}
	alive, err := r.unit.Encrypt(cipher.KindBool, 1)
	if err != nil {
		return nil, fmt.Errorf("game: minting member: %w", err)
	}
	voted, err := r.unit.Encrypt(cipher.KindBool, 0)
	if err != nil {
		return nil, fmt.Errorf("game: minting member: %w", err)
	}
	return &member{
		addr:      addr,
		role:      role,
		health:    health,
		resources: resources,
		alive:     alive,
		voted:     voted,
		joinedAt:  r.clock.Now(),
	}, nil
}

// CreateRoom opens a new room with the caller as its first member.
func (r *Registry) CreateRoom(caller party.Caller) (RoomID, error) {
	m, err := r.newMember(caller.ID)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	if _, taken := r.byParty[caller.ID]; taken {
		r.mu.Unlock()
		return 0, ErrAlreadyInRoom
	}
	r.nextID++
	id := r.nextID
	room := &Room{
		id:         id,
		phase:      PhaseWaiting,
		phaseStart: r.clock.Now(),
		active:     true,
		members:    []*member{m},
		slots:      map[party.ID]int{caller.ID: 0},
	}
	r.rooms[id] = room
	r.byParty[caller.ID] = id
	r.mu.Unlock()

	r.log.Info().Uint64("room", uint64(id)).Str("creator", caller.ID.Short()).Msg("room created")
	ev := event.New(event.RoomCreated, r.clock.Now())
	ev.Room = uint64(id)
	ev.Actor = caller.ID
	r.sink.Emit(ev)
	return id, nil
}

// JoinRoom adds the caller to a waiting room.
func (r *Registry) JoinRoom(caller party.Caller, id RoomID) error {
	m, err := r.newMember(caller.ID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	if _, taken := r.byParty[caller.ID]; taken {
		return ErrAlreadyInRoom
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if !room.active {
		return ErrRoomInactive
	}
	if room.phase != PhaseWaiting {
		return ErrGameStarted
	}
	if len(room.members) >= r.cfg.MaxPlayers {
		return ErrRoomFull
	}
	room.slots[caller.ID] = len(room.members)
	room.members = append(room.members, m)
	r.byParty[caller.ID] = id

	ev := event.New(event.RoomJoined, r.clock.Now())
	ev.Room = uint64(id)
	ev.Actor = caller.ID
	r.sink.Emit(ev)
	return nil
}

// LeaveRoom removes the caller from their room. Leaving is only possible
// while the room is still waiting; once a game runs, membership is fixed
// until it ends.
func (r *Registry) LeaveRoom(caller party.Caller) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byParty[caller.ID]
	if !ok {
		return ErrNotInRoom
	}
	room := r.rooms[id]
	room.mu.Lock()
	defer room.mu.Unlock()

	if !room.active || room.phase == PhaseEnded {
		// the game is over; just drop the stale mapping
		delete(r.byParty, caller.ID)
		return nil
	}
	if room.phase != PhaseWaiting {
		return ErrCannotLeaveNow
	}

	room.removeMember(room.slots[caller.ID])
	delete(r.byParty, caller.ID)
	ev := event.New(event.RoomLeft, r.clock.Now())
	ev.Room = uint64(id)
	ev.Actor = caller.ID
	r.sink.Emit(ev)

	if len(room.members) == 0 {
		room.active = false
		r.log.Info().Uint64("room", uint64(id)).Msg("room emptied")
		ev := event.New(event.RoomStopped, r.clock.Now())
		ev.Room = uint64(id)
		ev.Note = "empty"
		r.sink.Emit(ev)
	}
	return nil
}

// EmergencyStop force-ends a room. Operator only. Every member's room
// mapping is released immediately.
func (r *Registry) EmergencyStop(caller party.Caller, id RoomID) error {
	if !caller.Admin {
		return ErrNotAuthorized
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if !room.active {
		return ErrRoomInactive
	}
	for _, a := range room.end("") {
		delete(r.byParty, a)
	}

	r.log.Warn().Uint64("room", uint64(id)).Str("operator", caller.ID.Short()).Msg("room stopped")
	ev := event.New(event.RoomStopped, r.clock.Now())
	ev.Room = uint64(id)
	ev.Actor = caller.ID
	ev.Note = "emergency stop"
	r.sink.Emit(ev)
	return nil
}

// StartGame begins the game: roles are assigned by join order, voted flags
// are cleared and the room enters Day. The caller must be a member of the
// room or an operator.
func (r *Registry) StartGame(caller party.Caller, id RoomID) error {
	r.mu.RLock()
	room, ok := r.rooms[id]
	if !ok {
		r.mu.RUnlock()
		return ErrRoomNotFound
	}
	if !caller.Admin && r.byParty[caller.ID] != id {
		r.mu.RUnlock()
		return ErrNotInRoom
	}
	r.mu.RUnlock()

	room.mu.Lock()
	defer room.mu.Unlock()
	if !room.active {
		return ErrRoomInactive
	}
	if room.phase != PhaseWaiting {
		return ErrGameStarted
	}
	n := len(room.members)
	if n < r.cfg.MinPlayers {
		return ErrNotEnoughPlayers
	}

	// mint everything first so a failure leaves the room untouched
	roles := make([]cipher.Value, n)
	cleared := make([]cipher.Value, n)
	for i := range room.members {
		role, err := r.unit.Encrypt(cipher.KindByte, uint64(roleFor(i, n)))
		if err != nil {
			return fmt.Errorf("game: assigning roles: %w", err)
		}
		unvoted, err := r.unit.Encrypt(cipher.KindBool, 0)
		if err != nil {
			return fmt.Errorf("game: assigning roles: %w", err)
		}
		roles[i], cleared[i] = role, unvoted
	}
	for i, m := range room.members {
		m.role = roles[i]
		m.voted = cleared[i]
	}
	room.phase = PhaseDay
	room.phaseStart = r.clock.Now()

	r.log.Info().Uint64("room", uint64(id)).Int("players", n).Msg("game started")
	ev := event.New(event.GameStarted, r.clock.Now())
	ev.Room = uint64(id)
	ev.Actor = caller.ID
	r.sink.Emit(ev)
	return nil
}

// AdvancePhase moves the room to the next phase of the day cycle. The
// current phase must have run its configured length, unless the caller is
// an operator. Reaching the day limit ends the game.
func (r *Registry) AdvancePhase(caller party.Caller, id RoomID) error {
	room, err := r.room(id)
	if err != nil {
		return err
	}

	room.mu.Lock()
	if !room.active {
		room.mu.Unlock()
		return ErrRoomInactive
	}
	if !room.phase.InGame() {
		room.mu.Unlock()
		return ErrPhaseNotReady
	}
	now := r.clock.Now()
	if !caller.Admin && now.Sub(room.phaseStart) < r.cfg.Duration(room.phase) {
		room.mu.Unlock()
		return ErrPhaseNotReady
	}

	// entering Day clears every voted flag; mint first so a failure leaves
	// the room untouched
	var cleared []cipher.Value
	if room.phase == PhaseNight {
		cleared = make([]cipher.Value, len(room.members))
		for i := range cleared {
			c, err := r.unit.Encrypt(cipher.KindBool, 0)
			if err != nil {
				room.mu.Unlock()
				return fmt.Errorf("game: clearing voted flags: %w", err)
			}
			cleared[i] = c
		}
	}

	prev := room.phase
	if prev == PhaseNight {
		room.dayCount++
		for i, m := range room.members {
			m.voted = cleared[i]
		}
	}
	room.phase = prev.next()
	room.phaseStart = now
	next := room.phase
	day := room.dayCount

	var released []party.ID
	ended := false
	if room.dayCount >= r.cfg.EndDayLimit {
		released = room.end("")
		ended = true
	}
	room.mu.Unlock()

	if ended {
		r.releaseMembers(id, released)
		r.log.Info().Uint64("room", uint64(id)).Uint32("day", day).Msg("game ended at day limit")
		ev := event.New(event.GameEnded, now)
		ev.Room = uint64(id)
		ev.Actor = caller.ID
		ev.Note = "day limit reached"
		r.sink.Emit(ev)
		return nil
	}

	r.log.Debug().Uint64("room", uint64(id)).Str("from", prev.String()).Str("to", next.String()).Uint32("day", day).Msg("phase advanced")
	ev := event.New(event.PhaseAdvanced, now)
	ev.Room = uint64(id)
	ev.Actor = caller.ID
	ev.Note = next.String()
	r.sink.Emit(ev)
	return nil
}

// RoomOf returns the room the participant currently occupies.
func (r *Registry) RoomOf(p party.ID) (RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byParty[p]
	return id, ok
}

// RoomView returns a consistent copy of the room's state.
func (r *Registry) RoomView(id RoomID) (RoomView, error) {
	room, err := r.room(id)
	if err != nil {
		return RoomView{}, err
	}
	return room.View(), nil
}

// room looks a room up without touching its state.
func (r *Registry) room(id RoomID) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// releaseMembers drops the mappings of addrs that still point at id. A
// member may already have left through the ended-room path and moved on,
// so only matching mappings are touched.
func (r *Registry) releaseMembers(id RoomID, addrs []party.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range addrs {
		if r.byParty[a] == id {
			delete(r.byParty, a)
		}
	}
}

func (r *Registry) encBool(b bool) (cipher.Value, error) {
	var x uint64
	if b {
		x = 1
	}
	return r.unit.Encrypt(cipher.KindBool, x)
}
