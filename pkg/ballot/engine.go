// Package ballot runs confidential vote sessions on top of a game
// registry.
//
// A session collects one encrypted ballot per living member of its room.
// Ballots never decrypt during a tally: every cast updates every option
// count through the same select-and-add sequence, so neither the stored
// state nor the operation trace betrays a choice. Finalization picks the
// winner by an oblivious running max and hands it, still encrypted, to the
// registry's outcome handler for the session's type.
package ballot

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cloakwork/conclave/pkg/cipher"
	"github.com/cloakwork/conclave/pkg/event"
	"github.com/cloakwork/conclave/pkg/game"
	"github.com/cloakwork/conclave/pkg/party"
	"github.com/cloakwork/conclave/pkg/pool"
)

var (
	ErrSessionNotFound  = errors.New("ballot: session not found")
	ErrSessionNotActive = errors.New("ballot: session is not active")
	ErrSessionActive    = errors.New("ballot: room already has an active session")
	ErrVotingClosed     = errors.New("ballot: voting window is closed")
	ErrPlayerDead       = errors.New("ballot: dead players cannot vote")
	ErrAlreadyVoted     = errors.New("ballot: ballot already cast")
	ErrInvalidChoice    = errors.New("ballot: choice is out of range")
	ErrAlreadyFinalized = errors.New("ballot: session already finalized")
	ErrOptionCount      = errors.New("ballot: option count out of range")
	ErrNotReady         = errors.New("ballot: session is not ready to finalize")
)

// Reveal purposes recorded in the gate transcript by this package.
const (
	purposeAlive    = "cast.alive"
	purposeVoted    = "cast.voted"
	purposeChoice   = "cast.choice-bounds"
	purposeComplete = "session.complete"
)

// Engine owns every vote session and the room to active-session index.
//
// One mutex serializes session mutations. The registry and its rooms have
// their own locks and are always acquired after the engine's; the registry
// never calls back into the engine.
type Engine struct {
	mu       sync.Mutex
	sessions map[SessionID]*Session
	active   map[game.RoomID]SessionID
	nextID   SessionID

	cfg   Config
	reg   *game.Registry
	unit  cipher.Unit
	gate  *cipher.Gate
	pool  *pool.Pool
	clock clockwork.Clock
	sink  event.Sink
	log   zerolog.Logger
}

// NewEngine returns an engine over reg's rooms.
//
// p may be nil to run tally scans on the calling goroutine; clock may be
// nil to use the system clock; sink may be nil to discard events.
func NewEngine(cfg Config, reg *game.Registry, unit cipher.Unit, gate *cipher.Gate, p *pool.Pool, clock clockwork.Clock, sink event.Sink, log zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil || unit == nil || gate == nil {
		return nil, errors.New("ballot: engine needs a registry, a cipher unit and a gate")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sink == nil {
		sink = event.NopSink{}
	}
	return &Engine{
		sessions: map[SessionID]*Session{},
		active:   map[game.RoomID]SessionID{},
		cfg:      cfg,
		reg:      reg,
		unit:     unit,
		gate:     gate,
		pool:     p,
		clock:    clock,
		sink:     sink,
		log:      log.With().Str("component", "ballot").Logger(),
	}, nil
}

// Config returns the rule set the engine runs under.
func (e *Engine) Config() Config { return e.cfg }

// Open starts a vote session in a room. The caller must be a member of the
// room or an operator; the room must be in phase Voting, except for
// emergency sessions, which may open in any phase of a running game. A
// room holds at most one active session at a time.
//
// Each eligible voter is the room's living members, counted obliviously
// here and frozen for the session's lifetime. duration <= 0 selects the
// configured default.
func (e *Engine) Open(caller party.Caller, roomID game.RoomID, typ Type, options []string, duration time.Duration) (SessionID, error) {
	if !typ.valid() {
		return 0, fmt.Errorf("ballot: unknown vote type %d", typ)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	view, err := e.reg.RoomView(roomID)
	if err != nil {
		return 0, err
	}
	if !view.Active {
		return 0, game.ErrRoomInactive
	}
	if !caller.Admin {
		if _, ok := view.Member(caller.ID); !ok {
			return 0, game.ErrNotInRoom
		}
	}
	if typ == TypeEmergency {
		if !view.Phase.InGame() {
			return 0, game.ErrPhaseNotReady
		}
	} else if view.Phase != game.PhaseVoting {
		return 0, game.ErrPhaseNotReady
	}
	if _, busy := e.active[roomID]; busy {
		return 0, ErrSessionActive
	}
	if len(options) < e.cfg.MinOptions || len(options) > e.cfg.MaxOptions {
		return 0, ErrOptionCount
	}

	totalVoters, err := e.countVoters(view)
	if err != nil {
		return 0, err
	}
	votesReceived, err := e.unit.Encrypt(cipher.KindWord, 0)
	if err != nil {
		return 0, fmt.Errorf("ballot: opening session: %w", err)
	}
	opts := make([]Option, len(options))
	for i, desc := range options {
		index, err := e.unit.Encrypt(cipher.KindByte, uint64(i))
		if err != nil {
			return 0, fmt.Errorf("ballot: opening session: %w", err)
		}
		count, err := e.unit.Encrypt(cipher.KindWord, 0)
		if err != nil {
			return 0, fmt.Errorf("ballot: opening session: %w", err)
		}
		opts[i] = Option{Index: index, Count: count, Description: desc}
	}
	voted := make(map[party.ID]cipher.Value, len(view.Members))
	for _, m := range view.Members {
		flag, err := e.unit.Encrypt(cipher.KindBool, 0)
		if err != nil {
			return 0, fmt.Errorf("ballot: opening session: %w", err)
		}
		voted[m.Address] = flag
	}

	if duration <= 0 {
		duration = e.cfg.SessionDuration
	}
	if err := e.reg.ResetVoted(roomID); err != nil {
		return 0, err
	}

	now := e.clock.Now()
	e.nextID++
	s := &Session{
		id:            e.nextID,
		room:          roomID,
		typ:           typ,
		options:       opts,
		votesReceived: votesReceived,
		totalVoters:   totalVoters,
		voted:         voted,
		choices:       map[party.ID]cipher.Value{},
		weights:       map[party.ID]Weight{},
		startedAt:     now,
		endsAt:        now.Add(duration),
		active:        true,
	}
	e.sessions[s.id] = s
	e.active[roomID] = s.id

	e.log.Info().
		Uint64("session", uint64(s.id)).
		Uint64("room", uint64(roomID)).
		Str("type", typ.String()).
		Int("options", len(options)).
		Msg("session opened")
	ev := event.New(event.SessionOpened, now)
	ev.Room = uint64(roomID)
	ev.Session = uint64(s.id)
	ev.Actor = caller.ID
	ev.Note = typ.String()
	e.sink.Emit(ev)
	return s.id, nil
}

// countVoters sums the members' alive flags without revealing any of them.
func (e *Engine) countVoters(view game.RoomView) (cipher.Value, error) {
	count, err := e.unit.Encrypt(cipher.KindWord, 0)
	if err != nil {
		return cipher.Value{}, fmt.Errorf("ballot: counting voters: %w", err)
	}
	one, err := e.unit.Encrypt(cipher.KindWord, 1)
	if err != nil {
		return cipher.Value{}, fmt.Errorf("ballot: counting voters: %w", err)
	}
	zero, err := e.unit.Encrypt(cipher.KindWord, 0)
	if err != nil {
		return cipher.Value{}, fmt.Errorf("ballot: counting voters: %w", err)
	}
	for _, m := range view.Members {
		inc, err := e.unit.Select(m.Alive, one, zero)
		if err != nil {
			return cipher.Value{}, fmt.Errorf("ballot: counting voters: %w", err)
		}
		if count, err = e.unit.Add(count, inc); err != nil {
			return cipher.Value{}, fmt.Errorf("ballot: counting voters: %w", err)
		}
	}
	return count, nil
}

// CastVote counts one encrypted ballot. The choice is validated against
// the option range without decrypting it; the three predicates revealed
// along the way (the voter lives, has not voted, chose in range) happen
// before any state changes, so a pending reveal aborts the cast cleanly
// and the identical call can be retried.
//
// A successful cast updates every option's count through the same
// sequence of operations whatever the choice was.
func (e *Engine) CastVote(caller party.Caller, id SessionID, choice cipher.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if !s.active {
		return ErrSessionNotActive
	}
	now := e.clock.Now()
	if !now.Before(s.endsAt) {
		return ErrVotingClosed
	}
	view, err := e.reg.RoomView(s.room)
	if err != nil {
		return err
	}
	m, ok := view.Member(caller.ID)
	if !ok {
		return game.ErrNotInRoom
	}
	votedFlag, ok := s.voted[caller.ID]
	if !ok {
		return game.ErrNotInRoom
	}

	alive, err := e.gate.RevealBool(m.Alive, purposeAlive)
	if err != nil {
		return fmt.Errorf("ballot: cast check: %w", err)
	}
	if !alive {
		return ErrPlayerDead
	}
	voted, err := e.gate.RevealBool(votedFlag, purposeVoted)
	if err != nil {
		return fmt.Errorf("ballot: cast check: %w", err)
	}
	if voted {
		return ErrAlreadyVoted
	}
	if choice.Kind() != cipher.KindByte {
		return ErrInvalidChoice
	}
	bound, err := e.unit.Encrypt(cipher.KindByte, uint64(len(s.options)))
	if err != nil {
		return fmt.Errorf("ballot: cast check: %w", err)
	}
	inRange, err := e.unit.Lt(choice, bound)
	if err != nil {
		return fmt.Errorf("ballot: cast check: %w", err)
	}
	ok, err = e.gate.RevealBool(inRange, purposeChoice)
	if err != nil {
		return fmt.Errorf("ballot: cast check: %w", err)
	}
	if !ok {
		return ErrInvalidChoice
	}

	// validation is done; everything from here on must land together
	weight, err := e.cfg.Schema.Weigh(e.unit, m)
	if err != nil {
		return err
	}
	castFlag, err := e.unit.Encrypt(cipher.KindBool, 1)
	if err != nil {
		return fmt.Errorf("ballot: casting: %w", err)
	}
	one, err := e.unit.Encrypt(cipher.KindWord, 1)
	if err != nil {
		return fmt.Errorf("ballot: casting: %w", err)
	}
	received, err := e.unit.Add(s.votesReceived, one)
	if err != nil {
		return fmt.Errorf("ballot: casting: %w", err)
	}
	counts, err := e.tally(s, choice, weight.Total)
	if err != nil {
		return err
	}

	s.voted[caller.ID] = castFlag
	s.choices[caller.ID] = choice
	s.weights[caller.ID] = weight
	s.votesReceived = received
	for i := range s.options {
		s.options[i].Count = counts[i]
	}
	if err := e.reg.MarkVoted(s.room, caller.ID); err != nil {
		e.log.Warn().Err(err).Uint64("session", uint64(s.id)).Msg("voted flag mirror failed")
	}

	e.log.Debug().
		Uint64("session", uint64(s.id)).
		Str("voter", caller.ID.Short()).
		Msg("ballot cast")
	ev := event.New(event.VoteCast, now)
	ev.Room = uint64(s.room)
	ev.Session = uint64(s.id)
	ev.Actor = caller.ID
	e.sink.Emit(ev)

	// completion check: the one predicate that may finish the session
	// early. A pending answer leaves finalization to a later Finalize and
	// does not fail the cast that was already counted.
	done, err := e.unit.Eq(s.votesReceived, s.totalVoters)
	if err != nil {
		e.log.Warn().Err(err).Uint64("session", uint64(s.id)).Msg("completion check failed")
		return nil
	}
	complete, err := e.gate.RevealBool(done, purposeComplete)
	if err != nil {
		e.log.Debug().Err(err).Uint64("session", uint64(s.id)).Msg("completion check pending")
		return nil
	}
	if !complete {
		return nil
	}
	s.complete = true
	if err := e.finalizeLocked(s, caller); err != nil {
		e.log.Warn().Err(err).Uint64("session", uint64(s.id)).Msg("auto finalize deferred")
	}
	return nil
}

// tally returns every option's next count: the voter's weight lands on the
// chosen option, an encrypted zero on all the others. The per option work
// runs on the pool; each item performs the identical operation sequence.
func (e *Engine) tally(s *Session, choice, weight cipher.Value) ([]cipher.Value, error) {
	zero, err := e.unit.Encrypt(cipher.KindWord, 0)
	if err != nil {
		return nil, fmt.Errorf("ballot: tally scan: %w", err)
	}
	results := e.pool.Parallelize(len(s.options), func(i int) interface{} {
		hit, err := e.unit.Eq(choice, s.options[i].Index)
		if err != nil {
			return err
		}
		inc, err := e.unit.Select(hit, weight, zero)
		if err != nil {
			return err
		}
		next, err := e.unit.Add(s.options[i].Count, inc)
		if err != nil {
			return err
		}
		return next
	})
	counts := make([]cipher.Value, len(results))
	for i, res := range results {
		if err, ok := res.(error); ok {
			return nil, fmt.Errorf("ballot: tally scan: %w", err)
		}
		counts[i] = res.(cipher.Value)
	}
	return counts, nil
}

// Finalize closes a session and applies its outcome. A session is ready
// when every eligible voter has cast, when its deadline has passed, or on
// an operator's say-so.
func (e *Engine) Finalize(caller party.Caller, id SessionID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.finalized {
		return ErrAlreadyFinalized
	}
	if !s.active {
		return ErrSessionNotActive
	}
	if !s.complete && !caller.Admin && e.clock.Now().Before(s.endsAt) {
		done, err := e.unit.Eq(s.votesReceived, s.totalVoters)
		if err != nil {
			return fmt.Errorf("ballot: completion check: %w", err)
		}
		complete, err := e.gate.RevealBool(done, purposeComplete)
		if err != nil {
			return fmt.Errorf("ballot: completion check: %w", err)
		}
		if !complete {
			return ErrNotReady
		}
		s.complete = true
	}
	return e.finalizeLocked(s, caller)
}

// finalizeLocked picks the winner and applies the outcome. The outcome
// handler runs before the session is marked finalized: handlers are
// retryable, so a pending reveal inside one aborts finalization and a
// later identical call converges. Callers must hold e.mu.
func (e *Engine) finalizeLocked(s *Session, caller party.Caller) error {
	winner, err := e.winningOption(s)
	if err != nil {
		return err
	}
	if err := e.dispatch(s, winner); err != nil {
		return fmt.Errorf("ballot: applying outcome: %w", err)
	}

	s.winner = winner
	s.active = false
	s.finalized = true
	delete(e.active, s.room)

	e.log.Info().
		Uint64("session", uint64(s.id)).
		Uint64("room", uint64(s.room)).
		Str("type", s.typ.String()).
		Msg("session finalized")
	ev := event.New(event.SessionFinalized, e.clock.Now())
	ev.Room = uint64(s.room)
	ev.Session = uint64(s.id)
	ev.Actor = caller.ID
	ev.Note = s.typ.String()
	e.sink.Emit(ev)
	return nil
}

// winningOption runs the oblivious maximum over the option counts in index
// order. Only a strictly greater count displaces the best so far, so the
// lowest index wins exact ties.
func (e *Engine) winningOption(s *Session) (cipher.Value, error) {
	best := s.options[0].Count
	bestIndex := s.options[0].Index
	for i := 1; i < len(s.options); i++ {
		hit, err := e.unit.Gt(s.options[i].Count, best)
		if err != nil {
			return cipher.Value{}, fmt.Errorf("ballot: picking winner: %w", err)
		}
		if best, err = e.unit.Select(hit, s.options[i].Count, best); err != nil {
			return cipher.Value{}, fmt.Errorf("ballot: picking winner: %w", err)
		}
		if bestIndex, err = e.unit.Select(hit, s.options[i].Index, bestIndex); err != nil {
			return cipher.Value{}, fmt.Errorf("ballot: picking winner: %w", err)
		}
	}
	return bestIndex, nil
}

// dispatch hands the encrypted winner to the handler for the session's
// type.
func (e *Engine) dispatch(s *Session, winner cipher.Value) error {
	switch s.typ {
	case TypeElimination:
		return e.reg.ResolveElimination(s.room, winner)
	case TypePolicy:
		return e.reg.ResolvePolicy(s.room, winner)
	case TypeAlliance:
		return e.reg.ResolveAlliance(s.room, winner)
	case TypeEmergency:
		return e.reg.ResolveEmergencyHalt(s.room, winner)
	}
	return fmt.Errorf("ballot: no handler for %v", s.typ)
}

// Cancel abandons an active session: no winner, no outcome. Operators and
// room members may cancel.
func (e *Engine) Cancel(caller party.Caller, id SessionID, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.finalized {
		return ErrAlreadyFinalized
	}
	if !s.active {
		return ErrSessionNotActive
	}
	if !caller.Admin {
		view, err := e.reg.RoomView(s.room)
		if err != nil {
			return err
		}
		if _, ok := view.Member(caller.ID); !ok {
			return game.ErrNotInRoom
		}
	}

	s.active = false
	delete(e.active, s.room)

	e.log.Info().
		Uint64("session", uint64(s.id)).
		Uint64("room", uint64(s.room)).
		Str("reason", reason).
		Msg("session cancelled")
	ev := event.New(event.SessionCancelled, e.clock.Now())
	ev.Room = uint64(s.room)
	ev.Session = uint64(s.id)
	ev.Actor = caller.ID
	ev.Note = reason
	e.sink.Emit(ev)
	return nil
}

// SessionView returns a consistent copy of a session's state.
func (e *Engine) SessionView(id SessionID) (SessionView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return SessionView{}, ErrSessionNotFound
	}
	return s.View(), nil
}

// ActiveSession returns the id of the room's active session, if any.
func (e *Engine) ActiveSession(roomID game.RoomID) (SessionID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.active[roomID]
	return id, ok
}
