package game_test

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloakwork/conclave/internal/test"
	"github.com/cloakwork/conclave/pkg/cipher"
	"github.com/cloakwork/conclave/pkg/event"
	"github.com/cloakwork/conclave/pkg/game"
	"github.com/cloakwork/conclave/pkg/party"
)

// env bundles a registry with the fakes behind it.
type env struct {
	t     *testing.T
	unit  *cipher.LocalUnit
	clock clockwork.FakeClock
	sink  *test.RecordSink
	reg   *game.Registry
}

func newEnv(t *testing.T, cfg game.Config) *env {
	unit, err := cipher.NewLocalUnit()
	require.NoError(t, err)
	e := &env{
		t:     t,
		unit:  unit,
		clock: clockwork.NewFakeClock(),
		sink:  &test.RecordSink{},
	}
	e.reg, err = game.NewRegistry(cfg, unit, cipher.NewGate(unit, zerolog.Nop()), e.clock, e.sink, zerolog.Nop())
	require.NoError(t, err)
	return e
}

// newStallEnv builds an env whose reveals answer ErrPending the first
// stalls times.
func newStallEnv(t *testing.T, stalls int) *env {
	unit, err := cipher.NewLocalUnit()
	require.NoError(t, err)
	e := &env{
		t:     t,
		unit:  unit,
		clock: clockwork.NewFakeClock(),
		sink:  &test.RecordSink{},
	}
	gate := cipher.NewGate(test.NewStutterRevealer(unit, stalls), zerolog.Nop())
	e.reg, err = game.NewRegistry(game.DefaultConfig(), unit, gate, e.clock, e.sink, zerolog.Nop())
	require.NoError(t, err)
	return e
}

// fill creates a room and joins n-1 further members.
func (e *env) fill(n int) (game.RoomID, []party.ID) {
	e.t.Helper()
	ids := test.Addresses(n)
	id, err := e.reg.CreateRoom(party.User(ids[0]))
	require.NoError(e.t, err)
	for _, p := range ids[1:] {
		require.NoError(e.t, e.reg.JoinRoom(party.User(p), id))
	}
	return id, ids
}

func (e *env) enc(k cipher.Kind, x uint64) cipher.Value {
	e.t.Helper()
	v, err := e.unit.Encrypt(k, x)
	require.NoError(e.t, err)
	return v
}

func (e *env) reveal(v cipher.Value) uint64 {
	e.t.Helper()
	x, err := e.unit.Reveal(v)
	require.NoError(e.t, err)
	return x
}

func (e *env) view(id game.RoomID) game.RoomView {
	e.t.Helper()
	v, err := e.reg.RoomView(id)
	require.NoError(e.t, err)
	return v
}

// outsider returns an address that fill(n) never hands out for n < 90.
func outsider() party.ID { return test.Addresses(99)[98] }

func TestNewRegistryChecks(t *testing.T) {
	unit, err := cipher.NewLocalUnit()
	require.NoError(t, err)
	gate := cipher.NewGate(unit, zerolog.Nop())

	_, err = game.NewRegistry(game.Config{}, unit, gate, nil, nil, zerolog.Nop())
	assert.Error(t, err)
	_, err = game.NewRegistry(game.DefaultConfig(), nil, gate, nil, nil, zerolog.Nop())
	assert.Error(t, err)
	_, err = game.NewRegistry(game.DefaultConfig(), unit, nil, nil, nil, zerolog.Nop())
	assert.Error(t, err)

	reg, err := game.NewRegistry(game.DefaultConfig(), unit, gate, nil, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, reg)
}

func TestCreateRoom(t *testing.T) {
	e := newEnv(t, game.DefaultConfig())
	ids := test.Addresses(1)

	id, err := e.reg.CreateRoom(party.User(ids[0]))
	require.NoError(t, err)
	assert.EqualValues(t, 1, id)

	got, ok := e.reg.RoomOf(ids[0])
	require.True(t, ok)
	assert.Equal(t, id, got)

	v := e.view(id)
	assert.Equal(t, game.PhaseWaiting, v.Phase)
	assert.True(t, v.Active)
	require.Len(t, v.Members, 1)

	// the creator's starting state is encrypted but well defined
	m := v.Members[0]
	assert.Equal(t, ids[0], m.Address)
	assert.EqualValues(t, game.RoleUnassigned, e.reveal(m.Role))
	assert.EqualValues(t, 100, e.reveal(m.Health))
	assert.EqualValues(t, 50, e.reveal(m.Resources))
	assert.EqualValues(t, 1, e.reveal(m.Alive))
	assert.EqualValues(t, 0, e.reveal(m.Voted))

	assert.True(t, e.sink.Has(event.RoomCreated))

	_, err = e.reg.CreateRoom(party.User(ids[0]))
	assert.ErrorIs(t, err, game.ErrAlreadyInRoom)
}

func TestJoinRoom(t *testing.T) {
	cfg := game.DefaultConfig()
	cfg.MaxPlayers = 3
	e := newEnv(t, cfg)
	ids := test.Addresses(5)

	id, err := e.reg.CreateRoom(party.User(ids[0]))
	require.NoError(t, err)
	require.NoError(t, e.reg.JoinRoom(party.User(ids[1]), id))
	require.NoError(t, e.reg.JoinRoom(party.User(ids[2]), id))

	// join order is preserved
	v := e.view(id)
	require.Len(t, v.Members, 3)
	for i, p := range ids[:3] {
		assert.Equal(t, p, v.Members[i].Address)
	}
	assert.Equal(t, 2, e.sink.Count(event.RoomJoined))

	assert.ErrorIs(t, e.reg.JoinRoom(party.User(ids[3]), id), game.ErrRoomFull)
	assert.ErrorIs(t, e.reg.JoinRoom(party.User(ids[1]), id), game.ErrAlreadyInRoom)
	assert.ErrorIs(t, e.reg.JoinRoom(party.User(ids[4]), id+7), game.ErrRoomNotFound)
}

func TestJoinAfterStart(t *testing.T) {
	e := newEnv(t, game.DefaultConfig())
	id, ids := e.fill(4)
	require.NoError(t, e.reg.StartGame(party.User(ids[0]), id))

	assert.ErrorIs(t, e.reg.JoinRoom(party.User(outsider()), id), game.ErrGameStarted)
}

func TestLeaveRoom(t *testing.T) {
	e := newEnv(t, game.DefaultConfig())
	id, ids := e.fill(4)

	assert.ErrorIs(t, e.reg.LeaveRoom(party.User(outsider())), game.ErrNotInRoom)

	require.NoError(t, e.reg.LeaveRoom(party.User(ids[1])))
	_, ok := e.reg.RoomOf(ids[1])
	assert.False(t, ok)
	assert.True(t, e.sink.Has(event.RoomLeft))

	// the last member is swapped into the vacated slot
	v := e.view(id)
	require.Len(t, v.Members, 3)
	for i, want := range []party.ID{ids[0], ids[3], ids[2]} {
		assert.Equal(t, want, v.Members[i].Address)
	}

	// once the game runs, membership is fixed
	require.NoError(t, e.reg.JoinRoom(party.User(ids[1]), id))
	require.NoError(t, e.reg.StartGame(party.User(ids[0]), id))
	assert.ErrorIs(t, e.reg.LeaveRoom(party.User(ids[0])), game.ErrCannotLeaveNow)
}

func TestLeaveEmptiesRoom(t *testing.T) {
	e := newEnv(t, game.DefaultConfig())
	ids := test.Addresses(2)
	id, err := e.reg.CreateRoom(party.User(ids[0]))
	require.NoError(t, err)

	require.NoError(t, e.reg.LeaveRoom(party.User(ids[0])))
	v := e.view(id)
	assert.False(t, v.Active)
	assert.Empty(t, v.Members)
	assert.True(t, e.sink.Has(event.RoomStopped))

	// an emptied room cannot be joined again
	assert.ErrorIs(t, e.reg.JoinRoom(party.User(ids[1]), id), game.ErrRoomInactive)
}

func TestStartGame(t *testing.T) {
	e := newEnv(t, game.DefaultConfig())
	ids := test.Addresses(4)
	id, err := e.reg.CreateRoom(party.User(ids[0]))
	require.NoError(t, err)

	assert.ErrorIs(t, e.reg.StartGame(party.User(ids[0]), id), game.ErrNotEnoughPlayers)

	for _, p := range ids[1:] {
		require.NoError(t, e.reg.JoinRoom(party.User(p), id))
	}
	assert.ErrorIs(t, e.reg.StartGame(party.User(outsider()), id), game.ErrNotInRoom)
	assert.ErrorIs(t, e.reg.StartGame(party.User(ids[0]), id+1), game.ErrRoomNotFound)

	require.NoError(t, e.reg.StartGame(party.User(ids[0]), id))
	v := e.view(id)
	assert.Equal(t, game.PhaseDay, v.Phase)
	assert.EqualValues(t, 0, v.DayCount)
	assert.True(t, e.sink.Has(event.GameStarted))

	assert.ErrorIs(t, e.reg.StartGame(party.User(ids[0]), id), game.ErrGameStarted)
}

func TestRoleAssignment(t *testing.T) {
	tests := []struct {
		players int
		want    []game.Role
	}{
		{4, []game.Role{game.RoleInfiltrator, game.RoleGuardian, game.RoleGuardian, game.RoleGuardian}},
		{6, []game.Role{game.RoleInfiltrator, game.RoleDetective, game.RoleGuardian, game.RoleGuardian, game.RoleGuardian, game.RoleGuardian}},
		{8, []game.Role{game.RoleInfiltrator, game.RoleDetective, game.RoleHacker, game.RoleGuardian, game.RoleGuardian, game.RoleGuardian, game.RoleGuardian, game.RoleGuardian}},
	}
	for _, tt := range tests {
		e := newEnv(t, game.DefaultConfig())
		id, ids := e.fill(tt.players)
		require.NoError(t, e.reg.StartGame(party.User(ids[0]), id))

		v := e.view(id)
		for i, want := range tt.want {
			assert.EqualValues(t, want, e.reveal(v.Members[i].Role), "players=%d slot=%d", tt.players, i)
			assert.EqualValues(t, 0, e.reveal(v.Members[i].Voted))
		}
	}
}

func TestAdvancePhase(t *testing.T) {
	e := newEnv(t, game.DefaultConfig())
	id, ids := e.fill(4)
	user := party.User(ids[0])

	// there is no cycle to advance before the game starts
	assert.ErrorIs(t, e.reg.AdvancePhase(user, id), game.ErrPhaseNotReady)

	require.NoError(t, e.reg.StartGame(user, id))
	assert.ErrorIs(t, e.reg.AdvancePhase(user, id), game.ErrPhaseNotReady)

	cfg := e.reg.Config()
	e.clock.Advance(cfg.DayDuration)
	require.NoError(t, e.reg.AdvancePhase(user, id))
	assert.Equal(t, game.PhaseVoting, e.view(id).Phase)

	e.clock.Advance(cfg.VotingDuration)
	require.NoError(t, e.reg.AdvancePhase(user, id))
	assert.Equal(t, game.PhaseNight, e.view(id).Phase)
	require.NoError(t, e.reg.MarkVoted(id, ids[1]))

	// completing the night starts the next day and clears the voted flags
	e.clock.Advance(cfg.NightDuration)
	require.NoError(t, e.reg.AdvancePhase(user, id))
	v := e.view(id)
	assert.Equal(t, game.PhaseDay, v.Phase)
	assert.EqualValues(t, 1, v.DayCount)
	m, ok := v.Member(ids[1])
	require.True(t, ok)
	assert.EqualValues(t, 0, e.reveal(m.Voted))

	// operators skip the wait
	require.NoError(t, e.reg.AdvancePhase(party.Operator(outsider()), id))
	assert.Equal(t, game.PhaseVoting, e.view(id).Phase)
	assert.True(t, e.sink.Has(event.PhaseAdvanced))
}

func TestDayLimitEndsGame(t *testing.T) {
	cfg := game.DefaultConfig()
	cfg.EndDayLimit = 1
	e := newEnv(t, cfg)
	id, ids := e.fill(4)
	require.NoError(t, e.reg.StartGame(party.User(ids[0]), id))

	op := party.Operator(outsider())
	for i := 0; i < 3; i++ {
		require.NoError(t, e.reg.AdvancePhase(op, id))
	}

	v := e.view(id)
	assert.Equal(t, game.PhaseEnded, v.Phase)
	assert.False(t, v.Active)
	assert.Empty(t, v.Winner)
	assert.True(t, e.sink.Has(event.GameEnded))

	// members of the ended room are free to play again
	for _, p := range ids {
		_, ok := e.reg.RoomOf(p)
		assert.False(t, ok, "member %s still bound to the ended room", p.Short())
	}
	id2, err := e.reg.CreateRoom(party.User(ids[0]))
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)

	assert.ErrorIs(t, e.reg.AdvancePhase(op, id), game.ErrRoomInactive)
}

func TestEmergencyStop(t *testing.T) {
	e := newEnv(t, game.DefaultConfig())
	id, ids := e.fill(4)
	require.NoError(t, e.reg.StartGame(party.User(ids[0]), id))

	assert.ErrorIs(t, e.reg.EmergencyStop(party.User(ids[0]), id), game.ErrNotAuthorized)

	op := party.Operator(outsider())
	assert.ErrorIs(t, e.reg.EmergencyStop(op, id+1), game.ErrRoomNotFound)
	require.NoError(t, e.reg.EmergencyStop(op, id))

	v := e.view(id)
	assert.False(t, v.Active)
	assert.Equal(t, game.PhaseEnded, v.Phase)
	for _, p := range ids {
		_, ok := e.reg.RoomOf(p)
		assert.False(t, ok)
	}
	assert.True(t, e.sink.Has(event.RoomStopped))

	assert.ErrorIs(t, e.reg.EmergencyStop(op, id), game.ErrRoomInactive)
}

func TestRoomViewUnknown(t *testing.T) {
	e := newEnv(t, game.DefaultConfig())
	_, err := e.reg.RoomView(17)
	assert.ErrorIs(t, err, game.ErrRoomNotFound)
}
