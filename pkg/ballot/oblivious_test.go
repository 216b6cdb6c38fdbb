package ballot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloakwork/conclave/pkg/ballot"
	"github.com/cloakwork/conclave/pkg/cipher"
	"github.com/cloakwork/conclave/pkg/event"
	"github.com/cloakwork/conclave/pkg/party"
)

// Two ballots that differ only in their chosen option must drive the
// identical sequence of homomorphic operations: the trace is allowed to
// depend on the session's shape, never on a ballot's content.
func TestCastShapeIsChoiceIndependent(t *testing.T) {
	e := newCountingEnv(t)
	roomID, ids := e.voting(4)
	sid, err := e.eng.Open(party.User(ids[0]), roomID, ballot.TypeElimination, names(4), 0)
	require.NoError(t, err)

	first := e.choice(0)
	second := e.choice(3)

	e.counting.Reset()
	require.NoError(t, e.eng.CastVote(party.User(ids[1]), sid, first))
	lowTrace := e.counting.Trace()

	e.counting.Reset()
	require.NoError(t, e.eng.CastVote(party.User(ids[2]), sid, second))
	highTrace := e.counting.Trace()

	assert.NotEmpty(t, lowTrace)
	assert.Equal(t, lowTrace, highTrace)
}

// The tally only moves weight around: after every cast the option counts
// sum to the weights cast so far.
func TestWeightConservation(t *testing.T) {
	e := newEnv(t)
	roomID, ids := e.voting(4)
	sid, err := e.eng.Open(party.User(ids[0]), roomID, ballot.TypeAlliance, names(3), 0)
	require.NoError(t, err)

	choices := []uint64{0, 1, 1, 2}
	for i, p := range ids {
		require.NoError(t, e.eng.CastVote(party.User(p), sid, e.choice(choices[i])))

		var sum uint64
		for _, opt := range e.session(sid).Options {
			sum += e.reveal(opt.Count)
		}
		assert.EqualValues(t, 100*(i+1), sum, "after %d casts", i+1)
	}

	v := e.session(sid)
	assert.EqualValues(t, 100, e.reveal(v.Options[0].Count))
	assert.EqualValues(t, 200, e.reveal(v.Options[1].Count))
	assert.EqualValues(t, 100, e.reveal(v.Options[2].Count))
	assert.EqualValues(t, 1, e.reveal(v.Winner))
}

// An exact tie goes to the lowest index.
func TestTieBreakLowestIndex(t *testing.T) {
	e := newEnv(t)
	roomID, ids := e.voting(4)
	sid, err := e.eng.Open(party.User(ids[0]), roomID, ballot.TypeAlliance, names(3), 0)
	require.NoError(t, err)

	// two equal counts on options 0 and 1, nothing on 2
	require.NoError(t, e.eng.CastVote(party.User(ids[1]), sid, e.choice(1)))
	require.NoError(t, e.eng.CastVote(party.User(ids[2]), sid, e.choice(0)))
	require.NoError(t, e.eng.Finalize(op(), sid))

	v := e.session(sid)
	assert.EqualValues(t, 100, e.reveal(v.Options[0].Count))
	assert.EqualValues(t, 100, e.reveal(v.Options[1].Count))
	assert.EqualValues(t, 0, e.reveal(v.Winner))
}

// A pending reveal during validation aborts the cast with no state
// change; the identical retry goes through.
func TestCastPendingRetry(t *testing.T) {
	e := newStallEnv(t, 1)
	roomID, ids := e.voting(4)
	sid, err := e.eng.Open(party.User(ids[0]), roomID, ballot.TypeElimination, names(4), 0)
	require.NoError(t, err)

	choice := e.choice(2)
	err = e.eng.CastVote(party.User(ids[1]), sid, choice)
	require.ErrorIs(t, err, cipher.ErrPending)

	v := e.session(sid)
	assert.EqualValues(t, 0, e.reveal(v.VotesReceived))
	for i, opt := range v.Options {
		assert.EqualValues(t, 0, e.reveal(opt.Count), "option %d", i)
	}
	assert.Equal(t, 0, e.sink.Count(event.VoteCast))
	m, ok := e.room(roomID).Member(ids[1])
	require.True(t, ok)
	assert.EqualValues(t, 0, e.reveal(m.Voted))

	require.NoError(t, e.eng.CastVote(party.User(ids[1]), sid, choice))
	v = e.session(sid)
	assert.EqualValues(t, 1, e.reveal(v.VotesReceived))
	assert.EqualValues(t, 100, e.reveal(v.Options[2].Count))
	assert.Equal(t, 1, e.sink.Count(event.VoteCast))
}

// The pooled tally scan must agree with the serial one.
func TestTallyOnWorkerPool(t *testing.T) {
	e := newPoolEnv(t, 3)
	roomID, ids := e.voting(4)
	sid, err := e.eng.Open(party.User(ids[1]), roomID, ballot.TypeElimination, names(4), 0)
	require.NoError(t, err)

	require.NoError(t, e.eng.CastVote(party.User(ids[0]), sid, e.choice(2)))
	require.NoError(t, e.eng.CastVote(party.User(ids[1]), sid, e.choice(0)))
	require.NoError(t, e.eng.CastVote(party.User(ids[2]), sid, e.choice(0)))
	require.NoError(t, e.eng.CastVote(party.User(ids[3]), sid, e.choice(0)))

	v := e.session(sid)
	assert.True(t, v.Finalized)
	assert.EqualValues(t, 300, e.reveal(v.Options[0].Count))
	assert.EqualValues(t, 0, e.reveal(v.Options[1].Count))
	assert.EqualValues(t, 100, e.reveal(v.Options[2].Count))
	assert.EqualValues(t, 0, e.reveal(v.Winner))
}
