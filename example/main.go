package main

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/rs/zerolog"

	"github.com/cloakwork/conclave/pkg/ballot"
	"github.com/cloakwork/conclave/pkg/cipher"
	"github.com/cloakwork/conclave/pkg/event"
	"github.com/cloakwork/conclave/pkg/game"
	"github.com/cloakwork/conclave/pkg/party"
	"github.com/cloakwork/conclave/pkg/pool"
)

// Lobby creates a room, fills it and starts the game, then has the
// operator move it into the first voting window.
func Lobby(reg *game.Registry, players []party.ID, operator party.Caller) (game.RoomID, error) {
	id, err := reg.CreateRoom(party.User(players[0]))
	if err != nil {
		return 0, err
	}
	for _, p := range players[1:] {
		if err := reg.JoinRoom(party.User(p), id); err != nil {
			return 0, err
		}
	}
	if err := reg.StartGame(party.User(players[0]), id); err != nil {
		return 0, err
	}
	// Waiting -> Day on start; the operator skips the day discussion.
	return id, reg.AdvancePhase(operator, id)
}

// EliminationRound runs one full elimination ballot: every living player
// casts an encrypted choice, the session auto finalizes on the last vote,
// and the winning seat is eliminated without any tally ever being public.
func EliminationRound(eng *ballot.Engine, reg *game.Registry, unit *cipher.LocalUnit, id game.RoomID, players []party.ID, log zerolog.Logger) error {
	options := make([]string, len(players))
	for i, p := range players {
		options[i] = p.Short()
	}
	sid, err := eng.Open(party.User(players[1]), id, ballot.TypeElimination, options, 0)
	if err != nil {
		return err
	}

	// Seat 0 votes for seat 1; everyone else gangs up on seat 0.
	for i, p := range players {
		target := uint64(0)
		if i == 0 {
			target = 1
		}
		choice, err := unit.Encrypt(cipher.KindByte, target)
		if err != nil {
			return err
		}
		if err := eng.CastVote(party.User(p), sid, choice); err != nil {
			return err
		}
	}

	session, err := eng.SessionView(sid)
	if err != nil {
		return err
	}
	if !session.Finalized {
		return fmt.Errorf("elimination session %d did not finalize", sid)
	}
	for i, opt := range session.Options {
		count, err := unit.Reveal(opt.Count)
		if err != nil {
			return err
		}
		log.Info().Int("seat", i).Str("label", opt.Description).Uint64("weight", count).Msg("tally")
	}

	view, err := reg.RoomView(id)
	if err != nil {
		return err
	}
	for _, m := range view.Members {
		alive, err := unit.Reveal(m.Alive)
		if err != nil {
			return err
		}
		log.Info().Str("player", m.Address.Short()).Bool("alive", alive == 1).Msg("after elimination")
	}
	return nil
}

// PolicyRound cycles the room through night back to the next voting
// window and passes a policy whose yield is credited to living players.
func PolicyRound(eng *ballot.Engine, reg *game.Registry, unit *cipher.LocalUnit, id game.RoomID, voters []party.ID, operator party.Caller, log zerolog.Logger) error {
	// Voting -> Night -> Day -> Voting.
	for i := 0; i < 3; i++ {
		if err := reg.AdvancePhase(operator, id); err != nil {
			return err
		}
	}

	sid, err := eng.Open(party.User(voters[0]), id, ballot.TypePolicy, []string{"ration supplies", "hold course"}, 0)
	if err != nil {
		return err
	}
	for i, p := range voters {
		target := uint64(0)
		if i == len(voters)-1 {
			target = 1
		}
		choice, err := unit.Encrypt(cipher.KindByte, target)
		if err != nil {
			return err
		}
		if err := eng.CastVote(party.User(p), sid, choice); err != nil {
			return err
		}
	}

	view, err := reg.RoomView(id)
	if err != nil {
		return err
	}
	for _, p := range voters {
		m, ok := view.Member(p)
		if !ok {
			return fmt.Errorf("voter %s missing from room", p.Short())
		}
		resources, err := unit.Reveal(m.Resources)
		if err != nil {
			return err
		}
		log.Info().Str("player", p.Short()).Uint64("resources", resources).Msg("after policy")
	}
	return nil
}

// EmergencyRound opens an emergency halt ballot that every survivor
// supports, ending the game and releasing the players.
func EmergencyRound(eng *ballot.Engine, reg *game.Registry, unit *cipher.LocalUnit, id game.RoomID, voters []party.ID, log zerolog.Logger) error {
	sid, err := eng.Open(party.User(voters[0]), id, ballot.TypeEmergency, []string{"halt the game", "keep playing"}, 0)
	if err != nil {
		return err
	}
	for _, p := range voters {
		choice, err := unit.Encrypt(cipher.KindByte, 0)
		if err != nil {
			return err
		}
		if err := eng.CastVote(party.User(p), sid, choice); err != nil {
			return err
		}
	}

	view, err := reg.RoomView(id)
	if err != nil {
		return err
	}
	log.Info().Str("phase", view.Phase.String()).Bool("active", view.Active).Msg("after halt")
	return nil
}

func Run(log zerolog.Logger) error {
	pl := pool.NewPool(0)
	defer pl.TearDown()

	unit, err := cipher.NewLocalUnit()
	if err != nil {
		return err
	}
	gate := cipher.NewGate(unit, log)
	sink := event.NewLogSink(log)

	reg, err := game.NewRegistry(game.DefaultConfig(), unit, gate, nil, sink, log)
	if err != nil {
		return err
	}
	eng, err := ballot.NewEngine(ballot.DefaultConfig(), reg, unit, gate, pl, nil, sink, log)
	if err != nil {
		return err
	}

	players := make([]party.ID, 4)
	for i := range players {
		sk, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return err
		}
		players[i] = party.FromPubKey(sk.PubKey())
	}
	opKey, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return err
	}
	operator := party.Operator(party.FromPubKey(opKey.PubKey()))

	// LOBBY
	id, err := Lobby(reg, players, operator)
	if err != nil {
		return err
	}

	// ELIMINATION
	if err := EliminationRound(eng, reg, unit, id, players, log); err != nil {
		return err
	}

	// POLICY
	survivors := players[1:]
	if err := PolicyRound(eng, reg, unit, id, survivors, operator, log); err != nil {
		return err
	}

	// EMERGENCY HALT
	if err := EmergencyRound(eng, reg, unit, id, survivors, log); err != nil {
		return err
	}

	transcript := gate.Transcript()
	log.Info().
		Uint64("reveals", gate.Reveals()).
		Hex("transcript", transcript[:]).
		Msg("reveal audit")
	return nil
}

func main() {
	log := zerolog.New(zerolog.NewConsoleWriter()).Level(zerolog.InfoLevel).With().
		Timestamp().
		Logger()
	if err := Run(log); err != nil {
		fmt.Println(err)
	}
}
