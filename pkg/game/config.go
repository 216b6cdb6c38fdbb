package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloakwork/conclave/internal/params"
)

// Config carries the tunable rules of a registry. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	// MinPlayers and MaxPlayers bound a room's membership. A game cannot
	// start below MinPlayers; joins are refused at MaxPlayers.
	MinPlayers int
	MaxPlayers int

	// EndDayLimit ends any game whose day count reaches it.
	EndDayLimit uint32

	// Phase lengths. A phase can be advanced once its length has elapsed,
	// or at any time by an operator.
	DayDuration    time.Duration
	VotingDuration time.Duration
	NightDuration  time.Duration
}

// DefaultConfig returns the standard rule set.
func DefaultConfig() Config {
	return Config{
		MinPlayers:     params.MinPlayers,
		MaxPlayers:     params.MaxPlayers,
		EndDayLimit:    params.EndDayLimit,
		DayDuration:    params.DayDuration,
		VotingDuration: params.VotingDuration,
		NightDuration:  params.NightDuration,
	}
}

// Validate checks that the rule set is playable.
func (c Config) Validate() error {
	if c.MinPlayers < 2 {
		return errors.New("game: config needs at least 2 players to be playable")
	}
	if c.MaxPlayers < c.MinPlayers {
		return errors.New("game: config MaxPlayers below MinPlayers")
	}
	if c.EndDayLimit == 0 {
		return errors.New("game: config EndDayLimit must be positive")
	}
	if c.DayDuration <= 0 || c.VotingDuration <= 0 || c.NightDuration <= 0 {
		return errors.New("game: config phase durations must be positive")
	}
	return nil
}

// Duration returns the length of p, or 0 for phases that do not expire.
func (c Config) Duration(p Phase) time.Duration {
	switch p {
	case PhaseDay:
		return c.DayDuration
	case PhaseVoting:
		return c.VotingDuration
	case PhaseNight:
		return c.NightDuration
	}
	return 0
}

type configMarshal struct {
	MinPlayers     int
	MaxPlayers     int
	EndDayLimit    uint32
	DayDuration    time.Duration
	VotingDuration time.Duration
	NightDuration  time.Duration
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (c Config) MarshalBinary() ([]byte, error) {
	return cbor.Marshal(&configMarshal{
		MinPlayers:     c.MinPlayers,
		MaxPlayers:     c.MaxPlayers,
		EndDayLimit:    c.EndDayLimit,
		DayDuration:    c.DayDuration,
		VotingDuration: c.VotingDuration,
		NightDuration:  c.NightDuration,
	})
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *Config) UnmarshalBinary(data []byte) error {
	cm := &configMarshal{}
	if err := cbor.Unmarshal(data, cm); err != nil {
		return fmt.Errorf("game: config: %w", err)
	}
	c2 := Config{
		MinPlayers:     cm.MinPlayers,
		MaxPlayers:     cm.MaxPlayers,
		EndDayLimit:    cm.EndDayLimit,
		DayDuration:    cm.DayDuration,
		VotingDuration: cm.VotingDuration,
		NightDuration:  cm.NightDuration,
	}
	if err := c2.Validate(); err != nil {
		return err
	}
	*c = c2
	return nil
}
