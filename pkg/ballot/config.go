package ballot

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloakwork/conclave/internal/params"
)

// Config carries the tunable rules of an engine. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	// SessionDuration bounds how long a session accepts ballots when the
	// opener does not choose a duration.
	SessionDuration time.Duration

	// MinOptions and MaxOptions bound a ballot's option list.
	MinOptions int
	MaxOptions int

	// Schema maps member state to vote weight.
	Schema Schema
}

// DefaultConfig returns the standard rule set with schema version 1.
func DefaultConfig() Config {
	return Config{
		SessionDuration: params.SessionDuration,
		MinOptions:      params.MinOptions,
		MaxOptions:      params.MaxOptions,
		Schema:          DefaultSchema(),
	}
}

// Validate checks that the rule set is usable.
func (c Config) Validate() error {
	if c.SessionDuration <= 0 {
		return errors.New("ballot: config SessionDuration must be positive")
	}
	if c.MinOptions < 2 {
		return errors.New("ballot: config needs at least 2 options per ballot")
	}
	if c.MaxOptions < c.MinOptions {
		return errors.New("ballot: config MaxOptions below MinOptions")
	}
	return c.Schema.Validate()
}

type configMarshal struct {
	SessionDuration time.Duration
	MinOptions      int
	MaxOptions      int
	Schema          schemaMarshal
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (c Config) MarshalBinary() ([]byte, error) {
	tiers := make([]tierMarshal, len(c.Schema.Tiers))
	for i, t := range c.Schema.Tiers {
		tiers[i] = tierMarshal{Threshold: t.Threshold, Bonus: t.Bonus}
	}
	return cbor.Marshal(&configMarshal{
		SessionDuration: c.SessionDuration,
		MinOptions:      c.MinOptions,
		MaxOptions:      c.MaxOptions,
		Schema: schemaMarshal{
			Version:   c.Schema.Version,
			Base:      c.Schema.Base,
			RoleBonus: c.Schema.RoleBonus,
			Tiers:     tiers,
		},
	})
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *Config) UnmarshalBinary(data []byte) error {
	cm := &configMarshal{}
	if err := cbor.Unmarshal(data, cm); err != nil {
		return fmt.Errorf("ballot: config: %w", err)
	}
	tiers := make([]Tier, len(cm.Schema.Tiers))
	for i, t := range cm.Schema.Tiers {
		tiers[i] = Tier{Threshold: t.Threshold, Bonus: t.Bonus}
	}
	c2 := Config{
		SessionDuration: cm.SessionDuration,
		MinOptions:      cm.MinOptions,
		MaxOptions:      cm.MaxOptions,
		Schema: Schema{
			Version:   cm.Schema.Version,
			Base:      cm.Schema.Base,
			RoleBonus: cm.Schema.RoleBonus,
			Tiers:     tiers,
		},
	}
	if err := c2.Validate(); err != nil {
		return err
	}
	*c = c2
	return nil
}
