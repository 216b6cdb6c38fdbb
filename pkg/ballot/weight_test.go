package ballot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloakwork/conclave/pkg/ballot"
	"github.com/cloakwork/conclave/pkg/cipher"
	"github.com/cloakwork/conclave/pkg/game"
)

func TestWeigh(t *testing.T) {
	u, err := cipher.NewLocalUnit()
	require.NoError(t, err)
	sc := ballot.DefaultSchema()

	tests := []struct {
		name      string
		role      game.Role
		resources uint64
		want      uint64
	}{
		{"fresh guardian", game.RoleGuardian, 50, 100},
		{"fresh infiltrator", game.RoleInfiltrator, 50, 100},
		{"detective", game.RoleDetective, 50, 110},
		{"hacker", game.RoleHacker, 50, 105},
		{"first tier is strict", game.RoleGuardian, 100, 100},
		{"first tier", game.RoleGuardian, 150, 110},
		{"second tier replaces the first", game.RoleGuardian, 250, 125},
		{"role and resources stack", game.RoleDetective, 201, 135},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, err := u.Encrypt(cipher.KindByte, uint64(tt.role))
			require.NoError(t, err)
			resources, err := u.Encrypt(cipher.KindWord, tt.resources)
			require.NoError(t, err)

			w, err := sc.Weigh(u, game.Participant{Role: role, Resources: resources})
			require.NoError(t, err)

			total, err := u.Reveal(w.Total)
			require.NoError(t, err)
			assert.Equal(t, tt.want, total)

			base, err := u.Reveal(w.Base)
			require.NoError(t, err)
			assert.Equal(t, sc.Base, base)

			roleBonus, err := u.Reveal(w.RoleBonus)
			require.NoError(t, err)
			resourceBonus, err := u.Reveal(w.ResourceBonus)
			require.NoError(t, err)
			assert.Equal(t, tt.want, base+roleBonus+resourceBonus)
		})
	}
}

func TestSchemaValidate(t *testing.T) {
	assert.NoError(t, ballot.DefaultSchema().Validate())

	sc := ballot.DefaultSchema()
	sc.Version = 0
	assert.Error(t, sc.Validate())

	sc = ballot.DefaultSchema()
	sc.Base = 0
	assert.Error(t, sc.Validate())

	sc = ballot.DefaultSchema()
	sc.Tiers = []ballot.Tier{{Threshold: 200, Bonus: 10}, {Threshold: 100, Bonus: 25}}
	assert.Error(t, sc.Validate())
}

func TestSchemaRoundTrip(t *testing.T) {
	sc := ballot.DefaultSchema()
	sc.Version = 2
	sc.RoleBonus[game.RoleGuardian] = 3

	data, err := sc.MarshalBinary()
	require.NoError(t, err)
	got := ballot.Schema{}
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, sc, got)

	assert.Error(t, got.UnmarshalBinary([]byte{0xff}))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, ballot.DefaultConfig().Validate())

	cfg := ballot.DefaultConfig()
	cfg.SessionDuration = 0
	assert.Error(t, cfg.Validate())

	cfg = ballot.DefaultConfig()
	cfg.MinOptions = 1
	assert.Error(t, cfg.Validate())

	cfg = ballot.DefaultConfig()
	cfg.MaxOptions = cfg.MinOptions - 1
	assert.Error(t, cfg.Validate())

	cfg = ballot.DefaultConfig()
	cfg.Schema.Version = 0
	assert.Error(t, cfg.Validate())
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := ballot.DefaultConfig()
	cfg.MaxOptions = 6
	cfg.Schema.Version = 3

	data, err := cfg.MarshalBinary()
	require.NoError(t, err)
	got := ballot.Config{}
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, cfg, got)

	data, err = ballot.Config{}.MarshalBinary()
	require.NoError(t, err)
	assert.Error(t, got.UnmarshalBinary(data))
}
