package ballot

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloakwork/conclave/internal/params"
	"github.com/cloakwork/conclave/pkg/cipher"
	"github.com/cloakwork/conclave/pkg/game"
)

// Weight is a voter's influence, fixed at the moment they cast. Later
// changes to the member's role or resources never reach a ballot already
// counted.
type Weight struct {
	Base          cipher.Value
	RoleBonus     cipher.Value
	ResourceBonus cipher.Value
	Total         cipher.Value
}

// Tier is one step of a resource bonus schedule: holding more than
// Threshold grants Bonus.
type Tier struct {
	Threshold uint64
	Bonus     uint64
}

// Schema declares how vote weight derives from a member's state. It is a
// plain, versioned table: the mapping itself is public, only the member
// state it is applied to is encrypted. Roles absent from RoleBonus carry
// no bonus; Tiers must ascend by threshold, and the highest tier passed
// replaces the lower ones.
type Schema struct {
	Version   uint32
	Base      uint64
	RoleBonus map[game.Role]uint64
	Tiers     []Tier
}

// DefaultSchema returns schema version 1.
func DefaultSchema() Schema {
	return Schema{
		Version: 1,
		Base:    params.BaseWeight,
		RoleBonus: map[game.Role]uint64{
			game.RoleDetective: params.DetectiveBonus,
			game.RoleHacker:    params.HackerBonus,
		},
		Tiers: []Tier{
			{Threshold: params.ResourceTier1, Bonus: params.ResourceTier1Bonus},
			{Threshold: params.ResourceTier2, Bonus: params.ResourceTier2Bonus},
		},
	}
}

// Validate checks that the schema is usable.
func (sc Schema) Validate() error {
	if sc.Version == 0 {
		return errors.New("ballot: schema needs a version")
	}
	if sc.Base == 0 {
		return errors.New("ballot: schema base weight must be positive")
	}
	for i := 1; i < len(sc.Tiers); i++ {
		if sc.Tiers[i].Threshold <= sc.Tiers[i-1].Threshold {
			return errors.New("ballot: schema tiers must ascend by threshold")
		}
	}
	return nil
}

// Weigh computes a member's weight homomorphically. The role table and
// the tier schedule are scanned in full for every member, so the
// operation sequence is the same whatever the member's state holds.
func (sc Schema) Weigh(u cipher.Unit, m game.Participant) (Weight, error) {
	base, err := u.Encrypt(cipher.KindWord, sc.Base)
	if err != nil {
		return Weight{}, fmt.Errorf("ballot: weighing: %w", err)
	}

	roleBonus, err := u.Encrypt(cipher.KindWord, 0)
	if err != nil {
		return Weight{}, fmt.Errorf("ballot: weighing: %w", err)
	}
	for _, r := range game.AllRoles {
		rv, err := u.Encrypt(cipher.KindByte, uint64(r))
		if err != nil {
			return Weight{}, fmt.Errorf("ballot: weighing: %w", err)
		}
		hit, err := u.Eq(m.Role, rv)
		if err != nil {
			return Weight{}, fmt.Errorf("ballot: weighing: %w", err)
		}
		bonus, err := u.Encrypt(cipher.KindWord, sc.RoleBonus[r])
		if err != nil {
			return Weight{}, fmt.Errorf("ballot: weighing: %w", err)
		}
		zero, err := u.Encrypt(cipher.KindWord, 0)
		if err != nil {
			return Weight{}, fmt.Errorf("ballot: weighing: %w", err)
		}
		pick, err := u.Select(hit, bonus, zero)
		if err != nil {
			return Weight{}, fmt.Errorf("ballot: weighing: %w", err)
		}
		if roleBonus, err = u.Add(roleBonus, pick); err != nil {
			return Weight{}, fmt.Errorf("ballot: weighing: %w", err)
		}
	}

	// ascending scan: the last tier passed wins
	resourceBonus, err := u.Encrypt(cipher.KindWord, 0)
	if err != nil {
		return Weight{}, fmt.Errorf("ballot: weighing: %w", err)
	}
	for _, tier := range sc.Tiers {
		threshold, err := u.Encrypt(cipher.KindWord, tier.Threshold)
		if err != nil {
			return Weight{}, fmt.Errorf("ballot: weighing: %w", err)
		}
		over, err := u.Gt(m.Resources, threshold)
		if err != nil {
			return Weight{}, fmt.Errorf("ballot: weighing: %w", err)
		}
		bonus, err := u.Encrypt(cipher.KindWord, tier.Bonus)
		if err != nil {
			return Weight{}, fmt.Errorf("ballot: weighing: %w", err)
		}
		if resourceBonus, err = u.Select(over, bonus, resourceBonus); err != nil {
			return Weight{}, fmt.Errorf("ballot: weighing: %w", err)
		}
	}

	sum, err := u.Add(base, roleBonus)
	if err != nil {
		return Weight{}, fmt.Errorf("ballot: weighing: %w", err)
	}
	total, err := u.Add(sum, resourceBonus)
	if err != nil {
		return Weight{}, fmt.Errorf("ballot: weighing: %w", err)
	}
	return Weight{
		Base:          base,
		RoleBonus:     roleBonus,
		ResourceBonus: resourceBonus,
		Total:         total,
	}, nil
}

type tierMarshal struct {
	Threshold uint64
	Bonus     uint64
}

type schemaMarshal struct {
	Version   uint32
	Base      uint64
	RoleBonus map[game.Role]uint64
	Tiers     []tierMarshal
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (sc Schema) MarshalBinary() ([]byte, error) {
	tiers := make([]tierMarshal, len(sc.Tiers))
	for i, t := range sc.Tiers {
		tiers[i] = tierMarshal{Threshold: t.Threshold, Bonus: t.Bonus}
	}
	return cbor.Marshal(&schemaMarshal{
		Version:   sc.Version,
		Base:      sc.Base,
		RoleBonus: sc.RoleBonus,
		Tiers:     tiers,
	})
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (sc *Schema) UnmarshalBinary(data []byte) error {
	sm := &schemaMarshal{}
	if err := cbor.Unmarshal(data, sm); err != nil {
		return fmt.Errorf("ballot: schema: %w", err)
	}
	tiers := make([]Tier, len(sm.Tiers))
	for i, t := range sm.Tiers {
		tiers[i] = Tier{Threshold: t.Threshold, Bonus: t.Bonus}
	}
	sc2 := Schema{
		Version:   sm.Version,
		Base:      sm.Base,
		RoleBonus: sm.RoleBonus,
		Tiers:     tiers,
	}
	if err := sc2.Validate(); err != nil {
		return err
	}
	*sc = sc2
	return nil
}
