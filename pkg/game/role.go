package game

import "fmt"

// Role is a participant's hidden allegiance. Roles are stored encrypted;
// the plaintext type exists for assignment and for weight schemas.
type Role uint8

const (
	RoleUnassigned Role = iota
	RoleInfiltrator
	RoleDetective
	RoleHacker
	RoleGuardian
)

// AllRoles lists every role in identifier order. Oblivious scans over role
// tables iterate this slice so their shape never depends on an input.
var AllRoles = []Role{RoleUnassigned, RoleInfiltrator, RoleDetective, RoleHacker, RoleGuardian}

// roleFor returns the role of the participant at slot idx in a game of n
// players. Slot 0 is always the infiltrator; a detective plays in games of
// more than 5, a hacker in games of more than 7; everyone else guards.
//
// Assignment is a pure function of seat order. Anyone who watched the
// joins can derive it, which is accepted here: fair hidden assignment
// needs a randomness beacon this module does not model.
func roleFor(idx, n int) Role {
	switch {
	case idx == 0:
		return RoleInfiltrator
	case idx == 1 && n > 5:
		return RoleDetective
	case idx == 2 && n > 7:
		return RoleHacker
	default:
		return RoleGuardian
	}
}

func (r Role) String() string {
	switch r {
	case RoleUnassigned:
		return "unassigned"
	case RoleInfiltrator:
		return "infiltrator"
	case RoleDetective:
		return "detective"
	case RoleHacker:
		return "hacker"
	case RoleGuardian:
		return "guardian"
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}
