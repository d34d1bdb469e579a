package world

import "fmt"

// Role is a player's standing inside a world. Roles form a strict order:
// Owner > Manager > Member > Visitor. Comparison goes through AtLeast;
// never compare raw role values across serialization boundaries.
type Role int8

const (
	RoleVisitor Role = iota
	RoleMember
	RoleManager
	RoleOwner
)

// AtLeast reports whether r grants everything other grants.
func (r Role) AtLeast(other Role) bool {
	return r >= other
}

func (r Role) String() string {
	switch r {
	case RoleVisitor:
		return "visitor"
	case RoleMember:
		return "member"
	case RoleManager:
		return "manager"
	case RoleOwner:
		return "owner"
	default:
		return fmt.Sprintf("role(%d)", int8(r))
	}
}

// ParseRole maps the stored string form back to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "visitor":
		return RoleVisitor, nil
	case "member":
		return RoleMember, nil
	case "manager":
		return RoleManager, nil
	case "owner":
		return RoleOwner, nil
	default:
		return RoleVisitor, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// DefaultGameMode returns the game mode a player with this role is placed
// into on arrival. Visitors are always forced to spectator; everyone else
// gets the world's configured mode.
func (r Role) DefaultGameMode(worldMode GameMode) GameMode {
	if r == RoleVisitor {
		return ModeSpectator
	}
	return worldMode
}
