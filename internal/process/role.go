package process

import "fmt"

// Role identifies a process's position in the job's dependency and
// shutdown order. The declaration order doubles as the tie-break
// priority when several exits are observed at once.
type Role int

const (
	RoleDataBackend Role = iota
	RoleRobotBackend
	RoleUserCode
)

// Roles returns all roles in start/priority order.
func Roles() []Role {
	return []Role{RoleDataBackend, RoleRobotBackend, RoleUserCode}
}

func (r Role) String() string {
	switch r {
	case RoleDataBackend:
		return "data_backend"
	case RoleRobotBackend:
		return "robot_backend"
	case RoleUserCode:
		return "user_code"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Priority returns the rank used to break ties between simultaneous
// exits. Lower wins.
func (r Role) Priority() int { return int(r) }

// ParseRole parses the string form produced by String.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles() {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role: %q", s)
}

// MarshalText makes Role usable as a JSON map key and value.
func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
