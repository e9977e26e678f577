// Package plan expresses the coordinated shutdown ordering as pure data
// so the rules stay independently testable instead of being scattered
// through the supervisor loop.
package plan

import "github.com/loykin/roborun/internal/process"

// Plan maps the first-exiting (triggering) role to the ordered sequence
// of remaining roles to terminate.
type Plan map[process.Role][]process.Role

// Default returns the fixed shutdown policy:
//
//   - user code exits: stop robot backend, then data backend
//     (reverse start order).
//   - robot backend exits: stop user code first so control commands stop
//     going nowhere, then the data backend.
//   - data backend exits: simulation state is invalid; stop user code,
//     then robot backend.
//
// In every case where both must be stopped, user code is signalled
// before the data backend, and nothing is left orphaned.
func Default() Plan {
	return Plan{
		process.RoleUserCode:     {process.RoleRobotBackend, process.RoleDataBackend},
		process.RoleRobotBackend: {process.RoleUserCode, process.RoleDataBackend},
		process.RoleDataBackend:  {process.RoleUserCode, process.RoleRobotBackend},
	}
}

// Ordering returns the roles to terminate, in order, for the given
// triggering role.
func (p Plan) Ordering(trigger process.Role) []process.Role {
	seq := p[trigger]
	out := make([]process.Role, len(seq))
	copy(out, seq)
	return out
}
