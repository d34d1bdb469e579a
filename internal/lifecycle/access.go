package lifecycle

import (
	"github.com/google/uuid"

	"github.com/worldhaven/server/internal/world"
)

// RecordAccess is the default AccessControl: roles come straight from the
// world record. A disabled world admits nobody: entry requires re-enabling
// it first; management authorization (settings, roles) is checked against
// the raw record and is unaffected.
type RecordAccess struct{}

func (RecordAccess) RoleOf(player uuid.UUID, w *world.World) (world.Role, bool) {
	if !w.Enabled {
		return world.RoleVisitor, false
	}
	return w.RoleOf(player)
}

func (a RecordAccess) HasAccess(player uuid.UUID, w *world.World) bool {
	_, ok := a.RoleOf(player, w)
	return ok
}
