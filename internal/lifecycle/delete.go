package lifecycle

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/worldhaven/server/internal/world"
)

// DeleteWorld irreversibly removes a world: evict every present player to
// the fallback spawn, unload the live instances, delete the on-disk
// directories, then drop the record, the ownership linkage, and every
// snapshot referencing the world. Failures past the eviction point are
// downgraded to warnings; an orphaned directory is preferable to an
// un-deletable ghost record.
func (m *Manager) DeleteWorld(ctx context.Context, id uuid.UUID) error {
	w := m.registry.World(id)
	if w == nil {
		return world.Validationf("unknown world %s", id)
	}

	// Claim the Deleted state first so no new load or teleport starts
	// mid-eviction; attach behind any in-flight transition.
	wasLoaded := false
	for {
		m.mu.Lock()
		st := m.liveLocked(id)
		if st.state == stateDeleted {
			m.mu.Unlock()
			return nil
		}
		if st.state == stateLoading || st.state == stateUnloading {
			ch := st.transition
			m.mu.Unlock()
			select {
			case <-ch:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		wasLoaded = st.state == stateLoaded
		st.state = stateDeleted
		st.handles = nil
		m.mu.Unlock()
		break
	}

	m.reclaimer.OnEnter(id) // cancel a pending idle unload

	handles := m.handlesFor(w)
	if wasLoaded {
		// 1. Evict occupants, each relocation awaited before proceeding.
		fallback := m.fallbackSpawn()
		for _, h := range handles {
			for _, playerID := range m.players.PlayersIn(h.Instance) {
				ok, err := m.instances.Relocate(ctx, playerID, fallback)
				if err != nil || !ok {
					m.log.Warn("eviction relocate failed",
						zap.String("player", playerID.String()),
						zap.String("instance", h.Instance),
						zap.Error(err))
				}
			}
		}

		// 2. Unload live instances. Skipped when already unloaded.
		for _, h := range handles {
			if _, err := m.instances.Unload(ctx, h); err != nil {
				m.log.Warn("unload during delete failed",
					zap.String("instance", h.Instance), zap.Error(err))
			}
			m.sched.RetireRegion(h.Instance)
		}
	}

	// 3. Delete on-disk instance directories. Non-fatal on failure.
	for _, h := range handles {
		if err := m.instances.Remove(h.Instance); err != nil {
			m.log.Warn("instance directory not removed",
				zap.String("instance", h.Instance), zap.Error(err))
		}
	}

	// 4+5. Drop the record, ownership linkage, and snapshots. The
	// in-memory eviction always completes; a store failure here must not
	// resurrect the world.
	if err := m.registry.RemoveWorld(ctx, id); err != nil {
		m.log.Warn("world record removal incomplete",
			zap.String("world", w.Name), zap.Error(err))
	}

	m.log.Info("world deleted", zap.String("world", w.Name), zap.String("owner", w.OwnerName))
	return nil
}
