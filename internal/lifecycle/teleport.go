package lifecycle

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/worldhaven/server/internal/sched"
	"github.com/worldhaven/server/internal/world"
)

// TeleportToWorld moves a player into a world. It reports false on any
// precondition or step failure, leaving no partial side effects behind:
// restoration only runs once the engine reports the relocation succeeded,
// and a captured departing snapshot simply stays stored for the next visit.
//
// Sequence: access check → load target if needed → capture departing
// snapshot on the owning executor → engine relocation → restore destination
// snapshot on the destination executor → apply role game mode.
func (m *Manager) TeleportToWorld(ctx context.Context, playerID uuid.UUID, worldID uuid.UUID) bool {
	w := m.registry.World(worldID)
	if w == nil {
		return false
	}
	role, ok := m.access.RoleOf(playerID, w)
	if !ok {
		return false
	}

	// (a) Bring the target into memory first. Announcing the arrival intent
	// here cancels any pending idle unload, so the reclaimer cannot pull the
	// instance out from under the relocation below. If the teleport fails
	// past this point, the leave re-check puts the timer back.
	if !m.IsLoaded(worldID) {
		if _, err := m.LoadWorld(ctx, worldID); err != nil {
			m.log.Warn("teleport load failed",
				zap.String("world", w.Name), zap.Error(err))
			return false
		}
	}
	m.reclaimer.OnEnter(worldID)
	arrived := false
	defer func() {
		if !arrived {
			m.reclaimer.OnLeave(worldID, uuid.Nil)
		}
	}()

	// (b) Capture the departing condition, if leaving a managed instance.
	// Scheduled and observed complete before the restore below begins.
	from, inWorld := m.players.LocationOf(playerID)
	var fromWorld *world.World
	if inWorld {
		fromWorld = m.registry.WorldByInstance(from.Instance)
		if fromWorld != nil {
			if err := m.sessions.Capture(ctx, playerID, from.Instance); err != nil {
				m.log.Warn("departure capture failed",
					zap.String("player", playerID.String()),
					zap.String("instance", from.Instance),
					zap.Error(err))
				return false
			}
		}
	}

	// (c) Relocate. The engine may refuse; nothing was restored yet, so a
	// refusal leaves no dangling half-state.
	dest := m.destinationFor(playerID, w)
	if ok, err := m.instances.Relocate(ctx, playerID, dest); err != nil || !ok {
		if err != nil {
			m.log.Warn("relocation failed",
				zap.String("player", playerID.String()),
				zap.String("world", w.Name),
				zap.Error(err))
		}
		return false
	}

	// The player is in the target now; the departure may leave the source
	// world empty.
	arrived = true
	if fromWorld != nil && fromWorld.ID != worldID {
		m.reclaimer.OnLeave(fromWorld.ID, playerID)
	}

	// (d) Restore on the executor that now owns the player, then apply the
	// role-appropriate game mode. Attempted exactly once, after the engine
	// reports success.
	if err := m.sessions.Restore(ctx, playerID, dest.Instance, w.Kind, w.Spawn); err != nil {
		m.log.Warn("arrival restore failed",
			zap.String("player", playerID.String()),
			zap.String("world", w.Name),
			zap.Error(err))
		return false
	}
	// The mode is part of the access decision: a visitor must land in
	// spectator, so a failed apply fails the teleport rather than leaving the
	// player with stale permissions.
	mode := role.DefaultGameMode(w.GameMode)
	var modeErr error
	if err := m.sched.Do(ctx, sched.Region(dest.Instance), func() {
		modeErr = m.players.SetGameMode(playerID, mode)
	}); err != nil {
		modeErr = err
	}
	if modeErr != nil {
		m.log.Error("game mode apply failed",
			zap.String("player", playerID.String()),
			zap.String("world", w.Name),
			zap.String("mode", string(mode)),
			zap.Error(modeErr))
		return false
	}

	if err := m.registry.UpdatePlayer(ctx, playerID, func(p *world.Player) error {
		p.LastWorld = worldID
		return nil
	}); err != nil {
		m.log.Warn("last-world save failed",
			zap.String("player", playerID.String()), zap.Error(err))
	}
	return true
}

// destinationFor picks the arrival location: the player's stored location
// for the world's primary instance when one exists, otherwise the world
// spawn.
func (m *Manager) destinationFor(playerID uuid.UUID, w *world.World) world.Location {
	primary := world.InstanceName(w.OwnerID, w.Name, world.EnvOverworld)
	if p := m.registry.Player(playerID); p != nil {
		if loc, ok := p.Locations[primary]; ok && loc.Instance == primary {
			return loc
		}
	}
	spawn := w.Spawn
	if spawn.Instance == "" {
		spawn.Instance = primary
	}
	return spawn
}
