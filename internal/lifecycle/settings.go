package lifecycle

import (
	"context"

	"github.com/google/uuid"

	"github.com/worldhaven/server/internal/world"
)

// Settings mutations all funnel through the Registry's single update path,
// so concurrent changes from different executors cannot lose writes.

// SetEnabled flips the enabled flag. Disabling refuses while the world is
// occupied and unloads the instances afterwards; the on-disk directories
// stay until an explicit delete.
func (m *Manager) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	w := m.registry.World(id)
	if w == nil {
		return world.Validationf("unknown world %s", id)
	}
	if !enabled {
		if m.Occupancy(id, uuid.Nil) > 0 {
			return world.Validationf("world %q is occupied", w.Name)
		}
	}
	if err := m.registry.UpdateWorld(ctx, id, func(w *world.World) error {
		w.Enabled = enabled
		return nil
	}); err != nil {
		return err
	}
	if !enabled && m.IsLoaded(id) {
		if _, err := m.UnloadWorld(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// SetRole grants or changes a player's role. The owner never appears in the
// role map; ownership is a fixed implicit role.
func (m *Manager) SetRole(ctx context.Context, id uuid.UUID, playerID uuid.UUID, role world.Role) error {
	if role == world.RoleOwner {
		return world.Validationf("ownership cannot be granted as a role")
	}
	return m.registry.UpdateWorld(ctx, id, func(w *world.World) error {
		if playerID == w.OwnerID {
			return world.Validationf("the owner's role is fixed")
		}
		w.Roles[playerID] = role
		return nil
	})
}

// RemoveRole revokes a player's listed role.
func (m *Manager) RemoveRole(ctx context.Context, id uuid.UUID, playerID uuid.UUID) error {
	return m.registry.UpdateWorld(ctx, id, func(w *world.World) error {
		delete(w.Roles, playerID)
		return nil
	})
}

// SetPublic opens or closes the world to unlisted visitors and sets the role
// they arrive with.
func (m *Manager) SetPublic(ctx context.Context, id uuid.UUID, public bool, publicRole world.Role) error {
	if publicRole == world.RoleOwner || publicRole == world.RoleManager {
		return world.Validationf("public role must be member or visitor")
	}
	return m.registry.UpdateWorld(ctx, id, func(w *world.World) error {
		w.Public = public
		w.PublicRole = publicRole
		return nil
	})
}

// SetSpawn moves the world spawn point.
func (m *Manager) SetSpawn(ctx context.Context, id uuid.UUID, spawn world.Location) error {
	return m.registry.UpdateWorld(ctx, id, func(w *world.World) error {
		if spawn.Instance == "" {
			spawn.Instance = world.InstanceName(w.OwnerID, w.Name, world.EnvOverworld)
		}
		w.Spawn = spawn
		return nil
	})
}

// SetGameMode changes the default game mode applied to non-visitors.
func (m *Manager) SetGameMode(ctx context.Context, id uuid.UUID, mode world.GameMode) error {
	return m.registry.UpdateWorld(ctx, id, func(w *world.World) error {
		w.GameMode = mode
		return nil
	})
}

// SetLocks pins the world's time and weather.
func (m *Manager) SetLocks(ctx context.Context, id uuid.UUID, t world.TimeLock, wl world.WeatherLock) error {
	return m.registry.UpdateWorld(ctx, id, func(w *world.World) error {
		w.TimeLock = t
		w.WeatherLock = wl
		return nil
	})
}

// SetBorder replaces the border settings.
func (m *Manager) SetBorder(ctx context.Context, id uuid.UUID, border world.BorderSettings) error {
	if border.Size <= 0 {
		return world.Validationf("border size must be positive")
	}
	return m.registry.UpdateWorld(ctx, id, func(w *world.World) error {
		w.Border = border
		return nil
	})
}
