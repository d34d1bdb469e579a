// Package engine declares the host-engine surface the orchestrator consumes.
// The real host materializes instances on disk and owns every live entity;
// fsengine provides a self-contained implementation for standalone runs and
// tests.
package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/worldhaven/server/internal/world"
)

// Handle identifies one live environment variant of a world instance.
type Handle struct {
	Instance string // globally unique instance (directory) name
	Env      world.Environment
}

// Instances is the engine's instance-materialization API. Every method does
// blocking filesystem work: dispatch calls on the async pool, never on a
// region executor.
type Instances interface {
	// Create materializes the instance directory for a new world variant.
	Create(ctx context.Context, h Handle, kind world.Kind, seed *int64) error

	// Load brings a persisted instance into memory. Returns false when it
	// was already loaded.
	Load(ctx context.Context, h Handle) (bool, error)

	// Unload removes a live instance from memory. Returns false when it was
	// not loaded.
	Unload(ctx context.Context, h Handle) (bool, error)

	// Remove deletes the instance's on-disk directory.
	Remove(instance string) error

	// Relocate moves a player entity to a location in a loaded instance.
	// The engine may refuse (false, nil), e.g. for a despawned player.
	Relocate(ctx context.Context, player uuid.UUID, loc world.Location) (bool, error)
}

// Players is the live-entity surface. Condition, Apply, Clear and
// SetGameMode must run on the region executor owning the player.
type Players interface {
	Condition(player uuid.UUID) (*world.Condition, error)
	Apply(player uuid.UUID, c *world.Condition) error
	Clear(player uuid.UUID) error
	SetGameMode(player uuid.UUID, mode world.GameMode) error

	// LocationOf reports where the engine currently places the player.
	LocationOf(player uuid.UUID) (world.Location, bool)

	// PlayersIn lists the players the engine counts present in an instance.
	PlayersIn(instance string) []uuid.UUID
}
