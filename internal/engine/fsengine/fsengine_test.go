package fsengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/worldhaven/server/internal/engine"
	"github.com/worldhaven/server/internal/world"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(t.TempDir(), 2, zap.NewNop())
	require.NoError(t, err)
	return e
}

func TestCreateWritesManifest(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	h := engine.Handle{Instance: "wh_abc_castle", Env: world.EnvOverworld}

	require.NoError(t, e.Create(ctx, h, world.KindNormal, nil))
	assert.True(t, e.IsLoaded(h.Instance), "freshly created instance is live")

	raw, err := os.ReadFile(filepath.Join(e.root, h.Instance, "instance.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"normal"`)

	// A second create of the same instance fails.
	assert.Error(t, e.Create(ctx, h, world.KindNormal, nil))
}

func TestLoadUnloadIdempotent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	h := engine.Handle{Instance: "wh_abc_castle", Env: world.EnvOverworld}
	require.NoError(t, e.Create(ctx, h, world.KindFlat, nil))

	did, err := e.Load(ctx, h)
	require.NoError(t, err)
	assert.False(t, did, "already live after create")

	did, err = e.Unload(ctx, h)
	require.NoError(t, err)
	assert.True(t, did)
	assert.False(t, e.IsLoaded(h.Instance))

	did, err = e.Unload(ctx, h)
	require.NoError(t, err)
	assert.False(t, did, "second unload is a no-op")

	did, err = e.Load(ctx, h)
	require.NoError(t, err)
	assert.True(t, did)
}

func TestLoadWithoutManifest(t *testing.T) {
	e := newEngine(t)
	_, err := e.Load(context.Background(), engine.Handle{Instance: "ghost"})
	assert.Error(t, err)
}

func TestRemoveDeletesDirectory(t *testing.T) {
	e := newEngine(t)
	h := engine.Handle{Instance: "wh_abc_castle", Env: world.EnvOverworld}
	require.NoError(t, e.Create(context.Background(), h, world.KindNormal, nil))

	require.NoError(t, e.Remove(h.Instance))
	_, err := os.Stat(filepath.Join(e.root, h.Instance))
	assert.True(t, os.IsNotExist(err))
	assert.False(t, e.IsLoaded(h.Instance))
}

func TestUnsafeInstanceNames(t *testing.T) {
	e := newEngine(t)
	for _, name := range []string{"", ".", "..", "a/b", `a\b`, "../escape"} {
		assert.Error(t, e.Remove(name), name)
	}
}

func TestRelocate(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	h := engine.Handle{Instance: "wh_abc_castle", Env: world.EnvOverworld}
	require.NoError(t, e.Create(ctx, h, world.KindNormal, nil))

	player := uuid.New()
	hub := world.Location{Instance: "hub", X: 0.5, Y: 65}
	e.Spawn(player, hub, world.Condition{Health: 20, MaxHealth: 20})

	// Into a loaded instance.
	dest := world.Location{Instance: h.Instance, X: 10, Y: 64, Z: -3}
	ok, err := e.Relocate(ctx, player, dest)
	require.NoError(t, err)
	require.True(t, ok)

	loc, found := e.LocationOf(player)
	require.True(t, found)
	assert.Equal(t, dest, loc)
	assert.Equal(t, []uuid.UUID{player}, e.PlayersIn(h.Instance))
	assert.Empty(t, e.PlayersIn("hub"))

	// Into an unloaded instance: error.
	_, err = e.Unload(ctx, h)
	require.NoError(t, err)
	_, err = e.Relocate(ctx, player, world.Location{Instance: h.Instance})
	assert.Error(t, err)
}

func TestRelocateDespawnedRefuses(t *testing.T) {
	e := newEngine(t)
	player := uuid.New()
	e.Spawn(player, world.Location{Instance: "hub"}, world.Condition{})
	e.Despawn(player)

	ok, err := e.Relocate(context.Background(), player, world.Location{Instance: "hub"})
	assert.NoError(t, err, "despawned player is a refusal, not an error")
	assert.False(t, ok)
}

func TestConditionRoundTrip(t *testing.T) {
	e := newEngine(t)
	player := uuid.New()
	loc := world.Location{Instance: "hub", X: 1, Y: 65, Z: 2}
	e.Spawn(player, loc, world.Condition{Health: 13, MaxHealth: 20, Hunger: 11})

	cond, err := e.Condition(player)
	require.NoError(t, err)
	assert.Equal(t, 13.0, cond.Health)
	assert.Equal(t, loc, cond.Location, "condition reads carry the live location")

	cond.Health = 4
	cond.Inventory = []world.ItemStack{{Item: "stone", Count: 3, Slot: 0}}
	require.NoError(t, e.Apply(player, cond))

	got, err := e.Condition(player)
	require.NoError(t, err)
	assert.Equal(t, 4.0, got.Health)
	assert.Len(t, got.Inventory, 1)

	require.NoError(t, e.Clear(player))
	got, err = e.Condition(player)
	require.NoError(t, err)
	assert.Zero(t, got.Health)
	assert.Empty(t, got.Inventory)
	assert.Equal(t, loc, got.Location, "clear keeps the position")
}

func TestUnknownPlayerErrors(t *testing.T) {
	e := newEngine(t)
	id := uuid.New()

	_, err := e.Condition(id)
	assert.ErrorIs(t, err, ErrUnknownPlayer)
	assert.ErrorIs(t, e.Apply(id, &world.Condition{}), ErrUnknownPlayer)
	assert.ErrorIs(t, e.Clear(id), ErrUnknownPlayer)
	assert.ErrorIs(t, e.SetGameMode(id, world.ModeCreative), ErrUnknownPlayer)

	_, found := e.LocationOf(id)
	assert.False(t, found)
}
