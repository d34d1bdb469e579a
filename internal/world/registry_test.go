package world_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/worldhaven/server/internal/persist"
	"github.com/worldhaven/server/internal/world"
)

func newRegistry(t *testing.T) (*world.Registry, *persist.MemStore) {
	t.Helper()
	store := persist.NewMemStore()
	return world.NewRegistry(store, zap.NewNop()), store
}

func commitWorld(t *testing.T, r *world.Registry, owner uuid.UUID, name string) *world.World {
	t.Helper()
	require.NoError(t, r.ReserveName(owner, name))
	w := world.NewWorld(owner, "alice", name, world.KindNormal, nil, world.BorderSettings{Size: 1000})
	require.NoError(t, r.CommitWorld(context.Background(), w))
	return w
}

func TestReserveNameConflicts(t *testing.T) {
	r, _ := newRegistry(t)
	owner := uuid.New()

	require.NoError(t, r.ReserveName(owner, "castle"))

	err := r.ReserveName(owner, "Castle")
	require.Error(t, err, "pending reservation blocks a case-folded duplicate")
	assert.True(t, world.IsValidation(err))

	// A different owner is free to use the same name.
	assert.NoError(t, r.ReserveName(uuid.New(), "castle"))

	// Releasing frees the name again.
	r.ReleaseName(owner, "castle")
	assert.NoError(t, r.ReserveName(owner, "castle"))
}

func TestCommitWorldIndexes(t *testing.T) {
	r, _ := newRegistry(t)
	owner := uuid.New()
	w := commitWorld(t, r, owner, "Castle")

	got := r.World(w.ID)
	require.NotNil(t, got)
	assert.Equal(t, w.ID, got.ID)
	assert.NotSame(t, w, got, "lookups hand out copies, never the live record")

	assert.Equal(t, w.ID, r.WorldByName(owner, "castle").ID, "name lookup is case-insensitive")
	assert.Equal(t, w.ID, r.WorldByName(owner, "CASTLE").ID)

	inst := world.InstanceName(owner, "Castle", world.EnvOverworld)
	assert.Equal(t, w.ID, r.WorldByInstance(inst).ID)
	assert.Equal(t, w.ID, r.WorldByInstance(world.InstanceName(owner, "Castle", world.EnvNether)).ID)
	assert.Nil(t, r.WorldByInstance("wh_unknown_instance"))

	// The committed name is taken for good now.
	err := r.ReserveName(owner, "castle")
	assert.True(t, world.IsValidation(err))
}

func TestCommitWorldStoreFailure(t *testing.T) {
	r, store := newRegistry(t)
	owner := uuid.New()
	require.NoError(t, r.ReserveName(owner, "castle"))

	store.FailSaveWorld = errors.New("disk full")
	w := world.NewWorld(owner, "alice", "castle", world.KindNormal, nil, world.BorderSettings{Size: 1000})
	err := r.CommitWorld(context.Background(), w)
	require.Error(t, err)
	var pf *world.PersistenceFailure
	assert.ErrorAs(t, err, &pf)

	assert.Nil(t, r.World(w.ID), "failed commit stays invisible")

	// The reservation was released, so the create can be retried.
	store.FailSaveWorld = nil
	assert.NoError(t, r.ReserveName(owner, "castle"))
}

func TestLoadAllRoundTrip(t *testing.T) {
	store := persist.NewMemStore()
	r1 := world.NewRegistry(store, zap.NewNop())
	owner := uuid.New()

	require.NoError(t, r1.ReserveName(owner, "castle"))
	w := world.NewWorld(owner, "alice", "castle", world.KindFlat, nil, world.BorderSettings{Size: 500})
	w.Roles[uuid.New()] = world.RoleManager
	require.NoError(t, r1.CommitWorld(context.Background(), w))

	p, err := r1.EnsurePlayer(context.Background(), owner, "alice", 3)
	require.NoError(t, err)
	require.NoError(t, r1.UpdatePlayer(context.Background(), p.ID, func(p *world.Player) error {
		p.Owned = append(p.Owned, w.ID)
		return nil
	}))

	// A second registry over the same store sees the same records.
	r2 := world.NewRegistry(store, zap.NewNop())
	require.NoError(t, r2.LoadAll(context.Background()))

	got := r2.World(w.ID)
	require.NotNil(t, got)
	assert.Equal(t, w.Name, got.Name)
	assert.Equal(t, w.Kind, got.Kind)
	assert.Len(t, got.Roles, 1)

	gp := r2.Player(owner)
	require.NotNil(t, gp)
	assert.Equal(t, []uuid.UUID{w.ID}, gp.Owned)
	assert.NotNil(t, gp.Snapshots, "maps come back initialized")
}

func TestUpdateWorldPersists(t *testing.T) {
	r, store := newRegistry(t)
	owner := uuid.New()
	w := commitWorld(t, r, owner, "castle")

	require.NoError(t, r.UpdateWorld(context.Background(), w.ID, func(w *world.World) error {
		w.GameMode = world.ModeCreative
		return nil
	}))
	assert.Equal(t, world.ModeCreative, r.World(w.ID).GameMode)

	store.FailSaveWorld = errors.New("down")
	err := r.UpdateWorld(context.Background(), w.ID, func(w *world.World) error {
		w.Public = true
		return nil
	})
	var pf *world.PersistenceFailure
	assert.ErrorAs(t, err, &pf)

	err = r.UpdateWorld(context.Background(), uuid.New(), func(*world.World) error { return nil })
	assert.True(t, world.IsValidation(err))
}

func TestRemoveWorldScrubsPlayers(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	owner := uuid.New()
	visitor := uuid.New()
	w := commitWorld(t, r, owner, "castle")
	inst := world.InstanceName(owner, "castle", world.EnvOverworld)

	_, err := r.EnsurePlayer(ctx, owner, "alice", 3)
	require.NoError(t, err)
	_, err = r.EnsurePlayer(ctx, visitor, "bob", 3)
	require.NoError(t, err)

	require.NoError(t, r.MutatePlayer(owner, func(p *world.Player) error {
		p.Owned = append(p.Owned, w.ID)
		p.LastWorld = w.ID
		return nil
	}))
	require.NoError(t, r.MutatePlayer(visitor, func(p *world.Player) error {
		p.Snapshots[inst] = &world.Snapshot{Health: 17}
		p.Locations[inst] = world.Location{Instance: inst, X: 5}
		p.LastWorld = w.ID
		return nil
	}))

	require.NoError(t, r.RemoveWorld(ctx, w.ID))

	assert.Nil(t, r.World(w.ID))
	assert.Nil(t, r.WorldByName(owner, "castle"))
	assert.Nil(t, r.WorldByInstance(inst))

	op := r.Player(owner)
	assert.Empty(t, op.Owned)
	assert.Equal(t, uuid.Nil, op.LastWorld)

	vp := r.Player(visitor)
	assert.NotContains(t, vp.Snapshots, inst)
	assert.NotContains(t, vp.Locations, inst)
	assert.Equal(t, uuid.Nil, vp.LastWorld)

	// The name is free again.
	assert.NoError(t, r.ReserveName(owner, "castle"))
}

func TestRemoveWorldStoreFailureStillEvicts(t *testing.T) {
	r, store := newRegistry(t)
	owner := uuid.New()
	w := commitWorld(t, r, owner, "castle")

	store.FailDeleteWorld = errors.New("network partition")
	err := r.RemoveWorld(context.Background(), w.ID)
	var pf *world.PersistenceFailure
	require.ErrorAs(t, err, &pf)

	assert.Nil(t, r.World(w.ID), "in-memory eviction completes regardless")
}

func TestEnsurePlayer(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	id := uuid.New()

	p1, err := r.EnsurePlayer(ctx, id, "alice", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, p1.Quota)

	// Second ensure sees the same record and refreshes the display name.
	p2, err := r.EnsurePlayer(ctx, id, "Alice", 99)
	require.NoError(t, err)
	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, "Alice", p2.Name)
	assert.Equal(t, 3, p2.Quota, "quota is not overwritten for known players")
}

func TestSnapshotLookup(t *testing.T) {
	r, _ := newRegistry(t)
	id := uuid.New()
	assert.Nil(t, r.Snapshot(id, "inst"), "unknown player has no snapshot")

	_, err := r.EnsurePlayer(context.Background(), id, "alice", 3)
	require.NoError(t, err)
	assert.Nil(t, r.Snapshot(id, "inst"))

	require.NoError(t, r.MutatePlayer(id, func(p *world.Player) error {
		p.Snapshots["inst"] = &world.Snapshot{Health: 9}
		return nil
	}))
	snap := r.Snapshot(id, "inst")
	require.NotNil(t, snap)
	assert.Equal(t, 9.0, snap.Health)
}

func TestRegistryRoleOf(t *testing.T) {
	r, _ := newRegistry(t)
	owner := uuid.New()
	member := uuid.New()
	w := commitWorld(t, r, owner, "castle")

	role, ok := r.RoleOf(owner, w.ID)
	require.True(t, ok)
	assert.Equal(t, world.RoleOwner, role)

	_, ok = r.RoleOf(member, w.ID)
	assert.False(t, ok)

	require.NoError(t, r.UpdateWorld(context.Background(), w.ID, func(w *world.World) error {
		w.Roles[member] = world.RoleMember
		return nil
	}))
	role, ok = r.RoleOf(member, w.ID)
	require.True(t, ok)
	assert.Equal(t, world.RoleMember, role)

	_, ok = r.RoleOf(owner, uuid.New())
	assert.False(t, ok)
}

func TestLookupCopiesAreDetached(t *testing.T) {
	r, _ := newRegistry(t)
	owner := uuid.New()
	w := commitWorld(t, r, owner, "castle")

	got := r.World(w.ID)
	got.Name = "scribbled"
	got.Roles[uuid.New()] = world.RoleManager

	assert.Equal(t, "castle", r.World(w.ID).Name)
	assert.Empty(t, r.World(w.ID).Roles, "writes to a handed-out copy never reach the record")

	_, err := r.EnsurePlayer(context.Background(), owner, "alice", 3)
	require.NoError(t, err)
	p := r.Player(owner)
	p.Owned = append(p.Owned, uuid.New())
	p.Locations["inst"] = world.Location{X: 1}
	assert.Empty(t, r.Player(owner).Owned)
	assert.Empty(t, r.Player(owner).Locations)
}

// Role churn on one goroutine with lookups hammering the same record from
// another; the race detector fails this if any reader ever touches the live
// role map outside the lock.
func TestConcurrentRoleChurnAndLookups(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	owner := uuid.New()
	member := uuid.New()
	w := commitWorld(t, r, owner, "castle")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 300; i++ {
			_ = r.UpdateWorld(ctx, w.ID, func(w *world.World) error {
				if i%2 == 0 {
					w.Roles[member] = world.RoleMember
				} else {
					delete(w.Roles, member)
				}
				w.Public = !w.Public
				return nil
			})
		}
	}()

	for alive := true; alive; {
		select {
		case <-done:
			alive = false
		default:
		}
		if got := r.World(w.ID); got != nil {
			got.RoleOf(member)
		}
		r.RoleOf(member, w.ID)
		r.WorldByName(owner, "castle")
		r.AllWorlds()
	}
}

// Snapshot writes racing player saves; the store marshals the copy taken
// under the lock, so the writer's map mutation can never tear it.
func TestConcurrentPlayerMutationAndSaves(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	id := uuid.New()
	_, err := r.EnsurePlayer(ctx, id, "alice", 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 300; i++ {
			_ = r.MutatePlayer(id, func(p *world.Player) error {
				p.Snapshots["inst"] = &world.Snapshot{Health: float64(i)}
				p.Locations["inst"] = world.Location{Instance: "inst", X: float64(i)}
				return nil
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 300; i++ {
			_ = r.SavePlayer(ctx, id)
			r.Player(id)
			r.Snapshot(id, "inst")
		}
	}()
	wg.Wait()
}
