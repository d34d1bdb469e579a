package world

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ownerNameKey struct {
	owner  uuid.UUID
	folded string
}

// Registry is the in-memory index of World and Player records and the single
// point of truth while the process runs. It is consulted from the global
// executor, async-completion goroutines, and region executors, so every
// access goes through the internal lock. Lookups hand out private copies:
// callers read their copy freely and funnel every mutation back through
// UpdateWorld / UpdatePlayer / MutatePlayer, which operate on the live
// record under the lock. No caller ever holds a reference the Registry
// mutates behind its back.
type Registry struct {
	store Store
	log   *zap.Logger

	mu         sync.RWMutex
	worlds     map[uuid.UUID]*World
	byName     map[ownerNameKey]uuid.UUID
	byInstance map[string]uuid.UUID
	reserved   map[ownerNameKey]struct{}
	players    map[uuid.UUID]*Player
}

func NewRegistry(store Store, log *zap.Logger) *Registry {
	return &Registry{
		store:      store,
		log:        log,
		worlds:     make(map[uuid.UUID]*World),
		byName:     make(map[ownerNameKey]uuid.UUID),
		byInstance: make(map[string]uuid.UUID),
		reserved:   make(map[ownerNameKey]struct{}),
		players:    make(map[uuid.UUID]*Player),
	}
}

// copyWorld clones a record for handout or persistence, so readers and the
// store never share the role map the live record mutates under the lock.
func copyWorld(w *World) *World {
	cw := *w
	cw.Roles = make(map[uuid.UUID]Role, len(w.Roles))
	for id, role := range w.Roles {
		cw.Roles[id] = role
	}
	return &cw
}

func copyPlayer(p *Player) *Player {
	cp := *p
	cp.Owned = append([]uuid.UUID(nil), p.Owned...)
	cp.Locations = make(map[string]Location, len(p.Locations))
	for k, v := range p.Locations {
		cp.Locations[k] = v
	}
	cp.Snapshots = make(map[string]*Snapshot, len(p.Snapshots))
	for k, v := range p.Snapshots {
		s := *v
		cp.Snapshots[k] = &s
	}
	return &cp
}

// LoadAll reads every persisted record into memory. Called once at boot,
// before any other method.
func (r *Registry) LoadAll(ctx context.Context) error {
	worlds, err := r.store.Worlds(ctx)
	if err != nil {
		return &PersistenceFailure{Op: "load worlds", Err: err}
	}
	players, err := r.store.Players(ctx)
	if err != nil {
		return &PersistenceFailure{Op: "load players", Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range worlds {
		r.indexLocked(w)
	}
	for _, p := range players {
		r.players[p.ID] = p
	}
	r.log.Info("registry loaded",
		zap.Int("worlds", len(worlds)),
		zap.Int("players", len(players)))
	return nil
}

func (r *Registry) indexLocked(w *World) {
	r.worlds[w.ID] = w
	r.byName[ownerNameKey{w.OwnerID, FoldName(w.Name)}] = w.ID
	for _, env := range []Environment{EnvOverworld, EnvNether, EnvEnd} {
		r.byInstance[InstanceName(w.OwnerID, w.Name, env)] = w.ID
	}
}

func (r *Registry) unindexLocked(w *World) {
	delete(r.worlds, w.ID)
	delete(r.byName, ownerNameKey{w.OwnerID, FoldName(w.Name)})
	for _, env := range []Environment{EnvOverworld, EnvNether, EnvEnd} {
		delete(r.byInstance, InstanceName(w.OwnerID, w.Name, env))
	}
}

// World returns a copy of the record for id, or nil.
func (r *Registry) World(id uuid.UUID) *World {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if w, ok := r.worlds[id]; ok {
		return copyWorld(w)
	}
	return nil
}

// WorldByName resolves a world by owner and case-insensitive name.
func (r *Registry) WorldByName(owner uuid.UUID, name string) *World {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byName[ownerNameKey{owner, FoldName(name)}]; ok {
		return copyWorld(r.worlds[id])
	}
	return nil
}

// WorldByInstance resolves the world owning a live instance name, or nil
// when the instance is not managed by this registry.
func (r *Registry) WorldByInstance(instance string) *World {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byInstance[instance]; ok {
		return copyWorld(r.worlds[id])
	}
	return nil
}

// WorldsOf lists every world owned by the given player.
func (r *Registry) WorldsOf(owner uuid.UUID) []*World {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*World
	for _, w := range r.worlds {
		if w.OwnerID == owner {
			out = append(out, copyWorld(w))
		}
	}
	return out
}

// AllWorlds returns a copy of the world list.
func (r *Registry) AllWorlds() []*World {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*World, 0, len(r.worlds))
	for _, w := range r.worlds {
		out = append(out, copyWorld(w))
	}
	return out
}

// RoleOf resolves a player's effective role in a world under the lock, or
// false when the world is unknown or grants no access.
func (r *Registry) RoleOf(playerID, worldID uuid.UUID) (Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.worlds[worldID]
	if !ok {
		return RoleVisitor, false
	}
	return w.RoleOf(playerID)
}

// ReserveName claims (owner, name) ahead of asynchronous materialization so
// concurrent creates racing on the same name are serialized here: the loser
// sees a ValidationError immediately, before any engine work starts.
func (r *Registry) ReserveName(owner uuid.UUID, name string) error {
	key := ownerNameKey{owner, FoldName(name)}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byName[key]; taken {
		return Validationf("world %q already exists", name)
	}
	if _, pending := r.reserved[key]; pending {
		return Validationf("world %q is being created", name)
	}
	r.reserved[key] = struct{}{}
	return nil
}

// ReleaseName drops a reservation after a failed create.
func (r *Registry) ReleaseName(owner uuid.UUID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reserved, ownerNameKey{owner, FoldName(name)})
}

// CommitWorld persists a freshly materialized world and makes it visible.
// The name must have been reserved; on a store failure the reservation is
// released and nothing becomes visible. The Registry indexes its own copy,
// so the caller's pointer stays private.
func (r *Registry) CommitWorld(ctx context.Context, w *World) error {
	if err := r.store.SaveWorld(ctx, w); err != nil {
		r.ReleaseName(w.OwnerID, w.Name)
		return &PersistenceFailure{Op: "save world", Err: err}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reserved, ownerNameKey{w.OwnerID, FoldName(w.Name)})
	r.indexLocked(copyWorld(w))
	return nil
}

// UpdateWorld funnels every field mutation through one lock-held closure and
// persists the result, so concurrent settings changes cannot lose updates.
// The store sees a copy taken under the lock, never the live record.
func (r *Registry) UpdateWorld(ctx context.Context, id uuid.UUID, mutate func(*World) error) error {
	r.mu.Lock()
	w, ok := r.worlds[id]
	if !ok {
		r.mu.Unlock()
		return Validationf("unknown world %s", id)
	}
	if err := mutate(w); err != nil {
		r.mu.Unlock()
		return err
	}
	saved := copyWorld(w)
	r.mu.Unlock()

	if err := r.store.SaveWorld(ctx, saved); err != nil {
		return &PersistenceFailure{Op: "save world", Err: err}
	}
	return nil
}

// RemoveWorld deletes the record, the owner's ownership linkage, and every
// session snapshot referencing the world's instances. The in-memory eviction
// always completes; the returned error only reports durable-write trouble so
// the caller can downgrade it to a warning mid-deletion.
func (r *Registry) RemoveWorld(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	w, ok := r.worlds[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	r.unindexLocked(w)

	instances := make([]string, 0, 3)
	for _, env := range []Environment{EnvOverworld, EnvNether, EnvEnd} {
		instances = append(instances, InstanceName(w.OwnerID, w.Name, env))
	}

	var touched []*Player
	for _, p := range r.players {
		dirty := false
		if p.Owns(id) {
			kept := p.Owned[:0]
			for _, owned := range p.Owned {
				if owned != id {
					kept = append(kept, owned)
				}
			}
			p.Owned = kept
			dirty = true
		}
		for _, inst := range instances {
			if _, ok := p.Snapshots[inst]; ok {
				delete(p.Snapshots, inst)
				dirty = true
			}
			if _, ok := p.Locations[inst]; ok {
				delete(p.Locations, inst)
				dirty = true
			}
		}
		if p.LastWorld == id {
			p.LastWorld = uuid.Nil
			dirty = true
		}
		if dirty {
			touched = append(touched, copyPlayer(p))
		}
	}
	r.mu.Unlock()

	var firstErr error
	if err := r.store.DeleteWorld(ctx, id); err != nil {
		firstErr = &PersistenceFailure{Op: "delete world", Err: err}
	}
	for _, p := range touched {
		if err := r.store.SavePlayer(ctx, p); err != nil && firstErr == nil {
			firstErr = &PersistenceFailure{Op: fmt.Sprintf("save player %s", p.ID), Err: err}
		}
	}
	return firstErr
}

// Player returns a copy of the record for id, or nil.
func (r *Registry) Player(id uuid.UUID) *Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.players[id]; ok {
		return copyPlayer(p)
	}
	return nil
}

// EnsurePlayer returns a copy of the existing record or creates one with the
// given display name and default quota. A new record is persisted
// immediately.
func (r *Registry) EnsurePlayer(ctx context.Context, id uuid.UUID, name string, quota int) (*Player, error) {
	r.mu.Lock()
	if p, ok := r.players[id]; ok {
		if p.Name != name && name != "" {
			p.Name = name
		}
		cp := copyPlayer(p)
		r.mu.Unlock()
		return cp, nil
	}
	p := NewPlayer(id, name, quota)
	r.players[id] = p
	cp := copyPlayer(p)
	r.mu.Unlock()

	if err := r.store.SavePlayer(ctx, cp); err != nil {
		return cp, &PersistenceFailure{Op: "save player", Err: err}
	}
	return cp, nil
}

// UpdatePlayer mutates a player record under the registry lock and persists
// it. Snapshot writes during teleports skip persistence and use
// MutatePlayer + SavePlayer on departure instead.
func (r *Registry) UpdatePlayer(ctx context.Context, id uuid.UUID, mutate func(*Player) error) error {
	if err := r.MutatePlayer(id, mutate); err != nil {
		return err
	}
	return r.SavePlayer(ctx, id)
}

// MutatePlayer applies an in-memory mutation without touching the store.
func (r *Registry) MutatePlayer(id uuid.UUID, mutate func(*Player) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return Validationf("unknown player %s", id)
	}
	return mutate(p)
}

// SavePlayer flushes a player record to the store. The copy handed to the
// store is taken under the lock, so a concurrent MutatePlayer cannot tear
// the write mid-marshal.
func (r *Registry) SavePlayer(ctx context.Context, id uuid.UUID) error {
	r.mu.RLock()
	p, ok := r.players[id]
	var cp *Player
	if ok {
		cp = copyPlayer(p)
	}
	r.mu.RUnlock()
	if !ok {
		return Validationf("unknown player %s", id)
	}
	if err := r.store.SavePlayer(ctx, cp); err != nil {
		return &PersistenceFailure{Op: "save player", Err: err}
	}
	return nil
}

// Snapshot returns a copy of the stored snapshot for (player, instance), or
// nil.
func (r *Registry) Snapshot(playerID uuid.UUID, instance string) *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[playerID]
	if !ok {
		return nil
	}
	snap, ok := p.Snapshots[instance]
	if !ok {
		return nil
	}
	s := *snap
	return &s
}
