// Package fsengine is a disk-backed reference implementation of the engine
// interfaces. Instances are plain directories under a root; player entities
// live in memory. It exists so the server runs end to end without a host
// process, and it backs the lifecycle tests.
package fsengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/worldhaven/server/internal/engine"
	"github.com/worldhaven/server/internal/world"
)

// ErrUnknownPlayer reports an operation against a player the engine has not
// spawned.
var ErrUnknownPlayer = errors.New("fsengine: unknown player")

type entity struct {
	loc  world.Location
	cond world.Condition
	mode world.GameMode
}

// manifest is the marker file written into every instance directory.
type manifest struct {
	Instance  string            `json:"instance"`
	Env       world.Environment `json:"env"`
	Kind      world.Kind        `json:"kind"`
	Seed      *int64            `json:"seed,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type Engine struct {
	root string
	log  *zap.Logger
	sem  chan struct{} // bounds concurrent materializations

	mu       sync.Mutex
	loaded   map[string]bool
	entities map[uuid.UUID]*entity
	byInst   map[string]map[uuid.UUID]struct{}
}

func New(root string, workers int, log *zap.Logger) (*Engine, error) {
	if workers <= 0 {
		workers = 4
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create instance root: %w", err)
	}
	return &Engine{
		root:     root,
		log:      log,
		sem:      make(chan struct{}, workers),
		loaded:   make(map[string]bool),
		entities: make(map[uuid.UUID]*entity),
		byInst:   make(map[string]map[uuid.UUID]struct{}),
	}, nil
}

func (e *Engine) path(instance string) (string, error) {
	if instance == "" || strings.ContainsAny(instance, "/\\") || instance == "." || instance == ".." {
		return "", fmt.Errorf("unsafe instance name %q", instance)
	}
	return filepath.Join(e.root, instance), nil
}

func (e *Engine) Create(ctx context.Context, h engine.Handle, kind world.Kind, seed *int64) error {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	dir, err := e.path(h.Instance)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("instance %s already exists", h.Instance)
	}
	if err := os.MkdirAll(filepath.Join(dir, "region"), 0o755); err != nil {
		return fmt.Errorf("materialize %s: %w", h.Instance, err)
	}
	m := manifest{
		Instance:  h.Instance,
		Env:       h.Env,
		Kind:      kind,
		Seed:      seed,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "instance.json"), raw, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	e.mu.Lock()
	e.loaded[h.Instance] = true
	e.mu.Unlock()
	e.log.Debug("instance materialized", zap.String("instance", h.Instance), zap.String("env", string(h.Env)))
	return nil
}

func (e *Engine) Load(ctx context.Context, h engine.Handle) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, err := e.path(h.Instance)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(filepath.Join(dir, "instance.json")); err != nil {
		return false, fmt.Errorf("instance %s has no manifest: %w", h.Instance, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded[h.Instance] {
		return false, nil
	}
	e.loaded[h.Instance] = true
	return true, nil
}

func (e *Engine) Unload(ctx context.Context, h engine.Handle) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded[h.Instance] {
		return false, nil
	}
	delete(e.loaded, h.Instance)
	return true, nil
}

func (e *Engine) Remove(instance string) error {
	dir, err := e.path(instance)
	if err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.loaded, instance)
	e.mu.Unlock()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", instance, err)
	}
	return nil
}

func (e *Engine) Relocate(ctx context.Context, player uuid.UUID, loc world.Location) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entities[player]
	if !ok {
		return false, nil // despawned mid-flight: refuse, don't error
	}
	if !e.loaded[loc.Instance] {
		return false, fmt.Errorf("instance %s not loaded", loc.Instance)
	}
	e.detachLocked(player, ent.loc.Instance)
	ent.loc = loc
	e.attachLocked(player, loc.Instance)
	return true, nil
}

// Spawn places a connecting player into an instance. The caller (session
// layer) seeds the starting condition.
func (e *Engine) Spawn(player uuid.UUID, loc world.Location, cond world.Condition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entities[player] = &entity{loc: loc, cond: cond, mode: world.ModeSurvival}
	e.loaded[loc.Instance] = true // hub-style instances are always live
	e.attachLocked(player, loc.Instance)
}

// Despawn drops a disconnecting player's live entity.
func (e *Engine) Despawn(player uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok := e.entities[player]; ok {
		e.detachLocked(player, ent.loc.Instance)
		delete(e.entities, player)
	}
}

func (e *Engine) attachLocked(player uuid.UUID, instance string) {
	set := e.byInst[instance]
	if set == nil {
		set = make(map[uuid.UUID]struct{}, 1)
		e.byInst[instance] = set
	}
	set[player] = struct{}{}
}

func (e *Engine) detachLocked(player uuid.UUID, instance string) {
	if set := e.byInst[instance]; set != nil {
		delete(set, player)
		if len(set) == 0 {
			delete(e.byInst, instance)
		}
	}
}

func (e *Engine) Condition(player uuid.UUID) (*world.Condition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entities[player]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	c := ent.cond
	c.Location = ent.loc
	return &c, nil
}

func (e *Engine) Apply(player uuid.UUID, c *world.Condition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entities[player]
	if !ok {
		return ErrUnknownPlayer
	}
	ent.cond = *c
	return nil
}

func (e *Engine) Clear(player uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entities[player]
	if !ok {
		return ErrUnknownPlayer
	}
	loc := ent.loc
	ent.cond = world.Condition{Location: loc}
	return nil
}

func (e *Engine) SetGameMode(player uuid.UUID, mode world.GameMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entities[player]
	if !ok {
		return ErrUnknownPlayer
	}
	ent.mode = mode
	return nil
}

// GameMode reports a player's current mode (test observation point).
func (e *Engine) GameMode(player uuid.UUID) (world.GameMode, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entities[player]
	if !ok {
		return "", false
	}
	return ent.mode, true
}

func (e *Engine) LocationOf(player uuid.UUID) (world.Location, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entities[player]
	if !ok {
		return world.Location{}, false
	}
	return ent.loc, true
}

func (e *Engine) PlayersIn(instance string) []uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	set := e.byInst[instance]
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// IsLoaded reports whether an instance is in memory (test observation point).
func (e *Engine) IsLoaded(instance string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded[instance]
}
