// Package lifecycle orchestrates world instances: creation, load/unload,
// deletion, and cross-instance teleports. Every exported operation blocks
// and must be invoked from the async pool or the caller's own goroutine,
// never from a region executor; the manager itself hops onto the owning
// executors where live state is touched.
package lifecycle

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/worldhaven/server/internal/config"
	"github.com/worldhaven/server/internal/data"
	"github.com/worldhaven/server/internal/engine"
	"github.com/worldhaven/server/internal/reclaim"
	"github.com/worldhaven/server/internal/sched"
	"github.com/worldhaven/server/internal/session"
	"github.com/worldhaven/server/internal/world"
)

// AccessControl evaluates a player's standing in a world. The default,
// record-backed evaluator lives in this package; deployments with an
// external permission system substitute their own.
type AccessControl interface {
	HasAccess(player uuid.UUID, w *world.World) bool
	RoleOf(player uuid.UUID, w *world.World) (world.Role, bool)
}

type Manager struct {
	cfg       config.WorldsConfig
	registry  *world.Registry
	instances engine.Instances
	players   engine.Players
	access    AccessControl
	sessions  *session.Manager
	sched     *sched.Scheduler
	presets   *data.PresetTable
	log       *zap.Logger

	reclaimer *reclaim.Reclaimer

	mu   sync.Mutex
	live map[uuid.UUID]*instanceState
}

func NewManager(
	cfg config.WorldsConfig,
	registry *world.Registry,
	instances engine.Instances,
	players engine.Players,
	access AccessControl,
	sessions *session.Manager,
	s *sched.Scheduler,
	presets *data.PresetTable,
	log *zap.Logger,
) *Manager {
	m := &Manager{
		cfg:       cfg,
		registry:  registry,
		instances: instances,
		players:   players,
		access:    access,
		sessions:  sessions,
		sched:     s,
		presets:   presets,
		log:       log,
		live:      make(map[uuid.UUID]*instanceState),
	}
	m.reclaimer = reclaim.New(s, cfg.GracePeriod, m.Occupancy, m.UnloadWorld, log)
	return m
}

// Reclaimer exposes the idle reclaimer for pinning and event wiring.
func (m *Manager) Reclaimer() *reclaim.Reclaimer { return m.reclaimer }

// Registry exposes synchronous record lookups to the command/GUI layer.
func (m *Manager) Registry() *world.Registry { return m.registry }

// handlesFor lists the engine handles a world's kind materializes.
func (m *Manager) handlesFor(w *world.World) []engine.Handle {
	envs := m.presets.Get(w.Kind).Environments
	handles := make([]engine.Handle, 0, len(envs))
	for _, env := range envs {
		handles = append(handles, engine.Handle{
			Instance: world.InstanceName(w.OwnerID, w.Name, env),
			Env:      env,
		})
	}
	return handles
}

// Occupancy counts players the engine places in any of the world's
// instances, excluding the given player (uuid.Nil excludes nobody).
func (m *Manager) Occupancy(worldID, excluding uuid.UUID) int {
	w := m.registry.World(worldID)
	if w == nil {
		return 0
	}
	count := 0
	for _, h := range m.handlesFor(w) {
		for _, p := range m.players.PlayersIn(h.Instance) {
			if p != excluding {
				count++
			}
		}
	}
	return count
}

// fallbackSpawn is the safe location players are evicted to.
func (m *Manager) fallbackSpawn() world.Location {
	return world.Location{
		Instance: m.cfg.FallbackInstance,
		X:        m.cfg.FallbackSpawnX,
		Y:        m.cfg.FallbackSpawnY,
		Z:        m.cfg.FallbackSpawnZ,
	}
}

// HandleQuit captures a departing player's condition when they disconnect
// inside a managed world, flushes their record, and feeds the reclaimer.
func (m *Manager) HandleQuit(ctx context.Context, playerID uuid.UUID) {
	loc, ok := m.players.LocationOf(playerID)
	if !ok {
		return
	}
	w := m.registry.WorldByInstance(loc.Instance)
	if w == nil {
		return
	}
	if err := m.sessions.Capture(ctx, playerID, loc.Instance); err != nil {
		m.log.Warn("quit capture failed",
			zap.String("player", playerID.String()), zap.Error(err))
	}
	if err := m.sessions.Persist(ctx, playerID); err != nil {
		m.log.Warn("quit persist failed",
			zap.String("player", playerID.String()), zap.Error(err))
	}
	m.reclaimer.OnLeave(w.ID, playerID)
}
