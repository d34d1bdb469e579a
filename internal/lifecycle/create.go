package lifecycle

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/worldhaven/server/internal/world"
)

// CreateWorld validates the request, materializes the instance directories
// asynchronously, and persists the record only after materialization
// succeeds. Racing creates on the same (owner, name) are serialized through
// the registry's name reservation: the loser fails validation before any
// engine work, and no duplicate or partial record is ever persisted.
func (m *Manager) CreateWorld(ctx context.Context, requesterID uuid.UUID, requesterName, name string, kind world.Kind, seed *int64) (*world.World, error) {
	if strings.TrimSpace(name) == "" {
		return nil, world.Validationf("world name must not be empty")
	}
	if !kind.Valid() {
		return nil, world.Validationf("unknown world kind %q", kind)
	}

	p, err := m.registry.EnsurePlayer(ctx, requesterID, requesterName, m.cfg.DefaultQuota)
	if err != nil {
		return nil, err
	}
	if !p.UnderQuota() {
		return nil, world.Validationf("world quota of %d reached", p.Quota)
	}

	if err := m.registry.ReserveName(requesterID, name); err != nil {
		return nil, err
	}

	preset := m.presets.Get(kind)
	w := world.NewWorld(requesterID, requesterName, name, kind, seed, m.presets.Border(kind))
	w.Spawn = world.Location{
		Instance: world.InstanceName(requesterID, name, world.EnvOverworld),
		Y:        preset.SpawnY,
	}

	handles := m.handlesFor(w)
	var created []string
	for _, h := range handles {
		if err := m.instances.Create(ctx, h, kind, seed); err != nil {
			m.rollbackCreate(created)
			m.registry.ReleaseName(requesterID, name)
			return nil, &world.EngineFailure{Op: "create", Err: err}
		}
		created = append(created, h.Instance)
		m.sched.EnsureRegion(h.Instance)
	}

	// Materialization succeeded; only now does the record become durable
	// and visible. CommitWorld releases the reservation on store failure.
	if err := m.registry.CommitWorld(ctx, w); err != nil {
		m.rollbackCreate(created)
		for _, h := range handles {
			m.sched.RetireRegion(h.Instance)
		}
		return nil, err
	}

	if err := m.registry.UpdatePlayer(ctx, requesterID, func(p *world.Player) error {
		p.Owned = append(p.Owned, w.ID)
		return nil
	}); err != nil {
		m.log.Warn("ownership linkage save failed",
			zap.String("world", w.Name), zap.Error(err))
	}

	m.mu.Lock()
	st := m.liveLocked(w.ID)
	st.state = stateLoaded
	st.handles = handles
	m.mu.Unlock()

	m.log.Info("world created",
		zap.String("world", w.Name),
		zap.String("owner", requesterName),
		zap.String("kind", string(kind)),
		zap.Int("instances", len(handles)))
	return w, nil
}

func (m *Manager) rollbackCreate(created []string) {
	for _, instance := range created {
		if err := m.instances.Remove(instance); err != nil {
			m.log.Warn("create rollback failed",
				zap.String("instance", instance), zap.Error(err))
		}
	}
}
