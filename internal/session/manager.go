// Package session captures and restores a player's full transient condition
// when crossing instance boundaries. Live-entity reads and writes always run
// on the region executor owning the player; the orchestrator chains a
// capture's completion before the matching restore begins.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/worldhaven/server/internal/engine"
	"github.com/worldhaven/server/internal/sched"
	"github.com/worldhaven/server/internal/world"
)

type Manager struct {
	registry *world.Registry
	players  engine.Players
	sched    *sched.Scheduler
	policy   *ArrivalPolicy
	log      *zap.Logger
}

func NewManager(registry *world.Registry, players engine.Players, s *sched.Scheduler, policy *ArrivalPolicy, log *zap.Logger) *Manager {
	return &Manager{
		registry: registry,
		players:  players,
		sched:    s,
		policy:   policy,
		log:      log,
	}
}

// Capture reads the player's live condition on the owning region executor
// and overwrites the snapshot for (player, instance) wholesale. The mutation
// is in-memory only; durable persistence happens on departure or periodic
// save, at the caller's discretion.
func (m *Manager) Capture(ctx context.Context, playerID uuid.UUID, instance string) error {
	var (
		cond    *world.Condition
		readErr error
	)
	if err := m.sched.Do(ctx, sched.Region(instance), func() {
		cond, readErr = m.players.Condition(playerID)
	}); err != nil {
		return fmt.Errorf("capture on %s: %w", instance, err)
	}
	if readErr != nil {
		return fmt.Errorf("read condition: %w", readErr)
	}

	snap, err := encodeSnapshot(cond)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return m.registry.MutatePlayer(playerID, func(p *world.Player) error {
		p.Snapshots[instance] = snap
		p.Locations[instance] = cond.Location
		return nil
	})
}

// Restore clears the player's live condition on the destination region
// executor and reapplies the stored snapshot. With no snapshot, the arrival
// policy supplies the condition. A corrupted snapshot field is skipped and
// logged; the remaining fields still restore.
func (m *Manager) Restore(ctx context.Context, playerID uuid.UUID, instance string, kind world.Kind, spawn world.Location) error {
	snap := m.registry.Snapshot(playerID, instance)

	var applyErr error
	err := m.sched.Do(ctx, sched.Region(instance), func() {
		if err := m.players.Clear(playerID); err != nil {
			applyErr = fmt.Errorf("clear condition: %w", err)
			return
		}
		var cond *world.Condition
		if snap == nil {
			cond = m.policy.FirstArrival(kind, spawn)
		} else {
			cond = m.decodeSnapshot(playerID, instance, snap, spawn)
		}
		if err := m.players.Apply(playerID, cond); err != nil {
			applyErr = fmt.Errorf("apply condition: %w", err)
		}
	})
	if err != nil {
		return fmt.Errorf("restore on %s: %w", instance, err)
	}
	return applyErr
}

// Persist flushes the player's record (snapshots included) to the store.
func (m *Manager) Persist(ctx context.Context, playerID uuid.UUID) error {
	return m.registry.SavePlayer(ctx, playerID)
}

func encodeSnapshot(cond *world.Condition) (*world.Snapshot, error) {
	snap := &world.Snapshot{
		Health:     cond.Health,
		MaxHealth:  cond.MaxHealth,
		Hunger:     cond.Hunger,
		Saturation: cond.Saturation,
		Exhaustion: cond.Exhaustion,
		XPLevel:    cond.XPLevel,
		XPProgress: cond.XPProgress,
		Location:   cond.Location,
	}
	for _, f := range []struct {
		name string
		src  any
		dst  *json.RawMessage
	}{
		{"inventory", cond.Inventory, &snap.Inventory},
		{"armor", cond.Armor, &snap.Armor},
		{"offhand", cond.Offhand, &snap.Offhand},
		{"ender", cond.Ender, &snap.Ender},
		{"effects", cond.Effects, &snap.Effects},
	} {
		raw, err := json.Marshal(f.src)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.name, err)
		}
		*f.dst = raw
	}
	return snap, nil
}

// decodeSnapshot rebuilds a condition from stored payloads. Each opaque
// field decodes independently: a corrupt one is logged as a DecodeFailure
// and left empty, never aborting the rest.
func (m *Manager) decodeSnapshot(playerID uuid.UUID, instance string, snap *world.Snapshot, spawn world.Location) *world.Condition {
	cond := &world.Condition{
		Health:     snap.Health,
		MaxHealth:  snap.MaxHealth,
		Hunger:     snap.Hunger,
		Saturation: snap.Saturation,
		Exhaustion: snap.Exhaustion,
		XPLevel:    snap.XPLevel,
		XPProgress: snap.XPProgress,
		Location:   snap.Location,
	}
	if cond.Location.Instance == "" {
		cond.Location = spawn
	}
	if cond.MaxHealth <= 0 {
		cond.MaxHealth = 20
	}

	decode := func(field string, raw json.RawMessage, dst any) {
		if len(raw) == 0 {
			return
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			df := &world.DecodeFailure{Field: field, Err: err}
			m.log.Warn("snapshot field skipped",
				zap.String("player", playerID.String()),
				zap.String("instance", instance),
				zap.Error(df))
		}
	}
	decode("inventory", snap.Inventory, &cond.Inventory)
	decode("armor", snap.Armor, &cond.Armor)
	decode("offhand", snap.Offhand, &cond.Offhand)
	decode("ender", snap.Ender, &cond.Ender)
	decode("effects", snap.Effects, &cond.Effects)
	return cond
}
