// Package reclaim frees memory by unloading world instances that stay empty
// past a grace period. Re-entry during the grace period cancels the pending
// unload; because cancellation and timer firing can race, the fire handler
// re-validates occupancy instead of trusting the schedule.
package reclaim

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/worldhaven/server/internal/sched"
)

// OccupancyFunc reports how many players are present in a world's instances,
// excluding the given player (uuid.Nil excludes nobody). The departing
// player may still be counted present by the engine at event-fire time, so
// leave events pass themselves here.
type OccupancyFunc func(worldID, excluding uuid.UUID) int

// UnloadFunc brings a world's instances out of memory.
type UnloadFunc func(ctx context.Context, worldID uuid.UUID) (bool, error)

type pendingUnload struct {
	handle *sched.Handle
	seq    uint64
}

type Reclaimer struct {
	sched     *sched.Scheduler
	log       *zap.Logger
	grace     time.Duration
	occupancy OccupancyFunc
	unload    UnloadFunc

	mu      sync.Mutex
	seq     uint64
	pending map[uuid.UUID]*pendingUnload
	pinned  map[uuid.UUID]struct{}
}

func New(s *sched.Scheduler, grace time.Duration, occupancy OccupancyFunc, unload UnloadFunc, log *zap.Logger) *Reclaimer {
	return &Reclaimer{
		sched:     s,
		log:       log,
		grace:     grace,
		occupancy: occupancy,
		unload:    unload,
		pending:   make(map[uuid.UUID]*pendingUnload),
		pinned:    make(map[uuid.UUID]struct{}),
	}
}

// Pin exempts a world from idle unloading (never-unload flag, mid-backup).
func (r *Reclaimer) Pin(worldID uuid.UUID) {
	r.mu.Lock()
	r.pinned[worldID] = struct{}{}
	r.mu.Unlock()
	r.OnEnter(worldID)
}

// Unpin re-enables idle unloading. The world is reconsidered on its next
// leave event.
func (r *Reclaimer) Unpin(worldID uuid.UUID) {
	r.mu.Lock()
	delete(r.pinned, worldID)
	r.mu.Unlock()
}

// OnEnter cancels any pending unload for the world.
func (r *Reclaimer) OnEnter(worldID uuid.UUID) {
	r.mu.Lock()
	p, ok := r.pending[worldID]
	if ok {
		delete(r.pending, worldID)
	}
	r.mu.Unlock()
	if ok {
		p.handle.Cancel()
		r.log.Debug("idle unload cancelled", zap.String("world", worldID.String()))
	}
}

// OnLeave recomputes occupancy without the departing player and, at zero,
// schedules an unload after the grace period.
func (r *Reclaimer) OnLeave(worldID, departing uuid.UUID) {
	if r.occupancy(worldID, departing) > 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pinned[worldID]; ok {
		return
	}
	if _, ok := r.pending[worldID]; ok {
		return // timer already running
	}
	r.seq++
	p := &pendingUnload{seq: r.seq}
	p.handle = r.sched.RunDelayed(sched.Global(), r.grace, sched.Task{
		Body: func() { r.fire(worldID, p.seq) },
	})
	r.pending[worldID] = p
	r.log.Debug("idle unload scheduled",
		zap.String("world", worldID.String()),
		zap.Duration("grace", r.grace))
}

// fire runs on the global executor when the grace period elapses. It must
// re-validate: the pending entry may have been replaced, and a player may
// have re-entered between scheduling and firing.
func (r *Reclaimer) fire(worldID uuid.UUID, seq uint64) {
	r.mu.Lock()
	p, ok := r.pending[worldID]
	if !ok || p.seq != seq || p.handle.Cancelled() {
		r.mu.Unlock()
		return
	}
	delete(r.pending, worldID)
	pinned := false
	if _, ok := r.pinned[worldID]; ok {
		pinned = true
	}
	r.mu.Unlock()

	if pinned || r.occupancy(worldID, uuid.Nil) > 0 {
		return
	}

	// Unloading blocks on disk flushes: hand it to the async pool rather
	// than stalling the global executor.
	r.sched.Run(sched.Async(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := r.unload(ctx, worldID); err != nil {
			r.log.Warn("idle unload failed",
				zap.String("world", worldID.String()), zap.Error(err))
			return
		}
		r.log.Info("idle world unloaded", zap.String("world", worldID.String()))
	})
}

// PendingCount reports scheduled unloads (test observation point).
func (r *Reclaimer) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
