package lifecycle

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/worldhaven/server/internal/engine"
	"github.com/worldhaven/server/internal/world"
)

// liveState is one step of the instance liveness machine:
//
//	Unloaded → Loading → Loaded → Unloading → Unloaded
//
// Deleted is reachable from any state through DeleteWorld's eviction path.
type liveState int8

const (
	stateUnloaded liveState = iota
	stateLoading
	stateLoaded
	stateUnloading
	stateDeleted
)

// instanceState is the in-memory liveness record for one world. Guarded by
// Manager.mu; the transition channel linearizes concurrent load/unload
// requests: a request arriving mid-transition waits on it instead of
// starting a second transition.
type instanceState struct {
	state      liveState
	handles    []engine.Handle
	transition chan struct{} // non-nil while Loading or Unloading
}

// liveLocked returns the liveness record for a world, creating the Unloaded
// zero record on first touch. Caller holds m.mu.
func (m *Manager) liveLocked(id uuid.UUID) *instanceState {
	st, ok := m.live[id]
	if !ok {
		st = &instanceState{state: stateUnloaded}
		m.live[id] = st
	}
	return st
}

// IsLoaded reports whether the world's instances are in memory.
func (m *Manager) IsLoaded(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.live[id]
	return ok && st.state == stateLoaded
}

// LoadWorld brings a persisted world's instances into memory. It returns
// false when the world was already loaded (idempotent); a call arriving
// mid-transition attaches to the in-flight transition and re-evaluates.
func (m *Manager) LoadWorld(ctx context.Context, id uuid.UUID) (bool, error) {
	w := m.registry.World(id)
	if w == nil {
		return false, world.Validationf("unknown world %s", id)
	}
	if !w.Enabled {
		return false, world.Validationf("world %q is disabled", w.Name)
	}

	for {
		m.mu.Lock()
		st := m.liveLocked(id)
		switch st.state {
		case stateDeleted:
			m.mu.Unlock()
			return false, world.Validationf("world %q is deleted", w.Name)
		case stateLoaded:
			m.mu.Unlock()
			return false, nil
		case stateLoading, stateUnloading:
			ch := st.transition
			m.mu.Unlock()
			select {
			case <-ch:
			case <-ctx.Done():
				return false, ctx.Err()
			}
			continue
		case stateUnloaded:
			st.state = stateLoading
			st.transition = make(chan struct{})
			m.mu.Unlock()
			return m.doLoad(ctx, w, st)
		}
	}
}

func (m *Manager) doLoad(ctx context.Context, w *world.World, st *instanceState) (bool, error) {
	handles := m.handlesFor(w)
	var loaded []engine.Handle
	for _, h := range handles {
		if _, err := m.instances.Load(ctx, h); err != nil {
			// Roll back the partially loaded variants.
			for _, lh := range loaded {
				if _, uerr := m.instances.Unload(context.Background(), lh); uerr != nil {
					m.log.Warn("rollback unload failed",
						zap.String("instance", lh.Instance), zap.Error(uerr))
				}
			}
			m.finishTransition(st, stateUnloaded, nil)
			return false, &world.EngineFailure{Op: "load", Err: err}
		}
		loaded = append(loaded, h)
		m.sched.EnsureRegion(h.Instance)
	}
	m.finishTransition(st, stateLoaded, handles)
	m.log.Info("world loaded", zap.String("world", w.Name), zap.Int("instances", len(handles)))
	return true, nil
}

// UnloadWorld brings a world's instances out of memory. It refuses while
// occupancy is non-zero, and returns false when already unloaded.
func (m *Manager) UnloadWorld(ctx context.Context, id uuid.UUID) (bool, error) {
	w := m.registry.World(id)
	if w == nil {
		return false, world.Validationf("unknown world %s", id)
	}

	for {
		m.mu.Lock()
		st := m.liveLocked(id)
		switch st.state {
		case stateDeleted:
			m.mu.Unlock()
			return false, nil
		case stateUnloaded:
			m.mu.Unlock()
			return false, nil
		case stateLoading, stateUnloading:
			ch := st.transition
			m.mu.Unlock()
			select {
			case <-ch:
			case <-ctx.Done():
				return false, ctx.Err()
			}
			continue
		case stateLoaded:
			if m.Occupancy(id, uuid.Nil) > 0 {
				m.mu.Unlock()
				return false, world.Validationf("world %q is occupied", w.Name)
			}
			st.state = stateUnloading
			st.transition = make(chan struct{})
			m.mu.Unlock()
			return m.doUnload(ctx, w, st)
		}
	}
}

func (m *Manager) doUnload(ctx context.Context, w *world.World, st *instanceState) (bool, error) {
	var firstErr error
	for _, h := range st.handles {
		if _, err := m.instances.Unload(ctx, h); err != nil && firstErr == nil {
			firstErr = err
		}
		m.sched.RetireRegion(h.Instance)
	}
	if firstErr != nil {
		// Engine state is uncertain; report Unloaded so the next load
		// retries from scratch rather than wedging the machine.
		m.finishTransition(st, stateUnloaded, nil)
		return false, &world.EngineFailure{Op: "unload", Err: firstErr}
	}
	m.finishTransition(st, stateUnloaded, nil)
	m.log.Info("world unloaded", zap.String("world", w.Name))
	return true, nil
}

// finishTransition publishes the new state and releases attached waiters.
func (m *Manager) finishTransition(st *instanceState, next liveState, handles []engine.Handle) {
	m.mu.Lock()
	st.state = next
	st.handles = handles
	ch := st.transition
	st.transition = nil
	m.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}
