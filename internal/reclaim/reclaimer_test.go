package reclaim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/worldhaven/server/internal/sched"
)

const grace = 20 * time.Millisecond

// harness wires a reclaimer to a controllable occupancy count and records
// unload calls.
type harness struct {
	s *sched.Scheduler
	r *Reclaimer

	mu        sync.Mutex
	occupants map[uuid.UUID]int
	unloaded  []uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		s:         sched.New(zap.NewNop()),
		occupants: make(map[uuid.UUID]int),
	}
	t.Cleanup(h.s.Close)
	h.r = New(h.s, grace,
		func(worldID, _ uuid.UUID) int {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.occupants[worldID]
		},
		func(_ context.Context, worldID uuid.UUID) (bool, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.unloaded = append(h.unloaded, worldID)
			return true, nil
		},
		zap.NewNop())
	return h
}

func (h *harness) setOccupants(id uuid.UUID, n int) {
	h.mu.Lock()
	h.occupants[id] = n
	h.mu.Unlock()
}

func (h *harness) unloadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.unloaded)
}

func TestEmptyWorldUnloadsAfterGrace(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()

	h.r.OnLeave(id, uuid.New())
	assert.Equal(t, 1, h.r.PendingCount())

	assert.Eventually(t, func() bool { return h.unloadCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, h.r.PendingCount())
}

func TestOccupiedWorldNotScheduled(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()
	h.setOccupants(id, 2)

	h.r.OnLeave(id, uuid.New())
	assert.Equal(t, 0, h.r.PendingCount())
	time.Sleep(2 * grace)
	assert.Zero(t, h.unloadCount())
}

func TestReEntryCancelsPendingUnload(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()

	h.r.OnLeave(id, uuid.New())
	require.Equal(t, 1, h.r.PendingCount())

	h.r.OnEnter(id)
	assert.Equal(t, 0, h.r.PendingCount())
	time.Sleep(2 * grace)
	assert.Zero(t, h.unloadCount(), "cancelled unload must not fire")
}

func TestFireRevalidatesOccupancy(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()

	h.r.OnLeave(id, uuid.New())
	// A player re-enters but the enter event is lost; the fire handler's
	// own occupancy re-check must still keep the world loaded.
	h.setOccupants(id, 1)

	time.Sleep(2 * grace)
	assert.Zero(t, h.unloadCount())
	assert.Equal(t, 0, h.r.PendingCount(), "timer was consumed without unloading")
}

func TestDuplicateLeaveSchedulesOnce(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()

	h.r.OnLeave(id, uuid.New())
	h.r.OnLeave(id, uuid.New())
	assert.Equal(t, 1, h.r.PendingCount())

	assert.Eventually(t, func() bool { return h.unloadCount() == 1 }, time.Second, time.Millisecond)
	time.Sleep(2 * grace)
	assert.Equal(t, 1, h.unloadCount())
}

func TestPinnedWorldNeverScheduled(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()
	h.r.Pin(id)

	h.r.OnLeave(id, uuid.New())
	assert.Equal(t, 0, h.r.PendingCount())

	// Unpinning alone changes nothing; the next leave event reconsiders.
	h.r.Unpin(id)
	assert.Equal(t, 0, h.r.PendingCount())
	h.r.OnLeave(id, uuid.New())
	assert.Equal(t, 1, h.r.PendingCount())
	assert.Eventually(t, func() bool { return h.unloadCount() == 1 }, time.Second, time.Millisecond)
}

func TestPinCancelsPendingUnload(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()

	h.r.OnLeave(id, uuid.New())
	require.Equal(t, 1, h.r.PendingCount())

	h.r.Pin(id)
	assert.Equal(t, 0, h.r.PendingCount())
	time.Sleep(2 * grace)
	assert.Zero(t, h.unloadCount())
}

func TestLeaveEventExcludesDepartingPlayer(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()
	departing := uuid.New()

	// The engine may still count the departing player at event time; the
	// occupancy callback receives them as the exclusion.
	called := make(chan uuid.UUID, 1)
	h.r.occupancy = func(_, excluding uuid.UUID) int {
		called <- excluding
		return 0
	}
	h.r.OnLeave(id, departing)
	assert.Equal(t, departing, <-called)
}
