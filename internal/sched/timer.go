package sched

import (
	"sync"
	"sync/atomic"
	"time"
)

// Handle cancels a delayed or repeating task. Cancellation and firing can
// race: a handler that already left the timer queue will still run, so fire
// bodies must re-validate their own relevance.
type Handle struct {
	cancelled atomic.Bool

	mu    sync.Mutex
	timer *time.Timer
	stop  chan struct{} // repeating only
}

// Cancel stops future firings. It returns true when the task had not fired
// (or, for repeating tasks, will not fire again); false when a one-shot task
// already ran or was already cancelled.
func (h *Handle) Cancel() bool {
	if !h.cancelled.CompareAndSwap(false, true) {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop != nil {
		close(h.stop)
		return true
	}
	if h.timer != nil {
		return h.timer.Stop()
	}
	return true
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool { return h.cancelled.Load() }

// RunDelayed schedules a task on the target executor after d. The returned
// handle cancels it.
func (s *Scheduler) RunDelayed(t Target, d time.Duration, task Task) *Handle {
	h := &Handle{}
	h.mu.Lock()
	h.timer = time.AfterFunc(d, func() {
		if h.cancelled.Load() {
			return
		}
		s.Submit(t, task)
	})
	h.mu.Unlock()
	return h
}

// RunRepeating schedules a task on the target executor every interval until
// the handle is cancelled or the scheduler closes.
func (s *Scheduler) RunRepeating(t Target, interval time.Duration, task Task) *Handle {
	h := &Handle{stop: make(chan struct{})}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				if h.cancelled.Load() {
					return
				}
				s.Submit(t, task)
			}
		}
	}()
	return h
}
