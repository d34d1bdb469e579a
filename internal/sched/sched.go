// Package sched models the host runtime's regionized scheduling: every live
// instance region is a single goroutine draining a task queue, one global
// executor coordinates cross-region work, and blocking I/O runs on an
// unbounded async pool. Code touching live state owned by a region must be
// posted to that region's executor; region tasks must never block.
package sched

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrRetired reports that a task's target region was retired before the task
// could run.
var ErrRetired = errors.New("sched: target region retired")

// ErrClosed reports scheduler shutdown.
var ErrClosed = errors.New("sched: scheduler closed")

type targetKind int8

const (
	kindGlobal targetKind = iota
	kindRegion
	kindAsync
)

// Target selects the executor a task runs on.
type Target struct {
	kind   targetKind
	region string
}

// Global targets the coordination executor.
func Global() Target { return Target{kind: kindGlobal} }

// Async targets the blocking-I/O pool. Never use it for live-state access.
func Async() Target { return Target{kind: kindAsync} }

// Region targets the executor owning the named instance region.
func Region(name string) Target { return Target{kind: kindRegion, region: name} }

// Task carries a body and an optional callback that runs instead of the body
// when the target region was retired before execution.
type Task struct {
	Body    func()
	Retired func()
}

const queueDepth = 256

type executor struct {
	name  string
	tasks chan Task

	mu      sync.Mutex
	retired bool
	posting sync.WaitGroup // senders admitted before retirement
}

func newExecutor(name string, log *zap.Logger, wg *sync.WaitGroup) *executor {
	e := &executor{name: name, tasks: make(chan Task, queueDepth)}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for t := range e.tasks {
			t.Body()
		}
	}()
	return e
}

// post enqueues a task; false means the executor has retired and the task's
// Retired callback (if any) should run instead. The lock only covers
// admission: the channel send happens outside it, so a full queue never
// wedges retire behind a blocked sender.
func (e *executor) post(t Task) bool {
	e.mu.Lock()
	if e.retired {
		e.mu.Unlock()
		return false
	}
	e.posting.Add(1)
	e.mu.Unlock()
	defer e.posting.Done()
	e.tasks <- t
	return true
}

// retire stops admission immediately and closes the queue once every
// admitted sender has finished. The loop goroutine keeps draining until the
// close, so blocked senders always complete.
func (e *executor) retire() {
	e.mu.Lock()
	if e.retired {
		e.mu.Unlock()
		return
	}
	e.retired = true
	e.mu.Unlock()
	go func() {
		e.posting.Wait()
		close(e.tasks)
	}()
}

// Scheduler owns all executors. Construct once at startup and pass down;
// there is no package-level instance.
type Scheduler struct {
	log *zap.Logger

	mu      sync.Mutex
	global  *executor
	regions map[string]*executor
	closed  bool

	wg      sync.WaitGroup // region + global loop goroutines
	asyncWG sync.WaitGroup // in-flight async tasks
}

func New(log *zap.Logger) *Scheduler {
	s := &Scheduler{
		log:     log,
		regions: make(map[string]*executor),
	}
	s.global = newExecutor("global", log, &s.wg)
	return s
}

// EnsureRegion creates the executor for an instance region if it does not
// exist yet. Called when an instance finishes loading.
func (s *Scheduler) EnsureRegion(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, ok := s.regions[name]; !ok {
		s.regions[name] = newExecutor(name, s.log, &s.wg)
	}
}

// RetireRegion tears down a region's executor after its instance unloads.
// Tasks posted afterwards get their Retired callback instead of the body.
func (s *Scheduler) RetireRegion(name string) {
	s.mu.Lock()
	e, ok := s.regions[name]
	if ok {
		delete(s.regions, name)
	}
	s.mu.Unlock()
	if ok {
		e.retire()
	}
}

// Submit runs a task on the selected executor. The retired callback fires
// when the target region no longer exists.
func (s *Scheduler) Submit(t Target, task Task) {
	switch t.kind {
	case kindAsync:
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			s.runRetired(task)
			return
		}
		s.asyncWG.Add(1)
		s.mu.Unlock()
		go func() {
			defer s.asyncWG.Done()
			task.Body()
		}()
	case kindGlobal:
		if !s.global.post(task) {
			s.runRetired(task)
		}
	case kindRegion:
		s.mu.Lock()
		e, ok := s.regions[t.region]
		s.mu.Unlock()
		if !ok || !e.post(task) {
			s.runRetired(task)
		}
	}
}

// Run posts a bare body with no retirement callback.
func (s *Scheduler) Run(t Target, body func()) {
	s.Submit(t, Task{Body: body})
}

func (s *Scheduler) runRetired(task Task) {
	if task.Retired != nil {
		task.Retired()
	}
}

// Do posts body to the target and waits for it to finish. Only ever call
// this from the async pool or the caller's own goroutine; waiting from a
// region executor would stall that region's ticking.
func (s *Scheduler) Do(ctx context.Context, t Target, body func()) error {
	done := make(chan struct{})
	retired := make(chan struct{})
	s.Submit(t, Task{
		Body: func() {
			body()
			close(done)
		},
		Retired: func() { close(retired) },
	})
	select {
	case <-done:
		return nil
	case <-retired:
		return ErrRetired
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close retires every executor and waits for in-flight work to drain.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	regions := make([]*executor, 0, len(s.regions))
	for _, e := range s.regions {
		regions = append(regions, e)
	}
	s.regions = map[string]*executor{}
	s.mu.Unlock()

	for _, e := range regions {
		e.retire()
	}
	s.global.retire()
	s.wg.Wait()
	s.asyncWG.Wait()
}
