// Package sched implements the single-fire, self-rescheduling task
// primitive shared by the watch, watchdog, and traffic engines (spec §4.1).
//
// A Task is scheduled with Schedule and fires at most once per call; the
// task body is responsible for calling Schedule again if it wants to run
// periodically. CancelSync blocks until any in-flight run has completed and
// guarantees no later run starts, by stopping the pending timer and then
// acquiring the task's single-admission semaphore.
package sched

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Task is a delayed, single-instance-at-a-time unit of work.
type Task struct {
	mu        sync.Mutex
	timer     *time.Timer
	sem       *semaphore.Weighted
	scheduled bool
}

// New returns an idle Task. Call Schedule to arm it.
func New() *Task {
	return &Task{sem: semaphore.NewWeighted(1)}
}

// Schedule arms the task to run fn after delay. If a run is already
// scheduled but has not fired, it is replaced. Schedule never blocks.
func (t *Task) Schedule(delay time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.scheduled = true
	t.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		t.scheduled = false
		t.mu.Unlock()

		if !t.sem.TryAcquire(1) {
			// A CancelSync is draining a concurrent run (should not
			// normally happen since only one timer is ever armed); skip
			// this fire rather than block the timer goroutine.
			return
		}
		defer t.sem.Release(1)
		fn()
	})
}

// IsScheduled reports whether a fire is currently pending.
func (t *Task) IsScheduled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scheduled
}

// CancelSync stops any pending fire and blocks until any fire currently in
// flight has returned. After CancelSync returns, no further invocation of
// fn can start unless Schedule is called again.
func (t *Task) CancelSync() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.scheduled = false
	t.mu.Unlock()

	// Acquire-then-release drains any run that is already executing; it
	// cannot block forever because the only way to hold the semaphore is
	// a single in-flight fn invocation, which always releases.
	_ = t.sem.Acquire(context.Background(), 1)
	t.sem.Release(1)
}
