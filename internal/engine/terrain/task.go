package terrain

import "sync/atomic"

// Task is a handle to an outstanding asynchronous request (tile fetch or
// offloaded job). Cancelling a task guarantees its callback is never run.
type Task struct {
	cancelled atomic.Bool
	done      atomic.Bool
}

func newTask() *Task {
	return &Task{}
}

func completedTask() *Task {
	t := &Task{}
	t.done.Store(true)
	return t
}

// Cancel marks the task so a late completion is dropped.
func (t *Task) Cancel() {
	if t != nil {
		t.cancelled.Store(true)
	}
}

// Cancelled reports whether Cancel was called.
func (t *Task) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// Done reports whether the callback has run.
func (t *Task) Done() bool {
	return t != nil && t.done.Load()
}

// finish marks the task done and reports whether the callback should run.
func (t *Task) finish() bool {
	if t.cancelled.Load() {
		return false
	}
	t.done.Store(true)
	return true
}
