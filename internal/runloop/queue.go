// Package runloop provides the deferred task queue that serializes every
// mutation of the project graph. Callers schedule named tasks; a task
// scheduled again while pending is replaced and moved to the back of the
// queue, so a burst of identical requests collapses into one execution on
// the next tick.
package runloop

import (
	"log/slog"
	"sync"

	"projd/internal/slogutil"
)

type task struct {
	name      string
	fn        func()
	cancelled bool
}

// Queue is a FIFO of deferred tasks drained by a single coordinating loop.
// Scheduling is safe from any goroutine; tasks run on the draining goroutine.
type Queue struct {
	mu     sync.Mutex
	tasks  []*task
	named  map[string]*task
	wake   chan struct{}
	logger *slog.Logger
}

// New creates an empty queue.
func New(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Queue{
		named:  make(map[string]*task),
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

// Schedule queues fn under name, replacing any pending task with that name.
func (q *Queue) Schedule(name string, fn func()) {
	q.mu.Lock()
	if old, ok := q.named[name]; ok {
		old.cancelled = true
	}
	t := &task{name: name, fn: fn}
	q.named[name] = t
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	q.logger.Debug("Task scheduled", "task", name)
	q.signal()
}

// Post queues an anonymous task that never coalesces.
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, &task{fn: fn})
	q.mu.Unlock()
	q.signal()
}

// Cancel drops a pending named task. It reports whether one was pending.
func (q *Queue) Cancel(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.named[name]
	if !ok {
		return false
	}
	t.cancelled = true
	delete(q.named, name)
	return true
}

// Has reports whether a task with the given name is pending.
func (q *Queue) Has(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.named[name]
	return ok
}

// Len returns the number of live pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, t := range q.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Pending returns the names of live pending tasks in run order. Anonymous
// tasks are reported as empty strings.
func (q *Queue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	names := make([]string, 0, len(q.tasks))
	for _, t := range q.tasks {
		if !t.cancelled {
			names = append(names, t.name)
		}
	}
	return names
}

// RunPending runs the tasks that were pending when it was called. Tasks
// scheduled while it runs wait for the next call. It returns the number of
// tasks executed.
func (q *Queue) RunPending() int {
	q.mu.Lock()
	batch := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	ran := 0
	for _, t := range batch {
		q.mu.Lock()
		if t.cancelled {
			q.mu.Unlock()
			continue
		}
		if t.name != "" && q.named[t.name] == t {
			delete(q.named, t.name)
		}
		q.mu.Unlock()

		t.fn()
		ran++
	}
	if ran > 0 {
		q.logger.Debug("Queue tick", "ran", ran)
	}
	return ran
}

// Drain runs ticks until the queue is empty or maxTicks ticks have run.
// maxTicks <= 0 means no limit.
func (q *Queue) Drain(maxTicks int) int {
	total := 0
	for ticks := 0; maxTicks <= 0 || ticks < maxTicks; ticks++ {
		n := q.RunPending()
		if n == 0 && q.Len() == 0 {
			break
		}
		total += n
	}
	return total
}

// Wake is signalled whenever a task is queued.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
