// Package watcher implements the file-system watch abstraction used by the
// project service. Subscriptions are reference counted per canonical path so
// that any number of projects watching the same file share one backend
// watch. Raw change notifications are merged per path and delivered on the
// next tick of the owning run loop, never re-entrantly.
package watcher

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"projd/internal/paths"
	"projd/internal/runloop"
	"projd/internal/slogutil"
)

// Op is a bit set of change kinds.
type Op uint8

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
)

// String lists the set bits, e.g. "create|write".
func (o Op) String() string {
	var parts []string
	for _, p := range []struct {
		op   Op
		name string
	}{{OpCreate, "create"}, {OpWrite, "write"}, {OpRemove, "remove"}, {OpRename, "rename"}} {
		if o&p.op != 0 {
			parts = append(parts, p.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Event is one coalesced change delivered to a subscriber.
type Event struct {
	Path string
	Op   Op
}

// Callback receives events on the run-loop goroutine.
type Callback func(Event)

// Kind distinguishes file and directory subscriptions.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

type entry struct {
	key       string
	path      string
	canon     string
	kind      Kind
	recursive bool
	subs      []*Subscription
}

// Subscription is a disposable handle returned by WatchFile and
// WatchDirectory. It stores only an opaque owner identifier.
type Subscription struct {
	reg    *Registry
	entry  *entry
	owner  string
	cb     Callback
	closed bool
}

// Owner returns the identifier the subscription was registered with.
func (s *Subscription) Owner() string { return s.owner }

// Path returns the watched path.
func (s *Subscription) Path() string { return s.entry.path }

// Close disposes the subscription. Pending, undelivered events for it are
// suppressed. Closing twice is a no-op.
func (s *Subscription) Close() {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	s.reg.closeLocked(s)
}

// Registry owns every watch subscription.
type Registry struct {
	mu            sync.Mutex
	caseSensitive bool
	queue         *runloop.Queue
	backend       Backend
	logger        *slog.Logger

	entries map[string]*entry
	order   []*entry
	pending map[string]*Event

	setupFailures int
	onChange      func(files, dirs int)
}

// NewRegistry creates a registry that schedules dispatch on queue. The
// backend starts as NopBackend; install a real one with UseBackend.
func NewRegistry(queue *runloop.Queue, caseSensitive bool, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Registry{
		caseSensitive: caseSensitive,
		queue:         queue,
		backend:       NopBackend{},
		logger:        logger,
		entries:       make(map[string]*entry),
		pending:       make(map[string]*Event),
	}
}

// UseBackend installs b and registers every existing watch with it.
func (r *Registry) UseBackend(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.backend = b
	for _, e := range r.order {
		r.addToBackendLocked(e)
	}
}

// OnCountsChanged registers a hook invoked with the number of file and
// directory watches whenever the set changes.
func (r *Registry) OnCountsChanged(fn func(files, dirs int)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// WatchFile subscribes cb to changes of a single file.
func (r *Registry) WatchFile(path, owner string, cb Callback) *Subscription {
	return r.subscribe(path, KindFile, false, owner, cb)
}

// WatchDirectory subscribes cb to changes of entries inside dir, optionally
// at any depth.
func (r *Registry) WatchDirectory(dir string, recursive bool, owner string, cb Callback) *Subscription {
	return r.subscribe(dir, KindDirectory, recursive, owner, cb)
}

func (r *Registry) subscribe(path string, kind Kind, recursive bool, owner string, cb Callback) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	canon := paths.Canonical(path, r.caseSensitive)
	key := entryKey(canon, kind, recursive)
	e, ok := r.entries[key]
	if !ok {
		e = &entry{
			key:       key,
			path:      paths.Normalize(path),
			canon:     canon,
			kind:      kind,
			recursive: recursive,
		}
		r.entries[key] = e
		r.order = append(r.order, e)
		r.addToBackendLocked(e)
		r.countsChangedLocked()
	}

	s := &Subscription{reg: r, entry: e, owner: owner, cb: cb}
	e.subs = append(e.subs, s)
	return s
}

func (r *Registry) addToBackendLocked(e *entry) {
	if err := r.backend.Add(e.path, e.kind == KindDirectory, e.recursive); err != nil {
		r.setupFailures++
		r.logger.Warn("Watch setup failed; automatic reload degraded",
			"path", e.path,
			"error", err.Error(),
		)
	}
}

func (r *Registry) closeLocked(s *Subscription) {
	if s.closed {
		return
	}
	s.closed = true

	e := s.entry
	for i, sub := range e.subs {
		if sub == s {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			break
		}
	}
	if len(e.subs) > 0 {
		return
	}

	delete(r.entries, e.key)
	for i, other := range r.order {
		if other == e {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if err := r.backend.Remove(e.path, e.kind == KindDirectory, e.recursive); err != nil {
		r.logger.Debug("Watch removal failed", "path", e.path, "error", err.Error())
	}
	r.countsChangedLocked()
}

// CloseOwner disposes every subscription registered by owner.
func (r *Registry) CloseOwner(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var victims []*Subscription
	for _, e := range r.order {
		for _, s := range e.subs {
			if s.owner == owner {
				victims = append(victims, s)
			}
		}
	}
	for _, s := range victims {
		r.closeLocked(s)
	}
}

// Notify records a raw change. It may be called from any goroutine.
// Changes to the same path are merged until the next dispatch tick.
func (r *Registry) Notify(path string, op Op) {
	r.mu.Lock()
	canon := paths.Canonical(path, r.caseSensitive)
	if !r.interestedLocked(canon) {
		r.mu.Unlock()
		return
	}
	if ev, ok := r.pending[canon]; ok {
		ev.Op |= op
		r.mu.Unlock()
		return
	}
	r.pending[canon] = &Event{Path: paths.Normalize(path), Op: op}
	r.mu.Unlock()

	r.queue.Schedule("watch:"+canon, func() { r.dispatch(canon) })
}

func (r *Registry) interestedLocked(canon string) bool {
	for _, e := range r.order {
		if e.matches(canon, r.caseSensitive) {
			return true
		}
	}
	return false
}

func (e *entry) matches(canon string, caseSensitive bool) bool {
	if e.kind == KindFile {
		return e.canon == canon
	}
	if e.canon == canon {
		return true
	}
	if e.recursive {
		return paths.Contains(e.canon, canon, caseSensitive)
	}
	return paths.Dir(canon) == e.canon
}

func (r *Registry) dispatch(canon string) {
	r.mu.Lock()
	ev, ok := r.pending[canon]
	delete(r.pending, canon)
	if !ok {
		r.mu.Unlock()
		return
	}
	var targets []*Subscription
	for _, e := range r.order {
		if e.matches(canon, r.caseSensitive) {
			targets = append(targets, e.subs...)
		}
	}
	r.mu.Unlock()

	r.logger.Debug("Watch event", "path", ev.Path, "op", ev.Op.String(), "subscribers", len(targets))
	for _, s := range targets {
		r.mu.Lock()
		closed := s.closed
		r.mu.Unlock()
		if closed {
			continue
		}
		s.cb(*ev)
	}
}

// WatchedFiles returns the watched file paths, sorted.
func (r *Registry) WatchedFiles() []string {
	return r.list(func(e *entry) bool { return e.kind == KindFile })
}

// WatchedDirectories returns the watched directories with the given
// recursion flag, sorted.
func (r *Registry) WatchedDirectories(recursive bool) []string {
	return r.list(func(e *entry) bool { return e.kind == KindDirectory && e.recursive == recursive })
}

func (r *Registry) list(keep func(*entry) bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, e := range r.order {
		if keep(e) {
			out = append(out, e.path)
		}
	}
	sort.Strings(out)
	return out
}

// RefCount returns the number of live subscriptions sharing a watch.
func (r *Registry) RefCount(path string, kind Kind, recursive bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[entryKey(paths.Canonical(path, r.caseSensitive), kind, recursive)]
	if !ok {
		return 0
	}
	return len(e.subs)
}

// SetupFailures returns how many backend watches could not be installed.
func (r *Registry) SetupFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setupFailures
}

// Close shuts the backend down.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.Close()
}

func (r *Registry) countsChangedLocked() {
	if r.onChange == nil {
		return
	}
	files, dirs := 0, 0
	for _, e := range r.order {
		if e.kind == KindFile {
			files++
		} else {
			dirs++
		}
	}
	r.onChange(files, dirs)
}

func entryKey(canon string, kind Kind, recursive bool) string {
	switch {
	case kind == KindFile:
		return "f:" + canon
	case recursive:
		return "r:" + canon
	default:
		return "d:" + canon
	}
}
