package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"projd/internal/vfs"
)

const defaultPollInterval = 500 * time.Millisecond

func msToDuration(ms int) time.Duration {
	if ms <= 0 {
		return defaultPollInterval
	}
	return time.Duration(ms) * time.Millisecond
}

type stamp struct {
	exists bool
	mod    time.Time
}

type polled struct {
	isDir     bool
	recursive bool
	refs      int
	self      stamp
	children  map[string]stamp
}

// PollBackend detects changes by periodically comparing modification times.
// It works on any vfs.FS, including in-memory ones.
type PollBackend struct {
	fs       *vfs.FS
	notify   Notifier
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	targets map[string]*polled
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewPollBackend starts polling fs every interval.
func NewPollBackend(fs *vfs.FS, notify Notifier, interval time.Duration, logger *slog.Logger) *PollBackend {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	b := &PollBackend{
		fs:       fs,
		notify:   notify,
		interval: interval,
		logger:   logger,
		targets:  make(map[string]*polled),
		stopCh:   make(chan struct{}),
	}
	b.wg.Add(1)
	go b.loop()
	return b
}

func (b *PollBackend) loop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.Scan()
		case <-b.stopCh:
			return
		}
	}
}

func pollKey(path string, isDir, recursive bool) string {
	if isDir {
		return entryKey(path, KindDirectory, recursive)
	}
	return entryKey(path, KindFile, false)
}

// Add implements Backend.
func (b *PollBackend) Add(path string, isDir, recursive bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := pollKey(path, isDir, recursive)
	if t, ok := b.targets[key]; ok {
		t.refs++
		return nil
	}
	t := &polled{isDir: isDir, recursive: recursive, refs: 1}
	t.self, t.children = b.capture(path, isDir, recursive)
	b.targets[key] = t
	return nil
}

// Remove implements Backend.
func (b *PollBackend) Remove(path string, isDir, recursive bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := pollKey(path, isDir, recursive)
	if t, ok := b.targets[key]; ok {
		if t.refs--; t.refs <= 0 {
			delete(b.targets, key)
		}
	}
	return nil
}

func (b *PollBackend) capture(path string, isDir, recursive bool) (stamp, map[string]stamp) {
	var self stamp
	self.mod, self.exists = b.fs.ModTime(path)
	if !isDir || !b.fs.DirExists(path) {
		return self, nil
	}

	children := make(map[string]stamp)
	if recursive {
		_ = b.fs.Walk(path, func(p string, _ bool) error {
			if p == path {
				return nil
			}
			mod, _ := b.fs.ModTime(p)
			children[p] = stamp{exists: true, mod: mod}
			return nil
		})
		return self, children
	}
	entries, err := b.fs.ReadDir(path)
	if err != nil {
		return self, children
	}
	for _, e := range entries {
		p := path + "/" + e.Name
		if path == "/" {
			p = "/" + e.Name
		}
		mod, _ := b.fs.ModTime(p)
		children[p] = stamp{exists: true, mod: mod}
	}
	return self, children
}

// Scan compares every target with its last snapshot and reports changes.
func (b *PollBackend) Scan() {
	type change struct {
		path string
		op   Op
	}
	var changes []change

	b.mu.Lock()
	keys := make([]string, 0, len(b.targets))
	for k := range b.targets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		t := b.targets[key]
		path := key[2:]
		self, children := b.capture(path, t.isDir, t.recursive)

		switch {
		case self.exists && !t.self.exists:
			changes = append(changes, change{path, OpCreate})
		case !self.exists && t.self.exists:
			changes = append(changes, change{path, OpRemove})
		case !t.isDir && self.exists && !self.mod.Equal(t.self.mod):
			changes = append(changes, change{path, OpWrite})
		}

		for p, s := range children {
			old, ok := t.children[p]
			switch {
			case !ok:
				changes = append(changes, change{p, OpCreate})
			case !s.mod.Equal(old.mod):
				changes = append(changes, change{p, OpWrite})
			}
		}
		for p := range t.children {
			if _, ok := children[p]; !ok {
				changes = append(changes, change{p, OpRemove})
			}
		}
		t.self, t.children = self, children
	}
	b.mu.Unlock()

	sort.SliceStable(changes, func(i, j int) bool { return changes[i].path < changes[j].path })
	for _, c := range changes {
		b.notify(c.path, c.op)
	}
}

// Close stops polling.
func (b *PollBackend) Close() error {
	b.once.Do(func() { close(b.stopCh) })
	b.wg.Wait()
	return nil
}
