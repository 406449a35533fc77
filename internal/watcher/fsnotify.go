package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"projd/internal/paths"
)

// recursiveIgnores are never descended into by recursive watches.
var recursiveIgnores = []string{
	"**/.git",
	"**/.git/**",
}

// FSNotifyBackend watches the real file system with fsnotify. File watches
// are installed on the parent directory so that creation of a file that
// does not exist yet is observed; missing parents fall back to the nearest
// existing ancestor.
type FSNotifyBackend struct {
	fsw    *fsnotify.Watcher
	notify Notifier
	logger *slog.Logger

	mu        sync.Mutex
	dirs      map[string]int
	recursive map[string]int
	done      chan struct{}
}

// NewFSNotifyBackend starts an fsnotify watcher delivering to notify.
func NewFSNotifyBackend(notify Notifier, logger *slog.Logger) (*FSNotifyBackend, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}
	b := &FSNotifyBackend{
		fsw:       fsw,
		notify:    notify,
		logger:    logger,
		dirs:      make(map[string]int),
		recursive: make(map[string]int),
		done:      make(chan struct{}),
	}
	go b.loop()
	return b, nil
}

func (b *FSNotifyBackend) loop() {
	defer close(b.done)
	for {
		select {
		case evt, ok := <-b.fsw.Events:
			if !ok {
				return
			}
			op := translateOp(evt.Op)
			if op == 0 {
				continue
			}
			name := filepath.ToSlash(evt.Name)
			if evt.Has(fsnotify.Create) {
				b.maybeAddDir(name)
			}
			b.notify(name, op)
		case err, ok := <-b.fsw.Errors:
			if !ok {
				return
			}
			b.logger.Warn("fsnotify error", "error", err.Error())
		}
	}
}

func translateOp(op fsnotify.Op) Op {
	var out Op
	if op.Has(fsnotify.Create) {
		out |= OpCreate
	}
	if op.Has(fsnotify.Write) {
		out |= OpWrite
	}
	if op.Has(fsnotify.Remove) {
		out |= OpRemove
	}
	if op.Has(fsnotify.Rename) {
		out |= OpRename
	}
	return out
}

// Add implements Backend.
func (b *FSNotifyBackend) Add(path string, isDir, recursive bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	target := path
	if !isDir {
		target = paths.Dir(path)
	}
	target = nearestExisting(target)
	if err := b.addDirLocked(target); err != nil {
		return err
	}
	if recursive {
		b.recursive[path]++
		return b.addTreeLocked(path)
	}
	return nil
}

// Remove implements Backend.
func (b *FSNotifyBackend) Remove(path string, isDir, recursive bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	target := path
	if !isDir {
		target = paths.Dir(path)
	}
	if recursive {
		if b.recursive[path]--; b.recursive[path] <= 0 {
			delete(b.recursive, path)
		}
	}
	return b.releaseDirLocked(nearestExisting(target))
}

func (b *FSNotifyBackend) addDirLocked(dir string) error {
	if b.dirs[dir] > 0 {
		b.dirs[dir]++
		return nil
	}
	if err := b.fsw.Add(dir); err != nil {
		return fmt.Errorf("watcher: add %q: %w", dir, err)
	}
	b.dirs[dir] = 1
	return nil
}

func (b *FSNotifyBackend) releaseDirLocked(dir string) error {
	n, ok := b.dirs[dir]
	if !ok {
		return nil
	}
	if n > 1 {
		b.dirs[dir] = n - 1
		return nil
	}
	delete(b.dirs, dir)
	return b.fsw.Remove(dir)
}

func (b *FSNotifyBackend) addTreeLocked(root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable subtrees are skipped
		}
		if !d.IsDir() || p == root {
			return nil
		}
		slashed := filepath.ToSlash(p)
		if ignoredDir(slashed) {
			return filepath.SkipDir
		}
		if _, watched := b.dirs[slashed]; watched {
			return nil
		}
		if addErr := b.fsw.Add(p); addErr != nil {
			b.logger.Debug("Skipping unwatchable directory", "path", slashed, "error", addErr.Error())
			return nil
		}
		b.dirs[slashed] = 1
		return nil
	})
}

// maybeAddDir extends recursive watches to directories created later.
func (b *FSNotifyBackend) maybeAddDir(p string) {
	info, err := os.Stat(p)
	if err != nil || !info.IsDir() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for root := range b.recursive {
		if paths.Contains(root, p, true) {
			if _, watched := b.dirs[p]; !watched {
				if err := b.fsw.Add(p); err == nil {
					b.dirs[p] = 1
				}
			}
			_ = b.addTreeLocked(p)
			return
		}
	}
}

func ignoredDir(p string) bool {
	for _, pat := range recursiveIgnores {
		if ok, err := doublestar.Match(pat, p); err == nil && ok {
			return true
		}
	}
	return false
}

func nearestExisting(dir string) string {
	for _, d := range paths.Ancestors(dir) {
		if info, err := os.Stat(d); err == nil && info.IsDir() {
			return d
		}
	}
	return "/"
}

// Close stops the event loop.
func (b *FSNotifyBackend) Close() error {
	err := b.fsw.Close()
	<-b.done
	return err
}
