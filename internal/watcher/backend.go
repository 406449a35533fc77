package watcher

import (
	"fmt"

	"projd/internal/vfs"
)

// Notifier receives raw change notifications from a backend.
type Notifier func(path string, op Op)

// Backend installs OS-level (or simulated) watches. Add and Remove are
// called once per distinct watch, not once per subscription.
type Backend interface {
	Add(path string, isDir, recursive bool) error
	Remove(path string, isDir, recursive bool) error
	Close() error
}

// NopBackend installs nothing. Changes reach the registry only through
// explicit Notify calls.
type NopBackend struct{}

func (NopBackend) Add(string, bool, bool) error    { return nil }
func (NopBackend) Remove(string, bool, bool) error { return nil }
func (NopBackend) Close() error                    { return nil }

// Backend names accepted by NewBackend.
const (
	BackendFSNotify = "fsnotify"
	BackendPoll     = "poll"
	BackendNone     = "none"
)

// BackendOptions configures NewBackend.
type BackendOptions struct {
	Name         string
	PollInterval int // milliseconds
}

// NewBackend builds the backend named in opts, delivering changes to reg.
func NewBackend(reg *Registry, opts BackendOptions, fs *vfs.FS) (Backend, error) {
	switch opts.Name {
	case "", BackendFSNotify:
		return NewFSNotifyBackend(reg.Notify, reg.logger)
	case BackendPoll:
		return NewPollBackend(fs, reg.Notify, msToDuration(opts.PollInterval), reg.logger), nil
	case BackendNone:
		return NopBackend{}, nil
	default:
		return nil, fmt.Errorf("watcher: unknown backend %q", opts.Name)
	}
}
