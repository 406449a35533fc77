// Package testutil provides host fixtures and golden-file helpers shared by
// the package tests.
package testutil

import (
	"testing"
	"time"

	"projd/internal/vfs"
)

// LibPath is where fixtures place the runtime library file.
const LibPath = "/a/lib/lib.d.ts"

// LibContent is a minimal runtime library.
const LibContent = `/// <reference no-default-lib="true"/>
interface Boolean {}
interface Function {}
interface IArguments {}
interface Number { toExponential: any; }
interface Object {}
interface RegExp {}
interface String { charAt: any; }
interface Array<T> { length: number; [n: number]: T; }
`

// Fixture is an in-memory host whose clock advances on every write, so
// modification times are strictly ordered.
type Fixture struct {
	t     testing.TB
	FS    *vfs.FS
	clock time.Time
}

// NewFixture creates a host holding files. Files are written in sorted
// path order.
func NewFixture(t testing.TB, caseSensitive bool, files map[string]string) *Fixture {
	t.Helper()

	f := &Fixture{
		t:     t,
		FS:    vfs.NewMem(caseSensitive),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, p := range SortedKeys(files) {
		f.Write(p, files[p])
	}
	return f
}

// Now returns the fixture clock.
func (f *Fixture) Now() time.Time { return f.clock }

// Tick advances the clock by one second and returns the new time.
func (f *Fixture) Tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

// Write creates or replaces a file, stamping it with the next tick.
func (f *Fixture) Write(path, content string) {
	f.t.Helper()
	if err := f.FS.WriteFile(path, []byte(content)); err != nil {
		f.t.Fatalf("write %s: %v", path, err)
	}
	f.Touch(path)
}

// Touch stamps path with the next tick.
func (f *Fixture) Touch(path string) {
	f.t.Helper()
	if err := f.FS.Chtimes(path, f.Tick()); err != nil {
		f.t.Fatalf("touch %s: %v", path, err)
	}
}

// Remove deletes path.
func (f *Fixture) Remove(path string) {
	f.t.Helper()
	if err := f.FS.Remove(path); err != nil {
		f.t.Fatalf("remove %s: %v", path, err)
	}
}

// Read returns the content of path or fails the test.
func (f *Fixture) Read(path string) string {
	f.t.Helper()
	data, err := f.FS.ReadFile(path)
	if err != nil {
		f.t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// Exists reports whether path is a file.
func (f *Fixture) Exists(path string) bool { return f.FS.FileExists(path) }
