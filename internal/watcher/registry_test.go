package watcher

import (
	"slices"
	"testing"
	"time"

	"projd/internal/runloop"
	"projd/internal/vfs"
)

type recorder struct {
	events []Event
}

func (r *recorder) cb(ev Event) { r.events = append(r.events, ev) }

func newTestRegistry(caseSensitive bool) (*Registry, *runloop.Queue) {
	q := runloop.New(nil)
	return NewRegistry(q, caseSensitive, nil), q
}

func TestWatchFile_DeliversOnNextTick(t *testing.T) {
	t.Parallel()

	reg, q := newTestRegistry(true)
	var rec recorder
	reg.WatchFile("/a/tsconfig.json", "p1", rec.cb)

	reg.Notify("/a/tsconfig.json", OpWrite)
	if len(rec.events) != 0 {
		t.Fatal("callback ran synchronously")
	}
	if q.Len() != 1 {
		t.Fatalf("queue length = %d, want 1", q.Len())
	}
	q.RunPending()
	if len(rec.events) != 1 || rec.events[0].Op != OpWrite {
		t.Fatalf("events = %+v", rec.events)
	}
}

func TestNotify_CoalescesPerPath(t *testing.T) {
	t.Parallel()

	reg, q := newTestRegistry(true)
	var rec recorder
	reg.WatchFile("/a/x.ts", "p1", rec.cb)

	reg.Notify("/a/x.ts", OpCreate)
	reg.Notify("/a/x.ts", OpWrite)
	reg.Notify("/a/x.ts", OpWrite)
	q.RunPending()

	if len(rec.events) != 1 {
		t.Fatalf("got %d events, want 1", len(rec.events))
	}
	if rec.events[0].Op != OpCreate|OpWrite {
		t.Errorf("op = %s", rec.events[0].Op)
	}
}

func TestNotify_IgnoresUnwatchedPaths(t *testing.T) {
	t.Parallel()

	reg, q := newTestRegistry(true)
	reg.WatchFile("/a/x.ts", "p1", func(Event) {})
	reg.Notify("/a/y.ts", OpWrite)
	if q.Len() != 0 {
		t.Errorf("queue length = %d, want 0", q.Len())
	}
}

func TestSubscription_RefCounting(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(true)
	s1 := reg.WatchFile("/a/x.ts", "p1", func(Event) {})
	s2 := reg.WatchFile("/a/x.ts", "p2", func(Event) {})

	if got := reg.RefCount("/a/x.ts", KindFile, false); got != 2 {
		t.Fatalf("refcount = %d, want 2", got)
	}
	if got := reg.WatchedFiles(); !slices.Equal(got, []string{"/a/x.ts"}) {
		t.Fatalf("watched files = %v", got)
	}

	s1.Close()
	s1.Close()
	if got := reg.RefCount("/a/x.ts", KindFile, false); got != 1 {
		t.Fatalf("refcount after close = %d, want 1", got)
	}
	s2.Close()
	if got := reg.WatchedFiles(); len(got) != 0 {
		t.Fatalf("watched files after close = %v", got)
	}
}

func TestSubscription_CloseSuppressesPending(t *testing.T) {
	t.Parallel()

	reg, q := newTestRegistry(true)
	var rec recorder
	sub := reg.WatchFile("/a/x.ts", "p1", rec.cb)

	reg.Notify("/a/x.ts", OpWrite)
	sub.Close()
	q.RunPending()

	if len(rec.events) != 0 {
		t.Errorf("closed subscription received %+v", rec.events)
	}
}

func TestSubscription_CloseDuringDispatch(t *testing.T) {
	t.Parallel()

	reg, q := newTestRegistry(true)
	var second recorder
	var s2 *Subscription
	reg.WatchFile("/a/x.ts", "p1", func(Event) { s2.Close() })
	s2 = reg.WatchFile("/a/x.ts", "p2", second.cb)

	reg.Notify("/a/x.ts", OpWrite)
	q.RunPending()

	if len(second.events) != 0 {
		t.Errorf("subscription closed mid-dispatch still received %+v", second.events)
	}
}

func TestWatchDirectory_Matching(t *testing.T) {
	t.Parallel()

	reg, q := newTestRegistry(true)
	var flat, deep recorder
	reg.WatchDirectory("/a", false, "p1", flat.cb)
	reg.WatchDirectory("/a", true, "p2", deep.cb)

	reg.Notify("/a/x.ts", OpCreate)
	reg.Notify("/a/b/c/y.ts", OpCreate)
	q.RunPending()

	if len(flat.events) != 1 || flat.events[0].Path != "/a/x.ts" {
		t.Errorf("flat events = %+v", flat.events)
	}
	if len(deep.events) != 2 {
		t.Errorf("recursive events = %+v", deep.events)
	}

	if got := reg.WatchedDirectories(true); !slices.Equal(got, []string{"/a"}) {
		t.Errorf("recursive dirs = %v", got)
	}
	if got := reg.WatchedDirectories(false); !slices.Equal(got, []string{"/a"}) {
		t.Errorf("flat dirs = %v", got)
	}
}

func TestCaseInsensitiveSharing(t *testing.T) {
	t.Parallel()

	reg, q := newTestRegistry(false)
	var rec recorder
	reg.WatchFile("/A/TsConfig.json", "p1", rec.cb)
	reg.WatchFile("/a/tsconfig.json", "p2", rec.cb)

	if got := reg.RefCount("/a/TSCONFIG.JSON", KindFile, false); got != 2 {
		t.Fatalf("refcount = %d, want 2", got)
	}
	reg.Notify("/a/tsconfig.JSON", OpWrite)
	q.RunPending()
	if len(rec.events) != 2 {
		t.Errorf("events = %+v", rec.events)
	}
}

func TestCloseOwner(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(true)
	reg.WatchFile("/a/x.ts", "p1", func(Event) {})
	reg.WatchDirectory("/a", true, "p1", func(Event) {})
	reg.WatchFile("/a/y.ts", "p2", func(Event) {})

	reg.CloseOwner("p1")
	if got := reg.WatchedFiles(); !slices.Equal(got, []string{"/a/y.ts"}) {
		t.Errorf("watched files = %v", got)
	}
	if got := reg.WatchedDirectories(true); len(got) != 0 {
		t.Errorf("recursive dirs = %v", got)
	}
}

type failingBackend struct{ NopBackend }

func (failingBackend) Add(string, bool, bool) error { return errFailing }

var errFailing = &backendError{"inotify limit reached"}

type backendError struct{ msg string }

func (e *backendError) Error() string { return e.msg }

func TestSetupFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	reg, q := newTestRegistry(true)
	reg.UseBackend(failingBackend{})

	var rec recorder
	reg.WatchFile("/a/x.ts", "p1", rec.cb)
	if reg.SetupFailures() != 1 {
		t.Fatalf("setup failures = %d, want 1", reg.SetupFailures())
	}
	reg.Notify("/a/x.ts", OpWrite)
	q.RunPending()
	if len(rec.events) != 1 {
		t.Errorf("events = %+v", rec.events)
	}
}

func TestCountsHook(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(true)
	var files, dirs int
	reg.OnCountsChanged(func(f, d int) { files, dirs = f, d })

	s := reg.WatchFile("/a/x.ts", "p1", func(Event) {})
	reg.WatchDirectory("/a", true, "p1", func(Event) {})
	if files != 1 || dirs != 1 {
		t.Fatalf("counts = %d/%d", files, dirs)
	}
	s.Close()
	if files != 0 {
		t.Errorf("files = %d after close", files)
	}
}

func TestPollBackend_Scan(t *testing.T) {
	t.Parallel()

	fs := vfs.NewMem(true)
	if err := fs.WriteFile("/p/a.ts", []byte("a")); err != nil {
		t.Fatal(err)
	}

	reg, q := newTestRegistry(true)
	b := NewPollBackend(fs, reg.Notify, time.Hour, nil)
	defer b.Close()
	reg.UseBackend(b)

	var cfg, dir recorder
	reg.WatchFile("/p/tsconfig.json", "p1", cfg.cb)
	reg.WatchDirectory("/p", true, "p1", dir.cb)

	if err := fs.WriteFile("/p/tsconfig.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteFile("/p/sub/b.ts", []byte("b")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Chtimes("/p/a.ts", time.Now().Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	b.Scan()
	q.RunPending()

	if len(cfg.events) != 1 || cfg.events[0].Op&OpCreate == 0 {
		t.Errorf("config events = %+v", cfg.events)
	}

	var seen []string
	for _, ev := range dir.events {
		seen = append(seen, ev.Path)
	}
	slices.Sort(seen)
	want := []string{"/p/a.ts", "/p/sub", "/p/sub/b.ts", "/p/tsconfig.json"}
	if !slices.Equal(seen, want) {
		t.Errorf("directory events = %v, want %v", seen, want)
	}

	b.Scan()
	q.RunPending()
	if len(cfg.events) != 1 {
		t.Errorf("steady-state scan produced events: %+v", cfg.events)
	}
}

func TestOpString(t *testing.T) {
	t.Parallel()

	if got := (OpCreate | OpRemove).String(); got != "create|remove" {
		t.Errorf("String() = %q", got)
	}
	if got := Op(0).String(); got != "none" {
		t.Errorf("String() = %q", got)
	}
}
