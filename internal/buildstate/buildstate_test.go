package buildstate

import (
	"context"
	"testing"

	"projd/internal/storage"
	"projd/internal/testutil"
)

func newStore(t *testing.T, files map[string]string) (*Store, *testutil.Fixture) {
	t.Helper()
	fx := testutil.NewFixture(t, true, files)
	s, err := OpenMemory(fx.FS, nil)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, fx
}

func TestHashFile(t *testing.T) {
	fx := testutil.NewFixture(t, true, map[string]string{
		"/a/x.ts": "export const x = 1;",
		"/a/y.ts": "export const x = 1;",
		"/a/z.ts": "export const x = 2;",
	})
	hx, err := HashFile(fx.FS, "/a/x.ts")
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if len(hx) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(hx))
	}
	hy, _ := HashFile(fx.FS, "/a/y.ts")
	hz, _ := HashFile(fx.FS, "/a/z.ts")
	if hx != hy {
		t.Error("identical contents hash differently")
	}
	if hx == hz {
		t.Error("different contents hash the same")
	}
	if _, err := HashFile(fx.FS, "/a/missing.ts"); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s, fx := newStore(t, map[string]string{
		"/p/tsconfig.json": "{}",
		"/p/a.ts":          "export const a = 1;",
	})

	if _, ok, err := s.Get("/p/tsconfig.json"); err != nil || ok {
		t.Fatalf("Get before Put = ok %v, err %v", ok, err)
	}

	rec := Record{
		ConfigPath: "/p/tsconfig.json",
		BuiltAt:    fx.Now(),
		ErrorCount: 2,
		Inputs:     s.Snapshot([]string{"/p/tsconfig.json", "/p/a.ts", "/p/a.ts", "/p/missing.ts"}),
		Outputs:    []string{"/p/a.js", "/p/a.d.ts"},
	}
	if len(rec.Inputs) != 2 {
		t.Fatalf("Snapshot kept %d inputs, want 2", len(rec.Inputs))
	}
	if err := s.Put(rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Get("/p/tsconfig.json")
	if err != nil || !ok {
		t.Fatalf("Get = ok %v, err %v", ok, err)
	}
	if got.ErrorCount != 2 || !got.BuiltAt.Equal(fx.Now()) {
		t.Errorf("record = %+v", got)
	}
	testutil.AssertSameSet(t, "outputs", got.Outputs, rec.Outputs)
	if len(got.Inputs) != 2 {
		t.Errorf("inputs = %d, want 2", len(got.Inputs))
	}

	nodes, err := s.Nodes()
	if err != nil {
		t.Fatalf("Nodes: %v", err)
	}
	testutil.AssertSameSet(t, "nodes", nodes, []string{"/p/tsconfig.json"})

	if err := s.Delete("/p/tsconfig.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get("/p/tsconfig.json"); ok {
		t.Error("record survived Delete")
	}
}

func TestChanged(t *testing.T) {
	s, fx := newStore(t, map[string]string{
		"/p/a.ts": "export const a = 1;",
		"/p/b.ts": "export const b = 1;",
		"/p/c.ts": "export const c = 1;",
	})
	inputs := []string{"/p/a.ts", "/p/b.ts"}
	rec := &Record{ConfigPath: "/p/tsconfig.json", Inputs: s.Snapshot(inputs)}

	if got := s.Changed(rec, inputs); len(got) != 0 {
		t.Fatalf("Changed on fresh snapshot = %v", got)
	}

	// Touching without editing keeps the hash.
	fx.Touch("/p/a.ts")
	if got := s.Changed(rec, inputs); len(got) != 0 {
		t.Errorf("Changed after touch = %v, want none", got)
	}

	fx.Write("/p/b.ts", "export const b = 2;")
	testutil.AssertSameSet(t, "edited", s.Changed(rec, inputs), []string{"/p/b.ts"})

	testutil.AssertSameSet(t, "added and removed",
		s.Changed(rec, []string{"/p/a.ts", "/p/c.ts"}),
		[]string{"/p/b.ts", "/p/c.ts"})

	fx.Remove("/p/a.ts")
	testutil.AssertSameSet(t, "deleted", s.Changed(rec, []string{"/p/a.ts"}), []string{"/p/a.ts", "/p/b.ts"})
}

func TestPut_ShrinksInputsOnDisk(t *testing.T) {
	fx := testutil.NewFixture(t, true, map[string]string{
		"/a/x.ts": "export const x = 1;",
		"/a/y.ts": "export const y = 1;",
	})
	db, err := storage.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer db.Close()
	s := New(db, fx.FS, nil)

	rec := Record{ConfigPath: "/a/tsconfig.json", BuiltAt: fx.Now(), Inputs: s.Snapshot([]string{"/a/x.ts", "/a/y.ts"})}
	if err := s.Put(rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Hold connections so later writes run on fresh pooled ones.
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		c, err := db.Conn().Conn(ctx)
		if err != nil {
			t.Fatalf("conn: %v", err)
		}
		defer c.Close()
	}

	inputs := []string{"/a/x.ts"}
	rec.Inputs = s.Snapshot(inputs)
	for i := 0; i < 5; i++ {
		if err := s.Put(rec); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}

	got, ok, err := s.Get("/a/tsconfig.json")
	if err != nil || !ok {
		t.Fatalf("Get = ok %v, err %v", ok, err)
	}
	if len(got.Inputs) != 1 {
		t.Errorf("inputs = %v, want only /a/x.ts", got.Inputs)
	}
	if changed := s.Changed(got, inputs); len(changed) != 0 {
		t.Errorf("Changed = %v, want none", changed)
	}

	if err := s.Delete("/a/tsconfig.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var rows int
	if err := db.QueryRow("SELECT COUNT(*) FROM build_inputs").Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 0 {
		t.Errorf("build_inputs rows after Delete = %d, want 0", rows)
	}
}
