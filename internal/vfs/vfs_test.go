package vfs

import (
	"slices"
	"testing"
	"time"
)

func TestCaseInsensitiveLookup(t *testing.T) {
	f := NewMem(false)
	if err := f.WriteFile("/a/b/tsconfig.json", []byte("{}")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if !f.FileExists("/A/B/tsconfig.json") {
		t.Error("expected case-folded lookup to find the config")
	}
	if got := f.RealPath("/A/B/TSCONFIG.json"); got != "/a/b/tsconfig.json" {
		t.Errorf("RealPath = %q, want on-disk spelling", got)
	}
	if !f.DirExists("/A") {
		t.Error("expected /A to resolve to /a")
	}
}

func TestCaseSensitiveLookup(t *testing.T) {
	f := NewMem(true)
	if err := f.WriteFile("/a/b/tsconfig.json", []byte("{}")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if f.FileExists("/A/B/tsconfig.json") {
		t.Error("case-sensitive host must not fold case")
	}
	if got := f.RealPath("/A/b"); got != "/A/b" {
		t.Errorf("RealPath of missing path = %q", got)
	}
}

func TestWriteKeepsExistingSpelling(t *testing.T) {
	f := NewMem(false)
	_ = f.WriteFile("/dep/FnS.ts", []byte("a"))
	_ = f.WriteFile("/dep/fns.ts", []byte("b"))

	entries, err := f.ReadDir("/dep")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "FnS.ts" {
		t.Fatalf("entries = %+v, want single FnS.ts", entries)
	}
	data, _ := f.ReadFile("/DEP/FNS.TS")
	if string(data) != "b" {
		t.Errorf("content = %q, want b", data)
	}
}

func TestWalk(t *testing.T) {
	f := NewMem(true)
	for _, p := range []string{"/p/a.ts", "/p/sub/b.ts", "/p/node_modules/x/index.d.ts"} {
		_ = f.WriteFile(p, nil)
	}

	var files []string
	err := f.Walk("/p", func(p string, isDir bool) error {
		if isDir && p == "/p/node_modules" {
			return SkipDir
		}
		if !isDir {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := []string{"/p/a.ts", "/p/sub/b.ts"}
	if !slices.Equal(files, want) {
		t.Errorf("files = %v, want %v", files, want)
	}
}

func TestModTimeAndChtimes(t *testing.T) {
	f := NewMem(true)
	_ = f.WriteFile("/x.ts", nil)
	ts := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := f.Chtimes("/x.ts", ts); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	got, ok := f.ModTime("/x.ts")
	if !ok || !got.Equal(ts) {
		t.Errorf("ModTime = %v, %v", got, ok)
	}
	if _, ok := f.ModTime("/missing.ts"); ok {
		t.Error("missing file should have no mod time")
	}
}
