package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"projd/internal/config"
	"projd/internal/project"
	"projd/internal/service"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigInitThenShow(t *testing.T) {
	dir := t.TempDir()

	if _, err := execute(t, "config", "init", "--root", dir); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := execute(t, "config", "init", "--root", dir); err == nil {
		t.Fatal("expected second init to refuse overwriting")
	}

	out, err := execute(t, "config", "show", "--root", dir, "--format", "json")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("show output is not JSON: %v\n%s", err, out)
	}
	if cfg.Watch.Backend != config.DefaultConfig().Watch.Backend {
		t.Errorf("watch backend = %q, want default", cfg.Watch.Backend)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "projd version ") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestWriteProjectsHuman(t *testing.T) {
	resp := &ProjectsResponse{
		Files: []FileEntry{
			{File: "/a/src/x.ts", Projects: []project.Ref{{Name: "/a/tsconfig.json", Kind: "configured"}}},
			{File: "/b/loose.ts"},
		},
		Projects: []service.ProjectInfo{
			{Name: "/a/tsconfig.json", Kind: "configured", RootFiles: []string{"/a/src/x.ts"}, ActualFiles: []string{"/a/src/x.ts", "/lib.d.ts"}},
		},
	}
	var buf bytes.Buffer
	writeProjectsHuman(&buf, resp)
	out := buf.String()

	for _, want := range []string{
		"→ /a/tsconfig.json",
		"→ (none)",
		"[configured] /a/tsconfig.json",
		"roots: 1  files: 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAbsPath(t *testing.T) {
	got := absPath("/tmp/../tmp/x.ts")
	if got != "/tmp/x.ts" {
		t.Errorf("absPath = %q, want /tmp/x.ts", got)
	}
}
