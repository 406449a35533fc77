package projconfig

import (
	"slices"
	"testing"

	"projd/internal/engine"
	"projd/internal/vfs"
)

func newFS(t *testing.T, caseSensitive bool, files map[string]string) *vfs.FS {
	t.Helper()
	fs := vfs.NewMem(caseSensitive)
	for p, content := range files {
		if err := fs.WriteFile(p, []byte(content)); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	return fs
}

func sameSet(a, b []string) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

func codes(diags []engine.Diagnostic) []int {
	var out []int
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

func TestLoad_IncludeFlat(t *testing.T) {
	t.Parallel()

	fs := newFS(t, true, map[string]string{
		"/a/b/tsconfig.json": `{ "compilerOptions": {}, "include": ["*.ts"] }`,
		"/a/b/f1.ts":         "let x = 1",
		"/a/b/f2.ts":         "let y = 1",
		"/a/b/c/f3.ts":       "let z = 1",
	})
	p := NewLoader(fs, nil).Load("/a/b/tsconfig.json")

	if len(p.Errors) != 0 {
		t.Fatalf("errors = %v", p.Errors)
	}
	if !sameSet(p.RootFiles, []string{"/a/b/f1.ts", "/a/b/f2.ts"}) {
		t.Errorf("root files = %v", p.RootFiles)
	}
	want := []WildcardDirectory{{Path: "/a/b", Recursive: false}}
	if !slices.Equal(p.WildcardDirectories, want) {
		t.Errorf("wildcard dirs = %v, want %v", p.WildcardDirectories, want)
	}
}

func TestLoad_DefaultIncludeWithExclude(t *testing.T) {
	t.Parallel()

	fs := newFS(t, true, map[string]string{
		"/a/b/tsconfig.json": `{
			"compilerOptions": {},
			"exclude": [
				"e"
			]
		}`,
		"/a/b/c/f1.ts":                 "let x = 1",
		"/a/b/d/f2.ts":                 "let y = 1",
		"/a/b/e/f3.ts":                 "let z = 1",
		"/a/b/node_modules/m/index.ts": "export {}",
	})
	p := NewLoader(fs, nil).Load("/a/b/tsconfig.json")

	if !sameSet(p.RootFiles, []string{"/a/b/c/f1.ts", "/a/b/d/f2.ts"}) {
		t.Errorf("root files = %v", p.RootFiles)
	}
	want := []WildcardDirectory{{Path: "/a/b", Recursive: true}}
	if !slices.Equal(p.WildcardDirectories, want) {
		t.Errorf("wildcard dirs = %v", p.WildcardDirectories)
	}
}

func TestLoad_PackageDirsSkippedByWildcards(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config string
		want   []string
	}{
		{
			name:   "explicit exclude",
			config: `{"exclude": ["dist"]}`,
			want:   []string{"/p/src/a.ts"},
		},
		{
			name:   "explicit include",
			config: `{"include": ["**/*"], "exclude": []}`,
			want:   []string{"/p/src/a.ts"},
		},
		{
			name:   "pattern names the package dir",
			config: `{"include": ["src/**/*", "node_modules/**/*"], "exclude": []}`,
			want:   []string{"/p/src/a.ts", "/p/node_modules/m/index.ts"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := newFS(t, true, map[string]string{
				"/p/tsconfig.json":               tt.config,
				"/p/src/a.ts":                    "",
				"/p/node_modules/m/index.ts":     "",
				"/p/src/bower_components/b/x.ts": "",
				"/p/jspm_packages/j/y.ts":        "",
			})
			p := NewLoader(fs, nil).Load("/p/tsconfig.json")
			if !sameSet(p.RootFiles, tt.want) {
				t.Errorf("root files = %v, want %v", p.RootFiles, tt.want)
			}
			if got := p.MatchesSpec("/p/node_modules/m/other.ts"); got != (len(tt.want) == 2) {
				t.Errorf("MatchesSpec(node_modules) = %v", got)
			}
		})
	}
}

func TestLoad_GlobMetaInConfigDir(t *testing.T) {
	t.Parallel()

	for _, dir := range []string{"/w/[app]", "/w/{x,y}", "/w/what?", "/w/a*b"} {
		t.Run(dir, func(t *testing.T) {
			t.Parallel()

			fs := newFS(t, true, map[string]string{
				dir + "/tsconfig.json": `{"include": ["src/**/*"], "exclude": ["src/gen"]}`,
				dir + "/src/a.ts":      "",
				dir + "/src/gen/b.ts":  "",
			})
			p := NewLoader(fs, nil).Load(dir + "/tsconfig.json")
			if want := []string{dir + "/src/a.ts"}; !slices.Equal(p.RootFiles, want) {
				t.Errorf("root files = %v, want %v", p.RootFiles, want)
			}
			if !p.MatchesSpec(dir + "/src/new.ts") {
				t.Error("new source file should match")
			}
			if p.MatchesSpec(dir + "/src/gen/c.ts") {
				t.Error("excluded file should not match")
			}
			want := []WildcardDirectory{{Path: dir + "/src", Recursive: true}}
			if !slices.Equal(p.WildcardDirectories, want) {
				t.Errorf("wildcard dirs = %v", p.WildcardDirectories)
			}
		})
	}
}

func TestLoad_DefaultExcludesNodeModules(t *testing.T) {
	t.Parallel()

	fs := newFS(t, true, map[string]string{
		"/p/tsconfig.json":           `{}`,
		"/p/a.ts":                    "",
		"/p/node_modules/x/index.ts": "",
		"/p/out/a.ts":                "",
	})
	p := NewLoader(fs, nil).Load("/p/tsconfig.json")
	if !slices.Equal(p.RootFiles, []string{"/p/a.ts", "/p/out/a.ts"}) {
		t.Errorf("root files = %v", p.RootFiles)
	}

	fs = newFS(t, true, map[string]string{
		"/p/tsconfig.json": `{"compilerOptions": {"outDir": "out"}}`,
		"/p/a.ts":          "",
		"/p/out/a.ts":      "",
	})
	p = NewLoader(fs, nil).Load("/p/tsconfig.json")
	if !slices.Equal(p.RootFiles, []string{"/p/a.ts"}) {
		t.Errorf("root files with outDir = %v", p.RootFiles)
	}
	if p.Options.OutDir != "/p/out" {
		t.Errorf("outDir = %q", p.Options.OutDir)
	}
}

func TestLoad_ToleratesMissingIncludeTargets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  string
		path    string
		wantDir bool
	}{
		{
			name:   "nonexistent directories",
			path:   "/a/b/tsconfig.json",
			config: `{"compilerOptions": {}, "include": ["app/*", "test/**/*", "something"]}`,
		},
		{
			name:   "pattern escaping into a missing sibling",
			path:   "/user/username/projects/myproject/src/server/tsconfig.json",
			config: `{"compiler": {"module": "commonjs", "outDir": "../../build"}, "include": ["../src/**/*.ts"]}`,
		},
		{
			name:   "trailing double star",
			path:   "/a/b/tsconfig.json",
			config: `{"include": ["src/**"]}`,
		},
		{
			name:   "empty files",
			path:   "/a/tsconfig.json",
			config: `{"compiler": {}, "files": []}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := newFS(t, true, map[string]string{
				tt.path:                                    tt.config,
				"/a/b/file1.ts":                            "let t = 10;",
				"/a/app.ts":                                "let x = 1",
				"/user/username/projects/myproject/src/server/index.ts": "let x = 1",
			})
			p := NewLoader(fs, nil).Load(tt.path)
			if len(p.Errors) != 0 {
				t.Errorf("errors = %v", p.Errors)
			}
			if len(p.RootFiles) != 0 {
				t.Errorf("root files = %v", p.RootFiles)
			}
		})
	}
}

func TestLoad_Diagnostics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config string
		want   []int
	}{
		{"invalid json", `{"include": [}`, []int{engine.CodeJSONParse}},
		{"unknown option", `{"compilerOptions": {"frobnicate": true}}`, []int{engine.CodeUnknownOption}},
		{"wrong option type", `{"compilerOptions": {"composite": "yes"}}`, []int{engine.CodeOptionType}},
		{"missing file", `{"files": ["missing.ts"]}`, []int{engine.CodeFileNotFound}},
		{"missing base", `{"extends": "./base"}`, []int{engine.CodeCannotReadExtended}},
		{"comments and trailing commas", `{
			// line comment
			"compilerOptions": { /* block */ "composite": true, },
			"include": ["*.ts",],
		}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := newFS(t, true, map[string]string{
				"/p/tsconfig.json": tt.config,
				"/p/a.ts":          "",
			})
			p := NewLoader(fs, nil).Load("/p/tsconfig.json")
			if got := codes(p.Errors); !slices.Equal(got, tt.want) {
				t.Errorf("codes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoad_UnknownOptionPosition(t *testing.T) {
	t.Parallel()

	fs := newFS(t, true, map[string]string{
		"/p/tsconfig.json": "{\n  \"compilerOptions\": {\n    \"bogus\": 1\n  }\n}",
	})
	p := NewLoader(fs, nil).Load("/p/tsconfig.json")
	if len(p.Errors) != 1 {
		t.Fatalf("errors = %v", p.Errors)
	}
	d := p.Errors[0]
	if d.File != "/p/tsconfig.json" || d.Start == nil || d.Start.Line != 3 || d.Start.Offset != 5 {
		t.Errorf("diagnostic = %+v", d)
	}
}

func TestLoad_Extends(t *testing.T) {
	t.Parallel()

	fs := newFS(t, true, map[string]string{
		"/p/base/tsconfig.base.json": `{"compilerOptions": {"composite": true, "outDir": "dist"}, "include": ["../src/*.ts"]}`,
		"/p/app/tsconfig.json":       `{"extends": "../base/tsconfig.base", "compilerOptions": {"declarationMap": true}}`,
		"/p/src/a.ts":                    "",
		"/p/app/ignored.ts":          "",
	})
	p := NewLoader(fs, nil).Load("/p/app/tsconfig.json")

	if len(p.Errors) != 0 {
		t.Fatalf("errors = %v", p.Errors)
	}
	if !p.Options.Composite || !p.Options.DeclarationMap {
		t.Errorf("options not merged: %+v", p.Options)
	}
	if p.Options.OutDir != "/p/base/dist" {
		t.Errorf("outDir = %q, want resolved against the base", p.Options.OutDir)
	}
	if !slices.Equal(p.RootFiles, []string{"/p/src/a.ts"}) {
		t.Errorf("root files = %v", p.RootFiles)
	}
	if !slices.Equal(p.Extends, []string{"/p/base/tsconfig.base.json"}) {
		t.Errorf("extends = %v", p.Extends)
	}
}

func TestLoad_References(t *testing.T) {
	t.Parallel()

	fs := newFS(t, true, map[string]string{
		"/c/tsconfig.json": `{"files": [], "include": [], "references": [{"path": "./exec"}, {"path": "./lib/tsconfig.json", "prepend": true}]}`,
	})
	p := NewLoader(fs, nil).Load("/c/tsconfig.json")

	want := []Reference{
		{Path: "/c/exec/tsconfig.json"},
		{Path: "/c/lib/tsconfig.json", Prepend: true},
	}
	if !slices.Equal(p.References, want) {
		t.Errorf("references = %v", p.References)
	}
	if len(p.RootFiles) != 0 || len(p.WildcardDirectories) != 0 {
		t.Errorf("container config resolved files %v dirs %v", p.RootFiles, p.WildcardDirectories)
	}
}

func TestLoad_ExtensionPriority(t *testing.T) {
	t.Parallel()

	fs := newFS(t, true, map[string]string{
		"/p/tsconfig.json": `{"compilerOptions": {"allowJs": true}}`,
		"/p/a.ts":          "",
		"/p/a.d.ts":        "",
		"/p/a.js":          "",
		"/p/b.d.ts":        "",
		"/p/c.js":          "",
		"/p/d.json":        "",
	})
	p := NewLoader(fs, nil).Load("/p/tsconfig.json")
	if !sameSet(p.RootFiles, []string{"/p/a.ts", "/p/b.d.ts", "/p/c.js"}) {
		t.Errorf("root files = %v", p.RootFiles)
	}
}

func TestLoad_LiteralDirectoryInclude(t *testing.T) {
	t.Parallel()

	fs := newFS(t, true, map[string]string{
		"/p/tsconfig.json": `{"include": ["src"]}`,
		"/p/src/a.ts":                    "",
		"/p/src/x/b.ts":    "",
		"/p/other.ts":      "",
	})
	p := NewLoader(fs, nil).Load("/p/tsconfig.json")
	if !slices.Equal(p.RootFiles, []string{"/p/src/a.ts", "/p/src/x/b.ts"}) {
		t.Errorf("root files = %v", p.RootFiles)
	}
	if want := []WildcardDirectory{{Path: "/p/src", Recursive: true}}; !slices.Equal(p.WildcardDirectories, want) {
		t.Errorf("wildcard dirs = %v", p.WildcardDirectories)
	}
}

func TestWildcardDirectoriesCollapse(t *testing.T) {
	t.Parallel()

	var include []glob
	for _, pat := range []string{"/p/*.ts", "/p/**/*.ts", "/p/src/*.ts", "/q/*/x.ts", "/r/**"} {
		include = append(include, newGlob("/", pat))
	}
	got := wildcardDirectories(include, true)
	want := []WildcardDirectory{
		{Path: "/p", Recursive: true},
		{Path: "/q", Recursive: true},
	}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMatchesSpec(t *testing.T) {
	t.Parallel()

	fs := newFS(t, false, map[string]string{
		"/p/tsconfig.json": `{"files": ["extra/x.ts"], "include": ["src/**/*"], "exclude": ["src/gen"]}`,
		"/p/src/a.ts":                    "",
		"/p/extra/x.ts":    "",
	})
	p := NewLoader(fs, nil).Load("/p/tsconfig.json")

	tests := []struct {
		path string
		want bool
	}{
		{"/p/src/new.ts", true},
		{"/P/SRC/deep/new.TS", true},
		{"/p/src/gen/out.ts", false},
		{"/p/src/readme.md", false},
		{"/p/other/a.ts", false},
		{"/p/EXTRA/x.ts", true},
	}
	for _, tt := range tests {
		if got := p.MatchesSpec(tt.path); got != tt.want {
			t.Errorf("MatchesSpec(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestFindConfig(t *testing.T) {
	t.Parallel()

	fs := newFS(t, false, map[string]string{
		"/a/tsconfig.json":   "{}",
		"/a/b/jsconfig.json": "{}",
		"/a/b/c/d.ts":        "",
	})
	l := NewLoader(fs, nil)

	got, ok := l.FindConfig("/A/B/c")
	if !ok || got != "/A/B/jsconfig.json" {
		t.Errorf("FindConfig = %q, %v", got, ok)
	}
	if _, ok := NewLoader(newFS(t, true, nil), nil).FindConfig("/x/y"); ok {
		t.Error("found a config in an empty tree")
	}

	want := []string{"/a/b/tsconfig.json", "/a/b/jsconfig.json", "/a/tsconfig.json", "/a/jsconfig.json", "/tsconfig.json", "/jsconfig.json"}
	if got := CandidatePaths("/a/b"); !slices.Equal(got, want) {
		t.Errorf("CandidatePaths = %v", got)
	}
}

func TestLoad_JSConfigAllowsJS(t *testing.T) {
	t.Parallel()

	fs := newFS(t, true, map[string]string{
		"/p/jsconfig.json": `{}`,
		"/p/a.js":          "",
	})
	p := NewLoader(fs, nil).Load("/p/jsconfig.json")
	if !slices.Equal(p.RootFiles, []string{"/p/a.js"}) {
		t.Errorf("root files = %v", p.RootFiles)
	}
}

func TestLoad_MissingConfig(t *testing.T) {
	t.Parallel()

	p := NewLoader(newFS(t, true, nil), nil).Load("/none/tsconfig.json")
	if p.Exists {
		t.Error("Exists = true for a missing file")
	}
	if got := codes(p.Errors); !slices.Equal(got, []int{engine.CodeFileNotFound}) {
		t.Errorf("codes = %v", got)
	}
}

func TestIsConfigFile(t *testing.T) {
	t.Parallel()

	for p, want := range map[string]bool{
		"/a/tsconfig.json": true,
		"/A/TSCONFIG.JSON": true,
		"/a/jsconfig.json": true,
		"/a/package.json":  false,
		"/a/x.ts":          false,
	} {
		if got := IsConfigFile(p); got != want {
			t.Errorf("IsConfigFile(%q) = %v", p, got)
		}
	}
}
