package manifest

import (
	"slices"
	"testing"

	"projd/internal/errors"
	"projd/internal/testutil"
)

const tomlManifest = `
[[projects]]
projectFileName = "app.csproj"
rootFiles = ["src/a.ts", "/abs/b.ts"]

[projects.options]
outDir = "out"
declaration = true
types = []

[[projects]]
projectFileName = "lib.csproj"
rootFiles = ["lib/tsconfig.json"]
`

const yamlManifest = `
projects:
  - projectFileName: app.csproj
    rootFiles:
      - src/a.ts
      - /abs/b.ts
    options:
      outDir: out
      declaration: true
      types: []
  - projectFileName: lib.csproj
    rootFiles: [lib/tsconfig.json]
`

const jsonManifest = `{
  // external projects
  "projects": [
    {
      "projectFileName": "app.csproj",
      "rootFiles": ["src/a.ts", "/abs/b.ts"],
      "options": {"outDir": "out", "declaration": true, "types": []},
    },
    {"projectFileName": "lib.csproj", "rootFiles": ["lib/tsconfig.json"]}
  ]
}`

func TestLoad_AllFormats(t *testing.T) {
	tests := []struct {
		path    string
		content string
	}{
		{path: "/w/projects.toml", content: tomlManifest},
		{path: "/w/projects.yaml", content: yamlManifest},
		{path: "/w/projects.yml", content: yamlManifest},
		{path: "/w/projects.json", content: jsonManifest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			fx := testutil.NewFixture(t, true, map[string]string{tt.path: tt.content})
			m, err := Load(fx.FS, tt.path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			descs := m.Descriptors()
			if len(descs) != 2 {
				t.Fatalf("descriptors = %+v", descs)
			}

			app := descs[0]
			if app.ProjectFileName != "/w/app.csproj" {
				t.Errorf("projectFileName = %q", app.ProjectFileName)
			}
			if !slices.Equal(app.RootFiles, []string{"/w/src/a.ts", "/abs/b.ts"}) {
				t.Errorf("rootFiles = %v", app.RootFiles)
			}
			if app.Options.OutDir != "out" || !app.Options.Declaration {
				t.Errorf("options = %+v", app.Options)
			}
			if !app.Options.HasTypes || len(app.Options.Types) != 0 {
				t.Errorf("empty types list not kept: %+v", app.Options)
			}

			lib := descs[1]
			if !slices.Equal(lib.RootFiles, []string{"/w/lib/tsconfig.json"}) {
				t.Errorf("lib rootFiles = %v", lib.RootFiles)
			}
			if lib.Options.HasTypes {
				t.Error("lib should not restrict types")
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	fx := testutil.NewFixture(t, true, map[string]string{
		"/w/bad.toml":     "[[projects]\n",
		"/w/noname.yaml":  "projects:\n  - rootFiles: [a.ts]\n",
		"/w/projects.ini": "[projects]",
	})
	for _, path := range []string{"/w/bad.toml", "/w/noname.yaml", "/w/projects.ini", "/w/missing.json"} {
		if _, err := Load(fx.FS, path); !errors.Is(err, errors.InvalidRequest) {
			t.Errorf("Load(%s): err = %v, want INVALID_REQUEST", path, err)
		}
	}
}

func TestFormatOf(t *testing.T) {
	tests := map[string]Format{
		"a.toml":  FormatTOML,
		"a.YAML":  FormatYAML,
		"a.yml":   FormatYAML,
		"a.json":  FormatJSON,
		"a.jsonc": FormatJSON,
	}
	for path, want := range tests {
		if got, ok := FormatOf(path); !ok || got != want {
			t.Errorf("FormatOf(%q) = %q, %v", path, got, ok)
		}
	}
	if _, ok := FormatOf("a.txt"); ok {
		t.Error("FormatOf(a.txt) should fail")
	}
}
