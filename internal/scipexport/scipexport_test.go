package scipexport

import (
	"context"
	"slices"
	"testing"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"

	"projd/internal/engine"
	"projd/internal/errors"
	"projd/internal/testutil"
)

func newExporter(t *testing.T, files map[string]string) (*Exporter, *testutil.Fixture) {
	t.Helper()
	fx := testutil.NewFixture(t, true, files)
	return New(fx.FS, engine.NewLite(fx.FS, nil), nil, testutil.LibPath, nil), fx
}

func TestIndexProject(t *testing.T) {
	e, fx := newExporter(t, map[string]string{
		testutil.LibPath:   testutil.LibContent,
		"/p/tsconfig.json": `{}`,
		"/p/src/greet.ts":  "export function greet() {}\ngreet();\nexport class Greeter {}\n",
	})

	idx, err := e.IndexProject(context.Background(), "/p/tsconfig.json")
	if err != nil {
		t.Fatalf("IndexProject: %v", err)
	}
	if idx.Metadata.ProjectRoot != "file:///p" || idx.Metadata.ToolInfo.Name != "projd" {
		t.Errorf("metadata = %+v", idx.Metadata)
	}
	if len(idx.Documents) != 1 {
		t.Fatalf("documents = %d, want 1", len(idx.Documents))
	}
	doc := idx.Documents[0]
	if doc.RelativePath != "src/greet.ts" || doc.Language != "TypeScript" {
		t.Errorf("document = %s (%s)", doc.RelativePath, doc.Language)
	}

	greet := "projd . . . src/`greet.ts`/greet()."
	greeter := "projd . . . src/`greet.ts`/Greeter#"
	var symbols []string
	for _, s := range doc.Symbols {
		symbols = append(symbols, s.Symbol)
	}
	testutil.AssertSameSet(t, "symbols", symbols, []string{greet, greeter})

	var defs, refs int
	for _, occ := range doc.Occurrences {
		if occ.Symbol != greet {
			continue
		}
		if occ.SymbolRoles&int32(scippb.SymbolRole_Definition) != 0 {
			defs++
			if !slices.Equal(occ.Range, []int32{0, 16, 21}) {
				t.Errorf("definition range = %v", occ.Range)
			}
		} else {
			refs++
			if !slices.Equal(occ.Range, []int32{1, 0, 5}) {
				t.Errorf("reference range = %v", occ.Range)
			}
		}
	}
	if defs != 1 || refs != 1 {
		t.Errorf("greet occurrences: %d definitions, %d references", defs, refs)
	}

	if err := WriteFile(fx.FS, "/p/index.scip", idx); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := fx.FS.ReadFile("/p/index.scip")
	if err != nil {
		t.Fatal(err)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(back.Documents) != 1 || len(back.Documents[0].Occurrences) != len(doc.Occurrences) {
		t.Errorf("decoded index differs: %+v", back.Documents)
	}
}

func TestWriteFile_Compressed(t *testing.T) {
	e, fx := newExporter(t, map[string]string{
		testutil.LibPath:   testutil.LibContent,
		"/p/tsconfig.json": `{}`,
		"/p/a.ts":          "export const a = 1;\n",
	})
	idx, err := e.IndexProject(context.Background(), "/p/tsconfig.json")
	if err != nil {
		t.Fatalf("IndexProject: %v", err)
	}

	if err := WriteFile(fx.FS, "/p/index.scip.zst", idx); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	raw, err := fx.FS.ReadFile("/p/index.scip.zst")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(raw); err == nil {
		plain, _ := Marshal(idx)
		if slices.Equal(raw, plain) {
			t.Fatal("index was written uncompressed")
		}
	}

	back, err := ReadFile(fx.FS, "/p/index.scip.zst")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(back.Documents) != 1 || back.Documents[0].RelativePath != "a.ts" {
		t.Errorf("decoded documents = %+v", back.Documents)
	}
}

func TestIndexProject_NamespaceMembers(t *testing.T) {
	e, _ := newExporter(t, testutil.ContainerFiles())
	idx, err := e.IndexProject(context.Background(), testutil.ContainerLibConfig)
	if err != nil {
		t.Fatalf("IndexProject: %v", err)
	}
	if len(idx.Documents) != 1 {
		t.Fatalf("documents = %d", len(idx.Documents))
	}
	kinds := map[string]scippb.SymbolInformation_Kind{}
	for _, s := range idx.Documents[0].Symbols {
		kinds[s.Symbol] = s.Kind
	}
	if kinds["projd . . . `index.ts`/container/"] != scippb.SymbolInformation_Namespace {
		t.Errorf("namespace symbol missing: %v", kinds)
	}
	if kinds["projd . . . `index.ts`/container/myConst."] != scippb.SymbolInformation_Variable {
		t.Errorf("member symbol missing: %v", kinds)
	}
}

func TestIndexProject_MissingConfig(t *testing.T) {
	e, _ := newExporter(t, map[string]string{})
	if _, err := e.IndexProject(context.Background(), "/none/tsconfig.json"); !errors.Is(err, errors.ProjectNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestSymbolIDEscaping(t *testing.T) {
	tests := []struct {
		rel  string
		sym  engine.Symbol
		want string
	}{
		{"a.ts", engine.Symbol{Name: "x", Qualified: "x", Kind: engine.KindVariable}, "projd . . . `a.ts`/x."},
		{"dir/b.ts", engine.Symbol{Name: "T", Qualified: "ns.T", Kind: engine.KindInterface}, "projd . . . dir/`b.ts`/ns/T#"},
		{"c.ts", engine.Symbol{Name: "f", Kind: engine.KindFunction}, "projd . . . `c.ts`/f()."},
		{"my dir/d.ts", engine.Symbol{Name: "m", Qualified: "m", Kind: engine.KindModule}, "projd . . . `my dir`/`d.ts`/m/"},
	}
	for _, tt := range tests {
		if got := SymbolID(tt.rel, tt.sym); got != tt.want {
			t.Errorf("SymbolID(%q, %s) = %q, want %q", tt.rel, tt.sym.Name, got, tt.want)
		}
	}
}
