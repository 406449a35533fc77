package engine

import (
	"context"
	"slices"
	"strings"
	"testing"

	"projd/internal/declmap"
	"projd/internal/testutil"
)

func loadProgram(t *testing.T, fx *testutil.Fixture, opts ProgramOptions) Program {
	t.Helper()
	prog, err := NewLite(fx.FS, nil).LoadProgram(context.Background(), opts)
	if err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	return prog
}

func emitTo(t *testing.T, fx *testutil.Fixture, prog Program) map[string]string {
	t.Helper()
	res, err := prog.Emit()
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	out := make(map[string]string)
	for _, o := range res.Outputs {
		fx.Write(o.Path, o.Text)
		out[o.Path] = o.Text
	}
	return out
}

func diagCodes(diags []Diagnostic) []int {
	var out []int
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

const (
	fnsProject = "/user/username/projects/myproject"
	fnsDep     = fnsProject + "/dependency"
	fnsMain    = fnsProject + "/main"
)

func fnsFixture(t *testing.T) *testutil.Fixture {
	return testutil.NewFixture(t, false, map[string]string{
		fnsDep + "/FnS.ts": `export function fn1() { }
export function fn2() { }
export function fn3() { }
export function fn4() { }
export function fn5() { }`,
		fnsMain + "/main.ts": `import {
    fn1, fn2, fn3, fn4, fn5
} from '../dependency/fns'

fn1();
fn2();
fn3();
fn4();
fn5();`,
		testutil.LibPath: testutil.LibContent,
	})
}

var fnsOptions = CompilerOptions{Composite: true, DeclarationMap: true}

func fnsMainOptions() ProgramOptions {
	return ProgramOptions{
		RootFiles: []string{fnsMain + "/main.ts"},
		Options:   fnsOptions,
		ConfigDir: fnsMain,
		LibFile:   testutil.LibPath,
		References: []Reference{{
			ConfigPath: fnsDep + "/tsconfig.json",
			ConfigDir:  fnsDep,
			RootFiles:  []string{fnsDep + "/FnS.ts"},
			Options:    fnsOptions,
		}},
	}
}

func TestDefinition_ThroughReferencedDeclaration(t *testing.T) {
	t.Parallel()

	fx := fnsFixture(t)
	dep := loadProgram(t, fx, ProgramOptions{
		RootFiles: []string{fnsDep + "/FnS.ts"},
		Options:   fnsOptions,
		ConfigDir: fnsDep,
		LibFile:   testutil.LibPath,
	})
	outputs := emitTo(t, fx, dep)
	dts, ok := outputs[fnsDep+"/FnS.d.ts"]
	if !ok {
		t.Fatalf("outputs = %v", testutil.SortedKeys(outputs))
	}
	if !strings.HasPrefix(dts, "export declare function fn1(): void;\n") {
		t.Fatalf("declaration output:\n%s", dts)
	}
	if _, ok := outputs[fnsDep+"/FnS.d.ts.map"]; !ok {
		t.Fatal("declaration map not emitted")
	}

	prog := loadProgram(t, fx, fnsMainOptions())
	testutil.AssertSameSet(t, "files", prog.Files(), []string{
		fnsMain + "/main.ts", testutil.LibPath, fnsDep + "/fns.d.ts",
	})
	if diags := prog.SemanticDiagnostics(fnsMain + "/main.ts"); len(diags) != 0 {
		t.Fatalf("semantic diagnostics = %v", diags)
	}

	for i := 0; i < 5; i++ {
		info, err := prog.Definition(fnsMain+"/main.ts", Position{Line: i + 5, Offset: 1})
		if err != nil {
			t.Fatalf("Definition: %v", err)
		}
		if len(info.Definitions) != 1 {
			t.Fatalf("line %d: definitions = %+v", i+5, info.Definitions)
		}
		def := info.Definitions[0]
		want := Location{File: fnsDep + "/fns.d.ts", Start: Position{i + 1, 25}, End: Position{i + 1, 28}}
		if def != want {
			t.Errorf("line %d: definition = %+v, want %+v", i+5, def, want)
		}
		wantSpan := TextSpan{Start: Position{i + 5, 1}, End: Position{i + 5, 4}}
		if info.TextSpan != wantSpan {
			t.Errorf("line %d: text span = %+v, want %+v", i+5, info.TextSpan, wantSpan)
		}

		mapPath, ok := declmap.FindURL(def.File, fx.Read(def.File))
		if !ok {
			t.Fatal("sourceMappingURL missing")
		}
		m, err := declmap.Parse([]byte(fx.Read(mapPath)))
		if err != nil {
			t.Fatalf("Parse map: %v", err)
		}
		seg, ok := m.Lookup(def.Start.Line-1, def.Start.Offset-1)
		if !ok || seg.Line != i || seg.Column != 16 {
			t.Errorf("line %d: mapping = %+v, %v", i+5, seg, ok)
		}
		if src := m.SourcePath(mapPath, seg.Source); src != fnsDep+"/FnS.ts" {
			t.Errorf("source = %s", src)
		}
	}
}

func TestLoadProgram_UnbuiltReference(t *testing.T) {
	t.Parallel()

	fx := fnsFixture(t)
	prog := loadProgram(t, fx, fnsMainOptions())

	testutil.AssertSameSet(t, "files", prog.Files(), []string{fnsMain + "/main.ts", testutil.LibPath})
	got := diagCodes(prog.SemanticDiagnostics(fnsMain + "/main.ts"))
	if !slices.Equal(got, []int{CodeOutputNotBuilt}) {
		t.Errorf("semantic codes = %v, want [%d]", got, CodeOutputNotBuilt)
	}
}

const (
	containerLib  = "/user/username/projects/container/lib"
	containerComp = "/user/username/projects/container/compositeExec"
	containerOut  = "/user/username/projects/container/built/local"
)

func TestReferences_AcrossPrependedBundle(t *testing.T) {
	t.Parallel()

	fx := testutil.NewFixture(t, true, map[string]string{
		containerLib + "/index.ts": "namespace container {\n    export const myConst = 30;\n}\n",
		containerComp + "/index.ts": "namespace container {\n    export function getMyConst() {\n        return myConst;\n    }\n}\n",
		testutil.LibPath:           testutil.LibContent,
	})
	libOptions := CompilerOptions{OutFile: containerOut + "/lib.js", Composite: true, DeclarationMap: true}
	lib := loadProgram(t, fx, ProgramOptions{
		RootFiles: []string{containerLib + "/index.ts"},
		Options:   libOptions,
		ConfigDir: containerLib,
		LibFile:   testutil.LibPath,
	})
	outputs := emitTo(t, fx, lib)
	wantDTS := "declare namespace container {\n    const myConst = 30;\n}\n//# sourceMappingURL=lib.d.ts.map"
	if got := outputs[containerOut+"/lib.d.ts"]; got != wantDTS {
		t.Fatalf("lib.d.ts =\n%s\nwant\n%s", got, wantDTS)
	}

	comp := loadProgram(t, fx, ProgramOptions{
		RootFiles: []string{containerComp + "/index.ts"},
		Options:   CompilerOptions{OutFile: containerOut + "/compositeExec.js", Composite: true, DeclarationMap: true},
		ConfigDir: containerComp,
		LibFile:   testutil.LibPath,
		References: []Reference{{
			ConfigPath: containerLib + "/tsconfig.json",
			ConfigDir:  containerLib,
			RootFiles:  []string{containerLib + "/index.ts"},
			Options:    libOptions,
			Prepend:    true,
		}},
	})
	testutil.AssertSameSet(t, "files", comp.Files(), []string{
		containerComp + "/index.ts", containerOut + "/lib.d.ts", testutil.LibPath,
	})
	if d := comp.OptionsDiagnostics(); len(d) != 0 {
		t.Errorf("options diagnostics = %v", d)
	}
	for _, f := range comp.Files() {
		if d := comp.SyntacticDiagnostics(f); len(d) != 0 {
			t.Errorf("syntactic diagnostics for %s = %v", f, d)
		}
		if d := comp.SemanticDiagnostics(f); len(d) != 0 {
			t.Errorf("semantic diagnostics for %s = %v", f, d)
		}
	}

	locs, err := comp.References(containerComp+"/index.ts", Position{Line: 3, Offset: 16})
	if err != nil {
		t.Fatalf("References: %v", err)
	}
	want := []Location{
		{File: containerComp + "/index.ts", Start: Position{3, 16}, End: Position{3, 23}},
		{File: containerOut + "/lib.d.ts", Start: Position{2, 11}, End: Position{2, 18}},
	}
	if !sameLocations(locs, want) {
		t.Errorf("references = %+v, want %+v", locs, want)
	}

	bundle := emitTo(t, fx, comp)
	dts := bundle[containerOut+"/compositeExec.d.ts"]
	if !strings.HasPrefix(dts, "declare namespace container {\n    const myConst = 30;\n}\ndeclare namespace container {\n    function getMyConst(): any;\n}\n") {
		t.Fatalf("compositeExec.d.ts =\n%s", dts)
	}
	m, err := declmap.Parse([]byte(bundle[containerOut+"/compositeExec.d.ts.map"]))
	if err != nil {
		t.Fatalf("Parse map: %v", err)
	}
	seg, ok := m.Lookup(1, 10)
	if !ok {
		t.Fatal("no mapping for prepended myConst")
	}
	if src := m.SourcePath(containerOut+"/compositeExec.d.ts.map", seg.Source); src != containerLib+"/index.ts" || seg.Line != 1 || seg.Column != 17 {
		t.Errorf("prepended mapping = %+v in %s", seg, src)
	}
}

func sameLocations(got, want []Location) bool {
	key := func(l Location) string {
		return l.File + ":" + l.Start.String() + "-" + l.End.String()
	}
	var a, b []string
	for _, l := range got {
		a = append(a, key(l))
	}
	for _, l := range want {
		b = append(b, key(l))
	}
	return testutil.SameSet(a, b)
}

func TestOptionsDiagnostics_References(t *testing.T) {
	t.Parallel()

	fx := testutil.NewFixture(t, true, map[string]string{
		"/p/app/index.ts": "export const a = 1;\n",
	})
	plain := Reference{ConfigPath: "/p/lib/tsconfig.json", ConfigDir: "/p/lib", Options: CompilerOptions{}}
	missing := Reference{ConfigPath: "/p/gone/tsconfig.json", ConfigDir: "/p/gone", Missing: true}

	tests := []struct {
		name  string
		roots []string
		refs  []Reference
		want  []int
	}{
		{"non composite", []string{"/p/app/index.ts"}, []Reference{plain}, []int{CodeReferenceNotComposite}},
		{"container skips composite check", nil, []Reference{plain}, nil},
		{"missing reference", []string{"/p/app/index.ts"}, []Reference{missing}, []int{CodeFileNotFound}},
		{"missing root", []string{"/p/app/absent.ts"}, nil, []int{CodeFileNotFound}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := loadProgram(t, fx, ProgramOptions{RootFiles: tt.roots, References: tt.refs, ConfigDir: "/p/app"})
			if got := diagCodes(prog.OptionsDiagnostics()); !slices.Equal(got, tt.want) {
				t.Errorf("codes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadProgram_ContainerHasNoFiles(t *testing.T) {
	t.Parallel()

	fx := testutil.NewFixture(t, true, map[string]string{testutil.LibPath: testutil.LibContent})
	prog := loadProgram(t, fx, ProgramOptions{LibFile: testutil.LibPath, ConfigDir: "/c"})
	if files := prog.Files(); len(files) != 0 {
		t.Errorf("files = %v", files)
	}
	res, err := prog.Emit()
	if err != nil || len(res.Outputs) != 0 {
		t.Errorf("emit = %+v, %v", res, err)
	}
}

func TestSemanticDiagnostics_Modules(t *testing.T) {
	t.Parallel()

	fx := testutil.NewFixture(t, true, map[string]string{
		"/p/main.ts": "import { missing, present } from \"./util\";\nimport { x } from \"./nowhere\";\nimport pkg from \"pkg\";\n",
		"/p/util.ts": "export const present = 1;\n",
		"/p/node_modules/pkg/package.json":    `{"name":"pkg","types":"lib/index.d.ts"}`,
		"/p/node_modules/pkg/lib/index.d.ts":  "declare const value: number;\nexport default value;\n",
		"/p/node_modules/@types/node/index.d.ts": "declare var process: any;\n",
	})
	prog := loadProgram(t, fx, ProgramOptions{RootFiles: []string{"/p/main.ts"}, ConfigDir: "/p"})

	testutil.AssertSameSet(t, "files", prog.Files(), []string{
		"/p/main.ts", "/p/util.ts", "/p/node_modules/pkg/lib/index.d.ts", "/p/node_modules/@types/node/index.d.ts",
	})
	got := diagCodes(prog.SemanticDiagnostics("/p/main.ts"))
	if !slices.Equal(got, []int{CodeCannotFindModule, CodeNoExportedMember}) {
		t.Errorf("codes = %v", got)
	}

	restricted := loadProgram(t, fx, ProgramOptions{
		RootFiles: []string{"/p/main.ts"},
		ConfigDir: "/p",
		Options:   CompilerOptions{HasTypes: true},
	})
	for _, f := range restricted.Files() {
		if strings.Contains(f, "@types") {
			t.Errorf("types: [] still included %s", f)
		}
	}
}

func TestDefinition_ScopesAndImports(t *testing.T) {
	t.Parallel()

	fx := testutil.NewFixture(t, true, map[string]string{
		"/p/a.ts": "export function helper() { return 1; }\nexport * from \"./b\";\n",
		"/p/b.ts": "export class Thing {}\n",
		"/p/main.ts": `import * as a from "./a";
import { helper as h, Thing } from "./a";
const value = 1;
function shadow(value: number) {
    return value + h();
}
a.helper();
new Thing();
`,
	})
	prog := loadProgram(t, fx, ProgramOptions{RootFiles: []string{"/p/main.ts"}, ConfigDir: "/p"})

	tests := []struct {
		name string
		pos  Position
		want Location
	}{
		{"parameter shadows const", Position{5, 12}, Location{File: "/p/main.ts", Start: Position{4, 17}, End: Position{4, 22}}},
		{"renamed import", Position{5, 20}, Location{File: "/p/a.ts", Start: Position{1, 17}, End: Position{1, 23}}},
		{"namespace import member", Position{7, 3}, Location{File: "/p/a.ts", Start: Position{1, 17}, End: Position{1, 23}}},
		{"export star chain", Position{8, 5}, Location{File: "/p/b.ts", Start: Position{1, 14}, End: Position{1, 19}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := prog.Definition("/p/main.ts", tt.pos)
			if err != nil {
				t.Fatalf("Definition: %v", err)
			}
			if len(info.Definitions) != 1 || info.Definitions[0] != tt.want {
				t.Errorf("definitions = %+v, want %+v", info.Definitions, tt.want)
			}
		})
	}

	if _, err := prog.Definition("/p/other.ts", Position{1, 1}); err == nil {
		t.Error("definition outside the program did not fail")
	}
}

func TestEmit_ModuleDeclaration(t *testing.T) {
	t.Parallel()

	fx := testutil.NewFixture(t, true, map[string]string{
		"/p/base.ts": "export class Base {}\n",
		"/p/shapes.ts": `import { Base } from "./base";
export interface Shape { area(): number; }
export class Circle extends Base implements Shape {
    private r: number;
    constructor(r: number) { super(); this.r = r; }
    area(): number { return 3 * this.r; }
}
export const unit = 1;
export let count = 0;
export type Id = string | number
export function scale(x: number, by = 2) { return x * by; }
function hidden() {}
export default Circle;
`,
	})
	prog := loadProgram(t, fx, ProgramOptions{
		RootFiles: []string{"/p/shapes.ts"},
		ConfigDir: "/p",
		Options:   CompilerOptions{Declaration: true, OutDir: "/p/out"},
	})
	res, err := prog.Emit()
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	var dts string
	for _, o := range res.Outputs {
		if o.Path == "/p/out/shapes.d.ts" {
			dts = o.Text
		}
	}
	testutil.CompareGolden(t, "module_declaration", dts)
}

func TestSymbols(t *testing.T) {
	t.Parallel()

	fx := testutil.NewFixture(t, true, map[string]string{
		"/p/s.ts": "export namespace A.B { export const c = 1; }\nexport class K { m() { return A.B.c; } }\nfunction local() { const inner = 1; return inner; }\n",
	})
	prog := loadProgram(t, fx, ProgramOptions{RootFiles: []string{"/p/s.ts"}, ConfigDir: "/p"})

	var got []string
	refs := map[string]int{}
	for _, s := range prog.Symbols("/p/s.ts") {
		got = append(got, string(s.Kind)+":"+s.Qualified)
		refs[s.Qualified] = len(s.References)
	}
	want := []string{"namespace:A", "namespace:A.B", "variable:A.B.c", "class:K", "function:local"}
	if !slices.Equal(got, want) {
		t.Errorf("symbols = %v, want %v", got, want)
	}
	if refs["A.B.c"] != 1 || refs["A"] != 1 {
		t.Errorf("reference counts = %v", refs)
	}
}
