package engine

import (
	"slices"
	"testing"
)

func TestScan_Diagnostics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want []int
	}{
		{"clean", "const a = 1;\n", nil},
		{"unterminated string", "const s = \"abc\n", []int{CodeUnterminatedString}},
		{"unclosed brace", "function f() {\n  return 1;\n", []int{CodeSyntaxExpected}},
		{"stray closer", "const a = 1;\n}\n", []int{CodeDeclarationExpected}},
		{"unterminated comment", "/* open", []int{CodeSyntaxExpected}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int
			for _, d := range scan(tt.src).diags {
				got = append(got, d.code)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("codes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScan_TripleSlash(t *testing.T) {
	t.Parallel()

	res := scan("/// <reference path=\"./other.ts\" />\n/// <reference types=\"node\" />\nlet a;\n")
	if len(res.directives) != 2 {
		t.Fatalf("directives = %+v", res.directives)
	}
	if res.directives[0].attr != "path" || res.directives[0].value != "./other.ts" {
		t.Errorf("first directive = %+v", res.directives[0])
	}
	if res.directives[1].attr != "types" || res.directives[1].value != "node" {
		t.Errorf("second directive = %+v", res.directives[1])
	}
}

func TestParse_ModuleDetection(t *testing.T) {
	t.Parallel()

	script := parseFile("/a.ts", "namespace N { export const x = 1; }\nlet y = N.x;\n")
	if script.isModule {
		t.Error("script reported as module")
	}
	module := parseFile("/b.ts", "import { a } from \"./a\";\nconst b = a;\n")
	if !module.isModule {
		t.Error("module with import not detected")
	}
	if len(module.specs) != 1 || module.specs[0].spec != "./a" {
		t.Errorf("specs = %+v", module.specs)
	}
}

func TestParse_Declarations(t *testing.T) {
	t.Parallel()

	src := `export namespace A.B { export const c = 1; }
export class K<T> extends Base { private v: T; m(x: number) { return x; } }
interface I { a: string }
type Alias = I | undefined
enum Color { Red, Green = 2 }
function local(p = 1) { const inner = p; return inner; }
const { d, e: [f] } = obj;
for (const item of list) { use(item); }
`
	f := parseFile("/decls.ts", src)

	var names []string
	for _, d := range f.root.order {
		names = append(names, string(d.kind)+":"+d.name)
	}
	want := []string{
		"namespace:A", "class:K", "interface:I", "type:Alias", "enum:Color",
		"function:local", "variable:d", "variable:f",
	}
	if !slices.Equal(names, want) {
		t.Fatalf("top-level = %v, want %v", names, want)
	}

	k := f.root.decls["K"][0]
	if !k.exported || k.heritage != "extends Base" || k.typeParams != "<T>" {
		t.Errorf("class K = %+v", k)
	}
	if len(k.members) != 2 || k.members[0].name != "v" || !k.members[0].hasModifier("private") || !k.members[1].isMethod {
		t.Errorf("members = %+v", k.members)
	}

	a := f.root.decls["A"][0]
	b := a.body.decls["B"]
	if len(b) != 1 || b[0].body.qualified != "A.B" {
		t.Fatalf("A.B = %+v", b)
	}
	if c := b[0].body.decls["c"]; len(c) != 1 || c[0].qualifiedName() != "A.B.c" || !c[0].exported {
		t.Errorf("A.B.c = %+v", c)
	}

	fn := f.root.decls["local"][0]
	if fn.params != "(p = 1)" || fn.returnKind != "any" {
		t.Errorf("local = params %q return %q", fn.params, fn.returnKind)
	}
	if _, ok := fn.body.decls["p"]; !ok {
		t.Error("parameter p not declared in function scope")
	}
	if _, ok := f.root.decls["item"]; ok {
		t.Error("loop variable leaked into file scope")
	}
}

func TestParse_ImportsAndExports(t *testing.T) {
	t.Parallel()

	src := `import def, { a as b, c } from "./m";
import * as ns from "./n";
import eq = require("./o");
import "./side";
export { b as renamed, c };
export * from "./star";
export { z } from "./z";
export default def;
`
	f := parseFile("/i.ts", src)

	imports := map[string]string{}
	for _, d := range f.root.order {
		if d.kind == KindImport {
			imports[d.name] = d.importName + "@" + d.moduleSpec
		}
	}
	want := map[string]string{
		"def": "default@./m",
		"b":   "a@./m",
		"c":   "c@./m",
		"ns":  "*@./n",
		"eq":  "*@./o",
	}
	for k, v := range want {
		if imports[k] != v {
			t.Errorf("import %s = %q, want %q", k, imports[k], v)
		}
	}

	var specs []string
	for _, s := range f.specs {
		specs = append(specs, s.spec)
	}
	if !slices.Equal(specs, []string{"./m", "./n", "./o", "./side", "./star", "./z"}) {
		t.Errorf("specs = %v", specs)
	}

	var exports []string
	for _, e := range f.exports {
		switch {
		case e.star:
			exports = append(exports, "*:"+e.from)
		default:
			exports = append(exports, e.name+"="+e.local+"@"+e.from)
		}
	}
	wantExports := []string{"renamed=b@", "c=c@", "*:./star", "z=z@./z", "default=def@"}
	if !slices.Equal(exports, wantExports) {
		t.Errorf("exports = %v, want %v", exports, wantExports)
	}
}

func TestParse_QualifiedReferences(t *testing.T) {
	t.Parallel()

	f := parseFile("/q.ts", "const v = ns.inner.leaf;\nobj?.prop;\nconst o = { key: v, v };\n")
	var got []string
	for _, r := range f.refs {
		name := r.name
		if r.qual != nil {
			name = r.qual.name + "." + name
		}
		got = append(got, name)
	}
	want := []string{"ns", "ns.inner", "inner.leaf", "obj", "obj.prop", "v", "v"}
	if !slices.Equal(got, want) {
		t.Errorf("refs = %v, want %v", got, want)
	}
}

func TestStripInitializers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"()", "()"},
		{"(a: number)", "(a: number)"},
		{"(a: number, b = 2)", "(a: number, b?)"},
		{"(a: string = \"x\", cb = () => 1)", "(a: string, cb?)"},
		{"(opts = { a: 1, b: [1, 2] }, last: boolean)", "(opts?, last: boolean)"},
	}
	for _, tt := range tests {
		if got := stripInitializers(tt.in); got != tt.want {
			t.Errorf("stripInitializers(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
