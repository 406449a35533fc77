package engine

import "strings"

type scopeKind int

const (
	scopeFile scopeKind = iota
	scopeNamespace
	scopeAmbientModule
	scopeGlobal
	scopeFunction
	scopeClass
	scopeBlock
)

type scope struct {
	kind   scopeKind
	parent *scope
	file   *sourceFile
	// qualified is the dotted namespace name for namespace scopes, or the
	// module name for ambient module scopes.
	qualified string
	ambient   bool
	decls     map[string][]*decl
	order     []*decl
}

func newScope(kind scopeKind, parent *scope, f *sourceFile) *scope {
	s := &scope{kind: kind, parent: parent, file: f, decls: make(map[string][]*decl)}
	if parent != nil {
		s.ambient = parent.ambient
	}
	return s
}

func (s *scope) add(d *decl) {
	d.scope = s
	s.decls[d.name] = append(s.decls[d.name], d)
	s.order = append(s.order, d)
}

// declaresExports reports whether declarations in s are visible from other
// bodies of the same namespace or module.
func (s *scope) declaresExports() bool {
	return s.kind == scopeNamespace || s.kind == scopeAmbientModule || s.kind == scopeGlobal
}

type decl struct {
	name      string
	kind      SymbolKind
	file      *sourceFile
	scope     *scope
	start     int
	end       int
	exported  bool
	isDefault bool
	ambient   bool
	body      *scope

	importName string
	moduleSpec string

	stmtStart  int
	stmtEnd    int
	keyword    string
	typeParams string
	params     string
	returnType string
	returnKind string
	typeAnn    string
	literal    string
	heritage   string
	bodyStart  int
	bodyEnd    int
	modifiers  []string
	members    []*decl
	isMethod   bool
	optional   bool
	overload   bool
}

func (d *decl) hasModifier(m string) bool {
	for _, x := range d.modifiers {
		if x == m {
			return true
		}
	}
	return false
}

// qualifiedName prefixes the declaring namespace path.
func (d *decl) qualifiedName() string {
	for s := d.scope; s != nil; s = s.parent {
		if s.kind == scopeNamespace && s.qualified != "" {
			return s.qualified + "." + d.name
		}
		if s.kind == scopeFunction || s.kind == scopeBlock || s.kind == scopeClass {
			return d.name
		}
	}
	return d.name
}

type ref struct {
	name  string
	start int
	end   int
	scope *scope
	qual  *ref
	// exportOf is set when the identifier names an export of another
	// module, as in `import { a as b }` or `export { a } from "m"`.
	exportOf string
}

type exportEntry struct {
	name  string
	local string
	from  string
	star  bool
	start int
	end   int
}

type moduleSpec struct {
	spec      string
	start     int
	end       int
	stmtStart int
	stmtEnd   int
	// verbatim marks import and re-export statements copied into
	// declaration output.
	verbatim bool
}

type sourceFile struct {
	path     string
	text     string
	lines    *LineMap
	isDecl   bool
	isModule bool

	root       *scope
	decls      []*decl
	refs       []*ref
	exports    []exportEntry
	exportEq   *ref
	specs      []moduleSpec
	directives []tripleSlash
	namespaces []*scope
	ambientMod []*scope
	globals    []*scope
	syntax     []Diagnostic
	tokens     []token
}

func (f *sourceFile) span(start, end int) TextSpan { return f.lines.Span(start, end) }

func (f *sourceFile) location(start, end int) Location {
	sp := f.span(start, end)
	return Location{File: f.path, Start: sp.Start, End: sp.End}
}

// tokenAt finds the identifier token at a position; a position just past
// the end of an identifier still selects it.
func (f *sourceFile) tokenAt(pos Position) (token, bool) {
	off := f.lines.Offset(pos)
	var fallback *token
	for i := range f.tokens {
		t := &f.tokens[i]
		if t.kind != tokIdent {
			continue
		}
		if t.start <= off && off < t.end {
			return *t, true
		}
		if t.end == off {
			fallback = t
		}
		if t.start > off {
			break
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return token{}, false
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'' || s[0] == '`') {
		return s[1 : len(s)-1]
	}
	return s
}

func isStringTok(t token) bool { return t.kind == tokString || (t.kind == tokTemplate && !strings.Contains(t.text, "${")) }
