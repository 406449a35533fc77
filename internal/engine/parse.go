package engine

import (
	"strings"

	"projd/internal/paths"
)

// parseFile scans and walks src, producing scopes, declarations and
// identifier references. It recognises a practical subset of TypeScript
// and never fails: unknown constructs are walked as expressions.
func parseFile(path, src string) *sourceFile {
	sr := scan(src)
	f := &sourceFile{
		path:       path,
		text:       src,
		lines:      NewLineMap(src),
		isDecl:     paths.IsDeclaration(path),
		directives: sr.directives,
		tokens:     sr.tokens,
	}
	for _, d := range sr.diags {
		f.syntax = append(f.syntax, NewFileDiagnostic(path, f.span(d.start, d.end), d.code, "%s", d.text))
	}
	f.root = newScope(scopeFile, nil, f)
	f.root.ambient = f.isDecl

	p := &parser{f: f, toks: sr.tokens, refAt: make(map[int]*ref)}
	p.statements(f.root, len(p.toks)-1)
	return f
}

type parser struct {
	f     *sourceFile
	toks  []token
	i     int
	refAt map[int]*ref
}

type stops struct {
	comma bool
	colon bool
}

func (p *parser) tok(i int) token {
	if i < 0 {
		return token{kind: tokEOF, match: -1}
	}
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *parser) cur() token { return p.tok(p.i) }

func (p *parser) is(i int, text string) bool {
	t := p.tok(i)
	return (t.kind == tokPunct || t.kind == tokIdent) && t.text == text
}

func (p *parser) isName(i int) bool {
	t := p.tok(i)
	return t.kind == tokIdent && !isKeyword(t.text)
}

// isBindingName accepts contextual keywords that are legal identifiers.
func (p *parser) isBindingName(i int) bool {
	t := p.tok(i)
	if t.kind != tokIdent {
		return false
	}
	switch t.text {
	case "type", "module", "namespace", "declare", "get", "set", "of", "from", "as", "async",
		"global", "readonly", "abstract", "is", "infer", "keyof", "unique", "override",
		"constructor", "require", "any", "number", "string", "boolean", "symbol", "object",
		"never", "unknown", "bigint", "undefined", "accessor", "asserts", "satisfies":
		return true
	}
	return !isKeyword(t.text)
}

func (p *parser) text(from, to int) string {
	if from >= to {
		return ""
	}
	return strings.TrimSpace(p.f.text[from:to])
}

func (p *parser) addDecl(sc *scope, d *decl) *decl {
	d.file = p.f
	if sc.ambient {
		d.ambient = true
	}
	sc.add(d)
	p.f.decls = append(p.f.decls, d)
	return d
}

func (p *parser) addRef(sc *scope, i int) *ref {
	t := p.tok(i)
	r := &ref{name: t.text, start: t.start, end: t.end, scope: sc}
	if i >= 2 && (p.is(i-1, ".") || p.is(i-1, "?.")) {
		r.qual = p.refAt[i-2]
	}
	p.f.refs = append(p.f.refs, r)
	p.refAt[i] = r
	return r
}

func (p *parser) statements(sc *scope, end int) {
	for p.i < end {
		before := p.i
		p.statement(sc, end)
		if p.i == before {
			p.i++
		}
	}
}

// operatorKeywords never end an expression.
var operatorKeywords = map[string]bool{
	"in": true, "instanceof": true, "typeof": true, "new": true, "delete": true, "void": true,
	"return": true, "throw": true, "as": true, "satisfies": true, "extends": true, "implements": true,
	"keyof": true, "await": true, "yield": true, "case": true, "export": true, "import": true,
	"const": true, "let": true, "var": true, "function": true, "class": true, "if": true, "else": true,
	"do": true, "while": true, "for": true, "switch": true, "try": true, "catch": true, "finally": true,
	"with": true, "of": true, "is": true, "declare": true, "abstract": true, "async": true,
	"readonly": true, "unique": true, "infer": true,
}

// endsExpression reports whether t can be the last token of an expression
// or type.
func endsExpression(t token) bool {
	switch t.kind {
	case tokIdent:
		return !operatorKeywords[t.text]
	case tokNumber, tokString, tokTemplate, tokRegex:
		return true
	case tokPunct:
		return t.text == ")" || t.text == "]" || t.text == "}"
	}
	return false
}

var continuationKeywords = map[string]bool{
	"in": true, "instanceof": true, "as": true, "satisfies": true, "extends": true, "implements": true, "of": true,
}

func startsStatement(t token) bool {
	switch t.kind {
	case tokIdent:
		return !continuationKeywords[t.text]
	case tokNumber, tokString, tokTemplate:
		return true
	}
	return false
}

func (p *parser) statement(sc *scope, end int) {
	t := p.cur()
	if t.kind == tokPunct {
		switch t.text {
		case ";":
			p.i++
			return
		case "{":
			p.block(sc, scopeBlock)
			return
		case "}", ")", "]":
			p.i++
			return
		}
	}
	if t.kind == tokIdent {
		if p.declaration(sc, end) {
			return
		}
		if p.control(sc, end) {
			return
		}
		if p.isName(p.i) && p.is(p.i+1, ":") {
			p.i += 2
			return
		}
	}
	p.expr(sc, end, stops{})
	if p.is(p.i, ";") {
		p.i++
	}
}

// block walks a braced block as a new scope.
func (p *parser) block(sc *scope, kind scopeKind) *scope {
	open := p.i
	close := p.tok(open).match
	inner := newScope(kind, sc, p.f)
	if close < 0 {
		p.i++
		p.statements(inner, len(p.toks)-1)
		return inner
	}
	p.i = open + 1
	p.statements(inner, close)
	p.i = close + 1
	return inner
}

type modifiers struct {
	exported  bool
	isDefault bool
	ambient   bool
	list      []string
}

func (p *parser) declaration(sc *scope, end int) bool {
	start := p.cur().start
	save := p.i
	var m modifiers

modifierLoop:
	for {
		t := p.cur()
		switch {
		case t.text == "export" && t.kind == tokIdent:
			next := p.tok(p.i + 1)
			switch {
			case next.text == "=":
				p.exportAssignment(sc, start)
				return true
			case next.text == "{" || next.text == "*":
				p.exportClause(sc, start)
				return true
			case next.text == "type" && p.is(p.i+2, "{"):
				p.i++
				p.exportClause(sc, start)
				return true
			case next.text == "as":
				p.skipStatement(end)
				return true
			case next.text == "import":
				p.i++
				continue
			case next.text == "default":
				m.exported, m.isDefault = true, true
				p.markModule(sc)
				p.i += 2
				if !p.startsDeclaration(p.i) {
					p.exportDefaultExpr(sc, start, end)
					return true
				}
				continue
			}
			m.exported = true
			p.markModule(sc)
			p.i++
		case t.text == "declare" && p.startsDeclaration(p.i+1):
			m.ambient = true
			p.i++
		case (t.text == "abstract" || t.text == "async") && p.startsDeclaration(p.i+1):
			m.list = append(m.list, t.text)
			p.i++
		default:
			break modifierLoop
		}
	}

	t := p.cur()
	switch {
	case t.text == "function":
		p.function(sc, m, start, false)
	case t.text == "class":
		p.class(sc, m, start, false)
	case t.text == "interface" && p.isBindingName(p.i+1):
		p.interfaceDecl(sc, m, start)
	case t.text == "type" && p.isBindingName(p.i+1) && (p.is(p.i+2, "=") || p.is(p.i+2, "<")):
		p.typeAlias(sc, m, start, end)
	case t.text == "enum" || (t.text == "const" && p.is(p.i+1, "enum")):
		if t.text == "const" {
			p.i++
		}
		p.enumDecl(sc, m, start)
	case t.text == "const" || t.text == "var" || (t.text == "let" && (p.isBindingName(p.i+1) || p.is(p.i+1, "{") || p.is(p.i+1, "["))):
		p.variables(sc, m, start, end)
	case (t.text == "namespace" || t.text == "module") && p.isBindingName(p.i+1):
		p.namespace(sc, m, start)
	case t.text == "module" && p.tok(p.i+1).kind == tokString:
		p.ambientModule(sc, start)
	case t.text == "global" && p.is(p.i+1, "{") && (m.ambient || sc.ambient):
		p.i++
		g := newScope(scopeGlobal, sc, p.f)
		g.ambient = true
		p.f.globals = append(p.f.globals, g)
		p.blockInto(g)
	case t.text == "import" && !p.is(p.i+1, "(") && !p.is(p.i+1, "."):
		p.importDecl(sc, m, start, end)
	default:
		if m.exported || m.ambient || len(m.list) > 0 {
			p.i = save
		}
		return false
	}
	return true
}

func (p *parser) startsDeclaration(i int) bool {
	t := p.tok(i)
	if t.kind != tokIdent {
		return false
	}
	switch t.text {
	case "function", "class", "interface", "enum", "const", "var", "let", "namespace", "module",
		"abstract", "async", "declare", "global", "import":
		return true
	case "type":
		return p.isBindingName(i + 1)
	}
	return false
}

func (p *parser) markModule(sc *scope) {
	if sc.kind == scopeFile {
		p.f.isModule = true
	}
}

// blockInto walks the braced block at p.i into an existing scope.
func (p *parser) blockInto(sc *scope) {
	close := p.cur().match
	if close < 0 {
		p.i++
		p.statements(sc, len(p.toks)-1)
		return
	}
	p.i++
	p.statements(sc, close)
	p.i = close + 1
}

func (p *parser) skipStatement(end int) {
	for p.i < end {
		t := p.cur()
		if t.text == ";" && t.kind == tokPunct {
			p.i++
			return
		}
		if t.match > p.i {
			p.i = t.match + 1
			continue
		}
		p.i++
		if p.cur().nl {
			return
		}
	}
}

// typeParams consumes <...> after a declaration name and declares the
// parameters in sc.
func (p *parser) typeParams(sc *scope) string {
	if !p.is(p.i, "<") {
		return ""
	}
	open := p.i
	depth := 0
	for p.i < len(p.toks)-1 {
		t := p.cur()
		if t.match > p.i {
			p.exprGroup(sc, p.i)
			continue
		}
		switch {
		case t.kind == tokPunct && t.text == "<":
			depth++
		case t.kind == tokPunct && t.text == ">":
			depth--
		case depth == 1 && p.isBindingName(p.i) && (p.is(p.i-1, "<") || p.is(p.i-1, ",")):
			p.addDecl(sc, &decl{name: t.text, kind: KindType, start: t.start, end: t.end})
		case t.kind == tokIdent && !isKeyword(t.text):
			p.addRef(sc, p.i)
		}
		p.i++
		if depth == 0 {
			break
		}
	}
	return p.text(p.tok(open).start, p.tok(p.i-1).end)
}

// exprGroup walks the inside of the bracket group opened at open, then
// positions p.i after its closer.
func (p *parser) exprGroup(sc *scope, open int) {
	close := p.tok(open).match
	if close < 0 {
		p.i = open + 1
		return
	}
	p.i = open + 1
	for p.i < close {
		before := p.i
		p.expr(sc, close, stops{comma: true})
		if p.is(p.i, ",") || p.is(p.i, ";") || p.is(p.i, ":") {
			p.i++
		}
		if p.i == before {
			p.i++
		}
	}
	p.i = close + 1
}

// expr walks expression tokens, recording references, until a terminator.
func (p *parser) expr(sc *scope, end int, st stops) {
	first := p.i
	for p.i < end {
		t := p.cur()
		if p.i > first && t.nl && endsExpression(p.tok(p.i-1)) && startsStatement(t) {
			return
		}
		switch t.kind {
		case tokPunct:
			switch t.text {
			case ";":
				return
			case "}", ")", "]":
				return
			case ",":
				if st.comma {
					return
				}
				p.i++
				continue
			case ":":
				if st.colon {
					return
				}
				p.i++
				continue
			case "(":
				if p.isArrowParams(p.i) {
					p.arrow(sc, p.i, end)
					continue
				}
				p.exprGroup(sc, p.i)
				continue
			case "[":
				p.exprGroup(sc, p.i)
				continue
			case "{":
				p.objectLiteral(sc, p.i)
				continue
			}
			p.i++
		case tokIdent:
			switch {
			case t.text == "function":
				p.function(sc, modifiers{}, t.start, true)
				continue
			case t.text == "class":
				p.class(sc, modifiers{}, t.start, true)
				continue
			case p.isBindingName(p.i) && p.is(p.i+1, "=>") && !p.is(p.i-1, ".") && !p.is(p.i-1, "?."):
				p.arrow(sc, p.i, end)
				continue
			case p.is(p.i-1, ".") || p.is(p.i-1, "?."):
				p.addRef(sc, p.i)
			case !isKeyword(t.text) || t.text == "this":
				if t.text == "this" {
					p.refAt[p.i] = nil
				} else {
					p.addRef(sc, p.i)
				}
			}
			p.i++
		default:
			p.i++
		}
	}
}

func (p *parser) isArrowParams(open int) bool {
	close := p.tok(open).match
	if close < 0 {
		return false
	}
	if p.is(close+1, "=>") {
		return true
	}
	if !p.is(close+1, ":") {
		return false
	}
	for i, n := close+2, 0; i < len(p.toks)-1 && n < 64; n++ {
		t := p.tok(i)
		switch t.text {
		case "=>":
			return true
		case ";", ",", "=", ")", "]", "}":
			return false
		}
		if t.match > i {
			i = t.match + 1
			continue
		}
		i++
	}
	return false
}

// arrow walks an arrow function whose parameters start at i: either a
// single identifier or a parenthesised list.
func (p *parser) arrow(sc *scope, i, end int) {
	fn := newScope(scopeFunction, sc, p.f)
	if p.is(i, "(") {
		close := p.tok(i).match
		p.params(fn, i, close)
		p.i = close + 1
		if p.is(p.i, ":") {
			p.i++
			for p.i < end && !p.is(p.i, "=>") {
				if p.tok(p.i).match > p.i {
					p.exprGroup(fn, p.i)
					continue
				}
				if p.isName(p.i) {
					p.addRef(fn, p.i)
				}
				p.i++
			}
		}
	} else {
		t := p.tok(i)
		p.addDecl(fn, &decl{name: t.text, kind: KindParameter, start: t.start, end: t.end})
		p.i = i + 1
	}
	if !p.is(p.i, "=>") {
		return
	}
	p.i++
	if p.is(p.i, "{") {
		p.blockInto(newScopeChild(fn, scopeBlock))
		return
	}
	p.expr(fn, end, stops{comma: true})
}

func newScopeChild(parent *scope, kind scopeKind) *scope {
	return newScope(kind, parent, parent.file)
}

// params declares the parameters between open and close into fn.
func (p *parser) params(fn *scope, open, close int) {
	p.i = open + 1
	for p.i < close {
		before := p.i
		for p.i < close {
			t := p.cur()
			if t.kind == tokIdent && (t.text == "public" || t.text == "private" || t.text == "protected" ||
				t.text == "readonly" || t.text == "override") && (p.isBindingName(p.i+1) || p.is(p.i+1, "{") || p.is(p.i+1, "[")) {
				p.i++
				continue
			}
			if p.is(p.i, "...") {
				p.i++
				continue
			}
			break
		}
		switch {
		case p.is(p.i, "this"):
			p.i++
		case p.isBindingName(p.i):
			t := p.cur()
			p.addDecl(fn, &decl{name: t.text, kind: KindParameter, start: t.start, end: t.end})
			p.i++
		case p.is(p.i, "{") || p.is(p.i, "["):
			p.pattern(fn, fn, KindParameter, "")
		}
		if p.is(p.i, "?") {
			p.i++
		}
		if p.is(p.i, ":") {
			p.i++
			p.typeExpr(fn, close)
		}
		if p.is(p.i, "=") {
			p.i++
			p.expr(fn, close, stops{comma: true})
		}
		if p.is(p.i, ",") {
			p.i++
		}
		if p.i == before {
			p.i++
		}
	}
	p.i = close + 1
}

// typeExpr walks a type annotation until ',', '=', ';' or a closer at the
// current nesting.
func (p *parser) typeExpr(sc *scope, end int) {
	first := p.i
	for p.i < end {
		t := p.cur()
		if p.i > first && t.nl && endsExpression(p.tok(p.i-1)) && startsStatement(t) {
			return
		}
		if t.kind == tokPunct {
			switch t.text {
			case ",", "=", ";", ")", "]", "}":
				return
			case "{":
				p.objectLiteral(sc, p.i)
				continue
			case "(":
				if p.isArrowParams(p.i) {
					close := t.match
					fn := newScope(scopeFunction, sc, p.f)
					p.params(fn, p.i, close)
					p.i = close + 1
					continue
				}
				p.exprGroup(sc, p.i)
				continue
			case "[":
				p.exprGroup(sc, p.i)
				continue
			case "=>":
				p.i++
				continue
			}
			p.i++
			continue
		}
		if t.kind == tokIdent && !isKeyword(t.text) {
			p.addRef(sc, p.i)
		}
		p.i++
	}
}

// pattern declares the names bound by a destructuring pattern at p.i.
func (p *parser) pattern(sc, valueScope *scope, kind SymbolKind, keyword string) {
	open := p.i
	close := p.cur().match
	if close < 0 {
		p.i++
		return
	}
	isObject := p.is(open, "{")
	p.i = open + 1
	for p.i < close {
		before := p.i
		if p.is(p.i, "...") {
			p.i++
		}
		switch {
		case isObject && (p.isBindingName(p.i) || p.tok(p.i).kind == tokString) && p.is(p.i+1, ":"):
			p.i += 2
			if p.is(p.i, "{") || p.is(p.i, "[") {
				p.pattern(sc, valueScope, kind, keyword)
			} else if p.isBindingName(p.i) {
				t := p.cur()
				p.addDecl(sc, &decl{name: t.text, kind: kind, keyword: keyword, start: t.start, end: t.end})
				p.i++
			}
		case p.is(p.i, "{") || p.is(p.i, "["):
			p.pattern(sc, valueScope, kind, keyword)
		case p.isBindingName(p.i):
			t := p.cur()
			p.addDecl(sc, &decl{name: t.text, kind: kind, keyword: keyword, start: t.start, end: t.end})
			p.i++
		}
		if p.is(p.i, "=") {
			p.i++
			p.expr(valueScope, close, stops{comma: true})
		}
		if p.is(p.i, ",") {
			p.i++
		}
		if p.i == before {
			p.i++
		}
	}
	p.i = close + 1
}

// objectLiteral walks {...} in expression or type position. Property keys
// are not references; shorthand properties are.
func (p *parser) objectLiteral(sc *scope, open int) {
	close := p.tok(open).match
	if close < 0 {
		p.i = open + 1
		return
	}
	p.i = open + 1
	for p.i < close {
		before := p.i
		for p.i < close && (p.is(p.i, "readonly") || p.is(p.i, "get") || p.is(p.i, "set") ||
			p.is(p.i, "async") || p.is(p.i, "*") || p.is(p.i, "-") || p.is(p.i, "+")) &&
			(p.isBindingName(p.i+1) || p.tok(p.i+1).kind == tokString || p.is(p.i+1, "[")) {
			p.i++
		}
		t := p.cur()
		switch {
		case p.is(p.i, "..."):
			p.i++
			p.expr(sc, close, stops{comma: true})
		case (t.kind == tokIdent || t.kind == tokString || t.kind == tokNumber) &&
			(p.is(p.i+1, ":") || p.is(p.i+1, "?") || p.is(p.i+1, "!")):
			p.i++
			if p.is(p.i, "?") || p.is(p.i, "!") {
				p.i++
			}
			if p.is(p.i, ":") {
				p.i++
				p.expr(sc, close, stops{comma: true})
			} else if p.is(p.i, "(") {
				p.method(sc, close)
			}
		case (t.kind == tokIdent || t.kind == tokString || t.kind == tokNumber) && (p.is(p.i+1, "(") || p.is(p.i+1, "<")):
			p.i++
			p.method(sc, close)
		case p.is(p.i, "["):
			p.exprGroup(sc, p.i)
			if p.is(p.i, "?") {
				p.i++
			}
			if p.is(p.i, ":") {
				p.i++
				p.expr(sc, close, stops{comma: true})
			} else if p.is(p.i, "(") {
				p.method(sc, close)
			}
		case p.is(p.i, "(") || p.is(p.i, "<"):
			p.method(sc, close)
		case t.kind == tokIdent && !isKeyword(t.text):
			p.addRef(sc, p.i)
			p.i++
			if p.is(p.i, "=") {
				p.i++
				p.expr(sc, close, stops{comma: true})
			}
		default:
			p.expr(sc, close, stops{comma: true})
		}
		if p.is(p.i, ",") || p.is(p.i, ";") {
			p.i++
		}
		if p.i == before {
			p.i++
		}
	}
	p.i = close + 1
}

// method walks a call signature or method starting at type parameters or
// the parameter list.
func (p *parser) method(sc *scope, end int) {
	fn := newScope(scopeFunction, sc, p.f)
	p.typeParams(fn)
	if !p.is(p.i, "(") {
		return
	}
	close := p.cur().match
	if close < 0 {
		p.i++
		return
	}
	p.params(fn, p.i, close)
	if p.is(p.i, ":") {
		p.i++
		p.returnType(fn, end)
	}
	if p.is(p.i, "{") {
		p.blockInto(newScopeChild(fn, scopeBlock))
	}
}

// returnType walks a return type annotation up to a body or terminator and
// returns its text.
func (p *parser) returnType(sc *scope, end int) string {
	start := p.cur().start
	first := p.i
	last := p.i
	for p.i < end {
		t := p.cur()
		if t.kind == tokPunct && (t.text == ";" || t.text == "," || t.text == ")" || t.text == "}" || t.text == "]") {
			break
		}
		if t.kind == tokPunct && t.text == "{" {
			// An object type directly after the colon is the type itself.
			if p.i == first || p.is(p.i-1, "|") || p.is(p.i-1, "&") || p.is(p.i-1, "<") || p.is(p.i-1, "=>") {
				p.objectLiteral(sc, p.i)
				last = p.i - 1
				continue
			}
			break
		}
		if p.i > first && t.nl && endsExpression(p.tok(p.i-1)) && startsStatement(t) {
			break
		}
		if t.match > p.i && (t.text == "(" || t.text == "[") {
			p.exprGroup(sc, p.i)
			last = p.i - 1
			continue
		}
		if t.kind == tokIdent && !isKeyword(t.text) {
			p.addRef(sc, p.i)
		}
		last = p.i
		p.i++
	}
	if last < first || p.i == first {
		return ""
	}
	return p.text(start, p.tok(last).end)
}

func (p *parser) function(sc *scope, m modifiers, stmtStart int, expression bool) {
	p.i++ // function
	if p.is(p.i, "*") {
		p.i++
	}
	d := &decl{kind: KindFunction, exported: m.exported, isDefault: m.isDefault, ambient: m.ambient, stmtStart: stmtStart, modifiers: m.list}
	fn := newScope(scopeFunction, sc, p.f)
	if p.isBindingName(p.i) {
		t := p.cur()
		d.name, d.start, d.end = t.text, t.start, t.end
		p.i++
	}
	d.typeParams = p.typeParams(fn)
	if !p.is(p.i, "(") {
		return
	}
	open := p.i
	close := p.cur().match
	if close < 0 {
		p.i++
		return
	}
	d.params = p.text(p.tok(open).start, p.tok(close).end)
	p.params(fn, open, close)
	if p.is(p.i, ":") {
		p.i++
		d.returnType = p.returnType(fn, len(p.toks)-1)
	}
	d.body = fn
	if p.is(p.i, "{") {
		bodyOpen := p.i
		d.returnKind = p.inferReturn(bodyOpen)
		p.blockInto(fn)
		d.bodyStart, d.bodyEnd = p.tok(bodyOpen).start, p.tok(p.i-1).end
		d.stmtEnd = p.tok(p.i - 1).end
	} else {
		d.overload = true
		d.stmtEnd = p.tok(p.i - 1).end
		if p.is(p.i, ";") {
			d.stmtEnd = p.cur().end
			p.i++
		}
	}
	if d.name != "" && !expression {
		p.addDecl(sc, d)
		d.exported = d.exported || (sc.ambient && sc.declaresExports())
		if m.isDefault {
			p.f.exports = append(p.f.exports, exportEntry{name: "default", local: d.name, start: stmtStart, end: d.stmtEnd})
		}
	}
}

// inferReturn guesses the declared return type of a function body from its
// first return statement.
func (p *parser) inferReturn(open int) string {
	close := p.tok(open).match
	if close < 0 {
		return "any"
	}
	for i := open + 1; i < close; i++ {
		t := p.tok(i)
		if t.kind == tokIdent && (t.text == "function" || t.text == "class") {
			if body := p.findBody(i); body > 0 {
				i = body
			}
			continue
		}
		if p.is(i, "=>") && p.is(i+1, "{") {
			i = p.tok(i + 1).match
			continue
		}
		if t.kind != tokIdent || t.text != "return" {
			continue
		}
		next := p.tok(i + 1)
		if next.text == ";" || next.text == "}" || next.nl {
			continue
		}
		return literalType(next, p.tok(i+2))
	}
	return "void"
}

func (p *parser) findBody(i int) int {
	for j := i; j < len(p.toks)-1; j++ {
		if p.is(j, "{") {
			return p.tok(j).match
		}
		if p.is(j, ";") {
			return -1
		}
	}
	return -1
}

// literalType maps a literal expression to its declared type.
func literalType(t, next token) string {
	terminal := next.text == ";" || next.text == "}" || next.text == ")" || next.text == "," || next.nl || next.kind == tokEOF
	if !terminal {
		return "any"
	}
	switch {
	case t.kind == tokNumber:
		return "number"
	case t.kind == tokString || (t.kind == tokTemplate && !strings.Contains(t.text, "${")):
		return "string"
	case t.kind == tokIdent && (t.text == "true" || t.text == "false"):
		return "boolean"
	}
	return "any"
}

func (p *parser) class(sc *scope, m modifiers, stmtStart int, expression bool) {
	p.i++ // class
	d := &decl{kind: KindClass, exported: m.exported, isDefault: m.isDefault, ambient: m.ambient, stmtStart: stmtStart, modifiers: m.list}
	cs := newScope(scopeClass, sc, p.f)
	if p.isBindingName(p.i) && !p.is(p.i, "extends") && !p.is(p.i, "implements") {
		t := p.cur()
		d.name, d.start, d.end = t.text, t.start, t.end
		p.i++
	}
	d.typeParams = p.typeParams(cs)
	heritageStart := p.cur().start
	for p.i < len(p.toks)-1 && !p.is(p.i, "{") {
		t := p.cur()
		if t.match > p.i {
			p.exprGroup(sc, p.i)
			continue
		}
		if t.kind == tokIdent && !isKeyword(t.text) {
			p.addRef(cs, p.i)
		}
		p.i++
	}
	d.heritage = p.text(heritageStart, p.cur().start)
	if !p.is(p.i, "{") {
		return
	}
	open := p.i
	close := p.cur().match
	d.body = cs
	if close < 0 {
		p.i++
		return
	}
	p.classMembers(cs, d, open, close)
	p.i = close + 1
	d.bodyStart, d.bodyEnd = p.tok(open).start, p.tok(close).end
	d.stmtEnd = d.bodyEnd
	if d.name != "" && !expression {
		p.addDecl(sc, d)
		d.exported = d.exported || (sc.ambient && sc.declaresExports())
		if m.isDefault {
			p.f.exports = append(p.f.exports, exportEntry{name: "default", local: d.name, start: stmtStart, end: d.stmtEnd})
		}
	}
}

var memberModifiers = map[string]bool{
	"public": true, "private": true, "protected": true, "static": true, "readonly": true,
	"abstract": true, "async": true, "declare": true, "override": true, "accessor": true,
	"get": true, "set": true,
}

func (p *parser) classMembers(cs *scope, cls *decl, open, close int) {
	p.i = open + 1
	for p.i < close {
		before := p.i
		var mods []string
		for p.i < close && p.tok(p.i).kind == tokIdent && memberModifiers[p.cur().text] &&
			(p.isBindingName(p.i+1) || p.tok(p.i+1).kind == tokString || p.is(p.i+1, "[") || p.is(p.i+1, "#") || p.is(p.i+1, "*")) {
			mods = append(mods, p.cur().text)
			p.i++
		}
		if p.is(p.i, "*") {
			p.i++
		}
		t := p.cur()
		switch {
		case p.is(p.i, ";"):
			p.i++
		case p.is(p.i, "{") && containsStr(mods, "static"):
			p.block(cs, scopeBlock)
		case t.kind == tokIdent || t.kind == tokString || t.kind == tokNumber || p.is(p.i, "#"):
			nameStart := t.start
			if p.is(p.i, "#") {
				p.i++
				t = p.cur()
			}
			member := &decl{name: t.text, kind: KindVariable, file: p.f, start: nameStart, end: t.end, modifiers: mods, stmtStart: nameStart}
			p.i++
			if p.is(p.i, "?") || p.is(p.i, "!") {
				member.optional = p.is(p.i, "?")
				p.i++
			}
			if p.is(p.i, "(") || p.is(p.i, "<") {
				member.kind = KindFunction
				member.isMethod = true
				fn := newScope(scopeFunction, cs, p.f)
				member.typeParams = p.typeParams(fn)
				if p.is(p.i, "(") && p.cur().match > 0 {
					pc := p.cur().match
					member.params = p.text(p.cur().start, p.tok(pc).end)
					p.params(fn, p.i, pc)
				}
				if p.is(p.i, ":") {
					p.i++
					member.returnType = p.returnType(fn, close)
				}
				if p.is(p.i, "{") {
					member.returnKind = p.inferReturn(p.i)
					p.blockInto(fn)
				} else if p.is(p.i, ";") {
					p.i++
				}
			} else {
				if p.is(p.i, ":") {
					p.i++
					ts := p.cur().start
					p.typeExpr(cs, close)
					member.typeAnn = p.text(ts, p.tok(p.i-1).end)
				}
				if p.is(p.i, "=") {
					p.i++
					member.literal = literalType(p.cur(), p.tok(p.i+1))
					p.expr(cs, close, stops{})
				}
				if p.is(p.i, ";") || p.is(p.i, ",") {
					p.i++
				}
			}
			cls.members = append(cls.members, member)
		case p.is(p.i, "["):
			p.exprGroup(cs, p.i)
			if p.is(p.i, "?") {
				p.i++
			}
			if p.is(p.i, ":") {
				p.i++
				p.typeExpr(cs, close)
			}
			if p.is(p.i, "(") {
				p.method(cs, close)
			}
			if p.is(p.i, ";") {
				p.i++
			}
		default:
			p.expr(cs, close, stops{})
		}
		if p.i == before {
			p.i++
		}
	}
}

func containsStr(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func (p *parser) interfaceDecl(sc *scope, m modifiers, stmtStart int) {
	kw := p.cur().start
	p.i++
	t := p.cur()
	d := &decl{name: t.text, kind: KindInterface, exported: m.exported, ambient: true, start: t.start, end: t.end, stmtStart: stmtStart, bodyStart: kw}
	p.i++
	is := newScope(scopeClass, sc, p.f)
	d.body = is
	d.typeParams = p.typeParams(is)
	for p.i < len(p.toks)-1 && !p.is(p.i, "{") {
		if p.isName(p.i) {
			p.addRef(is, p.i)
		}
		if p.cur().match > p.i {
			p.exprGroup(is, p.i)
			continue
		}
		p.i++
	}
	if p.is(p.i, "{") {
		p.objectLiteral(is, p.i)
	}
	d.stmtEnd = p.tok(p.i - 1).end
	p.addDecl(sc, d)
	d.exported = d.exported || (sc.ambient && sc.declaresExports())
}

func (p *parser) typeAlias(sc *scope, m modifiers, stmtStart, end int) {
	kw := p.cur().start
	p.i++
	t := p.cur()
	d := &decl{name: t.text, kind: KindType, exported: m.exported, ambient: true, start: t.start, end: t.end, stmtStart: stmtStart, bodyStart: kw}
	p.i++
	ts := newScope(scopeClass, sc, p.f)
	d.body = ts
	d.typeParams = p.typeParams(ts)
	if p.is(p.i, "=") {
		p.i++
	}
	p.typeExpr(ts, end)
	for p.is(p.i, "=") || p.is(p.i, ",") {
		p.i++
		p.typeExpr(ts, end)
	}
	d.stmtEnd = p.tok(p.i - 1).end
	if p.is(p.i, ";") {
		p.i++
	}
	p.addDecl(sc, d)
	d.exported = d.exported || (sc.ambient && sc.declaresExports())
}

func (p *parser) enumDecl(sc *scope, m modifiers, stmtStart int) {
	kw := p.cur().start
	p.i++ // enum
	if !p.isBindingName(p.i) {
		return
	}
	t := p.cur()
	d := &decl{name: t.text, kind: KindEnum, exported: m.exported, ambient: m.ambient, start: t.start, end: t.end, stmtStart: stmtStart, bodyStart: kw}
	p.i++
	es := newScope(scopeClass, sc, p.f)
	d.body = es
	if p.is(p.i, "{") && p.cur().match > 0 {
		close := p.cur().match
		p.i++
		for p.i < close {
			before := p.i
			if p.tok(p.i).kind == tokIdent || p.tok(p.i).kind == tokString {
				mt := p.cur()
				p.addDecl(es, &decl{name: unquote(mt.text), kind: KindVariable, start: mt.start, end: mt.end})
				p.i++
			}
			if p.is(p.i, "=") {
				p.i++
				p.expr(sc, close, stops{comma: true})
			}
			if p.is(p.i, ",") {
				p.i++
			}
			if p.i == before {
				p.i++
			}
		}
		p.i = close + 1
	}
	d.stmtEnd = p.tok(p.i - 1).end
	p.addDecl(sc, d)
	d.exported = d.exported || (sc.ambient && sc.declaresExports())
}

func (p *parser) variables(sc *scope, m modifiers, stmtStart, end int) {
	keyword := p.cur().text
	p.i++
	var bound []*decl
	for p.i < end {
		before := len(p.f.decls)
		var single *decl
		switch {
		case p.isBindingName(p.i):
			t := p.cur()
			single = &decl{name: t.text, kind: KindVariable, keyword: keyword, start: t.start, end: t.end}
			p.addDecl(sc, single)
			p.i++
		case p.is(p.i, "{") || p.is(p.i, "["):
			p.pattern(sc, sc, KindVariable, keyword)
		default:
			p.skipStatement(end)
			return
		}
		if p.is(p.i, "!") {
			p.i++
		}
		if p.is(p.i, ":") {
			p.i++
			ts := p.cur().start
			p.typeExpr(sc, end)
			if single != nil {
				single.typeAnn = p.text(ts, p.tok(p.i-1).end)
			}
		}
		if p.is(p.i, "=") {
			p.i++
			if single != nil {
				single.literal = literalValue(p.cur(), p.tok(p.i+1))
			}
			p.expr(sc, end, stops{comma: true})
		}
		for _, d := range p.f.decls[before:] {
			if d.scope == sc {
				d.exported = m.exported || (sc.ambient && sc.declaresExports())
				d.ambient = d.ambient || m.ambient
				d.stmtStart = stmtStart
				d.modifiers = m.list
				bound = append(bound, d)
			}
		}
		if !p.is(p.i, ",") {
			break
		}
		p.i++
	}
	stmtEnd := p.tok(p.i - 1).end
	if p.is(p.i, ";") {
		p.i++
	}
	for _, d := range bound {
		d.stmtEnd = stmtEnd
	}
}

// literalValue returns the raw text of a literal initializer, or "".
func literalValue(t, next token) string {
	if literalType(t, next) == "any" {
		return ""
	}
	return t.text
}

func (p *parser) namespace(sc *scope, m modifiers, stmtStart int) {
	p.i++ // namespace | module
	outer := sc
	var first *decl
	var body *scope
	for {
		t := p.cur()
		d := &decl{name: t.text, kind: KindNamespace, ambient: m.ambient || sc.ambient, start: t.start, end: t.end, stmtStart: stmtStart}
		if first == nil {
			first = d
			d.exported = m.exported
		} else {
			d.exported = true
		}
		p.addDecl(outer, d)
		if !d.exported && outer.ambient && outer.declaresExports() {
			d.exported = true
		}
		body = newScope(scopeNamespace, outer, p.f)
		body.ambient = d.ambient || p.f.isDecl
		if outer.kind == scopeNamespace {
			body.qualified = outer.qualified + "." + t.text
		} else {
			body.qualified = t.text
		}
		d.body = body
		p.f.namespaces = append(p.f.namespaces, body)
		p.i++
		if p.is(p.i, ".") && p.isBindingName(p.i+1) {
			p.i++
			outer = body
			continue
		}
		break
	}
	if p.is(p.i, "{") {
		open := p.i
		p.blockInto(body)
		first.bodyStart, first.bodyEnd = p.tok(open).start, p.tok(p.i-1).end
	} else if p.is(p.i, ";") {
		p.i++
	}
	first.stmtEnd = p.tok(p.i - 1).end
}

func (p *parser) ambientModule(sc *scope, stmtStart int) {
	p.i++ // module
	t := p.cur()
	p.i++
	body := newScope(scopeAmbientModule, sc, p.f)
	body.ambient = true
	body.qualified = unquote(t.text)
	p.f.ambientMod = append(p.f.ambientMod, body)
	if p.is(p.i, "{") {
		p.blockInto(body)
	} else if p.is(p.i, ";") {
		p.i++
	}
}

func (p *parser) recordSpec(i, stmtStart int, verbatim bool) {
	t := p.tok(i)
	p.f.specs = append(p.f.specs, moduleSpec{spec: unquote(t.text), start: t.start, end: t.end, stmtStart: stmtStart, verbatim: verbatim})
}

func (p *parser) finishSpec(stmtEnd int) {
	if n := len(p.f.specs); n > 0 {
		p.f.specs[n-1].stmtEnd = stmtEnd
	}
}

func (p *parser) importDecl(sc *scope, m modifiers, stmtStart, end int) {
	p.markModule(sc)
	p.i++ // import
	if p.is(p.i, "type") && (p.isBindingName(p.i+1) || p.is(p.i+1, "{") || p.is(p.i+1, "*")) && !p.is(p.i+1, "from") {
		p.i++
	}

	// import "m";
	if isStringTok(p.cur()) {
		p.recordSpec(p.i, stmtStart, true)
		p.i++
		p.endImport(end)
		return
	}

	var bindings []*decl
	addBinding := func(local token, imported string) {
		d := &decl{name: local.text, kind: KindImport, importName: imported, start: local.start, end: local.end, stmtStart: stmtStart, exported: m.exported}
		p.addDecl(sc, d)
		bindings = append(bindings, d)
	}

	// import x = require("m") | import x = A.B
	if p.isBindingName(p.i) && p.is(p.i+1, "=") {
		local := p.cur()
		p.i += 2
		if p.is(p.i, "require") && p.is(p.i+1, "(") {
			addBinding(local, "*")
			p.recordSpec(p.i+2, stmtStart, true)
			bindings[0].moduleSpec = unquote(p.tok(p.i + 2).text)
			p.i = p.tok(p.i+1).match + 1
		} else {
			d := &decl{name: local.text, kind: KindImport, start: local.start, end: local.end, stmtStart: stmtStart}
			p.addDecl(sc, d)
			p.expr(sc, end, stops{})
		}
		p.endImport(end)
		return
	}

	if p.isBindingName(p.i) && !p.is(p.i, "from") || (p.is(p.i, "from") && p.is(p.i+1, "from")) {
		addBinding(p.cur(), "default")
		p.i++
		if p.is(p.i, ",") {
			p.i++
		}
	}
	if p.is(p.i, "*") && p.is(p.i+1, "as") {
		addBinding(p.tok(p.i+2), "*")
		p.i += 3
	}
	var exportRefs []*ref
	if p.is(p.i, "{") && p.cur().match > 0 {
		close := p.cur().match
		p.i++
		for p.i < close {
			before := p.i
			if p.is(p.i, "type") && (p.isBindingName(p.i+1) || p.tok(p.i+1).kind == tokString) && !p.is(p.i+1, "as") {
				p.i++
			}
			if p.tok(p.i).kind == tokIdent || p.tok(p.i).kind == tokString {
				imported := p.cur()
				if p.is(p.i+1, "as") {
					r := &ref{name: unquote(imported.text), start: imported.start, end: imported.end, scope: sc}
					p.f.refs = append(p.f.refs, r)
					exportRefs = append(exportRefs, r)
					addBinding(p.tok(p.i+2), unquote(imported.text))
					p.i += 3
				} else {
					addBinding(imported, imported.text)
					p.i++
				}
			}
			if p.is(p.i, ",") {
				p.i++
			}
			if p.i == before {
				p.i++
			}
		}
		p.i = close + 1
	}
	if p.is(p.i, "from") && isStringTok(p.tok(p.i+1)) {
		p.recordSpec(p.i+1, stmtStart, true)
		spec := unquote(p.tok(p.i + 1).text)
		for _, b := range bindings {
			b.moduleSpec = spec
		}
		for _, r := range exportRefs {
			r.exportOf = spec
		}
		p.i += 2
	}
	p.endImport(end)
}

func (p *parser) endImport(end int) {
	if p.is(p.i, "assert") || p.is(p.i, "with") {
		if p.is(p.i+1, "{") && p.tok(p.i+1).match > 0 {
			p.i = p.tok(p.i+1).match + 1
		}
	}
	p.finishSpec(p.tok(p.i - 1).end)
	if p.is(p.i, ";") {
		p.finishSpec(p.cur().end)
		p.i++
	}
}

func (p *parser) exportAssignment(sc *scope, stmtStart int) {
	p.markModule(sc)
	p.i += 2 // export =
	if p.isName(p.i) {
		r := p.addRef(sc, p.i)
		if p.is(p.i+1, ";") || p.tok(p.i+1).nl || p.tok(p.i+1).kind == tokEOF {
			p.f.exportEq = r
		}
	}
	p.expr(sc, len(p.toks)-1, stops{})
	if p.is(p.i, ";") {
		p.i++
	}
}

func (p *parser) exportDefaultExpr(sc *scope, stmtStart, end int) {
	if p.isName(p.i) && (p.is(p.i+1, ";") || p.tok(p.i+1).nl || p.tok(p.i+1).kind == tokEOF || p.is(p.i+1, "}")) {
		t := p.cur()
		p.addRef(sc, p.i)
		p.i++
		stmtEnd := t.end
		if p.is(p.i, ";") {
			stmtEnd = p.cur().end
			p.i++
		}
		p.f.exports = append(p.f.exports, exportEntry{name: "default", local: t.text, start: stmtStart, end: stmtEnd})
		return
	}
	p.expr(sc, end, stops{})
	if p.is(p.i, ";") {
		p.i++
	}
}

func (p *parser) exportClause(sc *scope, stmtStart int) {
	p.markModule(sc)
	p.i++ // export
	type spec struct {
		local    token
		exported string
	}
	var specs []spec
	star := false
	starAs := ""
	if p.is(p.i, "*") {
		star = true
		p.i++
		if p.is(p.i, "as") {
			starAs = p.tok(p.i + 1).text
			p.i += 2
		}
	} else if p.is(p.i, "{") && p.cur().match > 0 {
		close := p.cur().match
		p.i++
		for p.i < close {
			before := p.i
			if p.is(p.i, "type") && p.tok(p.i+1).kind == tokIdent && !p.is(p.i+1, "as") {
				p.i++
			}
			if p.tok(p.i).kind == tokIdent || p.tok(p.i).kind == tokString {
				s := spec{local: p.cur(), exported: unquote(p.cur().text)}
				p.i++
				if p.is(p.i, "as") {
					s.exported = unquote(p.tok(p.i + 1).text)
					p.i += 2
				}
				specs = append(specs, s)
			}
			if p.is(p.i, ",") {
				p.i++
			}
			if p.i == before {
				p.i++
			}
		}
		p.i = close + 1
	}

	from := ""
	if p.is(p.i, "from") && isStringTok(p.tok(p.i+1)) {
		from = unquote(p.tok(p.i + 1).text)
		p.recordSpec(p.i+1, stmtStart, true)
		p.i += 2
	}
	stmtEnd := p.tok(p.i - 1).end
	if p.is(p.i, ";") {
		stmtEnd = p.cur().end
		p.i++
	}
	if from != "" {
		p.finishSpec(stmtEnd)
	}

	switch {
	case star && starAs != "":
		p.f.exports = append(p.f.exports, exportEntry{name: starAs, local: "*", from: from, start: stmtStart, end: stmtEnd})
	case star:
		p.f.exports = append(p.f.exports, exportEntry{star: true, from: from, start: stmtStart, end: stmtEnd})
	default:
		for _, s := range specs {
			r := &ref{name: unquote(s.local.text), start: s.local.start, end: s.local.end, scope: sc}
			if from != "" {
				r.exportOf = from
			}
			p.f.refs = append(p.f.refs, r)
			p.f.exports = append(p.f.exports, exportEntry{name: s.exported, local: r.name, from: from, start: stmtStart, end: stmtEnd})
		}
	}
}

func (p *parser) control(sc *scope, end int) bool {
	t := p.cur()
	switch t.text {
	case "if", "while", "with":
		p.i++
		if p.is(p.i, "(") {
			p.exprGroup(sc, p.i)
		}
		p.statement(sc, end)
		if t.text == "if" && p.is(p.i, "else") {
			p.i++
			p.statement(sc, end)
		}
		return true
	case "switch":
		p.i++
		if p.is(p.i, "(") {
			p.exprGroup(sc, p.i)
		}
		if p.is(p.i, "{") {
			p.block(sc, scopeBlock)
		}
		return true
	case "for":
		p.i++
		if p.is(p.i, "await") {
			p.i++
		}
		fs := newScope(scopeBlock, sc, p.f)
		if p.is(p.i, "(") && p.cur().match > 0 {
			close := p.cur().match
			p.i++
			if p.is(p.i, "const") || p.is(p.i, "let") || p.is(p.i, "var") {
				p.variables(fs, modifiers{}, p.cur().start, close)
			}
			for p.i < close {
				before := p.i
				p.expr(fs, close, stops{})
				if p.is(p.i, ";") {
					p.i++
				}
				if p.i == before {
					p.i++
				}
			}
			p.i = close + 1
		}
		p.statement(fs, end)
		return true
	case "do":
		p.i++
		p.statement(sc, end)
		if p.is(p.i, "while") {
			p.i++
			if p.is(p.i, "(") {
				p.exprGroup(sc, p.i)
			}
		}
		return true
	case "try":
		p.i++
		if p.is(p.i, "{") {
			p.block(sc, scopeBlock)
		}
		if p.is(p.i, "catch") {
			p.i++
			cs := newScope(scopeBlock, sc, p.f)
			if p.is(p.i, "(") && p.cur().match > 0 {
				close := p.cur().match
				if p.isBindingName(p.i + 1) {
					v := p.tok(p.i + 1)
					p.addDecl(cs, &decl{name: v.text, kind: KindVariable, keyword: "let", start: v.start, end: v.end})
				}
				p.i = close + 1
			}
			if p.is(p.i, "{") {
				p.blockInto(cs)
			}
		}
		if p.is(p.i, "finally") {
			p.i++
			if p.is(p.i, "{") {
				p.block(sc, scopeBlock)
			}
		}
		return true
	case "else":
		p.i++
		p.statement(sc, end)
		return true
	case "return", "throw", "yield", "await", "void", "delete", "typeof", "new":
		p.i++
		if !p.cur().nl {
			p.expr(sc, end, stops{})
		}
		if p.is(p.i, ";") {
			p.i++
		}
		return true
	case "case":
		p.i++
		p.expr(sc, end, stops{colon: true})
		if p.is(p.i, ":") {
			p.i++
		}
		return true
	case "default":
		if p.is(p.i+1, ":") {
			p.i += 2
			return true
		}
	case "break", "continue", "debugger":
		p.i++
		if p.isName(p.i) && !p.cur().nl {
			p.i++
		}
		if p.is(p.i, ";") {
			p.i++
		}
		return true
	}
	return false
}
