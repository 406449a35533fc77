package engine

import (
	"strings"

	"projd/internal/declmap"
	"projd/internal/paths"
)

// Emit writes nothing itself; it returns the JS, declaration and
// declaration map texts for the program's source files.
func (p *program) Emit() (*EmitResult, error) {
	opts := p.opts.Options
	res := &EmitResult{}
	if opts.NoEmit || len(p.roots) == 0 {
		return res, nil
	}
	var sources []*sourceFile
	for _, f := range p.files {
		if f.isDecl || f.path == p.libFile || paths.HasExt(f.path, paths.ExtJSON) {
			continue
		}
		sources = append(sources, f)
	}
	if opts.OutFile != "" {
		p.emitBundle(res, sources)
		return res, nil
	}
	for _, f := range sources {
		out := OutputPaths(f.path, opts, p.opts.ConfigDir)
		res.Outputs = append(res.Outputs, OutputFile{Path: out.JS, Text: f.text})
		if out.Declaration == "" {
			continue
		}
		w := newDTSWriter(out.Declaration, out.DeclarationMap)
		w.declareFile(f)
		res.Outputs = append(res.Outputs, w.finish()...)
	}
	return res, nil
}

func (p *program) emitBundle(res *EmitResult, sources []*sourceFile) {
	out := BundleOutputs(p.opts.Options)

	var js strings.Builder
	for _, ref := range p.prepends() {
		if data, err := p.fs.ReadFile(BundleOutputs(ref.Options).JS); err == nil {
			js.WriteString(stripMapURL(string(data)))
		}
	}
	for _, f := range sources {
		js.WriteString(f.text)
		if !strings.HasSuffix(f.text, "\n") {
			js.WriteByte('\n')
		}
	}
	res.Outputs = append(res.Outputs, OutputFile{Path: out.JS, Text: js.String()})
	if out.Declaration == "" {
		return
	}

	w := newDTSWriter(out.Declaration, out.DeclarationMap)
	for _, ref := range p.prepends() {
		refOut := BundleOutputs(ref.Options)
		data, err := p.fs.ReadFile(refOut.Declaration)
		if err != nil {
			continue
		}
		var m *declmap.Map
		if refOut.DeclarationMap != "" {
			if raw, err := p.fs.ReadFile(refOut.DeclarationMap); err == nil {
				m, _ = declmap.Parse(raw)
			}
		}
		w.prepend(stripMapURL(string(data)), m, refOut.DeclarationMap)
	}
	for _, f := range sources {
		w.declareFile(f)
	}
	res.Outputs = append(res.Outputs, w.finish()...)
}

func (p *program) prepends() []Reference {
	var out []Reference
	for _, ref := range p.opts.References {
		if ref.Prepend && !ref.Missing && ref.Options.OutFile != "" {
			out = append(out, ref)
		}
	}
	return out
}

func stripMapURL(text string) string {
	if i := strings.LastIndex(text, "//# sourceMappingURL="); i >= 0 {
		text = text[:i]
	}
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text
}

type dtsWriter struct {
	path    string
	mapPath string
	sb      strings.Builder
	line    int
	col     int
	maps    *declmap.Builder
}

func newDTSWriter(path, mapPath string) *dtsWriter {
	w := &dtsWriter{path: path, mapPath: mapPath}
	if mapPath != "" {
		w.maps = declmap.NewBuilder(paths.Base(path))
	}
	return w
}

func (w *dtsWriter) write(s string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			w.line++
			w.col = 0
		} else {
			w.col++
		}
	}
	w.sb.WriteString(s)
}

func (w *dtsWriter) indent(level int) {
	w.write(strings.Repeat("    ", level))
}

// mark maps the current output position to offset off of f.
func (w *dtsWriter) mark(f *sourceFile, off int) {
	if w.maps == nil {
		return
	}
	pos := f.lines.Position(off)
	w.maps.Add(declmap.Mapping{
		GenLine:   w.line,
		GenColumn: w.col,
		Source:    w.maps.Source(paths.Rel(paths.Dir(w.mapPath), f.path)),
		Line:      pos.Line - 1,
		Column:    pos.Offset - 1,
	})
}

// name writes a declared name with mappings at both ends.
func (w *dtsWriter) name(d *decl) {
	w.mark(d.file, d.start)
	w.write(d.name)
	w.mark(d.file, d.end)
}

func (w *dtsWriter) prepend(text string, m *declmap.Map, mapPath string) {
	startLine := w.line
	w.write(text)
	if m == nil || w.maps == nil {
		return
	}
	for _, seg := range m.Decoded() {
		src := m.SourcePath(mapPath, seg.Source)
		w.maps.Add(declmap.Mapping{
			GenLine:   seg.GenLine + startLine,
			GenColumn: seg.GenColumn,
			Source:    w.maps.Source(paths.Rel(paths.Dir(w.mapPath), src)),
			Line:      seg.Line,
			Column:    seg.Column,
		})
	}
}

func (w *dtsWriter) finish() []OutputFile {
	if w.maps == nil {
		return []OutputFile{{Path: w.path, Text: w.sb.String()}}
	}
	w.write(declmap.URLComment(w.mapPath))
	m := w.maps.Build()
	data, err := m.Marshal()
	if err != nil {
		return []OutputFile{{Path: w.path, Text: w.sb.String()}}
	}
	return []OutputFile{
		{Path: w.path, Text: w.sb.String()},
		{Path: w.mapPath, Text: string(data)},
	}
}

func (w *dtsWriter) declareFile(f *sourceFile) {
	before := w.sb.Len()
	copied := make(map[int]bool)
	if f.isModule {
		for _, spec := range f.specs {
			if !spec.verbatim || spec.stmtEnd <= spec.stmtStart || copied[spec.stmtStart] {
				continue
			}
			copied[spec.stmtStart] = true
			w.copyStatement(f, spec.stmtStart, spec.stmtEnd)
		}
	}
	w.declarations(f.root, 0)
	if f.isModule {
		for _, e := range f.exports {
			if e.from != "" || copied[e.start] || e.end <= e.start {
				continue
			}
			if e.name == "default" && hasDefaultDecl(f, e.local) {
				continue
			}
			copied[e.start] = true
			w.copyStatement(f, e.start, e.end)
		}
		if f.exportEq != nil {
			w.write("export = " + f.exportEq.name + ";\n")
		}
		if w.sb.Len() == before {
			w.write("export {};\n")
		}
	}
}

func hasDefaultDecl(f *sourceFile, name string) bool {
	for _, d := range f.root.decls[name] {
		if d.isDefault {
			return true
		}
	}
	return false
}

func (w *dtsWriter) copyStatement(f *sourceFile, start, end int) {
	w.mark(f, start)
	text := strings.TrimSpace(f.text[start:end])
	if !strings.HasSuffix(text, ";") {
		text += ";"
	}
	w.write(text + "\n")
}

// declarations writes the declarable members of sc.
func (w *dtsWriter) declarations(sc *scope, level int) {
	inNamespace := sc.kind == scopeNamespace
	overloaded := make(map[string]bool)
	for _, d := range sc.order {
		if d.kind == KindFunction && d.overload {
			overloaded[d.name] = true
		}
	}
	for _, d := range sc.order {
		switch {
		case d.kind == KindImport || d.kind == KindParameter || d.name == "":
			continue
		case (inNamespace || sc.file.isModule) && !d.exported:
			continue
		case d.kind == KindFunction && !d.overload && overloaded[d.name]:
			continue
		}
		w.declaration(d, level, inNamespace)
	}
}

func (w *dtsWriter) prefix(d *decl, level int, inNamespace bool) {
	w.indent(level)
	w.mark(d.file, d.stmtStart)
	if inNamespace {
		return
	}
	if d.scope.file.isModule && d.exported {
		w.write("export ")
		if d.isDefault {
			w.write("default ")
			return
		}
	}
	if d.kind != KindInterface && d.kind != KindType {
		w.write("declare ")
	}
}

func (w *dtsWriter) declaration(d *decl, level int, inNamespace bool) {
	f := d.file
	switch d.kind {
	case KindFunction:
		w.prefix(d, level, inNamespace)
		w.write("function ")
		w.name(d)
		w.write(d.typeParams + stripInitializers(d.params) + ": " + d.returnTypeText() + ";\n")
	case KindVariable:
		w.prefix(d, level, inNamespace)
		keyword := d.keyword
		if keyword == "" {
			keyword = "var"
		}
		w.write(keyword + " ")
		w.name(d)
		switch {
		case d.typeAnn != "":
			w.write(": " + d.typeAnn)
		case keyword == "const" && d.literal != "":
			w.write(" = " + d.literal)
		case d.literal != "":
			w.write(": " + literalKind(d.literal))
		default:
			w.write(": any")
		}
		w.write(";\n")
	case KindClass:
		w.prefix(d, level, inNamespace)
		if d.hasModifier("abstract") {
			w.write("abstract ")
		}
		w.write("class ")
		w.name(d)
		w.write(d.typeParams)
		if d.heritage != "" {
			w.write(" " + d.heritage)
		}
		w.write(" {\n")
		for _, m := range d.members {
			w.member(m, level+1)
		}
		w.indent(level)
		w.write("}\n")
	case KindInterface, KindType, KindEnum:
		w.prefix(d, level, inNamespace)
		w.write(f.text[d.bodyStart:d.start])
		w.name(d)
		rest := f.text[d.end:d.stmtEnd]
		if d.kind == KindType && !strings.HasSuffix(strings.TrimSpace(rest), ";") {
			rest += ";"
		}
		w.write(rest + "\n")
	case KindNamespace:
		if d.body == nil {
			return
		}
		w.prefix(d, level, inNamespace)
		w.write("namespace ")
		w.name(d)
		w.write(" {\n")
		w.declarations(d.body, level+1)
		w.indent(level)
		w.write("}\n")
	}
}

var keptMemberModifiers = []string{"private", "protected", "public", "static", "abstract", "readonly", "get", "set"}

func (w *dtsWriter) member(m *decl, level int) {
	w.indent(level)
	w.mark(m.file, m.stmtStart)
	for _, mod := range keptMemberModifiers {
		if m.hasModifier(mod) {
			w.write(mod + " ")
		}
	}
	w.name(m)
	if m.optional {
		w.write("?")
	}
	if m.hasModifier("private") {
		w.write(";\n")
		return
	}
	switch {
	case m.isMethod && m.name == "constructor":
		w.write(stripInitializers(m.params) + ";\n")
	case m.isMethod && m.hasModifier("set"):
		w.write(stripInitializers(m.params) + ";\n")
	case m.isMethod:
		w.write(m.typeParams + stripInitializers(m.params) + ": " + m.returnTypeText() + ";\n")
	case m.typeAnn != "":
		w.write(": " + m.typeAnn + ";\n")
	case m.literal != "" && m.literal != "any":
		w.write(": " + m.literal + ";\n")
	default:
		w.write(": any;\n")
	}
}

func (d *decl) returnTypeText() string {
	switch {
	case d.returnType != "":
		return d.returnType
	case d.returnKind != "":
		if d.hasModifier("async") {
			return "Promise<" + d.returnKind + ">"
		}
		return d.returnKind
	}
	return "any"
}

// literalKind names the type of a literal initializer.
func literalKind(lit string) string {
	switch {
	case lit == "true" || lit == "false":
		return "boolean"
	case strings.HasPrefix(lit, "\"") || strings.HasPrefix(lit, "'") || strings.HasPrefix(lit, "`"):
		return "string"
	case lit != "":
		return "number"
	}
	return "any"
}

// stripInitializers removes default values from a parameter list, marking
// the affected parameters optional.
func stripInitializers(params string) string {
	if !strings.Contains(params, "=") {
		return params
	}
	toks := scan(params).tokens
	var sb strings.Builder
	last := 0
	depth := 0
	typed := false
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind != tokPunct {
			continue
		}
		switch t.text {
		case "(", "[", "{", "<":
			depth++
		case ")", "]", "}", ">":
			depth--
		case ",":
			if depth == 1 {
				typed = false
			}
		case ":":
			if depth == 1 {
				typed = true
			}
		case "=":
			if depth != 1 || (i+1 < len(toks) && toks[i+1].text == ">") {
				continue
			}
			head := strings.TrimRight(params[last:t.start], " ")
			sb.WriteString(head)
			if !typed {
				sb.WriteString("?")
			}
			j := i + 1
			inner := 0
			for ; j < len(toks); j++ {
				x := toks[j]
				if x.kind != tokPunct {
					continue
				}
				if x.text == "(" || x.text == "[" || x.text == "{" {
					inner++
				}
				if x.text == ")" || x.text == "]" || x.text == "}" {
					if inner == 0 {
						break
					}
					inner--
				}
				if x.text == "," && inner == 0 {
					break
				}
			}
			if j >= len(toks) {
				return sb.String()
			}
			last = toks[j].start
			i = j - 1
		}
	}
	sb.WriteString(params[last:])
	return sb.String()
}
