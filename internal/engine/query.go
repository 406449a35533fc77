package engine

import "sort"

func (p *program) Definition(file string, pos Position) (*DefinitionInfo, error) {
	f, err := p.file(file)
	if err != nil {
		return nil, err
	}
	targets, tok, ok := p.symbolsAt(f, pos)
	if !ok {
		return &DefinitionInfo{}, nil
	}
	info := &DefinitionInfo{TextSpan: f.span(tok.start, tok.end)}
	for _, d := range dedupe(targets) {
		info.Definitions = append(info.Definitions, d.file.location(d.start, d.end))
	}
	return info, nil
}

func (p *program) References(file string, pos Position) ([]Location, error) {
	f, err := p.file(file)
	if err != nil {
		return nil, err
	}
	targets, _, ok := p.symbolsAt(f, pos)
	if !ok || len(targets) == 0 {
		return nil, nil
	}
	want := make(map[*decl]bool, len(targets))
	for _, d := range targets {
		want[d] = true
	}
	hits := func(ds []*decl) bool {
		for _, d := range ds {
			if want[d] {
				return true
			}
		}
		return false
	}

	r := p.resolver()
	var out []Location
	for _, sf := range p.files {
		type occ struct{ start, end int }
		var found []occ
		for _, d := range sf.decls {
			if d.name == "" {
				continue
			}
			if want[d] || hits(r.follow([]*decl{d})) {
				found = append(found, occ{d.start, d.end})
			}
			for _, m := range d.members {
				if want[m] {
					found = append(found, occ{m.start, m.end})
				}
			}
		}
		for _, x := range sf.refs {
			if hits(r.resolveRef(x)) {
				found = append(found, occ{x.start, x.end})
			}
		}
		sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })
		last := -1
		for _, o := range found {
			if o.start == last {
				continue
			}
			last = o.start
			out = append(out, sf.location(o.start, o.end))
		}
	}
	return out, nil
}

func (p *program) SemanticDiagnostics(file string) []Diagnostic {
	f, err := p.file(file)
	if err != nil {
		return nil
	}
	var out []Diagnostic
	reported := make(map[string]bool)
	for _, spec := range f.specs {
		if reported[spec.spec] {
			continue
		}
		if _, ok := p.module(f, spec.spec); ok {
			continue
		}
		reported[spec.spec] = true
		if d, ok := p.unbuilt[p.canon(f.path)+"\x00"+spec.spec]; ok {
			out = append(out, d)
			continue
		}
		out = append(out, NewFileDiagnostic(f.path, f.span(spec.start, spec.end), CodeCannotFindModule,
			"Cannot find module '%s' or its corresponding type declarations.", spec.spec))
	}

	r := p.resolver()
	for _, d := range f.decls {
		if d.kind != KindImport || d.moduleSpec == "" || d.importName == "*" {
			continue
		}
		t, ok := p.module(f, d.moduleSpec)
		if !ok || (t.scope == t.file.root && !t.file.isModule) {
			continue
		}
		if t.scope == t.file.root && t.file.exportEq != nil {
			continue
		}
		if len(r.exports(t, d.importName, map[*sourceFile]bool{})) > 0 {
			continue
		}
		if d.importName == "default" {
			out = append(out, NewFileDiagnostic(f.path, f.span(d.start, d.end), CodeNoExportedMember,
				"Module '\"%s\"' has no default export.", d.moduleSpec))
			continue
		}
		out = append(out, NewFileDiagnostic(f.path, f.span(d.start, d.end), CodeNoExportedMember,
			"Module '\"%s\"' has no exported member '%s'.", d.moduleSpec, d.importName))
	}
	return out
}

func (p *program) Symbols(file string) []Symbol {
	f, err := p.file(file)
	if err != nil {
		return nil
	}
	r := p.resolver()
	refsOf := make(map[*decl][]TextSpan)
	for _, x := range f.refs {
		for _, d := range r.resolveRef(x) {
			if d.file == f {
				refsOf[d] = append(refsOf[d], f.span(x.start, x.end))
			}
		}
	}

	var out []Symbol
	for _, d := range f.decls {
		if d.name == "" || d.kind == KindParameter || !declarationScope(d.scope) {
			continue
		}
		kind := d.kind
		if kind == KindNamespace && d.scope.kind == scopeAmbientModule {
			kind = KindModule
		}
		out = append(out, Symbol{
			Name:       d.name,
			Qualified:  d.qualifiedName(),
			Kind:       kind,
			Exported:   d.exported,
			Span:       f.span(d.start, d.end),
			References: refsOf[d],
		})
	}
	return out
}

// declarationScope reports whether declarations in s are visible outside
// a function body.
func declarationScope(s *scope) bool {
	switch s.kind {
	case scopeFile, scopeNamespace, scopeAmbientModule, scopeGlobal:
		return true
	}
	return false
}

func dedupe(ds []*decl) []*decl {
	seen := make(map[*decl]bool, len(ds))
	out := ds[:0:0]
	for _, d := range ds {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}
