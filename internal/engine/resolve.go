package engine

// bind indexes global declarations, merged namespaces and ambient modules
// across the program.
func (p *program) bind() {
	for _, f := range p.files {
		if !f.isModule {
			for _, d := range f.root.order {
				p.globals[d.name] = append(p.globals[d.name], d)
			}
		}
		for _, g := range f.globals {
			for _, d := range g.order {
				p.globals[d.name] = append(p.globals[d.name], d)
			}
		}
		for _, ns := range f.namespaces {
			key := namespaceKey(ns)
			p.namespaces[key] = append(p.namespaces[key], ns)
		}
		for _, m := range f.ambientMod {
			p.ambientMod[m.qualified] = append(p.ambientMod[m.qualified], m)
		}
	}
}

// namespaceKey identifies the merge group of a namespace body. Namespaces
// in script files and global blocks merge program wide; those in modules
// merge within their file or ambient module.
func namespaceKey(ns *scope) string {
	for s := ns.parent; s != nil; s = s.parent {
		switch s.kind {
		case scopeGlobal:
			return "g:" + ns.qualified
		case scopeAmbientModule:
			return "m:" + s.qualified + ":" + ns.qualified
		case scopeFile:
			if s.file.isModule {
				return "f:" + s.file.path + ":" + ns.qualified
			}
			return "g:" + ns.qualified
		case scopeFunction, scopeBlock, scopeClass:
			return "l:" + ns.file.path + ":" + ns.qualified
		}
	}
	return "g:" + ns.qualified
}

// module returns the target of specifier spec imported from f.
func (p *program) module(f *sourceFile, spec string) (moduleTarget, bool) {
	if t, ok := p.modules[p.canon(f.path)+"\x00"+spec]; ok {
		return t, true
	}
	if scopes := p.ambientMod[spec]; len(scopes) > 0 {
		return moduleTarget{file: scopes[0].file, scope: scopes[0]}, true
	}
	return moduleTarget{}, false
}

type resolver struct {
	p    *program
	seen map[*decl]bool
}

func (p *program) resolver() *resolver {
	return &resolver{p: p, seen: make(map[*decl]bool)}
}

// resolveRef returns the declarations an identifier occurrence names,
// following import aliases to the original declaration.
func (r *resolver) resolveRef(x *ref) []*decl {
	switch {
	case x.exportOf != "":
		t, ok := r.p.module(x.scope.file, x.exportOf)
		if !ok {
			return nil
		}
		return r.exports(t, x.name, map[*sourceFile]bool{})
	case x.qual != nil:
		var out []*decl
		for _, q := range r.resolveRef(x.qual) {
			out = append(out, r.member(q, x.name)...)
		}
		return out
	}
	return r.lookup(x.scope, x.name)
}

// lookup walks the scope chain, then merged namespace bodies, then the
// program's globals.
func (r *resolver) lookup(sc *scope, name string) []*decl {
	for s := sc; s != nil; s = s.parent {
		if s.kind == scopeFile && !s.file.isModule {
			break
		}
		if ds := s.decls[name]; len(ds) > 0 {
			return r.follow(ds)
		}
		if s.kind == scopeNamespace {
			if ds := r.namespaceMembers(s, name); len(ds) > 0 {
				return r.follow(ds)
			}
		}
	}
	return r.follow(r.p.globals[name])
}

// namespaceMembers finds exported name in every other body merged with ns.
func (r *resolver) namespaceMembers(ns *scope, name string) []*decl {
	var out []*decl
	for _, body := range r.p.namespaces[namespaceKey(ns)] {
		if body == ns {
			continue
		}
		for _, d := range body.decls[name] {
			if d.exported || body.ambient {
				out = append(out, d)
			}
		}
	}
	return out
}

// follow replaces import bindings with the declarations they alias.
func (r *resolver) follow(ds []*decl) []*decl {
	var out []*decl
	for _, d := range ds {
		if d.kind != KindImport || d.moduleSpec == "" || d.importName == "*" {
			out = append(out, d)
			continue
		}
		if r.seen[d] {
			continue
		}
		r.seen[d] = true
		targets := r.importTargets(d)
		delete(r.seen, d)
		if len(targets) == 0 {
			out = append(out, d)
			continue
		}
		out = append(out, targets...)
	}
	return out
}

func (r *resolver) importTargets(d *decl) []*decl {
	t, ok := r.p.module(d.file, d.moduleSpec)
	if !ok {
		return nil
	}
	out := r.exports(t, d.importName, map[*sourceFile]bool{})
	if len(out) == 0 && d.importName == "default" && t.scope == t.file.root && t.file.exportEq != nil {
		out = r.resolveRef(t.file.exportEq)
	}
	return out
}

// exports resolves name among the exports of a module.
func (r *resolver) exports(t moduleTarget, name string, visited map[*sourceFile]bool) []*decl {
	if t.scope != t.file.root {
		var out []*decl
		for _, m := range r.p.ambientMod[t.scope.qualified] {
			out = append(out, m.decls[name]...)
		}
		return r.follow(out)
	}
	f := t.file
	if visited[f] {
		return nil
	}
	visited[f] = true

	if f.exportEq != nil {
		var out []*decl
		for _, d := range r.resolveRef(f.exportEq) {
			out = append(out, r.member(d, name)...)
		}
		return out
	}

	var out []*decl
	for _, d := range f.root.order {
		if !d.exported {
			continue
		}
		if (name == "default" && d.isDefault) || (d.name == name && !d.isDefault) {
			out = append(out, d)
		}
	}
	for _, e := range f.exports {
		if e.star || e.name != name {
			continue
		}
		switch {
		case e.from != "" && e.local == "*":
			continue
		case e.from != "":
			if next, ok := r.p.module(f, e.from); ok {
				out = append(out, r.exports(next, e.local, visited)...)
			}
		default:
			out = append(out, r.lookup(f.root, e.local)...)
		}
	}
	if len(out) == 0 && name != "default" {
		for _, e := range f.exports {
			if !e.star {
				continue
			}
			if next, ok := r.p.module(f, e.from); ok {
				out = append(out, r.exports(next, name, visited)...)
			}
		}
	}
	return r.follow(out)
}

// member resolves the property name of the entity declared by d.
func (r *resolver) member(d *decl, name string) []*decl {
	switch d.kind {
	case KindNamespace:
		if d.body == nil {
			return nil
		}
		var out []*decl
		for _, body := range r.p.namespaces[namespaceKey(d.body)] {
			for _, m := range body.decls[name] {
				if m.exported || body.ambient {
					out = append(out, m)
				}
			}
		}
		return r.follow(out)
	case KindEnum:
		if d.body != nil {
			return d.body.decls[name]
		}
	case KindClass:
		var out []*decl
		for _, m := range d.members {
			if m.name == name {
				out = append(out, m)
			}
		}
		return out
	case KindImport:
		if d.importName == "*" && d.moduleSpec != "" {
			if t, ok := r.p.module(d.file, d.moduleSpec); ok {
				return r.exports(t, name, map[*sourceFile]bool{})
			}
		}
	}
	return nil
}

// declAt returns the declaration whose name token starts at off in f.
func declAt(f *sourceFile, off int) *decl {
	for _, d := range f.decls {
		if d.start == off && d.name != "" {
			return d
		}
		for _, m := range d.members {
			if m.start == off {
				return m
			}
		}
	}
	return nil
}

func refAt(f *sourceFile, off int) *ref {
	for _, x := range f.refs {
		if x.start == off {
			return x
		}
	}
	return nil
}

// symbolsAt resolves the identifier at pos to its declarations.
func (p *program) symbolsAt(f *sourceFile, pos Position) ([]*decl, token, bool) {
	tok, ok := f.tokenAt(pos)
	if !ok {
		return nil, token{}, false
	}
	r := p.resolver()
	if d := declAt(f, tok.start); d != nil {
		return r.follow([]*decl{d}), tok, true
	}
	if x := refAt(f, tok.start); x != nil {
		return r.resolveRef(x), tok, true
	}
	return nil, tok, true
}
