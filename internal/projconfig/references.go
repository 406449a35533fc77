package projconfig

import "projd/internal/engine"

// ProgramReferences loads every config p references, in declaration order,
// and converts them for the engine. The loaded configs are returned
// alongside so callers can watch them.
func (l *Loader) ProgramReferences(p *Parsed) ([]engine.Reference, []*Parsed) {
	refs := make([]engine.Reference, 0, len(p.References))
	loaded := make([]*Parsed, 0, len(p.References))
	for _, r := range p.References {
		rp := l.Load(r.Path)
		loaded = append(loaded, rp)
		refs = append(refs, EngineReference(rp, r.Prepend))
	}
	return refs, loaded
}

// EngineReference describes a loaded referenced config to the engine.
func EngineReference(rp *Parsed, prepend bool) engine.Reference {
	return engine.Reference{
		ConfigPath: rp.ConfigPath,
		ConfigDir:  rp.ConfigDir,
		RootFiles:  rp.RootFiles,
		Options:    rp.Options,
		Prepend:    prepend,
		Missing:    !rp.Exists,
	}
}
