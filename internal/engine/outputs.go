package engine

import "projd/internal/paths"

// Outputs lists the artifacts produced for one input file.
type Outputs struct {
	JS             string
	Declaration    string
	DeclarationMap string
}

// All returns the non-empty output paths.
func (o Outputs) All() []string {
	var out []string
	for _, p := range []string{o.JS, o.Declaration, o.DeclarationMap} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// OutputPaths computes where file is emitted. Declaration inputs produce
// nothing. With outFile every input shares the bundle outputs.
func OutputPaths(file string, opts CompilerOptions, configDir string) Outputs {
	if opts.NoEmit || paths.IsDeclaration(file) || paths.HasExt(file, paths.ExtJSON) {
		return Outputs{}
	}
	if opts.OutFile != "" {
		return BundleOutputs(opts)
	}

	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = configDir
	}
	rel := paths.Rel(rootDir, file)

	jsBase := file
	if opts.OutDir != "" {
		jsBase = paths.Join(opts.OutDir, rel)
	}
	out := Outputs{JS: paths.ChangeExt(jsBase, paths.ExtJS)}
	if opts.EmitsDeclarations() {
		dtsBase := jsBase
		if opts.DeclarationDir != "" {
			dtsBase = paths.Join(opts.DeclarationDir, rel)
		}
		out.Declaration = paths.ChangeExt(dtsBase, paths.ExtDTS)
		if opts.DeclarationMap {
			out.DeclarationMap = out.Declaration + ".map"
		}
	}
	return out
}

// BundleOutputs returns the outFile artifacts, or nothing without outFile.
func BundleOutputs(opts CompilerOptions) Outputs {
	if opts.OutFile == "" || opts.NoEmit {
		return Outputs{}
	}
	out := Outputs{JS: paths.ChangeExt(opts.OutFile, paths.ExtJS)}
	if opts.EmitsDeclarations() {
		out.Declaration = paths.ChangeExt(opts.OutFile, paths.ExtDTS)
		if opts.DeclarationMap {
			out.DeclarationMap = out.Declaration + ".map"
		}
	}
	return out
}

// ProjectOutputs lists every output of a project, deduplicated, in input
// order.
func ProjectOutputs(rootFiles []string, opts CompilerOptions, configDir string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range rootFiles {
		for _, p := range OutputPaths(f, opts, configDir).All() {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
