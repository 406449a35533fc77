package projconfig

import (
	"projd/internal/engine"
	"projd/internal/paths"
)

// FindConfig searches dir and its ancestors for the nearest config file.
func (l *Loader) FindConfig(dir string) (string, bool) {
	for _, candidate := range CandidatePaths(dir) {
		if l.fs.FileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// CandidatePaths lists every config path that could own a file in dir,
// nearest first.
func CandidatePaths(dir string) []string {
	var out []string
	for _, d := range paths.Ancestors(dir) {
		for _, name := range ConfigNames {
			out = append(out, paths.Join(d, name))
		}
	}
	return out
}

// TypesDirectory returns the automatic type acquisition directory for a
// config directory.
func TypesDirectory(configDir string) string {
	return paths.Join(configDir, "node_modules", "@types")
}

func fileNotFound(p *Parsed, file string) engine.Diagnostic {
	d := engine.NewDiagnostic(engine.CodeFileNotFound, "File '%s' not found.", file)
	d.File = p.ConfigPath
	return d
}
