//go:build !cgo

package engine

// treeSitterDiagnostics is unavailable without cgo; the scanner's own
// checks still run.
func treeSitterDiagnostics(*sourceFile) []Diagnostic { return nil }
