package build

import (
	"fmt"
	"io"

	"projd/internal/engine"
)

// reporter writes the human-readable build log. A nil writer discards it.
type reporter struct {
	w io.Writer
}

func newReporter(w io.Writer) *reporter {
	if w == nil {
		w = io.Discard
	}
	return &reporter{w: w}
}

func (r *reporter) line(format string, args ...any) {
	fmt.Fprintf(r.w, format+"\n", args...)
}

func (r *reporter) projects(list []string) {
	r.line("Projects in this build:")
	for _, p := range list {
		r.line("    * %s", p)
	}
}

func (r *reporter) diagnostics(diags []engine.Diagnostic) {
	for _, d := range diags {
		r.line("%s", d.String())
	}
}
