package build

import (
	"fmt"
	"time"

	"projd/internal/engine"
	"projd/internal/paths"
)

// inputs lists what a node is built from: its root files, its config and
// extended configs, and the declaration outputs of its upstream nodes.
func (b *Builder) inputs(n *node) []string {
	p := n.parsed
	out := append([]string(nil), p.RootFiles...)
	out = append(out, p.ConfigPath)
	out = append(out, p.Extends...)
	for _, up := range n.upstream {
		out = append(out, declarationOutputs(up)...)
	}
	return out
}

// outputs lists the artifacts a node produces.
func outputs(n *node) []string {
	p := n.parsed
	if p.Options.OutFile != "" {
		return engine.BundleOutputs(p.Options).All()
	}
	return engine.ProjectOutputs(p.RootFiles, p.Options, p.ConfigDir)
}

func declarationOutputs(n *node) []string {
	var out []string
	for _, o := range outputs(n) {
		if paths.IsDeclaration(o) {
			out = append(out, o)
		}
	}
	return out
}

// upToDate decides whether n can be skipped. reason explains an out of
// date result for verbose reports.
func (b *Builder) upToDate(n *node, opts Options) (ok bool, reason string) {
	if opts.Force {
		return false, "a build was forced"
	}
	outs := outputs(n)
	for _, o := range outs {
		if !b.fs.FileExists(o) {
			return false, fmt.Sprintf("output file '%s' does not exist", o)
		}
	}
	inputs := b.inputs(n)

	rec, found, err := b.state.Get(n.path())
	if err != nil {
		b.logger.Warn("Build state unreadable", "project", n.path(), "error", err.Error())
	}
	if found {
		if changed := b.state.Changed(rec, inputs); len(changed) > 0 {
			return false, fmt.Sprintf("input '%s' changed since the last build", changed[0])
		}
		return true, ""
	}

	if len(outs) == 0 {
		return false, "it has never been built"
	}
	var (
		newest     time.Time
		newestPath string
		oldest     time.Time
		oldestPath string
	)
	for _, in := range inputs {
		mt, exists := b.fs.ModTime(in)
		if !exists {
			return false, fmt.Sprintf("input '%s' does not exist", in)
		}
		if newestPath == "" || mt.After(newest) {
			newest, newestPath = mt, in
		}
	}
	for _, o := range outs {
		mt, _ := b.fs.ModTime(o)
		if oldestPath == "" || mt.Before(oldest) {
			oldest, oldestPath = mt, o
		}
	}
	if oldest.Before(newest) {
		return false, fmt.Sprintf("output '%s' is older than input '%s'", oldestPath, newestPath)
	}
	return true, ""
}
