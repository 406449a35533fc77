// Package declmap reads and writes declaration maps: version 3 source maps
// that relate positions in an emitted .d.ts back to the source it was
// produced from.
package declmap

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"projd/internal/paths"
)

// Mapping relates a generated position to a source position. All fields
// are zero-based.
type Mapping struct {
	GenLine   int
	GenColumn int
	Source    int
	Line      int
	Column    int
}

// Map is a parsed source map.
type Map struct {
	Version    int      `json:"version"`
	File       string   `json:"file"`
	SourceRoot string   `json:"sourceRoot"`
	Sources    []string `json:"sources"`
	Names      []string `json:"names"`
	Mappings   string   `json:"mappings"`

	decoded []Mapping
}

// Builder accumulates mappings for one generated file.
type Builder struct {
	file     string
	sources  []string
	mappings []Mapping
}

// NewBuilder starts a map for the generated file named file. Sources are
// stored as given, normally relative to the map's directory.
func NewBuilder(file string, sources ...string) *Builder {
	return &Builder{file: file, sources: sources}
}

// Add records a mapping.
func (b *Builder) Add(m Mapping) {
	b.mappings = append(b.mappings, m)
}

// Source returns the index of a source path, adding it when new.
func (b *Builder) Source(path string) int {
	for i, s := range b.sources {
		if s == path {
			return i
		}
	}
	b.sources = append(b.sources, path)
	return len(b.sources) - 1
}

// Len returns the number of recorded mappings.
func (b *Builder) Len() int { return len(b.mappings) }

// Build encodes the accumulated mappings.
func (b *Builder) Build() *Map {
	ms := append([]Mapping(nil), b.mappings...)
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].GenLine != ms[j].GenLine {
			return ms[i].GenLine < ms[j].GenLine
		}
		return ms[i].GenColumn < ms[j].GenColumn
	})

	var sb strings.Builder
	var prevSource, prevLine, prevColumn int
	line := 0
	for i, m := range ms {
		for line < m.GenLine {
			sb.WriteByte(';')
			line++
		}
		prevGenColumn := 0
		if i > 0 && ms[i-1].GenLine == m.GenLine {
			sb.WriteByte(',')
			prevGenColumn = ms[i-1].GenColumn
		}
		appendVLQ(&sb, m.GenColumn-prevGenColumn)
		appendVLQ(&sb, m.Source-prevSource)
		appendVLQ(&sb, m.Line-prevLine)
		appendVLQ(&sb, m.Column-prevColumn)
		prevSource, prevLine, prevColumn = m.Source, m.Line, m.Column
	}

	sources := b.sources
	if sources == nil {
		sources = []string{}
	}
	return &Map{
		Version:  3,
		File:     b.file,
		Sources:  sources,
		Names:    []string{},
		Mappings: sb.String(),
		decoded:  ms,
	}
}

// Marshal renders the map as JSON.
func (m *Map) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Parse decodes a JSON source map.
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("declmap: %w", err)
	}
	if m.Version != 3 {
		return nil, fmt.Errorf("declmap: unsupported version %d", m.Version)
	}
	decoded, err := decode(m.Mappings, len(m.Sources))
	if err != nil {
		return nil, err
	}
	m.decoded = decoded
	return &m, nil
}

func decode(s string, nsources int) ([]Mapping, error) {
	var out []Mapping
	var source, line, column int
	genLine := 0
	for _, group := range strings.Split(s, ";") {
		genColumn := 0
		for _, seg := range strings.Split(group, ",") {
			if seg == "" {
				continue
			}
			var fields []int
			for i := 0; i < len(seg); {
				v, next, err := readVLQ(seg, i)
				if err != nil {
					return nil, err
				}
				fields = append(fields, v)
				i = next
			}
			genColumn += fields[0]
			if len(fields) < 4 {
				continue
			}
			source += fields[1]
			line += fields[2]
			column += fields[3]
			if source < 0 || source >= nsources {
				return nil, fmt.Errorf("declmap: source index %d out of range", source)
			}
			out = append(out, Mapping{GenLine: genLine, GenColumn: genColumn, Source: source, Line: line, Column: column})
		}
		genLine++
	}
	return out, nil
}

// Decoded returns the mappings in generated order.
func (m *Map) Decoded() []Mapping { return m.decoded }

// Lookup maps a zero-based generated position to its source. A position
// between segments uses the nearest earlier segment on the same line.
func (m *Map) Lookup(genLine, genColumn int) (Mapping, bool) {
	var best *Mapping
	for i := range m.decoded {
		seg := &m.decoded[i]
		if seg.GenLine != genLine {
			if seg.GenLine > genLine {
				break
			}
			continue
		}
		if seg.GenColumn > genColumn {
			break
		}
		best = seg
	}
	if best == nil {
		return Mapping{}, false
	}
	return *best, true
}

// SourcePath resolves source index i against the directory of mapPath.
func (m *Map) SourcePath(mapPath string, i int) string {
	src := m.Sources[i]
	if m.SourceRoot != "" {
		src = paths.Join(m.SourceRoot, src)
	}
	return paths.Resolve(paths.Dir(mapPath), src)
}

// URLComment is the trailer linking a generated file to its map.
func URLComment(mapPath string) string {
	return "//# sourceMappingURL=" + paths.Base(mapPath)
}

// FindURL extracts the map location named by a sourceMappingURL trailer in
// generated, resolved against the generated file's directory.
func FindURL(generatedPath, generated string) (string, bool) {
	const marker = "//# sourceMappingURL="
	i := strings.LastIndex(generated, marker)
	if i < 0 {
		return "", false
	}
	rest := generated[i+len(marker):]
	if j := strings.IndexAny(rest, "\r\n"); j >= 0 {
		rest = rest[:j]
	}
	rest = strings.TrimSpace(rest)
	if rest == "" || strings.HasPrefix(rest, "data:") {
		return "", false
	}
	return paths.Resolve(paths.Dir(generatedPath), rest), true
}
