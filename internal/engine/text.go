package engine

import "sort"

// LineMap converts byte offsets into 1-based positions and back.
type LineMap struct {
	starts []int
	size   int
}

// NewLineMap indexes the line starts of text.
func NewLineMap(text string) *LineMap {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineMap{starts: starts, size: len(text)}
}

// Position returns the 1-based position of offset.
func (m *LineMap) Position(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > m.size {
		offset = m.size
	}
	line := sort.Search(len(m.starts), func(i int) bool { return m.starts[i] > offset }) - 1
	return Position{Line: line + 1, Offset: offset - m.starts[line] + 1}
}

// Offset returns the byte offset of pos, clamped to the text.
func (m *LineMap) Offset(pos Position) int {
	line := pos.Line - 1
	if line < 0 {
		return 0
	}
	if line >= len(m.starts) {
		return m.size
	}
	off := m.starts[line] + pos.Offset - 1
	if off > m.size {
		return m.size
	}
	if off < m.starts[line] {
		return m.starts[line]
	}
	return off
}

// Span converts a byte range into a TextSpan.
func (m *LineMap) Span(start, end int) TextSpan {
	return TextSpan{Start: m.Position(start), End: m.Position(end)}
}

// Lines returns the number of lines.
func (m *LineMap) Lines() int { return len(m.starts) }
