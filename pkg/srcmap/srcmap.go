// Package srcmap maps byte offsets in a source file back to line and
// column numbers, feeding the scanner, parser, compiler, and VM
// diagnostics (§4.3 / C1).
//
// A SourceMap is built once per compilation unit from the raw source
// text and the displayed filename/working directory, then consulted
// read-only for the rest of the pipeline's lifetime.
package srcmap

import (
	"strings"

	"golang.org/x/exp/slices"
)

// SourceMap holds a source file's text plus a sorted index of
// line-start byte offsets, enabling O(log n) offset-to-line lookup.
type SourceMap struct {
	Text     string
	Filename string
	WorkDir  string

	lineStarts []int // lineStarts[i] = byte offset where line i+1 begins
}

// New builds a SourceMap by scanning text once for line starts.
func New(filename, workDir, text string) *SourceMap {
	sm := &SourceMap{Text: text, Filename: filename, WorkDir: workDir}
	sm.lineStarts = []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			sm.lineStarts = append(sm.lineStarts, i+1)
		}
	}
	return sm
}

// Position is a resolved line/column pair, both 1-based.
type Position struct {
	Line   int
	Column int
}

// LineOf resolves a byte offset to a 1-based line/column position via
// binary search over the line-start index.
func (sm *SourceMap) LineOf(offset int) Position {
	// Find the last line start <= offset.
	idx, found := slices.BinarySearch(sm.lineStarts, offset)
	if !found {
		idx-- // BinarySearch returns insertion point; step back to containing line
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sm.lineStarts) {
		idx = len(sm.lineStarts) - 1
	}
	lineStart := sm.lineStarts[idx]
	return Position{Line: idx + 1, Column: offset - lineStart + 1}
}

// TextOfLine returns the text of the given 1-based line number,
// without its trailing newline.
func (sm *SourceMap) TextOfLine(n int) string {
	if n < 1 || n > len(sm.lineStarts) {
		return ""
	}
	start := sm.lineStarts[n-1]
	end := len(sm.Text)
	if n < len(sm.lineStarts) {
		end = sm.lineStarts[n] - 1
	}
	if end < start {
		end = start
	}
	return strings.TrimRight(sm.Text[start:end], "\r")
}
