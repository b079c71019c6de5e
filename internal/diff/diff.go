// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package diff computes line-based diffs in unified format for file-change
// previews.
package diff

import (
	"fmt"
	"strings"
)

// =============================================================================
// DIFF TYPES
// =============================================================================

// LineType classifies a diff line.
type LineType int

const (
	// LineContext is an unchanged line present in both versions.
	LineContext LineType = iota
	// LineAdded is a line present only in the new version.
	LineAdded
	// LineRemoved is a line present only in the old version.
	LineRemoved
)

// Prefix returns the unified-diff prefix character for the line type.
func (t LineType) Prefix() string {
	switch t {
	case LineAdded:
		return "+"
	case LineRemoved:
		return "-"
	default:
		return " "
	}
}

// Line is a single line of a computed diff.
type Line struct {
	Type    LineType
	Content string
	OldLine int // 1-based line number in the old text, 0 if added
	NewLine int // 1-based line number in the new text, 0 if removed
}

// Hunk is a contiguous run of changes with surrounding context.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// ContextLines is the number of unchanged lines kept around each change.
const ContextLines = 3

// =============================================================================
// COMPUTATION
// =============================================================================

// Compute diffs two texts line by line using an LCS alignment and groups the
// result into hunks with ContextLines of context.
func Compute(oldText, newText string) []Hunk {
	oldLines := splitLines(oldText)
	newLines := splitLines(newText)

	lines := align(oldLines, newLines)
	return groupHunks(lines)
}

// HasChanges reports whether the two texts differ.
func HasChanges(oldText, newText string) bool {
	return oldText != newText
}

// align produces the full diff line sequence via LCS.
func align(oldLines, newLines []string) []Line {
	m, n := len(oldLines), len(newLines)

	// LCS length table.
	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if oldLines[i] == newLines[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var lines []Line
	i, j := 0, 0
	for i < m && j < n {
		switch {
		case oldLines[i] == newLines[j]:
			lines = append(lines, Line{Type: LineContext, Content: oldLines[i], OldLine: i + 1, NewLine: j + 1})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			lines = append(lines, Line{Type: LineRemoved, Content: oldLines[i], OldLine: i + 1})
			i++
		default:
			lines = append(lines, Line{Type: LineAdded, Content: newLines[j], NewLine: j + 1})
			j++
		}
	}
	for ; i < m; i++ {
		lines = append(lines, Line{Type: LineRemoved, Content: oldLines[i], OldLine: i + 1})
	}
	for ; j < n; j++ {
		lines = append(lines, Line{Type: LineAdded, Content: newLines[j], NewLine: j + 1})
	}
	return lines
}

// groupHunks splits a full diff line sequence into hunks, keeping
// ContextLines of unchanged lines around each change.
func groupHunks(lines []Line) []Hunk {
	var hunks []Hunk
	var current []Line
	contextRun := 0
	seenChange := false

	flush := func() {
		if !seenChange || len(current) == 0 {
			current = nil
			contextRun = 0
			seenChange = false
			return
		}
		// Trim trailing context beyond the window.
		for len(current) > 0 && current[len(current)-1].Type == LineContext && contextRun > ContextLines {
			current = current[:len(current)-1]
			contextRun--
		}
		hunks = append(hunks, makeHunk(current))
		current = nil
		contextRun = 0
		seenChange = false
	}

	for _, line := range lines {
		if line.Type == LineContext {
			contextRun++
			current = append(current, line)
			// A long unchanged run separates hunks.
			if seenChange && contextRun > 2*ContextLines {
				flush()
			}
			// Keep only the trailing context window while no change seen yet.
			if !seenChange {
				for len(current) > ContextLines {
					current = current[1:]
				}
			}
			continue
		}
		contextRun = 0
		seenChange = true
		current = append(current, line)
	}
	flush()

	return hunks
}

// makeHunk computes the header ranges for a hunk's lines.
func makeHunk(lines []Line) Hunk {
	h := Hunk{Lines: lines}
	for _, l := range lines {
		if l.OldLine > 0 {
			if h.OldStart == 0 {
				h.OldStart = l.OldLine
			}
			h.OldCount++
		}
		if l.NewLine > 0 {
			if h.NewStart == 0 {
				h.NewStart = l.NewLine
			}
			h.NewCount++
		}
	}
	if h.OldStart == 0 {
		h.OldStart = 1
	}
	if h.NewStart == 0 {
		h.NewStart = 1
	}
	return h
}

// =============================================================================
// FORMATTING
// =============================================================================

// Format renders hunks as a unified diff with standard ---/+++ headers.
func Format(path string, hunks []Hunk) string {
	if len(hunks) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	for _, h := range hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			b.WriteString(l.Type.Prefix())
			b.WriteString(l.Content)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Unified computes and renders the diff between two texts in one call.
func Unified(path, oldText, newText string) string {
	return Format(path, Compute(oldText, newText))
}

// splitLines splits text into lines without their terminators. A trailing
// newline does not produce a final empty line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}
