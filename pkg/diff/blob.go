package diff

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineTag classifies one line of a DiffHunk.
type LineTag string

const (
	LineContext LineTag = "context"
	LineAdded   LineTag = "added"
	LineRemoved LineTag = "removed"
)

// DiffLine is one tagged line inside a hunk.
type DiffLine struct {
	Tag  LineTag
	Text string
}

// DiffHunk is a contiguous run of changed lines, in the conventional
// unified-diff shape. Hunks hold only Added and Removed lines; Blob never
// emits LineContext lines around them.
type DiffHunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []DiffLine

	// Binary is set when old/new were not both valid UTF-8; Lines is
	// empty in that case and OldCount/NewCount hold byte lengths.
	Binary bool
}

// Blob compares two text blobs line-by-line using the Myers algorithm
// and returns the resulting hunks. Non-UTF-8 input yields a single
// synthetic binary-difference hunk noting byte counts (§4.9).
func Blob(old, new []byte) []DiffHunk {
	if !utf8.Valid(old) || !utf8.Valid(new) {
		return []DiffHunk{{Binary: true, OldCount: len(old), NewCount: len(new)}}
	}

	dmp := diffmatchpatch.New()
	oldLines, newLines, lineArray := dmp.DiffLinesToChars(string(old), string(new))
	diffs := dmp.DiffMain(oldLines, newLines, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	return buildHunks(diffs)
}

func buildHunks(diffs []diffmatchpatch.Diff) []DiffHunk {
	oldLine, newLine := 1, 1
	var hunk *DiffHunk
	var hunks []DiffHunk

	flush := func() {
		if hunk != nil {
			hunks = append(hunks, *hunk)
			hunk = nil
		}
	}

	for _, d := range diffs {
		lines := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			oldLine += len(lines)
			newLine += len(lines)
		case diffmatchpatch.DiffDelete:
			if hunk == nil {
				hunk = &DiffHunk{OldStart: oldLine, NewStart: newLine}
			}
			for _, l := range lines {
				hunk.Lines = append(hunk.Lines, DiffLine{Tag: LineRemoved, Text: l})
				hunk.OldCount++
			}
			oldLine += len(lines)
		case diffmatchpatch.DiffInsert:
			if hunk == nil {
				hunk = &DiffHunk{OldStart: oldLine, NewStart: newLine}
			}
			for _, l := range lines {
				hunk.Lines = append(hunk.Lines, DiffLine{Tag: LineAdded, Text: l})
				hunk.NewCount++
			}
			newLine += len(lines)
		}
	}
	flush()
	return hunks
}

// splitLines splits a diffmatchpatch chunk into individual lines,
// dropping the trailing empty element a terminal newline produces.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
