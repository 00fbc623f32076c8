// Package diff computes line-level edit scripts between two texts and renders
// them for plain-text and HTML consumers.
//
// Edit scripts are minimal over whole lines (each line keeps its trailing
// newline): the unchanged lines form a longest common subsequence of the two
// texts. Adjacent lines of the same kind are merged into one segment, so an
// unchanged text yields exactly one unchanged segment.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Kind tags a segment of an edit script.
type Kind int

const (
	Unchanged Kind = iota
	Added
	Removed
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "unchanged":
		*k = Unchanged
	case "added":
		*k = Added
	case "removed":
		*k = Removed
	default:
		return fmt.Errorf("unknown segment kind %q", string(b))
	}
	return nil
}

// Segment is a run of consecutive lines sharing a kind.
type Segment struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

// Script is an ordered edit script from a baseline to a candidate.
type Script []Segment

// HasChanges reports whether any segment is added or removed.
func (s Script) HasChanges() bool {
	for _, seg := range s {
		if seg.Kind != Unchanged {
			return true
		}
	}
	return false
}

// Counts returns the number of added and removed lines.
func (s Script) Counts() (added, removed int) {
	for _, seg := range s {
		n := len(SplitLines(seg.Text))
		switch seg.Kind {
		case Added:
			added += n
		case Removed:
			removed += n
		}
	}
	return added, removed
}

// Compute returns the line edit script turning baseline into candidate.
// A changed character anywhere in a line marks the whole line removed and
// re-added. Within a run of edits, removals come before additions.
func Compute(baseline, candidate string) Script {
	var lines lineTable
	a := lines.encode(SplitLines(baseline))
	b := lines.encode(SplitLines(candidate))

	// No timeout: the half-match shortcut and the bisect deadline both trade
	// minimality for speed.
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	var script Script
	for _, d := range dmp.DiffMainRunes(a, b, false) {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			script = script.push(Unchanged, lines.decode(d.Text))
		case diffmatchpatch.DiffDelete:
			script = script.push(Removed, lines.decode(d.Text))
		case diffmatchpatch.DiffInsert:
			script = script.push(Added, lines.decode(d.Text))
		}
	}
	return script
}

// lineTable maps each distinct line to one rune so the Myers diff runs over
// lines instead of characters. Surrogate code points are skipped so every
// rune survives a round trip through a string.
type lineTable struct {
	ids   map[string]rune
	lines map[rune]string
	next  rune
}

func (t *lineTable) encode(lines []string) []rune {
	if t.ids == nil {
		t.ids = make(map[string]rune)
		t.lines = make(map[rune]string)
		t.next = 1
	}
	out := make([]rune, len(lines))
	for i, l := range lines {
		id, ok := t.ids[l]
		if !ok {
			id = t.next
			t.ids[l], t.lines[id] = id, l
			t.next++
			if t.next == 0xD800 {
				t.next = 0xE000
			}
		}
		out[i] = id
	}
	return out
}

func (t *lineTable) decode(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, t.lines[r])
	}
	return out
}

// push appends lines as a segment of kind k, merging into the last segment
// when it has the same kind.
func (s Script) push(k Kind, lines []string) Script {
	if len(lines) == 0 {
		return s
	}
	text := strings.Join(lines, "")
	if n := len(s); n > 0 && s[n-1].Kind == k {
		s[n-1].Text += text
		return s
	}
	return append(s, Segment{Kind: k, Text: text})
}

// SplitLines splits s into lines, keeping each line's trailing newline.
// The last line has no newline when s does not end with one.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
