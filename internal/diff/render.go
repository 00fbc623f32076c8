package diff

import (
	"html/template"
	"strings"
)

const (
	addedColor   = "green"
	removedColor = "red"
	lineBreak    = "<br>"
)

// PlainText renders the changed segments of s, each prefixed with a single
// '+' (added) or '-' (removed), joined by newlines. Unchanged segments are
// omitted; an empty or unchanged script renders as "".
func PlainText(s Script) string {
	parts := make([]string, 0, len(s))
	for _, seg := range s {
		switch seg.Kind {
		case Added:
			parts = append(parts, "+"+seg.Text)
		case Removed:
			parts = append(parts, "-"+seg.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// MarkupText renders the changed segments of s as HTML. Segment text is
// escaped, line breaks become <br>, and each segment is wrapped in a span
// colored green (added) or red (removed). Segments are joined by <br>.
func MarkupText(s Script) string {
	parts := make([]string, 0, len(s))
	for _, seg := range s {
		var color string
		switch seg.Kind {
		case Added:
			color = addedColor
		case Removed:
			color = removedColor
		default:
			continue
		}
		parts = append(parts, `<span style="color:`+color+`">`+escapeLines(seg.Text)+`</span>`)
	}
	return strings.Join(parts, lineBreak)
}

func escapeLines(text string) string {
	escaped := template.HTMLEscapeString(text)
	escaped = strings.ReplaceAll(escaped, "\r\n", lineBreak)
	return strings.ReplaceAll(escaped, "\n", lineBreak)
}
