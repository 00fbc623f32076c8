package notify

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/sitediff/internal/errors"
	"github.com/hpungsan/sitediff/internal/tracker"
)

// Digest summarizes a batch as markdown: changed URLs with their plain diff,
// then failures, then a count of the rest.
func Digest(results []tracker.Result, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# sitediff run %s\n", at.UTC().Format(time.RFC3339))

	var changed, failed []tracker.Result
	var quiet int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed = append(failed, r)
		case r.IsChanged():
			changed = append(changed, r)
		default:
			quiet++
		}
	}

	if len(changed) > 0 {
		b.WriteString("\n## Changed\n")
		for _, r := range changed {
			added, removed := r.Script().Counts()
			fmt.Fprintf(&b, "\n### %s\n\n+%d -%d lines\n\n", codeSpan(r.URL), added, removed)
			writeFenced(&b, r.Message())
		}
	}

	if len(failed) > 0 {
		b.WriteString("\n## Failed\n\n")
		for _, r := range failed {
			msg := r.Err.Error()
			if sErr, ok := errors.As(r.Err); ok {
				msg = fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message)
			}
			fmt.Fprintf(&b, "- %s: %s\n", codeSpan(r.URL), codeSpan(msg))
		}
	}

	fmt.Fprintf(&b, "\n%d unchanged or new.\n", quiet)
	return b.String()
}

// RenderDigest converts digest markdown to HTML. Raw HTML in the input is not
// passed through.
func RenderDigest(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func codeSpan(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "'") + "`"
}

// writeFenced writes text in a code fence longer than any backtick run it contains.
func writeFenced(b *strings.Builder, text string) {
	fence := "```"
	for strings.Contains(text, fence) {
		fence += "`"
	}
	b.WriteString(fence + "\n")
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(fence + "\n")
}
