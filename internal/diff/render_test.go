package diff

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func pageScript() Script {
	return Compute(
		"title\n<p>old</p>\nfooter\n",
		"title\n<p>new & improved</p>\nfooter\nextra\n",
	)
}

func TestPlainText_Golden(t *testing.T) {
	newGoldie(t).Assert(t, "page_plain", []byte(PlainText(pageScript())))
}

func TestMarkupText_Golden(t *testing.T) {
	// Trailing newline keeps the fixture file editor-friendly.
	newGoldie(t).Assert(t, "page_markup", []byte(MarkupText(pageScript())+"\n"))
}

func TestRenderers_EmptyScript(t *testing.T) {
	require.Equal(t, "", PlainText(nil))
	require.Equal(t, "", MarkupText(nil))
	require.Equal(t, "", PlainText(Script{}))
	require.Equal(t, "", MarkupText(Script{}))
}

func TestRenderers_OmitUnchanged(t *testing.T) {
	s := Script{{Kind: Unchanged, Text: "same\n"}}
	require.Equal(t, "", PlainText(s))
	require.Equal(t, "", MarkupText(s))
}

func TestPlainText_Markers(t *testing.T) {
	s := Compute("a\nb\nc", "a\nx\nc")
	require.Equal(t, "-b\n\n+x\n", PlainText(s))
}

func TestMarkupText_EscapesScript(t *testing.T) {
	s := Script{{Kind: Added, Text: "<script>alert('x')</script>\n"}}
	out := MarkupText(s)

	require.NotContains(t, out, "<script>")
	require.NotContains(t, out, "</script>")
	require.Contains(t, out, "&lt;script&gt;")
	require.True(t, strings.HasPrefix(out, `<span style="color:green">`))
}

func TestMarkupText_ColorsAndBreaks(t *testing.T) {
	s := Script{
		{Kind: Removed, Text: "a\r\nb\n"},
		{Kind: Added, Text: "c"},
	}
	require.Equal(t,
		`<span style="color:red">a<br>b<br></span><br><span style="color:green">c</span>`,
		MarkupText(s))
}
