package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksLikeHTML(t *testing.T) {
	assert.True(t, LooksLikeHTML("<HTML><body>x</body></HTML>"))
	assert.True(t, LooksLikeHTML("<div>hi</div>"))
	assert.True(t, LooksLikeHTML("<p>hi</p>"))
	assert.False(t, LooksLikeHTML("a < b and c > d"))
}

func TestStripHTMLRemovesTagsAndStyles(t *testing.T) {
	in := `<html><head><style>p{color:red}</style></head><body><p>Hi Jane,</p><p>Code &amp; link</p></body></html>`
	out := StripHTML(in)

	assert.NotContains(t, out, "<")
	assert.NotContains(t, out, "color:red")
	assert.Contains(t, out, "Hi Jane,")
	assert.Contains(t, out, "Code & link")
}

func TestPlainTextKeepsText(t *testing.T) {
	out := PlainText(`<div><p>Hi Jane Doe,</p><p>Your promotion code is SAVE20</p></div>`)

	assert.Contains(t, out, "Hi Jane Doe,")
	assert.Contains(t, out, "Your promotion code is SAVE20")
	assert.NotContains(t, out, "<p>")
}

func TestToTextLeavesPlainBodiesAlone(t *testing.T) {
	assert.Equal(t, "Hi Jane,\nthanks", ToText("  Hi Jane,\nthanks \n"))
}
