package campaigns

import (
	"strings"
	"testing"

	"nurture_backend/platform/sanitize"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedExtractRoundTrip(t *testing.T) {
	body := "<html><body><p>Hi Jane,</p><p>See you soon.</p></body></html>"
	embedded := Embed(body, "A1B2C3D4")

	strippers := map[string]func(string) string{
		"raw":       func(s string) string { return s },
		"regex":     sanitize.StripHTML,
		"html2text": sanitize.PlainText,
		"quoted":    func(s string) string { return "> " + strings.ReplaceAll(sanitize.StripHTML(s), "\n", "\n> ") },
	}
	for name, strip := range strippers {
		t.Run(name, func(t *testing.T) {
			token, ok := Extract(strip(embedded))
			require.True(t, ok)
			assert.Equal(t, "A1B2C3D4", token)
		})
	}
}

func TestEmbedPlacesMarkerBeforeClosingBody(t *testing.T) {
	out := Embed("<body>x</BODY>", "0000ffff")
	assert.True(t, strings.HasSuffix(out, "</BODY>"))
	assert.Contains(t, out, "Ref #0000FFFF")
}

func TestEmbedWithoutBodyTagAppends(t *testing.T) {
	out := Embed("<p>hello</p>", "DEADBEEF")
	assert.True(t, strings.HasPrefix(out, "<p>hello</p>"))
	assert.Contains(t, out, "Ref #DEADBEEF")
}

func TestEmbedIgnoresInvalidToken(t *testing.T) {
	assert.Equal(t, "<p>x</p>", Embed("<p>x</p>", ""))
	assert.Equal(t, "<p>x</p>", Embed("<p>x</p>", "XYZ"))
}

func TestExtract(t *testing.T) {
	cases := []struct {
		text  string
		token string
		ok    bool
	}{
		{"thanks! Ref #ABCDEF12", "ABCDEF12", true},
		{"old thread CID:0123ABCD and Ref #FFFFFFFF", "0123ABCD", true},
		{"ref #abcdef12", "ABCDEF12", true},
		{"Ref #ABC", "", false},
		{"Ref #ABCDEF123", "", false},
		{"no marker here", "", false},
	}
	for _, tc := range cases {
		token, ok := Extract(tc.text)
		assert.Equal(t, tc.ok, ok, tc.text)
		assert.Equal(t, tc.token, token, tc.text)
	}
}

func TestNewToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		token, err := NewToken()
		require.NoError(t, err)
		assert.True(t, ValidToken(token))
		assert.Equal(t, strings.ToUpper(token), token)
		seen[token] = true
	}
	assert.Greater(t, len(seen), 1)
}
