// Package sanitize converts mail markup to plain text.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/k3a/html2text"
)

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	styleBlockRegex = regexp.MustCompile(`(?is)<(style|script|head)[^>]*>.*?</(style|script|head)>`)
	whitespaceRegex = regexp.MustCompile(`[ \t\f\v]+`)
	blankLinesRegex = regexp.MustCompile(`\n{3,}`)
)

// LooksLikeHTML reports whether a body should be stripped before parsing.
func LooksLikeHTML(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<div") ||
		strings.Contains(lower, "<p>") || strings.Contains(lower, "<br") || strings.Contains(lower, "<table")
}

// PlainText renders HTML as readable text, keeping line breaks between blocks.
func PlainText(s string) string {
	text := html2text.HTML2Text(styleBlockRegex.ReplaceAllString(s, ""))
	return normalize(text)
}

// StripHTML removes tags with a regex and decodes the common entities.
// Cheaper than PlainText and used where only tokens matter.
func StripHTML(s string) string {
	result := styleBlockRegex.ReplaceAllString(s, " ")
	result = htmlTagRegex.ReplaceAllString(result, " ")
	result = strings.NewReplacer(
		"&nbsp;", " ",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", "\"",
		"&#39;", "'",
		"&amp;", "&",
	).Replace(result)
	return normalize(result)
}

// ToText strips markup only when the body looks like HTML.
func ToText(s string) string {
	if LooksLikeHTML(s) {
		return PlainText(s)
	}
	return strings.TrimSpace(s)
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankLinesRegex.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
