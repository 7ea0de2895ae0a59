package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"nurture_backend/platform/sanitize"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title     string
	Signature string
}

type nurtureEmailData struct {
	baseEmailData
	Paragraphs [][]string
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// linkify escapes a line and turns bare URLs into anchors.
func linkify(line string) template.HTML {
	var b strings.Builder
	last := 0
	for _, loc := range urlPattern.FindAllStringIndex(line, -1) {
		b.WriteString(template.HTMLEscapeString(line[last:loc[0]]))
		u := template.HTMLEscapeString(line[loc[0]:loc[1]])
		b.WriteString(`<a href="` + u + `">` + u + `</a>`)
		last = loc[1]
	}
	b.WriteString(template.HTMLEscapeString(line[last:]))
	return template.HTML(b.String())
}

var funcs = template.FuncMap{"linkify": linkify}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").Funcs(funcs).ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

// splitParagraphs breaks plain text on blank lines, keeping single line breaks.
func splitParagraphs(text string) [][]string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out [][]string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.Trim(block, "\n")
		if strings.TrimSpace(block) == "" {
			continue
		}
		out = append(out, strings.Split(block, "\n"))
	}
	return out
}

// RenderNurture wraps a rendered step or campaign body in the branded layout.
// Markup in the body is flattened to text first so substituted contact data
// is always escaped.
func RenderNurture(subject, body, signature string) (string, error) {
	return renderEmailTemplate("nurture.html", nurtureEmailData{
		baseEmailData: baseEmailData{Title: subject, Signature: signature},
		Paragraphs:    splitParagraphs(sanitize.ToText(body)),
	})
}

// RenderReply wraps an operator's follow-up to an inbound reply.
func RenderReply(subject, body, signature string) (string, error) {
	return RenderNurture(subject, body, signature)
}
