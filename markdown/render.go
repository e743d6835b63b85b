// Package markdown converts model replies from markdown to sanitized HTML.
package markdown

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Renderer turns markdown into HTML that is safe to insert into a page.
// Raw HTML in the input is omitted, never passed through.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// New creates a Renderer with tables and strikethrough enabled.
func New() *Renderer {
	policy := bluemonday.UGCPolicy().
		AllowURLSchemes("http", "https", "mailto").
		RequireNoFollowOnLinks(true).
		AllowAttrs("class").OnElements("code", "pre")

	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Table, extension.Strikethrough),
		),
		policy: policy,
		strict: bluemonday.StrictPolicy(),
	}
}

// Render converts markdown text to sanitized HTML.
// Input the parser rejects is returned HTML-escaped.
func (r *Renderer) Render(text string) string {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return html.EscapeString(text)
	}
	return r.policy.Sanitize(buf.String())
}

// Plain renders text and strips every tag, leaving the visible text only.
// For text without markdown syntax, Render(Plain(x)) == Render(x).
func (r *Renderer) Plain(text string) string {
	stripped := r.strict.Sanitize(r.Render(text))
	return strings.TrimSpace(html.UnescapeString(stripped))
}

var defaultRenderer = New()

// Render converts markdown to sanitized HTML with the default Renderer.
func Render(text string) string {
	return defaultRenderer.Render(text)
}

// Plain returns the visible text of rendered markdown using the default Renderer.
func Plain(text string) string {
	return defaultRenderer.Plain(text)
}
