// Package conversion renders agent text replies from markdown to HTML
// that is safe to embed in the chat view.
package conversion

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/mermaid"
)

// Converter handles markdown-to-HTML conversion with configurable options.
// It is safe for concurrent use once constructed.
type Converter struct {
	extensions []goldmark.Extender
	md         goldmark.Markdown
	sanitizer  *bluemonday.Policy
}

// Option configures the Converter.
type Option func(*Converter)

// WithHighlighting enables syntax highlighting of fenced code with the given
// chroma style.
func WithHighlighting(style string) Option {
	return func(c *Converter) {
		c.extensions = append(c.extensions, highlighting.NewHighlighting(
			highlighting.WithStyle(style),
		))
	}
}

// WithMermaid renders ```mermaid fences as <pre class="mermaid"> blocks for
// the browser-side renderer. No script tag is emitted.
func WithMermaid() Option {
	return func(c *Converter) {
		c.extensions = append(c.extensions, &mermaid.Extender{
			RenderMode: mermaid.RenderModeClient,
			NoScript:   true,
		})
	}
}

// WithSanitization enables HTML sanitization using the provided policy.
func WithSanitization(policy *bluemonday.Policy) Option {
	return func(c *Converter) {
		c.sanitizer = policy
	}
}

// NewConverter creates a new Converter with the given options.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		extensions: []goldmark.Extender{extension.GFM},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.md = goldmark.New(
		goldmark.WithExtensions(c.extensions...),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)
	return c
}

// DefaultConverter returns a converter with default settings suitable for agent messages.
func DefaultConverter() *Converter {
	return NewConverter(
		WithMermaid(),
		WithHighlighting("monokai"),
		WithSanitization(CreateSanitizer()),
	)
}

// CreateSanitizer creates a bluemonday policy that allows safe HTML for markdown rendering.
func CreateSanitizer() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()

	// Highlighting and mermaid classes.
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre", "span", "div")

	// Heading anchors.
	p.AllowAttrs("id").Matching(bluemonday.Paragraph).OnElements("h1", "h2", "h3", "h4", "h5", "h6")

	return p
}

// Convert converts markdown text to HTML.
func (c *Converter) Convert(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}

	result := buf.String()
	if c.sanitizer != nil {
		result = c.sanitizer.Sanitize(result)
	}
	return result, nil
}

// ConvertToSafeHTML converts markdown and falls back to escaped
// preformatted text when conversion fails.
func (c *Converter) ConvertToSafeHTML(markdown string) string {
	result, err := c.Convert(markdown)
	if err != nil {
		return "<pre>" + EscapeHTML(markdown) + "</pre>"
	}
	return result
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML escapes special HTML characters.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
