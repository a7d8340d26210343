// Package render is the presentation collaborator: Markdown-to-HTML
// conversion and layout templating for the catalog's resources. It
// holds no state machines and no catalog knowledge; everything it
// renders is handed in.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/yuin/goldmark"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

// Page is the template-visible view of one resource.
type Page struct {
	Title   string
	URL     string
	Slug    string
	Date    time.Time
	Summary string
	Content template.HTML
}

// Context is the data handed to a layout template.
type Context struct {
	Site    map[string]any
	Page    Page
	Pages   []Page
	Data    map[string]any
	Content template.HTML
}

// fallback is used for sites that ship no _layouts directory.
const fallback = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Page.Title}}</title></head>
<body>{{.Content}}</body>
</html>
`

// Renderer converts Markdown and applies a site's layout templates.
type Renderer struct {
	md   goldmark.Markdown
	tmpl *template.Template
}

// New loads the layout templates from layoutsDir (every .html file).
// A missing or empty directory is fine; the built-in fallback layout
// is used instead.
func New(layoutsDir string) (*Renderer, error) {
	r := &Renderer{
		// Raw HTML in event content is allowed: the author signs what
		// they publish.
		md: goldmark.New(goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe())),
	}

	pattern := filepath.Join(layoutsDir, "*.html")
	matches, _ := filepath.Glob(pattern)
	if len(matches) == 0 {
		return r, nil
	}

	tmpl, err := template.ParseGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("render: parse layouts: %w", err)
	}
	r.tmpl = tmpl
	return r, nil
}

// MarkdownToHTML converts a Markdown string to HTML.
func (r *Renderer) MarkdownToHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render: markdown: %w", err)
	}
	return buf.String(), nil
}

// RenderPage applies the named layout to the context. Unknown layouts
// fall back to "page.html", then to the built-in layout.
func (r *Renderer) RenderPage(layout string, ctx Context) ([]byte, error) {
	ctx.Content = ctx.Page.Content

	if r.tmpl != nil {
		t := r.tmpl.Lookup(layout)
		if t == nil {
			t = r.tmpl.Lookup("page.html")
		}
		if t != nil {
			var buf bytes.Buffer
			if err := t.Execute(&buf, ctx); err != nil {
				return nil, fmt.Errorf("render: layout %s: %w", layout, err)
			}
			return buf.Bytes(), nil
		}
	}

	t, err := template.New("fallback").Parse(fallback)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("render: fallback layout: %w", err)
	}
	return buf.Bytes(), nil
}

// LayoutsDir returns the conventional layouts directory for a site
// path, if it exists.
func LayoutsDir(sitePath string) string {
	dir := filepath.Join(sitePath, "_layouts")
	if _, err := os.Stat(dir); err != nil {
		return ""
	}
	return dir
}
