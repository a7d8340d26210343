package server

import (
	"errors"
	"html/template"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/servuscms/servus/internal/blob"
	"github.com/servuscms/servus/internal/render"
	"github.com/servuscms/servus/internal/site"
)

// handleGet is the catch-all read path: a WebSocket upgrade on the root
// becomes a relay connection; otherwise the path is resolved against
// the standard resources, the blob store, the resource catalog (with an
// index fallback for directory-ish paths), and finally the site's
// static files.
func (s *Server) handleGet(c echo.Context) error {
	st := s.siteFor(c)
	if st == nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error":   "SiteNotFound",
			"message": "No site configured for host: " + stripPort(c.Request().Host),
		})
	}

	path := c.Request().URL.Path
	if path == "/" && websocket.IsWebSocketUpgrade(c.Request()) {
		return s.handleRelay(c, st)
	}

	switch path {
	case "/robots.txt":
		return s.handleRobots(c, st)
	case "/sitemap.xml":
		return s.handleSitemap(c, st)
	case "/atom.xml":
		return s.handleAtom(c, st)
	case "/.well-known/nostr.json":
		return s.handleNostrJSON(c, st)
	}

	if hash, ok := blobHashPath(path); ok {
		return s.serveBlob(c, st, hash)
	}

	url := strings.TrimSuffix(path, "/")
	if url == "" {
		url = "/index"
	}
	res, ok := st.Resource(url)
	if !ok {
		// "/docs" may be backed by "docs/index.md".
		res, ok = st.Resource(url + "/index")
	}
	if ok {
		return s.serveResource(c, st, res)
	}

	return s.serveStatic(c, st, path)
}

// serveResource renders a catalog resource: Markdown content through
// goldmark, then the site layout named after the resource kind
// (post.html, page.html, note.html).
func (s *Server) serveResource(c echo.Context, st *site.Site, res *site.Resource) error {
	body, err := st.ResourceBody(res)
	if err != nil {
		log.Printf("Error reading resource %s on %s: %v", res.Slug, st.Domain, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to read resource",
		})
	}

	r := s.rendererFor(st)

	html := body
	if !strings.HasSuffix(res.FilePath, ".html") {
		html, err = r.MarkdownToHTML(body)
		if err != nil {
			log.Printf("Error rendering %s on %s: %v", res.Slug, st.Domain, err)
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error":   "InternalError",
				"message": "Failed to render resource",
			})
		}
	}

	ctx := render.Context{
		Site:  siteContext(st),
		Pages: postPages(st),
		Data:  st.Data,
		Page: render.Page{
			Title:   res.Title,
			URL:     res.URL(&st.Config),
			Slug:    res.Slug,
			Date:    res.Date,
			Content: template.HTML(html),
		},
	}

	out, err := r.RenderPage(res.Kind.String()+".html", ctx)
	if err != nil {
		log.Printf("Error rendering %s on %s: %v", res.Slug, st.Domain, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to render resource",
		})
	}
	return c.HTMLBlob(http.StatusOK, out)
}

// serveStatic serves plain files from the site directory (stylesheets,
// images). Underscore-prefixed paths hold internal state and are never
// exposed.
func (s *Server) serveStatic(c echo.Context, st *site.Site, path string) error {
	rel := filepath.Clean(strings.TrimPrefix(path, "/"))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return echo.ErrNotFound
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, "_") || strings.HasPrefix(part, ".") {
			return echo.ErrNotFound
		}
	}

	full := filepath.Join(st.Path, rel)
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return echo.ErrNotFound
	}
	return c.File(full)
}

// serveBlob returns a stored blob with its recorded content type.
func (s *Server) serveBlob(c echo.Context, st *site.Site, hash string) error {
	data, meta, err := s.blobsFor(st).Get(hash)
	if errors.Is(err, blob.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error":   "BlobNotFound",
			"message": "No blob stored under " + hash,
		})
	}
	if err != nil {
		log.Printf("Error reading blob %s on %s: %v", hash, st.Domain, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to read blob",
		})
	}
	return c.Blob(http.StatusOK, meta.Type, data)
}

// blobHashPath reports whether the path is a bare blob reference:
// a 64-character hex digest, optionally with a file extension.
func blobHashPath(path string) (string, bool) {
	name := strings.TrimPrefix(path, "/")
	if idx := strings.IndexByte(name, '.'); idx != -1 {
		name = name[:idx]
	}
	if len(name) != 64 || strings.ContainsRune(name, '/') {
		return "", false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", false
		}
	}
	return name, true
}

// siteContext is the template-visible view of the site configuration.
func siteContext(st *site.Site) map[string]any {
	return map[string]any{
		"domain": st.Domain,
		"title":  st.Config.Title,
		"url":    st.Config.URL,
		"pubkey": st.Config.Pubkey,
	}
}

// postPages lists the site's posts newest first, for layouts that
// render an index or archive.
func postPages(st *site.Site) []render.Page {
	var pages []render.Page
	for _, res := range st.Resources() {
		if res.Kind != site.ResourcePost {
			continue
		}
		pages = append(pages, render.Page{
			Title: res.Title,
			URL:   res.URL(&st.Config),
			Slug:  res.Slug,
			Date:  res.Date,
		})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Date.After(pages[j].Date) })
	return pages
}
