package server

import (
	"encoding/xml"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/servuscms/servus/internal/site"
)

// Standard resources derived from the catalog: robots.txt, sitemap.xml,
// the Atom feed and the NIP-05 identity document. None of them are
// stored; they are rendered from the resource map on every request.

func (s *Server) handleRobots(c echo.Context, st *site.Site) error {
	return c.String(http.StatusOK, "User-agent: *\nSitemap: "+st.Config.URL+"/sitemap.xml\n")
}

type sitemapURL struct {
	Loc string `xml:"loc"`
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

func (s *Server) handleSitemap(c echo.Context, st *site.Site) error {
	set := sitemapURLSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for url := range st.Resources() {
		set.URLs = append(set.URLs, sitemapURL{Loc: st.Config.URL + url})
	}
	sort.Slice(set.URLs, func(i, j int) bool { return set.URLs[i].Loc < set.URLs[j].Loc })

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		log.Printf("Error building sitemap for %s: %v", st.Domain, err)
		return echo.ErrInternalServerError
	}
	return c.Blob(http.StatusOK, "application/xml", append([]byte(xml.Header), out...))
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
}

type atomEntry struct {
	Title   string   `xml:"title"`
	Link    atomLink `xml:"link"`
	ID      string   `xml:"id"`
	Updated string   `xml:"updated"`
}

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	XMLNS   string      `xml:"xmlns,attr"`
	Title   string      `xml:"title"`
	Link    atomLink    `xml:"link"`
	ID      string      `xml:"id"`
	Updated string      `xml:"updated"`
	Entries []atomEntry `xml:"entry"`
}

// handleAtom renders the posts feed, newest first.
func (s *Server) handleAtom(c echo.Context, st *site.Site) error {
	feed := atomFeed{
		XMLNS: "http://www.w3.org/2005/Atom",
		Title: st.Config.Title,
		Link:  atomLink{Href: st.Config.URL},
		ID:    st.Config.URL + "/",
	}

	type dated struct {
		res *site.Resource
		url string
	}
	var posts []dated
	for url, res := range st.Resources() {
		if res.Kind == site.ResourcePost {
			posts = append(posts, dated{res, url})
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].res.Date.After(posts[j].res.Date) })

	updated := time.Time{}
	for _, p := range posts {
		if p.res.Date.After(updated) {
			updated = p.res.Date
		}
		feed.Entries = append(feed.Entries, atomEntry{
			Title:   p.res.Title,
			Link:    atomLink{Href: st.Config.URL + p.url},
			ID:      st.Config.URL + p.url,
			Updated: p.res.Date.UTC().Format(time.RFC3339),
		})
	}
	if updated.IsZero() {
		updated = time.Now()
	}
	feed.Updated = updated.UTC().Format(time.RFC3339)

	out, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		log.Printf("Error building feed for %s: %v", st.Domain, err)
		return echo.ErrInternalServerError
	}
	return c.Blob(http.StatusOK, "application/atom+xml", append([]byte(xml.Header), out...))
}

// handleNostrJSON serves the NIP-05 identity document mapping the
// wildcard name to the site owner's key.
func (s *Server) handleNostrJSON(c echo.Context, st *site.Site) error {
	return c.JSON(http.StatusOK, map[string]any{
		"names": map[string]string{"_": st.Config.Pubkey},
	})
}
