package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/servuscms/servus/internal/site"
)

// The site management API is served on the configured admin domain
// only. Callers authenticate each request with a signed authorization
// event over the exact URL and method.

// adminPubkey authenticates the caller. An empty return means the
// denial response has already been written.
func (s *Server) adminPubkey(c echo.Context) string {
	if s.cfg.AdminDomain == "" || stripPort(c.Request().Host) != s.cfg.AdminDomain {
		_ = c.JSON(http.StatusNotFound, map[string]string{
			"error":   "NotFound",
			"message": "Site management is not served on this domain",
		})
		return ""
	}

	ev, err := nostrAuthEvent(c)
	if err != nil {
		_ = c.JSON(http.StatusUnauthorized, map[string]string{
			"error":   "AuthRequired",
			"message": "Authorization header with a signed Nostr event is required",
		})
		return ""
	}

	pubkey, err := ev.RequestAuthPubkey(requestURL(c), c.Request().Method)
	if err != nil {
		_ = c.JSON(http.StatusUnauthorized, map[string]string{
			"error":   "InvalidAuth",
			"message": err.Error(),
		})
		return ""
	}
	return pubkey
}

type createSiteRequest struct {
	Domain string `json:"domain"`
}

// handleCreateSite provisions a site directory for the caller's key.
// POST /api/sites
func (s *Server) handleCreateSite(c echo.Context) error {
	pubkey := s.adminPubkey(c)
	if pubkey == "" {
		return nil
	}

	var req createSiteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "Invalid JSON body",
		})
	}

	req.Domain = strings.TrimSpace(strings.ToLower(req.Domain))
	if req.Domain == "" || strings.ContainsAny(req.Domain, "/\\") {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "domain is required",
		})
	}

	st, err := s.registry.Add(req.Domain, site.Config{
		Pubkey: pubkey,
		URL:    "https://" + req.Domain,
	})
	if err == site.ErrSiteExists {
		return c.JSON(http.StatusConflict, map[string]string{
			"error":   "SiteExists",
			"message": "Site already exists: " + req.Domain,
		})
	}
	if err != nil {
		log.Printf("Error creating site %q: %v", req.Domain, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to create site",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"domain": st.Domain,
		"url":    st.Config.URL,
	})
}

// handleListSites returns the caller's sites.
// GET /api/sites
func (s *Server) handleListSites(c echo.Context) error {
	pubkey := s.adminPubkey(c)
	if pubkey == "" {
		return nil
	}

	owned := s.registry.ByPubkey(pubkey)
	sites := make([]map[string]string, 0, len(owned))
	for _, st := range owned {
		sites = append(sites, map[string]string{
			"domain": st.Domain,
			"url":    st.Config.URL,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"sites": sites,
	})
}
