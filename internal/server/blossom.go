package server

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/servuscms/servus/internal/blob"
	"github.com/servuscms/servus/internal/site"
)

// handleBlobUpload stores the request body as a content-addressed blob.
// PUT /upload, authorized by a signed "upload" grant from the site
// owner in the Authorization header.
func (s *Server) handleBlobUpload(c echo.Context) error {
	st := s.siteFor(c)
	if st == nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error":   "SiteNotFound",
			"message": "No site configured for host: " + stripPort(c.Request().Host),
		})
	}

	if !s.authorizeBlobAction(c, st, "upload") {
		return nil
	}

	maxSize := s.cfg.BlobMaxSize
	if maxSize <= 0 {
		maxSize = blob.DefaultMaxSize
	}
	store := s.blobsFor(st)
	body := http.MaxBytesReader(nil, c.Request().Body, maxSize+1)
	data, err := io.ReadAll(body)
	if err != nil {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
			"error":   "BlobTooLarge",
			"message": "Upload exceeds the maximum blob size",
		})
	}

	meta, err := store.Put(data)
	switch {
	case errors.Is(err, blob.ErrTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
			"error":   "BlobTooLarge",
			"message": err.Error(),
		})
	case errors.Is(err, blob.ErrTypeNotAllowed):
		return c.JSON(http.StatusUnsupportedMediaType, map[string]string{
			"error":   "TypeNotAllowed",
			"message": err.Error(),
		})
	case err != nil:
		log.Printf("Error storing blob on %s: %v", st.Domain, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to store blob",
		})
	}

	log.Printf("Blob %s (%s, %d bytes) stored on %s", meta.SHA256, meta.Type, meta.Size, st.Domain)
	return c.JSON(http.StatusOK, meta)
}

// handleBlobDelete removes a blob. DELETE /<sha256>, authorized by a
// signed "delete" grant from the site owner.
func (s *Server) handleBlobDelete(c echo.Context) error {
	st := s.siteFor(c)
	if st == nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error":   "SiteNotFound",
			"message": "No site configured for host: " + stripPort(c.Request().Host),
		})
	}

	if !s.authorizeBlobAction(c, st, "delete") {
		return nil
	}

	hash := c.Param("hash")
	if err := s.blobsFor(st).Delete(hash); err != nil {
		log.Printf("Error deleting blob %s on %s: %v", hash, st.Domain, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to delete blob",
		})
	}

	log.Printf("Blob %s deleted from %s", hash, st.Domain)
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Blob deleted: " + hash,
	})
}

// authorizeBlobAction checks the time-boxed storage grant and that it
// was signed by the site owner. On denial the JSON error response is
// written and false returned.
func (s *Server) authorizeBlobAction(c echo.Context, st *site.Site, action string) bool {
	ev, err := nostrAuthEvent(c)
	if err != nil {
		_ = c.JSON(http.StatusUnauthorized, map[string]string{
			"error":   "AuthRequired",
			"message": "Authorization header with a signed Nostr event is required",
		})
		return false
	}

	pubkey, err := ev.BlobAuthPubkey(action)
	if err != nil {
		_ = c.JSON(http.StatusUnauthorized, map[string]string{
			"error":   "InvalidAuth",
			"message": err.Error(),
		})
		return false
	}
	if pubkey != st.Config.Pubkey {
		_ = c.JSON(http.StatusForbidden, map[string]string{
			"error":   "Forbidden",
			"message": "Signer does not own this site",
		})
		return false
	}
	return true
}
