// Package server provides the HTTP server for servus, built on Echo
// v4. Each hosted domain gets the same surface: the relay WebSocket on
// the root path, rendered resources on GET, the Blossom blob endpoints,
// and (on the admin domain) the site management API.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/acme/autocert"

	"github.com/servuscms/servus/internal/blob"
	"github.com/servuscms/servus/internal/config"
	"github.com/servuscms/servus/internal/nostr"
	"github.com/servuscms/servus/internal/render"
	"github.com/servuscms/servus/internal/site"
)

// Server wraps the Echo instance and application dependencies.
type Server struct {
	echo     *echo.Echo
	cfg      *config.Config
	registry *site.Registry
	upgrader websocket.Upgrader

	mu        sync.Mutex
	renderers map[string]*render.Renderer
	blobs     map[string]*blob.Store
}

// New creates a configured Echo server with all routes registered.
func New(cfg *config.Config, registry *site.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true // We log the listen address ourselves.

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	s := &Server{
		echo:     e,
		cfg:      cfg,
		registry: registry,
		upgrader: websocket.Upgrader{
			// The relay endpoint is public; clients connect from
			// arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		renderers: map[string]*render.Renderer{},
		blobs:     map[string]*blob.Store{},
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// Admin API. Only answered on the configured admin domain.
	s.echo.POST("/api/sites", s.handleCreateSite)
	s.echo.GET("/api/sites", s.handleListSites)

	// Blossom blob storage.
	s.echo.PUT("/upload", s.handleBlobUpload)
	s.echo.DELETE("/:hash", s.handleBlobDelete)

	// Everything else: relay upgrade, resources, blobs, static files.
	s.echo.GET("/", s.handleGet)
	s.echo.GET("/*", s.handleGet)
}

// Start begins listening for HTTP requests. It blocks until the context
// is cancelled, then performs a graceful shutdown allowing in-flight
// requests to complete.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.ACME {
			s.echo.AutoTLSManager.Cache = autocert.DirCache(s.cfg.ACMECacheDir)
			s.echo.AutoTLSManager.HostPolicy = autocert.HostWhitelist(s.registry.Domains()...)
			s.echo.AutoTLSManager.Email = s.cfg.ACMEEmail
			log.Printf("Listening on %s (TLS via ACME)", s.cfg.ListenAddr)
			err = s.echo.StartAutoTLS(s.cfg.ListenAddr)
		} else {
			log.Printf("Listening on %s", s.cfg.ListenAddr)
			err = s.echo.Start(s.cfg.ListenAddr)
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("Shutting down HTTP server...")
		return s.echo.Shutdown(context.Background())
	}
}

// siteFor resolves the tenant from the request's Host header.
func (s *Server) siteFor(c echo.Context) *site.Site {
	return s.registry.Get(stripPort(c.Request().Host))
}

// rendererFor returns the site's cached renderer, creating it (and
// parsing the site's layouts) on first use.
func (s *Server) rendererFor(st *site.Site) *render.Renderer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.renderers[st.Domain]; ok {
		return r
	}
	r, err := render.New(render.LayoutsDir(st.Path))
	if err != nil {
		log.Printf("Layouts for %s: %v", st.Domain, err)
		r, _ = render.New("")
	}
	s.renderers[st.Domain] = r
	return r
}

// blobsFor returns the site's blob store, rooted at <site>/_blossom.
func (s *Server) blobsFor(st *site.Site) *blob.Store {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.blobs[st.Domain]; ok {
		return b
	}
	b := blob.NewStore(filepath.Join(st.Path, "_blossom"), st.Config.URL, s.cfg.BlobMaxSize, s.cfg.BlobAllowedTypes)
	s.blobs[st.Domain] = b
	return b
}

// nostrAuthEvent decodes the signed authorization event carried in the
// Authorization header ("Nostr " followed by the base64 of the event
// JSON). Validation of the event itself is up to the caller.
func nostrAuthEvent(c echo.Context) (*nostr.Event, error) {
	h := c.Request().Header.Get("Authorization")
	const prefix = "Nostr "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return nil, fmt.Errorf("nostr: missing authorization event")
	}
	raw, err := base64.StdEncoding.DecodeString(h[len(prefix):])
	if err != nil {
		return nil, fmt.Errorf("nostr: malformed authorization header: %w", err)
	}
	var ev nostr.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("nostr: malformed authorization event: %w", err)
	}
	return &ev, nil
}

// requestURL reconstructs the absolute URL the client signed over.
// No normalization: the auth check is byte-exact.
func requestURL(c echo.Context) string {
	return c.Scheme() + "://" + c.Request().Host + c.Request().URL.RequestURI()
}

// stripPort removes the port suffix from a host string.
func stripPort(host string) string {
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		return host[:idx]
	}
	return host
}
