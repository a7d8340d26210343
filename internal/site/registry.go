package site

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// ErrSiteExists is returned when creating a site for a domain that is
// already registered.
var ErrSiteExists = errors.New("site: domain already exists")

// Registry maps domains to loaded sites. It is constructed once at
// startup and passed by handle into every request handler; sites are
// added at runtime through the management API and torn down only at
// process shutdown.
type Registry struct {
	dir string

	mu    sync.RWMutex
	sites map[string]*Site
}

// LoadAll scans dir for site directories (one per domain) and loads
// each one. Directories without a _config.toml are skipped with a
// diagnostic. A missing dir yields an empty registry.
func LoadAll(dir string) (*Registry, error) {
	r := &Registry{dir: dir, sites: map[string]*Site{}}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("site: read sites dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		domain := entry.Name()
		s, err := Load(domain, filepath.Join(dir, domain))
		if err != nil {
			log.Printf("Skipping site %s: %v", domain, err)
			continue
		}
		r.sites[domain] = s
		log.Printf("Site loaded: %s (%d events, %d resources)", domain, s.EventCount(), len(s.Resources()))
	}

	log.Printf("%d sites loaded", len(r.sites))
	return r, nil
}

// Get returns the site for a domain, or nil if none is registered.
func (r *Registry) Get(domain string) *Site {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sites[domain]
}

// Domains returns all registered domains.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	domains := make([]string, 0, len(r.sites))
	for domain := range r.sites {
		domains = append(domains, domain)
	}
	return domains
}

// Sites returns all loaded sites.
func (r *Registry) Sites() []*Site {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sites := make([]*Site, 0, len(r.sites))
	for _, s := range r.sites {
		sites = append(sites, s)
	}
	return sites
}

// ByPubkey returns the sites owned by the given key.
func (r *Registry) ByPubkey(pubkey string) []*Site {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var owned []*Site
	for _, s := range r.sites {
		if s.Config.Pubkey == pubkey {
			owned = append(owned, s)
		}
	}
	return owned
}

// Add creates a new site directory with a minimal configuration and
// registers it.
func (r *Registry) Add(domain string, cfg Config) (*Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sites[domain]; ok {
		return nil, ErrSiteExists
	}

	path := filepath.Join(r.dir, domain)
	if err := os.MkdirAll(filepath.Join(path, eventsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("site: create %s: %w", path, err)
	}
	if err := WriteConfig(filepath.Join(path, "_config.toml"), &cfg); err != nil {
		return nil, err
	}

	s := NewSite(domain, path, cfg)
	r.sites[domain] = s
	log.Printf("Site created: %s", domain)
	return s, nil
}
