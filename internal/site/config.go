package site

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the per-site configuration stored in _config.toml under
// the site's directory, in a [site] table.
type Config struct {
	// Pubkey is the hex public key of the site's owner. Only events
	// signed by this key are accepted for publication.
	Pubkey string `toml:"pubkey"`

	// URL is the site's canonical base URL, used in feeds, sitemaps
	// and blob metadata (e.g. "https://example.com").
	URL string `toml:"url"`

	// Title is the site title used by feeds and templates.
	Title string `toml:"title"`

	// PostPermalink overrides the default "/posts/:slug" URL pattern;
	// ":slug" is substituted with the post's slug.
	PostPermalink string `toml:"post_permalink"`
}

type configFile struct {
	Site Config `toml:"site"`
}

// LoadConfig reads and parses a site's _config.toml.
func LoadConfig(path string) (*Config, error) {
	var cf configFile
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return nil, fmt.Errorf("site: parse %s: %w", path, err)
	}
	return &cf.Site, nil
}

// WriteConfig writes a minimal _config.toml for a freshly created site.
func WriteConfig(path string, cfg *Config) error {
	var sb strings.Builder
	sb.WriteString("[site]\n")
	fmt.Fprintf(&sb, "pubkey = %q\n", cfg.Pubkey)
	if cfg.URL != "" {
		fmt.Fprintf(&sb, "url = %q\n", cfg.URL)
	}
	if cfg.Title != "" {
		fmt.Fprintf(&sb, "title = %q\n", cfg.Title)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("site: write config: %w", err)
	}
	return nil
}

// PostURL applies the configured permalink pattern to a slug.
func (c *Config) PostURL(slug string) string {
	if c.PostPermalink != "" {
		return strings.ReplaceAll(c.PostPermalink, ":slug", slug)
	}
	return "/posts/" + slug
}
