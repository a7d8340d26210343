// Package config handles loading and validating the server
// configuration from a servus.json file.
//
// The configuration file is a JSON object with the listen address, the
// sites directory, the optional admin domain and ACME settings, and
// the blob store limits. The file is read once at startup; changes
// require a restart. A missing file yields the defaults, so a bare
// "./servus" serves ./sites on the default port.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Config holds all server configuration.
type Config struct {
	// ListenAddr is the HTTP listen address (default ":4884").
	ListenAddr string `json:"listenAddr"`

	// SitesDir is the directory holding one subdirectory per hosted
	// domain (default "./sites").
	SitesDir string `json:"sitesDir"`

	// AdminDomain, when set, enables the site management API on that
	// domain.
	AdminDomain string `json:"adminDomain,omitempty"`

	// ACME enables automatic certificate provisioning; the server
	// then listens for TLS on ListenAddr.
	ACME bool `json:"acme,omitempty"`

	// ACMEEmail is the contact email for the ACME account. Required
	// when ACME is enabled.
	ACMEEmail string `json:"acmeEmail,omitempty"`

	// ACMECacheDir stores issued certificates (default "./cache").
	ACMECacheDir string `json:"acmeCacheDir,omitempty"`

	// BlobMaxSize caps uploads in bytes (default 16MB).
	BlobMaxSize int64 `json:"blobMaxSize,omitempty"`

	// BlobAllowedTypes is the content-type allow-list for uploads.
	BlobAllowedTypes []string `json:"blobAllowedTypes,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ListenAddr:   ":4884",
		SitesDir:     "./sites",
		ACMECacheDir: "./cache",
		BlobAllowedTypes: []string{
			"image/jpeg",
			"image/png",
			"image/gif",
			"image/webp",
			"video/mp4",
			"audio/mpeg",
			"application/pdf",
			"text/plain",
		},
	}
}

// Load reads and parses configuration from the given file path,
// filling in defaults for omitted fields. A nonexistent file is not an
// error: the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":4884"
	}
	if cfg.SitesDir == "" {
		cfg.SitesDir = "./sites"
	}
	if cfg.ACMECacheDir == "" {
		cfg.ACMECacheDir = "./cache"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ACME && c.ACMEEmail == "" {
		return fmt.Errorf("config: acmeEmail is required when acme is enabled")
	}
	if c.BlobMaxSize < 0 {
		return fmt.Errorf("config: blobMaxSize must not be negative")
	}
	return nil
}
