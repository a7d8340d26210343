package site

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRegistryAddAndLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r, err := LoadAll(dir)
	if err != nil {
		t.Fatalf("load empty dir: %v", err)
	}
	if len(r.Domains()) != 0 {
		t.Fatalf("expected no sites, got %v", r.Domains())
	}

	_, pubkey := testKey(t)
	s, err := r.Add("example.com", Config{Pubkey: pubkey, URL: "https://example.com"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := r.Get("example.com"); got != s {
		t.Error("added site not retrievable")
	}
	if _, err := r.Add("example.com", Config{Pubkey: pubkey}); !errors.Is(err, ErrSiteExists) {
		t.Fatalf("duplicate: got %v, want ErrSiteExists", err)
	}

	owned := r.ByPubkey(pubkey)
	if len(owned) != 1 || owned[0].Domain != "example.com" {
		t.Errorf("ByPubkey: got %v", owned)
	}
	if len(r.ByPubkey("ffff")) != 0 {
		t.Error("ByPubkey matched a foreign key")
	}

	// The created directory must load on a cold start.
	reloaded, err := LoadAll(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := reloaded.Get("example.com")
	if got == nil {
		t.Fatal("site did not survive reload")
	}
	if got.Config.Pubkey != pubkey {
		t.Errorf("config after reload: %+v", got.Config)
	}
}

func TestLoadAllSkipsBrokenSites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// A site directory without a _config.toml is skipped, not fatal.
	if err := os.MkdirAll(filepath.Join(dir, "broken.example"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	_, pubkey := testKey(t)
	seed, err := LoadAll(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := seed.Add("good.example", Config{Pubkey: pubkey}); err != nil {
		t.Fatalf("add: %v", err)
	}

	r, err := LoadAll(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if r.Get("broken.example") != nil {
		t.Error("broken site should be skipped")
	}
	if r.Get("good.example") == nil {
		t.Error("good site should load")
	}
}

func TestLoadMissingDir(t *testing.T) {
	t.Parallel()

	r, err := LoadAll(filepath.Join(t.TempDir(), "nonexistent"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(r.Domains()) != 0 {
		t.Errorf("expected empty registry, got %v", r.Domains())
	}
}
