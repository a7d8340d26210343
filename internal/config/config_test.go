package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "servus.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":4884" {
		t.Errorf("listenAddr: got %s", cfg.ListenAddr)
	}
	if cfg.SitesDir != "./sites" {
		t.Errorf("sitesDir: got %s", cfg.SitesDir)
	}
	if len(cfg.BlobAllowedTypes) == 0 {
		t.Error("default allow-list missing")
	}
}

func TestLoadFillsOmittedFields(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "servus.json")
	raw := `{"adminDomain":"admin.example.com","blobMaxSize":1048576}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AdminDomain != "admin.example.com" {
		t.Errorf("adminDomain: got %s", cfg.AdminDomain)
	}
	if cfg.BlobMaxSize != 1048576 {
		t.Errorf("blobMaxSize: got %d", cfg.BlobMaxSize)
	}
	if cfg.ListenAddr != ":4884" || cfg.SitesDir != "./sites" {
		t.Errorf("defaults not filled: %+v", cfg)
	}
}

func TestLoadValidates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `listen = ":80"`},
		{"acme without email", `{"acme":true}`},
		{"negative blob size", `{"blobMaxSize":-1}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "servus.json")
			if err := os.WriteFile(path, []byte(tt.raw), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
