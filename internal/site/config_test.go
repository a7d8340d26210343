package site

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "_config.toml")
	in := Config{
		Pubkey: "97c70a44366a6535c145b333f973ea86dfdc2d7a99da618c40c64705ad98e322",
		URL:    "https://example.com",
		Title:  "Example",
	}
	if err := WriteConfig(path, &in); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *got != in {
		t.Errorf("round trip: got %+v, want %+v", got, in)
	}
}

func TestLoadConfigParsesPermalink(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "_config.toml")
	raw := "[site]\npubkey = \"aa\"\nurl = \"https://example.com\"\npost_permalink = \"/writing/:slug\"\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PostPermalink != "/writing/:slug" {
		t.Errorf("post_permalink: got %q", cfg.PostPermalink)
	}
}

func TestPostURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		permalink string
		slug      string
		want      string
	}{
		{"default pattern", "", "hello", "/posts/hello"},
		{"custom pattern", "/writing/:slug", "hello", "/writing/hello"},
		{"pattern with suffix", "/w/:slug.html", "hello", "/w/hello.html"},
		{"pattern without slug", "/fixed", "hello", "/fixed"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{PostPermalink: tt.permalink}
			if got := cfg.PostURL(tt.slug); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
