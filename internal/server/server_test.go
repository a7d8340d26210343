package server

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/servuscms/servus/internal/config"
	"github.com/servuscms/servus/internal/nostr"
	"github.com/servuscms/servus/internal/site"
)

func testKey(t *testing.T) (*btcec.PrivateKey, string) {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv, hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))
}

func signEvent(t *testing.T, priv *btcec.PrivateKey, ev *nostr.Event) *nostr.Event {
	t.Helper()
	ev.ID = ev.DeriveID()
	digest := sha256.Sum256(ev.CanonicalBytes())
	sig, err := schnorr.Sign(priv, digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return ev
}

func authHeader(t *testing.T, ev *nostr.Event) string {
	t.Helper()
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal auth event: %v", err)
	}
	return "Nostr " + base64.StdEncoding.EncodeToString(raw)
}

// testServer builds a server with one loaded site and returns it with
// the owner's key.
func testServer(t *testing.T) (*Server, *site.Site, *btcec.PrivateKey) {
	t.Helper()
	priv, pubkey := testKey(t)

	registry, err := site.LoadAll(t.TempDir())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	st, err := registry.Add("example.com", site.Config{
		Pubkey: pubkey,
		URL:    "https://example.com",
		Title:  "Example",
	})
	if err != nil {
		t.Fatalf("add site: %v", err)
	}

	cfg := config.Default()
	cfg.AdminDomain = "admin.example.com"
	return New(cfg, registry), st, priv
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestServeRenderedPost(t *testing.T) {
	t.Parallel()

	s, st, priv := testServer(t)
	ev := signEvent(t, priv, &nostr.Event{
		PubKey:    st.Config.Pubkey,
		CreatedAt: 1700000000,
		Kind:      nostr.KindLongForm,
		Tags: [][]string{
			{"d", "hello"},
			{"title", "Hello"},
			{"published_at", "1700000000"},
		},
		Content: "# Heading\n\nPost *body*.",
	})
	if err := st.Accept(ev); err != nil {
		t.Fatalf("accept: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/posts/hello", nil)
	rec := doRequest(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h1") || !strings.Contains(body, "<em>body</em>") {
		t.Errorf("markdown not rendered: %q", body)
	}
}

func TestUnknownHostAndPath(t *testing.T) {
	t.Parallel()

	s, _, _ := testServer(t)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "http://nowhere.example/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown host: got %d", rec.Code)
	}

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "http://example.com/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path: got %d", rec.Code)
	}

	// Internal directories are never exposed as static files.
	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "http://example.com/_config.toml", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("underscore path: got %d", rec.Code)
	}
}

func TestStandardResources(t *testing.T) {
	t.Parallel()

	s, st, _ := testServer(t)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "http://example.com/robots.txt", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Sitemap: https://example.com/sitemap.xml") {
		t.Errorf("robots.txt: %d %q", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "http://example.com/sitemap.xml", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<urlset") {
		t.Errorf("sitemap.xml: %d %q", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "http://example.com/atom.xml", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<feed") {
		t.Errorf("atom.xml: %d %q", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "http://example.com/.well-known/nostr.json", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), st.Config.Pubkey) {
		t.Errorf("nostr.json: %d %q", rec.Code, rec.Body.String())
	}
}

func TestBlobUploadGetDelete(t *testing.T) {
	t.Parallel()

	s, st, priv := testServer(t)
	payload := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

	grant := func(action string) string {
		ev := signEvent(t, priv, &nostr.Event{
			PubKey:    st.Config.Pubkey,
			CreatedAt: time.Now().Unix(),
			Kind:      nostr.KindBlossomAuth,
			Tags: [][]string{
				{"t", action},
				{"expiration", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10)},
			},
		})
		return authHeader(t, ev)
	}

	// Unauthorized upload.
	req := httptest.NewRequest(http.MethodPut, "http://example.com/upload", bytes.NewReader(payload))
	if rec := doRequest(s, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated upload: got %d", rec.Code)
	}

	// Authorized upload.
	req = httptest.NewRequest(http.MethodPut, "http://example.com/upload", bytes.NewReader(payload))
	req.Header.Set("Authorization", grant("upload"))
	rec := doRequest(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: got %d, body %s", rec.Code, rec.Body.String())
	}
	var meta struct {
		SHA256 string `json:"sha256"`
		Type   string `json:"type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatalf("descriptor: %v", err)
	}
	digest := sha256.Sum256(payload)
	if meta.SHA256 != hex.EncodeToString(digest[:]) {
		t.Errorf("descriptor digest: got %s", meta.SHA256)
	}

	// Retrieval needs no auth.
	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "http://example.com/"+meta.SHA256, nil))
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Fatalf("get blob: %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("content type: got %s", got)
	}

	// A delete grant does not authorize uploads and vice versa.
	req = httptest.NewRequest(http.MethodDelete, "http://example.com/"+meta.SHA256, nil)
	req.Header.Set("Authorization", grant("upload"))
	if rec := doRequest(s, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("delete with upload grant: got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "http://example.com/"+meta.SHA256, nil)
	req.Header.Set("Authorization", grant("delete"))
	if rec := doRequest(s, req); rec.Code != http.StatusOK {
		t.Fatalf("delete: got %d", rec.Code)
	}

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "http://example.com/"+meta.SHA256, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("deleted blob still served: %d", rec.Code)
	}
}

func TestBlobUploadRejectsForeignSigner(t *testing.T) {
	t.Parallel()

	s, _, _ := testServer(t)
	other, otherPubkey := testKey(t)

	ev := signEvent(t, other, &nostr.Event{
		PubKey:    otherPubkey,
		CreatedAt: time.Now().Unix(),
		Kind:      nostr.KindBlossomAuth,
		Tags: [][]string{
			{"t", "upload"},
			{"expiration", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10)},
		},
	})

	req := httptest.NewRequest(http.MethodPut, "http://example.com/upload", strings.NewReader("data"))
	req.Header.Set("Authorization", authHeader(t, ev))
	if rec := doRequest(s, req); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign upload: got %d", rec.Code)
	}
}

func TestAdminAPI(t *testing.T) {
	t.Parallel()

	s, _, _ := testServer(t)
	priv, pubkey := testKey(t)

	reqAuth := func(url, method string) string {
		ev := signEvent(t, priv, &nostr.Event{
			PubKey:    pubkey,
			CreatedAt: time.Now().Unix(),
			Kind:      nostr.KindRequestAuth,
			Tags:      [][]string{{"u", url}, {"method", method}},
		})
		return authHeader(t, ev)
	}

	// The management API only answers on the admin domain.
	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/sites", strings.NewReader(`{"domain":"new.example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	if rec := doRequest(s, req); rec.Code != http.StatusNotFound {
		t.Fatalf("wrong domain: got %d", rec.Code)
	}

	// Create a site.
	req = httptest.NewRequest(http.MethodPost, "http://admin.example.com/api/sites", strings.NewReader(`{"domain":"new.example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", reqAuth("http://admin.example.com/api/sites", http.MethodPost))
	rec := doRequest(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("create: got %d, body %s", rec.Code, rec.Body.String())
	}

	// The caller's sites are listed.
	req = httptest.NewRequest(http.MethodGet, "http://admin.example.com/api/sites", nil)
	req.Header.Set("Authorization", reqAuth("http://admin.example.com/api/sites", http.MethodGet))
	rec = doRequest(s, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "new.example.com") {
		t.Fatalf("list: got %d, body %s", rec.Code, rec.Body.String())
	}

	// A signed URL must match byte for byte.
	req = httptest.NewRequest(http.MethodPost, "http://admin.example.com/api/sites", strings.NewReader(`{"domain":"other.example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", reqAuth("http://admin.example.com/api/sites/", http.MethodPost))
	if rec := doRequest(s, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("url mismatch: got %d", rec.Code)
	}
}
