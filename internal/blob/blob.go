// Package blob provides content-addressed binary storage for site
// media. Blobs live on the filesystem keyed by the SHA-256 hex digest
// of their bytes, next to a JSON metadata sidecar; retrieval integrity
// follows from the addressing.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxSize is the upload size cap used when the configuration
// does not override it (16MB).
const DefaultMaxSize = 16 << 20

var (
	// ErrNotFound is returned by Get for a digest with no stored blob.
	ErrNotFound = errors.New("blob: not found")

	// ErrTypeNotAllowed is returned by Put when the sniffed content
	// type is not on the allow-list.
	ErrTypeNotAllowed = errors.New("blob: content type not allowed")

	// ErrTooLarge is returned by Put when the payload exceeds the
	// configured size cap.
	ErrTooLarge = errors.New("blob: exceeds maximum size")
)

// Metadata is the sidecar persisted next to each blob. SHA256 always
// matches the digest of the stored bytes.
type Metadata struct {
	SHA256 string `json:"sha256"`
	Type   string `json:"type"`
	Size   int64  `json:"size"`
	URL    string `json:"url"`
}

// Store handles blob writes and retrieval for one site.
type Store struct {
	root    string
	baseURL string
	maxSize int64
	allowed []string
}

// NewStore creates a blob store rooted at root. baseURL is the site's
// canonical URL used to build blob URLs; allowed is the content-type
// allow-list (matched against the sniffed type, parameters ignored).
func NewStore(root, baseURL string, maxSize int64, allowed []string) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Store{root: root, baseURL: strings.TrimSuffix(baseURL, "/"), maxSize: maxSize, allowed: allowed}
}

// Put stores data under its own digest and writes the metadata
// sidecar. Overwriting an existing digest is a harmless no-op:
// content addressing guarantees the bytes are identical.
func (s *Store) Put(data []byte) (*Metadata, error) {
	if int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("%w (%d > %d bytes)", ErrTooLarge, len(data), s.maxSize)
	}

	contentType := sniffType(data)
	if !s.typeAllowed(contentType) {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotAllowed, contentType)
	}

	digest := sha256.Sum256(data)
	hash := hex.EncodeToString(digest[:])

	meta := &Metadata{
		SHA256: hash,
		Type:   contentType,
		Size:   int64(len(data)),
		URL:    s.baseURL + "/" + hash,
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, fmt.Errorf("blob: mkdir: %w", err)
	}
	if err := os.WriteFile(s.blobPath(hash), data, 0o644); err != nil {
		return nil, fmt.Errorf("blob: write %s: %w", hash, err)
	}

	sidecar, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("blob: marshal sidecar: %w", err)
	}
	if err := os.WriteFile(s.sidecarPath(hash), sidecar, 0o644); err != nil {
		return nil, fmt.Errorf("blob: write sidecar %s: %w", hash, err)
	}

	return meta, nil
}

// Get returns the blob bytes and metadata for a digest. A missing blob
// is ErrNotFound; a present blob with a missing or corrupt sidecar is
// a data-inconsistency error, not a miss.
func (s *Store) Get(hash string) ([]byte, *Metadata, error) {
	if !validHash(hash) {
		return nil, nil, ErrNotFound
	}

	data, err := os.ReadFile(s.blobPath(hash))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("blob: read %s: %w", hash, err)
	}

	sidecar, err := os.ReadFile(s.sidecarPath(hash))
	if err != nil {
		return nil, nil, fmt.Errorf("blob: sidecar for %s: %w", hash, err)
	}
	var meta Metadata
	if err := json.Unmarshal(sidecar, &meta); err != nil {
		return nil, nil, fmt.Errorf("blob: corrupt sidecar for %s: %w", hash, err)
	}

	return data, &meta, nil
}

// Delete removes the blob and its sidecar. Missing files are
// tolerated: delete is idempotent.
func (s *Store) Delete(hash string) error {
	if !validHash(hash) {
		return nil
	}
	if err := os.Remove(s.blobPath(hash)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob: remove %s: %w", hash, err)
	}
	if err := os.Remove(s.sidecarPath(hash)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob: remove sidecar %s: %w", hash, err)
	}
	return nil
}

func (s *Store) blobPath(hash string) string {
	return filepath.Join(s.root, hash)
}

func (s *Store) sidecarPath(hash string) string {
	return filepath.Join(s.root, hash+".json")
}

func (s *Store) typeAllowed(contentType string) bool {
	if len(s.allowed) == 0 {
		return true
	}
	for _, t := range s.allowed {
		if t == contentType {
			return true
		}
	}
	return false
}

// sniffType detects the content type from the payload itself,
// stripping any charset parameter.
func sniffType(data []byte) string {
	t := http.DetectContentType(data)
	if idx := strings.IndexByte(t, ';'); idx != -1 {
		t = t[:idx]
	}
	return strings.TrimSpace(t)
}

// validHash accepts only 64-character lowercase hex digests, which
// also keeps digests usable as file names without escaping.
func validHash(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	for i := 0; i < len(hash); i++ {
		c := hash[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
