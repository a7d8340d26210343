package nostr

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// ErrInvalidEvent is returned when an event's id does not match its
// canonical digest or its signature does not verify. Always recoverable
// locally: the single event is rejected, nothing else is affected.
var ErrInvalidEvent = errors.New("nostr: invalid event")

// CanonicalBytes serializes the event as the fixed-form JSON array
// [0, pubkey, created_at, kind, tags, content] with no extraneous
// whitespace. This exact byte sequence is what gets hashed and signed,
// so the string escaping must stay stable: only the JSON-mandated
// escapes, no HTML escaping.
func (ev *Event) CanonicalBytes() []byte {
	buf := make([]byte, 0, 128+len(ev.Content))
	buf = append(buf, "[0,"...)
	buf = escapeString(buf, ev.PubKey)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, ev.CreatedAt, 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, int64(ev.Kind), 10)
	buf = append(buf, ',')
	buf = appendTags(buf, ev.Tags)
	buf = append(buf, ',')
	buf = escapeString(buf, ev.Content)
	buf = append(buf, ']')
	return buf
}

// DeriveID returns the hex SHA-256 digest of the canonical form.
func (ev *Event) DeriveID() string {
	digest := sha256.Sum256(ev.CanonicalBytes())
	return hex.EncodeToString(digest[:])
}

// Verify checks that the event id equals the SHA-256 of the canonical
// serialization and that Sig is a valid BIP-340 Schnorr signature over
// that digest for PubKey. Pure: no I/O, no mutation, safe from any
// goroutine.
func (ev *Event) Verify() error {
	digest := sha256.Sum256(ev.CanonicalBytes())
	if ev.ID != hex.EncodeToString(digest[:]) {
		return fmt.Errorf("%w: id does not match canonical digest", ErrInvalidEvent)
	}

	pkBytes, err := hex.DecodeString(ev.PubKey)
	if err != nil || len(pkBytes) != 32 {
		return fmt.Errorf("%w: malformed pubkey", ErrInvalidEvent)
	}
	pubkey, err := schnorr.ParsePubKey(pkBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	sigBytes, err := hex.DecodeString(ev.Sig)
	if err != nil || len(sigBytes) != 64 {
		return fmt.Errorf("%w: malformed signature", ErrInvalidEvent)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	if !sig.Verify(digest[:], pubkey) {
		return fmt.Errorf("%w: signature verification failed", ErrInvalidEvent)
	}
	return nil
}

func appendTags(buf []byte, tags [][]string) []byte {
	buf = append(buf, '[')
	for i, tag := range tags {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '[')
		for j, t := range tag {
			if j > 0 {
				buf = append(buf, ',')
			}
			buf = escapeString(buf, t)
		}
		buf = append(buf, ']')
	}
	return append(buf, ']')
}

// escapeString appends s as a JSON string. Only the escapes the
// canonical form requires are produced: quote, backslash, the named
// control escapes, and \u00XX for the remaining control characters.
func escapeString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			buf = append(buf, '\\', '"')
		case c == '\\':
			buf = append(buf, '\\', '\\')
		case c == '\b':
			buf = append(buf, '\\', 'b')
		case c == '\f':
			buf = append(buf, '\\', 'f')
		case c == '\n':
			buf = append(buf, '\\', 'n')
		case c == '\r':
			buf = append(buf, '\\', 'r')
		case c == '\t':
			buf = append(buf, '\\', 't')
		case c < 0x20:
			buf = append(buf, fmt.Sprintf("\\u%04x", c)...)
		default:
			buf = append(buf, c)
		}
	}
	return append(buf, '"')
}
