package nostr

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrAuthDenied is returned when an authorization event is validly
// signed but fails one of the request checks (kind, time window, tag
// mismatch). No catalog mutation ever follows a denial.
var ErrAuthDenied = errors.New("nostr: authorization denied")

// requestAuthWindow is the symmetric clock-skew tolerance for signed
// request authorization (general API calls).
const requestAuthWindow = 5 * time.Minute

// blobAuthSkew is the forward-only tolerance for blob upload/delete
// grants. There is deliberately no lower bound on created_at: the
// grant's lifetime is governed by its expiration tag instead.
const blobAuthSkew = time.Minute

// RequestAuthPubkey validates the event as a signed request
// authorization for the given url and method and returns the signer's
// pubkey. The content must be empty, created_at must be within five
// minutes of now in either direction, and the "u" and "method" tags
// must match byte for byte, with no normalization.
func (ev *Event) RequestAuthPubkey(url, method string) (string, error) {
	if err := ev.Verify(); err != nil {
		return "", err
	}
	if ev.Kind != KindRequestAuth {
		return "", fmt.Errorf("%w: kind %d is not a request auth event", ErrAuthDenied, ev.Kind)
	}
	if ev.Content != "" {
		return "", fmt.Errorf("%w: request auth event must have empty content", ErrAuthDenied)
	}

	now := time.Now()
	createdAt := time.Unix(ev.CreatedAt, 0)
	if createdAt.Before(now) && now.Sub(createdAt) > requestAuthWindow {
		return "", fmt.Errorf("%w: auth event too old", ErrAuthDenied)
	}
	if createdAt.After(now) && createdAt.Sub(now) > requestAuthWindow {
		return "", fmt.Errorf("%w: auth event too new", ErrAuthDenied)
	}

	if ev.Tag("u") != url {
		return "", fmt.Errorf("%w: url mismatch: %q", ErrAuthDenied, ev.Tag("u"))
	}
	if ev.Tag("method") != method {
		return "", fmt.Errorf("%w: method mismatch: %q", ErrAuthDenied, ev.Tag("method"))
	}

	return ev.PubKey, nil
}

// BlobAuthPubkey validates the event as a blob storage grant for the
// given action ("upload" or "delete") and returns the signer's pubkey.
// The "t" tag must equal the action and the "expiration" tag must
// parse as a future Unix timestamp.
func (ev *Event) BlobAuthPubkey(action string) (string, error) {
	if err := ev.Verify(); err != nil {
		return "", err
	}
	if ev.Kind != KindBlossomAuth {
		return "", fmt.Errorf("%w: kind %d is not a blob auth event", ErrAuthDenied, ev.Kind)
	}

	now := time.Now()
	if time.Unix(ev.CreatedAt, 0).After(now.Add(blobAuthSkew)) {
		return "", fmt.Errorf("%w: auth event too new", ErrAuthDenied)
	}

	if ev.Tag("t") != action {
		return "", fmt.Errorf("%w: action mismatch: %q", ErrAuthDenied, ev.Tag("t"))
	}

	expiration, err := strconv.ParseInt(ev.Tag("expiration"), 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: missing or malformed expiration tag", ErrAuthDenied)
	}
	if time.Unix(expiration, 0).Before(now) {
		return "", fmt.Errorf("%w: grant expired", ErrAuthDenied)
	}

	return ev.PubKey, nil
}
