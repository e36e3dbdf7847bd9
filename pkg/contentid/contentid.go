// Package contentid provides unique identifier generation and validation
// for pipeline entities.
//
// ID Format: <type:2>-<base62_ts:4><base62_rand:4> (11 chars total including dash)
//
// Entity Types:
//   - mt = meeting
//   - jb = summary job
//   - sh = share link
//
// The timestamp component uses seconds since epoch modulo 62^4 (~171 days cycle).
// The random component provides 14M+ combinations to ensure uniqueness.
//
// Share links are the one identifier exposed on an unauthenticated endpoint,
// so they use a longer, purely random form (see NewOpaque) where guessing an
// ID must be infeasible rather than merely unlikely.
package contentid

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

// Entity type constants
const (
	TypeMeeting = "mt"
	TypeJob     = "jb"
	TypeShare   = "sh"
)

// base62 alphabet: 0-9, a-z, A-Z
const base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// base62Max is 62^4 = 14,776,336 (used for timestamp wrapping)
const base62Max = 62 * 62 * 62 * 62

// opaqueRandomLen is the random suffix length for opaque IDs.
// 62^16 is far beyond brute-force reach for a public resolution endpoint.
const opaqueRandomLen = 16

// validTypes maps type prefixes to their names for validation
var validTypes = map[string]bool{
	TypeMeeting: true,
	TypeJob:     true,
	TypeShare:   true,
}

// Errors
var (
	ErrInvalidFormat = errors.New("invalid content ID format")
	ErrInvalidType   = errors.New("invalid content type")
)

// ContentID represents a parsed identifier.
type ContentID struct {
	Type   string // Entity type prefix (mt, jb, sh)
	Suffix string // Base62 payload following the dash
	Raw    string // Original ID string
}

// String returns the string representation of the ContentID.
func (c ContentID) String() string {
	return c.Raw
}

// New generates a new short ID for the given entity type.
// Panics if contentType is not a valid type constant.
func New(contentType string) string {
	if !validTypes[contentType] {
		panic(fmt.Sprintf("contentid: invalid content type: %q", contentType))
	}

	// Use microsecond resolution to reduce collision chance within the
	// same second. The modulo still gives ~171 day cycle.
	ts := encodeBase62(uint64(time.Now().UnixNano()/1000) % base62Max)
	rnd := randomBase62(4)

	return fmt.Sprintf("%s-%s%s", contentType, ts, rnd)
}

// NewOpaque generates a long, purely random ID for the given entity type.
// Used for share links, whose IDs are resolvable without authentication.
// Panics if contentType is not a valid type constant.
func NewOpaque(contentType string) string {
	if !validTypes[contentType] {
		panic(fmt.Sprintf("contentid: invalid content type: %q", contentType))
	}
	return fmt.Sprintf("%s-%s", contentType, randomBase62(opaqueRandomLen))
}

// Parse validates and parses an ID string. Both the short and the opaque
// form are accepted. Returns an error if the format is invalid or the
// type is unknown.
func Parse(id string) (ContentID, error) {
	if len(id) < 4 {
		return ContentID{}, fmt.Errorf("%w: too short", ErrInvalidFormat)
	}

	if id[2] != '-' {
		return ContentID{}, fmt.Errorf("%w: missing dash at position 2", ErrInvalidFormat)
	}

	prefix := id[:2]
	if !validTypes[prefix] {
		return ContentID{}, fmt.Errorf("%w: unknown type %q", ErrInvalidType, prefix)
	}

	suffix := id[3:]
	if len(suffix) != 8 && len(suffix) != opaqueRandomLen {
		return ContentID{}, fmt.Errorf("%w: unexpected suffix length %d", ErrInvalidFormat, len(suffix))
	}
	if !isValidBase62(suffix) {
		return ContentID{}, fmt.Errorf("%w: suffix contains invalid characters", ErrInvalidFormat)
	}

	return ContentID{
		Type:   prefix,
		Suffix: suffix,
		Raw:    id,
	}, nil
}

// encodeBase62 encodes a number as a 4-character base62 string.
func encodeBase62(n uint64) string {
	result := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		result[i] = base62Alphabet[n%62]
		n /= 62
	}
	return string(result)
}

// randomBase62 generates a random base62 string of the specified length.
// Uses rejection sampling to eliminate modulo bias.
func randomBase62(length int) string {
	result := make([]byte, length)

	// 256 / 62 = 4 with remainder 8, so values 0-247 map evenly to 0-61
	// Reject values 248-255 to eliminate bias
	const maxUnbiased = 248

	for i := 0; i < length; {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			// Fallback - should never happen with crypto/rand
			result[i] = base62Alphabet[0]
			i++
			continue
		}

		if b[0] < maxUnbiased {
			result[i] = base62Alphabet[b[0]%62]
			i++
		}
		// Reject and retry if b[0] >= 248
	}

	return string(result)
}

// isValidBase62 checks if a string contains only base62 characters.
func isValidBase62(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return false
		}
	}
	return true
}
