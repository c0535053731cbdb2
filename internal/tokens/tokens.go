// Package tokens issues the time-limited credentials embedded in quote
// approval links.
package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const (
	tokenBytes = 32

	// DefaultTTLDays is how long an approval link stays valid.
	DefaultTTLDays = 7
)

// Generate returns 32 random bytes encoded as unpadded base64url (43 chars).
func Generate() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Expiration returns now plus days. days <= 0 uses DefaultTTLDays.
func Expiration(now time.Time, days int) time.Time {
	if days <= 0 {
		days = DefaultTTLDays
	}
	return now.AddDate(0, 0, days)
}

// Expired reports whether a token with the given expiry is no longer valid.
// A missing expiry counts as expired.
func Expired(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil {
		return true
	}
	return now.After(*expiresAt)
}
