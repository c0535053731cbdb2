package tokens

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok, err := Generate()
		require.NoError(t, err)
		assert.Len(t, tok, 43)
		raw, err := base64.RawURLEncoding.DecodeString(tok)
		require.NoError(t, err)
		assert.Len(t, raw, 32)
		assert.False(t, seen[tok], "duplicate token")
		seen[tok] = true
	}
}

func TestExpiration(t *testing.T) {
	now := time.Date(2026, 3, 28, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 4, 4, 10, 0, 0, 0, time.UTC), Expiration(now, 0))
	assert.Equal(t, time.Date(2026, 3, 30, 10, 0, 0, 0, time.UTC), Expiration(now, 2))
}

func TestExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, Expired(nil, now))
	assert.True(t, Expired(&past, now))
	assert.False(t, Expired(&future, now))
	assert.False(t, Expired(&now, now))
}
