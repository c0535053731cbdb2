package store

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := "qt_abc123"

	cursor := EncodeCursor(now, id)
	decodedTime, decodedID, err := ParseCursor(cursor)
	require.NoError(t, err)
	assert.True(t, decodedTime.Equal(now), "decoded time mismatch: got %s want %s", decodedTime, now)
	assert.Equal(t, id, decodedID)
}

func TestParseCursorErrors(t *testing.T) {
	for _, c := range []string{"nocolon", "abc:id", "123:"} {
		_, _, err := ParseCursor(c)
		assert.Error(t, err, c)
	}
	ts, id, err := ParseCursor("")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
	assert.Empty(t, id)
}

func TestBefore(t *testing.T) {
	base := time.Unix(100, 0)
	assert.True(t, Before(base.Add(-time.Second), "z", base, "a"))
	assert.True(t, Before(base, "a", base, "b"))
	assert.False(t, Before(base, "b", base, "b"))
	assert.False(t, Before(base.Add(time.Second), "a", base, "b"))
}

func TestNewID(t *testing.T) {
	id := NewID("prd")
	assert.True(t, strings.HasPrefix(id, "prd_"))
	assert.Len(t, id, len("prd_")+32)
	assert.NotEqual(t, id, NewID("prd"))
}

func TestCacheExpiryAndInvalidation(t *testing.T) {
	c := NewCache[int](time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set(CacheKey("products", "", 10), 1)
	c.Set(CacheKey("products", "valves", 10), 2)
	c.Set(CacheKey("brands"), 3)

	v, ok := c.Get(CacheKey("products", "", 10))
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.InvalidatePrefix("products")
	_, ok = c.Get(CacheKey("products", "valves", 10))
	assert.False(t, ok)
	_, ok = c.Get("brands")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("brands")
	assert.False(t, ok)
}

func TestCacheDisabled(t *testing.T) {
	c := NewCache[string](0)
	c.Set("k", "v")
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestPgErrorHelpers(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	fk := &pgconn.PgError{Code: "23503"}
	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(fk))
	assert.True(t, IsForeignKeyViolation(errors.Join(errors.New("wrap"), fk)))
	assert.False(t, IsUniqueViolation(sql.ErrNoRows))
}

func TestNilIfEmpty(t *testing.T) {
	assert.Nil(t, NilIfEmpty(""))
	assert.Equal(t, "x", NilIfEmpty("x"))
}

func TestValidationError(t *testing.T) {
	err := Invalid("%s is required", "name")
	assert.EqualError(t, err, "name is required")
	assert.True(t, IsValidation(err))
	assert.True(t, IsValidation(errors.Join(errors.New("ctx"), err)))
	assert.False(t, IsValidation(sql.ErrNoRows))
}
