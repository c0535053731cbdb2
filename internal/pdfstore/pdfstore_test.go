package pdfstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "quotes/Q-20260301-ABCD/quote-v2.pdf", Key("Q-20260301-ABCD", 2))
	assert.Equal(t, "quotes/_etc_passwd/quote-v1.pdf", Key("../etc/passwd", 1))
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())

	key, err := s.Put(ctx, "Q-1", 1, []byte("%PDF-1.3 one"))
	require.NoError(t, err)
	assert.Equal(t, "quotes/Q-1/quote-v1.pdf", key)

	data, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3 one", string(data))

	key2, err := s.Put(ctx, "Q-1", 2, []byte("two"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, key))

	_, err = os.Stat(filepath.Join(s.Root(), filepath.FromSlash(key)))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(s.Root(), filepath.FromSlash(key2)))
	assert.NoError(t, err)

	// second delete is a no-op
	assert.NoError(t, s.Delete(ctx, key))
	assert.NoError(t, s.Delete(ctx, ""))

	entries, err := os.ReadDir(filepath.Join(s.Root(), "quotes", "Q-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestRejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	_, err := s.Get(ctx, "../outside.pdf")
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.ErrorIs(t, s.Delete(ctx, "/etc/passwd"), ErrInvalidPath)

	_, err = s.Put(ctx, "Q-1", 0, nil)
	assert.Error(t, err)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(t.TempDir()).Put(ctx, "Q-1", 1, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
