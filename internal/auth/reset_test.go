package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp/ecommerce/quote-storefront/internal/store"
)

func TestPasswordReset(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	u, err := s.CreateAdmin(ctx, "ops@example.com", "Ops", "correct-horse")
	require.NoError(t, err)
	sess, err := s.Login(ctx, "ops@example.com", "correct-horse")
	require.NoError(t, err)

	_, err = s.RequestPasswordReset(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := s.RequestPasswordReset(ctx, " Ops@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, u.ID, first.User.ID)
	assert.Equal(t, now.Add(ResetTokenTTL), first.ExpiresAt)
	assert.NotContains(t, s.memResets, first.Token, "only the hash is kept")

	second, err := s.RequestPasswordReset(ctx, "ops@example.com")
	require.NoError(t, err)
	_, err = s.ResetPassword(ctx, first.Token, "battery-staple")
	assert.ErrorIs(t, err, ErrResetTokenInvalid, "a newer request retires older links")

	_, err = s.ResetPassword(ctx, second.Token, "short")
	assert.True(t, store.IsValidation(err))

	now = second.ExpiresAt
	got, err := s.ResetPassword(ctx, second.Token, "battery-staple")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.ResetPassword(ctx, second.Token, "another-one")
	assert.ErrorIs(t, err, ErrResetTokenInvalid, "links are single use")
	_, err = s.Authenticate(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrUnauthorized, "existing sessions are revoked")
	_, err = s.Login(ctx, "ops@example.com", "battery-staple")
	assert.NoError(t, err)
}

func TestPasswordResetExpires(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	_, err := s.CreateAdmin(ctx, "ops@example.com", "Ops", "correct-horse")
	require.NoError(t, err)
	reset, err := s.RequestPasswordReset(ctx, "ops@example.com")
	require.NoError(t, err)

	now = reset.ExpiresAt.Add(time.Second)
	_, err = s.ResetPassword(ctx, reset.Token, "battery-staple")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
	_, err = s.ResetPassword(ctx, "", "battery-staple")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
	_, err = s.Login(ctx, "ops@example.com", "correct-horse")
	assert.NoError(t, err)
}
