package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"erp/ecommerce/quote-storefront/internal/store"
	"erp/ecommerce/quote-storefront/internal/tokens"
)

// ResetTokenTTL is how long an emailed reset link works.
const ResetTokenTTL = time.Hour

var ErrResetTokenInvalid = errors.New("invalid or expired reset link")

type memReset struct {
	userID    string
	expiresAt time.Time
	used      bool
}

// PasswordReset is an issued reset link. Only the token hash is stored.
type PasswordReset struct {
	Token     string
	User      User
	ExpiresAt time.Time
}

// RequestPasswordReset issues a reset token for the admin with email,
// retiring any earlier unused ones. Unknown emails return ErrNotFound; the
// caller decides whether to reveal that.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (PasswordReset, error) {
	u, err := s.userByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return PasswordReset{}, err
	}
	token, err := tokens.Generate()
	if err != nil {
		return PasswordReset{}, err
	}
	now := s.now()
	reset := PasswordReset{Token: token, User: u, ExpiresAt: now.Add(ResetTokenTTL)}

	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		for h, r := range s.memResets {
			if r.userID == u.ID {
				delete(s.memResets, h)
			}
		}
		s.memResets[hashToken(token)] = memReset{userID: u.ID, expiresAt: reset.ExpiresAt}
		return reset, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PasswordReset{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`UPDATE admin_password_resets SET used_at=$2 WHERE user_id=$1 AND used_at IS NULL`, u.ID, now); err != nil {
		return PasswordReset{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO admin_password_resets (token_hash, user_id, expires_at, created_at) VALUES ($1,$2,$3,$4)`,
		hashToken(token), u.ID, reset.ExpiresAt, now); err != nil {
		return PasswordReset{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM admin_password_resets WHERE expires_at < $1`, now.Add(-24*time.Hour)); err != nil {
		return PasswordReset{}, err
	}
	if err := tx.Commit(); err != nil {
		return PasswordReset{}, err
	}
	return reset, nil
}

// ResetPassword consumes token and sets password. Every session of the user
// is revoked.
func (s *Service) ResetPassword(ctx context.Context, token, password string) (User, error) {
	if token == "" {
		return User{}, ErrResetTokenInvalid
	}
	if err := validatePassword(password); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, err
	}
	h := hashToken(token)
	now := s.now()

	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		r, ok := s.memResets[h]
		if !ok || r.used || now.After(r.expiresAt) {
			return User{}, ErrResetTokenInvalid
		}
		u, ok := s.memUsers[r.userID]
		if !ok {
			return User{}, ErrResetTokenInvalid
		}
		r.used = true
		s.memResets[h] = r
		u.PasswordHash = string(hash)
		s.memUsers[u.ID] = u
		for sh, ms := range s.memSessions {
			if ms.userID == u.ID {
				delete(s.memSessions, sh)
			}
		}
		return u, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, err
	}
	defer tx.Rollback()
	var userID string
	err = tx.QueryRowContext(ctx,
		`UPDATE admin_password_resets SET used_at=$2
		WHERE token_hash=$1 AND used_at IS NULL AND expires_at >= $2
		RETURNING user_id`, h, now).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrResetTokenInvalid
	}
	if err != nil {
		return User{}, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE admin_users SET password_hash=$2 WHERE id=$1`, userID, string(hash))
	if err != nil {
		return User{}, err
	}
	if err := store.RowsAffected(res); err != nil {
		return User{}, ErrResetTokenInvalid
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM admin_sessions WHERE user_id=$1`, userID); err != nil {
		return User{}, err
	}
	if err := tx.Commit(); err != nil {
		return User{}, err
	}
	return s.userByID(ctx, userID)
}
