// Package auth manages back-office admin users and their cookie sessions.
package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"erp/ecommerce/quote-storefront/internal/store"
	"erp/ecommerce/quote-storefront/internal/tokens"
)

const (
	CookieName        = "admin_session"
	DefaultSessionTTL = 12 * time.Hour
	MinPasswordLength = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrNotFound           = errors.New("admin user not found")
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Session is a logged-in admin. Token is only set when the session is issued.
type Session struct {
	Token     string    `json:"-"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

type memSession struct {
	userID    string
	expiresAt time.Time
}

// Service owns admin users and sessions, in Postgres or in memory when db is
// nil.
type Service struct {
	db     *sql.DB
	ttl    time.Duration
	cost   int
	logger *zap.Logger

	dummyOnce sync.Once
	dummy     []byte

	memMu       sync.RWMutex
	memUsers    map[string]User
	memSessions map[string]memSession
	memResets   map[string]memReset

	now func() time.Time
}

func NewService(db *sql.DB, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:          db,
		ttl:         ttl,
		cost:        bcrypt.DefaultCost,
		logger:      logger,
		memUsers:    make(map[string]User),
		memSessions: make(map[string]memSession),
		memResets:   make(map[string]memReset),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) TTL() time.Duration { return s.ttl }

var Schema = store.Schema{
	`CREATE TABLE IF NOT EXISTS admin_users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		last_login TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS admin_sessions (
		token_hash TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES admin_users(id) ON DELETE CASCADE,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_admin_sessions_expires ON admin_sessions (expires_at)`,
	`CREATE TABLE IF NOT EXISTS admin_password_resets (
		token_hash TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES admin_users(id) ON DELETE CASCADE,
		expires_at TIMESTAMPTZ NOT NULL,
		used_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_admin_password_resets_user ON admin_password_resets (user_id)`,
}

func (s *Service) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return Schema.Apply(ctx, s.db)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validatePassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return store.Invalid("password must be at least %d characters", MinPasswordLength)
	}
	if len(pw) > 72 {
		return store.Invalid("password must be at most 72 bytes")
	}
	return nil
}

// CreateAdmin inserts an admin or, when the email exists, resets its name
// and password.
func (s *Service) CreateAdmin(ctx context.Context, email, name, password string) (User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return User{}, store.Invalid("valid email is required")
	}
	if err := validatePassword(password); err != nil {
		return User{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = email
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, err
	}
	u := User{ID: store.NewID("adm"), Email: email, Name: name, PasswordHash: string(hash), CreatedAt: s.now()}

	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		for id, existing := range s.memUsers {
			if existing.Email == email {
				existing.Name = name
				existing.PasswordHash = u.PasswordHash
				s.memUsers[id] = existing
				return existing, nil
			}
		}
		s.memUsers[u.ID] = u
		return u, nil
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO admin_users (id, email, name, password_hash, created_at) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (email) DO UPDATE SET name=EXCLUDED.name, password_hash=EXCLUDED.password_hash
		RETURNING id, created_at, last_login`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt,
	).Scan(&u.ID, &u.CreatedAt, &u.LastLogin)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Service) userByEmail(ctx context.Context, email string) (User, error) {
	if s.db == nil {
		s.memMu.RLock()
		defer s.memMu.RUnlock()
		for _, u := range s.memUsers {
			if u.Email == email {
				return u, nil
			}
		}
		return User{}, ErrNotFound
	}
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, last_login, created_at FROM admin_users WHERE email=$1`, email))
}

func (s *Service) userByID(ctx context.Context, id string) (User, error) {
	if s.db == nil {
		s.memMu.RLock()
		defer s.memMu.RUnlock()
		if u, ok := s.memUsers[id]; ok {
			return u, nil
		}
		return User{}, ErrNotFound
	}
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, last_login, created_at FROM admin_users WHERE id=$1`, id))
}

func (s *Service) scanUser(row *sql.Row) (User, error) {
	var u User
	var last sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &last, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	if last.Valid {
		t := last.Time
		u.LastLogin = &t
	}
	return u, nil
}

// dummyHash is compared against on unknown emails so those logins cost the
// same as a wrong password. It is built once, at the service's cost.
func (s *Service) dummyHash() []byte {
	s.dummyOnce.Do(func() {
		s.dummy, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	})
	return s.dummy
}

// Login checks credentials and issues a session.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.userByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash(), []byte(password))
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}

	token, err := tokens.Generate()
	if err != nil {
		return Session{}, err
	}
	now := s.now()
	sess := Session{Token: token, User: u, ExpiresAt: now.Add(s.ttl)}
	sess.User.LastLogin = &now

	if s.db == nil {
		s.memMu.Lock()
		s.memSessions[hashToken(token)] = memSession{userID: u.ID, expiresAt: sess.ExpiresAt}
		s.memUsers[u.ID] = sess.User
		s.memMu.Unlock()
		return sess, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO admin_sessions (token_hash, user_id, expires_at, created_at) VALUES ($1,$2,$3,$4)`,
		hashToken(token), u.ID, sess.ExpiresAt, now); err != nil {
		return Session{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE admin_users SET last_login=$2 WHERE id=$1`, u.ID, now); err != nil {
		return Session{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM admin_sessions WHERE expires_at < $1`, now); err != nil {
		return Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Authenticate resolves a session token. Unknown or expired tokens return
// ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrUnauthorized
	}
	h := hashToken(token)
	now := s.now()

	var userID string
	var expires time.Time
	if s.db == nil {
		s.memMu.RLock()
		ms, ok := s.memSessions[h]
		s.memMu.RUnlock()
		if !ok {
			return Session{}, ErrUnauthorized
		}
		userID, expires = ms.userID, ms.expiresAt
	} else {
		err := s.db.QueryRowContext(ctx,
			`SELECT user_id, expires_at FROM admin_sessions WHERE token_hash=$1`, h,
		).Scan(&userID, &expires)
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrUnauthorized
		}
		if err != nil {
			return Session{}, err
		}
	}
	if now.After(expires) {
		if err := s.Logout(ctx, token); err != nil {
			s.logger.Warn("expired session cleanup failed", zap.Error(err))
		}
		return Session{}, ErrUnauthorized
	}
	u, err := s.userByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrUnauthorized
	}
	if err != nil {
		return Session{}, err
	}
	return Session{User: u, ExpiresAt: expires}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	h := hashToken(token)
	if s.db == nil {
		s.memMu.Lock()
		delete(s.memSessions, h)
		s.memMu.Unlock()
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE token_hash=$1`, h)
	return err
}

// ChangePassword verifies current and stores next. Other sessions of the
// user are revoked; keepToken stays valid.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next, keepToken string) error {
	if current == "" || next == "" {
		return store.Invalid("current and new password are required")
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	u, err := s.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return err
	}
	keep := hashToken(keepToken)

	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		u.PasswordHash = string(hash)
		s.memUsers[u.ID] = u
		for h, ms := range s.memSessions {
			if ms.userID == u.ID && h != keep {
				delete(s.memSessions, h)
			}
		}
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `UPDATE admin_users SET password_hash=$2 WHERE id=$1`, u.ID, string(hash))
	if err != nil {
		return err
	}
	if err := store.RowsAffected(res); err != nil {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM admin_sessions WHERE user_id=$1 AND token_hash<>$2`, u.ID, keep); err != nil {
		return err
	}
	return tx.Commit()
}
