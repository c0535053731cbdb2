// Package redirects manages admin-defined path redirects and serves them
// ahead of the storefront routes.
package redirects

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"erp/ecommerce/quote-storefront/internal/store"
)

var (
	ErrNotFound = errors.New("redirect not found")
	ErrConflict = errors.New("redirect already exists for path")
)

type Redirect struct {
	ID         string     `json:"id"`
	FromPath   string     `json:"from_path"`
	ToPath     string     `json:"to_path"`
	StatusCode int        `json:"status_code"`
	Active     bool       `json:"active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Live reports whether r should be served at now.
func (r Redirect) Live(now time.Time) bool {
	return r.Active && (r.ExpiresAt == nil || r.ExpiresAt.After(now))
}

type Input struct {
	FromPath   string     `json:"from_path"`
	ToPath     string     `json:"to_path"`
	StatusCode int        `json:"status_code"`
	Active     *bool      `json:"active"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

// Target is the result of a successful lookup.
type Target struct {
	ToPath     string
	StatusCode int
}

// NormalizePath lower-cases p, adds a leading slash and drops a trailing one.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return strings.ToLower(p)
}

func isAbsolute(p string) bool {
	p = strings.ToLower(p)
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

func normalizeTarget(p string) string {
	p = strings.TrimSpace(p)
	if isAbsolute(p) {
		return p
	}
	return NormalizePath(p)
}

// Validate checks a from/to pair.
func Validate(from, to string) error {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return store.Invalid("both from_path and to_path are required")
	}
	if isAbsolute(from) {
		return store.Invalid("from_path must be a local path (starting with /)")
	}
	if NormalizePath(from) == normalizeTarget(to) {
		return store.Invalid("cannot redirect a path to itself")
	}
	return nil
}

func validStatus(code int) bool {
	switch code {
	case 301, 302, 307, 308:
		return true
	}
	return false
}

func (in Input) build() (Redirect, error) {
	if err := Validate(in.FromPath, in.ToPath); err != nil {
		return Redirect{}, err
	}
	r := Redirect{
		FromPath:   NormalizePath(in.FromPath),
		ToPath:     normalizeTarget(in.ToPath),
		StatusCode: in.StatusCode,
		Active:     true,
		ExpiresAt:  in.ExpiresAt,
	}
	if r.StatusCode == 0 {
		r.StatusCode = 301
	}
	if !validStatus(r.StatusCode) {
		return Redirect{}, store.Invalid("status_code must be 301, 302, 307 or 308")
	}
	if in.Active != nil {
		r.Active = *in.Active
	}
	return r, nil
}

// lookup caches misses as a nil target.
type lookup struct {
	target *Target
}

// Store keeps redirects in Postgres, or in memory when db is nil.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	cache  *store.Cache[lookup]

	memMu sync.RWMutex
	mem   map[string]Redirect

	now func() time.Time
}

func NewStore(db *sql.DB, cacheTTL time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		logger: logger,
		cache:  store.NewCache[lookup](cacheTTL),
		mem:    make(map[string]Redirect),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var Schema = store.Schema{
	`CREATE TABLE IF NOT EXISTS redirects (
		id TEXT PRIMARY KEY,
		from_path TEXT NOT NULL UNIQUE,
		to_path TEXT NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 301,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		expires_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return Schema.Apply(ctx, s.db)
}

const columns = `id, from_path, to_path, status_code, is_active, expires_at, created_at, updated_at`

func scan(row interface{ Scan(...any) error }) (Redirect, error) {
	var r Redirect
	var expires sql.NullTime
	if err := row.Scan(&r.ID, &r.FromPath, &r.ToPath, &r.StatusCode, &r.Active, &expires, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Redirect{}, err
	}
	if expires.Valid {
		t := expires.Time
		r.ExpiresAt = &t
	}
	return r, nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case store.IsUniqueViolation(err):
		return ErrConflict
	}
	return err
}

func (s *Store) Create(ctx context.Context, in Input) (Redirect, error) {
	r, err := in.build()
	if err != nil {
		return Redirect{}, err
	}
	now := s.now()
	r.ID = store.NewID("rdr")
	r.CreatedAt, r.UpdatedAt = now, now

	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		for _, other := range s.mem {
			if other.FromPath == r.FromPath {
				return Redirect{}, ErrConflict
			}
		}
		s.mem[r.ID] = r
		s.cache.Clear()
		return r, nil
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO redirects (`+columns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.FromPath, r.ToPath, r.StatusCode, r.Active, r.ExpiresAt, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return Redirect{}, mapErr(err)
	}
	s.cache.Clear()
	return r, nil
}

func (s *Store) Get(ctx context.Context, id string) (Redirect, error) {
	if s.db == nil {
		s.memMu.RLock()
		defer s.memMu.RUnlock()
		r, ok := s.mem[id]
		if !ok {
			return Redirect{}, ErrNotFound
		}
		return r, nil
	}
	r, err := scan(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM redirects WHERE id=$1`, id))
	return r, mapErr(err)
}

// List returns every redirect ordered by from path.
func (s *Store) List(ctx context.Context) ([]Redirect, error) {
	out := []Redirect{}
	if s.db == nil {
		s.memMu.RLock()
		for _, r := range s.mem {
			out = append(out, r)
		}
		s.memMu.RUnlock()
		sort.Slice(out, func(i, j int) bool { return out[i].FromPath < out[j].FromPath })
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM redirects ORDER BY from_path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Update(ctx context.Context, id string, in Input) (Redirect, error) {
	r, err := in.build()
	if err != nil {
		return Redirect{}, err
	}
	r.UpdatedAt = s.now()

	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		cur, ok := s.mem[id]
		if !ok {
			return Redirect{}, ErrNotFound
		}
		for _, other := range s.mem {
			if other.ID != id && other.FromPath == r.FromPath {
				return Redirect{}, ErrConflict
			}
		}
		r.ID, r.CreatedAt = cur.ID, cur.CreatedAt
		s.mem[id] = r
		s.cache.Clear()
		return r, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE redirects SET from_path=$2, to_path=$3, status_code=$4, is_active=$5, expires_at=$6, updated_at=$7 WHERE id=$1`,
		id, r.FromPath, r.ToPath, r.StatusCode, r.Active, r.ExpiresAt, r.UpdatedAt)
	if err != nil {
		return Redirect{}, mapErr(err)
	}
	if err := store.RowsAffected(res); err != nil {
		return Redirect{}, mapErr(err)
	}
	s.cache.Clear()
	return s.Get(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		if _, ok := s.mem[id]; !ok {
			return ErrNotFound
		}
		delete(s.mem, id)
		s.cache.Clear()
		return nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM redirects WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if err := store.RowsAffected(res); err != nil {
		return mapErr(err)
	}
	s.cache.Clear()
	return nil
}

// Lookup returns the live redirect for path. Hits and misses are cached;
// database errors are logged and treated as a miss.
func (s *Store) Lookup(ctx context.Context, path string) (Target, bool) {
	key := NormalizePath(path)
	if cached, ok := s.cache.Get(key); ok {
		if cached.target == nil {
			return Target{}, false
		}
		return *cached.target, true
	}

	now := s.now()
	var found *Target
	if s.db == nil {
		s.memMu.RLock()
		for _, r := range s.mem {
			if r.FromPath == key && r.Live(now) {
				found = &Target{ToPath: r.ToPath, StatusCode: r.StatusCode}
				break
			}
		}
		s.memMu.RUnlock()
	} else {
		var t Target
		err := s.db.QueryRowContext(ctx, `SELECT to_path, status_code FROM redirects
			WHERE from_path=$1 AND is_active AND (expires_at IS NULL OR expires_at > $2) LIMIT 1`, key, now,
		).Scan(&t.ToPath, &t.StatusCode)
		switch {
		case err == nil:
			found = &t
		case errors.Is(err, sql.ErrNoRows):
		default:
			s.logger.Warn("redirect lookup failed", zap.String("path", key), zap.Error(err))
			return Target{}, false
		}
	}

	s.cache.Set(key, lookup{target: found})
	if found == nil {
		return Target{}, false
	}
	return *found, true
}

// upsert inserts r or replaces the redirect with the same from path.
func (s *Store) upsert(ctx context.Context, r Redirect) error {
	now := s.now()
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		for id, other := range s.mem {
			if other.FromPath == r.FromPath {
				r.ID, r.CreatedAt, r.UpdatedAt = id, other.CreatedAt, now
				s.mem[id] = r
				return nil
			}
		}
		r.ID = store.NewID("rdr")
		r.CreatedAt, r.UpdatedAt = now, now
		s.mem[r.ID] = r
		return nil
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO redirects (`+columns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
		ON CONFLICT (from_path) DO UPDATE SET to_path=EXCLUDED.to_path, status_code=EXCLUDED.status_code,
			is_active=EXCLUDED.is_active, expires_at=EXCLUDED.expires_at, updated_at=EXCLUDED.updated_at`,
		store.NewID("rdr"), r.FromPath, r.ToPath, r.StatusCode, r.Active, r.ExpiresAt, now)
	return err
}
