// Package catalog stores brands, categories and products and resolves
// quote lines against them.
package catalog

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

// Store persists the catalog in Postgres, or in memory when db is nil.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	products   *store.Cache[ProductList]
	brands     *store.Cache[[]Brand]
	categories *store.Cache[[]Category]

	memMu         sync.RWMutex
	memBrands     map[string]Brand
	memCategories map[string]Category
	memProducts   map[string]Product

	now func() time.Time
}

func NewStore(db *sql.DB, cacheTTL time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:            db,
		logger:        logger,
		products:      store.NewCache[ProductList](cacheTTL),
		brands:        store.NewCache[[]Brand](cacheTTL),
		categories:    store.NewCache[[]Category](cacheTTL),
		memBrands:     make(map[string]Brand),
		memCategories: make(map[string]Category),
		memProducts:   make(map[string]Product),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

var Schema = store.Schema{
	`CREATE TABLE IF NOT EXISTS catalog_brands (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS catalog_categories (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT,
		long_description TEXT,
		image TEXT,
		display_order INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS catalog_products (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		sku TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		short_name TEXT,
		brand_id TEXT NOT NULL REFERENCES catalog_brands(id),
		category_id TEXT NOT NULL REFERENCES catalog_categories(id),
		description TEXT NOT NULL DEFAULT '',
		lead_time TEXT,
		video TEXT,
		price_varies BOOLEAN NOT NULL DEFAULT TRUE,
		price_note TEXT,
		base_price NUMERIC(10,2),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		variations JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		promotion JSONB
	)`,
	`ALTER TABLE catalog_products ADD COLUMN IF NOT EXISTS promotion JSONB`,
	`CREATE INDEX IF NOT EXISTS idx_catalog_products_created ON catalog_products (created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_catalog_products_brand ON catalog_products (brand_id)`,
	`CREATE INDEX IF NOT EXISTS idx_catalog_products_category ON catalog_products (category_id)`,
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return Schema.Apply(ctx, s.db)
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case store.IsUniqueViolation(err), store.IsForeignKeyViolation(err):
		return ErrConflict
	}
	return err
}

// ---------------------------------------------------------------------------
// Brands
// ---------------------------------------------------------------------------

func (s *Store) CreateBrand(ctx context.Context, in BrandInput) (Brand, error) {
	b, err := in.build(s.now())
	if err != nil {
		return Brand{}, err
	}
	b.ID = store.NewID("brd")
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		for _, other := range s.memBrands {
			if other.Slug == b.Slug {
				return Brand{}, ErrConflict
			}
		}
		s.memBrands[b.ID] = b
		s.brands.Clear()
		return b, nil
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO catalog_brands (id, slug, name, description, created_at) VALUES ($1,$2,$3,$4,$5)`,
		b.ID, b.Slug, b.Name, store.NilIfEmpty(b.Description), b.CreatedAt)
	if err != nil {
		return Brand{}, mapErr(err)
	}
	s.brands.Clear()
	return b, nil
}

// GetBrand looks a brand up by id or slug.
func (s *Store) GetBrand(ctx context.Context, ref string) (Brand, error) {
	ref = strings.TrimSpace(ref)
	if s.db == nil {
		s.memMu.RLock()
		defer s.memMu.RUnlock()
		if b, ok := s.memBrands[ref]; ok {
			return b, nil
		}
		for _, b := range s.memBrands {
			if b.Slug == ref {
				return b, nil
			}
		}
		return Brand{}, ErrNotFound
	}
	var b Brand
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, description, created_at FROM catalog_brands WHERE id=$1 OR slug=$1 LIMIT 1`, ref,
	).Scan(&b.ID, &b.Slug, &b.Name, &desc, &b.CreatedAt)
	if err != nil {
		return Brand{}, mapErr(err)
	}
	b.Description = desc.String
	return b, nil
}

func (s *Store) ListBrands(ctx context.Context) ([]Brand, error) {
	if cached, ok := s.brands.Get("brands"); ok {
		return cached, nil
	}
	var out []Brand
	if s.db == nil {
		s.memMu.RLock()
		for _, b := range s.memBrands {
			out = append(out, b)
		}
		s.memMu.RUnlock()
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	} else {
		rows, err := s.db.QueryContext(ctx, `SELECT id, slug, name, description, created_at FROM catalog_brands ORDER BY name, id`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var b Brand
			var desc sql.NullString
			if err := rows.Scan(&b.ID, &b.Slug, &b.Name, &desc, &b.CreatedAt); err != nil {
				return nil, err
			}
			b.Description = desc.String
			out = append(out, b)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = []Brand{}
	}
	s.brands.Set("brands", out)
	return out, nil
}

func (s *Store) UpdateBrand(ctx context.Context, id string, in BrandInput) (Brand, error) {
	b, err := in.build(time.Time{})
	if err != nil {
		return Brand{}, err
	}
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		cur, ok := s.memBrands[id]
		if !ok {
			return Brand{}, ErrNotFound
		}
		for _, other := range s.memBrands {
			if other.ID != id && other.Slug == b.Slug {
				return Brand{}, ErrConflict
			}
		}
		b.ID, b.CreatedAt = cur.ID, cur.CreatedAt
		s.memBrands[id] = b
		s.brands.Clear()
		return b, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE catalog_brands SET slug=$2, name=$3, description=$4 WHERE id=$1`,
		id, b.Slug, b.Name, store.NilIfEmpty(b.Description))
	if err != nil {
		return Brand{}, mapErr(err)
	}
	if err := store.RowsAffected(res); err != nil {
		return Brand{}, mapErr(err)
	}
	s.brands.Clear()
	return s.GetBrand(ctx, id)
}

func (s *Store) DeleteBrand(ctx context.Context, id string) error {
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		if _, ok := s.memBrands[id]; !ok {
			return ErrNotFound
		}
		for _, p := range s.memProducts {
			if p.BrandID == id {
				return ErrConflict
			}
		}
		delete(s.memBrands, id)
		s.brands.Clear()
		return nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM catalog_brands WHERE id=$1`, id)
	if err != nil {
		return mapErr(err)
	}
	if err := store.RowsAffected(res); err != nil {
		return mapErr(err)
	}
	s.brands.Clear()
	return nil
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

const categoryColumns = `id, slug, name, description, long_description, image, display_order, created_at`

func scanCategory(row interface{ Scan(...any) error }) (Category, error) {
	var c Category
	var desc, long, image sql.NullString
	if err := row.Scan(&c.ID, &c.Slug, &c.Name, &desc, &long, &image, &c.DisplayOrder, &c.CreatedAt); err != nil {
		return Category{}, err
	}
	c.Description = desc.String
	c.LongDescription = long.String
	c.Image = image.String
	return c, nil
}

func (s *Store) CreateCategory(ctx context.Context, in CategoryInput) (Category, error) {
	c, err := in.build(s.now())
	if err != nil {
		return Category{}, err
	}
	c.ID = store.NewID("cat")
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		for _, other := range s.memCategories {
			if other.Slug == c.Slug {
				return Category{}, ErrConflict
			}
		}
		s.memCategories[c.ID] = c
		s.categories.Clear()
		return c, nil
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO catalog_categories (`+categoryColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.ID, c.Slug, c.Name, store.NilIfEmpty(c.Description), store.NilIfEmpty(c.LongDescription),
		store.NilIfEmpty(c.Image), c.DisplayOrder, c.CreatedAt)
	if err != nil {
		return Category{}, mapErr(err)
	}
	s.categories.Clear()
	return c, nil
}

// GetCategory looks a category up by id or slug.
func (s *Store) GetCategory(ctx context.Context, ref string) (Category, error) {
	ref = strings.TrimSpace(ref)
	if s.db == nil {
		s.memMu.RLock()
		defer s.memMu.RUnlock()
		if c, ok := s.memCategories[ref]; ok {
			return c, nil
		}
		for _, c := range s.memCategories {
			if c.Slug == ref {
				return c, nil
			}
		}
		return Category{}, ErrNotFound
	}
	c, err := scanCategory(s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM catalog_categories WHERE id=$1 OR slug=$1 LIMIT 1`, ref))
	if err != nil {
		return Category{}, mapErr(err)
	}
	return c, nil
}

// ListCategories orders by display order, then name.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	if cached, ok := s.categories.Get("categories"); ok {
		return cached, nil
	}
	var out []Category
	if s.db == nil {
		s.memMu.RLock()
		for _, c := range s.memCategories {
			out = append(out, c)
		}
		s.memMu.RUnlock()
		sort.Slice(out, func(i, j int) bool {
			if out[i].DisplayOrder != out[j].DisplayOrder {
				return out[i].DisplayOrder < out[j].DisplayOrder
			}
			return out[i].Name < out[j].Name
		})
	} else {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+categoryColumns+` FROM catalog_categories ORDER BY display_order, name, id`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanCategory(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = []Category{}
	}
	s.categories.Set("categories", out)
	return out, nil
}

func (s *Store) UpdateCategory(ctx context.Context, id string, in CategoryInput) (Category, error) {
	c, err := in.build(time.Time{})
	if err != nil {
		return Category{}, err
	}
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		cur, ok := s.memCategories[id]
		if !ok {
			return Category{}, ErrNotFound
		}
		for _, other := range s.memCategories {
			if other.ID != id && other.Slug == c.Slug {
				return Category{}, ErrConflict
			}
		}
		c.ID, c.CreatedAt = cur.ID, cur.CreatedAt
		s.memCategories[id] = c
		s.categories.Clear()
		return c, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE catalog_categories SET slug=$2, name=$3, description=$4, long_description=$5, image=$6, display_order=$7 WHERE id=$1`,
		id, c.Slug, c.Name, store.NilIfEmpty(c.Description), store.NilIfEmpty(c.LongDescription),
		store.NilIfEmpty(c.Image), c.DisplayOrder)
	if err != nil {
		return Category{}, mapErr(err)
	}
	if err := store.RowsAffected(res); err != nil {
		return Category{}, mapErr(err)
	}
	s.categories.Clear()
	return s.GetCategory(ctx, id)
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		if _, ok := s.memCategories[id]; !ok {
			return ErrNotFound
		}
		for _, p := range s.memProducts {
			if p.CategoryID == id {
				return ErrConflict
			}
		}
		delete(s.memCategories, id)
		s.categories.Clear()
		return nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM catalog_categories WHERE id=$1`, id)
	if err != nil {
		return mapErr(err)
	}
	if err := store.RowsAffected(res); err != nil {
		return mapErr(err)
	}
	s.categories.Clear()
	return nil
}
