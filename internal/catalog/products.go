package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"erp/ecommerce/quote-storefront/internal/store"
)

const productColumns = `id, slug, sku, name, short_name, brand_id, category_id, description, lead_time, video,
	price_varies, price_note, base_price, is_active, variations, created_at, updated_at, promotion`

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var p Product
	var short, lead, video, note sql.NullString
	var base decimal.NullDecimal
	var variations, promo []byte
	if err := row.Scan(&p.ID, &p.Slug, &p.SKU, &p.Name, &short, &p.BrandID, &p.CategoryID,
		&p.Description, &lead, &video, &p.PriceVaries, &note, &base, &p.Active, &variations,
		&p.CreatedAt, &p.UpdatedAt, &promo); err != nil {
		return Product{}, err
	}
	p.ShortName = short.String
	p.LeadTime = lead.String
	p.Video = video.String
	p.PriceNote = note.String
	if base.Valid {
		p.BasePrice = &base.Decimal
	}
	if len(variations) > 0 {
		if err := json.Unmarshal(variations, &p.Variations); err != nil {
			return Product{}, fmt.Errorf("decode variations of %s: %w", p.ID, err)
		}
	}
	if p.Variations == nil {
		p.Variations = []Variation{}
	}
	if len(promo) > 0 {
		if err := json.Unmarshal(promo, &p.Promotion); err != nil {
			return Product{}, fmt.Errorf("decode promotion of %s: %w", p.ID, err)
		}
	}
	return p, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func productArgs(p Product) ([]any, error) {
	variations, err := json.Marshal(p.Variations)
	if err != nil {
		return nil, err
	}
	promo, err := promotionJSON(p.Promotion)
	if err != nil {
		return nil, err
	}
	return []any{p.ID, p.Slug, p.SKU, p.Name, store.NilIfEmpty(p.ShortName), p.BrandID, p.CategoryID,
		p.Description, store.NilIfEmpty(p.LeadTime), store.NilIfEmpty(p.Video), p.PriceVaries,
		store.NilIfEmpty(p.PriceNote), nullDecimal(p.BasePrice), p.Active, string(variations),
		p.CreatedAt, p.UpdatedAt, promo}, nil
}

// checkRefs rejects products pointing at a missing brand or category.
func (s *Store) checkRefs(ctx context.Context, p Product) error {
	if _, err := s.GetBrand(ctx, p.BrandID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return store.Invalid("unknown brand_id %q", p.BrandID)
		}
		return err
	}
	if _, err := s.GetCategory(ctx, p.CategoryID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return store.Invalid("unknown category_id %q", p.CategoryID)
		}
		return err
	}
	return nil
}

// memConflict must be called with memMu held.
func (s *Store) memConflict(p Product) bool {
	for _, other := range s.memProducts {
		if other.ID != p.ID && (other.Slug == p.Slug || strings.EqualFold(other.SKU, p.SKU)) {
			return true
		}
	}
	return false
}

func (s *Store) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	p, err := in.build(s.now())
	if err != nil {
		return Product{}, err
	}
	if err := s.checkRefs(ctx, p); err != nil {
		return Product{}, err
	}
	p.ID = store.NewID("prd")

	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		if s.memConflict(p) {
			return Product{}, ErrConflict
		}
		s.memProducts[p.ID] = p
		s.products.InvalidatePrefix("products")
		return p, nil
	}

	args, err := productArgs(p)
	if err != nil {
		return Product{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO catalog_products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`, args...)
	if err != nil {
		return Product{}, mapErr(err)
	}
	s.products.InvalidatePrefix("products")
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (Product, error) {
	if s.db == nil {
		s.memMu.RLock()
		defer s.memMu.RUnlock()
		p, ok := s.memProducts[id]
		if !ok {
			return Product{}, ErrNotFound
		}
		return p, nil
	}
	p, err := scanProduct(s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM catalog_products WHERE id=$1`, id))
	return p, mapErr(err)
}

func (s *Store) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	slug = strings.TrimSpace(slug)
	if s.db == nil {
		s.memMu.RLock()
		defer s.memMu.RUnlock()
		for _, p := range s.memProducts {
			if p.Slug == slug {
				return p, nil
			}
		}
		return Product{}, ErrNotFound
	}
	p, err := scanProduct(s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM catalog_products WHERE slug=$1`, slug))
	return p, mapErr(err)
}

func (s *Store) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	if patch.empty() {
		return Product{}, store.Invalid("empty update payload")
	}
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	p.Variations = append([]Variation(nil), p.Variations...)
	patch.apply(&p)
	p.UpdatedAt = s.now()
	if err := p.validate(); err != nil {
		return Product{}, err
	}
	if patch.BrandID != nil || patch.CategoryID != nil {
		if err := s.checkRefs(ctx, p); err != nil {
			return Product{}, err
		}
	}

	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		if _, ok := s.memProducts[id]; !ok {
			return Product{}, ErrNotFound
		}
		if s.memConflict(p) {
			return Product{}, ErrConflict
		}
		s.memProducts[id] = p
		s.products.InvalidatePrefix("products")
		return p, nil
	}

	args, err := productArgs(p)
	if err != nil {
		return Product{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE catalog_products SET
		slug=$2, sku=$3, name=$4, short_name=$5, brand_id=$6, category_id=$7, description=$8,
		lead_time=$9, video=$10, price_varies=$11, price_note=$12, base_price=$13, is_active=$14,
		variations=$15, created_at=$16, updated_at=$17, promotion=$18
		WHERE id=$1`, args...)
	if err != nil {
		return Product{}, mapErr(err)
	}
	if err := store.RowsAffected(res); err != nil {
		return Product{}, mapErr(err)
	}
	s.products.InvalidatePrefix("products")
	return p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		if _, ok := s.memProducts[id]; !ok {
			return ErrNotFound
		}
		delete(s.memProducts, id)
		s.products.InvalidatePrefix("products")
		return nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM catalog_products WHERE id=$1`, id)
	if err != nil {
		return mapErr(err)
	}
	if err := store.RowsAffected(res); err != nil {
		return mapErr(err)
	}
	s.products.InvalidatePrefix("products")
	return nil
}

// ListProducts pages products newest first. First pages are cached.
func (s *Store) ListProducts(ctx context.Context, f ProductFilter, cursor string, limit int) (ProductList, error) {
	f.Query = strings.TrimSpace(f.Query)
	key := store.CacheKey("products", f.BrandID, f.CategoryID, f.ActiveOnly, strings.ToLower(f.Query), limit)
	if cursor == "" {
		if cached, ok := s.products.Get(key); ok {
			cached.Cached = true
			return cached, nil
		}
	}

	cursorTime, cursorID, err := store.ParseCursor(cursor)
	if err != nil {
		return ProductList{}, store.Invalid("%v", err)
	}

	var items []Product
	if s.db == nil {
		items = s.listProductsMemory(f)
		if cursor != "" {
			filtered := items[:0]
			for _, p := range items {
				if store.Before(p.CreatedAt, p.ID, cursorTime, cursorID) {
					filtered = append(filtered, p)
				}
			}
			items = filtered
		}
		if len(items) > limit+1 {
			items = items[:limit+1]
		}
	} else {
		args := []any{}
		where := []string{"TRUE"}
		next := 1
		if f.BrandID != "" {
			where = append(where, fmt.Sprintf("brand_id = $%d", next))
			args = append(args, f.BrandID)
			next++
		}
		if f.CategoryID != "" {
			where = append(where, fmt.Sprintf("category_id = $%d", next))
			args = append(args, f.CategoryID)
			next++
		}
		if f.ActiveOnly {
			where = append(where, "is_active")
		}
		if f.Query != "" {
			where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d OR sku ILIKE $%d)", next, next, next))
			args = append(args, "%"+escapeLike(f.Query)+"%")
			next++
		}
		if !cursorTime.IsZero() {
			where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", next, next+1))
			args = append(args, cursorTime, cursorID)
			next += 2
		}
		args = append(args, limit+1)
		q := fmt.Sprintf(`SELECT %s FROM catalog_products WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
			productColumns, strings.Join(where, " AND "), next)

		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return ProductList{}, err
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return ProductList{}, err
			}
			items = append(items, p)
		}
		if err := rows.Err(); err != nil {
			return ProductList{}, err
		}
	}

	resp := ProductList{Items: items}
	if len(items) > limit {
		last := items[limit-1]
		resp.Items = items[:limit]
		resp.NextCursor = store.EncodeCursor(last.CreatedAt, last.ID)
	}
	if resp.Items == nil {
		resp.Items = []Product{}
	}
	if cursor == "" {
		s.products.Set(key, resp)
	}
	return resp, nil
}

func (s *Store) listProductsMemory(f ProductFilter) []Product {
	s.memMu.RLock()
	items := make([]Product, 0, len(s.memProducts))
	for _, p := range s.memProducts {
		if f.matches(p) {
			items = append(items, p)
		}
	}
	s.memMu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Search matches active products by name, description or SKU.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Product{}, nil
	}
	list, err := s.ListProducts(ctx, ProductFilter{ActiveOnly: true, Query: query}, "", limit)
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

// ActiveSlugs returns every active product slug, for the sitemap.
func (s *Store) ActiveSlugs(ctx context.Context) ([]string, error) {
	if s.db == nil {
		items := s.listProductsMemory(ProductFilter{ActiveOnly: true})
		out := make([]string, len(items))
		for i, p := range items {
			out[i] = p.Slug
		}
		sort.Strings(out)
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT slug FROM catalog_products WHERE is_active ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		out = append(out, slug)
	}
	return out, rows.Err()
}

// ResolveItem prices one quote line from the catalog. ref is a product id or
// slug. Products with size variations need a size that exists when their
// price varies; an unknown size is always rejected.
func (s *Store) ResolveItem(ctx context.Context, ref, size string) (ResolvedItem, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ResolvedItem{}, store.Invalid("product is required")
	}
	p, err := s.GetProduct(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		p, err = s.GetProductBySlug(ctx, ref)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ResolvedItem{}, store.Invalid("unknown product %q", ref)
		}
		return ResolvedItem{}, err
	}
	if !p.Active {
		return ResolvedItem{}, store.Invalid("product %q is not available", p.Name)
	}

	item := ResolvedItem{
		ProductID: p.ID,
		SKU:       p.SKU,
		Name:      p.Name,
		UnitPrice: p.BasePrice,
		LeadTime:  p.LeadTime,
	}
	if b, err := s.GetBrand(ctx, p.BrandID); err == nil {
		item.BrandName = b.Name
	} else {
		s.logger.Warn("brand lookup failed", zap.String("product_id", p.ID), zap.Error(err))
	}

	size = strings.TrimSpace(size)
	switch {
	case size != "":
		v, ok := p.Variation(size)
		if !ok {
			return ResolvedItem{}, store.Invalid("unknown size %q for %s", size, p.Name)
		}
		item.Size = v.Size
		item.SizeLabel = v.Label
		item.VariationSKU = v.SKU
		if v.Price != nil || p.PriceVaries {
			item.UnitPrice = v.Price
		}
	case p.PriceVaries && len(p.Variations) > 0:
		return ResolvedItem{}, store.Invalid("size is required for %s", p.Name)
	}
	return item, nil
}
