package quotes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"erp/ecommerce/quote-storefront/internal/pricing"
	"erp/ecommerce/quote-storefront/internal/shipping"
	"erp/ecommerce/quote-storefront/internal/store"
	"erp/ecommerce/quote-storefront/internal/tokens"
)

// Store persists quotes in Postgres, or in memory when db is nil.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	lists  *store.Cache[List]

	memMu sync.RWMutex
	mem   map[string]Quote

	now func() time.Time
}

func NewStore(db *sql.DB, cacheTTL time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		logger: logger,
		lists:  store.NewCache[List](cacheTTL),
		mem:    make(map[string]Quote),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Mode() string {
	if s.db == nil {
		return "memory"
	}
	return "postgres"
}

var Schema = store.Schema{
	`CREATE TABLE IF NOT EXISTS quotes (
		id TEXT PRIMARY KEY,
		quote_number TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'pending',
		company_name TEXT NOT NULL,
		contact_name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL,
		delivery_street TEXT NOT NULL,
		delivery_suburb TEXT NOT NULL,
		delivery_state TEXT NOT NULL,
		delivery_postcode TEXT NOT NULL,
		billing_street TEXT,
		billing_suburb TEXT,
		billing_state TEXT,
		billing_postcode TEXT,
		notes TEXT,
		item_count INTEGER NOT NULL DEFAULT 0,
		priced_total NUMERIC(12,2) NOT NULL DEFAULT 0,
		savings NUMERIC(12,2) NOT NULL DEFAULT 0,
		discount_pct INTEGER NOT NULL DEFAULT 0,
		cert_count INTEGER NOT NULL DEFAULT 0,
		cert_fee NUMERIC(12,2) NOT NULL DEFAULT 0,
		has_unpriced_items BOOLEAN NOT NULL DEFAULT FALSE,
		lead_time TEXT,
		delivery_zone TEXT NOT NULL,
		delivery_region TEXT,
		mine_site BOOLEAN NOT NULL DEFAULT FALSE,
		shipping_cost NUMERIC(12,2),
		shipping_notes TEXT,
		internal_notes TEXT,
		approval_token TEXT UNIQUE,
		approval_token_expires_at TIMESTAMPTZ,
		approval_token_used_at TIMESTAMPTZ,
		pdf_path TEXT,
		pdf_version INTEGER NOT NULL DEFAULT 0,
		pdf_generated_at TIMESTAMPTZ,
		reviewed_at TIMESTAMPTZ,
		forwarded_at TIMESTAMPTZ,
		responded_at TIMESTAMPTZ,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_at TIMESTAMPTZ,
		deleted_by TEXT,
		client_ip TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS quote_items (
		id TEXT PRIMARY KEY,
		quote_id TEXT NOT NULL REFERENCES quotes(id) ON DELETE CASCADE,
		product_id TEXT,
		sku TEXT NOT NULL,
		variation_sku TEXT,
		name TEXT NOT NULL,
		brand TEXT NOT NULL DEFAULT '',
		size TEXT,
		size_label TEXT,
		quantity INTEGER NOT NULL,
		unit_price NUMERIC(12,2),
		line_total NUMERIC(12,2),
		quoted_price NUMERIC(12,2),
		quoted_notes TEXT,
		material_test_cert BOOLEAN NOT NULL DEFAULT FALSE,
		lead_time TEXT,
		display_order INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_quotes_created ON quotes (created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_quotes_status ON quotes (status) WHERE NOT is_deleted`,
	`CREATE INDEX IF NOT EXISTS idx_quote_items_quote ON quote_items (quote_id, display_order)`,
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return Schema.Apply(ctx, s.db)
}

const quoteColumns = `id, quote_number, status, company_name, contact_name, email, phone,
	delivery_street, delivery_suburb, delivery_state, delivery_postcode,
	billing_street, billing_suburb, billing_state, billing_postcode,
	notes, item_count, priced_total, savings, discount_pct, cert_count, cert_fee, has_unpriced_items,
	lead_time, delivery_zone, delivery_region, mine_site, shipping_cost, shipping_notes, internal_notes,
	approval_token, approval_token_expires_at, approval_token_used_at,
	pdf_path, pdf_version, pdf_generated_at, reviewed_at, forwarded_at, responded_at,
	is_deleted, deleted_at, deleted_by, client_ip, created_at, updated_at`

const itemColumns = `id, quote_id, product_id, sku, variation_sku, name, brand, size, size_label, quantity,
	unit_price, line_total, quoted_price, quoted_notes, material_test_cert, lead_time, display_order`

func placeholders(n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(p, ",")
}

func nullDec(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func decPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func quoteArgs(q Quote) []any {
	b := Address{}
	if q.BillingAddress != nil {
		b = *q.BillingAddress
	}
	return []any{
		q.ID, q.QuoteNumber, string(q.Status), q.CompanyName, q.ContactName, q.Email, q.Phone,
		q.DeliveryAddress.Street, q.DeliveryAddress.Suburb, q.DeliveryAddress.State, q.DeliveryAddress.Postcode,
		store.NilIfEmpty(b.Street), store.NilIfEmpty(b.Suburb), store.NilIfEmpty(b.State), store.NilIfEmpty(b.Postcode),
		store.NilIfEmpty(q.Notes), q.ItemCount, q.PricedTotal, q.Savings, q.DiscountPct, q.CertCount, q.CertFee, q.HasUnpriced,
		store.NilIfEmpty(q.LeadTime), string(q.DeliveryZone), store.NilIfEmpty(q.DeliveryRegion), q.MineSite,
		nullDec(q.ShippingCost), store.NilIfEmpty(q.ShippingNotes), store.NilIfEmpty(q.InternalNotes),
		store.NilIfEmpty(q.ApprovalToken), nullTime(q.ApprovalTokenExpiresAt), nullTime(q.ApprovalTokenUsedAt),
		store.NilIfEmpty(q.PDFPath), q.PDFVersion, nullTime(q.PDFGeneratedAt),
		nullTime(q.ReviewedAt), nullTime(q.ForwardedAt), nullTime(q.RespondedAt),
		q.IsDeleted, nullTime(q.DeletedAt), store.NilIfEmpty(q.DeletedBy), store.NilIfEmpty(q.ClientIP),
		q.CreatedAt, q.UpdatedAt,
	}
}

func scanQuote(row interface{ Scan(...any) error }) (Quote, error) {
	var q Quote
	var status, zone string
	var bStreet, bSuburb, bState, bPostcode, notes, lead, region, shipNotes, internal, token, pdfPath, deletedBy, ip sql.NullString
	var shipCost decimal.NullDecimal
	var tokExp, tokUsed, pdfAt, reviewed, forwarded, responded, deletedAt sql.NullTime
	err := row.Scan(
		&q.ID, &q.QuoteNumber, &status, &q.CompanyName, &q.ContactName, &q.Email, &q.Phone,
		&q.DeliveryAddress.Street, &q.DeliveryAddress.Suburb, &q.DeliveryAddress.State, &q.DeliveryAddress.Postcode,
		&bStreet, &bSuburb, &bState, &bPostcode,
		&notes, &q.ItemCount, &q.PricedTotal, &q.Savings, &q.DiscountPct, &q.CertCount, &q.CertFee, &q.HasUnpriced,
		&lead, &zone, &region, &q.MineSite, &shipCost, &shipNotes, &internal,
		&token, &tokExp, &tokUsed,
		&pdfPath, &q.PDFVersion, &pdfAt, &reviewed, &forwarded, &responded,
		&q.IsDeleted, &deletedAt, &deletedBy, &ip, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return Quote{}, err
	}
	q.Status = Status(status)
	q.DeliveryZone = shipping.Tier(zone)
	if bStreet.Valid || bSuburb.Valid || bState.Valid || bPostcode.Valid {
		q.BillingAddress = &Address{Street: bStreet.String, Suburb: bSuburb.String, State: bState.String, Postcode: bPostcode.String}
	}
	q.Notes = notes.String
	q.LeadTime = lead.String
	q.DeliveryRegion = region.String
	q.ShippingCost = decPtr(shipCost)
	q.ShippingNotes = shipNotes.String
	q.InternalNotes = internal.String
	q.ApprovalToken = token.String
	q.ApprovalTokenExpiresAt = timePtr(tokExp)
	q.ApprovalTokenUsedAt = timePtr(tokUsed)
	q.PDFPath = pdfPath.String
	q.PDFGeneratedAt = timePtr(pdfAt)
	q.ReviewedAt = timePtr(reviewed)
	q.ForwardedAt = timePtr(forwarded)
	q.RespondedAt = timePtr(responded)
	q.DeletedAt = timePtr(deletedAt)
	q.DeletedBy = deletedBy.String
	q.ClientIP = ip.String
	return q, nil
}

func itemArgs(quoteID string, it Item) []any {
	return []any{
		it.ID, quoteID, store.NilIfEmpty(it.ProductID), it.SKU, store.NilIfEmpty(it.VariationSKU), it.Name, it.Brand,
		store.NilIfEmpty(it.Size), store.NilIfEmpty(it.SizeLabel), it.Quantity,
		nullDec(it.UnitPrice), nullDec(it.LineTotal), nullDec(it.QuotedPrice), store.NilIfEmpty(it.QuotedNotes),
		it.MaterialCert, store.NilIfEmpty(it.LeadTime), it.DisplayOrder,
	}
}

func scanItem(row interface{ Scan(...any) error }) (Item, error) {
	var it Item
	var quoteID string
	var productID, varSKU, size, sizeLabel, quotedNotes, lead sql.NullString
	var unit, line, quoted decimal.NullDecimal
	err := row.Scan(&it.ID, &quoteID, &productID, &it.SKU, &varSKU, &it.Name, &it.Brand, &size, &sizeLabel, &it.Quantity,
		&unit, &line, &quoted, &quotedNotes, &it.MaterialCert, &lead, &it.DisplayOrder)
	if err != nil {
		return Item{}, err
	}
	it.ProductID = productID.String
	it.VariationSKU = varSKU.String
	it.Size = size.String
	it.SizeLabel = sizeLabel.String
	it.UnitPrice = decPtr(unit)
	it.LineTotal = decPtr(line)
	it.QuotedPrice = decPtr(quoted)
	it.QuotedNotes = quotedNotes.String
	it.LeadTime = lead.String
	return it, nil
}

// Create inserts q with its items in one transaction.
func (s *Store) Create(ctx context.Context, q Quote) error {
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		for _, other := range s.mem {
			if other.QuoteNumber == q.QuoteNumber {
				return ErrConflict
			}
		}
		s.mem[q.ID] = q.clone()
		s.lists.Clear()
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	args := quoteArgs(q)
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO quotes (%s) VALUES (%s)`, quoteColumns, placeholders(len(args))), args...); err != nil {
		if store.IsUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	insertItem := fmt.Sprintf(`INSERT INTO quote_items (%s) VALUES (%s)`, itemColumns, placeholders(17))
	for _, it := range q.Items {
		if _, err := tx.ExecContext(ctx, insertItem, itemArgs(q.ID, it)...); err != nil {
			return fmt.Errorf("insert quote item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.lists.Clear()
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (Quote, error) {
	return s.getBy(ctx, "id", id, func(q Quote) bool { return q.ID == id })
}

func (s *Store) GetByNumber(ctx context.Context, number string) (Quote, error) {
	return s.getBy(ctx, "quote_number", number, func(q Quote) bool { return q.QuoteNumber == number })
}

func (s *Store) GetByToken(ctx context.Context, token string) (Quote, error) {
	if token == "" {
		return Quote{}, ErrNotFound
	}
	return s.getBy(ctx, "approval_token", token, func(q Quote) bool { return q.ApprovalToken == token })
}

func (s *Store) getBy(ctx context.Context, column, value string, match func(Quote) bool) (Quote, error) {
	if s.db == nil {
		s.memMu.RLock()
		defer s.memMu.RUnlock()
		for _, q := range s.mem {
			if match(q) {
				return q.clone(), nil
			}
		}
		return Quote{}, ErrNotFound
	}
	q, err := scanQuote(s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM quotes WHERE %s = $1`, quoteColumns, column), value))
	if errors.Is(err, sql.ErrNoRows) {
		return Quote{}, ErrNotFound
	}
	if err != nil {
		return Quote{}, err
	}
	q.Items, err = s.loadItems(ctx, s.db, q.ID)
	if err != nil {
		return Quote{}, err
	}
	return q, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) loadItems(ctx context.Context, db querier, quoteID string) ([]Item, error) {
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM quote_items WHERE quote_id = $1 ORDER BY display_order, id`, itemColumns), quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// List returns quote headers without items, newest first. Only the first
// page is cached.
func (s *Store) List(ctx context.Context, f ListFilter, cursor string, limit int) (List, error) {
	f.Query = strings.TrimSpace(f.Query)
	key := store.CacheKey("quotes", f.Status, f.IncludeDeleted, f.Query, limit)
	if cursor == "" {
		if cached, ok := s.lists.Get(key); ok {
			cached.Cached = true
			return cached, nil
		}
	}
	cursorTime, cursorID, err := store.ParseCursor(cursor)
	if err != nil {
		return List{}, store.Invalid("%s", err.Error())
	}

	var items []Quote
	if s.db == nil {
		items = s.listMemory(f, cursorTime, cursorID)
	} else {
		where := []string{"TRUE"}
		var args []any
		next := 1
		if !f.IncludeDeleted {
			where = append(where, "NOT is_deleted")
		}
		if f.Status != "" {
			where = append(where, fmt.Sprintf("status = $%d", next))
			args = append(args, string(f.Status))
			next++
		}
		if f.Query != "" {
			where = append(where, fmt.Sprintf(
				"(quote_number ILIKE $%[1]d OR company_name ILIKE $%[1]d OR contact_name ILIKE $%[1]d OR email ILIKE $%[1]d)", next))
			args = append(args, "%"+escapeLike(f.Query)+"%")
			next++
		}
		if !cursorTime.IsZero() {
			where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", next, next+1))
			args = append(args, cursorTime, cursorID)
			next += 2
		}
		args = append(args, limit+1)
		q := fmt.Sprintf(`SELECT %s FROM quotes WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
			quoteColumns, strings.Join(where, " AND "), next)
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return List{}, err
		}
		defer rows.Close()
		for rows.Next() {
			qt, err := scanQuote(rows)
			if err != nil {
				return List{}, err
			}
			items = append(items, qt)
		}
		if err := rows.Err(); err != nil {
			return List{}, err
		}
	}

	resp := List{Items: items}
	if resp.Items == nil {
		resp.Items = []Quote{}
	}
	if len(items) > limit {
		last := items[limit-1]
		resp.Items = items[:limit]
		resp.NextCursor = store.EncodeCursor(last.CreatedAt, last.ID)
	}
	if cursor == "" {
		s.lists.Set(key, resp)
	}
	return resp, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *Store) listMemory(f ListFilter, cursorTime time.Time, cursorID string) []Quote {
	needle := strings.ToLower(f.Query)
	s.memMu.RLock()
	items := make([]Quote, 0)
	for _, q := range s.mem {
		if q.IsDeleted && !f.IncludeDeleted {
			continue
		}
		if f.Status != "" && q.Status != f.Status {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(q.QuoteNumber+" "+q.CompanyName+" "+q.ContactName+" "+q.Email), needle) {
			continue
		}
		if !cursorTime.IsZero() && !store.Before(q.CreatedAt, q.ID, cursorTime, cursorID) {
			continue
		}
		h := q.clone()
		h.Items = nil
		items = append(items, h)
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

// Repricer recomputes subtotal figures after quoted prices change.
type Repricer func(Quote) pricing.Totals

func (p Patch) validate() (Status, error) {
	if p.empty() {
		return "", store.Invalid("empty update payload")
	}
	var st Status
	if p.Status != nil {
		var ok bool
		if st, ok = ParseStatus(*p.Status); !ok {
			return "", store.Invalid("invalid status %q", *p.Status)
		}
	}
	if p.ShippingCost != nil && p.ShippingCost.IsNegative() {
		return "", store.Invalid("shipping_cost must not be negative")
	}
	for _, ip := range p.Items {
		if ip.ID == "" {
			return "", store.Invalid("items: id is required")
		}
		if ip.QuotedPrice != nil && ip.QuotedPrice.IsNegative() {
			return "", store.Invalid("items: quoted_price must not be negative")
		}
	}
	return st, nil
}

func applyItemPatch(it *Item, ip ItemPatch) {
	switch {
	case ip.ClearQuotedPrice:
		it.QuotedPrice = nil
	case ip.QuotedPrice != nil:
		v := ip.QuotedPrice.Round(2)
		it.QuotedPrice = &v
	}
	if ip.QuotedNotes != nil {
		it.QuotedNotes = strings.TrimSpace(*ip.QuotedNotes)
	}
}

// stamp sets the timestamp that belongs to st the first time the quote
// enters that status.
func stamp(q *Quote, st Status, now time.Time) {
	set := func(t **time.Time) {
		if *t == nil {
			v := now
			*t = &v
		}
	}
	switch st {
	case StatusReviewed:
		set(&q.ReviewedAt)
	case StatusForwarded:
		set(&q.ForwardedAt)
	case StatusResponded:
		set(&q.RespondedAt)
	}
}

// Update applies an admin patch. When item prices change, reprice is used to
// refresh the stored subtotal figures.
func (s *Store) Update(ctx context.Context, id string, p Patch, reprice Repricer) (Quote, error) {
	st, err := p.validate()
	if err != nil {
		return Quote{}, err
	}
	now := s.now()

	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		q, ok := s.mem[id]
		if !ok {
			return Quote{}, ErrNotFound
		}
		q = q.clone()
		for _, ip := range p.Items {
			idx := -1
			for i := range q.Items {
				if q.Items[i].ID == ip.ID {
					idx = i
					break
				}
			}
			if idx < 0 {
				return Quote{}, store.Invalid("unknown quote item %q", ip.ID)
			}
			applyItemPatch(&q.Items[idx], ip)
		}
		if len(p.Items) > 0 && reprice != nil {
			q.applyTotals(reprice(q))
		}
		if st != "" {
			q.Status = st
			stamp(&q, st, now)
		}
		if p.InternalNotes != nil {
			q.InternalNotes = strings.TrimSpace(*p.InternalNotes)
		}
		if p.ClearShipping {
			q.ShippingCost = nil
		} else if p.ShippingCost != nil {
			v := p.ShippingCost.Round(2)
			q.ShippingCost = &v
		}
		if p.ShippingNotes != nil {
			q.ShippingNotes = strings.TrimSpace(*p.ShippingNotes)
		}
		q.UpdatedAt = now
		s.mem[id] = q
		s.lists.Clear()
		return q.clone(), nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Quote{}, err
	}
	defer tx.Rollback()

	assignments := make([]string, 0, 16)
	args := []any{id}
	next := 2
	set := func(column string, v any) {
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, next))
		args = append(args, v)
		next++
	}

	if len(p.Items) > 0 {
		for _, ip := range p.Items {
			var it Item
			it, err = scanItem(tx.QueryRowContext(ctx,
				fmt.Sprintf(`SELECT %s FROM quote_items WHERE id = $1 AND quote_id = $2 FOR UPDATE`, itemColumns), ip.ID, id))
			if errors.Is(err, sql.ErrNoRows) {
				return Quote{}, store.Invalid("unknown quote item %q", ip.ID)
			}
			if err != nil {
				return Quote{}, err
			}
			applyItemPatch(&it, ip)
			if _, err := tx.ExecContext(ctx,
				`UPDATE quote_items SET quoted_price = $2, quoted_notes = $3 WHERE id = $1`,
				it.ID, nullDec(it.QuotedPrice), store.NilIfEmpty(it.QuotedNotes)); err != nil {
				return Quote{}, err
			}
		}
		if reprice != nil {
			var q Quote
			if q.Items, err = s.loadItems(ctx, tx, id); err != nil {
				return Quote{}, err
			}
			t := reprice(q)
			set("item_count", t.ItemCount)
			set("priced_total", t.PricedTotal)
			set("savings", t.Savings)
			set("discount_pct", t.DiscountPct)
			set("cert_count", t.CertCount)
			set("cert_fee", t.CertFee)
			set("has_unpriced_items", t.HasUnpriced)
		}
	}
	if st != "" {
		set("status", string(st))
		switch st {
		case StatusReviewed:
			assignments = append(assignments, fmt.Sprintf("reviewed_at = COALESCE(reviewed_at, $%d)", next))
		case StatusForwarded:
			assignments = append(assignments, fmt.Sprintf("forwarded_at = COALESCE(forwarded_at, $%d)", next))
		case StatusResponded:
			assignments = append(assignments, fmt.Sprintf("responded_at = COALESCE(responded_at, $%d)", next))
		}
		if st == StatusReviewed || st == StatusForwarded || st == StatusResponded {
			args = append(args, now)
			next++
		}
	}
	if p.InternalNotes != nil {
		set("internal_notes", store.NilIfEmpty(strings.TrimSpace(*p.InternalNotes)))
	}
	if p.ClearShipping {
		assignments = append(assignments, "shipping_cost = NULL")
	} else if p.ShippingCost != nil {
		set("shipping_cost", p.ShippingCost.Round(2))
	}
	if p.ShippingNotes != nil {
		set("shipping_notes", store.NilIfEmpty(strings.TrimSpace(*p.ShippingNotes)))
	}
	set("updated_at", now)

	q := fmt.Sprintf(`UPDATE quotes SET %s WHERE id = $1`, strings.Join(assignments, ", "))
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return Quote{}, err
	}
	if err := store.RowsAffected(res); err != nil {
		return Quote{}, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return Quote{}, err
	}
	s.lists.Clear()
	return s.Get(ctx, id)
}

// SoftDelete hides a quote from default listings.
func (s *Store) SoftDelete(ctx context.Context, id, by string) error {
	now := s.now()
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		q, ok := s.mem[id]
		if !ok {
			return ErrNotFound
		}
		if !q.IsDeleted {
			q.IsDeleted = true
			q.DeletedAt = &now
			q.DeletedBy = by
			q.UpdatedAt = now
			s.mem[id] = q
		}
		s.lists.Clear()
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE quotes SET is_deleted = TRUE, deleted_at = COALESCE(deleted_at, $2), deleted_by = COALESCE(deleted_by, $3), updated_at = $2 WHERE id = $1`,
		id, now, store.NilIfEmpty(by))
	if err != nil {
		return err
	}
	if err := store.RowsAffected(res); err != nil {
		return ErrNotFound
	}
	s.lists.Clear()
	return nil
}

// Restore undoes SoftDelete. Quotes that are not deleted give ErrNotDeleted.
func (s *Store) Restore(ctx context.Context, id string) (Quote, error) {
	now := s.now()
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		q, ok := s.mem[id]
		if !ok {
			return Quote{}, ErrNotFound
		}
		if !q.IsDeleted {
			return Quote{}, ErrNotDeleted
		}
		q.IsDeleted = false
		q.DeletedAt = nil
		q.DeletedBy = ""
		q.UpdatedAt = now
		s.mem[id] = q
		s.lists.Clear()
		return q.clone(), nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE quotes SET is_deleted = FALSE, deleted_at = NULL, deleted_by = NULL, updated_at = $2 WHERE id = $1 AND is_deleted`,
		id, now)
	if err != nil {
		return Quote{}, err
	}
	if err := store.RowsAffected(res); err != nil {
		if _, gerr := s.Get(ctx, id); gerr != nil {
			return Quote{}, gerr
		}
		return Quote{}, ErrNotDeleted
	}
	s.lists.Clear()
	return s.Get(ctx, id)
}

// claimTokenSQL treats the expiry instant itself as valid, like tokens.Expired.
const claimTokenSQL = `UPDATE quotes SET approval_token_used_at = $2, updated_at = $2
		WHERE approval_token = $1 AND approval_token_used_at IS NULL AND status <> 'forwarded'
			AND NOT is_deleted AND approval_token_expires_at >= $2
		RETURNING id`

// ClaimToken marks an approval token used so only one approval can proceed.
// It fails with ErrNotFound, ErrTokenExpired or ErrAlreadyForwarded.
func (s *Store) ClaimToken(ctx context.Context, token string) (Quote, error) {
	now := s.now()
	if token == "" {
		return Quote{}, ErrNotFound
	}
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		for id, q := range s.mem {
			if q.ApprovalToken != token {
				continue
			}
			if err := checkApprovable(q, now); err != nil {
				return Quote{}, err
			}
			q.ApprovalTokenUsedAt = &now
			q.UpdatedAt = now
			s.mem[id] = q
			s.lists.Clear()
			return q.clone(), nil
		}
		return Quote{}, ErrNotFound
	}

	var id string
	err := s.db.QueryRowContext(ctx, claimTokenSQL, token, now).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		q, gerr := s.GetByToken(ctx, token)
		if gerr != nil {
			return Quote{}, gerr
		}
		if cerr := checkApprovable(q, now); cerr != nil {
			return Quote{}, cerr
		}
		// lost a race with a concurrent claim
		return Quote{}, ErrAlreadyForwarded
	}
	if err != nil {
		return Quote{}, err
	}
	s.lists.Clear()
	return s.Get(ctx, id)
}

// checkApprovable applies the approval link rules to q.
func checkApprovable(q Quote, now time.Time) error {
	switch {
	case q.IsDeleted:
		return ErrNotFound
	case tokens.Expired(q.ApprovalTokenExpiresAt, now):
		return ErrTokenExpired
	case q.Status == StatusForwarded || q.ApprovalTokenUsedAt != nil:
		return ErrAlreadyForwarded
	}
	return nil
}

// ReleaseToken reopens a claimed token after a failed approval.
func (s *Store) ReleaseToken(ctx context.Context, id string) error {
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		q, ok := s.mem[id]
		if !ok {
			return ErrNotFound
		}
		q.ApprovalTokenUsedAt = nil
		s.mem[id] = q
		s.lists.Clear()
		return nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE quotes SET approval_token_used_at = NULL WHERE id = $1`, id)
	s.lists.Clear()
	return err
}

// MarkForwarded records the PDF and shipping that were sent and moves the
// quote to forwarded.
func (s *Store) MarkForwarded(ctx context.Context, id string, f Forwarded) (Quote, error) {
	at := f.At
	if at.IsZero() {
		at = s.now()
	}
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		q, ok := s.mem[id]
		if !ok {
			return Quote{}, ErrNotFound
		}
		q.Status = StatusForwarded
		q.ForwardedAt = &at
		q.ShippingCost = f.ShippingCost
		q.ShippingNotes = f.ShippingNotes
		q.PDFPath = f.PDFPath
		q.PDFVersion = f.PDFVersion
		q.PDFGeneratedAt = &at
		q.UpdatedAt = at
		s.mem[id] = q
		s.lists.Clear()
		return q.clone(), nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE quotes SET status = 'forwarded', forwarded_at = $2, shipping_cost = $3, shipping_notes = $4,
			pdf_path = $5, pdf_version = $6, pdf_generated_at = $2, updated_at = $2
		WHERE id = $1`,
		id, at, nullDec(f.ShippingCost), store.NilIfEmpty(f.ShippingNotes), store.NilIfEmpty(f.PDFPath), f.PDFVersion)
	if err != nil {
		return Quote{}, err
	}
	if err := store.RowsAffected(res); err != nil {
		return Quote{}, ErrNotFound
	}
	s.lists.Clear()
	return s.Get(ctx, id)
}

// Counts is the dashboard summary: live quotes per status plus totals.
type Counts struct {
	ByStatus map[Status]int `json:"by_status"`
	Total    int            `json:"total"`
	Deleted  int            `json:"deleted"`
}

func (s *Store) CountByStatus(ctx context.Context) (Counts, error) {
	c := Counts{ByStatus: make(map[Status]int, len(Statuses))}
	for _, st := range Statuses {
		c.ByStatus[st] = 0
	}
	if s.db == nil {
		s.memMu.RLock()
		defer s.memMu.RUnlock()
		for _, q := range s.mem {
			if q.IsDeleted {
				c.Deleted++
				continue
			}
			c.ByStatus[q.Status]++
			c.Total++
		}
		return c, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, is_deleted, COUNT(*) FROM quotes GROUP BY status, is_deleted`)
	if err != nil {
		return Counts{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var st string
		var deleted bool
		var n int
		if err := rows.Scan(&st, &deleted, &n); err != nil {
			return Counts{}, err
		}
		if deleted {
			c.Deleted += n
			continue
		}
		c.ByStatus[Status(st)] += n
		c.Total += n
	}
	return c, rows.Err()
}
