package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"erp/ecommerce/quote-storefront/internal/store"
)

const (
	ActionSetPromotion   = "set-promotion"
	ActionClearPromotion = "clear-promotion"
)

// Promotion is a temporary sale price shown next to the catalog price.
type Promotion struct {
	ID     string          `json:"id"`
	Price  decimal.Decimal `json:"price"`
	Starts time.Time       `json:"starts_at"`
	Ends   *time.Time      `json:"ends_at,omitempty"`
}

// ActiveAt reports whether the promotion runs at t. The end is exclusive.
func (p *Promotion) ActiveAt(t time.Time) bool {
	if p == nil || t.Before(p.Starts) {
		return false
	}
	return p.Ends == nil || t.Before(*p.Ends)
}

func promotionJSON(p *Promotion) (any, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// PricingUpdate sets or clears a promotion on many products at once.
type PricingUpdate struct {
	Action     string           `json:"action"`
	ProductIDs []string         `json:"product_ids"`
	Price      *decimal.Decimal `json:"promotion_price"`
	StartsAt   *time.Time       `json:"promotion_start_date"`
	EndsAt     *time.Time       `json:"promotion_end_date"`
}

type PricingResult struct {
	Action    string     `json:"action"`
	Requested int        `json:"requested"`
	Updated   int        `json:"updated"`
	Promotion *Promotion `json:"promotion,omitempty"`
}

func (u PricingUpdate) promotion(now time.Time) (*Promotion, error) {
	ids := 0
	for _, id := range u.ProductIDs {
		if strings.TrimSpace(id) != "" {
			ids++
		}
	}
	if ids == 0 {
		return nil, store.Invalid("product_ids are required")
	}
	switch u.Action {
	case ActionClearPromotion:
		return nil, nil
	case ActionSetPromotion:
	default:
		return nil, store.Invalid("action must be %s or %s", ActionSetPromotion, ActionClearPromotion)
	}
	if u.Price == nil {
		return nil, store.Invalid("promotion_price is required")
	}
	if !u.Price.IsPositive() {
		return nil, store.Invalid("promotion_price must be positive")
	}
	p := &Promotion{
		ID:     fmt.Sprintf("PROMO-%d", now.UnixMilli()),
		Price:  u.Price.Round(2),
		Starts: now,
	}
	if u.StartsAt != nil {
		p.Starts = u.StartsAt.UTC()
	}
	if u.EndsAt != nil {
		end := u.EndsAt.UTC()
		if !end.After(p.Starts) {
			return nil, store.Invalid("promotion_end_date must be after the start")
		}
		p.Ends = &end
	}
	return p, nil
}

// UpdatePricing applies u to every listed product. Unknown ids are skipped
// and show up as the gap between Requested and Updated.
func (s *Store) UpdatePricing(ctx context.Context, u PricingUpdate) (PricingResult, error) {
	now := s.now()
	promo, err := u.promotion(now)
	if err != nil {
		return PricingResult{}, err
	}
	ids := make([]string, 0, len(u.ProductIDs))
	seen := make(map[string]bool, len(u.ProductIDs))
	for _, id := range u.ProductIDs {
		id = strings.TrimSpace(id)
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	res := PricingResult{Action: u.Action, Requested: len(ids), Promotion: promo}

	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		for _, id := range ids {
			p, ok := s.memProducts[id]
			if !ok {
				continue
			}
			p.Promotion = promo
			p.UpdatedAt = now
			s.memProducts[id] = p
			res.Updated++
		}
		s.products.InvalidatePrefix("products")
		return res, nil
	}

	value, err := promotionJSON(promo)
	if err != nil {
		return PricingResult{}, err
	}
	out, err := s.db.ExecContext(ctx,
		`UPDATE catalog_products SET promotion=$1, updated_at=$2 WHERE id = ANY($3)`, value, now, ids)
	if err != nil {
		return PricingResult{}, err
	}
	n, err := out.RowsAffected()
	if err != nil {
		return PricingResult{}, err
	}
	res.Updated = int(n)
	s.products.InvalidatePrefix("products")
	return res, nil
}
