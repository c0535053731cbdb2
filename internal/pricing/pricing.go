// Package pricing computes quote line totals, volume discounts, certificate
// fees and GST.
package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Tier is a volume discount threshold.
type Tier struct {
	MinQuantity int    `json:"min_quantity"`
	Percent     int    `json:"percent"`
	Label       string `json:"label"`
}

// Tiers is ordered from the largest threshold down.
var Tiers = []Tier{
	{MinQuantity: 10, Percent: 15, Label: "10+ items"},
	{MinQuantity: 5, Percent: 10, Label: "5+ items"},
	{MinQuantity: 2, Percent: 5, Label: "2+ items"},
}

var (
	DefaultCertFee = decimal.NewFromInt(350)
	DefaultGSTRate = decimal.NewFromFloat(0.10)
	hundred        = decimal.NewFromInt(100)
)

// TierFor returns the discount tier for a total quantity, if any.
func TierFor(quantity int) (Tier, bool) {
	for _, t := range Tiers {
		if quantity >= t.MinQuantity {
			return t, true
		}
	}
	return Tier{}, false
}

// DiscountPercent returns the volume discount for a total quantity.
func DiscountPercent(quantity int) int {
	t, ok := TierFor(quantity)
	if !ok {
		return 0
	}
	return t.Percent
}

// LineTotal multiplies a unit price by quantity. A nil price (POA) stays nil.
func LineTotal(unit *decimal.Decimal, quantity int) *decimal.Decimal {
	if unit == nil {
		return nil
	}
	v := unit.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
	return &v
}

// Line is the pricing view of a quote item.
type Line struct {
	UnitPrice    *decimal.Decimal
	Quantity     int
	MaterialCert bool
}

// Totals is the priced summary of a quote.
type Totals struct {
	ItemCount   int             `json:"item_count"`
	PricedTotal decimal.Decimal `json:"priced_total"`
	DiscountPct int             `json:"discount_pct"`
	Savings     decimal.Decimal `json:"savings"`
	CertCount   int             `json:"cert_count"`
	CertFee     decimal.Decimal `json:"cert_fee"`
	Shipping    decimal.Decimal `json:"shipping"`
	Net         decimal.Decimal `json:"net"`
	GST         decimal.Decimal `json:"gst"`
	Total       decimal.Decimal `json:"total"`
	HasUnpriced bool            `json:"has_unpriced_items"`
}

// Calculator holds the fee schedule used for totals.
type Calculator struct {
	CertFee decimal.Decimal
	GSTRate decimal.Decimal
}

// NewCalculator returns a calculator with the standard fee schedule.
func NewCalculator() Calculator {
	return Calculator{CertFee: DefaultCertFee, GSTRate: DefaultGSTRate}
}

// Compute prices lines. The discount tier is chosen from the total quantity
// across all lines and applies to the priced subtotal only.
func (c Calculator) Compute(lines []Line, shipping decimal.Decimal) Totals {
	var t Totals
	for _, l := range lines {
		t.ItemCount += l.Quantity
		if l.MaterialCert {
			t.CertCount++
		}
		lt := LineTotal(l.UnitPrice, l.Quantity)
		if lt == nil {
			t.HasUnpriced = true
			continue
		}
		t.PricedTotal = t.PricedTotal.Add(*lt)
	}
	t.DiscountPct = DiscountPercent(t.ItemCount)
	t.Savings = t.PricedTotal.Mul(decimal.NewFromInt(int64(t.DiscountPct))).Div(hundred).Round(2)
	t.CertFee = c.CertFee.Mul(decimal.NewFromInt(int64(t.CertCount))).Round(2)
	return c.Finish(t, shipping)
}

// Finish recomputes net, GST and total from stored subtotal figures and a
// shipping charge.
func (c Calculator) Finish(t Totals, shipping decimal.Decimal) Totals {
	t.Shipping = shipping.Round(2)
	t.Net = t.PricedTotal.Sub(t.Savings).Add(t.CertFee).Add(t.Shipping).Round(2)
	t.GST = t.Net.Mul(c.GSTRate).Round(2)
	t.Total = t.Net.Add(t.GST)
	return t
}

// QuoteExpiry returns the last day of the month after created.
func QuoteExpiry(created time.Time) time.Time {
	y, m, _ := created.Date()
	return time.Date(y, m+2, 0, 0, 0, 0, 0, created.Location())
}

// Money formats an amount as "$1,234.56". A nil amount is "POA".
func Money(d *decimal.Decimal) string {
	if d == nil {
		return "POA"
	}
	s := d.Abs().StringFixed(2)
	whole, frac := s[:len(s)-3], s[len(s)-3:]
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + "$" + b.String() + frac
}

// Amount is Money for a non-optional value.
func Amount(d decimal.Decimal) string {
	return Money(&d)
}
