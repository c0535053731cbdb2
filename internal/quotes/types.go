// Package quotes stores quote requests and runs their lifecycle: submission,
// admin review, PDF rendering and delivery to the customer.
package quotes

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"erp/ecommerce/quote-storefront/internal/pricing"
	"erp/ecommerce/quote-storefront/internal/shipping"
	"erp/ecommerce/quote-storefront/internal/store"
)

var (
	ErrNotFound         = errors.New("quote not found")
	ErrConflict         = errors.New("quote number already exists")
	ErrTokenExpired     = errors.New("approval link has expired")
	ErrAlreadyForwarded = errors.New("quote already sent to customer")
	ErrNotDeleted       = errors.New("quote is not deleted")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusReviewed  Status = "reviewed"
	StatusForwarded Status = "forwarded"
	StatusResponded Status = "responded"
	StatusClosed    Status = "closed"
)

var Statuses = []Status{StatusPending, StatusReviewed, StatusForwarded, StatusResponded, StatusClosed}

// ParseStatus normalizes s. The second result is false for unknown values.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Statuses {
		if st == v {
			return st, true
		}
	}
	return "", false
}

const (
	MaxItems         = 100
	MaxQuantity      = 10000
	LargeOrderItems  = 10
	maxTextLen       = 2000
	numberRetryLimit = 3
)

type Address struct {
	Street   string `json:"street"`
	Suburb   string `json:"suburb"`
	State    string `json:"state"`
	Postcode string `json:"postcode"`
}

func (a Address) trimmed() Address {
	return Address{
		Street:   strings.TrimSpace(a.Street),
		Suburb:   strings.TrimSpace(a.Suburb),
		State:    strings.ToUpper(strings.TrimSpace(a.State)),
		Postcode: strings.TrimSpace(a.Postcode),
	}
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) String() string {
	return fmt.Sprintf("%s, %s %s %s", a.Street, a.Suburb, a.State, a.Postcode)
}

// Item is one quote line as priced at submission.
type Item struct {
	ID           string           `json:"id"`
	ProductID    string           `json:"product_id,omitempty"`
	SKU          string           `json:"sku"`
	VariationSKU string           `json:"variation_sku,omitempty"`
	Name         string           `json:"name"`
	Brand        string           `json:"brand"`
	Size         string           `json:"size,omitempty"`
	SizeLabel    string           `json:"size_label,omitempty"`
	Quantity     int              `json:"quantity"`
	UnitPrice    *decimal.Decimal `json:"unit_price"`
	LineTotal    *decimal.Decimal `json:"line_total"`
	QuotedPrice  *decimal.Decimal `json:"quoted_price,omitempty"`
	QuotedNotes  string           `json:"quoted_notes,omitempty"`
	MaterialCert bool             `json:"material_test_cert"`
	LeadTime     string           `json:"lead_time,omitempty"`
	DisplayOrder int              `json:"display_order"`
}

// Price is the quoted price when staff set one, else the catalog price.
func (it Item) Price() *decimal.Decimal {
	if it.QuotedPrice != nil {
		return it.QuotedPrice
	}
	return it.UnitPrice
}

// DisplaySKU prefers the variation SKU.
func (it Item) DisplaySKU() string {
	if it.VariationSKU != "" {
		return it.VariationSKU
	}
	return it.SKU
}

type Quote struct {
	ID              string   `json:"id"`
	QuoteNumber     string   `json:"quote_number"`
	Status          Status   `json:"status"`
	CompanyName     string   `json:"company_name"`
	ContactName     string   `json:"contact_name"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone"`
	DeliveryAddress Address  `json:"delivery_address"`
	BillingAddress  *Address `json:"billing_address,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	Items           []Item   `json:"items,omitempty"`

	ItemCount   int             `json:"item_count"`
	PricedTotal decimal.Decimal `json:"priced_total"`
	Savings     decimal.Decimal `json:"savings"`
	DiscountPct int             `json:"discount_pct"`
	CertCount   int             `json:"cert_count"`
	CertFee     decimal.Decimal `json:"cert_fee"`
	HasUnpriced bool            `json:"has_unpriced_items"`
	LeadTime    string          `json:"lead_time,omitempty"`

	DeliveryZone   shipping.Tier    `json:"delivery_zone"`
	DeliveryRegion string           `json:"delivery_region,omitempty"`
	MineSite       bool             `json:"mine_site"`
	ShippingCost   *decimal.Decimal `json:"shipping_cost,omitempty"`
	ShippingNotes  string           `json:"shipping_notes,omitempty"`
	InternalNotes  string           `json:"internal_notes,omitempty"`

	ApprovalToken          string     `json:"-"`
	ApprovalTokenExpiresAt *time.Time `json:"approval_token_expires_at,omitempty"`
	ApprovalTokenUsedAt    *time.Time `json:"approval_token_used_at,omitempty"`

	PDFPath        string     `json:"pdf_path,omitempty"`
	PDFVersion     int        `json:"pdf_version"`
	PDFGeneratedAt *time.Time `json:"pdf_generated_at,omitempty"`

	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	ForwardedAt *time.Time `json:"forwarded_at,omitempty"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`

	IsDeleted bool       `json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty"`

	ClientIP  string    `json:"client_ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Billing falls back to the delivery address.
func (q Quote) Billing() Address {
	if q.BillingAddress != nil && !q.BillingAddress.IsZero() {
		return *q.BillingAddress
	}
	return q.DeliveryAddress
}

// Lines is the pricing view of the items with quoted prices applied.
func (q Quote) Lines() []pricing.Line {
	out := make([]pricing.Line, len(q.Items))
	for i, it := range q.Items {
		out[i] = pricing.Line{UnitPrice: it.Price(), Quantity: it.Quantity, MaterialCert: it.MaterialCert}
	}
	return out
}

// applyTotals copies the subtotal figures of t onto q.
func (q *Quote) applyTotals(t pricing.Totals) {
	q.ItemCount = t.ItemCount
	q.PricedTotal = t.PricedTotal
	q.Savings = t.Savings
	q.DiscountPct = t.DiscountPct
	q.CertCount = t.CertCount
	q.CertFee = t.CertFee
	q.HasUnpriced = t.HasUnpriced
}

// storedTotals rebuilds the subtotal part of pricing.Totals from q.
func (q Quote) storedTotals() pricing.Totals {
	return pricing.Totals{
		ItemCount:   q.ItemCount,
		PricedTotal: q.PricedTotal,
		DiscountPct: q.DiscountPct,
		Savings:     q.Savings,
		CertCount:   q.CertCount,
		CertFee:     q.CertFee,
		HasUnpriced: q.HasUnpriced,
	}
}

func (q Quote) clone() Quote {
	c := q
	c.Items = append([]Item(nil), q.Items...)
	if q.BillingAddress != nil {
		b := *q.BillingAddress
		c.BillingAddress = &b
	}
	return c
}

// SubmitItem is a cart line as posted by the storefront.
type SubmitItem struct {
	Product      string `json:"product"` // id or slug
	Size         string `json:"size"`
	Quantity     int    `json:"quantity"`
	MaterialCert bool   `json:"material_test_cert"`
}

type SubmitRequest struct {
	CompanyName     string       `json:"company_name"`
	ContactName     string       `json:"contact_name"`
	Email           string       `json:"email"`
	Phone           string       `json:"phone"`
	DeliveryAddress Address      `json:"delivery_address"`
	BillingAddress  *Address     `json:"billing_address"`
	Notes           string       `json:"notes"`
	Items           []SubmitItem `json:"items"`
	ClientIP        string       `json:"-"`
}

func (r *SubmitRequest) normalize() error {
	r.CompanyName = strings.TrimSpace(r.CompanyName)
	r.ContactName = strings.TrimSpace(r.ContactName)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	r.Notes = strings.TrimSpace(r.Notes)
	r.DeliveryAddress = r.DeliveryAddress.trimmed()
	if r.BillingAddress != nil {
		b := r.BillingAddress.trimmed()
		if b.IsZero() {
			r.BillingAddress = nil
		} else {
			r.BillingAddress = &b
		}
	}

	switch {
	case r.CompanyName == "":
		return store.Invalid("company_name is required")
	case r.ContactName == "":
		return store.Invalid("contact_name is required")
	case r.Email == "":
		return store.Invalid("email is required")
	case r.Phone == "":
		return store.Invalid("phone is required")
	case len(r.Notes) > maxTextLen:
		return store.Invalid("notes must be at most %d characters", maxTextLen)
	}
	addr, err := mail.ParseAddress(r.Email)
	if err != nil {
		return store.Invalid("email is invalid")
	}
	r.Email = addr.Address
	a := r.DeliveryAddress
	if a.Street == "" || a.Suburb == "" || a.State == "" || a.Postcode == "" {
		return store.Invalid("delivery_address requires street, suburb, state and postcode")
	}
	if len(r.Items) == 0 {
		return store.Invalid("at least one item is required")
	}
	if len(r.Items) > MaxItems {
		return store.Invalid("at most %d items per quote", MaxItems)
	}
	for i, it := range r.Items {
		if it.Quantity < 1 || it.Quantity > MaxQuantity {
			return store.Invalid("items[%d]: quantity must be between 1 and %d", i, MaxQuantity)
		}
	}
	return nil
}

// ItemPatch sets or clears the staff quoted price of one line.
type ItemPatch struct {
	ID               string           `json:"id"`
	QuotedPrice      *decimal.Decimal `json:"quoted_price"`
	ClearQuotedPrice bool             `json:"clear_quoted_price"`
	QuotedNotes      *string          `json:"quoted_notes"`
}

// Patch is an admin update. Nil fields are left unchanged.
type Patch struct {
	Status        *string          `json:"status"`
	InternalNotes *string          `json:"internal_notes"`
	ShippingCost  *decimal.Decimal `json:"shipping_cost"`
	ClearShipping bool             `json:"clear_shipping_cost"`
	ShippingNotes *string          `json:"shipping_notes"`
	Items         []ItemPatch      `json:"items"`
}

func (p Patch) empty() bool {
	return p.Status == nil && p.InternalNotes == nil && p.ShippingCost == nil &&
		!p.ClearShipping && p.ShippingNotes == nil && len(p.Items) == 0
}

type ListFilter struct {
	Status         Status
	IncludeDeleted bool
	Query          string
}

type List struct {
	Items      []Quote `json:"items"`
	NextCursor string  `json:"next_cursor,omitempty"`
	Cached     bool    `json:"cached"`
}

// Forwarded records a successful send.
type Forwarded struct {
	ShippingCost  *decimal.Decimal
	ShippingNotes string
	PDFPath       string
	PDFVersion    int
	At            time.Time
}
