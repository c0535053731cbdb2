package quotes

import (
	"strings"

	"github.com/shopspring/decimal"

	"erp/ecommerce/quote-storefront/internal/notify"
	"erp/ecommerce/quote-storefront/internal/pricing"
	"erp/ecommerce/quote-storefront/internal/quotepdf"
	"erp/ecommerce/quote-storefront/internal/shipping"
)

const dateLayout = "2 January 2006"

// priced is a quote with its shipping decision and final totals.
type priced struct {
	Quote         Quote
	Totals        pricing.Totals
	Shipping      *decimal.Decimal // nil when freight is still to be quoted
	ShippingNotes string
	Delivery      shipping.Delivery
}

// shippingFor picks the explicit override, then the charge stored by staff,
// then the flat zone cost.
func shippingFor(q Quote, override *decimal.Decimal) *decimal.Decimal {
	switch {
	case override != nil:
		v := override.Round(2)
		return &v
	case q.ShippingCost != nil:
		return q.ShippingCost
	}
	if q.MineSite {
		return nil
	}
	if cost, ok := (shipping.Zone{Tier: q.DeliveryZone}).Cost(); ok {
		return &cost
	}
	return nil
}

func (s *Service) price(q Quote, override *decimal.Decimal, notes string) priced {
	ship := shippingFor(q, override)
	charge := decimal.Zero
	if ship != nil {
		charge = *ship
	}
	if notes == "" {
		notes = q.ShippingNotes
	}
	return priced{
		Quote:         q,
		Totals:        s.cfg.Calculator.Finish(q.storedTotals(), charge),
		Shipping:      ship,
		ShippingNotes: notes,
		Delivery:      shipping.ClassifyDelivery(q.DeliveryAddress.Postcode, q.DeliveryAddress.Street+" "+q.DeliveryAddress.Suburb),
	}
}

func sizeLabel(it Item) string {
	if it.SizeLabel != "" {
		return it.SizeLabel
	}
	return it.Size
}

func (s *Service) emailView(p priced, preparedBy string) notify.QuoteView {
	q, t := p.Quote, p.Totals
	created := q.CreatedAt.In(s.cfg.Location)
	base := strings.TrimRight(s.cfg.PublicURL, "/")

	v := notify.QuoteView{
		QuoteNumber: q.QuoteNumber,
		QuoteDate:   created.Format(dateLayout),
		ValidUntil:  pricing.QuoteExpiry(created).Format(dateLayout),
		CompanyName: q.CompanyName,
		ContactName: q.ContactName,
		Email:       q.Email,
		Phone:       q.Phone,
		DeliveryAddress: notify.Address{
			Street: q.DeliveryAddress.Street, Suburb: q.DeliveryAddress.Suburb,
			State: q.DeliveryAddress.State, Postcode: q.DeliveryAddress.Postcode,
		},
		ItemCount:     t.ItemCount,
		Subtotal:      pricing.Amount(t.PricedTotal),
		DiscountPct:   t.DiscountPct,
		Savings:       pricing.Amount(t.Savings),
		CertCount:     t.CertCount,
		CertFee:       pricing.Amount(t.CertFee),
		ShippingNotes: p.ShippingNotes,
		DeliveryNote:  p.Delivery.DeliveryNote,
		GST:           pricing.Amount(t.GST),
		Total:         pricing.Amount(t.Total),
		HasUnpriced:   t.HasUnpriced,
		HasSavings:    t.Savings.IsPositive(),
		LeadTime:      q.LeadTime,
		Flags:         Flags(q),
		Notes:         q.Notes,
		PreparedBy:    preparedBy,
		AdminURL:      base + "/admin/quotes/" + q.ID,
		WebsiteURL:    base,
	}
	if q.BillingAddress != nil && !q.BillingAddress.IsZero() {
		b := q.BillingAddress
		v.BillingAddress = &notify.Address{Street: b.Street, Suburb: b.Suburb, State: b.State, Postcode: b.Postcode}
	}
	if p.Shipping != nil {
		v.Shipping = pricing.Money(p.Shipping)
		v.HasShipping = true
	}
	if q.ApprovalToken != "" {
		v.ApproveURL = base + "/approve-quote/" + q.ApprovalToken
	}
	for _, it := range q.Items {
		v.Items = append(v.Items, notify.EmailItem{
			SKU:          it.DisplaySKU(),
			Name:         it.Name,
			Brand:        it.Brand,
			SizeLabel:    sizeLabel(it),
			Quantity:     it.Quantity,
			UnitPrice:    pricing.Money(it.Price()),
			LineTotal:    pricing.Money(pricing.LineTotal(it.Price(), it.Quantity)),
			Notes:        it.QuotedNotes,
			LeadTime:     it.LeadTime,
			MaterialCert: it.MaterialCert,
		})
	}
	return v
}

func (s *Service) pdfDocument(p priced, draft bool, preparedBy string) quotepdf.Document {
	q, t := p.Quote, p.Totals
	created := q.CreatedAt.In(s.cfg.Location)
	b := q.Billing()
	doc := quotepdf.Document{
		Business:        s.cfg.BusinessName,
		BusinessDetails: s.cfg.BusinessDetails,
		QuoteNumber:     q.QuoteNumber,
		QuoteDate:       created.Format(dateLayout),
		ValidUntil:      pricing.QuoteExpiry(created).Format(dateLayout),
		CompanyName:     q.CompanyName,
		ContactName:     q.ContactName,
		Email:           q.Email,
		Phone:           q.Phone,
		DeliveryAddress: quotepdf.Address{
			Street: q.DeliveryAddress.Street, Suburb: q.DeliveryAddress.Suburb,
			State: q.DeliveryAddress.State, Postcode: q.DeliveryAddress.Postcode,
		},
		BillingAddress: quotepdf.Address{Street: b.Street, Suburb: b.Suburb, State: b.State, Postcode: b.Postcode},
		Subtotal:       pricing.Amount(t.PricedTotal),
		DiscountPct:    t.DiscountPct,
		CertCount:      t.CertCount,
		CertFee:        pricing.Amount(t.CertFee),
		ShippingNotes:  p.ShippingNotes,
		Net:            pricing.Amount(t.Net),
		GST:            pricing.Amount(t.GST),
		Total:          pricing.Amount(t.Total),
		HasUnpriced:    t.HasUnpriced,
		DeliveryNote:   p.Delivery.DeliveryNote,
		Notes:          q.Notes,
		PreparedBy:     preparedBy,
		Draft:          draft,
	}
	if t.Savings.IsPositive() {
		doc.Savings = pricing.Amount(t.Savings)
	}
	if p.Shipping != nil {
		doc.Shipping = pricing.Money(p.Shipping)
	}
	for _, it := range q.Items {
		doc.Lines = append(doc.Lines, quotepdf.Line{
			SKU:          it.DisplaySKU(),
			Name:         it.Name,
			Brand:        it.Brand,
			SizeLabel:    sizeLabel(it),
			LeadTime:     it.LeadTime,
			Notes:        it.QuotedNotes,
			MaterialCert: it.MaterialCert,
			Quantity:     it.Quantity,
			UnitPrice:    pricing.Money(it.Price()),
			LineTotal:    pricing.Money(pricing.LineTotal(it.Price(), it.Quantity)),
		})
	}
	return doc
}
