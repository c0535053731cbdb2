package shipping

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var remoteKeywords = map[string]struct{}{
	"mine":     {},
	"mining":   {},
	"quarry":   {},
	"pit":      {},
	"camp":     {},
	"site":     {},
	"station":  {},
	"pastoral": {},
	"remote":   {},
}

// Delivery is the customer-facing delivery classification of an address.
type Delivery struct {
	Zone          Zone             `json:"zone"`
	MineSite      bool             `json:"mine_site"`
	FreeDelivery  bool             `json:"free_delivery"`
	ShippingCost  *decimal.Decimal `json:"shipping_cost,omitempty"`
	QuoteRequired bool             `json:"quote_required"`
	DeliveryNote  string           `json:"delivery_note"`
}

// ClassifyDelivery classifies a postcode and, when an address is given,
// forces remote delivery for mine sites and other remote keywords.
func ClassifyDelivery(postcode, address string) Delivery {
	z := CheckZone(postcode)
	d := Delivery{Zone: z}
	if IsMineOrRemote(address) {
		d.Zone.Tier = TierRemote
		d.Zone.Region = ""
		d.Zone.State = ""
		d.MineSite = true
	}

	cost, ok := d.Zone.Cost()
	if ok {
		d.ShippingCost = &cost
	}
	d.QuoteRequired = !ok
	d.FreeDelivery = ok && cost.IsZero()

	switch {
	case d.MineSite:
		d.DeliveryNote = "Remote/mine site - delivery quoted separately"
	case d.Zone.Tier == TierMetro:
		d.DeliveryNote = "Free metro delivery"
	case d.Zone.Tier == TierMajorRegional:
		d.DeliveryNote = "Regional delivery to " + d.Zone.Region
	default:
		d.DeliveryNote = "Delivery to be confirmed - freight quoted separately"
	}
	return d
}

// IsMineOrRemote reports whether any word of address is a remote-site keyword.
func IsMineOrRemote(address string) bool {
	words := strings.FieldsFunc(strings.ToLower(address), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if _, ok := remoteKeywords[w]; ok {
			return true
		}
	}
	return false
}
