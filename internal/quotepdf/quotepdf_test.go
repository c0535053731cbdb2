package quotepdf

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDoc() Document {
	return Document{
		Business:        "Industrial Pipe Supplies",
		BusinessDetails: []string{"ABN 00 000 000 000", "sales@example.com"},
		QuoteNumber:     "Q-20260301-ABCD",
		QuoteDate:       "1 March 2026",
		ValidUntil:      "30 April 2026",
		CompanyName:     "Pilbara Mining Co",
		ContactName:     "Sam Ng",
		Email:           "sam@example.com",
		DeliveryAddress: Address{Street: "1 Haul Rd", Suburb: "Karratha", State: "WA", Postcode: "6714"},
		BillingAddress:  Address{Street: "PO Box 9", Suburb: "Perth", State: "WA", Postcode: "6000"},
		Lines: []Line{
			{SKU: "SF-1L-48", Name: "Flex 1L coupling", Brand: "Straub", SizeLabel: "48.3mm Ø", LeadTime: "2-3 weeks", MaterialCert: true, Quantity: 2, UnitPrice: "$120.50", LineTotal: "$241.00"},
			{SKU: "GV-1", Name: "Gate valve", Quantity: 1, UnitPrice: "POA", LineTotal: "POA"},
		},
		Subtotal:     "$241.00",
		DiscountPct:  5,
		Savings:      "$12.05",
		CertCount:    1,
		CertFee:      "$350.00",
		Shipping:     "$100.00",
		Net:          "$678.95",
		GST:          "$67.90",
		Total:        "$746.85",
		HasUnpriced:  true,
		DeliveryNote: "Regional delivery to Karratha",
		PreparedBy:   "Sales Team",
	}
}

func TestRender(t *testing.T) {
	out, err := Render(sampleDoc())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")), "missing PDF header")
	assert.True(t, bytes.Contains(out, []byte("%%EOF")))
}

func TestRenderDraftAndManyLines(t *testing.T) {
	doc := sampleDoc()
	doc.Draft = true
	for i := 0; i < 60; i++ {
		doc.Lines = append(doc.Lines, Line{SKU: fmt.Sprintf("SKU-%d", i), Name: "Repair clamp", Quantity: 1, UnitPrice: "$10.00", LineTotal: "$10.00"})
	}
	out, err := Render(doc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	// the table spills onto more pages
	assert.Greater(t, bytes.Count(out, []byte("/Type /Page\n")), 1)
}

func TestNonEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "c"}, nonEmpty("a", " ", "c", ""))
}
