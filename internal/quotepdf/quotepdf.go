// Package quotepdf renders the customer-facing A4 quotation.
package quotepdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

type Address struct {
	Street   string
	Suburb   string
	State    string
	Postcode string
}

func (a Address) lines() string {
	return fmt.Sprintf("%s\n%s %s %s", a.Street, a.Suburb, a.State, a.Postcode)
}

// Line is one item row. Money fields are pre-formatted ("POA" when unpriced).
type Line struct {
	SKU          string
	Name         string
	Brand        string
	SizeLabel    string
	LeadTime     string
	Notes        string
	MaterialCert bool
	Quantity     int
	UnitPrice    string
	LineTotal    string
}

// Document is everything printed on a quote.
type Document struct {
	Business        string
	BusinessDetails []string
	QuoteNumber     string
	QuoteDate       string
	ValidUntil      string
	CompanyName     string
	ContactName     string
	Email           string
	Phone           string
	DeliveryAddress Address
	BillingAddress  Address
	Lines           []Line
	Subtotal        string
	DiscountPct     int
	Savings         string // empty hides the row
	CertCount       int
	CertFee         string
	Shipping        string // empty hides the row
	ShippingNotes   string
	Net             string
	GST             string
	Total           string
	HasUnpriced     bool
	DeliveryNote    string
	Notes           string
	PreparedBy      string
	Draft           bool
}

const (
	pageW   = 210.0
	margin  = 15.0
	content = pageW - 2*margin
)

var colW = []float64{30, 86, 14, 25, 25}

// Render writes doc as a PDF.
func Render(doc Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetTitle("Quotation "+doc.QuoteNumber, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 10, tr(fmt.Sprintf("%s  |  Page %d", doc.QuoteNumber, pdf.PageNo())), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	if doc.Draft {
		pdf.SetFont("Helvetica", "B", 60)
		pdf.SetTextColor(235, 235, 235)
		pdf.TransformBegin()
		pdf.TransformRotate(35, pageW/2, 150)
		pdf.Text(45, 170, "DRAFT")
		pdf.TransformEnd()
	}

	header(pdf, tr, doc)
	parties(pdf, tr, doc)
	items(pdf, tr, doc)
	totals(pdf, tr, doc)
	footer(pdf, tr, doc)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render quote pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func header(pdf *fpdf.Fpdf, tr func(string) string, doc Document) {
	pdf.SetTextColor(14, 165, 233)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(content/2, 9, tr(doc.Business), "", 0, "L", false, 0, "")
	pdf.SetTextColor(26, 26, 26)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(content/2, 9, "QUOTATION", "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(100, 100, 100)
	meta := []string{"Quote: " + doc.QuoteNumber, "Date: " + doc.QuoteDate, "Valid until: " + doc.ValidUntil}
	for i := 0; i < len(meta) || i < len(doc.BusinessDetails); i++ {
		left, right := "", ""
		if i < len(doc.BusinessDetails) {
			left = doc.BusinessDetails[i]
		}
		if i < len(meta) {
			right = meta[i]
		}
		pdf.CellFormat(content/2, 5, tr(left), "", 0, "L", false, 0, "")
		pdf.CellFormat(content/2, 5, tr(right), "", 1, "R", false, 0, "")
	}
	pdf.Ln(3)
	pdf.SetDrawColor(14, 165, 233)
	pdf.SetLineWidth(0.6)
	pdf.Line(margin, pdf.GetY(), pageW-margin, pdf.GetY())
	pdf.Ln(5)
}

func parties(pdf *fpdf.Fpdf, tr func(string) string, doc Document) {
	third := content / 3
	y := pdf.GetY()

	block := func(x float64, title, body string) {
		pdf.SetXY(x, y)
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetTextColor(26, 26, 26)
		pdf.CellFormat(third-4, 5, title, "", 2, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(75, 85, 99)
		pdf.MultiCell(third-4, 4.5, tr(body), "", "L", false)
	}

	customer := strings.Join(nonEmpty(doc.CompanyName, doc.ContactName, doc.Email, doc.Phone), "\n")
	block(margin, "Customer", customer)
	bottom := pdf.GetY()
	block(margin+third, "Delivery Address", doc.DeliveryAddress.lines())
	bottom = max(bottom, pdf.GetY())
	block(margin+2*third, "Billing Address", doc.BillingAddress.lines())
	bottom = max(bottom, pdf.GetY())

	pdf.SetXY(margin, bottom+6)
}

func items(pdf *fpdf.Fpdf, tr func(string) string, doc Document) {
	headers := []string{"SKU", "Product", "Qty", "Unit Price", "Total"}
	aligns := []string{"L", "L", "C", "R", "R"}

	drawHeader := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(14, 165, 233)
		pdf.SetTextColor(255, 255, 255)
		for i, h := range headers {
			pdf.CellFormat(colW[i], 7, h, "", 0, aligns[i], true, 0, "")
		}
		pdf.Ln(-1)
	}
	drawHeader()

	for _, l := range doc.Lines {
		desc := []string{l.Name}
		if l.Brand != "" {
			desc[0] = l.Name + " (" + l.Brand + ")"
		}
		if l.SizeLabel != "" {
			desc = append(desc, "Size: "+l.SizeLabel)
		}
		if l.LeadTime != "" {
			desc = append(desc, "Lead time: "+l.LeadTime)
		}
		if l.MaterialCert {
			desc = append(desc, "+ Material Test Cert")
		}
		if l.Notes != "" {
			desc = append(desc, "Note: "+l.Notes)
		}
		text := tr(strings.Join(desc, "\n"))
		rows := len(pdf.SplitLines([]byte(text), colW[1]-2))
		h := float64(rows)*4.5 + 2

		if pdf.GetY()+h > 297-25 {
			pdf.AddPage()
			drawHeader()
		}
		x, y := pdf.GetXY()
		pdf.SetTextColor(26, 26, 26)
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(colW[0], h, tr(l.SKU), "B", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(colW[1], 4.5, text, "", "L", false)
		pdf.SetXY(x+colW[0], y)
		pdf.CellFormat(colW[1], h, "", "B", 0, "", false, 0, "")
		pdf.CellFormat(colW[2], h, fmt.Sprint(l.Quantity), "B", 0, "C", false, 0, "")
		pdf.CellFormat(colW[3], h, l.UnitPrice, "B", 0, "R", false, 0, "")
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(colW[4], h, l.LineTotal, "B", 1, "R", false, 0, "")
	}
	pdf.Ln(4)
}

func totals(pdf *fpdf.Fpdf, tr func(string) string, doc Document) {
	labelW, valueW := 50.0, 30.0
	x := pageW - margin - labelW - valueW

	row := func(label, value string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetX(x)
		pdf.SetFont("Helvetica", style, 9)
		pdf.CellFormat(labelW, 6, tr(label), "", 0, "L", false, 0, "")
		pdf.CellFormat(valueW, 6, tr(value), "", 1, "R", false, 0, "")
	}

	pdf.SetTextColor(26, 26, 26)
	row("Subtotal", doc.Subtotal, false)
	if doc.Savings != "" {
		row(fmt.Sprintf("Bulk discount (%d%%)", doc.DiscountPct), "-"+doc.Savings, false)
	}
	if doc.CertCount > 0 {
		row(fmt.Sprintf("Material certs (%d)", doc.CertCount), doc.CertFee, false)
	}
	if doc.Shipping != "" {
		label := "Delivery"
		if doc.ShippingNotes != "" {
			label += " (" + doc.ShippingNotes + ")"
		}
		row(label, doc.Shipping, false)
	}
	row("Net", doc.Net, false)
	row("GST (10%)", doc.GST, false)
	pdf.SetX(x)
	pdf.SetFillColor(14, 165, 233)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(labelW, 8, "Total (inc GST)", "", 0, "L", true, 0, "")
	pdf.CellFormat(valueW, 8, doc.Total, "", 1, "R", true, 0, "")
	pdf.SetTextColor(26, 26, 26)
	pdf.Ln(4)
}

func footer(pdf *fpdf.Fpdf, tr func(string) string, doc Document) {
	note := func(title, body string) {
		if body == "" {
			return
		}
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(0, 5, title, "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 4.5, tr(body), "", "L", false)
		pdf.Ln(2)
	}
	if doc.HasUnpriced {
		pdf.SetTextColor(146, 64, 14)
		note("Price on application", "Items marked POA are not included in the total and will be confirmed separately.")
		pdf.SetTextColor(26, 26, 26)
	}
	note("Delivery", doc.DeliveryNote)
	note("Notes", doc.Notes)
	note("Prepared by", doc.PreparedBy)
}

func nonEmpty(vals ...string) []string {
	out := vals[:0:0]
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
