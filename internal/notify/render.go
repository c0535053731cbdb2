package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl"))
)

// Address is a formatted postal address.
type Address struct {
	Street   string
	Suburb   string
	State    string
	Postcode string
}

func (a Address) String() string {
	return fmt.Sprintf("%s, %s %s %s", a.Street, a.Suburb, a.State, a.Postcode)
}

// EmailItem is a quote line with display-ready money values.
type EmailItem struct {
	SKU          string
	Name         string
	Brand        string
	SizeLabel    string
	Quantity     int
	UnitPrice    string
	LineTotal    string
	Notes        string
	LeadTime     string
	MaterialCert bool
}

// QuoteView is the data every quote template renders.
type QuoteView struct {
	QuoteNumber     string
	QuoteDate       string
	ValidUntil      string
	CompanyName     string
	ContactName     string
	Email           string
	Phone           string
	DeliveryAddress Address
	BillingAddress  *Address
	Items           []EmailItem
	ItemCount       int
	Subtotal        string
	DiscountPct     int
	Savings         string
	CertCount       int
	CertFee         string
	Shipping        string
	ShippingNotes   string
	DeliveryNote    string
	GST             string
	Total           string
	HasUnpriced     bool
	HasSavings      bool
	HasShipping     bool
	LeadTime        string
	Flags           []string
	Notes           string
	PreparedBy      string
	ApproveURL      string
	AdminURL        string
	WebsiteURL      string
}

// Rendered is a subject plus both bodies.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Template names.
const (
	TemplateBusiness = "business"
	TemplateCustomer = "customer"
	TemplateQuote    = "quote"

	TemplateContactBusiness = "contact_business"
	TemplateContactCustomer = "contact_customer"
	TemplatePasswordReset   = "password_reset"
)

var subjects = map[string]string{
	TemplateBusiness: "New quote request %s from %s",
	TemplateCustomer: "We received your quote request %s",
	TemplateQuote:    "Your quote %s",
}

// Render executes the named quote template pair.
func Render(name string, v QuoteView) (Rendered, error) {
	subject, ok := subjects[name]
	if !ok {
		return Rendered{}, fmt.Errorf("unknown email template %q", name)
	}
	r, err := execute(name, v)
	if err != nil {
		return Rendered{}, err
	}
	if name == TemplateBusiness {
		r.Subject = fmt.Sprintf(subject, v.QuoteNumber, v.CompanyName)
	} else {
		r.Subject = fmt.Sprintf(subject, v.QuoteNumber)
	}
	return r, nil
}

// ContactView is a storefront contact form submission.
type ContactView struct {
	Name         string
	Email        string
	Phone        string
	Company      string
	Message      string
	BusinessName string
	WebsiteURL   string
}

// ResetView is the data of a password reset email.
type ResetView struct {
	Name         string
	ResetURL     string
	ExpiresIn    string
	BusinessName string
}

// RenderContact renders the business notice (TemplateContactBusiness) or the
// sender's confirmation (TemplateContactCustomer).
func RenderContact(name string, v ContactView) (Rendered, error) {
	r, err := execute(name, v)
	if err != nil {
		return Rendered{}, err
	}
	switch name {
	case TemplateContactBusiness:
		r.Subject = "Contact form: " + v.Name
		if v.Company != "" {
			r.Subject += " from " + v.Company
		}
	case TemplateContactCustomer:
		r.Subject = "Thank you for contacting " + v.BusinessName
	default:
		return Rendered{}, fmt.Errorf("unknown contact template %q", name)
	}
	return r, nil
}

func RenderPasswordReset(v ResetView) (Rendered, error) {
	r, err := execute(TemplatePasswordReset, v)
	if err != nil {
		return Rendered{}, err
	}
	r.Subject = "Password reset - " + v.BusinessName + " admin"
	return r, nil
}

func execute(name string, data any) (Rendered, error) {
	var html, text bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, name+".html.tmpl", data); err != nil {
		return Rendered{}, fmt.Errorf("render %s html: %w", name, err)
	}
	if err := textTemplates.ExecuteTemplate(&text, name+".txt.tmpl", data); err != nil {
		return Rendered{}, fmt.Errorf("render %s text: %w", name, err)
	}
	return Rendered{HTML: html.String(), Text: text.String()}, nil
}
