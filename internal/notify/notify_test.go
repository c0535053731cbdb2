package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingMailer captures messages and fails for listed recipients.
type recordingMailer struct {
	mu     sync.Mutex
	sent   []Message
	failTo map[string]bool
}

func (r *recordingMailer) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, to := range msg.To {
		if r.failTo[to] {
			return errors.New("mailbox unavailable")
		}
	}
	r.sent = append(r.sent, msg)
	return nil
}

func sampleView() QuoteView {
	return QuoteView{
		QuoteNumber:     "Q-20260301-ABCD",
		QuoteDate:       "1 Mar 2026",
		ValidUntil:      "30 Apr 2026",
		CompanyName:     "Pilbara <Mining> Co",
		ContactName:     "Sam",
		Email:           "sam@example.com",
		Phone:           "0400 000 000",
		DeliveryAddress: Address{Street: "1 Haul Rd", Suburb: "Karratha", State: "WA", Postcode: "6714"},
		DeliveryNote:    "Regional delivery to Karratha",
		Items: []EmailItem{
			{SKU: "SF-1L-48", Name: "Flex 1L", Brand: "Straub", SizeLabel: "48.3mm", Quantity: 2, UnitPrice: "$120.50", LineTotal: "$241.00", MaterialCert: true},
			{SKU: "GV-1", Name: "Gate Valve", Brand: "Orbit", Quantity: 1, UnitPrice: "POA", LineTotal: "POA"},
		},
		Subtotal:    "$241.00",
		DiscountPct: 5,
		Savings:     "$12.05",
		HasSavings:  true,
		CertCount:   1,
		CertFee:     "$350.00",
		GST:         "$57.90",
		Total:       "$636.85",
		HasUnpriced: true,
		Flags:       []string{"Major regional delivery", "Long lead time"},
		ApproveURL:  "https://shop.example.com/api/approve-quote/tok",
	}
}

func TestRenderTemplates(t *testing.T) {
	v := sampleView()

	biz, err := Render(TemplateBusiness, v)
	require.NoError(t, err)
	assert.Equal(t, "New quote request Q-20260301-ABCD from Pilbara <Mining> Co", biz.Subject)
	assert.Contains(t, biz.HTML, "Pilbara &lt;Mining&gt; Co")
	assert.NotContains(t, biz.HTML, "<Mining>")
	assert.Contains(t, biz.HTML, "https://shop.example.com/api/approve-quote/tok")
	assert.Contains(t, biz.HTML, "Long lead time")
	assert.Contains(t, biz.Text, "Approve and send: https://shop.example.com/api/approve-quote/tok")
	assert.Contains(t, biz.Text, "Delivery: 1 Haul Rd, Karratha WA 6714")

	cust, err := Render(TemplateCustomer, v)
	require.NoError(t, err)
	assert.Equal(t, "We received your quote request Q-20260301-ABCD", cust.Subject)
	assert.NotContains(t, cust.HTML, "approve-quote")
	assert.Contains(t, cust.Text, "price on application")

	q, err := Render(TemplateQuote, v)
	require.NoError(t, err)
	assert.Contains(t, q.HTML, "Valid until: 30 Apr 2026")
	assert.Contains(t, q.HTML, "Bulk Discount (5%)")
	assert.Contains(t, q.HTML, "+ Material Cert")
	assert.True(t, strings.HasPrefix(q.Text, "Quotation Q-20260301-ABCD"))

	_, err = Render("nope", v)
	assert.Error(t, err)
}

func TestRenderContactAndReset(t *testing.T) {
	v := ContactView{
		Name:         "Sam <Lee>",
		Email:        "sam@example.com",
		Company:      "Acme Water",
		Message:      "Need 40 couplings\nby Friday",
		BusinessName: "Industrial Parts Supply",
	}
	biz, err := RenderContact(TemplateContactBusiness, v)
	require.NoError(t, err)
	assert.Equal(t, "Contact form: Sam <Lee> from Acme Water", biz.Subject)
	assert.Contains(t, biz.HTML, "Sam &lt;Lee&gt;")
	assert.Contains(t, biz.Text, "Company: Acme Water")
	assert.NotContains(t, biz.Text, "Phone:")
	assert.Contains(t, biz.Text, "Need 40 couplings\nby Friday")

	cust, err := RenderContact(TemplateContactCustomer, v)
	require.NoError(t, err)
	assert.Equal(t, "Thank you for contacting Industrial Parts Supply", cust.Subject)
	assert.Contains(t, cust.Text, "Hi Sam <Lee>,")

	_, err = RenderContact(TemplateQuote, v)
	assert.Error(t, err)

	reset, err := RenderPasswordReset(ResetView{
		Name: "Jo", ResetURL: "https://shop.example.com/admin/reset-password?token=abc",
		ExpiresIn: "1 hour", BusinessName: "Industrial Parts Supply",
	})
	require.NoError(t, err)
	assert.Equal(t, "Password reset - Industrial Parts Supply admin", reset.Subject)
	assert.Contains(t, reset.Text, "https://shop.example.com/admin/reset-password?token=abc")
	assert.Contains(t, reset.HTML, "1 hour")
}

func TestDeliverAudits(t *testing.T) {
	ctx := context.Background()
	mailer := &recordingMailer{failTo: map[string]bool{"bad@example.com": true}}
	audit := NewAuditLog(nil, zaptest.NewLogger(t))
	n := NewNotifier(mailer, audit, zaptest.NewLogger(t))

	require.NoError(t, n.Deliver(ctx, "quote.submit.customer", "Q-1", Message{To: []string{"ok@example.com"}, Subject: "hi"}))
	err := n.Deliver(ctx, "quote.submit.business", "Q-1", Message{To: []string{"bad@example.com"}, Subject: "new"})
	require.Error(t, err)
	require.NoError(t, n.Deliver(ctx, "quote.send", "Q-2", Message{To: []string{"ok@example.com"}, Subject: "quote"}))

	entries, err := audit.List(ctx, "Q-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	statuses := map[string]string{}
	for _, e := range entries {
		statuses[e.Route] = e.Status
		assert.NotEmpty(t, e.ID)
	}
	assert.Equal(t, StatusSent, statuses["quote.submit.customer"])
	assert.Equal(t, StatusFailed, statuses["quote.submit.business"])

	all, err := audit.List(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestNopMailer(t *testing.T) {
	n := NewNotifier(nil, NewAuditLog(nil, nil), nil)
	err := n.Deliver(context.Background(), "quote.send", "Q-9", Message{To: []string{"x@example.com"}})
	assert.ErrorIs(t, err, ErrNotConfigured)

	entries, err := n.Audit().List(context.Background(), "Q-9", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "smtp not configured", entries[0].ErrorMessage)
}

func TestSMTPMailerBuild(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 2525, FromEmail: "quotes@example.com", FromName: "Quotes"})
	msg := m.build(Message{
		To:          []string{"a@example.com", "b@example.com"},
		ReplyTo:     "sales@example.com",
		Subject:     "Your quote",
		HTML:        "<p>hi</p>",
		Text:        "hi",
		Attachments: []Attachment{{Filename: "quote.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}},
	})
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"Your quote"}, msg.GetHeader("Subject"))
	assert.Equal(t, []string{"sales@example.com"}, msg.GetHeader("Reply-To"))

	var buf strings.Builder
	_, err := msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `filename="quote.pdf"`)

	assert.ErrorIs(t, m.Send(canceledCtx(), Message{To: []string{"a@example.com"}}), context.Canceled)
}

func canceledCtx() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
