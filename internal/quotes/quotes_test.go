package quotes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"erp/ecommerce/quote-storefront/internal/catalog"
	"erp/ecommerce/quote-storefront/internal/notify"
	"erp/ecommerce/quote-storefront/internal/pdfstore"
	"erp/ecommerce/quote-storefront/internal/shipping"
	"erp/ecommerce/quote-storefront/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingDeliverer struct {
	mu   sync.Mutex
	sent map[string][]notify.Message
	fail map[string]error
}

func newRecorder() *recordingDeliverer {
	return &recordingDeliverer{sent: map[string][]notify.Message{}, fail: map[string]error{}}
}

func (r *recordingDeliverer) Deliver(_ context.Context, route, _ string, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[route]; err != nil {
		return err
	}
	r.sent[route] = append(r.sent[route], msg)
	return nil
}

func (r *recordingDeliverer) count(route string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent[route])
}

func (r *recordingDeliverer) last(route string) notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.sent[route]
	return msgs[len(msgs)-1]
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func ptr[T any](v T) *T { return &v }

type fixture struct {
	svc   *Service
	mail  *recordingDeliverer
	pdfs  *pdfstore.Store
	clock *time.Time
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	cat := catalog.NewStore(nil, time.Minute, logger)
	b, err := cat.CreateBrand(ctx, catalog.BrandInput{Name: "Straub"})
	require.NoError(t, err)
	c, err := cat.CreateCategory(ctx, catalog.CategoryInput{Name: "Pipe Couplings"})
	require.NoError(t, err)
	_, err = cat.CreateProduct(ctx, catalog.ProductInput{
		Name: "Straub Metal Grip", SKU: "SMG", BrandID: b.ID, CategoryID: c.ID, LeadTime: "1-2 weeks",
		Variations: []catalog.Variation{
			{Size: "48.3mm", Price: dec("120.50"), SKU: "SMG-48"},
			{Size: "60.3mm", SKU: "SMG-60"},
		},
	})
	require.NoError(t, err)
	_, err = cat.CreateProduct(ctx, catalog.ProductInput{
		Name: "Gate Valve", SKU: "GV-100", BrandID: b.ID, CategoryID: c.ID, LeadTime: "4-6 weeks",
		PriceVaries: ptr(false), BasePrice: dec("200"),
	})
	require.NoError(t, err)

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := NewStore(nil, time.Minute, logger)
	st.now = func() time.Time { return clock }
	mail := newRecorder()
	pdfs := pdfstore.New(t.TempDir())
	svc := NewService(st, cat, mail, pdfs, Config{
		PublicURL:      "https://shop.example.com/",
		BusinessEmails: []string{"sales@example.com"},
		PreparedBy:     "Sales Team",
		BusinessName:   "Industrial Parts Supply",
	}, logger)
	svc.now = func() time.Time { return clock }
	return fixture{svc: svc, mail: mail, pdfs: pdfs, clock: &clock}
}

func (f fixture) advance(d time.Duration) { *f.clock = f.clock.Add(d) }

func request() SubmitRequest {
	return SubmitRequest{
		CompanyName: "Acme Water",
		ContactName: "Sam Lee",
		Email:       "Sam@Acme.example",
		Phone:       "0400 000 000",
		DeliveryAddress: Address{
			Street: "1 George St", Suburb: "Sydney", State: "nsw", Postcode: "2000",
		},
		Items: []SubmitItem{
			{Product: "straub-metal-grip", Size: "48.3mm", Quantity: 3, MaterialCert: true},
			{Product: "gate-valve", Quantity: 2},
		},
		ClientIP: "203.0.113.9",
	}
}

func TestSubmitPricesAndNotifies(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Submit(context.Background(), request())
	require.NoError(t, err)

	q := res.Quote
	assert.True(t, strings.HasPrefix(q.QuoteNumber, "Q-20260301-"), q.QuoteNumber)
	assert.Len(t, q.QuoteNumber, len("Q-20260301-ABCD"))
	assert.Equal(t, StatusPending, q.Status)
	assert.Equal(t, "sam@acme.example", q.Email)
	assert.Equal(t, "NSW", q.DeliveryAddress.State)
	assert.Equal(t, 5, q.ItemCount)
	assert.Equal(t, "761.5", q.PricedTotal.String())
	assert.Equal(t, 10, q.DiscountPct)
	assert.Equal(t, "76.15", q.Savings.String())
	assert.Equal(t, 1, q.CertCount)
	assert.Equal(t, "350", q.CertFee.String())
	assert.False(t, q.HasUnpriced)
	assert.Equal(t, "4-6 weeks", q.LeadTime)
	assert.Equal(t, shipping.TierMetro, q.DeliveryZone)
	assert.Nil(t, q.ShippingCost)
	assert.Len(t, q.ApprovalToken, 43)
	require.NotNil(t, q.ApprovalTokenExpiresAt)
	assert.Equal(t, f.clock.AddDate(0, 0, 7), *q.ApprovalTokenExpiresAt)

	require.Len(t, q.Items, 2)
	assert.Equal(t, "SMG-48", q.Items[0].VariationSKU)
	assert.Equal(t, "361.5", q.Items[0].LineTotal.String())
	assert.Equal(t, "Straub", q.Items[1].Brand)
	assert.Equal(t, []string{"Long lead time: Gate Valve (4-6 weeks)"}, res.Flags)

	assert.True(t, res.BusinessNotified)
	assert.True(t, res.CustomerNotified)
	biz := f.mail.last(RouteBusiness)
	assert.Equal(t, []string{"sales@example.com"}, biz.To)
	assert.Equal(t, "sam@acme.example", biz.ReplyTo)
	assert.Contains(t, biz.HTML, "https://shop.example.com/approve-quote/"+q.ApprovalToken)
	cust := f.mail.last(RouteCustomer)
	assert.Equal(t, []string{"sam@acme.example"}, cust.To)
	assert.NotContains(t, cust.HTML, q.ApprovalToken)

	stored, err := f.svc.Store().GetByNumber(context.Background(), q.QuoteNumber)
	require.NoError(t, err)
	assert.Equal(t, q.ID, stored.ID)
}

func TestSubmitSurvivesMailFailure(t *testing.T) {
	f := newFixture(t)
	f.mail.fail[RouteBusiness] = errors.New("smtp down")
	res, err := f.svc.Submit(context.Background(), request())
	require.NoError(t, err)
	assert.False(t, res.BusinessNotified)
	assert.True(t, res.CustomerNotified)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for name, mutate := range map[string]func(*SubmitRequest){
		"no email":       func(r *SubmitRequest) { r.Email = "" },
		"bad email":      func(r *SubmitRequest) { r.Email = "not an email" },
		"no postcode":    func(r *SubmitRequest) { r.DeliveryAddress.Postcode = "" },
		"no items":       func(r *SubmitRequest) { r.Items = nil },
		"zero quantity":  func(r *SubmitRequest) { r.Items[0].Quantity = 0 },
		"unknown item":   func(r *SubmitRequest) { r.Items[0].Product = "nope" },
		"missing size":   func(r *SubmitRequest) { r.Items[0].Size = "" },
		"unknown size":   func(r *SubmitRequest) { r.Items[0].Size = "900mm" },
		"no company":     func(r *SubmitRequest) { r.CompanyName = " " },
		"too many items": func(r *SubmitRequest) { r.Items = make([]SubmitItem, MaxItems+1) },
	} {
		req := request()
		mutate(&req)
		_, err := f.svc.Submit(ctx, req)
		assert.True(t, store.IsValidation(err), "%s: %v", name, err)
	}
	assert.Equal(t, 0, f.mail.count(RouteBusiness))
}

func TestSubmitStoresBareAddress(t *testing.T) {
	f := newFixture(t)
	req := request()
	req.Email = "Sam Lee <Sam@Acme.example>"
	res, err := f.svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "sam@acme.example", res.Quote.Email)
	assert.Equal(t, "sam@acme.example", f.mail.last(RouteBusiness).ReplyTo)
	assert.Equal(t, []string{"sam@acme.example"}, f.mail.last(RouteCustomer).To)
}

func TestSubmitPOAAndRemote(t *testing.T) {
	f := newFixture(t)
	req := request()
	req.DeliveryAddress = Address{Street: "Pit 3 Haul Rd", Suburb: "Newman", State: "WA", Postcode: "6753"}
	req.Items = []SubmitItem{
		{Product: "straub-metal-grip", Size: "60.3mm", Quantity: 8},
		{Product: "gate-valve", Quantity: 4},
	}
	res, err := f.svc.Submit(context.Background(), req)
	require.NoError(t, err)
	q := res.Quote
	assert.True(t, q.HasUnpriced)
	assert.Nil(t, q.Items[0].UnitPrice)
	assert.Equal(t, 15, q.DiscountPct)
	assert.Equal(t, shipping.TierRemote, q.DeliveryZone)
	assert.True(t, q.MineSite)
	assert.Contains(t, res.Flags, "Remote/mine site delivery - freight quote required")
	assert.Contains(t, res.Flags, "Large order (12 items)")
	assert.Contains(t, res.Flags, "Contains POA items - pricing required")

	a, err := f.svc.ApprovalSummary(context.Background(), q.ApprovalToken)
	require.NoError(t, err)
	assert.True(t, a.QuoteRequired)
	assert.Nil(t, a.Shipping)
}

func TestSendArchivesVersions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Submit(ctx, request())
	require.NoError(t, err)
	id := res.Quote.ID

	sent, err := f.svc.Send(ctx, id, SendOptions{ShippingCost: dec("45"), ShippingNotes: "Tailgate truck"})
	require.NoError(t, err)
	assert.Equal(t, StatusForwarded, sent.Status)
	assert.NotNil(t, sent.ForwardedAt)
	assert.Equal(t, 1, sent.PDFVersion)
	assert.Equal(t, pdfstore.Key(sent.QuoteNumber, 1), sent.PDFPath)
	assert.Equal(t, "45", sent.ShippingCost.String())
	assert.Equal(t, "Tailgate truck", sent.ShippingNotes)

	msg := f.mail.last(RouteSend)
	assert.Equal(t, []string{"sam@acme.example"}, msg.To)
	assert.Equal(t, "sales@example.com", msg.ReplyTo)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, sent.QuoteNumber+".pdf", msg.Attachments[0].Filename)
	assert.True(t, strings.HasPrefix(string(msg.Attachments[0].Data), "%PDF-"))
	assert.Contains(t, msg.Text, "Shipping: $45.00")

	again, err := f.svc.Send(ctx, id, SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, again.PDFVersion)
	assert.Equal(t, "45", again.ShippingCost.String(), "stored shipping is reused")

	_, err = os.Stat(filepath.Join(f.pdfs.Root(), filepath.FromSlash(sent.PDFPath)))
	assert.True(t, os.IsNotExist(err), "previous version is removed")
	_, err = os.Stat(filepath.Join(f.pdfs.Root(), filepath.FromSlash(again.PDFPath)))
	assert.NoError(t, err)

	_, err = f.svc.Send(ctx, id, SendOptions{ShippingCost: dec("-1")})
	assert.True(t, store.IsValidation(err))
	_, err = f.svc.Send(ctx, "qt_missing", SendOptions{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApproveFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Submit(ctx, request())
	require.NoError(t, err)
	token := res.Quote.ApprovalToken

	_, err = f.svc.Approve(ctx, "unknown-token", SendOptions{})
	assert.ErrorIs(t, err, ErrNotFound)

	a, err := f.svc.ApprovalSummary(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, a.Shipping)
	assert.True(t, a.Shipping.IsZero(), "metro delivery is free")
	assert.Equal(t, "1035.35", a.Totals.Net.String())
	assert.Equal(t, "103.54", a.Totals.GST.String())
	assert.Equal(t, "1138.89", a.Totals.Total.String())

	q, err := f.svc.Approve(ctx, token, SendOptions{PreparedBy: "Jo"})
	require.NoError(t, err)
	assert.Equal(t, StatusForwarded, q.Status)
	assert.NotNil(t, q.ApprovalTokenUsedAt)
	assert.Equal(t, 1, f.mail.count(RouteApproval))

	_, err = f.svc.Approve(ctx, token, SendOptions{})
	assert.ErrorIs(t, err, ErrAlreadyForwarded)
	_, err = f.svc.ApprovalSummary(ctx, token)
	assert.ErrorIs(t, err, ErrAlreadyForwarded)
}

func TestApproveExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Submit(ctx, request())
	require.NoError(t, err)

	f.advance(7*24*time.Hour + time.Second)
	_, err = f.svc.Approve(ctx, res.Quote.ApprovalToken, SendOptions{})
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, 0, f.mail.count(RouteApproval))
}

func TestApproveAtExactExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Submit(ctx, request())
	require.NoError(t, err)

	f.advance(7 * 24 * time.Hour)
	require.Equal(t, *res.Quote.ApprovalTokenExpiresAt, *f.clock)
	q, err := f.svc.Approve(ctx, res.Quote.ApprovalToken, SendOptions{})
	require.NoError(t, err, "a link is valid up to and including its expiry instant")
	assert.Equal(t, StatusForwarded, q.Status)
}

func TestClaimTokenQueryMatchesExpiryRule(t *testing.T) {
	assert.Contains(t, claimTokenSQL, "approval_token_expires_at >= $2")
}

func TestApproveReleasesTokenOnMailFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Submit(ctx, request())
	require.NoError(t, err)

	f.mail.fail[RouteApproval] = errors.New("smtp down")
	_, err = f.svc.Approve(ctx, res.Quote.ApprovalToken, SendOptions{})
	assert.ErrorIs(t, err, ErrDeliveryFailed)

	q, err := f.svc.Store().Get(ctx, res.Quote.ID)
	require.NoError(t, err)
	assert.Nil(t, q.ApprovalTokenUsedAt)
	assert.Equal(t, StatusPending, q.Status)
	assert.Equal(t, 0, q.PDFVersion)
	_, err = os.Stat(filepath.Join(f.pdfs.Root(), filepath.FromSlash(pdfstore.Key(q.QuoteNumber, 1))))
	assert.True(t, os.IsNotExist(err), "unsent pdf is discarded")

	delete(f.mail.fail, RouteApproval)
	_, err = f.svc.Approve(ctx, res.Quote.ApprovalToken, SendOptions{})
	assert.NoError(t, err)
}

func TestUpdateRepricesAndStamps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Submit(ctx, request())
	require.NoError(t, err)
	q := res.Quote

	updated, err := f.svc.Update(ctx, q.ID, Patch{
		Status:        ptr("Reviewed"),
		InternalNotes: ptr("  check stock  "),
		Items:         []ItemPatch{{ID: q.Items[1].ID, QuotedPrice: dec("180"), QuotedNotes: ptr("project price")}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusReviewed, updated.Status)
	require.NotNil(t, updated.ReviewedAt)
	assert.Equal(t, "check stock", updated.InternalNotes)
	assert.Equal(t, "721.5", updated.PricedTotal.String())
	assert.Equal(t, "72.15", updated.Savings.String())
	assert.Equal(t, "180", updated.Items[1].Price().String())

	firstReview := *updated.ReviewedAt
	f.advance(time.Hour)
	updated, err = f.svc.Update(ctx, q.ID, Patch{Status: ptr("reviewed")})
	require.NoError(t, err)
	assert.Equal(t, firstReview, *updated.ReviewedAt, "stamp is set once")

	updated, err = f.svc.Update(ctx, q.ID, Patch{Items: []ItemPatch{{ID: q.Items[1].ID, ClearQuotedPrice: true}}})
	require.NoError(t, err)
	assert.Equal(t, "761.5", updated.PricedTotal.String())

	_, err = f.svc.Update(ctx, q.ID, Patch{})
	assert.True(t, store.IsValidation(err))
	_, err = f.svc.Update(ctx, q.ID, Patch{Status: ptr("archived")})
	assert.True(t, store.IsValidation(err))
	_, err = f.svc.Update(ctx, q.ID, Patch{Items: []ItemPatch{{ID: "qti_nope", QuotedPrice: dec("1")}}})
	assert.True(t, store.IsValidation(err))
	_, err = f.svc.Update(ctx, "qt_missing", Patch{Status: ptr("closed")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRestoreListAndCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.svc.Store()

	var ids []string
	for i := 0; i < 3; i++ {
		res, err := f.svc.Submit(ctx, request())
		require.NoError(t, err)
		ids = append(ids, res.Quote.ID)
		f.advance(time.Minute)
	}

	page, err := st.List(ctx, ListFilter{}, "", 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[2], page.Items[0].ID)
	assert.Empty(t, page.Items[0].Items, "list returns headers only")
	require.NotEmpty(t, page.NextCursor)

	cached, err := st.List(ctx, ListFilter{}, "", 2)
	require.NoError(t, err)
	assert.True(t, cached.Cached)

	rest, err := st.List(ctx, ListFilter{}, page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Equal(t, ids[0], rest.Items[0].ID)
	assert.Empty(t, rest.NextCursor)

	_, err = st.Restore(ctx, ids[1])
	assert.ErrorIs(t, err, ErrNotDeleted)
	require.NoError(t, st.SoftDelete(ctx, ids[1], "ops@example.com"))

	page, err = st.List(ctx, ListFilter{}, "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	page, err = st.List(ctx, ListFilter{IncludeDeleted: true}, "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)

	_, err = f.svc.Send(ctx, ids[1], SendOptions{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Update(ctx, ids[0], Patch{Status: ptr("closed")})
	require.NoError(t, err)
	counts, err := st.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Total)
	assert.Equal(t, 1, counts.Deleted)
	assert.Equal(t, 1, counts.ByStatus[StatusPending])
	assert.Equal(t, 1, counts.ByStatus[StatusClosed])
	assert.Equal(t, 0, counts.ByStatus[StatusForwarded])

	closed, err := st.List(ctx, ListFilter{Status: StatusClosed}, "", 10)
	require.NoError(t, err)
	require.Len(t, closed.Items, 1)
	assert.Equal(t, ids[0], closed.Items[0].ID)

	restored, err := st.Restore(ctx, ids[1])
	require.NoError(t, err)
	assert.False(t, restored.IsDeleted)
	assert.Nil(t, restored.DeletedAt)

	assert.ErrorIs(t, st.SoftDelete(ctx, "qt_missing", ""), ErrNotFound)
	_, err = st.List(ctx, ListFilter{}, "garbage", 10)
	assert.True(t, store.IsValidation(err))
}

func TestListQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := request()
	_, err := f.svc.Submit(ctx, req)
	require.NoError(t, err)
	req.CompanyName = "Beta Mining"
	_, err = f.svc.Submit(ctx, req)
	require.NoError(t, err)

	page, err := f.svc.Store().List(ctx, ListFilter{Query: "beta"}, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Beta Mining", page.Items[0].CompanyName)
}

func TestRenderPDFAndPreview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Submit(ctx, request())
	require.NoError(t, err)

	data, q, err := f.svc.RenderPDF(ctx, res.Quote.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, res.Quote.QuoteNumber, q.QuoteNumber)
	assert.True(t, strings.HasPrefix(string(data), "%PDF-"))

	r, err := f.svc.EmailPreview(ctx, res.Quote.ID, SendOptions{ShippingCost: dec("12.5")})
	require.NoError(t, err)
	assert.Equal(t, "Your quote "+q.QuoteNumber, r.Subject)
	assert.Contains(t, r.Text, "Shipping: $12.50")
	assert.Contains(t, r.Text, "Prepared by Sales Team")
	assert.Equal(t, 0, f.mail.count(RouteSend), "preview does not send")
}

func TestShippingFor(t *testing.T) {
	metro := Quote{DeliveryZone: shipping.TierMetro}
	regional := Quote{DeliveryZone: shipping.TierMajorRegional}
	remote := Quote{DeliveryZone: shipping.TierRemote}

	assert.True(t, shippingFor(metro, nil).IsZero())
	assert.Equal(t, "100", shippingFor(regional, nil).String())
	assert.Nil(t, shippingFor(remote, nil))
	assert.Equal(t, "80.13", shippingFor(remote, dec("80.125")).String())
	regional.ShippingCost = dec("60")
	assert.Equal(t, "60", shippingFor(regional, nil).String())
}

func TestParseStatus(t *testing.T) {
	st, ok := ParseStatus(" Forwarded ")
	assert.True(t, ok)
	assert.Equal(t, StatusForwarded, st)
	_, ok = ParseStatus("deleted")
	assert.False(t, ok)
}
