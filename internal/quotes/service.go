package quotes

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"erp/ecommerce/quote-storefront/internal/catalog"
	"erp/ecommerce/quote-storefront/internal/leadtime"
	"erp/ecommerce/quote-storefront/internal/notify"
	"erp/ecommerce/quote-storefront/internal/pricing"
	"erp/ecommerce/quote-storefront/internal/quotepdf"
	"erp/ecommerce/quote-storefront/internal/shipping"
	"erp/ecommerce/quote-storefront/internal/store"
	"erp/ecommerce/quote-storefront/internal/tokens"
)

// ErrDeliveryFailed wraps a mail failure while sending a quote.
var ErrDeliveryFailed = errors.New("failed to send quote email")

// Email audit routes.
const (
	RouteBusiness = "quote_request_business"
	RouteCustomer = "quote_request_customer"
	RouteSend     = "admin_send"
	RouteApproval = "approval_link"
)

type ItemResolver interface {
	ResolveItem(ctx context.Context, ref, size string) (catalog.ResolvedItem, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, route, quoteNumber string, msg notify.Message) error
}

type Archive interface {
	Put(ctx context.Context, quoteNumber string, version int, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

type Config struct {
	PublicURL       string
	BusinessEmails  []string
	ReplyTo         string
	ApprovalTTLDays int
	PreparedBy      string
	BusinessName    string
	BusinessDetails []string
	Location        *time.Location
	Calculator      pricing.Calculator
}

type Service struct {
	store    *Store
	catalog  ItemResolver
	notifier Deliverer
	pdfs     Archive
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(st *Store, resolver ItemResolver, notifier Deliverer, pdfs Archive, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Calculator.GSTRate.IsZero() && cfg.Calculator.CertFee.IsZero() {
		cfg.Calculator = pricing.NewCalculator()
	}
	if cfg.ApprovalTTLDays <= 0 {
		cfg.ApprovalTTLDays = tokens.DefaultTTLDays
	}
	if cfg.ReplyTo == "" && len(cfg.BusinessEmails) > 0 {
		cfg.ReplyTo = cfg.BusinessEmails[0]
	}
	return &Service{
		store:    st,
		catalog:  resolver,
		notifier: notifier,
		pdfs:     pdfs,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Store() *Store { return s.store }

// newNumber returns Q-YYYYMMDD-XXXX in the business timezone.
func (s *Service) newNumber(now time.Time) string {
	buf := make([]byte, 2)
	suffix := ""
	if _, err := rand.Read(buf); err == nil {
		suffix = strings.ToUpper(hex.EncodeToString(buf))
	} else {
		suffix = fmt.Sprintf("%04X", now.UnixNano()&0xffff)
	}
	return "Q-" + now.In(s.cfg.Location).Format("20060102") + "-" + suffix
}

func (s *Service) reprice(q Quote) pricing.Totals {
	return s.cfg.Calculator.Compute(q.Lines(), decimal.Zero)
}

type SubmitResult struct {
	Quote            Quote    `json:"quote"`
	Flags            []string `json:"flags"`
	BusinessNotified bool     `json:"business_notified"`
	CustomerNotified bool     `json:"customer_notified"`
}

// Submit prices a cart against the catalog, stores it as a pending quote
// and emails the business and the customer. Email failures are logged and
// audited but do not fail the submission.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if err := req.normalize(); err != nil {
		return SubmitResult{}, err
	}
	now := s.now()

	items := make([]Item, 0, len(req.Items))
	leads := make([]string, 0, len(req.Items))
	for i, in := range req.Items {
		r, err := s.catalog.ResolveItem(ctx, in.Product, in.Size)
		if err != nil {
			if store.IsValidation(err) {
				return SubmitResult{}, store.Invalid("items[%d]: %s", i, err.Error())
			}
			return SubmitResult{}, fmt.Errorf("resolve item %d: %w", i, err)
		}
		items = append(items, Item{
			ID:           store.NewID("qti"),
			ProductID:    r.ProductID,
			SKU:          r.SKU,
			VariationSKU: r.VariationSKU,
			Name:         r.Name,
			Brand:        r.BrandName,
			Size:         r.Size,
			SizeLabel:    r.SizeLabel,
			Quantity:     in.Quantity,
			UnitPrice:    r.UnitPrice,
			LineTotal:    pricing.LineTotal(r.UnitPrice, in.Quantity),
			MaterialCert: in.MaterialCert,
			LeadTime:     r.LeadTime,
			DisplayOrder: i,
		})
		leads = append(leads, r.LeadTime)
	}

	delivery := shipping.ClassifyDelivery(req.DeliveryAddress.Postcode,
		req.DeliveryAddress.Street+" "+req.DeliveryAddress.Suburb)
	token, err := tokens.Generate()
	if err != nil {
		return SubmitResult{}, err
	}
	expires := tokens.Expiration(now, s.cfg.ApprovalTTLDays)

	q := Quote{
		Status:                 StatusPending,
		CompanyName:            req.CompanyName,
		ContactName:            req.ContactName,
		Email:                  req.Email,
		Phone:                  req.Phone,
		DeliveryAddress:        req.DeliveryAddress,
		BillingAddress:         req.BillingAddress,
		Notes:                  req.Notes,
		Items:                  items,
		LeadTime:               leadtime.Aggregate(leads),
		DeliveryZone:           delivery.Zone.Tier,
		DeliveryRegion:         delivery.Zone.Region,
		MineSite:               delivery.MineSite,
		ApprovalToken:          token,
		ApprovalTokenExpiresAt: &expires,
		ClientIP:               req.ClientIP,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	q.applyTotals(s.reprice(q))

	for attempt := 1; ; attempt++ {
		q.ID = store.NewID("qt")
		q.QuoteNumber = s.newNumber(now)
		err = s.store.Create(ctx, q)
		if !errors.Is(err, ErrConflict) || attempt >= numberRetryLimit {
			break
		}
	}
	if err != nil {
		return SubmitResult{}, fmt.Errorf("store quote: %w", err)
	}
	s.logger.Info("quote submitted",
		zap.String("quote_number", q.QuoteNumber),
		zap.Int("items", q.ItemCount),
		zap.String("zone", string(q.DeliveryZone)),
		zap.Bool("has_unpriced", q.HasUnpriced))

	res := SubmitResult{Quote: q, Flags: Flags(q)}
	res.BusinessNotified, res.CustomerNotified = s.notifySubmitted(ctx, q)
	return res, nil
}

func (s *Service) notifySubmitted(ctx context.Context, q Quote) (business, customer bool) {
	p := s.price(q, nil, "")

	var g errgroup.Group
	g.Go(func() error {
		if len(s.cfg.BusinessEmails) == 0 {
			s.logger.Warn("no contact email configured, skipping business notification",
				zap.String("quote_number", q.QuoteNumber))
			return nil
		}
		r, err := notify.Render(notify.TemplateBusiness, s.emailView(p, ""))
		if err != nil {
			s.logger.Error("render business email", zap.Error(err))
			return nil
		}
		msg := notify.Message{To: s.cfg.BusinessEmails, ReplyTo: q.Email, Subject: r.Subject, HTML: r.HTML, Text: r.Text}
		business = s.notifier.Deliver(ctx, RouteBusiness, q.QuoteNumber, msg) == nil
		return nil
	})
	g.Go(func() error {
		v := s.emailView(p, "")
		v.ApproveURL = ""
		v.AdminURL = ""
		v.Flags = nil
		r, err := notify.Render(notify.TemplateCustomer, v)
		if err != nil {
			s.logger.Error("render customer email", zap.Error(err))
			return nil
		}
		msg := notify.Message{To: []string{q.Email}, ReplyTo: s.cfg.ReplyTo, Subject: r.Subject, HTML: r.HTML, Text: r.Text}
		customer = s.notifier.Deliver(ctx, RouteCustomer, q.QuoteNumber, msg) == nil
		return nil
	})
	_ = g.Wait()
	return business, customer
}

// Update applies an admin patch, repricing when quoted prices change.
func (s *Service) Update(ctx context.Context, id string, p Patch) (Quote, error) {
	return s.store.Update(ctx, id, p, s.reprice)
}

// RenderPDF renders the current quote with its stored or zone shipping.
func (s *Service) RenderPDF(ctx context.Context, id string, draft bool, preparedBy string) ([]byte, Quote, error) {
	q, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, Quote{}, err
	}
	if preparedBy == "" {
		preparedBy = s.cfg.PreparedBy
	}
	data, err := quotepdf.Render(s.pdfDocument(s.price(q, nil, ""), draft, preparedBy))
	if err != nil {
		return nil, Quote{}, fmt.Errorf("render pdf: %w", err)
	}
	return data, q, nil
}

// SendOptions are the staff choices made when a quote goes out.
type SendOptions struct {
	ShippingCost  *decimal.Decimal `json:"shipping_cost"`
	ShippingNotes string           `json:"shipping_notes"`
	PreparedBy    string           `json:"prepared_by"`
}

func (o SendOptions) validate() error {
	if o.ShippingCost != nil && o.ShippingCost.IsNegative() {
		return store.Invalid("shipping_cost must not be negative")
	}
	return nil
}

// EmailPreview renders the customer quote email without sending it.
func (s *Service) EmailPreview(ctx context.Context, id string, opts SendOptions) (notify.Rendered, error) {
	if err := opts.validate(); err != nil {
		return notify.Rendered{}, err
	}
	q, err := s.store.Get(ctx, id)
	if err != nil {
		return notify.Rendered{}, err
	}
	return notify.Render(notify.TemplateQuote, s.customerView(s.price(q, opts.ShippingCost, opts.ShippingNotes), s.preparedBy(opts)))
}

func (s *Service) preparedBy(opts SendOptions) string {
	if opts.PreparedBy != "" {
		return opts.PreparedBy
	}
	return s.cfg.PreparedBy
}

func (s *Service) customerView(p priced, preparedBy string) notify.QuoteView {
	v := s.emailView(p, preparedBy)
	v.ApproveURL = ""
	v.AdminURL = ""
	v.Flags = nil
	return v
}

// Send emails the final quote PDF to the customer and marks it forwarded.
// Staff may resend; each send archives a new PDF version.
func (s *Service) Send(ctx context.Context, id string, opts SendOptions) (Quote, error) {
	if err := opts.validate(); err != nil {
		return Quote{}, err
	}
	q, err := s.store.Get(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	if q.IsDeleted {
		return Quote{}, ErrNotFound
	}
	return s.deliver(ctx, q, opts, RouteSend)
}

// Approval is what an approval link shows before it is used.
type Approval struct {
	Quote         Quote            `json:"quote"`
	Totals        pricing.Totals   `json:"totals"`
	Shipping      *decimal.Decimal `json:"shipping_cost"`
	QuoteRequired bool             `json:"shipping_quote_required"`
	Flags         []string         `json:"flags"`
}

// ApprovalSummary checks token without consuming it.
func (s *Service) ApprovalSummary(ctx context.Context, token string) (Approval, error) {
	q, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return Approval{}, err
	}
	if err := checkApprovable(q, s.now()); err != nil {
		return Approval{}, err
	}
	p := s.price(q, nil, "")
	return Approval{
		Quote:         q,
		Totals:        p.Totals,
		Shipping:      p.Shipping,
		QuoteRequired: p.Shipping == nil,
		Flags:         Flags(q),
	}, nil
}

// Approve consumes token and sends the quote. The token is released again if
// sending fails so the link can be retried.
func (s *Service) Approve(ctx context.Context, token string, opts SendOptions) (Quote, error) {
	if err := opts.validate(); err != nil {
		return Quote{}, err
	}
	q, err := s.store.ClaimToken(ctx, token)
	if err != nil {
		return Quote{}, err
	}
	sent, err := s.deliver(ctx, q, opts, RouteApproval)
	if err != nil {
		if rerr := s.store.ReleaseToken(context.WithoutCancel(ctx), q.ID); rerr != nil {
			s.logger.Warn("release approval token", zap.String("quote_number", q.QuoteNumber), zap.Error(rerr))
		}
		return Quote{}, err
	}
	return sent, nil
}

func (s *Service) deliver(ctx context.Context, q Quote, opts SendOptions, route string) (Quote, error) {
	p := s.price(q, opts.ShippingCost, strings.TrimSpace(opts.ShippingNotes))
	preparedBy := s.preparedBy(opts)

	data, err := quotepdf.Render(s.pdfDocument(p, false, preparedBy))
	if err != nil {
		return Quote{}, fmt.Errorf("render pdf: %w", err)
	}

	version := q.PDFVersion + 1
	path, err := s.pdfs.Put(ctx, q.QuoteNumber, version, data)
	if err != nil {
		s.logger.Warn("archive quote pdf", zap.String("quote_number", q.QuoteNumber), zap.Error(err))
		path, version = q.PDFPath, q.PDFVersion
	}

	r, err := notify.Render(notify.TemplateQuote, s.customerView(p, preparedBy))
	if err != nil {
		return Quote{}, err
	}
	msg := notify.Message{
		To:      []string{q.Email},
		ReplyTo: s.cfg.ReplyTo,
		Subject: r.Subject,
		HTML:    r.HTML,
		Text:    r.Text,
		Attachments: []notify.Attachment{{
			Filename:    q.QuoteNumber + ".pdf",
			ContentType: "application/pdf",
			Data:        data,
		}},
	}
	if err := s.notifier.Deliver(ctx, route, q.QuoteNumber, msg); err != nil {
		if path != q.PDFPath {
			s.dropPDF(ctx, q.QuoteNumber, path)
		}
		return Quote{}, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	updated, err := s.store.MarkForwarded(context.WithoutCancel(ctx), q.ID, Forwarded{
		ShippingCost:  p.Shipping,
		ShippingNotes: p.ShippingNotes,
		PDFPath:       path,
		PDFVersion:    version,
		At:            s.now(),
	})
	if err != nil {
		return Quote{}, fmt.Errorf("mark forwarded: %w", err)
	}
	if q.PDFPath != "" && q.PDFPath != path {
		s.dropPDF(ctx, q.QuoteNumber, q.PDFPath)
	}
	s.logger.Info("quote sent",
		zap.String("quote_number", q.QuoteNumber),
		zap.String("route", route),
		zap.Int("pdf_version", version))
	return updated, nil
}

func (s *Service) dropPDF(ctx context.Context, number, path string) {
	if err := s.pdfs.Delete(context.WithoutCancel(ctx), path); err != nil {
		s.logger.Warn("delete quote pdf", zap.String("quote_number", number), zap.String("path", path), zap.Error(err))
	}
}
