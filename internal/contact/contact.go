// Package contact forwards storefront contact form enquiries to the business
// and confirms receipt to the sender.
package contact

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"erp/ecommerce/quote-storefront/internal/notify"
	"erp/ecommerce/quote-storefront/internal/store"
)

// Email audit routes.
const (
	RouteBusiness = "contact_business"
	RouteCustomer = "contact_customer"
)

const maxMessageLen = 5000

var ErrDeliveryFailed = errors.New("failed to send message")

type Deliverer interface {
	Deliver(ctx context.Context, route, quoteNumber string, msg notify.Message) error
}

type Request struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
	Message string `json:"message"`
}

func (r *Request) normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Company = strings.TrimSpace(r.Company)
	r.Message = strings.TrimSpace(r.Message)
	if r.Name == "" || r.Email == "" || r.Message == "" {
		return store.Invalid("name, email and message are required")
	}
	if len(r.Message) > maxMessageLen {
		return store.Invalid("message must be at most %d characters", maxMessageLen)
	}
	addr, err := mail.ParseAddress(r.Email)
	if err != nil {
		return store.Invalid("email is invalid")
	}
	r.Email = strings.ToLower(addr.Address)
	return nil
}

type Result struct {
	Confirmed bool `json:"confirmation_sent"`
}

type Service struct {
	notifier     Deliverer
	to           []string
	businessName string
	websiteURL   string
	logger       *zap.Logger
}

func NewService(notifier Deliverer, to []string, businessName, websiteURL string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{notifier: notifier, to: to, businessName: businessName, websiteURL: websiteURL, logger: logger}
}

// Submit emails the enquiry to the business with Reply-To set to the sender,
// and a confirmation to the sender. Only the business email must succeed.
func (s *Service) Submit(ctx context.Context, req Request) (Result, error) {
	if err := req.normalize(); err != nil {
		return Result{}, err
	}
	if len(s.to) == 0 {
		s.logger.Error("contact form received with no contact email configured")
		return Result{}, ErrDeliveryFailed
	}
	v := notify.ContactView{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Company:      req.Company,
		Message:      req.Message,
		BusinessName: s.businessName,
		WebsiteURL:   s.websiteURL,
	}

	var res Result
	var g errgroup.Group
	g.Go(func() error {
		r, err := notify.RenderContact(notify.TemplateContactBusiness, v)
		if err != nil {
			return err
		}
		msg := notify.Message{To: s.to, ReplyTo: req.Email, Subject: r.Subject, HTML: r.HTML, Text: r.Text}
		if err := s.notifier.Deliver(ctx, RouteBusiness, "", msg); err != nil {
			return errors.Join(ErrDeliveryFailed, err)
		}
		return nil
	})
	g.Go(func() error {
		r, err := notify.RenderContact(notify.TemplateContactCustomer, v)
		if err != nil {
			s.logger.Error("render contact confirmation", zap.Error(err))
			return nil
		}
		msg := notify.Message{To: []string{req.Email}, ReplyTo: s.to[0], Subject: r.Subject, HTML: r.HTML, Text: r.Text}
		res.Confirmed = s.notifier.Deliver(ctx, RouteCustomer, "", msg) == nil
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	s.logger.Info("contact form forwarded", zap.String("email", req.Email), zap.Bool("confirmed", res.Confirmed))
	return res, nil
}
