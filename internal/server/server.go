// Package server exposes the storefront, quote and back-office HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"erp/ecommerce/quote-storefront/internal/auth"
	"erp/ecommerce/quote-storefront/internal/catalog"
	"erp/ecommerce/quote-storefront/internal/contact"
	"erp/ecommerce/quote-storefront/internal/geo"
	"erp/ecommerce/quote-storefront/internal/httpx"
	"erp/ecommerce/quote-storefront/internal/notify"
	"erp/ecommerce/quote-storefront/internal/quotes"
	"erp/ecommerce/quote-storefront/internal/ratelimit"
	"erp/ecommerce/quote-storefront/internal/redirects"
	"erp/ecommerce/quote-storefront/internal/store"
)

const service = "quote-storefront"

// Deliverer sends account emails such as password resets.
type Deliverer interface {
	Deliver(ctx context.Context, route, quoteNumber string, msg notify.Message) error
}

// Deps are the components a Server routes to.
type Deps struct {
	Catalog   *catalog.Store
	Redirects *redirects.Store
	Quotes    *quotes.Service
	Contact   *contact.Service
	Auth      *auth.Service
	Audit     *notify.AuditLog
	Notifier  Deliverer
	Limiter   ratelimit.Limiter
	Logger    *zap.Logger

	PublicURL    string
	BusinessName string
	SecureCookie bool
}

type Server struct {
	catalog   *catalog.Store
	redirects *redirects.Store
	quotes    *quotes.Service
	contact   *contact.Service
	auth      *auth.Service
	audit     *notify.AuditLog
	notifier  Deliverer
	limiter   ratelimit.Limiter
	logger    *zap.Logger

	publicURL    string
	businessName string
	secure       bool
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.NewMemory(ratelimit.DefaultLimit, ratelimit.DefaultWindow)
	}
	if d.Notifier == nil {
		d.Notifier = notify.NewNotifier(nil, d.Audit, d.Logger)
	}
	if d.BusinessName == "" {
		d.BusinessName = "Storefront"
	}
	if d.Contact == nil {
		d.Contact = contact.NewService(d.Notifier, nil, d.BusinessName, d.PublicURL, d.Logger)
	}
	return &Server{
		catalog:      d.Catalog,
		redirects:    d.Redirects,
		quotes:       d.Quotes,
		contact:      d.Contact,
		auth:         d.Auth,
		audit:        d.Audit,
		notifier:     d.Notifier,
		limiter:      d.Limiter,
		logger:       d.Logger,
		publicURL:    strings.TrimRight(d.PublicURL, "/"),
		businessName: d.BusinessName,
		secure:       d.SecureCookie,
	}
}

// Routes builds the router. Redirects are served ahead of every page route
// but never for /api/ paths.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(httpx.WithServerDefaults)
	r.Use(geo.Middleware(s.secure))
	r.Use(redirects.Middleware(s.redirects, "/api/", "/healthz"))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.health)
	r.Get("/sitemap.xml", s.sitemap)

	r.Route("/api", func(api chi.Router) {
		api.Get("/brands", s.listBrands)
		api.Get("/brands/{slug}", s.getBrand)
		api.Get("/categories", s.listCategories)
		api.Get("/categories/{slug}", s.getCategory)
		api.Get("/products", s.listProducts)
		api.Get("/products/{slug}", s.getProduct)
		api.Get("/search", s.search)
		api.Get("/shipping/{postcode}", s.shippingZone)

		api.With(ratelimit.Middleware(s.limiter, "quote", s.logger)).Post("/quote", s.submitQuote)
		api.Get("/approve-quote/{token}", s.approvalSummary)
		api.Post("/approve-quote/{token}", s.approveQuote)
		api.With(ratelimit.Middleware(s.limiter, "contact", s.logger)).Post("/contact", s.submitContact)

		api.Route("/admin", func(r chi.Router) {
			r.With(ratelimit.Middleware(s.limiter, "login", s.logger)).Post("/login", s.login)
			r.Post("/logout", s.logout)
			r.With(ratelimit.Middleware(s.limiter, "password_reset", s.logger)).Post("/forgot-password", s.forgotPassword)
			r.Post("/reset-password", s.resetPassword)
			r.Group(func(admin chi.Router) {
				admin.Use(auth.RequireAdmin(s.auth, s.logger))
				admin.Get("/me", s.me)
				admin.Post("/change-password", s.changePassword)
				admin.Get("/stats", s.stats)

				admin.Get("/brands", s.listBrands)
				admin.Post("/brands", s.createBrand)
				admin.Put("/brands/{id}", s.updateBrand)
				admin.Delete("/brands/{id}", s.deleteBrand)

				admin.Get("/categories", s.listCategories)
				admin.Post("/categories", s.createCategory)
				admin.Put("/categories/{id}", s.updateCategory)
				admin.Delete("/categories/{id}", s.deleteCategory)

				admin.Get("/products", s.adminListProducts)
				admin.Post("/products", s.createProduct)
				admin.Get("/products/{id}", s.adminGetProduct)
				admin.Patch("/products/{id}", s.updateProduct)
				admin.Delete("/products/{id}", s.deleteProduct)
				admin.Patch("/pricing", s.updatePricing)

				admin.Get("/redirects", s.listRedirects)
				admin.Post("/redirects", s.createRedirect)
				admin.Get("/redirects/export", s.exportRedirects)
				admin.Post("/redirects/import", s.importRedirects)
				admin.Get("/redirects/{id}", s.getRedirect)
				admin.Put("/redirects/{id}", s.updateRedirect)
				admin.Delete("/redirects/{id}", s.deleteRedirect)

				admin.Get("/quotes", s.listQuotes)
				admin.Get("/quotes/{id}", s.getQuote)
				admin.Patch("/quotes/{id}", s.updateQuote)
				admin.Delete("/quotes/{id}", s.deleteQuote)
				admin.Post("/quotes/{id}/restore", s.restoreQuote)
				admin.Get("/quotes/{id}/pdf", s.quotePDF)
				admin.Post("/quotes/{id}/email-preview", s.emailPreview)
				admin.Post("/quotes/{id}/send", s.sendQuote)
			})
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "healthy", "service": service, "mode": s.quotes.Store().Mode()})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		}
		if status >= http.StatusInternalServerError {
			s.logger.Warn("request", fields...)
			return
		}
		s.logger.Debug("request", fields...)
	})
}

// fail maps domain errors to status codes. Anything unrecognised is logged
// and reported as a 500 without its message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		httpx.WriteError(w, code, "internal error")
		return
	}
	httpx.WriteError(w, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case store.IsValidation(err),
		errors.Is(err, httpx.ErrEmptyBody),
		errors.Is(err, httpx.ErrInvalidJSON),
		errors.Is(err, auth.ErrWrongPassword),
		errors.Is(err, auth.ErrResetTokenInvalid):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, quotes.ErrTokenExpired):
		return http.StatusForbidden
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, redirects.ErrNotFound),
		errors.Is(err, quotes.ErrNotFound),
		errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrConflict),
		errors.Is(err, redirects.ErrConflict),
		errors.Is(err, quotes.ErrConflict),
		errors.Is(err, quotes.ErrAlreadyForwarded),
		errors.Is(err, quotes.ErrNotDeleted):
		return http.StatusConflict
	case errors.Is(err, quotes.ErrDeliveryFailed),
		errors.Is(err, contact.ErrDeliveryFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
