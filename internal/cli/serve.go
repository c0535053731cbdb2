package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"erp/ecommerce/quote-storefront/internal/contact"
	"erp/ecommerce/quote-storefront/internal/notify"
	"erp/ecommerce/quote-storefront/internal/pdfstore"
	"erp/ecommerce/quote-storefront/internal/pricing"
	"erp/ecommerce/quote-storefront/internal/quotes"
	"erp/ecommerce/quote-storefront/internal/ratelimit"
	"erp/ecommerce/quote-storefront/internal/server"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the storefront HTTP server",
	Long:  "Serves the catalog, quote and admin API. Without DATABASE_URL or DB_HOST everything is kept in memory.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	var mailer notify.Mailer = notify.NopMailer{}
	if cfg.MailEnabled() {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:      cfg.Mail.Host,
			Port:      cfg.Mail.Port,
			User:      cfg.Mail.User,
			Password:  cfg.Mail.Password,
			FromEmail: cfg.Mail.FromEmail,
			FromName:  cfg.Mail.FromName,
		})
	} else {
		logger.Warn("SMTP not configured, emails will be logged as failed")
	}

	var limiter ratelimit.Limiter = ratelimit.NewMemory(cfg.RateLimit.Requests, cfg.GetRateWindow())
	if cfg.RateLimit.RedisURL != "" {
		client, err := ratelimit.OpenRedis(ctx, cfg.RateLimit.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, rate limiting in memory", zap.Error(err))
		} else {
			defer client.Close()
			limiter = ratelimit.NewRedis(client, cfg.RateLimit.Requests, cfg.GetRateWindow())
		}
	}

	notifier := notify.NewNotifier(mailer, a.audit, logger)
	svc := quotes.NewService(a.quotes, a.catalog, notifier,
		pdfstore.New(cfg.Storage.PDFDir),
		quotes.Config{
			PublicURL:       cfg.Server.PublicURL,
			BusinessEmails:  cfg.ContactEmails(),
			ApprovalTTLDays: cfg.Quotes.ApprovalTTLDays,
			PreparedBy:      cfg.Quotes.PreparedBy,
			BusinessName:    cfg.Quotes.BusinessName,
			BusinessDetails: cfg.Quotes.BusinessDetails,
			Location:        cfg.GetLocation(),
			Calculator:      pricing.Calculator{CertFee: cfg.GetCertFee(), GSTRate: cfg.GetGSTRate()},
		}, logger)

	srv := server.New(server.Deps{
		Catalog:      a.catalog,
		Redirects:    a.redirects,
		Quotes:       svc,
		Contact:      contact.NewService(notifier, cfg.ContactEmails(), cfg.Quotes.BusinessName, cfg.Server.PublicURL, logger),
		Auth:         a.auth,
		Audit:        a.audit,
		Notifier:     notifier,
		Limiter:      limiter,
		Logger:       logger,
		PublicURL:    cfg.Server.PublicURL,
		BusinessName: cfg.Quotes.BusinessName,
		SecureCookie: cfg.Auth.SecureCookie,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("storefront listening",
			zap.String("addr", httpServer.Addr),
			zap.String("mode", a.mode()),
			zap.Bool("mail", cfg.MailEnabled()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
