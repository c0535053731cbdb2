package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"erp/ecommerce/quote-storefront/internal/auth"
	"erp/ecommerce/quote-storefront/internal/catalog"
	"erp/ecommerce/quote-storefront/internal/config"
	"erp/ecommerce/quote-storefront/internal/logging"
	"erp/ecommerce/quote-storefront/internal/notify"
	"erp/ecommerce/quote-storefront/internal/quotes"
	"erp/ecommerce/quote-storefront/internal/redirects"
	"erp/ecommerce/quote-storefront/internal/store"
)

// app is the set of stores every command works against.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sql.DB

	catalog   *catalog.Store
	redirects *redirects.Store
	quotes    *quotes.Store
	auth      *auth.Service
	audit     *notify.AuditLog
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openApp connects to Postgres and applies the schemas. Without requireDB a
// missing or broken database falls back to memory mode.
func openApp(ctx context.Context, requireDB bool) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := store.Connect(ctx, store.Options{
		DSN:             cfg.Database.DSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.GetConnMaxIdle(),
		ConnMaxLifetime: cfg.Database.GetConnMaxLifetime(),
	})
	if err != nil {
		if requireDB {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if !errors.Is(err, store.ErrNoDSN) {
			logger.Warn("database unavailable, using memory mode", zap.Error(err))
		}
		db = nil
	}

	a := newApp(cfg, logger, db)
	if db == nil {
		return a, nil
	}
	if err := a.ensureSchema(ctx); err != nil {
		_ = db.Close()
		if requireDB {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		logger.Warn("schema init failed, using memory mode", zap.Error(err))
		return newApp(cfg, logger, nil), nil
	}
	return a, nil
}

func newApp(cfg *config.Config, logger *zap.Logger, db *sql.DB) *app {
	ttl := cfg.GetCacheTTL()
	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		catalog:   catalog.NewStore(db, ttl, logger),
		redirects: redirects.NewStore(db, cfg.GetRedirectTTL(), logger),
		quotes:    quotes.NewStore(db, ttl, logger),
		auth:      auth.NewService(db, cfg.GetSessionTTL(), logger),
		audit:     notify.NewAuditLog(db, logger),
	}
}

// ensureSchema creates tables in dependency order.
func (a *app) ensureSchema(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"catalog", a.catalog.EnsureSchema},
		{"redirects", a.redirects.EnsureSchema},
		{"quotes", a.quotes.EnsureSchema},
		{"auth", a.auth.EnsureSchema},
		{"email_logs", a.audit.EnsureSchema},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func (a *app) mode() string {
	if a.db == nil {
		return "memory"
	}
	return "postgres"
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.logger.Sync()
}
