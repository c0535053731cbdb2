// Package config loads the storefront configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all storefront configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Mail      MailConfig      `yaml:"mail"`
	Quotes    QuotesConfig    `yaml:"quotes"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port      string `yaml:"port"`
	PublicURL string `yaml:"public_url"` // used in approval links and the sitemap
	// Graceful shutdown budget
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures Postgres. URL wins over the discrete fields.
// With neither URL nor Host set the server runs in memory mode.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	Host            string `yaml:"host"`
	Port            string `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Name            string `yaml:"name"`
	SSLMode         string `yaml:"sslmode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxIdle     string `yaml:"conn_max_idle"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

type CacheConfig struct {
	TTL         string `yaml:"ttl"`          // list caches
	RedirectTTL string `yaml:"redirect_ttl"` // redirect lookups, misses included
}

type MailConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	FromEmail    string `yaml:"from_email"`
	FromName     string `yaml:"from_name"`
	ContactEmail string `yaml:"contact_email"` // business inbox for new quote requests
}

type QuotesConfig struct {
	ApprovalTTLDays int      `yaml:"approval_ttl_days"`
	CertFee         string   `yaml:"cert_fee"`
	GSTRate         string   `yaml:"gst_rate"`
	PreparedBy      string   `yaml:"prepared_by"`
	Timezone        string   `yaml:"timezone"` // quote dates and numbers
	BusinessName    string   `yaml:"business_name"`
	BusinessDetails []string `yaml:"business_details"` // letterhead lines on the PDF
}

type RateLimitConfig struct {
	RedisURL string `yaml:"redis_url"`
	Requests int    `yaml:"requests"`
	Window   string `yaml:"window"`
}

type StorageConfig struct {
	PDFDir string `yaml:"pdf_dir"`
}

type AuthConfig struct {
	SessionTTL   string `yaml:"session_ttl"`
	SecureCookie bool   `yaml:"secure_cookie"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			PublicURL:       "http://localhost:8080",
			ShutdownTimeout: "15s",
		},
		Database: DatabaseConfig{
			Port:            "5432",
			User:            "postgres",
			Password:        "postgres",
			Name:            "storefront",
			SSLMode:         "disable",
			MaxOpenConns:    60,
			MaxIdleConns:    20,
			ConnMaxIdle:     "5m",
			ConnMaxLifetime: "30m",
		},
		Cache: CacheConfig{
			TTL:         "45s",
			RedirectTTL: "60s",
		},
		Mail: MailConfig{
			Port:     587,
			FromName: "Quotes",
		},
		Quotes: QuotesConfig{
			ApprovalTTLDays: 7,
			CertFee:         "350",
			GSTRate:         "0.10",
			PreparedBy:      "Sales Team",
			Timezone:        "Australia/Sydney",
			BusinessName:    "Industrial Parts Supply",
		},
		RateLimit: RateLimitConfig{
			Requests: 5,
			Window:   "1m",
		},
		Storage: StorageConfig{
			PDFDir: "data/pdf",
		},
		Auth: AuthConfig{
			SessionTTL: "12h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.PublicURL, "PUBLIC_URL")

	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.Port, "DB_PORT")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.SSLMode, "DB_SSLMODE")
	setInt(&c.Database.MaxOpenConns, "DB_MAX_OPEN_CONNS")
	setInt(&c.Database.MaxIdleConns, "DB_MAX_IDLE_CONNS")
	setString(&c.Database.ConnMaxIdle, "DB_CONN_MAX_IDLE")
	setString(&c.Database.ConnMaxLifetime, "DB_CONN_MAX_LIFETIME")

	setString(&c.Cache.TTL, "CACHE_TTL")

	setString(&c.Mail.Host, "SMTP_HOST")
	setInt(&c.Mail.Port, "SMTP_PORT")
	setString(&c.Mail.User, "SMTP_USER")
	setString(&c.Mail.Password, "SMTP_PASS")
	setString(&c.Mail.FromEmail, "FROM_EMAIL")
	setString(&c.Mail.FromName, "FROM_NAME")
	setString(&c.Mail.ContactEmail, "CONTACT_EMAIL")

	setString(&c.RateLimit.RedisURL, "REDIS_URL")
	setString(&c.Storage.PDFDir, "PDF_DIR")
	setString(&c.Logging.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	if n, err := strconv.Atoi(raw); err == nil {
		*dst = n
	}
}

func duration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return d
}

// DSN returns the Postgres connection string, or "" for memory mode.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	if d.Host == "" {
		return ""
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

func (d DatabaseConfig) GetConnMaxIdle() time.Duration {
	return duration(d.ConnMaxIdle, 5*time.Minute)
}

func (d DatabaseConfig) GetConnMaxLifetime() time.Duration {
	return duration(d.ConnMaxLifetime, 30*time.Minute)
}

func (c *Config) GetCacheTTL() time.Duration {
	return duration(c.Cache.TTL, 45*time.Second)
}

func (c *Config) GetRedirectTTL() time.Duration {
	return duration(c.Cache.RedirectTTL, time.Minute)
}

func (c *Config) GetShutdownTimeout() time.Duration {
	return duration(c.Server.ShutdownTimeout, 15*time.Second)
}

func (c *Config) GetRateWindow() time.Duration {
	return duration(c.RateLimit.Window, time.Minute)
}

func (c *Config) GetSessionTTL() time.Duration {
	return duration(c.Auth.SessionTTL, 12*time.Hour)
}

// GetCertFee parses the per-certificate fee.
func (c *Config) GetCertFee() decimal.Decimal {
	d, err := decimal.NewFromString(c.Quotes.CertFee)
	if err != nil {
		return decimal.NewFromInt(350)
	}
	return d
}

func (c *Config) GetGSTRate() decimal.Decimal {
	d, err := decimal.NewFromString(c.Quotes.GSTRate)
	if err != nil {
		return decimal.RequireFromString("0.10")
	}
	return d
}

// GetLocation loads the quotes timezone, falling back to UTC.
func (c *Config) GetLocation() *time.Location {
	if c.Quotes.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Quotes.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ContactEmails splits the comma separated business inbox list.
func (c *Config) ContactEmails() []string {
	var out []string
	for _, e := range strings.Split(c.Mail.ContactEmail, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// MailEnabled reports whether SMTP delivery is configured.
func (c *Config) MailEnabled() bool {
	return c.Mail.Host != "" && c.Mail.FromEmail != ""
}

var validLevels = []string{"debug", "info", "warn", "error"}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid server port: %q", c.Server.Port)
	}
	if _, err := url.Parse(c.Server.PublicURL); err != nil || c.Server.PublicURL == "" {
		return fmt.Errorf("invalid public url: %q", c.Server.PublicURL)
	}
	if c.Quotes.ApprovalTTLDays <= 0 {
		return fmt.Errorf("approval_ttl_days must be positive, got %d", c.Quotes.ApprovalTTLDays)
	}
	if _, err := decimal.NewFromString(c.Quotes.CertFee); err != nil {
		return fmt.Errorf("invalid cert_fee %q: %w", c.Quotes.CertFee, err)
	}
	rate, err := decimal.NewFromString(c.Quotes.GSTRate)
	if err != nil || rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("invalid gst_rate %q", c.Quotes.GSTRate)
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("ratelimit requests must be positive, got %d", c.RateLimit.Requests)
	}
	if c.Mail.Host != "" && c.Mail.Port <= 0 {
		return fmt.Errorf("invalid smtp port: %d", c.Mail.Port)
	}
	level := strings.ToLower(c.Logging.Level)
	valid := false
	for _, l := range validLevels {
		if level == l {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, validLevels)
	}
	return nil
}
