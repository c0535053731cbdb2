package notify

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"erp/ecommerce/quote-storefront/internal/store"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// LogEntry is one send attempt.
type LogEntry struct {
	ID           string    `json:"id"`
	QuoteNumber  string    `json:"quote_number,omitempty"`
	Recipient    string    `json:"recipient"`
	Subject      string    `json:"subject"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Route        string    `json:"route"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditLog records email sends in email_logs. Writes never fail the caller.
type AuditLog struct {
	db     *sql.DB
	logger *zap.Logger

	memMu sync.RWMutex
	mem   []LogEntry
}

func NewAuditLog(db *sql.DB, logger *zap.Logger) *AuditLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLog{db: db, logger: logger}
}

var Schema = store.Schema{
	`CREATE TABLE IF NOT EXISTS email_logs (
		id UUID PRIMARY KEY,
		quote_number TEXT,
		recipient TEXT NOT NULL,
		subject TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('sent','failed')),
		error_message TEXT,
		route TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_email_logs_quote ON email_logs (quote_number, created_at DESC)`,
}

func (a *AuditLog) EnsureSchema(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return Schema.Apply(ctx, a.db)
}

// Record stores e, filling ID and CreatedAt.
func (a *AuditLog) Record(ctx context.Context, e LogEntry) {
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()
	if a.db == nil {
		a.memMu.Lock()
		a.mem = append(a.mem, e)
		a.memMu.Unlock()
		return
	}
	_, err := a.db.ExecContext(ctx, `INSERT INTO email_logs (id, quote_number, recipient, subject, status, error_message, route, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, store.NilIfEmpty(e.QuoteNumber), e.Recipient, e.Subject, e.Status,
		store.NilIfEmpty(e.ErrorMessage), e.Route, e.CreatedAt)
	if err != nil {
		a.logger.Warn("failed to record email log",
			zap.String("quote_number", e.QuoteNumber), zap.String("route", e.Route), zap.Error(err))
	}
}

// List returns the newest entries for a quote number, or for all quotes when
// quoteNumber is empty.
func (a *AuditLog) List(ctx context.Context, quoteNumber string, limit int) ([]LogEntry, error) {
	out := []LogEntry{}
	if a.db == nil {
		a.memMu.RLock()
		for _, e := range a.mem {
			if quoteNumber == "" || e.QuoteNumber == quoteNumber {
				out = append(out, e)
			}
		}
		a.memMu.RUnlock()
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
		if len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	}

	q := `SELECT id, quote_number, recipient, subject, status, error_message, route, created_at FROM email_logs`
	args := []any{}
	if quoteNumber != "" {
		q += ` WHERE quote_number = $1`
		args = append(args, quoteNumber)
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))
	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var e LogEntry
		var qn, msg sql.NullString
		if err := rows.Scan(&e.ID, &qn, &e.Recipient, &e.Subject, &e.Status, &msg, &e.Route, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.QuoteNumber = qn.String
		e.ErrorMessage = msg.String
		out = append(out, e)
	}
	return out, rows.Err()
}
