package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier sends messages and audits every attempt.
type Notifier struct {
	mailer Mailer
	audit  *AuditLog
	logger *zap.Logger
}

func NewNotifier(mailer Mailer, audit *AuditLog, logger *zap.Logger) *Notifier {
	if mailer == nil {
		mailer = NopMailer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{mailer: mailer, audit: audit, logger: logger}
}

// Deliver sends msg and records the outcome under route. The send error is
// returned after it has been audited.
func (n *Notifier) Deliver(ctx context.Context, route, quoteNumber string, msg Message) error {
	err := n.mailer.Send(ctx, msg)
	entry := LogEntry{
		QuoteNumber: quoteNumber,
		Recipient:   msg.Recipients(),
		Subject:     msg.Subject,
		Status:      StatusSent,
		Route:       route,
	}
	if err != nil {
		entry.Status = StatusFailed
		entry.ErrorMessage = err.Error()
		n.logger.Warn("email send failed",
			zap.String("route", route), zap.String("quote_number", quoteNumber),
			zap.String("recipient", entry.Recipient), zap.Error(err))
	} else {
		n.logger.Info("email sent",
			zap.String("route", route), zap.String("quote_number", quoteNumber),
			zap.String("recipient", entry.Recipient))
	}
	if n.audit != nil {
		n.audit.Record(context.WithoutCancel(ctx), entry)
	}
	return err
}

// Audit exposes the audit log for admin views.
func (n *Notifier) Audit() *AuditLog { return n.audit }
