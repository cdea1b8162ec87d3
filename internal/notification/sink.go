package notification

import (
	"context"

	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/types"
)

// Kind identifies the customer-facing notification being emitted.
type Kind string

const (
	KindTrialExpiring         Kind = "trial_expiring"
	KindTrialExpired          Kind = "trial_expired"
	KindRenewalUpcoming       Kind = "renewal_upcoming"
	KindRenewalSucceeded      Kind = "renewal_succeeded"
	KindRenewalFailed         Kind = "renewal_failed"
	KindPaymentFailed         Kind = "payment_failed"
	KindSubscriptionCancelled Kind = "subscription_cancelled"
	KindRefundIssued          Kind = "refund_issued"
)

// Notification is the payload handed to a sink. Delivery is one-way;
// notification state never feeds back into billing decisions.
type Notification struct {
	Kind           Kind
	TenantID       string
	SubscriptionID string
	InvoiceID      string
	PaymentID      string
	Data           map[string]string
}

// Sink delivers notifications to customers. Implementations must not
// block billing: errors are logged by callers and otherwise ignored.
type Sink interface {
	Notify(ctx context.Context, n *Notification)
}

// logSink is the default sink. It records the notification in the
// structured log, which downstream delivery pipelines tail.
type logSink struct {
	logger *logger.Logger
}

func NewLogSink(log *logger.Logger) Sink {
	return &logSink{logger: log}
}

func (s *logSink) Notify(ctx context.Context, n *Notification) {
	tenantID := n.TenantID
	if tenantID == "" {
		tenantID = types.GetTenantID(ctx)
	}
	s.logger.Infow("notification emitted",
		"kind", n.Kind,
		"tenant_id", tenantID,
		"subscription_id", n.SubscriptionID,
		"invoice_id", n.InvoiceID,
		"payment_id", n.PaymentID,
		"data", n.Data,
	)
}
