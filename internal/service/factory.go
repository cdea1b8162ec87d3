package service

import (
	"github.com/siteassist/billing-engine/internal/config"
	"github.com/siteassist/billing-engine/internal/domain/coupon"
	"github.com/siteassist/billing-engine/internal/domain/invoice"
	"github.com/siteassist/billing-engine/internal/domain/payment"
	"github.com/siteassist/billing-engine/internal/domain/paymentlog"
	"github.com/siteassist/billing-engine/internal/domain/plan"
	"github.com/siteassist/billing-engine/internal/domain/subscription"
	"github.com/siteassist/billing-engine/internal/domain/tenant"
	"github.com/siteassist/billing-engine/internal/domain/usage"
	"github.com/siteassist/billing-engine/internal/gateway"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/notification"
	"github.com/siteassist/billing-engine/internal/postgres"
)

// ServiceParams bundles the dependencies every service draws from.
// Constructed once at startup and shared.
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient

	// Repositories
	TenantRepo     tenant.Repository
	PlanRepo       plan.Repository
	SubRepo        subscription.Repository
	InvoiceRepo    invoice.Repository
	PaymentRepo    payment.Repository
	PaymentLogRepo paymentlog.Repository
	CouponRepo     coupon.Repository
	UsageRepo      usage.Repository

	// Gateways
	Gateways *gateway.Registry

	// Notifications
	Notifier notification.Sink
}

func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db *postgres.DB,
	tenantRepo tenant.Repository,
	planRepo plan.Repository,
	subRepo subscription.Repository,
	invoiceRepo invoice.Repository,
	paymentRepo payment.Repository,
	paymentLogRepo paymentlog.Repository,
	couponRepo coupon.Repository,
	usageRepo usage.Repository,
	gateways *gateway.Registry,
	notifier notification.Sink,
) ServiceParams {
	return ServiceParams{
		Logger:         logger,
		Config:         config,
		DB:             db,
		TenantRepo:     tenantRepo,
		PlanRepo:       planRepo,
		SubRepo:        subRepo,
		InvoiceRepo:    invoiceRepo,
		PaymentRepo:    paymentRepo,
		PaymentLogRepo: paymentLogRepo,
		CouponRepo:     couponRepo,
		UsageRepo:      usageRepo,
		Gateways:       gateways,
		Notifier:       notifier,
	}
}
