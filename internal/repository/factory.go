package repository

import (
	"github.com/siteassist/billing-engine/internal/domain/coupon"
	"github.com/siteassist/billing-engine/internal/domain/invoice"
	"github.com/siteassist/billing-engine/internal/domain/payment"
	"github.com/siteassist/billing-engine/internal/domain/paymentlog"
	"github.com/siteassist/billing-engine/internal/domain/plan"
	"github.com/siteassist/billing-engine/internal/domain/subscription"
	"github.com/siteassist/billing-engine/internal/domain/tenant"
	"github.com/siteassist/billing-engine/internal/domain/usage"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/postgres"
	postgresRepo "github.com/siteassist/billing-engine/internal/repository/postgres"
)

func NewTenantRepository(db *postgres.DB, logger *logger.Logger) tenant.Repository {
	return postgresRepo.NewTenantRepository(db, logger)
}

func NewPlanRepository(db *postgres.DB, logger *logger.Logger) plan.Repository {
	return postgresRepo.NewPlanRepository(db, logger)
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return postgresRepo.NewSubscriptionRepository(db, logger)
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return postgresRepo.NewInvoiceRepository(db, logger)
}

func NewPaymentRepository(db *postgres.DB, logger *logger.Logger) payment.Repository {
	return postgresRepo.NewPaymentRepository(db, logger)
}

func NewPaymentLogRepository(db *postgres.DB, logger *logger.Logger) paymentlog.Repository {
	return postgresRepo.NewPaymentLogRepository(db, logger)
}

func NewCouponRepository(db *postgres.DB, logger *logger.Logger) coupon.Repository {
	return postgresRepo.NewCouponRepository(db, logger)
}

func NewUsageRepository(db *postgres.DB, logger *logger.Logger) usage.Repository {
	return postgresRepo.NewUsageRepository(db, logger)
}
