package postgres

import (
	"context"
	"time"

	"github.com/siteassist/billing-engine/internal/domain/payment"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/postgres"
	"github.com/siteassist/billing-engine/internal/types"
)

type paymentRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPaymentRepository(db *postgres.DB, logger *logger.Logger) payment.Repository {
	return &paymentRepository{db: db, logger: logger}
}

func (r *paymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if err := p.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO payments (
			id,
			invoice_id,
			payment_reference,
			idempotency_key,
			gateway,
			payment_status,
			currency,
			amount,
			amount_refunded,
			gateway_order_id,
			gateway_payment_id,
			failure_reason,
			succeeded_at,
			failed_at,
			metadata,
			tenant_id,
			status,
			created_at,
			updated_at,
			created_by,
			updated_by
		) VALUES (
			:id,
			:invoice_id,
			:payment_reference,
			:idempotency_key,
			:gateway,
			:payment_status,
			:currency,
			:amount,
			:amount_refunded,
			:gateway_order_id,
			:gateway_payment_id,
			:failure_reason,
			:succeeded_at,
			:failed_at,
			:metadata,
			:tenant_id,
			:status,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("A payment with this idempotency key already exists").
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create payment").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (*payment.Payment, error) {
	query := `
		SELECT * FROM payments
		WHERE id = :id AND tenant_id = :tenant_id
	`

	return r.getOne(ctx, query, map[string]interface{}{
		"id":        id,
		"tenant_id": types.GetTenantID(ctx),
	})
}

func (r *paymentRepository) GetByPaymentReference(ctx context.Context, reference string) (*payment.Payment, error) {
	query := `
		SELECT * FROM payments
		WHERE payment_reference = :payment_reference
	`

	return r.getOne(ctx, query, map[string]interface{}{
		"payment_reference": reference,
	})
}

func (r *paymentRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*payment.Payment, error) {
	// Webhook correlation lookup, not tenant scoped.
	query := `
		SELECT * FROM payments
		WHERE gateway_order_id = :gateway_order_id
	`

	return r.getOne(ctx, query, map[string]interface{}{
		"gateway_order_id": gatewayOrderID,
	})
}

func (r *paymentRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*payment.Payment, error) {
	// Webhook correlation lookup, not tenant scoped.
	query := `
		SELECT * FROM payments
		WHERE gateway_payment_id = :gateway_payment_id
	`

	return r.getOne(ctx, query, map[string]interface{}{
		"gateway_payment_id": gatewayPaymentID,
	})
}

func (r *paymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error) {
	query := `
		SELECT * FROM payments
		WHERE idempotency_key = :idempotency_key AND tenant_id = :tenant_id
	`

	return r.getOne(ctx, query, map[string]interface{}{
		"idempotency_key": key,
		"tenant_id":       types.GetTenantID(ctx),
	})
}

func (r *paymentRepository) getOne(ctx context.Context, query string, params map[string]interface{}) (*payment.Payment, error) {
	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get payment").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("payment not found").
			WithHint("Payment was not found").
			Mark(ierr.ErrNotFound)
	}

	var p payment.Payment
	if err := rows.StructScan(&p); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan payment").
			Mark(ierr.ErrDatabase)
	}
	return &p, nil
}

func (r *paymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	p.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE payments SET
			payment_status = :payment_status,
			amount_refunded = :amount_refunded,
			gateway_order_id = :gateway_order_id,
			gateway_payment_id = :gateway_payment_id,
			failure_reason = :failure_reason,
			succeeded_at = :succeeded_at,
			failed_at = :failed_at,
			metadata = :metadata,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id
	`

	result, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update payment").
			Mark(ierr.ErrDatabase)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ierr.NewError("payment not found").
			WithHintf("Payment with ID %s was not found", p.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *paymentRepository) List(ctx context.Context, filter *types.Filter) ([]*payment.Payment, error) {
	query := `
		SELECT * FROM payments
		WHERE tenant_id = :tenant_id
		ORDER BY created_at DESC
		LIMIT :limit OFFSET :offset
	`

	params := filter.ToMap()
	params["tenant_id"] = types.GetTenantID(ctx)

	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list payments").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var payments []*payment.Payment
	for rows.Next() {
		var p payment.Payment
		if err := rows.StructScan(&p); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan payment").
				Mark(ierr.ErrDatabase)
		}
		payments = append(payments, &p)
	}
	return payments, nil
}

func (r *paymentRepository) Count(ctx context.Context, filter *types.Filter) (int, error) {
	query := `
		SELECT COUNT(*) FROM payments
		WHERE tenant_id = :tenant_id
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count payments").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, ierr.WithError(err).
				WithHint("Failed to scan payment count").
				Mark(ierr.ErrDatabase)
		}
	}
	return count, nil
}

func (r *paymentRepository) CreateRefund(ctx context.Context, ref *payment.Refund) error {
	query := `
		INSERT INTO payment_refunds (
			id,
			payment_id,
			amount,
			currency,
			gateway_refund_id,
			reason,
			tenant_id,
			status,
			created_at,
			updated_at,
			created_by,
			updated_by
		) VALUES (
			:id,
			:payment_id,
			:amount,
			:currency,
			:gateway_refund_id,
			:reason,
			:tenant_id,
			:status,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, ref)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create refund").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *paymentRepository) ListRefunds(ctx context.Context, paymentID string) ([]*payment.Refund, error) {
	query := `
		SELECT * FROM payment_refunds
		WHERE payment_id = :payment_id AND tenant_id = :tenant_id
		ORDER BY created_at ASC
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"payment_id": paymentID,
		"tenant_id":  types.GetTenantID(ctx),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list refunds").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var refunds []*payment.Refund
	for rows.Next() {
		var ref payment.Refund
		if err := rows.StructScan(&ref); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan refund").
				Mark(ierr.ErrDatabase)
		}
		refunds = append(refunds, &ref)
	}
	return refunds, nil
}
