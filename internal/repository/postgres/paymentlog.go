package postgres

import (
	"context"

	"github.com/siteassist/billing-engine/internal/domain/paymentlog"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/postgres"
	"github.com/siteassist/billing-engine/internal/types"
)

type paymentLogRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPaymentLogRepository(db *postgres.DB, logger *logger.Logger) paymentlog.Repository {
	return &paymentLogRepository{db: db, logger: logger}
}

func (r *paymentLogRepository) Create(ctx context.Context, l *paymentlog.Log) error {
	l.Request = paymentlog.Mask(l.Request)
	l.Response = paymentlog.Mask(l.Response)

	query := `
		INSERT INTO payment_logs (
			id,
			payment_id,
			gateway,
			action,
			status,
			gateway_reference,
			request,
			response,
			error_message,
			duration_ms,
			tenant_id,
			created_at,
			updated_at,
			created_by,
			updated_by
		) VALUES (
			:id,
			:payment_id,
			:gateway,
			:action,
			:status,
			:gateway_reference,
			:request,
			:response,
			:error_message,
			:duration_ms,
			:tenant_id,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, l)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create payment log").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *paymentLogRepository) ListByPayment(ctx context.Context, paymentID string) ([]*paymentlog.Log, error) {
	query := `
		SELECT * FROM payment_logs
		WHERE payment_id = :payment_id AND tenant_id = :tenant_id
		ORDER BY created_at ASC
	`

	return r.list(ctx, query, map[string]interface{}{
		"payment_id": paymentID,
		"tenant_id":  types.GetTenantID(ctx),
	})
}

func (r *paymentLogRepository) List(ctx context.Context, filter *types.Filter) ([]*paymentlog.Log, error) {
	query := `
		SELECT * FROM payment_logs
		WHERE tenant_id = :tenant_id
		ORDER BY created_at DESC
		LIMIT :limit OFFSET :offset
	`

	params := filter.ToMap()
	params["tenant_id"] = types.GetTenantID(ctx)

	return r.list(ctx, query, params)
}

func (r *paymentLogRepository) list(ctx context.Context, query string, params map[string]interface{}) ([]*paymentlog.Log, error) {
	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list payment logs").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var logs []*paymentlog.Log
	for rows.Next() {
		var l paymentlog.Log
		if err := rows.StructScan(&l); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan payment log").
				Mark(ierr.ErrDatabase)
		}
		logs = append(logs, &l)
	}
	return logs, nil
}
