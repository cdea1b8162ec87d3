package postgres

import (
	"context"
	"time"

	"github.com/siteassist/billing-engine/internal/domain/usage"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/postgres"
	"github.com/siteassist/billing-engine/internal/types"
)

type usageRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewUsageRepository(db *postgres.DB, logger *logger.Logger) usage.Repository {
	return &usageRepository{db: db, logger: logger}
}

func (r *usageRepository) Increment(ctx context.Context, rec *usage.Record, delta int64) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if delta <= 0 {
		return ierr.NewError("usage delta must be positive").
			WithHint("Usage increments must be greater than zero").
			Mark(ierr.ErrValidation)
	}

	// Single atomic upsert on (subscription_id, metric, period_start).
	// Concurrent increments serialize on the row, none are lost.
	query := `
		INSERT INTO usage_records (
			id,
			subscription_id,
			metric,
			quantity,
			period_start,
			period_end,
			tenant_id,
			status,
			created_at,
			updated_at,
			created_by,
			updated_by
		) VALUES (
			:id,
			:subscription_id,
			:metric,
			:quantity,
			:period_start,
			:period_end,
			:tenant_id,
			:status,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)
		ON CONFLICT (subscription_id, metric, period_start)
		DO UPDATE SET
			quantity = usage_records.quantity + excluded.quantity,
			updated_at = excluded.updated_at
	`

	rec.Quantity = delta
	rec.UpdatedAt = time.Now().UTC()

	_, err := r.db.NamedExecContext(ctx, query, rec)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to record usage").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *usageRepository) Get(ctx context.Context, subscriptionID string, metric types.Metric, periodStart time.Time) (*usage.Record, error) {
	query := `
		SELECT * FROM usage_records
		WHERE subscription_id = :subscription_id
		AND metric = :metric
		AND period_start = :period_start
		AND tenant_id = :tenant_id
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"subscription_id": subscriptionID,
		"metric":          metric,
		"period_start":    periodStart,
		"tenant_id":       types.GetTenantID(ctx),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get usage record").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("usage record not found").
			WithHint("No usage recorded for this metric in this period").
			Mark(ierr.ErrNotFound)
	}

	var rec usage.Record
	if err := rows.StructScan(&rec); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan usage record").
			Mark(ierr.ErrDatabase)
	}
	return &rec, nil
}

func (r *usageRepository) ListForPeriod(ctx context.Context, subscriptionID string, periodStart time.Time) ([]*usage.Record, error) {
	query := `
		SELECT * FROM usage_records
		WHERE subscription_id = :subscription_id
		AND period_start = :period_start
		AND tenant_id = :tenant_id
		ORDER BY metric ASC
	`

	return r.list(ctx, query, map[string]interface{}{
		"subscription_id": subscriptionID,
		"period_start":    periodStart,
		"tenant_id":       types.GetTenantID(ctx),
	})
}

func (r *usageRepository) ListForSubscription(ctx context.Context, subscriptionID string) ([]*usage.Record, error) {
	query := `
		SELECT * FROM usage_records
		WHERE subscription_id = :subscription_id AND tenant_id = :tenant_id
		ORDER BY period_start DESC, metric ASC
	`

	return r.list(ctx, query, map[string]interface{}{
		"subscription_id": subscriptionID,
		"tenant_id":       types.GetTenantID(ctx),
	})
}

func (r *usageRepository) list(ctx context.Context, query string, params map[string]interface{}) ([]*usage.Record, error) {
	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list usage records").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var records []*usage.Record
	for rows.Next() {
		var rec usage.Record
		if err := rows.StructScan(&rec); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan usage record").
				Mark(ierr.ErrDatabase)
		}
		records = append(records, &rec)
	}
	return records, nil
}
