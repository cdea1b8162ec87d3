package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/siteassist/billing-engine/internal/domain/subscription"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/postgres"
	"github.com/siteassist/billing-engine/internal/types"
)

type subscriptionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id,
			plan_id,
			subscription_status,
			billing_cycle,
			currency,
			start_date,
			current_period_start,
			current_period_end,
			trial_start,
			trial_end,
			cancelled_at,
			cancel_at,
			cancel_at_period_end,
			auto_pay_enabled,
			gateway,
			payment_method_id,
			gateway_customer_id,
			gateway_subscription_id,
			version,
			tenant_id,
			status,
			created_at,
			updated_at,
			created_by,
			updated_by
		) VALUES (
			:id,
			:plan_id,
			:subscription_status,
			:billing_cycle,
			:currency,
			:start_date,
			:current_period_start,
			:current_period_end,
			:trial_start,
			:trial_end,
			:cancelled_at,
			:cancel_at,
			:cancel_at_period_end,
			:auto_pay_enabled,
			:gateway,
			:payment_method_id,
			:gateway_customer_id,
			:gateway_subscription_id,
			:version,
			:tenant_id,
			:status,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, sub)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create subscription").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	query := `
		SELECT * FROM subscriptions
		WHERE id = :id AND tenant_id = :tenant_id
	`

	return r.getOne(ctx, query, map[string]interface{}{
		"id":        id,
		"tenant_id": types.GetTenantID(ctx),
	})
}

func (r *subscriptionRepository) GetActiveByTenant(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	query := `
		SELECT * FROM subscriptions
		WHERE tenant_id = :tenant_id AND subscription_status != :cancelled
		ORDER BY created_at DESC
		LIMIT 1
	`

	return r.getOne(ctx, query, map[string]interface{}{
		"tenant_id": tenantID,
		"cancelled": types.SubscriptionStatusCancelled,
	})
}

func (r *subscriptionRepository) GetByGatewaySubscriptionID(ctx context.Context, gatewayID string) (*subscription.Subscription, error) {
	// Webhook lookups run outside a tenant scope; the gateway-side id is
	// globally unique.
	query := `
		SELECT * FROM subscriptions
		WHERE gateway_subscription_id = :gateway_subscription_id
	`

	return r.getOne(ctx, query, map[string]interface{}{
		"gateway_subscription_id": gatewayID,
	})
}

func (r *subscriptionRepository) getOne(ctx context.Context, query string, params map[string]interface{}) (*subscription.Subscription, error) {
	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get subscription").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("subscription not found").
			WithHint("Subscription was not found").
			Mark(ierr.ErrNotFound)
	}

	var sub subscription.Subscription
	if err := rows.StructScan(&sub); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan subscription").
			Mark(ierr.ErrDatabase)
	}
	return &sub, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	sub.UpdatedBy = types.GetUserID(ctx)

	query := `
		UPDATE subscriptions SET
			plan_id = :plan_id,
			subscription_status = :subscription_status,
			billing_cycle = :billing_cycle,
			currency = :currency,
			current_period_start = :current_period_start,
			current_period_end = :current_period_end,
			trial_start = :trial_start,
			trial_end = :trial_end,
			cancelled_at = :cancelled_at,
			cancel_at = :cancel_at,
			cancel_at_period_end = :cancel_at_period_end,
			auto_pay_enabled = :auto_pay_enabled,
			gateway = :gateway,
			payment_method_id = :payment_method_id,
			gateway_customer_id = :gateway_customer_id,
			gateway_subscription_id = :gateway_subscription_id,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id
	`

	result, err := r.db.NamedExecContext(ctx, query, sub)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update subscription").
			Mark(ierr.ErrDatabase)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ierr.NewError("subscription not found").
			WithHintf("Subscription with ID %s was not found", sub.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *subscriptionRepository) UpdateWithVersion(ctx context.Context, sub *subscription.Subscription, expectedVersion int) error {
	sub.UpdatedAt = time.Now().UTC()

	// Compare-and-set on the version column. Zero rows affected means a
	// concurrent writer already advanced this subscription.
	query := `
		UPDATE subscriptions SET
			plan_id = :plan_id,
			subscription_status = :subscription_status,
			current_period_start = :current_period_start,
			current_period_end = :current_period_end,
			cancelled_at = :cancelled_at,
			cancel_at = :cancel_at,
			cancel_at_period_end = :cancel_at_period_end,
			version = :expected_version + 1,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id AND version = :expected_version
	`

	params := map[string]interface{}{
		"id":                   sub.ID,
		"plan_id":              sub.PlanID,
		"subscription_status":  sub.SubscriptionStatus,
		"current_period_start": sub.CurrentPeriodStart,
		"current_period_end":   sub.CurrentPeriodEnd,
		"cancelled_at":         sub.CancelledAt,
		"cancel_at":            sub.CancelAt,
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
		"expected_version":     expectedVersion,
		"updated_at":           sub.UpdatedAt,
		"updated_by":           sub.UpdatedBy,
		"tenant_id":            sub.TenantID,
	}

	result, err := r.db.NamedExecContext(ctx, query, params)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update subscription").
			Mark(ierr.ErrDatabase)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ierr.NewError("subscription version conflict").
			WithHint("Subscription was modified by another operation").
			WithReportableDetails(map[string]any{
				"subscription_id":  sub.ID,
				"expected_version": expectedVersion,
			}).
			Mark(ierr.ErrVersionConflict)
	}
	sub.Version = expectedVersion + 1
	return nil
}

func (r *subscriptionRepository) List(ctx context.Context, filter *types.SubscriptionFilter) ([]*subscription.Subscription, error) {
	query := `
		SELECT * FROM subscriptions
		WHERE tenant_id = :tenant_id
	`
	params := filter.ToMap()
	params["tenant_id"] = types.GetTenantID(ctx)

	if filter.PlanID != "" {
		query += " AND plan_id = :plan_id"
		params["plan_id"] = filter.PlanID
	}
	if len(filter.SubscriptionStatus) > 0 {
		query += " AND subscription_status = ANY(:subscription_status)"
		params["subscription_status"] = pq.Array(lo.Map(filter.SubscriptionStatus,
			func(s types.SubscriptionStatus, _ int) string { return string(s) }))
	}

	query += " ORDER BY created_at DESC LIMIT :limit OFFSET :offset"

	return r.list(ctx, query, params)
}

func (r *subscriptionRepository) Count(ctx context.Context, filter *types.SubscriptionFilter) (int, error) {
	query := `
		SELECT COUNT(*) FROM subscriptions
		WHERE tenant_id = :tenant_id
	`
	params := map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	}

	if filter.PlanID != "" {
		query += " AND plan_id = :plan_id"
		params["plan_id"] = filter.PlanID
	}
	if len(filter.SubscriptionStatus) > 0 {
		query += " AND subscription_status = ANY(:subscription_status)"
		params["subscription_status"] = pq.Array(lo.Map(filter.SubscriptionStatus,
			func(s types.SubscriptionStatus, _ int) string { return string(s) }))
	}

	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count subscriptions").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, ierr.WithError(err).
				WithHint("Failed to scan subscription count").
				Mark(ierr.ErrDatabase)
		}
	}
	return count, nil
}

func (r *subscriptionRepository) ListDueForRenewal(ctx context.Context, cutoff time.Time) ([]*subscription.Subscription, error) {
	// Scheduler sweep runs across all tenants. Trialing subscriptions
	// are included so a stored method converts the trial at its end.
	query := `
		SELECT * FROM subscriptions
		WHERE auto_pay_enabled = TRUE
		AND subscription_status IN (:active, :past_due, :trialing)
		AND cancel_at_period_end = FALSE
		AND current_period_end <= :cutoff
		ORDER BY current_period_end ASC
	`

	return r.list(ctx, query, map[string]interface{}{
		"active":   types.SubscriptionStatusActive,
		"past_due": types.SubscriptionStatusPastDue,
		"trialing": types.SubscriptionStatusTrialing,
		"cutoff":   cutoff,
	})
}

func (r *subscriptionRepository) ListPastBoundary(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	query := `
		SELECT * FROM subscriptions
		WHERE subscription_status != :cancelled
		AND (
			(subscription_status = :trialing AND trial_end <= :now)
			OR (cancel_at IS NOT NULL AND cancel_at <= :now)
			OR current_period_end <= :now
		)
		ORDER BY current_period_end ASC
	`

	return r.list(ctx, query, map[string]interface{}{
		"cancelled": types.SubscriptionStatusCancelled,
		"trialing":  types.SubscriptionStatusTrialing,
		"now":       now,
	})
}

func (r *subscriptionRepository) list(ctx context.Context, query string, params map[string]interface{}) ([]*subscription.Subscription, error) {
	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list subscriptions").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var subs []*subscription.Subscription
	for rows.Next() {
		var sub subscription.Subscription
		if err := rows.StructScan(&sub); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan subscription").
				Mark(ierr.ErrDatabase)
		}
		subs = append(subs, &sub)
	}
	return subs, nil
}

func (r *subscriptionRepository) AppendHistory(ctx context.Context, entry *subscription.HistoryEntry) error {
	query := `
		INSERT INTO subscription_history (
			id,
			subscription_id,
			tenant_id,
			event_type,
			from_status,
			to_status,
			from_plan_id,
			to_plan_id,
			reason,
			created_at,
			created_by
		) VALUES (
			:id,
			:subscription_id,
			:tenant_id,
			:event_type,
			:from_status,
			:to_status,
			:from_plan_id,
			:to_plan_id,
			:reason,
			:created_at,
			:created_by
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to append subscription history").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *subscriptionRepository) ListHistory(ctx context.Context, subscriptionID string) ([]*subscription.HistoryEntry, error) {
	query := `
		SELECT * FROM subscription_history
		WHERE subscription_id = :subscription_id AND tenant_id = :tenant_id
		ORDER BY created_at ASC
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"subscription_id": subscriptionID,
		"tenant_id":       types.GetTenantID(ctx),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list subscription history").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var entries []*subscription.HistoryEntry
	for rows.Next() {
		var entry subscription.HistoryEntry
		if err := rows.StructScan(&entry); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan subscription history entry").
				Mark(ierr.ErrDatabase)
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}
