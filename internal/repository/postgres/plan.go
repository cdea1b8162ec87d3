package postgres

import (
	"context"
	"time"

	"github.com/siteassist/billing-engine/internal/domain/plan"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/postgres"
	"github.com/siteassist/billing-engine/internal/types"
)

type planRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPlanRepository(db *postgres.DB, logger *logger.Logger) plan.Repository {
	return &planRepository{db: db, logger: logger}
}

func (r *planRepository) Create(ctx context.Context, p *plan.Plan) error {
	query := `
		INSERT INTO plans (
			id,
			name,
			lookup_key,
			description,
			currency,
			monthly_price,
			annual_price,
			secondary_currency_enabled,
			secondary_currency,
			secondary_monthly_price,
			secondary_annual_price,
			trial_days,
			limits,
			active,
			public,
			tenant_id,
			status,
			created_at,
			updated_at,
			created_by,
			updated_by
		) VALUES (
			:id,
			:name,
			:lookup_key,
			:description,
			:currency,
			:monthly_price,
			:annual_price,
			:secondary_currency_enabled,
			:secondary_currency,
			:secondary_monthly_price,
			:secondary_annual_price,
			:trial_days,
			:limits,
			:active,
			:public,
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
		return ierr.WithError(err).
			WithHint("Failed to create plan").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *planRepository) Get(ctx context.Context, id string) (*plan.Plan, error) {
	query := `
		SELECT * FROM plans
		WHERE id = :id AND tenant_id = :tenant_id AND status != :deleted
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"id":        id,
		"tenant_id": types.GetTenantID(ctx),
		"deleted":   types.StatusDeleted,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get plan").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("plan not found").
			WithHintf("Plan with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}

	var p plan.Plan
	if err := rows.StructScan(&p); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan plan").
			Mark(ierr.ErrDatabase)
	}
	return &p, nil
}

func (r *planRepository) List(ctx context.Context, filter *types.PlanFilter) ([]*plan.Plan, error) {
	query := `
		SELECT * FROM plans
		WHERE tenant_id = :tenant_id AND status = :status
	`
	params := filter.ToMap()
	params["tenant_id"] = types.GetTenantID(ctx)
	params["status"] = filter.Status

	if filter.Active != nil {
		query += ` AND active = :active`
		params["active"] = *filter.Active
	}
	if filter.Public != nil {
		query += ` AND public = :public`
		params["public"] = *filter.Public
	}
	query += `
		ORDER BY created_at DESC
		LIMIT :limit OFFSET :offset
	`

	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list plans").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var plans []*plan.Plan
	for rows.Next() {
		var p plan.Plan
		if err := rows.StructScan(&p); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan plan").
				Mark(ierr.ErrDatabase)
		}
		plans = append(plans, &p)
	}
	return plans, nil
}

func (r *planRepository) Count(ctx context.Context, filter *types.PlanFilter) (int, error) {
	query := `
		SELECT COUNT(*) FROM plans
		WHERE tenant_id = :tenant_id AND status = :status
	`
	params := map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
		"status":    filter.Status,
	}

	if filter.Active != nil {
		query += ` AND active = :active`
		params["active"] = *filter.Active
	}
	if filter.Public != nil {
		query += ` AND public = :public`
		params["public"] = *filter.Public
	}

	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count plans").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, ierr.WithError(err).
				WithHint("Failed to scan plan count").
				Mark(ierr.ErrDatabase)
		}
	}
	return count, nil
}

func (r *planRepository) Update(ctx context.Context, p *plan.Plan) error {
	p.UpdatedAt = time.Now().UTC()
	p.UpdatedBy = types.GetUserID(ctx)

	query := `
		UPDATE plans SET
			name = :name,
			description = :description,
			currency = :currency,
			monthly_price = :monthly_price,
			annual_price = :annual_price,
			secondary_currency_enabled = :secondary_currency_enabled,
			secondary_currency = :secondary_currency,
			secondary_monthly_price = :secondary_monthly_price,
			secondary_annual_price = :secondary_annual_price,
			trial_days = :trial_days,
			limits = :limits,
			active = :active,
			public = :public,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id AND status != :deleted
	`

	params := map[string]interface{}{
		"id":                         p.ID,
		"name":                       p.Name,
		"description":                p.Description,
		"currency":                   p.Currency,
		"monthly_price":              p.MonthlyPrice,
		"annual_price":               p.AnnualPrice,
		"secondary_currency_enabled": p.SecondaryCurrencyEnabled,
		"secondary_currency":         p.SecondaryCurrency,
		"secondary_monthly_price":    p.SecondaryMonthlyPrice,
		"secondary_annual_price":     p.SecondaryAnnualPrice,
		"trial_days":                 p.TrialDays,
		"limits":                     p.Limits,
		"active":                     p.Active,
		"public":                     p.Public,
		"updated_at":                 p.UpdatedAt,
		"updated_by":                 p.UpdatedBy,
		"tenant_id":                  types.GetTenantID(ctx),
		"deleted":                    types.StatusDeleted,
	}

	result, err := r.db.NamedExecContext(ctx, query, params)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update plan").
			Mark(ierr.ErrDatabase)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ierr.NewError("plan not found").
			WithHintf("Plan with ID %s was not found", p.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *planRepository) Delete(ctx context.Context, id string) error {
	query := `
		UPDATE plans SET
			status = :status,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id
	`

	_, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"status":     types.StatusDeleted,
		"updated_at": time.Now().UTC(),
		"updated_by": types.GetUserID(ctx),
		"id":         id,
		"tenant_id":  types.GetTenantID(ctx),
	})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete plan").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
