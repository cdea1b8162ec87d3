package postgres

import (
	"context"
	"time"

	"github.com/siteassist/billing-engine/internal/domain/coupon"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/postgres"
	"github.com/siteassist/billing-engine/internal/types"
)

type couponRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewCouponRepository(db *postgres.DB, logger *logger.Logger) coupon.Repository {
	return &couponRepository{db: db, logger: logger}
}

func (r *couponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	if err := c.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO coupons (
			id,
			code,
			discount_type,
			amount,
			currency,
			max_redemptions,
			redemptions,
			valid_from,
			valid_until,
			tenant_id,
			status,
			created_at,
			updated_at,
			created_by,
			updated_by
		) VALUES (
			:id,
			:code,
			:discount_type,
			:amount,
			:currency,
			:max_redemptions,
			:redemptions,
			:valid_from,
			:valid_until,
			:tenant_id,
			:status,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, c)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return ierr.WithError(err).
				WithHintf("Coupon with code %s already exists", c.Code).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create coupon").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *couponRepository) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	query := `
		SELECT * FROM coupons
		WHERE id = :id AND tenant_id = :tenant_id
	`

	return r.getOne(ctx, query, map[string]interface{}{
		"id":        id,
		"tenant_id": types.GetTenantID(ctx),
	})
}

func (r *couponRepository) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	query := `
		SELECT * FROM coupons
		WHERE code = :code AND tenant_id = :tenant_id AND status != :deleted
	`

	return r.getOne(ctx, query, map[string]interface{}{
		"code":      code,
		"tenant_id": types.GetTenantID(ctx),
		"deleted":   types.StatusDeleted,
	})
}

func (r *couponRepository) getOne(ctx context.Context, query string, params map[string]interface{}) (*coupon.Coupon, error) {
	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get coupon").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("coupon not found").
			WithHint("Coupon was not found").
			Mark(ierr.ErrNotFound)
	}

	var c coupon.Coupon
	if err := rows.StructScan(&c); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan coupon").
			Mark(ierr.ErrDatabase)
	}
	return &c, nil
}

func (r *couponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	c.UpdatedAt = time.Now().UTC()
	c.UpdatedBy = types.GetUserID(ctx)

	query := `
		UPDATE coupons SET
			discount_type = :discount_type,
			amount = :amount,
			currency = :currency,
			max_redemptions = :max_redemptions,
			valid_from = :valid_from,
			valid_until = :valid_until,
			status = :status,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id
	`

	result, err := r.db.NamedExecContext(ctx, query, c)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update coupon").
			Mark(ierr.ErrDatabase)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ierr.NewError("coupon not found").
			WithHintf("Coupon with ID %s was not found", c.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *couponRepository) List(ctx context.Context, filter *types.Filter) ([]*coupon.Coupon, error) {
	query := `
		SELECT * FROM coupons
		WHERE tenant_id = :tenant_id AND status = :status
		ORDER BY created_at DESC
		LIMIT :limit OFFSET :offset
	`

	params := filter.ToMap()
	params["tenant_id"] = types.GetTenantID(ctx)
	params["status"] = filter.Status

	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list coupons").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var coupons []*coupon.Coupon
	for rows.Next() {
		var c coupon.Coupon
		if err := rows.StructScan(&c); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan coupon").
				Mark(ierr.ErrDatabase)
		}
		coupons = append(coupons, &c)
	}
	return coupons, nil
}

func (r *couponRepository) Count(ctx context.Context, filter *types.Filter) (int, error) {
	query := `
		SELECT COUNT(*) FROM coupons
		WHERE tenant_id = :tenant_id AND status = :status
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
		"status":    filter.Status,
	})
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count coupons").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, ierr.WithError(err).
				WithHint("Failed to scan coupon count").
				Mark(ierr.ErrDatabase)
		}
	}
	return count, nil
}

func (r *couponRepository) Redeem(ctx context.Context, couponID string, red *coupon.Redemption) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		// Guarded increment. The WHERE clause makes the cap check and the
		// bump one atomic statement, so concurrent redemptions of the last
		// slot cannot both pass.
		query := `
			UPDATE coupons SET
				redemptions = redemptions + 1,
				updated_at = :updated_at
			WHERE id = :id
			AND tenant_id = :tenant_id
			AND (max_redemptions IS NULL OR redemptions < max_redemptions)
		`

		result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
			"id":         couponID,
			"tenant_id":  types.GetTenantID(ctx),
			"updated_at": time.Now().UTC(),
		})
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to redeem coupon").
				Mark(ierr.ErrDatabase)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ierr.NewError("coupon redemption limit reached").
				WithHint("This coupon has no redemptions left").
				WithReportableDetails(map[string]any{"coupon_id": couponID}).
				Mark(ierr.ErrInvalidOperation)
		}

		insert := `
			INSERT INTO coupon_redemptions (
				id,
				coupon_id,
				subscription_id,
				invoice_id,
				amount,
				tenant_id,
				status,
				created_at,
				updated_at,
				created_by,
				updated_by
			) VALUES (
				:id,
				:coupon_id,
				:subscription_id,
				:invoice_id,
				:amount,
				:tenant_id,
				:status,
				:created_at,
				:updated_at,
				:created_by,
				:updated_by
			)
		`

		if _, err := r.db.NamedExecContext(ctx, insert, red); err != nil {
			return ierr.WithError(err).
				WithHint("Failed to record coupon redemption").
				Mark(ierr.ErrDatabase)
		}
		return nil
	})
}

func (r *couponRepository) ListRedemptions(ctx context.Context, couponID string) ([]*coupon.Redemption, error) {
	query := `
		SELECT * FROM coupon_redemptions
		WHERE coupon_id = :coupon_id AND tenant_id = :tenant_id
		ORDER BY created_at ASC
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"coupon_id": couponID,
		"tenant_id": types.GetTenantID(ctx),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list coupon redemptions").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var redemptions []*coupon.Redemption
	for rows.Next() {
		var red coupon.Redemption
		if err := rows.StructScan(&red); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan coupon redemption").
				Mark(ierr.ErrDatabase)
		}
		redemptions = append(redemptions, &red)
	}
	return redemptions, nil
}
