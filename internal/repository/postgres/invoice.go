package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/siteassist/billing-engine/internal/domain/invoice"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/postgres"
	"github.com/siteassist/billing-engine/internal/types"
)

type invoiceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{db: db, logger: logger}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO invoices (
			id,
			subscription_id,
			invoice_number,
			invoice_status,
			currency,
			subtotal,
			tax,
			discount,
			total,
			amount_paid,
			amount_due,
			period_start,
			period_end,
			gateway_invoice_id,
			paid_at,
			metadata,
			tenant_id,
			status,
			created_at,
			updated_at,
			created_by,
			updated_by
		) VALUES (
			:id,
			:subscription_id,
			:invoice_number,
			:invoice_status,
			:currency,
			:subtotal,
			:tax,
			:discount,
			:total,
			:amount_paid,
			:amount_due,
			:period_start,
			:period_end,
			:gateway_invoice_id,
			:paid_at,
			:metadata,
			:tenant_id,
			:status,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, inv)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create invoice").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	query := `
		SELECT * FROM invoices
		WHERE id = :id AND tenant_id = :tenant_id
	`

	return r.getOne(ctx, query, map[string]interface{}{
		"id":        id,
		"tenant_id": types.GetTenantID(ctx),
	})
}

func (r *invoiceRepository) GetByGatewayInvoiceID(ctx context.Context, gatewayInvoiceID string) (*invoice.Invoice, error) {
	// Webhook correlation lookup, not tenant scoped.
	query := `
		SELECT * FROM invoices
		WHERE gateway_invoice_id = :gateway_invoice_id
	`

	return r.getOne(ctx, query, map[string]interface{}{
		"gateway_invoice_id": gatewayInvoiceID,
	})
}

func (r *invoiceRepository) getOne(ctx context.Context, query string, params map[string]interface{}) (*invoice.Invoice, error) {
	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get invoice").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("invoice not found").
			WithHint("Invoice was not found").
			Mark(ierr.ErrNotFound)
	}

	var inv invoice.Invoice
	if err := rows.StructScan(&inv); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan invoice").
			Mark(ierr.ErrDatabase)
	}
	return &inv, nil
}

func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}

	inv.UpdatedAt = time.Now().UTC()
	inv.UpdatedBy = types.GetUserID(ctx)

	query := `
		UPDATE invoices SET
			invoice_status = :invoice_status,
			subtotal = :subtotal,
			tax = :tax,
			discount = :discount,
			total = :total,
			amount_paid = :amount_paid,
			amount_due = :amount_due,
			gateway_invoice_id = :gateway_invoice_id,
			paid_at = :paid_at,
			metadata = :metadata,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id
	`

	result, err := r.db.NamedExecContext(ctx, query, inv)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update invoice").
			Mark(ierr.ErrDatabase)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ierr.NewError("invoice not found").
			WithHintf("Invoice with ID %s was not found", inv.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *invoiceRepository) List(ctx context.Context, filter *types.Filter) ([]*invoice.Invoice, error) {
	query := `
		SELECT * FROM invoices
		WHERE tenant_id = :tenant_id
		ORDER BY created_at DESC
		LIMIT :limit OFFSET :offset
	`

	params := filter.ToMap()
	params["tenant_id"] = types.GetTenantID(ctx)

	return r.list(ctx, query, params)
}

func (r *invoiceRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]*invoice.Invoice, error) {
	query := `
		SELECT * FROM invoices
		WHERE subscription_id = :subscription_id AND tenant_id = :tenant_id
		ORDER BY created_at DESC
	`

	return r.list(ctx, query, map[string]interface{}{
		"subscription_id": subscriptionID,
		"tenant_id":       types.GetTenantID(ctx),
	})
}

func (r *invoiceRepository) list(ctx context.Context, query string, params map[string]interface{}) ([]*invoice.Invoice, error) {
	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list invoices").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var invoices []*invoice.Invoice
	for rows.Next() {
		var inv invoice.Invoice
		if err := rows.StructScan(&inv); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan invoice").
				Mark(ierr.ErrDatabase)
		}
		invoices = append(invoices, &inv)
	}
	return invoices, nil
}

func (r *invoiceRepository) Count(ctx context.Context, filter *types.Filter) (int, error) {
	query := `
		SELECT COUNT(*) FROM invoices
		WHERE tenant_id = :tenant_id
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count invoices").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, ierr.WithError(err).
				WithHint("Failed to scan invoice count").
				Mark(ierr.ErrDatabase)
		}
	}
	return count, nil
}

func (r *invoiceRepository) NextInvoiceNumber(ctx context.Context) (string, error) {
	// One counter row per tenant, locked by the upsert for the duration
	// of the surrounding transaction.
	query := `
		INSERT INTO invoice_sequences (tenant_id, last_value)
		VALUES (:tenant_id, 1)
		ON CONFLICT (tenant_id)
		DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to reserve invoice number").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var seq int64
	if !rows.Next() {
		return "", ierr.NewError("invoice sequence returned no row").
			WithHint("Failed to reserve invoice number").
			Mark(ierr.ErrDatabase)
	}
	if err := rows.Scan(&seq); err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to scan invoice sequence").
			Mark(ierr.ErrDatabase)
	}

	return fmt.Sprintf("%s%06d", types.SHORT_ID_PREFIX_INVOICE_NUMBER, seq), nil
}
