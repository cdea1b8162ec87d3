package tenant

import (
	"time"

	"github.com/siteassist/billing-engine/internal/types"
)

// Tenant is a customer account ("site"). Each tenant holds at most one
// non-cancelled subscription at a time.
type Tenant struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Status    types.Status `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
