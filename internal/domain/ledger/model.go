package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/renewd/renewd/internal/types"
)

// Entry is one confirmed successful charge. Entries are append-only: the
// repository exposes no update or delete.
type Entry struct {
	// ID is the unique identifier for the ledger entry
	ID string `db:"id" json:"id"`

	// TenantID is the tenant that was charged
	TenantID string `db:"tenant_id" json:"tenant_id"`

	// Amount is the charged amount in the billing currency
	Amount decimal.Decimal `db:"amount" json:"amount"`

	// Currency is the three-letter ISO code the charge ran in
	Currency string `db:"currency" json:"currency"`

	// PlanRef is the plan selector the charge covered
	PlanRef types.PlanRef `db:"plan_ref" json:"plan_ref"`

	// PaymentMethodRef is the instrument token the charge used
	PaymentMethodRef string `db:"payment_method_ref" json:"payment_method_ref"`

	// BilledAt is when the charge was confirmed
	BilledAt time.Time `db:"billed_at" json:"billed_at"`

	// GatewayTransactionID is the external gateway transaction identifier
	GatewayTransactionID string `db:"gateway_transaction_id" json:"gateway_transaction_id"`

	types.BaseModel
}

func (Entry) TableName() string {
	return "ledger_entries"
}
