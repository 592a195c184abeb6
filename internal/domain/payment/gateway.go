package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ChargeRequest charges a stored payment instrument off-session
type ChargeRequest struct {
	// PaymentMethodRef is the opaque token for the stored instrument
	PaymentMethodRef string
	// Amount is the charge amount in the given currency
	Amount decimal.Decimal
	// Currency is the three-letter ISO code, lowercase
	Currency string
	// IdempotencyKey dedupes retried requests at the gateway
	IdempotencyKey string
}

// ChargeResult is the confirmation of a successful charge
type ChargeResult struct {
	// TransactionID is the gateway's identifier for the transaction
	TransactionID string
	// ChargedAt is when the gateway confirmed the charge
	ChargedAt time.Time
}

// RefundRequest reverses a prior charge through the same instrument
type RefundRequest struct {
	// TransactionID is the gateway transaction being refunded
	TransactionID string
	// PaymentMethodRef is the instrument the original charge used
	PaymentMethodRef string
	// Amount is the refund amount; zero means full refund
	Amount decimal.Decimal
	// Currency is the three-letter ISO code, lowercase
	Currency string
}

// RefundResult is the confirmation of a refund
type RefundResult struct {
	RefundID   string
	RefundedAt time.Time
}

// Gateway is the payment gateway adapter contract. Failures are explicit
// errors marked with ierr.ErrGatewayTransient or ierr.ErrGatewayDeclined so
// callers branch on the classification exhaustively; a timeout is a
// transient failure like any other.
type Gateway interface {
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error)
}
