package stripe

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"golang.org/x/time/rate"

	"github.com/renewd/renewd/internal/config"
	"github.com/renewd/renewd/internal/domain/payment"
	ierr "github.com/renewd/renewd/internal/errors"
	"github.com/renewd/renewd/internal/logger"
)

// Gateway charges stored payment methods off-session through Stripe
// PaymentIntents. Every call is bounded by the configured gateway timeout
// and throttled by a shared rate limiter so a large dunning batch cannot
// trip Stripe's request limits.
type Gateway struct {
	client  *stripe.Client
	cfg     *config.BillingConfig
	limiter *rate.Limiter
	logger  *logger.Logger
}

// NewGateway creates a Stripe-backed payment gateway
func NewGateway(cfg *config.Configuration, logger *logger.Logger) payment.Gateway {
	return &Gateway{
		client:  stripe.NewClient(cfg.Stripe.SecretKey, nil),
		cfg:     &cfg.Billing,
		limiter: rate.NewLimiter(rate.Limit(25), 25),
		logger:  logger,
	}
}

func (g *Gateway) Charge(ctx context.Context, req *payment.ChargeRequest) (*payment.ChargeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.GatewayTimeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Gateway call timed out waiting for rate limit").
			Mark(ierr.ErrGatewayTransient)
	}

	amountInCents := req.Amount.Mul(decimal.NewFromInt(100)).IntPart()
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(amountInCents),
		Currency:      stripe.String(req.Currency),
		PaymentMethod: stripe.String(req.PaymentMethodRef),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}

	intent, err := g.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, g.classifyError(err, req.PaymentMethodRef)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, ierr.NewError("payment intent did not succeed").
			WithHint("The charge was not confirmed by the gateway").
			WithReportableDetails(map[string]any{
				"payment_intent_id": intent.ID,
				"status":            intent.Status,
			}).
			Mark(ierr.ErrGatewayTransient)
	}

	return &payment.ChargeResult{
		TransactionID: intent.ID,
		ChargedAt:     intentCreatedAt(intent),
	}, nil
}

func (g *Gateway) Refund(ctx context.Context, req *payment.RefundRequest) (*payment.RefundResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.GatewayTimeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Gateway call timed out waiting for rate limit").
			Mark(ierr.ErrGatewayTransient)
	}

	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(req.TransactionID),
	}
	if req.Amount.IsPositive() {
		params.Amount = stripe.Int64(req.Amount.Mul(decimal.NewFromInt(100)).IntPart())
	}

	refund, err := g.client.V1Refunds.Create(ctx, params)
	if err != nil {
		return nil, g.classifyError(err, req.PaymentMethodRef)
	}

	return &payment.RefundResult{
		RefundID:   refund.ID,
		RefundedAt: refundCreatedAt(refund),
	}, nil
}

func intentCreatedAt(intent *stripe.PaymentIntent) time.Time {
	if intent.Created > 0 {
		return time.Unix(intent.Created, 0).UTC()
	}
	return time.Now().UTC()
}

func refundCreatedAt(refund *stripe.Refund) time.Time {
	if refund.Created > 0 {
		return time.Unix(refund.Created, 0).UTC()
	}
	return time.Now().UTC()
}

// classifyError buckets gateway failures into hard declines and transient
// faults. Timeouts and anything unrecognized count as transient.
func (g *Gateway) classifyError(err error, paymentMethodRef string) error {
	if stripeErr, ok := err.(*stripe.Error); ok {
		switch stripeErr.Code {
		case stripe.ErrorCodeCardDeclined,
			stripe.ErrorCodeExpiredCard,
			stripe.ErrorCodeIncorrectCVC,
			stripe.ErrorCodeIncorrectNumber:
			return ierr.WithError(err).
				WithHint("The saved payment method was declined").
				WithReportableDetails(map[string]any{
					"payment_method_ref": paymentMethodRef,
					"stripe_error_code":  stripeErr.Code,
				}).
				Mark(ierr.ErrGatewayDeclined)
		}
	}

	g.logger.Errorw("stripe gateway call failed",
		"error", err,
		"payment_method_ref", paymentMethodRef)

	return ierr.WithError(err).
		WithHint("Unable to reach the payment gateway").
		WithReportableDetails(map[string]any{
			"payment_method_ref": paymentMethodRef,
		}).
		Mark(ierr.ErrGatewayTransient)
}
