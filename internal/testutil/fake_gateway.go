package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/renewd/renewd/internal/domain/payment"
	ierr "github.com/renewd/renewd/internal/errors"
)

// FakeGateway is a programmable payment.Gateway for tests. By default every
// charge and refund succeeds; tests flip it into transient or declined
// failure modes per call sequence.
type FakeGateway struct {
	mu sync.Mutex

	chargeCalls []*payment.ChargeRequest
	refundCalls []*payment.RefundRequest

	// chargeErrs is consumed one error per charge call; a nil entry means
	// that call succeeds. When the queue is empty, chargeErr applies.
	chargeErrs []error
	chargeErr  error
	refundErr  error

	now func() time.Time
}

var _ payment.Gateway = (*FakeGateway)(nil)

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (g *FakeGateway) Charge(ctx context.Context, req *payment.ChargeRequest) (*payment.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.chargeCalls = append(g.chargeCalls, req)

	var err error
	if len(g.chargeErrs) > 0 {
		err = g.chargeErrs[0]
		g.chargeErrs = g.chargeErrs[1:]
	} else {
		err = g.chargeErr
	}
	if err != nil {
		return nil, err
	}

	return &payment.ChargeResult{
		TransactionID: fmt.Sprintf("txn_%03d", len(g.chargeCalls)),
		ChargedAt:     g.now(),
	}, nil
}

func (g *FakeGateway) Refund(ctx context.Context, req *payment.RefundRequest) (*payment.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.refundCalls = append(g.refundCalls, req)

	if g.refundErr != nil {
		return nil, g.refundErr
	}

	return &payment.RefundResult{
		RefundID:   fmt.Sprintf("re_%03d", len(g.refundCalls)),
		RefundedAt: g.now(),
	}, nil
}

// FailTransient makes every subsequent charge fail with a transient error
func (g *FakeGateway) FailTransient() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chargeErr = ierr.NewError("gateway timeout").
		WithHint("The payment gateway did not respond in time").
		Mark(ierr.ErrGatewayTransient)
}

// FailDeclined makes every subsequent charge fail with a declined error
func (g *FakeGateway) FailDeclined() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chargeErr = ierr.NewError("card declined").
		WithHint("The card was declined").
		Mark(ierr.ErrGatewayDeclined)
}

// Succeed resets the gateway so every subsequent charge succeeds
func (g *FakeGateway) Succeed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chargeErr = nil
	g.chargeErrs = nil
}

// QueueChargeResults programs per-call outcomes, consumed in order. A nil
// entry means success for that call.
func (g *FakeGateway) QueueChargeResults(errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chargeErrs = append(g.chargeErrs, errs...)
}

// FailRefunds makes every subsequent refund fail with a transient error
func (g *FakeGateway) FailRefunds() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundErr = ierr.NewError("gateway timeout").
		WithHint("The payment gateway did not respond in time").
		Mark(ierr.ErrGatewayTransient)
}

// ChargeCalls returns the charge requests seen so far
func (g *FakeGateway) ChargeCalls() []*payment.ChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*payment.ChargeRequest{}, g.chargeCalls...)
}

// RefundCalls returns the refund requests seen so far
func (g *FakeGateway) RefundCalls() []*payment.RefundRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*payment.RefundRequest{}, g.refundCalls...)
}

// Reset clears recorded calls and programmed failures
func (g *FakeGateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chargeCalls = nil
	g.refundCalls = nil
	g.chargeErrs = nil
	g.chargeErr = nil
	g.refundErr = nil
}
