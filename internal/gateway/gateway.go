package gateway

import (
	"context"

	"github.com/yanun0323/errors"

	"main/internal/breaker"
	"main/pkg/exception"
)

// Operation types known to the breaker whitelist.
const (
	OpPlaceOrder  = "place_order"
	OpCancelOrder = "cancel_order"
	OpForceClose  = "force_close"
)

// Side is the order direction.
type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

// Order is one outbound order request.
type Order struct {
	Symbol    string
	Side      Side
	Qty       float64
	Price     float64
	Operation string
	Priority  breaker.Priority
}

// Submitter performs the actual exchange call.
type Submitter interface {
	Submit(ctx context.Context, o Order) error
}

// Gateway is the order-submission boundary: every outbound call passes its
// (priority, operation) through the breaker first, and its outcome feeds the
// breaker's failure history afterwards.
type Gateway struct {
	breaker   *breaker.Breaker
	submitter Submitter
}

// New wires a gateway to its breaker and submitter.
func New(b *breaker.Breaker, submitter Submitter) (*Gateway, error) {
	if b == nil || submitter == nil {
		return nil, exception.ErrNilSubmitter
	}
	return &Gateway{breaker: b, submitter: submitter}, nil
}

// Submit gates and executes one order call.
func (g *Gateway) Submit(ctx context.Context, o Order) error {
	if o.Operation == "" {
		o.Operation = OpPlaceOrder
	}
	if !g.breaker.Allow(o.Priority, o.Operation) {
		return errors.Wrap(exception.ErrOperationDenied, o.Operation)
	}

	if err := g.submitter.Submit(ctx, o); err != nil {
		g.breaker.ReportFailure()
		return errors.Wrap(err, "submit "+o.Operation)
	}
	g.breaker.ReportSuccess()
	return nil
}

// ForceClose submits a risk-reducing close. It is always CRITICAL and
// carries the whitelisted force-close operation type; tagging these orders
// any lower can leave a position open exactly when the exchange is failing.
func (g *Gateway) ForceClose(ctx context.Context, symbol string, side Side, qty float64) error {
	return g.Submit(ctx, Order{
		Symbol:    symbol,
		Side:      side,
		Qty:       qty,
		Operation: OpForceClose,
		Priority:  breaker.PriorityCritical,
	})
}
