package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"main/internal/breaker"
	"main/pkg/exception"
)

type scriptSubmitter struct {
	errs      []error
	submitted []Order
}

func (s *scriptSubmitter) Submit(_ context.Context, o Order) error {
	s.submitted = append(s.submitted, o)
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func newBreaker(t *testing.T, bypass ...string) *breaker.Breaker {
	t.Helper()
	cfg := breaker.DefaultConfig()
	cfg.Bypass = bypass
	b, err := breaker.New(cfg)
	require.NoError(t, err)
	return b
}

func TestGatewayValidation(t *testing.T) {
	if _, err := New(nil, &scriptSubmitter{}); err == nil {
		t.Fatal("nil breaker should be rejected")
	}
	if _, err := New(newBreaker(t), nil); err == nil {
		t.Fatal("nil submitter should be rejected")
	}
}

func TestGatewayFeedsBreakerHistory(t *testing.T) {
	b := newBreaker(t)
	sub := &scriptSubmitter{errs: []error{
		errors.New("exchange 502"),
		errors.New("exchange 502"),
	}}
	g, err := New(b, sub)
	require.NoError(t, err)

	require.Error(t, g.Submit(context.Background(), Order{Symbol: "BTCUSDT", Side: SideBuy, Qty: 1}))
	require.Error(t, g.Submit(context.Background(), Order{Symbol: "BTCUSDT", Side: SideBuy, Qty: 1}))
	assert.Equal(t, breaker.SeverityWarning, b.Severity())

	require.NoError(t, g.Submit(context.Background(), Order{Symbol: "BTCUSDT", Side: SideBuy, Qty: 1}))
	assert.Equal(t, breaker.SeverityNormal, b.Severity(), "a success resets the failure window")
}

func TestGatewayDeniedCallNeverReachesSubmitter(t *testing.T) {
	b := newBreaker(t)
	for i := 0; i < 4; i++ {
		b.ReportFailure()
	}
	require.Equal(t, breaker.SeverityThrottled, b.Severity())

	sub := &scriptSubmitter{}
	g, err := New(b, sub)
	require.NoError(t, err)

	err = g.Submit(context.Background(), Order{Symbol: "BTCUSDT", Side: SideSell, Qty: 1, Priority: breaker.PriorityNormal})
	require.ErrorIs(t, err, exception.ErrOperationDenied)
	assert.Empty(t, sub.submitted, "a denial is binding")
	assert.Equal(t, 4, b.Failures(), "a denied call is not a failure")
}

func TestGatewayForceCloseBypassesBlocked(t *testing.T) {
	b := newBreaker(t, OpForceClose)
	for i := 0; i < 5; i++ {
		b.ReportFailure()
	}
	require.Equal(t, breaker.SeverityBlocked, b.Severity())

	sub := &scriptSubmitter{}
	g, err := New(b, sub)
	require.NoError(t, err)

	// ordinary orders are shut out while blocked
	err = g.Submit(context.Background(), Order{Symbol: "BTCUSDT", Priority: breaker.PriorityHigh})
	require.ErrorIs(t, err, exception.ErrOperationDenied)

	// the risk-reducing close still goes through
	require.NoError(t, g.ForceClose(context.Background(), "BTCUSDT", SideSell, 0.5))
	require.Len(t, sub.submitted, 1)
	assert.Equal(t, OpForceClose, sub.submitted[0].Operation)
	assert.Equal(t, breaker.PriorityCritical, sub.submitted[0].Priority)
	assert.Equal(t, breaker.SeverityNormal, b.Severity(), "the successful close resets the breaker")
}

func TestGatewayDefaultsOperation(t *testing.T) {
	sub := &scriptSubmitter{}
	g, err := New(newBreaker(t), sub)
	require.NoError(t, err)

	require.NoError(t, g.Submit(context.Background(), Order{Symbol: "ETHUSDT", Side: SideBuy, Qty: 2}))
	require.Len(t, sub.submitted, 1)
	assert.Equal(t, OpPlaceOrder, sub.submitted[0].Operation)
}
