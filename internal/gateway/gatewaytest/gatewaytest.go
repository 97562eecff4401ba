// Package gatewaytest provides in-memory gateways for tests. Both fakes honour
// idempotency keys the way the real gateways do: a repeated key replays the
// first response instead of creating a second object.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/congo-pay/settlement/internal/gateway"
)

// Charger is a fake marketplace gateway.
type Charger struct {
	mu sync.Mutex

	// Settle computes the settlement of a new succeeded charge. Defaults to
	// the charge amount with a zero fee. Failed and pending charges are
	// returned without one, as Stripe does.
	Settle func(req gateway.ChargeRequest) gateway.Settlement
	// Status of new charges, succeeded when empty.
	Status         string
	FailureMessage string
	FailureCode    string
	// ChargeErr and ReversalErr, when set, are returned instead of creating anything.
	ChargeErr   error
	ReversalErr error

	Charges   []gateway.ChargeRequest
	Reversals []gateway.ReversalRequest

	charges   map[string]gateway.ChargeResult
	reversals map[string]gateway.ReversalResult
}

// NewCharger returns a fake charging everything successfully.
func NewCharger() *Charger {
	return &Charger{
		charges:   make(map[string]gateway.ChargeResult),
		reversals: make(map[string]gateway.ReversalResult),
	}
}

// CreateCharge records req and returns the charge previously created with
// the same idempotency key, if any.
func (c *Charger) CreateCharge(_ context.Context, req gateway.ChargeRequest) (gateway.ChargeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ChargeErr != nil {
		return gateway.ChargeResult{}, c.ChargeErr
	}
	if res, ok := c.charges[req.IdempotencyKey]; ok {
		return res, nil
	}
	c.Charges = append(c.Charges, req)

	n := len(c.Charges)
	res := gateway.ChargeResult{
		ID:             fmt.Sprintf("ch_%d", n),
		Status:         c.Status,
		FailureMessage: c.FailureMessage,
		FailureCode:    c.FailureCode,
	}
	if res.Status == "" {
		res.Status = gateway.ChargeSucceeded
	}
	if res.Status == gateway.ChargeSucceeded {
		res.Settlement = gateway.Settlement{Amount: req.Amount, Currency: req.Currency}
		if c.Settle != nil {
			res.Settlement = c.Settle(req)
		}
	}
	if req.Destination != "" {
		res.TransferID = fmt.Sprintf("tr_%d", n)
	}
	c.charges[req.IdempotencyKey] = res
	return res, nil
}

// ReverseTransfer records req and replays earlier reversals with the same key.
func (c *Charger) ReverseTransfer(_ context.Context, req gateway.ReversalRequest) (gateway.ReversalResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReversalErr != nil {
		return gateway.ReversalResult{}, c.ReversalErr
	}
	if res, ok := c.reversals[req.IdempotencyKey]; ok {
		return res, nil
	}
	c.Reversals = append(c.Reversals, req)
	res := gateway.ReversalResult{ID: fmt.Sprintf("trr_%d", len(c.Reversals))}
	c.reversals[req.IdempotencyKey] = res
	return res, nil
}

// SetChargeErr changes the charge failure under the fake's lock.
func (c *Charger) SetChargeErr(err error) {
	c.mu.Lock()
	c.ChargeErr = err
	c.mu.Unlock()
}

// SetReversalErr changes the reversal failure under the fake's lock.
func (c *Charger) SetReversalErr(err error) {
	c.mu.Lock()
	c.ReversalErr = err
	c.mu.Unlock()
}

// Fetcher is a fake wallet gateway serving resources registered by the test.
type Fetcher struct {
	mu      sync.Mutex
	payouts map[string]gateway.Payout
	refunds map[string]gateway.Refund
	payins  map[string]gateway.Payin

	// Err, when set, fails every fetch.
	Err error
	// Calls counts fetches, whatever their outcome.
	Calls int
}

// NewFetcher returns an empty fake fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{
		payouts: make(map[string]gateway.Payout),
		refunds: make(map[string]gateway.Refund),
		payins:  make(map[string]gateway.Payin),
	}
}

func (f *Fetcher) PutPayout(p gateway.Payout) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payouts[p.ID] = p
}

func (f *Fetcher) PutRefund(r gateway.Refund) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds[r.ID] = r
}

func (f *Fetcher) PutPayin(p gateway.Payin) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payins[p.ID] = p
}

func (f *Fetcher) Payout(_ context.Context, id string) (gateway.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return gateway.Payout{}, f.Err
	}
	p, ok := f.payouts[id]
	if !ok {
		return gateway.Payout{}, fmt.Errorf("payout %s: %w", id, gateway.ErrNotFound)
	}
	return p, nil
}

func (f *Fetcher) Refund(_ context.Context, id string) (gateway.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return gateway.Refund{}, f.Err
	}
	r, ok := f.refunds[id]
	if !ok {
		return gateway.Refund{}, fmt.Errorf("refund %s: %w", id, gateway.ErrNotFound)
	}
	return r, nil
}

func (f *Fetcher) Payin(_ context.Context, id string) (gateway.Payin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return gateway.Payin{}, f.Err
	}
	p, ok := f.payins[id]
	if !ok {
		return gateway.Payin{}, fmt.Errorf("payin %s: %w", id, gateway.ErrNotFound)
	}
	return p, nil
}
