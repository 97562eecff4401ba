// Package stripe adapts the Stripe API to gateway.Charger.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/congo-pay/settlement/internal/gateway"
)

// Client places destination charges and transfer reversals through Stripe.
type Client struct {
	api *client.API
}

// New builds a client authenticated with the platform secret key.
func New(secretKey string, timeout time.Duration) *Client {
	httpClient := &http.Client{Timeout: timeout}
	backends := &stripego.Backends{
		API:     stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{HTTPClient: httpClient}),
		Connect: stripego.GetBackendWithConfig(stripego.ConnectBackend, &stripego.BackendConfig{HTTPClient: httpClient}),
		Uploads: stripego.GetBackendWithConfig(stripego.UploadsBackend, &stripego.BackendConfig{HTTPClient: httpClient}),
	}
	api := &client.API{}
	api.Init(secretKey, backends)
	return &Client{api: api}
}

// CreateCharge creates a charge, expanding its balance transaction so the
// settled amount and fee are known without a second request.
func (c *Client) CreateCharge(ctx context.Context, req gateway.ChargeRequest) (gateway.ChargeResult, error) {
	params := &stripego.ChargeParams{
		Amount:   stripego.Int64(req.Amount),
		Currency: stripego.String(req.Currency),
		Customer: stripego.String(req.Customer),
	}
	params.Context = ctx
	if err := params.SetSource(req.Source); err != nil {
		return gateway.ChargeResult{}, fmt.Errorf("charge source: %w", err)
	}
	if req.Destination != "" {
		params.Destination = &stripego.ChargeDestinationParams{Account: stripego.String(req.Destination)}
	}
	if req.StatementDescriptor != "" {
		params.StatementDescriptor = stripego.String(req.StatementDescriptor)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddExpand("balance_transaction")
	params.SetIdempotencyKey(req.IdempotencyKey)

	ch, err := c.api.Charges.New(params)
	if err != nil {
		return gateway.ChargeResult{}, convertError(err)
	}
	return toChargeResult(ch)
}

// ReverseTransfer reverses part of a destination transfer.
func (c *Client) ReverseTransfer(ctx context.Context, req gateway.ReversalRequest) (gateway.ReversalResult, error) {
	params := &stripego.TransferReversalParams{
		ID:          stripego.String(req.TransferID),
		Amount:      stripego.Int64(req.Amount),
		Description: stripego.String(req.Description),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey(req.IdempotencyKey)

	rev, err := c.api.TransferReversals.New(params)
	if err != nil {
		return gateway.ReversalResult{}, convertError(err)
	}
	return gateway.ReversalResult{ID: rev.ID}, nil
}

// toChargeResult reads the settlement from the expanded balance transaction.
// Failed and pending charges have none yet, so theirs is left empty.
func toChargeResult(ch *stripego.Charge) (gateway.ChargeResult, error) {
	res := gateway.ChargeResult{
		ID:             ch.ID,
		Status:         string(ch.Status),
		FailureMessage: ch.FailureMessage,
		FailureCode:    ch.FailureCode,
	}
	if ch.Transfer != nil {
		res.TransferID = ch.Transfer.ID
	}
	if ch.BalanceTransaction == nil {
		if ch.Status == stripego.ChargeStatusFailed || ch.Status == stripego.ChargeStatusPending {
			return res, nil
		}
		return gateway.ChargeResult{}, fmt.Errorf("charge %s: balance transaction not expanded", ch.ID)
	}
	res.Settlement = gateway.Settlement{
		Amount:   ch.BalanceTransaction.Amount,
		Fee:      ch.BalanceTransaction.Fee,
		Currency: string(ch.BalanceTransaction.Currency),
	}
	return res, nil
}

// convertError turns the errors Stripe uses for declines and invalid
// requests into business errors. Anything else is left as is.
func convertError(err error) error {
	var se *stripego.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Type {
	case stripego.ErrorTypeCard, stripego.ErrorTypeInvalidRequest, stripego.ErrorTypeIdempotency:
		return &gateway.BusinessError{
			Type:        string(se.Type),
			Code:        string(se.Code),
			UserMessage: se.Msg,
			Message:     se.Msg,
			RequestID:   se.RequestID,
			HTTPStatus:  se.HTTPStatusCode,
		}
	}
	return fmt.Errorf("stripe %s (request ID: %s): %w", se.Type, se.RequestID, err)
}
