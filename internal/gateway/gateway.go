package gateway

import (
	"context"
	"fmt"
)

// Charge statuses reported by the marketplace gateway.
const (
	ChargeSucceeded = "succeeded"
	ChargePending   = "pending"
	ChargeFailed    = "failed"
)

// Charger represents a connector to the marketplace gateway that places
// destination charges and reverses part of the resulting transfer.
type Charger interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	ReverseTransfer(ctx context.Context, req ReversalRequest) (ReversalResult, error)
}

// ChargeRequest carries amounts in gateway minor units.
type ChargeRequest struct {
	Amount   int64
	Currency string // lower case
	Customer string
	Source   string
	// Destination is the connected account receiving the transfer. Empty
	// means the charge stays on the platform account.
	Destination         string
	Metadata            map[string]string
	StatementDescriptor string
	IdempotencyKey      string
}

// ChargeResult is the validated outcome of a charge.
type ChargeResult struct {
	ID             string
	Status         string
	FailureMessage string
	FailureCode    string
	// TransferID is set when the charge designated a destination.
	TransferID string
	Settlement Settlement
}

// FailureText describes a charge the gateway accepted but marked failed.
// It is empty for any other status.
func (r ChargeResult) FailureText() string {
	if r.Status != ChargeFailed {
		return ""
	}
	return fmt.Sprintf("%s (code %s)", r.FailureMessage, r.FailureCode)
}

// Settlement is the balance record of a charge, in minor units of Currency.
type Settlement struct {
	Amount   int64
	Fee      int64
	Currency string
}

// ReversalRequest moves Amount back from a transfer's destination.
type ReversalRequest struct {
	TransferID     string
	Amount         int64
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// ReversalResult identifies the reversal created at the gateway.
type ReversalResult struct {
	ID string
}

// Resource statuses reported by the wallet gateway.
const (
	ResourceCreated   = "CREATED"
	ResourceSucceeded = "SUCCEEDED"
	ResourceFailed    = "FAILED"
)

// ResourceFetcher retrieves the authoritative state of wallet gateway resources.
type ResourceFetcher interface {
	Payout(ctx context.Context, id string) (Payout, error)
	Refund(ctx context.Context, id string) (Refund, error)
	Payin(ctx context.Context, id string) (Payin, error)
}

// Payout is a bank-wire payout to a participant's bank account.
type Payout struct {
	ID            string
	AuthorID      string
	Status        string
	ResultCode    string
	ResultMessage string
	Tag           string
}

// Refund reverses a payout. Its tag lives on the initial payout.
type Refund struct {
	ID                   string
	AuthorID             string
	Status               string
	ResultCode           string
	ResultMessage        string
	InitialTransactionID string
	ReasonMessage        string
	DebitedFunds         int64
	Fees                 int64
	Currency             string
}

// Payin is an inbound payment, e.g. a bank wire.
type Payin struct {
	ID            string
	AuthorID      string
	Status        string
	ResultCode    string
	ResultMessage string
	PaymentType   string
	Tag           string
}
