package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/settlement/internal/money"
)

var (
	// ErrInsufficientFunds occurs when a payout would take a participant's
	// balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidStatus is returned when a record cannot be created or moved in its current status.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidTag is returned for gateway tags that do not reference an exchange.
	ErrInvalidTag = errors.New("invalid exchange tag")

	// ErrSchemaNotReady is returned by Ready when ledger tables are missing.
	ErrSchemaNotReady = errors.New("ledger schema not ready")
)

// Checker is implemented by stores that can report whether their backend is
// reachable and migrated.
type Checker interface {
	Ready(ctx context.Context) error
}

const tagPrefix = "exchange:"

// ExchangeTag embeds an exchange id in a gateway tag.
func ExchangeTag(id string) string {
	return tagPrefix + id
}

// ParseExchangeTag extracts the exchange id from a tag built by ExchangeTag.
func ParseExchangeTag(tag string) (string, error) {
	id, ok := strings.CutPrefix(strings.TrimSpace(tag), tagPrefix)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTag, tag)
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTag, tag)
	}
	return id, nil
}

// Store defines the transactional contract implemented by storage backends
// (e.g. Postgres). Every mutating method is atomic; methods applying gateway
// outcomes lock the target row so concurrent deliveries serialize and the
// loser observes the already-terminal status.
type Store interface {
	CreateParticipant(ctx context.Context, p Participant) (Participant, error)
	Participant(ctx context.Context, id string) (Participant, error)
	SetParticipantStatus(ctx context.Context, id, status string) error

	CreateRoute(ctx context.Context, r ExchangeRoute) (ExchangeRoute, error)
	Route(ctx context.Context, id string) (ExchangeRoute, error)
	RouteFor(ctx context.Context, participantID, network string) (ExchangeRoute, error)

	CreatePaymentAccount(ctx context.Context, a PaymentAccount) (PaymentAccount, error)
	PaymentAccount(ctx context.Context, pk string) (PaymentAccount, error)

	CreatePayin(ctx context.Context, in PayinInput) (Payin, PayinTransfer, error)
	Payin(ctx context.Context, id string) (Payin, error)
	TransferForPayin(ctx context.Context, payinID string) (PayinTransfer, error)
	// UpdatePayin applies u unless the payin is already terminal. The bool
	// reports whether the row changed.
	UpdatePayin(ctx context.Context, u PayinUpdate) (Payin, bool, error)
	// UpdatePayinTransfer applies u unless the transfer is already terminal.
	// A transition to succeeded credits the destination account's owner.
	UpdatePayinTransfer(ctx context.Context, u TransferUpdate) (PayinTransfer, bool, error)
	// StalledTransfers lists transfers of succeeded payins that are still
	// waiting for their final update.
	StalledTransfers(ctx context.Context) ([]PayinTransfer, error)

	RecordExchange(ctx context.Context, in ExchangeInput) (Exchange, error)
	Exchange(ctx context.Context, id string) (Exchange, error)
	// EnsureRefund returns the refund exchange of a payout, creating it on first use.
	EnsureRefund(ctx context.Context, payoutID string) (Exchange, error)
	// RecordExchangeResult applies r unless the exchange is already terminal or
	// already in r.Status, propagating the balance change in the same transaction.
	RecordExchangeResult(ctx context.Context, r ExchangeResult) (Exchange, bool, error)
}

// exchangeDebit is the balance change applied when an exchange is recorded.
func exchangeDebit(e Exchange) money.Money {
	if !e.IsPayout() {
		return money.Zero(e.Amount.Currency)
	}
	// amount is negative; the fee is taken on top of it
	return money.New(e.Amount.Amount.Sub(e.Fee.Amount), e.Amount.Currency)
}

// exchangeCredit is the balance change applied when an exchange reaches status.
func exchangeCredit(e Exchange, status string) money.Money {
	if e.IsPayout() {
		if status != StatusFailed {
			return money.Zero(e.Amount.Currency)
		}
		return money.New(e.Amount.Amount.Neg().Add(decimal.Max(e.Fee.Amount, decimal.Zero)), e.Amount.Currency)
	}
	if status != StatusSucceeded {
		return money.Zero(e.Amount.Currency)
	}
	return money.New(e.Amount.Amount.Sub(decimal.Min(e.Fee.Amount, decimal.Zero)), e.Amount.Currency)
}

func validPayinStatus(status string) bool {
	switch status {
	case StatusPre, StatusPending, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}
