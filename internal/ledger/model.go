package ledger

import (
	"strings"
	"time"

	"github.com/congo-pay/settlement/internal/money"
)

const (
	StatusPre       = "pre"
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"

	ParticipantActive = "active"
	ParticipantClosed = "closed"
)

// Exchange route networks.
const (
	NetworkStripeCard = "stripe-card"
	NetworkStripeSDD  = "stripe-sdd"
	NetworkMangoBank  = "mango-ba"
	NetworkMangoWire  = "mango-bw"
)

// IsTerminal reports whether a payin, transfer or exchange status may no longer change.
func IsTerminal(status string) bool {
	return status == StatusSucceeded || status == StatusFailed
}

// Participant holds the authoritative running balance of a user.
type Participant struct {
	ID            string
	Email         string
	GatewayUserID string
	Balance       money.Money
	Status        string
	CreatedAt     time.Time
}

// ExchangeRoute is a stored payment instrument. Routes are never mutated.
type ExchangeRoute struct {
	ID            string
	ParticipantID string
	Network       string
	RemoteUserID  string
	Address       string
	CreatedAt     time.Time
}

// IsStripe reports whether the route can fund a Stripe charge.
func (r ExchangeRoute) IsStripe() bool {
	return strings.HasPrefix(r.Network, "stripe-")
}

// PaymentAccount is a payee's account at a gateway, e.g. a Stripe connected account.
type PaymentAccount struct {
	PK            string
	ParticipantID string
	Provider      string
	RemoteID      string
	CreatedAt     time.Time
}

// Payin is a charge of a payer through a route.
type Payin struct {
	ID            string
	PayerID       string
	RouteID       string
	Amount        money.Money
	Status        string
	RemoteID      string
	Error         string
	AmountSettled *money.Money
	Fee           *money.Money
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PayinTransfer is the net amount of a payin moved onward to a payee.
type PayinTransfer struct {
	ID          string
	PayinID     string
	Destination string
	Amount      money.Money
	Status      string
	RemoteID    string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Exchange is a payout (negative amount), payin (positive amount) or refund
// moving money between a participant's balance and a wallet gateway.
type Exchange struct {
	ID            string
	ParticipantID string
	RouteID       string
	Amount        money.Money
	Fee           money.Money
	Status        string
	RemoteID      string
	Note          string
	RefundRef     string
	CreatedAt     time.Time
}

// IsPayout reports whether the exchange moves money out of the participant's balance.
func (e Exchange) IsPayout() bool {
	return e.Amount.IsNegative()
}

// Tag is the opaque string attached to the gateway resource for this exchange.
func (e Exchange) Tag() string {
	return ExchangeTag(e.ID)
}

// PayinUpdate is a gateway outcome for a payin.
type PayinUpdate struct {
	ID            string
	RemoteID      string
	Status        string
	Error         string
	AmountSettled *money.Money
	Fee           *money.Money
}

// TransferUpdate is a gateway outcome for a payin transfer. A nil Amount keeps the stored amount.
type TransferUpdate struct {
	ID       string
	RemoteID string
	Status   string
	Error    string
	Amount   *money.Money
}

// ExchangeInput creates an exchange in the pre status.
type ExchangeInput struct {
	ParticipantID string
	RouteID       string
	Amount        money.Money
	Fee           money.Money
	RefundRef     string
}

// ExchangeResult is a gateway outcome for an exchange.
type ExchangeResult struct {
	ID       string
	RemoteID string
	Status   string
	Error    string
	// Reopen sets the participant back to active when the result is applied.
	Reopen bool
}

// PayinInput creates a payin and its single transfer in the pre status.
type PayinInput struct {
	PayerID     string
	RouteID     string
	Amount      money.Money
	Destination string
}
