package participant

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/congo-pay/settlement/internal/ledger"
	"github.com/congo-pay/settlement/internal/money"
)

const defaultCurrency = "EUR"

var (
	// ErrInvalidInput is returned for requests failing validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRouteNotOwned is returned when an exchange names a route of another participant.
	ErrRouteNotOwned = errors.New("route does not belong to participant")
)

var networks = map[string]bool{
	ledger.NetworkStripeCard: true,
	ledger.NetworkStripeSDD:  true,
	ledger.NetworkMangoBank:  true,
	ledger.NetworkMangoWire:  true,
}

// Service manages participants and the instruments they pay and get paid with.
type Service struct {
	store ledger.Store
}

// NewService builds a participant service instance.
func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

// CreateInput captures data required to register a participant.
type CreateInput struct {
	Email         string
	GatewayUserID string
	Currency      string
}

// Create registers a participant with an empty balance.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.Participant, error) {
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return ledger.Participant{}, fmt.Errorf("%w: email: %v", ErrInvalidInput, err)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	if len(currency) != 3 {
		return ledger.Participant{}, fmt.Errorf("%w: currency %q", ErrInvalidInput, input.Currency)
	}
	return s.store.CreateParticipant(ctx, ledger.Participant{
		Email:         input.Email,
		GatewayUserID: strings.TrimSpace(input.GatewayUserID),
		Balance:       money.Zero(currency),
		Status:        ledger.ParticipantActive,
	})
}

// Get retrieves a participant.
func (s *Service) Get(ctx context.Context, id string) (ledger.Participant, error) {
	return s.store.Participant(ctx, id)
}

// Close marks the participant closed. Gateway outcomes crediting the balance reopen it.
func (s *Service) Close(ctx context.Context, id string) (ledger.Participant, error) {
	if err := s.store.SetParticipantStatus(ctx, id, ledger.ParticipantClosed); err != nil {
		return ledger.Participant{}, err
	}
	return s.store.Participant(ctx, id)
}

// RouteInput captures a new payment instrument.
type RouteInput struct {
	ParticipantID string
	Network       string
	RemoteUserID  string
	Address       string
}

// AddRoute stores a payment instrument for the participant.
func (s *Service) AddRoute(ctx context.Context, input RouteInput) (ledger.ExchangeRoute, error) {
	if !networks[input.Network] {
		return ledger.ExchangeRoute{}, fmt.Errorf("%w: network %q", ErrInvalidInput, input.Network)
	}
	if input.Address == "" || input.RemoteUserID == "" {
		return ledger.ExchangeRoute{}, fmt.Errorf("%w: address and remote_user_id are required", ErrInvalidInput)
	}
	return s.store.CreateRoute(ctx, ledger.ExchangeRoute{
		ParticipantID: input.ParticipantID,
		Network:       input.Network,
		RemoteUserID:  input.RemoteUserID,
		Address:       input.Address,
	})
}

// AccountInput captures a payee account at a gateway.
type AccountInput struct {
	ParticipantID string
	Provider      string
	RemoteID      string
}

// AddPaymentAccount stores a payee account, e.g. a Stripe connected account.
func (s *Service) AddPaymentAccount(ctx context.Context, input AccountInput) (ledger.PaymentAccount, error) {
	if input.Provider == "" || input.RemoteID == "" {
		return ledger.PaymentAccount{}, fmt.Errorf("%w: provider and remote_id are required", ErrInvalidInput)
	}
	return s.store.CreatePaymentAccount(ctx, ledger.PaymentAccount{
		ParticipantID: input.ParticipantID,
		Provider:      strings.ToLower(input.Provider),
		RemoteID:      input.RemoteID,
	})
}

// ExchangeInput records money about to move between the balance and a wallet
// gateway. A negative amount is a payout.
type ExchangeInput struct {
	ParticipantID string
	RouteID       string
	Amount        money.Money
	Fee           money.Money
}

// RecordExchange creates an exchange in the pre status. Payouts debit the
// balance right away; the returned exchange's Tag must be attached to the
// gateway resource so its notifications can be reconciled.
func (s *Service) RecordExchange(ctx context.Context, input ExchangeInput) (ledger.Exchange, error) {
	if input.Amount.IsZero() {
		return ledger.Exchange{}, fmt.Errorf("%w: amount must not be zero", ErrInvalidInput)
	}
	if input.Fee.IsNegative() {
		return ledger.Exchange{}, fmt.Errorf("%w: fee must not be negative", ErrInvalidInput)
	}
	if input.Fee.Currency != input.Amount.Currency {
		return ledger.Exchange{}, money.ErrCurrencyMismatch
	}
	p, err := s.store.Participant(ctx, input.ParticipantID)
	if err != nil {
		return ledger.Exchange{}, err
	}
	if p.Balance.Currency != "" && p.Balance.Currency != input.Amount.Currency {
		return ledger.Exchange{}, money.ErrCurrencyMismatch
	}
	route, err := s.store.Route(ctx, input.RouteID)
	if err != nil {
		return ledger.Exchange{}, err
	}
	if route.ParticipantID != p.ID {
		return ledger.Exchange{}, ErrRouteNotOwned
	}
	if route.IsStripe() {
		return ledger.Exchange{}, fmt.Errorf("%w: route %s is not a wallet gateway route", ErrInvalidInput, route.ID)
	}
	return s.store.RecordExchange(ctx, ledger.ExchangeInput{
		ParticipantID: p.ID,
		RouteID:       route.ID,
		Amount:        input.Amount,
		Fee:           input.Fee,
	})
}

// Exchange returns one of the participant's exchanges.
func (s *Service) Exchange(ctx context.Context, participantID, id string) (ledger.Exchange, error) {
	e, err := s.store.Exchange(ctx, id)
	if err != nil {
		return ledger.Exchange{}, err
	}
	if e.ParticipantID != participantID {
		return ledger.Exchange{}, fmt.Errorf("exchange %s: %w", id, ledger.ErrNotFound)
	}
	return e, nil
}
