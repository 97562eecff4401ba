package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/settlement/internal/money"
)

type inMemoryStore struct {
	mu           sync.RWMutex
	participants map[string]Participant
	routes       map[string]ExchangeRoute
	accounts     map[string]PaymentAccount
	payins       map[string]Payin
	transfers    map[string]PayinTransfer
	exchanges    map[string]Exchange
	refunds      map[string]string
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests.
// A single mutex stands in for the row locks of the Postgres backend.
func NewInMemory() Store {
	return &inMemoryStore{
		participants: make(map[string]Participant),
		routes:       make(map[string]ExchangeRoute),
		accounts:     make(map[string]PaymentAccount),
		payins:       make(map[string]Payin),
		transfers:    make(map[string]PayinTransfer),
		exchanges:    make(map[string]Exchange),
		refunds:      make(map[string]string),
	}
}

// Ready always succeeds; there is nothing to connect to or migrate.
func (s *inMemoryStore) Ready(context.Context) error { return nil }

func (s *inMemoryStore) CreateParticipant(_ context.Context, p Participant) (Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := s.participants[p.ID]; exists {
		return Participant{}, fmt.Errorf("participant %s exists", p.ID)
	}
	if p.Status == "" {
		p.Status = ParticipantActive
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.participants[p.ID] = p
	return p, nil
}

func (s *inMemoryStore) Participant(_ context.Context, id string) (Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return Participant{}, fmt.Errorf("participant %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (s *inMemoryStore) SetParticipantStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return fmt.Errorf("participant %s: %w", id, ErrNotFound)
	}
	p.Status = status
	s.participants[id] = p
	return nil
}

func (s *inMemoryStore) CreateRoute(_ context.Context, r ExchangeRoute) (ExchangeRoute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[r.ParticipantID]; !ok {
		return ExchangeRoute{}, fmt.Errorf("participant %s: %w", r.ParticipantID, ErrNotFound)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now().UTC()
	s.routes[r.ID] = r
	return r, nil
}

func (s *inMemoryStore) Route(_ context.Context, id string) (ExchangeRoute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routes[id]
	if !ok {
		return ExchangeRoute{}, fmt.Errorf("route %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (s *inMemoryStore) RouteFor(_ context.Context, participantID, network string) (ExchangeRoute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found []ExchangeRoute
	for _, r := range s.routes {
		if r.ParticipantID == participantID && r.Network == network {
			found = append(found, r)
		}
	}
	if len(found) == 0 {
		return ExchangeRoute{}, fmt.Errorf("route for %s on %s: %w", participantID, network, ErrNotFound)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.After(found[j].CreatedAt) })
	return found[0], nil
}

func (s *inMemoryStore) CreatePaymentAccount(_ context.Context, a PaymentAccount) (PaymentAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[a.ParticipantID]; !ok {
		return PaymentAccount{}, fmt.Errorf("participant %s: %w", a.ParticipantID, ErrNotFound)
	}
	if a.PK == "" {
		a.PK = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	s.accounts[a.PK] = a
	return a, nil
}

func (s *inMemoryStore) PaymentAccount(_ context.Context, pk string) (PaymentAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[pk]
	if !ok {
		return PaymentAccount{}, fmt.Errorf("payment account %s: %w", pk, ErrNotFound)
	}
	return a, nil
}

func (s *inMemoryStore) CreatePayin(_ context.Context, in PayinInput) (Payin, PayinTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[in.PayerID]; !ok {
		return Payin{}, PayinTransfer{}, fmt.Errorf("participant %s: %w", in.PayerID, ErrNotFound)
	}
	if _, ok := s.routes[in.RouteID]; !ok {
		return Payin{}, PayinTransfer{}, fmt.Errorf("route %s: %w", in.RouteID, ErrNotFound)
	}
	if _, ok := s.accounts[in.Destination]; !ok {
		return Payin{}, PayinTransfer{}, fmt.Errorf("payment account %s: %w", in.Destination, ErrNotFound)
	}
	now := time.Now().UTC()
	p := Payin{
		ID:        uuid.NewString(),
		PayerID:   in.PayerID,
		RouteID:   in.RouteID,
		Amount:    in.Amount,
		Status:    StatusPre,
		CreatedAt: now,
		UpdatedAt: now,
	}
	pt := PayinTransfer{
		ID:          uuid.NewString(),
		PayinID:     p.ID,
		Destination: in.Destination,
		Amount:      in.Amount,
		Status:      StatusPre,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.payins[p.ID] = p
	s.transfers[pt.ID] = pt
	return p, pt, nil
}

func (s *inMemoryStore) Payin(_ context.Context, id string) (Payin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payins[id]
	if !ok {
		return Payin{}, fmt.Errorf("payin %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (s *inMemoryStore) TransferForPayin(_ context.Context, payinID string) (PayinTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, pt := range s.transfers {
		if pt.PayinID == payinID {
			return pt, nil
		}
	}
	return PayinTransfer{}, fmt.Errorf("transfer of payin %s: %w", payinID, ErrNotFound)
}

func (s *inMemoryStore) UpdatePayin(_ context.Context, u PayinUpdate) (Payin, bool, error) {
	if !validPayinStatus(u.Status) {
		return Payin{}, false, fmt.Errorf("%w: %q", ErrInvalidStatus, u.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payins[u.ID]
	if !ok {
		return Payin{}, false, fmt.Errorf("payin %s: %w", u.ID, ErrNotFound)
	}
	if IsTerminal(p.Status) {
		return p, false, nil
	}
	p.RemoteID = u.RemoteID
	p.Status = u.Status
	p.Error = u.Error
	if u.AmountSettled != nil {
		p.AmountSettled = u.AmountSettled
	}
	if u.Fee != nil {
		p.Fee = u.Fee
	}
	p.UpdatedAt = time.Now().UTC()
	s.payins[p.ID] = p
	return p, true, nil
}

func (s *inMemoryStore) UpdatePayinTransfer(_ context.Context, u TransferUpdate) (PayinTransfer, bool, error) {
	if !validPayinStatus(u.Status) {
		return PayinTransfer{}, false, fmt.Errorf("%w: %q", ErrInvalidStatus, u.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pt, ok := s.transfers[u.ID]
	if !ok {
		return PayinTransfer{}, false, fmt.Errorf("transfer %s: %w", u.ID, ErrNotFound)
	}
	if IsTerminal(pt.Status) {
		return pt, false, nil
	}
	amount := pt.Amount
	if u.Amount != nil {
		amount = *u.Amount
	}
	if u.Status == StatusSucceeded {
		account, ok := s.accounts[pt.Destination]
		if !ok {
			return PayinTransfer{}, false, fmt.Errorf("payment account %s: %w", pt.Destination, ErrNotFound)
		}
		if err := s.credit(account.ParticipantID, amount); err != nil {
			return PayinTransfer{}, false, err
		}
	}
	pt.RemoteID = u.RemoteID
	pt.Status = u.Status
	pt.Error = u.Error
	pt.Amount = amount
	pt.UpdatedAt = time.Now().UTC()
	s.transfers[pt.ID] = pt
	return pt, true, nil
}

func (s *inMemoryStore) StalledTransfers(_ context.Context) ([]PayinTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []PayinTransfer
	for _, pt := range s.transfers {
		if IsTerminal(pt.Status) {
			continue
		}
		if p := s.payins[pt.PayinID]; p.Status == StatusSucceeded {
			out = append(out, pt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *inMemoryStore) RecordExchange(_ context.Context, in ExchangeInput) (Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordExchange(in)
}

func (s *inMemoryStore) recordExchange(in ExchangeInput) (Exchange, error) {
	if _, ok := s.participants[in.ParticipantID]; !ok {
		return Exchange{}, fmt.Errorf("participant %s: %w", in.ParticipantID, ErrNotFound)
	}
	e := Exchange{
		ID:            uuid.NewString(),
		ParticipantID: in.ParticipantID,
		RouteID:       in.RouteID,
		Amount:        in.Amount,
		Fee:           in.Fee,
		Status:        StatusPre,
		RefundRef:     in.RefundRef,
		CreatedAt:     time.Now().UTC(),
	}
	if debit := exchangeDebit(e); !debit.IsZero() {
		if err := s.credit(e.ParticipantID, debit); err != nil {
			return Exchange{}, err
		}
	}
	s.exchanges[e.ID] = e
	if e.RefundRef != "" {
		s.refunds[e.RefundRef] = e.ID
	}
	return e, nil
}

func (s *inMemoryStore) Exchange(_ context.Context, id string) (Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.exchanges[id]
	if !ok {
		return Exchange{}, fmt.Errorf("exchange %s: %w", id, ErrNotFound)
	}
	return e, nil
}

func (s *inMemoryStore) EnsureRefund(_ context.Context, payoutID string) (Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.refunds[payoutID]; ok {
		return s.exchanges[id], nil
	}
	payout, ok := s.exchanges[payoutID]
	if !ok {
		return Exchange{}, fmt.Errorf("exchange %s: %w", payoutID, ErrNotFound)
	}
	if !payout.IsPayout() {
		return Exchange{}, fmt.Errorf("%w: exchange %s is not a payout", ErrInvalidStatus, payoutID)
	}
	return s.recordExchange(ExchangeInput{
		ParticipantID: payout.ParticipantID,
		RouteID:       payout.RouteID,
		Amount:        payout.Amount.Neg(),
		Fee:           payout.Fee.Neg(),
		RefundRef:     payout.ID,
	})
}

func (s *inMemoryStore) RecordExchangeResult(_ context.Context, r ExchangeResult) (Exchange, bool, error) {
	if !validPayinStatus(r.Status) {
		return Exchange{}, false, fmt.Errorf("%w: %q", ErrInvalidStatus, r.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exchanges[r.ID]
	if !ok {
		return Exchange{}, false, fmt.Errorf("exchange %s: %w", r.ID, ErrNotFound)
	}
	if IsTerminal(e.Status) || e.Status == r.Status {
		return e, false, nil
	}
	if credit := exchangeCredit(e, r.Status); !credit.IsZero() {
		if err := s.credit(e.ParticipantID, credit); err != nil {
			return Exchange{}, false, err
		}
	}
	if r.Reopen {
		p := s.participants[e.ParticipantID]
		p.Status = ParticipantActive
		s.participants[p.ID] = p
	}
	e.Status = r.Status
	e.RemoteID = r.RemoteID
	e.Note = r.Error
	s.exchanges[e.ID] = e
	return e, true, nil
}

// credit must be called with the write lock held.
func (s *inMemoryStore) credit(participantID string, amount money.Money) error {
	p, ok := s.participants[participantID]
	if !ok {
		return fmt.Errorf("participant %s: %w", participantID, ErrNotFound)
	}
	balance := p.Balance
	if balance.Currency == "" {
		balance = money.Zero(amount.Currency)
	}
	next, err := balance.Add(amount)
	if err != nil {
		return err
	}
	if next.IsNegative() {
		return ErrInsufficientFunds
	}
	p.Balance = next
	s.participants[p.ID] = p
	return nil
}
