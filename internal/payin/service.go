package payin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/congo-pay/settlement/internal/exchangeroute"
	"github.com/congo-pay/settlement/internal/gateway"
	"github.com/congo-pay/settlement/internal/ledger"
	"github.com/congo-pay/settlement/internal/metrics"
	"github.com/congo-pay/settlement/internal/money"
	"github.com/congo-pay/settlement/internal/monitor"
)

const feeReversalDescription = "Stripe fee"

var (
	// ErrPayerMismatch is returned when the payer is not the one the payin was prepared for.
	ErrPayerMismatch = errors.New("payer does not match payin")

	// ErrInvalidAmount is returned for non-positive payin amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrNothingToReverse is returned when a payin has no fee reversal left to re-drive.
	ErrNothingToReverse = errors.New("no pending fee reversal")
)

// PartialSequenceError means the charge went through but the fee reversal
// did not. The payin is final while its transfer is left pending with the
// charge's transfer id, ready for RetryFeeReversal.
type PartialSequenceError struct {
	PayinID    string
	TransferID string
	Err        error
}

func (e *PartialSequenceError) Error() string {
	return fmt.Sprintf("payin %s: charge succeeded but fee reversal failed: %v", e.PayinID, e.Err)
}

func (e *PartialSequenceError) Unwrap() error { return e.Err }

// Service prepares payins and runs destination charges against the marketplace gateway.
type Service struct {
	store           ledger.Store
	routes          *exchangeroute.Resolver
	charger         gateway.Charger
	updater         *Updater
	monitor         monitor.Monitor
	platformAccount string
	logger          *slog.Logger
}

// NewService builds a payin service. platformAccount is the gateway id of the
// platform's own account, which must never be named as a charge destination.
func NewService(store ledger.Store, charger gateway.Charger, mon monitor.Monitor, platformAccount string, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if charger == nil {
		return nil, fmt.Errorf("charger is required")
	}
	if mon == nil {
		mon = monitor.NewLoggerMonitor(logger)
	}
	logger = logger.With("component", "payin")
	return &Service{
		store:           store,
		routes:          exchangeroute.NewResolver(store),
		charger:         charger,
		updater:         NewUpdater(store, logger),
		monitor:         mon,
		platformAccount: platformAccount,
		logger:          logger,
	}, nil
}

// PrepareInput captures what is needed to create a payin.
type PrepareInput struct {
	PayerID     string
	RouteID     string // empty selects the payer's latest card
	Amount      money.Money
	Destination string // payment account pk
}

// Prepare creates a payin and its transfer, both in the pre status.
func (s *Service) Prepare(ctx context.Context, in PrepareInput) (ledger.Payin, ledger.PayinTransfer, error) {
	if !in.Amount.Amount.IsPositive() {
		return ledger.Payin{}, ledger.PayinTransfer{}, ErrInvalidAmount
	}
	var (
		funding exchangeroute.Funding
		err     error
	)
	if in.RouteID == "" {
		// default to the payer's latest card
		funding, err = s.routes.ForPayer(ctx, in.PayerID, ledger.NetworkStripeCard)
	} else {
		funding, err = s.routes.Resolve(ctx, in.PayerID, in.RouteID)
	}
	if err != nil {
		return ledger.Payin{}, ledger.PayinTransfer{}, err
	}
	if _, err := s.store.PaymentAccount(ctx, in.Destination); err != nil {
		return ledger.Payin{}, ledger.PayinTransfer{}, err
	}
	return s.store.CreatePayin(ctx, ledger.PayinInput{
		PayerID:     in.PayerID,
		RouteID:     funding.RouteID,
		Amount:      in.Amount,
		Destination: in.Destination,
	})
}

// DestinationCharge charges the payer for the payin and forwards the net
// amount to the transfer's destination. When the destination is a connected
// account, the gateway fee is reversed from the transfer so the payee is
// charged at cost.
//
// Both gateway calls carry keys derived from the payin id, so calling this
// again for the same payin never charges or reverses twice. A payin that is
// already final is returned as stored without calling the gateway.
func (s *Service) DestinationCharge(ctx context.Context, payin ledger.Payin, payer ledger.Participant, descriptor string) (ledger.Payin, error) {
	if payer.ID != payin.PayerID {
		return ledger.Payin{}, ErrPayerMismatch
	}
	current, err := s.store.Payin(ctx, payin.ID)
	if err != nil {
		return ledger.Payin{}, err
	}
	if ledger.IsTerminal(current.Status) {
		return current, nil
	}
	payin = current
	pt, err := s.store.TransferForPayin(ctx, payin.ID)
	if err != nil {
		return ledger.Payin{}, err
	}
	account, err := s.store.PaymentAccount(ctx, pt.Destination)
	if err != nil {
		return ledger.Payin{}, err
	}
	destination := account.RemoteID
	if destination == s.platformAccount {
		// the gateway rejects charges naming the platform itself as destination
		destination = ""
	}
	funding, err := s.routes.Resolve(ctx, payer.ID, payin.RouteID)
	if err != nil {
		return ledger.Payin{}, err
	}

	start := time.Now()
	charge, err := s.charger.CreateCharge(ctx, gateway.ChargeRequest{
		Amount:              money.ToMinor(payin.Amount),
		Currency:            strings.ToLower(payin.Amount.Currency),
		Customer:            funding.Customer,
		Source:              funding.Source,
		Destination:         destination,
		Metadata:            map[string]string{"payin_id": payin.ID},
		StatementDescriptor: descriptor,
		IdempotencyKey:      chargeKey(payin.ID),
	})
	metrics.ObserveGateway("stripe", "charge", time.Since(start).Seconds())
	if err != nil {
		if be, ok := gateway.AsBusinessError(err); ok {
			return s.fail(ctx, payin.ID, pt.ID, be.Display())
		}
		s.monitor.ReportError(ctx, err, map[string]string{"payin_id": payin.ID, "operation": "charge"})
		return s.unknownOutcome(ctx, payin.ID, err.Error())
	}

	status := chargeStatus(charge.Status)
	errText := charge.FailureText()
	update := ledger.PayinUpdate{
		ID:       payin.ID,
		RemoteID: charge.ID,
		Status:   status,
		Error:    errText,
	}
	// failed and pending charges carry no settlement record
	fee := money.Zero(payin.Amount.Currency)
	var net *money.Money
	if charge.Settlement.Currency != "" {
		currency := strings.ToUpper(charge.Settlement.Currency)
		amountSettled := money.FromMinor(charge.Settlement.Amount, currency)
		fee = money.FromMinor(charge.Settlement.Fee, currency)
		n, err := amountSettled.Sub(fee)
		if err != nil {
			return ledger.Payin{}, err
		}
		update.AmountSettled, update.Fee, net = &amountSettled, &fee, &n
	}

	updated, err := s.updater.UpdatePayin(ctx, update)
	if err != nil {
		return ledger.Payin{}, err
	}
	if updated.Status != status {
		// another request finalized the payin first and owns the rest of the sequence
		s.logger.Warn("payin finalized concurrently, skipping transfer",
			slog.String("payin_id", payin.ID),
			slog.String("status", updated.Status),
			slog.String("charge_status", status),
		)
		return updated, nil
	}
	metrics.IncCharge(status)

	if destination != "" && charge.TransferID != "" && status == ledger.StatusSucceeded {
		if err := s.reverseFee(ctx, payin.ID, charge.TransferID, fee); err != nil {
			return updated, s.partial(ctx, payin.ID, pt.ID, charge.TransferID, net, err)
		}
	}

	if _, err := s.updater.UpdatePayinTransfer(ctx, ledger.TransferUpdate{
		ID:       pt.ID,
		RemoteID: charge.TransferID,
		Status:   status,
		Error:    errText,
		Amount:   net,
	}); err != nil {
		return updated, err
	}

	s.logger.Info("destination charge completed",
		slog.String("payin_id", payin.ID),
		slog.String("charge_id", charge.ID),
		slog.String("status", status),
		slog.String("fee", fee.String()),
	)
	return updated, nil
}

// RetryCharge re-drives the charge of a payin whose outcome is not known yet,
// reusing the payin's idempotency keys.
func (s *Service) RetryCharge(ctx context.Context, payinID, descriptor string) (ledger.Payin, error) {
	p, err := s.store.Payin(ctx, payinID)
	if err != nil {
		return ledger.Payin{}, err
	}
	payer, err := s.store.Participant(ctx, p.PayerID)
	if err != nil {
		return ledger.Payin{}, err
	}
	return s.DestinationCharge(ctx, p, payer, descriptor)
}

// PendingReversals lists transfers of succeeded payins still waiting for their fee reversal.
func (s *Service) PendingReversals(ctx context.Context) ([]ledger.PayinTransfer, error) {
	return s.store.StalledTransfers(ctx)
}

// RetryFeeReversal re-drives only the fee reversal of a payin, with the same
// idempotency key as the first attempt.
func (s *Service) RetryFeeReversal(ctx context.Context, payinID string) (ledger.PayinTransfer, error) {
	p, err := s.store.Payin(ctx, payinID)
	if err != nil {
		return ledger.PayinTransfer{}, err
	}
	pt, err := s.store.TransferForPayin(ctx, payinID)
	if err != nil {
		return ledger.PayinTransfer{}, err
	}
	if ledger.IsTerminal(pt.Status) {
		return pt, nil
	}
	if p.Status != ledger.StatusSucceeded || pt.RemoteID == "" || p.Fee == nil {
		return ledger.PayinTransfer{}, fmt.Errorf("%w: payin %s is %s", ErrNothingToReverse, p.ID, p.Status)
	}

	if err := s.reverseFee(ctx, p.ID, pt.RemoteID, *p.Fee); err != nil {
		return pt, s.partial(ctx, p.ID, pt.ID, pt.RemoteID, nil, err)
	}
	return s.updater.UpdatePayinTransfer(ctx, ledger.TransferUpdate{
		ID:       pt.ID,
		RemoteID: pt.RemoteID,
		Status:   p.Status,
	})
}

func (s *Service) reverseFee(ctx context.Context, payinID, transferID string, fee money.Money) error {
	if fee.IsZero() {
		return nil
	}
	start := time.Now()
	_, err := s.charger.ReverseTransfer(ctx, gateway.ReversalRequest{
		TransferID:     transferID,
		Amount:         money.ToMinor(fee),
		Description:    feeReversalDescription,
		Metadata:       map[string]string{"payin_id": payinID},
		IdempotencyKey: feeReversalKey(payinID),
	})
	metrics.ObserveGateway("stripe", "transfer_reversal", time.Since(start).Seconds())
	if err != nil {
		metrics.IncFeeReversal("failed")
		return err
	}
	metrics.IncFeeReversal("succeeded")
	return nil
}

// partial leaves the transfer pending with the reversal error and reports it.
func (s *Service) partial(ctx context.Context, payinID, transferID, remoteID string, net *money.Money, cause error) error {
	s.monitor.ReportError(ctx, cause, map[string]string{"payin_id": payinID, "operation": "fee_reversal"})
	if _, err := s.updater.UpdatePayinTransfer(ctx, ledger.TransferUpdate{
		ID:       transferID,
		RemoteID: remoteID,
		Status:   ledger.StatusPending,
		Error:    "fee reversal failed: " + cause.Error(),
		Amount:   net,
	}); err != nil {
		return errors.Join(&PartialSequenceError{PayinID: payinID, TransferID: transferID, Err: cause}, err)
	}
	return &PartialSequenceError{PayinID: payinID, TransferID: transferID, Err: cause}
}

// unknownOutcome keeps the payin pending with the raw error. The gateway may
// or may not have created the charge, so only a re-drive with the same key
// can settle it.
func (s *Service) unknownOutcome(ctx context.Context, payinID, errText string) (ledger.Payin, error) {
	metrics.IncCharge("unknown")
	p, err := s.updater.UpdatePayin(ctx, ledger.PayinUpdate{ID: payinID, Status: ledger.StatusPending, Error: errText})
	if err != nil {
		return ledger.Payin{}, err
	}
	s.logger.Warn("destination charge outcome unknown", slog.String("payin_id", payinID), slog.String("error", errText))
	return p, nil
}

func (s *Service) fail(ctx context.Context, payinID, transferID, errText string) (ledger.Payin, error) {
	metrics.IncCharge(ledger.StatusFailed)
	p, err := s.updater.UpdatePayin(ctx, ledger.PayinUpdate{ID: payinID, Status: ledger.StatusFailed, Error: errText})
	if err != nil {
		return ledger.Payin{}, err
	}
	if _, err := s.updater.UpdatePayinTransfer(ctx, ledger.TransferUpdate{ID: transferID, Status: ledger.StatusFailed, Error: errText}); err != nil {
		return p, err
	}
	s.logger.Warn("destination charge failed", slog.String("payin_id", payinID), slog.String("error", errText))
	return p, nil
}

func chargeKey(payinID string) string      { return "payin_" + payinID }
func feeReversalKey(payinID string) string { return "payin_fee_" + payinID }

func chargeStatus(status string) string {
	switch status {
	case gateway.ChargeSucceeded:
		return ledger.StatusSucceeded
	case gateway.ChargeFailed:
		return ledger.StatusFailed
	default:
		return ledger.StatusPending
	}
}
