package callbacks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/congo-pay/settlement/internal/gateway"
	"github.com/congo-pay/settlement/internal/ledger"
	"github.com/congo-pay/settlement/internal/money"
	"github.com/congo-pay/settlement/internal/notification"
)

var (
	// ErrReconciliationMismatch is returned when a notification cannot be
	// matched to a local exchange. Nothing is mutated.
	ErrReconciliationMismatch = errors.New("reconciliation mismatch")

	// ErrGatewayUnavailable wraps failures to re-fetch the notified resource.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
)

// Notifier sends a templated message to a participant.
type Notifier interface {
	Notify(ctx context.Context, p ledger.Participant, template string, data map[string]string) error
}

// Result describes what a notification did.
type Result struct {
	Event      string
	ExchangeID string
	Status     string
	Applied    bool
	Notified   bool
}

// Reconciler turns wallet gateway notifications into exchange transitions.
// Notifications are pointers only: the resource is always fetched again from
// the gateway, and its status is the one applied.
type Reconciler struct {
	store    ledger.Store
	fetcher  gateway.ResourceFetcher
	notifier Notifier
	logger   *slog.Logger
}

// NewReconciler builds a reconciler.
func NewReconciler(store ledger.Store, fetcher gateway.ResourceFetcher, notifier Notifier, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		fetcher:  fetcher,
		notifier: notifier,
		logger:   logger.With("component", "callbacks"),
	}
}

// Reconcile applies ev. A duplicate of an already applied notification
// returns a Result with Applied false.
func (r *Reconciler) Reconcile(ctx context.Context, ev Event) (Result, error) {
	switch e := ev.(type) {
	case PayoutNormal:
		return r.payoutNormal(ctx, e)
	case PayoutRefund:
		return r.payoutRefund(ctx, e)
	case PayinNormal:
		return r.payinNormal(ctx, e)
	}
	return Result{}, fmt.Errorf("%w: unsupported event %T", ErrMalformedEvent, ev)
}

func (r *Reconciler) payoutNormal(ctx context.Context, ev PayoutNormal) (Result, error) {
	res := Result{Event: EventName(ev)}
	payout, err := r.fetcher.Payout(ctx, ev.ResourceID)
	if err != nil {
		return res, fetchError(err)
	}
	e, p, err := r.lookup(ctx, payout.Tag, payout.AuthorID)
	if err != nil {
		return res, err
	}
	if !e.IsPayout() {
		return res, fmt.Errorf("%w: exchange %s is not a payout", ErrReconciliationMismatch, e.ID)
	}
	res.ExchangeID = e.ID

	switch payout.Status {
	case gateway.ResourceSucceeded:
		// the balance was debited when the payout was recorded
		return r.apply(ctx, res, ledger.ExchangeResult{ID: e.ID, RemoteID: payout.ID, Status: ledger.StatusSucceeded})
	case gateway.ResourceFailed:
		res, err = r.apply(ctx, res, ledger.ExchangeResult{
			ID: e.ID, RemoteID: payout.ID, Status: ledger.StatusFailed, Error: payout.ResultMessage, Reopen: true,
		})
		if err != nil || !res.Applied {
			return res, err
		}
		res.Notified = r.notify(ctx, p, notification.TemplateWithdrawalFailed, map[string]string{
			"amount": e.Amount.Neg().String(),
			"error":  payout.ResultMessage,
		})
		return res, nil
	}
	return r.pending(res, payout.Status), nil
}

func (r *Reconciler) payoutRefund(ctx context.Context, ev PayoutRefund) (Result, error) {
	res := Result{Event: EventName(ev)}
	refund, err := r.fetcher.Refund(ctx, ev.ResourceID)
	if err != nil {
		return res, fetchError(err)
	}
	if refund.InitialTransactionID == "" {
		return res, fmt.Errorf("%w: refund %s has no initial transaction", ErrReconciliationMismatch, refund.ID)
	}
	payout, err := r.fetcher.Payout(ctx, refund.InitialTransactionID)
	if err != nil {
		return res, fetchError(err)
	}
	e, p, err := r.lookup(ctx, payout.Tag, refund.AuthorID)
	if err != nil {
		return res, err
	}
	if !e.IsPayout() {
		return res, fmt.Errorf("%w: exchange %s is not a payout", ErrReconciliationMismatch, e.ID)
	}

	switch refund.Status {
	case gateway.ResourceSucceeded:
		if err := checkRefundFunds(refund, e); err != nil {
			return res, err
		}
		refundEx, err := r.store.EnsureRefund(ctx, e.ID)
		if err != nil {
			return res, err
		}
		res.ExchangeID = refundEx.ID
		res, err = r.apply(ctx, res, ledger.ExchangeResult{
			ID: refundEx.ID, RemoteID: refund.ID, Status: ledger.StatusSucceeded, Error: refund.ReasonMessage, Reopen: true,
		})
		if err != nil || !res.Applied {
			return res, err
		}
		res.Notified = r.notify(ctx, p, notification.TemplatePayoutRefund, map[string]string{
			"amount": e.Amount.Neg().String(),
			"reason": refund.ReasonMessage,
		})
		return res, nil
	case gateway.ResourceFailed:
		// a failed refund leaves the payout, the balance and the account as they are
		res.ExchangeID = e.ID
		res.Status = ledger.StatusFailed
		r.logger.Info("payout refund failed",
			slog.String("refund_id", refund.ID),
			slog.String("exchange_id", e.ID),
			slog.String("result_message", refund.ResultMessage),
		)
		return res, nil
	}
	res.ExchangeID = e.ID
	return r.pending(res, refund.Status), nil
}

// checkRefundFunds requires the refund to give back exactly what the payout
// took: its amount plus the fee, reported by the gateway as negative fees.
func checkRefundFunds(refund gateway.Refund, payout ledger.Exchange) error {
	wantFunds := money.ToMinor(payout.Amount.Neg())
	wantFees := money.ToMinor(payout.Fee.Neg())
	if !strings.EqualFold(refund.Currency, payout.Amount.Currency) ||
		refund.DebitedFunds != wantFunds || refund.Fees != wantFees {
		return fmt.Errorf("%w: refund %s returns %d%+d %s, payout %s took %d%+d %s", ErrReconciliationMismatch,
			refund.ID, refund.DebitedFunds, refund.Fees, refund.Currency,
			payout.ID, wantFunds, wantFees, payout.Amount.Currency)
	}
	return nil
}

func (r *Reconciler) payinNormal(ctx context.Context, ev PayinNormal) (Result, error) {
	res := Result{Event: EventName(ev)}
	payin, err := r.fetcher.Payin(ctx, ev.ResourceID)
	if err != nil {
		return res, fetchError(err)
	}
	e, p, err := r.lookup(ctx, payin.Tag, payin.AuthorID)
	if err != nil {
		return res, err
	}
	if e.IsPayout() || e.RefundRef != "" {
		return res, fmt.Errorf("%w: exchange %s is not a payin", ErrReconciliationMismatch, e.ID)
	}
	res.ExchangeID = e.ID

	var template string
	switch payin.Status {
	case gateway.ResourceSucceeded:
		res, err = r.apply(ctx, res, ledger.ExchangeResult{
			ID: e.ID, RemoteID: payin.ID, Status: ledger.StatusSucceeded, Reopen: true,
		})
		template = notification.TemplatePayinBankwireSucceeded
	case gateway.ResourceFailed:
		res, err = r.apply(ctx, res, ledger.ExchangeResult{
			ID: e.ID, RemoteID: payin.ID, Status: ledger.StatusFailed, Error: payin.ResultMessage,
		})
		template = notification.TemplatePayinBankwireFailed
	default:
		return r.pending(res, payin.Status), nil
	}
	if err != nil || !res.Applied {
		return res, err
	}
	res.Notified = r.notify(ctx, p, template, map[string]string{
		"amount": e.Amount.String(),
		"error":  payin.ResultMessage,
	})
	return res, nil
}

// lookup maps a resource tag to its exchange and checks the resource was
// made on behalf of the exchange's participant.
func (r *Reconciler) lookup(ctx context.Context, tag, authorID string) (ledger.Exchange, ledger.Participant, error) {
	id, err := ledger.ParseExchangeTag(tag)
	if err != nil {
		return ledger.Exchange{}, ledger.Participant{}, fmt.Errorf("%w: %v", ErrReconciliationMismatch, err)
	}
	e, err := r.store.Exchange(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ledger.Exchange{}, ledger.Participant{}, fmt.Errorf("%w: %v", ErrReconciliationMismatch, err)
		}
		return ledger.Exchange{}, ledger.Participant{}, err
	}
	p, err := r.store.Participant(ctx, e.ParticipantID)
	if err != nil {
		return ledger.Exchange{}, ledger.Participant{}, err
	}
	if authorID != p.GatewayUserID {
		return ledger.Exchange{}, ledger.Participant{}, fmt.Errorf("%w: resource author %q is not the owner of exchange %s",
			ErrReconciliationMismatch, authorID, e.ID)
	}
	return e, p, nil
}

func (r *Reconciler) apply(ctx context.Context, res Result, er ledger.ExchangeResult) (Result, error) {
	e, applied, err := r.store.RecordExchangeResult(ctx, er)
	if err != nil {
		return res, err
	}
	res.Status = e.Status
	res.Applied = applied
	if !applied {
		r.logger.Info("notification already applied",
			slog.String("event", res.Event),
			slog.String("exchange_id", e.ID),
			slog.String("status", e.Status),
		)
	}
	return res, nil
}

func (r *Reconciler) pending(res Result, status string) Result {
	r.logger.Info("resource not final yet, nothing to apply",
		slog.String("event", res.Event),
		slog.String("resource_status", status),
	)
	res.Status = ledger.StatusPending
	return res
}

// notify reports whether the message went out. A failed send is logged only:
// the transition is committed and a gateway retry would not resend it.
func (r *Reconciler) notify(ctx context.Context, p ledger.Participant, template string, data map[string]string) bool {
	if r.notifier == nil {
		return false
	}
	if err := r.notifier.Notify(ctx, p, template, data); err != nil {
		r.logger.Error("notification failed",
			slog.String("participant_id", p.ID),
			slog.String("template", template),
			slog.Any("error", err),
		)
		return false
	}
	return true
}

func fetchError(err error) error {
	if errors.Is(err, gateway.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrReconciliationMismatch, err)
	}
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
}
