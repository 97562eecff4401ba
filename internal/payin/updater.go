package payin

import (
	"context"
	"log/slog"

	"github.com/congo-pay/settlement/internal/ledger"
)

// Updater applies gateway outcomes to payins and their transfers. Updates
// against rows that already reached a final status are dropped.
type Updater struct {
	store  ledger.Store
	logger *slog.Logger
}

// NewUpdater builds an updater over store.
func NewUpdater(store ledger.Store, logger *slog.Logger) *Updater {
	return &Updater{store: store, logger: logger}
}

// UpdatePayin records the outcome of a charge and returns the stored payin.
func (u *Updater) UpdatePayin(ctx context.Context, upd ledger.PayinUpdate) (ledger.Payin, error) {
	p, applied, err := u.store.UpdatePayin(ctx, upd)
	if err != nil {
		return ledger.Payin{}, err
	}
	if !applied {
		u.logger.Info("payin already final, update dropped",
			slog.String("payin_id", p.ID),
			slog.String("status", p.Status),
			slog.String("requested_status", upd.Status),
		)
	}
	return p, nil
}

// UpdatePayinTransfer records the outcome of a transfer. Reaching succeeded
// credits the recipient in the same transaction.
func (u *Updater) UpdatePayinTransfer(ctx context.Context, upd ledger.TransferUpdate) (ledger.PayinTransfer, error) {
	pt, applied, err := u.store.UpdatePayinTransfer(ctx, upd)
	if err != nil {
		return ledger.PayinTransfer{}, err
	}
	if !applied {
		u.logger.Info("payin transfer already final, update dropped",
			slog.String("transfer_id", pt.ID),
			slog.String("status", pt.Status),
			slog.String("requested_status", upd.Status),
		)
	}
	return pt, nil
}
