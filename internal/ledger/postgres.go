package ledger

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/settlement/internal/money"
)

//go:embed schema.sql
var schema string

// PostgresStore persists participants, payins and exchanges in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables if they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}

var schemaTables = []string{"participants", "exchange_routes", "payment_accounts", "payins", "payin_transfers", "exchanges"}

// Ready reports ErrSchemaNotReady, naming the tables, when Migrate has not run.
// The query doubles as a connectivity check.
func (s *PostgresStore) Ready(ctx context.Context) error {
	var missing []string
	if err := s.db.QueryRow(ctx, `SELECT coalesce(array_agg(t ORDER BY t), '{}')
        FROM unnest($1::text[]) AS t
        WHERE to_regclass(t) IS NULL`, schemaTables).Scan(&missing); err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrSchemaNotReady, strings.Join(missing, ", "))
	}
	return nil
}

const (
	participantColumns = `id, email, gateway_user_id, balance, currency, status, created_at`
	routeColumns       = `id, participant, network, remote_user_id, address, created_at`
	accountColumns     = `pk, participant, provider, id, created_at`
	payinColumns       = `id, payer, route, amount, currency, status, remote_id, error,
        amount_settled, settlement_currency, fee, created_at, updated_at`
	transferColumns = `id, payin, destination, amount, currency, status, remote_id, error, created_at, updated_at`
	exchangeColumns = `id, participant, route, amount, fee, currency, status, remote_id, note, refund_ref, created_at`
)

// CreateParticipant inserts a participant with a zero balance.
func (s *PostgresStore) CreateParticipant(ctx context.Context, p Participant) (Participant, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = ParticipantActive
	}
	row := s.db.QueryRow(ctx, `INSERT INTO participants (id, email, gateway_user_id, balance, currency, status)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+participantColumns,
		p.ID, p.Email, p.GatewayUserID, p.Balance.Amount, p.Balance.Currency, p.Status)
	return scanParticipant(row)
}

// Participant fetches a participant by id.
func (s *PostgresStore) Participant(ctx context.Context, id string) (Participant, error) {
	row := s.db.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id)
	p, err := scanParticipant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Participant{}, fmt.Errorf("participant %s: %w", id, ErrNotFound)
	}
	return p, err
}

// SetParticipantStatus opens or closes a participant account.
func (s *PostgresStore) SetParticipantStatus(ctx context.Context, id, status string) error {
	cmd, err := s.db.Exec(ctx, `UPDATE participants SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("participant %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateRoute stores a payment instrument.
func (s *PostgresStore) CreateRoute(ctx context.Context, r ExchangeRoute) (ExchangeRoute, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	row := s.db.QueryRow(ctx, `INSERT INTO exchange_routes (id, participant, network, remote_user_id, address)
        VALUES ($1, $2, $3, $4, $5) RETURNING `+routeColumns,
		r.ID, r.ParticipantID, r.Network, r.RemoteUserID, r.Address)
	out, err := scanRoute(row)
	if isForeignKeyViolation(err) {
		return ExchangeRoute{}, fmt.Errorf("participant %s: %w", r.ParticipantID, ErrNotFound)
	}
	return out, err
}

// Route fetches a route by id.
func (s *PostgresStore) Route(ctx context.Context, id string) (ExchangeRoute, error) {
	row := s.db.QueryRow(ctx, `SELECT `+routeColumns+` FROM exchange_routes WHERE id = $1`, id)
	r, err := scanRoute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ExchangeRoute{}, fmt.Errorf("route %s: %w", id, ErrNotFound)
	}
	return r, err
}

// RouteFor returns the most recent route of a participant on a network.
func (s *PostgresStore) RouteFor(ctx context.Context, participantID, network string) (ExchangeRoute, error) {
	row := s.db.QueryRow(ctx, `SELECT `+routeColumns+` FROM exchange_routes
        WHERE participant = $1 AND network = $2
        ORDER BY created_at DESC LIMIT 1`, participantID, network)
	r, err := scanRoute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ExchangeRoute{}, fmt.Errorf("route for %s on %s: %w", participantID, network, ErrNotFound)
	}
	return r, err
}

// CreatePaymentAccount stores a payee's gateway account.
func (s *PostgresStore) CreatePaymentAccount(ctx context.Context, a PaymentAccount) (PaymentAccount, error) {
	if a.PK == "" {
		a.PK = uuid.NewString()
	}
	row := s.db.QueryRow(ctx, `INSERT INTO payment_accounts (pk, participant, provider, id)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (provider, id) DO UPDATE SET provider = EXCLUDED.provider
        RETURNING `+accountColumns, a.PK, a.ParticipantID, a.Provider, a.RemoteID)
	out, err := scanAccount(row)
	if isForeignKeyViolation(err) {
		return PaymentAccount{}, fmt.Errorf("participant %s: %w", a.ParticipantID, ErrNotFound)
	}
	return out, err
}

// PaymentAccount fetches a payment account by primary key.
func (s *PostgresStore) PaymentAccount(ctx context.Context, pk string) (PaymentAccount, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM payment_accounts WHERE pk = $1`, pk)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentAccount{}, fmt.Errorf("payment account %s: %w", pk, ErrNotFound)
	}
	return a, err
}

// CreatePayin inserts a payin and its transfer in a single transaction.
func (s *PostgresStore) CreatePayin(ctx context.Context, in PayinInput) (Payin, PayinTransfer, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Payin{}, PayinTransfer{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	p, err := scanPayin(tx.QueryRow(ctx, `INSERT INTO payins (id, payer, route, amount, currency, status)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+payinColumns,
		uuid.NewString(), in.PayerID, in.RouteID, in.Amount.Amount, in.Amount.Currency, StatusPre))
	if err != nil {
		if isForeignKeyViolation(err) {
			return Payin{}, PayinTransfer{}, fmt.Errorf("payer or route: %w", ErrNotFound)
		}
		return Payin{}, PayinTransfer{}, err
	}

	pt, err := scanTransfer(tx.QueryRow(ctx, `INSERT INTO payin_transfers (id, payin, destination, amount, currency, status)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+transferColumns,
		uuid.NewString(), p.ID, in.Destination, in.Amount.Amount, in.Amount.Currency, StatusPre))
	if err != nil {
		if isForeignKeyViolation(err) {
			return Payin{}, PayinTransfer{}, fmt.Errorf("payment account %s: %w", in.Destination, ErrNotFound)
		}
		return Payin{}, PayinTransfer{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Payin{}, PayinTransfer{}, err
	}
	return p, pt, nil
}

// Payin fetches a payin by id.
func (s *PostgresStore) Payin(ctx context.Context, id string) (Payin, error) {
	p, err := scanPayin(s.db.QueryRow(ctx, `SELECT `+payinColumns+` FROM payins WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payin{}, fmt.Errorf("payin %s: %w", id, ErrNotFound)
	}
	return p, err
}

// TransferForPayin fetches the single transfer of a payin.
func (s *PostgresStore) TransferForPayin(ctx context.Context, payinID string) (PayinTransfer, error) {
	pt, err := scanTransfer(s.db.QueryRow(ctx, `SELECT `+transferColumns+` FROM payin_transfers WHERE payin = $1`, payinID))
	if errors.Is(err, pgx.ErrNoRows) {
		return PayinTransfer{}, fmt.Errorf("transfer of payin %s: %w", payinID, ErrNotFound)
	}
	return pt, err
}

// UpdatePayin records a gateway outcome unless the payin is already terminal.
func (s *PostgresStore) UpdatePayin(ctx context.Context, u PayinUpdate) (Payin, bool, error) {
	if !validPayinStatus(u.Status) {
		return Payin{}, false, fmt.Errorf("%w: %q", ErrInvalidStatus, u.Status)
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Payin{}, false, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	current, err := scanPayin(tx.QueryRow(ctx, `SELECT `+payinColumns+` FROM payins WHERE id = $1 FOR UPDATE`, u.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payin{}, false, fmt.Errorf("payin %s: %w", u.ID, ErrNotFound)
		}
		return Payin{}, false, err
	}
	if IsTerminal(current.Status) {
		return current, false, nil
	}

	var settled, fee decimal.NullDecimal
	var settlementCurrency *string
	if u.AmountSettled != nil {
		settled = decimal.NewNullDecimal(u.AmountSettled.Amount)
		settlementCurrency = &u.AmountSettled.Currency
	}
	if u.Fee != nil {
		fee = decimal.NewNullDecimal(u.Fee.Amount)
	}

	updated, err := scanPayin(tx.QueryRow(ctx, `UPDATE payins
        SET status = $2, remote_id = $3, error = $4,
            amount_settled = COALESCE($5, amount_settled),
            settlement_currency = COALESCE($6, settlement_currency),
            fee = COALESCE($7, fee),
            updated_at = $8
        WHERE id = $1
        RETURNING `+payinColumns,
		u.ID, u.Status, u.RemoteID, u.Error, settled, settlementCurrency, fee, time.Now().UTC()))
	if err != nil {
		return Payin{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Payin{}, false, err
	}
	return updated, true, nil
}

// UpdatePayinTransfer records a gateway outcome unless the transfer is already
// terminal, crediting the recipient when it succeeds.
func (s *PostgresStore) UpdatePayinTransfer(ctx context.Context, u TransferUpdate) (PayinTransfer, bool, error) {
	if !validPayinStatus(u.Status) {
		return PayinTransfer{}, false, fmt.Errorf("%w: %q", ErrInvalidStatus, u.Status)
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return PayinTransfer{}, false, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	current, err := scanTransfer(tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM payin_transfers WHERE id = $1 FOR UPDATE`, u.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PayinTransfer{}, false, fmt.Errorf("transfer %s: %w", u.ID, ErrNotFound)
		}
		return PayinTransfer{}, false, err
	}
	if IsTerminal(current.Status) {
		return current, false, nil
	}

	amount := current.Amount
	if u.Amount != nil {
		amount = *u.Amount
	}
	if u.Status == StatusSucceeded {
		var recipient string
		if err := tx.QueryRow(ctx, `SELECT participant FROM payment_accounts WHERE pk = $1`, current.Destination).Scan(&recipient); err != nil {
			return PayinTransfer{}, false, fmt.Errorf("payment account %s: %w", current.Destination, err)
		}
		if err := credit(ctx, tx, recipient, amount); err != nil {
			return PayinTransfer{}, false, err
		}
	}

	updated, err := scanTransfer(tx.QueryRow(ctx, `UPDATE payin_transfers
        SET status = $2, remote_id = $3, error = $4, amount = $5, currency = $6, updated_at = $7
        WHERE id = $1
        RETURNING `+transferColumns,
		u.ID, u.Status, u.RemoteID, u.Error, amount.Amount, amount.Currency, time.Now().UTC()))
	if err != nil {
		return PayinTransfer{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return PayinTransfer{}, false, err
	}
	return updated, true, nil
}

// StalledTransfers lists non-terminal transfers whose payin already succeeded.
func (s *PostgresStore) StalledTransfers(ctx context.Context) ([]PayinTransfer, error) {
	rows, err := s.db.Query(ctx, `SELECT pt.id, pt.payin, pt.destination, pt.amount, pt.currency, pt.status,
            pt.remote_id, pt.error, pt.created_at, pt.updated_at
        FROM payin_transfers pt
        JOIN payins p ON p.id = pt.payin
        WHERE p.status = 'succeeded' AND pt.status NOT IN ('succeeded', 'failed')
        ORDER BY pt.created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PayinTransfer
	for rows.Next() {
		pt, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

// RecordExchange inserts an exchange in the pre status. Payouts debit the
// participant's balance immediately, fee included.
func (s *PostgresStore) RecordExchange(ctx context.Context, in ExchangeInput) (Exchange, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Exchange{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	e, err := recordExchange(ctx, tx, in)
	if err != nil {
		return Exchange{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Exchange{}, err
	}
	return e, nil
}

// Exchange fetches an exchange by id.
func (s *PostgresStore) Exchange(ctx context.Context, id string) (Exchange, error) {
	e, err := scanExchange(s.db.QueryRow(ctx, `SELECT `+exchangeColumns+` FROM exchanges WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Exchange{}, fmt.Errorf("exchange %s: %w", id, ErrNotFound)
	}
	return e, err
}

// EnsureRefund returns the refund exchange of a payout, creating it on first use.
// The unique refund_ref constraint settles races between concurrent callbacks.
func (s *PostgresStore) EnsureRefund(ctx context.Context, payoutID string) (Exchange, error) {
	const existingQuery = `SELECT ` + exchangeColumns + ` FROM exchanges WHERE refund_ref = $1`
	if e, err := scanExchange(s.db.QueryRow(ctx, existingQuery, payoutID)); err == nil {
		return e, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return Exchange{}, err
	}

	payout, err := s.Exchange(ctx, payoutID)
	if err != nil {
		return Exchange{}, err
	}
	if !payout.IsPayout() {
		return Exchange{}, fmt.Errorf("%w: exchange %s is not a payout", ErrInvalidStatus, payoutID)
	}

	refund, err := s.RecordExchange(ctx, ExchangeInput{
		ParticipantID: payout.ParticipantID,
		RouteID:       payout.RouteID,
		Amount:        payout.Amount.Neg(),
		Fee:           payout.Fee.Neg(),
		RefundRef:     payout.ID,
	})
	if isUniqueViolation(err) {
		return scanExchange(s.db.QueryRow(ctx, existingQuery, payoutID))
	}
	return refund, err
}

// RecordExchangeResult applies a gateway outcome to an exchange and propagates
// the balance change, all under the exchange's row lock.
func (s *PostgresStore) RecordExchangeResult(ctx context.Context, r ExchangeResult) (Exchange, bool, error) {
	if !validPayinStatus(r.Status) {
		return Exchange{}, false, fmt.Errorf("%w: %q", ErrInvalidStatus, r.Status)
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Exchange{}, false, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	e, err := scanExchange(tx.QueryRow(ctx, `SELECT `+exchangeColumns+` FROM exchanges WHERE id = $1 FOR UPDATE`, r.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Exchange{}, false, fmt.Errorf("exchange %s: %w", r.ID, ErrNotFound)
		}
		return Exchange{}, false, err
	}
	if IsTerminal(e.Status) || e.Status == r.Status {
		return e, false, nil
	}

	if amount := exchangeCredit(e, r.Status); !amount.IsZero() {
		if err := credit(ctx, tx, e.ParticipantID, amount); err != nil {
			return Exchange{}, false, err
		}
	}
	if r.Reopen {
		if _, err := tx.Exec(ctx, `UPDATE participants SET status = $1 WHERE id = $2`, ParticipantActive, e.ParticipantID); err != nil {
			return Exchange{}, false, err
		}
	}

	updated, err := scanExchange(tx.QueryRow(ctx, `UPDATE exchanges SET status = $2, remote_id = $3, note = $4
        WHERE id = $1 RETURNING `+exchangeColumns, r.ID, r.Status, r.RemoteID, r.Error))
	if err != nil {
		return Exchange{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Exchange{}, false, err
	}
	return updated, true, nil
}

func recordExchange(ctx context.Context, tx pgx.Tx, in ExchangeInput) (Exchange, error) {
	var route, refundRef *string
	if in.RouteID != "" {
		route = &in.RouteID
	}
	if in.RefundRef != "" {
		refundRef = &in.RefundRef
	}
	e, err := scanExchange(tx.QueryRow(ctx, `INSERT INTO exchanges (id, participant, route, amount, fee, currency, status, refund_ref)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+exchangeColumns,
		uuid.NewString(), in.ParticipantID, route, in.Amount.Amount, in.Fee.Amount, in.Amount.Currency, StatusPre, refundRef))
	if err != nil {
		if isForeignKeyViolation(err) {
			return Exchange{}, fmt.Errorf("participant %s: %w", in.ParticipantID, ErrNotFound)
		}
		return Exchange{}, err
	}
	if debit := exchangeDebit(e); !debit.IsZero() {
		if err := credit(ctx, tx, e.ParticipantID, debit); err != nil {
			return Exchange{}, err
		}
	}
	return e, nil
}

// credit adds amount (possibly negative) to a participant's balance inside tx.
func credit(ctx context.Context, tx pgx.Tx, participantID string, amount money.Money) error {
	var balance decimal.Decimal
	var currency string
	err := tx.QueryRow(ctx, `SELECT balance, currency FROM participants WHERE id = $1 FOR UPDATE`, participantID).Scan(&balance, &currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("participant %s: %w", participantID, ErrNotFound)
		}
		return err
	}
	next, err := money.New(balance, currency).Add(amount)
	if err != nil {
		return err
	}
	if next.IsNegative() {
		return ErrInsufficientFunds
	}
	_, err = tx.Exec(ctx, `UPDATE participants SET balance = $1 WHERE id = $2`, next.Amount, participantID)
	return err
}

func scanParticipant(row pgx.Row) (Participant, error) {
	var p Participant
	var balance decimal.Decimal
	var currency string
	if err := row.Scan(&p.ID, &p.Email, &p.GatewayUserID, &balance, &currency, &p.Status, &p.CreatedAt); err != nil {
		return Participant{}, err
	}
	p.Balance = money.New(balance, currency)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func scanRoute(row pgx.Row) (ExchangeRoute, error) {
	var r ExchangeRoute
	if err := row.Scan(&r.ID, &r.ParticipantID, &r.Network, &r.RemoteUserID, &r.Address, &r.CreatedAt); err != nil {
		return ExchangeRoute{}, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func scanAccount(row pgx.Row) (PaymentAccount, error) {
	var a PaymentAccount
	if err := row.Scan(&a.PK, &a.ParticipantID, &a.Provider, &a.RemoteID, &a.CreatedAt); err != nil {
		return PaymentAccount{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func scanPayin(row pgx.Row) (Payin, error) {
	var (
		p                  Payin
		amount             decimal.Decimal
		currency           string
		settled, fee       decimal.NullDecimal
		settlementCurrency *string
	)
	if err := row.Scan(&p.ID, &p.PayerID, &p.RouteID, &amount, &currency, &p.Status, &p.RemoteID, &p.Error,
		&settled, &settlementCurrency, &fee, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Payin{}, err
	}
	p.Amount = money.New(amount, currency)
	if settlementCurrency != nil {
		if settled.Valid {
			m := money.New(settled.Decimal, *settlementCurrency)
			p.AmountSettled = &m
		}
		if fee.Valid {
			m := money.New(fee.Decimal, *settlementCurrency)
			p.Fee = &m
		}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func scanTransfer(row pgx.Row) (PayinTransfer, error) {
	var pt PayinTransfer
	var amount decimal.Decimal
	var currency string
	if err := row.Scan(&pt.ID, &pt.PayinID, &pt.Destination, &amount, &currency, &pt.Status,
		&pt.RemoteID, &pt.Error, &pt.CreatedAt, &pt.UpdatedAt); err != nil {
		return PayinTransfer{}, err
	}
	pt.Amount = money.New(amount, currency)
	pt.CreatedAt = pt.CreatedAt.UTC()
	pt.UpdatedAt = pt.UpdatedAt.UTC()
	return pt, nil
}

func scanExchange(row pgx.Row) (Exchange, error) {
	var (
		e                Exchange
		amount, fee      decimal.Decimal
		currency         string
		route, refundRef *string
	)
	if err := row.Scan(&e.ID, &e.ParticipantID, &route, &amount, &fee, &currency, &e.Status,
		&e.RemoteID, &e.Note, &refundRef, &e.CreatedAt); err != nil {
		return Exchange{}, err
	}
	e.Amount = money.New(amount, currency)
	e.Fee = money.New(fee, currency)
	if route != nil {
		e.RouteID = *route
	}
	if refundRef != nil {
		e.RefundRef = *refundRef
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
