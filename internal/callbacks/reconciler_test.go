package callbacks

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/congo-pay/settlement/internal/gateway"
	"github.com/congo-pay/settlement/internal/gateway/gatewaytest"
	"github.com/congo-pay/settlement/internal/ledger"
	"github.com/congo-pay/settlement/internal/logging"
	"github.com/congo-pay/settlement/internal/money"
	"github.com/congo-pay/settlement/internal/notification"
)

type fixture struct {
	store      ledger.Store
	fetcher    *gatewaytest.Fetcher
	recorder   *notification.Recorder
	reconciler *Reconciler

	participant ledger.Participant
	route       ledger.ExchangeRoute
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:    ledger.NewInMemory(),
		fetcher:  gatewaytest.NewFetcher(),
		recorder: &notification.Recorder{},
	}
	f.reconciler = NewReconciler(f.store, f.fetcher, notification.NewSender(f.recorder), logging.Discard())

	var err error
	f.participant, err = f.store.CreateParticipant(ctx, ledger.Participant{
		Email:         "janet@example.com",
		GatewayUserID: "mango_user_1",
		Balance:       money.Zero("EUR"),
	})
	if err != nil {
		t.Fatalf("create participant: %v", err)
	}
	f.route, err = f.store.CreateRoute(ctx, ledger.ExchangeRoute{
		ParticipantID: f.participant.ID,
		Network:       ledger.NetworkMangoBank,
		RemoteUserID:  "mango_user_1",
		Address:       "ba_1",
	})
	if err != nil {
		t.Fatalf("create route: %v", err)
	}
	return f
}

func (f *fixture) exchange(t *testing.T, amount, fee string) ledger.Exchange {
	t.Helper()
	e, err := f.store.RecordExchange(context.Background(), ledger.ExchangeInput{
		ParticipantID: f.participant.ID,
		RouteID:       f.route.ID,
		Amount:        money.MustParse(amount, "EUR"),
		Fee:           money.MustParse(fee, "EUR"),
	})
	if err != nil {
		t.Fatalf("record exchange: %v", err)
	}
	return e
}

func (f *fixture) close(t *testing.T) {
	t.Helper()
	if err := f.store.SetParticipantStatus(context.Background(), f.participant.ID, ledger.ParticipantClosed); err != nil {
		t.Fatalf("close participant: %v", err)
	}
}

func (f *fixture) reload(t *testing.T) ledger.Participant {
	t.Helper()
	p, err := f.store.Participant(context.Background(), f.participant.ID)
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	return p
}

func (f *fixture) reconcile(t *testing.T, eventType, resourceID string) Result {
	t.Helper()
	ev, err := ParseEvent(eventType, resourceID)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	res, err := f.reconciler.Reconcile(context.Background(), ev)
	if err != nil {
		t.Fatalf("reconcile %s: %v", eventType, err)
	}
	return res
}

func assertBalance(t *testing.T, p ledger.Participant, want string) {
	t.Helper()
	if !p.Balance.Equal(money.MustParse(want, "EUR")) {
		t.Fatalf("expected balance %s EUR, got %s", want, p.Balance)
	}
}

func TestPayoutFailureRestoresBalance(t *testing.T) {
	f := newFixture(t)
	ledger.SeedBalance(f.store, f.participant.ID, money.MustParse("10.00", "EUR"))
	e := f.exchange(t, "-10.00", "0.00")
	f.close(t)
	assertBalance(t, f.reload(t), "0")

	f.fetcher.PutPayout(gateway.Payout{
		ID: "po_1", AuthorID: "mango_user_1", Status: gateway.ResourceFailed,
		ResultCode: "001999", ResultMessage: "account closed", Tag: e.Tag(),
	})
	res := f.reconcile(t, "PAYOUT_NORMAL_FAILED", "po_1")
	if !res.Applied || res.Status != ledger.StatusFailed || !res.Notified {
		t.Fatalf("unexpected result %+v", res)
	}

	p := f.reload(t)
	assertBalance(t, p, "10.00")
	if p.Status != ledger.ParticipantActive {
		t.Fatalf("expected participant reopened, got %s", p.Status)
	}
	msgs := f.recorder.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one notification, got %d", len(msgs))
	}
	if !strings.Contains(strings.ToLower(msgs[0].Subject), "fail") {
		t.Fatalf("unexpected subject %q", msgs[0].Subject)
	}
	if !strings.Contains(msgs[0].Body, "account closed") || !strings.Contains(msgs[0].Body, "10.00 EUR") {
		t.Fatalf("unexpected body %q", msgs[0].Body)
	}
	if msgs[0].Destination != "janet@example.com" {
		t.Fatalf("unexpected destination %q", msgs[0].Destination)
	}
}

func TestPayoutFailureDeliveredTwiceAppliesOnce(t *testing.T) {
	f := newFixture(t)
	ledger.SeedBalance(f.store, f.participant.ID, money.MustParse("10.00", "EUR"))
	e := f.exchange(t, "-10.00", "0.00")
	f.fetcher.PutPayout(gateway.Payout{ID: "po_1", AuthorID: "mango_user_1", Status: gateway.ResourceFailed, Tag: e.Tag()})

	f.reconcile(t, "PAYOUT_NORMAL_FAILED", "po_1")
	res := f.reconcile(t, "PAYOUT_NORMAL_FAILED", "po_1")
	if res.Applied || res.Notified {
		t.Fatalf("expected duplicate to be a no-op, got %+v", res)
	}
	assertBalance(t, f.reload(t), "10.00")
	if n := len(f.recorder.Messages()); n != 1 {
		t.Fatalf("expected one notification, got %d", n)
	}
}

func TestPayoutSuccessKeepsDebit(t *testing.T) {
	f := newFixture(t)
	ledger.SeedBalance(f.store, f.participant.ID, money.MustParse("10.00", "EUR"))
	e := f.exchange(t, "-9.00", "1.00")
	f.fetcher.PutPayout(gateway.Payout{ID: "po_1", AuthorID: "mango_user_1", Status: gateway.ResourceSucceeded, Tag: e.Tag()})

	res := f.reconcile(t, "PAYOUT_NORMAL_SUCCEEDED", "po_1")
	if !res.Applied || res.Status != ledger.StatusSucceeded {
		t.Fatalf("unexpected result %+v", res)
	}
	assertBalance(t, f.reload(t), "0")
	if n := len(f.recorder.Messages()); n != 0 {
		t.Fatalf("expected no notification, got %d", n)
	}
}

func TestFetchedStatusWinsOverEventName(t *testing.T) {
	f := newFixture(t)
	ledger.SeedBalance(f.store, f.participant.ID, money.MustParse("10.00", "EUR"))
	e := f.exchange(t, "-10.00", "0.00")
	f.fetcher.PutPayout(gateway.Payout{ID: "po_1", AuthorID: "mango_user_1", Status: gateway.ResourceSucceeded, Tag: e.Tag()})

	res := f.reconcile(t, "PAYOUT_NORMAL_FAILED", "po_1")
	if res.Status != ledger.StatusSucceeded {
		t.Fatalf("expected the fetched status to apply, got %+v", res)
	}
	assertBalance(t, f.reload(t), "0")
}

func TestPayoutRefundSucceeded(t *testing.T) {
	f := newFixture(t)
	ledger.SeedBalance(f.store, f.participant.ID, money.MustParse("10.00", "EUR"))
	e := f.exchange(t, "-9.00", "1.00")
	f.close(t)
	assertBalance(t, f.reload(t), "0")

	f.fetcher.PutPayout(gateway.Payout{ID: "po_1", AuthorID: "mango_user_1", Status: gateway.ResourceSucceeded, Tag: e.Tag()})
	f.fetcher.PutRefund(gateway.Refund{
		ID: "rf_1", AuthorID: "mango_user_1", Status: gateway.ResourceSucceeded,
		InitialTransactionID: "po_1", ReasonMessage: "BECAUSE 42",
		DebitedFunds: 900, Fees: -100, Currency: "EUR",
	})

	res := f.reconcile(t, "PAYOUT_REFUND_SUCCEEDED", "rf_1")
	if !res.Applied || res.Status != ledger.StatusSucceeded || res.ExchangeID == e.ID {
		t.Fatalf("unexpected result %+v", res)
	}

	p := f.reload(t)
	assertBalance(t, p, "10.00")
	if p.Status != ledger.ParticipantActive {
		t.Fatalf("expected participant reopened, got %s", p.Status)
	}
	refund, err := f.store.Exchange(context.Background(), res.ExchangeID)
	if err != nil {
		t.Fatalf("refund exchange: %v", err)
	}
	if refund.RefundRef != e.ID || !refund.Amount.Equal(money.MustParse("9.00", "EUR")) ||
		!refund.Fee.Equal(money.MustParse("-1.00", "EUR")) {
		t.Fatalf("unexpected refund exchange %+v", refund)
	}
	msgs := f.recorder.Messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].Body, "BECAUSE 42") {
		t.Fatalf("unexpected notifications %+v", msgs)
	}

	// redelivery finds the same refund exchange and changes nothing
	again := f.reconcile(t, "PAYOUT_REFUND_SUCCEEDED", "rf_1")
	if again.Applied || again.ExchangeID != res.ExchangeID {
		t.Fatalf("unexpected redelivery result %+v", again)
	}
	assertBalance(t, f.reload(t), "10.00")
	if n := len(f.recorder.Messages()); n != 1 {
		t.Fatalf("expected one notification, got %d", n)
	}
}

func TestPayoutRefundWithOtherFundsIsRejected(t *testing.T) {
	cases := []struct {
		name     string
		debited  int64
		fees     int64
		currency string
	}{
		{"amount", 800, -100, "EUR"},
		{"fees", 900, 0, "EUR"},
		{"currency", 900, -100, "USD"},
		{"not reported", 0, 0, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ledger.SeedBalance(f.store, f.participant.ID, money.MustParse("10.00", "EUR"))
			e := f.exchange(t, "-9.00", "1.00")
			f.close(t)

			f.fetcher.PutPayout(gateway.Payout{ID: "po_1", AuthorID: "mango_user_1", Status: gateway.ResourceSucceeded, Tag: e.Tag()})
			f.fetcher.PutRefund(gateway.Refund{
				ID: "rf_1", AuthorID: "mango_user_1", Status: gateway.ResourceSucceeded, InitialTransactionID: "po_1",
				DebitedFunds: tc.debited, Fees: tc.fees, Currency: tc.currency,
			})

			_, err := f.reconciler.Reconcile(context.Background(), PayoutRefund{ResourceID: "rf_1", Outcome: OutcomeSucceeded})
			if !errors.Is(err, ErrReconciliationMismatch) {
				t.Fatalf("expected mismatch, got %v", err)
			}
			p := f.reload(t)
			assertBalance(t, p, "0")
			if p.Status != ledger.ParticipantClosed {
				t.Fatalf("expected participant to stay closed, got %s", p.Status)
			}
			if n := len(f.recorder.Messages()); n != 0 {
				t.Fatalf("expected no notification, got %d", n)
			}
		})
	}
}

func TestPayoutRefundFailedChangesNothing(t *testing.T) {
	f := newFixture(t)
	ledger.SeedBalance(f.store, f.participant.ID, money.MustParse("10.00", "EUR"))
	e := f.exchange(t, "-9.00", "1.00")
	f.close(t)

	f.fetcher.PutPayout(gateway.Payout{ID: "po_1", AuthorID: "mango_user_1", Status: gateway.ResourceSucceeded, Tag: e.Tag()})
	f.fetcher.PutRefund(gateway.Refund{
		ID: "rf_1", AuthorID: "mango_user_1", Status: gateway.ResourceFailed, InitialTransactionID: "po_1",
	})

	res := f.reconcile(t, "PAYOUT_REFUND_FAILED", "rf_1")
	if res.Applied || res.Status != ledger.StatusFailed {
		t.Fatalf("unexpected result %+v", res)
	}
	p := f.reload(t)
	assertBalance(t, p, "0")
	if p.Status != ledger.ParticipantClosed {
		t.Fatalf("expected participant to stay closed, got %s", p.Status)
	}
	if n := len(f.recorder.Messages()); n != 0 {
		t.Fatalf("expected no notification, got %d", n)
	}
}

func TestPayinBankwire(t *testing.T) {
	cases := []struct {
		name        string
		status      string
		wantBalance string
		wantStatus  string
		subject     string
	}{
		{"succeeded", gateway.ResourceSucceeded, "11.00", ledger.ParticipantActive, "succ"},
		{"failed", gateway.ResourceFailed, "0", ledger.ParticipantClosed, "fail"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			e := f.exchange(t, "11.00", "0.00")
			f.close(t)

			f.fetcher.PutPayin(gateway.Payin{
				ID: "pi_1", AuthorID: "mango_user_1", Status: tc.status, PaymentType: "BANK_WIRE", Tag: e.Tag(),
			})
			res := f.reconcile(t, "PAYIN_NORMAL_"+strings.ToUpper(tc.name), "pi_1")
			if !res.Applied || res.Status != tc.name {
				t.Fatalf("unexpected result %+v", res)
			}

			p := f.reload(t)
			assertBalance(t, p, tc.wantBalance)
			if p.Status != tc.wantStatus {
				t.Fatalf("expected participant %s, got %s", tc.wantStatus, p.Status)
			}
			msgs := f.recorder.Messages()
			if len(msgs) != 1 || !strings.Contains(strings.ToLower(msgs[0].Subject), tc.subject) {
				t.Fatalf("unexpected notifications %+v", msgs)
			}
		})
	}
}

func TestCreatedIsANoOp(t *testing.T) {
	f := newFixture(t)
	e := f.exchange(t, "11.00", "0.00")
	f.fetcher.PutPayin(gateway.Payin{ID: "pi_1", AuthorID: "mango_user_1", Status: gateway.ResourceCreated, Tag: e.Tag()})

	res := f.reconcile(t, "PAYIN_NORMAL_CREATED", "pi_1")
	if res.Applied || res.Status != ledger.StatusPending {
		t.Fatalf("unexpected result %+v", res)
	}
	got, err := f.store.Exchange(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if got.Status != ledger.StatusPre {
		t.Fatalf("expected exchange untouched, got %s", got.Status)
	}
}

func TestMismatchedNotificationsAreRejected(t *testing.T) {
	f := newFixture(t)
	notPayout := f.exchange(t, "0.00", "0.00")
	ledger.SeedBalance(f.store, f.participant.ID, money.MustParse("5.00", "EUR"))
	owned := f.exchange(t, "-5.00", "0.00")

	f.fetcher.PutPayout(gateway.Payout{ID: "po_badtag", AuthorID: "mango_user_1", Status: gateway.ResourceFailed, Tag: "hello"})
	f.fetcher.PutPayout(gateway.Payout{ID: "po_unknown", AuthorID: "mango_user_1", Status: gateway.ResourceFailed,
		Tag: ledger.ExchangeTag("5b0f6ad4-31a5-4df0-9b3b-0c7e1a0b7d11")})
	f.fetcher.PutPayout(gateway.Payout{ID: "po_author", AuthorID: "someone_else", Status: gateway.ResourceFailed, Tag: owned.Tag()})
	f.fetcher.PutPayout(gateway.Payout{ID: "po_payin", AuthorID: "mango_user_1", Status: gateway.ResourceFailed, Tag: notPayout.Tag()})

	for _, id := range []string{"po_badtag", "po_unknown", "po_author", "po_payin", "po_missing"} {
		_, err := f.reconciler.Reconcile(context.Background(), PayoutNormal{ResourceID: id, Outcome: OutcomeFailed})
		if !errors.Is(err, ErrReconciliationMismatch) {
			t.Fatalf("%s: expected mismatch, got %v", id, err)
		}
	}
	assertBalance(t, f.reload(t), "0")
	if n := len(f.recorder.Messages()); n != 0 {
		t.Fatalf("expected no notification, got %d", n)
	}
}

func TestGatewayFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.fetcher.Err = errors.New("connection reset")

	_, err := f.reconciler.Reconcile(context.Background(), PayinNormal{ResourceID: "pi_1", Outcome: OutcomeSucceeded})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected gateway error, got %v", err)
	}
}

func TestNotificationFailureKeepsTransition(t *testing.T) {
	f := newFixture(t)
	f.recorder.Err = errors.New("broker down")
	e := f.exchange(t, "11.00", "0.00")
	f.fetcher.PutPayin(gateway.Payin{ID: "pi_1", AuthorID: "mango_user_1", Status: gateway.ResourceSucceeded, Tag: e.Tag()})

	res := f.reconcile(t, "PAYIN_NORMAL_SUCCEEDED", "pi_1")
	if !res.Applied || res.Notified {
		t.Fatalf("unexpected result %+v", res)
	}
	assertBalance(t, f.reload(t), "11.00")
}
