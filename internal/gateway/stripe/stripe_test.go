package stripe

import (
	"errors"
	"net/http"
	"testing"

	stripego "github.com/stripe/stripe-go/v76"

	"github.com/congo-pay/settlement/internal/gateway"
)

func TestConvertErrorCardDecline(t *testing.T) {
	err := convertError(&stripego.Error{
		Type:           stripego.ErrorTypeCard,
		Code:           stripego.ErrorCodeCardDeclined,
		Msg:            "Your card was declined.",
		RequestID:      "req_123",
		HTTPStatusCode: http.StatusPaymentRequired,
	})

	be, ok := gateway.AsBusinessError(err)
	if !ok {
		t.Fatalf("expected business error, got %T", err)
	}
	if got := be.Display(); got != "Your card was declined. (request ID: req_123)" {
		t.Fatalf("unexpected display %q", got)
	}
}

func TestConvertErrorAPIIsUnexpected(t *testing.T) {
	err := convertError(&stripego.Error{Type: stripego.ErrorTypeAPI, RequestID: "req_9"})
	if _, ok := gateway.AsBusinessError(err); ok {
		t.Fatalf("api errors must not be business errors")
	}
	var se *stripego.Error
	if !errors.As(err, &se) {
		t.Fatalf("expected the stripe error to stay wrapped")
	}
}

func TestConvertErrorPassesThroughTransportErrors(t *testing.T) {
	base := errors.New("dial tcp: i/o timeout")
	if err := convertError(base); err != base {
		t.Fatalf("expected transport error unchanged, got %v", err)
	}
}

func TestToChargeResult(t *testing.T) {
	res, err := toChargeResult(&stripego.Charge{
		ID:       "ch_1",
		Status:   stripego.ChargeStatusSucceeded,
		Transfer: &stripego.Transfer{ID: "tr_1"},
		BalanceTransaction: &stripego.BalanceTransaction{
			Amount:   1000,
			Fee:      30,
			Currency: stripego.CurrencyEUR,
		},
	})
	if err != nil {
		t.Fatalf("toChargeResult: %v", err)
	}
	if res.TransferID != "tr_1" || res.Settlement.Fee != 30 || res.Settlement.Currency != "eur" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.FailureText() != "" {
		t.Fatalf("succeeded charge must not carry failure text")
	}

	if _, err := toChargeResult(&stripego.Charge{ID: "ch_2", Status: stripego.ChargeStatusSucceeded}); err == nil {
		t.Fatalf("expected error when a succeeded charge has no balance transaction")
	}
}

func TestToChargeResultWithoutSettlement(t *testing.T) {
	failed, err := toChargeResult(&stripego.Charge{
		ID:             "ch_failed",
		Status:         stripego.ChargeStatusFailed,
		FailureMessage: "Your card was declined.",
		FailureCode:    "card_declined",
	})
	if err != nil {
		t.Fatalf("failed charge: %v", err)
	}
	if failed.ID != "ch_failed" || failed.FailureText() != "Your card was declined. (code card_declined)" {
		t.Fatalf("unexpected result %+v", failed)
	}
	if failed.Settlement != (gateway.Settlement{}) {
		t.Fatalf("failed charge must not carry a settlement, got %+v", failed.Settlement)
	}

	pending, err := toChargeResult(&stripego.Charge{
		ID:       "ch_sdd",
		Status:   stripego.ChargeStatusPending,
		Transfer: &stripego.Transfer{ID: "tr_sdd"},
	})
	if err != nil {
		t.Fatalf("pending charge: %v", err)
	}
	if pending.Status != gateway.ChargePending || pending.TransferID != "tr_sdd" || pending.Settlement.Currency != "" {
		t.Fatalf("unexpected result %+v", pending)
	}
}
