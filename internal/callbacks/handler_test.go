package callbacks

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/gateway"
	"github.com/congo-pay/settlement/internal/logging"
)

func newTestApp(f *fixture) *fiber.App {
	h := NewHandler(f.reconciler, logging.Discard())
	app := fiber.New()
	app.Get("/callbacks/mangopay", h.Mangopay)
	app.Post("/callbacks/mangopay", h.Mangopay)
	return app
}

func TestHandlerAppliesPayin(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)
	e := f.exchange(t, "11.00", "0.00")
	f.fetcher.PutPayin(gateway.Payin{ID: "pi_1", AuthorID: "mango_user_1", Status: gateway.ResourceSucceeded, Tag: e.Tag()})

	for _, method := range []string{fiber.MethodGet, fiber.MethodPost} {
		req := httptest.NewRequest(method, "/callbacks/mangopay?EventType=PAYIN_NORMAL_SUCCEEDED&RessourceId=pi_1", nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected %d got %d", method, http.StatusOK, resp.StatusCode)
		}
		var out struct {
			ExchangeID string `json:"exchange_id"`
			Status     string `json:"status"`
			Applied    bool   `json:"applied"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		resp.Body.Close()
		if out.ExchangeID != e.ID || out.Status != "succeeded" {
			t.Fatalf("unexpected response %+v", out)
		}
		// only the first delivery applies
		if out.Applied != (method == fiber.MethodGet) {
			t.Fatalf("%s: unexpected applied flag %v", method, out.Applied)
		}
	}
	assertBalance(t, f.reload(t), "11.00")
}

func TestHandlerStatusCodes(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)
	f.fetcher.PutPayout(gateway.Payout{ID: "po_1", AuthorID: "mango_user_1", Status: gateway.ResourceFailed, Tag: "nope"})

	cases := []struct {
		name  string
		query string
		want  int
	}{
		{"missing resource", "?EventType=PAYOUT_NORMAL_FAILED", http.StatusBadRequest},
		{"unknown event", "?EventType=KYC_SUCCEEDED&RessourceId=1", http.StatusBadRequest},
		{"bad tag", "?EventType=PAYOUT_NORMAL_FAILED&RessourceId=po_1", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/callbacks/mangopay"+tc.query, nil))
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d got %d", tc.want, resp.StatusCode)
			}
		})
	}

	f.fetcher.Err = errors.New("timeout")
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/callbacks/mangopay?EventType=PAYOUT_NORMAL_FAILED&RessourceId=po_1", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected %d got %d", http.StatusBadGateway, resp.StatusCode)
	}
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent("PAYOUT_REFUND_SUCCEEDED", " 42 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	refund, ok := ev.(PayoutRefund)
	if !ok || refund.ResourceID != "42" || refund.Outcome != OutcomeSucceeded {
		t.Fatalf("unexpected event %#v", ev)
	}
	if EventName(ev) != "PAYOUT_REFUND_SUCCEEDED" {
		t.Fatalf("unexpected name %s", EventName(ev))
	}

	for _, bad := range []string{"", "PAYOUT", "PAYOUT_NORMAL_DONE", "TRANSFER_NORMAL_FAILED"} {
		if _, err := ParseEvent(bad, "1"); !errors.Is(err, ErrMalformedEvent) {
			t.Fatalf("%q: expected malformed, got %v", bad, err)
		}
	}
}
