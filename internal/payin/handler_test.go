package payin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func newTestApp(f *fixture) *fiber.App {
	h := NewHandler(f.service, "CONGOPAY")
	app := fiber.New()
	app.Post("/payins", h.Create)
	app.Get("/payins/reversals/pending", h.PendingReversals)
	app.Get("/payins/:payinId", h.Get)
	app.Post("/payins/:payinId/charge", h.RetryCharge)
	app.Post("/payins/:payinId/fee-reversal", h.RetryFeeReversal)
	return app
}

func TestHandlerCreateAndGet(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)

	body := fmt.Sprintf(`{"payer_id":%q,"route_id":%q,"amount":"10.00","currency":"EUR","destination":%q}`,
		f.payer.ID, f.route.ID, f.payeeAcc.PK)
	req := httptest.NewRequest(fiber.MethodPost, "/payins", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected %d got %d", http.StatusCreated, resp.StatusCode)
	}
	var created PayinResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()

	if created.Status != "succeeded" || created.Fee != "0.30 EUR" || created.AmountSettled != "10.00 EUR" {
		t.Fatalf("unexpected payin %+v", created)
	}
	if created.Transfer == nil || created.Transfer.Amount != "9.70" {
		t.Fatalf("unexpected transfer %+v", created.Transfer)
	}

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/payins/"+created.ID, nil))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected %d got %d", http.StatusOK, resp.StatusCode)
	}
}

func TestHandlerCreateRejectsBadAmount(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)

	body := fmt.Sprintf(`{"payer_id":%q,"route_id":%q,"amount":"ten","currency":"EUR","destination":%q}`,
		f.payer.ID, f.route.ID, f.payeeAcc.PK)
	req := httptest.NewRequest(fiber.MethodPost, "/payins", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected %d got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestHandlerGetUnknownPayin(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/payins/4d1b3a52-0000-4000-8000-000000000000", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected %d got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestHandlerPendingReversals(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/payins/reversals/pending", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected %d got %d", http.StatusOK, resp.StatusCode)
	}
	var out struct {
		Transfers []TransferResponse `json:"transfers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Transfers) != 0 {
		t.Fatalf("expected no pending reversals, got %d", len(out.Transfers))
	}
}

func TestHandlerRetryChargeAfterTimeout(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)
	f.charger.SetChargeErr(errors.New("dial tcp: i/o timeout"))

	body := fmt.Sprintf(`{"payer_id":%q,"amount":"10.00","currency":"EUR","destination":%q}`, f.payer.ID, f.payeeAcc.PK)
	req := httptest.NewRequest(fiber.MethodPost, "/payins", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected %d got %d", http.StatusAccepted, resp.StatusCode)
	}
	var created PayinResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if created.Status != "pending" || created.Error == "" {
		t.Fatalf("unexpected payin %+v", created)
	}

	f.charger.SetChargeErr(nil)
	resp, err = app.Test(httptest.NewRequest(fiber.MethodPost, "/payins/"+created.ID+"/charge", nil))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected %d got %d", http.StatusOK, resp.StatusCode)
	}
	var retried PayinResponse
	if err := json.NewDecoder(resp.Body).Decode(&retried); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if retried.Status != "succeeded" || retried.Transfer == nil || retried.Transfer.Amount != "9.70" {
		t.Fatalf("unexpected payin after retry %+v", retried)
	}
}
