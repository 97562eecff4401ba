package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/settlement/internal/logging"
)

type testApp struct {
	app   *fiber.App
	calls atomic.Int32
	fail  atomic.Bool
}

func setupTestApp(t *testing.T) (*testApp, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ta := &testApp{app: fiber.New()}
	logger := logging.Discard()
	ta.app.Use(Idempotency(cache, time.Minute, logger))
	handler := func(c *fiber.Ctx) error {
		n := ta.calls.Add(1)
		if ta.fail.Load() {
			return fiber.NewError(fiber.StatusBadGateway, "gateway down")
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": n})
	}
	ta.app.Post("/payins", handler)
	ta.app.Post("/participants", handler)

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return ta, cleanup
}

func (ta *testApp) post(t *testing.T, path, key string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := ta.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(payload)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	ta, cleanup := setupTestApp(t)
	defer cleanup()

	if status, _ := ta.post(t, "/payins", ""); status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
	if status, _ := ta.post(t, "/payins", strings.Repeat("k", maxKeyLength+1)); status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	ta, cleanup := setupTestApp(t)
	defer cleanup()

	status, payload := ta.post(t, "/payins", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	// Second request should return the cached response without invoking handler again.
	status2, cachedPayload := ta.post(t, "/payins", "abc123")
	if status2 != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status2)
	}
	if cachedPayload != payload {
		t.Fatalf("expected cached payload %s got %s", payload, cachedPayload)
	}
	if n := ta.calls.Load(); n != 1 {
		t.Fatalf("expected handler to run once, ran %d times", n)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cachedPayload), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyKeysAreScopedToPath(t *testing.T) {
	ta, cleanup := setupTestApp(t)
	defer cleanup()

	ta.post(t, "/payins", "shared")
	ta.post(t, "/participants", "shared")
	if n := ta.calls.Load(); n != 2 {
		t.Fatalf("expected both endpoints to run, got %d calls", n)
	}
}

func TestIdempotencyReleasesKeyOnError(t *testing.T) {
	ta, cleanup := setupTestApp(t)
	defer cleanup()

	ta.fail.Store(true)
	if status, _ := ta.post(t, "/payins", "retry-me"); status != fiber.StatusBadGateway {
		t.Fatalf("expected %d got %d", fiber.StatusBadGateway, status)
	}

	ta.fail.Store(false)
	if status, _ := ta.post(t, "/payins", "retry-me"); status != fiber.StatusCreated {
		t.Fatalf("expected retry to run, got %d", status)
	}
	if n := ta.calls.Load(); n != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", n)
	}
}
