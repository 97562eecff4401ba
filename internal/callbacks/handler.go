package callbacks

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/metrics"
)

// Handler receives wallet gateway notifications.
type Handler struct {
	reconciler *Reconciler
	logger     *slog.Logger
}

// NewHandler constructs a callback handler.
func NewHandler(reconciler *Reconciler, logger *slog.Logger) *Handler {
	return &Handler{reconciler: reconciler, logger: logger}
}

// Mangopay handles GET and POST hooks carrying EventType and RessourceId
// in the query string.
func (h *Handler) Mangopay(c *fiber.Ctx) error {
	ev, err := ParseEvent(c.Query("EventType"), c.Query("RessourceId"))
	if err != nil {
		metrics.IncCallback("unknown", "malformed")
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.reconciler.Reconcile(c.UserContext(), ev)
	if err != nil {
		h.logger.Warn("callback rejected",
			slog.String("event", EventName(ev)),
			slog.String("resource_id", ev.Resource()),
			slog.Any("error", err),
		)
		switch {
		case errors.Is(err, ErrReconciliationMismatch), errors.Is(err, ErrMalformedEvent):
			metrics.IncCallback(EventName(ev), "mismatch")
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrGatewayUnavailable):
			metrics.IncCallback(EventName(ev), "gateway_error")
			return fiber.NewError(http.StatusBadGateway, err.Error())
		default:
			metrics.IncCallback(EventName(ev), "error")
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	result := "duplicate"
	if res.Applied {
		result = "applied"
	} else if res.Status == "pending" {
		result = "ignored"
	}
	metrics.IncCallback(res.Event, result)

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"event":       res.Event,
		"exchange_id": res.ExchangeID,
		"status":      res.Status,
		"applied":     res.Applied,
	})
}
