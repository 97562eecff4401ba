package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/payin"
)

// RegisterPayinRoutes wires payin endpoints. The static reversal listing is
// registered before the :payinId routes.
func RegisterPayinRoutes(r fiber.Router, h *payin.Handler) {
	g := r.Group("/payins")
	g.Post("/", h.Create)
	g.Get("/reversals/pending", h.PendingReversals)
	g.Get("/:payinId", h.Get)
	g.Post("/:payinId/charge", h.RetryCharge)
	g.Post("/:payinId/fee-reversal", h.RetryFeeReversal)
}
