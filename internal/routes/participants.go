package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/participant"
)

// RegisterParticipantRoutes wires participant, route, account and exchange endpoints.
func RegisterParticipantRoutes(r fiber.Router, h *participant.Handler) {
	g := r.Group("/participants")
	g.Post("/", h.Create)
	g.Get("/:participantId", h.Get)
	g.Post("/:participantId/close", h.Close)
	g.Post("/:participantId/routes", h.AddRoute)
	g.Post("/:participantId/payment-accounts", h.AddPaymentAccount)
	g.Post("/:participantId/exchanges", h.RecordExchange)
	g.Get("/:participantId/exchanges/:exchangeId", h.Exchange)
}
