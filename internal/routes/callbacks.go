package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/callbacks"
)

// RegisterCallbackRoutes exposes the wallet gateway hook, which may arrive as GET or POST.
func RegisterCallbackRoutes(app *fiber.App, h *callbacks.Handler) {
	app.Get("/callbacks/mangopay", h.Mangopay)
	app.Post("/callbacks/mangopay", h.Mangopay)
}
