package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/paystream/internal/stream"
)

// RegisterStreamRoutes wires payment stream endpoints.
func RegisterStreamRoutes(r fiber.Router, h *stream.Handler) {
	r.Post("/streams", h.Open)
	r.Get("/streams/incoming", h.Incoming)
	r.Get("/streams/:ownerId", h.Get)
	r.Post("/streams/:ownerId/withdraw", h.Withdraw)
	r.Post("/streams/:ownerId/close", h.Close)
}
