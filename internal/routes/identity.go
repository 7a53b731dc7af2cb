package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/paystream/internal/identity"
)

// RegisterIdentityRoutes wires onboarding endpoints. Registration provisions a
// wallet in the default asset.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/identity/register", h.Register)
	r.Post("/identity/authenticate", h.Authenticate)
}
