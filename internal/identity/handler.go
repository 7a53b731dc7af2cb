package identity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Provisioner sets up whatever a freshly registered user needs to transact.
type Provisioner func(c *fiber.Ctx, user User) (walletID string, err error)

// Handler exposes identity endpoints.
type Handler struct {
	service   *Service
	provision Provisioner
}

// NewHandler constructs an identity HTTP handler. provision may be nil.
func NewHandler(service *Service, provision Provisioner) *Handler {
	return &Handler{service: service, provision: provision}
}

type registerRequest struct {
	Phone    string `json:"phone"`
	PIN      string `json:"pin"`
	DeviceID string `json:"device_id"`
}

type authResponse struct {
	UserID   string `json:"user_id"`
	Phone    string `json:"phone"`
	Tier     string `json:"tier"`
	DeviceID string `json:"device_id"`
	WalletID string `json:"wallet_id,omitempty"`
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Register(c.UserContext(), Credentials{Phone: req.Phone, PIN: req.PIN, DeviceID: req.DeviceID})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	resp := authResponse{UserID: user.ID, Phone: user.Phone, Tier: user.Tier, DeviceID: user.DeviceID}
	if h.provision != nil {
		walletID, err := h.provision(c, user)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		resp.WalletID = walletID
	}
	return c.Status(http.StatusCreated).JSON(resp)
}

// Authenticate verifies login credentials without issuing tokens.
func (h *Handler) Authenticate(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Authenticate(c.UserContext(), Credentials{Phone: req.Phone, PIN: req.PIN, DeviceID: req.DeviceID})
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	return c.Status(http.StatusOK).JSON(authResponse{UserID: user.ID, Phone: user.Phone, Tier: user.Tier, DeviceID: user.DeviceID})
}

// Me returns the profile of the authenticated caller.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	user, err := h.service.Get(c.UserContext(), uid)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(Profile(user))
}

// Profile renders the public fields of a user.
func Profile(user User) fiber.Map {
	return fiber.Map{
		"user_id":       user.ID,
		"phone":         user.Phone,
		"tier":          user.Tier,
		"device_id":     user.DeviceID,
		"token_version": user.TokenVersion,
		"created_at":    user.CreatedAt,
		"last_login":    user.LastLogin,
	}
}
