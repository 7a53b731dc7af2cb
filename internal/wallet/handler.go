package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes wallet HTTP endpoints. Endpoints act on wallets owned by
// the caller in the "user_id" local.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Currency string `json:"currency"`
}

type walletResponse struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	AccountCode string `json:"account_code"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
}

func toResponse(w Wallet) walletResponse {
	return walletResponse{
		ID:          w.ID,
		OwnerID:     w.OwnerID,
		AccountCode: w.AccountCode,
		Currency:    w.Currency,
		Status:      w.Status,
	}
}

// Create provisions a wallet for the authenticated owner.
func (h *Handler) Create(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	wallet, err := h.service.Create(c.UserContext(), CreateInput{OwnerID: uid, Currency: req.Currency})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(wallet))
}

// Balance returns the wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	walletID := c.Params("walletId")
	w, err := h.service.Get(c.UserContext(), walletID)
	if err != nil {
		return notFound(err)
	}
	if w.OwnerID != uid {
		return fiber.NewError(http.StatusForbidden, "wallet belongs to another user")
	}
	balance, err := h.service.Balance(c.UserContext(), walletID)
	if err != nil {
		return notFound(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id": walletID,
		"currency":  balance.Currency,
		"balance":   balance.Amount,
		"timestamp": balance.AsOf,
	})
}

// Mine returns the caller's wallet of the requested currency with its balance.
func (h *Handler) Mine(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	w, err := h.service.GetByOwner(c.UserContext(), uid, c.Query("currency"))
	if err != nil {
		return notFound(err)
	}
	bal, err := h.service.Balance(c.UserContext(), w.ID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"id":           w.ID,
		"account_code": w.AccountCode,
		"currency":     w.Currency,
		"status":       w.Status,
		"created_at":   w.CreatedAt,
		"balance":      bal.Amount,
		"as_of":        bal.AsOf,
	})
}

func callerID(c *fiber.Ctx) (string, error) {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return uid, nil
}

func notFound(err error) error {
	if errors.Is(err, ErrWalletNotFound) {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	return fiber.NewError(http.StatusInternalServerError, err.Error())
}
