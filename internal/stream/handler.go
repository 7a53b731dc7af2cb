package stream

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// Handler exposes stream HTTP endpoints. Every endpoint expects the
// authenticated caller in the "user_id" local.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a stream HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

type openRequest struct {
	ReceiverID string `json:"receiver_id" validate:"required"`
	EndTime    int64  `json:"end_time" validate:"required,gt=0"`
	Rate       int64  `json:"rate" validate:"required,gt=0"`
	Asset      string `json:"asset" validate:"omitempty,alphanum,max=12"`
}

type assetRequest struct {
	Asset string `json:"asset" validate:"omitempty,alphanum,max=12"`
}

type streamResponse struct {
	OwnerID      string `json:"owner_id"`
	ReceiverID   string `json:"receiver_id"`
	Asset        string `json:"asset"`
	StartTime    int64  `json:"start_time"`
	EndTime      int64  `json:"end_time"`
	Rate         int64  `json:"rate"`
	Withdrawn    int64  `json:"withdrawn"`
	Escrow       int64  `json:"escrow"`
	Vested       int64  `json:"vested"`
	Withdrawable int64  `json:"withdrawable"`
	AsOf         int64  `json:"as_of"`
}

func toResponse(s Snapshot) streamResponse {
	return streamResponse{
		OwnerID:      s.Stream.Owner,
		ReceiverID:   s.Stream.Receiver,
		Asset:        s.Stream.Asset,
		StartTime:    s.Stream.StartTime,
		EndTime:      s.Stream.EndTime,
		Rate:         s.Stream.Rate,
		Withdrawn:    s.Stream.Withdrawn,
		Escrow:       s.Stream.Escrow,
		Vested:       s.Vested,
		Withdrawable: s.Withdrawable,
		AsOf:         s.Now,
	}
}

// Open starts a stream from the caller to the requested receiver.
func (h *Handler) Open(c *fiber.Ctx) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	var req openRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	rec, err := h.service.Open(c.UserContext(), OpenInput{
		Sender:   caller,
		Receiver: req.ReceiverID,
		Asset:    req.Asset,
		EndTime:  req.EndTime,
		Rate:     req.Rate,
	})
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(h.service.snapshot(rec, rec.StartTime)))
}

// Get returns the owner's live stream.
func (h *Handler) Get(c *fiber.Ctx) error {
	if _, err := callerID(c); err != nil {
		return err
	}
	snap, err := h.service.Get(c.UserContext(), c.Params("ownerId"), c.Query("asset"))
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(snap))
}

// Incoming lists the streams paying the caller.
func (h *Handler) Incoming(c *fiber.Ctx) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	snaps, err := h.service.Incoming(c.UserContext(), caller)
	if err != nil {
		return toFiberError(err)
	}
	out := make([]streamResponse, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, toResponse(s))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"streams": out})
}

// Withdraw pays the caller what vested on the owner's stream.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	req, err := h.parseAsset(c)
	if err != nil {
		return err
	}
	res, err := h.service.Withdraw(c.UserContext(), WithdrawInput{
		Caller: caller,
		Owner:  c.Params("ownerId"),
		Asset:  req.Asset,
	})
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"paid":   res.Paid,
		"at":     res.At,
		"stream": toResponse(h.service.snapshot(res.Stream, res.At)),
	})
}

// Close settles the owner's stream. Only the owner may close it.
func (h *Handler) Close(c *fiber.Ctx) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	req, err := h.parseAsset(c)
	if err != nil {
		return err
	}
	res, err := h.service.Close(c.UserContext(), CloseInput{
		Caller: caller,
		Owner:  c.Params("ownerId"),
		Asset:  req.Asset,
	})
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"owner_id":        res.Owner,
		"receiver_id":     res.Receiver,
		"asset":           res.Asset,
		"receiver_payout": res.ReceiverPayout,
		"owner_refund":    res.OwnerRefund,
		"closed_at":       res.ClosedAt,
	})
}

func (h *Handler) parseAsset(c *fiber.Ctx) (assetRequest, error) {
	var req assetRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return req, fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	if err := h.validate.Struct(req); err != nil {
		return req, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return req, nil
}

func callerID(c *fiber.Ctx) (string, error) {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	// stream records keep the caller, so it must not alias the request buffer
	return utils.CopyString(uid), nil
}

func toFiberError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidTimeRange),
		errors.Is(err, ErrInvalidRate),
		errors.Is(err, ErrAmountOverflow),
		errors.Is(err, ErrMissingIdentity),
		errors.Is(err, ErrInsufficientBalance):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrStreamAlreadyExists):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNoSuchStream):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInsufficientEscrow):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
