package payin

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/exchangeroute"
	"github.com/congo-pay/settlement/internal/ledger"
	"github.com/congo-pay/settlement/internal/money"
)

// Handler exposes HTTP endpoints for payins.
type Handler struct {
	service    *Service
	descriptor string
}

// NewHandler constructs a payin handler charging with the given statement descriptor.
func NewHandler(service *Service, descriptor string) *Handler {
	return &Handler{service: service, descriptor: descriptor}
}

// Create prepares a payin and runs the destination charge.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req ChargeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.Parse(req.Amount, req.Currency)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	p, _, err := h.service.Prepare(ctx, PrepareInput{
		PayerID:     req.PayerID,
		RouteID:     req.RouteID,
		Amount:      amount,
		Destination: req.Destination,
	})
	if err != nil {
		return toFiberError(err)
	}
	payer, err := h.service.store.Participant(ctx, req.PayerID)
	if err != nil {
		return toFiberError(err)
	}

	charged, err := h.service.DestinationCharge(ctx, p, payer, h.descriptor)
	status := http.StatusCreated
	if err != nil {
		var partial *PartialSequenceError
		if !errors.As(err, &partial) {
			return toFiberError(err)
		}
		status = http.StatusAccepted
	}
	if charged.Status == ledger.StatusPending {
		status = http.StatusAccepted
	}
	pt, err := h.service.store.TransferForPayin(ctx, charged.ID)
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(status).JSON(toResponse(charged, &pt))
}

// Get returns a payin with its transfer.
func (h *Handler) Get(c *fiber.Ctx) error {
	ctx := c.UserContext()
	p, err := h.service.store.Payin(ctx, c.Params("payinId"))
	if err != nil {
		return toFiberError(err)
	}
	pt, err := h.service.store.TransferForPayin(ctx, p.ID)
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(p, &pt))
}

// RetryCharge re-drives the charge of a payin left pending.
func (h *Handler) RetryCharge(c *fiber.Ctx) error {
	ctx := c.UserContext()
	charged, err := h.service.RetryCharge(ctx, c.Params("payinId"), h.descriptor)
	status := http.StatusOK
	if err != nil {
		var partial *PartialSequenceError
		if !errors.As(err, &partial) {
			return toFiberError(err)
		}
		status = http.StatusAccepted
	}
	if charged.Status == ledger.StatusPending {
		status = http.StatusAccepted
	}
	pt, err := h.service.store.TransferForPayin(ctx, charged.ID)
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(status).JSON(toResponse(charged, &pt))
}

// RetryFeeReversal re-drives the fee reversal of a payin.
func (h *Handler) RetryFeeReversal(c *fiber.Ctx) error {
	pt, err := h.service.RetryFeeReversal(c.UserContext(), c.Params("payinId"))
	if err != nil {
		var partial *PartialSequenceError
		if errors.As(err, &partial) {
			return fiber.NewError(http.StatusBadGateway, err.Error())
		}
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(toTransferResponse(pt))
}

// PendingReversals lists transfers waiting for a fee reversal.
func (h *Handler) PendingReversals(c *fiber.Ctx) error {
	transfers, err := h.service.PendingReversals(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]TransferResponse, 0, len(transfers))
	for _, pt := range transfers {
		out = append(out, toTransferResponse(pt))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transfers": out})
}

func toFiberError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, exchangeroute.ErrRouteNotOwned), errors.Is(err, ErrPayerMismatch):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNothingToReverse):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, exchangeroute.ErrNotChargeable),
		errors.Is(err, money.ErrCurrencyMismatch), errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
