package participant

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/ledger"
	"github.com/congo-pay/settlement/internal/money"
)

// Handler exposes participant HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a participant HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create registers a participant.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.Create(c.UserContext(), CreateInput{
		Email:         req.Email,
		GatewayUserID: req.GatewayUserID,
		Currency:      req.Currency,
	})
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusCreated).JSON(toParticipantResponse(p))
}

// Get returns a participant with its balance.
func (h *Handler) Get(c *fiber.Ctx) error {
	p, err := h.service.Get(c.UserContext(), c.Params("participantId"))
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(toParticipantResponse(p))
}

// Close closes a participant's account.
func (h *Handler) Close(c *fiber.Ctx) error {
	p, err := h.service.Close(c.UserContext(), c.Params("participantId"))
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(toParticipantResponse(p))
}

// AddRoute stores a payment instrument.
func (h *Handler) AddRoute(c *fiber.Ctx) error {
	var req routeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	r, err := h.service.AddRoute(c.UserContext(), RouteInput{
		ParticipantID: c.Params("participantId"),
		Network:       req.Network,
		RemoteUserID:  req.RemoteUserID,
		Address:       req.Address,
	})
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusCreated).JSON(toRouteResponse(r))
}

// AddPaymentAccount stores a payee account.
func (h *Handler) AddPaymentAccount(c *fiber.Ctx) error {
	var req accountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	a, err := h.service.AddPaymentAccount(c.UserContext(), AccountInput{
		ParticipantID: c.Params("participantId"),
		Provider:      req.Provider,
		RemoteID:      req.RemoteID,
	})
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusCreated).JSON(toAccountResponse(a))
}

// RecordExchange records a payout or bank wire before it is sent to the wallet gateway.
func (h *Handler) RecordExchange(c *fiber.Ctx) error {
	var req exchangeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.Parse(req.Amount, req.Currency)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	fee := money.Zero(amount.Currency)
	if req.Fee != "" {
		if fee, err = money.Parse(req.Fee, req.Currency); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	e, err := h.service.RecordExchange(c.UserContext(), ExchangeInput{
		ParticipantID: c.Params("participantId"),
		RouteID:       req.RouteID,
		Amount:        amount,
		Fee:           fee,
	})
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusCreated).JSON(toExchangeResponse(e))
}

// Exchange returns one exchange of the participant.
func (h *Handler) Exchange(c *fiber.Ctx) error {
	e, err := h.service.Exchange(c.UserContext(), c.Params("participantId"), c.Params("exchangeId"))
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(toExchangeResponse(e))
}

func toFiberError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRouteNotOwned):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, money.ErrCurrencyMismatch):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
