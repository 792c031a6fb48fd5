package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/PuraVida-Technologies/galoy/internal/middleware"
)

// Handler exposes wallet HTTP endpoints.
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
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Currency  string `json:"currency"`
}

// Create provisions a wallet for the calling account.
func (h *Handler) Create(c *fiber.Ctx) error {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing account")
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	wallet, err := h.service.Create(c.UserContext(), CreateInput{AccountID: accountID, Currency: req.Currency})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(walletResponse{
		ID:        wallet.ID,
		AccountID: wallet.AccountID,
		Currency:  wallet.Currency,
	})
}

// Balance returns the balance of a wallet owned by the caller.
func (h *Handler) Balance(c *fiber.Ctx) error {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing account")
	}
	walletID := c.Params("walletId")
	wallet, err := h.service.Get(c.UserContext(), walletID)
	if err != nil || wallet.AccountID != accountID {
		if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidID) {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return fiber.NewError(http.StatusNotFound, ErrNotFound.Error())
	}
	balance, err := h.service.Balance(c.UserContext(), walletID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id": walletID,
		"currency":  balance.Currency,
		"balance":   balance.Amount,
		"timestamp": balance.AsOf,
	})
}
