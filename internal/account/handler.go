package account

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/PuraVida-Technologies/galoy/internal/middleware"
)

// Handler exposes account endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Username string `json:"username"`
	Level    int    `json:"level"`
}

type accountResponse struct {
	ID              string `json:"id"`
	Username        string `json:"username,omitempty"`
	Status          string `json:"status"`
	Level           int    `json:"level"`
	DefaultWalletID string `json:"default_wallet_id,omitempty"`
}

func toResponse(a Account) accountResponse {
	return accountResponse{ID: a.ID, Username: a.Username, Status: a.Status, Level: a.Level, DefaultWalletID: a.DefaultWalletID}
}

// Create opens an account.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	a, err := h.service.Create(c.UserContext(), CreateInput{Username: req.Username, Level: req.Level})
	switch {
	case errors.Is(err, ErrUsernameTaken):
		return fiber.NewError(http.StatusConflict, err.Error())
	case err != nil:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(a))
}

// Me returns the calling account with its contact book.
func (h *Handler) Me(c *fiber.Ctx) error {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing account")
	}
	a, err := h.service.Get(c.UserContext(), accountID)
	if err != nil {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	contacts, err := h.service.Contacts(c.UserContext(), accountID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	type contactResponse struct {
		Username          string `json:"username"`
		TransactionsCount int    `json:"transactions_count"`
	}
	out := make([]contactResponse, 0, len(contacts))
	for _, ct := range contacts {
		out = append(out, contactResponse{Username: ct.Username, TransactionsCount: ct.TransactionsCount})
	}
	return c.JSON(fiber.Map{"account": toResponse(a), "contacts": out})
}
