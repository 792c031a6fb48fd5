package payments

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/PuraVida-Technologies/galoy/internal/account"
	"github.com/PuraVida-Technologies/galoy/internal/limits"
	"github.com/PuraVida-Technologies/galoy/internal/lock"
	"github.com/PuraVida-Technologies/galoy/internal/middleware"
)

// AccountFinder loads the calling account.
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (account.Account, error)
}

// Handler exposes payment endpoints.
type Handler struct {
	service  *Service
	accounts AccountFinder
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service, accounts AccountFinder) *Handler {
	return &Handler{service: service, accounts: accounts}
}

type intraledgerRequest struct {
	WalletID          string `json:"wallet_id"`
	RecipientWalletID string `json:"recipient_wallet_id"`
	RecipientUsername string `json:"recipient_username"`
	Amount            int64  `json:"amount"`
	Memo              string `json:"memo"`
}

// Intraledger pays another wallet of the ledger, addressed by wallet id or by
// username.
func (h *Handler) Intraledger(c *fiber.Ctx) error {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing account")
	}
	var req intraledgerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if (req.RecipientWalletID == "") == (req.RecipientUsername == "") {
		return fiber.NewError(http.StatusBadRequest, "exactly one of recipient_wallet_id and recipient_username is required")
	}

	ctx := c.UserContext()
	sender, err := h.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return fiber.NewError(http.StatusUnauthorized, "unknown account")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	in := SendInput{
		SenderAccount:     sender,
		SenderWalletID:    req.WalletID,
		RecipientWalletID: req.RecipientWalletID,
		RecipientUsername: req.RecipientUsername,
		Amount:            req.Amount,
		Memo:              req.Memo,
		IdempotencyKey:    c.Get(middleware.IdempotencyKeyHeader),
	}
	var res Outcome
	if req.RecipientUsername != "" {
		res, err = h.service.SendToUsername(ctx, in)
	} else {
		res, err = h.service.SendToWalletID(ctx, in)
	}
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"status":           res.Status,
		"journal_id":       res.JournalID,
		"sender_balance":   res.SenderBalance,
		"amount":           res.Amount,
		"currency":         res.Currency,
		"display_amount":   res.DisplayAmount.StringFixed(2),
		"display_currency": res.DisplayCurrency,
		"completed_at":     res.CompletedAt,
	})
}

func errorResponse(c *fiber.Ctx, err error) error {
	var (
		validation *ValidationError
		limit      *limits.LimitExceededError
		unknown    *lock.UnknownLockServiceError
	)
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.As(err, &validation):
		status, code = http.StatusBadRequest, validation.Code
	case errors.Is(err, ErrNotImplemented):
		status, code = http.StatusNotImplemented, "NOT_IMPLEMENTED"
	case errors.As(err, &limit):
		status, code = http.StatusForbidden, "LIMIT_EXCEEDED"
	case errors.Is(err, ErrInsufficientBalance):
		status, code = http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"
	case errors.Is(err, ErrIdempotencyKeyReused):
		status, code = http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED"
	case lock.IsContention(err):
		status, code = http.StatusConflict, "RESOURCE_ATTEMPTS_EXHAUSTED"
	case errors.As(err, &unknown), errors.Is(err, lock.ErrLockExpired), errors.Is(err, lock.ErrExtensionFailed):
		status, code = http.StatusServiceUnavailable, "LOCK_SERVICE_ERROR"
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{"error": fiber.Map{"code": code, "message": message}})
}
