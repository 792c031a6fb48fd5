package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/PuraVida-Technologies/galoy/internal/account"
	"github.com/PuraVida-Technologies/galoy/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/wallets", h.Create)
	r.Get("/wallets/:walletId/balance", h.Balance)
}

// RegisterAccountRoutes wires the public account endpoints.
func RegisterAccountRoutes(r fiber.Router, h *account.Handler) {
	r.Post("/accounts", h.Create)
}

// RegisterMeRoute exposes the calling account.
func RegisterMeRoute(r fiber.Router, h *account.Handler) {
	r.Get("/me", h.Me)
}
