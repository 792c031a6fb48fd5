package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/PuraVida-Technologies/galoy/internal/payments"
)

// RegisterPaymentRoutes wires payment endpoints behind the given guards.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, guards ...fiber.Handler) {
	handlers := append(guards, h.Intraledger)
	r.Post("/payments/intraledger", handlers...)
}
