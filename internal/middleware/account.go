package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AccountIDHeader carries the caller account, set by the identity gateway in
// front of the service after it verified the session.
const AccountIDHeader = "X-Account-ID"

const accountIDLocal = "account_id"

// AccountContext requires a well formed account id header and exposes it to
// handlers through AccountID.
func AccountContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get(AccountIDHeader)
		if raw == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing "+AccountIDHeader+" header")
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "malformed "+AccountIDHeader+" header")
		}
		c.Locals(accountIDLocal, id.String())
		return c.Next()
	}
}

// AccountID returns the caller account stored by AccountContext.
func AccountID(c *fiber.Ctx) (string, bool) {
	id, ok := c.Locals(accountIDLocal).(string)
	return id, ok && id != ""
}
