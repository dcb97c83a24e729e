// middleware/caller.go
package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"bounty-escrow-system/escrow"
	"bounty-escrow-system/models"
)

// CallerContextMiddleware reads the caller identity and the attached payment
// set by the gateway and puts them into the request's user context.
// Mutating requests must carry X-Caller-ID.
func CallerContextMiddleware(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("X-Request-ID", requestID)
		c.Locals("request_id", requestID)

		callerID := c.Get("X-Caller-ID")
		if callerID == "" && c.Method() != fiber.MethodGet && c.Method() != fiber.MethodHead {
			log.Warn("❌ [CALLER_CTX] X-Caller-ID missing on mutating route",
				zap.String("path", c.Path()), zap.String("request_id", requestID))
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "Unauthorized",
				"message": "missing X-Caller-ID, request must come through gateway with caller context",
			})
		}

		var payment models.Amount
		if raw := c.Get("X-Payment-Amount"); raw != "" {
			p, err := models.ParseAmount(raw)
			if err != nil || p.Sign() < 0 {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error":   "InvalidInput",
					"message": "X-Payment-Amount must be a non-negative base-10 integer",
				})
			}
			payment = p
		}

		c.Locals("caller_id", callerID)
		c.Locals("payment", payment)
		c.SetUserContext(escrow.WithCallCtx(c.UserContext(), escrow.CallCtx{
			Caller:  callerID,
			Payment: payment,
		}))

		log.Debug("👤 [CALLER_CTX]",
			zap.String("caller", callerID),
			zap.Stringer("payment", payment),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("request_id", requestID))
		return c.Next()
	}
}
