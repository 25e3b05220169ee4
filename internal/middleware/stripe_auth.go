package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// ValidateStripeSignature checks the Stripe-Signature header against the
// endpoint secret, including the timestamp tolerance.
func ValidateStripeSignature(secret string, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			logger.Error("STRIPE_WEBHOOK_SECRET not set, cannot validate webhook")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Server configuration error",
			})
		}

		if err := webhook.ValidatePayload(c.Body(), c.Get("Stripe-Signature"), secret); err != nil {
			logger.Warn("invalid stripe webhook signature", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid signature",
			})
		}
		return c.Next()
	}
}
