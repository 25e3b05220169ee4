package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	twilioclient "github.com/twilio/twilio-go/client"
	"go.uber.org/zap"
)

// ValidateTwilioSignature validates that the webhook request is from Twilio.
// publicURL overrides the scheme and host Twilio called, which differ from
// what the app sees behind a proxy.
func ValidateTwilioSignature(authToken, publicURL string, logger *zap.Logger) fiber.Handler {
	validator := twilioclient.NewRequestValidator(authToken)

	return func(c *fiber.Ctx) error {
		// Get Twilio signature from header
		twilioSignature := c.Get("X-Twilio-Signature")
		if twilioSignature == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Twilio signature",
			})
		}

		if authToken == "" {
			logger.Error("TWILIO_AUTH_TOKEN not set, cannot validate webhook")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Server configuration error",
			})
		}

		formParams := make(map[string]string)
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			formParams[string(key)] = string(value)
		})

		if !validator.Validate(requestURL(c, publicURL), formParams, twilioSignature) {
			logger.Warn("invalid Twilio signature", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid signature",
			})
		}

		return c.Next()
	}
}

// requestURL rebuilds the URL the provider signed, query string included.
func requestURL(c *fiber.Ctx, publicURL string) string {
	if publicURL != "" {
		return strings.TrimSuffix(publicURL, "/") + string(c.Request().RequestURI())
	}
	return c.Protocol() + "://" + c.Hostname() + string(c.Request().RequestURI())
}
