package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ValidateHubSignature checks the X-Hub-Signature-256 header Meta sends
// with every Cloud API webhook.
func ValidateHubSignature(appSecret string, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("X-Hub-Signature-256")
		sig, ok := strings.CutPrefix(header, "sha256=")
		if !ok || sig == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing signature",
			})
		}
		if appSecret == "" {
			logger.Error("WHATSAPP_APP_SECRET not set, cannot validate webhook")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Server configuration error",
			})
		}

		if !hmac.Equal([]byte(sig), []byte(HubSignature(appSecret, c.Body()))) {
			logger.Warn("invalid hub signature")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid signature",
			})
		}
		return c.Next()
	}
}

// HubSignature is hex(HMAC-SHA256(appSecret, body)).
func HubSignature(appSecret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(appSecret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
