package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ValidatePaymentSignature validates Mercado Pago webhook signatures. The
// x-signature header carries "ts=<unix>,v1=<hex>" where v1 is
// HMAC-SHA256 over "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
func ValidatePaymentSignature(secret string, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			logger.Error("MERCADOPAGO_WEBHOOK_SECRET not set, cannot validate webhook")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Server configuration error",
			})
		}

		ts, v1 := parseMercadoPagoSignature(c.Get("x-signature"))
		if ts == "" || v1 == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing signature",
			})
		}

		dataID := strings.ToLower(c.Query("data.id"))
		expected := MercadoPagoSignature(secret, dataID, c.Get("x-request-id"), ts)
		if !hmac.Equal([]byte(v1), []byte(expected)) {
			logger.Warn("invalid payment webhook signature", zap.String("data_id", dataID))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid signature",
			})
		}
		return c.Next()
	}
}

func parseMercadoPagoSignature(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	return ts, v1
}

// MercadoPagoSignature builds the v1 value for a notification.
func MercadoPagoSignature(secret, dataID, requestID, ts string) string {
	var manifest strings.Builder
	if dataID != "" {
		manifest.WriteString("id:" + dataID + ";")
	}
	if requestID != "" {
		manifest.WriteString("request-id:" + requestID + ";")
	}
	manifest.WriteString("ts:" + ts + ";")

	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(manifest.String()))
	return hex.EncodeToString(h.Sum(nil))
}
