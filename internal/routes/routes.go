package routes

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/config"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/handlers"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/middleware"
)

// Handlers groups everything SetupRoutes mounts.
type Handlers struct {
	Health   *handlers.HealthHandler
	WhatsApp *handlers.WhatsAppHandler
	Payment  *handlers.PaymentHandler
	Limiter  *middleware.SenderLimiter
}

// SetupRoutes configures all routes. Signature checks are skipped in
// development or when DISABLE_WEBHOOK_VALIDATION is set, and the test
// endpoint is never mounted in production.
func SetupRoutes(app *fiber.App, cfg config.Config, h Handlers, logger *zap.Logger) {
	app.Get("/", h.Health.Root)
	app.Get("/health", h.Health.Check)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")

	validate := cfg.Server.Environment != "development" && !cfg.Server.DisableWebhookValidation
	if !validate {
		logger.Warn("webhook signature validation DISABLED", zap.String("environment", cfg.Server.Environment))
	}

	cloud := []fiber.Handler{h.WhatsApp.HandleCloudWebhook}
	twilio := []fiber.Handler{h.WhatsApp.HandleTwilioWebhook}
	payments := []fiber.Handler{h.Payment.HandleWebhook}
	if validate {
		cloud = append([]fiber.Handler{middleware.ValidateHubSignature(cfg.CloudAPI.AppSecret, logger)}, cloud...)
		twilio = append([]fiber.Handler{middleware.ValidateTwilioSignature(cfg.Twilio.AuthToken, cfg.Server.PublicURL, logger)}, twilio...)
		payments = append([]fiber.Handler{paymentValidator(cfg.Payment, logger)}, payments...)
	}

	// WhatsApp Cloud API
	webhooks.Get("/whatsapp", h.WhatsApp.Verify)
	webhooks.Post("/whatsapp", cloud...)

	// Twilio WhatsApp sandbox / number
	webhooks.Post("/twilio", twilio...)

	// Payment gateway notifications
	webhooks.Post("/payments", payments...)

	// ========== TEST ROUTES (Development Only) ==========
	if !cfg.IsProduction() {
		test := app.Group("/test")
		if h.Limiter != nil {
			test.Use(h.Limiter.Middleware(func(c *fiber.Ctx) string { return c.IP() }))
		}
		test.Post("/whatsapp", h.WhatsApp.HandleTestWebhook)
	}
}

func paymentValidator(cfg config.PaymentConfig, logger *zap.Logger) fiber.Handler {
	if cfg.Provider == "stripe" {
		return middleware.ValidateStripeSignature(cfg.StripeWebhookKey, logger)
	}
	return middleware.ValidatePaymentSignature(cfg.WebhookSecret, logger)
}
