package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
	Kind() string
}

// PendingCounter reports senders with an open debounce window.
type PendingCounter interface {
	Pending() int
}

// HealthHandler handles health check requests
type HealthHandler struct {
	Version     string
	Environment string
	store       Pinger
	pending     PendingCounter
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version, environment string, store Pinger, pending PendingCounter) *HealthHandler {
	return &HealthHandler{
		Version:     version,
		Environment: environment,
		store:       store,
		pending:     pending,
	}
}

// Root describes the service.
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service":     "Reservation Bot",
		"version":     h.Version,
		"environment": h.Environment,
		"storage":     h.store.Kind(),
		"endpoints": fiber.Map{
			"health":           "/health",
			"whatsapp_webhook": "/webhook/whatsapp",
			"twilio_webhook":   "/webhook/twilio",
			"payment_webhook":  "/webhook/payments",
		},
	})
}

// Check returns the health status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status, code := "healthy", fiber.StatusOK
	storeStatus := "connected"
	if err := h.store.Ping(ctx); err != nil {
		status, code = "unhealthy", fiber.StatusServiceUnavailable
		storeStatus = "error: " + err.Error()
	}

	return c.Status(code).JSON(fiber.Map{
		"status":  status,
		"version": h.Version,
		"services": fiber.Map{
			"storage":         storeStatus,
			"storage_kind":    h.store.Kind(),
			"pending_senders":  h.pending.Pending(),
		},
	})
}
