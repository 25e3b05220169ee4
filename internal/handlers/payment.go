package handlers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// PaymentNotifications processes a payment announced by the gateway.
type PaymentNotifications interface {
	ProcessNotification(ctx context.Context, paymentID string) error
}

type PaymentHandler struct {
	payments PaymentNotifications
	logger   *zap.Logger
}

func NewPaymentHandler(payments PaymentNotifications, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		logger:   logger.Named("payment_webhook"),
	}
}

// paymentNotification covers Mercado Pago ({"type":"payment","data":{"id"}})
// and Stripe ({"type":"checkout.session.completed","data":{"object":{"id"}}}).
type paymentNotification struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID     json.RawMessage `json:"id"`
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// HandleWebhook always answers 200; failures are logged and the gateway's
// own retries or the chat flow pick them up.
func (h *PaymentHandler) HandleWebhook(c *fiber.Ctx) error {
	paymentID, kind := h.paymentID(c)
	if paymentID == "" {
		h.logger.Debug("ignoring payment notification", zap.String("type", kind))
		return c.SendStatus(fiber.StatusOK)
	}

	if err := h.payments.ProcessNotification(c.UserContext(), paymentID); err != nil {
		h.logger.Error("payment notification failed",
			zap.String("payment_id", paymentID), zap.Error(err))
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *PaymentHandler) paymentID(c *fiber.Ctx) (id, kind string) {
	var n paymentNotification
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &n); err != nil {
			h.logger.Warn("unparseable payment notification", zap.Error(err))
		}
	}

	kind = n.Type
	if kind == "" {
		kind = c.Query("type", c.Query("topic"))
	}
	switch {
	case kind == "payment":
		id = strings.Trim(string(n.Data.ID), `"`)
		if id == "" {
			id = c.Query("data.id", c.Query("id"))
		}
	case kind == "checkout.session.completed", kind == "payment_intent.succeeded":
		id = n.Data.Object.ID
	}
	return id, kind
}
