package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/middleware"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/services"
)

// Conversations is the part of the conversation service the webhooks use.
type Conversations interface {
	Accept(msg services.InboundMessage)
	Process(ctx context.Context, msg services.InboundMessage) error
}

// WhatsAppHandler handles WhatsApp webhook requests from the Cloud API and
// from Twilio. Deliveries are acknowledged with 200 whatever happens
// downstream, so the platform never retries them.
type WhatsAppHandler struct {
	conversations Conversations
	limiter       *middleware.SenderLimiter
	verifyToken   string
	logger        *zap.Logger
}

// NewWhatsAppHandler creates a new WhatsApp handler
func NewWhatsAppHandler(conversations Conversations, limiter *middleware.SenderLimiter, verifyToken string, logger *zap.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{
		conversations: conversations,
		limiter:       limiter,
		verifyToken:   verifyToken,
		logger:        logger.Named("whatsapp"),
	}
}

// Verify answers the Cloud API subscription handshake.
func (h *WhatsAppHandler) Verify(c *fiber.Ctx) error {
	if c.Query("hub.mode") == "subscribe" && h.verifyToken != "" && c.Query("hub.verify_token") == h.verifyToken {
		return c.SendString(c.Query("hub.challenge"))
	}
	return c.SendStatus(fiber.StatusForbidden)
}

// CloudWebhookPayload is the Cloud API notification envelope.
type CloudWebhookPayload struct {
	Object string       `json:"object"`
	Entry  []CloudEntry `json:"entry"`
}

type CloudEntry struct {
	ID      string        `json:"id"`
	Changes []CloudChange `json:"changes"`
}

type CloudChange struct {
	Field string     `json:"field"`
	Value CloudValue `json:"value"`
}

type CloudValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
		WaID string `json:"wa_id"`
	} `json:"contacts"`
	Messages []CloudMessage `json:"messages"`
}

type CloudMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image    *cloudMedia `json:"image,omitempty"`
	Document *cloudMedia `json:"document,omitempty"`
	Button   *struct {
		Text string `json:"text"`
	} `json:"button,omitempty"`
}

type cloudMedia struct {
	ID      string `json:"id"`
	Caption string `json:"caption"`
}

// HandleCloudWebhook processes incoming Cloud API messages. Status updates
// carry no messages and are ignored.
func (h *WhatsAppHandler) HandleCloudWebhook(c *fiber.Ctx) error {
	var payload CloudWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		h.logger.Warn("unparseable cloud api webhook", zap.Error(err))
		return c.SendStatus(fiber.StatusOK)
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, ct := range change.Value.Contacts {
				names[ct.WaID] = ct.Profile.Name
			}
			for _, m := range change.Value.Messages {
				h.dispatch(services.InboundMessage{
					ChannelID:     change.Value.Metadata.PhoneNumberID,
					From:          m.From,
					SenderName:    names[m.From],
					MessageID:     m.ID,
					Text:          m.body(),
					HasAttachment: m.Image != nil || m.Document != nil,
					ReceivedAt:    parseUnix(m.Timestamp),
				})
			}
		}
	}
	return c.SendStatus(fiber.StatusOK)
}

func (m CloudMessage) body() string {
	switch {
	case m.Text != nil:
		return m.Text.Body
	case m.Image != nil:
		return m.Image.Caption
	case m.Document != nil:
		return m.Document.Caption
	case m.Button != nil:
		return m.Button.Text
	}
	return ""
}

// TwilioWebhookPayload represents incoming WhatsApp message from Twilio
type TwilioWebhookPayload struct {
	MessageSid  string `form:"MessageSid"`
	AccountSid  string `form:"AccountSid"`
	From        string `form:"From"` // whatsapp:+5491155550000
	To          string `form:"To"`   // the business number
	Body        string `form:"Body"`
	ProfileName string `form:"ProfileName"`
	NumMedia    string `form:"NumMedia"`
}

// HandleTwilioWebhook processes incoming WhatsApp messages
func (h *WhatsAppHandler) HandleTwilioWebhook(c *fiber.Ctx) error {
	var payload TwilioWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		h.logger.Warn("unparseable twilio webhook", zap.Error(err))
		return c.SendStatus(fiber.StatusOK)
	}

	// Process only incoming messages (not status updates)
	if payload.From == "" {
		return c.SendStatus(fiber.StatusOK)
	}
	numMedia, _ := strconv.Atoi(payload.NumMedia)
	if payload.Body == "" && numMedia == 0 {
		return c.SendStatus(fiber.StatusOK)
	}

	h.dispatch(services.InboundMessage{
		ChannelID:     services.StripWhatsAppPrefix(payload.To),
		From:          services.StripWhatsAppPrefix(payload.From),
		SenderName:    payload.ProfileName,
		MessageID:     payload.MessageSid,
		Text:          payload.Body,
		HasAttachment: numMedia > 0,
		ReceivedAt:    time.Now(),
	})

	// Acknowledge webhook receipt
	return c.SendStatus(fiber.StatusOK)
}

func (h *WhatsAppHandler) dispatch(msg services.InboundMessage) {
	if h.limiter != nil && !h.limiter.Allow(msg.ChannelID+":"+msg.From) {
		return
	}
	h.logger.Debug("inbound message",
		zap.String("channel_id", msg.ChannelID),
		zap.String("from", msg.From),
		zap.String("message_id", msg.MessageID))
	h.conversations.Accept(msg)
}

// TestWebhookPayload is the development-only message format.
type TestWebhookPayload struct {
	ChannelID string `json:"channel_id"`
	From      string `json:"from"`
	Name      string `json:"name"`
	Message   string `json:"message"`
}

// HandleTestWebhook processes test WhatsApp messages synchronously (for
// development). Replies go out through the configured messenger.
func (h *WhatsAppHandler) HandleTestWebhook(c *fiber.Ctx) error {
	var payload TestWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid test payload",
		})
	}
	if payload.From == "" || strings.TrimSpace(payload.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "from and message are required",
		})
	}

	err := h.conversations.Process(c.UserContext(), services.InboundMessage{
		ChannelID:  payload.ChannelID,
		From:       payload.From,
		SenderName: payload.Name,
		Text:       payload.Message,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		h.logger.Error("test message failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

func parseUnix(ts string) time.Time {
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || sec <= 0 {
		return time.Now()
	}
	return time.Unix(sec, 0)
}
