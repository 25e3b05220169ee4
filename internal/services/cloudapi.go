package services

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/config"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/storage"
)

const cloudAPITimeout = 10 * time.Second

// CloudAPIService talks to the WhatsApp Cloud API. The channel id is the
// business phone number id. A business with its own access token uses it;
// everyone else shares the configured token.
type CloudAPIService struct {
	baseURL    string
	version    string
	token      string
	businesses storage.ReservationStore
	logger     *zap.Logger
}

func NewCloudAPIService(cfg config.CloudAPIConfig, businesses storage.ReservationStore, logger *zap.Logger) *CloudAPIService {
	return &CloudAPIService{
		baseURL:    cfg.BaseURL,
		version:    cfg.GraphAPIVersion,
		token:      cfg.Token,
		businesses: businesses,
		logger:     logger.Named("cloudapi"),
	}
}

type cloudText struct {
	Body string `json:"body"`
}

type cloudMessage struct {
	MessagingProduct string     `json:"messaging_product"`
	RecipientType    string     `json:"recipient_type,omitempty"`
	To               string     `json:"to,omitempty"`
	Type             string     `json:"type,omitempty"`
	Text             *cloudText `json:"text,omitempty"`
	Status           string     `json:"status,omitempty"`
	MessageID        string     `json:"message_id,omitempty"`
}

func (s *CloudAPIService) Send(ctx context.Context, channelID, to, text string) error {
	return s.post(ctx, channelID, cloudMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &cloudText{Body: text},
	})
}

func (s *CloudAPIService) MarkRead(ctx context.Context, channelID, messageID string) error {
	return s.post(ctx, channelID, cloudMessage{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
	})
}

func (s *CloudAPIService) post(ctx context.Context, channelID string, msg cloudMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a := fiber.Post(s.baseURL + "/" + s.version + "/" + channelID + "/messages")
	a.Set(fiber.HeaderAuthorization, "Bearer "+s.tokenFor(ctx, channelID))
	a.Timeout(cloudAPITimeout)
	a.JSON(msg)

	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return transient(errs[0], "cloud api request")
	}
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == fiber.StatusTooManyRequests, code >= 500:
		return errors.Mark(errors.Newf("cloud api: status %d", code), ErrTransient)
	default:
		s.logger.Warn("cloud api rejected request",
			zap.Int("status", code),
			zap.ByteString("body", body))
		return errors.Newf("cloud api: status %d", code)
	}
}

func (s *CloudAPIService) tokenFor(ctx context.Context, channelID string) string {
	if s.businesses == nil {
		return s.token
	}
	b, err := s.businesses.GetBusinessByChannel(ctx, channelID)
	if err != nil || b.AccessToken == "" {
		return s.token
	}
	return b.AccessToken
}
