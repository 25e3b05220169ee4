package services

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/config"
)

// TwilioService sends WhatsApp messages through Twilio. The channel id of
// a Twilio business is its WhatsApp sender number.
type TwilioService struct {
	client *twilio.RestClient
	from   string
	logger *zap.Logger
}

// NewTwilioService creates a new Twilio service instance
func NewTwilioService(cfg config.TwilioConfig, logger *zap.Logger) (*TwilioService, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("missing Twilio credentials")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioService{
		client: client,
		from:   cfg.WhatsAppFrom,
		logger: logger.Named("twilio"),
	}, nil
}

// Send sends a WhatsApp message via Twilio
func (t *TwilioService) Send(ctx context.Context, channelID, to, text string) error {
	from := t.from
	if channelID != "" {
		from = channelID
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(whatsappAddress(from))
	params.SetTo(whatsappAddress(to))
	params.SetBody(text)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		t.logger.Error("failed to send WhatsApp message", zap.String("to", to), zap.Error(err))
		return classifyTwilioError(err)
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		msg := ""
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return errors.Newf("twilio error %d: %s", *resp.ErrorCode, msg)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	t.logger.Debug("WhatsApp message sent", zap.String("to", to), zap.String("sid", sid))
	return nil
}

// MarkRead is a no-op: Twilio has no read receipts for inbound messages.
func (t *TwilioService) MarkRead(ctx context.Context, channelID, messageID string) error {
	return nil
}

func classifyTwilioError(err error) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		if restErr.Status == 429 || restErr.Status >= 500 {
			return transient(err, "twilio create message")
		}
		return errors.Wrap(err, "twilio create message")
	}
	// Transport failures never reached Twilio.
	return transient(err, "twilio create message")
}

func whatsappAddress(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

// StripWhatsAppPrefix turns "whatsapp:+549..." into "+549...".
func StripWhatsAppPrefix(addr string) string {
	return strings.TrimPrefix(addr, "whatsapp:")
}
