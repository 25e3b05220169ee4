package handlers_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/handlers"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/middleware"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/services"
)

type recordingConversations struct {
	mu       sync.Mutex
	accepted []services.InboundMessage
	err      error
}

func (r *recordingConversations) Accept(msg services.InboundMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted = append(r.accepted, msg)
}

func (r *recordingConversations) Process(ctx context.Context, msg services.InboundMessage) error {
	r.Accept(msg)
	return r.err
}

func whatsAppApp(conv *recordingConversations, limiter *middleware.SenderLimiter) *fiber.App {
	h := handlers.NewWhatsAppHandler(conv, limiter, "verify-me", zap.NewNop())
	app := fiber.New()
	app.Get("/webhook/whatsapp", h.Verify)
	app.Post("/webhook/whatsapp", h.HandleCloudWebhook)
	app.Post("/webhook/twilio", h.HandleTwilioWebhook)
	app.Post("/test/whatsapp", h.HandleTestWebhook)
	return app
}

func TestVerifyHandshake(t *testing.T) {
	app := whatsAppApp(&recordingConversations{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "1158201444", string(body))

	req = httptest.NewRequest(http.MethodGet, "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

const cloudPayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "5491100000000", "phone_number_id": "PN1"},
        "contacts": [{"profile": {"name": "Lucía"}, "wa_id": "5491155550000"}],
        "messages": [
          {"from": "5491155550000", "id": "wamid.1", "timestamp": "1760551200", "type": "text", "text": {"body": "hola, quiero reservar"}},
          {"from": "5491155550000", "id": "wamid.2", "timestamp": "1760551201", "type": "image", "image": {"id": "media1", "caption": "comprobante"}}
        ]
      }
    }]
  }]
}`

func TestCloudWebhookAcceptsMessages(t *testing.T) {
	conv := &recordingConversations{}
	app := whatsAppApp(conv, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(cloudPayload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, conv.accepted, 2)
	first := conv.accepted[0]
	assert.Equal(t, "PN1", first.ChannelID)
	assert.Equal(t, "5491155550000", first.From)
	assert.Equal(t, "Lucía", first.SenderName)
	assert.Equal(t, "wamid.1", first.MessageID)
	assert.Equal(t, "hola, quiero reservar", first.Text)
	assert.False(t, first.HasAttachment)
	assert.Equal(t, int64(1760551200), first.ReceivedAt.Unix())

	second := conv.accepted[1]
	assert.True(t, second.HasAttachment)
	assert.Equal(t, "comprobante", second.Text)
}

func TestCloudWebhookStatusUpdateAndGarbage(t *testing.T) {
	conv := &recordingConversations{}
	app := whatsAppApp(conv, nil)

	for _, body := range []string{
		`{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.1","status":"read"}]}}]}]}`,
		`not json`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Empty(t, conv.accepted)
}

func TestTwilioWebhook(t *testing.T) {
	conv := &recordingConversations{}
	app := whatsAppApp(conv, nil)

	form := url.Values{
		"MessageSid":  {"SM123"},
		"From":        {"whatsapp:+5491155550000"},
		"To":          {"whatsapp:+14155238886"},
		"Body":        {"somos 4 el viernes"},
		"ProfileName": {"Lucía"},
		"NumMedia":    {"1"},
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, conv.accepted, 1)
	msg := conv.accepted[0]
	assert.Equal(t, "+14155238886", msg.ChannelID)
	assert.Equal(t, "+5491155550000", msg.From)
	assert.Equal(t, "SM123", msg.MessageID)
	assert.True(t, msg.HasAttachment)
}

func TestTwilioWebhookIgnoresEmptyMessages(t *testing.T) {
	conv := &recordingConversations{}
	app := whatsAppApp(conv, nil)

	form := url.Values{"MessageSid": {"SM1"}, "MessageStatus": {"delivered"}}
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, conv.accepted)
}

func TestSenderLimitDropsFloods(t *testing.T) {
	conv := &recordingConversations{}
	app := whatsAppApp(conv, middleware.NewSenderLimiter(0.001, 1, zap.NewNop()))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(cloudPayload))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Len(t, conv.accepted, 1)
}

func TestTestWebhook(t *testing.T) {
	conv := &recordingConversations{}
	app := whatsAppApp(conv, nil)

	req := httptest.NewRequest(http.MethodPost, "/test/whatsapp",
		strings.NewReader(`{"channel_id":"PN1","from":"5491155550000","message":"hola"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, conv.accepted, 1)

	req = httptest.NewRequest(http.MethodPost, "/test/whatsapp", strings.NewReader(`{"from":""}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	conv.err = errors.New("boom")
	req = httptest.NewRequest(http.MethodPost, "/test/whatsapp",
		strings.NewReader(`{"channel_id":"PN1","from":"5491155550000","message":"hola"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

type recordingPayments struct {
	ids []string
	err error
}

func (r *recordingPayments) ProcessNotification(ctx context.Context, paymentID string) error {
	r.ids = append(r.ids, paymentID)
	return r.err
}

func TestPaymentWebhook(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		want   []string
	}{
		{"mercado pago json", "/webhook/payments", `{"type":"payment","action":"payment.created","data":{"id":"123456"}}`, []string{"123456"}},
		{"mercado pago numeric id", "/webhook/payments", `{"type":"payment","data":{"id":123456}}`, []string{"123456"}},
		{"mercado pago query", "/webhook/payments?type=payment&data.id=987", ``, []string{"987"}},
		{"legacy ipn", "/webhook/payments?topic=payment&id=555", ``, []string{"555"}},
		{"stripe checkout", "/webhook/payments", `{"type":"checkout.session.completed","data":{"object":{"id":"cs_test_1"}}}`, []string{"cs_test_1"}},
		{"merchant order ignored", "/webhook/payments", `{"type":"merchant_order","data":{"id":"1"}}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := &recordingPayments{}
			h := handlers.NewPaymentHandler(payments, zap.NewNop())
			app := fiber.New()
			app.Post("/webhook/payments", h.HandleWebhook)

			req := httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.want, payments.ids)
		})
	}
}

func TestPaymentWebhookAlwaysAcknowledges(t *testing.T) {
	payments := &recordingPayments{err: errors.New("gateway down")}
	h := handlers.NewPaymentHandler(payments, zap.NewNop())
	app := fiber.New()
	app.Post("/webhook/payments", h.HandleWebhook)

	req := httptest.NewRequest(http.MethodPost, "/webhook/payments", strings.NewReader(`{"type":"payment","data":{"id":"1"}}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type fakeStore struct{ err error }

func (f fakeStore) Ping(ctx context.Context) error { return f.err }
func (f fakeStore) Kind() string                   { return "memory" }

type fakePending int

func (f fakePending) Pending() int { return int(f) }

func TestHealthCheck(t *testing.T) {
	app := fiber.New()
	app.Get("/health", handlers.NewHealthHandler("1.0.0", "test", fakeStore{}, fakePending(2)).Check)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"pending_senders":2`)

	app = fiber.New()
	app.Get("/health", handlers.NewHealthHandler("1.0.0", "test", fakeStore{err: errors.New("down")}, fakePending(0)).Check)
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
