package payment

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const defaultMercadoPagoURL = "https://api.mercadopago.com"

// MercadoPagoGateway talks to the Mercado Pago REST API. Bank transfers
// into the business account show up as payments whose id is the
// operation number the customer sends.
type MercadoPagoGateway struct {
	baseURL string
	token   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewMercadoPagoGateway(baseURL, token string, timeout time.Duration, logger *zap.Logger) *MercadoPagoGateway {
	if baseURL == "" {
		baseURL = defaultMercadoPagoURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MercadoPagoGateway{
		baseURL: baseURL,
		token:   token,
		timeout: timeout,
		logger:  logger.Named("mercadopago"),
	}
}

func (g *MercadoPagoGateway) Name() string { return "mercadopago" }

type mpPayment struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	StatusDetail      string  `json:"status_detail"`
	TransactionAmount float64 `json:"transaction_amount"`
	CurrencyID        string  `json:"currency_id"`
	DateCreated       string  `json:"date_created"`
	ExternalReference string  `json:"external_reference"`
}

func (g *MercadoPagoGateway) GetPayment(ctx context.Context, id string) (*PaymentInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a := fiber.Get(g.baseURL + "/v1/payments/" + url.PathEscape(id))
	a.Set(fiber.HeaderAuthorization, "Bearer "+g.token)
	a.Timeout(g.timeout)

	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return nil, transient(errs[0], "mercadopago get payment")
	}
	if err := classifyStatus(code, body); err != nil {
		return nil, err
	}

	var p mpPayment
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, errors.Wrap(err, "decode mercadopago payment")
	}
	created, _ := time.Parse(time.RFC3339Nano, p.DateCreated)

	g.logger.Debug("payment fetched",
		zap.Int64("id", p.ID),
		zap.String("status", p.Status),
		zap.Float64("amount", p.TransactionAmount))

	return &PaymentInfo{
		ID:                strconv.FormatInt(p.ID, 10),
		Status:            normalizeMercadoPagoStatus(p.Status),
		RawStatus:         p.Status,
		Amount:            p.TransactionAmount,
		Currency:          p.CurrencyID,
		CreatedAt:         created,
		ExternalReference: p.ExternalReference,
	}, nil
}

// classifyStatus maps HTTP failures onto the package sentinels. Mercado
// Pago answers 400 for ids that are not numeric, which for a customer is
// the same as "not found".
func classifyStatus(code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == fiber.StatusNotFound, code == fiber.StatusBadRequest:
		return ErrPaymentNotFound
	case code == fiber.StatusTooManyRequests, code >= 500:
		return errors.Mark(errors.Newf("mercadopago: status %d", code), ErrTransient)
	default:
		return errors.Newf("mercadopago: status %d: %s", code, truncate(body, 200))
	}
}

func normalizeMercadoPagoStatus(s string) string {
	switch s {
	case "approved":
		return StatusApproved
	case "pending", "in_process", "authorized", "in_mediation":
		return StatusPending
	case "rejected":
		return StatusRejected
	case "cancelled":
		return StatusCancelled
	case "refunded", "charged_back":
		return StatusRefunded
	}
	return StatusUnknown
}

type mpPreferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id,omitempty"`
}

type mpPreference struct {
	Items             []mpPreferenceItem `json:"items"`
	ExternalReference string             `json:"external_reference"`
	NotificationURL   string             `json:"notification_url,omitempty"`
	BackURLs          map[string]string  `json:"back_urls,omitempty"`
	Payer             map[string]any     `json:"payer,omitempty"`
}

type mpPreferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

func (g *MercadoPagoGateway) CreatePaymentLink(ctx context.Context, req LinkRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	pref := mpPreference{
		Items: []mpPreferenceItem{{
			Title:      req.Description,
			Quantity:   1,
			UnitPrice:  req.Amount,
			CurrencyID: req.Currency,
		}},
		ExternalReference: req.ExternalReference,
		NotificationURL:   req.NotificationURL,
	}
	if req.SuccessURL != "" {
		pref.BackURLs = map[string]string{"success": req.SuccessURL}
	}
	if req.PayerName != "" || req.PayerPhone != "" {
		pref.Payer = map[string]any{
			"name":  req.PayerName,
			"phone": map[string]string{"number": req.PayerPhone},
		}
	}

	a := fiber.Post(g.baseURL + "/checkout/preferences")
	a.Set(fiber.HeaderAuthorization, "Bearer "+g.token)
	a.Timeout(g.timeout)
	a.JSON(pref)

	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return "", transient(errs[0], "mercadopago create preference")
	}
	if err := classifyStatus(code, body); err != nil {
		return "", errors.Wrap(err, "mercadopago create preference")
	}
	var out mpPreferenceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", errors.Wrap(err, "decode mercadopago preference")
	}
	if out.InitPoint == "" {
		return "", errors.New("mercadopago preference without init_point")
	}
	return out.InitPoint, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
