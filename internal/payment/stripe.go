package payment

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

const externalReferenceKey = "external_reference"

// StripeGateway resolves PaymentIntent ids ("pi_...") and Checkout Session
// ids ("cs_...") and creates Checkout Sessions as payment links.
type StripeGateway struct {
	sc     *client.API
	logger *zap.Logger
}

func NewStripeGateway(secretKey string, logger *zap.Logger) *StripeGateway {
	return &StripeGateway{
		sc:     client.New(secretKey, nil),
		logger: logger.Named("stripe"),
	}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) GetPayment(ctx context.Context, id string) (*PaymentInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.HasPrefix(id, "cs_") {
		return g.getCheckoutSession(ctx, id)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.sc.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}

	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}
	return &PaymentInfo{
		ID:                pi.ID,
		Status:            normalizeIntentStatus(pi.Status),
		RawStatus:         string(pi.Status),
		Amount:            fromMinorUnits(amount),
		Currency:          strings.ToUpper(string(pi.Currency)),
		CreatedAt:         time.Unix(pi.Created, 0),
		ExternalReference: pi.Metadata[externalReferenceKey],
	}, nil
}

func (g *StripeGateway) getCheckoutSession(ctx context.Context, id string) (*PaymentInfo, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	s, err := g.sc.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return checkoutSessionInfo(s), nil
}

// checkoutSessionInfo reports a session under its PaymentIntent id once one
// exists, so the session and intent events of one payment share a
// reference.
func checkoutSessionInfo(s *stripe.CheckoutSession) *PaymentInfo {
	status := StatusPending
	switch s.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		status = StatusApproved
	}
	if s.Status == stripe.CheckoutSessionStatusExpired && status != StatusApproved {
		status = StatusCancelled
	}

	id := s.ID
	if s.PaymentIntent != nil && s.PaymentIntent.ID != "" {
		id = s.PaymentIntent.ID
	}
	return &PaymentInfo{
		ID:                id,
		Status:            status,
		RawStatus:         string(s.PaymentStatus),
		Amount:            fromMinorUnits(s.AmountTotal),
		Currency:          strings.ToUpper(string(s.Currency)),
		CreatedAt:         time.Unix(s.Created, 0),
		ExternalReference: s.ClientReferenceID,
	}
}

func (g *StripeGateway) CreatePaymentLink(ctx context.Context, req LinkRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.ExternalReference),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(toMinorUnits(req.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{externalReferenceKey: req.ExternalReference},
		},
	}
	if req.SuccessURL != "" {
		params.SuccessURL = stripe.String(req.SuccessURL)
	}
	params.Context = ctx

	s, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return "", errors.Wrap(mapStripeError(err), "stripe create checkout session")
	}
	g.logger.Info("checkout session created", zap.String("session_id", s.ID))
	return s.URL, nil
}

func normalizeIntentStatus(s stripe.PaymentIntentStatus) string {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusApproved
	case stripe.PaymentIntentStatusCanceled:
		return StatusCancelled
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresPaymentMethod:
		return StatusPending
	}
	return StatusUnknown
}

func mapStripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return transient(err, "stripe request")
	}
	switch {
	case se.HTTPStatusCode == 404, se.Code == stripe.ErrorCodeResourceMissing:
		return errors.Mark(errors.Wrap(err, "stripe"), ErrPaymentNotFound)
	case se.HTTPStatusCode == 429, se.HTTPStatusCode >= 500:
		return transient(err, "stripe")
	}
	return errors.Wrap(err, "stripe")
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromMinorUnits(v int64) float64 {
	return float64(v) / 100
}
