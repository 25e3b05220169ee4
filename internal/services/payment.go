package services

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/dialogue"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/payment"
)

// PaymentService handles gateway notifications for the checkout-link
// deposit flow and tells the customer the result.
type PaymentService struct {
	reconciler *payment.Reconciler
	messenger  Messenger
	tolerance  float64
	logger     *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(reconciler *payment.Reconciler, messenger Messenger, tolerance float64, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		reconciler: reconciler,
		messenger:  messenger,
		tolerance:  tolerance,
		logger:     logger.Named("payment"),
	}
}

// ProcessNotification verifies and commits the payment behind a gateway
// notification.
func (p *PaymentService) ProcessNotification(ctx context.Context, paymentID string) error {
	n, err := p.reconciler.HandleNotification(ctx, paymentID, p.tolerance)
	if errors.Is(err, payment.ErrPaymentNotFound) {
		p.logger.Warn("notified payment not found", zap.String("payment_id", paymentID))
		return nil
	}
	if err != nil && !errors.Is(err, payment.ErrCommitFailed) {
		return err
	}
	if n.Business == nil {
		return nil
	}

	var text string
	switch {
	case err != nil:
		text = dialogue.CommitFailedText()
	case n.Committed && !n.Commit.Replayed:
		text = dialogue.ConfirmationText(n.Business, n.Commit.Reservation)
	case n.Verification.Outcome == payment.AmountMismatch,
		n.Verification.Outcome == payment.NotApproved && n.Verification.Payment.Status == payment.StatusRejected:
		text = dialogue.OutcomeText(n.Verification, n.Business.Currency)
	}
	if text == "" {
		return nil
	}

	if err := p.messenger.Send(ctx, n.Business.ChannelID, n.CustomerID, text); err != nil {
		p.logger.Error("payment result not delivered",
			zap.String("customer", n.CustomerID), zap.String("payment_id", paymentID), zap.Error(err))
	}
	p.logger.Info("payment notification processed",
		zap.String("payment_id", paymentID),
		zap.String("customer", n.CustomerID),
		zap.String("outcome", string(n.Verification.Outcome)),
		zap.Bool("committed", n.Committed))
	return nil
}
