// Package payment verifies customer-supplied payment references against a
// gateway and commits the reservation once a deposit is accepted.
package payment

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrTransient marks timeouts, 5xx and 429 responses. Callers retry
	// these at most once.
	ErrTransient = errors.New("transient payment gateway error")
	// ErrCommitFailed means money moved but the reservation row could not
	// be written; a follow-up job is enqueued for staff.
	ErrCommitFailed = errors.New("reservation commit failed after verified payment")
)

// Normalized payment statuses.
const (
	StatusApproved  = "approved"
	StatusPending   = "pending"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
	StatusRefunded  = "refunded"
	StatusUnknown   = "unknown"
)

// PaymentInfo is the gateway's record of one payment.
type PaymentInfo struct {
	ID                string
	Status            string
	RawStatus         string
	Amount            float64
	Currency          string
	CreatedAt         time.Time
	ExternalReference string
}

// LinkRequest asks the gateway for a hosted checkout page.
type LinkRequest struct {
	Amount            float64
	Currency          string
	Description       string
	ExternalReference string
	PayerName         string
	PayerPhone        string
	SuccessURL        string
	NotificationURL   string
}

type Gateway interface {
	Name() string
	GetPayment(ctx context.Context, id string) (*PaymentInfo, error)
	CreatePaymentLink(ctx context.Context, req LinkRequest) (string, error)
}

// ExternalReference ties a checkout back to the dialogue context that
// started it.
func ExternalReference(businessID, customerID string) string {
	return businessID + "|" + customerID
}

// ParseExternalReference is the inverse of ExternalReference.
func ParseExternalReference(ref string) (businessID, customerID string, ok bool) {
	businessID, customerID, ok = strings.Cut(ref, "|")
	if !ok || businessID == "" || customerID == "" {
		return "", "", false
	}
	return businessID, customerID, true
}

func transient(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrTransient)
}
