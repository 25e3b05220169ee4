package storage

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/models"
)

var (
	ErrNotFound             = errors.New("record not found")
	ErrDuplicateReservation = errors.New("reservation already exists for this payment reference")
	ErrDuplicateCode        = errors.New("reservation code already taken")
)

// ContextStore persists dialogue contexts keyed by (customer, business).
// Implementations may return expired contexts; callers decide what to do
// with them.
type ContextStore interface {
	GetContext(ctx context.Context, customerID, businessID string) (*models.DialogueContext, error)
	UpsertContext(ctx context.Context, dc *models.DialogueContext) error
	DeleteContext(ctx context.Context, customerID, businessID string) error
	PurgeExpiredContexts(ctx context.Context, now time.Time) (int64, error)
}

// ReservationStore is the relational side: businesses, customers and
// confirmed reservations.
type ReservationStore interface {
	GetBusinessByChannel(ctx context.Context, channelID string) (*models.Business, error)
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	SaveBusiness(ctx context.Context, b *models.Business) error

	GetCustomer(ctx context.Context, phone, businessID string) (*models.Customer, error)
	UpsertCustomer(ctx context.Context, phone, businessID string, upd models.CustomerUpdate) (*models.Customer, error)

	// InsertReservation returns ErrDuplicateReservation when the
	// (business, payment reference) pair is already taken and
	// ErrDuplicateCode when only the reservation code collides.
	InsertReservation(ctx context.Context, r *models.Reservation) error
	GetReservationByReference(ctx context.Context, businessID, reference string) (*models.Reservation, error)
}

// Store defines the interface for storage operations
type Store interface {
	ContextStore
	ReservationStore
	Ping(ctx context.Context) error
	Kind() string
}

func contextKey(customerID, businessID string) string {
	return businessID + ":" + customerID
}

func referenceKey(businessID, reference string) string {
	return businessID + ":" + reference
}
