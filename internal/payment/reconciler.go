package payment

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/clock"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/extract"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/models"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/storage"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/utils"
)

type Outcome string

const (
	Accepted       Outcome = "accepted"
	AmountMismatch Outcome = "amount_mismatch"
	NotApproved    Outcome = "not_approved"
	NotFound       Outcome = "not_found"
)

// Verification is the result of matching one reference against the
// expected deposit. Payment is nil when the gateway has no such payment.
type Verification struct {
	Outcome   Outcome
	Reference string
	Expected  float64
	Tolerance float64
	Payment   *PaymentInfo
}

func (v Verification) Accepted() bool { return v.Outcome == Accepted }

// FollowUp describes a paid reservation that could not be committed.
type FollowUp struct {
	BusinessID    string                  `json:"business_id"`
	CustomerPhone string                  `json:"customer_phone"`
	Reference     string                  `json:"reference"`
	Amount        float64                 `json:"amount"`
	Draft         models.ReservationDraft `json:"draft"`
	Reason        string                  `json:"reason"`
	At            time.Time               `json:"at"`
}

// FollowUpQueue hands FollowUps to staff.
type FollowUpQueue interface {
	EnqueueFollowUp(ctx context.Context, f FollowUp) error
}

// CommitRequest carries everything needed to write the reservation.
type CommitRequest struct {
	Business     *models.Business
	CustomerID   string
	Draft        models.ReservationDraft
	Verification Verification
	// Currency is the resolved deposit currency; the business currency is
	// used when empty.
	Currency string
}

type CommitResult struct {
	Reservation *models.Reservation
	// Replayed is true when the reference had already been committed.
	Replayed bool
	// UsedByOther means the reference belongs to another customer's
	// reservation. Nothing is written and the context is kept.
	UsedByOther bool
	// UsedByEarlier means the reference already paid for a different
	// reservation of the same customer. Nothing is written and the context
	// is kept.
	UsedByEarlier bool
}

// Refused reports whether the reference was rejected because it belongs to
// another reservation.
func (c CommitResult) Refused() bool { return c.UsedByOther || c.UsedByEarlier }

type Reconciler struct {
	gateway   Gateway
	store     storage.ReservationStore
	contexts  storage.ContextStore
	followups FollowUpQueue
	clock     clock.Clock
	logger    *zap.Logger
}

func NewReconciler(gateway Gateway, store storage.ReservationStore, contexts storage.ContextStore, followups FollowUpQueue, clk clock.Clock, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		gateway:   gateway,
		store:     store,
		contexts:  contexts,
		followups: followups,
		clock:     clk,
		logger:    logger.Named("reconciler"),
	}
}

func (r *Reconciler) Gateway() Gateway { return r.gateway }

// Lookup fetches a payment, retrying once on a transient failure.
func (r *Reconciler) Lookup(ctx context.Context, reference string) (*PaymentInfo, error) {
	info, err := r.gateway.GetPayment(ctx, reference)
	if errors.Is(err, ErrTransient) {
		r.logger.Warn("transient gateway error, retrying once",
			zap.String("reference", reference), zap.Error(err))
		info, err = r.gateway.GetPayment(ctx, reference)
	}
	return info, err
}

// Verify looks reference up and classifies it against expected. Only a
// gateway failure that survives the retry is returned as an error.
func (r *Reconciler) Verify(ctx context.Context, reference string, expected, tolerance float64) (Verification, error) {
	info, err := r.Lookup(ctx, reference)
	if errors.Is(err, ErrPaymentNotFound) {
		return Verification{Outcome: NotFound, Reference: reference, Expected: expected, Tolerance: tolerance}, nil
	}
	if err != nil {
		return Verification{}, errors.Wrapf(err, "verify payment %s", reference)
	}
	// The gateway id is the canonical reference, so every alias of one
	// payment hits the same unique key.
	v := Evaluate(info, expected, tolerance)
	if v.Reference == "" {
		v.Reference = reference
	}
	return v, nil
}

// Evaluate accepts a payment iff it is approved and its amount is within
// tolerance of expected.
func Evaluate(info *PaymentInfo, expected, tolerance float64) Verification {
	v := Verification{Reference: info.ID, Expected: expected, Tolerance: tolerance, Payment: info}
	switch {
	case info.Status != StatusApproved:
		v.Outcome = NotApproved
	case math.Abs(info.Amount-expected) > tolerance:
		v.Outcome = AmountMismatch
	default:
		v.Outcome = Accepted
	}
	return v
}

// Commit persists the reservation and then clears the dialogue context.
// The insert is idempotent on (business, reference); a replay returns the
// stored row. If the insert fails the payment is flagged for manual
// follow-up and an error marked ErrCommitFailed is returned.
func (r *Reconciler) Commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	v := req.Verification
	if !v.Accepted() {
		return CommitResult{}, errors.Newf("cannot commit %s verification", v.Outcome)
	}
	now := r.clock.Now()
	business := req.Business
	if req.Currency == "" {
		req.Currency = business.Currency
	}

	res := &models.Reservation{
		ID:               uuid.NewString(),
		Code:             utils.GenerateReservationCode(),
		BusinessID:       business.ID,
		PaymentReference: v.Reference,
		CustomerPhone:    req.CustomerID,
		CustomerName:     req.Draft.CustomerName,
		Day:              req.Draft.Day,
		Time:             req.Draft.Time,
		PartySize:        req.Draft.PartySize,
		ServiceType:      req.Draft.ServiceType,
		DepositAmount:    v.Expected,
		PaidAmount:       v.Payment.Amount,
		Currency:         req.Currency,
		PaymentProvider:  r.gateway.Name(),
		PaymentStatus:    models.PaymentStatusApproved,
		Status:           models.ReservationStatusConfirmed,
		CreatedAt:        now,
	}
	if date, err := extract.ResolveDate(req.Draft.Day, now); err == nil {
		res.Date = date
	} else {
		r.logger.Warn("could not resolve reservation date", zap.String("day", req.Draft.Day), zap.Error(err))
	}

	replayed := false
	err := r.store.InsertReservation(ctx, res)
	if errors.Is(err, storage.ErrDuplicateCode) {
		res.Code = utils.GenerateReservationCode()
		err = r.store.InsertReservation(ctx, res)
	}
	switch {
	case errors.Is(err, storage.ErrDuplicateReservation):
		existing, getErr := r.store.GetReservationByReference(ctx, business.ID, v.Reference)
		if getErr != nil {
			r.flagFollowUp(ctx, req, getErr)
			return CommitResult{}, errors.Mark(errors.Wrap(getErr, "read reservation for duplicate reference"), ErrCommitFailed)
		}
		if existing.CustomerPhone != req.CustomerID {
			r.logger.Warn("payment reference already used by another customer",
				zap.String("reference", v.Reference), zap.String("customer", req.CustomerID))
			return CommitResult{Reservation: existing, Replayed: true, UsedByOther: true}, nil
		}
		if !sameReservation(existing, req.Draft) {
			r.logger.Warn("payment reference already used for an earlier reservation",
				zap.String("reference", v.Reference),
				zap.String("customer", req.CustomerID),
				zap.String("reservation_code", existing.Code))
			return CommitResult{Reservation: existing, Replayed: true, UsedByEarlier: true}, nil
		}
		replayed = true
		res = existing
	case err != nil:
		r.flagFollowUp(ctx, req, err)
		return CommitResult{}, errors.Mark(errors.Wrap(err, "insert reservation"), ErrCommitFailed)
	}

	if !replayed {
		_, err := r.store.UpsertCustomer(ctx, req.CustomerID, business.ID, models.CustomerUpdate{
			Name:             req.Draft.CustomerName,
			ReservationAt:    &now,
			CountReservation: true,
		})
		if err != nil {
			r.logger.Error("customer upsert failed after reservation commit",
				zap.String("reservation_id", res.ID), zap.Error(err))
		}
	}

	// A failed delete only leaves a context behind until its TTL; the unique
	// reference keeps a retry from inserting twice.
	if err := r.contexts.DeleteContext(ctx, req.CustomerID, business.ID); err != nil {
		r.logger.Warn("context delete failed after commit",
			zap.String("customer", req.CustomerID), zap.Error(err))
	}

	r.logger.Info("reservation committed",
		zap.String("reservation_id", res.ID),
		zap.String("code", res.Code),
		zap.String("reference", v.Reference),
		zap.Bool("replayed", replayed))
	return CommitResult{Reservation: res, Replayed: replayed}, nil
}

// sameReservation reports whether a stored row was written for draft d.
func sameReservation(r *models.Reservation, d models.ReservationDraft) bool {
	return r.Day == d.Day &&
		r.Time == d.Time &&
		r.PartySize == d.PartySize &&
		r.ServiceType == d.ServiceType &&
		strings.EqualFold(r.CustomerName, d.CustomerName)
}

func (r *Reconciler) flagFollowUp(ctx context.Context, req CommitRequest, cause error) {
	f := FollowUp{
		BusinessID:    req.Business.ID,
		CustomerPhone: req.CustomerID,
		Reference:     req.Verification.Reference,
		Amount:        req.Verification.Payment.Amount,
		Draft:         req.Draft,
		Reason:        cause.Error(),
		At:            r.clock.Now(),
	}
	r.logger.Error("MANUAL FOLLOW-UP REQUIRED: payment verified but reservation not stored",
		zap.String("business_id", f.BusinessID),
		zap.String("customer", f.CustomerPhone),
		zap.String("reference", f.Reference),
		zap.Float64("amount", f.Amount),
		zap.Error(cause))
	if r.followups == nil {
		return
	}
	if err := r.followups.EnqueueFollowUp(ctx, f); err != nil {
		r.logger.Error("could not enqueue follow-up", zap.Error(err))
	}
}

// Notification is the result of processing one gateway payment
// notification from the checkout-link flow.
type Notification struct {
	Business     *models.Business
	CustomerID   string
	Verification Verification
	Commit       CommitResult
	// Committed is true when this call wrote or replayed the reservation.
	Committed bool
}

// HandleNotification verifies a payment announced by the gateway against
// the dialogue context named by its external reference and commits it.
// Payments that belong to no known context are ignored.
func (r *Reconciler) HandleNotification(ctx context.Context, paymentID string, tolerance float64) (Notification, error) {
	info, err := r.Lookup(ctx, paymentID)
	if err != nil {
		return Notification{}, errors.Wrapf(err, "lookup notified payment %s", paymentID)
	}
	businessID, customerID, ok := ParseExternalReference(info.ExternalReference)
	if !ok {
		r.logger.Info("payment notification without our external reference",
			zap.String("payment_id", paymentID), zap.String("external_reference", info.ExternalReference))
		return Notification{}, nil
	}

	business, err := r.store.GetBusiness(ctx, businessID)
	if err != nil {
		return Notification{}, errors.Wrapf(err, "business %s", businessID)
	}
	n := Notification{Business: business, CustomerID: customerID}

	dc, err := r.contexts.GetContext(ctx, customerID, businessID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && dc.Expired(r.clock.Now())) {
		// Already committed through the chat, or the context is gone.
		if existing, getErr := r.store.GetReservationByReference(ctx, businessID, info.ID); getErr == nil {
			n.Commit = CommitResult{Reservation: existing, Replayed: true}
		}
		return n, nil
	}
	if err != nil {
		return n, errors.Wrap(err, "load dialogue context")
	}

	draft := dc.Draft()
	if draft.Time == "" && draft.ServiceType != "" {
		draft.Time = business.DefaultTime(draft.ServiceType)
	}
	if !draft.Complete() || dc.ExpectedDeposit <= 0 {
		r.logger.Warn("payment notified for an incomplete draft",
			zap.String("payment_id", paymentID), zap.String("customer", customerID))
		return n, nil
	}

	currency := business.Currency
	if currency == "" {
		currency = info.Currency
	}

	n.Verification = Evaluate(info, dc.ExpectedDeposit, tolerance)
	if !n.Verification.Accepted() {
		return n, nil
	}

	res, err := r.Commit(ctx, CommitRequest{
		Business:     business,
		CustomerID:   customerID,
		Draft:        draft,
		Verification: n.Verification,
		Currency:     currency,
	})
	if err != nil {
		return n, err
	}
	n.Commit = res
	n.Committed = !res.Refused()
	return n, nil
}
