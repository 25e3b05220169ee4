package payment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/clock"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/mocks"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/models"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/payment"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/storage"
)

type ReconcilerTestSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	gateway   *mocks.MockGateway
	followups *mocks.MockFollowUpQueue
	store     *storage.MemoryStore
	clock     *clock.MockClock
	rec       *payment.Reconciler
	business  *models.Business
	ctx       context.Context
}

func (s *ReconcilerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.gateway = mocks.NewMockGateway(s.ctrl)
	s.gateway.EXPECT().Name().Return("mercadopago").AnyTimes()
	s.followups = mocks.NewMockFollowUpQueue(s.ctrl)
	s.store = storage.NewMemoryStore()
	s.clock = clock.NewMockClock(time.Date(2025, time.October, 15, 18, 0, 0, 0, time.UTC))
	s.rec = payment.NewReconciler(s.gateway, s.store, s.store, s.followups, s.clock, zap.NewNop())
	s.ctx = context.Background()

	s.business = &models.Business{Name: "La Birrita", ChannelID: "chan-1", DepositPerPerson: 5000, Currency: "ARS"}
	s.Require().NoError(s.store.SaveBusiness(s.ctx, s.business))
}

func (s *ReconcilerTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestReconcilerSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerTestSuite))
}

func approved(id string, amount float64) *payment.PaymentInfo {
	return &payment.PaymentInfo{ID: id, Status: payment.StatusApproved, Amount: amount, Currency: "ARS"}
}

func (s *ReconcilerTestSuite) TestVerify_Outcomes() {
	tests := []struct {
		name string
		info *payment.PaymentInfo
		err  error
		want payment.Outcome
	}{
		{"exact amount", approved("1", 20000), nil, payment.Accepted},
		{"within tolerance", approved("2", 20000.99), nil, payment.Accepted},
		{"at tolerance", approved("3", 19999), nil, payment.Accepted},
		{"one dollar over tolerance", approved("4", 20002), nil, payment.AmountMismatch},
		{"pending", &payment.PaymentInfo{ID: "5", Status: payment.StatusPending, Amount: 20000}, nil, payment.NotApproved},
		{"missing", nil, payment.ErrPaymentNotFound, payment.NotFound},
		{"session alias", approved("pi_3Nx", 20000), nil, payment.Accepted},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.gateway.EXPECT().GetPayment(gomock.Any(), "ref-"+tt.name).Return(tt.info, tt.err)

			v, err := s.rec.Verify(s.ctx, "ref-"+tt.name, 20000, 1)
			s.Require().NoError(err)
			s.Equal(tt.want, v.Outcome)
			if tt.info != nil {
				s.Equal(tt.info.ID, v.Reference, "the gateway id is the stored reference")
			} else {
				s.Equal("ref-"+tt.name, v.Reference)
			}
			s.Equal(20000.0, v.Expected)
		})
	}
}

func (s *ReconcilerTestSuite) TestVerify_RetriesTransientOnce() {
	gomock.InOrder(
		s.gateway.EXPECT().GetPayment(gomock.Any(), "98765432109").
			Return(nil, errors.Mark(errors.New("timeout"), payment.ErrTransient)),
		s.gateway.EXPECT().GetPayment(gomock.Any(), "98765432109").
			Return(approved("98765432109", 20000), nil),
	)

	v, err := s.rec.Verify(s.ctx, "98765432109", 20000, 1)
	s.Require().NoError(err)
	s.Equal(payment.Accepted, v.Outcome)
}

func (s *ReconcilerTestSuite) TestVerify_TransientTwiceIsAnError() {
	s.gateway.EXPECT().GetPayment(gomock.Any(), "98765432109").
		Return(nil, errors.Mark(errors.New("503"), payment.ErrTransient)).Times(2)

	_, err := s.rec.Verify(s.ctx, "98765432109", 20000, 1)
	s.Require().Error(err)
	s.True(errors.Is(err, payment.ErrTransient))
}

func (s *ReconcilerTestSuite) commitRequest(ref string) payment.CommitRequest {
	return payment.CommitRequest{
		Business:   s.business,
		CustomerID: "5491155550000",
		Draft: models.ReservationDraft{
			CustomerName: "Ana", Day: "viernes", Time: "21:00", PartySize: 4, ServiceType: models.ServiceDinner,
		},
		Verification: payment.Verification{
			Outcome: payment.Accepted, Reference: ref, Expected: 20000, Tolerance: 1,
			Payment: approved(ref, 20000),
		},
	}
}

func (s *ReconcilerTestSuite) TestCommit_IsIdempotent() {
	dc := models.NewDialogueContext("5491155550000", s.business.ID, s.clock.Now())
	s.Require().NoError(s.store.UpsertContext(s.ctx, dc))

	first, err := s.rec.Commit(s.ctx, s.commitRequest("12345678901"))
	s.Require().NoError(err)
	s.False(first.Replayed)
	s.Equal(time.Date(2025, time.October, 17, 0, 0, 0, 0, time.UTC), first.Reservation.Date)

	second, err := s.rec.Commit(s.ctx, s.commitRequest("12345678901"))
	s.Require().NoError(err)
	s.True(second.Replayed)
	s.Equal(first.Reservation.ID, second.Reservation.ID)

	s.Equal(1, s.store.CountReservations())
	_, err = s.store.GetContext(s.ctx, "5491155550000", s.business.ID)
	s.ErrorIs(err, storage.ErrNotFound)

	customer, err := s.store.GetCustomer(s.ctx, "5491155550000", s.business.ID)
	s.Require().NoError(err)
	s.Equal("Ana", customer.Name)
	s.Equal(1, customer.ReservationCount)
}

func (s *ReconcilerTestSuite) TestCommit_ReferenceUsedByAnotherCustomer() {
	_, err := s.rec.Commit(s.ctx, s.commitRequest("12345678901"))
	s.Require().NoError(err)

	other := s.commitRequest("12345678901")
	other.CustomerID = "5491100000000"
	dc := models.NewDialogueContext(other.CustomerID, s.business.ID, s.clock.Now())
	s.Require().NoError(s.store.UpsertContext(s.ctx, dc))

	res, err := s.rec.Commit(s.ctx, other)
	s.Require().NoError(err)
	s.True(res.UsedByOther)

	_, err = s.store.GetContext(s.ctx, other.CustomerID, s.business.ID)
	s.NoError(err, "context must survive so the customer can send another reference")
}

func (s *ReconcilerTestSuite) TestCommit_ReferenceAlreadyPaidAnEarlierReservation() {
	first, err := s.rec.Commit(s.ctx, s.commitRequest("12345678901"))
	s.Require().NoError(err)

	dc := models.NewDialogueContext("5491155550000", s.business.ID, s.clock.Now())
	s.Require().NoError(s.store.UpsertContext(s.ctx, dc))

	again := s.commitRequest("12345678901")
	again.Draft.Day = "sábado"
	res, err := s.rec.Commit(s.ctx, again)
	s.Require().NoError(err)
	s.True(res.UsedByEarlier)
	s.False(res.UsedByOther)
	s.True(res.Refused())
	s.Equal(first.Reservation.Code, res.Reservation.Code)
	s.Equal("viernes", res.Reservation.Day)

	s.Equal(1, s.store.CountReservations())
	_, err = s.store.GetContext(s.ctx, "5491155550000", s.business.ID)
	s.NoError(err)
	customer, err := s.store.GetCustomer(s.ctx, "5491155550000", s.business.ID)
	s.Require().NoError(err)
	s.Equal(1, customer.ReservationCount)
}

func (s *ReconcilerTestSuite) TestCommit_StoresResolvedCurrency() {
	s.business.Currency = ""
	req := s.commitRequest("12345678901")
	req.Currency = "ARS"

	res, err := s.rec.Commit(s.ctx, req)
	s.Require().NoError(err)
	s.Equal("ARS", res.Reservation.Currency)

	stored, err := s.store.GetReservationByReference(s.ctx, s.business.ID, "12345678901")
	s.Require().NoError(err)
	s.Equal("ARS", stored.Currency)
}

type failingInsertStore struct {
	*storage.MemoryStore
}

func (f failingInsertStore) InsertReservation(ctx context.Context, r *models.Reservation) error {
	return errors.New("connection reset")
}

func (s *ReconcilerTestSuite) TestCommit_FailureIsFlaggedForFollowUp() {
	rec := payment.NewReconciler(s.gateway, failingInsertStore{s.store}, s.store, s.followups, s.clock, zap.NewNop())

	s.followups.EXPECT().EnqueueFollowUp(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, f payment.FollowUp) error {
			s.Equal("12345678901", f.Reference)
			s.Equal(20000.0, f.Amount)
			s.Equal("Ana", f.Draft.CustomerName)
			return nil
		})

	_, err := rec.Commit(s.ctx, s.commitRequest("12345678901"))
	s.Require().Error(err)
	s.True(errors.Is(err, payment.ErrCommitFailed))
}

type unreadableDuplicateStore struct {
	*storage.MemoryStore
}

func (f unreadableDuplicateStore) InsertReservation(ctx context.Context, r *models.Reservation) error {
	return storage.ErrDuplicateReservation
}

func (f unreadableDuplicateStore) GetReservationByReference(ctx context.Context, businessID, reference string) (*models.Reservation, error) {
	return nil, errors.New("connection reset")
}

func (s *ReconcilerTestSuite) TestCommit_UnreadableDuplicateIsNotConfirmed() {
	rec := payment.NewReconciler(s.gateway, unreadableDuplicateStore{s.store}, s.store, s.followups, s.clock, zap.NewNop())
	dc := models.NewDialogueContext("5491155550000", s.business.ID, s.clock.Now())
	s.Require().NoError(s.store.UpsertContext(s.ctx, dc))

	s.followups.EXPECT().EnqueueFollowUp(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, f payment.FollowUp) error {
			s.Equal("12345678901", f.Reference)
			return nil
		})

	res, err := rec.Commit(s.ctx, s.commitRequest("12345678901"))
	s.Require().Error(err)
	s.True(errors.Is(err, payment.ErrCommitFailed))
	s.Nil(res.Reservation)

	_, err = s.store.GetContext(s.ctx, "5491155550000", s.business.ID)
	s.NoError(err)
}

type codeClashStore struct {
	*storage.MemoryStore
	codes *[]string
}

func (f codeClashStore) InsertReservation(ctx context.Context, r *models.Reservation) error {
	*f.codes = append(*f.codes, r.Code)
	if len(*f.codes) == 1 {
		return storage.ErrDuplicateCode
	}
	return f.MemoryStore.InsertReservation(ctx, r)
}

func (s *ReconcilerTestSuite) TestCommit_RetriesWithFreshCodeOnCodeClash() {
	var codes []string
	rec := payment.NewReconciler(s.gateway, codeClashStore{s.store, &codes}, s.store, s.followups, s.clock, zap.NewNop())

	res, err := rec.Commit(s.ctx, s.commitRequest("12345678901"))
	s.Require().NoError(err)
	s.False(res.Replayed)
	s.False(res.Refused())
	s.Require().Len(codes, 2)
	s.Equal(codes[1], res.Reservation.Code)
	s.Equal(1, s.store.CountReservations())
}

func TestEvaluate(t *testing.T) {
	v := payment.Evaluate(approved("x", 100), 100, 0)
	assert.True(t, v.Accepted())

	v = payment.Evaluate(&payment.PaymentInfo{Status: payment.StatusRejected, Amount: 100}, 100, 1)
	assert.Equal(t, payment.NotApproved, v.Outcome)
}

func TestExternalReference(t *testing.T) {
	ref := payment.ExternalReference("biz-1", "5491155550000")
	b, c, ok := payment.ParseExternalReference(ref)
	require.True(t, ok)
	assert.Equal(t, "biz-1", b)
	assert.Equal(t, "5491155550000", c)

	_, _, ok = payment.ParseExternalReference("garbage")
	assert.False(t, ok)
}

func (s *ReconcilerTestSuite) TestHandleNotification_CommitsLinkPayment() {
	dc := models.NewDialogueContext("5491155550000", s.business.ID, s.clock.Now())
	dc.CustomerName, dc.Day, dc.PartySize, dc.ServiceType = "Ana", "viernes", 4, models.ServiceDinner
	dc.AwaitingPayment, dc.ExpectedDeposit = true, 20000
	dc.Touch(s.clock.Now(), 30*time.Minute)
	s.Require().NoError(s.store.UpsertContext(s.ctx, dc))

	info := approved("555000111", 20000)
	info.ExternalReference = payment.ExternalReference(s.business.ID, "5491155550000")
	s.gateway.EXPECT().GetPayment(gomock.Any(), "555000111").Return(info, nil).Times(2)

	n, err := s.rec.HandleNotification(s.ctx, "555000111", 1)
	s.Require().NoError(err)
	s.True(n.Committed)
	s.Equal("21:00", n.Commit.Reservation.Time)
	s.Equal(1, s.store.CountReservations())

	// The gateway retries notifications; the second one is a replay.
	n, err = s.rec.HandleNotification(s.ctx, "555000111", 1)
	s.Require().NoError(err)
	s.False(n.Committed)
	s.True(n.Commit.Replayed)
	s.Equal(1, s.store.CountReservations())
}

func (s *ReconcilerTestSuite) TestHandleNotification_IgnoresForeignPayments() {
	s.gateway.EXPECT().GetPayment(gomock.Any(), "777").Return(approved("777", 100), nil)

	n, err := s.rec.HandleNotification(s.ctx, "777", 1)
	s.Require().NoError(err)
	s.False(n.Committed)
	s.Nil(n.Business)
}

// rendezvousContexts holds every GetContext caller until all of them have
// read the context, so concurrent notifications race on the insert.
type rendezvousContexts struct {
	storage.ContextStore
	arrived *sync.WaitGroup
}

func (c rendezvousContexts) GetContext(ctx context.Context, customerID, businessID string) (*models.DialogueContext, error) {
	dc, err := c.ContextStore.GetContext(ctx, customerID, businessID)
	c.arrived.Done()
	c.arrived.Wait()
	return dc, err
}

func (s *ReconcilerTestSuite) TestHandleNotification_SessionAndIntentCommitOnce() {
	dc := models.NewDialogueContext("5491155550000", s.business.ID, s.clock.Now())
	dc.CustomerName, dc.Day, dc.PartySize, dc.ServiceType = "Ana", "viernes", 4, models.ServiceDinner
	dc.AwaitingPayment, dc.ExpectedDeposit = true, 20000
	dc.Touch(s.clock.Now(), 30*time.Minute)
	s.Require().NoError(s.store.UpsertContext(s.ctx, dc))

	// Checkout Session and PaymentIntent events resolve to the same payment.
	info := approved("pi_1", 20000)
	info.ExternalReference = payment.ExternalReference(s.business.ID, "5491155550000")
	s.gateway.EXPECT().GetPayment(gomock.Any(), "cs_1").Return(info, nil)
	s.gateway.EXPECT().GetPayment(gomock.Any(), "pi_1").Return(info, nil)

	arrived := &sync.WaitGroup{}
	arrived.Add(2)
	rec := payment.NewReconciler(s.gateway, s.store, rendezvousContexts{s.store, arrived}, s.followups, s.clock, zap.NewNop())

	ids := []string{"cs_1", "pi_1"}
	results := make([]payment.Notification, len(ids))
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		i, id := i, id
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = rec.HandleNotification(s.ctx, id, 1)
		}()
	}
	wg.Wait()

	s.Require().NoError(errs[0])
	s.Require().NoError(errs[1])
	s.Equal(1, s.store.CountReservations())
	s.Require().NotNil(results[0].Commit.Reservation)
	s.Require().NotNil(results[1].Commit.Reservation)
	s.Equal(results[0].Commit.Reservation.ID, results[1].Commit.Reservation.ID)
	s.Equal("pi_1", results[0].Commit.Reservation.PaymentReference)
	s.NotEqual(results[0].Commit.Replayed, results[1].Commit.Replayed)

	customer, err := s.store.GetCustomer(s.ctx, "5491155550000", s.business.ID)
	s.Require().NoError(err)
	s.Equal(1, customer.ReservationCount)
}
