package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/clock"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/jobs"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/mocks"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/models"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/payment"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/storage"
)

func TestContextSweeperPurgesOnlyExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 15, 18, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStore()

	stale := models.NewDialogueContext("5491100000001", "BIZ1", now.Add(-time.Hour))
	stale.Touch(now.Add(-time.Hour), 30*time.Minute)
	live := models.NewDialogueContext("5491100000002", "BIZ1", now)
	live.Touch(now, 30*time.Minute)
	require.NoError(t, store.UpsertContext(ctx, stale))
	require.NoError(t, store.UpsertContext(ctx, live))

	sweeper := jobs.NewContextSweeper(store, time.Minute, clock.NewMockClock(now), zap.NewNop())
	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.GetContext(ctx, "5491100000001", "BIZ1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetContext(ctx, "5491100000002", "BIZ1")
	assert.NoError(t, err)
}

func followUp() payment.FollowUp {
	return payment.FollowUp{
		BusinessID:    "BIZ00001",
		CustomerPhone: "5491155550000",
		Reference:     "123456789",
		Amount:        20000,
		Draft: models.ReservationDraft{
			CustomerName: "Lucía",
			Day:          "viernes",
			Time:         "21:00",
			PartySize:    4,
			ServiceType:  models.ServiceDinner,
		},
		Reason: "insert reservation: connection refused",
	}
}

func TestFollowUpHandlerNotifiesOwner(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := storage.NewMemoryStore()
	require.NoError(t, store.SaveBusiness(ctx, &models.Business{
		ID: "BIZ00001", Name: "La Birrita", ChannelID: "PN1", OwnerPhone: "5491144440000",
	}))

	sender := mocks.NewMockMessenger(ctrl)
	var sent string
	sender.EXPECT().Send(gomock.Any(), "PN1", "5491144440000", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _, text string) error {
			sent = text
			return nil
		})

	task, err := jobs.NewFollowUpTask(followUp())
	require.NoError(t, err)
	assert.Equal(t, jobs.TypeFollowUp, task.Type())

	h := jobs.NewFollowUpHandler(store, sender, zap.NewNop())
	require.NoError(t, h.ProcessTask(ctx, task))
	assert.Contains(t, sent, "123456789")
	assert.Contains(t, sent, "Lucía, viernes, 21:00, 4 personas, cena")
}

func TestFollowUpHandlerReturnsSendErrorForRetry(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := storage.NewMemoryStore()
	require.NoError(t, store.SaveBusiness(ctx, &models.Business{
		ID: "BIZ00001", Name: "La Birrita", ChannelID: "PN1", OwnerPhone: "5491144440000",
	}))

	sender := mocks.NewMockMessenger(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("503"))

	task, err := jobs.NewFollowUpTask(followUp())
	require.NoError(t, err)

	err = jobs.NewFollowUpHandler(store, sender, zap.NewNop()).ProcessTask(ctx, task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestFollowUpHandlerSkipsMalformedPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := jobs.NewFollowUpHandler(storage.NewMemoryStore(), mocks.NewMockMessenger(ctrl), zap.NewNop())

	err := h.ProcessTask(context.Background(), asynq.NewTask(jobs.TypeFollowUp, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestFollowUpHandlerWithoutOwnerPhone(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := storage.NewMemoryStore()
	require.NoError(t, store.SaveBusiness(ctx, &models.Business{ID: "BIZ00001", Name: "La Birrita", ChannelID: "PN1"}))

	b, err := json.Marshal(followUp())
	require.NoError(t, err)

	h := jobs.NewFollowUpHandler(store, mocks.NewMockMessenger(ctrl), zap.NewNop())
	assert.NoError(t, h.ProcessTask(ctx, asynq.NewTask(jobs.TypeFollowUp, b)))
}

func TestLogQueueNeverFails(t *testing.T) {
	q := jobs.NewLogQueue(zap.NewNop())
	assert.NoError(t, q.EnqueueFollowUp(context.Background(), followUp()))
}
