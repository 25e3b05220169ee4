package services_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/debounce"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/dialogue"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/mocks"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/models"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/services"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/storage"
)

type recordingHandler struct {
	mu    sync.Mutex
	turns []dialogue.Turn
	err   error
	panic bool
}

func (h *recordingHandler) Handle(ctx context.Context, turn dialogue.Turn) (dialogue.Reply, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turn)
	if h.panic {
		panic("boom")
	}
	if h.err != nil {
		return dialogue.Reply{}, h.err
	}
	return dialogue.Reply{Text: "ok: " + turn.Text}, nil
}

func (h *recordingHandler) Turns() []dialogue.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]dialogue.Turn(nil), h.turns...)
}

func newConversation(t *testing.T, handler services.TurnHandler, messenger services.Messenger) (*services.ConversationService, *models.Business) {
	t.Helper()
	store := storage.NewMemoryStore()
	business := &models.Business{Name: "La Birrita", ChannelID: "chan-1"}
	require.NoError(t, store.SaveBusiness(context.Background(), business))

	agg := debounce.New(40*time.Millisecond, zap.NewNop())
	return services.NewConversationService(context.Background(), store, agg, handler, messenger, zap.NewNop()), business
}

func TestConversation_BurstBecomesOneTurn(t *testing.T) {
	ctrl := gomock.NewController(t)
	messenger := mocks.NewMockMessenger(ctrl)
	messenger.EXPECT().MarkRead(gomock.Any(), "chan-1", gomock.Any()).Return(nil).Times(3)
	messenger.EXPECT().Send(gomock.Any(), "chan-1", "5491155550000", "ok: hola\nquiero reservar\npara el viernes").Return(nil)

	handler := &recordingHandler{}
	svc, _ := newConversation(t, handler, messenger)

	for i, text := range []string{"hola", "quiero reservar", "para el viernes"} {
		svc.Accept(services.InboundMessage{
			ChannelID: "chan-1",
			From:      "5491155550000",
			MessageID: "wamid." + string(rune('a'+i)),
			Text:      text,
		})
		time.Sleep(5 * time.Millisecond)
	}
	svc.Wait()

	turns := handler.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "La Birrita", turns[0].Business.Name)
	assert.Equal(t, 0, svc.Pending())
}

func TestConversation_DuplicateDeliveryIsIgnored(t *testing.T) {
	ctrl := gomock.NewController(t)
	messenger := mocks.NewMockMessenger(ctrl)
	messenger.EXPECT().MarkRead(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	messenger.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), "ok: hola").Return(nil)

	handler := &recordingHandler{}
	svc, _ := newConversation(t, handler, messenger)

	msg := services.InboundMessage{ChannelID: "chan-1", From: "5491155550000", MessageID: "wamid.1", Text: "hola"}
	svc.Accept(msg)
	svc.Accept(msg)
	svc.Wait()

	assert.Len(t, handler.Turns(), 1)
}

func TestConversation_UnknownChannelIsDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	messenger := mocks.NewMockMessenger(ctrl)

	handler := &recordingHandler{}
	svc, _ := newConversation(t, handler, messenger)

	err := svc.Process(context.Background(), services.InboundMessage{ChannelID: "other", From: "549", Text: "hola"})
	require.NoError(t, err)
	assert.Empty(t, handler.Turns())
}

func TestConversation_FailureSendsApologyAndReleasesSender(t *testing.T) {
	tests := []struct {
		name    string
		handler *recordingHandler
	}{
		{"error", &recordingHandler{err: errors.New("store down")}},
		{"panic", &recordingHandler{panic: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			messenger := mocks.NewMockMessenger(ctrl)
			messenger.EXPECT().Send(gomock.Any(), "chan-1", "549", dialogue.ApologyText()).Return(nil)

			svc, _ := newConversation(t, tt.handler, messenger)
			err := svc.Process(context.Background(), services.InboundMessage{ChannelID: "chan-1", From: "549", Text: "hola"})
			require.NoError(t, err)
			assert.Equal(t, 0, svc.Pending())
		})
	}
}

func TestConversation_ReferenceDetectedPerMessage(t *testing.T) {
	ctrl := gomock.NewController(t)
	messenger := mocks.NewMockMessenger(ctrl)
	messenger.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _, text string) error {
			assert.True(t, strings.HasPrefix(text, "ok: "))
			return nil
		})

	handler := &recordingHandler{}
	svc, _ := newConversation(t, handler, messenger)
	require.NoError(t, svc.Process(context.Background(), services.InboundMessage{
		ChannelID: "chan-1", From: "549", Text: "ya transferí, comprobante 98765432109",
	}))

	turns := handler.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "98765432109", turns[0].Reference)
}

type slowFirstTurn struct {
	mu      sync.Mutex
	started chan struct{}
	errs    []error
}

func (h *slowFirstTurn) Handle(ctx context.Context, turn dialogue.Turn) (dialogue.Reply, error) {
	h.mu.Lock()
	first := len(h.errs) == 0
	h.errs = append(h.errs, ctx.Err())
	h.mu.Unlock()
	if first {
		close(h.started)
		<-ctx.Done()
	}
	return dialogue.Reply{Text: "ok"}, nil
}

func TestConversation_EachTurnGetsItsOwnDeadline(t *testing.T) {
	ctrl := gomock.NewController(t)
	messenger := mocks.NewMockMessenger(ctrl)
	messenger.EXPECT().MarkRead(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	messenger.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	handler := &slowFirstTurn{started: make(chan struct{})}
	svc, _ := newConversation(t, handler, messenger)
	svc.WithTurnTimeout(100 * time.Millisecond)

	svc.Accept(services.InboundMessage{ChannelID: "chan-1", From: "5491155550000", MessageID: "wamid.1", Text: "hola"})
	select {
	case <-handler.started:
	case <-time.After(time.Second):
		t.Fatal("first turn never started")
	}
	svc.Accept(services.InboundMessage{ChannelID: "chan-1", From: "5491155550000", MessageID: "wamid.2", Text: "para el viernes"})
	svc.Wait()

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Len(t, handler.errs, 2)
	assert.NoError(t, handler.errs[0])
	assert.NoError(t, handler.errs[1])
	assert.Equal(t, 0, svc.Pending())
}
