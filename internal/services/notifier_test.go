package services_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/mocks"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/services"
)

func TestNotifier_RetriesTransientOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	messenger := mocks.NewMockMessenger(ctrl)
	gomock.InOrder(
		messenger.EXPECT().Send(gomock.Any(), "chan-1", "549", "hola").
			Return(errors.Mark(errors.New("503"), services.ErrTransient)),
		messenger.EXPECT().Send(gomock.Any(), "chan-1", "549", "hola").Return(nil),
	)

	n := services.NewNotifier(messenger, 100, zap.NewNop())
	assert.NoError(t, n.Send(context.Background(), "chan-1", "549", "hola"))
}

func TestNotifier_DoesNotRetryPermanentErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	messenger := mocks.NewMockMessenger(ctrl)
	messenger.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("invalid recipient")).Times(1)

	n := services.NewNotifier(messenger, 100, zap.NewNop())
	assert.Error(t, n.Send(context.Background(), "chan-1", "549", "hola"))
}

func TestNotifier_GivesUpAfterSecondTransientFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	messenger := mocks.NewMockMessenger(ctrl)
	messenger.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.Mark(errors.New("timeout"), services.ErrTransient)).Times(2)

	n := services.NewNotifier(messenger, 0, zap.NewNop())
	err := n.Send(context.Background(), "chan-1", "549", "hola")
	assert.True(t, errors.Is(err, services.ErrTransient))
}
