package services

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ErrTransient marks send failures worth one retry: timeouts, 5xx and 429.
var ErrTransient = errors.New("transient messaging error")

// Messenger delivers text over a messaging channel.
type Messenger interface {
	Send(ctx context.Context, channelID, to, text string) error
	MarkRead(ctx context.Context, channelID, messageID string) error
}

func transient(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrTransient)
}

// LogMessenger only logs outgoing messages. It stands in when no channel
// credentials are configured.
type LogMessenger struct {
	logger *zap.Logger
}

func NewLogMessenger(logger *zap.Logger) *LogMessenger {
	return &LogMessenger{logger: logger.Named("messenger")}
}

func (m *LogMessenger) Send(ctx context.Context, channelID, to, text string) error {
	m.logger.Info("outgoing message (not sent)",
		zap.String("channel_id", channelID),
		zap.String("to", to),
		zap.String("text", text))
	return nil
}

func (m *LogMessenger) MarkRead(ctx context.Context, channelID, messageID string) error {
	return nil
}
