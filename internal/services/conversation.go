package services

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/debounce"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/dialogue"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/extract"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/storage"
)

// turnTimeout bounds one engine call and its reply.
const turnTimeout = 2 * time.Minute

// InboundMessage is one customer message as delivered by a webhook.
type InboundMessage struct {
	ChannelID     string
	From          string
	SenderName    string
	MessageID     string
	Text          string
	HasAttachment bool
	ReceivedAt    time.Time
}

// TurnHandler answers one debounced turn.
type TurnHandler interface {
	Handle(ctx context.Context, turn dialogue.Turn) (dialogue.Reply, error)
}

// ConversationService connects webhooks to the dialogue engine: business
// lookup, debouncing, the engine call and the reply.
type ConversationService struct {
	businesses storage.ReservationStore
	aggregator *debounce.Aggregator
	handler    TurnHandler
	messenger  Messenger
	logger     *zap.Logger

	baseCtx     context.Context
	turnTimeout time.Duration
	wg          sync.WaitGroup
}

func NewConversationService(ctx context.Context, businesses storage.ReservationStore, aggregator *debounce.Aggregator, handler TurnHandler, messenger Messenger, logger *zap.Logger) *ConversationService {
	return &ConversationService{
		businesses:  businesses,
		aggregator:  aggregator,
		handler:     handler,
		messenger:   messenger,
		logger:      logger.Named("conversation"),
		baseCtx:     ctx,
		turnTimeout: turnTimeout,
	}
}

// WithTurnTimeout overrides how long a single debounced turn may run.
func (s *ConversationService) WithTurnTimeout(d time.Duration) *ConversationService {
	s.turnTimeout = d
	return s
}

// Accept processes msg in the background so the webhook can answer at
// once.
func (s *ConversationService) Accept(msg InboundMessage) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Process(s.baseCtx, msg); err != nil {
			s.logger.Error("message processing failed", zap.String("from", msg.From), zap.Error(err))
		}
	}()
}

// Wait blocks until every accepted message has been processed.
func (s *ConversationService) Wait() {
	s.wg.Wait()
}

// Pending reports senders with an open debounce window.
func (s *ConversationService) Pending() int {
	return s.aggregator.Pending()
}

// Process handles one message synchronously. Only the delivery that owns
// the sender's burst runs the engine; the others return once buffered.
func (s *ConversationService) Process(ctx context.Context, msg InboundMessage) error {
	if msg.From == "" {
		return nil
	}
	business, err := s.businesses.GetBusinessByChannel(ctx, msg.ChannelID)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("message for unknown channel dropped", zap.String("channel_id", msg.ChannelID))
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "resolve business")
	}

	if msg.MessageID != "" {
		if err := s.messenger.MarkRead(ctx, business.ChannelID, msg.MessageID); err != nil {
			s.logger.Debug("mark as read failed", zap.String("message_id", msg.MessageID), zap.Error(err))
		}
	}

	ref, _ := extract.TransferReference(msg.Text)
	key := business.ID + ":" + msg.From

	err = s.aggregator.Run(ctx, key, debounce.Message{
		ID:            msg.MessageID,
		Text:          msg.Text,
		SenderName:    msg.SenderName,
		Reference:     ref,
		HasAttachment: msg.HasAttachment,
		ReceivedAt:    msg.ReceivedAt,
	}, func(ctx context.Context, batch debounce.Batch) error {
		ctx, cancel := context.WithTimeout(ctx, s.turnTimeout)
		defer cancel()
		reply, err := s.handler.Handle(ctx, dialogue.Turn{
			Business:      business,
			CustomerID:    msg.From,
			SenderName:    batch.SenderName,
			Text:          batch.Text,
			Reference:     batch.Reference,
			HasAttachment: batch.HasAttachment,
			ReceivedAt:    msg.ReceivedAt,
		})
		if err != nil {
			return err
		}
		if reply.Text == "" {
			return nil
		}
		if err := s.messenger.Send(ctx, business.ChannelID, msg.From, reply.Text); err != nil {
			s.logger.Error("reply not delivered",
				zap.String("to", msg.From), zap.String("rule", reply.Rule), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		s.logger.Error("turn failed, sending apology",
			zap.String("from", msg.From),
			zap.Bool("panic", errors.Is(err, debounce.ErrPanic)),
			zap.Error(err))
		if sendErr := s.messenger.Send(ctx, business.ChannelID, msg.From, dialogue.ApologyText()); sendErr != nil {
			s.logger.Error("apology not delivered", zap.String("to", msg.From), zap.Error(sendErr))
		}
	}
	return nil
}
