package services

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Notifier wraps a Messenger with a per-channel send rate and one retry
// on transient failures.
type Notifier struct {
	messenger Messenger
	limit     rate.Limit
	burst     int
	logger    *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewNotifier(messenger Messenger, perSecond float64, logger *zap.Logger) *Notifier {
	limit := rate.Limit(perSecond)
	burst := int(perSecond)
	if perSecond <= 0 {
		limit, burst = rate.Inf, 1
	}
	if burst < 1 {
		burst = 1
	}
	return &Notifier{
		messenger: messenger,
		limit:     limit,
		burst:     burst,
		logger:    logger.Named("notifier"),
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (n *Notifier) limiter(channelID string) *rate.Limiter {
	n.mu.Lock()
	defer n.mu.Unlock()

	l, ok := n.limiters[channelID]
	if !ok {
		l = rate.NewLimiter(n.limit, n.burst)
		n.limiters[channelID] = l
	}
	return l
}

func (n *Notifier) Send(ctx context.Context, channelID, to, text string) error {
	send := func() error {
		if err := n.limiter(channelID).Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limit wait")
		}
		return n.messenger.Send(ctx, channelID, to, text)
	}

	err := send()
	if errors.Is(err, ErrTransient) {
		n.logger.Warn("transient send failure, retrying once", zap.String("to", to), zap.Error(err))
		err = send()
	}
	if err != nil {
		n.logger.Error("failed to deliver message", zap.String("to", to), zap.Error(err))
	}
	return err
}

// MarkRead is best effort and never retried.
func (n *Notifier) MarkRead(ctx context.Context, channelID, messageID string) error {
	return n.messenger.MarkRead(ctx, channelID, messageID)
}
