package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/clock"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/storage"
)

// ContextSweeper periodically deletes dialogue contexts past their TTL.
// Reads already treat expired contexts as absent; sweeping only reclaims
// space.
type ContextSweeper struct {
	contexts storage.ContextStore
	interval time.Duration
	clock    clock.Clock
	logger   *zap.Logger
}

func NewContextSweeper(contexts storage.ContextStore, interval time.Duration, clk clock.Clock, logger *zap.Logger) *ContextSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ContextSweeper{
		contexts: contexts,
		interval: interval,
		clock:    clk,
		logger:   logger.Named("sweeper"),
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *ContextSweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.SweepOnce(ctx); err != nil {
					s.logger.Warn("context sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// SweepOnce purges every context expired at the current time.
func (s *ContextSweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.contexts.PurgeExpiredContexts(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired contexts purged", zap.Int64("count", n))
	}
	return n, nil
}
