package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL   = 10 * time.Minute
	limiterPruneSize = 1000
)

type senderLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SenderLimiter rate limits inbound messages per sender so a retry storm
// from one number cannot flood the dialogue engine.
type SenderLimiter struct {
	limit  rate.Limit
	burst  int
	logger *zap.Logger

	mu       sync.Mutex
	limiters map[string]*senderLimiter
}

func NewSenderLimiter(perSecond float64, burst int, logger *zap.Logger) *SenderLimiter {
	if burst < 1 {
		burst = 1
	}
	return &SenderLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		logger:   logger.Named("ratelimit"),
		limiters: make(map[string]*senderLimiter),
	}
}

// Allow reports whether one more message from key may be processed.
func (s *SenderLimiter) Allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if len(s.limiters) > limiterPruneSize {
		for k, l := range s.limiters {
			if now.Sub(l.lastSeen) > limiterIdleTTL {
				delete(s.limiters, k)
			}
		}
	}

	l, ok := s.limiters[key]
	if !ok {
		l = &senderLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = l
	}
	l.lastSeen = now
	if !l.limiter.AllowN(now, 1) {
		s.logger.Warn("sender rate limit exceeded", zap.String("sender", key))
		return false
	}
	return true
}

// Middleware limits by keyFunc. Over the limit the request is acknowledged
// with 200 and not processed, so the platform does not retry it.
func (s *SenderLimiter) Middleware(keyFunc func(c *fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := keyFunc(c)
		if key != "" && !s.Allow(key) {
			return c.SendStatus(fiber.StatusOK)
		}
		return c.Next()
	}
}
