// Package debounce coalesces bursts of inbound messages from one sender
// into a single dialogue turn.
package debounce

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ErrPanic marks errors recovered from a panicking batch handler.
var ErrPanic = errors.New("batch handler panicked")

// DefaultDuplicateTTL is how long a provider message id is remembered.
const DefaultDuplicateTTL = 10 * time.Minute

type Message struct {
	ID            string
	Text          string
	SenderName    string
	Reference     string
	HasAttachment bool
	ReceivedAt    time.Time
}

// Batch is one logical turn: all messages of a quiet period, in arrival
// order.
type Batch struct {
	Key           string
	Messages      []Message
	Text          string
	SenderName    string
	Reference     string
	HasAttachment bool
}

func newBatch(key string, msgs []Message) Batch {
	b := Batch{Key: key, Messages: msgs}
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if t := strings.TrimSpace(m.Text); t != "" {
			texts = append(texts, t)
		}
		if !isDefaultName(m.SenderName) {
			b.SenderName = m.SenderName
		}
		if b.Reference == "" && m.Reference != "" {
			b.Reference = m.Reference
		}
		b.HasAttachment = b.HasAttachment || m.HasAttachment
	}
	b.Text = strings.Join(texts, "\n")
	return b
}

// isDefaultName is true for empty profile names and names that are just
// the phone number.
func isDefaultName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return true
	}
	for _, r := range name {
		if !unicode.IsDigit(r) && r != '+' && r != ' ' && r != '-' {
			return false
		}
	}
	return true
}

type buffer struct {
	messages   []Message
	lastAt     time.Time
	processing bool
}

// Aggregator owns the per-sender buffers. One mutex guards the map and is
// only held for appends and ownership checks, never across the wait or the
// downstream call.
type Aggregator struct {
	window       time.Duration
	duplicateTTL time.Duration
	logger       *zap.Logger
	now          func() time.Time

	mu      sync.Mutex
	buffers map[string]*buffer
	seen    map[string]time.Time
}

func New(window time.Duration, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		window:       window,
		duplicateTTL: DefaultDuplicateTTL,
		logger:       logger.Named("debounce"),
		now:          time.Now,
		buffers:      make(map[string]*buffer),
		seen:         make(map[string]time.Time),
	}
}

// Submit appends msg to the sender's buffer. The first caller of a burst
// becomes the owner: it blocks until window has passed without new
// arrivals and returns the whole batch with true. Every other caller
// returns immediately with false.
func (a *Aggregator) Submit(ctx context.Context, key string, msg Message) (Batch, bool) {
	a.mu.Lock()
	now := a.now()
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = now
	}
	if a.duplicateLocked(msg.ID, now) {
		a.mu.Unlock()
		a.logger.Debug("dropping duplicate delivery", zap.String("key", key), zap.String("message_id", msg.ID))
		return Batch{}, false
	}

	buf, ok := a.buffers[key]
	if !ok {
		buf = &buffer{}
		a.buffers[key] = buf
	}
	buf.messages = append(buf.messages, msg)
	buf.lastAt = now
	if buf.processing {
		a.mu.Unlock()
		return Batch{}, false
	}
	buf.processing = true
	a.mu.Unlock()

	return a.awaitQuiet(ctx, key, buf), true
}

// Done is called by the owner after processing a batch. Messages that
// arrived meanwhile are returned as the next batch once they go quiet;
// otherwise the sender's entry is removed.
func (a *Aggregator) Done(ctx context.Context, key string) (Batch, bool) {
	a.mu.Lock()
	buf, ok := a.buffers[key]
	if !ok {
		a.mu.Unlock()
		return Batch{}, false
	}
	if len(buf.messages) == 0 {
		delete(a.buffers, key)
		a.mu.Unlock()
		return Batch{}, false
	}
	a.mu.Unlock()

	return a.awaitQuiet(ctx, key, buf), true
}

// Release drops the sender's entry and anything still buffered.
func (a *Aggregator) Release(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.buffers, key)
}

// Run drives Submit, fn and Done for one delivery. Non-owners return nil
// at once. Batches for a sender never overlap. When fn fails or panics the
// entry is released and the error returned.
func (a *Aggregator) Run(ctx context.Context, key string, msg Message, fn func(context.Context, Batch) error) error {
	batch, owner := a.Submit(ctx, key, msg)
	if !owner {
		return nil
	}
	for {
		if err := a.call(ctx, batch, fn); err != nil {
			a.Release(key)
			return err
		}
		next, more := a.Done(ctx, key)
		if !more {
			return nil
		}
		batch = next
	}
}

func (a *Aggregator) call(ctx context.Context, batch Batch, fn func(context.Context, Batch) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Mark(errors.Newf("panic: %v", r), ErrPanic)
		}
	}()
	return fn(ctx, batch)
}

// Pending reports how many senders have an active burst.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers)
}

// awaitQuiet sleeps until the buffer has been quiet for window, then takes
// its messages. The entry stays marked as processing.
func (a *Aggregator) awaitQuiet(ctx context.Context, key string, buf *buffer) Batch {
	for {
		a.mu.Lock()
		wait := buf.lastAt.Add(a.window).Sub(a.now())
		if wait <= 0 || ctx.Err() != nil {
			msgs := buf.messages
			buf.messages = nil
			a.mu.Unlock()
			return newBatch(key, msgs)
		}
		a.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (a *Aggregator) duplicateLocked(id string, now time.Time) bool {
	if id == "" {
		return false
	}
	for k, at := range a.seen {
		if now.Sub(at) > a.duplicateTTL {
			delete(a.seen, k)
		}
	}
	if _, ok := a.seen[id]; ok {
		return true
	}
	a.seen[id] = now
	return false
}
