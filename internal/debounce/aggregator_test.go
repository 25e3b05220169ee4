package debounce

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testWindow = 50 * time.Millisecond

type recorder struct {
	mu      sync.Mutex
	batches []Batch
}

func (r *recorder) handle(ctx context.Context, b Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
	return nil
}

func (r *recorder) all() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Batch(nil), r.batches...)
}

func submitBurst(t *testing.T, agg *Aggregator, key string, texts []string, gap time.Duration, fn func(context.Context, Batch) error) {
	t.Helper()
	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		msg := Message{ID: fmt.Sprintf("%s-%d", key, i), Text: text}
		go func() {
			defer wg.Done()
			assert.NoError(t, agg.Run(context.Background(), key, msg, fn))
		}()
		time.Sleep(gap)
	}
	wg.Wait()
}

func TestAggregator_CoalescesBurst(t *testing.T) {
	agg := New(testWindow, zap.NewNop())
	rec := &recorder{}

	submitBurst(t, agg, "5491111", []string{"hola", "viernes", "4 personas"}, 10*time.Millisecond, rec.handle)

	batches := rec.all()
	require.Len(t, batches, 1)
	assert.Equal(t, "hola\nviernes\n4 personas", batches[0].Text)
	assert.Len(t, batches[0].Messages, 3)
	assert.Equal(t, 0, agg.Pending())
}

func TestAggregator_SeparateSendersDoNotBlockEachOther(t *testing.T) {
	agg := New(testWindow, zap.NewNop())
	rec := &recorder{}

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			submitBurst(t, agg, key, []string{"uno", "dos"}, 5*time.Millisecond, rec.handle)
		}(key)
	}
	wg.Wait()

	batches := rec.all()
	require.Len(t, batches, 2)
	keys := []string{batches[0].Key, batches[1].Key}
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestAggregator_QuietPeriodsProduceSeparateTurnsInOrder(t *testing.T) {
	agg := New(testWindow, zap.NewNop())

	var active, overlapped int32
	var mu sync.Mutex
	var texts []string
	started := make(chan struct{}, 1)

	fn := func(ctx context.Context, b Batch) error {
		if atomic.AddInt32(&active, 1) > 1 {
			atomic.StoreInt32(&overlapped, 1)
		}
		defer atomic.AddInt32(&active, -1)

		mu.Lock()
		texts = append(texts, b.Text)
		mu.Unlock()

		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(80 * time.Millisecond)
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- agg.Run(context.Background(), "k", Message{ID: "1", Text: "primero"}, fn) }()

	<-started
	// arrives while the first batch is being processed
	require.NoError(t, agg.Run(context.Background(), "k", Message{ID: "2", Text: "segundo"}, fn))
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"primero", "segundo"}, texts)
	assert.Zero(t, atomic.LoadInt32(&overlapped))
	assert.Equal(t, 0, agg.Pending())
}

func TestAggregator_ErrorReleasesBuffer(t *testing.T) {
	agg := New(testWindow, zap.NewNop())
	boom := errors.New("boom")

	err := agg.Run(context.Background(), "k", Message{Text: "hola"}, func(context.Context, Batch) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, agg.Pending())

	// the sender is not stuck afterwards
	rec := &recorder{}
	require.NoError(t, agg.Run(context.Background(), "k", Message{Text: "de nuevo"}, rec.handle))
	assert.Len(t, rec.all(), 1)
}

func TestAggregator_PanicIsRecovered(t *testing.T) {
	agg := New(testWindow, zap.NewNop())

	err := agg.Run(context.Background(), "k", Message{Text: "hola"}, func(context.Context, Batch) error {
		panic("nil map")
	})
	assert.ErrorIs(t, err, ErrPanic)
	assert.Equal(t, 0, agg.Pending())
}

func TestAggregator_DropsDuplicateDelivery(t *testing.T) {
	agg := New(testWindow, zap.NewNop())
	rec := &recorder{}

	require.NoError(t, agg.Run(context.Background(), "k", Message{ID: "wamid.1", Text: "hola"}, rec.handle))
	require.NoError(t, agg.Run(context.Background(), "k", Message{ID: "wamid.1", Text: "hola"}, rec.handle))

	assert.Len(t, rec.all(), 1)
}

func TestAggregator_CancelledContextFlushesImmediately(t *testing.T) {
	agg := New(time.Hour, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, owner := agg.Submit(ctx, "k", Message{Text: "hola"})
	require.True(t, owner)
	assert.Equal(t, "hola", batch.Text)
	agg.Release("k")
}

func TestNewBatch(t *testing.T) {
	b := newBatch("k", []Message{
		{Text: "hola", SenderName: "Ana"},
		{Text: " ", SenderName: "+54 9 11"},
		{Text: "te paso el comprobante", Reference: "12345678901"},
		{Text: "otro", Reference: "99999999999", HasAttachment: true},
	})
	assert.Equal(t, "hola\nte paso el comprobante\notro", b.Text)
	assert.Equal(t, "Ana", b.SenderName)
	assert.Equal(t, "12345678901", b.Reference)
	assert.True(t, b.HasAttachment)
}
