package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PgLogPump/internal/models"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]models.LogEvent
	errs    []error
}

func (r *recorder) flush(_ context.Context, events []models.LogEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, events)
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return err
	}
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func event(tpl string) models.LogEvent {
	return models.LogEvent{MessageTemplate: tpl, Timestamp: time.Now()}
}

func TestEnqueue_QueueLimit(t *testing.T) {
	b := New(Config{QueueLimit: 2, Flush: (&recorder{}).flush})
	assert.True(t, b.Enqueue(event("1")))
	assert.True(t, b.Enqueue(event("2")))
	assert.False(t, b.Enqueue(event("3")))
	assert.Equal(t, 2, b.Len())
}

func TestFlushOnce_SizeLimit(t *testing.T) {
	rec := &recorder{}
	b := New(Config{SizeLimit: 2, Flush: rec.flush})
	for _, s := range []string{"a", "b", "c"} {
		b.Enqueue(event(s))
	}

	sent, err := b.FlushOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, b.Len())

	sent, err = b.FlushOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, "c", rec.batches[1][0].MessageTemplate)

	sent, err = b.FlushOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestFlushOnce_RetainOrDrop(t *testing.T) {
	retryable := errors.New("retry me")
	fatal := errors.New("drop me")
	rec := &recorder{errs: []error{retryable, fatal}}

	var reported []int
	b := New(Config{
		Flush:   rec.flush,
		Retain:  func(err error) bool { return errors.Is(err, retryable) },
		OnError: func(_ error, count int) { reported = append(reported, count) },
	})
	b.Enqueue(event("a"))
	b.Enqueue(event("b"))

	_, err := b.FlushOnce(context.Background())
	assert.ErrorIs(t, err, retryable)
	assert.Equal(t, 2, b.Len())

	_, err = b.FlushOnce(context.Background())
	assert.ErrorIs(t, err, fatal)
	assert.Zero(t, b.Len())

	assert.Equal(t, []int{2, 2}, reported)
	// обе попытки отправляли одну и ту же пачку
	assert.Equal(t, rec.batches[0], rec.batches[1])
}

func TestRun_PeriodicFlush(t *testing.T) {
	rec := &recorder{}
	b := New(Config{Period: 20 * time.Millisecond, SizeLimit: 100, Flush: rec.flush})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Enqueue(event("tick"))
	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestRun_DrainsOnShutdown(t *testing.T) {
	rec := &recorder{}
	b := New(Config{Period: time.Hour, SizeLimit: 2, Flush: rec.flush})
	for i := 0; i < 5; i++ {
		b.Enqueue(event("e"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Run(ctx)

	assert.Equal(t, 5, rec.count())
	assert.Zero(t, b.Len())
}

func TestRun_ShutdownStopsOnRetainedError(t *testing.T) {
	down := errors.New("db down")
	rec := &recorder{errs: []error{down, down, down}}
	b := New(Config{
		Period: time.Hour,
		Flush:  rec.flush,
		Retain: func(error) bool { return true },
	})
	b.Enqueue(event("e"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Run(ctx)

	assert.Equal(t, 1, b.Len())
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.batches, 1)
}

func (r *recorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func TestRun_RetainedErrorWaitsForTimer(t *testing.T) {
	down := errors.New("db down")
	var (
		mu     sync.Mutex
		broken = true
	)
	rec := &recorder{}
	b := New(Config{
		Period:    time.Hour,
		SizeLimit: 1,
		Flush: func(ctx context.Context, events []models.LogEvent) error {
			_ = rec.flush(ctx, events)
			mu.Lock()
			defer mu.Unlock()
			if broken {
				return down
			}
			return nil
		},
		Retain: func(err error) bool { return errors.Is(err, down) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { b.Run(ctx); close(done) }()

	b.Enqueue(event("first"))
	require.Eventually(t, func() bool { return rec.calls() == 1 }, 2*time.Second, 5*time.Millisecond)

	// пока база недоступна, новые события не вызывают новых попыток
	for i := 0; i < 200; i++ {
		assert.True(t, b.Enqueue(event("e")))
	}
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rec.calls())
	assert.Equal(t, 201, b.Len())

	mu.Lock()
	broken = false
	mu.Unlock()
	cancel()
	<-done
	assert.Zero(t, b.Len())
}

func TestRun_RecoversOnTimerAfterRetainedError(t *testing.T) {
	down := errors.New("db down")
	rec := &recorder{errs: []error{down}}
	b := New(Config{
		Period:    30 * time.Millisecond,
		SizeLimit: 1,
		Flush:     rec.flush,
		Retain:    func(err error) bool { return errors.Is(err, down) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Enqueue(event("a"))
	require.Eventually(t, func() bool { return b.Len() == 0 }, 2*time.Second, 5*time.Millisecond)

	// после успешной отправки заполнение снова отправляет сразу
	b.Enqueue(event("b"))
	require.Eventually(t, func() bool { return b.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, rec.calls())
}
