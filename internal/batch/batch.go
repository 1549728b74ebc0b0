package batch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"PgLogPump/internal/metrics"
	"PgLogPump/internal/models"
)

// FlushFunc записывает одну пачку событий
type FlushFunc func(ctx context.Context, events []models.LogEvent) error

// Значения по умолчанию для очереди
const (
	DefaultSizeLimit  = 50
	DefaultQueueLimit = 100000
	DefaultPeriod     = 5 * time.Second

	// shutdownTimeout - сколько даём на финальную отправку после отмены контекста
	shutdownTimeout = 60 * time.Second
)

// Config - настройки Batcher
// SizeLimit - сколько событий отправлять за раз
// QueueLimit - максимальная длина очереди; лишние события отбрасываются
// Period - максимальный интервал между отправками
type Config struct {
	SizeLimit  int
	QueueLimit int
	Period     time.Duration

	Flush FlushFunc
	// Retain решает, оставить ли пачку в очереди после ошибки (повтор в следующем цикле)
	Retain func(err error) bool
	// OnError вызывается на каждую неудачную отправку
	OnError func(err error, count int)

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Batcher накапливает события и отправляет их пачками: по размеру или по таймеру.
// Enqueue не блокируется на I/O; отправка идёт в одной горутине Run, пачки строго по очереди.
type Batcher struct {
	cfg Config

	mu    sync.Mutex
	queue []models.LogEvent
	full  chan struct{}
}

// New создает новый batcher
func New(cfg Config) *Batcher {
	if cfg.SizeLimit <= 0 {
		cfg.SizeLimit = DefaultSizeLimit
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = DefaultQueueLimit
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Batcher{
		cfg:  cfg,
		full: make(chan struct{}, 1),
	}
}

// Enqueue ставит событие в очередь. false - очередь переполнена, событие отброшено.
func (b *Batcher) Enqueue(ev models.LogEvent) bool {
	b.mu.Lock()
	if len(b.queue) >= b.cfg.QueueLimit {
		b.mu.Unlock()
		b.cfg.Metrics.EventDropped()
		return false
	}
	b.queue = append(b.queue, ev)
	n := len(b.queue)
	b.mu.Unlock()

	b.cfg.Metrics.EventEnqueued()
	b.cfg.Metrics.SetQueueDepth(n)
	if n >= b.cfg.SizeLimit {
		select {
		case b.full <- struct{}{}:
		default:
		}
	}
	return true
}

// Len - текущая длина очереди
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// FlushOnce отправляет одну пачку из головы очереди.
// При ошибке, которую Retain признал повторяемой, пачка остаётся в очереди.
func (b *Batcher) FlushOnce(ctx context.Context) (sent int, err error) {
	b.mu.Lock()
	n := len(b.queue)
	if n > b.cfg.SizeLimit {
		n = b.cfg.SizeLimit
	}
	batch := make([]models.LogEvent, n)
	copy(batch, b.queue[:n])
	b.mu.Unlock()

	if n == 0 {
		return 0, nil
	}

	err = b.cfg.Flush(ctx, batch)
	if err != nil {
		if b.cfg.OnError != nil {
			b.cfg.OnError(err, n)
		}
		if b.cfg.Retain != nil && b.cfg.Retain(err) {
			return 0, err
		}
	}

	// Голова очереди принадлежит только Run, Enqueue лишь дописывает в хвост
	b.mu.Lock()
	b.queue = b.queue[n:]
	if len(b.queue) == 0 {
		b.queue = nil
	}
	depth := len(b.queue)
	b.mu.Unlock()
	b.cfg.Metrics.SetQueueDepth(depth)

	if err != nil {
		return 0, err
	}
	return n, nil
}

// flushAll отправляет пачки, пока очередь не опустеет или не случится ошибка.
// retained - пачка осталась в очереди после повторяемой ошибки.
func (b *Batcher) flushAll(ctx context.Context, reason string) (retained bool) {
	for {
		sent, err := b.FlushOnce(ctx)
		if err != nil {
			b.cfg.Logger.Warn("Отправка прервана, оставшиеся события ждут следующего цикла",
				zap.String("reason", reason), zap.Int("pending", b.Len()))
			return b.cfg.Retain != nil && b.cfg.Retain(err)
		}
		if sent == 0 {
			return false
		}
		b.cfg.Logger.Debug("Batch отправлен", zap.Int("count", sent), zap.String("reason", reason))
	}
}

// Run запускает сборку и отправку пачек до отмены контекста, затем отправляет остаток.
// После повторяемой ошибки сигнал заполнения игнорируется: следующая попытка - только по таймеру.
func (b *Batcher) Run(ctx context.Context) {
	timer := time.NewTimer(b.cfg.Period)
	defer timer.Stop()
	failing := false

	for {
		select {
		case <-ctx.Done():
			// Отдельный контекст с таймаутом, чтобы отмена сервиса не прерывала финальную запись
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			b.flushAll(flushCtx, "graceful shutdown")
			cancel()
			if left := b.Len(); left > 0 {
				b.cfg.Logger.Error("При остановке не удалось записать события", zap.Int("lost", left))
			}
			return
		case <-b.full:
			if failing {
				continue
			}
			failing = b.flushAll(ctx, "batch size reached")
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(b.cfg.Period)
		case <-timer.C:
			failing = b.flushAll(ctx, "interval")
			timer.Reset(b.cfg.Period)
		}
	}
}
