package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/damione1/collab-notes/internal/config"
	"github.com/damione1/collab-notes/internal/models"
)

var ErrPersisterStopped = errors.New("persister is stopped")

// DocumentWriter applies a content snapshot to a room's document.
type DocumentWriter interface {
	Write(ctx context.Context, roomID, content string) (*models.Document, error)
}

// WriterFunc adapts a function to DocumentWriter.
type WriterFunc func(ctx context.Context, roomID, content string) (*models.Document, error)

func (f WriterFunc) Write(ctx context.Context, roomID, content string) (*models.Document, error) {
	return f(ctx, roomID, content)
}

// PersisterConfig holds write-behind worker settings.
type PersisterConfig struct {
	Workers        int
	QueueSize      int
	MaxRetries     int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	WriteTimeout   time.Duration
}

// DefaultPersisterConfig returns the defaults used when nothing is configured.
func DefaultPersisterConfig() PersisterConfig {
	return PersisterConfig{
		Workers:        4,
		QueueSize:      1024,
		MaxRetries:     5,
		BaseRetryDelay: 200 * time.Millisecond,
		MaxRetryDelay:  10 * time.Second,
		WriteTimeout:   5 * time.Second,
	}
}

// PersisterConfigFrom maps the environment config onto worker settings.
func PersisterConfigFrom(cfg *config.Config) PersisterConfig {
	return PersisterConfig{
		Workers:        cfg.PersistWorkers,
		QueueSize:      cfg.PersistQueueSize,
		MaxRetries:     cfg.PersistMaxRetries,
		BaseRetryDelay: cfg.PersistBaseRetryDelay,
		MaxRetryDelay:  cfg.PersistMaxRetryDelay,
		WriteTimeout:   cfg.PersistWriteTimeout,
	}
}

// Persister writes live content updates to the store in the background.
// Every room is served by one worker, so its writes land in enqueue order.
// While a room's write is waiting, newer content replaces it.
type Persister struct {
	config  PersisterConfig
	writer  DocumentWriter
	metrics *Metrics
	log     *slog.Logger

	queues []chan string

	mu       sync.Mutex
	pending  map[string]string // room -> newest content not yet picked up
	inflight map[string]string // room -> content being written
	running  bool
	stopped  bool

	outstanding atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPersister(cfg PersisterConfig, writer DocumentWriter, metrics *Metrics, log *slog.Logger) *Persister {
	def := DefaultPersisterConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = def.BaseRetryDelay
	}
	if cfg.MaxRetryDelay < cfg.BaseRetryDelay {
		cfg.MaxRetryDelay = cfg.BaseRetryDelay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if log == nil {
		log = slog.Default()
	}

	queues := make([]chan string, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan string, cfg.QueueSize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Persister{
		config:   cfg,
		writer:   writer,
		metrics:  metrics,
		log:      log,
		queues:   queues,
		pending:  make(map[string]string),
		inflight: make(map[string]string),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the workers.
func (p *Persister) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrPersisterStopped
	}
	if p.running {
		return fmt.Errorf("persister is already running")
	}
	p.running = true

	for i, q := range p.queues {
		p.wg.Add(1)
		go func(id int, queue <-chan string) {
			defer p.wg.Done()
			p.run(id, queue)
		}(i, q)
	}

	p.log.Info("persister started", "workers", len(p.queues))
	return nil
}

// Stop refuses new work, waits for outstanding writes until ctx is done,
// then stops the workers. Writes still pending at that point are dropped.
func (p *Persister) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	err := p.Flush(ctx)
	if err != nil {
		p.log.Warn("persister stopped with pending writes", "pending", p.Pending(), "err", err)
	}

	p.cancel()
	p.wg.Wait()
	p.log.Info("persister stopped")
	return err
}

// Enqueue schedules content to be written to roomID. It never blocks.
func (p *Persister) Enqueue(roomID, content string) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrPersisterStopped
	}

	_, scheduled := p.pending[roomID]
	p.pending[roomID] = content
	if !scheduled {
		p.outstanding.Add(1)
	}
	p.mu.Unlock()

	p.metrics.IncrementPersistQueued()
	if scheduled {
		return nil
	}

	queue := p.queues[p.shard(roomID)]
	select {
	case queue <- roomID:
	default:
		p.log.Warn("persist queue full, deferring", "room", roomID)
		go func() {
			select {
			case queue <- roomID:
			case <-p.ctx.Done():
			}
		}()
	}
	return nil
}

// LatestKnown returns content accepted for roomID that is not yet confirmed
// by the store.
func (p *Persister) LatestKnown(roomID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if content, ok := p.pending[roomID]; ok {
		return content, true
	}
	content, ok := p.inflight[roomID]
	return content, ok
}

// Pending returns the number of rooms with unwritten content.
func (p *Persister) Pending() int {
	return int(p.outstanding.Load())
}

// Flush blocks until every enqueued write has completed or been dropped.
func (p *Persister) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for p.outstanding.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (p *Persister) shard(roomID string) int {
	return int(xxhash.Sum64String(roomID) % uint64(len(p.queues)))
}

func (p *Persister) run(id int, queue <-chan string) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case roomID := <-queue:
			p.process(id, roomID)
		}
	}
}

func (p *Persister) process(worker int, roomID string) {
	p.mu.Lock()
	content, ok := p.pending[roomID]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.pending, roomID)
	p.inflight[roomID] = content
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.inflight, roomID)
		p.mu.Unlock()
		p.outstanding.Add(-1)
	}()

	for attempt := 1; ; attempt++ {
		err := p.write(roomID, content)
		if err == nil {
			p.metrics.IncrementPersistWrites()
			return
		}

		if attempt >= p.config.MaxRetries {
			p.metrics.IncrementPersistFailures()
			p.log.Error("dropping content update after retries",
				"room", roomID, "worker", worker, "attempt", attempt, "err", err)
			return
		}
		if p.superseded(roomID) {
			p.log.Warn("write failed, newer content pending", "room", roomID, "attempt", attempt, "err", err)
			return
		}

		delay := p.retryDelay(attempt)
		p.metrics.IncrementPersistRetries()
		p.log.Warn("write failed, retrying",
			"room", roomID, "worker", worker, "attempt", attempt, "delay", delay, "err", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-p.ctx.Done():
			timer.Stop()
			p.metrics.IncrementPersistFailures()
			return
		}
	}
}

func (p *Persister) write(roomID, content string) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.WriteTimeout)
	defer cancel()

	_, err := p.writer.Write(ctx, roomID, content)
	return err
}

func (p *Persister) superseded(roomID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[roomID]
	return ok
}

// retryDelay is BaseRetryDelay * 2^(attempt-1), capped at MaxRetryDelay.
func (p *Persister) retryDelay(attempt int) time.Duration {
	delay := float64(p.config.BaseRetryDelay) * math.Pow(2, float64(attempt-1))
	if time.Duration(delay) > p.config.MaxRetryDelay {
		return p.config.MaxRetryDelay
	}
	return time.Duration(delay)
}
