package grid

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Saver persists grid snapshots.
type Saver interface {
	Save(ctx context.Context, scopeKey string, snap Snapshot) error
}

// SaverFunc adapts a function to Saver.
type SaverFunc func(ctx context.Context, scopeKey string, snap Snapshot) error

// Save calls f.
func (f SaverFunc) Save(ctx context.Context, scopeKey string, snap Snapshot) error {
	return f(ctx, scopeKey, snap)
}

const defaultSaveTimeout = 10 * time.Second

// saveQueue writes snapshots on a background goroutine. Only the latest
// pending snapshot is kept; failures are logged and never retried.
type saveQueue struct {
	saver    Saver
	scopeKey string
	logger   *log.Logger
	timeout  time.Duration

	mu      sync.Mutex
	pending *Snapshot

	kick      chan struct{}
	flushReq  chan chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSaveQueue(saver Saver, scopeKey string, logger *log.Logger) *saveQueue {
	q := &saveQueue{
		saver:    saver,
		scopeKey: scopeKey,
		logger:   logger,
		timeout:  defaultSaveTimeout,
		kick:     make(chan struct{}, 1),
		flushReq: make(chan chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go q.run()
	return q
}

// enqueue replaces any pending snapshot. It never blocks.
func (q *saveQueue) enqueue(snap Snapshot) {
	select {
	case <-q.stop:
		q.logger.Warn("grid closed, dropping snapshot", "scope", q.scopeKey)
		return
	default:
	}
	q.mu.Lock()
	q.pending = &snap
	q.mu.Unlock()
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

func (q *saveQueue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.kick:
			q.drain()
		case ack := <-q.flushReq:
			q.drain()
			close(ack)
		case <-q.stop:
			q.drain()
			return
		}
	}
}

func (q *saveQueue) drain() {
	for {
		q.mu.Lock()
		snap := q.pending
		q.pending = nil
		q.mu.Unlock()
		if snap == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err := q.saver.Save(ctx, q.scopeKey, *snap)
		cancel()
		if err != nil {
			q.logger.Error("grid snapshot save failed", "scope", q.scopeKey, "err", err)
			continue
		}
		q.logger.Debug("grid snapshot saved", "scope", q.scopeKey, "records", snap.CountRecords())
	}
}

// flush waits until every snapshot enqueued before the call has been written.
func (q *saveQueue) flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case q.flushReq <- ack:
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *saveQueue) close() {
	q.closeOnce.Do(func() { close(q.stop) })
	<-q.done
}
