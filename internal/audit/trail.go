package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StorageInterface is where entries are physically persisted.
type StorageInterface interface {
	WriteBatch(ctx context.Context, entries []Entry) error
}

// Logger is the write-side contract consumed by services.
type Logger interface {
	Log(entry Entry)
}

// Trail is a non-blocking, batching audit writer. Transition handlers must
// never wait on the database, so entries go through a buffered channel and a
// single worker flushes them in batches (size or timer, whichever first).
// Stop drains the buffer completely before returning.
type Trail struct {
	ch     chan Entry
	repo   StorageInterface
	logger *zap.Logger
	wg     sync.WaitGroup

	// Guards against Log after Stop; 0 open, 1 closed.
	isClosed int32
}

const (
	defaultBufferSize = 10000
	batchSize         = 100
	flushInterval     = 500 * time.Millisecond
)

func NewTrail(repo StorageInterface, logger *zap.Logger) *Trail {
	return &Trail{
		ch:     make(chan Entry, defaultBufferSize),
		repo:   repo,
		logger: logger.With(zap.String("mod", "audit-trail")),
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop closes the intake and waits for the worker to flush what remains.
func (t *Trail) Stop() {
	atomic.StoreInt32(&t.isClosed, 1)

	// Let in-flight Log calls slip through before the channel closes.
	time.Sleep(10 * time.Millisecond)

	t.logger.Info("stopping audit trail: closing channel and flushing buffer")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

func (t *Trail) Log(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("audit entry dropped: trail is stopping", zap.String("id", entry.ID))
		return
	}

	// Load shedding: a full buffer must not block the caller.
	select {
	case t.ch <- entry:
	default:
		t.logger.Error("audit_buffer_overflow",
			zap.String("provider_id", entry.ProviderID),
			zap.String("action", entry.Action),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]Entry, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background context: the app context may already be cancelled
		// during shutdown, and the final flush must still land.
		if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
			t.logger.Error("audit flush failed", zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-t.ch:
			if !ok {
				// Channel closed in Stop: everything queued has been read,
				// the final flush completes the drain.
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
