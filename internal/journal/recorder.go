// Package journal records operator activity to the local database. Recording
// never blocks the caller: entries are batched by background workers and handed
// to processors.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jask/despacho/internal/database/repository"
	"github.com/jask/despacho/internal/logging"
)

const (
	KindReserved          = "reserved"
	KindReservationFailed = "reservation_failed"
	KindExternalInfo      = "external_info"
	KindFinalized         = "finalized"
	KindSubmitFailed      = "submit_failed"
	KindCancelled         = "cancelled"
	KindReleased          = "released"
	KindReleaseFailed     = "release_failed"
	KindLogin             = "login"
	KindSessionEnded      = "session_ended"
	KindEdited            = "edited"
	KindWiped             = "wiped"
	KindExported          = "exported"
)

// Processor consumes one batch of entries.
type Processor interface {
	Process(ctx context.Context, batch []repository.Entry) error
}

// DBProcessor writes batches to the journal table.
type DBProcessor struct {
	Repo *repository.JournalRepo
}

func (p *DBProcessor) Process(ctx context.Context, batch []repository.Entry) error {
	if err := p.Repo.InsertBatch(ctx, batch); err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return nil
}

// LogProcessor mirrors entries into the application log.
type LogProcessor struct {
	Log *slog.Logger
}

func (p *LogProcessor) Process(ctx context.Context, batch []repository.Entry) error {
	for _, e := range batch {
		p.Log.LogAttrs(ctx, slog.LevelDebug, "journal",
			slog.String("kind", e.Kind),
			slog.String("order", e.OrderNo),
			slog.String("from", e.FromState),
			slog.String("to", e.ToState),
			slog.String("message", e.Message))
	}
	return nil
}

type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	Buffer        int
}

// Recorder is a small worker pool. Record enqueues; workers flush a batch when
// it is full or when the flush interval passes.
type Recorder struct {
	inputCh    chan repository.Entry
	processors []Processor
	batchSize  int
	interval   time.Duration
	log        *slog.Logger
	now        func() time.Time

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
	user    atomic.Pointer[string]
}

func NewRecorder(cfg Config, log *slog.Logger, processors ...Processor) *Recorder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = cfg.BatchSize * 8
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Recorder{
		inputCh:    make(chan repository.Entry, cfg.Buffer),
		processors: processors,
		batchSize:  cfg.BatchSize,
		interval:   cfg.FlushInterval,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start launches n workers. They stop after Close drains the queue.
func (r *Recorder) Start(n int) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.worker()
		}()
	}
}

// SetUser stamps later entries with the operator's email.
func (r *Recorder) SetUser(email string) {
	r.user.Store(&email)
}

// Record enqueues e. It reports false when the recorder is closed or the
// queue is full; the entry is then dropped.
func (r *Recorder) Record(e repository.Entry) bool {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = r.now()
	}
	if e.UserEmail == "" {
		if u := r.user.Load(); u != nil {
			e.UserEmail = *u
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.inputCh <- e:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Dropped counts entries lost to a full queue.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Close stops intake, waits for the workers to flush and returns.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.inputCh)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Recorder) worker() {
	var batch []repository.Entry
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case e, ok := <-r.inputCh:
			if !ok {
				r.flush(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= r.batchSize {
				r.flush(batch)
				batch = nil
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = nil
			}
		}
	}
}

func (r *Recorder) flush(batch []repository.Entry) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, p := range r.processors {
		if err := p.Process(ctx, batch); err != nil {
			r.log.LogAttrs(ctx, slog.LevelWarn, "journal_flush_failed",
				slog.Int("entries", len(batch)), slog.String("error", err.Error()))
		}
	}
}
