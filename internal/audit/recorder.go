package audit

import (
	"context"
	"sync"

	"github.com/nerrad567/smartpot-core/internal/infrastructure/logging"
)

// queueSize bounds the pending entries. When full, new entries are dropped
// so request latency never depends on the audit write.
const queueSize = 256

// Recorder writes audit entries asynchronously and serially through a
// single goroutine, which suits SQLite's single-writer model.
type Recorder struct {
	repo   Repository
	logger *logging.Logger
	queue  chan *AuditLog
	wg     sync.WaitGroup
}

// NewRecorder creates a recorder. Call Start to begin writing.
func NewRecorder(repo Repository, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan *AuditLog, queueSize),
	}
}

// Record enqueues an entry. It never blocks; a nil Recorder is a no-op.
func (r *Recorder) Record(entry *AuditLog) {
	if r == nil {
		return
	}
	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("audit queue full, dropping entry",
			"action", entry.Action,
			"entity_type", entry.EntityType,
		)
	}
}

// Start launches the writer goroutine. It runs until ctx is cancelled,
// then drains whatever is still queued; Wait blocks until it has.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
}

// Wait blocks until the writer started by Start has returned.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) run(ctx context.Context) {
	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.queue:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(entry *AuditLog) {
	// The request context is gone by now; the write is bounded by the
	// database busy timeout instead.
	if err := r.repo.Create(context.Background(), entry); err != nil {
		r.logger.Error("audit log write failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"error", err,
		)
	}
}
