package repository

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"stationmgr/backend/services/station-manager/internal/models"
)

const (
	defaultArchiveBuffer = 256
	saveTimeout          = 5 * time.Second
)

// EntrySaver persists a single activity log entry.
type EntrySaver interface {
	Save(ctx context.Context, entry models.LogEntry) error
}

// ArchiveWriter queues activity log entries and writes them in the background. Append
// never blocks; entries are dropped while the queue is full.
type ArchiveWriter struct {
	saver   EntrySaver
	queue   chan models.LogEntry
	dropped atomic.Uint64
	logger  *zap.Logger
}

// NewArchiveWriter builds a writer with room for buffer pending entries.
func NewArchiveWriter(saver EntrySaver, buffer int, logger *zap.Logger) *ArchiveWriter {
	if buffer <= 0 {
		buffer = defaultArchiveBuffer
	}
	return &ArchiveWriter{
		saver:  saver,
		queue:  make(chan models.LogEntry, buffer),
		logger: logger.Named("archive"),
	}
}

// Append queues entry for archiving.
func (w *ArchiveWriter) Append(entry models.LogEntry) {
	select {
	case w.queue <- entry:
	default:
		if n := w.dropped.Add(1); n == 1 || n%100 == 0 {
			w.logger.Warn("archive queue full, dropping entries", zap.Uint64("dropped", n))
		}
	}
}

// Dropped returns the number of entries lost to a full queue.
func (w *ArchiveWriter) Dropped() uint64 {
	return w.dropped.Load()
}

// Run drains the queue until ctx is done, then flushes what is already queued.
func (w *ArchiveWriter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return
		case entry := <-w.queue:
			w.save(context.WithoutCancel(ctx), entry)
		}
	}
}

func (w *ArchiveWriter) flush() {
	for {
		select {
		case entry := <-w.queue:
			w.save(context.Background(), entry)
		default:
			return
		}
	}
}

func (w *ArchiveWriter) save(ctx context.Context, entry models.LogEntry) {
	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()
	if err := w.saver.Save(ctx, entry); err != nil {
		w.logger.Warn("failed to archive activity log entry", zap.Uint64("entry_id", entry.ID), zap.Error(err))
	}
}
