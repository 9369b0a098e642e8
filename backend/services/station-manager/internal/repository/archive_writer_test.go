package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"stationmgr/backend/services/station-manager/internal/models"
)

type fakeSaver struct {
	mu    sync.Mutex
	saved []uint64
	err   error
}

func (f *fakeSaver) Save(ctx context.Context, entry models.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, entry.ID)
	return f.err
}

func (f *fakeSaver) ids() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.saved...)
}

func TestArchiveWriterSavesInOrder(t *testing.T) {
	saver := &fakeSaver{}
	w := NewArchiveWriter(saver, 8, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	for i := uint64(1); i <= 3; i++ {
		w.Append(models.LogEntry{ID: i, Type: models.LogMessage})
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(saver.ids()) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("entries not archived: %v", saver.ids())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	got := saver.ids()
	for i, id := range got {
		if id != uint64(i+1) {
			t.Fatalf("unexpected order %v", got)
		}
	}
}

func TestArchiveWriterDropsWhenFull(t *testing.T) {
	saver := &fakeSaver{}
	w := NewArchiveWriter(saver, 2, zap.NewNop())

	// Not running: the queue fills up and Append must not block.
	for i := uint64(1); i <= 5; i++ {
		w.Append(models.LogEntry{ID: i})
	}
	if w.Dropped() != 3 {
		t.Errorf("expected 3 dropped entries, got %d", w.Dropped())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)
	if got := saver.ids(); len(got) != 2 {
		t.Errorf("expected queued entries to be flushed on shutdown, got %v", got)
	}
}

func TestArchiveWriterSurvivesSaveErrors(t *testing.T) {
	saver := &fakeSaver{err: errors.New("relation does not exist")}
	w := NewArchiveWriter(saver, 4, zap.NewNop())

	w.Append(models.LogEntry{ID: 1})
	w.Append(models.LogEntry{ID: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	if got := saver.ids(); len(got) != 2 {
		t.Errorf("expected both entries attempted, got %v", got)
	}
}
