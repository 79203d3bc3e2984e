package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type captureStorage struct {
	mu      sync.Mutex
	entries []Entry
}

func (c *captureStorage) WriteBatch(_ context.Context, entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entries...)
	return nil
}

func (c *captureStorage) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func TestTrailDrainsOnStop(t *testing.T) {
	storage := &captureStorage{}
	trail := NewTrail(storage, zap.NewNop())
	trail.Start()

	for i := 0; i < 250; i++ {
		trail.Log(Entry{ProviderID: "p-1", Action: "test", Status: "SUCCESS"})
	}
	trail.Stop()

	if got := storage.count(); got != 250 {
		t.Fatalf("expected all 250 entries flushed on stop, got %d", got)
	}
}

func TestTrailStampsTimestamp(t *testing.T) {
	storage := &captureStorage{}
	trail := NewTrail(storage, zap.NewNop())
	trail.Start()

	trail.Log(Entry{ProviderID: "p-1", Action: "approve"})
	trail.Stop()

	if storage.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", storage.count())
	}
	if storage.entries[0].Timestamp.IsZero() {
		t.Error("entry timestamp was not stamped")
	}
}

func TestTrailRejectsAfterStop(t *testing.T) {
	storage := &captureStorage{}
	trail := NewTrail(storage, zap.NewNop())
	trail.Start()
	trail.Stop()

	// Must not panic on the closed channel, just drop.
	trail.Log(Entry{ProviderID: "p-1", Action: "reject", Timestamp: time.Now()})

	if got := storage.count(); got != 0 {
		t.Fatalf("expected no entries after stop, got %d", got)
	}
}
