package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCursorUpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, _, ok, err := store.GetCursor(ctx, "node"); err != nil || ok {
		t.Fatalf("expected no cursor, ok=%v err=%v", ok, err)
	}
	if err := store.UpsertCursor(ctx, "node", 10, "hashA"); err != nil {
		t.Fatalf("upsert cursor: %v", err)
	}
	h, hash, ok, err := store.GetCursor(ctx, "node")
	if err != nil || !ok {
		t.Fatalf("get cursor failed err=%v ok=%v", err, ok)
	}
	if h != 10 || hash != "hashA" {
		t.Fatalf("unexpected cursor: %d %s", h, hash)
	}

	if err := store.UpsertCursor(ctx, "node", 20, "hashB"); err != nil {
		t.Fatalf("upsert cursor update: %v", err)
	}
	h, hash, ok, err = store.GetCursor(ctx, "node")
	if err != nil || !ok || h != 20 || hash != "hashB" {
		t.Fatalf("cursor not updated: %d %s err=%v ok=%v", h, hash, err, ok)
	}
}

func TestDeliveriesLedger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records := []Delivery{
		{BlockNumber: 5, BlockHash: "0x5", SinkID: "hook", Status: StatusFailed, Error: "503"},
		{BlockNumber: 5, BlockHash: "0x5", SinkID: "hook", Status: StatusDelivered},
		{BlockNumber: 5, BlockHash: "0x5", SinkID: "queue", Status: StatusFailed, Error: "dial"},
	}
	for _, d := range records {
		if err := store.RecordDelivery(ctx, d); err != nil {
			t.Fatalf("record delivery: %v", err)
		}
	}

	done, err := store.DeliveredSinks(ctx, 5, "0x5")
	if err != nil {
		t.Fatalf("delivered sinks: %v", err)
	}
	if !done["hook"] || done["queue"] || len(done) != 1 {
		t.Fatalf("unexpected delivered sinks %v", done)
	}
	if n, _ := store.Attempts(ctx, 5, "hook"); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}

	// A reorged block with a new hash must be delivered again.
	done, err = store.DeliveredSinks(ctx, 5, "0x5b")
	if err != nil || len(done) != 0 {
		t.Fatalf("expected no deliveries for a new hash, got %v err=%v", done, err)
	}
}

func TestCompleteBlock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.RecordDelivery(ctx, Delivery{BlockNumber: 7, BlockHash: "0x7", SinkID: "hook", Status: StatusDelivered}); err != nil {
		t.Fatalf("record delivery: %v", err)
	}
	if err := store.CompleteBlock(ctx, "node", 7, "0x7"); err != nil {
		t.Fatalf("complete block: %v", err)
	}
	h, hash, ok, err := store.GetCursor(ctx, "node")
	if err != nil || !ok || h != 7 || hash != "0x7" {
		t.Fatalf("cursor not advanced: %d %s ok=%v err=%v", h, hash, ok, err)
	}
	if n, _ := store.Attempts(ctx, 7, "hook"); n != 0 {
		t.Fatalf("deliveries not pruned, attempts=%d", n)
	}
}

func TestRecordDeliveryRequiresFields(t *testing.T) {
	store := newTestStore(t)
	if err := store.RecordDelivery(context.Background(), Delivery{BlockNumber: 1}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	store.Close()
	if err := store.Ping(ctx); err == nil {
		t.Fatalf("expected ping to fail after close")
	}
}
