package janitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/wwwzy/FinSight/internal/storage"
)

func openTestStorage(t *testing.T, ctx context.Context) *storage.Storage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "finsight-test.db")
	store, err := storage.Open(ctx, storage.Config{Path: dbPath, EnableWAL: true})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedAuditRecords(t *testing.T, ctx context.Context, store *storage.Storage, n int, createdAt time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		rec := &storage.ToolAuditRecord{
			TraceID:   "trace-retention",
			ToolName:  "python_sandbox",
			Status:    "success",
			StartedAt: createdAt,
			CreatedAt: createdAt,
		}
		if err := store.InsertToolAuditRecord(ctx, rec); err != nil {
			t.Fatalf("seed audit record: %v", err)
		}
	}
}

func TestRetention_DeletesExpiredRecords(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)

	now := time.Now().UTC()
	seedAuditRecords(t, ctx, store, 3, now.Add(-48*time.Hour))
	seedAuditRecords(t, ctx, store, 2, now)

	if err := store.InsertRunRecord(ctx, &storage.RunRecord{
		TraceID:   "run-old",
		Question:  "old question",
		CreatedAt: now.Add(-100 * 24 * time.Hour),
	}); err != nil {
		t.Fatalf("seed run record: %v", err)
	}
	if err := store.InsertRunRecord(ctx, &storage.RunRecord{
		TraceID:   "run-new",
		Question:  "new question",
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("seed run record: %v", err)
	}

	c, err := NewRetentionCollector(store)
	if err != nil {
		t.Fatalf("new retention collector: %v", err)
	}
	c.cfg = RetentionConfig{
		Enabled:   true,
		Interval:  time.Hour,
		AuditKeep: 24 * time.Hour,
		RunKeep:   30 * 24 * time.Hour,
	}.withDefaults()

	if err := c.runOnce(ctx, now); err != nil {
		t.Fatalf("run once: %v", err)
	}

	auditCount, err := store.CountToolAuditRecords(ctx)
	if err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if auditCount != 2 {
		t.Errorf("expected 2 surviving audit records, got %d", auditCount)
	}

	runCount, err := store.CountRunRecords(ctx)
	if err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if runCount != 1 {
		t.Errorf("expected 1 surviving run record, got %d", runCount)
	}
}

func TestRetention_KeepLatestFloor(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)

	now := time.Now().UTC()
	seedAuditRecords(t, ctx, store, 10, now.Add(-48*time.Hour))

	c, err := NewRetentionCollector(store)
	if err != nil {
		t.Fatalf("new retention collector: %v", err)
	}
	// AuditKeep 很长，只有 KeepLatest 生效
	c.cfg = RetentionConfig{
		Enabled:         true,
		Interval:        time.Hour,
		AuditKeep:       365 * 24 * time.Hour,
		RunKeep:         365 * 24 * time.Hour,
		AuditKeepLatest: 4,
	}.withDefaults()

	if err := c.runOnce(ctx, now); err != nil {
		t.Fatalf("run once: %v", err)
	}

	count, err := store.CountToolAuditRecords(ctx)
	if err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 kept records, got %d", count)
	}
}

func TestManager_StartRequiresCollectors(t *testing.T) {
	m, err := NewManager(Config{
		Retention: RetentionConfig{Enabled: true},
		Reaper:    ReaperConfig{Enabled: false},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected error when retention enabled without collector")
	}
}

func TestManager_StartStopWait(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)

	c, err := NewRetentionCollector(store)
	if err != nil {
		t.Fatalf("new retention collector: %v", err)
	}

	m, err := NewManager(Config{
		Retention: RetentionConfig{Enabled: true, Interval: 50 * time.Millisecond},
		Reaper:    ReaperConfig{Enabled: false},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	m = m.WithRetention(c)

	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	time.Sleep(120 * time.Millisecond)
	m.Stop()
	if err := m.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}
