package db

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"cipherpaste/pkg/domain"

	"github.com/pkg/errors"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_PutGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	if err := s.Put(ctx, "id-1", "transport-1", 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "id-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "transport-1" {
		t.Errorf("Get = %q", got)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Errorf("expected ErrPasteNotFound, got %v", err)
	}
	if err := s.Put(ctx, "id-1", "again", 0); err == nil {
		t.Error("duplicate id should fail")
	}
}

func TestSQLite_ExpiryAndCleanup(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	if err := s.Put(ctx, "short", "a", time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "forever", "b", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "short"); err != nil {
		t.Fatalf("fresh paste should resolve: %v", err)
	}
	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := s.Get(ctx, "short"); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Errorf("expired paste should be not found, got %v", err)
	}
	n, err := s.CleanupExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CleanupExpired deleted %d, want 1", n)
	}
	if got, err := s.Get(ctx, "forever"); err != nil || got != "b" {
		t.Errorf("non-expiring paste: %q, %v", got, err)
	}
}

func TestSQLite_Circuit(t *testing.T) {
	s := newTestSQLite(t)
	for i := 0; i < maxFailures; i++ {
		s.recordError(errors.New("disk on fire"))
	}
	if err := s.checkCircuit(); err != ErrCircuitOpen {
		t.Fatalf("expected open circuit, got %v", err)
	}
	atomic.StoreInt64(&s.circuitOpened, time.Now().Unix()-cooldownSeconds)
	if err := s.checkCircuit(); err != nil {
		t.Fatalf("expected half-open after cooldown, got %v", err)
	}
	s.recordError(nil)
	if atomic.LoadInt32(&s.circuitState) != circuitClosed {
		t.Error("success should close the circuit")
	}
	s.recordError(context.Canceled)
	if atomic.LoadInt32(&s.failures) != 0 {
		t.Error("cancellation must not count as a failure")
	}
}

func TestSQLite_PingAndCheckpoint(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.checkpoint(ctx); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
}

func TestSQLite_RunMaintenanceStops(t *testing.T) {
	s := newTestSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunMaintenance(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunMaintenance did not stop")
	}
}
