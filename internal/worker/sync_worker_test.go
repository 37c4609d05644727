package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"optreturns/internal/amqp"
	"optreturns/internal/core"
	"optreturns/internal/storage"
)

type fakeStore struct {
	mu      sync.Mutex
	records []core.TradeRecord
	imports map[string]*storage.Import
	order   []string
	listErr error
}

func newFakeStore(records []core.TradeRecord, ids ...string) *fakeStore {
	s := &fakeStore{records: records, imports: map[string]*storage.Import{}}
	for _, id := range ids {
		s.imports[id] = &storage.Import{ID: id, Source: "test", RowCount: len(records)}
		s.order = append(s.order, id)
	}
	return s
}

func (s *fakeStore) ListTradeRecords(context.Context) ([]core.TradeRecord, error) {
	return s.records, s.listErr
}

func (s *fakeStore) GetImport(_ context.Context, id string) (*storage.Import, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	imp, ok := s.imports[id]
	if !ok {
		return nil, storage.ErrImportNotFound
	}
	cp := *imp
	return &cp, nil
}

func (s *fakeStore) ListPendingImports(_ context.Context, limit int) ([]storage.Import, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Import
	for _, id := range s.order {
		if imp := s.imports[id]; !imp.Synced() && len(out) < limit {
			out = append(out, *imp)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkImportSynced(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	imp, ok := s.imports[id]
	if !ok {
		return storage.ErrImportNotFound
	}
	now := time.Now()
	imp.SyncedAt = &now
	return nil
}

func (s *fakeStore) synced(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imports[id].Synced()
}

type fakeSummary struct {
	mu     sync.Mutex
	writes []core.MonthlyReturns
	err    error
}

func (f *fakeSummary) WriteMonthlyReturns(_ context.Context, r core.MonthlyReturns) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, r)
	return nil
}

func (f *fakeSummary) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func sampleRecords() []core.TradeRecord {
	return []core.TradeRecord{
		{Symbol: "NIFTY24APR22000CE", RealizedPnLPct: core.Pct(10)},
		{Symbol: "NIFTY24MAY22500PE", RealizedPnLPct: core.Pct(-5)},
		{Symbol: "AAPL", RealizedPnLPct: core.Pct(50)},
	}
}

func TestHandleSyncMessage(t *testing.T) {
	store := newFakeStore(sampleRecords(), "imp-1")
	summary := &fakeSummary{}
	w := NewSyncWorker(store, summary, 10)

	if err := w.HandleSyncMessage(context.Background(), amqp.NewReturnsSyncMessage("imp-1", 3)); err != nil {
		t.Fatalf("HandleSyncMessage: %v", err)
	}
	if summary.count() != 1 {
		t.Fatalf("got %d summary writes, want 1", summary.count())
	}
	if got := summary.writes[0].Keys(); len(got) != 4 {
		t.Errorf("summary keys = %v, want two months plus overall and geometric mean", got)
	}
	if !store.synced("imp-1") {
		t.Error("import should be marked synced")
	}

	// Already synced imports are not written again.
	if err := w.HandleSyncMessage(context.Background(), amqp.NewReturnsSyncMessage("imp-1", 3)); err != nil {
		t.Fatalf("second HandleSyncMessage: %v", err)
	}
	if summary.count() != 1 {
		t.Errorf("got %d summary writes after redelivery, want 1", summary.count())
	}
}

func TestHandleSyncMessage_Errors(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		summaryErr error
		listErr    error
	}{
		{name: "unknown import", id: "missing"},
		{name: "summary write fails", id: "imp-1", summaryErr: errors.New("quota exceeded")},
		{name: "tradebook read fails", id: "imp-1", listErr: errors.New("disk I/O error")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(sampleRecords(), "imp-1")
			store.listErr = tt.listErr
			w := NewSyncWorker(store, &fakeSummary{err: tt.summaryErr}, 10)

			if err := w.HandleSyncMessage(context.Background(), amqp.NewReturnsSyncMessage(tt.id, 1)); err == nil {
				t.Fatal("expected error")
			}
			if store.synced("imp-1") {
				t.Error("import must stay pending after a failure")
			}
		})
	}
}

func TestHandleSyncMessage_EmptySeries(t *testing.T) {
	store := newFakeStore([]core.TradeRecord{{Symbol: "AAPL", RealizedPnLPct: core.Pct(3)}}, "imp-1")
	summary := &fakeSummary{}
	w := NewSyncWorker(store, summary, 10)

	if err := w.HandleSyncMessage(context.Background(), amqp.NewReturnsSyncMessage("imp-1", 1)); err != nil {
		t.Fatalf("HandleSyncMessage: %v", err)
	}
	if summary.count() != 0 {
		t.Errorf("empty series must not be written, got %d writes", summary.count())
	}
	if !store.synced("imp-1") {
		t.Error("import should be marked synced even when the series is empty")
	}
}

func TestProcessPendingImports(t *testing.T) {
	store := newFakeStore(sampleRecords(), "a", "b", "c")
	summary := &fakeSummary{}
	w := NewSyncWorker(store, summary, 2)

	if err := w.ProcessPendingImports(context.Background()); err != nil {
		t.Fatalf("ProcessPendingImports: %v", err)
	}
	if summary.count() != 1 {
		t.Errorf("got %d writes for one batch, want 1", summary.count())
	}
	if !store.synced("a") || !store.synced("b") || store.synced("c") {
		t.Error("only the first batch should be synced")
	}

	if err := w.ProcessPendingImports(context.Background()); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if !store.synced("c") {
		t.Error("second pass should sync the remaining import")
	}

	if err := w.ProcessPendingImports(context.Background()); err != nil {
		t.Fatalf("idle pass: %v", err)
	}
	if summary.count() != 2 {
		t.Errorf("idle pass should not write, got %d writes", summary.count())
	}
}

type fakeConsumer struct {
	messages []*amqp.ReturnsSyncMessage
}

func (c *fakeConsumer) ConsumeReturnsSync(ctx context.Context, handler func(context.Context, *amqp.ReturnsSyncMessage) error) error {
	for _, m := range c.messages {
		_ = handler(ctx, m)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRun_ConsumesUntilCancelled(t *testing.T) {
	store := newFakeStore(sampleRecords())
	// Not listed as pending, so only the consumer can sync it.
	store.imports["late"] = &storage.Import{ID: "late"}
	summary := &fakeSummary{}
	w := NewSyncWorker(store, summary, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, &fakeConsumer{messages: []*amqp.ReturnsSyncMessage{amqp.NewReturnsSyncMessage("late", 3)}}, time.Hour)
	}()

	deadline := time.Now().Add(time.Second)
	for !store.synced("late") {
		if time.Now().After(deadline) {
			t.Fatal("consumer message was not processed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil on cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
