package services

import (
	"context"
	"errors"
	"testing"

	"optreturns/internal/core"
)

type fakeImportStore struct {
	importID string
	source   string
	records  []core.TradeRecord
	err      error
	closed   bool
}

func (f *fakeImportStore) AppendTradeRecords(_ context.Context, importID, source string, records []core.TradeRecord) error {
	if f.err != nil {
		return f.err
	}
	f.importID, f.source, f.records = importID, source, records
	return nil
}

func (f *fakeImportStore) Close() error {
	f.closed = true
	return nil
}

type fakePublisher struct {
	calls []string
	err   error
}

func (f *fakePublisher) PublishReturnsSync(_ context.Context, importID string, _ int) error {
	f.calls = append(f.calls, importID)
	return f.err
}

var sampleRecords = []core.TradeRecord{
	{Symbol: "NIFTY24MAY22000CE", RealizedPnLPct: core.Pct(10)},
	{Symbol: "NIFTY24MAY22500PE", RealizedPnLPct: core.NoPct()},
}

func TestImportService_Import(t *testing.T) {
	store := &fakeImportStore{}
	pub := &fakePublisher{}
	svc := NewImportService(store, pub)
	svc.newID = func() string { return "imp-1" }

	id, err := svc.Import(context.Background(), "upload.csv", sampleRecords)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if id != "imp-1" || store.importID != "imp-1" || store.source != "upload.csv" || len(store.records) != 2 {
		t.Fatalf("unexpected store state: id=%s %+v", id, store)
	}
	if len(pub.calls) != 1 || pub.calls[0] != "imp-1" {
		t.Fatalf("expected one publish, got %v", pub.calls)
	}
}

func TestImportService_GeneratesIDs(t *testing.T) {
	svc := NewImportService(&fakeImportStore{}, nil)
	a, err := svc.Import(context.Background(), "a", sampleRecords)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	b, _ := svc.Import(context.Background(), "b", sampleRecords)
	if a == "" || a == b {
		t.Fatalf("expected distinct ids, got %q %q", a, b)
	}
}

func TestImportService_PublishFailureIsNotFatal(t *testing.T) {
	store := &fakeImportStore{}
	svc := NewImportService(store, &fakePublisher{err: errors.New("connection refused")})
	if _, err := svc.Import(context.Background(), "x", sampleRecords); err != nil {
		t.Fatalf("publish failure must not fail the import: %v", err)
	}
	if len(store.records) != 2 {
		t.Fatalf("records should be stored")
	}
}

func TestImportService_Rejects(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewImportService(&fakeImportStore{}, pub)

	if _, err := svc.Import(context.Background(), "x", nil); !errors.Is(err, ErrEmptyImport) {
		t.Fatalf("expected ErrEmptyImport, got %v", err)
	}
	bad := []core.TradeRecord{{Symbol: "NIFTY24MAY22000CE"}, {Symbol: "  "}}
	if _, err := svc.Import(context.Background(), "x", bad); !errors.Is(err, core.ErrEmptySymbol) {
		t.Fatalf("expected ErrEmptySymbol, got %v", err)
	}

	storeErr := errors.New("disk full")
	svc = NewImportService(&fakeImportStore{err: storeErr}, pub)
	if _, err := svc.Import(context.Background(), "x", sampleRecords); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(pub.calls) != 0 {
		t.Fatalf("nothing should be published for failed imports")
	}
}

func TestImportService_Close(t *testing.T) {
	store := &fakeImportStore{}
	if err := NewImportService(store, nil).Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !store.closed {
		t.Fatalf("store should be closed")
	}
}
