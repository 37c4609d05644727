package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"optreturns/internal/core"
)

type fakeReader struct {
	records []core.TradeRecord
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func (f *fakeReader) ListTradeRecords(_ context.Context) ([]core.TradeRecord, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.records, f.err
}

func TestReturnsService_Compute(t *testing.T) {
	reader := &fakeReader{records: []core.TradeRecord{
		{Symbol: "NIFTY24MAY22000CE", RealizedPnLPct: core.Pct(10)},
		{Symbol: "NIFTY24MAY22500PE", RealizedPnLPct: core.Pct(-2)},
		{Symbol: "NIFTY24MAY23000CE", RealizedPnLPct: core.Pct(4)},
		{Symbol: "RELIANCE", RealizedPnLPct: core.Pct(50)},
	}}
	svc := NewReturnsService(reader)

	series, err := svc.Compute(context.Background())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if v, ok := series.Value("May-24"); !ok || v != 4 {
		t.Fatalf("May-24 = %v %v, want 4", v, ok)
	}

	spec, err := svc.Chart(context.Background())
	if err != nil {
		t.Fatalf("chart: %v", err)
	}
	if len(spec.Bars) != 3 || spec.Bars[0].Text != "4.00%" {
		t.Fatalf("unexpected chart: %+v", spec.Bars)
	}
}

func TestReturnsService_Errors(t *testing.T) {
	svc := NewReturnsService(&fakeReader{})
	if _, err := svc.Compute(context.Background()); !errors.Is(err, core.ErrNoMonthlyReturns) {
		t.Fatalf("expected ErrNoMonthlyReturns, got %v", err)
	}

	readErr := errors.New("sheet unavailable")
	svc = NewReturnsService(&fakeReader{err: readErr})
	if _, err := svc.Chart(context.Background()); !errors.Is(err, readErr) {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestReturnsService_SharesInFlightReads(t *testing.T) {
	reader := &fakeReader{
		records: []core.TradeRecord{{Symbol: "NIFTY24MAY22000CE", RealizedPnLPct: core.Pct(1)}},
		delay:   100 * time.Millisecond,
	}
	svc := NewReturnsService(reader)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Compute(context.Background()); err != nil {
				t.Errorf("compute: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := reader.calls.Load(); n >= 8 {
		t.Fatalf("expected concurrent callers to share reads, got %d reads", n)
	}
}

// gatedReader blocks every read until release is closed and records the
// context error seen once it resumes.
type gatedReader struct {
	records []core.TradeRecord
	entered chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func newGatedReader(records []core.TradeRecord) *gatedReader {
	return &gatedReader{
		records: records,
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 8),
	}
}

func (g *gatedReader) ListTradeRecords(ctx context.Context) ([]core.TradeRecord, error) {
	g.entered <- struct{}{}
	<-g.release
	g.ctxErr <- ctx.Err()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.records, nil
}

func TestReturnsService_CallerCancelDoesNotFailSharedRead(t *testing.T) {
	reader := newGatedReader([]core.TradeRecord{{Symbol: "NIFTY24MAY22000CE", RealizedPnLPct: core.Pct(3)}})
	svc := NewReturnsService(reader)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.Compute(ctx)
		first <- err
	}()
	<-reader.entered

	second := make(chan error, 1)
	go func() {
		_, err := svc.Compute(context.Background())
		second <- err
	}()

	cancel()
	select {
	case err := <-first:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("cancelled caller got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared read")
	}

	close(reader.release)
	if err := <-reader.ctxErr; err != nil {
		t.Fatalf("shared read saw %v after the first caller left", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("other caller got %v, want the series", err)
	}
}

func TestReturnsService_ForgetStartsFreshRead(t *testing.T) {
	reader := newGatedReader([]core.TradeRecord{{Symbol: "NIFTY24MAY22000CE", RealizedPnLPct: core.Pct(3)}})
	svc := NewReturnsService(reader)

	done := make(chan struct{}, 2)
	go func() {
		_, _ = svc.Compute(context.Background())
		done <- struct{}{}
	}()
	<-reader.entered

	svc.Forget()
	go func() {
		_, _ = svc.Compute(context.Background())
		done <- struct{}{}
	}()

	select {
	case <-reader.entered:
	case <-time.After(time.Second):
		t.Fatal("call after Forget joined the old read")
	}
	close(reader.release)
	<-done
	<-done
}
