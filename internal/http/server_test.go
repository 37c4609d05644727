package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"optreturns/internal/chart"
	"optreturns/internal/core"
	"optreturns/internal/sheets/memory"
)

func sampleRecords() []core.TradeRecord {
	return []core.TradeRecord{
		{Symbol: "NIFTY24APR22000CE", RealizedPnLPct: core.Pct(10)},
		{Symbol: "NIFTY24APR22500PE", RealizedPnLPct: core.Pct(20)},
		{Symbol: "NIFTY24MAY22000CE", RealizedPnLPct: core.Pct(-5)},
		{Symbol: "INFY", RealizedPnLPct: core.Pct(99)},
	}
}

func newTestServer(t *testing.T, records []core.TradeRecord, opts Options) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New(records)
	srv := NewServer(":0", store, store, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, store
}

func do(srv *Server, method, target string, body *bytes.Buffer, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestIndex(t *testing.T) {
	srv, _ := newTestServer(t, sampleRecords(), Options{})

	rr := do(srv, http.MethodGet, "/", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{core.ChartHeader, "Apr-24", "May-24", "Overall", "Geometric Mean", RouteChartPNG} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
}

func TestIndex_EmptyShowsPlaceholder(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	rr := do(srv, http.MethodGet, "/", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `class="placeholder"`) {
		t.Fatal("empty dashboard should render the placeholder")
	}
	if strings.Contains(rr.Body.String(), "returns-chart") {
		t.Fatal("empty dashboard must not render a chart canvas")
	}
}

func TestUnknownPathAndMethods(t *testing.T) {
	srv, _ := newTestServer(t, sampleRecords(), Options{})

	if rr := do(srv, http.MethodGet, "/nope", nil, nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown path status=%d", rr.Code)
	}
	rr := do(srv, http.MethodPost, RouteChartJSON, nil, nil)
	if rr.Code != http.StatusMethodNotAllowed || rr.Header().Get("Allow") != "GET, HEAD" {
		t.Errorf("POST chart status=%d allow=%q", rr.Code, rr.Header().Get("Allow"))
	}
	if rr := do(srv, http.MethodGet, RouteImport, nil, nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET import status=%d", rr.Code)
	}
}

func TestChartJSON(t *testing.T) {
	srv, _ := newTestServer(t, sampleRecords(), Options{})

	rr := do(srv, http.MethodGet, RouteChartJSON, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var cfg chart.ChartJS
	if err := json.Unmarshal(rr.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := strings.Join(cfg.Data.Labels, ","); got != "Apr-24,May-24,Overall,Geometric Mean" {
		t.Fatalf("labels = %s", got)
	}
	if got := cfg.Data.Datasets[0].Annotations[0]; got != "15.00%" {
		t.Errorf("Apr-24 annotation = %q, want 15.00%%", got)
	}
}

func TestChartEndpoints_EmptyAreNoContent(t *testing.T) {
	srv, _ := newTestServer(t, []core.TradeRecord{{Symbol: "INFY", RealizedPnLPct: core.Pct(1)}}, Options{})

	for _, route := range []string{RouteChartJSON, RouteChartPNG} {
		rr := do(srv, http.MethodGet, route, nil, nil)
		if rr.Code != http.StatusNoContent {
			t.Errorf("%s status=%d, want 204", route, rr.Code)
		}
		if rr.Body.Len() != 0 {
			t.Errorf("%s body should be empty", route)
		}
	}
}

func TestChartPNG(t *testing.T) {
	srv, _ := newTestServer(t, sampleRecords(), Options{})

	rr := do(srv, http.MethodGet, RouteChartPNG, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("content type %q", rr.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatal("body is not a PNG")
	}
}

func TestMonthlyTable(t *testing.T) {
	srv, _ := newTestServer(t, sampleRecords(), Options{})

	rr := do(srv, http.MethodGet, RouteMonthlyTable, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "-5.00%") || !strings.Contains(body, `class="neg"`) {
		t.Fatalf("table missing negative May row: %s", body)
	}
	if strings.Contains(body, "<html") {
		t.Fatal("partial must not render the full page")
	}
}

func TestImport_RawCSVInvalidatesCache(t *testing.T) {
	srv, store := newTestServer(t, sampleRecords(), Options{CacheTTL: time.Hour})

	// Prime the cache.
	if rr := do(srv, http.MethodGet, RouteChartJSON, nil, nil); rr.Code != http.StatusOK {
		t.Fatalf("prime status=%d", rr.Code)
	}

	csv := "Symbol,Realized P&L Pct.\nNIFTY24JUN23000CE,7.5%\n"
	rr := do(srv, http.MethodPost, RouteImport, bytes.NewBufferString(csv), map[string]string{"Content-Type": "text/csv"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("import status=%d body=%s", rr.Code, rr.Body.String())
	}
	var resp importResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ImportID != "mem:1" || resp.Rows != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if recs, _ := store.ListTradeRecords(context.Background()); len(recs) != 5 {
		t.Fatalf("store has %d records, want 5", len(recs))
	}

	rr = do(srv, http.MethodGet, RouteChartJSON, nil, nil)
	if !strings.Contains(rr.Body.String(), "Jun-24") {
		t.Fatalf("chart should include the imported month after invalidation: %s", rr.Body.String())
	}
}

func TestImport_Multipart(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "../../tradebook-2024.csv")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("Symbol,Realized P&L Pct.\nNIFTY24APR22000CE,3\n"))
	_ = mw.Close()

	rr := do(srv, http.MethodPost, RouteImport, &body, map[string]string{
		"Content-Type": mw.FormDataContentType(),
		"Accept":       "text/html,application/xhtml+xml",
	})
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestImport_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "missing column", body: "Ticker,Realized P&L Pct.\nX,1\n", want: http.StatusUnprocessableEntity},
		{name: "bad percentage", body: "Symbol,Realized P&L Pct.\nNIFTY24APR22000CE,abc\n", want: http.StatusUnprocessableEntity},
		{name: "no rows", body: "Symbol,Realized P&L Pct.\n", want: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store := newTestServer(t, nil, Options{})
			rr := do(srv, http.MethodPost, RouteImport, bytes.NewBufferString(tt.body), map[string]string{"Content-Type": "text/csv"})
			if rr.Code != tt.want {
				t.Fatalf("status=%d, want %d (%s)", rr.Code, tt.want, rr.Body.String())
			}
			if recs, _ := store.ListTradeRecords(context.Background()); len(recs) != 0 {
				t.Fatalf("rejected import stored %d records", len(recs))
			}
		})
	}
}

func TestImport_NoWriter(t *testing.T) {
	srv := NewServer(":0", memory.New(nil), nil, Options{})
	defer srv.Shutdown(context.Background())

	rr := do(srv, http.MethodPost, RouteImport, bytes.NewBufferString("Symbol,Realized P&L Pct.\nX,1\n"), nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestImport_RateLimited(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{RateLimitRPS: 0.001, RateLimitBurst: 1})

	csv := "Symbol,Realized P&L Pct.\nNIFTY24APR22000CE,3\n"
	first := do(srv, http.MethodPost, RouteImport, bytes.NewBufferString(csv), nil)
	second := do(srv, http.MethodPost, RouteImport, bytes.NewBufferString(csv), nil)
	if first.Code != http.StatusCreated || second.Code != http.StatusTooManyRequests {
		t.Fatalf("codes = %d, %d", first.Code, second.Code)
	}
	// Reads are never limited.
	if rr := do(srv, http.MethodGet, RouteChartJSON, nil, nil); rr.Code != http.StatusOK {
		t.Fatalf("GET after limit status=%d", rr.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})
	for _, path := range []string{RouteHealth, RouteReady} {
		if rr := do(srv, http.MethodGet, path, nil, nil); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	failing, _ := newTestServer(t, nil, Options{Ready: func(context.Context) error { return errors.New("database is locked") }})
	rr := do(failing, http.MethodGet, RouteReady, nil, nil)
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "database is locked") {
		t.Fatalf("readyz status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, sampleRecords(), Options{})
	do(srv, http.MethodGet, RouteChartJSON, nil, nil)

	rr := do(srv, http.MethodGet, RouteMetrics, nil, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "optreturns_http_requests_total") {
		t.Fatalf("metrics status=%d", rr.Code)
	}
}

func TestSuspiciousRequestBlocked(t *testing.T) {
	srv, _ := newTestServer(t, sampleRecords(), Options{})
	rr := do(srv, http.MethodGet, "/?q=union%20select", nil, map[string]string{"User-Agent": "sqlmap/1.7"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestSanitizeSource(t *testing.T) {
	tests := map[string]string{
		"tradebook.csv":           "tradebook.csv",
		"../../etc/tradebook.csv": "tradebook.csv",
		`C:\Users\me\tb.csv`:      "tb.csv",
		"  ":                      "",
	}
	for in, want := range tests {
		if got := sanitizeSource(in); got != want {
			t.Errorf("sanitizeSource(%q) = %q, want %q", in, got, want)
		}
	}
}

// blockingStore snapshots the tradebook, then holds the first read until
// release is closed.
type blockingStore struct {
	*memory.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) ListTradeRecords(ctx context.Context) ([]core.TradeRecord, error) {
	records, err := b.Store.ListTradeRecords(ctx)
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return records, err
}

func TestImport_DuringComputationIsNotMasked(t *testing.T) {
	store := &blockingStore{
		Store:   memory.New([]core.TradeRecord{{Symbol: "NIFTY24APR22000CE", RealizedPnLPct: core.Pct(10)}}),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	srv := NewServer(":0", store, store, Options{CacheTTL: time.Hour})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() { first <- do(srv, http.MethodGet, RouteChartJSON, nil, nil) }()
	<-store.entered

	csv := "Symbol,Realized P&L Pct.\nNIFTY24MAY22000CE,30\n"
	if rr := do(srv, http.MethodPost, RouteImport, bytes.NewBufferString(csv), map[string]string{"Content-Type": "text/csv"}); rr.Code != http.StatusCreated {
		t.Fatalf("import status=%d body=%s", rr.Code, rr.Body.String())
	}

	close(store.release)
	if rr := <-first; rr.Code != http.StatusOK {
		t.Fatalf("in-flight request status=%d", rr.Code)
	}

	rr := do(srv, http.MethodGet, RouteChartJSON, nil, nil)
	var cfg chart.ChartJS
	if err := json.Unmarshal(rr.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := strings.Join(cfg.Data.Labels, ","); got != "Apr-24,May-24,Overall,Geometric Mean" {
		t.Fatalf("labels after import = %s, want the imported month", got)
	}
}
