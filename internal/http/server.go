package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"optreturns/internal/cache"
	"optreturns/internal/core"
	"optreturns/internal/log"
	"optreturns/internal/metrics"
	"optreturns/internal/middleware/ratelimit"
	"optreturns/internal/middleware/security"
	"optreturns/internal/middleware/trace"
	"optreturns/internal/services"
	"optreturns/internal/sheets"
	appweb "optreturns/web"
)

// Routes.
const (
	RouteIndex        = "/"
	RouteChartJSON    = "/api/charts/options-monthly-returns"
	RouteChartPNG     = "/charts/options-monthly-returns.png"
	RouteMonthlyTable = "/ui/monthly-returns"
	RouteImport       = "/trades/import"
	RouteHealth       = "/healthz"
	RouteReady        = "/readyz"
	RouteMetrics      = "/metrics"
)

// readTimeout bounds every tradebook read made on behalf of a request.
const readTimeout = 7 * time.Second

// Options tune the server. Zero values fall back to defaults.
type Options struct {
	CacheTTL       time.Duration
	CacheSize      int
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustedProxies are CIDRs whose forwarding headers are believed.
	TrustedProxies []string
	// Ready is probed by /readyz, typically a backend Ping.
	Ready func(ctx context.Context) error
	// Logger is attached to each request context.
	Logger *log.Logger
}

type Server struct {
	http.Server
	templates *template.Template
	returns   *services.ReturnsService
	writer    sheets.TradeRecordWriter
	ready     func(ctx context.Context) error
	started   time.Time

	series   *cache.LRUCache[core.MonthlyReturns]
	caches   *cache.Manager
	limiter  *ratelimit.Limiter
	detector *security.Detector

	// generation is bumped by invalidate; a computation started under an
	// older generation is not cached.
	generation atomic.Uint64

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run
// http.Server. writer may be nil, in which case imports are refused.
func NewServer(addr string, reader sheets.TradeRecordReader, writer sheets.TradeRecordWriter, opts Options) *Server {
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 8
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		returns:  services.NewReturnsService(reader),
		writer:   writer,
		ready:    opts.Ready,
		started:  time.Now(),
		series:   cache.NewLRUCache[core.MonthlyReturns](opts.CacheSize, opts.CacheTTL),
		caches:   cache.NewManager(),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerSecond: opts.RateLimitRPS, Burst: opts.RateLimitBurst}),
		detector: security.NewDetector(),
	}

	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			slog.Warn("Ignoring trusted proxy", "error", err)
		}
	}

	s.caches.Register(s.series)
	if opts.CacheTTL > 0 {
		s.caches.StartCleanup(context.Background(), opts.CacheTTL)
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(s.detector.ExtractClientIP)
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.MutatingOnly)
	logged := log.Middleware(opts.Logger.WithComponent(log.ComponentHTTP))

	// Middleware order, outermost first: trace, detection, headers, logger, rate limit.
	handle := func(route string, h http.HandlerFunc) {
		var next http.Handler = h
		next = limit(next)
		next = logged(next)
		next = headers.Middleware(next)
		next = s.detector.Middleware(next)
		mux.Handle(route, tracer.Handler(route, next))
	}

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	handle(RouteIndex, s.handleIndex)
	handle(RouteChartJSON, s.handleChartJSON)
	handle(RouteChartPNG, s.handleChartPNG)
	handle(RouteMonthlyTable, s.handleMonthlyTable)
	handle(RouteImport, s.handleImport)
	mux.HandleFunc(RouteHealth, s.handleHealth)
	mux.HandleFunc(RouteReady, s.handleReady)
	mux.Handle(RouteMetrics, metrics.Handler())

	return s
}

// Shutdown stops the background cleanups and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// monthlyReturns returns the cached series or computes it. An empty
// tradebook yields core.ErrNoMonthlyReturns and is not cached.
func (s *Server) monthlyReturns(ctx context.Context) (core.MonthlyReturns, error) {
	if series, ok := s.series.Get(services.ReturnsKey); ok {
		metrics.CacheHit()
		slog.DebugContext(ctx, "Monthly returns cache hit")
		return series, nil
	}
	metrics.CacheMiss()

	gen := s.generation.Load()
	cctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	series, err := s.returns.Compute(cctx)
	if err != nil {
		if errors.Is(err, core.ErrNoMonthlyReturns) {
			return core.MonthlyReturns{}, err
		}
		return core.MonthlyReturns{}, fmt.Errorf("compute monthly returns: %w", err)
	}

	if s.generation.Load() != gen {
		slog.DebugContext(ctx, "Tradebook changed during computation, not caching")
		return series, nil
	}
	s.series.Set(services.ReturnsKey, series)
	slog.DebugContext(ctx, "Monthly returns cached", "months", len(series.Months()))
	return series, nil
}

// invalidate drops the cached series after an import. Computations already
// running are neither cached nor joined by later requests.
func (s *Server) invalidate() {
	s.generation.Add(1)
	s.returns.Forget()
	s.series.Delete(services.ReturnsKey)
}
