package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"optreturns/internal/core"
	"optreturns/internal/metrics"
	"optreturns/internal/sheets"
)

// ReturnsKey identifies the options monthly returns series in caches and
// in-flight computations.
const ReturnsKey = "options-monthly-returns"

// computeTimeout bounds a shared computation, which no longer follows the
// deadline of the caller that started it.
const computeTimeout = 30 * time.Second

// ReturnsService loads the tradebook and computes the monthly series.
type ReturnsService struct {
	reader sheets.TradeRecordReader
	group  singleflight.Group
}

func NewReturnsService(reader sheets.TradeRecordReader) *ReturnsService {
	return &ReturnsService{reader: reader}
}

// Compute returns the current series. Concurrent callers share a single
// read of the tradebook. The read is detached from the caller that started
// it; each caller stops waiting when its own ctx is done.
// core.ErrNoMonthlyReturns is returned unchanged.
func (s *ReturnsService) Compute(ctx context.Context) (core.MonthlyReturns, error) {
	ch := s.group.DoChan(ReturnsKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
		defer cancel()
		return s.compute(fctx)
	})

	select {
	case <-ctx.Done():
		return core.MonthlyReturns{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			slog.DebugContext(ctx, "Shared in-flight returns computation")
		}
		if res.Err != nil {
			return core.MonthlyReturns{}, res.Err
		}
		return res.Val.(core.MonthlyReturns), nil
	}
}

// Forget detaches the in-flight computation, if any, so later callers start
// a fresh read. Callers already waiting still get its result.
func (s *ReturnsService) Forget() {
	s.group.Forget(ReturnsKey)
}

// Chart computes the series and builds its chart.
func (s *ReturnsService) Chart(ctx context.Context) (core.ChartSpec, error) {
	series, err := s.Compute(ctx)
	if err != nil {
		return core.ChartSpec{}, err
	}
	return core.NewChartSpec(series), nil
}

func (s *ReturnsService) compute(ctx context.Context) (core.MonthlyReturns, error) {
	start := time.Now()
	records, err := s.reader.ListTradeRecords(ctx)
	if err != nil {
		metrics.ObserveComputation(metrics.OutcomeError, 0, time.Since(start))
		return core.MonthlyReturns{}, fmt.Errorf("list trade records: %w", err)
	}

	series, err := core.ComputeMonthlyReturns(records)
	switch {
	case errors.Is(err, core.ErrNoMonthlyReturns):
		metrics.ObserveComputation(metrics.OutcomeEmpty, 0, time.Since(start))
		slog.InfoContext(ctx, "No monthly returns to report", "records", len(records))
		return core.MonthlyReturns{}, err
	case err != nil:
		metrics.ObserveComputation(metrics.OutcomeError, 0, time.Since(start))
		return core.MonthlyReturns{}, fmt.Errorf("compute monthly returns: %w", err)
	}

	months := len(series.Months())
	metrics.ObserveComputation(metrics.OutcomeOK, months, time.Since(start))
	slog.InfoContext(ctx, "Computed monthly returns",
		"records", len(records),
		"months", months,
		"overall", series.Overall,
		"geometric_mean", series.GeometricMean)
	return series, nil
}
