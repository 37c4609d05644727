package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"optreturns/internal/amqp"
	"optreturns/internal/core"
	"optreturns/internal/metrics"
	"optreturns/internal/services"
	"optreturns/internal/sheets"
	"optreturns/internal/storage"
)

// Store is the part of the SQLite repository the worker needs.
type Store interface {
	sheets.TradeRecordReader
	GetImport(ctx context.Context, id string) (*storage.Import, error)
	ListPendingImports(ctx context.Context, limit int) ([]storage.Import, error)
	MarkImportSynced(ctx context.Context, id string) error
}

// Consumer delivers sync messages until ctx is done.
type Consumer interface {
	ConsumeReturnsSync(ctx context.Context, handler func(context.Context, *amqp.ReturnsSyncMessage) error) error
}

// SyncWorker publishes the monthly series to the summary sheet after each
// import.
type SyncWorker struct {
	storage   Store
	summary   sheets.SummaryWriter
	returns   *services.ReturnsService
	batchSize int
}

func NewSyncWorker(store Store, summary sheets.SummaryWriter, batchSize int) *SyncWorker {
	if batchSize < 1 {
		batchSize = 1
	}
	return &SyncWorker{
		storage:   store,
		summary:   summary,
		returns:   services.NewReturnsService(store),
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single import sync message from AMQP.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.ReturnsSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"import_id", msg.ImportID,
		"rows", msg.Rows)

	imp, err := w.storage.GetImport(ctx, msg.ImportID)
	if err != nil {
		metrics.SyncMessage(metrics.OutcomeError)
		return fmt.Errorf("get import from storage: %w", err)
	}
	if imp.Synced() {
		slog.InfoContext(ctx, "Import already synced, skipping", "import_id", imp.ID)
		metrics.SyncMessage(metrics.OutcomeOK)
		return nil
	}

	return w.syncImport(ctx, imp.ID)
}

// ProcessPendingImports syncs imports whose message was lost or failed.
func (w *SyncWorker) ProcessPendingImports(ctx context.Context) error {
	pending, err := w.storage.ListPendingImports(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending imports: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending imports", "count", len(pending))

	// Every pending import publishes the same full series, so one write
	// covers the whole batch.
	if err := w.syncImport(ctx, pending[0].ID); err != nil {
		return err
	}
	for _, imp := range pending[1:] {
		if err := w.storage.MarkImportSynced(ctx, imp.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark import as synced", "import_id", imp.ID, "error", err)
		}
	}
	return nil
}

// Run consumes messages and runs the periodic pass until ctx is done. A nil
// consumer runs the periodic pass alone.
func (w *SyncWorker) Run(ctx context.Context, consumer Consumer, interval time.Duration) error {
	if err := w.ProcessPendingImports(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup sync check failed", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	if consumer != nil {
		g.Go(func() error {
			return consumer.ConsumeReturnsSync(ctx, w.HandleSyncMessage)
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := w.ProcessPendingImports(ctx); err != nil {
					slog.ErrorContext(ctx, "Periodic sync failed", "error", err)
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *SyncWorker) syncImport(ctx context.Context, importID string) error {
	series, err := w.returns.Compute(ctx)
	switch {
	case errors.Is(err, core.ErrNoMonthlyReturns):
		slog.InfoContext(ctx, "No monthly returns to publish, leaving summary untouched",
			"import_id", importID)
		metrics.SyncMessage(metrics.OutcomeEmpty)
	case err != nil:
		metrics.SyncMessage(metrics.OutcomeError)
		return fmt.Errorf("compute monthly returns: %w", err)
	default:
		if err := w.summary.WriteMonthlyReturns(ctx, series); err != nil {
			metrics.SyncMessage(metrics.OutcomeError)
			return fmt.Errorf("write monthly returns: %w", err)
		}
		metrics.SyncMessage(metrics.OutcomeOK)
	}

	if err := w.storage.MarkImportSynced(ctx, importID); err != nil {
		// The summary is already written; the next pass rewrites it.
		slog.ErrorContext(ctx, "Failed to mark import as synced", "import_id", importID, "error", err)
		return nil
	}

	slog.InfoContext(ctx, "Successfully synced monthly returns",
		"import_id", importID,
		"months", len(series.Months()))
	return nil
}
