package adapters

import (
	"context"

	"optreturns/internal/core"
	"optreturns/internal/services"
	"optreturns/internal/sheets"
	"optreturns/internal/storage"
)

// DefaultImportSource labels batches appended without a named source.
const DefaultImportSource = "api"

var (
	_ sheets.TradeRecordReader = (*SQLiteAdapter)(nil)
	_ sheets.TradeRecordWriter = (*SQLiteAdapter)(nil)
)

// SQLiteAdapter adapts SQLiteRepository and ImportService to the sheets ports,
// so the HTTP handlers work unchanged on the SQLite + AMQP backend.
type SQLiteAdapter struct {
	storage *storage.SQLiteRepository
	service *services.ImportService
}

func NewSQLiteAdapter(storage *storage.SQLiteRepository, service *services.ImportService) *SQLiteAdapter {
	return &SQLiteAdapter{
		storage: storage,
		service: service,
	}
}

// ListTradeRecords implements sheets.TradeRecordReader
func (a *SQLiteAdapter) ListTradeRecords(ctx context.Context) ([]core.TradeRecord, error) {
	return a.storage.ListTradeRecords(ctx)
}

// AppendTradeRecords implements sheets.TradeRecordWriter. The returned
// reference is the import id.
func (a *SQLiteAdapter) AppendTradeRecords(ctx context.Context, records []core.TradeRecord) (string, error) {
	return a.service.Import(ctx, DefaultImportSource, records)
}

// ImportTradeRecords is AppendTradeRecords with a caller-provided source label,
// typically the uploaded file name.
func (a *SQLiteAdapter) ImportTradeRecords(ctx context.Context, source string, records []core.TradeRecord) (string, error) {
	if source == "" {
		source = DefaultImportSource
	}
	return a.service.Import(ctx, source, records)
}

// Ping implements backend.Pinger
func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	return a.storage.Ping(ctx)
}
