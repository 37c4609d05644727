package sheets

import (
	"context"
	"optreturns/internal/core"
)

// Ports for outbound adapters.
type (
	// TradeRecordReader returns the full tradebook the returns are computed from.
	TradeRecordReader interface {
		ListTradeRecords(ctx context.Context) ([]core.TradeRecord, error)
	}

	// TradeRecordWriter appends an imported batch of records.
	TradeRecordWriter interface {
		AppendTradeRecords(ctx context.Context, records []core.TradeRecord) (batchRef string, err error)
	}

	// SummaryWriter publishes a computed monthly series, replacing any
	// previously written one.
	SummaryWriter interface {
		WriteMonthlyReturns(ctx context.Context, returns core.MonthlyReturns) error
	}
)
