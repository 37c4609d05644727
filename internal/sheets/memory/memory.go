package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"optreturns/internal/core"
	"optreturns/internal/tradebook"
)

// TradebookFile is the seed file read by NewFromFiles.
const TradebookFile = "tradebook.csv"

type Store struct {
	mu      sync.Mutex
	records []core.TradeRecord
	batches int
	summary *core.MonthlyReturns
}

func New(records []core.TradeRecord) *Store {
	return &Store{records: append([]core.TradeRecord(nil), records...)}
}

// NewFromFiles seeds the store from <base>/tradebook.csv. A missing file
// yields an empty store; a malformed one is an error.
func NewFromFiles(base string) (*Store, error) {
	path := filepath.Join(base, TradebookFile)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Tradebook seed file not found, starting empty", "path", path)
		return New(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open tradebook: %w", err)
	}
	defer f.Close()

	records, err := tradebook.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return New(records), nil
}

// ListTradeRecords returns a copy of all stored records.
func (s *Store) ListTradeRecords(_ context.Context) ([]core.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.TradeRecord(nil), s.records...), nil
}

// AppendTradeRecords stores the batch and returns a synthetic batch reference.
func (s *Store) AppendTradeRecords(_ context.Context, records []core.TradeRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	s.batches++
	return fmt.Sprintf("mem:%d", s.batches), nil
}

// WriteMonthlyReturns keeps the last written series.
func (s *Store) WriteMonthlyReturns(_ context.Context, returns core.MonthlyReturns) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := returns
	cp.Entries = append([]core.MonthlyReturn(nil), returns.Entries...)
	s.summary = &cp
	return nil
}

// Summary returns the last series passed to WriteMonthlyReturns.
func (s *Store) Summary() (core.MonthlyReturns, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		return core.MonthlyReturns{}, false
	}
	return *s.summary, true
}
