package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"optreturns/internal/core"
	"optreturns/internal/metrics"
)

var ErrEmptyImport = errors.New("import contains no trade records")

// ImportStore persists a batch of records under an import id.
type ImportStore interface {
	AppendTradeRecords(ctx context.Context, importID, source string, records []core.TradeRecord) error
}

// SyncPublisher announces stored batches to the summary worker.
type SyncPublisher interface {
	PublishReturnsSync(ctx context.Context, importID string, rows int) error
}

// ImportService orchestrates imports across SQLite and AMQP
type ImportService struct {
	store     ImportStore
	publisher SyncPublisher
	newID     func() string
}

// NewImportService wires the store and an optional publisher. Pass a nil
// interface, not a typed nil pointer, when AMQP is not configured.
func NewImportService(store ImportStore, publisher SyncPublisher) *ImportService {
	return &ImportService{
		store:     store,
		publisher: publisher,
		newID:     uuid.NewString,
	}
}

// Import saves the batch locally and publishes a sync message. A failed
// publish is logged only: the batch is already stored and the worker's
// periodic pass will pick it up.
func (s *ImportService) Import(ctx context.Context, source string, records []core.TradeRecord) (string, error) {
	if len(records) == 0 {
		return "", ErrEmptyImport
	}
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return "", fmt.Errorf("record %d: %w", i+1, err)
		}
	}

	importID := s.newID()
	if err := s.store.AppendTradeRecords(ctx, importID, source, records); err != nil {
		return "", fmt.Errorf("save import: %w", err)
	}
	metrics.AddImported("sqlite", len(records))

	if err := s.publishSyncMessage(ctx, importID, len(records)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"import_id", importID, "error", err)
	}

	return importID, nil
}

func (s *ImportService) publishSyncMessage(ctx context.Context, importID string, rows int) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping sync message", "import_id", importID)
		return nil
	}
	return s.publisher.PublishReturnsSync(ctx, importID, rows)
}

// Close closes the store and publisher when they hold resources.
func (s *ImportService) Close() error {
	var errs []error
	if c, ok := s.store.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close import service: %w", errors.Join(errs...))
	}
	return nil
}
