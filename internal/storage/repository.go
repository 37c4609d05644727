package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"optreturns/internal/core"

	_ "modernc.org/sqlite"
)

var ErrImportNotFound = errors.New("import not found")

// Import is one batch of trade records loaded together.
type Import struct {
	ID        string
	Source    string
	RowCount  int
	CreatedAt time.Time
	SyncedAt  *time.Time
}

// Synced reports whether the batch has been published to the summary sheet.
func (i Import) Synced() bool { return i.SyncedAt != nil }

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

// dsn adds the pragmas every connection needs: writers wait on a busy
// database instead of failing, and import references are enforced.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// AppendTradeRecords stores a batch and its import row in one transaction.
func (r *SQLiteRepository) AppendTradeRecords(ctx context.Context, importID, source string, records []core.TradeRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	createdAt := formatTime(r.now())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO imports (id, source, row_count, created_at) VALUES (?, ?, ?, ?)`,
		importID, source, len(records), createdAt); err != nil {
		return fmt.Errorf("insert import: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trade_records (import_id, symbol, realized_pnl_pct, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		pct := sql.NullFloat64{Float64: rec.RealizedPnLPct.Value, Valid: rec.RealizedPnLPct.Valid}
		if _, err := stmt.ExecContext(ctx, importID, rec.Symbol, pct, createdAt); err != nil {
			return fmt.Errorf("insert trade record %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Trade records saved to SQLite",
		"import_id", importID,
		"source", source,
		"rows", len(records))
	return nil
}

// ListTradeRecords returns every stored record in insertion order.
func (r *SQLiteRepository) ListTradeRecords(ctx context.Context) ([]core.TradeRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT symbol, realized_pnl_pct FROM trade_records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query trade records: %w", err)
	}
	defer rows.Close()

	var out []core.TradeRecord
	for rows.Next() {
		var (
			symbol string
			pct    sql.NullFloat64
		)
		if err := rows.Scan(&symbol, &pct); err != nil {
			return nil, fmt.Errorf("scan trade record: %w", err)
		}
		out = append(out, core.TradeRecord{
			Symbol:         symbol,
			RealizedPnLPct: core.OptionalPct{Value: pct.Float64, Valid: pct.Valid},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade records: %w", err)
	}
	return out, nil
}

// GetImport retrieves a single import batch by ID.
func (r *SQLiteRepository) GetImport(ctx context.Context, id string) (*Import, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, source, row_count, created_at, synced_at FROM imports WHERE id = ?`, id)
	imp, err := scanImport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get import %s: %w", id, err)
	}
	return imp, nil
}

// ListPendingImports returns the oldest batches not yet synced.
func (r *SQLiteRepository) ListPendingImports(ctx context.Context, limit int) ([]Import, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, source, row_count, created_at, synced_at FROM imports
		 WHERE synced_at IS NULL ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending imports: %w", err)
	}
	defer rows.Close()

	var out []Import
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		out = append(out, *imp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate imports: %w", err)
	}
	return out, nil
}

// MarkImportSynced records that the batch reached the summary sheet.
func (r *SQLiteRepository) MarkImportSynced(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE imports SET synced_at = ? WHERE id = ?`, formatTime(r.now()), id)
	if err != nil {
		return fmt.Errorf("mark import synced: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrImportNotFound, id)
	}

	slog.InfoContext(ctx, "Import marked as synced", "import_id", id)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImport(s scanner) (*Import, error) {
	var (
		imp       Import
		createdAt string
		syncedAt  sql.NullString
	)
	if err := s.Scan(&imp.ID, &imp.Source, &imp.RowCount, &createdAt, &syncedAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	imp.CreatedAt = t
	if syncedAt.Valid {
		st, err := time.Parse(timeLayout, syncedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse synced_at: %w", err)
		}
		imp.SyncedAt = &st
	}
	return &imp, nil
}

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
