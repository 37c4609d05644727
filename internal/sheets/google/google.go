package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"optreturns/internal/core"
	ports "optreturns/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Default sheet names.
const (
	DefaultTradebookSheet = "Tradebook"
	DefaultSummarySheet   = "Monthly Returns"
)

type Client struct {
	svc            *gsheet.Service
	spreadsheetID  string
	tradebookSheet string
	summarySheet   string
}

// Ensure interface conformance
var (
	_ ports.TradeRecordReader = (*Client)(nil)
	_ ports.TradeRecordWriter = (*Client)(nil)
	_ ports.SummaryWriter     = (*Client)(nil)
)

// Options selects the spreadsheet and the sheets inside it.
type Options struct {
	SpreadsheetID  string
	TradebookSheet string
	SummarySheet   string

	// Service account credentials, inline or as a file path.
	CredentialsJSON string
	CredentialsFile string
}

// New creates a client from explicit options. Service options are passed to
// the Sheets service; when none are given, the service account credentials
// in opts are used.
func New(ctx context.Context, opts Options, svcOpts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(opts.TradebookSheet) == "" {
		opts.TradebookSheet = DefaultTradebookSheet
	}
	if strings.TrimSpace(opts.SummarySheet) == "" {
		opts.SummarySheet = DefaultSummarySheet
	}

	var (
		svc *gsheet.Service
		err error
	)
	if len(svcOpts) > 0 {
		svc, err = gsheet.NewService(ctx, svcOpts...)
	} else {
		svc, err = newSheetsService(ctx, opts.CredentialsJSON, opts.CredentialsFile)
	}
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:            svc,
		spreadsheetID:  strings.TrimSpace(opts.SpreadsheetID),
		tradebookSheet: strings.TrimSpace(opts.TradebookSheet),
		summarySheet:   strings.TrimSpace(opts.SummarySheet),
	}, nil
}

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_TRADEBOOK_SHEET (default "Tradebook"),
// GOOGLE_SUMMARY_SHEET (default "Monthly Returns").
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx, Options{
		SpreadsheetID:   os.Getenv("GOOGLE_SPREADSHEET_ID"),
		TradebookSheet:  os.Getenv("GOOGLE_TRADEBOOK_SHEET"),
		SummarySheet:    os.Getenv("GOOGLE_SUMMARY_SHEET"),
		CredentialsJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		CredentialsFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
	})
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// GOOGLE_APPLICATION_CREDENTIALS is the fallback when neither is given.
func newSheetsService(ctx context.Context, serviceAccountJSON, serviceAccountFile string) (*gsheet.Service, error) {
	serviceAccountJSON = strings.TrimSpace(serviceAccountJSON)
	serviceAccountFile = strings.TrimSpace(serviceAccountFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "credentials_size", len(credentialsJSON))
	return service, nil
}

// ListTradeRecords reads the whole tradebook sheet. The first row is the header.
func (c *Client) ListTradeRecords(ctx context.Context) ([]core.TradeRecord, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:Z", c.tradebookSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	records, err := parseTradebook(resp.Values)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rng, err)
	}
	slog.DebugContext(ctx, "Read tradebook sheet", "range", rng, "records", len(records))
	return records, nil
}

// AppendTradeRecords appends rows below the tradebook, placing values in the
// columns named by the existing header row.
func (c *Client) AppendTradeRecords(ctx context.Context, records []core.TradeRecord) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return "", fmt.Errorf("record %d: %w", i+1, err)
		}
	}
	if len(records) == 0 {
		return "", nil
	}

	headerRng := fmt.Sprintf("%s!1:1", c.tradebookSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, headerRng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", headerRng, err)
	}
	var header []interface{}
	if len(resp.Values) > 0 {
		header = resp.Values[0]
	}
	rows, err := tradebookRows(header, records)
	if err != nil {
		return "", err
	}

	rng := fmt.Sprintf("%s!A:Z", c.tradebookSheet)
	out, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", c.tradebookSheet, err)
	}
	ref := rng
	if out.Updates != nil && out.Updates.UpdatedRange != "" {
		ref = out.Updates.UpdatedRange
	}
	return ref, nil
}

// WriteMonthlyReturns replaces the summary sheet contents with the series.
func (c *Client) WriteMonthlyReturns(ctx context.Context, returns core.MonthlyReturns) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A1:B", c.summarySheet)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	vr := &gsheet.ValueRange{Values: summaryValues(returns)}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	slog.InfoContext(ctx, "Wrote monthly returns summary", "range", rng, "rows", len(returns.Entries))
	return nil
}
