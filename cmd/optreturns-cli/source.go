package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"optreturns/internal/sheets"
	"optreturns/internal/sheets/memory"
	"optreturns/internal/storage"
	"optreturns/internal/tradebook"
)

// errNoSource is returned by open when neither -f nor -db is set.
var errNoSource = errors.New("one of -f or -db is required")

// sourceFlags selects where the tradebook is read from: a CSV file or the
// SQLite database fed by imports.
type sourceFlags struct {
	file string
	db   string
}

func (s *sourceFlags) register(f *flag.FlagSet) {
	f.StringVar(&s.file, "f", "", "Tradebook CSV file.")
	f.StringVar(&s.db, "db", "", "SQLite database written by imports. Used when -f is empty.")
}

// open returns the reader and a close function.
func (s *sourceFlags) open() (sheets.TradeRecordReader, func() error, error) {
	switch {
	case s.file != "":
		fh, err := os.Open(s.file)
		if err != nil {
			return nil, nil, fmt.Errorf("open tradebook: %w", err)
		}
		defer fh.Close()
		records, err := tradebook.Decode(fh)
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", s.file, err)
		}
		return memory.New(records), func() error { return nil }, nil
	case s.db != "":
		repo, err := storage.NewSQLiteRepository(s.db)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, errNoSource
	}
}

// openStatus maps an open error to an exit status: usage errors are 2, file
// and database faults are 1.
func openStatus(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if errors.Is(err, errNoSource) {
		return subcommands.ExitUsageError
	}
	return subcommands.ExitFailure
}
