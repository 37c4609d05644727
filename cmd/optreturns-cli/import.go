package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/subcommands"

	"optreturns/internal/amqp"
	"optreturns/internal/cli"
	"optreturns/internal/config"
	"optreturns/internal/log"
	"optreturns/internal/services"
	"optreturns/internal/tradebook"
)

// importCmd stores a tradebook CSV as a new import.
type importCmd struct {
	file    string
	db      string
	publish bool
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import a tradebook CSV into the SQLite database" }
func (*importCmd) Usage() string {
	return `optreturns-cli import -f <tradebook.csv> [-db <optreturns.db>] [-publish]

  Stores every row of the tradebook as one import. With -publish, a sync
  message is sent to AMQP_URL so the worker refreshes the summary sheet.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "f", "", "Tradebook CSV file to import.")
	f.StringVar(&c.db, "db", "", "SQLite database. Defaults to SQLITE_DB_PATH.")
	f.BoolVar(&c.publish, "publish", false, "Publish a sync message to AMQP_URL after the import.")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.file == "" {
		fmt.Fprintln(os.Stderr, "Error: -f is required")
		return subcommands.ExitUsageError
	}

	logger := cli.SetupLogger(log.ComponentCLI)
	cfg := config.Load()
	if c.db == "" {
		c.db = cfg.SQLiteDBPath
	}

	fh, err := os.Open(c.file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening tradebook: %v\n", err)
		return subcommands.ExitFailure
	}
	defer fh.Close()

	records, err := tradebook.Decode(fh)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding %s: %v\n", c.file, err)
		return subcommands.ExitFailure
	}

	repo := cli.InitSQLite(logger, c.db)
	defer repo.Close()

	var publisher services.SyncPublisher
	if c.publish {
		if !cfg.AMQPEnabled() {
			fmt.Fprintln(os.Stderr, "Error: -publish needs AMQP_URL")
			return subcommands.ExitUsageError
		}
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to AMQP: %v\n", err)
			return subcommands.ExitFailure
		}
		defer client.Close()
		publisher = client
	}

	id, err := services.NewImportService(repo, publisher).Import(ctx, filepath.Base(c.file), records)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Imported %d rows from %s as %s\n", len(records), c.file, id)
	return subcommands.ExitSuccess
}
