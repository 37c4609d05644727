package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"

	"optreturns/internal/core"
	"optreturns/internal/services"
)

// reportCmd prints the monthly returns table.
type reportCmd struct {
	src sourceFlags
	raw bool
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "display average monthly realized returns of options trades" }
func (*reportCmd) Usage() string {
	return `optreturns-cli report (-f <tradebook.csv> | -db <optreturns.db>) [-raw]

  Displays the average realized P&L percentage per expiry month, followed by
  the overall and geometric mean returns.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	c.src.register(f)
	f.BoolVar(&c.raw, "raw", false, "Print the markdown source instead of rendering it.")
}

func (c *reportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	reader, closeFn, err := c.src.open()
	if err != nil {
		return openStatus(err)
	}
	defer closeFn()

	series, err := services.NewReturnsService(reader).Compute(ctx)
	if errors.Is(err, core.ErrNoMonthlyReturns) {
		fmt.Println("No options trades with a realized P&L percentage.")
		return subcommands.ExitSuccess
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing monthly returns: %v\n", err)
		return subcommands.ExitFailure
	}

	md := returnsMarkdown(series)
	if c.raw {
		fmt.Print(md)
		return subcommands.ExitSuccess
	}
	printMarkdown(md)
	return subcommands.ExitSuccess
}

// returnsMarkdown renders the series as a markdown table. The two summary
// rows are emphasized.
func returnsMarkdown(series core.MonthlyReturns) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", core.ChartHeader)
	fmt.Fprintf(&b, "| %s | %s |\n", core.ChartXLabel, core.ChartYLabel)
	b.WriteString("|:---|---:|\n")
	for _, m := range series.Months() {
		fmt.Fprintf(&b, "| %s | %s |\n", m.Key, core.FormatPercentage(m.Value))
	}
	fmt.Fprintf(&b, "| **%s** | **%s** |\n", core.OverallKey, core.FormatPercentage(series.Overall))
	fmt.Fprintf(&b, "| **%s** | **%s** |\n", core.GeometricMeanKey, core.FormatPercentage(series.GeometricMean))
	return b.String()
}

// printMarkdown renders md for the terminal, falling back to the plain text.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Print(md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}
