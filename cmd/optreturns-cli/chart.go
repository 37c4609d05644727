package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"gonum.org/v1/plot/vg"

	"optreturns/internal/chart"
	"optreturns/internal/core"
	"optreturns/internal/services"
)

// chartCmd writes the bar chart as a PNG file.
type chartCmd struct {
	src    sourceFlags
	output string
	width  float64
	height float64
}

func (*chartCmd) Name() string     { return "chart" }
func (*chartCmd) Synopsis() string { return "render the monthly returns bar chart to a PNG file" }
func (*chartCmd) Usage() string {
	return `optreturns-cli chart (-f <tradebook.csv> | -db <optreturns.db>) [-o <file.png>]

  Renders one bar per month plus the overall and geometric mean returns,
  each labelled with its percentage.
`
}

func (c *chartCmd) SetFlags(f *flag.FlagSet) {
	c.src.register(f)
	f.StringVar(&c.output, "o", "options-monthly-returns.png", "Output PNG file.")
	f.Float64Var(&c.width, "width", 12, "Width in inches.")
	f.Float64Var(&c.height, "height", 6, "Height in inches.")
}

func (c *chartCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.width <= 0 || c.height <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -width and -height must be positive")
		return subcommands.ExitUsageError
	}

	reader, closeFn, err := c.src.open()
	if err != nil {
		return openStatus(err)
	}
	defer closeFn()

	spec, err := services.NewReturnsService(reader).Chart(ctx)
	if errors.Is(err, core.ErrNoMonthlyReturns) {
		fmt.Println("No options trades with a realized P&L percentage, nothing to plot.")
		return subcommands.ExitSuccess
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing monthly returns: %v\n", err)
		return subcommands.ExitFailure
	}

	out, err := os.Create(c.output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", c.output, err)
		return subcommands.ExitFailure
	}
	if err := chart.RenderPNG(out, spec, vg.Length(c.width)*vg.Inch, vg.Length(c.height)*vg.Inch); err != nil {
		out.Close()
		fmt.Fprintf(os.Stderr, "Error rendering chart: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := out.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", c.output, err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Wrote %s\n", c.output)
	return subcommands.ExitSuccess
}
