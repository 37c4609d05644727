package core

import "fmt"

// Fixed chart labels.
const (
	ChartHeader   = "Options Monthly Percentage Returns"
	ChartTitle    = "Options Average Monthly Realized P&L Percentage with Overall and Geometric Mean Returns"
	ChartXLabel   = "Month-Year"
	ChartYLabel   = "Average Realized P&L Pct. (%)"
	XTickRotation = 45.0
)

type (
	// Bar is one labelled bar with the text drawn above it.
	Bar struct {
		Label  string
		Height float64
		Text   string
	}

	// ChartSpec describes a bar chart independently of any rendering backend.
	ChartSpec struct {
		Title         string
		XLabel        string
		YLabel        string
		XTickRotation float64 // degrees
		Bars          []Bar
	}
)

// NewChartSpec builds the render request for a monthly returns series: one
// bar per entry, annotated with its value.
func NewChartSpec(r MonthlyReturns) ChartSpec {
	bars := make([]Bar, len(r.Entries))
	for i, e := range r.Entries {
		bars[i] = Bar{
			Label:  e.Key,
			Height: e.Value,
			Text:   FormatPercentage(e.Value),
		}
	}
	return ChartSpec{
		Title:         ChartTitle,
		XLabel:        ChartXLabel,
		YLabel:        ChartYLabel,
		XTickRotation: XTickRotation,
		Bars:          bars,
	}
}

// Labels returns the bar labels in order.
func (c ChartSpec) Labels() []string {
	out := make([]string, len(c.Bars))
	for i, b := range c.Bars {
		out[i] = b.Label
	}
	return out
}

// Heights returns the bar heights in order.
func (c ChartSpec) Heights() []float64 {
	out := make([]float64, len(c.Bars))
	for i, b := range c.Bars {
		out[i] = b.Height
	}
	return out
}

// FormatPercentage renders a value with two decimals and a percent sign.
func FormatPercentage(value float64) string {
	return fmt.Sprintf("%.2f%%", value)
}
