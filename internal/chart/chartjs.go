// Package chart renders a core.ChartSpec: as a Chart.js configuration for
// the dashboard page, or as a PNG image.
package chart

import (
	"math"

	"optreturns/internal/core"
)

// BarColor is the fill used for every bar.
const BarColor = "skyblue"

type (
	// ChartJS is a Chart.js bar chart configuration. Annotations carry the
	// text drawn above each bar by the page's label plugin.
	ChartJS struct {
		Type    string  `json:"type"`
		Data    Data    `json:"data"`
		Options Options `json:"options"`
	}

	Data struct {
		Labels   []string  `json:"labels"`
		Datasets []Dataset `json:"datasets"`
	}

	// Dataset values are pointers so non-finite heights encode as null.
	Dataset struct {
		Label           string     `json:"label"`
		Data            []*float64 `json:"data"`
		Annotations     []string   `json:"annotations"`
		BackgroundColor string     `json:"backgroundColor"`
	}

	Options struct {
		Responsive bool    `json:"responsive"`
		Plugins    Plugins `json:"plugins"`
		Scales     Scales  `json:"scales"`
	}

	Plugins struct {
		Title  Title  `json:"title"`
		Legend Legend `json:"legend"`
	}

	Title struct {
		Display bool   `json:"display"`
		Text    string `json:"text"`
	}

	Legend struct {
		Display bool `json:"display"`
	}

	Scales struct {
		X Axis `json:"x"`
		Y Axis `json:"y"`
	}

	Axis struct {
		Title Title      `json:"title"`
		Ticks *AxisTicks `json:"ticks,omitempty"`
	}

	AxisTicks struct {
		MinRotation float64 `json:"minRotation"`
		MaxRotation float64 `json:"maxRotation"`
	}
)

// ChartJSConfig converts a chart spec into a Chart.js bar configuration.
func ChartJSConfig(spec core.ChartSpec) ChartJS {
	values := make([]*float64, len(spec.Bars))
	annotations := make([]string, len(spec.Bars))
	for i, b := range spec.Bars {
		if !math.IsNaN(b.Height) && !math.IsInf(b.Height, 0) {
			h := b.Height
			values[i] = &h
		}
		annotations[i] = b.Text
	}

	return ChartJS{
		Type: "bar",
		Data: Data{
			Labels: spec.Labels(),
			Datasets: []Dataset{{
				Label:           spec.YLabel,
				Data:            values,
				Annotations:     annotations,
				BackgroundColor: BarColor,
			}},
		},
		Options: Options{
			Responsive: true,
			Plugins: Plugins{
				Title:  Title{Display: true, Text: spec.Title},
				Legend: Legend{Display: false},
			},
			Scales: Scales{
				X: Axis{
					Title: Title{Display: true, Text: spec.XLabel},
					Ticks: &AxisTicks{MinRotation: spec.XTickRotation, MaxRotation: spec.XTickRotation},
				},
				Y: Axis{Title: Title{Display: true, Text: spec.YLabel}},
			},
		},
	}
}
