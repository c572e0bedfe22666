// Package plot renders the NVM side-channel trace to a standalone HTML
// page.
package plot

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteLeakageHTML draws the Hamming-weight trace as a line chart over
// simulated time and writes the page to path.
func WriteLeakageHTML(path string, times []float64, weights []int) error {
	if len(times) != len(weights) {
		return fmt.Errorf("plot: %d times vs %d weights", len(times), len(weights))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "NVM checkpoint leakage",
			Subtitle: "Hamming weight of each write vs. simulated time",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "simulated time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Hamming weight"}),
		charts.WithDataZoomOpts(
			opts.DataZoom{Type: "inside"},
			opts.DataZoom{Type: "slider"},
		),
	)

	xs := make([]string, len(times))
	ys := make([]opts.LineData, len(weights))
	for i := range times {
		xs[i] = fmt.Sprintf("%.1f", times[i])
		ys[i] = opts.LineData{Value: weights[i]}
	}
	line.SetXAxis(xs).AddSeries("hamming weight", ys,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))

	page := components.NewPage().SetPageTitle("Tessera leakage trace")
	page.AddCharts(line)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("plot: create %s: %w", path, err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("plot: render: %w", err)
	}
	return nil
}
