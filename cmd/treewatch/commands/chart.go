package commands

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// runSamples collects sparse (nodes, progress, ssg) observations of one run
// for charting.
type runSamples struct {
	labels   []string
	progress []opts.LineData
	ssg      []opts.LineData
}

func newRunSamples() *runSamples {
	return &runSamples{}
}

func (s *runSamples) add(nnodes int64, progress, ssg float64) {
	s.labels = append(s.labels, fmt.Sprintf("%d", nnodes))
	s.progress = append(s.progress, opts.LineData{Value: progress})
	s.ssg = append(s.ssg, opts.LineData{Value: ssg})
}

// renderRunChart writes an HTML line chart of the progress and subtree sum
// gap over the processed node count.
func renderRunChart(path string, samples *runSamples) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Search progress",
			Subtitle: "weighted leaf progress and subtree sum gap over processed nodes",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "nodes"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "value"}),
	)

	line.SetXAxis(samples.labels)
	line.AddSeries("progress", samples.progress)
	line.AddSeries("ssg", samples.ssg)

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	defer f.Close()

	return line.Render(f)
}
