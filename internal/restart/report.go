package restart

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/branchbound/treewatch/pkg/numeric"
)

// realString renders a value with the given number of decimal digits, or "-"
// when the value is undefined.
func realString(v float64, digits int) string {
	if !numeric.IsValid(v) {
		return "-"
	}

	return fmt.Sprintf("%.*f", digits, v)
}

// Report renders a tree size estimation report: the aggregate tree data
// followed by one row per estimator. A positive reportnum frames the report
// with numbered header and footer lines; 0 omits them.
func (c *Controller) Report(reportnum int) string {
	td := c.treeData

	var b strings.Builder

	if reportnum > 0 {
		fmt.Fprintf(&b, "Report %d\n", reportnum)
	}

	fmt.Fprintf(&b, "Tree Data: %s nodes (%s visited, %s inner, %s leaves, %s open), progress: %.4f\n",
		humanize.Comma(td.NNodes()),
		humanize.Comma(td.NVisited()),
		humanize.Comma(td.NInner()),
		humanize.Comma(td.NLeaves()),
		humanize.Comma(td.NOpen()),
		td.Progress())

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"estimator", "estim", "value", "trend", "resolution", "smooth"})

	tw.AppendRow(table.Row{"wbe", realString(c.backtrack.Estimate(), 0), "-", "-", "-", "-"})
	tw.AppendRow(table.Row{"tree profile", realString(c.solver.EstimateTreeProfile(), 0), "-", "-", "-", "-"})

	for _, ts := range c.allSeries {
		tw.AppendRow(table.Row{
			ts.Name(),
			realString(ts.Estimate(td), 0),
			realString(ts.Current(), 5),
			realString(ts.Trend(), 5),
			ts.Resolution(),
			realString(ts.SmoothEstimation(), 0),
		})
	}

	b.WriteString(tw.Render())
	b.WriteByte('\n')

	if reportnum > 0 {
		fmt.Fprintf(&b, "End of Report %d\n", reportnum)
	}

	return b.String()
}

// CompletedString renders the completion measure as a percent column, or
// "unknown" while too little progress has been made.
func (c *Controller) CompletedString() string {
	completed := c.Completed()

	if c.treeData.Progress() < minReportableProgress || completed <= 0.0 {
		return "unknown"
	}

	return fmt.Sprintf("%.2f%%", 100.0*completed)
}
