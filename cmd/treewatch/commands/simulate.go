// Package commands implements the treewatch CLI subcommands.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/branchbound/treewatch/internal/engine"
	"github.com/branchbound/treewatch/internal/restart"
	"github.com/branchbound/treewatch/internal/sim"
	"github.com/branchbound/treewatch/pkg/config"
	"github.com/branchbound/treewatch/pkg/observability"
)

const chartSampleStride = 64

// NewSimulateCommand creates the simulate subcommand. It runs the restart
// controller against a synthetic branch-and-bound search and prints the
// resulting estimates.
func NewSimulateCommand(verbose, quiet *bool) *cobra.Command {
	var (
		configPath string
		chartPath  string

		seed      uint64
		maxDepth  int
		nodeLimit int64

		policy          string
		forecastMethod  string
		progressMeasure string
		windowSize      int
		minNodes        int64
		restartLimit    int
		factor          float64
		useAcceleration bool
		printReports    bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the controller against a synthetic branch-and-bound search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			flags := cmd.Flags()
			if flags.Changed("policy") {
				cfg.Policy = policy
			}

			if flags.Changed("forecast") {
				cfg.Forecast = forecastMethod
			}

			if flags.Changed("progress-measure") {
				cfg.ProgressMeasure = progressMeasure
			}

			if flags.Changed("window-size") {
				cfg.WindowSize = windowSize
			}

			if flags.Changed("min-nodes") {
				cfg.MinNodes = minNodes
			}

			if flags.Changed("restart-limit") {
				cfg.RestartLimit = restartLimit
			}

			if flags.Changed("factor") {
				cfg.Estimation.Factor = factor
			}

			if flags.Changed("use-acceleration") {
				cfg.UseAcceleration = useAcceleration
			}

			if flags.Changed("reports") {
				cfg.PrintReports = printReports
			}

			opts := sim.DefaultOptions()
			opts.Seed = seed
			opts.MaxDepth = maxDepth
			opts.NodeLimit = nodeLimit

			return runSimulate(*cfg, opts, chartPath, *verbose, *quiet)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a treewatch config file")
	cmd.Flags().StringVar(&chartPath, "chart", "", "write an HTML chart of the run to this file")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed of the synthetic search")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 14, "maximum depth of the synthetic tree")
	cmd.Flags().Int64Var(&nodeLimit, "node-limit", 50_000, "stop after this many nodes (0 = unlimited)")
	cmd.Flags().StringVar(&policy, "policy", config.DefaultPolicy, "restart policy: n(ever), a(lways), e(stimation), p(rogress)")
	cmd.Flags().StringVar(&forecastMethod, "forecast", config.DefaultForecast, "forecast method: b(acktrack), l(inear), w(indow)")
	cmd.Flags().StringVar(&progressMeasure, "progress-measure", config.DefaultProgressMeasure, "progress measure: g(ap), u(niform), r(atio), f(ixed)")
	cmd.Flags().IntVar(&windowSize, "window-size", config.DefaultWindowSize, "sample window of the window forecast")
	cmd.Flags().Int64Var(&minNodes, "min-nodes", config.DefaultMinNodes, "minimum nodes before a restart is considered")
	cmd.Flags().IntVar(&restartLimit, "restart-limit", config.DefaultRestartLimit, "maximum number of restarts (-1 = unlimited)")
	cmd.Flags().Float64Var(&factor, "factor", config.DefaultEstimationFactor, "estimate must exceed nodes by this factor")
	cmd.Flags().BoolVar(&useAcceleration, "use-acceleration", true, "use quadratic acceleration in the window forecast")
	cmd.Flags().BoolVar(&printReports, "reports", false, "log periodic estimation reports")

	return cmd
}

func logWriter(quiet bool) io.Writer {
	if quiet {
		return io.Discard
	}

	return os.Stderr
}

func logLevel(verbose bool) string {
	if verbose {
		return "debug"
	}

	return "info"
}

func runSimulate(cfg config.Config, opts sim.Options, chartPath string, verbose, quiet bool) error {
	logger := observability.NewLogger(logWriter(quiet), logLevel(verbose), observability.FormatText)

	solver := sim.New(opts)

	ctrl, err := restart.New(solver, cfg, restart.WithLogger(logger))
	if err != nil {
		return err
	}

	ctrl.OnSolveBegin()

	defer ctrl.OnSolveEnd()

	ctx := context.Background()
	samples := newRunSamples()

	nprocessed := solver.Run(func(node engine.Node, kind engine.EventKind, nchildren int) {
		ctrl.OnNodeEvent(ctx, node, kind, nchildren)

		if solver.NNodes()%chartSampleStride == 0 {
			samples.add(solver.NNodes(), ctrl.TreeData().Progress(), ctrl.TreeData().SSG().Value())
		}
	})

	if !quiet {
		printSummary(os.Stdout, solver, ctrl, nprocessed)
	}

	if chartPath != "" {
		if err := renderRunChart(chartPath, samples); err != nil {
			return fmt.Errorf("render chart: %w", err)
		}
	}

	return nil
}

func printSummary(w io.Writer, solver *sim.Solver, ctrl *restart.Controller, nprocessed int64) {
	headline := color.New(color.FgGreen, color.Bold)
	if solver.RestartRequested() {
		headline = color.New(color.FgYellow, color.Bold)
	}

	switch {
	case solver.RestartRequested():
		fmt.Fprintln(w, headline.Sprint("restart requested"))
	case solver.Solved():
		fmt.Fprintln(w, headline.Sprint("search completed"))
	default:
		fmt.Fprintln(w, headline.Sprint("node limit reached"))
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendRows([]table.Row{
		{"nodes processed", nprocessed},
		{"feasible leaves", solver.NFeasibleLeaves()},
		{"infeasible leaves", solver.NInfeasibleLeaves()},
		{"objlim leaves", solver.NObjlimLeaves()},
		{"restarts", ctrl.NRestartsPerformed()},
		{"completion", ctrl.CompletedString()},
		{"tree size estimate", fmt.Sprintf("%.0f", ctrl.TreeSizeEstimation())},
	})
	tw.Render()

	fmt.Fprint(w, ctrl.Report(0))
}
