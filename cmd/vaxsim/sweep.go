package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/banshee-data/vaxsim/internal/analysis"
	"github.com/banshee-data/vaxsim/internal/model"
	"github.com/banshee-data/vaxsim/internal/report"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Sweep two parameters and evaluate a herd-immunity metric",
	Long: `Sweep two parameters over a grid (or its diagonal) starting from the
sweep block of the parameter file, or the baseline when there is none.

Ranges are comma-separated values, min:max:step, or linspace:min:max:n.

Examples:
  vaxsim sweep --metric auc
  vaxsim sweep --x-param vax_rate --x-range linspace:0.003:0.033334:20 \
               --y-param vax_period --y-range 30:330:30 --charts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		xName, _ := cmd.Flags().GetString("x-param")
		xRange, _ := cmd.Flags().GetString("x-range")
		yName, _ := cmd.Flags().GetString("y-param")
		yRange, _ := cmd.Flags().GetString("y-range")
		diagonal, _ := cmd.Flags().GetBool("diagonal")
		metricName, _ := cmd.Flags().GetString("metric")
		modelType, _ := cmd.Flags().GetString("model-type")
		charts, _ := cmd.Flags().GetBool("charts")

		xs, err := analysis.ParseParamList(xRange)
		if err != nil {
			return fmt.Errorf("--x-range: %w", err)
		}
		ys, err := analysis.ParseParamList(yRange)
		if err != nil {
			return fmt.Errorf("--y-range: %w", err)
		}
		if len(xs) == 0 || len(ys) == 0 {
			return fmt.Errorf("%w: both sweep ranges must be non-empty", model.ErrConfig)
		}
		strategy, err := model.ParseStrategy(modelType)
		if err != nil {
			return err
		}
		ranker, err := rankerFromFlags(cmd)
		if err != nil {
			return err
		}
		pf, err := cli.loadParams()
		if err != nil {
			return err
		}
		sc := pf.Baseline
		if pf.Sweep != nil {
			sc = pf.Sweep
		}
		opts, err := scenarioOptions(sc, strategy, ranker, cli.settings.Seed)
		if err != nil {
			return err
		}

		spec := analysis.SweepSpec{
			XName: xName, XRange: xs,
			YName: yName, YRange: ys,
			Diagonal: diagonal,
			Metric:   analysis.MetricByName(metricName),
		}
		sim := func(p model.Params) (*model.Trajectory, error) {
			return model.Simulate(p, opts)
		}
		progress := func(done, total int) {
			if done%10 == 0 || done == total {
				cli.log.Debugf("sweep %d/%d", done, total)
			}
		}
		res := analysis.RunParameterSweep(sim, sc.Params, spec, cli.log, progress)

		out := cli.settings.OutputDir
		base := report.FileName("sweep", xName, yName, res.Metric)
		path, err := report.WriteFile(out, base+".csv", func(w io.Writer) error {
			return report.WriteSweep(w, res)
		})
		if err != nil {
			return err
		}
		cli.log.Infof("sweep results written to %s", path)

		if charts {
			path, err := report.WriteFile(out, base+".html", func(w io.Writer) error {
				return report.RenderPage(w, base, report.SweepHeatmap(res, xs, ys))
			})
			if err != nil {
				return err
			}
			cli.log.Infof("sweep heatmap written to %s", path)
		}
		return nil
	},
}

func init() {
	sweepCmd.Flags().String("x-param", model.ParamVaxRate, "first swept parameter")
	sweepCmd.Flags().String("x-range", "linspace:0.003:0.033334:20", "values of the first parameter")
	sweepCmd.Flags().String("y-param", model.ParamVaxPeriod, "second swept parameter")
	sweepCmd.Flags().String("y-range", "30:330:30", "values of the second parameter")
	sweepCmd.Flags().Bool("diagonal", false, "evaluate only the element-wise minimum of the two ranges")
	sweepCmd.Flags().String("metric", "equilibrium", "metric: auc or equilibrium")
	sweepCmd.Flags().String("model-type", "random", "vaccination strategy")
	sweepCmd.Flags().Bool("charts", false, "write an HTML heatmap")
	addRankerFlags(sweepCmd)
}
