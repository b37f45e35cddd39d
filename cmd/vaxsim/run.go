package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/banshee-data/vaxsim/internal/analysis"
	"github.com/banshee-data/vaxsim/internal/model"
	"github.com/banshee-data/vaxsim/internal/report"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate one scenario under one or more vaccination strategies",
	Long: `Simulate one scenario from the parameter file.

Examples:
  vaxsim run --scenario baseline
  vaxsim run --scenario scenario_1a --model-type random,targeted --charts
  vaxsim run --scenario scenario_2 --diagnosis=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("scenario")
		modelType, _ := cmd.Flags().GetString("model-type")
		diagnosis, _ := cmd.Flags().GetBool("diagnosis")
		charts, _ := cmd.Flags().GetBool("charts")

		strategies, err := parseStrategies(modelType)
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
		sc, err := pf.Scenario(name)
		if err != nil {
			return err
		}

		out := cli.settings.OutputDir
		for _, strategy := range strategies {
			log := cli.log.With("scenario", sc.Name, "strategy", string(strategy))
			opts, err := scenarioOptions(sc, strategy, ranker, cli.settings.Seed)
			if err != nil {
				return err
			}
			opts.Diagnosis = diagnosis

			traj, err := model.Simulate(sc.Params, opts)
			if err != nil {
				log.Errorf("simulation failed: %v", err)
				continue
			}
			log.Infof("total infections %.0f, min protected fraction %.4f",
				analysis.TotalInfections(traj.I), analysis.MinProtectedFraction(traj))

			base := report.FileName(sc.Name, string(strategy))
			path, err := report.WriteFile(out, base+".csv", func(w io.Writer) error {
				return report.WriteTrajectory(w, traj)
			})
			if err != nil {
				return err
			}
			log.Infof("trajectory written to %s", path)

			if charts {
				path, err := report.WriteFile(out, base+".html", func(w io.Writer) error {
					return report.RenderPage(w, base, report.TrajectoryChart(traj))
				})
				if err != nil {
					return err
				}
				log.Infof("chart written to %s", path)
			}
			if diagnosis {
				paths, err := report.WriteDecayPNGs(out, base, traj.Diagnostics, report.DefaultBins)
				if err != nil {
					log.Warnf("decay plots: %v", err)
				}
				for _, p := range paths {
					log.Infof("decay plot written to %s", p)
				}
			}
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("scenario", "baseline", "scenario block to simulate")
	runCmd.Flags().String("model-type", "random", "comma-separated vaccination strategies: random, targeted")
	runCmd.Flags().Bool("diagnosis", true, "sample immunity decay times at the start and end of the run")
	runCmd.Flags().Bool("charts", false, "write an HTML chart of the trajectory")
	addRankerFlags(runCmd)
}
