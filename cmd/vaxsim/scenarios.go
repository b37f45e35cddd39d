package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/banshee-data/vaxsim/internal/analysis"
	"github.com/banshee-data/vaxsim/internal/config"
	"github.com/banshee-data/vaxsim/internal/model"
	"github.com/banshee-data/vaxsim/internal/report"
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Compare every scenario against the baseline",
	RunE: func(cmd *cobra.Command, args []string) error {
		modelType, _ := cmd.Flags().GetString("model-type")
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

		seed := cli.settings.Seed
		sim := func(sc *config.Scenario) (*model.Trajectory, error) {
			opts, err := scenarioOptions(sc, strategy, ranker, seed)
			if err != nil {
				return nil, err
			}
			return model.Simulate(sc.Params, opts)
		}
		results := analysis.AnalyseScenarios(sim, pf.OrderedScenarios(), cli.log)

		out := cli.settings.OutputDir
		csvPath, err := report.WriteFile(out, report.ScenarioAnalysisFile, func(w io.Writer) error {
			return report.WriteScenarioResults(w, results)
		})
		if err != nil {
			return err
		}
		texPath, err := report.WriteFile(out, report.ScenarioTableFile, func(w io.Writer) error {
			return report.WriteScenarioLaTeX(w, results)
		})
		if err != nil {
			return err
		}
		cli.log.Infof("scenario analysis written to %s and %s", csvPath, texPath)
		return nil
	},
}

func init() {
	scenariosCmd.Flags().String("model-type", "random", "vaccination strategy for scenarios that do not set one")
	addRankerFlags(scenariosCmd)
}
