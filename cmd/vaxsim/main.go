// Command vaxsim runs the SIRSV vaccination model: single scenarios,
// scenario comparisons, parameter sweeps and ABC calibration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/vaxsim/internal/config"
	"github.com/banshee-data/vaxsim/internal/model"
	"github.com/banshee-data/vaxsim/internal/monitoring"
	"github.com/banshee-data/vaxsim/internal/version"
)

// app is the state shared by the subcommands once flags are parsed.
type app struct {
	settings *config.Settings
	log      monitoring.Logger
	closeLog func() error
}

var cli app

var rootCmd = &cobra.Command{
	Use:           "vaxsim",
	Short:         "Stochastic SIRSV vaccination model with ABC calibration",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		settingsFile, _ := cmd.Flags().GetString("config")
		s, err := config.LoadSettings(cmd.Flags(), settingsFile)
		if err != nil {
			return err
		}
		log, closeLog, err := monitoring.New(monitoring.Options{
			Level:  s.LogLevel,
			Format: s.LogFormat,
			File:   s.LogFile,
		})
		if err != nil {
			return fmt.Errorf("failed to initialise logger: %w", err)
		}
		cli = app{settings: s, log: log, closeLog: closeLog}
		logSystemInfo(log)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if cli.closeLog != nil {
			return cli.closeLog()
		}
		return nil
	},
}

func logSystemInfo(log monitoring.Logger) {
	log.With(
		"version", version.String(),
		"go", runtime.Version(),
		"os", runtime.GOOS,
		"arch", runtime.GOARCH,
		"cpus", runtime.NumCPU(),
	).Debugf("system info")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	def := config.DefaultSettings()
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "settings file (yaml, toml or json)")
	pf.String("env-file", ".env", "dotenv file loaded before reading VAXSIM_* variables")
	pf.String("params", def.ParamsPath, "model parameter file")
	pf.String("output", def.OutputDir, "output directory")
	pf.String("log-level", def.LogLevel, "log level: debug, info, warn, error")
	pf.String("log-format", def.LogFormat, "log format: console or json")
	pf.String("log-file", def.LogFile, "also write logs to this file")
	pf.Uint64("seed", def.Seed, "random seed")

	rootCmd.AddCommand(versionCmd, runCmd, scenariosCmd, sweepCmd, calibrateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadParams reads the parameter file named by the settings.
func (a *app) loadParams() (*config.ParamsFile, error) {
	pf, err := config.LoadParamsFile(a.settings.ParamsPath)
	if err != nil {
		return nil, err
	}
	a.log.Debugf("loaded %d scenarios from %s", len(pf.Scenarios), a.settings.ParamsPath)
	return pf, nil
}

// parseStrategies parses a comma-separated --model-type value.
func parseStrategies(s string) ([]model.Strategy, error) {
	var out []model.Strategy
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		st, err := model.ParseStrategy(part)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if len(out) == 0 {
		out = []model.Strategy{model.StrategyRandom}
	}
	return out, nil
}

// parseRanker maps a --ranker name to a targeted-vaccination ranking rule.
func parseRanker(name string, threshold float64) (model.Ranker, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "susceptible_first":
		return model.SusceptibleFirst, nil
	case "infection_pressure":
		return model.InfectionPressure{Threshold: threshold}, nil
	}
	return nil, fmt.Errorf("%w: unknown ranker %q", model.ErrConfig, name)
}

// scenarioOptions builds model options for sc. The scenario's own strategy
// wins over the command-line one.
func scenarioOptions(sc *config.Scenario, strategy model.Strategy, ranker model.Ranker, seed uint64) (model.Options, error) {
	opts := sc.Options()
	opts.Strategy = strategy
	if sc.Strategy != "" {
		st, err := model.ParseStrategy(sc.Strategy)
		if err != nil {
			return opts, err
		}
		opts.Strategy = st
	}
	opts.Ranker = ranker
	opts.Seed = model.Seed(seed)
	return opts, nil
}

func addRankerFlags(cmd *cobra.Command) {
	cmd.Flags().String("ranker", "susceptible_first", "targeted ranking rule: susceptible_first or infection_pressure")
	cmd.Flags().Float64("pressure-threshold", 0.01, "prevalence at which infection_pressure switches to susceptibles")
}

func rankerFromFlags(cmd *cobra.Command) (model.Ranker, error) {
	name, _ := cmd.Flags().GetString("ranker")
	thr, _ := cmd.Flags().GetFloat64("pressure-threshold")
	return parseRanker(name, thr)
}
