package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/banshee-data/vaxsim/internal/calibration"
	"github.com/banshee-data/vaxsim/internal/config"
	"github.com/banshee-data/vaxsim/internal/metrics"
	"github.com/banshee-data/vaxsim/internal/model"
	"github.com/banshee-data/vaxsim/internal/monitoring"
	"github.com/banshee-data/vaxsim/internal/report"
	"github.com/banshee-data/vaxsim/internal/storage"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Fit the free parameters to observed serology with rejection ABC",
	Long: `Draw parameter vectors from a Latin hypercube over the bounds of the
parameter file, simulate each one from the baseline, and keep those whose
distance to the observed seroprevalence and DIVA series is below epsilon.

Examples:
  vaxsim calibrate --data data.csv --samples 1000 --epsilon 0.2
  vaxsim calibrate --db output/calibration.db --metrics-addr :9090`,
	RunE: func(cmd *cobra.Command, args []string) error {
		modelType, _ := cmd.Flags().GetString("model-type")
		charts, _ := cmd.Flags().GetBool("charts")
		strategy, err := model.ParseStrategy(modelType)
		if err != nil {
			return err
		}
		ranker, err := rankerFromFlags(cmd)
		if err != nil {
			return err
		}
		return runCalibration(cmd.Context(), cli.settings, cli.log, calibrationRun{
			strategy: strategy,
			ranker:   ranker,
			charts:   charts,
		})
	},
}

func init() {
	def := config.DefaultSettings()
	f := calibrateCmd.Flags()
	f.String("data", def.DataPath, "observed serology CSV (date, sero, diva)")
	f.String("db", def.DBPath, "SQLite audit database; empty disables it")
	f.Int("samples", def.Samples, "accepted samples to collect")
	f.Float64("epsilon", def.Epsilon, "acceptance threshold on the distance")
	f.Int("workers", def.Workers, "concurrent simulations (0 = number of CPUs)")
	f.Int("batch-size", def.BatchSize, "trials per batch")
	f.Int("max-simulations", def.MaxSimulations, "simulation budget (0 = unlimited)")
	f.String("seed-mode", def.SeedMode, "trial seeding: shared or per_trial")
	f.String("sampling-mode", def.SamplingMode, "prior sampling: per_call or design")
	f.String("metrics-addr", def.MetricsAddr, "serve Prometheus metrics on this address")
	f.String("model-type", "random", "vaccination strategy")
	f.Bool("charts", true, "write HTML and PNG charts of the posterior")
	addRankerFlags(calibrateCmd)
}

type calibrationRun struct {
	strategy model.Strategy
	ranker   model.Ranker
	charts   bool
}

// logProgress reports every tenth of the target.
type logProgress struct {
	log  monitoring.Logger
	mu   sync.Mutex
	last int
}

func (p *logProgress) Advance(accepted, target int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	step := max(target/10, 1)
	if accepted/step > p.last/step || accepted == target {
		p.log.Infof("accepted %d/%d samples", accepted, target)
	}
	p.last = accepted
}

func runCalibration(ctx context.Context, s *config.Settings, log monitoring.Logger, run calibrationRun) error {
	pf, err := config.LoadParamsFile(s.ParamsPath)
	if err != nil {
		return err
	}
	if len(pf.Bounds) == 0 {
		return fmt.Errorf("%w: %s has no bounds to calibrate", model.ErrConfig, s.ParamsPath)
	}
	observed, err := calibration.LoadObservedFile(s.DataPath)
	if err != nil {
		return err
	}
	log.Infof("loaded %d observations from %s", observed.Len(), s.DataPath)

	samplingMode, err := calibration.ParseSamplingMode(s.SamplingMode)
	if err != nil {
		return err
	}
	prior, err := calibration.NewLHSSampler(pf.Bounds, pf.Baseline.Params, samplingMode, s.BatchSize, s.Seed)
	if err != nil {
		return err
	}

	cfg := s.CalibrationConfig()
	cfg.Options, err = scenarioOptions(pf.Baseline, run.strategy, run.ranker, s.Seed)
	if err != nil {
		return err
	}

	opts := []calibration.Option{
		calibration.WithLogger(log),
		calibration.WithProgress(&logProgress{log: log}),
	}

	reg := prometheus.NewRegistry()
	opts = append(opts, calibration.WithMetrics(metrics.NewCalibration(reg)))
	if s.MetricsAddr != "" {
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.Serve(srvCtx, s.MetricsAddr, reg, log); err != nil {
				log.Errorf("metrics server: %v", err)
			}
		}()
	}

	var (
		store *storage.Store
		runID string
	)
	if s.DBPath != "" {
		store, err = storage.Open(s.DBPath, log)
		if err != nil {
			return err
		}
		defer store.Close()
		runID, err = store.CreateRun(ctx, storage.RunRecord{
			Samples:      cfg.Samples,
			Epsilon:      cfg.Epsilon,
			Seed:         cfg.Seed,
			SeedMode:     string(cfg.SeedMode),
			SamplingMode: string(samplingMode),
			Bounds:       pf.Bounds,
			Baseline:     pf.Baseline.Params,
		})
		if err != nil {
			return err
		}
		log = log.With("run_id", runID)
		opts = append(opts, calibration.WithRecorder(store.Recorder(runID)), calibration.WithLogger(log))
	}

	engine, err := calibration.NewEngine(cfg, observed, prior, opts...)
	if err != nil {
		return err
	}
	res, runErr := engine.Run(ctx)

	if store != nil {
		// The run context may already be cancelled.
		if err := store.FinishRun(context.Background(), runID, storage.SummaryOf(res, runErr)); err != nil {
			log.Errorf("failed to finish run record: %v", err)
		}
	}
	if res != nil {
		if err := writeCalibrationOutputs(s.OutputDir, prior.Names(), res, run.charts, log); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

func writeCalibrationOutputs(out string, names []string, res *calibration.Result, charts bool, log monitoring.Logger) error {
	sum := res.Summary
	log.Infof("accepted %d of %d simulations (rate %.4f, %d failed); distance mean %.4g median %.4g",
		len(res.Accepted), res.Total, res.AcceptanceRate, res.Failed, sum.Mean, sum.Median)

	path, err := report.WriteFile(out, report.AcceptedParamsFile, func(w io.Writer) error {
		return report.WriteAcceptedParams(w, names, res)
	})
	if err != nil {
		return err
	}
	log.Infof("accepted parameters written to %s", path)

	if !charts || len(res.Accepted) == 0 {
		return nil
	}
	path, err = report.WriteFile(out, report.CalibrationChartsFile, func(w io.Writer) error {
		return report.RenderPage(w, "ABC calibration", report.CalibrationCharts(res, names, report.DefaultBins)...)
	})
	if err != nil {
		return err
	}
	log.Infof("calibration charts written to %s", path)

	paths, err := report.WritePosteriorPNGs(out, names, res.Table(names), report.DefaultBins)
	if err != nil {
		return err
	}
	log.Infof("%d posterior plots written to %s", len(paths), out)
	return nil
}
