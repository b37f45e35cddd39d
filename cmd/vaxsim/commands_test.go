package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/banshee-data/vaxsim/internal/config"
	"github.com/banshee-data/vaxsim/internal/model"
	"github.com/banshee-data/vaxsim/internal/monitoring"
	"github.com/banshee-data/vaxsim/internal/storage"
)

const testParams = `
bounds:
  vax_rate: [0.01, 0.02]
baseline:
  S0: 900
  I0: 10
  days: 60
scenario_1a:
  S0: 900
  I0: 10
  days: 60
  vax_rate: 0.01
  vax_period: 30
  Remarks: monthly
scenario_bad:
  S0: 900
  I0: 10
  days: 60
  beta: -1
sweep:
  S0: 900
  I0: 10
  days: 60
`

type fixture struct {
	dir    string
	params string
	data   string
	out    string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:    dir,
		params: filepath.Join(dir, "params.yaml"),
		data:   filepath.Join(dir, "data.csv"),
		out:    filepath.Join(dir, "output"),
	}
	require.NoError(t, os.WriteFile(f.params, []byte(testParams), 0o644))

	var data strings.Builder
	data.WriteString("date,sero,diva\n")
	for d := 1; d <= 5; d++ {
		fmt.Fprintf(&data, "2020-01-%02d,0.05,0.02\n", d)
	}
	require.NoError(t, os.WriteFile(f.data, []byte(data.String()), 0o644))
	return f
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "vaxsim "))
}

func TestRunCommand(t *testing.T) {
	f := newFixture(t)
	_, err := execute(t, "run", "--params", f.params, "--output", f.out, "--log-level", "error",
		"--scenario", "scenario_1a", "--model-type", "random,targeted", "--charts", "--diagnosis")
	require.NoError(t, err)

	rows := readCSV(t, filepath.Join(f.out, "scenario_1a_random.csv"))
	assert.Equal(t, []string{"day", "S", "I", "R", "V"}, rows[0])
	assert.Len(t, rows, 61)
	assert.FileExists(t, filepath.Join(f.out, "scenario_1a_targeted.csv"))
	assert.FileExists(t, filepath.Join(f.out, "scenario_1a_random.html"))
}

func TestRunCommand_DiagnosisByDefault(t *testing.T) {
	f := newFixture(t)
	_, err := execute(t, "run", "--params", f.params, "--output", f.out, "--log-level", "error",
		"--scenario", "baseline", "--model-type", "random", "--charts=false")
	require.NoError(t, err)

	assert.Equal(t, "true", runCmd.Flags().Lookup("diagnosis").DefValue)
	assert.FileExists(t, filepath.Join(f.out, "baseline_random.csv"))
}

func TestLogSystemInfo(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logSystemInfo(monitoring.FromZap(zap.New(core)))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, runtime.GOOS, fields["os"])
	assert.Equal(t, runtime.Version(), fields["go"])
	assert.Contains(t, fields["version"], "vaxsim")
}

func TestRunCommand_UnknownScenario(t *testing.T) {
	f := newFixture(t)
	_, err := execute(t, "run", "--params", f.params, "--output", f.out, "--log-level", "error",
		"--scenario", "scenario_9", "--model-type", "random", "--charts=false", "--diagnosis=false")
	assert.ErrorIs(t, err, model.ErrConfig)
}

func TestScenariosCommand(t *testing.T) {
	f := newFixture(t)
	_, err := execute(t, "scenarios", "--params", f.params, "--output", f.out, "--log-level", "error")
	require.NoError(t, err)

	rows := readCSV(t, filepath.Join(f.out, "scenario_analysis.csv"))
	// The invalid scenario is logged and skipped.
	require.Len(t, rows, 3)
	assert.Equal(t, "baseline", rows[1][0])
	assert.Equal(t, "scenario_1a", rows[2][0])
	assert.Equal(t, "monthly", rows[2][4])
	assert.FileExists(t, filepath.Join(f.out, "scenario_analysis.tex"))
}

func TestSweepCommand(t *testing.T) {
	f := newFixture(t)
	_, err := execute(t, "sweep", "--params", f.params, "--output", f.out, "--log-level", "error",
		"--x-range", "0.01,0.02", "--y-range", "30:60:30", "--metric", "auc", "--charts")
	require.NoError(t, err)

	rows := readCSV(t, filepath.Join(f.out, "sweep_vax_rate_vax_period_auc.csv"))
	assert.Equal(t, []string{"vax_rate", "vax_period", "auc"}, rows[0])
	assert.Len(t, rows, 5)
	assert.FileExists(t, filepath.Join(f.out, "sweep_vax_rate_vax_period_auc.html"))
}

func TestSweepCommand_BadRange(t *testing.T) {
	f := newFixture(t)
	_, err := execute(t, "sweep", "--params", f.params, "--output", f.out, "--log-level", "error",
		"--x-range", "1:x:1", "--y-range", "30:60:30")
	assert.Error(t, err)
}

func TestCalibrateCommand(t *testing.T) {
	f := newFixture(t)
	db := filepath.Join(f.dir, "calibration.db")
	_, err := execute(t, "calibrate", "--params", f.params, "--output", f.out, "--log-level", "error",
		"--data", f.data, "--db", db, "--samples", "4", "--epsilon", "10", "--seed", "7",
		"--workers", "2", "--batch-size", "3", "--max-simulations", "50", "--charts")
	require.NoError(t, err)

	rows := readCSV(t, filepath.Join(f.out, "accepted_params.csv"))
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"vax_rate", "distance"}, rows[0])
	assert.FileExists(t, filepath.Join(f.out, "calibration.html"))
	assert.FileExists(t, filepath.Join(f.out, "posterior_vax_rate.png"))

	store, err := storage.Open(db, monitoring.NewTestLogger(t))
	require.NoError(t, err)
	defer store.Close()
	var runID string
	require.NoError(t, store.QueryRow(`SELECT run_id FROM calibration_runs`).Scan(&runID))
	run, err := store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusComplete, run.Status)
	assert.Equal(t, 4, run.Accepted)
	assert.Equal(t, uint64(7), run.Seed)
}

func TestCalibrateCommand_MissingData(t *testing.T) {
	f := newFixture(t)
	_, err := execute(t, "calibrate", "--params", f.params, "--output", f.out, "--log-level", "error",
		"--data", filepath.Join(f.dir, "missing.csv"), "--db", "", "--samples", "2")
	assert.Error(t, err)
}

func TestParseStrategies(t *testing.T) {
	got, err := parseStrategies("random, targetted")
	require.NoError(t, err)
	assert.Equal(t, []model.Strategy{model.StrategyRandom, model.StrategyTargeted}, got)

	got, err = parseStrategies("")
	require.NoError(t, err)
	assert.Equal(t, []model.Strategy{model.StrategyRandom}, got)

	_, err = parseStrategies("random,bogus")
	assert.ErrorIs(t, err, model.ErrConfig)
}

func TestParseRanker(t *testing.T) {
	r, err := parseRanker("infection_pressure", 0.05)
	require.NoError(t, err)
	assert.Equal(t, model.InfectionPressure{Threshold: 0.05}, r)

	_, err = parseRanker("oldest_first", 0)
	assert.ErrorIs(t, err, model.ErrConfig)
}

func TestScenarioOptions(t *testing.T) {
	sc := &config.Scenario{Name: "scenario_1a", Strategy: "targeted"}
	opts, err := scenarioOptions(sc, model.StrategyRandom, model.SusceptibleFirst, 3)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyTargeted, opts.Strategy)
	assert.Equal(t, "scenario_1a", opts.Scenario)
	require.NotNil(t, opts.Seed)
	assert.Equal(t, uint64(3), *opts.Seed)
}

func TestLogProgress(t *testing.T) {
	p := &logProgress{log: monitoring.NewTestLogger(t)}
	for i := 1; i <= 20; i++ {
		p.Advance(i, 20)
	}
	assert.Equal(t, 20, p.last)
}
