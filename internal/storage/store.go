// Package storage keeps an SQLite audit trail of calibration runs: one row
// per run and one row per simulated trial.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/vaxsim/internal/calibration"
	"github.com/banshee-data/vaxsim/internal/model"
	"github.com/banshee-data/vaxsim/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("calibration run not found")

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusPartial  = "partial"
)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
}

// Store wraps the calibration database.
type Store struct {
	*sql.DB
	log monitoring.Logger
}

// Open opens (creating if needed) the database at path and applies all
// pending migrations.
func Open(path string, log monitoring.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection also keeps the
	// per-connection PRAGMAs in effect.
	db.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	s := &Store{DB: db, log: monitoring.OrNop(log)}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an already-migrated connection.
func NewWithDB(db *sql.DB, log monitoring.Logger) *Store {
	return &Store{DB: db, log: monitoring.OrNop(log)}
}

// MigrateUp runs all pending migrations up to the latest version.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// Closing m would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current schema version and dirty state.
func (s *Store) MigrateVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{log: s.log}
	return m, nil
}

type migrateLogger struct {
	log monitoring.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debugf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// RunRecord describes one calibration run.
type RunRecord struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     *time.Time
	Status         string
	Samples        int
	Epsilon        float64
	Seed           uint64
	SeedMode       string
	SamplingMode   string
	Bounds         calibration.Bounds
	Baseline       model.Params
	Total          int
	Accepted       int
	Failed         int
	AcceptanceRate float64
	Error          string
}

// RunSummary is written when a run ends.
type RunSummary struct {
	Total          int
	Accepted       int
	Failed         int
	AcceptanceRate float64
	Err            error
}

// SummaryOf builds a RunSummary from an engine result and its error.
func SummaryOf(res *calibration.Result, err error) RunSummary {
	sum := RunSummary{Err: err}
	if res != nil {
		sum.Total = res.Total
		sum.Accepted = len(res.Accepted)
		sum.Failed = res.Failed
		sum.AcceptanceRate = res.AcceptanceRate
	}
	return sum
}

type boundJSON struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// CreateRun inserts a new run and returns its id.
func (s *Store) CreateRun(ctx context.Context, r RunRecord) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	bounds := make(map[string]boundJSON, len(r.Bounds))
	for k, b := range r.Bounds {
		bounds[k] = boundJSON{Low: b.Low, High: b.High}
	}
	boundsJSON, err := json.Marshal(bounds)
	if err != nil {
		return "", fmt.Errorf("encode bounds: %w", err)
	}
	baselineJSON, err := marshalParams(r.Baseline)
	if err != nil {
		return "", fmt.Errorf("encode baseline: %w", err)
	}

	_, err = s.ExecContext(ctx, `
		INSERT INTO calibration_runs
			(run_id, started_at, status, samples, epsilon, seed, seed_mode, sampling_mode, bounds_json, baseline_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.Format(time.RFC3339Nano), StatusRunning, r.Samples, r.Epsilon,
		strconv.FormatUint(r.Seed, 10), r.SeedMode, r.SamplingMode, string(boundsJSON), baselineJSON,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	s.log.Infof("calibration run %s recorded", r.ID)
	return r.ID, nil
}

// FinishRun stores the final counters. A run that ended with an error is
// marked partial.
func (s *Store) FinishRun(ctx context.Context, id string, sum RunSummary) error {
	status := StatusComplete
	var errText sql.NullString
	if sum.Err != nil {
		status = StatusPartial
		errText = sql.NullString{String: sum.Err.Error(), Valid: true}
	}
	res, err := s.ExecContext(ctx, `
		UPDATE calibration_runs
		SET finished_at = ?, status = ?, total = ?, accepted = ?, failed = ?, acceptance_rate = ?, error = ?
		WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), status, sum.Total, sum.Accepted, sum.Failed,
		sum.AcceptanceRate, errText, id,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var (
		r                      RunRecord
		started, seed          string
		finished, errText      sql.NullString
		boundsJSON, baselineJS string
		rate                   sql.NullFloat64
	)
	err := s.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at, status, samples, epsilon, seed, seed_mode, sampling_mode,
		       bounds_json, baseline_json, total, accepted, failed, acceptance_rate, error
		FROM calibration_runs WHERE run_id = ?`, id,
	).Scan(&r.ID, &started, &finished, &r.Status, &r.Samples, &r.Epsilon, &seed, &r.SeedMode, &r.SamplingMode,
		&boundsJSON, &baselineJS, &r.Total, &r.Accepted, &r.Failed, &rate, &errText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", id, err)
	}

	if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		r.FinishedAt = &t
	}
	if r.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	var bounds map[string]boundJSON
	if err := json.Unmarshal([]byte(boundsJSON), &bounds); err != nil {
		return nil, fmt.Errorf("decode bounds: %w", err)
	}
	r.Bounds = make(calibration.Bounds, len(bounds))
	for k, b := range bounds {
		r.Bounds[k] = calibration.Bound{Low: b.Low, High: b.High}
	}
	if r.Baseline, err = unmarshalParams(baselineJS); err != nil {
		return nil, fmt.Errorf("decode baseline: %w", err)
	}
	r.AcceptanceRate = rate.Float64
	r.Error = errText.String
	return &r, nil
}

// TrialRecord is one stored trial.
type TrialRecord struct {
	RunID    string
	Index    int
	Seed     uint64
	Params   model.Params
	Distance float64 // NaN for failed trials
	Outcome  string
	Error    string
	Duration time.Duration
}

// RecordTrial stores one processed trial of run runID.
func (s *Store) RecordTrial(ctx context.Context, runID string, t calibration.Trial) error {
	paramsJSON, err := marshalParams(t.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	var distance sql.NullFloat64
	var errText sql.NullString
	if t.Err != nil {
		errText = sql.NullString{String: t.Err.Error(), Valid: true}
	} else {
		distance = sql.NullFloat64{Float64: t.Distance, Valid: true}
	}
	_, err = s.ExecContext(ctx, `
		INSERT INTO calibration_trials
			(run_id, trial_index, seed, params_json, distance, outcome, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, t.Index, strconv.FormatUint(t.Seed, 10), paramsJSON, distance, t.Outcome(), errText,
		float64(t.Duration)/float64(time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("insert trial %d: %w", t.Index, err)
	}
	return nil
}

// Recorder returns a calibration.Recorder that writes to run runID.
func (s *Store) Recorder(runID string) calibration.Recorder {
	return &runRecorder{store: s, runID: runID}
}

type runRecorder struct {
	store *Store
	runID string
}

func (r *runRecorder) RecordTrial(ctx context.Context, t calibration.Trial) error {
	return r.store.RecordTrial(ctx, r.runID, t)
}

// ListTrials returns every trial of a run in index order.
func (s *Store) ListTrials(ctx context.Context, runID string) ([]TrialRecord, error) {
	return s.queryTrials(ctx, `
		SELECT run_id, trial_index, seed, params_json, distance, outcome, error, duration_ms
		FROM calibration_trials WHERE run_id = ? ORDER BY trial_index`, runID)
}

// AcceptedParams returns the accepted parameter vectors of a run in index
// order.
func (s *Store) AcceptedParams(ctx context.Context, runID string) ([]model.Params, error) {
	trials, err := s.queryTrials(ctx, `
		SELECT run_id, trial_index, seed, params_json, distance, outcome, error, duration_ms
		FROM calibration_trials WHERE run_id = ? AND outcome = 'accepted' ORDER BY trial_index`, runID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Params, len(trials))
	for i, t := range trials {
		out[i] = t.Params
	}
	return out, nil
}

func (s *Store) queryTrials(ctx context.Context, query string, args ...interface{}) ([]TrialRecord, error) {
	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	var out []TrialRecord
	for rows.Next() {
		var (
			t          TrialRecord
			seed, pj   string
			distance   sql.NullFloat64
			errText    sql.NullString
			durationMs float64
		)
		if err := rows.Scan(&t.RunID, &t.Index, &seed, &pj, &distance, &t.Outcome, &errText, &durationMs); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		if t.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
			return nil, fmt.Errorf("parse seed of trial %d: %w", t.Index, err)
		}
		if t.Params, err = unmarshalParams(pj); err != nil {
			return nil, fmt.Errorf("decode params of trial %d: %w", t.Index, err)
		}
		t.Distance = math.NaN()
		if distance.Valid {
			t.Distance = distance.Float64
		}
		t.Error = errText.String
		t.Duration = time.Duration(durationMs * float64(time.Millisecond))
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trials: %w", err)
	}
	return out, nil
}

func marshalParams(p model.Params) (string, error) {
	if p == nil {
		p = model.Params{}
	}
	b, err := json.Marshal(map[string]float64(p))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalParams(s string) (model.Params, error) {
	var m map[string]float64
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return model.Params(m), nil
}
