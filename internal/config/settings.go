package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/banshee-data/vaxsim/internal/calibration"
	"github.com/banshee-data/vaxsim/internal/model"
)

// EnvPrefix prefixes every environment override, e.g. VAXSIM_SAMPLES.
const EnvPrefix = "VAXSIM"

// Settings are the run settings shared by the CLI commands. Precedence is
// flag, then environment, then settings file, then default.
type Settings struct {
	ParamsPath string `mapstructure:"params"`
	DataPath   string `mapstructure:"data"`
	OutputDir  string `mapstructure:"output"`
	DBPath     string `mapstructure:"db"`

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`
	LogFile   string `mapstructure:"log-file"`

	Samples        int     `mapstructure:"samples"`
	Epsilon        float64 `mapstructure:"epsilon"`
	Seed           uint64  `mapstructure:"seed"`
	Workers        int     `mapstructure:"workers"`
	BatchSize      int     `mapstructure:"batch-size"`
	MaxSimulations int     `mapstructure:"max-simulations"`
	SeedMode       string  `mapstructure:"seed-mode"`
	SamplingMode   string  `mapstructure:"sampling-mode"`

	MetricsAddr string `mapstructure:"metrics-addr"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		ParamsPath:   DefaultParamsPath,
		DataPath:     "data.csv",
		OutputDir:    "output",
		LogLevel:     "info",
		LogFormat:    "console",
		Samples:      calibration.DefaultSamples,
		Epsilon:      calibration.DefaultEpsilon,
		Seed:         calibration.DefaultSeed,
		BatchSize:    calibration.DefaultBatchSize,
		SeedMode:     string(calibration.SeedShared),
		SamplingMode: string(calibration.SamplingPerCall),
	}
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error; existing variables are not overwritten.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadSettings resolves Settings from flags, VAXSIM_* environment variables
// and an optional settings file (YAML, TOML or JSON, by extension).
func LoadSettings(flags *pflag.FlagSet, file string) (*Settings, error) {
	v := viper.New()
	def := DefaultSettings()
	v.SetDefault("params", def.ParamsPath)
	v.SetDefault("data", def.DataPath)
	v.SetDefault("output", def.OutputDir)
	v.SetDefault("db", def.DBPath)
	v.SetDefault("log-level", def.LogLevel)
	v.SetDefault("log-format", def.LogFormat)
	v.SetDefault("log-file", def.LogFile)
	v.SetDefault("samples", def.Samples)
	v.SetDefault("epsilon", def.Epsilon)
	v.SetDefault("seed", def.Seed)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("batch-size", def.BatchSize)
	v.SetDefault("max-simulations", def.MaxSimulations)
	v.SetDefault("seed-mode", def.SeedMode)
	v.SetDefault("sampling-mode", def.SamplingMode)
	v.SetDefault("metrics-addr", def.MetricsAddr)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read settings file: %w", err)
		}
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &s, nil
}

// Validate checks the calibration-related values.
func (s *Settings) Validate() error {
	if s.Samples < 1 {
		return fmt.Errorf("%w: samples must be positive, got %d", model.ErrConfig, s.Samples)
	}
	if !(s.Epsilon > 0) {
		return fmt.Errorf("%w: epsilon must be positive, got %g", model.ErrConfig, s.Epsilon)
	}
	if s.MaxSimulations < 0 {
		return fmt.Errorf("%w: max-simulations must not be negative", model.ErrConfig)
	}
	if _, err := calibration.ParseSeedMode(s.SeedMode); err != nil {
		return err
	}
	if _, err := calibration.ParseSamplingMode(s.SamplingMode); err != nil {
		return err
	}
	return nil
}

// CalibrationConfig maps the settings onto an engine configuration.
func (s *Settings) CalibrationConfig() calibration.Config {
	mode, _ := calibration.ParseSeedMode(s.SeedMode)
	return calibration.Config{
		Samples:        s.Samples,
		Epsilon:        s.Epsilon,
		Seed:           s.Seed,
		SeedMode:       mode,
		Workers:        s.Workers,
		BatchSize:      s.BatchSize,
		MaxSimulations: s.MaxSimulations,
	}
}
