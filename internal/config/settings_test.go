package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vaxsim/internal/calibration"
	"github.com/banshee-data/vaxsim/internal/model"
)

func TestLoadSettings_Defaults(t *testing.T) {
	s, err := LoadSettings(nil, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), *s)
}

func TestLoadSettings_Precedence(t *testing.T) {
	file := writeFile(t, "settings.yaml", "samples: 50\nepsilon: 0.3\nseed: 9\nlog-level: warn\n")
	t.Setenv("VAXSIM_EPSILON", "0.4")
	t.Setenv("VAXSIM_SEED_MODE", "per_trial")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("samples", calibration.DefaultSamples, "")
	flags.Uint64("seed", calibration.DefaultSeed, "")
	require.NoError(t, flags.Parse([]string{"--seed=11"}))

	s, err := LoadSettings(flags, file)
	require.NoError(t, err)

	assert.Equal(t, 50, s.Samples, "file beats default, unchanged flag does not override")
	assert.Equal(t, 0.4, s.Epsilon, "env beats file")
	assert.Equal(t, uint64(11), s.Seed, "flag beats everything")
	assert.Equal(t, "warn", s.LogLevel)
	assert.Equal(t, "per_trial", s.SeedMode)

	cfg := s.CalibrationConfig()
	assert.Equal(t, calibration.SeedPerTrial, cfg.SeedMode)
	assert.Equal(t, 50, cfg.Samples)
}

func TestLoadSettings_Invalid(t *testing.T) {
	t.Setenv("VAXSIM_EPSILON", "-1")
	_, err := LoadSettings(nil, "")
	assert.ErrorIs(t, err, model.ErrConfig)
}

func TestLoadSettings_MissingFile(t *testing.T) {
	_, err := LoadSettings(nil, filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))

	path := writeFile(t, ".env", "VAXSIM_TEST_DOTENV=hello\n")
	t.Cleanup(func() { os.Unsetenv("VAXSIM_TEST_DOTENV") })
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "hello", os.Getenv("VAXSIM_TEST_DOTENV"))
}
