package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paveg/lazybridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestConfig_DefaultValues(t *testing.T) {
	config := config.NewConfig()

	assert.Equal(t, 1000, config.ParallelThreshold)
	assert.Equal(t, 0, config.WorkerPoolSize) // 0 means auto-detect
	assert.Equal(t, 4096, config.InterruptCheckRows)
	assert.True(t, config.FilterFusion)
	assert.True(t, config.PredicatePushdown)
	assert.True(t, config.SliceFusion)
	assert.False(t, config.VerboseLogging)
	assert.False(t, config.MetricsCollection)
	assert.Equal(t, "info", config.LogLevel)
	assert.NoError(t, config.Validate())
}

func TestConfig_Validation(t *testing.T) {
	valid := config.NewConfig()

	tests := []struct {
		name          string
		mutate        func(*config.Config)
		expectedError string
	}{
		{
			name:          "valid config",
			mutate:        func(c *config.Config) { c.WorkerPoolSize = 4 },
			expectedError: "",
		},
		{
			name:          "negative parallel threshold",
			mutate:        func(c *config.Config) { c.ParallelThreshold = -1 },
			expectedError: "ParallelThreshold must be positive, got -1",
		},
		{
			name:          "negative worker pool size",
			mutate:        func(c *config.Config) { c.WorkerPoolSize = -1 },
			expectedError: "WorkerPoolSize must be non-negative, got -1",
		},
		{
			name:          "zero interrupt interval",
			mutate:        func(c *config.Config) { c.InterruptCheckRows = 0 },
			expectedError: "InterruptCheckRows must be positive, got 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.expectedError == "" {
				assert.NoError(t, err)
			} else {
				assert.EqualError(t, err, tt.expectedError)
			}
		})
	}

	t.Run("bad log level", func(t *testing.T) {
		c := valid
		c.LogLevel = "loud"
		assert.ErrorContains(t, c.Validate(), `LogLevel "loud" is invalid`)
	})
}

func TestConfig_LoadFromJSON(t *testing.T) {
	jsonData := `{
		"parallel_threshold": 2000,
		"worker_pool_size": 8,
		"filter_fusion": false
	}`

	config, err := config.LoadFromJSON([]byte(jsonData))
	require.NoError(t, err)

	assert.Equal(t, 2000, config.ParallelThreshold)
	assert.Equal(t, 8, config.WorkerPoolSize)
	assert.False(t, config.FilterFusion)
	// Absent keys keep their defaults
	assert.True(t, config.PredicatePushdown)
	assert.Equal(t, 4096, config.InterruptCheckRows)
}

func TestConfig_LoadFromJSON_Invalid(t *testing.T) {
	_, err := config.LoadFromJSON([]byte(`{"parallel_threshold": "many"}`))
	assert.ErrorContains(t, err, "parsing JSON configuration")
}

func TestConfig_LoadFromFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "lazybridge.yaml")
		data := "parallel_threshold: 50\nslice_fusion: false\nlog_level: debug\n"
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		cfg, err := config.LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, 50, cfg.ParallelThreshold)
		assert.False(t, cfg.SliceFusion)
		assert.True(t, cfg.FilterFusion)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "lazybridge.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"interrupt_check_rows": 128}`), 0o600))

		cfg, err := config.LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, 128, cfg.InterruptCheckRows)
	})

	t.Run("unsupported format", func(t *testing.T) {
		path := filepath.Join(dir, "lazybridge.toml")
		require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o600))

		_, err := config.LoadFromFile(path)
		assert.EqualError(t, err, "unsupported config file format: .toml")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.LoadFromFile(filepath.Join(dir, "nope.yaml"))
		assert.ErrorContains(t, err, "reading config file")
	})
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("LAZYBRIDGE_PARALLEL_THRESHOLD", "10")
	t.Setenv("LAZYBRIDGE_WORKER_POOL_SIZE", "3")
	t.Setenv("LAZYBRIDGE_PREDICATE_PUSHDOWN", "false")
	t.Setenv("LAZYBRIDGE_VERBOSE_LOGGING", "true")
	t.Setenv("LAZYBRIDGE_LOG_LEVEL", "WARN")
	t.Setenv("LAZYBRIDGE_INTERRUPT_CHECK_ROWS", "not-a-number")

	cfg := config.LoadFromEnv()
	assert.Equal(t, 10, cfg.ParallelThreshold)
	assert.Equal(t, 3, cfg.WorkerPoolSize)
	assert.False(t, cfg.PredicatePushdown)
	assert.True(t, cfg.VerboseLogging)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, config.DefaultInterruptCheckRows, cfg.InterruptCheckRows)
}

func TestConfig_Global(t *testing.T) {
	original := config.GetGlobalConfig()
	defer config.SetGlobalConfig(original)

	custom := config.NewConfig()
	custom.ParallelThreshold = 7
	config.SetGlobalConfig(custom)
	assert.Equal(t, 7, config.GetGlobalConfig().ParallelThreshold)
}

func TestConfig_Workers(t *testing.T) {
	c := config.NewConfig()
	assert.Positive(t, c.Workers())
	c.WorkerPoolSize = 2
	assert.Equal(t, 2, c.Workers())
}

func TestConfig_NewLogger(t *testing.T) {
	c := config.NewConfig()
	logger, err := c.NewLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel), "debug disabled at info level")

	c.VerboseLogging = true
	logger, err = c.NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestConfigValidator(t *testing.T) {
	cv := config.NewConfigValidator()

	c := config.NewConfig()
	c.WorkerPoolSize = 100000
	c.InterruptCheckRows = 8
	warnings, err := cv.Validate(c)
	require.NoError(t, err)
	assert.Len(t, warnings, 2)

	c.ParallelThreshold = 0
	_, err = cv.Validate(c)
	assert.Error(t, err)
}
