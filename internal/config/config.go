// Package config provides configuration management for the lazybridge engine
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config represents the engine configuration used by collect
type Config struct {
	// Parallel Processing Configuration
	ParallelThreshold  int `json:"parallel_threshold" yaml:"parallel_threshold"`     // Minimum estimated rows before join inputs run concurrently
	WorkerPoolSize     int `json:"worker_pool_size" yaml:"worker_pool_size"`         // Number of worker goroutines (0 = auto-detect)
	InterruptCheckRows int `json:"interrupt_check_rows" yaml:"interrupt_check_rows"` // Rows processed between cancellation checks

	// Query Optimization Configuration
	FilterFusion      bool `json:"filter_fusion" yaml:"filter_fusion"`           // Enable filter fusion optimization
	PredicatePushdown bool `json:"predicate_pushdown" yaml:"predicate_pushdown"` // Enable predicate pushdown optimization
	SliceFusion       bool `json:"slice_fusion" yaml:"slice_fusion"`             // Enable slice fusion optimization

	// Debugging Configuration
	MetricsCollection bool   `json:"metrics_collection" yaml:"metrics_collection"` // Enable metrics collection
	VerboseLogging    bool   `json:"verbose_logging" yaml:"verbose_logging"`       // Development logger at debug level
	LogLevel          string `json:"log_level" yaml:"log_level"`                   // debug, info, warn or error
}

// Global configuration instance
var (
	globalConfig Config
	configMutex  sync.RWMutex
)

// Default configuration values
const (
	DefaultParallelThreshold  = 1000
	DefaultInterruptCheckRows = 4096
	DefaultLogLevel           = "info"
)

// EnvPrefix is the prefix of every environment variable LoadFromEnv reads
const EnvPrefix = "LAZYBRIDGE_"

func init() {
	globalConfig = NewConfig()
}

// NewConfig creates a new configuration with default values
func NewConfig() Config {
	return Config{
		ParallelThreshold:  DefaultParallelThreshold,
		WorkerPoolSize:     0, // Auto-detect
		InterruptCheckRows: DefaultInterruptCheckRows,

		FilterFusion:      true,
		PredicatePushdown: true,
		SliceFusion:       true,

		MetricsCollection: false,
		VerboseLogging:    false,
		LogLevel:          DefaultLogLevel,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.ParallelThreshold <= 0 {
		return fmt.Errorf("ParallelThreshold must be positive, got %d", c.ParallelThreshold)
	}

	if c.WorkerPoolSize < 0 {
		return fmt.Errorf("WorkerPoolSize must be non-negative, got %d", c.WorkerPoolSize)
	}

	if c.InterruptCheckRows <= 0 {
		return fmt.Errorf("InterruptCheckRows must be positive, got %d", c.InterruptCheckRows)
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LogLevel %q is invalid: %w", c.LogLevel, err)
	}

	return nil
}

// WithDefaults returns a new configuration with default values filled in for zero values
func (c Config) WithDefaults() Config {
	defaults := NewConfig()

	if c.ParallelThreshold == 0 {
		c.ParallelThreshold = defaults.ParallelThreshold
	}
	if c.InterruptCheckRows == 0 {
		c.InterruptCheckRows = defaults.InterruptCheckRows
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}

	// Boolean fields are left as decoded so an explicit false survives
	return c
}

// Workers returns the effective worker count
func (c Config) Workers() int {
	if c.WorkerPoolSize > 0 {
		return c.WorkerPoolSize
	}
	return runtime.NumCPU()
}

// SetGlobalConfig sets the global configuration
func SetGlobalConfig(config Config) {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = config
}

// GetGlobalConfig returns the current global configuration
func GetGlobalConfig() Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// LoadFromJSON loads configuration from JSON data
func LoadFromJSON(data []byte) (Config, error) {
	config := NewConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing JSON configuration: %w", err)
	}
	return config.WithDefaults(), nil
}

// LoadFromFile loads configuration from a JSON or YAML file. Keys absent
// from the file keep their NewConfig defaults.
func LoadFromFile(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", filename, err)
	}

	config := NewConfig()
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".json":
		err = json.Unmarshal(data, &config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		return Config{}, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", filename, err)
	}

	return config.WithDefaults(), nil
}

// LoadFromEnv loads configuration from LAZYBRIDGE_* environment variables.
// Unparseable values are ignored.
func LoadFromEnv() Config {
	return ApplyEnv(NewConfig())
}

// ApplyEnv overrides config with any LAZYBRIDGE_* environment variables set
func ApplyEnv(config Config) Config {
	envInt("PARALLEL_THRESHOLD", &config.ParallelThreshold)
	envInt("WORKER_POOL_SIZE", &config.WorkerPoolSize)
	envInt("INTERRUPT_CHECK_ROWS", &config.InterruptCheckRows)
	envBool("FILTER_FUSION", &config.FilterFusion)
	envBool("PREDICATE_PUSHDOWN", &config.PredicatePushdown)
	envBool("SLICE_FUSION", &config.SliceFusion)
	envBool("METRICS_COLLECTION", &config.MetricsCollection)
	envBool("VERBOSE_LOGGING", &config.VerboseLogging)
	if val := os.Getenv(EnvPrefix + "LOG_LEVEL"); val != "" {
		config.LogLevel = strings.ToLower(val)
	}
	return config
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			*dst = parsed
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			*dst = parsed
		}
	}
}

// NewLogger builds the logger described by the configuration. Verbose
// logging uses the development encoder at debug level.
func (c Config) NewLogger() (*zap.Logger, error) {
	var zc zap.Config
	if c.VerboseLogging {
		zc = zap.NewDevelopmentConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		zc = zap.NewProductionConfig()
		level, err := zapcore.ParseLevel(c.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("parsing log level %q: %w", c.LogLevel, err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// ConfigValidator validates a configuration against the host it runs on
type ConfigValidator struct {
	cpuCount int
}

// NewConfigValidator creates a new configuration validator
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{cpuCount: runtime.NumCPU()}
}

// Validate validates a configuration and returns warnings for settings that
// are legal but unlikely to help.
func (cv *ConfigValidator) Validate(config Config) ([]string, error) {
	var warnings []string

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.WorkerPoolSize > cv.cpuCount*2 {
		warnings = append(warnings,
			fmt.Sprintf("Worker pool size (%d) exceeds 2x CPU count (%d), may cause contention",
				config.WorkerPoolSize, cv.cpuCount))
	}

	if config.InterruptCheckRows < 64 {
		warnings = append(warnings,
			fmt.Sprintf("Interrupt check interval (%d rows) is very small and slows kernels down",
				config.InterruptCheckRows))
	}

	return warnings, nil
}
