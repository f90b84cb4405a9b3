// Package lazybridge lets a host with dynamically typed values drive a typed,
// deferred relational query engine. Every LazyFrame method coerces its
// arguments into typed parameters and returns a new, not yet executed plan;
// Collect and CollectBackground hand the plan to the engine.
//
// Host values are nil or Null (absent), bool, Go integers, floats, strings,
// time.Time, sequences ([]any or typed slices) and the opaque handles *Expr
// and *LazyFrame.
package lazybridge

import (
	"sync"

	"github.com/paveg/lazybridge/internal/coerce"
	"github.com/paveg/lazybridge/internal/config"
	"github.com/paveg/lazybridge/internal/engine"
	"github.com/paveg/lazybridge/internal/monitoring"
	"go.uber.org/zap"
)

// Null is the explicit absent value. Optional parameters treat it like nil.
var Null = coerce.Null

// Config is the engine configuration
type Config = config.Config

// Executor runs optimized plans. *engine.Engine is the default.
type Executor = engine.Executor

var (
	engineMu      sync.RWMutex
	defaultEngine *engine.Engine
)

// NewConfig returns the default configuration
func NewConfig() Config {
	return config.NewConfig()
}

// Configure validates cfg and rebuilds the engine used by every LazyFrame
// that was not given its own executor. Collects in flight finish on the
// previous engine.
func Configure(cfg Config) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	return ConfigureWithLogger(cfg, logger)
}

// ConfigureWithLogger is Configure with a caller supplied logger
func ConfigureWithLogger(cfg Config, logger *zap.Logger) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	var collector *monitoring.MetricsCollector
	if cfg.MetricsCollection {
		collector = monitoring.GetGlobalCollector()
		if collector == nil {
			collector = monitoring.EnableGlobalMonitoring()
		} else {
			collector.SetEnabled(true)
		}
	} else {
		monitoring.DisableGlobalMonitoring()
	}

	config.SetGlobalConfig(cfg)
	setEngine(engine.New(cfg, engine.WithLogger(logger), engine.WithMetrics(collector)))
	return nil
}

func setEngine(e *engine.Engine) {
	engineMu.Lock()
	defaultEngine = e
	engineMu.Unlock()
}

// currentEngine returns the default engine, building it from the global
// configuration on first use.
func currentEngine() Executor {
	engineMu.RLock()
	e := defaultEngine
	engineMu.RUnlock()
	if e != nil {
		return e
	}

	engineMu.Lock()
	defer engineMu.Unlock()
	if defaultEngine == nil {
		defaultEngine = engine.New(config.GetGlobalConfig())
	}
	return defaultEngine
}
