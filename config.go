// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"go.opentelemetry.io/otel"
	"gopkg.in/yaml.v3"
)

// Executor kinds accepted by [ExecutorConfig].
const (
	ExecutorGo   = "go"
	ExecutorPool = "pool"
)

// Config is the file form of a runtime configuration.
//
//	yield_op_count: 1024
//	executor:
//	  kind: pool
//	  workers: 8
//	log_level: debug
//	metrics: true
type Config struct {
	YieldOpCount int            `yaml:"yield_op_count"`
	Executor     ExecutorConfig `yaml:"executor"`
	LogLevel     string         `yaml:"log_level"`
	Metrics      bool           `yaml:"metrics"`
}

// ExecutorConfig selects the executor. Workers applies to the pool kind;
// zero means GOMAXPROCS.
type ExecutorConfig struct {
	Kind    string `yaml:"kind"`
	Workers int    `yaml:"workers"`
}

// DefaultConfig returns the configuration equivalent to [NewRuntime]
// with no options.
func DefaultConfig() Config {
	return Config{
		YieldOpCount: DefaultYieldOpCount,
		Executor:     ExecutorConfig{Kind: ExecutorGo},
		LogLevel:     "info",
	}
}

// ParseConfig decodes YAML over [DefaultConfig] and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("fx: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the YAML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("fx: load config: %w", err)
	}
	return ParseConfig(data)
}

// Validate reports every invalid field of c.
func (c Config) Validate() error {
	var errs []error
	if c.YieldOpCount < 0 {
		errs = append(errs, fmt.Errorf("fx: yield_op_count must not be negative, got %d", c.YieldOpCount))
	}
	switch c.Executor.Kind {
	case "", ExecutorGo, ExecutorPool:
	default:
		errs = append(errs, fmt.Errorf("fx: unknown executor kind %q", c.Executor.Kind))
	}
	if c.Executor.Workers < 0 {
		errs = append(errs, fmt.Errorf("fx: executor workers must not be negative, got %d", c.Executor.Workers))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("fx: invalid log_level %q", s)
	}
	return l, nil
}

// NewRuntimeFromConfig builds a runtime from cfg. Logs go to stderr as
// text at the configured level. With Metrics set, fiber lifecycle metrics
// are recorded on the global OpenTelemetry meter provider. opts are
// applied after the configuration and override it.
func NewRuntimeFromConfig(cfg Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := parseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	base := []Option{
		WithLogger(logger),
		WithYieldOpCount(cfg.YieldOpCount),
	}
	if cfg.Executor.Kind == ExecutorPool {
		n := cfg.Executor.Workers
		if n == 0 {
			n = runtime.GOMAXPROCS(0)
		}
		base = append(base, WithExecutor(NewPoolExecutor(n)))
	}
	if cfg.Metrics {
		sup, err := NewMetricsSupervisor(otel.Meter(instrumentationName))
		if err != nil {
			return nil, fmt.Errorf("fx: metrics supervisor: %w", err)
		}
		base = append(base, WithSupervisor(sup))
	}
	return NewRuntime(append(base, opts...)...), nil
}
