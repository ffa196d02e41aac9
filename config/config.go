package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/guttosm/tickpulse/internal/calendar"
	"github.com/guttosm/tickpulse/internal/workerpool"
)

// Run modes.
const (
	ModeAll      = "all"
	ModeGenerate = "generate"
	ModeReport   = "report"
)

// Config holds the full application configuration loaded from flags,
// environment variables or a .env file.
//
// Example ENV equivalent:
//
//	INPUT_DIR=./data/input
//	OUTPUT_PATH=./data/output/summary.csv
//	START_DATE=2017-11-25
//	END_DATE=2017-11-28
//	MARKETS=eurex,xetra,moex
//	WORKERS=10
//	TIMEOUT_POLICY=drop
type Config struct {
	Mode      string
	Paths     PathsConfig
	Range     RangeConfig
	Generator GeneratorConfig
	Pool      PoolConfig
	Log       LogConfig
}

// PathsConfig locates the tick files, the report and the optional metrics dump.
type PathsConfig struct {
	InputDir    string
	OutputPath  string
	MetricsFile string // empty disables the textfile export
}

// RangeConfig is the inclusive date range processed by every phase.
type RangeConfig struct {
	Start time.Time
	End   time.Time
}

// GeneratorConfig drives the synthetic data.
//
// Fields:
//   - Markets: market names in generation order.
//   - Instruments: catalog size.
//   - MaxSubFiles: upper bound of parts per (market, date).
//   - OperationsFrequency: lines written between two clock advances.
//   - IncrementInterval: clock advance.
//   - Seed: 0 picks a random seed.
//   - BusinessDaysOnly: skip weekends and exchange holidays.
type GeneratorConfig struct {
	Markets             []string
	Instruments         int
	MaxSubFiles         int
	OperationsFrequency int
	IncrementInterval   time.Duration
	Seed                uint64
	BusinessDaysOnly    bool
}

// PoolConfig is shared by the generate, parse and aggregate phases.
type PoolConfig struct {
	Workers          int
	TaskTimeout      time.Duration
	OperationTimeout time.Duration
	TimeoutPolicy    workerpool.TimeoutPolicy
	TimeoutRetries   int
}

// LogConfig configures internal/logger.
type LogConfig struct {
	Level  string
	Pretty bool
}

// PoolOptions returns the worker pool options of one phase.
func (c Config) PoolOptions(phase string) workerpool.Options {
	return workerpool.Options{
		Phase:         phase,
		Workers:       c.Pool.Workers,
		TaskTimeout:   c.Pool.TaskTimeout,
		TimeoutPolicy: c.Pool.TimeoutPolicy,
		Retries:       c.Pool.TimeoutRetries,
	}
}

// AppConfig is the globally accessible configuration instance.
//
// It is populated once via LoadConfig() and used by main.
var AppConfig Config

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("MODE", ModeAll)
	v.SetDefault("INPUT_DIR", "./data/input")
	v.SetDefault("OUTPUT_PATH", "./data/output/summary.csv")
	v.SetDefault("METRICS_FILE", "")
	v.SetDefault("START_DATE", "")
	v.SetDefault("END_DATE", "")

	v.SetDefault("MARKETS", "eurex,xetra,moex")
	v.SetDefault("INSTRUMENT_COUNT", 10)
	v.SetDefault("MAX_SUB_FILES", 2)
	v.SetDefault("GENERATOR_OPERATIONS_FREQUENCY", 2)
	v.SetDefault("GENERATOR_INCREMENT_INTERVAL", 10)
	v.SetDefault("SEED", 0)
	v.SetDefault("BUSINESS_DAYS_ONLY", false)

	v.SetDefault("WORKERS", workerpool.DefaultWorkers)
	v.SetDefault("TASK_TIMEOUT", workerpool.DefaultTaskTimeout)
	v.SetDefault("OPERATION_TIMEOUT", 5*time.Minute)
	v.SetDefault("TIMEOUT_POLICY", string(workerpool.PolicyDrop))
	v.SetDefault("TIMEOUT_RETRIES", 1)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
}

// LoadConfig initializes the global AppConfig from the global viper instance.
//
// Precedence (from lowest to highest):
//  1. Defaults from SetDefaults.
//  2. Values from .env file (if present).
//  3. Environment variables.
//  4. Command line flags bound with viper.BindPFlags.
//
// Returns:
//   - error: every invalid or missing setting, joined.
func LoadConfig() error {
	v := viper.GetViper()
	SetDefaults(v)

	// Optionally read from .env if present (common in local dev)
	v.SetConfigFile(".env")
	_ = v.ReadInConfig() // ignore error if no .env

	v.AutomaticEnv()

	cfg, err := Load(v)
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// Load builds and validates a Config from v. Call SetDefaults on v first
// unless every key is set explicitly.
//
// All validation errors are joined into the returned error.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Mode: strings.ToLower(strings.TrimSpace(v.GetString("MODE"))),
		Paths: PathsConfig{
			InputDir:    v.GetString("INPUT_DIR"),
			OutputPath:  v.GetString("OUTPUT_PATH"),
			MetricsFile: v.GetString("METRICS_FILE"),
		},
		Generator: GeneratorConfig{
			Markets:             splitList(v.GetString("MARKETS")),
			Instruments:         v.GetInt("INSTRUMENT_COUNT"),
			MaxSubFiles:         v.GetInt("MAX_SUB_FILES"),
			OperationsFrequency: v.GetInt("GENERATOR_OPERATIONS_FREQUENCY"),
			IncrementInterval:   time.Duration(v.GetInt("GENERATOR_INCREMENT_INTERVAL")) * time.Minute,
			Seed:                v.GetUint64("SEED"),
			BusinessDaysOnly:    v.GetBool("BUSINESS_DAYS_ONLY"),
		},
		Pool: PoolConfig{
			Workers:          v.GetInt("WORKERS"),
			TaskTimeout:      v.GetDuration("TASK_TIMEOUT"),
			OperationTimeout: v.GetDuration("OPERATION_TIMEOUT"),
			TimeoutRetries:   v.GetInt("TIMEOUT_RETRIES"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Pretty: v.GetBool("LOG_PRETTY"),
		},
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeAll
	}

	var errs []error
	var err error

	if cfg.Range.Start, err = requiredDate(v, "START_DATE"); err != nil {
		errs = append(errs, err)
	}
	if cfg.Range.End, err = requiredDate(v, "END_DATE"); err != nil {
		errs = append(errs, err)
	}
	if !cfg.Range.Start.IsZero() && !cfg.Range.End.IsZero() && cfg.Range.Start.After(cfg.Range.End) {
		errs = append(errs, fmt.Errorf("START_DATE %s is after END_DATE %s",
			cfg.Range.Start.Format(calendar.DateLayout), cfg.Range.End.Format(calendar.DateLayout)))
	}

	if cfg.Pool.TimeoutPolicy, err = workerpool.ParseTimeoutPolicy(v.GetString("TIMEOUT_POLICY")); err != nil {
		errs = append(errs, fmt.Errorf("TIMEOUT_POLICY: %w", err))
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// validate checks the fields that need no parsing.
func (c Config) validate() []error {
	var errs []error

	switch c.Mode {
	case ModeAll, ModeGenerate, ModeReport:
	default:
		errs = append(errs, fmt.Errorf("MODE: unknown mode %q (want all, generate or report)", c.Mode))
	}

	if c.Paths.InputDir == "" {
		errs = append(errs, errors.New("INPUT_DIR is required"))
	}
	if c.Paths.OutputPath == "" && c.Mode != ModeGenerate {
		errs = append(errs, errors.New("OUTPUT_PATH is required"))
	}
	if len(c.Generator.Markets) == 0 {
		errs = append(errs, errors.New("MARKETS must list at least one market"))
	}

	positive := []struct {
		key string
		val int
	}{
		{"INSTRUMENT_COUNT", c.Generator.Instruments},
		{"MAX_SUB_FILES", c.Generator.MaxSubFiles},
		{"GENERATOR_OPERATIONS_FREQUENCY", c.Generator.OperationsFrequency},
		{"GENERATOR_INCREMENT_INTERVAL", int(c.Generator.IncrementInterval / time.Minute)},
		{"WORKERS", c.Pool.Workers},
	}
	for _, p := range positive {
		if p.val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", p.key, p.val))
		}
	}
	if c.Pool.TaskTimeout <= 0 {
		errs = append(errs, fmt.Errorf("TASK_TIMEOUT must be positive, got %s", c.Pool.TaskTimeout))
	}
	if c.Pool.OperationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("OPERATION_TIMEOUT must be positive, got %s", c.Pool.OperationTimeout))
	}
	if c.Pool.TimeoutRetries < 0 {
		errs = append(errs, fmt.Errorf("TIMEOUT_RETRIES must not be negative, got %d", c.Pool.TimeoutRetries))
	}
	return errs
}

func requiredDate(v *viper.Viper, key string) (time.Time, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return time.Time{}, fmt.Errorf("%s is required", key)
	}
	d, err := calendar.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
