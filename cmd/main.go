package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/guttosm/tickpulse/config"
	"github.com/guttosm/tickpulse/internal/app"
	"github.com/guttosm/tickpulse/internal/logger"
)

// flagKeys maps each command line flag to its configuration key.
var flagKeys = map[string]string{
	"mode":               "MODE",
	"input-dir":          "INPUT_DIR",
	"output":             "OUTPUT_PATH",
	"start":              "START_DATE",
	"end":                "END_DATE",
	"instruments":        "INSTRUMENT_COUNT",
	"max-sub-files":      "MAX_SUB_FILES",
	"frequency":          "GENERATOR_OPERATIONS_FREQUENCY",
	"interval":           "GENERATOR_INCREMENT_INTERVAL",
	"workers":            "WORKERS",
	"task-timeout":       "TASK_TIMEOUT",
	"timeout":            "OPERATION_TIMEOUT",
	"timeout-policy":     "TIMEOUT_POLICY",
	"timeout-retries":    "TIMEOUT_RETRIES",
	"seed":               "SEED",
	"business-days-only": "BUSINESS_DAYS_ONLY",
	"metrics-file":       "METRICS_FILE",
	"log-level":          "LOG_LEVEL",
}

// newFlagSet declares the command line flags. Defaults live in
// config.SetDefaults; a flag only wins when it is set explicitly.
func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("tickpulse", pflag.ContinueOnError)
	fs.String("mode", config.ModeAll, "Mode: all, generate or report")
	fs.String("input-dir", "./data/input", "Directory holding the tick files")
	fs.String("output", "./data/output/summary.csv", "Report file path")
	fs.String("start", "", "First date of the range (YYYY-MM-DD)")
	fs.String("end", "", "Last date of the range (YYYY-MM-DD)")
	fs.Int("instruments", 10, "Number of instruments in the catalog")
	fs.Int("max-sub-files", 2, "Maximum number of parts per market and day")
	fs.Int("frequency", 2, "Lines written between two clock advances")
	fs.Int("interval", 10, "Clock advance in minutes")
	fs.Int("workers", 10, "Concurrent tasks per phase")
	fs.Duration("task-timeout", 0, "Budget of one task (default 1m)")
	fs.Duration("timeout", 0, "Budget of the whole run (default 5m)")
	fs.String("timeout-policy", "drop", "What to do with timed-out tasks: drop, retry or fail")
	fs.Int("timeout-retries", 1, "Retries per timed-out task under the retry policy")
	fs.Uint64("seed", 0, "Random seed (0 = random)")
	fs.Bool("business-days-only", false, "Generate files for trading days only")
	fs.String("metrics-file", "", "Write Prometheus metrics to this file")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
	return fs
}

// bindFlags binds every flag of fs to its configuration key on v.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			return fmt.Errorf("flag --%s not declared", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

// run is the testable body of main and returns the process exit code.
//
// Exit codes:
//   - 0: success, or --help.
//   - 1: invalid configuration or failed run.
//   - 2: unparseable command line.
func run(ctx context.Context, args []string) int {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		logger.L().Error().Err(err).Strs("args", args).Msg("invalid command line")
		return 2
	}

	if err := bindFlags(viper.GetViper(), fs); err != nil {
		logger.L().Error().Err(err).Msg("flag binding failed")
		return 1
	}

	// Load configuration from flags, environment or .env file
	if err := config.LoadConfig(); err != nil {
		logger.L().Error().Err(err).Strs("args", args).Msg("configuration error")
		return 1
	}
	cfg := config.AppConfig

	logger.Init(logger.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	sum, err := app.Run(ctx, cfg, cfg.Mode)
	if err != nil {
		logger.L().Error().Err(err).Str("run_id", sum.RunID).Str("mode", cfg.Mode).Msg("run failed")
		return 1
	}
	logger.L().Info().
		Str("run_id", sum.RunID).
		Str("mode", sum.Mode).
		Int("rows", sum.Rows).
		Str("output", sum.OutputPath).
		Msg("run completed successfully")
	return 0
}

// main is the entry point of tickpulse.
//
// Modes (selected via --mode flag or MODE):
//   - all:      generate files for the date range, then write the report.
//   - generate: only write the synthetic tick files.
//   - report:   aggregate the files already in --input-dir.
//
// SIGINT and SIGTERM cancel the run.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
