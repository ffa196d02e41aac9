// Package app wires the generate, parse, aggregate and write phases into one
// bounded-time pipeline run.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guttosm/tickpulse/config"
	"github.com/guttosm/tickpulse/internal/calendar"
	"github.com/guttosm/tickpulse/internal/catalog"
	"github.com/guttosm/tickpulse/internal/generator"
	"github.com/guttosm/tickpulse/internal/ingestion"
	"github.com/guttosm/tickpulse/internal/logger"
	"github.com/guttosm/tickpulse/internal/metrics"
	"github.com/guttosm/tickpulse/internal/service"
	"github.com/guttosm/tickpulse/internal/storage"
	"github.com/guttosm/tickpulse/internal/workerpool"
)

// catalogFn is an indirection for obtaining the instrument catalog; tests can
// override this to get a fresh catalog per run.
var catalogFn = catalog.Shared

// PhaseCounts counts the task outcomes of one phase.
type PhaseCounts struct {
	Succeeded int
	Failed    int
	TimedOut  int
}

// Summary describes a finished run.
type Summary struct {
	RunID          string
	Mode           string
	Phases         map[string]PhaseCounts
	FilesGenerated int
	FilesParsed    int
	Groups         int
	Rows           int
	OutputPath     string
	Elapsed        time.Duration
}

// phaseObserver counts task outcomes per phase and forwards them to metrics.
type phaseObserver struct {
	mu      sync.Mutex
	counts  map[string]PhaseCounts
	metrics *metrics.Metrics
}

func newPhaseObserver(m *metrics.Metrics) *phaseObserver {
	return &phaseObserver{counts: make(map[string]PhaseCounts), metrics: m}
}

func (o *phaseObserver) ObserveTask(phase, status string, elapsed time.Duration) {
	o.mu.Lock()
	c := o.counts[phase]
	switch status {
	case workerpool.Succeeded.String():
		c.Succeeded++
	case workerpool.TimedOut.String():
		c.TimedOut++
	default:
		c.Failed++
	}
	o.counts[phase] = c
	o.mu.Unlock()

	o.metrics.ObserveTask(phase, status, elapsed)
}

func (o *phaseObserver) snapshot() map[string]PhaseCounts {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]PhaseCounts, len(o.counts))
	for k, v := range o.counts {
		out[k] = v
	}
	return out
}

// Run executes one pipeline run.
//
// Parameters:
//   - cfg: validated configuration (see config.Load).
//   - mode: config.ModeAll, config.ModeGenerate or config.ModeReport.
//
// Behavior:
//   - Applies cfg.Pool.OperationTimeout to the whole run.
//   - Ensures the input directory exists and obtains the shared catalog
//     before any generator task is dispatched.
//   - Phases run strictly one after the other: generate, collect, parse,
//     aggregate, write. Each phase pool is joined before the next starts.
//   - Failed and timed-out tasks are left out of later phases.
//   - Metrics are dumped to cfg.Paths.MetricsFile when set, even on error.
//
// Returns:
//   - Summary: counts gathered so far, also on error.
//   - error: configuration, directory, collection, report write failures,
//     the operation timeout, or ErrTaskTimedOut under PolicyFail.
func Run(ctx context.Context, cfg config.Config, mode string) (sum Summary, err error) {
	started := time.Now()
	sum = Summary{RunID: uuid.NewString(), Mode: mode}

	ctx = logger.NewContext(ctx, "run_id", sum.RunID)
	log := logger.FromContext(ctx)

	m := metrics.New()
	obs := newPhaseObserver(m)
	defer func() {
		sum.Phases = obs.snapshot()
		if cfg.Paths.MetricsFile == "" {
			return
		}
		if err := m.WriteTextfile(cfg.Paths.MetricsFile); err != nil {
			log.Warn().Err(err).Str("path", cfg.Paths.MetricsFile).Msg("metrics export failed")
		}
	}()

	switch mode {
	case config.ModeAll, config.ModeGenerate, config.ModeReport:
	default:
		return sum, fmt.Errorf("unknown mode %q", mode)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Pool.OperationTimeout)
	defer cancel()

	log.Info().
		Str("mode", mode).
		Str("input_dir", cfg.Paths.InputDir).
		Str("start", cfg.Range.Start.Format(calendar.DateLayout)).
		Str("end", cfg.Range.End.Format(calendar.DateLayout)).
		Msg("run started")

	if err := storage.EnsureDir(cfg.Paths.InputDir); err != nil {
		return sum, err
	}
	store := storage.NewFileStore(cfg.Paths.InputDir)

	pool := func(phase string) workerpool.Options {
		o := cfg.PoolOptions(phase)
		o.Observer = obs
		return o
	}

	if mode != config.ModeReport {
		n, err := runGenerate(ctx, cfg, store, pool("generate"), m)
		sum.FilesGenerated = n
		if err != nil {
			return sum, err
		}
	}

	if mode != config.ModeGenerate {
		if err := runReport(ctx, cfg, store, pool, m, &sum); err != nil {
			return sum, err
		}
	}

	sum.Elapsed = time.Since(started)
	log.Info().
		Int("generated", sum.FilesGenerated).
		Int("parsed", sum.FilesParsed).
		Int("groups", sum.Groups).
		Int("rows", sum.Rows).
		Str("output", sum.OutputPath).
		Dur("elapsed", sum.Elapsed).
		Msg("run finished")
	return sum, nil
}

func runGenerate(ctx context.Context, cfg config.Config, store storage.TickStore, pool workerpool.Options, m *metrics.Metrics) (int, error) {
	t0 := time.Now()
	defer func() { m.ObservePhase("generate", time.Since(t0)) }()

	cat, err := catalogFn(cfg.Generator.Instruments, cfg.Generator.Seed)
	if err != nil {
		return 0, fmt.Errorf("build catalog: %w", err)
	}

	settings := generator.DefaultSettings()
	settings.OperationsFrequency = cfg.Generator.OperationsFrequency
	settings.IncrementInterval = cfg.Generator.IncrementInterval

	gen, err := generator.New(store, cat, settings)
	if err != nil {
		return 0, err
	}

	dates := calendar.Days(cfg.Range.Start, cfg.Range.End)
	if cfg.Generator.BusinessDaysOnly {
		dates = calendar.TradingDays(cfg.Range.Start, cfg.Range.End)
	}

	out, err := gen.Generate(ctx, generator.Request{
		Markets:     cfg.Generator.Markets,
		Dates:       dates,
		MaxSubFiles: cfg.Generator.MaxSubFiles,
		Seed:        cfg.Generator.Seed,
		Pool:        pool,
	})
	if err != nil {
		return len(out.Generated()), fmt.Errorf("generate: %w", err)
	}
	return len(out.Generated()), nil
}

func runReport(ctx context.Context, cfg config.Config, store storage.TickStore, pool func(string) workerpool.Options, m *metrics.Metrics, sum *Summary) error {
	files, err := ingestion.CollectInputFiles(store, cfg.Range.Start, cfg.Range.End)
	if err != nil {
		return err
	}

	t0 := time.Now()
	sets, _, err := ingestion.ParseAll(ctx, store, files, pool("parse"))
	m.ObservePhase("parse", time.Since(t0))
	sum.FilesParsed = len(sets)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	t0 = time.Now()
	report, err := service.NewAggregator(pool("aggregate")).Aggregate(ctx, sets, cfg.Range.Start, cfg.Range.End)
	m.ObservePhase("aggregate", time.Since(t0))
	if err != nil {
		return err
	}
	sum.Groups = len(report.Groups)
	sum.Rows = len(report.Rows())

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := storage.WriteReport(cfg.Paths.OutputPath, report.Text()); err != nil {
		return err
	}
	m.AddReportRows(sum.Rows)
	sum.OutputPath = cfg.Paths.OutputPath
	return nil
}
