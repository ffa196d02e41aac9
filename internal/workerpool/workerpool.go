// Package workerpool runs a batch of independent tasks on a bounded number of
// goroutines and reports one tagged result per task.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guttosm/tickpulse/internal/logger"
)

const (
	// DefaultWorkers is the pool size used when Options.Workers is not set.
	DefaultWorkers = 10
	// DefaultTaskTimeout is the per-task budget used when Options.TaskTimeout is not set.
	DefaultTaskTimeout = time.Minute
	// DefaultGrace is how long a cancelled attempt may take to return before
	// it is reported as leaked.
	DefaultGrace = 5 * time.Second
)

// ErrTaskTimedOut is returned by Run under PolicyFail when a task exceeds its budget.
var ErrTaskTimedOut = errors.New("task timed out")

// ErrTaskLeaked is returned by Run when a cancelled task did not return
// within the grace period and may still be running.
var ErrTaskLeaked = errors.New("task ignored cancellation")

var errNotStarted = errors.New("task not started")

// Status tags the outcome of a task.
type Status int

const (
	Succeeded Status = iota
	Failed
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// TimeoutPolicy decides what happens to tasks that exceed their budget.
type TimeoutPolicy string

const (
	// PolicyDrop logs the timed-out task and leaves it out of the values.
	PolicyDrop TimeoutPolicy = "drop"
	// PolicyRetry re-runs a timed-out task up to Options.Retries times, then drops it.
	PolicyRetry TimeoutPolicy = "retry"
	// PolicyFail makes Run return ErrTaskTimedOut.
	PolicyFail TimeoutPolicy = "fail"
)

// ParseTimeoutPolicy validates a policy name (case-insensitive).
func ParseTimeoutPolicy(s string) (TimeoutPolicy, error) {
	switch p := TimeoutPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyDrop, PolicyRetry, PolicyFail:
		return p, nil
	case "":
		return PolicyDrop, nil
	default:
		return "", fmt.Errorf("unknown timeout policy %q (want drop, retry or fail)", s)
	}
}

// Observer receives the outcome of every task. metrics.Metrics implements it.
type Observer interface {
	ObserveTask(phase, status string, elapsed time.Duration)
}

// Options configures one Run.
type Options struct {
	Phase         string
	Workers       int
	TaskTimeout   time.Duration
	TimeoutPolicy TimeoutPolicy
	Retries       int
	// Grace bounds the wait for a cancelled attempt to return.
	Grace    time.Duration
	Observer Observer
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = DefaultTaskTimeout
	}
	if o.Grace <= 0 {
		o.Grace = DefaultGrace
	}
	if o.TimeoutPolicy == "" {
		o.TimeoutPolicy = PolicyDrop
	}
	if o.TimeoutPolicy == PolicyRetry && o.Retries <= 0 {
		o.Retries = 1
	}
	if o.TimeoutPolicy != PolicyRetry {
		o.Retries = 0
	}
	return o
}

// Task is one unit of work. Run must honour ctx cancellation.
type Task[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Result is the tagged outcome of one task.
type Result[T any] struct {
	Name     string
	Status   Status
	Value    T
	Err      error
	Attempts int
	Elapsed  time.Duration
	// Leaked is set when the last attempt was still running after Grace.
	Leaked bool
}

// Run executes tasks with at most opts.Workers running at once and waits for
// all of them. Results are returned in task order.
//
// Behavior:
//   - Each attempt gets its own context bounded by opts.TaskTimeout; on expiry
//     the context is cancelled and Run waits for the attempt to return, so
//     no task code of the phase runs after Run returns.
//   - An attempt still running opts.Grace after cancellation is reported as
//     leaked; it is not retried and Run returns ErrTaskLeaked.
//   - A task error only marks that task Failed; siblings keep running.
//   - TimedOut tasks are handled by opts.TimeoutPolicy.
//   - If ctx is cancelled (global operation timeout) Run returns ctx.Err().
//
// Returns:
//   - []Result[T]: one entry per task, including failed and timed-out ones.
//   - error: ctx.Err(), ErrTaskLeaked, or ErrTaskTimedOut (PolicyFail);
//     nil otherwise.
func Run[T any](ctx context.Context, opts Options, tasks []Task[T]) ([]Result[T], error) {
	opts = opts.withDefaults()
	ctx = logger.NewContext(ctx, "phase", opts.Phase)
	log := logger.FromContext(ctx)
	results := make([]Result[T], len(tasks))
	for i, task := range tasks {
		results[i] = Result[T]{Name: task.Name, Status: Failed, Err: errNotStarted}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for i, task := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := runWithPolicy(gctx, opts, task)
			results[i] = res

			if opts.Observer != nil {
				opts.Observer.ObserveTask(opts.Phase, res.Status.String(), res.Elapsed)
			}
			switch {
			case res.Leaked:
				log.Error().Str("task", res.Name).Dur("grace", opts.Grace).Msg("task still running after cancellation")
			case res.Status == Failed:
				log.Error().Str("task", res.Name).Err(res.Err).Dur("elapsed", res.Elapsed).Msg("task failed")
			case res.Status == TimedOut:
				log.Warn().Str("task", res.Name).Int("attempts", res.Attempts).Dur("budget", opts.TaskTimeout).
					Str("policy", string(opts.TimeoutPolicy)).Msg("task timed out")
			default:
				log.Debug().Str("task", res.Name).Dur("elapsed", res.Elapsed).Msg("task done")
			}
			return nil
		})
	}

	// Tasks never return errors to the group; only ctx can abort the batch.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("%s phase aborted: %w", opts.Phase, err)
	}

	leaked := 0
	for _, r := range results {
		if r.Leaked {
			leaked++
		}
	}
	if leaked > 0 {
		return results, fmt.Errorf("%s phase: %d task(s): %w", opts.Phase, leaked, ErrTaskLeaked)
	}

	if opts.TimeoutPolicy == PolicyFail {
		if n := Count(results, TimedOut); n > 0 {
			return results, fmt.Errorf("%s phase: %d task(s): %w", opts.Phase, n, ErrTaskTimedOut)
		}
	}
	return results, nil
}

func runWithPolicy[T any](ctx context.Context, opts Options, task Task[T]) Result[T] {
	start := time.Now()
	var res Result[T]
	for attempt := 1; attempt <= 1+opts.Retries; attempt++ {
		res = runOnce(ctx, opts, task)
		res.Attempts = attempt
		if res.Status != TimedOut || res.Leaked {
			break
		}
	}
	res.Elapsed = time.Since(start)
	return res
}

type outcome[T any] struct {
	value T
	err   error
}

func runOnce[T any](ctx context.Context, opts Options, task Task[T]) Result[T] {
	res := Result[T]{Name: task.Name}

	tctx, cancel := context.WithTimeout(ctx, opts.TaskTimeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := task.Run(tctx)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case out := <-done:
		if errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			res.Status, res.Err = TimedOut, context.DeadlineExceeded
			return res
		}
		if out.err != nil {
			res.Status, res.Err = Failed, out.err
			return res
		}
		res.Status, res.Value = Succeeded, out.value
		return res
	case <-tctx.Done():
	}

	// The attempt sees the cancelled context; join it before reporting.
	grace := time.NewTimer(opts.Grace)
	defer grace.Stop()
	select {
	case <-done:
	case <-grace.C:
		res.Leaked = true
	}

	if ctx.Err() != nil {
		res.Status, res.Err = Failed, ctx.Err()
		return res
	}
	res.Status, res.Err = TimedOut, context.DeadlineExceeded
	return res
}

// Values returns the values of succeeded results, in task order.
func Values[T any](results []Result[T]) []T {
	out := make([]T, 0, len(results))
	for _, r := range results {
		if r.Status == Succeeded {
			out = append(out, r.Value)
		}
	}
	return out
}

// Count returns how many results have the given status.
func Count[T any](results []Result[T], s Status) int {
	n := 0
	for _, r := range results {
		if r.Status == s {
			n++
		}
	}
	return n
}
