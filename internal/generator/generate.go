// Package generator produces synthetic per-market, per-day tick files.
package generator

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/guttosm/tickpulse/internal/logger"
	"github.com/guttosm/tickpulse/internal/workerpool"
)

// Request describes one generation batch.
type Request struct {
	Markets     []string
	Dates       []time.Time
	MaxSubFiles int
	// Seed makes planning and file content reproducible; 0 picks a random seed.
	Seed uint64
	Pool workerpool.Options
}

// Outcome is the result of a generation batch.
type Outcome struct {
	Planned []FileSpec
	Results []workerpool.Result[FileResult]
}

// Generated returns the names of the files written successfully.
func (o Outcome) Generated() []string {
	var out []string
	for _, r := range workerpool.Values(o.Results) {
		out = append(out, r.FileName)
	}
	return out
}

// Generate plans every (market, date, part) file and writes them concurrently.
//
// Behavior:
//   - Part counts are drawn before any task is created.
//   - Every file gets its own RNG derived from the batch seed, so tasks share
//     nothing but the read-only catalog.
//   - A failed or timed-out file does not stop its siblings; see
//     workerpool.Run for the timeout policy.
//
// Returns:
//   - Outcome: the plan and one tagged result per planned file.
//   - error: only when the batch itself is aborted (ctx or PolicyFail).
func (g *Generator) Generate(ctx context.Context, req Request) (Outcome, error) {
	seed := req.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	master := rand.New(rand.NewPCG(seed, 0))

	planned := Plan(req.Dates, req.Markets, req.MaxSubFiles, master)

	tasks := make([]workerpool.Task[FileResult], len(planned))
	for i, spec := range planned {
		fileSeed := master.Uint64()
		tasks[i] = workerpool.Task[FileResult]{
			Name: spec.FileName(),
			Run: func(ctx context.Context) (FileResult, error) {
				return g.WriteFile(ctx, spec, rand.New(rand.NewPCG(fileSeed, uint64(i))))
			},
		}
	}

	start := time.Now()
	pool := req.Pool
	if pool.Phase == "" {
		pool.Phase = "generate"
	}
	results, err := workerpool.Run(ctx, pool, tasks)

	logger.FromContext(ctx).Info().
		Int("planned", len(planned)).
		Int("generated", workerpool.Count(results, workerpool.Succeeded)).
		Int("failed", workerpool.Count(results, workerpool.Failed)).
		Int("timed_out", workerpool.Count(results, workerpool.TimedOut)).
		Dur("elapsed", time.Since(start)).
		Msg("generation finished")

	return Outcome{Planned: planned, Results: results}, err
}
