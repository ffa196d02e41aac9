// Package ingestion discovers tick files for a date range and parses them
// concurrently into DaySets.
package ingestion

import (
	"context"
	"time"

	"github.com/guttosm/tickpulse/internal/domain/models"
	"github.com/guttosm/tickpulse/internal/logger"
	"github.com/guttosm/tickpulse/internal/storage"
	"github.com/guttosm/tickpulse/internal/workerpool"
)

// parseFn is an indirection for parsing one file; tests can override this.
var parseFn = parseFile

// ParseAll parses every file on a bounded pool.
//
//   - store: where the files live.
//   - files: names returned by CollectInputFiles.
//   - pool:  workers, per-file budget and timeout policy.
//
// Behavior:
//   - One task per file; a malformed line fails that file only.
//   - Failed and timed-out files are logged and left out of the DaySets.
//   - Cancelling ctx stops in-flight parsers.
//
// Returns:
//   - []*models.DaySet: parsed files in input order.
//   - []workerpool.Result: the tagged outcome of every file.
//   - error: only when the batch itself is aborted (ctx or PolicyFail).
func ParseAll(ctx context.Context, store storage.TickStore, files []string, pool workerpool.Options) ([]*models.DaySet, []workerpool.Result[*models.DaySet], error) {
	if pool.Phase == "" {
		pool.Phase = "parse"
	}
	logger.FromContext(ctx).Info().Int("files", len(files)).Str("dir", store.Dir()).Int("workers", pool.Workers).Msg("parsing start")

	tasks := make([]workerpool.Task[*models.DaySet], len(files))
	for i, name := range files {
		tasks[i] = workerpool.Task[*models.DaySet]{
			Name: name,
			Run: func(ctx context.Context) (*models.DaySet, error) {
				return parseFn(ctx, store, name)
			},
		}
	}

	start := time.Now()
	results, err := workerpool.Run(ctx, pool, tasks)
	sets := workerpool.Values(results)

	rows := 0
	for _, s := range sets {
		rows += len(s.Records)
	}
	logger.FromContext(ctx).Info().
		Int("parsed", len(sets)).
		Int("failed", workerpool.Count(results, workerpool.Failed)).
		Int("timed_out", workerpool.Count(results, workerpool.TimedOut)).
		Int("rows", rows).
		Dur("elapsed", time.Since(start)).
		Msg("parsing finished")

	return sets, results, err
}
