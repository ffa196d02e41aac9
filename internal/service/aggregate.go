// Package service turns parsed DaySets into the ordered summary report.
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/guttosm/tickpulse/internal/calendar"
	"github.com/guttosm/tickpulse/internal/domain/models"
	"github.com/guttosm/tickpulse/internal/logger"
	"github.com/guttosm/tickpulse/internal/workerpool"
)

// GroupKey identifies the DaySets that are merged into one report group.
type GroupKey struct {
	Exchange string
	Date     time.Time
}

func (k GroupKey) String() string {
	return k.Exchange + "-" + k.Date.Format(calendar.DateLayout)
}

// Aggregator defines the business logic for summarising tick files.
type Aggregator interface {
	Aggregate(ctx context.Context, sets []*models.DaySet, start, end time.Time) (*models.Report, error)
}

type aggregator struct {
	pool workerpool.Options
}

// NewAggregator returns an Aggregator that runs one task per group on pool.
func NewAggregator(pool workerpool.Options) Aggregator {
	if pool.Phase == "" {
		pool.Phase = "aggregate"
	}
	return &aggregator{pool: pool}
}

// Aggregate groups sets by exchange and day and summarises every group.
//
// Parameters:
//   - sets: parsed DaySets; nil entries and sets dated outside [start, end]
//     are ignored. Sets are mutated: Exchange is assigned and same-day parts
//     are merged into the first part.
//   - start, end: inclusive date range.
//
// Behavior:
//   - Groups are ordered by exchange, then date.
//   - Within a group sets are merged in source file name order.
//   - Each group is summarised by its own pool task; a group that fails or
//     times out is left out of the report (or aborts it under PolicyFail).
//   - Groups without rows are skipped.
//
// Returns:
//   - *models.Report: groups in report order.
//   - error: ctx cancellation or ErrTaskTimedOut under PolicyFail.
func (a *aggregator) Aggregate(ctx context.Context, sets []*models.DaySet, start, end time.Time) (*models.Report, error) {
	groups := GroupDaySets(sets, start, end)
	keys := SortedKeys(groups)

	tasks := make([]workerpool.Task[[]models.SummaryRow], 0, len(keys))
	for _, key := range keys {
		merged := MergeGroup(key, groups[key])
		if merged == nil {
			continue
		}
		tasks = append(tasks, workerpool.Task[[]models.SummaryRow]{
			Name: key.String(),
			Run: func(ctx context.Context) ([]models.SummaryRow, error) {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return merged.SummaryRows(), nil
			},
		})
	}

	t0 := time.Now()
	results, err := workerpool.Run(ctx, a.pool, tasks)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	report := &models.Report{}
	for _, rows := range workerpool.Values(results) {
		if len(rows) == 0 {
			continue
		}
		report.Groups = append(report.Groups, rows)
	}

	logger.FromContext(ctx).Info().
		Int("groups", len(report.Groups)).
		Int("rows", len(report.Rows())).
		Int("failed", workerpool.Count(results, workerpool.Failed)).
		Int("timed_out", workerpool.Count(results, workerpool.TimedOut)).
		Dur("elapsed", time.Since(t0)).
		Msg("aggregation finished")
	return report, nil
}

// GroupDaySets buckets sets by {exchange, date}. The exchange is the market
// named in the source file.
func GroupDaySets(sets []*models.DaySet, start, end time.Time) map[GroupKey][]*models.DaySet {
	groups := make(map[GroupKey][]*models.DaySet)
	for _, s := range sets {
		if s == nil || !calendar.Within(s.Date, start, end) {
			continue
		}
		key := GroupKey{Exchange: s.Market, Date: s.Date}
		groups[key] = append(groups[key], s)
	}
	return groups
}

// SortedKeys returns the group keys ordered by exchange, then date.
func SortedKeys(groups map[GroupKey][]*models.DaySet) []GroupKey {
	keys := make([]GroupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Exchange != keys[j].Exchange {
			return keys[i].Exchange < keys[j].Exchange
		}
		return keys[i].Date.Before(keys[j].Date)
	})
	return keys
}

// MergeGroup labels every set with the group exchange and merges them, in
// source file name order, into the first one. It returns nil for an empty group.
func MergeGroup(key GroupKey, sets []*models.DaySet) *models.DaySet {
	if len(sets) == 0 {
		return nil
	}
	sort.SliceStable(sets, func(i, j int) bool {
		return sets[i].SourceFileName < sets[j].SourceFileName
	})
	for _, s := range sets {
		s.Exchange = key.Exchange
	}
	return sets[0].Merge(sets[1:]...)
}
