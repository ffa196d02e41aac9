package generator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guttosm/tickpulse/internal/calendar"
	"github.com/guttosm/tickpulse/internal/catalog"
	"github.com/guttosm/tickpulse/internal/domain/models"
	"github.com/guttosm/tickpulse/internal/logger"
	"github.com/guttosm/tickpulse/internal/storage"
)

const (
	DefaultSessionOpen         = "08:00:00.00"
	DefaultSessionClose        = "16:30:00.00"
	DefaultOperationsFrequency = 2
	DefaultIncrementInterval   = 10 * time.Minute
	DefaultMaxSubFiles         = 2

	partSuffix = ".part"
)

var (
	priceFloor  = decimal.RequireFromString("0.95")
	priceSpread = decimal.RequireFromString("0.10")
)

// Settings controls the synthetic session of one file.
type Settings struct {
	SessionOpen         time.Time // clock value, see models.ClockTime
	SessionClose        time.Time
	OperationsFrequency int           // lines written between two clock advances
	IncrementInterval   time.Duration // clock advance
}

// DefaultSettings returns the 08:00-16:30 session advancing 10 minutes every 2 lines.
func DefaultSettings() Settings {
	open, _ := time.Parse(models.TimeLayout, DefaultSessionOpen)
	closing, _ := time.Parse(models.TimeLayout, DefaultSessionClose)
	return Settings{
		SessionOpen:         open,
		SessionClose:        closing,
		OperationsFrequency: DefaultOperationsFrequency,
		IncrementInterval:   DefaultIncrementInterval,
	}
}

func (s Settings) validate() error {
	if s.OperationsFrequency <= 0 {
		return fmt.Errorf("operations frequency must be positive, got %d", s.OperationsFrequency)
	}
	if s.IncrementInterval <= 0 {
		return fmt.Errorf("increment interval must be positive, got %s", s.IncrementInterval)
	}
	if !s.SessionOpen.Before(s.SessionClose) {
		return fmt.Errorf("session open %s is not before close %s",
			s.SessionOpen.Format(models.TimeLayout), s.SessionClose.Format(models.TimeLayout))
	}
	return nil
}

// FileSpec identifies one generated file.
type FileSpec struct {
	Market string
	Date   time.Time
	Part   int // 0 when the day has a single file
}

// FileName returns <market>-<YYYY-MM-DD>[-<part>].csv.
func (f FileSpec) FileName() string {
	name := f.Market + "-" + f.Date.Format(calendar.DateLayout)
	if f.Part != 0 {
		name += fmt.Sprintf("-%d", f.Part)
	}
	return name + ".csv"
}

// Plan decides how many parts each (market, date) gets, in [1, maxSubFiles],
// and returns the file list ordered by date, then market as given.
func Plan(dates []time.Time, markets []string, maxSubFiles int, rng *rand.Rand) []FileSpec {
	if maxSubFiles < 1 {
		maxSubFiles = 1
	}
	var out []FileSpec
	for _, d := range dates {
		for _, m := range markets {
			parts := rng.IntN(maxSubFiles) + 1
			if parts == 1 {
				out = append(out, FileSpec{Market: m, Date: d})
				continue
			}
			for p := 1; p <= parts; p++ {
				out = append(out, FileSpec{Market: m, Date: d, Part: p})
			}
		}
	}
	return out
}

// Generator writes synthetic tick files into a TickStore.
type Generator struct {
	store    storage.TickStore
	catalog  *catalog.Catalog
	settings Settings
}

// New validates settings and returns a Generator. The catalog is only read.
func New(store storage.TickStore, cat *catalog.Catalog, settings Settings) (*Generator, error) {
	if store == nil {
		return nil, errors.New("tick store is required")
	}
	if cat == nil || cat.Len() == 0 {
		return nil, errors.New("instrument catalog is empty")
	}
	if err := settings.validate(); err != nil {
		return nil, err
	}
	return &Generator{store: store, catalog: cat, settings: settings}, nil
}

// FileResult describes one written file.
type FileResult struct {
	FileName string
	Lines    int
	Elapsed  time.Duration
}

// WriteFile synthesizes one file for spec.
//
// Behavior:
//   - Starts the generation clock at the session open and stops once it
//     reaches the session close.
//   - Each line picks a uniform instrument, a price in base*[0.95, 1.05),
//     a quantity multiple of 100 in [0, 3000) and a time of clock plus
//     0-9 minutes with a random second.
//   - Advances the clock by IncrementInterval after every
//     OperationsFrequency lines.
//   - Stops early with ctx.Err() when ctx is cancelled.
//   - Lines go to a ".part" sibling that is renamed into place only once the
//     file is complete; on any error the partial file is removed.
func (g *Generator) WriteFile(ctx context.Context, spec FileSpec, rng *rand.Rand) (res FileResult, err error) {
	start := time.Now()
	res = FileResult{FileName: spec.FileName()}
	part := res.FileName + partSuffix

	f, err := g.store.Create(part)
	if err != nil {
		return res, fmt.Errorf("create %s: %w", res.FileName, err)
	}
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = f.Close()
		}
		if rmErr := g.store.Remove(part); rmErr != nil {
			logger.FromContext(ctx).Warn().Err(rmErr).Str("file", part).Msg("partial file left behind")
		}
	}()

	w := bufio.NewWriter(f)
	clock := g.settings.SessionOpen
	for clock.Before(g.settings.SessionClose) {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		rec := g.nextRecord(clock, rng)
		if _, err := w.WriteString(rec.String() + "\n"); err != nil {
			return res, fmt.Errorf("write %s line %d: %w", res.FileName, res.Lines+1, err)
		}
		res.Lines++
		if res.Lines%g.settings.OperationsFrequency == 0 {
			clock = clock.Add(g.settings.IncrementInterval)
		}
	}

	if err := w.Flush(); err != nil {
		return res, fmt.Errorf("flush %s: %w", res.FileName, err)
	}
	closed = true
	if err := f.Close(); err != nil {
		return res, fmt.Errorf("close %s: %w", res.FileName, err)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := g.store.Rename(part, res.FileName); err != nil {
		return res, err
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func (g *Generator) nextRecord(clock time.Time, rng *rand.Rand) models.TickRecord {
	in := g.catalog.At(rng.IntN(g.catalog.Len()))

	factor := priceFloor.Add(priceSpread.Mul(decimal.NewFromFloat(rng.Float64())))
	price := in.BasePrice.Mul(factor).Round(2)

	at := clock.Add(time.Duration(rng.IntN(10)) * time.Minute)
	at = time.Date(0, 1, 1, at.Hour(), at.Minute(), rng.IntN(60), at.Nanosecond(), time.UTC)

	return models.NewTickRecord(in.Code, at, price, int64(rng.IntN(30))*100)
}
