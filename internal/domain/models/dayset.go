package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DaySet holds the ticks parsed from one input file.
//
// Market, Date and Part are taken from the file name when it is parsed.
// Exchange is assigned by the aggregator when the set joins a group.
type DaySet struct {
	SourceFileName string
	Market         string
	Date           time.Time
	Part           int
	Exchange       string
	Records        []TickRecord

	traded []string
}

// TradedInstruments returns the instruments present in Records, sorted.
// The result is cached until the next Merge.
func (d *DaySet) TradedInstruments() []string {
	if d.traded != nil {
		return d.traded
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range d.Records {
		if _, ok := seen[r.Instrument]; ok {
			continue
		}
		seen[r.Instrument] = struct{}{}
		out = append(out, r.Instrument)
	}
	sort.Strings(out)
	d.traded = out
	return out
}

// Merge appends the records of others to d. Aggregates computed afterwards do
// not depend on the order of the merged sets.
func (d *DaySet) Merge(others ...*DaySet) *DaySet {
	// Cap the slice so the first append copies instead of writing into an
	// array shared with another set.
	d.Records = d.Records[:len(d.Records):len(d.Records)]
	for _, o := range others {
		if o == nil || o == d {
			continue
		}
		d.Records = append(d.Records, o.Records...)
	}
	d.traded = nil
	return d
}

// instrumentStats accumulates close/max/min/volume for one instrument.
type instrumentStats struct {
	Close     decimal.Decimal
	CloseTime time.Time
	Max       decimal.Decimal
	Min       decimal.Decimal
	Volume    decimal.Decimal
	Trades    int
}

func (s *instrumentStats) add(r TickRecord) {
	if s.Trades == 0 {
		s.Close, s.CloseTime = r.Price, r.Time
		s.Max, s.Min = r.Price, r.Price
		s.Volume = decimal.NewFromInt(r.Quantity)
		s.Trades = 1
		return
	}
	// Strictly later wins, so the first record at the latest time is kept.
	if r.Time.After(s.CloseTime) {
		s.Close, s.CloseTime = r.Price, r.Time
	}
	if r.Price.GreaterThan(s.Max) {
		s.Max = r.Price
	}
	if r.Price.LessThan(s.Min) {
		s.Min = r.Price
	}
	s.Volume = s.Volume.Add(decimal.NewFromInt(r.Quantity))
	s.Trades++
}

// stats returns the aggregates of one instrument, or false if it never traded.
func (d *DaySet) stats(instrument string) (instrumentStats, bool) {
	var s instrumentStats
	for _, r := range d.Records {
		if r.Instrument == instrument {
			s.add(r)
		}
	}
	return s, s.Trades > 0
}

// SummaryRows computes one row per traded instrument in lexicographic order,
// in a single pass over Records.
func (d *DaySet) SummaryRows() []SummaryRow {
	byInstrument := make(map[string]*instrumentStats)
	for _, r := range d.Records {
		s, ok := byInstrument[r.Instrument]
		if !ok {
			s = &instrumentStats{}
			byInstrument[r.Instrument] = s
		}
		s.add(r)
	}

	rows := make([]SummaryRow, 0, len(byInstrument))
	for _, instrument := range d.TradedInstruments() {
		s := byInstrument[instrument]
		rows = append(rows, SummaryRow{
			Exchange:   d.Exchange,
			Date:       d.Date,
			Instrument: instrument,
			Close:      s.Close,
			Max:        s.Max,
			Min:        s.Min,
			Volume:     s.Volume,
		})
	}
	return rows
}
