package models

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LineSeparator is the platform line terminator used in the report.
var LineSeparator = func() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}()

// SummaryRow is the report line of one instrument on one exchange and day.
//
// Volume is an integral decimal so that the sum of quantities never overflows.
type SummaryRow struct {
	Exchange   string
	Date       time.Time
	Instrument string
	Close      decimal.Decimal
	Max        decimal.Decimal
	Min        decimal.Decimal
	Volume     decimal.Decimal
}

// String renders the row as:
//
//	<exchange>, <YYYY-MM-DD>, <instrument>, <close>, <max>, <min>, <volume>
func (r SummaryRow) String() string {
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s, %s",
		r.Exchange,
		r.Date.Format("2006-01-02"),
		r.Instrument,
		r.Close.StringFixed(2),
		r.Max.StringFixed(2),
		r.Min.StringFixed(2),
		r.Volume.StringFixed(0))
}

// Report is the ordered result of an aggregation: one group per
// (exchange, date), each holding rows sorted by instrument.
type Report struct {
	Groups [][]SummaryRow
}

// Rows flattens the groups in report order.
func (r *Report) Rows() []SummaryRow {
	var out []SummaryRow
	for _, g := range r.Groups {
		out = append(out, g...)
	}
	return out
}

// Text joins all rows with LineSeparator. There is no trailing separator.
func (r *Report) Text() string {
	lines := make([]string, 0)
	for _, g := range r.Groups {
		for _, row := range g {
			lines = append(lines, row.String())
		}
	}
	return strings.Join(lines, LineSeparator)
}
