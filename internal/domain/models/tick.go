package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout is the time-of-day layout of a tick line (HH:MM:SS.ss).
const TimeLayout = "15:04:05.00"

// ErrMalformedRecord is returned when a tick line cannot be decoded.
var ErrMalformedRecord = errors.New("malformed tick record")

// TickRecord represents a single trade in a generated tick file.
//
// Line format (comma-space separated, no quoting, no header):
//
//	<Instrument>, <HH:MM:SS.ss>, <Price %.2f>, <Quantity>
//
// Time keeps only the clock part (date 0000-01-01 UTC), truncated to
// centisecond precision.
type TickRecord struct {
	Instrument string
	Time       time.Time
	Price      decimal.Decimal
	Quantity   int64
}

// NewTickRecord builds a record, normalizing time to a centisecond clock value.
func NewTickRecord(instrument string, at time.Time, price decimal.Decimal, quantity int64) TickRecord {
	return TickRecord{
		Instrument: instrument,
		Time:       ClockTime(at),
		Price:      price,
		Quantity:   quantity,
	}
}

// ClockTime strips the date from t and truncates it to centiseconds.
func ClockTime(t time.Time) time.Time {
	centis := t.Nanosecond() / int(10*time.Millisecond)
	return time.Date(0, 1, 1, t.Hour(), t.Minute(), t.Second(), centis*int(10*time.Millisecond), time.UTC)
}

// String encodes the record in the canonical line format.
func (r TickRecord) String() string {
	return fmt.Sprintf("%s, %s, %s, %d",
		r.Instrument,
		r.Time.Format(TimeLayout),
		r.Price.StringFixed(2),
		r.Quantity)
}

// DecodeTickFields converts the four already split fields of a tick line into
// a TickRecord. Surrounding spaces are ignored; negative prices or quantities
// are rejected.
func DecodeTickFields(fields []string) (TickRecord, error) {
	var r TickRecord
	if len(fields) != 4 {
		return r, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformedRecord, len(fields))
	}

	r.Instrument = strings.TrimSpace(fields[0])
	if r.Instrument == "" {
		return r, fmt.Errorf("%w: empty instrument", ErrMalformedRecord)
	}

	at, err := time.Parse(TimeLayout, strings.TrimSpace(fields[1]))
	if err != nil {
		return r, fmt.Errorf("%w: invalid time: %v", ErrMalformedRecord, err)
	}
	r.Time = ClockTime(at)

	price, err := decimal.NewFromString(strings.TrimSpace(fields[2]))
	if err != nil {
		return r, fmt.Errorf("%w: invalid price: %v", ErrMalformedRecord, err)
	}
	if price.IsNegative() {
		return r, fmt.Errorf("%w: negative price %s", ErrMalformedRecord, price)
	}
	r.Price = price

	qty, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
	if err != nil {
		return r, fmt.Errorf("%w: invalid quantity: %v", ErrMalformedRecord, err)
	}
	if qty < 0 {
		return r, fmt.Errorf("%w: negative quantity %d", ErrMalformedRecord, qty)
	}
	r.Quantity = qty

	return r, nil
}

// ParseTickLine decodes one canonical tick line.
func ParseTickLine(line string) (TickRecord, error) {
	return DecodeTickFields(strings.Split(line, ","))
}
