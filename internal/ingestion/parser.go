package ingestion

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/guttosm/tickpulse/internal/domain/models"
	"github.com/guttosm/tickpulse/internal/storage"
)

// parseFile opens, decodes and returns one tick file as a DaySet.
// It fails on:
//   - a name that does not follow <market>-YYYY-MM-DD[-<part>].csv
//   - unrecoverable I/O errors
//   - the first malformed line (wrong field count, bad time/price/quantity)
//
// It tolerates:
//   - blank lines
//   - spaces after the comma separator
func parseFile(ctx context.Context, store storage.TickStore, name string) (*models.DaySet, error) {
	key, ok := ParseFileName(name)
	if !ok {
		return nil, fmt.Errorf("unexpected file name %q", name)
	}

	f, err := store.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	records, err := decodeTicks(ctx, f)
	if err != nil {
		return nil, err
	}

	return &models.DaySet{
		SourceFileName: name,
		Market:         key.Market,
		Date:           key.Date,
		Part:           key.Part,
		Records:        records,
	}, nil
}

// decodeTicks reads canonical tick lines until EOF.
func decodeTicks(ctx context.Context, r io.Reader) ([]models.TickRecord, error) {
	cr := csv.NewReader(r)
	cr.Comma = ','
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = 4
	cr.ReuseRecord = true

	var out []models.TickRecord
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rec, err := cr.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			// csv.ParseError already carries the line number.
			return nil, fmt.Errorf("%w: %v", models.ErrMalformedRecord, err)
		}

		tr, err := models.DecodeTickFields(rec)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, tr)
	}
	return out, nil
}
