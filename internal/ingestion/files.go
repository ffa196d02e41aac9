package ingestion

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/guttosm/tickpulse/internal/calendar"
	"github.com/guttosm/tickpulse/internal/storage"
)

// ErrNoInputFiles is returned when no file in the input directory matches the
// date range.
var ErrNoInputFiles = errors.New("no input files")

// fileNamePattern matches <market>-YYYY-MM-DD[-<part>].csv.
var fileNamePattern = regexp.MustCompile(`^(.+)-(\d{4}-\d{2}-\d{2})(?:-(\d+))?\.csv$`)

// FileKey is the structured form of an input file name.
type FileKey struct {
	Market string
	Date   time.Time
	Part   int
}

// ParseFileName splits an input file name into market, date and part.
// It returns false for names that do not follow the pattern or carry an
// impossible date.
func ParseFileName(name string) (FileKey, bool) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return FileKey{}, false
	}
	d, err := time.Parse(calendar.DateLayout, m[2])
	if err != nil {
		return FileKey{}, false
	}
	key := FileKey{Market: m[1], Date: d}
	if m[3] != "" {
		p, err := strconv.Atoi(m[3])
		if err != nil {
			return FileKey{}, false
		}
		key.Part = p
	}
	return key, true
}

// CollectInputFiles lists the files of store whose embedded date lies in
// [start, end]. Names that do not match the pattern are skipped silently.
//
// Returns:
//   - []string: matching file names, sorted.
//   - error: listing failure, or ErrNoInputFiles (with the directory) when
//     nothing matches.
func CollectInputFiles(store storage.TickStore, start, end time.Time) ([]string, error) {
	names, err := store.List()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, name := range names {
		key, ok := ParseFileName(name)
		if !ok || !calendar.Within(key.Date, start, end) {
			continue
		}
		out = append(out, name)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w in %s between %s and %s", ErrNoInputFiles, store.Dir(),
			start.Format(calendar.DateLayout), end.Format(calendar.DateLayout))
	}
	return out, nil
}
