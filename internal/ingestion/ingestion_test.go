package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/guttosm/tickpulse/internal/domain/models"
	"github.com/guttosm/tickpulse/internal/storage"
	"github.com/guttosm/tickpulse/internal/workerpool"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseFileName(t *testing.T) {
	cases := []struct {
		name   string
		ok     bool
		market string
		part   int
	}{
		{"eurex-2017-11-25.csv", true, "eurex", 0},
		{"xetra-2017-11-25-3.csv", true, "xetra", 3},
		{"new-york-2017-11-25-1.csv", true, "new-york", 1},
		{"eurex-2017-11-25.csv.bak", false, "", 0},
		{"eurex-2017-11-25-.csv", false, "", 0},
		{"eurex-2017-13-45.csv", false, "", 0},
		{"2017-11-25.csv", false, "", 0},
		{"eurex_2017-11-25.csv", false, "", 0},
		{"eurex-25-11-2017.csv", false, "", 0},
		{"eurex-2017-11-25.txt", false, "", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, ok := ParseFileName(tc.name)
			if ok != tc.ok {
				t.Fatalf("ParseFileName(%q) ok=%v, want %v", tc.name, ok, tc.ok)
			}
			if ok && (key.Market != tc.market || key.Part != tc.part) {
				t.Fatalf("unexpected key %+v", key)
			}
		})
	}
}

func TestCollectInputFiles_FiltersByPatternAndRange(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"eurex-2017-11-24.csv",   // before range
		"eurex-2017-11-25.csv",   // start bound
		"xetra-2017-11-26-1.csv", // inside
		"xetra-2017-11-26-2.csv", // inside
		"moex-2017-11-28.csv",    // end bound
		"moex-2017-11-29.csv",    // after range
		"readme.md",              // wrong pattern
		"eurex-2017-11-26.tmp",   // wrong extension
	} {
		writeTempFile(t, dir, name, "")
	}

	got, err := CollectInputFiles(storage.NewFileStore(dir), day(2017, 11, 25), day(2017, 11, 28))
	if err != nil {
		t.Fatalf("CollectInputFiles: %v", err)
	}
	want := "eurex-2017-11-25.csv,moex-2017-11-28.csv,xetra-2017-11-26-1.csv,xetra-2017-11-26-2.csv"
	if strings.Join(got, ",") != want {
		t.Fatalf("want %s got %s", want, strings.Join(got, ","))
	}
}

func TestCollectInputFiles_EmptyIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "eurex-2016-01-01.csv", "")
	writeTempFile(t, dir, "junk.csv", "")

	_, err := CollectInputFiles(storage.NewFileStore(dir), day(2017, 11, 25), day(2017, 11, 28))
	if !errors.Is(err, ErrNoInputFiles) {
		t.Fatalf("expected ErrNoInputFiles, got %v", err)
	}
	if !strings.Contains(err.Error(), dir) {
		t.Fatalf("error should echo the directory: %v", err)
	}
}

func TestParseAll_FailedFileDoesNotAbortBatch(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "eurex-2017-11-25.csv", "A, 08:00:00.00, 10.00, 100\n")
	writeTempFile(t, dir, "xetra-2017-11-25.csv", "A, 08:00:00.00, oops, 100\n")
	writeTempFile(t, dir, "moex-2017-11-25.csv", "B, 09:00:00.00, 3.00, 200\nB, 10:00:00.00, 4.00, 100\n")

	files := []string{"eurex-2017-11-25.csv", "moex-2017-11-25.csv", "xetra-2017-11-25.csv"}
	sets, results, err := ParseAll(context.Background(), storage.NewFileStore(dir), files, workerpool.Options{Workers: 2})
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("want 2 parsed sets got %d", len(sets))
	}
	if sets[0].SourceFileName != "eurex-2017-11-25.csv" || sets[1].SourceFileName != "moex-2017-11-25.csv" {
		t.Fatalf("sets not in input order: %s, %s", sets[0].SourceFileName, sets[1].SourceFileName)
	}
	if results[2].Status != workerpool.Failed || !errors.Is(results[2].Err, models.ErrMalformedRecord) {
		t.Fatalf("xetra file should fail as malformed: %+v", results[2])
	}
}

func TestParseAll_TimedOutFileIsDropped(t *testing.T) {
	old := parseFn
	parseFn = func(ctx context.Context, store storage.TickStore, name string) (*models.DaySet, error) {
		if name == "slow-2017-11-25.csv" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &models.DaySet{SourceFileName: name}, nil
	}
	t.Cleanup(func() { parseFn = old })

	files := []string{"fast-2017-11-25.csv", "slow-2017-11-25.csv"}
	sets, results, err := ParseAll(context.Background(), storage.NewFileStore(t.TempDir()), files,
		workerpool.Options{TaskTimeout: 20 * time.Millisecond, TimeoutPolicy: workerpool.PolicyDrop})
	if err != nil {
		t.Fatalf("drop policy must not fail the batch: %v", err)
	}
	if len(sets) != 1 || sets[0].SourceFileName != "fast-2017-11-25.csv" {
		t.Fatalf("unexpected sets %v", sets)
	}
	if results[1].Status != workerpool.TimedOut {
		t.Fatalf("slow file should be timed out, got %s", results[1].Status)
	}

	_, _, err = ParseAll(context.Background(), storage.NewFileStore(t.TempDir()), files,
		workerpool.Options{TaskTimeout: 20 * time.Millisecond, TimeoutPolicy: workerpool.PolicyFail})
	if !errors.Is(err, workerpool.ErrTaskTimedOut) {
		t.Fatalf("fail policy should surface ErrTaskTimedOut, got %v", err)
	}
}
