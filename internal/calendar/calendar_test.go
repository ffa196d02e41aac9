package calendar

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsTradingDay_WeekendsAndHolidays(t *testing.T) {
	cases := []struct {
		name string
		day  time.Time
		want bool
	}{
		{"sunday", date(2017, 11, 26), false},
		{"saturday", date(2017, 11, 25), false},
		{"regular monday", date(2017, 11, 27), true},
		{"new year", date(2018, 1, 1), false},
		{"labour day", date(2018, 5, 1), false},
		{"christmas eve", date(2018, 12, 24), false},
		{"boxing day", date(2018, 12, 26), false},
		{"good friday 2018", date(2018, 3, 30), false},
		{"easter monday 2018", date(2018, 4, 2), false},
		{"day after easter monday", date(2018, 4, 3), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTradingDay(tc.day); got != tc.want {
				t.Fatalf("IsTradingDay(%s)=%v, want %v", tc.day.Format(DateLayout), got, tc.want)
			}
		})
	}
}

func TestEasterSunday_KnownYears(t *testing.T) {
	want := map[int]time.Time{
		2017: date(2017, 4, 16),
		2018: date(2018, 4, 1),
		2025: date(2025, 4, 20),
	}
	for y, w := range want {
		if got := easterSunday(y, time.UTC); !got.Equal(w) {
			t.Fatalf("easterSunday(%d)=%s, want %s", y, got.Format(DateLayout), w.Format(DateLayout))
		}
	}
}

func TestDays_InclusiveAscending(t *testing.T) {
	days := Days(date(2017, 11, 25), date(2017, 11, 28))
	if len(days) != 4 {
		t.Fatalf("want 4 days got %d", len(days))
	}
	for i := 1; i < len(days); i++ {
		if !days[i].After(days[i-1]) {
			t.Fatal("days should be strictly increasing")
		}
	}
	if Days(date(2017, 11, 28), date(2017, 11, 25)) != nil {
		t.Fatal("reversed range should be empty")
	}
}

func TestTradingDays_SkipsWeekend(t *testing.T) {
	days := TradingDays(date(2017, 11, 24), date(2017, 11, 27)) // Fri..Mon
	if len(days) != 2 {
		t.Fatalf("want 2 trading days got %d", len(days))
	}
}

func TestParseDate(t *testing.T) {
	if _, err := ParseDate("2017-11-25"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	for _, bad := range []string{"", "2017/11/25", "25-11-2017", "2017-13-01"} {
		if _, err := ParseDate(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestWithin(t *testing.T) {
	start, end := date(2017, 11, 25), date(2017, 11, 28)
	if !Within(start, start, end) || !Within(end, start, end) {
		t.Fatal("bounds must be inclusive")
	}
	if Within(date(2017, 11, 24), start, end) || Within(date(2017, 11, 29), start, end) {
		t.Fatal("outside dates must be excluded")
	}
}
