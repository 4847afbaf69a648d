package calendar

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsTradingDay(t *testing.T) {
	tests := []struct {
		name string
		d    time.Time
		want bool
	}{
		{"regular monday", date(2024, time.January, 8), true},
		{"saturday", date(2024, time.January, 6), false},
		{"sunday", date(2024, time.January, 7), false},
		{"new years day", date(2024, time.January, 1), false},
		{"mlk day 2024", date(2024, time.January, 15), false},
		{"presidents day 2024", date(2024, time.February, 19), false},
		{"good friday 2024", date(2024, time.March, 29), false},
		{"memorial day 2024", date(2024, time.May, 27), false},
		{"juneteenth 2024", date(2024, time.June, 19), false},
		{"independence day 2024", date(2024, time.July, 4), false},
		{"labor day 2024", date(2024, time.September, 2), false},
		{"thanksgiving 2024", date(2024, time.November, 28), false},
		{"christmas 2024", date(2024, time.December, 25), false},
		{"good friday 2025", date(2025, time.April, 18), false},
		{"july 4 observed 2026", date(2026, time.July, 3), false}, // falls on Saturday
		{"day after thanksgiving", date(2024, time.November, 29), true},
		{"christmas eve 2024", date(2024, time.December, 24), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTradingDay(tt.d); got != tt.want {
				t.Errorf("IsTradingDay(%s) = %v, want %v", tt.d.Format("2006-01-02"), got, tt.want)
			}
		})
	}
}

func TestPreviousTradingDay(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"midweek", date(2024, time.January, 10), date(2024, time.January, 9)},
		{"monday skips weekend", date(2024, time.January, 8), date(2024, time.January, 5)},
		{"after mlk monday", date(2024, time.January, 16), date(2024, time.January, 12)},
		{"after easter weekend", date(2024, time.April, 1), date(2024, time.March, 28)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PreviousTradingDay(tt.from)
			if err != nil {
				t.Fatalf("PreviousTradingDay failed: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("PreviousTradingDay(%s) = %s, want %s",
					tt.from.Format("2006-01-02"), got.Format("2006-01-02"), tt.want.Format("2006-01-02"))
			}
		})
	}
}

func TestKthPreviousTradingDay(t *testing.T) {
	// Friday Jan 12 back 5 trading days is Friday Jan 5.
	got, err := KthPreviousTradingDay(date(2024, time.January, 12), 5)
	if err != nil {
		t.Fatalf("KthPreviousTradingDay failed: %v", err)
	}
	if want := date(2024, time.January, 5); !got.Equal(want) {
		t.Errorf("KthPreviousTradingDay = %s, want %s", got.Format("2006-01-02"), want.Format("2006-01-02"))
	}

	if _, err := KthPreviousTradingDay(date(2024, time.January, 12), 0); err == nil {
		t.Error("k=0 must error")
	}
}
