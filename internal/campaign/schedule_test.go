package campaign

import (
	"testing"
	"time"
)

func TestWallClockInstant(t *testing.T) {
	tests := []struct {
		name string
		w    WallClock
		want string
	}{
		{
			name: "evening",
			w:    WallClock{Date: "2025-08-20", Meridiem: PM, Hour12: 6, Minute: 0},
			want: "2025-08-20T18:00:00+09:00",
		},
		{
			name: "midnight is 12 AM",
			w:    WallClock{Date: "2025-08-20", Meridiem: AM, Hour12: 12, Minute: 30},
			want: "2025-08-20T00:30:00+09:00",
		},
		{
			name: "noon is 12 PM",
			w:    WallClock{Date: "2025-08-20", Meridiem: PM, Hour12: 12, Minute: 0},
			want: "2025-08-20T12:00:00+09:00",
		},
		{
			name: "single digit padding",
			w:    WallClock{Date: "2025-01-02", Meridiem: AM, Hour12: 9, Minute: 10},
			want: "2025-01-02T09:10:00+09:00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.w.Instant()
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Instant() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWallClockInstantValidation(t *testing.T) {
	bad := []WallClock{
		{Date: "2025-13-40", Meridiem: AM, Hour12: 9, Minute: 0},
		{Date: "", Meridiem: AM, Hour12: 9, Minute: 0},
		{Date: "2025-08-20", Meridiem: "noon", Hour12: 9, Minute: 0},
		{Date: "2025-08-20", Meridiem: AM, Hour12: 0, Minute: 0},
		{Date: "2025-08-20", Meridiem: AM, Hour12: 13, Minute: 0},
		{Date: "2025-08-20", Meridiem: AM, Hour12: 9, Minute: 15},
		{Date: "2025-08-20", Meridiem: AM, Hour12: 9, Minute: 60},
	}
	for _, w := range bad {
		if _, err := w.Instant(); err == nil {
			t.Errorf("Instant() accepted invalid input %+v", w)
		}
	}
}

func TestWallClockAt(t *testing.T) {
	tests := []struct {
		hour int
		want WallClock
	}{
		{0, WallClock{Date: "2025-08-20", Meridiem: AM, Hour12: 12}},
		{9, WallClock{Date: "2025-08-20", Meridiem: AM, Hour12: 9}},
		{12, WallClock{Date: "2025-08-20", Meridiem: PM, Hour12: 12}},
		{18, WallClock{Date: "2025-08-20", Meridiem: PM, Hour12: 6}},
		{23, WallClock{Date: "2025-08-20", Meridiem: PM, Hour12: 11}},
	}
	for _, tt := range tests {
		ts := time.Date(2025, 8, 20, tt.hour, 42, 7, 0, time.UTC)
		if got := WallClockAt(ts); got != tt.want {
			t.Errorf("WallClockAt(hour=%d) = %+v, want %+v", tt.hour, got, tt.want)
		}
	}
}

// The builder deliberately performs no ordering validation between two
// schedule-test instants; B may come before A.
func TestInstantsMayBeUnordered(t *testing.T) {
	a := WallClock{Date: "2025-08-21", Meridiem: PM, Hour12: 3, Minute: 0}
	b := WallClock{Date: "2025-08-20", Meridiem: AM, Hour12: 8, Minute: 0}

	ia, err := a.Instant()
	if err != nil {
		t.Fatal(err)
	}
	ib, err := b.Instant()
	if err != nil {
		t.Fatal(err)
	}
	if !(ib < ia) {
		t.Fatalf("expected B instant %q before A instant %q", ib, ia)
	}
}
