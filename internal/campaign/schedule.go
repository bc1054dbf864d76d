package campaign

import (
	"fmt"
	"time"
)

// Meridiem is the AM/PM half of a 12-hour clock.
type Meridiem string

const (
	AM Meridiem = "AM"
	PM Meridiem = "PM"
)

// WallClock is a user-entered local send time. The composer never converts
// from the operator's locale; the chosen wall-clock time is always labeled
// Korean Standard Time (+09:00).
type WallClock struct {
	Date     string   `json:"date"` // YYYY-MM-DD
	Meridiem Meridiem `json:"meridiem"`
	Hour12   int      `json:"hour"`   // 1..12
	Minute   int      `json:"minute"` // 0,10,20,30,40,50
}

// Instant renders the wall-clock time as a fixed-offset ISO instant,
// YYYY-MM-DDThh:mm:00+09:00.
func (w WallClock) Instant() (string, error) {
	if err := w.validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%sT%02d:%02d:00+09:00", w.Date, w.hour24(), w.Minute), nil
}

func (w WallClock) hour24() int {
	if w.Meridiem == AM {
		if w.Hour12 == 12 {
			return 0
		}
		return w.Hour12
	}
	if w.Hour12 == 12 {
		return 12
	}
	return w.Hour12 + 12
}

func (w WallClock) validate() error {
	if _, err := time.Parse("2006-01-02", w.Date); err != nil {
		return fmt.Errorf("invalid date %q", w.Date)
	}
	if w.Meridiem != AM && w.Meridiem != PM {
		return fmt.Errorf("invalid meridiem %q", w.Meridiem)
	}
	if w.Hour12 < 1 || w.Hour12 > 12 {
		return fmt.Errorf("hour %d out of range 1..12", w.Hour12)
	}
	if w.Minute < 0 || w.Minute > 50 || w.Minute%10 != 0 {
		return fmt.Errorf("minute %d must be a multiple of 10 below 60", w.Minute)
	}
	return nil
}

// WallClockAt converts t into a WallClock, rounding the minute down to zero.
// Used to prefill the schedule form with the current time.
func WallClockAt(t time.Time) WallClock {
	w := WallClock{
		Date:   t.Format("2006-01-02"),
		Minute: 0,
	}
	h := t.Hour()
	if h >= 12 {
		w.Meridiem = PM
		if h == 12 {
			w.Hour12 = 12
		} else {
			w.Hour12 = h - 12
		}
	} else {
		w.Meridiem = AM
		if h == 0 {
			w.Hour12 = 12
		} else {
			w.Hour12 = h
		}
	}
	return w
}
