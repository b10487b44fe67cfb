// Package streak holds the pure date logic behind the consecutive-day habit
// counter. All mutation of the persisted record happens in the store; this
// package only decides what the next record should be.
package streak

import (
	"time"

	"moonolog/internal/domain"
)

// DayLayout is the canonical calendar-day form used everywhere a day is
// compared or persisted.
const DayLayout = "2006-01-02"

// Day formats an instant as its local calendar day.
func Day(t time.Time) string {
	return t.Format(DayLayout)
}

// Advance applies one completed session at the given instant and reports
// whether the record changed. Calling it again on the same calendar day is a
// no-op, so a day can never be counted twice.
func Advance(state domain.StreakState, now time.Time) (domain.StreakState, bool) {
	today := Day(now)
	if state.LastSpokenDate == today {
		return state, false
	}

	yesterday := Day(now.AddDate(0, 0, -1))
	if state.LastSpokenDate == yesterday {
		state.Streak++
	} else {
		// Gap of two or more days, a fresh record, or an out-of-order
		// clock all restart the run at one.
		state.Streak = 1
	}

	state.LastSpokenDate = today
	state.TotalSessions++
	return state, true
}

// Stale reports whether the record's last completed day is more than one day
// behind the given instant. A stale record must be fully reset before any
// further accounting, otherwise the yesterday branch in Advance would extend
// a run that was already broken.
func Stale(lastSpokenDate string, now time.Time) bool {
	if lastSpokenDate == "" {
		return false
	}

	last, err := time.Parse(DayLayout, lastSpokenDate)
	if err != nil {
		// A record we cannot interpret cannot be trusted either.
		return true
	}

	return daysBetween(last, now) > 1
}

// daysBetween counts whole calendar days from the day of a to the day of b,
// normalized to UTC midnights so DST transitions cannot skew the count.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua) / (24 * time.Hour))
}
