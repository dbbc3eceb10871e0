package automation

import (
	"time"

	"microerp/pkg/domain"
)

// NextGenerationDate returns the date a template is next due.
//
// Without a previous generation the candidate is dayOfMonth in today's month,
// moved one month ahead when it already passed; a candidate equal to today is
// due today. With a previous generation the period is added to its month and
// the day reset to dayOfMonth. dayOfMonth is clamped to [1, 28].
func NextGenerationDate(last *time.Time, period domain.Period, dayOfMonth int, today time.Time) time.Time {
	day := domain.ClampDayOfMonth(dayOfMonth)
	today = domain.DateOf(today)
	if last == nil {
		candidate := domain.NewDate(today.Year(), today.Month(), day)
		if candidate.Before(today) {
			candidate = domain.NewDate(today.Year(), today.Month()+1, day)
		}
		return candidate
	}
	l := domain.DateOf(*last)
	// month arithmetic on the 1st so Jan 31 + 1 month stays in February
	first := domain.NewDate(l.Year(), l.Month(), 1).AddDate(0, period.Months(), 0)
	return domain.NewDate(first.Year(), first.Month(), day)
}

// IsDue reports whether a template whose next date is next is due on today.
func IsDue(next, today time.Time) bool {
	return !domain.DateOf(today).Before(domain.DateOf(next))
}
