package appointment

import (
	"strings"
	"time"
)

// Period selects a calendar window for appointment listings.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

func ParsePeriod(raw string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case "":
		return "", nil
	case PeriodDay, PeriodWeek, PeriodMonth:
		return p, nil
	}
	return "", ErrUnknownPeriod
}

// Bounds returns [from, to) of the period containing now, in loc.
// Weeks start on Monday.
func (p Period) Bounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	y, m, d := local.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)

	switch p {
	case PeriodWeek:
		sinceMonday := (int(midnight.Weekday()) + 6) % 7
		start := midnight.AddDate(0, 0, -sinceMonday)
		return start, start.AddDate(0, 0, 7)
	case PeriodMonth:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0)
	default:
		return midnight, midnight.AddDate(0, 0, 1)
	}
}
