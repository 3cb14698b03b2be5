package cod

import "time"

// Calendar places delivery attempts on business days at a fixed dispatch hour.
type Calendar struct {
	Location     *time.Location
	DispatchHour int
}

// NextBusinessDay returns the dispatch time on the day after t, moved to
// Monday when that day falls on a weekend.
func (c Calendar) NextBusinessDay(t time.Time) time.Time {
	local := t.In(c.location())
	next := time.Date(local.Year(), local.Month(), local.Day()+1, c.DispatchHour, 0, 0, 0, c.location())
	return skipWeekend(next)
}

// AddBusinessDays applies NextBusinessDay n times (n < 1 is treated as 1).
func (c Calendar) AddBusinessDays(t time.Time, n int) time.Time {
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		t = c.NextBusinessDay(t)
	}
	return t
}

// OnOrAfter returns the dispatch time on the requested date, shifted off the
// weekend, but never earlier than the next business day after now.
func (c Calendar) OnOrAfter(requested, now time.Time) time.Time {
	local := requested.In(c.location())
	at := skipWeekend(time.Date(local.Year(), local.Month(), local.Day(), c.DispatchHour, 0, 0, 0, c.location()))
	earliest := c.NextBusinessDay(now)
	if at.Before(earliest) {
		return earliest
	}
	return at
}

func (c Calendar) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// IsWeekend reports whether t falls on Saturday or Sunday in its own location.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func skipWeekend(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, 2)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	}
	return t
}
