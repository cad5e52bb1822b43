package jobs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule computes fire times for the two cron shapes the worker uses:
// "*/N * * * *" (every N minutes) and "M H * * *" (daily at a fixed time).
// Expressions are evaluated in server-local time.
type Schedule interface {
	Next(after time.Time) time.Time
}

// ParseSchedule parses a five-field cron expression restricted to the two
// supported shapes.
func ParseSchedule(expr string, loc *time.Location) (Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression %q: want 5 fields, got %d", expr, len(fields))
	}
	for _, f := range fields[2:] {
		if f != "*" {
			return nil, fmt.Errorf("cron expression %q: day/month/weekday fields must be *", expr)
		}
	}

	minute, hour := fields[0], fields[1]

	if strings.HasPrefix(minute, "*/") && hour == "*" {
		n, err := strconv.Atoi(strings.TrimPrefix(minute, "*/"))
		if err != nil || n < 1 || n > 59 {
			return nil, fmt.Errorf("cron expression %q: invalid minute step", expr)
		}
		return everyNMinutes{n: n}, nil
	}

	m, err := strconv.Atoi(minute)
	if err != nil || m < 0 || m > 59 {
		return nil, fmt.Errorf("cron expression %q: invalid minute", expr)
	}
	h, err := strconv.Atoi(hour)
	if err != nil || h < 0 || h > 23 {
		return nil, fmt.Errorf("cron expression %q: invalid hour", expr)
	}
	return dailyAt{hour: h, minute: m, loc: loc}, nil
}

// everyNMinutes fires at second 0 of every minute divisible by n,
// restarting at the top of each hour like standard cron step syntax.
type everyNMinutes struct {
	n int
}

func (s everyNMinutes) Next(after time.Time) time.Time {
	t := after.Truncate(time.Minute).Add(time.Minute)
	for t.Minute()%s.n != 0 {
		t = t.Add(time.Minute)
	}
	return t
}

// dailyAt fires once per local day at hour:minute.
type dailyAt struct {
	hour   int
	minute int
	loc    *time.Location
}

func (s dailyAt) Next(after time.Time) time.Time {
	t := after.In(s.loc)
	next := time.Date(t.Year(), t.Month(), t.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
