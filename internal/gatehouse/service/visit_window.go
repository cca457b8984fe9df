package service

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

var weekdays = []string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}

func dayCode(d time.Weekday) string { return weekdays[d] }

// parseDays upper-cases and validates three-letter weekday codes.
func parseDays(days []string) ([]string, error) {
	out := make([]string, 0, len(days))
	for _, d := range days {
		code := strings.ToUpper(strings.TrimSpace(d))
		if !slices.Contains(weekdays, code) {
			return nil, fmt.Errorf("unknown weekday %q", d)
		}
		if !slices.Contains(out, code) {
			out = append(out, code)
		}
	}
	return out, nil
}

// parseClock parses "HH:MM" or "HH:MM:SS" into seconds since midnight.
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("time of day %q must be HH:MM", s)
	}
	limits := []int{23, 59, 59}
	secs := 0
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || len(p) != 2 || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("time of day %q must be HH:MM", s)
		}
		secs = secs*60 + n
	}
	if len(parts) == 2 {
		secs *= 60
	}
	return secs, nil
}

// recurringAllows reports whether local (already in the estate time zone)
// falls on an allowed day and inside the daily window.  An empty day list
// allows every day; the window applies only when both ends are set, and a
// window whose end is before its start runs overnight.
func recurringAllows(p types.VisitPass, local time.Time) (bool, string) {
	if len(p.RecurringDays) > 0 {
		today := dayCode(local.Weekday())
		allowed := slices.ContainsFunc(p.RecurringDays, func(d string) bool {
			return strings.EqualFold(strings.TrimSpace(d), today)
		})
		if !allowed {
			return false, "not an allowed day"
		}
	}

	if p.RecurringStart == "" || p.RecurringEnd == "" {
		return true, ""
	}
	start, err := parseClock(p.RecurringStart)
	if err != nil {
		return false, "bad recurring window"
	}
	end, err := parseClock(p.RecurringEnd)
	if err != nil {
		return false, "bad recurring window"
	}

	now := local.Hour()*3600 + local.Minute()*60 + local.Second()
	inside := start <= now && now <= end
	if end < start {
		inside = now >= start || now <= end
	}
	if !inside {
		return false, "outside allowed hours"
	}
	return true, ""
}
