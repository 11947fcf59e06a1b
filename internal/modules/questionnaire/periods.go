package questionnaire

import (
	"strconv"
	"strings"
	"time"
)

// Window is a resolved [Start, End] day range plus the token it came from.
type Window struct {
	Start time.Time
	End   time.Time
	Token string
}

// StartISO returns the window start as a calendar day.
func (w Window) StartISO() string { return w.Start.Format("2006-01-02") }

// EndISO returns the window end as a calendar day.
func (w Window) EndISO() string { return w.End.Format("2006-01-02") }

// Months returns the number of calendar months the window touches,
// inclusive on both ends.
func (w Window) Months() int {
	if w.End.Before(w.Start) {
		return 0
	}
	return (w.End.Year()-w.Start.Year())*12 + int(w.End.Month()) - int(w.Start.Month()) + 1
}

// LastFullMonths returns the window covering the last n complete calendar
// months before today.
func LastFullMonths(n int, today time.Time) (time.Time, time.Time) {
	firstOfMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := firstOfMonth.AddDate(0, 0, -1)
	start := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(n - 1), 0)
	return start, end
}

// ParsePeriod resolves a period token relative to today:
//
//	"3m_full" (or empty)  last 3 complete calendar months
//	"Nm"                  first day of the month N-1 back, through today
//	"Nd"                  the last N days, through today
//
// Unrecognized tokens fall back to 3m_full.
func ParsePeriod(token string, today time.Time) Window {
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	t := strings.ToLower(strings.TrimSpace(token))

	if t == "" || t == "3m_full" {
		start, end := LastFullMonths(3, today)
		return Window{Start: start, End: end, Token: "3m_full"}
	}

	if n, ok := parseSuffixed(t, "m"); ok {
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(n - 1), 0)
		return Window{Start: start, End: today, Token: t}
	}
	if n, ok := parseSuffixed(t, "d"); ok {
		return Window{Start: today.AddDate(0, 0, -(n - 1)), End: today, Token: t}
	}

	start, end := LastFullMonths(3, today)
	return Window{Start: start, End: end, Token: "3m_full"}
}

func parseSuffixed(token, suffix string) (int, bool) {
	if !strings.HasSuffix(token, suffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(token, suffix)
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	if n < 1 {
		n = 1
	}
	return n, true
}
