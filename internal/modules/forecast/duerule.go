package forecast

import (
	"strconv"
	"strings"
	"time"
)

// Due rules come in two spellings: bare period names stored on older rows
// (ONE_OFF, WEEKLY, BIWEEKLY, MONTHLY, ANNUAL) and the parameterized forms
// fixed_date(d), monthly_on(day), weekly_on(weekday), every_n_days(n, anchor).
// Anything unrecognized collapses to a one-off on the seed date.

type ruleKind int

const (
	ruleOneOff ruleKind = iota
	ruleEveryNDays
	ruleMonthly
	ruleAnnual
	ruleFixedDate
	ruleMonthlyOn
	ruleWeeklyOn
)

type dueRule struct {
	kind    ruleKind
	n       int       // every_n_days step
	day     int       // monthly_on day of month
	weekday int       // weekly_on, Monday=0
	fixed   time.Time // fixed_date / every_n_days anchor
	anchor  bool      // every_n_days carries an explicit anchor
}

var weekdayNames = map[string]int{
	"MON": 0, "MONDAY": 0,
	"TUE": 1, "TUESDAY": 1,
	"WED": 2, "WEDNESDAY": 2,
	"THU": 3, "THURSDAY": 3,
	"FRI": 4, "FRIDAY": 4,
	"SAT": 5, "SATURDAY": 5,
	"SUN": 6, "SUNDAY": 6,
}

// parseDueRule interprets a stored rule string. Never fails: unknown input
// is a one-off.
func parseDueRule(raw string) dueRule {
	s := strings.TrimSpace(raw)
	if s == "" {
		return dueRule{kind: ruleOneOff}
	}

	if open := strings.Index(s, "("); open >= 0 && strings.HasSuffix(s, ")") {
		name := strings.ToLower(strings.TrimSpace(s[:open]))
		args := strings.Split(s[open+1:len(s)-1], ",")
		for i := range args {
			args[i] = strings.TrimSpace(args[i])
		}
		switch name {
		case "fixed_date":
			if len(args) == 1 {
				if d, err := time.Parse("2006-01-02", args[0]); err == nil {
					return dueRule{kind: ruleFixedDate, fixed: d}
				}
			}
		case "monthly_on":
			if len(args) == 1 {
				if day, err := strconv.Atoi(args[0]); err == nil && day >= 1 && day <= 31 {
					return dueRule{kind: ruleMonthlyOn, day: day}
				}
			}
		case "weekly_on":
			if len(args) == 1 {
				if wd, ok := weekdayNames[strings.ToUpper(args[0])]; ok {
					return dueRule{kind: ruleWeeklyOn, weekday: wd}
				}
				if wd, err := strconv.Atoi(args[0]); err == nil && wd >= 0 && wd <= 6 {
					return dueRule{kind: ruleWeeklyOn, weekday: wd}
				}
			}
		case "every_n_days":
			if len(args) >= 1 {
				if n, err := strconv.Atoi(args[0]); err == nil && n >= 1 {
					r := dueRule{kind: ruleEveryNDays, n: n}
					if len(args) >= 2 && args[1] != "" {
						if a, err := time.Parse("2006-01-02", args[1]); err == nil {
							r.fixed = a
							r.anchor = true
						}
					}
					return r
				}
			}
		}
		return dueRule{kind: ruleOneOff}
	}

	switch strings.ToUpper(s) {
	case "ONE_OFF", "NONE":
		return dueRule{kind: ruleOneOff}
	case "WEEKLY":
		return dueRule{kind: ruleEveryNDays, n: 7}
	case "BIWEEKLY":
		return dueRule{kind: ruleEveryNDays, n: 14}
	case "MONTHLY", "MONTHLY_BY_DATE":
		return dueRule{kind: ruleMonthly}
	case "ANNUAL", "YEARLY":
		return dueRule{kind: ruleAnnual}
	}
	return dueRule{kind: ruleOneOff}
}

// occurrences yields every nominal date of the rule inside [start, end],
// stepping from seed. Occurrences that fall before start are skipped, not
// re-anchored: a monthly rule seeded on the 15th keeps firing on the 15th no
// matter where the window opens.
func (r dueRule) occurrences(seed, start, end time.Time) []time.Time {
	if end.Before(start) {
		return nil
	}

	var out []time.Time
	emit := func(d time.Time) {
		if !d.Before(start) && !d.After(end) {
			out = append(out, d)
		}
	}

	switch r.kind {
	case ruleOneOff:
		if !seed.IsZero() {
			emit(seed)
		}

	case ruleFixedDate:
		emit(r.fixed)

	case ruleEveryNDays:
		anchor := seed
		if r.anchor {
			anchor = r.fixed
		}
		if anchor.IsZero() {
			return nil
		}
		d := anchor
		// Jump close to the window instead of walking day ranges one by one.
		if d.Before(start) {
			gap := int(start.Sub(d).Hours() / 24)
			d = d.AddDate(0, 0, (gap/r.n)*r.n)
			for d.Before(start) {
				d = d.AddDate(0, 0, r.n)
			}
		}
		// Respect the seed as the first valid occurrence.
		for !seed.IsZero() && d.Before(seed) {
			d = d.AddDate(0, 0, r.n)
		}
		for !d.After(end) {
			emit(d)
			d = d.AddDate(0, 0, r.n)
		}

	case ruleMonthly:
		if seed.IsZero() {
			return nil
		}
		// Step k months from the seed, clamping per step so a 31st seed
		// recovers after short months (Jan 31, Feb 28, then Mar 31 again).
		for k := 0; ; k++ {
			d := addMonthsClamped(seed, k)
			if d.After(end) {
				break
			}
			emit(d)
		}

	case ruleAnnual:
		if seed.IsZero() {
			return nil
		}
		for k := 0; ; k++ {
			d := addMonthsClamped(seed, 12*k)
			if d.After(end) {
				break
			}
			emit(d)
		}

	case ruleMonthlyOn:
		// Canonical day-of-month grid; the seed only gates how early it starts.
		first := start
		if !seed.IsZero() && seed.After(start) {
			first = seed
		}
		y, m := first.Year(), first.Month()
		for {
			d := clampedDate(y, m, r.day)
			if d.After(end) {
				break
			}
			if !d.Before(first) {
				emit(d)
			}
			m++
			if m > 12 {
				m = 1
				y++
			}
		}

	case ruleWeeklyOn:
		first := start
		if !seed.IsZero() && seed.After(start) {
			first = seed
		}
		d := first
		for mondayIndex(d.Weekday()) != r.weekday {
			d = d.AddDate(0, 0, 1)
		}
		for !d.After(end) {
			emit(d)
			d = d.AddDate(0, 0, 7)
		}
	}

	return out
}

// addMonthsClamped adds months to a date, clamping the day to the target
// month's length rather than letting time.AddDate spill into the next month.
func addMonthsClamped(d time.Time, months int) time.Time {
	y := d.Year()
	m := int(d.Month()) - 1 + months
	y += m / 12
	m = m%12 + 1
	return clampedDate(y, time.Month(m), d.Day())
}

func clampedDate(year int, month time.Month, day int) time.Time {
	last := daysInMonth(year, month)
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// mondayIndex maps Go's Sunday-based weekday to Monday=0..Sunday=6.
func mondayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}
