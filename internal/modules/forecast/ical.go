package forecast

import (
	"fmt"
	"strings"
	"time"
)

// RenderICal serializes commitments and key events as all-day VEVENTs so the
// forecast can be subscribed to from an external calendar. Inflows are left
// out on purpose: the export is a bill reminder feed, not a ledger.
func RenderICal(entries []Entry, now time.Time) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	b.WriteString("PRODID:-//budgetd//Calendar Export//EN\r\n")
	b.WriteString("CALSCALE:GREGORIAN\r\n")
	b.WriteString("METHOD:PUBLISH\r\n")

	stamp := now.Format("20060102T150405Z")
	for _, e := range entries {
		if e.Type != EntryCommitment && e.Type != EntryKeyEvent {
			continue
		}
		day := parseDay(e.Date)
		if day.IsZero() {
			continue
		}

		label := "Commitment"
		if e.Type == EntryKeyEvent {
			label = "Key Event"
		}

		b.WriteString("BEGIN:VEVENT\r\n")
		fmt.Fprintf(&b, "UID:%s-%d-%s@budgetd\r\n", e.Type, e.SourceID, e.Date)
		fmt.Fprintf(&b, "DTSTAMP:%s\r\n", stamp)
		fmt.Fprintf(&b, "DTSTART;VALUE=DATE:%s\r\n", day.Format("20060102"))
		fmt.Fprintf(&b, "DTEND;VALUE=DATE:%s\r\n", day.AddDate(0, 0, 1).Format("20060102"))
		fmt.Fprintf(&b, "SUMMARY:%s: %s\r\n", label, icalEscape(e.Name))
		fmt.Fprintf(&b, "DESCRIPTION:Type: %s\\nAmount: %s\\nShift policy: %s\\nShift applied: %t\r\n",
			e.Type, formatCents(e.AmountCents), e.Policy, e.ShiftApplied)
		fmt.Fprintf(&b, "CATEGORIES:%s\r\n", label)
		b.WriteString("END:VEVENT\r\n")
	}

	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}

func icalEscape(s string) string {
	r := strings.NewReplacer("\\", "\\\\", ";", "\\;", ",", "\\,", "\n", "\\n")
	return r.Replace(s)
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
