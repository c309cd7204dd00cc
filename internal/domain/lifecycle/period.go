package lifecycle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is a calendar offset. Years, months and days are applied with
// time.AddDate so "6 months before" follows the calendar; Clock carries the
// sub-day remainder.
type Period struct {
	Years  int
	Months int
	Days   int
	Clock  time.Duration
}

func Years(n int) Period  { return Period{Years: n} }
func Months(n int) Period { return Period{Months: n} }
func Days(n int) Period   { return Period{Days: n} }

// Before returns the instant that lies p before t.
func (p Period) Before(t time.Time) time.Time {
	return t.AddDate(-p.Years, -p.Months, -p.Days).Add(-p.Clock)
}

func (p Period) IsZero() bool {
	return p.Years == 0 && p.Months == 0 && p.Days == 0 && p.Clock == 0
}

func (p Period) String() string {
	if p.IsZero() {
		return "0d"
	}
	var b strings.Builder
	if p.Years != 0 {
		fmt.Fprintf(&b, "%dy", p.Years)
	}
	if p.Months != 0 {
		fmt.Fprintf(&b, "%dmo", p.Months)
	}
	if p.Days != 0 {
		fmt.Fprintf(&b, "%dd", p.Days)
	}
	if p.Clock != 0 {
		b.WriteString(p.Clock.String())
	}
	return b.String()
}

// Human renders p for end users, e.g. "1 year 6 months".
func (p Period) Human() string {
	parts := make([]string, 0, 4)
	add := func(n int, unit string) {
		if n == 0 {
			return
		}
		if n != 1 {
			unit += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, unit))
	}
	add(p.Years, "year")
	add(p.Months, "month")
	add(p.Days, "day")
	if p.Clock != 0 {
		parts = append(parts, p.Clock.String())
	}
	if len(parts) == 0 {
		return "0 days"
	}
	return strings.Join(parts, " ")
}

// ParsePeriod parses strings such as "1y", "6mo", "30d", "24h" or "1y6mo2d12h".
// Units: y, mo, w, d, h, m, s.
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return Period{}, fmt.Errorf("empty period")
	}
	var p Period
	for len(s) > 0 {
		i := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == 0 {
			return Period{}, fmt.Errorf("period %q: expected number", s)
		}
		n, err := strconv.Atoi(s[:i])
		if err != nil {
			return Period{}, fmt.Errorf("period %q: %w", s, err)
		}
		s = s[i:]
		j := 0
		for j < len(s) && (s[j] < '0' || s[j] > '9') {
			j++
		}
		unit := s[:j]
		s = s[j:]
		switch unit {
		case "y":
			p.Years += n
		case "mo":
			p.Months += n
		case "w":
			p.Days += 7 * n
		case "d":
			p.Days += n
		case "h":
			p.Clock += time.Duration(n) * time.Hour
		case "m":
			p.Clock += time.Duration(n) * time.Minute
		case "s":
			p.Clock += time.Duration(n) * time.Second
		default:
			return Period{}, fmt.Errorf("period: unknown unit %q", unit)
		}
	}
	return p, nil
}
