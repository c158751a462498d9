package census

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// YearMonth is a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// MonthOf returns the calendar month containing t, in t's location.
func MonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// ParseYearMonth parses "YYYY-MM". A single-digit month is accepted.
func ParseYearMonth(s string) (YearMonth, error) {
	year, month, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return YearMonth{}, fmt.Errorf("parse month %q: want YYYY-MM", s)
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return YearMonth{}, fmt.Errorf("parse month %q: year: %w", s, err)
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return YearMonth{}, fmt.Errorf("parse month %q: month: %w", s, err)
	}
	if m < 1 || m > 12 {
		return YearMonth{}, fmt.Errorf("parse month %q: month out of range", s)
	}
	return YearMonth{Year: y, Month: time.Month(m)}, nil
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// AddMonths returns the month n months after ym (n may be negative).
func (ym YearMonth) AddMonths(n int) YearMonth {
	t := time.Date(ym.Year, ym.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	return MonthOf(t)
}

// Before reports whether ym is strictly earlier than other.
func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

// MonthRange expands an inclusive "YYYY-MM" range into every month it covers.
func MonthRange(from, to string) ([]YearMonth, error) {
	start, err := ParseYearMonth(from)
	if err != nil {
		return nil, err
	}
	end, err := ParseYearMonth(to)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("month range %s to %s is empty", start, end)
	}

	var months []YearMonth
	for cur := start; !end.Before(cur); cur = cur.AddMonths(1) {
		months = append(months, cur)
	}
	return months, nil
}
