// Package cronexpr parses 5-field cron expressions and a documented subset
// of natural-language time phrases, and computes timezone-aware next-run
// instants.
package cronexpr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Expr is a parsed 5-field cron expression: minute, hour, day-of-month,
// month, day-of-week. Each field is a set of accepted values.
type Expr struct {
	Minute     fieldSet
	Hour       fieldSet
	DayOfMonth fieldSet
	Month      fieldSet
	DayOfWeek  fieldSet
	raw        string
}

// fieldSet is the set of values a cron field accepts, represented as a
// presence map for O(1) membership tests.
type fieldSet map[int]bool

var dowNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// Parse parses a 5-field cron expression, rejecting malformed expressions
// or out-of-range values.
func Parse(expr string) (*Expr, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cronexpr: expected 5 fields, got %d", len(fields))
	}

	minute, err := parseField(fields[0], 0, 59, nil)
	if err != nil {
		return nil, fmt.Errorf("cronexpr: minute: %w", err)
	}
	hour, err := parseField(fields[1], 0, 23, nil)
	if err != nil {
		return nil, fmt.Errorf("cronexpr: hour: %w", err)
	}
	dom, err := parseField(fields[2], 1, 31, nil)
	if err != nil {
		return nil, fmt.Errorf("cronexpr: day-of-month: %w", err)
	}
	month, err := parseField(fields[3], 1, 12, nil)
	if err != nil {
		return nil, fmt.Errorf("cronexpr: month: %w", err)
	}
	dow, err := parseField(fields[4], 0, 6, dowNames)
	if err != nil {
		return nil, fmt.Errorf("cronexpr: day-of-week: %w", err)
	}

	return &Expr{Minute: minute, Hour: hour, DayOfMonth: dom, Month: month, DayOfWeek: dow, raw: expr}, nil
}

// String returns the cron expression string this Expr was parsed from,
// unchanged.
func (e *Expr) String() string { return e.raw }

func parseField(field string, lo, hi int, names map[string]int) (fieldSet, error) {
	set := make(fieldSet)
	for _, part := range strings.Split(field, ",") {
		if err := parsePart(part, lo, hi, names, set); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func parsePart(part string, lo, hi int, names map[string]int, set fieldSet) error {
	step := 1
	rangePart := part
	if idx := strings.Index(part, "/"); idx >= 0 {
		rangePart = part[:idx]
		n, err := strconv.Atoi(part[idx+1:])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid step in %q", part)
		}
		step = n
	}

	var start, end int
	switch {
	case rangePart == "*":
		start, end = lo, hi
	case strings.Contains(rangePart, "-"):
		bounds := strings.SplitN(rangePart, "-", 2)
		a, err := parseValue(bounds[0], names)
		if err != nil {
			return err
		}
		b, err := parseValue(bounds[1], names)
		if err != nil {
			return err
		}
		start, end = a, b
	default:
		v, err := parseValue(rangePart, names)
		if err != nil {
			return err
		}
		start, end = v, v
	}

	if start < lo || start > hi || end < lo || end > hi || start > end {
		return fmt.Errorf("value out of range [%d,%d] in %q", lo, hi, part)
	}
	for v := start; v <= end; v += step {
		set[v] = true
	}
	return nil
}

func parseValue(s string, names map[string]int) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if names != nil {
		if v, ok := names[s]; ok {
			return v, nil
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	return v, nil
}

// matches reports whether t (already converted to the target location)
// satisfies every field of e. All five fields are ANDed, including
// day-of-month and day-of-week when both are restricted; standard cron's
// OR rule for that pair is not applied.
func (e *Expr) matches(t time.Time) bool {
	return e.Minute[t.Minute()] &&
		e.Hour[t.Hour()] &&
		e.DayOfMonth[t.Day()] &&
		e.Month[int(t.Month())] &&
		e.DayOfWeek[int(t.Weekday())]
}

// NextRun walks forward minute by minute from now (exclusive), in loc,
// bounded to one year out, returning the first instant that matches e.
func (e *Expr) NextRun(now time.Time, loc *time.Location) (time.Time, bool) {
	local := now.In(loc)
	// Round up to the next whole minute.
	cursor := local.Truncate(time.Minute).Add(time.Minute)
	limit := local.AddDate(1, 0, 0)

	for cursor.Before(limit) {
		if e.matches(cursor) {
			return cursor.In(time.UTC), true
		}
		cursor = cursor.Add(time.Minute)
	}
	return time.Time{}, false
}
