package core

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical calendar-date format used across tinker.
const DateLayout = "2006-01-02"

// compactDateLayout is the date form embedded in filenames and assessment ids.
const compactDateLayout = "20060102"

// Clock supplies the reference instant. Every date helper takes the instant
// explicitly; only the top-level caller reads the clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// NewSystemClock returns a Clock backed by the wall clock.
func NewSystemClock() Clock { return systemClock{} }

// FixedClock is a Clock that always reports the same instant.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.At }

// FormatDate renders t's calendar date in its own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD date at midnight in loc.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return t, nil
}

// DayWindow returns the half-open interval [start, end) covering date in loc.
func DayWindow(date string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}

// CompactDate turns 2026-01-15 into 20260115.
func CompactDate(date string) string {
	return strings.ReplaceAll(date, "-", "")
}

// DayNumber returns the 1-based day of a goal on date, counted in calendar
// days from the day the goal was locked. The lock day is taken in loc, the
// zone dates are resolved in. Overrunning the time window is not clamped.
func DayNumber(lockedAt time.Time, date string, loc *time.Location) (int, error) {
	d, err := ParseDate(date, time.UTC)
	if err != nil {
		return 0, err
	}
	if loc == nil {
		loc = time.UTC
	}
	y, m, dd := lockedAt.In(loc).Date()
	locked := time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
	days := int(d.Sub(locked).Hours() / 24)
	return days + 1, nil
}

// ResolveDate maps an optional tool argument to a calendar date. An empty
// input means today; "yesterday" and "today" are accepted literally.
func ResolveDate(input string, now time.Time) (string, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "today":
		return FormatDate(now), nil
	case "yesterday":
		return FormatDate(now.AddDate(0, 0, -1)), nil
	}
	t, err := ParseDate(input, now.Location())
	if err != nil {
		return "", err
	}
	return FormatDate(t), nil
}

// DateGuidance returns advisory notes for check-ins that are not about the
// current calendar day or that happen in the small hours.
func DateGuidance(resolved string, now time.Time, boundaryHour int) []string {
	var notes []string
	today := FormatDate(now)
	if resolved < today {
		notes = append(notes, fmt.Sprintf(
			"Retroactive check-in for %s: score only evidence from that date and do not count work done since.", resolved))
	}
	if resolved > today {
		notes = append(notes, fmt.Sprintf("%s is in the future: there is no evidence to score yet.", resolved))
	}
	if resolved == today && now.Hour() < boundaryHour {
		yesterday := FormatDate(now.AddDate(0, 0, -1))
		notes = append(notes, fmt.Sprintf(
			"It is %s, before the %02d:00 day boundary: the user is probably still wrapping up %s. Confirm, and call resolve_date with \"yesterday\" if so.",
			now.Format("15:04"), boundaryHour, yesterday))
	}
	return notes
}
