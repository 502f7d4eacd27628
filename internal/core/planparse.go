package core

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/valter-silva-au/tinker/pkg/models"
)

var (
	headingPattern  = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)
	checkboxPattern = regexp.MustCompile(`^\s*[-*+]\s+\[([ xX])\]\s*(.*)$`)
	tagPattern      = regexp.MustCompile(`(^|\s)#([\p{L}\p{N}_][\p{L}\p{N}_/-]*)`)
	timeRangePattern = regexp.MustCompile(
		`\(?\s*(\d{1,2})(?::(\d{2}))?\s*([aApP][mM])?\s*[-–]\s*(\d{1,2})(?::(\d{2}))?\s*([aApP][mM])?\s*\)?`)
)

// heading is a parsed markdown heading line.
type heading struct {
	level int
	text  string
}

func parseHeading(line string) (heading, bool) {
	m := headingPattern.FindStringSubmatch(line)
	if m == nil {
		return heading{}, false
	}
	return heading{level: len(m[1]), text: m[2]}, true
}

// ExtractPlan scans the priority and ships sections of a daily note for
// checkbox lines. Lines outside those sections are ignored.
func ExtractPlan(content string, sections models.SectionConfig) ([]models.TaskItem, []models.ShipItem) {
	const (
		none = iota
		priority
		ships
	)

	var (
		tasks   []models.TaskItem
		shipped []models.ShipItem
		current = none
		level   int
		inFence bool
	)

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if h, ok := parseHeading(line); ok {
			switch {
			case matchesSection(h.text, sections.Priority):
				current, level = priority, h.level
			case matchesSection(h.text, sections.Ships):
				current, level = ships, h.level
			case current != none && h.level <= level:
				current = none
			}
			continue
		}
		if current == none {
			continue
		}
		m := checkboxPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		done := m[1] != " "
		switch current {
		case priority:
			tasks = append(tasks, parseTask(m[2], done))
		case ships:
			title, _ := stripTags(m[2])
			if title == "" {
				continue
			}
			shipped = append(shipped, models.ShipItem{Title: title, Completed: done})
		}
	}
	return tasks, shipped
}

// matchesSection reports whether a heading names the section. Case, tags,
// emoji and punctuation are ignored, but the remaining words must equal the
// section name: "Relationships" is not "Ships".
func matchesSection(headingText, name string) bool {
	want := sectionWords(name)
	if want == "" {
		return false
	}
	return sectionWords(headingText) == want
}

func sectionWords(text string) string {
	text, _ = stripTags(text)
	text = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.Join(strings.Fields(text), " ")
}

func parseTask(text string, done bool) models.TaskItem {
	item := models.TaskItem{Completed: done, Effort: models.EffortQuickAction}

	if annotation, minutes, rest, ok := extractTimeRange(text); ok {
		item.TimeAnnotation = annotation
		item.DurationMin = minutes
		item.Effort = models.EffortDeepWork
		text = rest
	}

	item.Title, item.Tags = stripTags(text)
	return item
}

// stripTags removes #tag tokens from text and returns the cleaned text and
// the tags without their leading '#'.
func stripTags(text string) (string, []string) {
	var tags []string
	for _, m := range tagPattern.FindAllStringSubmatch(text, -1) {
		tags = append(tags, m[2])
	}
	cleaned := tagPattern.ReplaceAllString(text, "$1")
	return strings.Join(strings.Fields(cleaned), " "), tags
}

// extractTimeRange finds the first time-range annotation in text. It returns
// the annotation as written, its duration in minutes, and text without it.
func extractTimeRange(text string) (string, int, string, bool) {
	for _, loc := range timeRangePattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		// Skip ranges embedded in dates or longer numbers such as 2026-01-15.
		if start > 0 && isRangeNeighbour(text[start-1]) {
			continue
		}
		if end < len(text) && isRangeNeighbour(text[end]) {
			continue
		}
		m := submatches(text, loc)
		minutes, ok := rangeMinutes(m)
		if !ok {
			continue
		}
		annotation := strings.TrimSpace(strings.Trim(strings.TrimSpace(text[start:end]), "()"))
		rest := strings.Join(strings.Fields(text[:start]+" "+text[end:]), " ")
		return annotation, minutes, rest, true
	}
	return "", 0, text, false
}

func isRangeNeighbour(c byte) bool {
	return c == '-' || c == '/' || c == ':' || c == '.' || (c >= '0' && c <= '9')
}

func submatches(text string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		if loc[2*i] >= 0 {
			out[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return out
}

// rangeMinutes computes the duration of a parsed range. A meridiem on the end
// time applies to a bare start time. While the end is not after the start,
// twelve hours are added, so 9-11 is 120 and 11PM-1AM is 120.
func rangeMinutes(m []string) (int, bool) {
	startMer, endMer := strings.ToLower(m[3]), strings.ToLower(m[6])
	if startMer == "" {
		startMer = endMer
	}
	start, ok := clockMinutes(m[1], m[2], startMer)
	if !ok {
		return 0, false
	}
	end, ok := clockMinutes(m[4], m[5], endMer)
	if !ok {
		return 0, false
	}
	diff := end - start
	for diff <= 0 {
		diff += 12 * 60
	}
	return diff, true
}

func clockMinutes(hourText, minuteText, meridiem string) (int, bool) {
	hour, err := strconv.Atoi(hourText)
	if err != nil || hour > 24 {
		return 0, false
	}
	minute := 0
	if minuteText != "" {
		minute, err = strconv.Atoi(minuteText)
		if err != nil || minute > 59 {
			return 0, false
		}
	}
	switch meridiem {
	case "pm":
		if hour > 12 {
			return 0, false
		}
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour > 12 {
			return 0, false
		}
		if hour == 12 {
			hour = 0
		}
	}
	return hour*60 + minute, true
}
