package core

import (
	"regexp"
	"strings"

	"github.com/valter-silva-au/tinker/pkg/models"
)

var feedbackEntryPattern = regexp.MustCompile(`^\s*[-*+]\s+(?:\[[ xX]\]\s+)?(\d{4}-\d{2}-\d{2})\b\s*[:–-]?\s*(.*)$`)

// ParseFeedback returns the entries of a feedback collection dated date.
func ParseFeedback(content, date string, polarity models.Polarity) []models.FeedbackItem {
	var items []models.FeedbackItem
	for _, line := range strings.Split(content, "\n") {
		m := feedbackEntryPattern.FindStringSubmatch(line)
		if m == nil || m[1] != date {
			continue
		}
		text, tags := stripTags(m[2])
		if text == "" {
			continue
		}
		items = append(items, models.FeedbackItem{Text: text, Tags: tags, Polarity: polarity})
	}
	return items
}

// ExtractReflections returns reflective writing marked with tag: single lines
// carrying the tag, and whole sections whose heading carries it. A section
// runs until the next heading of the same or higher level.
func ExtractReflections(content, tag, source string) []models.Reflection {
	tag = strings.TrimPrefix(tag, "#")
	if tag == "" {
		return nil
	}

	var (
		out          []models.Reflection
		section      []string
		sectionLevel int
		inSection    bool
	)

	flush := func() {
		if !inSection {
			return
		}
		text := strings.TrimSpace(strings.Join(section, "\n"))
		if text != "" {
			out = append(out, models.Reflection{Text: text, SourceFile: source})
		}
		section = nil
		inSection = false
	}

	for _, line := range strings.Split(content, "\n") {
		if h, ok := parseHeading(line); ok {
			if inSection && h.level <= sectionLevel {
				flush()
			}
			if !inSection && hasTag(h.text, tag) {
				inSection = true
				sectionLevel = h.level
			}
			continue
		}
		if inSection {
			section = append(section, removeTag(line, tag))
			continue
		}
		if hasTag(line, tag) {
			text := strings.TrimLeft(strings.TrimSpace(removeTag(line, tag)), "-*+ ")
			text = strings.Join(strings.Fields(text), " ")
			if text != "" {
				out = append(out, models.Reflection{Text: text, SourceFile: source})
			}
		}
	}
	flush()
	return out
}

func hasTag(text, tag string) bool {
	for _, m := range tagPattern.FindAllStringSubmatch(text, -1) {
		if strings.EqualFold(m[2], tag) {
			return true
		}
	}
	return false
}

func removeTag(text, tag string) string {
	return tagPattern.ReplaceAllStringFunc(text, func(tok string) string {
		if strings.EqualFold(strings.TrimSpace(tok), "#"+tag) {
			if strings.HasPrefix(tok, "#") {
				return ""
			}
			return tok[:1]
		}
		return tok
	})
}
