package core

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/tinker/pkg/models"
)

// NotesHeading is the report section managed by the conversation summary
// merge protocol.
const NotesHeading = "## Conversation Notes"

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// ReportRenderer writes the per-day markdown report of an assessment and
// manages its conversation notes section.
type ReportRenderer interface {
	Render(goal models.Goal, a *models.Assessment) (string, error)
	ConversationNotes(goal models.Goal, date string) (string, error)
	SaveConversationNotes(goal models.Goal, date, summary string) (string, error)
	ReportPath(goal models.Goal, date string) string
}

type reportRenderer struct {
	docs   DocumentStore
	folder string
}

// NewReportRenderer creates a ReportRenderer writing under reportsFolder.
func NewReportRenderer(docs DocumentStore, reportsFolder string) ReportRenderer {
	return &reportRenderer{docs: docs, folder: reportsFolder}
}

// GoalSlug derives a folder name from a goal's description.
func GoalSlug(goal models.Goal) string {
	slug := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(goal.Description), "-"), "-")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	if slug == "" {
		slug = goal.ID
		if len(slug) > 8 {
			slug = slug[:8]
		}
	}
	return slug
}

// ReportPath returns <reports_folder>/<goal-slug>/<date>.md.
func (r *reportRenderer) ReportPath(goal models.Goal, date string) string {
	return path.Join(r.folder, GoalSlug(goal), date+".md")
}

type reportFrontMatter struct {
	GoalID        string   `yaml:"goal_id"`
	Date          string   `yaml:"date"`
	Day           int      `yaml:"day"`
	Score         int      `yaml:"score"`
	PolicyVersion int      `yaml:"policy_version"`
	Tags          []string `yaml:"tags"`
}

// Render writes the report for a, keeping any conversation notes already
// present in an earlier version of the same report.
func (r *reportRenderer) Render(goal models.Goal, a *models.Assessment) (string, error) {
	p := r.ReportPath(goal, a.Date)

	notes := ""
	if existing, err := r.docs.Read(p); err == nil {
		notes, _ = notesSection(existing)
	} else if !errors.Is(err, ErrDocumentNotFound) {
		return "", fmt.Errorf("reading report %s: %w", p, err)
	}

	body, err := renderReport(goal, a)
	if err != nil {
		return "", err
	}
	body = setNotesSection(body, notes)

	if err := r.docs.CreateFolder(path.Dir(p)); err != nil {
		return "", fmt.Errorf("creating report folder: %w", err)
	}
	if err := r.docs.Write(p, body); err != nil {
		return "", fmt.Errorf("writing report %s: %w", p, err)
	}
	return p, nil
}

// ConversationNotes returns the saved summary for date, or "" when there is
// no report or no summary yet.
func (r *reportRenderer) ConversationNotes(goal models.Goal, date string) (string, error) {
	content, err := r.docs.Read(r.ReportPath(goal, date))
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("reading report: %w", err)
	}
	notes, _ := notesSection(content)
	return notes, nil
}

// SaveConversationNotes replaces the notes section of the report for date,
// creating a minimal report when none exists.
func (r *reportRenderer) SaveConversationNotes(goal models.Goal, date, summary string) (string, error) {
	p := r.ReportPath(goal, date)
	content, err := r.docs.Read(p)
	if err != nil {
		if !errors.Is(err, ErrDocumentNotFound) {
			return "", fmt.Errorf("reading report %s: %w", p, err)
		}
		content = fmt.Sprintf("# %s\n\n%s\n\nNo assessment has been run for this date.\n", goal.Description, date)
		if err := r.docs.CreateFolder(path.Dir(p)); err != nil {
			return "", fmt.Errorf("creating report folder: %w", err)
		}
	}
	if err := r.docs.Write(p, setNotesSection(content, strings.TrimSpace(summary))); err != nil {
		return "", fmt.Errorf("writing report %s: %w", p, err)
	}
	return p, nil
}

func renderReport(goal models.Goal, a *models.Assessment) (string, error) {
	fm, err := yaml.Marshal(reportFrontMatter{
		GoalID:        goal.ID,
		Date:          a.Date,
		Day:           a.DayNumber,
		Score:         a.OverallScore,
		PolicyVersion: a.PolicyVersion,
		Tags:          []string{"tinker-report"},
	})
	if err != nil {
		return "", fmt.Errorf("marshalling report front-matter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s: %s\n\n", a.Date, goal.Description)
	fmt.Fprintf(&b, "**Day %d of %d** · Score **%d/100**\n\n", a.DayNumber, goal.TimeWindowDays, a.OverallScore)

	b.WriteString("## Breakdown\n\n")
	b.WriteString("| Category | Weight | Score | Reasoning |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, item := range a.SignalBreakdown {
		fmt.Fprintf(&b, "| %s | %.2f | %d/%d | %s |\n",
			item.Category, item.Weight, item.Score, item.MaxScore, tableCell(item.Reasoning))
	}

	writeList(&b, "## Momentum", a.MomentumIndicators)
	writeList(&b, "## Drift", a.DriftIndicators)

	if files := a.RawSignals.VaultActivity.ModifiedFiles; len(files) > 0 {
		b.WriteString("\n## Evidence\n\n")
		for _, f := range files {
			fmt.Fprintf(&b, "- [[%s|%s]]", strings.TrimSuffix(f.Path, path.Ext(f.Path)), f.DisplayName)
			if f.CreatedToday {
				b.WriteString(" (new)")
			}
			if len(f.Headings) > 0 {
				fmt.Fprintf(&b, ": %s", strings.Join(f.Headings, ", "))
			}
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func writeList(b *strings.Builder, title string, items []string) {
	fmt.Fprintf(b, "\n%s\n\n", title)
	if len(items) == 0 {
		b.WriteString("- none\n")
		return
	}
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

func tableCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.Join(strings.Fields(s), " ")
}

// The summary is written between managed markers so that headings inside it
// do not end the section.
const (
	notesStartMarker = "<!-- tinker:notes:start -->"
	notesEndMarker   = "<!-- tinker:notes:end -->"
)

// notesBlock indexes the notes section within a report's lines: heading is
// the heading line, end the first line after the section, and body the
// half-open range holding the summary.
type notesBlock struct {
	heading, end       int
	bodyStart, bodyEnd int
}

// findNotes locates the notes section. Without managed markers, as in
// reports edited by hand, the section ends at the next level-1 or level-2
// heading.
func findNotes(lines []string) (notesBlock, bool) {
	heading := -1
	for i, l := range lines {
		if strings.EqualFold(strings.TrimSpace(l), NotesHeading) {
			heading = i
			break
		}
	}
	if heading < 0 {
		return notesBlock{}, false
	}
	b := notesBlock{heading: heading, end: len(lines), bodyStart: heading + 1, bodyEnd: len(lines)}

	first := heading + 1
	for first < len(lines) && strings.TrimSpace(lines[first]) == "" {
		first++
	}
	if first < len(lines) && strings.TrimSpace(lines[first]) == notesStartMarker {
		b.bodyStart = first + 1
		for i := first + 1; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == notesEndMarker {
				b.bodyEnd, b.end = i, i+1
				break
			}
		}
		return b, true
	}

	for i := heading + 1; i < len(lines); i++ {
		if h, ok := parseHeading(lines[i]); ok && h.level <= 2 {
			b.bodyEnd, b.end = i, i
			break
		}
	}
	return b, true
}

// notesSection returns the body of the notes section and whether it exists.
func notesSection(content string) (string, bool) {
	lines := strings.Split(content, "\n")
	b, ok := findNotes(lines)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(strings.Join(lines[b.bodyStart:b.bodyEnd], "\n")), true
}

// setNotesSection replaces the notes section body, appending the section
// when absent. An absent section is not added for an empty body.
func setNotesSection(content, notes string) string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	section := []string{NotesHeading, "", notesStartMarker, notes, notesEndMarker}

	b, ok := findNotes(lines)
	if !ok {
		if notes == "" {
			return strings.Join(lines, "\n") + "\n"
		}
		return strings.Join(lines, "\n") + "\n\n" + strings.Join(section, "\n") + "\n"
	}

	var out []string
	out = append(out, lines[:b.heading]...)
	out = append(out, section...)
	if b.end < len(lines) {
		out = append(out, "")
		out = append(out, lines[b.end:]...)
	}
	return strings.Join(out, "\n") + "\n"
}
