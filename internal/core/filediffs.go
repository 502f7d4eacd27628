package core

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/valter-silva-au/tinker/pkg/models"
)

// emptyTreeHash is git's well-known empty tree, used as the baseline when no
// commit precedes the observed date.
const emptyTreeHash = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// checkpointPrefix starts the message of the daily checkpoint commit.
const checkpointPrefix = "tinker checkpoint "

// newFilePreviewLines bounds the synthetic hunk rendered for new files.
const newFilePreviewLines = 40

// fallbackDiffBody marks modified files ranked by modify time when no
// version-control diff is available.
const fallbackDiffBody = "(no diff available: modified on this date)"

var hunkHeaderPattern = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// diffCandidate is a changed file before ranking.
type diffCandidate struct {
	path        string
	body        string
	created     bool
	substantive int
}

// git runs a version-control command. Failures and timeouts yield "" and are
// logged at debug level only.
func (o *observer) git(ctx context.Context, args ...string) string {
	if o.shell == nil {
		return ""
	}
	out, err := o.shell.Run(ctx, args...)
	if err != nil {
		o.logger.Debug("git command failed", zap.Strings("args", args), zap.Error(err))
		return ""
	}
	return strings.TrimRight(out, "\n")
}

func splitLines(out string) []string {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// ensureCheckpoint makes sure today's checkpoint commit exists. A second call
// on the same day finds it and commits nothing.
func (o *observer) ensureCheckpoint(ctx context.Context, date string) {
	message := checkpointPrefix + date
	if o.git(ctx, "log", "-1", "--format=%H", "--fixed-strings", "--grep="+message) != "" {
		return
	}

	// The vault may be a subfolder of a larger working tree: stage and commit
	// only paths under it, leaving anything else the user staged alone.
	if o.git(ctx, "status", "--porcelain", "--", ".") != "" {
		o.git(ctx, "add", "-A", "--", ".")
		o.git(ctx, "commit", "--no-verify", "-m", message, "--", ".")
	} else {
		o.git(ctx, "commit", "--no-verify", "--allow-empty", "--only", "-m", message)
	}

	hash := o.git(ctx, "log", "-1", "--format=%H", "--fixed-strings", "--grep="+message)
	if hash == "" {
		return
	}
	o.logger.Info("created checkpoint commit", zap.String("date", date), zap.String("commit", hash))
	logEvent(o.events, EventCheckpointCreated, map[string]any{"date": date, "commit": hash})
}

// FileDiffs collects the tracked files changed on date with their diffs,
// ranked by substantive change size. Paths are relative to the vault even
// when the repository root lies above it. It returns nil when version control
// is disabled or yields no tracked changed paths at all.
func (o *observer) FileDiffs(ctx context.Context, date string, now time.Time) ([]models.ModifiedFileSignal, error) {
	if !o.cfg.Git.Enabled || o.shell == nil {
		return nil, nil
	}
	start, end, err := DayWindow(date, now.Location())
	if err != nil {
		return nil, err
	}
	isToday := date == FormatDate(now)

	if isToday {
		o.ensureCheckpoint(ctx, date)
	}

	baseline := o.git(ctx, "log", "-1", "--format=%H", "--before="+gitTime(start.Add(-time.Second)))
	if baseline == "" {
		baseline = emptyTreeHash
	}

	ceiling := "HEAD"
	if !isToday {
		ceiling = o.git(ctx, "log", "-1", "--format=%H", "--before="+gitTime(end))
	}

	changed := make(map[string]bool)
	created := make(map[string]bool)
	if ceiling != "" && ceiling != baseline {
		for _, p := range splitLines(o.git(ctx, "diff", "--name-only", "--relative", baseline, ceiling)) {
			changed[p] = true
		}
		for _, p := range splitLines(o.git(ctx, "diff", "--name-only", "--relative", "--diff-filter=A", baseline, ceiling)) {
			created[p] = true
		}
	}
	if isToday {
		for _, p := range splitLines(o.git(ctx, "diff", "--name-only", "--relative", "HEAD")) {
			changed[p] = true
		}
		for _, p := range splitLines(o.git(ctx, "ls-files", "--others", "--exclude-standard")) {
			changed[p] = true
			created[p] = true
		}
	}
	for p := range changed {
		if !o.tracked(p) {
			delete(changed, p)
		}
	}
	if len(changed) == 0 {
		return nil, nil
	}

	var candidates []diffCandidate
	for p := range changed {
		var body string
		if isToday {
			body = o.git(ctx, "diff", "--no-color", "--unified=3", baseline, "--", p)
		} else if ceiling != "" {
			body = o.git(ctx, "diff", "--no-color", "--unified=3", baseline, ceiling, "--", p)
		}
		body = stripDiffHeader(body)

		meta, _ := o.docs.Metadata(p)
		fmLines := 0
		if meta != nil {
			fmLines = meta.FrontMatterLines
		}

		if body == "" {
			if !created[p] {
				continue
			}
			content, err := o.docs.Read(p)
			if err != nil {
				continue
			}
			body = newFileHunk(content)
		}

		count := substantiveLines(body, fmLines)
		if !created[p] && count < o.cfg.Diff.MinLines {
			continue
		}
		candidates = append(candidates, diffCandidate{path: p, body: body, created: created[p], substantive: count})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].substantive != candidates[j].substantive {
			return candidates[i].substantive > candidates[j].substantive
		}
		return candidates[i].path < candidates[j].path
	})
	if len(candidates) > o.cfg.Diff.MaxFiles {
		candidates = candidates[:o.cfg.Diff.MaxFiles]
	}

	signals := make([]models.ModifiedFileSignal, 0, len(candidates))
	for _, c := range candidates {
		sig := o.fileSignal(c.path)
		sig.Diff = truncateLines(c.body, o.cfg.Diff.MaxChars)
		sig.CreatedToday = c.created
		sig.Source = models.DiffSourceGit
		signals = append(signals, sig)
	}
	return signals, nil
}

// gitTime formats an instant for git's --before option.
func gitTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

// stripDiffHeader drops everything before the first hunk header.
func stripDiffHeader(body string) string {
	idx := strings.Index(body, "@@")
	if idx < 0 {
		return ""
	}
	return strings.TrimRight(body[idx:], "\n")
}

// newFileHunk renders the leading lines of a new file as an all-added hunk.
func newFileHunk(content string) string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) > newFilePreviewLines {
		lines = lines[:newFilePreviewLines]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "@@ -0,0 +1,%d @@", len(lines))
	for _, l := range lines {
		b.WriteString("\n+")
		b.WriteString(l)
	}
	return b.String()
}

// substantiveLines counts added and removed lines inside hunks that are
// neither blank nor part of the front-matter block. Line numbers come from the
// hunk headers; fmLines is the front-matter length of the current document.
func substantiveLines(body string, fmLines int) int {
	count := 0
	oldLine, newLine := 0, 0
	inHunk := false
	for _, line := range strings.Split(body, "\n") {
		if m := hunkHeaderPattern.FindStringSubmatch(line); m != nil {
			oldLine, _ = strconv.Atoi(m[1])
			newLine, _ = strconv.Atoi(m[3])
			inHunk = true
			continue
		}
		if !inHunk || line == "" {
			continue
		}
		switch line[0] {
		case '+':
			if !isFrontMatterLine(newLine, fmLines) && strings.TrimSpace(line[1:]) != "" {
				count++
			}
			newLine++
		case '-':
			if !isFrontMatterLine(oldLine, fmLines) && strings.TrimSpace(line[1:]) != "" {
				count++
			}
			oldLine++
		case ' ':
			oldLine++
			newLine++
		}
	}
	return count
}

func isFrontMatterLine(lineNo, fmLines int) bool {
	return fmLines > 0 && lineNo >= 1 && lineNo <= fmLines
}

// truncateLines cuts s to at most limit characters without splitting a line.
func truncateLines(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		extra := len(line)
		if b.Len() > 0 {
			extra++
		}
		if b.Len()+extra > limit {
			break
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	if b.Len() == 0 {
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut]
	}
	return b.String()
}
