package core

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/valter-silva-au/tinker/pkg/models"
)

const essayDiff = `diff --git a/Notes/a.md b/Notes/a.md
index 111..222 100644
--- a/Notes/a.md
+++ b/Notes/a.md
@@ -3,2 +3,6 @@
 # Essay
 Intro
+First real paragraph.
+Second real paragraph.
+
+Third real paragraph.`

func todayShell(base string) *fakeShell {
	sh := newFakeShell()
	grep := "log -1 --format=%H --fixed-strings --grep=tinker checkpoint 2026-01-15"
	sh.responses[grep] = ""
	sh.responses["status --porcelain"] = " M Notes/a.md"
	sh.responses["add -A"] = ""
	sh.responses["commit"] = ""
	sh.responses["log -1 --format=%H --before="] = base
	sh.responses["diff --name-only --relative "+base+" HEAD"] = "Notes/a.md\nNotes/new.md\nNotes/tiny.md\nassets/image.png\nTinker/Reports/x/2026-01-15.md"
	sh.responses["diff --name-only --relative --diff-filter=A "+base+" HEAD"] = "Notes/new.md"
	sh.responses["diff --name-only --relative HEAD"] = ""
	sh.responses["ls-files --others --exclude-standard"] = ""
	sh.responses["diff --no-color --unified=3 "+base+" -- Notes/a.md"] = essayDiff
	sh.responses["diff --no-color --unified=3 "+base+" -- Notes/new.md"] = ""
	sh.responses["diff --no-color --unified=3 "+base+" -- Notes/tiny.md"] = "@@ -1 +1 @@\n-old\n+new"
	sh.onRun = func(cmd string) {
		if strings.HasPrefix(cmd, "commit") {
			sh.responses[grep] = "cafe123"
		}
	}
	return sh
}

func TestObserver_TodayIsIdempotent(t *testing.T) {
	now := time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)
	docs := newFakeDocs(now)
	docs.put("Notes/a.md", "---\ntags: [x]\n---\n# Essay\nIntro\nFirst real paragraph.\n", now.Add(-time.Hour))
	docs.put("Notes/new.md", "# Brand new\n\nidea\n", now.Add(-2*time.Hour))
	docs.put("Notes/tiny.md", "new\n", now.Add(-3*time.Hour))

	sh := todayShell("base000")
	events := &recordingEvents{}
	obs := NewObserver(docs, sh, testConfig("/vault"), events, zap.NewNop())

	first, err := obs.Observe(context.Background(), "2026-01-15", now)
	require.NoError(t, err)
	second, err := obs.Observe(context.Background(), "2026-01-15", now)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("observe not idempotent (-first +second):\n%s", diff)
	}
	assert.Equal(t, 1, sh.count("commit"), "checkpoint committed once")
	assert.Equal(t, 1, events.count(EventCheckpointCreated))

	files := first.VaultActivity.ModifiedFiles
	require.Len(t, files, 2, "tiny diff and untracked extensions dropped")
	assert.Equal(t, "Notes/a.md", files[0].Path, "ranked by substantive lines")
	assert.Equal(t, models.DiffSourceGit, files[0].Source)
	assert.Equal(t, "a", files[0].DisplayName)
	assert.Equal(t, "Notes", files[0].Folder)
	assert.False(t, files[0].CreatedToday)

	assert.Equal(t, "Notes/new.md", files[1].Path, "new files skip the trivial-diff filter")
	assert.True(t, files[1].CreatedToday)
	assert.True(t, strings.HasPrefix(files[1].Diff, "@@ -0,0 +1,3 @@\n+# Brand new"))
	assert.Equal(t, []string{"Brand new"}, files[1].Headings)
}

func TestObserver_FallsBackToModifyTime(t *testing.T) {
	now := time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)
	docs := newFakeDocs(now)
	docs.put("Notes/older.md", "# Older\n", now.Add(-5*time.Hour))
	docs.put("Notes/newer.md", "# Newer\n", now.Add(-1*time.Hour))
	docs.put("Notes/yesterday.md", "# Old\n", now.AddDate(0, 0, -1))

	cfg := testConfig("/vault")
	cfg.Git.Enabled = false
	obs := NewObserver(docs, nil, cfg, nil, nil)

	act, err := obs.VaultActivity(context.Background(), "2026-01-15", now)
	require.NoError(t, err)

	assert.Equal(t, 2, act.FilesTouched)
	assert.Equal(t, []string{"Notes"}, act.ActiveFolders)
	require.Len(t, act.ModifiedFiles, 2)
	assert.Equal(t, "Notes/newer.md", act.ModifiedFiles[0].Path)
	assert.Equal(t, fallbackDiffBody, act.ModifiedFiles[0].Diff)
	assert.Equal(t, models.DiffSourceMtimeFallback, act.ModifiedFiles[0].Source)
}

func TestObserver_AttributionRules(t *testing.T) {
	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	old := time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)
	docs := newFakeDocs(now)
	docs.put("Inbox/meeting-20260115.md", "# Meeting\n", old)
	docs.put("Notes/dated.md", "---\ndate: 2026-01-15\n---\n# Dated\n", old)
	docs.put("Notes/created.md", "---\ncreated: 2026-01-15T08:30\n---\n# Created\n", old)
	docs.put("Notes/unrelated.md", "---\ndate: 2026-01-16\n---\n", old)
	docs.put("Tinker/Reports/goal/2026-01-15.md", "# report 20260115\n", old)
	docs.put(".tinker/notes-20260115.md", "x", old)
	docs.put("Notes/20260115.txt", "x", old)

	cfg := testConfig("/vault")
	cfg.Git.Enabled = false
	obs := NewObserver(docs, nil, cfg, nil, nil).(*observer)

	got, err := obs.attributedDocuments(context.Background(), "2026-01-15", now)
	require.NoError(t, err)

	var paths []string
	for _, d := range got {
		paths = append(paths, d.Path)
	}
	assert.Equal(t, []string{"Inbox/meeting-20260115.md", "Notes/created.md", "Notes/dated.md"}, paths)
}

func TestObserver_PlanFeedbackReflections(t *testing.T) {
	now := time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)
	docs := newFakeDocs(now)
	docs.put("Daily/2026-01-15.md", sampleDailyNote+"\n## Evening #reflection\nGood focus today.\n", now)
	docs.put("Feedback/Positive.md", "- 2026-01-15 Nice talk\n", now.AddDate(0, -1, 0))
	docs.put("Feedback/Negative.md", "- 2026-01-15 Slides too dense #talk\n", now.AddDate(0, -1, 0))

	cfg := testConfig("/vault")
	cfg.Git.Enabled = false
	obs := NewObserver(docs, nil, cfg, nil, nil)

	sig, err := obs.Observe(context.Background(), "2026-01-15", now)
	require.NoError(t, err)

	assert.Len(t, sig.PriorityActions, 4)
	assert.Len(t, sig.Ships, 2)
	require.Len(t, sig.Feedback, 2)
	assert.Equal(t, models.PolarityPositive, sig.Feedback[0].Polarity)
	assert.Equal(t, models.PolarityNegative, sig.Feedback[1].Polarity)
	require.Len(t, sig.Reflections, 1)
	assert.Equal(t, "Good focus today.", sig.Reflections[0].Text)
	assert.Empty(t, sig.ConversationContext)

	missing, err := obs.Observe(context.Background(), "2026-01-10", now)
	require.NoError(t, err, "missing daily note is not an error")
	assert.True(t, missing.Empty())
}

func TestObserver_InvalidDate(t *testing.T) {
	obs := NewObserver(newFakeDocs(time.Now()), nil, testConfig("/v"), nil, nil)
	_, err := obs.Observe(context.Background(), "15/01/2026", time.Now())
	assert.Error(t, err)
}

func TestSubstantiveLines(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		fmLines int
		want    int
	}{
		{"content", "@@ -5,2 +5,4 @@\n ctx\n+a\n+b\n-c", 0, 3},
		{"blank lines ignored", "@@ -5,0 +5,3 @@\n+\n+   \n+real", 0, 1},
		{"front-matter only", "@@ -1,4 +1,4 @@\n ---\n-status: draft\n+status: active\n ---", 4, 0},
		{"outside hunk ignored", "+++ b/x.md\n--- a/x.md", 0, 0},
		{"mixed", "@@ -2,3 +2,3 @@\n-updated: a\n+updated: b\n ---\n+body line", 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substantiveLines(tt.body, tt.fmLines); got != tt.want {
				t.Errorf("substantiveLines() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTruncateLines(t *testing.T) {
	s := "aaaa\nbbbb\ncccc"
	assert.Equal(t, s, truncateLines(s, 100))
	assert.Equal(t, "aaaa\nbbbb", truncateLines(s, 10))
	assert.Equal(t, "aaa", truncateLines("aaaaaaaa", 3))
	assert.Equal(t, "é", truncateLines("éé", 3), "never splits a rune")
}

// --- real git fixtures ---

type execShell struct {
	dir string
}

func (s execShell) Run(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "git", append([]string{"-C", s.dir}, args...)...).Output()
	return string(out), err
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func gitRun(t *testing.T, dir string, when time.Time, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	cmd.Env = os.Environ()
	if !when.IsZero() {
		stamp := when.Format(time.RFC3339)
		cmd.Env = append(cmd.Env, "GIT_AUTHOR_DATE="+stamp, "GIT_COMMITTER_DATE="+stamp)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	gitRun(t, dir, time.Time{}, "init", "-q")
	gitRun(t, dir, time.Time{}, "config", "user.email", "test@example.com")
	gitRun(t, dir, time.Time{}, "config", "user.name", "Test")
	gitRun(t, dir, time.Time{}, "config", "commit.gpgsign", "false")
	return dir
}

func writeVaultFile(t *testing.T, docs *fakeDocs, dir, rel, content string, mod time.Time) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	docs.put(rel, content, mod)
}

func TestObserver_GitFrontMatterOnlyDiffExcluded(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	day1 := time.Date(2026, 1, 14, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	docs := newFakeDocs(now)

	plan := "---\nstatus: draft\nupdated: 2026-01-14\n---\n# Plan\n\nStep one\nStep two\n"
	essay := "# Essay\n\nIntro\n"
	writeVaultFile(t, docs, dir, "Notes/plan.md", plan, day1)
	writeVaultFile(t, docs, dir, "Notes/essay.md", essay, day1)
	gitRun(t, dir, day1, "add", "-A")
	gitRun(t, dir, day1, "commit", "-q", "-m", "day one")

	plan = strings.Replace(plan, "status: draft\nupdated: 2026-01-14", "status: active\nupdated: 2026-01-15", 1)
	essay += "\nArgument one.\nArgument two.\nArgument three.\n"
	writeVaultFile(t, docs, dir, "Notes/plan.md", plan, day2)
	writeVaultFile(t, docs, dir, "Notes/essay.md", essay, day2)
	gitRun(t, dir, day2, "add", "-A")
	gitRun(t, dir, day2, "commit", "-q", "-m", "day two")

	obs := NewObserver(docs, execShell{dir: dir}, testConfig(dir), nil, zap.NewNop())
	act, err := obs.VaultActivity(context.Background(), "2026-01-15", now)
	require.NoError(t, err)

	assert.Equal(t, 2, act.FilesTouched, "both files were modified that day")
	require.Len(t, act.ModifiedFiles, 1)
	assert.Equal(t, "Notes/essay.md", act.ModifiedFiles[0].Path)
	assert.False(t, act.ModifiedFiles[0].CreatedToday)
	assert.Contains(t, act.ModifiedFiles[0].Diff, "+Argument two.")
}

func TestObserver_GitCheckpointIdempotent(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	now := time.Now()
	today := FormatDate(now)
	docs := newFakeDocs(now)

	writeVaultFile(t, docs, dir, "Notes/idea.md", "# Idea\n\nOne\nTwo\nThree\n", now)

	obs := NewObserver(docs, execShell{dir: dir}, testConfig(dir), nil, zap.NewNop())
	first, err := obs.Observe(context.Background(), today, now)
	require.NoError(t, err)
	second, err := obs.Observe(context.Background(), today, now)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("observe not idempotent (-first +second):\n%s", diff)
	}

	out, err := execShell{dir: dir}.Run(context.Background(), "log", "--format=%s")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, checkpointPrefix+today))

	require.Len(t, first.VaultActivity.ModifiedFiles, 1)
	assert.True(t, first.VaultActivity.ModifiedFiles[0].CreatedToday)
	assert.Equal(t, models.DiffSourceGit, first.VaultActivity.ModifiedFiles[0].Source)
}

func TestObserver_GitPastDateBoundedByNeighbours(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	before := time.Date(2026, 1, 14, 10, 0, 0, 0, time.UTC)
	day := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	after := time.Date(2026, 1, 16, 10, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	docs := newFakeDocs(now)

	essay := "# Essay\n\nIntro\n"
	writeVaultFile(t, docs, dir, "Notes/essay.md", essay, before)
	gitRun(t, dir, before, "add", "-A")
	gitRun(t, dir, before, "commit", "-q", "-m", "before")

	essay += "\nOn the day one.\nOn the day two.\nOn the day three.\n"
	writeVaultFile(t, docs, dir, "Notes/essay.md", essay, day)
	writeVaultFile(t, docs, dir, "Notes/born.md", "# Born\n\nsame day\n", day)
	gitRun(t, dir, day, "add", "-A")
	gitRun(t, dir, day, "commit", "-q", "-m", "day")

	essay += "\nNext day one.\nNext day two.\nNext day three.\n"
	writeVaultFile(t, docs, dir, "Notes/essay.md", essay, after)
	writeVaultFile(t, docs, dir, "Notes/later.md", "# Later\n\nnot yet\n", after)
	gitRun(t, dir, after, "add", "-A")
	gitRun(t, dir, after, "commit", "-q", "-m", "after")

	obs := NewObserver(docs, execShell{dir: dir}, testConfig(dir), nil, zap.NewNop())
	files, err := obs.FileDiffs(context.Background(), "2026-01-15", now)
	require.NoError(t, err)

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.ElementsMatch(t, []string{"Notes/essay.md", "Notes/born.md"}, paths)
	for _, f := range files {
		assert.NotContains(t, f.Diff, "Next day", "commits after the day are excluded")
		assert.NotContains(t, f.Diff, "+Intro", "changes before the day are excluded")
		if f.Path == "Notes/born.md" {
			assert.True(t, f.CreatedToday)
		}
	}

	// An untouched day between commits yields no changes.
	untouched, err := obs.FileDiffs(context.Background(), "2026-01-18", now)
	require.NoError(t, err)
	assert.Nil(t, untouched)
}

func TestObserver_GitEmptyTreeBaseline(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	day := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	docs := newFakeDocs(now)

	writeVaultFile(t, docs, dir, "Notes/first.md", "# First\n\nfrom nothing\n", day)
	gitRun(t, dir, day, "add", "-A")
	gitRun(t, dir, day, "commit", "-q", "-m", "first ever")

	obs := NewObserver(docs, execShell{dir: dir}, testConfig(dir), nil, zap.NewNop())
	files, err := obs.FileDiffs(context.Background(), "2026-01-15", now)
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, "Notes/first.md", files[0].Path)
	assert.True(t, files[0].CreatedToday)
	assert.Contains(t, files[0].Diff, "+from nothing")
}

func TestObserver_GitVaultInsideLargerRepo(t *testing.T) {
	requireGit(t)
	root := initRepo(t)
	vault := filepath.Join(root, "vault")
	now := time.Now()
	earlier := now.AddDate(0, 0, -3)
	docs := newFakeDocs(now)

	require.NoError(t, os.WriteFile(filepath.Join(root, "outside.txt"), []byte("one\n"), 0o644))
	writeVaultFile(t, docs, vault, "Notes/old.md", "# Old\n", earlier)
	gitRun(t, root, earlier, "add", "-A")
	gitRun(t, root, earlier, "commit", "-q", "-m", "seed")

	require.NoError(t, os.WriteFile(filepath.Join(root, "outside.txt"), []byte("two\n"), 0o644))
	writeVaultFile(t, docs, vault, "Notes/idea.md", "# Idea\n\nOne\nTwo\nThree\n", now)

	obs := NewObserver(docs, execShell{dir: vault}, testConfig(vault), nil, zap.NewNop())
	signals, err := obs.Observe(context.Background(), FormatDate(now), now)
	require.NoError(t, err)

	files := signals.VaultActivity.ModifiedFiles
	require.Len(t, files, 1)
	assert.Equal(t, "Notes/idea.md", files[0].Path)
	assert.Equal(t, models.DiffSourceGit, files[0].Source)
	assert.True(t, files[0].CreatedToday)

	committed, err := execShell{dir: root}.Run(context.Background(), "show", "--name-only", "--format=", "HEAD")
	require.NoError(t, err)
	assert.Equal(t, "vault/Notes/idea.md", strings.TrimSpace(committed), "checkpoint stays inside the vault")

	status, err := execShell{dir: root}.Run(context.Background(), "status", "--porcelain")
	require.NoError(t, err)
	assert.Contains(t, status, "outside.txt", "files outside the vault are left uncommitted")
}

func TestObserver_UntrackedOnlyChangesFallBack(t *testing.T) {
	now := time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)
	docs := newFakeDocs(now)
	docs.put("Notes/a.md", "# Essay\n", now.Add(-time.Hour))

	sh := todayShell("base000")
	sh.responses["diff --name-only --relative base000 HEAD"] = "assets/image.png\nTinker/Reports/x/2026-01-15.md"
	sh.responses["diff --name-only --relative --diff-filter=A base000 HEAD"] = ""

	obs := NewObserver(docs, sh, testConfig("/vault"), nil, zap.NewNop())
	act, err := obs.VaultActivity(context.Background(), "2026-01-15", now)
	require.NoError(t, err)

	require.Len(t, act.ModifiedFiles, 1)
	assert.Equal(t, "Notes/a.md", act.ModifiedFiles[0].Path)
	assert.Equal(t, models.DiffSourceMtimeFallback, act.ModifiedFiles[0].Source)
}
