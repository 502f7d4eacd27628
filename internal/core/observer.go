package core

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/valter-silva-au/tinker/pkg/models"
)

// Observer gathers the evidence of work for a calendar date. It only reads
// the vault, except for the checkpoint commit it makes when observing today.
type Observer interface {
	Observe(ctx context.Context, date string, now time.Time) (*models.DaySignals, error)
	ExtractPlan(date string) ([]models.TaskItem, []models.ShipItem, error)
	CollectFeedback(date string) ([]models.FeedbackItem, error)
	CollectReflections(ctx context.Context, date string, now time.Time) ([]models.Reflection, error)
	VaultActivity(ctx context.Context, date string, now time.Time) (*models.VaultActivity, error)
	FileDiffs(ctx context.Context, date string, now time.Time) ([]models.ModifiedFileSignal, error)
}

type observer struct {
	docs   DocumentStore
	shell  Shell
	cfg    *models.TinkerConfig
	events EventLogger
	logger *zap.Logger
}

// NewObserver creates an Observer over the given vault and version-control
// shell. shell may be nil, in which case modify-time ranking is used.
func NewObserver(docs DocumentStore, shell Shell, cfg *models.TinkerConfig, events EventLogger, logger *zap.Logger) Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &observer{
		docs:   docs,
		shell:  shell,
		cfg:    cfg,
		events: events,
		logger: logger.Named("observer"),
	}
}

// Observe assembles the full DaySignals snapshot for date.
func (o *observer) Observe(ctx context.Context, date string, now time.Time) (*models.DaySignals, error) {
	if _, err := ParseDate(date, now.Location()); err != nil {
		return nil, err
	}

	tasks, ships, err := o.ExtractPlan(date)
	if err != nil {
		return nil, fmt.Errorf("extracting plan for %s: %w", date, err)
	}
	feedback, err := o.CollectFeedback(date)
	if err != nil {
		return nil, fmt.Errorf("collecting feedback for %s: %w", date, err)
	}
	attributed, err := o.attributedDocuments(ctx, date, now)
	if err != nil {
		return nil, fmt.Errorf("listing vault activity for %s: %w", date, err)
	}
	activity, err := o.activity(ctx, date, now, attributed)
	if err != nil {
		return nil, fmt.Errorf("collecting file changes for %s: %w", date, err)
	}

	signals := &models.DaySignals{
		Date:            date,
		PriorityActions: tasks,
		Ships:           ships,
		Feedback:        feedback,
		Reflections:     o.reflections(attributed),
		VaultActivity:   *activity,
	}
	o.logger.Debug("observed signals",
		zap.String("date", date),
		zap.Int("tasks", len(tasks)),
		zap.Int("ships", len(ships)),
		zap.Int("feedback", len(feedback)),
		zap.Int("files_touched", activity.FilesTouched),
		zap.Int("modified_files", len(activity.ModifiedFiles)),
	)
	return signals, nil
}

// DailyNotePath returns the vault path of the daily note for date.
func DailyNotePath(cfg *models.TinkerConfig, date string) (string, error) {
	t, err := ParseDate(date, time.UTC)
	if err != nil {
		return "", err
	}
	name := t.Format(cfg.Vault.DailyFormat) + cfg.Vault.Extension
	if cfg.Vault.DailyFolder == "" {
		return name, nil
	}
	return path.Join(cfg.Vault.DailyFolder, name), nil
}

// ExtractPlan reads the daily note for date. A missing note is not an error.
func (o *observer) ExtractPlan(date string) ([]models.TaskItem, []models.ShipItem, error) {
	notePath, err := DailyNotePath(o.cfg, date)
	if err != nil {
		return nil, nil, err
	}
	content, err := o.docs.Read(notePath)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("reading daily note %s: %w", notePath, err)
	}
	tasks, ships := ExtractPlan(content, o.cfg.Sections)
	return tasks, ships, nil
}

// CollectFeedback reads both feedback collections and keeps entries dated date.
func (o *observer) CollectFeedback(date string) ([]models.FeedbackItem, error) {
	var items []models.FeedbackItem
	sources := []struct {
		path     string
		polarity models.Polarity
	}{
		{o.cfg.Feedback.PositiveFile, models.PolarityPositive},
		{o.cfg.Feedback.NegativeFile, models.PolarityNegative},
	}
	for _, src := range sources {
		if src.path == "" {
			continue
		}
		content, err := o.docs.Read(src.path)
		if err != nil {
			if errors.Is(err, ErrDocumentNotFound) {
				continue
			}
			return nil, fmt.Errorf("reading feedback %s: %w", src.path, err)
		}
		items = append(items, ParseFeedback(content, date, src.polarity)...)
	}
	return items, nil
}

// CollectReflections scans every document attributed to date for tagged
// reflections.
func (o *observer) CollectReflections(ctx context.Context, date string, now time.Time) ([]models.Reflection, error) {
	attributed, err := o.attributedDocuments(ctx, date, now)
	if err != nil {
		return nil, err
	}
	return o.reflections(attributed), nil
}

func (o *observer) reflections(docs []models.DocumentInfo) []models.Reflection {
	var out []models.Reflection
	for _, d := range docs {
		content, err := o.docs.Read(d.Path)
		if err != nil {
			o.logger.Debug("skipping unreadable document", zap.String("path", d.Path), zap.Error(err))
			continue
		}
		out = append(out, ExtractReflections(content, o.cfg.Reflections.Tag, d.Path)...)
	}
	return out
}

// VaultActivity reports the documents attributed to date and the ranked file
// changes behind them.
func (o *observer) VaultActivity(ctx context.Context, date string, now time.Time) (*models.VaultActivity, error) {
	attributed, err := o.attributedDocuments(ctx, date, now)
	if err != nil {
		return nil, err
	}
	return o.activity(ctx, date, now, attributed)
}

func (o *observer) activity(ctx context.Context, date string, now time.Time, attributed []models.DocumentInfo) (*models.VaultActivity, error) {
	folders := make(map[string]bool)
	for _, d := range attributed {
		folder := d.Folder
		if folder == "" {
			folder = "/"
		}
		folders[folder] = true
	}
	active := make([]string, 0, len(folders))
	for f := range folders {
		active = append(active, f)
	}
	sort.Strings(active)

	modified, err := o.FileDiffs(ctx, date, now)
	if err != nil {
		return nil, err
	}
	if modified == nil {
		modified = o.mtimeFallback(date, now, attributed)
	}

	return &models.VaultActivity{
		FilesTouched:  len(attributed),
		ActiveFolders: active,
		ModifiedFiles: modified,
	}, nil
}

// mtimeFallback ranks the documents modified within the day window, newest
// first, when version control produced no changes.
func (o *observer) mtimeFallback(date string, now time.Time, attributed []models.DocumentInfo) []models.ModifiedFileSignal {
	start, end, err := DayWindow(date, now.Location())
	if err != nil {
		return nil
	}
	var recent []models.DocumentInfo
	for _, d := range attributed {
		if inWindow(d.ModTime, start, end) {
			recent = append(recent, d)
		}
	}
	sort.Slice(recent, func(i, j int) bool {
		if !recent[i].ModTime.Equal(recent[j].ModTime) {
			return recent[i].ModTime.After(recent[j].ModTime)
		}
		return recent[i].Path < recent[j].Path
	})
	if len(recent) > o.cfg.Diff.MaxFiles {
		recent = recent[:o.cfg.Diff.MaxFiles]
	}

	var out []models.ModifiedFileSignal
	for _, d := range recent {
		sig := o.fileSignal(d.Path)
		sig.Diff = fallbackDiffBody
		sig.CreatedToday = inWindow(d.CreatedAt, start, end)
		sig.Source = models.DiffSourceMtimeFallback
		out = append(out, sig)
	}
	return out
}

// attributedDocuments lists the tracked documents that belong to date: by
// modify time, by creation time, by a compact date in the filename, or by a
// front-matter date.
func (o *observer) attributedDocuments(ctx context.Context, date string, now time.Time) ([]models.DocumentInfo, error) {
	start, end, err := DayWindow(date, now.Location())
	if err != nil {
		return nil, err
	}
	docs, err := o.docs.List(ctx)
	if err != nil {
		return nil, err
	}

	compact := CompactDate(date)
	var out []models.DocumentInfo
	for _, d := range docs {
		if !o.tracked(d.Path) {
			continue
		}
		if inWindow(d.ModTime, start, end) || strings.Contains(d.Name, compact) {
			out = append(out, d)
			continue
		}

		meta, err := o.docs.Metadata(d.Path)
		if err != nil {
			o.logger.Debug("reading metadata", zap.String("path", d.Path), zap.Error(err))
			meta = &models.DocumentMeta{}
		}
		created, ok := frontMatterTime(meta.FrontMatter["created"], now.Location())
		if !ok {
			created = d.CreatedAt
		}
		if inWindow(created, start, end) || frontMatterDate(meta.FrontMatter["date"]) == date {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// tracked reports whether a vault path has the tracked extension and lies
// outside every excluded folder. The reports folder and the data directory
// are always excluded.
func (o *observer) tracked(p string) bool {
	if !strings.EqualFold(path.Ext(p), o.cfg.Vault.Extension) {
		return false
	}
	excluded := append([]string{o.cfg.Vault.ReportsFolder, o.cfg.DataDir}, o.cfg.Vault.ExcludedFolders...)
	for _, folder := range excluded {
		folder = strings.Trim(strings.TrimPrefix(folder, "./"), "/")
		if folder == "" {
			continue
		}
		if p == folder || strings.HasPrefix(p, folder+"/") {
			return false
		}
	}
	return true
}

func (o *observer) fileSignal(p string) models.ModifiedFileSignal {
	folder := path.Dir(p)
	if folder == "." {
		folder = ""
	}
	sig := models.ModifiedFileSignal{
		Path:        p,
		DisplayName: strings.TrimSuffix(path.Base(p), path.Ext(p)),
		Folder:      folder,
	}
	if meta, err := o.docs.Metadata(p); err == nil && meta != nil {
		sig.Headings = meta.Headings
	}
	return sig
}

func inWindow(t, start, end time.Time) bool {
	return !t.IsZero() && !t.Before(start) && t.Before(end)
}

var frontMatterTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	DateLayout,
}

// frontMatterTime interprets a YAML front-matter value as an instant.
func frontMatterTime(v any, loc *time.Location) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range frontMatterTimeLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// frontMatterDate interprets a YAML front-matter value as a calendar date.
func frontMatterDate(v any) string {
	switch val := v.(type) {
	case time.Time:
		return val.Format(DateLayout)
	case string:
		s := strings.TrimSpace(val)
		if len(s) >= len(DateLayout) {
			return s[:len(DateLayout)]
		}
	}
	return ""
}
