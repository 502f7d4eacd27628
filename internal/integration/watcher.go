package integration

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/valter-silva-au/tinker/pkg/models"
)

// DefaultDebounce is the quiet period after the last change before a batch
// is delivered.
const DefaultDebounce = 200 * time.Millisecond

// WatchOptions selects which vault changes are reported.
type WatchOptions struct {
	// Extension limits events to files with this extension, e.g. ".md".
	Extension string
	// Excluded lists vault-relative folders whose changes are ignored.
	Excluded []string
	Debounce time.Duration
}

// VaultWatcher delivers debounced batches of vault changes. Hidden folders
// are not watched.
type VaultWatcher struct {
	root    string
	opts    WatchOptions
	fsw     *fsnotify.Watcher
	logger  *zap.Logger
	batches chan []models.ChangeEvent
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewVaultWatcher starts watching root and every visible folder below it.
func NewVaultWatcher(root string, opts WatchOptions, logger *zap.Logger) (*VaultWatcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &VaultWatcher{
		root:    root,
		opts:    opts,
		fsw:     fsw,
		logger:  logger.Named("watcher"),
		batches: make(chan []models.ChangeEvent, 1),
		done:    make(chan struct{}),
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Batches returns the channel of debounced change batches. It is closed by
// Close.
func (w *VaultWatcher) Batches() <-chan []models.ChangeEvent {
	return w.batches
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *VaultWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()
		close(w.batches)
	})
	return err
}

func (w *VaultWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && hidden(d.Name()) {
			return filepath.SkipDir
		}
		if p != w.root && w.excluded(p) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

func (w *VaultWatcher) loop() {
	defer w.wg.Done()

	pending := map[string]models.ChangeEvent{}
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !hidden(info.Name()) {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.Debug("watching new folder", zap.String("path", ev.Name), zap.Error(err))
					}
					continue
				}
			}
			change, ok := w.translate(ev)
			if !ok {
				continue
			}
			pending[change.Path] = change
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
			} else {
				timer.Reset(w.opts.Debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			batch := make([]models.ChangeEvent, 0, len(pending))
			for _, c := range pending {
				batch = append(batch, c)
			}
			sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
			pending = map[string]models.ChangeEvent{}
			select {
			case w.batches <- batch:
			case <-w.done:
				return
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watcher error", zap.Error(err))
		}
	}
}

// translate maps an fsnotify event to a vault change, dropping events for
// untracked files.
func (w *VaultWatcher) translate(ev fsnotify.Event) (models.ChangeEvent, bool) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return models.ChangeEvent{}, false
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if hidden(part) {
			return models.ChangeEvent{}, false
		}
	}
	if w.opts.Extension != "" && !strings.EqualFold(filepath.Ext(rel), w.opts.Extension) {
		return models.ChangeEvent{}, false
	}
	if w.excluded(ev.Name) {
		return models.ChangeEvent{}, false
	}

	var op models.ChangeOp
	switch {
	case ev.Has(fsnotify.Create):
		op = models.ChangeCreate
	case ev.Has(fsnotify.Write):
		op = models.ChangeModify
	case ev.Has(fsnotify.Remove):
		op = models.ChangeDelete
	case ev.Has(fsnotify.Rename):
		op = models.ChangeRename
	default:
		return models.ChangeEvent{}, false
	}
	return models.ChangeEvent{Path: rel, Op: op, At: time.Now()}, true
}

func (w *VaultWatcher) excluded(abs string) bool {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, folder := range w.opts.Excluded {
		folder = strings.Trim(strings.TrimPrefix(filepath.ToSlash(folder), "./"), "/")
		if folder == "" {
			continue
		}
		if rel == folder || strings.HasPrefix(rel, folder+"/") {
			return true
		}
	}
	return false
}
