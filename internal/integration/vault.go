package integration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/valter-silva-au/tinker/internal/core"
	"github.com/valter-silva-au/tinker/pkg/models"
)

// listConcurrency bounds the number of top-level folders scanned in parallel.
const listConcurrency = 8

// VaultStore is a core.DocumentStore over a directory of markdown files.
// Hidden files and folders (.git, .obsidian, .tinker) are never listed.
type VaultStore struct {
	root   string
	logger *zap.Logger
}

// NewVaultStore creates a VaultStore rooted at root.
func NewVaultStore(root string, logger *zap.Logger) *VaultStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VaultStore{root: root, logger: logger.Named("vault")}
}

// Root returns the vault directory.
func (v *VaultStore) Root() string {
	return v.root
}

// abs maps a vault-relative path to the filesystem, rejecting paths that
// escape the root.
func (v *VaultStore) abs(rel string) (string, error) {
	clean := path.Clean(filepath.ToSlash(rel))
	if clean == "." || clean == "/" {
		return "", fmt.Errorf("empty document path")
	}
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("document path %q escapes the vault", rel)
	}
	return filepath.Join(v.root, filepath.FromSlash(clean)), nil
}

func (v *VaultStore) Read(rel string) (string, error) {
	p, err := v.abs(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("reading %s: %w", rel, core.ErrDocumentNotFound)
		}
		return "", fmt.Errorf("reading %s: %w", rel, err)
	}
	return string(data), nil
}

func (v *VaultStore) Write(rel, content string) error {
	p, err := v.abs(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating folder for %s: %w", rel, err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	return nil
}

func (v *VaultStore) CreateFolder(rel string) error {
	p, err := v.abs(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p, 0o755); err != nil {
		return fmt.Errorf("creating folder %s: %w", rel, err)
	}
	return nil
}

func (v *VaultStore) Metadata(rel string) (*models.DocumentMeta, error) {
	content, err := v.Read(rel)
	if err != nil {
		return nil, err
	}
	return core.ParseMarkdownMeta(content), nil
}

// List walks the vault and returns every visible file sorted by path.
// Top-level folders are scanned concurrently.
func (v *VaultStore) List(ctx context.Context) ([]models.DocumentInfo, error) {
	entries, err := os.ReadDir(v.root)
	if err != nil {
		return nil, fmt.Errorf("listing vault: %w", err)
	}

	var (
		mu   sync.Mutex
		docs []models.DocumentInfo
	)
	collect := func(found []models.DocumentInfo) {
		mu.Lock()
		docs = append(docs, found...)
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for _, e := range entries {
		if hidden(e.Name()) {
			continue
		}
		if !e.IsDir() {
			if info, ok := v.describe(e.Name(), e); ok {
				collect([]models.DocumentInfo{info})
			}
			continue
		}
		dir := e.Name()
		g.Go(func() error {
			found, err := v.walk(ctx, dir)
			if err != nil {
				return err
			}
			collect(found)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("listing vault: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

func (v *VaultStore) walk(ctx context.Context, top string) ([]models.DocumentInfo, error) {
	var found []models.DocumentInfo
	err := filepath.WalkDir(filepath.Join(v.root, top), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			v.logger.Debug("skipping unreadable path", zap.String("path", p), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if hidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(v.root, p)
		if err != nil {
			return nil
		}
		if info, ok := v.describe(filepath.ToSlash(rel), d); ok {
			found = append(found, info)
		}
		return nil
	})
	return found, err
}

func (v *VaultStore) describe(rel string, d fs.DirEntry) (models.DocumentInfo, bool) {
	fi, err := d.Info()
	if err != nil {
		return models.DocumentInfo{}, false
	}
	folder := path.Dir(rel)
	if folder == "." {
		folder = ""
	}
	created, ok := birthTime(filepath.Join(v.root, filepath.FromSlash(rel)))
	if !ok {
		created = fi.ModTime()
	}
	return models.DocumentInfo{
		Path:      rel,
		Name:      path.Base(rel),
		Folder:    folder,
		Extension: path.Ext(rel),
		ModTime:   fi.ModTime(),
		CreatedAt: created,
	}, true
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
