package repository

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kushal45/reviewgraph/internal/language"
	"github.com/kushal45/reviewgraph/internal/types"
)

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// Local reads a repository from a directory on disk.
type Local struct {
	logger *zap.Logger
}

func NewLocal(logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{logger: logger.With(zap.String("component", "local_fetcher"))}
}

// Fetch walks the directory named by url, a path or a file:// URL.
// Hidden directories and skipDirs are not visited. opts.Ref is ignored.
func (l *Local) Fetch(ctx context.Context, url string, opts Options) (*types.Snapshot, error) {
	root := strings.TrimPrefix(url, "file://")
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidURL, url, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, abs)
		}
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidURL, abs)
	}

	snap := &types.Snapshot{
		Repository: types.Repository{
			URL:       "file://" + filepath.ToSlash(abs),
			Name:      filepath.Base(abs),
			FullName:  filepath.Base(abs),
			Languages: make(map[string]int64),
		},
		Files: []types.SourceFile{},
	}

	var paths []string
	sizes := make(map[string]int64)
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != abs && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		paths = append(paths, rel)
		sizes[rel] = fi.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", abs, err)
	}

	sort.Strings(paths)
	snap.Repository.TotalFiles = len(paths)
	for _, rel := range paths {
		if opts.full(len(snap.Files)) {
			snap.Repository.Truncated = true
			break
		}
		if !opts.include(rel) {
			continue
		}
		file := types.SourceFile{Path: rel, Size: sizes[rel]}
		if opts.MaxFileSize <= 0 || file.Size <= opts.MaxFileSize {
			data, err := os.ReadFile(filepath.Join(abs, filepath.FromSlash(rel)))
			if err != nil {
				l.logger.Warn("skipping unreadable file", zap.String("path", rel), zap.Error(err))
				continue
			}
			file.Content = string(data)
		}
		if lang := language.Detect(rel); lang != language.Unknown {
			snap.Repository.Languages[string(lang)] += file.Size
		}
		snap.Files = append(snap.Files, file)
	}

	l.logger.Info("directory fetched",
		zap.String("root", abs),
		zap.Int("files", len(snap.Files)),
		zap.Int("total_files", snap.Repository.TotalFiles))
	return snap, nil
}
