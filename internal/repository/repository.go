// Package repository fetches repository metadata and source files, either
// from the GitHub REST API or from a local directory.
package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kushal45/reviewgraph/internal/types"
)

var (
	// ErrInvalidURL means the repository reference could not be parsed.
	ErrInvalidURL = errors.New("invalid repository URL")

	// ErrNotFound means the repository or ref does not exist or is private.
	ErrNotFound = errors.New("repository not found")

	// ErrRateLimited means the GitHub API rate limit is exhausted.
	ErrRateLimited = errors.New("GitHub API rate limit exceeded")
)

// HTTPError is a non-success response from a remote API.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Options limits what a fetch downloads.
type Options struct {
	// Ref is a branch, tag or commit. Empty uses the default branch, or the
	// ref embedded in the URL.
	Ref string

	// MaxFiles caps how many files are returned. Zero means no cap.
	MaxFiles int

	// MaxFileSize is the largest file whose content is downloaded. Larger
	// files are listed with their size and no content. Zero means no cap.
	MaxFileSize int64

	// Include filters paths before download. Nil includes everything.
	Include func(path string) bool
}

func (o Options) include(p string) bool {
	return o.Include == nil || o.Include(p)
}

func (o Options) full(n int) bool {
	return o.MaxFiles > 0 && n >= o.MaxFiles
}

// Fetcher retrieves a repository snapshot.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts Options) (*types.Snapshot, error)
}

// Router sends local paths and file:// URLs to Local and everything else to
// GitHub.
type Router struct {
	GitHub *GitHub
	Local  *Local
}

func (r *Router) Fetch(ctx context.Context, url string, opts Options) (*types.Snapshot, error) {
	if IsLocal(url) {
		return r.Local.Fetch(ctx, url, opts)
	}
	if r.GitHub == nil {
		return nil, fmt.Errorf("%w: %s: remote fetching is disabled", ErrInvalidURL, url)
	}
	return r.GitHub.Fetch(ctx, url, opts)
}

// IsLocal reports whether url names a local directory.
func IsLocal(url string) bool {
	if strings.HasPrefix(url, "file://") {
		return true
	}
	if strings.HasPrefix(url, "/") || strings.HasPrefix(url, "./") || strings.HasPrefix(url, "../") || url == "." {
		return true
	}
	info, err := os.Stat(url)
	return err == nil && info.IsDir()
}
