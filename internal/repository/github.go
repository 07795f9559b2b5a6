package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/kushal45/reviewgraph/internal/language"
	"github.com/kushal45/reviewgraph/internal/types"
)

// Default GitHub endpoints.
const (
	DefaultAPIBaseURL = "https://api.github.com"
	DefaultRawBaseURL = "https://raw.githubusercontent.com"
)

const defaultBlobCacheSize = 4096

// GitHub fetches repositories through the GitHub REST API.
type GitHub struct {
	APIBaseURL string
	RawBaseURL string
	Token      string

	client *http.Client
	blobs  *lru.Cache[string, string]
	logger *zap.Logger
}

// GitHubOption configures a GitHub fetcher.
type GitHubOption func(*GitHub)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) GitHubOption {
	return func(g *GitHub) { g.client = c }
}

// WithBaseURLs points the fetcher at another API and raw content host, such
// as GitHub Enterprise or a test server.
func WithBaseURLs(api, raw string) GitHubOption {
	return func(g *GitHub) {
		g.APIBaseURL = strings.TrimRight(api, "/")
		g.RawBaseURL = strings.TrimRight(raw, "/")
	}
}

// WithLogger sets the fetcher's logger.
func WithLogger(logger *zap.Logger) GitHubOption {
	return func(g *GitHub) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGitHub returns a fetcher authenticated with token, which may be empty.
func NewGitHub(token string, opts ...GitHubOption) (*GitHub, error) {
	cache, err := lru.New[string, string](defaultBlobCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create blob cache: %w", err)
	}
	g := &GitHub{
		APIBaseURL: DefaultAPIBaseURL,
		RawBaseURL: DefaultRawBaseURL,
		Token:      token,
		client:     &http.Client{Timeout: 60 * time.Second},
		blobs:      cache,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(zap.String("component", "github"))
	return g, nil
}

// Ref identifies a GitHub repository and optional ref.
type Ref struct {
	Owner string
	Name  string
	Ref   string
}

func (r Ref) FullName() string { return r.Owner + "/" + r.Name }

var namePart = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ParseGitHubURL accepts https://github.com/owner/repo[.git],
// github.com/owner/repo, owner/repo, and any of these with an "@ref" suffix
// or a "/tree/<ref>" path.
func ParseGitHubURL(raw string) (Ref, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Ref{}, fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	var ref string
	if i := strings.LastIndex(s, "@"); i > 0 && !(i == 3 && strings.HasPrefix(s, "git@")) {
		s, ref = s[:i], s[i+1:]
	}

	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimPrefix(s, "github.com/")
	s = strings.TrimPrefix(s, "git@github.com:")
	if strings.Contains(strings.SplitN(s, "/", 2)[0], ".") {
		return Ref{}, fmt.Errorf("%w: %s is not a GitHub repository", ErrInvalidURL, raw)
	}

	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) >= 4 && parts[2] == "tree" && ref == "" {
		ref = strings.Join(parts[3:], "/")
		parts = parts[:2]
	}
	if len(parts) != 2 {
		return Ref{}, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}

	owner, name := parts[0], strings.TrimSuffix(parts[1], ".git")
	if !namePart.MatchString(owner) || !namePart.MatchString(name) {
		return Ref{}, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	return Ref{Owner: owner, Name: name, Ref: ref}, nil
}

type repoResponse struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	Language      string `json:"language"`
	HTMLURL       string `json:"html_url"`
	Stars         int    `json:"stargazers_count"`
	Forks         int    `json:"forks_count"`
	OpenIssues    int    `json:"open_issues_count"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type treeResponse struct {
	SHA       string      `json:"sha"`
	Tree      []treeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

// Fetch downloads repository metadata and the files selected by opts.
func (g *GitHub) Fetch(ctx context.Context, rawURL string, opts Options) (*types.Snapshot, error) {
	ref, err := ParseGitHubURL(rawURL)
	if err != nil {
		return nil, err
	}
	if opts.Ref != "" {
		ref.Ref = opts.Ref
	}

	var repo repoResponse
	if err := g.getJSON(ctx, fmt.Sprintf("%s/repos/%s/%s", g.APIBaseURL, ref.Owner, ref.Name), &repo); err != nil {
		return nil, fmt.Errorf("fetch metadata for %s: %w", ref.FullName(), err)
	}
	if ref.Ref == "" {
		ref.Ref = repo.DefaultBranch
	}

	languages := make(map[string]int64)
	if err := g.getJSON(ctx, fmt.Sprintf("%s/repos/%s/%s/languages", g.APIBaseURL, ref.Owner, ref.Name), &languages); err != nil {
		if errors.Is(err, ErrRateLimited) || ctx.Err() != nil {
			return nil, fmt.Errorf("fetch languages for %s: %w", ref.FullName(), err)
		}
		g.logger.Warn("language stats unavailable", zap.String("repo", ref.FullName()), zap.Error(err))
	}

	var tree treeResponse
	treeURL := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", g.APIBaseURL, ref.Owner, ref.Name, url.PathEscape(ref.Ref))
	if err := g.getJSON(ctx, treeURL, &tree); err != nil {
		return nil, fmt.Errorf("fetch tree for %s@%s: %w", ref.FullName(), ref.Ref, err)
	}

	snap := &types.Snapshot{
		Repository: types.Repository{
			URL:           repo.HTMLURL,
			Owner:         repo.Owner.Login,
			Name:          repo.Name,
			FullName:      repo.FullName,
			Description:   repo.Description,
			DefaultBranch: repo.DefaultBranch,
			Ref:           ref.Ref,
			PrimaryLang:   repo.Language,
			Languages:     languages,
			Stars:         repo.Stars,
			Forks:         repo.Forks,
			OpenIssues:    repo.OpenIssues,
			Truncated:     tree.Truncated,
		},
		Files: []types.SourceFile{},
	}
	if snap.Repository.URL == "" {
		snap.Repository.URL = "https://github.com/" + ref.FullName()
	}

	blobs := make([]treeEntry, 0, len(tree.Tree))
	for _, e := range tree.Tree {
		if e.Type == "blob" {
			blobs = append(blobs, e)
		}
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Path < blobs[j].Path })
	snap.Repository.TotalFiles = len(blobs)

	for _, e := range blobs {
		if opts.full(len(snap.Files)) {
			snap.Repository.Truncated = true
			break
		}
		if !opts.include(e.Path) {
			continue
		}
		file := types.SourceFile{Path: e.Path, Size: e.Size}
		if opts.MaxFileSize <= 0 || e.Size <= opts.MaxFileSize {
			content, err := g.blob(ctx, ref, e)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, ErrRateLimited) {
					return nil, err
				}
				g.logger.Warn("skipping unreadable file", zap.String("path", e.Path), zap.Error(err))
				snap.Skipped = append(snap.Skipped, types.SkippedFile{
					Path:     e.Path,
					Language: language.Detect(e.Path),
					Reason:   types.SkipUnreadable,
				})
				continue
			}
			file.Content = content
		}
		snap.Files = append(snap.Files, file)
	}

	g.logger.Info("repository fetched",
		zap.String("repo", ref.FullName()),
		zap.String("ref", ref.Ref),
		zap.Int("files", len(snap.Files)),
		zap.Int("total_files", snap.Repository.TotalFiles),
		zap.Bool("truncated", snap.Repository.Truncated))
	return snap, nil
}

// blob returns a file's content, consulting the cache by blob SHA first.
func (g *GitHub) blob(ctx context.Context, ref Ref, e treeEntry) (string, error) {
	if e.SHA != "" {
		if content, ok := g.blobs.Get(e.SHA); ok {
			return content, nil
		}
	}

	escaped := make([]string, 0, 4)
	for _, seg := range strings.Split(e.Path, "/") {
		escaped = append(escaped, url.PathEscape(seg))
	}
	rawURL := fmt.Sprintf("%s/%s/%s/%s/%s", g.RawBaseURL, ref.Owner, ref.Name, url.PathEscape(ref.Ref), strings.Join(escaped, "/"))

	body, err := g.get(ctx, rawURL, "")
	if err != nil {
		return "", err
	}
	content := string(body)
	if e.SHA != "" {
		g.blobs.Add(e.SHA, content)
	}
	return content, nil
}

func (g *GitHub) getJSON(ctx context.Context, u string, v interface{}) error {
	body, err := g.get(ctx, u, "application/vnd.github+json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", u, err)
	}
	return nil
}

func (g *GitHub) get(ctx context.Context, u, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	}
	req.Header.Set("User-Agent", "reviewgraph")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, u)
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		reset := resp.Header.Get("X-RateLimit-Reset")
		return nil, fmt.Errorf("%w (reset at %s)", ErrRateLimited, reset)
	default:
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return nil, &HTTPError{Method: http.MethodGet, URL: u, StatusCode: resp.StatusCode, Body: msg}
	}
}
