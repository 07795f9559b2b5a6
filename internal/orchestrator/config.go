package orchestrator

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar"

	"github.com/kushal45/reviewgraph/internal/types"
)

// Defaults applied by DefaultConfig.
const (
	DefaultMaxFileSize = 1 << 20
	DefaultToolTimeout = 30 * time.Second
	DefaultConcurrency = 4
)

// DefaultExcludes are skipped in every run unless Exclude is replaced.
var DefaultExcludes = []string{".git/**", "node_modules/**", "vendor/**"}

// Config controls filtering and dispatch of analysis units.
type Config struct {
	// MaxFileSize is the largest file, in bytes, that is analyzed. Zero
	// disables the cutoff.
	MaxFileSize int64

	// ToolTimeout bounds each (file, analyzer) unit.
	ToolTimeout time.Duration

	// ToolTimeouts overrides ToolTimeout for individual analyzers.
	ToolTimeouts map[string]time.Duration

	// Concurrency is the maximum number of units running at once.
	Concurrency int

	// MinSeverity drops issues below it.
	MinSeverity types.Severity

	// Exclude holds doublestar globs matched against slash-separated
	// repository paths.
	Exclude []string

	// MergeDuplicates folds findings that several tools report for the
	// same line into one issue.
	MergeDuplicates bool

	// WorkDir is where files are materialized for subprocess tools.
	// Empty uses the system temp directory.
	WorkDir string
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		MaxFileSize: DefaultMaxFileSize,
		ToolTimeout: DefaultToolTimeout,
		Concurrency: DefaultConcurrency,
		MinSeverity: types.SeverityInfo,
		Exclude:     append([]string(nil), DefaultExcludes...),
	}
}

// Validate rejects impossible limits and malformed globs.
func (c Config) Validate() error {
	var errs []error
	if c.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("max file size must be >= 0, got %d", c.MaxFileSize))
	}
	if c.ToolTimeout <= 0 {
		errs = append(errs, fmt.Errorf("tool timeout must be > 0, got %s", c.ToolTimeout))
	}
	for tool, d := range c.ToolTimeouts {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("timeout for %s must be > 0, got %s", tool, d))
		}
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency))
	}
	if c.MinSeverity < types.SeverityInfo || c.MinSeverity > types.SeverityCritical {
		errs = append(errs, fmt.Errorf("invalid minimum severity %d", int(c.MinSeverity)))
	}
	for _, pattern := range c.Exclude {
		if err := ValidateGlob(pattern); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ValidateGlob reports whether pattern is a well-formed doublestar glob.
func ValidateGlob(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return errors.New("exclude pattern cannot be empty")
	}
	for _, part := range strings.Split(pattern, "/") {
		if part == "**" {
			continue
		}
		if _, err := path.Match(part, ""); err != nil {
			return fmt.Errorf("malformed exclude pattern %q: %w", pattern, err)
		}
	}
	if _, err := doublestar.Match(pattern, pattern); err != nil {
		return fmt.Errorf("malformed exclude pattern %q: %w", pattern, err)
	}
	return nil
}

func (c Config) timeoutFor(tool string) time.Duration {
	if d, ok := c.ToolTimeouts[tool]; ok && d > 0 {
		return d
	}
	return c.ToolTimeout
}

// Excluded returns the first pattern in globs that matches p.
func Excluded(globs []string, p string) (string, bool) {
	p = strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "./")
	for _, g := range globs {
		if ok, err := doublestar.Match(g, p); err == nil && ok {
			return g, true
		}
	}
	return "", false
}
