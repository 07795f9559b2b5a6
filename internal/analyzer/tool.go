package analyzer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kushal45/reviewgraph/internal/types"
)

// ParseFunc decodes a tool's stdout into issues. File, Tool and Language are
// filled in by ToolAnalyzer afterwards.
type ParseFunc func(stdout []byte) ([]types.Issue, error)

// ToolSpec describes an external linter.
type ToolSpec struct {
	Name      string
	Binary    string
	Languages []types.Language

	// Args builds the argument list for the file at path, or for the
	// package pattern "." when PackageScope is set.
	Args func(path string) []string

	// ExitOK reports whether an exit code means "ran, maybe with findings".
	// Nil accepts 0 and 1.
	ExitOK func(code int) bool

	// PackageScope runs the tool from the file's directory on the package
	// there (Args receives "."), keeping only findings located in the
	// target file. Parse must set Issue.File to the reported location.
	PackageScope bool

	Parse ParseFunc
}

// ToolAnalyzer runs an external linter on a materialized file.
type ToolAnalyzer struct {
	spec   ToolSpec
	runner *Runner
}

// NewToolAnalyzer binds spec to runner.
func NewToolAnalyzer(spec ToolSpec, runner *Runner) *ToolAnalyzer {
	if spec.Binary == "" {
		spec.Binary = spec.Name
	}
	return &ToolAnalyzer{spec: spec, runner: runner}
}

func (t *ToolAnalyzer) Name() string                { return t.spec.Name }
func (t *ToolAnalyzer) Languages() []types.Language { return t.spec.Languages }

// Binary is the executable the analyzer invokes.
func (t *ToolAnalyzer) Binary() string { return t.spec.Binary }

// Available reports ErrToolNotFound when the binary is not on PATH.
func (t *ToolAnalyzer) Available() error {
	_, err := t.runner.LookPath(t.spec.Binary)
	return err
}

// Analyze runs the tool on target.AbsPath and normalizes its output.
func (t *ToolAnalyzer) Analyze(ctx context.Context, target Target) ([]types.Issue, error) {
	if target.AbsPath == "" {
		return nil, fmt.Errorf("%s: target %s was not materialized on disk", t.spec.Name, target.Path)
	}

	cmd := Command{Binary: t.spec.Binary, Args: t.spec.Args(target.AbsPath), Dir: target.Dir}
	if t.spec.PackageScope {
		cmd.Dir = filepath.Dir(target.AbsPath)
		cmd.Args = t.spec.Args(".")
	}
	res, err := t.runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}

	exitOK := t.spec.ExitOK
	if exitOK == nil {
		exitOK = exitZeroOrOne
	}
	if !exitOK(res.ExitCode) {
		return nil, fmt.Errorf("%w: %s exit code %d: %s", ErrUnexpectedExit, t.spec.Name, res.ExitCode, stderrSummary(res))
	}
	if res.Truncated {
		return nil, fmt.Errorf("%w: %s output exceeded %d bytes", ErrParse, t.spec.Name, t.runner.MaxOutputBytes)
	}

	issues, err := t.spec.Parse(res.Stdout)
	if errors.Is(err, ErrUnexpectedExit) {
		return nil, fmt.Errorf("%s: %w", t.spec.Name, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, t.spec.Name, err)
	}
	if t.spec.PackageScope {
		issues = inFile(issues, cmd.Dir, target.AbsPath)
	}
	for i := range issues {
		issues[i].File = target.Path
		issues[i].Tool = t.spec.Name
		issues[i].Language = target.Language
	}
	return issues, nil
}

// inFile keeps the issues whose reported location is the file at abs.
// Relative locations are resolved against dir.
func inFile(issues []types.Issue, dir, abs string) []types.Issue {
	var target os.FileInfo
	kept := issues[:0]
	for _, is := range issues {
		loc := is.File
		if loc == "" {
			continue
		}
		if !filepath.IsAbs(loc) {
			loc = filepath.Join(dir, loc)
		}
		if filepath.Clean(loc) != filepath.Clean(abs) {
			// The tool may report a symlink-resolved path.
			if target == nil {
				fi, err := os.Stat(abs)
				if err != nil {
					continue
				}
				target = fi
			}
			fi, err := os.Stat(loc)
			if err != nil || !os.SameFile(fi, target) {
				continue
			}
		}
		kept = append(kept, is)
	}
	return kept
}

func exitZeroOrOne(code int) bool {
	return code == 0 || code == 1
}

// lookup maps a native severity label to a Severity, falling back to def.
func lookup(table map[string]types.Severity, key string, def types.Severity) types.Severity {
	if sev, ok := table[key]; ok {
		return sev
	}
	return def
}
