// Package analyzer wraps external static-analysis tools and AI reviewers
// behind a common interface and normalizes their findings into types.Issue.
package analyzer

import (
	"context"
	"errors"

	"github.com/kushal45/reviewgraph/internal/types"
)

var (
	// ErrToolNotFound means the analyzer's executable is not installed.
	ErrToolNotFound = errors.New("analysis tool not found")

	// ErrTimeout means the tool did not finish within its time budget.
	ErrTimeout = errors.New("analysis tool timed out")

	// ErrUnexpectedExit means the tool exited with a code it does not use to
	// report findings.
	ErrUnexpectedExit = errors.New("analysis tool exited unexpectedly")

	// ErrParse means the tool's output could not be decoded.
	ErrParse = errors.New("failed to parse analysis tool output")
)

// Target is one file handed to an analyzer.
type Target struct {
	// Path is the repository-relative path reported in issues.
	Path string

	// AbsPath is where the file was materialized on disk for subprocess
	// tools. Empty for analyzers that work on Content directly.
	AbsPath string

	// Dir is the workspace root; tools run with it as working directory.
	Dir string

	Content  string
	Language types.Language
}

// Analyzer runs one analysis tool on one file.
type Analyzer interface {
	// Name is the stable tool id used in the registry and in issues.
	Name() string

	// Languages lists the languages the analyzer supports.
	Languages() []types.Language

	// Analyze returns the issues found in target. A returned error fails only
	// this (file, analyzer) unit.
	Analyze(ctx context.Context, target Target) ([]types.Issue, error)
}

// Availability is implemented by analyzers that depend on something outside
// the process, such as an executable on PATH.
type Availability interface {
	Available() error
}

// Reason maps an analyzer error to a failure manifest reason.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrToolNotFound):
		return types.ReasonToolMissing
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return types.ReasonTimeout
	case errors.Is(err, ErrParse):
		return types.ReasonParseError
	case errors.Is(err, ErrUnexpectedExit):
		return types.ReasonUnexpectedExit
	case errors.Is(err, context.Canceled):
		return types.ReasonCanceled
	default:
		return types.ReasonAnalyzerError
	}
}
