// Package types holds the data model shared by the review pipeline:
// source files, normalized issues, per-unit analysis results and reports.
package types

import "time"

// Language is a canonical language tag such as "python" or "dockerfile".
type Language string

// LanguageUnknown is assigned to files the detector cannot classify.
const LanguageUnknown Language = "unknown"

// SourceFile is one file handed to the analysis orchestrator.
type SourceFile struct {
	// Path is relative to the repository root, slash separated.
	Path string `json:"path"`

	Content string `json:"content,omitempty"`

	// Size is the file size in bytes. It may be set without Content for
	// files the fetcher did not download because they exceed the size cutoff.
	Size int64 `json:"size"`

	// Language is the declared language; empty means "detect from path".
	Language Language `json:"language,omitempty"`
}

// Issue is a normalized finding produced by an analyzer.
type Issue struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Column   int      `json:"column,omitempty"`
	Severity Severity `json:"severity"`
	Category string   `json:"category"`
	Message  string   `json:"message"`
	RuleID   string   `json:"rule_id,omitempty"`
	Tool     string   `json:"tool"`
	Language Language `json:"language"`

	// ReportedBy lists every tool that produced this finding when
	// duplicates were merged.
	ReportedBy []string `json:"reported_by,omitempty"`
}

// UnitStatus is the outcome of one (file, analyzer) unit.
type UnitStatus string

const (
	UnitOK     UnitStatus = "ok"
	UnitFailed UnitStatus = "failed"
)

// Failure reasons recorded in the manifest.
const (
	ReasonToolMissing    = "tool_missing"
	ReasonTimeout        = "timeout"
	ReasonParseError     = "parse_error"
	ReasonUnexpectedExit = "unexpected_exit"
	ReasonCanceled       = "canceled"
	ReasonAnalyzerError  = "analyzer_error"
)

// UnitResult records the outcome of running one analyzer on one file.
type UnitResult struct {
	File     string        `json:"file"`
	Language Language      `json:"language"`
	Tool     string        `json:"tool"`
	Status   UnitStatus    `json:"status"`
	Issues   int           `json:"issues"`
	Duration time.Duration `json:"duration_ns"`
	Reason   string        `json:"reason,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Failure is a manifest entry for a failed unit.
type Failure struct {
	File     string   `json:"file"`
	Language Language `json:"language"`
	Tool     string   `json:"tool"`
	Reason   string   `json:"reason"`
	Message  string   `json:"message"`
}

// Skip reasons for files that never reach an analyzer.
const (
	SkipExcluded   = "excluded"
	SkipTooLarge   = "too_large"
	SkipNoAnalyzer = "no_analyzer"
	SkipBinary     = "binary"
	SkipBadPath    = "invalid_path"
	SkipDuplicate  = "duplicate"
	SkipUnreadable = "unreadable"
)

// SkippedFile is a file the orchestrator did not analyze.
type SkippedFile struct {
	Path     string   `json:"path"`
	Language Language `json:"language"`
	Reason   string   `json:"reason"`
}

// Analysis is the raw output of one orchestrator run.
type Analysis struct {
	Issues   []Issue       `json:"issues"`
	Units    []UnitResult  `json:"units"`
	Failures []Failure     `json:"failures"`
	Skipped  []SkippedFile `json:"skipped"`

	// Languages maps each analyzed file to its language.
	Languages map[string]Language `json:"languages"`

	// Merged counts cross-tool duplicates folded into other issues.
	Merged int `json:"merged,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Repository is the metadata fetched for a reviewed repository.
type Repository struct {
	URL           string           `json:"url"`
	Owner         string           `json:"owner,omitempty"`
	Name          string           `json:"name"`
	FullName      string           `json:"full_name,omitempty"`
	Description   string           `json:"description,omitempty"`
	DefaultBranch string           `json:"default_branch,omitempty"`
	Ref           string           `json:"ref,omitempty"`
	PrimaryLang   string           `json:"primary_language,omitempty"`
	Languages     map[string]int64 `json:"languages,omitempty"`
	Stars         int              `json:"stars,omitempty"`
	Forks         int              `json:"forks,omitempty"`
	OpenIssues    int              `json:"open_issues,omitempty"`
	TotalFiles    int              `json:"total_files"`
	Truncated     bool             `json:"truncated,omitempty"`
}

// Snapshot is a repository plus the files fetched from it.
type Snapshot struct {
	Repository Repository   `json:"repository"`
	Files      []SourceFile `json:"files"`

	// Skipped lists files the fetcher listed but could not read.
	Skipped []SkippedFile `json:"skipped,omitempty"`
}
