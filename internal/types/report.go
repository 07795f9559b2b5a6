package types

import "time"

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// LanguageSummary aggregates the results for one language.
type LanguageSummary struct {
	Files       int            `json:"files"`
	Issues      int            `json:"issues"`
	FailedUnits int            `json:"failed_units"`
	BySeverity  map[string]int `json:"by_severity"`
	Tools       []string       `json:"tools"`
	Density     float64        `json:"density"`
}

// ToolSummary aggregates the results for one analyzer.
type ToolSummary struct {
	Units      int            `json:"units"`
	Failed     int            `json:"failed"`
	Issues     int            `json:"issues"`
	BySeverity map[string]int `json:"by_severity"`
}

// Summary holds repository-wide totals.
type Summary struct {
	FilesAnalyzed int                          `json:"files_analyzed"`
	FilesSkipped  int                          `json:"files_skipped"`
	TotalIssues   int                          `json:"total_issues"`
	TotalUnits    int                          `json:"total_units"`
	FailedUnits   int                          `json:"failed_units"`
	IssueDensity  float64                      `json:"issue_density"`
	BySeverity    map[string]int               `json:"by_severity"`
	ByLanguage    map[Language]LanguageSummary `json:"by_language"`
	ByTool        map[string]ToolSummary       `json:"by_tool"`
}

// Recommendation is a threshold-based suggestion derived from the summary.
type Recommendation struct {
	Kind     string   `json:"kind"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// StageError is a workflow-level failure of one stage.
type StageError struct {
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Usage summarizes AI reviewer consumption.
type Usage struct {
	Calls        int     `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Report is the final output of a review run.
type Report struct {
	RunID           string           `json:"run_id"`
	Status          string           `json:"status"`
	Repository      Repository       `json:"repository"`
	GeneratedAt     time.Time        `json:"generated_at"`
	Duration        time.Duration    `json:"duration_ns"`
	MinSeverity     Severity         `json:"min_severity"`
	Summary         Summary          `json:"summary"`
	Recommendations []Recommendation `json:"recommendations"`
	Issues          []Issue          `json:"issues"`
	Units           []UnitResult     `json:"units"`
	Failures        []Failure        `json:"failures"`
	Skipped         []SkippedFile    `json:"skipped"`
	Errors          []StageError     `json:"errors,omitempty"`
	AIUsage         *Usage           `json:"ai_usage,omitempty"`
}
