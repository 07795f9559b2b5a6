package workflow

import (
	"time"

	"github.com/kushal45/reviewgraph/internal/types"
)

// Node ids.
const (
	NodeFetch       = "fetch"
	NodeAnalyze     = "analyze"
	NodeReport      = "report"
	NodeHandleError = "handle_error"
)

// ReviewState is the state threaded through the review graph and persisted
// after every step.
type ReviewState struct {
	RunID   string `json:"run_id"`
	RepoURL string `json:"repo_url"`

	Repository *types.Repository   `json:"repository,omitempty"`
	Files      []types.SourceFile  `json:"files,omitempty"`
	Unread     []types.SkippedFile `json:"unread,omitempty"`
	Analysis   *types.Analysis     `json:"analysis,omitempty"`
	Report     *types.Report       `json:"report,omitempty"`
	Artifacts  map[string]string   `json:"artifacts,omitempty"`
	Errors     []types.StageError  `json:"errors,omitempty"`
	Status     string              `json:"status,omitempty"`

	// Path lists the nodes the run went through. It is set on the state
	// returned by Run and Resume.
	Path []string `json:"path,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// ReduceReviewState merges a node's delta into the accumulated state.
// Scalar and pointer fields are replaced when set in delta; Errors are
// appended and Artifacts merged.
func ReduceReviewState(prev, delta ReviewState) ReviewState {
	if delta.RunID != "" {
		prev.RunID = delta.RunID
	}
	if delta.RepoURL != "" {
		prev.RepoURL = delta.RepoURL
	}
	if delta.Repository != nil {
		prev.Repository = delta.Repository
	}
	if delta.Files != nil {
		prev.Files = delta.Files
	}
	if delta.Unread != nil {
		prev.Unread = delta.Unread
	}
	if delta.Analysis != nil {
		prev.Analysis = delta.Analysis
	}
	if delta.Report != nil {
		prev.Report = delta.Report
	}
	if len(delta.Artifacts) > 0 {
		merged := make(map[string]string, len(prev.Artifacts)+len(delta.Artifacts))
		for k, v := range prev.Artifacts {
			merged[k] = v
		}
		for k, v := range delta.Artifacts {
			merged[k] = v
		}
		prev.Artifacts = merged
	}
	if len(delta.Errors) > 0 {
		prev.Errors = append(append([]types.StageError(nil), prev.Errors...), delta.Errors...)
	}
	if delta.Status != "" {
		prev.Status = delta.Status
	}
	if delta.Path != nil {
		prev.Path = delta.Path
	}
	if prev.StartedAt.IsZero() && !delta.StartedAt.IsZero() {
		prev.StartedAt = delta.StartedAt
	}
	if !delta.FinishedAt.IsZero() {
		prev.FinishedAt = delta.FinishedAt
	}
	return prev
}

// Failed reports whether stage recorded an error.
func (s ReviewState) Failed(stage string) bool {
	for _, e := range s.Errors {
		if e.Stage == stage {
			return true
		}
	}
	return false
}

func stageFailed(stage string) func(ReviewState) bool {
	return func(s ReviewState) bool { return s.Failed(stage) }
}
