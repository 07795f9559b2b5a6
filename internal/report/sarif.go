package report

import (
	"encoding/json"
	"io"

	"github.com/kushal45/reviewgraph/internal/types"
)

// ToolVersion is reported in SARIF output.
var ToolVersion = "dev"

// SARIFFormatter writes SARIF 2.1.0 for code scanning dashboards. Each
// analyzer becomes its own run so rule ids stay scoped to their tool.
type SARIFFormatter struct{}

func (f *SARIFFormatter) Name() string      { return "sarif" }
func (f *SARIFFormatter) Extension() string { return "sarif" }

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool        sarifTool         `json:"tool"`
	Results     []sarifResult     `json:"results"`
	Invocations []sarifInvocation `json:"invocations,omitempty"`
	Properties  map[string]any    `json:"properties,omitempty"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version,omitempty"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string             `json:"id"`
	ShortDescription sarifMessage       `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig `json:"defaultConfiguration"`
	Properties       map[string]any     `json:"properties,omitempty"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	RuleIndex int             `json:"ruleIndex"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           sarifRegion           `json:"region"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn,omitempty"`
}

type sarifInvocation struct {
	ExecutionSuccessful        bool                `json:"executionSuccessful"`
	ToolExecutionNotifications []sarifNotification `json:"toolExecutionNotifications,omitempty"`
}

type sarifNotification struct {
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

func sarifLevel(sev types.Severity) string {
	switch {
	case sev >= types.SeverityHigh:
		return "error"
	case sev == types.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}

func (f *SARIFFormatter) Format(w io.Writer, r *types.Report) error {
	type runState struct {
		run       *sarifRun
		ruleIndex map[string]int
	}
	var order []string
	runs := make(map[string]*runState)
	getRun := func(tool string) *runState {
		rs, ok := runs[tool]
		if !ok {
			rs = &runState{
				run: &sarifRun{
					Tool:    sarifTool{Driver: sarifDriver{Name: tool, Rules: []sarifRule{}}},
					Results: []sarifResult{},
				},
				ruleIndex: make(map[string]int),
			}
			runs[tool] = rs
			order = append(order, tool)
		}
		return rs
	}

	for _, is := range r.Issues {
		rs := getRun(is.Tool)
		ruleID := is.RuleID
		if ruleID == "" {
			ruleID = is.Category
		}
		idx, ok := rs.ruleIndex[ruleID]
		if !ok {
			idx = len(rs.run.Tool.Driver.Rules)
			rs.ruleIndex[ruleID] = idx
			rs.run.Tool.Driver.Rules = append(rs.run.Tool.Driver.Rules, sarifRule{
				ID:               ruleID,
				ShortDescription: sarifMessage{Text: ruleID},
				DefaultConfig:    sarifDefaultConfig{Level: sarifLevel(is.Severity)},
				Properties:       map[string]any{"tags": []string{is.Category}},
			})
		}
		rs.run.Results = append(rs.run.Results, sarifResult{
			RuleID:    ruleID,
			RuleIndex: idx,
			Level:     sarifLevel(is.Severity),
			Message:   sarifMessage{Text: is.Message},
			Locations: []sarifLocation{fileLocation(is.File, is.Line, is.Column)},
		})
	}

	for _, fl := range r.Failures {
		rs := getRun(fl.Tool)
		if len(rs.run.Invocations) == 0 {
			rs.run.Invocations = []sarifInvocation{{ExecutionSuccessful: false}}
		}
		inv := &rs.run.Invocations[0]
		inv.ToolExecutionNotifications = append(inv.ToolExecutionNotifications, sarifNotification{
			Level:     "error",
			Message:   sarifMessage{Text: fl.Reason + ": " + fl.Message},
			Locations: []sarifLocation{fileLocation(fl.File, 0, 0)},
		})
	}

	log := sarifLog{
		Schema:  "https://docs.oasis-open.org/sarif/sarif/v2.1.0/sarif-schema-2.1.0.json",
		Version: "2.1.0",
		Runs:    []sarifRun{},
	}
	for _, tool := range order {
		run := runs[tool].run
		run.Tool.Driver.Version = ToolVersion
		run.Properties = map[string]any{"reviewgraph_run_id": r.RunID}
		log.Runs = append(log.Runs, *run)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(log)
}

func fileLocation(file string, line, col int) sarifLocation {
	return sarifLocation{
		PhysicalLocation: sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{URI: file},
			Region:           sarifRegion{StartLine: max(line, 1), StartColumn: col},
		},
	}
}
