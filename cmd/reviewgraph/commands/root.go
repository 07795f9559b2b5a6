// Package commands implements the reviewgraph command line.
package commands

import (
	"errors"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitOK        = 0
	ExitThreshold = 1
	ExitError     = 2
)

// exitError carries a specific process exit code.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitError
}

type globalOptions struct {
	configPath  string
	logLevel    string
	logFormat   string
	store       string
	storeDSN    string
	metricsAddr string
	trace       bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:   "reviewgraph",
		Short: "Multi-language code review pipeline",
		Long: `reviewgraph fetches a repository, runs the matching linters on every file
with a timeout and a concurrency cap, and writes a report with issues,
recommendations and a manifest of the analysis units that failed.

Reviews run as a checkpointed workflow: fetch, analyze, report. A run whose
analysis or report needs repeating can be resumed without fetching again.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Config file (default: .reviewgraph.yml if present)")
	pf.StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", "console", "Log format (console, json)")
	pf.StringVar(&g.store, "store", "memory", "Run state store (memory, sqlite, mysql, postgres)")
	pf.StringVar(&g.storeDSN, "store-dsn", "", "Store DSN or SQLite file path")
	pf.StringVar(&g.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	pf.BoolVar(&g.trace, "trace", false, "Export workflow spans to the log")

	root.AddCommand(
		newReviewCmd(g),
		newResumeCmd(g),
		newShowCmd(g),
		newDetectCmd(),
		newToolsCmd(g),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
