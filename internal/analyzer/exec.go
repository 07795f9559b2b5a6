package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxOutputBytes caps captured stdout and stderr per stream.
const DefaultMaxOutputBytes = 4 << 20

// Command describes one subprocess invocation.
type Command struct {
	Binary string
	Args   []string
	Dir    string
	Stdin  string
}

// Result is the captured outcome of a finished subprocess.
type Result struct {
	Stdout    []byte
	Stderr    []byte
	ExitCode  int
	Duration  time.Duration
	Truncated bool
}

// Runner executes tool subprocesses with output limits.
// The caller's context bounds the run; its deadline is the tool timeout.
type Runner struct {
	MaxOutputBytes int64

	// Env is appended to the inherited environment.
	Env []string

	Logger *zap.Logger

	lookPath func(string) (string, error)
}

// NewRunner returns a Runner with default limits.
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		MaxOutputBytes: DefaultMaxOutputBytes,
		Logger:         logger,
		lookPath:       exec.LookPath,
	}
}

// LookPath resolves binary on PATH, wrapping failures in ErrToolNotFound.
func (r *Runner) LookPath(binary string) (string, error) {
	lookPath := r.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, binary)
	}
	return path, nil
}

// Run executes cmd. A missing binary yields ErrToolNotFound and an expired
// context deadline yields ErrTimeout. A non-zero exit is not an error here:
// tools use exit codes to signal findings, so the caller decides.
func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	path, err := r.LookPath(cmd.Binary)
	if err != nil {
		return nil, err
	}

	execCmd := exec.CommandContext(ctx, path, cmd.Args...)
	execCmd.Dir = cmd.Dir
	execCmd.WaitDelay = 2 * time.Second
	if len(r.Env) > 0 {
		execCmd.Env = append(os.Environ(), r.Env...)
	}
	if cmd.Stdin != "" {
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}

	maxOutput := r.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutputBytes
	}
	var stdout, stderr bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdout, max: maxOutput}
	stderrLimited := &limitedWriter{w: &stderr, max: maxOutput}
	execCmd.Stdout = stdoutLimited
	execCmd.Stderr = stderrLimited

	started := time.Now()
	runErr := execCmd.Run()
	result := &Result{
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		ExitCode:  0,
		Duration:  time.Since(started),
		Truncated: stdoutLimited.truncated || stderrLimited.truncated,
	}

	if runErr == nil {
		return result, nil
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		r.Logger.Warn("tool killed after deadline",
			zap.String("tool", cmd.Binary),
			zap.Duration("elapsed", result.Duration))
		return result, fmt.Errorf("%w: %s after %s", ErrTimeout, cmd.Binary, result.Duration.Round(time.Millisecond))
	case errors.Is(ctx.Err(), context.Canceled):
		return result, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, fmt.Errorf("run %s: %w", cmd.Binary, runErr)
}

// limitedWriter stops writing after max bytes and remembers that it did.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	remaining := l.max - l.written
	if remaining <= 0 {
		l.truncated = true
		return len(p), nil
	}
	chunk := p
	if int64(len(chunk)) > remaining {
		chunk = chunk[:remaining]
		l.truncated = true
	}
	n, err := l.w.Write(chunk)
	l.written += int64(n)
	if err != nil {
		return n, err
	}
	return len(p), nil
}

// stderrSummary returns the first line of stderr, for error messages.
func stderrSummary(res *Result) string {
	if res == nil {
		return ""
	}
	line := strings.TrimSpace(string(res.Stderr))
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if len(line) > 200 {
		line = line[:200] + "..."
	}
	return line
}
