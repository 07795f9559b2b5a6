package analyzer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/kushal45/reviewgraph/internal/types"
)

// fakeTool writes an executable shell script and returns a runner that
// resolves every binary name to it.
func fakeTool(t *testing.T, script string) *Runner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script fake tools need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-tool")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	r := NewRunner(nil)
	r.lookPath = func(string) (string, error) { return path, nil }
	return r
}

func TestRunner_CapturesOutputAndExitCode(t *testing.T) {
	r := fakeTool(t, `echo "out $1"; echo "err line" >&2; exit 3`)

	res, err := r.Run(context.Background(), Command{Binary: "fake", Args: []string{"x"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if string(res.Stdout) != "out x\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "out x\n")
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if stderrSummary(res) != "err line" {
		t.Errorf("stderrSummary = %q", stderrSummary(res))
	}
}

func TestRunner_Stdin(t *testing.T) {
	r := fakeTool(t, `cat`)
	res, err := r.Run(context.Background(), Command{Binary: "fake", Stdin: "hello"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if string(res.Stdout) != "hello" {
		t.Errorf("Stdout = %q, want hello", res.Stdout)
	}
}

func TestRunner_MissingBinary(t *testing.T) {
	r := NewRunner(nil)
	_, err := r.Run(context.Background(), Command{Binary: "definitely-not-a-real-linter-binary"})
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("err = %v, want ErrToolNotFound", err)
	}
}

func TestRunner_Timeout(t *testing.T) {
	r := fakeTool(t, `exec sleep 5`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err := r.Run(ctx, Command{Binary: "fake"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(started); elapsed > 4*time.Second {
		t.Errorf("Run took %v after deadline", elapsed)
	}
}

func TestRunner_Canceled(t *testing.T) {
	r := fakeTool(t, `exec sleep 5`)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := r.Run(ctx, Command{Binary: "fake"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRunner_TruncatesOutput(t *testing.T) {
	r := fakeTool(t, `i=0; while [ $i -lt 100 ]; do echo 0123456789; i=$((i+1)); done`)
	r.MaxOutputBytes = 64

	res, err := r.Run(context.Background(), Command{Binary: "fake"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Truncated || len(res.Stdout) != 64 {
		t.Errorf("Truncated = %v, len = %d; want true, 64", res.Truncated, len(res.Stdout))
	}
}

func TestToolAnalyzer(t *testing.T) {
	shellcheckJSON := `[{"line":2,"column":1,"level":"error","code":1072,"message":"Unexpected"}]`

	tests := []struct {
		name       string
		script     string
		wantReason string
		wantIssues int
	}{
		{"findings exit 1", "echo '" + shellcheckJSON + "'; exit 1", "", 1},
		{"clean exit 0", "echo '[]'", "", 0},
		{"crash exit 2", "echo 'bad flag' >&2; exit 2", types.ReasonUnexpectedExit, 0},
		{"garbage output", "echo 'not json'; exit 1", types.ReasonParseError, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewShellCheck(fakeTool(t, tt.script))
			issues, err := a.Analyze(context.Background(), Target{
				Path:     "scripts/run.sh",
				AbsPath:  "/tmp/ws/scripts/run.sh",
				Language: "shell",
			})
			if tt.wantReason != "" {
				if err == nil || Reason(err) != tt.wantReason {
					t.Fatalf("err = %v, want reason %s", err, tt.wantReason)
				}
				return
			}
			if err != nil {
				t.Fatalf("Analyze failed: %v", err)
			}
			if len(issues) != tt.wantIssues {
				t.Fatalf("got %d issues, want %d", len(issues), tt.wantIssues)
			}
			for _, is := range issues {
				if is.File != "scripts/run.sh" || is.Tool != "shellcheck" || is.Language != "shell" {
					t.Errorf("issue not stamped: %+v", is)
				}
			}
		})
	}
}

func TestToolAnalyzer_RequiresMaterializedFile(t *testing.T) {
	a := NewHadolint(NewRunner(nil))
	if _, err := a.Analyze(context.Background(), Target{Path: "Dockerfile"}); err == nil {
		t.Error("expected error without AbsPath")
	}
}

func TestToolAnalyzer_Available(t *testing.T) {
	r := NewRunner(nil)
	r.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	if err := NewPylint(r).Available(); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("Available() = %v, want ErrToolNotFound", err)
	}
}

func TestStaticcheck_PackageScope(t *testing.T) {
	r := fakeTool(t, `[ "$3" = "." ] || { echo "package pattern = $3" >&2; exit 2; }
[ -f util.go ] || { echo "sibling file missing" >&2; exit 2; }
d=$(pwd)
echo "{\"code\":\"SA4006\",\"location\":{\"file\":\"$d/main.go\",\"line\":4,\"column\":2},\"message\":\"value of x is never used\"}"
echo "{\"code\":\"S1002\",\"location\":{\"file\":\"$d/util.go\",\"line\":7,\"column\":5},\"message\":\"omit comparison to bool constant\"}"
exit 1`)

	ws := t.TempDir()
	pkg := filepath.Join(ws, "pkg")
	if err := os.MkdirAll(pkg, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, src := range map[string]string{
		"main.go": "package pkg\n\nfunc run() { x := helper(); _ = x }\n",
		"util.go": "package pkg\n\nfunc helper() bool { return true }\n",
	} {
		if err := os.WriteFile(filepath.Join(pkg, name), []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	issues, err := NewStaticcheck(r).Analyze(context.Background(), Target{
		Path:     "pkg/main.go",
		AbsPath:  filepath.Join(pkg, "main.go"),
		Dir:      ws,
		Language: "go",
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("got %d issues, want only the one in main.go: %+v", len(issues), issues)
	}
	if is := issues[0]; is.File != "pkg/main.go" || is.RuleID != "SA4006" || is.Line != 4 {
		t.Errorf("issue = %+v", is)
	}
}

func TestStaticcheck_CompileErrorIsUnitFailure(t *testing.T) {
	r := fakeTool(t, `echo "{\"code\":\"compile\",\"location\":{\"file\":\"$(pwd)/main.go\",\"line\":3,\"column\":1},\"message\":\"undefined: helper\"}"
exit 1`)
	dir := t.TempDir()
	abs := filepath.Join(dir, "main.go")
	if err := os.WriteFile(abs, []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewStaticcheck(r).Analyze(context.Background(), Target{Path: "main.go", AbsPath: abs, Dir: dir, Language: "go"})
	if Reason(err) != types.ReasonUnexpectedExit {
		t.Errorf("err = %v, want reason %s", err, types.ReasonUnexpectedExit)
	}
}
