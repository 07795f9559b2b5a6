package analyzer

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kushal45/reviewgraph/internal/types"
)

func TestParsePylint(t *testing.T) {
	out := []byte(`[
		{"type": "convention", "line": 1, "column": 0, "path": "a.py", "symbol": "missing-module-docstring", "message": "Missing module docstring", "message-id": "C0114"},
		{"type": "error", "line": 7, "column": 4, "path": "a.py", "symbol": "undefined-variable", "message": "Undefined variable 'x'", "message-id": "E0602"},
		{"type": "fatal", "line": 1, "column": 0, "path": "a.py", "symbol": "syntax-error", "message": "invalid syntax", "message-id": "E0001"}
	]`)

	got, err := parsePylint(out)
	if err != nil {
		t.Fatalf("parsePylint failed: %v", err)
	}
	want := []types.Issue{
		{Line: 1, Column: 1, Severity: types.SeverityLow, Category: "convention", Message: "Missing module docstring", RuleID: "C0114 missing-module-docstring"},
		{Line: 7, Column: 5, Severity: types.SeverityHigh, Category: "error", Message: "Undefined variable 'x'", RuleID: "E0602 undefined-variable"},
		{Line: 1, Column: 1, Severity: types.SeverityCritical, Category: "fatal", Message: "invalid syntax", RuleID: "E0001 syntax-error"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parsePylint mismatch (-want +got):\n%s", diff)
	}

	if issues, err := parsePylint([]byte("  \n")); err != nil || len(issues) != 0 {
		t.Errorf("empty output = (%v, %v), want no issues", issues, err)
	}
	if _, err := parsePylint([]byte("************* Module a")); err == nil {
		t.Error("expected error for non-JSON output")
	}
}

func TestParseFlake8(t *testing.T) {
	out := []byte("a.py:1:1: F401 'os' imported but unused\n" +
		"a.py:3:80: E501 line too long (88 > 79 characters)\n" +
		"a.py:5:1: E999 SyntaxError: invalid syntax\n" +
		"a.py:9:1: C901 'f' is too complex (12)\n" +
		"a.py:10:5: W605 invalid escape sequence '\\d'\n" +
		"a.py:11:5: N802 function name should be lowercase\n")

	got, err := parseFlake8(out)
	if err != nil {
		t.Fatalf("parseFlake8 failed: %v", err)
	}
	wantSev := []types.Severity{
		types.SeverityHigh, types.SeverityMedium, types.SeverityHigh,
		types.SeverityMedium, types.SeverityLow, types.SeverityInfo,
	}
	if len(got) != len(wantSev) {
		t.Fatalf("got %d issues, want %d", len(got), len(wantSev))
	}
	for i, sev := range wantSev {
		if got[i].Severity != sev {
			t.Errorf("issue %d (%s) severity = %v, want %v", i, got[i].RuleID, got[i].Severity, sev)
		}
	}
	if got[1].Line != 3 || got[1].Column != 80 || got[1].Message != "line too long (88 > 79 characters)" {
		t.Errorf("issue 1 = %+v", got[1])
	}

	if _, err := parseFlake8([]byte("Traceback (most recent call last):")); err == nil {
		t.Error("expected error for unrecognized line")
	}
}

func TestParseESLint(t *testing.T) {
	out := []byte(`[{"filePath": "/w/app.js", "messages": [
		{"ruleId": "no-unused-vars", "severity": 2, "message": "'x' is defined but never used.", "line": 1, "column": 7},
		{"ruleId": "semi", "severity": 1, "message": "Missing semicolon.", "line": 2, "column": 10},
		{"ruleId": null, "severity": 2, "fatal": true, "message": "Parsing error: Unexpected token", "line": 4, "column": 1}
	]}]`)

	got, err := parseESLint(out)
	if err != nil {
		t.Fatalf("parseESLint failed: %v", err)
	}
	want := []types.Issue{
		{Line: 1, Column: 7, Severity: types.SeverityHigh, Category: "error", Message: "'x' is defined but never used.", RuleID: "no-unused-vars"},
		{Line: 2, Column: 10, Severity: types.SeverityMedium, Category: "warning", Message: "Missing semicolon.", RuleID: "semi"},
		{Line: 4, Column: 1, Severity: types.SeverityCritical, Category: "syntax", Message: "Parsing error: Unexpected token"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseESLint mismatch (-want +got):\n%s", diff)
	}
}

func TestParseShellCheckAndHadolint(t *testing.T) {
	sc := []byte(`[
		{"file": "run.sh", "line": 3, "column": 6, "level": "warning", "code": 2086, "message": "Double quote to prevent globbing and word splitting."},
		{"file": "run.sh", "line": 8, "column": 1, "level": "style", "code": 2006, "message": "Use $(...) notation instead of legacy backticks."}
	]`)
	got, err := parseShellCheck(sc)
	if err != nil {
		t.Fatalf("parseShellCheck failed: %v", err)
	}
	if len(got) != 2 || got[0].RuleID != "SC2086" || got[0].Severity != types.SeverityMedium || got[1].Severity != types.SeverityInfo {
		t.Errorf("parseShellCheck = %+v", got)
	}

	hl := []byte(`[
		{"line": 1, "column": 1, "code": "DL3006", "level": "warning", "message": "Always tag the version of an image explicitly", "file": "Dockerfile"},
		{"line": 4, "column": 1, "code": "SC2046", "level": "error", "message": "Quote this to prevent word splitting.", "file": "Dockerfile"}
	]`)
	got, err = parseHadolint(hl)
	if err != nil {
		t.Fatalf("parseHadolint failed: %v", err)
	}
	if got[0].Category != "best-practice" || got[0].Severity != types.SeverityMedium {
		t.Errorf("hadolint DL3006 = %+v", got[0])
	}
	if got[1].Category != "shell" || got[1].Severity != types.SeverityHigh {
		t.Errorf("hadolint SC2046 = %+v", got[1])
	}
}

func TestParseStaticcheck(t *testing.T) {
	out := []byte(`{"code":"SA4006","severity":"error","location":{"file":"/w/main.go","line":12,"column":2},"message":"this value of err is never used"}
{"code":"ST1005","severity":"error","location":{"file":"/w/util.go","line":20,"column":9},"message":"error strings should not be capitalized"}

{"code":"QF1001","severity":"error","location":{"file":"/w/main.go","line":30,"column":5},"message":"could apply De Morgan's law"}
`)
	got, err := parseStaticcheck(out)
	if err != nil {
		t.Fatalf("parseStaticcheck failed: %v", err)
	}
	wantSev := []types.Severity{types.SeverityHigh, types.SeverityLow, types.SeverityInfo}
	wantCat := []string{"bug", "style", "quickfix"}
	wantFile := []string{"/w/main.go", "/w/util.go", "/w/main.go"}
	if len(got) != 3 {
		t.Fatalf("got %d issues, want 3", len(got))
	}
	for i := range got {
		if got[i].Severity != wantSev[i] || got[i].Category != wantCat[i] || got[i].File != wantFile[i] {
			t.Errorf("issue %d = (%v, %s, %s), want (%v, %s, %s)", i,
				got[i].Severity, got[i].Category, got[i].File, wantSev[i], wantCat[i], wantFile[i])
		}
	}

	if _, err := parseStaticcheck([]byte("-: undefined: foo")); err == nil {
		t.Error("expected error for non-JSON line")
	}
}

func TestParseStaticcheck_CompileErrorFailsUnit(t *testing.T) {
	out := []byte(`{"code":"SA4006","severity":"error","location":{"file":"/w/main.go","line":12,"column":2},"message":"unused"}
{"code":"compile","severity":"error","location":{"file":"/w/main.go","line":3,"column":1},"message":"undefined: helper"}
`)
	issues, err := parseStaticcheck(out)
	if !errors.Is(err, ErrUnexpectedExit) {
		t.Fatalf("err = %v, want ErrUnexpectedExit", err)
	}
	if issues != nil {
		t.Errorf("issues = %+v, want none", issues)
	}
	if Reason(err) != types.ReasonUnexpectedExit {
		t.Errorf("Reason = %s", Reason(err))
	}
}

func TestParseAIResponse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    int
		wantErr bool
	}{
		{"object", `{"issues":[{"line":3,"severity":"high","category":"security","message":"SQL built by concatenation","rule":"sql-injection"}]}`, 1, false},
		{"bare array", `[{"line":1,"severity":"low","message":"naming"},{"line":2,"severity":"bogus","description":"unused"}]`, 2, false},
		{"fenced", "Here is my review:\n```json\n{\"issues\": [{\"line\": 5, \"severity\": \"medium\", \"message\": \"x\"}]}\n```", 1, false},
		{"empty issues", `{"issues": []}`, 0, false},
		{"no message dropped", `[{"line":1,"severity":"high"}]`, 0, false},
		{"empty text", "", 0, false},
		{"prose", "Looks good to me!", 0, true},
		{"wrong object", `{"findings": []}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAIResponse(tt.text)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("got %d issues, want %d", len(got), tt.want)
			}
		})
	}

	got, _ := parseAIResponse(`[{"line":-4,"severity":"bogus","description":"d"}]`)
	if got[0].Severity != types.SeverityInfo || got[0].Line != 0 || got[0].Category != "review" || got[0].Message != "d" {
		t.Errorf("defaults not applied: %+v", got[0])
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrToolNotFound, types.ReasonToolMissing},
		{ErrTimeout, types.ReasonTimeout},
		{ErrParse, types.ReasonParseError},
		{ErrUnexpectedExit, types.ReasonUnexpectedExit},
		{errors.New("boom"), types.ReasonAnalyzerError},
	}
	for _, tt := range tests {
		wrapped := errors.Join(errors.New("context"), tt.err)
		if got := Reason(wrapped); got != tt.want {
			t.Errorf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
