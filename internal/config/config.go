// Package config loads .reviewgraph.yml, applies .env files and
// REVIEWGRAPH_* environment overrides, and converts the result into the
// settings each component takes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v2"

	"github.com/kushal45/reviewgraph/internal/analyzer"
	"github.com/kushal45/reviewgraph/internal/language"
	"github.com/kushal45/reviewgraph/internal/orchestrator"
	"github.com/kushal45/reviewgraph/internal/report"
	"github.com/kushal45/reviewgraph/internal/repository"
	"github.com/kushal45/reviewgraph/internal/types"
)

// FileNames are looked up, in order, when no config path is given.
var FileNames = []string{".reviewgraph.yml", ".reviewgraph.yaml"}

const maxConfigSize = 1 << 20

// Store kinds.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreMySQL    = "mysql"
	StorePostgres = "postgres"
)

// Duration is a time.Duration written as "30s" or "5m" in YAML.
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full reviewgraph configuration.
type Config struct {
	Analysis Analysis `yaml:"analysis"`
	Fetch    Fetch    `yaml:"fetch"`
	AI       AI       `yaml:"ai"`
	Report   Report   `yaml:"report"`
	Store    Store    `yaml:"store"`
	Log      Log      `yaml:"log"`
	Metrics  Metrics  `yaml:"metrics"`
	Trace    bool     `yaml:"trace"`
}

// Analysis configures the orchestrator and the analyzer registry.
type Analysis struct {
	MaxFileSize  int64               `yaml:"max_file_size"`
	ToolTimeout  Duration            `yaml:"tool_timeout"`
	ToolTimeouts map[string]Duration `yaml:"tool_timeouts,omitempty"`
	Concurrency  int                 `yaml:"concurrency"`
	MinSeverity  types.Severity      `yaml:"min_severity"`
	Exclude      []string            `yaml:"exclude"`
	WorkDir      string              `yaml:"work_dir,omitempty"`

	// MergeDuplicates folds the same finding from several tools into one.
	MergeDuplicates bool `yaml:"merge_duplicates"`

	// Disable removes analyzers by name.
	Disable []string `yaml:"disable,omitempty"`

	// Order sets the analyzer order per language, e.g. python: [flake8, pylint].
	Order map[string][]string `yaml:"order,omitempty"`
}

// Fetch configures repository download.
type Fetch struct {
	MaxFiles   int      `yaml:"max_files"`
	Ref        string   `yaml:"ref,omitempty"`
	Timeout    Duration `yaml:"timeout"`
	Attempts   int      `yaml:"attempts"`
	APIBaseURL string   `yaml:"api_base_url,omitempty"`
	RawBaseURL string   `yaml:"raw_base_url,omitempty"`

	// GitHubToken is only read from GITHUB_TOKEN.
	GitHubToken string `yaml:"-"`
}

// AI configures the optional model-backed reviewer.
type AI struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	MaxBytes int    `yaml:"max_bytes,omitempty"`

	// APIKey is only read from the provider's environment variable.
	APIKey string `yaml:"-"`
}

// Report configures rendering and where artifacts go.
type Report struct {
	Formats []string `yaml:"formats"`
	Dir     string   `yaml:"dir"`
	FailOn  string   `yaml:"fail_on,omitempty"`
	S3      S3       `yaml:"s3,omitempty"`
}

// S3 selects an S3-compatible sink when Bucket is set. Credentials come from
// the environment.
type S3 struct {
	Endpoint  string `yaml:"endpoint,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	UseSSL    bool   `yaml:"use_ssl,omitempty"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// Enabled reports whether reports go to S3 instead of Dir.
func (s S3) Enabled() bool { return s.Bucket != "" }

// Store selects the run state store.
type Store struct {
	Kind string `yaml:"kind"`
	DSN  string `yaml:"dsn,omitempty"`
}

// Log configures zap.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Metrics configures the Prometheus endpoint. Empty Addr disables it.
type Metrics struct {
	Addr string `yaml:"addr,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	oc := orchestrator.DefaultConfig()
	return Config{
		Analysis: Analysis{
			MaxFileSize: oc.MaxFileSize,
			ToolTimeout: Duration(oc.ToolTimeout),
			Concurrency: oc.Concurrency,
			MinSeverity: oc.MinSeverity,
			Exclude:     append([]string(nil), oc.Exclude...),
		},
		Fetch: Fetch{
			MaxFiles: 500,
			Timeout:  Duration(5 * time.Minute),
			Attempts: 3,
		},
		AI: AI{
			Provider: "anthropic",
			MaxBytes: analyzer.DefaultAIMaxBytes,
		},
		Report: Report{
			Formats: []string{"markdown", "json"},
			Dir:     "reports",
			S3:      S3{Region: "us-east-1", UseSSL: true},
		},
		Store: Store{Kind: StoreMemory},
		Log:   Log{Level: "info", Format: "console"},
	}
}

// Load reads the config file at path on top of the defaults. An empty path
// looks for FileNames in the working directory and falls back to the
// defaults when none exists.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, name := range FileNames {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
		if path == "" {
			return cfg, nil
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}
	if info.Size() > maxConfigSize {
		return cfg, fmt.Errorf("config file too large: %s (%d bytes, max 1 MB)", path, info.Size())
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored and variables that are already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// APIKeyEnv maps AI providers to the variable holding their key.
var APIKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"google":    "GOOGLE_API_KEY",
}

// ApplyEnv overrides cfg from the environment. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = Duration(d)
		}
	}

	integer("REVIEWGRAPH_CONCURRENCY", &c.Analysis.Concurrency)
	duration("REVIEWGRAPH_TOOL_TIMEOUT", &c.Analysis.ToolTimeout)
	if v := strings.TrimSpace(getenv("REVIEWGRAPH_MIN_SEVERITY")); v != "" {
		sev, err := types.ParseSeverity(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("REVIEWGRAPH_MIN_SEVERITY: %w", err))
		} else {
			c.Analysis.MinSeverity = sev
		}
	}
	if v := strings.TrimSpace(getenv("REVIEWGRAPH_EXCLUDE")); v != "" {
		c.Analysis.Exclude = splitList(v)
	}
	boolean("REVIEWGRAPH_MERGE_DUPLICATES", &c.Analysis.MergeDuplicates)
	integer("REVIEWGRAPH_MAX_FILES", &c.Fetch.MaxFiles)
	str("GITHUB_TOKEN", &c.Fetch.GitHubToken)

	boolean("REVIEWGRAPH_AI", &c.AI.Enabled)
	str("REVIEWGRAPH_AI_PROVIDER", &c.AI.Provider)
	str("REVIEWGRAPH_AI_MODEL", &c.AI.Model)
	if env, ok := APIKeyEnv[strings.ToLower(c.AI.Provider)]; ok {
		str(env, &c.AI.APIKey)
	}

	if v := strings.TrimSpace(getenv("REVIEWGRAPH_FORMATS")); v != "" {
		c.Report.Formats = splitList(v)
	}
	str("REVIEWGRAPH_REPORT_DIR", &c.Report.Dir)
	str("REVIEWGRAPH_FAIL_ON", &c.Report.FailOn)
	str("REVIEWGRAPH_S3_ENDPOINT", &c.Report.S3.Endpoint)
	str("REVIEWGRAPH_S3_REGION", &c.Report.S3.Region)
	str("REVIEWGRAPH_S3_BUCKET", &c.Report.S3.Bucket)
	str("REVIEWGRAPH_S3_ACCESS_KEY", &c.Report.S3.AccessKey)
	str("REVIEWGRAPH_S3_SECRET_KEY", &c.Report.S3.SecretKey)
	boolean("REVIEWGRAPH_S3_USE_SSL", &c.Report.S3.UseSSL)

	str("REVIEWGRAPH_STORE", &c.Store.Kind)
	str("REVIEWGRAPH_STORE_DSN", &c.Store.DSN)
	str("REVIEWGRAPH_LOG_LEVEL", &c.Log.Level)
	str("REVIEWGRAPH_LOG_FORMAT", &c.Log.Format)
	str("REVIEWGRAPH_METRICS_ADDR", &c.Metrics.Addr)
	boolean("REVIEWGRAPH_TRACE", &c.Trace)

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	errs := []error{c.Orchestrator().Validate()}

	for lang := range c.Analysis.Order {
		if !language.Known(types.Language(lang)) {
			errs = append(errs, fmt.Errorf("analysis.order: unknown language %q", lang))
		}
	}
	if c.Fetch.MaxFiles < 0 {
		errs = append(errs, fmt.Errorf("fetch.max_files must be >= 0, got %d", c.Fetch.MaxFiles))
	}
	if c.Fetch.Timeout < 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must be >= 0, got %s", time.Duration(c.Fetch.Timeout)))
	}
	if c.Fetch.Attempts < 0 {
		errs = append(errs, fmt.Errorf("fetch.attempts must be >= 0, got %d", c.Fetch.Attempts))
	}

	if c.AI.Enabled {
		if _, ok := APIKeyEnv[strings.ToLower(c.AI.Provider)]; !ok && !strings.EqualFold(c.AI.Provider, "mock") {
			errs = append(errs, fmt.Errorf("ai.provider: unknown provider %q", c.AI.Provider))
		}
	}
	if c.AI.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("ai.max_bytes must be >= 0, got %d", c.AI.MaxBytes))
	}

	if len(c.Report.Formats) == 0 {
		errs = append(errs, errors.New("report.formats cannot be empty"))
	}
	for _, f := range c.Report.Formats {
		if _, err := report.NewFormatter(f); err != nil {
			errs = append(errs, fmt.Errorf("report.formats: %w", err))
		}
	}
	if c.Report.FailOn != "" {
		if _, err := types.ParseSeverity(c.Report.FailOn); err != nil {
			errs = append(errs, fmt.Errorf("report.fail_on: %w", err))
		}
	}
	if !c.Report.S3.Enabled() && c.Report.Dir == "" {
		errs = append(errs, errors.New("report.dir is required without report.s3.bucket"))
	}

	switch c.Store.Kind {
	case StoreMemory:
	case StoreSQLite, StoreMySQL, StorePostgres:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for store %q", c.Store.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("store.kind: unknown store %q (supported: memory, sqlite, mysql, postgres)", c.Store.Kind))
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q (supported: console, json)", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Orchestrator converts the analysis settings.
func (c Config) Orchestrator() orchestrator.Config {
	a := c.Analysis
	oc := orchestrator.Config{
		MaxFileSize: a.MaxFileSize,
		ToolTimeout: time.Duration(a.ToolTimeout),
		Concurrency: a.Concurrency,
		MinSeverity: a.MinSeverity,
		Exclude:     a.Exclude,
		WorkDir:     a.WorkDir,

		MergeDuplicates: a.MergeDuplicates,
	}
	if len(a.ToolTimeouts) > 0 {
		oc.ToolTimeouts = make(map[string]time.Duration, len(a.ToolTimeouts))
		for tool, d := range a.ToolTimeouts {
			oc.ToolTimeouts[tool] = time.Duration(d)
		}
	}
	return oc
}

// ConfigureRegistry applies Disable and Order to reg.
func (c Config) ConfigureRegistry(reg *analyzer.Registry) error {
	if len(c.Analysis.Disable) > 0 {
		if err := reg.Disable(c.Analysis.Disable...); err != nil {
			return err
		}
	}
	for lang, names := range c.Analysis.Order {
		if err := reg.SetOrder(types.Language(lang), names); err != nil {
			return err
		}
	}
	return nil
}

// FetchOptions converts the fetch settings.
func (c Config) FetchOptions() repository.Options {
	return repository.Options{
		Ref:         c.Fetch.Ref,
		MaxFiles:    c.Fetch.MaxFiles,
		MaxFileSize: c.Analysis.MaxFileSize,
	}
}

// S3Config converts the S3 sink settings.
func (c Config) S3Config() report.S3Config {
	s := c.Report.S3
	return report.S3Config{
		Endpoint:  s.Endpoint,
		Region:    s.Region,
		AccessKey: s.AccessKey,
		SecretKey: s.SecretKey,
		Bucket:    s.Bucket,
		UseSSL:    s.UseSSL,
	}
}

// Formatters builds the configured report formatters.
func (c Config) Formatters() ([]report.Formatter, error) {
	out := make([]report.Formatter, 0, len(c.Report.Formats))
	for _, name := range c.Report.Formats {
		f, err := report.NewFormatter(name)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
