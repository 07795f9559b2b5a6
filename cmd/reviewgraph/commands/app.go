package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kushal45/reviewgraph/graph"
	"github.com/kushal45/reviewgraph/graph/emit"
	"github.com/kushal45/reviewgraph/graph/store"
	"github.com/kushal45/reviewgraph/internal/analyzer"
	"github.com/kushal45/reviewgraph/internal/config"
	"github.com/kushal45/reviewgraph/internal/llm"
	"github.com/kushal45/reviewgraph/internal/logging"
	"github.com/kushal45/reviewgraph/internal/orchestrator"
	"github.com/kushal45/reviewgraph/internal/report"
	"github.com/kushal45/reviewgraph/internal/repository"
	"github.com/kushal45/reviewgraph/internal/telemetry"
	"github.com/kushal45/reviewgraph/internal/types"
	"github.com/kushal45/reviewgraph/internal/workflow"
)

// loadConfig resolves configuration in order: defaults, config file, .env,
// environment, flags.
func (g *globalOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = g.logFormat
	}
	if flags.Changed("store") {
		cfg.Store.Kind = g.store
	}
	if flags.Changed("store-dsn") {
		cfg.Store.DSN = g.storeDSN
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = g.metricsAddr
	}
	if flags.Changed("trace") {
		cfg.Trace = g.trace
	}
	return cfg, nil
}

// app owns the process-wide collaborators of a command.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	store    store.Store[workflow.ReviewState]
	emitter  emit.Emitter
	registry *prometheus.Registry
	closers  []func(context.Context) error
}

func newApp(ctx context.Context, cfg config.Config) (a *app, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	a = &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return a, err
	}
	a.store = st
	if closeStore != nil {
		a.closers = append(a.closers, func(context.Context) error { return closeStore() })
	}

	emitters := []emit.Emitter{emit.NewLogEmitter(logger)}
	if cfg.Trace {
		_, shutdown := telemetry.Setup(telemetry.NewZapExporter(logger), Version)
		a.closers = append(a.closers, shutdown)
		emitters = append(emitters, emit.NewOTelEmitter(nil))
	}
	a.emitter = emit.NewMultiEmitter(emitters...)

	if cfg.Metrics.Addr != "" {
		if err := a.serveMetrics(cfg.Metrics.Addr); err != nil {
			return a, err
		}
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.Store) (store.Store[workflow.ReviewState], func() error, error) {
	switch cfg.Kind {
	case config.StoreSQLite:
		st, err := store.NewSQLiteStore[workflow.ReviewState](cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case config.StoreMySQL:
		st, err := store.NewMySQLStore[workflow.ReviewState](ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case config.StorePostgres:
		st, err := store.NewPostgresStore[workflow.ReviewState](ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return store.NewMemStore[workflow.ReviewState](), nil, nil
	}
}

func (a *app) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	a.closers = append(a.closers, srv.Shutdown)
	return nil
}

// Close releases everything newApp opened, last opened first.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func (a *app) analyzerRegistry(ctx context.Context, costs *llm.CostTracker) (*analyzer.Registry, error) {
	var extra []analyzer.Analyzer
	if a.cfg.AI.Enabled {
		client, err := llm.New(ctx, a.cfg.AI.Provider, a.cfg.AI.APIKey, a.cfg.AI.Model)
		if err != nil {
			return nil, fmt.Errorf("ai reviewer: %w", err)
		}
		if c, ok := client.(io.Closer); ok {
			a.closers = append(a.closers, func(context.Context) error { return c.Close() })
		}
		ai := analyzer.NewAIAnalyzer(client, costs)
		ai.SetMaxBytes(a.cfg.AI.MaxBytes)
		extra = append(extra, ai)
	}

	reg, err := analyzer.NewDefaultRegistry(analyzer.NewRunner(a.logger), extra...)
	if err != nil {
		return nil, err
	}
	if err := a.cfg.ConfigureRegistry(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (a *app) fetcher() (repository.Fetcher, error) {
	opts := []repository.GitHubOption{repository.WithLogger(a.logger)}
	if a.cfg.Fetch.APIBaseURL != "" || a.cfg.Fetch.RawBaseURL != "" {
		api, raw := a.cfg.Fetch.APIBaseURL, a.cfg.Fetch.RawBaseURL
		if api == "" {
			api = repository.DefaultAPIBaseURL
		}
		if raw == "" {
			raw = repository.DefaultRawBaseURL
		}
		opts = append(opts, repository.WithBaseURLs(api, raw))
	}
	gh, err := repository.NewGitHub(a.cfg.Fetch.GitHubToken, opts...)
	if err != nil {
		return nil, err
	}
	return &repository.Router{GitHub: gh, Local: repository.NewLocal(a.logger)}, nil
}

func (a *app) sink() (report.Sink, error) {
	if a.cfg.Report.S3.Enabled() {
		return report.NewS3Sink(a.cfg.S3Config())
	}
	return &report.LocalSink{Dir: a.cfg.Report.Dir}, nil
}

// newWorkflow assembles a review workflow over the app's store and emitters.
func (a *app) newWorkflow(ctx context.Context) (*workflow.Workflow, error) {
	var (
		costs *llm.CostTracker
		usage func() *types.Usage
	)
	if a.cfg.AI.Enabled {
		costs = llm.NewCostTracker()
		usage = func() *types.Usage {
			u := costs.Usage()
			return &u
		}
	}

	reg, err := a.analyzerRegistry(ctx, costs)
	if err != nil {
		return nil, err
	}
	orch, err := orchestrator.New(reg, a.cfg.Orchestrator(),
		orchestrator.WithLogger(a.logger),
		orchestrator.WithMetrics(orchestrator.NewMetrics(a.registry)))
	if err != nil {
		return nil, err
	}
	fetcher, err := a.fetcher()
	if err != nil {
		return nil, err
	}
	sink, err := a.sink()
	if err != nil {
		return nil, err
	}
	formatters, err := a.cfg.Formatters()
	if err != nil {
		return nil, err
	}

	return workflow.New(workflow.Config{
		Fetcher:       fetcher,
		FetchOptions:  a.cfg.FetchOptions(),
		Orchestrator:  orch,
		Sink:          sink,
		Formatters:    formatters,
		Usage:         usage,
		Store:         a.store,
		Emitter:       a.emitter,
		Metrics:       graph.NewPrometheusMetrics(a.registry),
		Logger:        a.logger,
		FetchTimeout:  time.Duration(a.cfg.Fetch.Timeout),
		FetchAttempts: a.cfg.Fetch.Attempts,
	})
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
