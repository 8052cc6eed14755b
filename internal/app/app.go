// Package app builds the email assistant's components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/abdulmalikadeyemo/email-assistant/artifact"
	"github.com/abdulmalikadeyemo/email-assistant/config"
	"github.com/abdulmalikadeyemo/email-assistant/graph"
	"github.com/abdulmalikadeyemo/email-assistant/graph/emit"
	"github.com/abdulmalikadeyemo/email-assistant/graph/model"
	"github.com/abdulmalikadeyemo/email-assistant/graph/store"
	"github.com/abdulmalikadeyemo/email-assistant/internal/logging"
	"github.com/abdulmalikadeyemo/email-assistant/jobs"
	"github.com/abdulmalikadeyemo/email-assistant/prompt"
	"github.com/abdulmalikadeyemo/email-assistant/retrieval"
	"github.com/abdulmalikadeyemo/email-assistant/server"
	"github.com/abdulmalikadeyemo/email-assistant/workflow"
)

// App holds the wired components. Close releases them.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Model     model.ChatModel
	Generator *prompt.Generator
	Retriever *retrieval.VectorRetriever
	Sink      artifact.Sink
	Steps     store.Store[graph.State]

	Graph   *graph.Graph[graph.State]
	Engine  *graph.Engine[graph.State]
	Runner  *workflow.Runner
	History *emit.BufferedEmitter

	Jobs     *jobs.Manager
	JobStore jobs.Store

	Registry       *prometheus.Registry
	Metrics        *graph.PrometheusMetrics
	TracerProvider *sdktrace.TracerProvider

	closers []func(context.Context) error
}

// New builds every component. On error, whatever was already opened is
// closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	a := &App{Config: cfg, Logger: logging.OrNop(logger)}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	if a.Model, err = NewModel(ctx, cfg.Model); err != nil {
		return nil, err
	}
	if a.Generator, err = NewGenerator(a.Model, cfg.Workflow, a.Logger); err != nil {
		return nil, err
	}
	if a.Retriever, err = NewRetriever(cfg.Retrieval); err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return a.Retriever.Index().Close() })

	a.Sink = artifact.Discard
	if cfg.Artifacts.Enabled {
		a.Sink = artifact.NewFileSink(cfg.Artifacts.Dir, cfg.Artifacts.PerRun)
	}

	if err := a.openSteps(); err != nil {
		return nil, err
	}

	a.Graph, err = workflow.Build(workflow.Deps{
		Generator: a.Generator,
		Retriever: a.Retriever,
		Sink:      a.Sink,
		Logger:    a.Logger,
	}, workflow.Options{
		RouteResearch: cfg.Workflow.RouteResearch,
		MaxQuestions:  cfg.Workflow.MaxQuestions,
		RetrievalK:    cfg.Workflow.RetrievalK,
	})
	if err != nil {
		return nil, err
	}

	if err := a.buildEngine(); err != nil {
		return nil, err
	}
	if a.Runner, err = workflow.NewRunner(a.Engine, a.History); err != nil {
		return nil, err
	}
	if err := a.buildJobs(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Handler returns the HTTP handler serving the job manager.
func (a *App) Handler() http.Handler {
	opts := server.Options{
		Graph:        a.Graph.Mermaid,
		MaxBodyBytes: a.Config.Server.MaxBodyBytes,
		Logger:       a.Logger,
	}
	if a.Registry != nil {
		opts.Gatherer = a.Registry
	}
	if rs, ok := a.JobStore.(*jobs.RedisStore); ok {
		opts.Health = rs.Ping
	}
	return server.NewHandler(a.Jobs, opts)
}

// HTTPServer returns a server for Handler configured from Config.Server.
func (a *App) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       a.Config.Server.ReadTimeout,
		WriteTimeout:      a.Config.Server.WriteTimeout,
	}
}

// NewGenerator creates the prompt generator with the configured prompt
// overrides and the company and signer defaults.
func NewGenerator(m model.ChatModel, cfg config.WorkflowConfig, logger *slog.Logger) (*prompt.Generator, error) {
	prompts, err := prompt.Default()
	if err != nil {
		return nil, err
	}
	if cfg.PromptsDir != "" {
		custom, err := prompt.Load(os.DirFS(cfg.PromptsDir))
		if err != nil {
			return nil, fmt.Errorf("load prompts from %s: %w", cfg.PromptsDir, err)
		}
		prompts = prompts.Override(custom)
	}
	return prompt.NewGenerator(m, prompts,
		prompt.WithLogger(logger),
		prompt.WithDefaults(map[string]any{
			"company": cfg.Company,
			"signer":  cfg.Signer,
		}),
	)
}

func (a *App) openSteps() error {
	cfg := a.Config.Store
	switch cfg.Driver {
	case "":
		return nil
	case "memory":
		a.Steps = store.NewMemStore[graph.State]()
	case "sqlite":
		st, err := store.NewSQLiteStore[graph.State](cfg.DSN)
		if err != nil {
			return fmt.Errorf("open step store: %w", err)
		}
		a.Steps = st
		a.onClose(func(context.Context) error { return st.Close() })
	case "mysql":
		st, err := store.NewMySQLStore[graph.State](cfg.DSN)
		if err != nil {
			return fmt.Errorf("open step store: %w", err)
		}
		a.Steps = st
		a.onClose(func(context.Context) error { return st.Close() })
	default:
		return fmt.Errorf("unknown step store driver %q", cfg.Driver)
	}
	return nil
}

func (a *App) buildEngine() error {
	cfg := a.Config
	a.History = emit.NewBoundedEmitter(cfg.Telemetry.HistoryPerRun)
	emitters := []emit.Emitter{emit.NewSlogEmitter(a.Logger), a.History}

	if cfg.Telemetry.Tracing {
		tp, err := newTracerProvider(cfg.Telemetry.ServiceName, a.Logger)
		if err != nil {
			return err
		}
		a.TracerProvider = tp
		a.onClose(tp.Shutdown)
		emitters = append(emitters, emit.NewOTelEmitter(tp.Tracer("github.com/abdulmalikadeyemo/email-assistant/graph")))
	}

	opts := []graph.Option{
		graph.WithMaxSteps(cfg.Engine.MaxSteps),
		graph.WithDefaultNodeTimeout(cfg.Engine.NodeTimeout),
	}
	if cfg.Telemetry.Metrics {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.Metrics = graph.NewPrometheusMetrics(a.Registry)
		opts = append(opts, graph.WithMetrics(a.Metrics))
	}

	var err error
	a.Engine, err = graph.New(a.Graph, a.Steps, emit.NewMulti(emitters...), opts...)
	return err
}

func (a *App) buildJobs() error {
	cfg := a.Config.Jobs
	switch cfg.Store {
	case "redis":
		a.JobStore = jobs.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			jobs.WithPrefix(cfg.Redis.Prefix),
			jobs.WithTTL(cfg.Redis.TTL),
		)
	default:
		a.JobStore = jobs.NewMemoryStore()
	}
	a.onClose(func(context.Context) error { return a.JobStore.Close() })

	m, err := jobs.NewManager(a.Runner, a.JobStore, jobs.Options{
		MaxConcurrent: cfg.MaxConcurrent,
		Timeout:       cfg.Timeout,
		Logger:        a.Logger,
	})
	if err != nil {
		return err
	}
	a.Jobs = m
	a.onClose(m.Shutdown)
	return nil
}
