package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"viaductecho/internal/config"
	"viaductecho/internal/extract"
	"viaductecho/internal/filter"
	"viaductecho/internal/llm"
	"viaductecho/internal/logging"
	"viaductecho/internal/ports"
	"viaductecho/internal/publisher"
	"viaductecho/internal/scheduler"
	"viaductecho/internal/source"
	"viaductecho/internal/storage"
	"viaductecho/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	store     *storage.Postgres
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
}

// New builds a runnable application instance.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout()}
	extractor := extract.New(httpClient, baseLogger.With("component", "extractor"))

	registry := source.NewRegistry()
	registry.Register("feed", func(sc config.SourceConfig) ports.Source {
		return source.NewFeedSource(sc.Name, sc.URL, httpClient, extractor,
			baseLogger.With("component", "source.feed"))
	})
	registry.Register("nub", func(sc config.SourceConfig) ports.Source {
		return source.NewNubSource(sc.Name, sc.URL, httpClient, extractor,
			baseLogger.With("component", "source.nub"))
	})
	registry.Register("skiddle", func(sc config.SourceConfig) ports.Source {
		return source.NewSkiddleSource(sc.Name, sc.URL, cfg.Skiddle, httpClient,
			baseLogger.With("component", "source.skiddle"))
	})

	sources, err := registry.Build(cfg.Sources)
	if err != nil {
		return nil, fmt.Errorf("build sources: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Database.DSN, baseLogger.With("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Sources:    sources,
		Filter:     filter.New(cfg.Keywords),
		Summarizer: llm.NewSummarizer(cfg.OpenAI, httpClient, baseLogger.With("component", "summarizer")),
		Store:      store,
		Publisher:  publisher.NewGitHub(cfg.GitHub, httpClient, baseLogger.With("component", "publisher")),
		ItemDelay:  cfg.HTTP.ItemDelay(),
		Logger:     baseLogger.With("component", "pipeline"),
	})

	window := scheduler.NewWindow(cfg.Scheduler, baseLogger.With("component", "scheduler"))

	return &Application{
		cfg:       cfg,
		store:     store,
		pipeline:  pipeline,
		scheduler: usecase.NewScheduler(window, pipeline),
	}, nil
}

// RunOnce performs a single pipeline execution and logs the report.
func (a *Application) RunOnce(ctx context.Context) error {
	report, err := a.pipeline.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Print(report.Summary())
	return nil
}

// Start begins scheduled execution and blocks until the context ends.
func (a *Application) Start(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	<-ctx.Done()
	a.scheduler.Stop()
	return nil
}

// Close releases held resources.
func (a *Application) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
