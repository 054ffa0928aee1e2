package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"hydrovalley/internal/config"
	"hydrovalley/internal/dataset"
	"hydrovalley/internal/handler"
	"hydrovalley/internal/hub"
	"hydrovalley/internal/layout"
	"hydrovalley/internal/logging"
	"hydrovalley/internal/metrics"
	"hydrovalley/internal/repository/sqlite"
	"hydrovalley/internal/service"
	"hydrovalley/internal/session"
	"hydrovalley/internal/simulation"
	"hydrovalley/internal/watcher"

	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hydrovalley: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file (default: search the usual locations)")
	addr := flag.String("addr", "", "HTTP listen address")
	layoutURL := flag.String("layout-url", "", "layout service URL")
	simulationURL := flag.String("simulation-url", "", "simulation service URL")
	datasetDir := flag.String("datasets", "", "dataset directory")
	dbPath := flag.String("db", "", "SQLite run history path")
	noHistory := flag.Bool("no-history", false, "disable run history")
	strict := flag.Bool("strict", false, "reject dangling unit references")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	flag.Parse()

	var (
		cfg  *config.Config
		path string
		err  error
	)
	if *configPath != "" {
		cfg, path, err = config.LoadFromPath(*configPath)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flags override file values only when given
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = *addr
		case "layout-url":
			cfg.Services.LayoutURL = *layoutURL
		case "simulation-url":
			cfg.Services.SimulationURL = *simulationURL
		case "datasets":
			cfg.Datasets.Dir = *datasetDir
		case "db":
			cfg.History.Path = *dbPath
		case "no-history":
			cfg.History.Enabled = !*noHistory
		case "strict":
			cfg.Strict = *strict
		case "log-level":
			cfg.Logging.Level = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.LoggerConfig())
	slog.SetDefault(logger)
	if path != "" {
		logger.Info("config loaded", "path", path)
	}
	logger.Info("starting hydrovalley server", "config", cfg.Summary())

	m, err := metrics.New(nil)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(m),
		service.WithSimulationTimeout(cfg.Services.SimulationTimeout.Duration()),
	}
	if cfg.History.Enabled {
		repo, err := sqlite.New(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("open run history: %w", err)
		}
		defer repo.Close()
		logger.Info("run history opened", "path", cfg.History.Path)
		opts = append(opts, service.WithRunStore(repo))
	}

	// One layout cache per session, sharing the service client
	fetcher := layout.NewHTTPFetcher(cfg.Services.LayoutURL, cfg.Services.LayoutTimeout.Duration())
	sessions := session.NewStore(func() *layout.Cache {
		return layout.NewCache(fetcher, layout.WithMetrics(m), layout.WithLogger(logger))
	}, session.WithStrict(cfg.Strict))

	datasets := dataset.New(cfg.Datasets.Dir, cfg.Datasets.Default)
	runner := simulation.NewClient(cfg.Services.SimulationURL, cfg.Services.SimulationTimeout.Duration())

	eventBus := service.NewEventBus()
	svc := service.NewValleyService(sessions, datasets, runner, eventBus, opts...)
	defer svc.Close()

	sseHub := hub.New(logger)

	// Connect event bus to SSE hub
	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)

	mux := http.NewServeMux()
	handler.NewValleyHandler(svc).Register(mux)
	mux.Handle("GET /events", sseHub)
	mux.Handle("GET /metrics", m.Handler())

	server := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: handler.Chain(mux,
			handler.Recover,
			handler.CORS,
			handler.Logger(logger, m),
		),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No WriteTimeout: SSE streams stay open
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sseHub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case event := <-eventChan:
				sseHub.Broadcast(event)
			case <-gctx.Done():
				return nil
			}
		}
	})

	if cfg.Datasets.Watch {
		w := watcher.New(datasets.Dir(), func(name string) bool {
			return dataset.ValidateName(name) == nil
		}, func(path string) {
			svc.DatasetsChanged(filepath.Base(path))
		}).WithLogger(logger)

		g.Go(func() error {
			if err := w.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
				// A missing directory only disables live updates
				logger.Warn("dataset watcher stopped", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
