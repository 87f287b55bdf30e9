package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cardsdata/formquery/pkg/api"
	"github.com/cardsdata/formquery/pkg/config"
	"github.com/cardsdata/formquery/pkg/log"
	"github.com/cardsdata/formquery/pkg/metrics"
	"github.com/cardsdata/formquery/pkg/query"
	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 30 * time.Second

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the query HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Listen address, overrides [server] listen",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c.String("config"), c.String("listen"))
		},
	}
}

// serve runs the HTTP server until interrupted, hot-reloading the [search]
// settings on SIGHUP or when the config file changes.
func serve(ctx context.Context, configPath, listenOverride string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := log.ForService("serve")

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeRepository(repo)

	// m stays a nil pointer when metrics are off; the engine gets the
	// interface value separately so it never sees a typed nil.
	var m *metrics.Metrics
	var observer query.Observer = query.NopObserver{}
	if cfg.MetricsEnabled() {
		m = metrics.New()
		observer = m
		if stats, err := repo.Stats(); err == nil {
			m.UpdateRepositoryStats(stats.SizeBytes, stats.Total)
		}
	}

	engine := query.NewEngine(repo, engineSettings(cfg), observer)
	server := api.NewServer(engine, repo, m)
	handler, err := server.Handler(cfg.GzipEnabled())
	if err != nil {
		return fmt.Errorf("building http handler: %w", err)
	}

	listen := cfg.Server.Listen
	if listenOverride != "" {
		listen = listenOverride
	}
	httpServer := &http.Server{
		Addr:              listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	fmt.Printf("Serving on http://%s. Press Ctrl+C to stop, send SIGHUP or modify the config file to reload search settings.\n", listen)

	reloader := &settingsReloader{
		path:    configPath,
		current: cfg,
		engine:  engine,
		notify:  server.NotifySettings,
		metrics: m,
		logger:  logger,
	}

	// Nil channels block forever, which keeps the loop quiet when the
	// watcher could not be set up.
	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("failed to create config file watcher: %v", err)
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Warnf("failed to close config file watcher: %v", err)
			}
		}()

		if err := watcher.Add(configPath); err != nil {
			logger.Warnf("failed to watch config file %s: %v", configPath, err)
		} else {
			events, watchErrs = watcher.Events, watcher.Errors
			logger.Infof("watching config file for changes: %s", configPath)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return shutdown(httpServer, logger)
		case err := <-errCh:
			return fmt.Errorf("serving http: %w", err)
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Infof("received SIGHUP, reloading search settings")
				_ = reloader.reload()
			case syscall.SIGINT, syscall.SIGTERM:
				fmt.Println("\nShutting down...")
				return shutdown(httpServer, logger)
			}
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// Editors often replace the file (rename/remove) instead of writing in place.
			if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)) {
				continue
			}
			logger.Infof("config file changed: %s (event: %s)", event.Name, event.Op.String())

			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(200 * time.Millisecond)
				if _, err := os.Stat(configPath); os.IsNotExist(err) {
					logger.Warnf("config file was removed and not replaced, skipping reload")
					continue
				}
				if err := watcher.Add(configPath); err != nil {
					logger.Warnf("failed to re-add config file to watcher: %v", err)
				}
			} else {
				time.Sleep(100 * time.Millisecond)
			}
			_ = reloader.reload()
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			logger.Warnf("config file watcher error: %v", err)
		}
	}
}

func shutdown(srv *http.Server, logger *log.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	logger.Infof("server stopped")
	return nil
}

// settingsReloader swaps the [search] settings of a running engine.
// Storage and listener changes are reported but need a restart.
type settingsReloader struct {
	mu      sync.Mutex
	path    string
	current *config.Config
	engine  *query.Engine
	notify  func(query.Settings)
	metrics *metrics.Metrics
	logger  *log.Logger
}

func (r *settingsReloader) reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, err := loadConfig(r.path)
	if r.metrics != nil {
		r.metrics.SettingsReloaded(err)
	}
	if err != nil {
		r.logger.Errorf("failed to reload configuration: %v", err)
		return err
	}

	old := r.current
	if cfg.DatabasePath() != old.DatabasePath() ||
		cfg.Server.Listen != old.Server.Listen ||
		cfg.GzipEnabled() != old.GzipEnabled() ||
		cfg.MetricsEnabled() != old.MetricsEnabled() {
		r.logger.Warnf("storage and server settings changed; restart to apply them")
	}

	r.engine.SetSettings(engineSettings(cfg))
	settings := r.engine.Settings()
	if r.notify != nil {
		r.notify(settings)
	}
	r.current = cfg

	r.logger.With("aggregate_type", settings.AggregateType).
		With("forms_root", settings.FormsRoot).
		With("context_window", settings.ContextWindow).
		Infof("search settings reloaded")
	return nil
}
