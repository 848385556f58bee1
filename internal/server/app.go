// Package server initializes and runs the edge proxy. It picks the cache
// storage backend, opens the write queue used by background sync, installs
// the configured cache version and serves until a signal arrives.
package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrijs2005/nutritrack/internal/client/client"
	"github.com/dmitrijs2005/nutritrack/internal/client/connectivity"
	"github.com/dmitrijs2005/nutritrack/internal/client/services"
	"github.com/dmitrijs2005/nutritrack/internal/edge"
	"github.com/dmitrijs2005/nutritrack/internal/edge/config"
	"github.com/dmitrijs2005/nutritrack/internal/edge/httpapi"
	"github.com/dmitrijs2005/nutritrack/internal/edge/s3store"
	"github.com/dmitrijs2005/nutritrack/internal/edge/sqlitestore"
	"github.com/dmitrijs2005/nutritrack/internal/logging"
	"github.com/dmitrijs2005/nutritrack/internal/metrics"
)

// App wires the edge proxy: cache storage, the optional write queue that
// background sync replays, the controller registry and the HTTP surface.
type App struct {
	config   *config.Config
	logger   logging.Logger
	origin   *url.URL
	fetcher  *http.Client
	storage  edge.CacheStorage
	replayer edge.Replayer
	inbox    *edge.Inbox
	registry *edge.Registry
	promReg  *prometheus.Registry
	metrics  *metrics.Metrics
	closers  []func() error
}

// NewApp opens storage and, when configured, the queue database. The
// controller is installed later by Run.
func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()
	logger := logging.New(os.Stdout, c.LogFormat, c.LogLevel)

	origin, err := url.Parse(c.OriginURL)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid origin url %q", c.OriginURL)
	}

	promReg := prometheus.NewRegistry()
	app := &App{
		config:  c,
		logger:  logger,
		origin:  origin,
		fetcher: &http.Client{Timeout: c.RequestTimeout},
		inbox:   edge.NewInbox(logger),
		promReg: promReg,
		metrics: metrics.New(promReg),
	}

	if app.storage, err = app.openStorage(ctx); err != nil {
		return nil, fmt.Errorf("cache storage init error: %w", err)
	}

	if c.QueueDatabase != "" {
		if app.replayer, err = app.openQueue(ctx); err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("queue init error: %w", err)
		}
	}

	app.registry = edge.NewRegistry(edge.NewProxy(origin, app.fetcher, logger, c.BypassHosts...), logger)
	return app, nil
}

func (app *App) openStorage(ctx context.Context) (edge.CacheStorage, error) {
	c := app.config
	switch c.Storage {
	case config.StorageMemory:
		return edge.NewMemoryStorage(), nil
	case config.StorageSQLite:
		s, err := sqlitestore.Open(ctx, c.SQLitePath)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, s.Close)
		return s, nil
	case config.StorageS3:
		return s3store.NewFromConfig(ctx, s3store.Config{
			User:         c.S3RootUser,
			Password:     c.S3RootPassword,
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			Root:         c.S3Root,
		})
	}
	return nil, fmt.Errorf("unknown storage %q", c.Storage)
}

// openQueue opens the write queue that background sync replays. The proxy
// never queues records itself; a sync event means the page saw the network
// come back, so the queue treats the backend as reachable.
//
// The queue file may be shared with a running client, so the edge leaves
// delivering records alone: only the client resets them at its startup.
func (app *App) openQueue(ctx context.Context) (services.WriteQueue, error) {
	db, err := client.InitDatabase(ctx, app.config.QueueDatabase)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, db.Close)

	backend, err := client.NewHTTPClient(app.config.BackendURL, &http.Client{Timeout: app.config.RequestTimeout})
	if err != nil {
		return nil, err
	}

	repos := client.NewRepositories(db)
	return services.NewWriteQueue(repos.Pending, repos.UserData, backend,
		connectivity.NewMonitor(true, app.logger), app.logger, app.metrics), nil
}

func (app *App) newController(version string) (*edge.Controller, error) {
	c := app.config
	return edge.NewController(edge.Options{
		Version:           version,
		Prefix:            c.CachePrefix,
		Origin:            app.origin,
		Manifest:          c.Manifest,
		APIPrefixes:       c.APIPrefixes,
		BypassHosts:       c.BypassHosts,
		MaxEntryBytes:     c.MaxEntryBytes,
		BackgroundTimeout: c.BackgroundTimeout,
	}, edge.Deps{
		Storage:  app.storage,
		Fetcher:  app.fetcher,
		Notifier: app.inbox,
		Replayer: app.replayer,
		Logger:   app.logger,
		Metrics:  app.metrics,
	})
}

// install activates the configured version. A failed install is logged and
// the proxy keeps passing requests through; /_edge/update can retry.
func (app *App) install(ctx context.Context) {
	ctrl, err := app.newController(app.config.CacheVersion)
	if err != nil {
		app.logger.Error(ctx, "controller init error", "error", err)
		return
	}
	if err := app.registry.Update(ctx, ctrl); err != nil {
		app.logger.Warn(ctx, "initial install failed, passing requests through", "version", app.config.CacheVersion, "error", err)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.ListenAddr, app.logger, app.registry, app.inbox,
		app.newController, app.promReg, app.config.PushSecret)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run installs the configured version, serves until ctx is cancelled or a
// signal arrives, then retires the active controller.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)
	app.install(ctx)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.registry.Shutdown()
	return app.Close()
}

// Close releases the databases opened by NewApp.
func (app *App) Close() error {
	var firstErr error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	app.closers = nil
	return firstErr
}
