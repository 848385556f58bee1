package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/dmitrijs2005/nutritrack/internal/client/client"
	"github.com/dmitrijs2005/nutritrack/internal/client/config"
	"github.com/dmitrijs2005/nutritrack/internal/client/connectivity"
	"github.com/dmitrijs2005/nutritrack/internal/client/repositories/userdata"
	"github.com/dmitrijs2005/nutritrack/internal/client/services"
	"github.com/dmitrijs2005/nutritrack/internal/logging"
)

// App is the interactive client: it owns the queue database, the
// connectivity watcher and the REPL.
type App struct {
	config   *config.Config
	queue    services.WriteQueue
	foods    services.FoodCacheService
	backend  client.Client
	userData userdata.Repository
	monitor  *connectivity.Monitor
	db       *sql.DB
	log      logging.Logger
	reader   *bufio.Reader
	out      io.Writer
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()
	log := logging.New(os.Stderr, "text", c.LogLevel)

	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		log.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	backend, err := client.NewHTTPClient(c.BackendURL, &http.Client{Timeout: c.RequestTimeout})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	repos := client.NewRepositories(db)
	monitor := connectivity.NewMonitor(false, log)
	queue := services.NewWriteQueue(repos.Pending, repos.UserData, backend, monitor, log, nil)

	a := &App{
		config:   c,
		queue:    queue,
		foods:    services.NewFoodCacheService(repos.FoodCache),
		backend:  backend,
		userData: repos.UserData,
		monitor:  monitor,
		db:       db,
		log:      log,
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
	}
	monitor.Subscribe(a.replayAll)
	return a, nil
}

// replayAll runs on every offline -> online transition.
func (a *App) replayAll(ctx context.Context) {
	reports, err := a.queue.OnConnectivityRestored(ctx)
	if err != nil {
		a.log.Error(ctx, "replay after reconnect failed", "error", err)
	}
	for kind, r := range reports {
		if r.Delivered > 0 || r.Failed > 0 {
			a.log.Info(ctx, "replayed queued records", "kind", kind, "delivered", r.Delivered, "failed", r.Failed)
		}
	}
}

func (a *App) getStatus() string {
	parts := []string{string(a.monitor.Mode())}
	if st, err := a.queue.Status(context.Background()); err == nil {
		n := 0
		for _, c := range st.Unsynced {
			n += c
		}
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d pending", n))
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Run recovers interrupted deliveries, starts the online status watcher and
// blocks in the REPL until the user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.db.Close()

	if err := a.queue.Recover(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.monitor.Watch(ctx, a.config.OnlineCheckInterval, a.config.RequestTimeout, a.backend)
	}()

	printlnFn("Welcome to NutriTrack (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader)

	cancel()
	<-done
	return nil
}
